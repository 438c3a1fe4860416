// armjit runs a raw guest image through the translation engine.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/armjit/config"
)

func main() {
	configPath := flag.String("config", "", "Path to armjit.toml")
	imagePath := flag.String("image", "", "Raw guest image (overrides image.file)")
	base := flag.String("base", "", "Load address of the image (overrides image.base)")
	entry := flag.String("entry", "", "Entry point (overrides image.entry)")
	cycles := flag.Int("cycles", 1_000_000, "Cycle budget")
	disasm := flag.Bool("disasm", false, "Print host code for the entry block before running")
	tracePath := flag.String("trace", "", "Record compilations to a SQLite database (overrides trace.db)")
	saveContext := flag.String("save-context", "", "Write the final guest context (CBOR) to this file")
	verbosity := flag.Int("v", 0, "Log verbosity (-4..2, overrides log.verbosity)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: armjit [options]\n\n")
		fmt.Fprintf(os.Stderr, "Translates and runs a raw little-endian guest image.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nSupervisor calls:\n")
		fmt.Fprintf(os.Stderr, "  svc #0   exit\n")
		fmt.Fprintf(os.Stderr, "  svc #1   write the low byte of r0 to stdout\n")
		fmt.Fprintf(os.Stderr, "  svc #2   clear the code cache\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  armjit -image hello.bin -base 0x1000 -entry 0x1000\n")
		fmt.Fprintf(os.Stderr, "  armjit -config armjit.toml -trace trace.db -v 1\n")
	}
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fatalf("%v", err)
		}
		cfg = *loaded
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if *imagePath != "" {
		cfg.Image.File = *imagePath
	}
	if *base != "" {
		cfg.Image.Base = parseAddress("base", *base)
	}
	if *entry != "" {
		cfg.Image.Entry = parseAddress("entry", *entry)
	}
	if *tracePath != "" {
		cfg.Trace.DB = *tracePath
	}
	if set["v"] {
		cfg.Log.Verbosity = *verbosity
	}
	if err := cfg.Validate(); err != nil {
		fatalf("invalid configuration: %v", err)
	}

	var logFile *string
	if cfg.Log.File != "" {
		logFile = &cfg.Log.File
	}
	commonlog.Configure(cfg.Log.Verbosity, logFile)

	if cfg.Image.File == "" {
		flag.Usage()
		os.Exit(2)
	}
	image, err := os.ReadFile(cfg.Image.File)
	if err != nil {
		fatalf("cannot read image: %v", err)
	}

	opts := runOptions{Cycles: *cycles, Disasm: *disasm, SaveContext: *saveContext}
	if err := runImage(&cfg, image, opts, os.Stdout); err != nil {
		fatalf("%v", err)
	}
}

func parseAddress(name, s string) uint32 {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		fatalf("invalid -%s %q: %v", name, s, err)
	}
	return uint32(v)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
