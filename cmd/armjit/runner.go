package main

import (
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/armjit/config"
	"github.com/chazu/armjit/jit"
	"github.com/chazu/armjit/pkg/guest"
	"github.com/chazu/armjit/pkg/ir"
	"github.com/chazu/armjit/pkg/trace"
)

// Supervisor calls understood by the runner.
const (
	svcExit       = 0
	svcPutchar    = 1
	svcClearCache = 2
)

// slice is how many cycles one Run call is given.
const slice = 10000

// runner owns one engine executing a raw guest image.
type runner struct {
	jit    *jit.Jit
	mem    *guest.FlatMemory
	out    io.Writer
	exited bool
	log    commonlog.Logger
}

func newRunner(cfg *config.Config, image []byte, out io.Writer) (*runner, error) {
	size := cfg.Image.Size
	if size < len(image) {
		size = len(image)
	}
	// Keep the mapping word-aligned so the last word is addressable.
	size = (size + 3) &^ 3

	mem := guest.NewFlatMemory(cfg.Image.Base, size)
	copy(mem.Data, image)
	imageEnd := cfg.Image.Base + uint32(len(image))
	if cfg.Image.ReadOnly && len(image) > 0 {
		mem.ReadOnly = append(mem.ReadOnly, [2]uint32{cfg.Image.Base, imageEnd - 1})
	}

	r := &runner{mem: mem, out: out, log: commonlog.GetLogger("armjit.cli")}

	j, err := jit.New(cfg.Engine, jit.Callbacks{
		Memory:          mem,
		CallSVC:         r.callSVC,
		ExceptionRaised: r.exceptionRaised,
	})
	if err != nil {
		return nil, err
	}
	r.jit = j

	// Self-modifying code: a store into the image drops every block that
	// could cover the written word. Blocks are evicted by start address
	// and span at most span bytes.
	span := uint32(cfg.Engine.MaxBlockInstructions-1) * guest.InstructionSize
	mem.OnWrite = func(addr uint32, _ uint32) {
		if addr < cfg.Image.Base || addr >= imageEnd {
			return
		}
		start := cfg.Image.Base
		if addr-cfg.Image.Base > span {
			start = addr - span
		}
		j.InvalidateCacheRange(start, addr-start+4)
	}

	j.Regs()[ir.PC] = cfg.Image.Entry
	return r, nil
}

func (r *runner) callSVC(imm uint32) {
	switch imm {
	case svcExit:
		r.exited = true
		r.jit.HaltExecution()
	case svcPutchar:
		fmt.Fprintf(r.out, "%c", byte(r.jit.Regs()[ir.R0]))
	case svcClearCache:
		r.jit.ClearCache()
	default:
		r.log.Errorf("unknown supervisor call %d at %s", imm, r.jit.CurrentLocation())
	}
}

func (r *runner) exceptionRaised(pc uint32, exception guest.Exception) {
	r.log.Errorf("%s at %#08x", exception, pc)
	r.exited = true
	r.jit.HaltExecution()
}

// run executes until the guest exits or about cycles have been spent.
// Invalidation requests end a Run call early; only the cycles it actually
// executed count against the budget. It reports whether the guest exited.
func (r *runner) run(cycles int) bool {
	for spent := 0; spent < cycles && !r.exited; {
		spent += r.jit.Run(min(slice, cycles-spent))
	}
	return r.exited
}

// runOptions are the per-invocation settings that are not part of
// armjit.toml.
type runOptions struct {
	Cycles      int
	Disasm      bool
	SaveContext string
}

// runImage runs image under cfg, recording a trace and saving the final
// context when configured. The trace database is closed on every path.
func runImage(cfg *config.Config, image []byte, opts runOptions, out io.Writer) (err error) {
	r, err := newRunner(cfg, image, out)
	if err != nil {
		return err
	}

	if cfg.Trace.DB != "" {
		rec, openErr := trace.Open(cfg.Trace.DB)
		if openErr != nil {
			return openErr
		}
		defer func() {
			if cerr := rec.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing trace database: %w", cerr)
			}
		}()
		r.jit.SetObserver(rec)
	}

	if opts.Disasm {
		fmt.Fprint(out, r.jit.Disassemble(r.jit.CurrentLocation()))
	}

	if !r.run(opts.Cycles) {
		r.log.Infof("cycle budget exhausted at %s", r.jit.CurrentLocation())
	}

	if opts.SaveContext != "" {
		data, err := r.jit.SaveContext().MarshalBinary()
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.SaveContext, data, 0o644); err != nil {
			return fmt.Errorf("cannot write context: %w", err)
		}
	}
	return nil
}
