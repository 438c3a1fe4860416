package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/armjit/config"
	"github.com/chazu/armjit/jit"
	"github.com/chazu/armjit/pkg/guest"
	"github.com/chazu/armjit/pkg/ir"
	"github.com/chazu/armjit/pkg/trace"
)

func assemble(words ...uint32) []byte {
	out := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out
}

func testConfig(base uint32) *config.Config {
	cfg := config.Default()
	cfg.Engine.CodeCacheSize = 2 << 20
	cfg.Image.Base = base
	cfg.Image.Entry = base
	return &cfg
}

func TestRunnerPutchar(t *testing.T) {
	image := assemble(
		guest.MOVI(ir.R0, 'h'),
		guest.SVC(svcPutchar),
		guest.MOVI(ir.R0, 'i'),
		guest.SVC(svcPutchar),
		guest.SVC(svcExit),
	)
	var out bytes.Buffer
	r, err := newRunner(testConfig(0x1000), image, &out)
	if err != nil {
		t.Fatalf("newRunner failed: %v", err)
	}
	if !r.run(1000) {
		t.Fatal("guest did not exit")
	}
	if out.String() != "hi" {
		t.Errorf("output = %q, want %q", out.String(), "hi")
	}
}

func TestRunnerSelfModifyingCode(t *testing.T) {
	words := make([]uint32, 13)
	words[0x00/4] = guest.BL(7) // -> 0x20
	words[0x04/4] = guest.LDR(ir.R2, ir.R3, 0x30)
	words[0x08/4] = guest.STR(ir.R2, ir.R3, 0x20)
	words[0x0C/4] = guest.BL(4) // -> 0x20
	words[0x10/4] = guest.SVC(svcExit)
	words[0x20/4] = guest.MOVI(ir.R0, 'a')
	words[0x24/4] = guest.SVC(svcPutchar)
	words[0x28/4] = guest.BX(ir.LR)
	words[0x30/4] = guest.MOVI(ir.R0, 'b')

	var out bytes.Buffer
	r, err := newRunner(testConfig(0), assemble(words...), &out)
	if err != nil {
		t.Fatalf("newRunner failed: %v", err)
	}
	if !r.run(1000) {
		t.Fatal("guest did not exit")
	}
	if out.String() != "ab" {
		t.Errorf("output = %q, want %q", out.String(), "ab")
	}
	if r.jit.Generation() == 0 {
		t.Error("store into the image did not invalidate")
	}
}

func TestRunnerStoreIntoBlockBody(t *testing.T) {
	words := make([]uint32, 25)
	words[0x00/4] = guest.BL(15) // -> 0x40
	words[0x04/4] = guest.MOVI(ir.R4, 0)
	words[0x08/4] = guest.LDR(ir.R2, ir.R4, 0x60)
	words[0x0C/4] = guest.STR(ir.R2, ir.R4, 0x44)
	words[0x10/4] = guest.BL(11) // -> 0x40
	words[0x14/4] = guest.SVC(svcExit)
	words[0x40/4] = guest.NOP()
	words[0x44/4] = guest.MOVI(ir.R0, 'a')
	words[0x48/4] = guest.SVC(svcPutchar)
	words[0x4C/4] = guest.BX(ir.LR)
	words[0x60/4] = guest.MOVI(ir.R0, 'b')

	var out bytes.Buffer
	r, err := newRunner(testConfig(0), assemble(words...), &out)
	if err != nil {
		t.Fatalf("newRunner failed: %v", err)
	}
	if !r.run(1000) {
		t.Fatal("guest did not exit")
	}
	if out.String() != "ab" {
		t.Errorf("output = %q, want %q (block at 0x40 not retranslated)", out.String(), "ab")
	}
}

func TestRunnerStoresDoNotExhaustBudget(t *testing.T) {
	words := make([]uint32, 17)
	words[0x00/4] = guest.MOVI(ir.R4, 0x40)
	words[0x04/4] = guest.MOVI(ir.R1, 0)
	words[0x08/4] = guest.MOVI(ir.R2, 200)
	words[0x0C/4] = guest.MOVI(ir.R3, 1)
	words[0x10/4] = guest.STR(ir.R0, ir.R4, 0) // loop
	words[0x14/4] = guest.ADD(ir.R1, ir.R1, ir.R3)
	words[0x18/4] = guest.CMP(ir.R1, ir.R2)
	words[0x1C/4] = guest.B(ir.CondNE, -4) // -> 0x10
	words[0x20/4] = guest.SVC(svcExit)
	// 0x40 is a data word inside the image.

	r, err := newRunner(testConfig(0), assemble(words...), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("newRunner failed: %v", err)
	}
	if !r.run(5000) {
		t.Fatalf("guest did not exit: r1 = %d", r.jit.Regs()[ir.R1])
	}
	if r.jit.Regs()[ir.R1] != 200 {
		t.Errorf("r1 = %d, want 200", r.jit.Regs()[ir.R1])
	}
	if r.jit.Generation() != 200 {
		t.Errorf("generation = %d, want one invalidation per store", r.jit.Generation())
	}
}

func TestRunnerClearCacheCall(t *testing.T) {
	image := assemble(
		guest.SVC(svcClearCache),
		guest.SVC(svcExit),
	)
	r, err := newRunner(testConfig(0), image, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	if !r.run(1000) {
		t.Fatal("guest did not exit")
	}
	if r.jit.Generation() != 1 {
		t.Errorf("generation = %d, want 1", r.jit.Generation())
	}
}

func TestRunnerBudget(t *testing.T) {
	// b . spins forever.
	image := assemble(guest.B(ir.CondAL, -1))
	r, err := newRunner(testConfig(0), image, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	if r.run(25000) {
		t.Error("spinning guest reported exit")
	}
}

func TestRunnerUndefinedInstructionExits(t *testing.T) {
	image := assemble(0xFF000000)
	r, err := newRunner(testConfig(0), image, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	if !r.run(1000) {
		t.Error("undefined instruction did not stop the guest")
	}
}

func TestRunnerReadOnlyImage(t *testing.T) {
	cfg := testConfig(0x2000)
	cfg.Image.ReadOnly = true
	cfg.Image.Size = 0x100
	r, err := newRunner(cfg, assemble(guest.SVC(svcExit)), &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.mem.Data) != 0x100 {
		t.Errorf("mapped %d bytes, want 0x100", len(r.mem.Data))
	}
	if !r.mem.IsReadOnlyMemory(0x2000) || r.mem.IsReadOnlyMemory(0x2004) {
		t.Error("read-only range does not match the image")
	}
}

func TestRunImageSavesContextAndTrace(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(0)
	cfg.Trace.DB = filepath.Join(dir, "trace.db")
	image := assemble(guest.MOVI(ir.R0, 42), guest.SVC(svcExit))
	ctxPath := filepath.Join(dir, "final.ctx")

	var out bytes.Buffer
	opts := runOptions{Cycles: 100, Disasm: true, SaveContext: ctxPath}
	if err := runImage(cfg, image, opts, &out); err != nil {
		t.Fatalf("runImage failed: %v", err)
	}
	if !strings.HasPrefix(out.String(), "address: ") {
		t.Errorf("disassembly missing from output: %q", out.String())
	}

	data, err := os.ReadFile(ctxPath)
	if err != nil {
		t.Fatal(err)
	}
	var ctx jit.Context
	if err := ctx.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if ctx.Regs()[ir.R0] != 42 {
		t.Errorf("saved r0 = %d, want 42", ctx.Regs()[ir.R0])
	}

	rec, err := trace.Open(cfg.Trace.DB)
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close()
	blocks, err := rec.Blocks()
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 1 || blocks[0].PC != 0 {
		t.Errorf("traced blocks = %+v", blocks)
	}
}

func TestRunImageErrorStillClosesTrace(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(0)
	cfg.Trace.DB = filepath.Join(dir, "trace.db")
	image := assemble(guest.SVC(svcExit))

	opts := runOptions{Cycles: 100, SaveContext: filepath.Join(dir, "missing", "final.ctx")}
	err := runImage(cfg, image, opts, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "cannot write context") {
		t.Fatalf("err = %v, want a context write error", err)
	}

	// The database was closed cleanly and holds the run.
	rec, err := trace.Open(cfg.Trace.DB)
	if err != nil {
		t.Fatalf("reopening trace: %v", err)
	}
	defer rec.Close()
	blocks, err := rec.Blocks()
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 1 {
		t.Errorf("traced %d blocks, want 1", len(blocks))
	}
}
