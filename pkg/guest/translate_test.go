package guest

import (
	"testing"

	"github.com/chazu/armjit/pkg/ir"
)

func translateWords(t *testing.T, opts TranslateOptions, words ...uint32) *ir.Block {
	t.Helper()
	mem := NewFlatMemory(0x1000, 0x1000)
	if err := mem.Load(0x1000, words...); err != nil {
		t.Fatal(err)
	}
	return Translate(ir.NewLocation(0x1000, 0, 0), mem.ReadCode, opts)
}

// ops lists the opcodes of the live instructions in b.
func ops(b *ir.Block) []ir.Opcode {
	var out []ir.Opcode
	for i := 0; i < b.Len(); i++ {
		if inst := b.Inst(i); !inst.IsRemoved() {
			out = append(out, inst.Opcode())
		}
	}
	return out
}

func sameOps(got, want []ir.Opcode) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestTranslateBlockLimit(t *testing.T) {
	b := translateWords(t, TranslateOptions{MaxInstructions: 4}, NOP(), NOP(), NOP(), NOP(), NOP(), NOP())
	if b.CycleCount != 4 {
		t.Errorf("CycleCount = %d, want 4", b.CycleCount)
	}
	want := ir.TermLinkBlock{Next: ir.NewLocation(0x1010, 0, 0)}
	if b.Terminal != want {
		t.Errorf("terminal = %s, want %s", b.Terminal, want)
	}
}

func TestTranslateDefaultLimit(t *testing.T) {
	words := make([]uint32, 64)
	b := translateWords(t, TranslateOptions{}, words...)
	if b.CycleCount != DefaultMaxBlockInstructions {
		t.Errorf("CycleCount = %d, want %d", b.CycleCount, DefaultMaxBlockInstructions)
	}
}

func TestTranslateTerminals(t *testing.T) {
	next := ir.NewLocation(0x1004, 0, 0)
	tests := []struct {
		name string
		word uint32
		want ir.Terminal
	}{
		{"b", B(ir.CondAL, 3), ir.TermLinkBlock{Next: ir.NewLocation(0x1010, 0, 0)}},
		{"b backwards", B(ir.CondNV, -1), ir.TermLinkBlock{Next: ir.NewLocation(0x1000, 0, 0)}},
		{"b.ne", B(ir.CondNE, 2), ir.TermIf{
			Cond: ir.CondNE,
			Then: ir.TermLinkBlock{Next: ir.NewLocation(0x100C, 0, 0)},
			Else: ir.TermLinkBlock{Next: next},
		}},
		{"bl", BL(-2), ir.TermLinkBlock{Next: ir.NewLocation(0x0FFC, 0, 0)}},
		{"bx lr", BX(ir.LR), ir.TermPopRSBHint{}},
		{"bx r2", BX(ir.R2), ir.TermReturnToDispatch{}},
		{"svc", SVC(9), ir.TermReturnToDispatch{}},
		{"mov pc", MOV(ir.PC, ir.R1), ir.TermReturnToDispatch{}},
		{"udf", 0xFF000000, ir.TermReturnToDispatch{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := translateWords(t, TranslateOptions{}, tt.word, NOP())
			if b.CycleCount != 1 {
				t.Errorf("CycleCount = %d, want 1", b.CycleCount)
			}
			if b.Terminal != tt.want {
				t.Errorf("terminal = %s, want %s", b.Terminal, tt.want)
			}
		})
	}
}

func TestTranslateBranchAndLink(t *testing.T) {
	b := translateWords(t, TranslateOptions{}, BL(4))
	want := []ir.Opcode{ir.OpSetRegister, ir.OpPushRSB}
	if got := ops(b); !sameOps(got, want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	lr := b.Inst(0)
	if lr.Arg(0).Reg() != ir.LR || lr.Arg(1).U32() != 0x1004 {
		t.Errorf("link write = %s %s", lr.Arg(0), lr.Arg(1))
	}
	if got := b.Inst(1).Arg(0).U64(); got != ir.NewLocation(0x1004, 0, 0).UniqueHash() {
		t.Errorf("RSB push hash = %#x", got)
	}
}

func TestTranslateReadingPC(t *testing.T) {
	b := translateWords(t, TranslateOptions{}, NOP(), MOV(ir.R0, ir.PC), SVC(0))
	set := b.Inst(0)
	if set.Opcode() != ir.OpSetRegister || set.Arg(0).Reg() != ir.R0 {
		t.Fatalf("first instruction = %s", set.Opcode())
	}
	if got := set.Arg(1).U32(); got != 0x1004+8 {
		t.Errorf("pc reads as %#x, want %#x", got, 0x1004+8)
	}
}

func TestTranslateDataProcessing(t *testing.T) {
	b := translateWords(t, TranslateOptions{},
		MOVI(ir.R0, 0xFFFF),
		ADDI(ir.R1, ir.R0, 1),
		SUB(ir.R2, ir.R1, ir.R0),
		LSLI(ir.R3, ir.R2, 4),
		CMP(ir.R3, ir.R0),
		LDR(ir.R4, ir.R3, 8),
		STR(ir.R4, ir.R3, 12),
		VMOVTO(5, ir.R4),
		VMOVFR(ir.R6, 5),
		CLREX(),
		SVC(0),
	)
	want := []ir.Opcode{
		ir.OpZeroExtendHalfToWord, ir.OpSetRegister,
		ir.OpGetRegister, ir.OpAdd32, ir.OpSetRegister,
		ir.OpGetRegister, ir.OpGetRegister, ir.OpSub32, ir.OpSetRegister,
		ir.OpGetRegister, ir.OpLogicalShiftLeft32, ir.OpSetRegister,
		ir.OpGetRegister, ir.OpGetRegister, ir.OpNZCVFromSub32, ir.OpSetNZCV,
		ir.OpGetRegister, ir.OpAdd32, ir.OpReadMemory32, ir.OpSetRegister,
		ir.OpGetRegister, ir.OpAdd32, ir.OpGetRegister, ir.OpWriteMemory32,
		ir.OpGetRegister, ir.OpSetExtendedRegister32,
		ir.OpGetExtendedRegister32, ir.OpSetRegister,
		ir.OpClearExclusive,
		ir.OpSetRegister, ir.OpCallSupervisor,
	}
	if got := ops(b); !sameOps(got, want) {
		t.Errorf("ops =\n%v\nwant\n%v", got, want)
	}
	if b.CycleCount != 11 {
		t.Errorf("CycleCount = %d, want 11", b.CycleCount)
	}
}

func TestTranslateCoprocessor(t *testing.T) {
	b := translateWords(t, TranslateOptions{}, CDP(7, 2, 0x1234), SVC(0))
	inst := b.Inst(0)
	if inst.Opcode() != ir.OpCoprocInternalOperation {
		t.Fatalf("opcode = %s", inst.Opcode())
	}
	want := [8]byte{7, 0, 2, 1, 2, 3, 4, 0}
	if got := inst.Arg(0).CoprocInfo(); got != want {
		t.Errorf("info = % x, want % x", got, want)
	}
}

func TestTranslateUndefined(t *testing.T) {
	b := translateWords(t, TranslateOptions{}, 0xEE000000)
	raise := b.Inst(1)
	if raise.Opcode() != ir.OpExceptionRaised {
		t.Fatalf("opcode = %s", raise.Opcode())
	}
	if raise.Arg(0).U32() != 0x1000 || Exception(raise.Arg(1).U32()) != ExceptionUndefinedInstruction {
		t.Errorf("raise args = %s, %s", raise.Arg(0), raise.Arg(1))
	}
	if pc := b.Inst(0); pc.Arg(0).Reg() != ir.PC || pc.Arg(1).U32() != 0x1000 {
		t.Error("pc not set to the faulting instruction")
	}
}

func TestFlatMemory(t *testing.T) {
	m := NewFlatMemory(0x100, 0x10)
	var writes []uint32
	m.OnWrite = func(addr, _ uint32) { writes = append(writes, addr) }

	m.Write32(0x104, 0xDEADBEEF)
	m.Write32(0x10C, 1)
	m.Write32(0x110, 2) // past the end
	m.Write32(0x0FC, 3) // before the base

	if got := m.Read32(0x104); got != 0xDEADBEEF {
		t.Errorf("Read32(0x104) = %#x", got)
	}
	if got := m.ReadCode(0x10C); got != 1 {
		t.Errorf("ReadCode(0x10C) = %#x", got)
	}
	if got := m.Read32(0x110); got != 0 {
		t.Errorf("out of range read = %#x, want 0", got)
	}
	if len(writes) != 2 || writes[0] != 0x104 || writes[1] != 0x10C {
		t.Errorf("OnWrite saw %#x", writes)
	}
	if m.Data[4] != 0xEF || m.Data[7] != 0xDE {
		t.Error("memory is not little-endian")
	}

	if err := m.Load(0x10C, 1, 2); err == nil {
		t.Error("Load past the end succeeded")
	}
	if len(writes) != 2 {
		t.Error("Load triggered OnWrite")
	}

	m.ReadOnly = [][2]uint32{{0x100, 0x107}}
	if !m.IsReadOnlyMemory(0x104) || m.IsReadOnlyMemory(0x108) {
		t.Error("IsReadOnlyMemory does not match the configured range")
	}
}

func TestExceptionString(t *testing.T) {
	if got := ExceptionUndefinedInstruction.String(); got != "UndefinedInstruction" {
		t.Errorf("String = %q", got)
	}
	if got := Exception(7).String(); got != "Exception(7)" {
		t.Errorf("String = %q", got)
	}
}
