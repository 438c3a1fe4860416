package opt

import (
	"strings"
	"testing"

	"github.com/chazu/armjit/pkg/guest"
	"github.com/chazu/armjit/pkg/ir"
)

func newBlock() *ir.Block {
	return ir.NewBlock(ir.NewLocation(0x1000, 0, 0))
}

func TestGetSetForwardsWrites(t *testing.T) {
	b := newBlock()
	b.Append(ir.OpSetRegister, ir.RegValue(ir.R0), ir.Imm32(5))
	get := b.Append(ir.OpGetRegister, ir.RegValue(ir.R0))
	sum := b.Append(ir.OpAdd32, get, ir.Imm32(1))
	b.Append(ir.OpSetRegister, ir.RegValue(ir.R1), sum)
	b.Terminal = ir.TermReturnToDispatch{}

	GetSetElimination(b)

	if get.Inst().Opcode() != ir.OpIdentity {
		t.Fatalf("get = %s, want Identity", get.Inst().Opcode())
	}
	if !sum.Inst().Arg(0).IsImmediate() || sum.Inst().Arg(0).U32() != 5 {
		t.Errorf("add operand = %s, want #5", sum.Inst().Arg(0).Resolve())
	}
	VerificationPass(b)
}

func TestGetSetSecondReadReusesFirst(t *testing.T) {
	b := newBlock()
	g1 := b.Append(ir.OpGetRegister, ir.RegValue(ir.R3))
	g2 := b.Append(ir.OpGetRegister, ir.RegValue(ir.R3))
	b.Append(ir.OpAdd32, g1, g2)
	b.Terminal = ir.TermReturnToDispatch{}

	GetSetElimination(b)

	if g1.Inst().Opcode() != ir.OpGetRegister {
		t.Error("first read was folded")
	}
	if g2.Inst().Opcode() != ir.OpIdentity || g2.Resolve() != g1 {
		t.Errorf("second read resolves to %s, want %s", g2.Resolve(), g1)
	}
}

func TestGetSetRemovesOverwrittenWrite(t *testing.T) {
	b := newBlock()
	first := b.Append(ir.OpSetExtendedRegister32, ir.ExtRegValue(4), ir.Imm32(1))
	second := b.Append(ir.OpSetExtendedRegister32, ir.ExtRegValue(4), ir.Imm32(2))
	nzcv1 := b.Append(ir.OpSetNZCV, ir.Imm32(0))
	nzcv2 := b.Append(ir.OpSetNZCV, ir.Imm32(0x40000000))
	b.Terminal = ir.TermReturnToDispatch{}

	GetSetElimination(b)

	if !first.Inst().IsRemoved() || second.Inst().IsRemoved() {
		t.Error("ext register: want only the overwritten write removed")
	}
	if !nzcv1.Inst().IsRemoved() || nzcv2.Inst().IsRemoved() {
		t.Error("nzcv: want only the overwritten write removed")
	}
	VerificationPass(b)
}

func TestGetSetBarriers(t *testing.T) {
	barriers := []struct {
		name string
		emit func(b *ir.Block)
	}{
		{"svc", func(b *ir.Block) { b.Append(ir.OpCallSupervisor, ir.Imm32(0)) }},
		{"exception", func(b *ir.Block) { b.Append(ir.OpExceptionRaised, ir.Imm32(0), ir.Imm32(0)) }},
		{"coproc", func(b *ir.Block) { b.Append(ir.OpCoprocInternalOperation, ir.ImmCoprocInfo([8]byte{})) }},
	}
	for _, tt := range barriers {
		t.Run(tt.name, func(t *testing.T) {
			b := newBlock()
			set1 := b.Append(ir.OpSetRegister, ir.RegValue(ir.R0), ir.Imm32(1))
			tt.emit(b)
			get := b.Append(ir.OpGetRegister, ir.RegValue(ir.R0))
			b.Append(ir.OpSetRegister, ir.RegValue(ir.R0), get)
			b.Terminal = ir.TermReturnToDispatch{}

			GetSetElimination(b)

			if set1.Inst().IsRemoved() {
				t.Error("write before the barrier was removed")
			}
			if get.Inst().Opcode() != ir.OpGetRegister {
				t.Error("read after the barrier was forwarded")
			}
		})
	}
}

func TestGetSetIgnoresPC(t *testing.T) {
	b := newBlock()
	s1 := b.Append(ir.OpSetRegister, ir.RegValue(ir.PC), ir.Imm32(4))
	s2 := b.Append(ir.OpSetRegister, ir.RegValue(ir.PC), ir.Imm32(8))
	b.Terminal = ir.TermReturnToDispatch{}

	GetSetElimination(b)

	if s1.Inst().IsRemoved() || s2.Inst().IsRemoved() {
		t.Error("PC writes must be kept")
	}
}

func TestDeadCodeElimination(t *testing.T) {
	b := newBlock()
	a := b.Append(ir.OpGetRegister, ir.RegValue(ir.R0))
	c := b.Append(ir.OpGetRegister, ir.RegValue(ir.R1))
	sum := b.Append(ir.OpAdd32, a, c)
	load := b.Append(ir.OpReadMemory32, ir.Imm32(0x100))
	kept := b.Append(ir.OpGetRegister, ir.RegValue(ir.R2))
	b.Append(ir.OpSetRegister, ir.RegValue(ir.R3), kept)
	b.Terminal = ir.TermReturnToDispatch{}

	DeadCodeElimination(b)

	for _, v := range []ir.Value{a, c, sum} {
		if !v.Inst().IsRemoved() {
			t.Errorf("%s not removed", v)
		}
	}
	if load.Inst().IsRemoved() {
		t.Error("memory read removed")
	}
	if kept.Inst().IsRemoved() {
		t.Error("used value removed")
	}
	if b.LiveCount() != 3 {
		t.Errorf("LiveCount = %d, want 3", b.LiveCount())
	}
	VerificationPass(b)
}

func TestConstantPropagationFolds(t *testing.T) {
	tests := []struct {
		name string
		op   ir.Opcode
		args []ir.Value
		want uint32
	}{
		{"add", ir.OpAdd32, []ir.Value{ir.Imm32(2), ir.Imm32(3)}, 5},
		{"sub wraps", ir.OpSub32, []ir.Value{ir.Imm32(0), ir.Imm32(1)}, 0xFFFFFFFF},
		{"and", ir.OpAnd32, []ir.Value{ir.Imm32(0xF0F0), ir.Imm32(0xFF00)}, 0xF000},
		{"or", ir.OpOr32, []ir.Value{ir.Imm32(0xF0), ir.Imm32(0x0F)}, 0xFF},
		{"eor", ir.OpEor32, []ir.Value{ir.Imm32(0xFF), ir.Imm32(0x0F)}, 0xF0},
		{"lsl", ir.OpLogicalShiftLeft32, []ir.Value{ir.Imm32(1), ir.Imm8(31)}, 0x80000000},
		{"lsl out of range", ir.OpLogicalShiftLeft32, []ir.Value{ir.Imm32(1), ir.Imm8(32)}, 0},
		{"zext", ir.OpZeroExtendHalfToWord, []ir.Value{ir.Imm16(0xBEEF)}, 0xBEEF},
		{"nzcv", ir.OpNZCVFromSub32, []ir.Value{ir.Imm32(3), ir.Imm32(3)}, ir.NZCVFromSub(3, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBlock()
			v := b.Append(tt.op, tt.args...)
			b.Append(ir.OpSetRegister, ir.RegValue(ir.R0), v)
			b.Terminal = ir.TermReturnToDispatch{}

			ConstantPropagation(b, nil)

			if !v.IsImmediate() {
				t.Fatalf("%s not folded", tt.op)
			}
			if got := v.U32(); got != tt.want {
				t.Errorf("folded to %#x, want %#x", got, tt.want)
			}
			VerificationPass(b)
		})
	}
}

func TestConstantPropagationIdentities(t *testing.T) {
	b := newBlock()
	x := b.Append(ir.OpGetRegister, ir.RegValue(ir.R0))
	add := b.Append(ir.OpAdd32, x, ir.Imm32(0))
	and := b.Append(ir.OpAnd32, x, ir.Imm32(0))
	shl := b.Append(ir.OpLogicalShiftLeft32, x, ir.Imm8(0))
	b.Append(ir.OpSetRegister, ir.RegValue(ir.R1), add)
	b.Append(ir.OpSetRegister, ir.RegValue(ir.R2), and)
	b.Append(ir.OpSetRegister, ir.RegValue(ir.R3), shl)
	b.Terminal = ir.TermReturnToDispatch{}

	ConstantPropagation(b, nil)

	if add.Resolve() != x || shl.Resolve() != x {
		t.Error("x+0 or x<<0 not reduced to x")
	}
	if and.Inst().Opcode() != ir.OpAnd32 {
		t.Error("x&0 rewritten to x")
	}
	VerificationPass(b)
}

func TestConstantPropagationReadOnlyLoads(t *testing.T) {
	mem := guest.NewFlatMemory(0, 0x100)
	mem.Load(0x10, 0xCAFEF00D, 0x12345678)
	mem.ReadOnly = [][2]uint32{{0x10, 0x13}}

	b := newBlock()
	ro := b.Append(ir.OpReadMemory32, ir.Imm32(0x10))
	rw := b.Append(ir.OpReadMemory32, ir.Imm32(0x14))
	b.Append(ir.OpSetRegister, ir.RegValue(ir.R0), ro)
	b.Append(ir.OpSetRegister, ir.RegValue(ir.R1), rw)
	b.Terminal = ir.TermReturnToDispatch{}

	ConstantPropagation(b, mem)

	if !ro.IsImmediate() || ro.U32() != 0xCAFEF00D {
		t.Errorf("read-only load = %s, want #0xcafef00d", ro.Resolve())
	}
	if rw.IsImmediate() {
		t.Error("writable load folded")
	}

	DeadCodeElimination(b)
	VerificationPass(b)
}

func TestVerifyReportsErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func() *ir.Block
		want  string
	}{
		{"no terminal", func() *ir.Block {
			b := newBlock()
			b.Append(ir.OpGetNZCV)
			return b
		}, "no terminal"},
		{"argument type", func() *ir.Block {
			b := newBlock()
			b.Append(ir.OpAdd32, ir.Imm8(1), ir.Imm32(2))
			b.Terminal = ir.TermReturnToDispatch{}
			return b
		}, "has type"},
		{"nested terminal", func() *ir.Block {
			b := newBlock()
			b.Terminal = ir.TermIf{Cond: ir.CondEQ, Then: ir.TermReturnToDispatch{}}
			return b
		}, "no terminal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.build())
			if err == nil {
				t.Fatal("Verify succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestVerificationPassPanics(t *testing.T) {
	b := newBlock()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("VerificationPass did not panic")
		}
		if !strings.HasPrefix(r.(string), "opt: verification failed") {
			t.Errorf("panic = %v", r)
		}
	}()
	VerificationPass(b)
}

func TestPipelineOnTranslatedBlock(t *testing.T) {
	mem := guest.NewFlatMemory(0, 0x100)
	mem.Load(0,
		guest.MOVI(ir.R0, 2),
		guest.MOVI(ir.R1, 3),
		guest.ADD(ir.R2, ir.R0, ir.R1),
		guest.MOV(ir.R3, ir.R2),
		guest.SVC(0),
	)
	b := guest.Translate(ir.NewLocation(0, 0, 0), mem.ReadCode, guest.TranslateOptions{})

	GetSetElimination(b)
	DeadCodeElimination(b)
	ConstantPropagation(b, mem)
	DeadCodeElimination(b)
	VerificationPass(b)

	// Only the register writes, the PC write and the call remain.
	var sets []uint32
	for i := 0; i < b.Len(); i++ {
		inst := b.Inst(i)
		if inst.IsRemoved() || inst.Opcode() == ir.OpIdentity {
			continue
		}
		switch inst.Opcode() {
		case ir.OpSetRegister:
			if !inst.Arg(1).IsImmediate() {
				t.Errorf("%%%d writes a non-constant value", i)
				continue
			}
			sets = append(sets, inst.Arg(1).U32())
		case ir.OpCallSupervisor:
		default:
			t.Errorf("unexpected %s left in block", inst.Opcode())
		}
	}
	want := []uint32{2, 3, 5, 5, 0x14}
	if len(sets) != len(want) {
		t.Fatalf("register writes = %v, want %v", sets, want)
	}
	for i := range want {
		if sets[i] != want[i] {
			t.Errorf("register writes = %v, want %v", sets, want)
			break
		}
	}
}
