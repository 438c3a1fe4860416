package opt

import (
	"github.com/chazu/armjit/pkg/guest"
	"github.com/chazu/armjit/pkg/ir"
)

// ConstantPropagation folds instructions whose operands are all immediate,
// and folds 32-bit loads from addresses the guest memory reports as
// read-only. Folded instructions become Identity of an immediate; their
// former operands may be left dead.
func ConstantPropagation(block *ir.Block, mem guest.Memory) {
	for i := 0; i < block.Len(); i++ {
		inst := block.Inst(i)
		op := inst.Opcode()

		switch op {
		case ir.OpReadMemory32:
			if mem == nil {
				continue
			}
			addr := inst.Arg(0)
			if addr.IsImmediate() && mem.IsReadOnlyMemory(addr.U32()) {
				block.ReplaceUsesWith(i, ir.Imm32(mem.Read32(addr.U32())))
			}

		case ir.OpZeroExtendHalfToWord:
			if a := inst.Arg(0); a.IsImmediate() {
				block.ReplaceUsesWith(i, ir.Imm32(uint32(a.U16())))
			}

		case ir.OpLogicalShiftLeft32:
			a, s := inst.Arg(0), inst.Arg(1)
			if s.IsImmediate() && s.U8() == 0 {
				block.ReplaceUsesWith(i, a)
				continue
			}
			if a.IsImmediate() && s.IsImmediate() {
				block.ReplaceUsesWith(i, ir.Imm32(lsl32(a.U32(), s.U8())))
			}

		case ir.OpAdd32, ir.OpSub32, ir.OpAnd32, ir.OpOr32, ir.OpEor32, ir.OpNZCVFromSub32:
			a, b := inst.Arg(0), inst.Arg(1)
			if a.IsImmediate() && b.IsImmediate() {
				block.ReplaceUsesWith(i, ir.Imm32(fold32(op, a.U32(), b.U32())))
				continue
			}
			// x + 0, x - 0, x | 0, x ^ 0 are x.
			if b.IsImmediate() && b.U32() == 0 {
				switch op {
				case ir.OpAdd32, ir.OpSub32, ir.OpOr32, ir.OpEor32:
					block.ReplaceUsesWith(i, a)
				}
			}
		}
	}
}

func lsl32(a uint32, s uint8) uint32 {
	if s >= 32 {
		return 0
	}
	return a << s
}

func fold32(op ir.Opcode, a, b uint32) uint32 {
	switch op {
	case ir.OpAdd32:
		return a + b
	case ir.OpSub32:
		return a - b
	case ir.OpAnd32:
		return a & b
	case ir.OpOr32:
		return a | b
	case ir.OpEor32:
		return a ^ b
	case ir.OpNZCVFromSub32:
		return ir.NZCVFromSub(a, b)
	}
	panic("opt: fold32 called with " + op.String())
}
