// Package opt holds the optimisation and verification passes run over an
// ir.Block between translation and emission.
//
// The passes must run in this order:
//
//	GetSetElimination
//	DeadCodeElimination
//	ConstantPropagation
//	DeadCodeElimination
//	VerificationPass
//
// GetSetElimination leaves the values of removed writes dead, and
// ConstantPropagation folds instructions into immediates, which again
// leaves their operands dead. Each DeadCodeElimination run cleans up
// after the pass before it.
package opt

import "github.com/chazu/armjit/pkg/ir"

// regInfo tracks what is known about one piece of guest state while
// walking a block.
type regInfo struct {
	value   ir.Value // current contents, if known
	known   bool
	lastSet int // index of a write not yet observed by any read, or -1
}

func (r *regInfo) reset() {
	*r = regInfo{lastSet: -1}
}

type getSetState struct {
	regs    [ir.NumRegs]regInfo
	extRegs [ir.NumExtRegs]regInfo
	nzcv    regInfo
}

func (s *getSetState) each(fn func(*regInfo)) {
	for i := range s.regs {
		fn(&s.regs[i])
	}
	for i := range s.extRegs {
		fn(&s.extRegs[i])
	}
	fn(&s.nzcv)
}

// GetSetElimination forwards values written to guest registers to later
// reads of the same register within the block, and removes writes that are
// overwritten before anything could observe them.
//
// Reads are folded with ReplaceUsesWith, so consumers see the written value
// through an Identity. Callbacks that can inspect guest state (supervisor
// calls, exceptions, coprocessor operations) end all tracking.
func GetSetElimination(block *ir.Block) {
	var st getSetState
	st.each((*regInfo).reset)

	doGet := func(info *regInfo, idx int) {
		if info.known {
			block.ReplaceUsesWith(idx, info.value)
			return
		}
		info.value = block.Value(idx)
		info.known = true
		info.lastSet = -1
	}
	doSet := func(info *regInfo, idx int, value ir.Value) {
		if info.lastSet >= 0 {
			block.Remove(info.lastSet)
		}
		info.value = value
		info.known = true
		info.lastSet = idx
	}

	for i := 0; i < block.Len(); i++ {
		inst := block.Inst(i)
		switch op := inst.Opcode(); op {
		case ir.OpGetRegister:
			if r := inst.Arg(0).Reg(); r != ir.PC {
				doGet(&st.regs[r], i)
			}
		case ir.OpSetRegister:
			if r := inst.Arg(0).Reg(); r != ir.PC {
				doSet(&st.regs[r], i, inst.Arg(1))
			}
		case ir.OpGetExtendedRegister32:
			doGet(&st.extRegs[inst.Arg(0).ExtReg()], i)
		case ir.OpSetExtendedRegister32:
			doSet(&st.extRegs[inst.Arg(0).ExtReg()], i, inst.Arg(1))
		case ir.OpGetNZCV:
			doGet(&st.nzcv, i)
		case ir.OpSetNZCV:
			doSet(&st.nzcv, i, inst.Arg(0))
		default:
			if op.IsBarrier() {
				st.each((*regInfo).reset)
			}
		}
	}
}
