package opt

import "github.com/chazu/armjit/pkg/ir"

// DeadCodeElimination removes instructions whose results are unused and
// which have no side effects. It walks backwards so that removing an
// instruction can expose its operands as dead in the same pass.
func DeadCodeElimination(block *ir.Block) {
	for i := block.Len() - 1; i >= 0; i-- {
		inst := block.Inst(i)
		if inst.IsRemoved() || inst.HasUses() || inst.HasSideEffects() {
			continue
		}
		block.Remove(i)
	}
}
