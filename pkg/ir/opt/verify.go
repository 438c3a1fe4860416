package opt

import (
	"fmt"

	"github.com/chazu/armjit/pkg/ir"
)

// VerificationPass checks the internal consistency of a block and panics
// if it is broken. A failure here is a bug in the translator or in a pass,
// never a property of the guest code.
func VerificationPass(block *ir.Block) {
	if err := Verify(block); err != nil {
		panic(fmt.Sprintf("opt: verification failed for %s: %v\n%s", block.Location, err, block))
	}
}

// Verify reports the first inconsistency found in block:
//   - an argument whose type does not match the opcode signature
//   - an argument referencing a removed, later or same instruction
//   - a recorded use count that disagrees with the live arguments
//   - a missing terminal
func Verify(block *ir.Block) error {
	uses := make([]int, block.Len())

	for i := 0; i < block.Len(); i++ {
		inst := block.Inst(i)
		if inst.IsRemoved() {
			continue
		}
		op := inst.Opcode()
		info := op.Info()
		if inst.NumArgs() != len(info.Args) {
			return fmt.Errorf("%%%d %s: %d arguments, signature has %d", i, op, inst.NumArgs(), len(info.Args))
		}

		for n := 0; n < inst.NumArgs(); n++ {
			arg := inst.Arg(n)
			if arg.IsInst() {
				ref := arg.InstIndex()
				if ref >= i {
					return fmt.Errorf("%%%d %s: argument %d references %%%d which does not precede it", i, op, n, ref)
				}
				if block.Inst(ref).IsRemoved() {
					return fmt.Errorf("%%%d %s: argument %d references removed %%%d", i, op, n, ref)
				}
				uses[ref]++
			}

			want := info.Args[n]
			if want == ir.TypeOpaque {
				continue
			}
			if got := arg.Type(); got != want {
				return fmt.Errorf("%%%d %s: argument %d has type %s, want %s", i, op, n, got, want)
			}
		}
	}

	for i := 0; i < block.Len(); i++ {
		inst := block.Inst(i)
		if inst.IsRemoved() {
			if inst.UseCount() != 0 {
				return fmt.Errorf("removed %%%d still records %d uses", i, inst.UseCount())
			}
			continue
		}
		if inst.UseCount() != uses[i] {
			return fmt.Errorf("%%%d %s: records %d uses, found %d", i, inst.Opcode(), inst.UseCount(), uses[i])
		}
	}

	if err := verifyTerminal(block.Terminal); err != nil {
		return err
	}
	return nil
}

func verifyTerminal(t ir.Terminal) error {
	switch t := t.(type) {
	case nil, ir.TermInvalid:
		return fmt.Errorf("block has no terminal")
	case ir.TermIf:
		if err := verifyTerminal(t.Then); err != nil {
			return err
		}
		return verifyTerminal(t.Else)
	case ir.TermReturnToDispatch, ir.TermLinkBlock, ir.TermPopRSBHint:
		return nil
	default:
		return fmt.Errorf("unknown terminal %T", t)
	}
}
