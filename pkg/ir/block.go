package ir

import (
	"fmt"
	"strings"
)

// Inst is one operation in a Block. Instructions live in the block's arena
// and are addressed by index; an instruction may only reference
// instructions with a smaller index.
type Inst struct {
	op   Opcode
	args []Value
	uses int
}

// Opcode returns the operation performed.
func (i *Inst) Opcode() Opcode { return i.op }

// NumArgs returns the number of arguments.
func (i *Inst) NumArgs() int { return len(i.args) }

// Arg returns the n-th argument.
func (i *Inst) Arg(n int) Value { return i.args[n] }

// UseCount returns how many live arguments reference this instruction.
func (i *Inst) UseCount() int { return i.uses }

// HasUses reports whether any live instruction references this one.
func (i *Inst) HasUses() bool { return i.uses > 0 }

// IsRemoved reports whether the instruction has been deleted from the block.
func (i *Inst) IsRemoved() bool { return i.op == OpVoid }

// HasSideEffects reports whether the instruction must be kept when unused.
func (i *Inst) HasSideEffects() bool { return i.op.HasSideEffects() }

// Type returns the result type. An Identity has the type of its operand.
func (i *Inst) Type() Type {
	if i.op == OpIdentity {
		return i.args[0].Type()
	}
	return i.op.Info().Type
}

// Block is a straight-line sequence of instructions translated from guest
// code starting at Location, ending in a Terminal.
type Block struct {
	Location   Location
	Terminal   Terminal
	CycleCount int // guest cycles charged when the block is entered

	insts []Inst
}

// NewBlock creates an empty block for loc.
func NewBlock(loc Location) *Block {
	return &Block{
		Location: loc,
		Terminal: TermInvalid{},
		insts:    make([]Inst, 0, 32),
	}
}

// Len returns the size of the instruction arena, removed slots included.
func (b *Block) Len() int { return len(b.insts) }

// Inst returns the instruction at index i.
func (b *Block) Inst(i int) *Inst { return b.inst(i) }

func (b *Block) inst(i int) *Inst {
	if i < 0 || i >= len(b.insts) {
		panic(fmt.Sprintf("ir: instruction %%%d out of range (block has %d)", i, len(b.insts)))
	}
	return &b.insts[i]
}

// Value returns a reference to the result of instruction i.
func (b *Block) Value(i int) Value {
	b.inst(i)
	return Value{kind: TypeOpaque, bits: uint64(i), block: b}
}

// Append adds an instruction and returns a reference to its result.
func (b *Block) Append(op Opcode, args ...Value) Value {
	if op == OpVoid || op >= opcodeCount {
		panic(fmt.Sprintf("ir: cannot append opcode %s", op))
	}
	if len(args) != op.NumArgs() {
		panic(fmt.Sprintf("ir: %s takes %d arguments, got %d", op, op.NumArgs(), len(args)))
	}
	idx := len(b.insts)
	for _, a := range args {
		b.checkOperand(a, idx)
	}
	b.insts = append(b.insts, Inst{op: op, args: append([]Value(nil), args...)})
	for _, a := range args {
		b.use(a)
	}
	return Value{kind: TypeOpaque, bits: uint64(idx), block: b}
}

// ReplaceUsesWith turns instruction i into an Identity of v. Every
// existing reference to i then reads as v.
func (b *Block) ReplaceUsesWith(i int, v Value) {
	inst := b.inst(i)
	if inst.IsRemoved() {
		panic(fmt.Sprintf("ir: cannot replace removed instruction %%%d", i))
	}
	b.checkOperand(v, i)
	b.release(inst)
	inst.op = OpIdentity
	inst.args = []Value{v}
	b.use(v)
}

// Remove deletes instruction i. It panics if anything still uses it.
func (b *Block) Remove(i int) {
	inst := b.inst(i)
	if inst.IsRemoved() {
		return
	}
	if inst.uses != 0 {
		panic(fmt.Sprintf("ir: cannot remove %%%d (%s): %d uses remain", i, inst.op, inst.uses))
	}
	b.release(inst)
	inst.op = OpVoid
	inst.args = nil
}

// LiveCount returns the number of instructions that have not been removed.
func (b *Block) LiveCount() int {
	n := 0
	for i := range b.insts {
		if !b.insts[i].IsRemoved() {
			n++
		}
	}
	return n
}

func (b *Block) checkOperand(v Value, before int) {
	if v.kind != TypeOpaque {
		return
	}
	if v.block != b {
		panic("ir: operand belongs to a different block")
	}
	if int(v.bits) >= before {
		panic(fmt.Sprintf("ir: operand %%%d does not precede %%%d", v.bits, before))
	}
	if b.insts[v.bits].IsRemoved() {
		panic(fmt.Sprintf("ir: operand %%%d refers to a removed instruction", v.bits))
	}
}

func (b *Block) use(v Value) {
	if v.kind == TypeOpaque {
		b.insts[v.bits].uses++
	}
}

func (b *Block) release(inst *Inst) {
	for _, a := range inst.args {
		if a.kind == TypeOpaque {
			b.insts[a.bits].uses--
		}
	}
}

// String dumps the block in a readable form.
func (b *Block) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "block %s (cycles %d)\n", b.Location, b.CycleCount)
	for i := range b.insts {
		inst := &b.insts[i]
		if inst.IsRemoved() {
			continue
		}
		fmt.Fprintf(&sb, "  %%%-3d = %s", i, inst.op)
		for n, a := range inst.args {
			if n == 0 {
				sb.WriteString(" ")
			} else {
				sb.WriteString(", ")
			}
			sb.WriteString(a.String())
		}
		if inst.uses > 0 {
			fmt.Fprintf(&sb, "  ; uses %d", inst.uses)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "  terminal %s\n", b.Terminal)
	return sb.String()
}
