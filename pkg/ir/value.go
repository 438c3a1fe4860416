package ir

import (
	"encoding/binary"
	"fmt"
)

// Value is an instruction operand. It is either an immediate payload or a
// reference to the result of an earlier instruction in the same Block.
//
// References are transparent through Identity instructions: every accessor
// except Kind and Inst follows a chain of Identity instructions to the
// operand they forward and answers for that operand instead. The chase
// never modifies the graph.
//
// Values are small and are passed by value. The zero Value is Void.
type Value struct {
	kind  Type
	bits  uint64
	block *Block // set only for TypeOpaque
}

// Imm1 returns a single-bit immediate.
func Imm1(b bool) Value {
	var bits uint64
	if b {
		bits = 1
	}
	return Value{kind: TypeU1, bits: bits}
}

// Imm8 returns a byte immediate.
func Imm8(x uint8) Value { return Value{kind: TypeU8, bits: uint64(x)} }

// Imm16 returns a half-word immediate.
func Imm16(x uint16) Value { return Value{kind: TypeU16, bits: uint64(x)} }

// Imm32 returns a word immediate.
func Imm32(x uint32) Value { return Value{kind: TypeU32, bits: uint64(x)} }

// Imm64 returns a double-word immediate.
func Imm64(x uint64) Value { return Value{kind: TypeU64, bits: x} }

// ImmCoprocInfo returns a coprocessor descriptor immediate.
func ImmCoprocInfo(info [8]byte) Value {
	return Value{kind: TypeCoprocInfo, bits: binary.LittleEndian.Uint64(info[:])}
}

// RegValue returns a reference to a general-purpose register.
func RegValue(r Reg) Value { return Value{kind: TypeRegRef, bits: uint64(r)} }

// ExtRegValue returns a reference to an extension register.
func ExtRegValue(r ExtReg) Value { return Value{kind: TypeExtRegRef, bits: uint64(r)} }

// Kind returns the raw discriminant without following Identity chains.
func (v Value) Kind() Type {
	return v.kind
}

// IsEmpty reports whether v is Void.
func (v Value) IsEmpty() bool {
	return v.kind == TypeVoid
}

// Resolve follows Identity instructions and returns the operand they
// ultimately forward. Non-reference values resolve to themselves.
//
// Each hop must land on a strictly earlier instruction, so the walk is
// bounded by the size of the block.
func (v Value) Resolve() Value {
	if v.kind != TypeOpaque {
		return v
	}
	for hops := 0; ; hops++ {
		if hops > len(v.block.insts) {
			panic(fmt.Sprintf("ir: identity chain from %%%d does not terminate", v.bits))
		}
		inst := v.block.inst(int(v.bits))
		if inst.op != OpIdentity {
			return v
		}
		next := inst.args[0]
		if next.kind != TypeOpaque {
			return next
		}
		if next.block != v.block || next.bits >= v.bits {
			panic(fmt.Sprintf("ir: identity %%%d forwards to %%%d which is not an earlier instruction", v.bits, next.bits))
		}
		v = next
	}
}

// Type returns the type of the value. For a reference this is the result
// type of the referenced instruction.
func (v Value) Type() Type {
	r := v.Resolve()
	switch r.kind {
	case TypeOpaque:
		return r.block.inst(int(r.bits)).op.Info().Type
	default:
		return r.kind
	}
}

// IsImmediate reports whether the value is known at compile time. A
// reference is immediate only if it forwards, through Identity
// instructions, to an immediate.
func (v Value) IsImmediate() bool {
	return v.Resolve().kind != TypeOpaque
}

// IsInst reports whether v is a raw instruction reference.
func (v Value) IsInst() bool {
	return v.kind == TypeOpaque
}

// Inst returns the referenced instruction without following Identity
// chains. It panics if v is not a reference.
func (v Value) Inst() *Inst {
	if v.kind != TypeOpaque {
		panic(fmt.Sprintf("ir: Inst called on %s value", v.kind))
	}
	return v.block.inst(int(v.bits))
}

// InstIndex returns the arena index of the referenced instruction without
// following Identity chains. It panics if v is not a reference.
func (v Value) InstIndex() int {
	if v.kind != TypeOpaque {
		panic(fmt.Sprintf("ir: InstIndex called on %s value", v.kind))
	}
	return int(v.bits)
}

func (v Value) immediate(want Type) uint64 {
	r := v.Resolve()
	if r.kind == TypeOpaque {
		panic(fmt.Sprintf("ir: non-immediate %s read as %s", r, want))
	}
	if r.kind != want {
		panic(fmt.Sprintf("ir: %s value read as %s", r.kind, want))
	}
	return r.bits
}

// U1 returns the bit payload.
func (v Value) U1() bool { return v.immediate(TypeU1) != 0 }

// U8 returns the byte payload.
func (v Value) U8() uint8 { return uint8(v.immediate(TypeU8)) }

// U16 returns the half-word payload.
func (v Value) U16() uint16 { return uint16(v.immediate(TypeU16)) }

// U32 returns the word payload.
func (v Value) U32() uint32 { return uint32(v.immediate(TypeU32)) }

// U64 returns the double-word payload.
func (v Value) U64() uint64 { return v.immediate(TypeU64) }

// Reg returns the register named by a RegRef value.
func (v Value) Reg() Reg { return Reg(v.immediate(TypeRegRef)) }

// ExtReg returns the register named by an ExtRegRef value.
func (v Value) ExtReg() ExtReg { return ExtReg(v.immediate(TypeExtRegRef)) }

// CoprocInfo returns the coprocessor descriptor payload.
func (v Value) CoprocInfo() [8]byte {
	var info [8]byte
	binary.LittleEndian.PutUint64(info[:], v.immediate(TypeCoprocInfo))
	return info
}

// ImmediateBits returns the payload of an immediate value zero-extended
// to 64 bits, whatever its width. It panics on references and register names.
func (v Value) ImmediateBits() uint64 {
	r := v.Resolve()
	switch r.kind {
	case TypeVoid, TypeU1, TypeU8, TypeU16, TypeU32, TypeU64, TypeCoprocInfo:
		return r.bits
	case TypeOpaque, TypeRegRef, TypeExtRegRef:
		panic(fmt.Sprintf("ir: ImmediateBits called on %s value", r.kind))
	default:
		panic(fmt.Sprintf("ir: unknown value kind %d", r.kind))
	}
}

// String prints the raw operand (references are not chased).
func (v Value) String() string {
	switch v.kind {
	case TypeVoid:
		return "<void>"
	case TypeOpaque:
		return fmt.Sprintf("%%%d", v.bits)
	case TypeRegRef:
		return Reg(v.bits).String()
	case TypeExtRegRef:
		return ExtReg(v.bits).String()
	case TypeU1:
		if v.bits != 0 {
			return "#1"
		}
		return "#0"
	case TypeU8, TypeU16, TypeU32, TypeU64:
		return fmt.Sprintf("#%#x", v.bits)
	case TypeCoprocInfo:
		return fmt.Sprintf("#coproc(%016x)", v.bits)
	default:
		return fmt.Sprintf("<kind %d>", v.kind)
	}
}
