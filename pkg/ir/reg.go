package ir

import "fmt"

// Reg names one of the 16 general-purpose guest registers.
type Reg uint8

const (
	R0 Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// Register aliases.
const (
	SP = R13
	LR = R14
	PC = R15
)

// NumRegs is the number of general-purpose guest registers.
const NumRegs = 16

func (r Reg) String() string {
	switch r {
	case SP:
		return "sp"
	case LR:
		return "lr"
	case PC:
		return "pc"
	}
	if r < NumRegs {
		return fmt.Sprintf("r%d", uint8(r))
	}
	return fmt.Sprintf("Reg(%d)", uint8(r))
}

// ExtReg names one of the 64 single-word extension registers.
type ExtReg uint8

// NumExtRegs is the number of extension registers.
const NumExtRegs = 64

func (r ExtReg) String() string {
	if r < NumExtRegs {
		return fmt.Sprintf("s%d", uint8(r))
	}
	return fmt.Sprintf("ExtReg(%d)", uint8(r))
}

// Cond is a guest condition code, evaluated against the NZCV flags.
type Cond uint8

const (
	CondEQ Cond = iota // Z
	CondNE             // !Z
	CondCS             // C
	CondCC             // !C
	CondMI             // N
	CondPL             // !N
	CondVS             // V
	CondVC             // !V
	CondHI             // C && !Z
	CondLS             // !C || Z
	CondGE             // N == V
	CondLT             // N != V
	CondGT             // !Z && N == V
	CondLE             // Z || N != V
	CondAL             // always
	CondNV             // always (legacy encoding)
)

var condNames = [...]string{"eq", "ne", "cs", "cc", "mi", "pl", "vs", "vc", "hi", "ls", "ge", "lt", "gt", "le", "al", "nv"}

func (c Cond) String() string {
	if int(c) < len(condNames) {
		return condNames[c]
	}
	return fmt.Sprintf("Cond(%d)", uint8(c))
}

// NZCV flag bits as they appear in the top nibble of a 32-bit flags word.
const (
	FlagN uint32 = 1 << 31
	FlagZ uint32 = 1 << 30
	FlagC uint32 = 1 << 29
	FlagV uint32 = 1 << 28
)

// Passed evaluates the condition against a flags word laid out like CPSR.
func (c Cond) Passed(nzcv uint32) bool {
	n := nzcv&FlagN != 0
	z := nzcv&FlagZ != 0
	cf := nzcv&FlagC != 0
	v := nzcv&FlagV != 0

	switch c {
	case CondEQ:
		return z
	case CondNE:
		return !z
	case CondCS:
		return cf
	case CondCC:
		return !cf
	case CondMI:
		return n
	case CondPL:
		return !n
	case CondVS:
		return v
	case CondVC:
		return !v
	case CondHI:
		return cf && !z
	case CondLS:
		return !cf || z
	case CondGE:
		return n == v
	case CondLT:
		return n != v
	case CondGT:
		return !z && n == v
	case CondLE:
		return z || n != v
	default:
		return true
	}
}

// NZCVFromSub computes the flags of a - b as CMP sets them.
func NZCVFromSub(a, b uint32) uint32 {
	r := a - b
	var flags uint32
	if r&(1<<31) != 0 {
		flags |= FlagN
	}
	if r == 0 {
		flags |= FlagZ
	}
	if a >= b {
		flags |= FlagC
	}
	if ((a^b)&(a^r))&(1<<31) != 0 {
		flags |= FlagV
	}
	return flags
}
