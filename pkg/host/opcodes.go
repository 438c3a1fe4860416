package host

import "fmt"

// Opcode is a host instruction. Host code is a compact register-machine
// encoding: values live in numbered slots ("v0", "v1", ...) that the
// emitter assigns one per value-producing IR instruction.
//
// Operand encodings:
//
//	d  destination slot, u16
//	o  source operand: kind byte (0 slot, 1 immediate) + u32
//	r  general-purpose register, u8
//	x  extension register, u8
//	c  condition code, u8
//	j  forward displacement in bytes, u16
//	n  count, u16
//	q  64-bit immediate
//	i  8-byte coprocessor descriptor
type Opcode byte

const (
	// ========================================================================
	// Block control (0x00-0x0F)
	// ========================================================================

	OpEnter Opcode = 0x01 // Enter <slots:n> <cycles:n>: size slot file, charge cycles

	// ========================================================================
	// Guest state (0x10-0x1F)
	// ========================================================================

	OpGetReg  Opcode = 0x11 // GetReg <dst:d> <reg:r>
	OpSetReg  Opcode = 0x12 // SetReg <reg:r> <src:o>
	OpGetExt  Opcode = 0x13 // GetExt <dst:d> <ext:x>
	OpSetExt  Opcode = 0x14 // SetExt <ext:x> <src:o>
	OpGetNZCV Opcode = 0x15 // GetNZCV <dst:d>
	OpSetNZCV Opcode = 0x16 // SetNZCV <src:o>

	// ========================================================================
	// Arithmetic (0x20-0x2F)
	// ========================================================================

	OpAdd     Opcode = 0x20 // Add <dst:d> <a:o> <b:o>
	OpSub     Opcode = 0x21 // Sub <dst:d> <a:o> <b:o>
	OpAnd     Opcode = 0x22 // And <dst:d> <a:o> <b:o>
	OpOr      Opcode = 0x23 // Or <dst:d> <a:o> <b:o>
	OpEor     Opcode = 0x24 // Eor <dst:d> <a:o> <b:o>
	OpLsl     Opcode = 0x25 // Lsl <dst:d> <a:o> <shift:o>
	OpNZCVSub Opcode = 0x26 // NZCVSub <dst:d> <a:o> <b:o>: flags of a - b

	// ========================================================================
	// Memory (0x30-0x3F)
	// ========================================================================

	OpLoad  Opcode = 0x30 // Load <dst:d> <addr:o>
	OpStore Opcode = 0x31 // Store <addr:o> <value:o>

	// ========================================================================
	// Environment (0x40-0x4F)
	// ========================================================================

	OpSvc     Opcode = 0x40 // Svc <imm:o>
	OpRaise   Opcode = 0x41 // Raise <pc:o> <exception:o>
	OpCoproc  Opcode = 0x42 // Coproc <info:i>
	OpClrex   Opcode = 0x43 // Clrex
	OpPushRSB Opcode = 0x44 // PushRSB <location hash:q>

	// ========================================================================
	// Control flow (0x50-0x6F)
	// ========================================================================

	OpBranchUnless Opcode = 0x50 // BranchUnless <cond:c> <skip:j>
	OpExit         Opcode = 0x60 // Exit to dispatcher
	OpExitPopRSB   Opcode = 0x61 // Exit to dispatcher with a return prediction hint
)

// Operand kinds inside an 'o' operand.
const (
	operandSlot byte = 0
	operandImm  byte = 1
)

// OpcodeInfo describes a host opcode.
type OpcodeInfo struct {
	Name   string
	Layout string // one letter per operand, see Opcode
}

var opcodeInfo = map[Opcode]OpcodeInfo{
	OpEnter:        {"enter", "nn"},
	OpGetReg:       {"getreg", "dr"},
	OpSetReg:       {"setreg", "ro"},
	OpGetExt:       {"getext", "dx"},
	OpSetExt:       {"setext", "xo"},
	OpGetNZCV:      {"getnzcv", "d"},
	OpSetNZCV:      {"setnzcv", "o"},
	OpAdd:          {"add", "doo"},
	OpSub:          {"sub", "doo"},
	OpAnd:          {"and", "doo"},
	OpOr:           {"or", "doo"},
	OpEor:          {"eor", "doo"},
	OpLsl:          {"lsl", "doo"},
	OpNZCVSub:      {"nzcvsub", "doo"},
	OpLoad:         {"load", "do"},
	OpStore:        {"store", "oo"},
	OpSvc:          {"svc", "o"},
	OpRaise:        {"raise", "oo"},
	OpCoproc:       {"coproc", "i"},
	OpClrex:        {"clrex", ""},
	OpPushRSB:      {"pushrsb", "q"},
	OpBranchUnless: {"bunless", "cj"},
	OpExit:         {"exit", ""},
	OpExitPopRSB:   {"exit.poprsb", ""},
}

// GetOpcodeInfo returns the description of op and whether op is defined.
func GetOpcodeInfo(op Opcode) (OpcodeInfo, bool) {
	info, ok := opcodeInfo[op]
	return info, ok
}

func (op Opcode) String() string {
	if info, ok := opcodeInfo[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("Opcode(0x%02x)", byte(op))
}

// operandSize returns the encoded size of one layout letter.
func operandSize(kind byte) int {
	switch kind {
	case 'd', 'j', 'n':
		return 2
	case 'o':
		return 5
	case 'r', 'x', 'c':
		return 1
	case 'q', 'i':
		return 8
	}
	panic(fmt.Sprintf("host: unknown operand kind %q", kind))
}

// InstructionSize returns the encoded size of op, or 0 if op is undefined.
func InstructionSize(op Opcode) int {
	info, ok := opcodeInfo[op]
	if !ok {
		return 0
	}
	size := 1
	for i := 0; i < len(info.Layout); i++ {
		size += operandSize(info.Layout[i])
	}
	return size
}
