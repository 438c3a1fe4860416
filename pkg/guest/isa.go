// Package guest decodes the guest instruction set into IR.
//
// Guest instructions are fixed 32-bit little-endian words:
//
//	31      24 23  20 19  16 15                0
//	+---------+------+------+-------------------+
//	| opcode  |  rd  |  rn  |  imm16 / rm(3:0)  |
//	+---------+------+------+-------------------+
//
// Reading R15 as an operand yields the address of the instruction plus 8.
// Branches, supervisor calls, undefined encodings and writes to R15 end a
// block.
package guest

import (
	"fmt"

	"github.com/chazu/armjit/pkg/ir"
)

// Opcode is the top byte of a guest instruction word.
type Opcode uint8

const (
	OpNOP    Opcode = 0x00 // no operation
	OpMOVI   Opcode = 0x01 // rd = zext(imm16)
	OpADDI   Opcode = 0x02 // rd = rn + imm16
	OpADD    Opcode = 0x03 // rd = rn + rm
	OpSUB    Opcode = 0x04 // rd = rn - rm
	OpAND    Opcode = 0x05 // rd = rn & rm
	OpORR    Opcode = 0x06 // rd = rn | rm
	OpEOR    Opcode = 0x07 // rd = rn ^ rm
	OpLSLI   Opcode = 0x08 // rd = rn << imm5
	OpCMP    Opcode = 0x09 // flags = rn - rm
	OpLDR    Opcode = 0x0A // rd = [rn + imm16]
	OpSTR    Opcode = 0x0B // [rn + imm16] = rd
	OpB      Opcode = 0x0C // if cond: pc = pc + 4 + simm16*4; cond in rd field
	OpBL     Opcode = 0x0D // lr = pc + 4; pc = pc + 4 + simm16*4
	OpBX     Opcode = 0x0E // pc = rm
	OpSVC    Opcode = 0x0F // supervisor call imm16
	OpVMOVTO Opcode = 0x10 // s[imm6] = rd
	OpVMOVFR Opcode = 0x11 // rd = s[imm6]
	OpCDP    Opcode = 0x12 // coprocessor rn, opc rd, imm16
	OpCLREX  Opcode = 0x13 // clear exclusive monitor
	OpMOV    Opcode = 0x14 // rd = rm
)

// InstructionSize is the size in bytes of every guest instruction.
const InstructionSize = 4

// Exception identifies why ExceptionRaised was called.
type Exception uint32

const (
	ExceptionUndefinedInstruction Exception = iota
)

func (e Exception) String() string {
	switch e {
	case ExceptionUndefinedInstruction:
		return "UndefinedInstruction"
	default:
		return fmt.Sprintf("Exception(%d)", uint32(e))
	}
}

// Word is a decoded view of an instruction word.
type Word uint32

func (w Word) Opcode() Opcode { return Opcode(w >> 24) }
func (w Word) Rd() ir.Reg     { return ir.Reg(w >> 20 & 0xF) }
func (w Word) Rn() ir.Reg     { return ir.Reg(w >> 16 & 0xF) }
func (w Word) Rm() ir.Reg     { return ir.Reg(w & 0xF) }
func (w Word) Imm16() uint16  { return uint16(w) }
func (w Word) Cond() ir.Cond  { return ir.Cond(w >> 20 & 0xF) }

// BranchOffset returns the signed byte displacement of a branch,
// relative to the following instruction.
func (w Word) BranchOffset() int32 {
	return int32(int16(w.Imm16())) * 4
}

// ---------------------------------------------------------------------------
// Encoders
// ---------------------------------------------------------------------------

func encode(op Opcode, rd, rn ir.Reg, low uint16) uint32 {
	return uint32(op)<<24 | uint32(rd&0xF)<<20 | uint32(rn&0xF)<<16 | uint32(low)
}

// NOP encodes a no-op.
func NOP() uint32 { return encode(OpNOP, 0, 0, 0) }

// MOVI encodes rd = imm.
func MOVI(rd ir.Reg, imm uint16) uint32 { return encode(OpMOVI, rd, 0, imm) }

// ADDI encodes rd = rn + imm.
func ADDI(rd, rn ir.Reg, imm uint16) uint32 { return encode(OpADDI, rd, rn, imm) }

// ADD encodes rd = rn + rm.
func ADD(rd, rn, rm ir.Reg) uint32 { return encode(OpADD, rd, rn, uint16(rm)) }

// SUB encodes rd = rn - rm.
func SUB(rd, rn, rm ir.Reg) uint32 { return encode(OpSUB, rd, rn, uint16(rm)) }

// AND encodes rd = rn & rm.
func AND(rd, rn, rm ir.Reg) uint32 { return encode(OpAND, rd, rn, uint16(rm)) }

// ORR encodes rd = rn | rm.
func ORR(rd, rn, rm ir.Reg) uint32 { return encode(OpORR, rd, rn, uint16(rm)) }

// EOR encodes rd = rn ^ rm.
func EOR(rd, rn, rm ir.Reg) uint32 { return encode(OpEOR, rd, rn, uint16(rm)) }

// LSLI encodes rd = rn << shift.
func LSLI(rd, rn ir.Reg, shift uint8) uint32 { return encode(OpLSLI, rd, rn, uint16(shift&0x1F)) }

// CMP encodes flags = rn - rm.
func CMP(rn, rm ir.Reg) uint32 { return encode(OpCMP, 0, rn, uint16(rm)) }

// LDR encodes rd = [rn + off].
func LDR(rd, rn ir.Reg, off uint16) uint32 { return encode(OpLDR, rd, rn, off) }

// STR encodes [rn + off] = rd.
func STR(rd, rn ir.Reg, off uint16) uint32 { return encode(OpSTR, rd, rn, off) }

// B encodes a conditional branch by words relative to the next instruction.
func B(cond ir.Cond, words int16) uint32 { return encode(OpB, ir.Reg(cond), 0, uint16(words)) }

// BL encodes a call by words relative to the next instruction.
func BL(words int16) uint32 { return encode(OpBL, 0, 0, uint16(words)) }

// BX encodes pc = rm.
func BX(rm ir.Reg) uint32 { return encode(OpBX, 0, 0, uint16(rm)) }

// SVC encodes a supervisor call.
func SVC(imm uint16) uint32 { return encode(OpSVC, 0, 0, imm) }

// VMOVTO encodes s[ext] = rd.
func VMOVTO(ext ir.ExtReg, rd ir.Reg) uint32 { return encode(OpVMOVTO, rd, 0, uint16(ext&0x3F)) }

// VMOVFR encodes rd = s[ext].
func VMOVFR(rd ir.Reg, ext ir.ExtReg) uint32 { return encode(OpVMOVFR, rd, 0, uint16(ext&0x3F)) }

// CDP encodes a coprocessor internal operation.
func CDP(coproc uint8, opc uint8, imm uint16) uint32 {
	return encode(OpCDP, ir.Reg(opc), ir.Reg(coproc), imm)
}

// CLREX encodes a clear of the exclusive monitor.
func CLREX() uint32 { return encode(OpCLREX, 0, 0, 0) }

// MOV encodes rd = rm.
func MOV(rd, rm ir.Reg) uint32 { return encode(OpMOV, rd, 0, uint16(rm)) }
