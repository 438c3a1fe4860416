package host

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/chazu/armjit/pkg/ir"
)

// Disassembler decodes emitted host code one instruction at a time.
type Disassembler struct{}

// NewDisassembler returns a host code disassembler.
func NewDisassembler() *Disassembler {
	return &Disassembler{}
}

// Instruction decodes the instruction at the start of code, which was
// emitted at addr. It returns the number of bytes consumed and the text.
// Bytes that do not start a complete instruction decode as a single
// ".byte" directive.
func (d *Disassembler) Instruction(code []byte, addr uint64) (int, string) {
	if len(code) == 0 {
		return 0, ""
	}
	op := Opcode(code[0])
	info, ok := GetOpcodeInfo(op)
	size := InstructionSize(op)
	if !ok || len(code) < size {
		return 1, fmt.Sprintf(".byte 0x%02x", code[0])
	}

	var sb strings.Builder
	sb.WriteString(info.Name)
	off := 1
	for i := 0; i < len(info.Layout); i++ {
		kind := info.Layout[i]
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(formatOperand(kind, code[off:], addr+uint64(off)))
		off += operandSize(kind)
	}
	return size, sb.String()
}

func formatOperand(kind byte, b []byte, addr uint64) string {
	switch kind {
	case 'd':
		return fmt.Sprintf("v%d", binary.LittleEndian.Uint16(b))
	case 'o':
		val := binary.LittleEndian.Uint32(b[1:])
		if b[0] == operandSlot {
			return fmt.Sprintf("v%d", val)
		}
		return fmt.Sprintf("#0x%x", val)
	case 'r':
		return ir.Reg(b[0]).String()
	case 'x':
		return ir.ExtReg(b[0]).String()
	case 'c':
		return ir.Cond(b[0]).String()
	case 'j':
		// Displacement is relative to the end of the operand.
		return fmt.Sprintf("0x%x", addr+2+uint64(binary.LittleEndian.Uint16(b)))
	case 'n':
		return fmt.Sprintf("%d", binary.LittleEndian.Uint16(b))
	case 'q':
		return fmt.Sprintf("#0x%016x", binary.LittleEndian.Uint64(b))
	case 'i':
		return fmt.Sprintf("{% x}", b[:8])
	}
	return "?"
}
