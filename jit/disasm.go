package jit

import (
	"fmt"
	"strings"

	"github.com/chazu/armjit/pkg/ir"
)

const disassemblerDisabled = "(host disassembler disabled; set engine.disassembler = true to list generated code)"

// Disassemble lists the host code for the block at loc, compiling it if
// it is not cached.
func (j *Jit) Disassemble(loc ir.Location) string {
	d := j.getBasicBlock(loc)

	var sb strings.Builder
	fmt.Fprintf(&sb, "address: %s\nsize: %d bytes\n", d.Entry, d.Size)

	if j.disassembler == nil {
		sb.WriteString(disassemblerDisabled)
		sb.WriteByte('\n')
		return sb.String()
	}

	code := j.emitter.Code(d)
	for pos := 0; pos < len(code); {
		n, text := j.disassembler.Instruction(code[pos:], uint64(d.Entry)+uint64(pos))
		for _, b := range code[pos : pos+n] {
			fmt.Fprintf(&sb, "%02x ", b)
		}
		for i := n; i < 10; i++ {
			sb.WriteString("   ")
		}
		sb.WriteString(text)
		sb.WriteByte('\n')
		pos += n
	}
	return sb.String()
}
