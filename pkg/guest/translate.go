package guest

import "github.com/chazu/armjit/pkg/ir"

// DefaultMaxBlockInstructions bounds the length of a translated block.
const DefaultMaxBlockInstructions = 32

// CodeReader fetches the instruction word at a guest address.
type CodeReader func(addr uint32) uint32

// TranslateOptions tune block formation.
type TranslateOptions struct {
	// MaxInstructions ends a block after this many guest instructions.
	// Zero means DefaultMaxBlockInstructions.
	MaxInstructions int
}

// translator carries the state of one block translation.
type translator struct {
	block *ir.Block
	loc   ir.Location // location of the instruction being translated
	done  bool
}

// Translate decodes guest code starting at loc into a new block. Any word
// translates to something: unknown encodings raise an undefined
// instruction exception at run time.
func Translate(loc ir.Location, readCode CodeReader, opts TranslateOptions) *ir.Block {
	limit := opts.MaxInstructions
	if limit <= 0 {
		limit = DefaultMaxBlockInstructions
	}

	t := &translator{block: ir.NewBlock(loc), loc: loc}
	for !t.done {
		t.translate(Word(readCode(t.loc.PC())))
		t.block.CycleCount++
		if !t.done {
			t.loc = t.loc.Advance(InstructionSize)
			if t.block.CycleCount >= limit {
				t.block.Terminal = ir.TermLinkBlock{Next: t.loc}
				t.done = true
			}
		}
	}
	return t.block
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (t *translator) pc() uint32 { return t.loc.PC() }

func (t *translator) getReg(r ir.Reg) ir.Value {
	if r == ir.PC {
		return ir.Imm32(t.pc() + 8)
	}
	return t.block.Append(ir.OpGetRegister, ir.RegValue(r))
}

// setReg writes r. Writing the PC ends the block.
func (t *translator) setReg(r ir.Reg, v ir.Value) {
	t.block.Append(ir.OpSetRegister, ir.RegValue(r), v)
	if r == ir.PC {
		t.end(ir.TermReturnToDispatch{})
	}
}

func (t *translator) end(term ir.Terminal) {
	t.block.Terminal = term
	t.done = true
}

func (t *translator) next() ir.Location {
	return t.loc.Advance(InstructionSize)
}

func (t *translator) branchTarget(w Word) ir.Location {
	return t.next().Advance(w.BranchOffset())
}

// ---------------------------------------------------------------------------
// Decoder
// ---------------------------------------------------------------------------

var aluOps = map[Opcode]ir.Opcode{
	OpADD: ir.OpAdd32,
	OpSUB: ir.OpSub32,
	OpAND: ir.OpAnd32,
	OpORR: ir.OpOr32,
	OpEOR: ir.OpEor32,
}

func (t *translator) translate(w Word) {
	b := t.block

	switch w.Opcode() {
	case OpNOP:

	case OpMOVI:
		t.setReg(w.Rd(), b.Append(ir.OpZeroExtendHalfToWord, ir.Imm16(w.Imm16())))

	case OpADDI:
		t.setReg(w.Rd(), b.Append(ir.OpAdd32, t.getReg(w.Rn()), ir.Imm32(uint32(w.Imm16()))))

	case OpADD, OpSUB, OpAND, OpORR, OpEOR:
		t.setReg(w.Rd(), b.Append(aluOps[w.Opcode()], t.getReg(w.Rn()), t.getReg(w.Rm())))

	case OpLSLI:
		t.setReg(w.Rd(), b.Append(ir.OpLogicalShiftLeft32, t.getReg(w.Rn()), ir.Imm8(uint8(w.Imm16()&0x1F))))

	case OpCMP:
		b.Append(ir.OpSetNZCV, b.Append(ir.OpNZCVFromSub32, t.getReg(w.Rn()), t.getReg(w.Rm())))

	case OpLDR:
		addr := b.Append(ir.OpAdd32, t.getReg(w.Rn()), ir.Imm32(uint32(w.Imm16())))
		t.setReg(w.Rd(), b.Append(ir.OpReadMemory32, addr))

	case OpSTR:
		addr := b.Append(ir.OpAdd32, t.getReg(w.Rn()), ir.Imm32(uint32(w.Imm16())))
		b.Append(ir.OpWriteMemory32, addr, t.getReg(w.Rd()))

	case OpB:
		link := ir.TermLinkBlock{Next: t.branchTarget(w)}
		switch cond := w.Cond(); cond {
		case ir.CondAL, ir.CondNV:
			t.end(link)
		default:
			t.end(ir.TermIf{Cond: cond, Then: link, Else: ir.TermLinkBlock{Next: t.next()}})
		}

	case OpBL:
		ret := t.next()
		b.Append(ir.OpSetRegister, ir.RegValue(ir.LR), ir.Imm32(ret.PC()))
		b.Append(ir.OpPushRSB, ir.Imm64(ret.UniqueHash()))
		t.end(ir.TermLinkBlock{Next: t.branchTarget(w)})

	case OpBX:
		b.Append(ir.OpSetRegister, ir.RegValue(ir.PC), t.getReg(w.Rm()))
		if w.Rm() == ir.LR {
			t.end(ir.TermPopRSBHint{})
		} else {
			t.end(ir.TermReturnToDispatch{})
		}

	case OpSVC:
		b.Append(ir.OpSetRegister, ir.RegValue(ir.PC), ir.Imm32(t.next().PC()))
		b.Append(ir.OpCallSupervisor, ir.Imm32(uint32(w.Imm16())))
		t.end(ir.TermReturnToDispatch{})

	case OpVMOVTO:
		b.Append(ir.OpSetExtendedRegister32, ir.ExtRegValue(ir.ExtReg(w.Imm16()&0x3F)), t.getReg(w.Rd()))

	case OpVMOVFR:
		t.setReg(w.Rd(), b.Append(ir.OpGetExtendedRegister32, ir.ExtRegValue(ir.ExtReg(w.Imm16()&0x3F))))

	case OpCDP:
		imm := w.Imm16()
		// coproc, two, opc1, CRd, CRn, CRm, opc2
		info := [8]byte{
			byte(w.Rn()),
			0,
			byte(w.Rd()),
			byte(imm >> 12 & 0xF),
			byte(imm >> 8 & 0xF),
			byte(imm >> 4 & 0xF),
			byte(imm & 0xF),
		}
		b.Append(ir.OpCoprocInternalOperation, ir.ImmCoprocInfo(info))

	case OpCLREX:
		b.Append(ir.OpClearExclusive)

	case OpMOV:
		t.setReg(w.Rd(), t.getReg(w.Rm()))

	default:
		b.Append(ir.OpSetRegister, ir.RegValue(ir.PC), ir.Imm32(t.pc()))
		b.Append(ir.OpExceptionRaised, ir.Imm32(t.pc()), ir.Imm32(uint32(ExceptionUndefinedInstruction)))
		t.end(ir.TermReturnToDispatch{})
	}
}
