package host

import (
	"encoding/binary"
	"fmt"

	"github.com/chazu/armjit/pkg/interval"
	"github.com/chazu/armjit/pkg/ir"
)

// Emitter lowers verified IR blocks to host code and owns the map from
// Location to emitted block.
type Emitter struct {
	buf    *CodeBuffer
	blocks map[ir.Location]BlockDescriptor
}

// NewEmitter creates an emitter writing into buf.
func NewEmitter(buf *CodeBuffer) *Emitter {
	return &Emitter{
		buf:    buf,
		blocks: make(map[ir.Location]BlockDescriptor),
	}
}

// GetBasicBlock returns the emitted block for loc, if any.
func (e *Emitter) GetBasicBlock(loc ir.Location) (BlockDescriptor, bool) {
	d, ok := e.blocks[loc]
	return d, ok
}

// Len returns the number of cached blocks.
func (e *Emitter) Len() int { return len(e.blocks) }

// SpaceRemaining returns the free space in the code buffer.
func (e *Emitter) SpaceRemaining() int { return e.buf.SpaceRemaining() }

// Code returns the host code of an emitted block.
func (e *Emitter) Code(d BlockDescriptor) []byte { return e.buf.Code(d) }

// ClearCache forgets every block and discards all emitted code.
func (e *Emitter) ClearCache() {
	clear(e.blocks)
	e.buf.ClearCache()
}

// InvalidateCacheRanges forgets every block whose location PC lies in
// ranges. Their code stays in the buffer until the next ClearCache.
// It returns the number of blocks removed.
func (e *Emitter) InvalidateCacheRanges(ranges *interval.Set) int {
	n := 0
	for loc := range e.blocks {
		if ranges.Contains(loc.PC()) {
			delete(e.blocks, loc)
			n++
		}
	}
	return n
}

// Emit lowers block into the code buffer and caches it under its location.
func (e *Emitter) Emit(block *ir.Block) BlockDescriptor {
	var a assembler
	a.lower(block)
	d := BlockDescriptor{Entry: e.buf.Commit(a.code), Size: len(a.code)}
	e.blocks[block.Location] = d
	return d
}

// ---------------------------------------------------------------------------
// Assembler
// ---------------------------------------------------------------------------

// assembler builds the code for one block. Every value-producing IR
// instruction gets its own slot.
type assembler struct {
	code  []byte
	slots map[int]uint16
}

func (a *assembler) op(op Opcode) {
	a.code = append(a.code, byte(op))
}

func (a *assembler) u8(x uint8) {
	a.code = append(a.code, x)
}

func (a *assembler) u16(x uint16) {
	a.code = binary.LittleEndian.AppendUint16(a.code, x)
}

func (a *assembler) u64(x uint64) {
	a.code = binary.LittleEndian.AppendUint64(a.code, x)
}

// dst allocates the slot holding the result of instruction i.
func (a *assembler) dst(i int) {
	if len(a.slots) > 0xFFFF {
		panic("host: block needs more than 65536 slots")
	}
	slot := uint16(len(a.slots))
	a.slots[i] = slot
	a.u16(slot)
}

// operand encodes v, following Identity chains to the value actually used.
func (a *assembler) operand(v ir.Value) {
	r := v.Resolve()
	if r.IsInst() {
		slot, ok := a.slots[r.InstIndex()]
		if !ok {
			panic(fmt.Sprintf("host: operand %s has no slot", r))
		}
		a.u8(operandSlot)
		a.code = binary.LittleEndian.AppendUint32(a.code, uint32(slot))
		return
	}
	a.u8(operandImm)
	a.code = binary.LittleEndian.AppendUint32(a.code, uint32(r.ImmediateBits()))
}

func (a *assembler) lower(block *ir.Block) {
	a.slots = make(map[int]uint16)

	// Enter's slot count is patched once lowering is done.
	a.op(OpEnter)
	slotsAt := len(a.code)
	a.u16(0)
	a.u16(uint16(block.CycleCount))

	for i := 0; i < block.Len(); i++ {
		inst := block.Inst(i)
		switch inst.Opcode() {
		case ir.OpVoid, ir.OpIdentity:

		case ir.OpGetRegister:
			a.op(OpGetReg)
			a.dst(i)
			a.u8(uint8(inst.Arg(0).Reg()))
		case ir.OpSetRegister:
			a.op(OpSetReg)
			a.u8(uint8(inst.Arg(0).Reg()))
			a.operand(inst.Arg(1))
		case ir.OpGetExtendedRegister32:
			a.op(OpGetExt)
			a.dst(i)
			a.u8(uint8(inst.Arg(0).ExtReg()))
		case ir.OpSetExtendedRegister32:
			a.op(OpSetExt)
			a.u8(uint8(inst.Arg(0).ExtReg()))
			a.operand(inst.Arg(1))
		case ir.OpGetNZCV:
			a.op(OpGetNZCV)
			a.dst(i)
		case ir.OpSetNZCV:
			a.op(OpSetNZCV)
			a.operand(inst.Arg(0))

		case ir.OpAdd32, ir.OpSub32, ir.OpAnd32, ir.OpOr32, ir.OpEor32, ir.OpLogicalShiftLeft32, ir.OpNZCVFromSub32:
			a.op(binaryOps[inst.Opcode()])
			a.dst(i)
			a.operand(inst.Arg(0))
			a.operand(inst.Arg(1))
		case ir.OpZeroExtendHalfToWord:
			a.op(OpAnd)
			a.dst(i)
			a.operand(inst.Arg(0))
			a.operand(ir.Imm32(0xFFFF))

		case ir.OpReadMemory32:
			a.op(OpLoad)
			a.dst(i)
			a.operand(inst.Arg(0))
		case ir.OpWriteMemory32:
			a.op(OpStore)
			a.operand(inst.Arg(0))
			a.operand(inst.Arg(1))

		case ir.OpCallSupervisor:
			a.op(OpSvc)
			a.operand(inst.Arg(0))
		case ir.OpExceptionRaised:
			a.op(OpRaise)
			a.operand(inst.Arg(0))
			a.operand(inst.Arg(1))
		case ir.OpCoprocInternalOperation:
			info := inst.Arg(0).CoprocInfo()
			a.op(OpCoproc)
			a.code = append(a.code, info[:]...)
		case ir.OpClearExclusive:
			a.op(OpClrex)
		case ir.OpPushRSB:
			a.op(OpPushRSB)
			a.u64(inst.Arg(0).U64())

		default:
			panic(fmt.Sprintf("host: cannot emit %s", inst.Opcode()))
		}
	}

	a.terminal(block.Terminal)
	binary.LittleEndian.PutUint16(a.code[slotsAt:], uint16(len(a.slots)))
}

var binaryOps = map[ir.Opcode]Opcode{
	ir.OpAdd32:              OpAdd,
	ir.OpSub32:              OpSub,
	ir.OpAnd32:              OpAnd,
	ir.OpOr32:               OpOr,
	ir.OpEor32:              OpEor,
	ir.OpLogicalShiftLeft32: OpLsl,
	ir.OpNZCVFromSub32:      OpNZCVSub,
}

func (a *assembler) terminal(t ir.Terminal) {
	switch t := t.(type) {
	case ir.TermReturnToDispatch:
		a.op(OpExit)
	case ir.TermLinkBlock:
		a.op(OpSetReg)
		a.u8(uint8(ir.PC))
		a.operand(ir.Imm32(t.Next.PC()))
		a.op(OpExit)
	case ir.TermPopRSBHint:
		a.op(OpExitPopRSB)
	case ir.TermIf:
		a.op(OpBranchUnless)
		a.u8(uint8(t.Cond))
		at := len(a.code)
		a.u16(0)
		a.terminal(t.Then)
		skip := len(a.code) - (at + 2)
		if skip > 0xFFFF {
			panic("host: conditional terminal too long")
		}
		binary.LittleEndian.PutUint16(a.code[at:], uint16(skip))
		a.terminal(t.Else)
	default:
		panic(fmt.Sprintf("host: cannot emit terminal %v", t))
	}
}
