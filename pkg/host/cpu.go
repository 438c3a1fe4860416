package host

import (
	"encoding/binary"
	"fmt"

	"github.com/chazu/armjit/pkg/ir"
)

// Env is the environment emitted code calls out to.
type Env interface {
	Read32(addr uint32) uint32
	Write32(addr, value uint32)
	CallSVC(imm uint32)
	ExceptionRaised(pc, exception uint32)
	CoprocOp(info [8]byte)

	// PushRSB is asked to record a predicted return to the location with
	// the given hash. It may look up code already compiled for it.
	PushRSB(hash uint64)
}

// ExitReason tells the dispatcher how a block left.
type ExitReason int

const (
	// ExitDispatch: look up the next block from the guest PC.
	ExitDispatch ExitReason = iota
	// ExitPopRSB: try the return stack buffer before looking up the PC.
	ExitPopRSB
)

func (r ExitReason) String() string {
	switch r {
	case ExitDispatch:
		return "dispatch"
	case ExitPopRSB:
		return "pop-rsb"
	}
	return fmt.Sprintf("ExitReason(%d)", int(r))
}

// CPU executes emitted host code against a JitState.
type CPU struct {
	buf   *CodeBuffer
	slots []uint32

	code []byte
	ip   int
}

// NewCPU creates a CPU that runs code from buf.
func NewCPU(buf *CodeBuffer) *CPU {
	return &CPU{buf: buf}
}

// Run executes one block starting at entry. Callbacks into env happen
// synchronously; env may set st.HaltRequested but the block still runs to
// its terminal.
func (c *CPU) Run(st *JitState, entry Entry, env Env) ExitReason {
	c.code = c.buf.from(entry)
	c.ip = 0

	for {
		op := Opcode(c.code[c.ip])
		c.ip++

		switch op {
		case OpEnter:
			n := int(c.readUint16())
			cycles := int(c.readUint16())
			if cap(c.slots) < n {
				c.slots = make([]uint32, n)
			}
			c.slots = c.slots[:n]
			st.CyclesRemaining -= cycles

		// ============ Guest state ============
		case OpGetReg:
			d := c.readUint16()
			c.slots[d] = st.Reg[c.readByte()]
		case OpSetReg:
			r := c.readByte()
			st.Reg[r] = c.readOperand()
		case OpGetExt:
			d := c.readUint16()
			c.slots[d] = st.ExtReg[c.readByte()]
		case OpSetExt:
			x := c.readByte()
			st.ExtReg[x] = c.readOperand()
		case OpGetNZCV:
			d := c.readUint16()
			c.slots[d] = st.CPSRNZCV
		case OpSetNZCV:
			st.CPSRNZCV = c.readOperand() & cpsrNZCVMask

		// ============ Arithmetic ============
		case OpAdd, OpSub, OpAnd, OpOr, OpEor, OpLsl, OpNZCVSub:
			d := c.readUint16()
			a := c.readOperand()
			b := c.readOperand()
			c.slots[d] = arith(op, a, b)

		// ============ Memory ============
		case OpLoad:
			d := c.readUint16()
			c.slots[d] = env.Read32(c.readOperand())
		case OpStore:
			addr := c.readOperand()
			env.Write32(addr, c.readOperand())

		// ============ Environment ============
		case OpSvc:
			env.CallSVC(c.readOperand())
		case OpRaise:
			pc := c.readOperand()
			env.ExceptionRaised(pc, c.readOperand())
		case OpCoproc:
			var info [8]byte
			copy(info[:], c.code[c.ip:c.ip+8])
			c.ip += 8
			env.CoprocOp(info)
		case OpClrex:
			st.ExclusiveState = 0
		case OpPushRSB:
			hash := binary.LittleEndian.Uint64(c.code[c.ip:])
			c.ip += 8
			env.PushRSB(hash)

		// ============ Control flow ============
		case OpBranchUnless:
			cond := ir.Cond(c.readByte())
			skip := int(c.readUint16())
			if !cond.Passed(st.CPSRNZCV) {
				c.ip += skip
			}
		case OpExit:
			return ExitDispatch
		case OpExitPopRSB:
			return ExitPopRSB

		default:
			panic(fmt.Sprintf("host: bad opcode 0x%02x at %s+%d", byte(op), entry, c.ip-1))
		}
	}
}

func arith(op Opcode, a, b uint32) uint32 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpAnd:
		return a & b
	case OpOr:
		return a | b
	case OpEor:
		return a ^ b
	case OpLsl:
		if b&0xFF >= 32 {
			return 0
		}
		return a << (b & 0xFF)
	case OpNZCVSub:
		return ir.NZCVFromSub(a, b)
	}
	panic("unreachable")
}

// Code reading helpers

func (c *CPU) readByte() byte {
	b := c.code[c.ip]
	c.ip++
	return b
}

func (c *CPU) readUint16() uint16 {
	val := binary.LittleEndian.Uint16(c.code[c.ip:])
	c.ip += 2
	return val
}

func (c *CPU) readOperand() uint32 {
	kind := c.code[c.ip]
	val := binary.LittleEndian.Uint32(c.code[c.ip+1:])
	c.ip += 5
	if kind == operandSlot {
		return c.slots[val]
	}
	return val
}
