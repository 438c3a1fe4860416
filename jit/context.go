package jit

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/chazu/armjit/pkg/host"
	"github.com/chazu/armjit/pkg/ir"
)

// Context is a detached copy of one logical core's guest state. It can be
// loaded into the engine that saved it or into another one.
type Context struct {
	state      host.JitState
	generation uint64
	engine     uuid.UUID
}

// NewContext returns a zeroed context with an empty return stack buffer.
func NewContext() *Context {
	c := &Context{}
	c.state.ResetRSB()
	return c
}

// Regs gives access to the saved general-purpose registers.
func (c *Context) Regs() *[ir.NumRegs]uint32 { return &c.state.Reg }

// ExtRegs gives access to the saved extension registers.
func (c *Context) ExtRegs() *[ir.NumExtRegs]uint32 { return &c.state.ExtReg }

func (c *Context) Cpsr() uint32          { return c.state.Cpsr() }
func (c *Context) SetCpsr(value uint32)  { c.state.SetCpsr(value) }
func (c *Context) Fpscr() uint32         { return c.state.Fpscr() }
func (c *Context) SetFpscr(value uint32) { c.state.SetFpscr(value) }

// Generation returns the cache generation the context was saved at.
func (c *Context) Generation() uint64 { return c.generation }

// Engine returns the id of the engine that saved the context.
func (c *Context) Engine() uuid.UUID { return c.engine }

// Clone returns an independent copy of c.
func (c *Context) Clone() *Context {
	cp := *c
	return &cp
}

// SaveContext copies the guest state, including the return stack buffer.
// The exclusive monitor is not saved.
func (j *Jit) SaveContext() *Context {
	c := &Context{
		generation: j.invalidation.generation,
		engine:     j.id,
	}
	transferState(&c.state, &j.state, false)
	return c
}

// LoadContext replaces the guest state with c. Return predictions are
// kept only if c was saved by this engine and no invalidation has been
// applied since.
func (j *Jit) LoadContext(c *Context) {
	if j.isExecuting {
		panic("jit: LoadContext called while executing")
	}
	stale := c.generation != j.invalidation.generation || c.engine != j.id
	transferState(&j.state, &c.state, stale)
}

func transferState(dst, src *host.JitState, resetRSB bool) {
	dst.Reg = src.Reg
	dst.ExtReg = src.ExtReg

	dst.CPSRNZCV = src.CPSRNZCV
	dst.CPSRQ = src.CPSRQ
	dst.CPSRGE = src.CPSRGE
	dst.CPSRET = src.CPSRET
	dst.CPSRJAIFM = src.CPSRJAIFM

	dst.FPSCRMode = src.FPSCRMode
	dst.FPSCRNZCV = src.FPSCRNZCV
	dst.FPSCRCumulative = src.FPSCRCumulative

	if resetRSB {
		dst.ResetRSB()
		return
	}
	dst.RSBPtr = src.RSBPtr
	dst.RSBLocations = src.RSBLocations
	dst.RSBCodeRefs = src.RSBCodeRefs
}

// ---------------------------------------------------------------------------
// Wire format
// ---------------------------------------------------------------------------

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("jit: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type contextWire struct {
	Engine       [16]byte                 `cbor:"1,keyasint"`
	Generation   uint64                   `cbor:"2,keyasint"`
	Regs         [ir.NumRegs]uint32       `cbor:"3,keyasint"`
	ExtRegs      [ir.NumExtRegs]uint32    `cbor:"4,keyasint"`
	Cpsr         uint32                   `cbor:"5,keyasint"`
	Fpscr        uint32                   `cbor:"6,keyasint"`
	RSBPtr       int                      `cbor:"7,keyasint"`
	RSBLocations [host.RSBSize]uint64     `cbor:"8,keyasint"`
	RSBCodeRefs  [host.RSBSize]host.Entry `cbor:"9,keyasint"`
}

// MarshalBinary encodes c as canonical CBOR.
func (c *Context) MarshalBinary() ([]byte, error) {
	w := contextWire{
		Engine:       c.engine,
		Generation:   c.generation,
		Regs:         c.state.Reg,
		ExtRegs:      c.state.ExtReg,
		Cpsr:         c.state.Cpsr(),
		Fpscr:        c.state.Fpscr(),
		RSBPtr:       c.state.RSBPtr,
		RSBLocations: c.state.RSBLocations,
		RSBCodeRefs:  c.state.RSBCodeRefs,
	}
	return cborEncMode.Marshal(&w)
}

// UnmarshalBinary decodes a context written by MarshalBinary.
func (c *Context) UnmarshalBinary(data []byte) error {
	var w contextWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("jit: unmarshal context: %w", err)
	}
	if w.RSBPtr < 0 || w.RSBPtr >= host.RSBSize {
		return fmt.Errorf("jit: unmarshal context: RSB pointer %d out of range", w.RSBPtr)
	}

	*c = Context{
		generation: w.Generation,
		engine:     uuid.UUID(w.Engine),
	}
	c.state.Reg = w.Regs
	c.state.ExtReg = w.ExtRegs
	c.state.SetCpsr(w.Cpsr)
	c.state.SetFpscr(w.Fpscr)
	c.state.RSBPtr = w.RSBPtr
	c.state.RSBLocations = w.RSBLocations
	c.state.RSBCodeRefs = w.RSBCodeRefs
	return nil
}
