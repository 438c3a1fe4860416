package jit

import (
	"github.com/google/uuid"

	"github.com/chazu/armjit/pkg/guest"
	"github.com/chazu/armjit/pkg/host"
	"github.com/chazu/armjit/pkg/interval"
	"github.com/chazu/armjit/pkg/ir"
)

// Callbacks connect an engine to the system it emulates. Memory is
// required; the handlers may be nil.
//
// Handlers run while guest code is executing. They may call HaltExecution,
// ClearCache, InvalidateCacheRange and the register accessors, but not Run,
// Reset or LoadContext.
type Callbacks struct {
	Memory guest.Memory

	// CallSVC handles a supervisor call. PC already holds the address of
	// the next instruction.
	CallSVC func(imm uint32)
	// ExceptionRaised reports a guest exception at pc. PC holds pc.
	ExceptionRaised func(pc uint32, exception guest.Exception)
	// CoprocOp performs a coprocessor internal operation.
	CoprocOp func(info [8]byte)
}

// InvalidationKind distinguishes full flushes from ranged ones.
type InvalidationKind int

const (
	InvalidateRanges InvalidationKind = iota
	InvalidateAll
)

func (k InvalidationKind) String() string {
	if k == InvalidateAll {
		return "all"
	}
	return "ranges"
}

// BlockEvent describes a block that was just compiled.
type BlockEvent struct {
	Engine     uuid.UUID
	Location   ir.Location
	Block      host.BlockDescriptor
	GuestInsts int // guest instructions translated
	IRInsts    int // IR instructions left after optimization
	Generation uint64
}

// InvalidationEvent describes an applied cache invalidation.
type InvalidationEvent struct {
	Engine     uuid.UUID
	Kind       InvalidationKind
	Ranges     []interval.Interval // empty for InvalidateAll
	Evicted    int
	Generation uint64 // generation after the invalidation
}

// Observer is notified of compilations and applied invalidations. It is
// called synchronously and must not call back into the engine.
type Observer interface {
	BlockCompiled(ev BlockEvent)
	CacheInvalidated(ev InvalidationEvent)
}

// env adapts an engine to the host.Env emitted code calls.
type env struct {
	j *Jit
}

func (e env) Read32(addr uint32) uint32 {
	return e.j.callbacks.Memory.Read32(addr)
}

func (e env) Write32(addr, value uint32) {
	e.j.callbacks.Memory.Write32(addr, value)
}

func (e env) CallSVC(imm uint32) {
	if e.j.callbacks.CallSVC != nil {
		e.j.callbacks.CallSVC(imm)
	}
}

func (e env) ExceptionRaised(pc, exception uint32) {
	if e.j.callbacks.ExceptionRaised != nil {
		e.j.callbacks.ExceptionRaised(pc, guest.Exception(exception))
		return
	}
	e.j.log.Errorf("unhandled guest exception %s at %08x", guest.Exception(exception), pc)
	e.j.HaltExecution()
}

func (e env) CoprocOp(info [8]byte) {
	if e.j.callbacks.CoprocOp != nil {
		e.j.callbacks.CoprocOp(info)
	}
}

// PushRSB records a return prediction. Only code that is already compiled
// is linked; the return target is not compiled eagerly.
func (e env) PushRSB(hash uint64) {
	ref := host.InvalidEntry
	if d, ok := e.j.emitter.GetBasicBlock(ir.LocationFromHash(hash)); ok {
		ref = d.Entry
	}
	e.j.state.PushRSB(hash, ref)
}
