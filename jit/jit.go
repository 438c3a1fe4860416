// Package jit is the execution engine of the translator. It owns the code
// cache, compiles guest blocks on demand, runs them, and applies cache
// invalidation only when no emitted code is running.
package jit

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/armjit/config"
	"github.com/chazu/armjit/pkg/host"
	"github.com/chazu/armjit/pkg/ir"
)

// MinimumRemainingCodeSize is the code buffer space that must be free
// before a block is compiled. With less, the whole cache is flushed first.
const MinimumRemainingCodeSize = config.MinimumCodeCacheSize

// Jit runs guest code for one logical core. It is not safe for concurrent
// use.
type Jit struct {
	id        uuid.UUID
	cfg       config.Engine
	callbacks Callbacks

	state        host.JitState
	buf          *host.CodeBuffer
	emitter      *host.Emitter
	cpu          *host.CPU
	pipeline     Pipeline
	disassembler *host.Disassembler

	invalidation cacheInvalidation

	isExecuting bool
	inBlock     bool // emitted code is on the call path

	observer Observer
	log      commonlog.Logger
}

// New creates an engine with an empty code cache and zeroed guest state.
func New(cfg config.Engine, callbacks Callbacks) (*Jit, error) {
	if callbacks.Memory == nil {
		return nil, fmt.Errorf("jit: callbacks.Memory is required")
	}
	c := config.Default()
	c.Engine = cfg
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("jit: invalid engine configuration: %w", err)
	}

	j := &Jit{
		id:        uuid.New(),
		cfg:       cfg,
		callbacks: callbacks,
		buf:       host.NewCodeBuffer(cfg.CodeCacheSize),
		log:       commonlog.GetLogger("armjit.jit"),
	}
	j.emitter = host.NewEmitter(j.buf)
	j.cpu = host.NewCPU(j.buf)
	j.pipeline = Pipeline{
		Memory:          callbacks.Memory,
		MaxInstructions: cfg.MaxBlockInstructions,
		Emitter:         j.emitter,
		log:             j.log,
	}
	if cfg.Disassembler {
		j.disassembler = host.NewDisassembler()
	}
	j.state.ResetRSB()

	j.log.Infof("engine %s: %d byte code cache", j.id, cfg.CodeCacheSize)
	return j, nil
}

// ID returns the engine's instance id. Contexts record it.
func (j *Jit) ID() uuid.UUID { return j.id }

// SetObserver installs o, or removes the observer if o is nil.
func (j *Jit) SetObserver(o Observer) { j.observer = o }

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// Run executes guest code from the current PC for about cycles guest
// cycles, or until HaltExecution is called. Blocks always run to their
// end, so Run may overshoot. Pending cache invalidation is applied before
// Run returns. Run returns the number of cycles executed.
func (j *Jit) Run(cycles int) int {
	if j.isExecuting {
		panic("jit: Run called while already executing")
	}

	j.state.HaltRequested = false
	j.state.CyclesRemaining = cycles
	func() {
		j.isExecuting = true
		defer func() {
			j.isExecuting = false
			j.inBlock = false
		}()
		j.execute()
	}()

	j.performCacheInvalidation()
	return cycles - j.state.CyclesRemaining
}

// execute is the dispatch loop. Cycles and the halt flag are only checked
// between blocks.
func (j *Jit) execute() {
	e := env{j}
	reason := host.ExitDispatch
	for j.state.CyclesRemaining > 0 && !j.state.HaltRequested {
		entry := j.nextBlock(reason)

		j.inBlock = true
		reason = j.cpu.Run(&j.state, entry, e)
		j.inBlock = false
	}
}

func (j *Jit) nextBlock(reason host.ExitReason) host.Entry {
	loc := j.state.Location()
	if reason == host.ExitPopRSB {
		if entry, ok := j.state.PredictReturn(loc.UniqueHash()); ok {
			return entry
		}
	}
	return j.getBasicBlock(loc).Entry
}

// getBasicBlock looks up loc in the cache, compiling it on a miss.
func (j *Jit) getBasicBlock(loc ir.Location) host.BlockDescriptor {
	if d, ok := j.emitter.GetBasicBlock(loc); ok {
		return d
	}

	if j.emitter.SpaceRemaining() < MinimumRemainingCodeSize {
		j.log.Infof("code cache low (%d bytes free), flushing", j.emitter.SpaceRemaining())
		j.invalidation.entire = true
		if j.inBlock {
			j.state.HaltRequested = true
		} else {
			j.performCacheInvalidation()
		}
	}

	d, block := j.pipeline.Compile(loc)
	if j.observer != nil {
		j.observer.BlockCompiled(BlockEvent{
			Engine:     j.id,
			Location:   loc,
			Block:      d,
			GuestInsts: block.CycleCount,
			IRInsts:    block.LiveCount(),
			Generation: j.invalidation.generation,
		})
	}
	return d
}

// HaltExecution stops Run at the next block boundary. It may be called
// from callbacks.
func (j *Jit) HaltExecution() {
	j.state.HaltRequested = true
}

// Reset zeroes all guest state. The code cache is kept.
func (j *Jit) Reset() {
	if j.isExecuting {
		panic("jit: Reset called while executing")
	}
	j.state = host.JitState{}
	j.state.ResetRSB()
}

// IsExecuting reports whether Run is on the call stack.
func (j *Jit) IsExecuting() bool { return j.isExecuting }

// CurrentLocation returns the location execution would continue from.
func (j *Jit) CurrentLocation() ir.Location { return j.state.Location() }

// CachedBlocks returns the number of blocks in the code cache.
func (j *Jit) CachedBlocks() int { return j.emitter.Len() }

// ---------------------------------------------------------------------------
// Guest state
// ---------------------------------------------------------------------------

// Regs gives access to the general-purpose registers.
func (j *Jit) Regs() *[ir.NumRegs]uint32 { return &j.state.Reg }

// ExtRegs gives access to the extension registers.
func (j *Jit) ExtRegs() *[ir.NumExtRegs]uint32 { return &j.state.ExtReg }

func (j *Jit) Cpsr() uint32          { return j.state.Cpsr() }
func (j *Jit) SetCpsr(value uint32)  { j.state.SetCpsr(value) }
func (j *Jit) Fpscr() uint32         { return j.state.Fpscr() }
func (j *Jit) SetFpscr(value uint32) { j.state.SetFpscr(value) }

// ClearExclusiveState clears the exclusive monitor.
func (j *Jit) ClearExclusiveState() {
	j.state.ExclusiveState = 0
}
