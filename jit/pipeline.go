package jit

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/armjit/pkg/guest"
	"github.com/chazu/armjit/pkg/host"
	"github.com/chazu/armjit/pkg/ir"
	"github.com/chazu/armjit/pkg/ir/opt"
)

// Pipeline compiles one Location into host code. The stage order is fixed:
//
//	translate -> get/set elimination -> DCE -> constant propagation -> DCE
//	-> verification -> emission
//
// The second DCE pass removes what constant propagation leaves dead.
type Pipeline struct {
	Memory          guest.Memory
	MaxInstructions int
	Emitter         *host.Emitter

	log commonlog.Logger
}

// Compile translates, optimizes and emits the block at loc. It panics if
// the optimized IR fails verification.
func (p *Pipeline) Compile(loc ir.Location) (host.BlockDescriptor, *ir.Block) {
	block := guest.Translate(loc, p.Memory.ReadCode, guest.TranslateOptions{
		MaxInstructions: p.MaxInstructions,
	})
	before := block.LiveCount()

	opt.GetSetElimination(block)
	opt.DeadCodeElimination(block)
	opt.ConstantPropagation(block, p.Memory)
	opt.DeadCodeElimination(block)
	opt.VerificationPass(block)

	d := p.Emitter.Emit(block)
	if p.log != nil {
		p.log.Debugf("compiled %s: %d guest insts, ir %d -> %d, %d bytes at %s",
			loc, block.CycleCount, before, block.LiveCount(), d.Size, d.Entry)
	}
	return d, block
}
