// Package ir is the intermediate representation guest code is translated
// into before host code is emitted.
//
// A Block owns an arena of Inst values addressed by index. Operands are
// Value handles: either an immediate (U1, U8, U16, U32, U64, CoprocInfo),
// a register name (RegRef, ExtRegRef), or a reference to an earlier
// instruction's result (Opaque). Because instructions can only reference
// earlier ones, the graph is acyclic by construction.
//
// # Identity folding
//
// Optimisation passes simplify the graph without restructuring it: when an
// instruction is found to equal one of its operands (or an immediate), the
// pass calls Block.ReplaceUsesWith, which turns the instruction into an
// Identity. Value accessors look through Identity chains, so consumers see
// the forwarded operand without their arguments being rewritten.
//
// # Locations
//
// Location is the cache key for translated code: a guest PC together with
// the CPSR and FPSCR mode bits that change how that PC decodes.
package ir
