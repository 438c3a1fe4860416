package ir

import "fmt"

// Type is the discriminant of a Value and the result type of an opcode.
type Type uint8

const (
	TypeVoid       Type = iota // no value
	TypeOpaque                 // reference to another instruction's result
	TypeRegRef                 // general-purpose register name
	TypeExtRegRef              // extension register name
	TypeU1                     // single bit
	TypeU8                     // byte
	TypeU16                    // half word
	TypeU32                    // word
	TypeU64                    // double word
	TypeCoprocInfo             // 8-byte coprocessor operation descriptor
)

var typeNames = [...]string{"Void", "Opaque", "RegRef", "ExtRegRef", "U1", "U8", "U16", "U32", "U64", "CoprocInfo"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Opcode identifies the operation an Inst performs.
type Opcode uint8

const (
	OpVoid Opcode = iota // placeholder for removed instructions

	// Identity forwards its single argument. Passes fold an instruction
	// into one of its operands by rewriting it to Identity.
	OpIdentity

	// Guest register file
	OpGetRegister
	OpSetRegister
	OpGetExtendedRegister32
	OpSetExtendedRegister32
	OpGetNZCV
	OpSetNZCV

	// Arithmetic and logic
	OpAdd32
	OpSub32
	OpAnd32
	OpOr32
	OpEor32
	OpLogicalShiftLeft32
	OpZeroExtendHalfToWord
	OpNZCVFromSub32

	// Memory
	OpReadMemory32
	OpWriteMemory32

	// Environment
	OpCallSupervisor
	OpExceptionRaised
	OpCoprocInternalOperation
	OpClearExclusive
	OpPushRSB

	opcodeCount
)

// OpcodeInfo describes an opcode's signature.
type OpcodeInfo struct {
	Name        string
	Type        Type   // result type
	Args        []Type // argument types; TypeOpaque accepts any type
	SideEffects bool   // must not be removed even when unused
}

var opcodeTable = [opcodeCount]OpcodeInfo{
	OpVoid:     {Name: "Void", Type: TypeVoid},
	OpIdentity: {Name: "Identity", Type: TypeOpaque, Args: []Type{TypeOpaque}},

	OpGetRegister:           {Name: "GetRegister", Type: TypeU32, Args: []Type{TypeRegRef}},
	OpSetRegister:           {Name: "SetRegister", Type: TypeVoid, Args: []Type{TypeRegRef, TypeU32}, SideEffects: true},
	OpGetExtendedRegister32: {Name: "GetExtendedRegister32", Type: TypeU32, Args: []Type{TypeExtRegRef}},
	OpSetExtendedRegister32: {Name: "SetExtendedRegister32", Type: TypeVoid, Args: []Type{TypeExtRegRef, TypeU32}, SideEffects: true},
	OpGetNZCV:               {Name: "GetNZCV", Type: TypeU32},
	OpSetNZCV:               {Name: "SetNZCV", Type: TypeVoid, Args: []Type{TypeU32}, SideEffects: true},

	OpAdd32:                {Name: "Add32", Type: TypeU32, Args: []Type{TypeU32, TypeU32}},
	OpSub32:                {Name: "Sub32", Type: TypeU32, Args: []Type{TypeU32, TypeU32}},
	OpAnd32:                {Name: "And32", Type: TypeU32, Args: []Type{TypeU32, TypeU32}},
	OpOr32:                 {Name: "Or32", Type: TypeU32, Args: []Type{TypeU32, TypeU32}},
	OpEor32:                {Name: "Eor32", Type: TypeU32, Args: []Type{TypeU32, TypeU32}},
	OpLogicalShiftLeft32:   {Name: "LogicalShiftLeft32", Type: TypeU32, Args: []Type{TypeU32, TypeU8}},
	OpZeroExtendHalfToWord: {Name: "ZeroExtendHalfToWord", Type: TypeU32, Args: []Type{TypeU16}},
	OpNZCVFromSub32:        {Name: "NZCVFromSub32", Type: TypeU32, Args: []Type{TypeU32, TypeU32}},

	OpReadMemory32:  {Name: "ReadMemory32", Type: TypeU32, Args: []Type{TypeU32}, SideEffects: true},
	OpWriteMemory32: {Name: "WriteMemory32", Type: TypeVoid, Args: []Type{TypeU32, TypeU32}, SideEffects: true},

	OpCallSupervisor:          {Name: "CallSupervisor", Type: TypeVoid, Args: []Type{TypeU32}, SideEffects: true},
	OpExceptionRaised:         {Name: "ExceptionRaised", Type: TypeVoid, Args: []Type{TypeU32, TypeU32}, SideEffects: true},
	OpCoprocInternalOperation: {Name: "CoprocInternalOperation", Type: TypeVoid, Args: []Type{TypeCoprocInfo}, SideEffects: true},
	OpClearExclusive:          {Name: "ClearExclusive", Type: TypeVoid, SideEffects: true},
	OpPushRSB:                 {Name: "PushRSB", Type: TypeVoid, Args: []Type{TypeU64}, SideEffects: true},
}

// Info returns the signature of op. Unknown opcodes yield a zero OpcodeInfo
// named after the raw value.
func (op Opcode) Info() OpcodeInfo {
	if op < opcodeCount {
		return opcodeTable[op]
	}
	return OpcodeInfo{Name: fmt.Sprintf("Opcode(%d)", uint8(op))}
}

func (op Opcode) String() string {
	return op.Info().Name
}

// NumArgs returns the number of arguments op takes.
func (op Opcode) NumArgs() int {
	return len(op.Info().Args)
}

// HasSideEffects reports whether op must be kept even when its result is unused.
func (op Opcode) HasSideEffects() bool {
	return op.Info().SideEffects
}

// IsBarrier reports whether op may observe or change guest registers
// through a callback.
func (op Opcode) IsBarrier() bool {
	switch op {
	case OpCallSupervisor, OpExceptionRaised, OpCoprocInternalOperation:
		return true
	}
	return false
}
