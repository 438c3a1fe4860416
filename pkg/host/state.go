package host

import "github.com/chazu/armjit/pkg/ir"

// RSBSize is the number of entries in the return stack buffer.
const RSBSize = 8

// rsbEmpty is the location hash of an unused RSB entry. No Location hashes
// to it.
const rsbEmpty = ^uint64(0)

// CPSR field masks. The fields partition all 32 bits.
const (
	cpsrNZCVMask  uint32 = 0xF0000000
	cpsrQMask     uint32 = 0x08000000
	cpsrGEMask    uint32 = 0x000F0000
	cpsrETMask    uint32 = ir.CPSRModeMask
	cpsrJAIFMMask uint32 = 0x07F0FDDF
)

// FPSCR field masks.
const (
	fpscrNZCVMask       uint32 = 0xF0000000
	fpscrModeMask       uint32 = ir.FPSCRModeMask
	fpscrCumulativeMask uint32 = 0x0000009F // IOC DZC OFC UFC IXC IDC
)

// JitState is the guest processor state that emitted code reads and writes.
type JitState struct {
	Reg    [ir.NumRegs]uint32
	ExtReg [ir.NumExtRegs]uint32

	// CPSR, stored split by field.
	CPSRNZCV  uint32
	CPSRQ     uint32
	CPSRGE    uint32
	CPSRET    uint32
	CPSRJAIFM uint32

	// FPSCR, stored split by field.
	FPSCRMode       uint32
	FPSCRNZCV       uint32
	FPSCRCumulative uint32

	ExclusiveState uint32

	// Return stack buffer: a ring of predicted return locations and the
	// host code compiled for them.
	RSBPtr       int
	RSBLocations [RSBSize]uint64
	RSBCodeRefs  [RSBSize]Entry

	HaltRequested   bool
	CyclesRemaining int
}

// Cpsr assembles the CPSR from its fields.
func (s *JitState) Cpsr() uint32 {
	return s.CPSRNZCV | s.CPSRQ | s.CPSRGE | s.CPSRET | s.CPSRJAIFM
}

// SetCpsr splits value into the CPSR fields.
func (s *JitState) SetCpsr(value uint32) {
	s.CPSRNZCV = value & cpsrNZCVMask
	s.CPSRQ = value & cpsrQMask
	s.CPSRGE = value & cpsrGEMask
	s.CPSRET = value & cpsrETMask
	s.CPSRJAIFM = value & cpsrJAIFMMask
}

// Fpscr assembles the FPSCR from its fields.
func (s *JitState) Fpscr() uint32 {
	return s.FPSCRMode | s.FPSCRNZCV | s.FPSCRCumulative
}

// SetFpscr splits value into the FPSCR fields. Reserved bits are dropped.
func (s *JitState) SetFpscr(value uint32) {
	s.FPSCRMode = value & fpscrModeMask
	s.FPSCRNZCV = value & fpscrNZCVMask
	s.FPSCRCumulative = value & fpscrCumulativeMask
}

// Location returns the translation key for the current guest state.
func (s *JitState) Location() ir.Location {
	return ir.NewLocation(s.Reg[ir.PC], s.CPSRET, s.FPSCRMode)
}

// ResetRSB empties the return stack buffer.
func (s *JitState) ResetRSB() {
	s.RSBPtr = 0
	for i := range s.RSBLocations {
		s.RSBLocations[i] = rsbEmpty
		s.RSBCodeRefs[i] = InvalidEntry
	}
}

// PushRSB records a predicted return to the location with the given hash.
// ref is the code already compiled for it, or InvalidEntry.
func (s *JitState) PushRSB(hash uint64, ref Entry) {
	s.RSBLocations[s.RSBPtr] = hash
	s.RSBCodeRefs[s.RSBPtr] = ref
	s.RSBPtr = (s.RSBPtr + 1) % RSBSize
}

// PredictReturn returns the code recorded for the most recent RSB entry
// matching hash, if there is one with compiled code.
func (s *JitState) PredictReturn(hash uint64) (Entry, bool) {
	for n := 1; n <= RSBSize; n++ {
		i := (s.RSBPtr - n + RSBSize) % RSBSize
		if s.RSBLocations[i] != hash {
			continue
		}
		if s.RSBCodeRefs[i] == InvalidEntry {
			return InvalidEntry, false
		}
		return s.RSBCodeRefs[i], true
	}
	return InvalidEntry, false
}

// RSBEmpty reports whether no entry of the return stack buffer is in use.
func (s *JitState) RSBEmpty() bool {
	for _, h := range s.RSBLocations {
		if h != rsbEmpty {
			return false
		}
	}
	return true
}
