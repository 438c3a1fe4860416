package ir

import "fmt"

// Mode bits that take part in a Location. Other CPSR and FPSCR bits do
// not change how guest code is translated and are masked off.
const (
	CPSRTBit      uint32 = 1 << 5
	CPSREBit      uint32 = 1 << 9
	CPSRModeMask         = CPSRTBit | CPSREBit
	FPSCRModeMask uint32 = 0x07F79F00
)

// Location identifies a translatable entry point: a guest PC together with
// the processor mode bits that affect how the code at that PC decodes.
//
// Location is comparable and is used directly as a map key.
type Location struct {
	pc    uint32
	cpsr  uint32
	fpscr uint32
}

// NewLocation builds a Location, keeping only the mode bits of cpsr and fpscr.
func NewLocation(pc, cpsr, fpscr uint32) Location {
	return Location{
		pc:    pc,
		cpsr:  cpsr & CPSRModeMask,
		fpscr: fpscr & FPSCRModeMask,
	}
}

// PC returns the guest address.
func (l Location) PC() uint32 { return l.pc }

// CPSR returns the retained CPSR mode bits.
func (l Location) CPSR() uint32 { return l.cpsr }

// FPSCR returns the retained FPSCR mode bits.
func (l Location) FPSCR() uint32 { return l.fpscr }

// TFlag reports whether the Thumb bit is set.
func (l Location) TFlag() bool { return l.cpsr&CPSRTBit != 0 }

// EFlag reports whether the big-endian data bit is set.
func (l Location) EFlag() bool { return l.cpsr&CPSREBit != 0 }

// WithPC returns a copy of l at a different address.
func (l Location) WithPC(pc uint32) Location {
	l.pc = pc
	return l
}

// Advance returns a copy of l moved forward by n bytes.
func (l Location) Advance(n int32) Location {
	l.pc = uint32(int32(l.pc) + n)
	return l
}

// UniqueHash packs the Location into 64 bits. Distinct Locations always
// hash to distinct values.
//
//	bits  0-31  pc
//	bits 32-50  fpscr mode bits 8-26
//	bit  56     T
//	bit  57     E
func (l Location) UniqueHash() uint64 {
	h := uint64(l.pc)
	h |= uint64(l.fpscr>>8) << 32
	if l.TFlag() {
		h |= 1 << 56
	}
	if l.EFlag() {
		h |= 1 << 57
	}
	return h
}

// LocationFromHash inverts UniqueHash.
func LocationFromHash(h uint64) Location {
	l := Location{
		pc:    uint32(h),
		fpscr: uint32(h>>32&0x7FFFF) << 8 & FPSCRModeMask,
	}
	if h&(1<<56) != 0 {
		l.cpsr |= CPSRTBit
	}
	if h&(1<<57) != 0 {
		l.cpsr |= CPSREBit
	}
	return l
}

func (l Location) String() string {
	mode := "A"
	if l.TFlag() {
		mode = "T"
	}
	if l.EFlag() {
		mode += "E"
	}
	return fmt.Sprintf("{%08x,%s,%08x}", l.pc, mode, l.fpscr)
}
