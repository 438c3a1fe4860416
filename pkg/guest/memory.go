package guest

import (
	"encoding/binary"
	"fmt"
)

// Memory is the guest address space as seen by the translator and by
// running code. Implementations are called while guest code runs and must
// not inspect or modify guest registers.
type Memory interface {
	// ReadCode fetches the instruction word at addr.
	ReadCode(addr uint32) uint32
	// Read32 loads a data word.
	Read32(addr uint32) uint32
	// Write32 stores a data word.
	Write32(addr uint32, value uint32)
	// IsReadOnlyMemory reports whether the word at addr can never change,
	// which allows loads from it to be folded at translation time.
	IsReadOnlyMemory(addr uint32) bool
}

// FlatMemory is a little-endian byte array mapped at Base. Reads outside
// the array return zero and writes outside it are dropped.
type FlatMemory struct {
	Base uint32
	Data []byte

	// ReadOnly lists address ranges (closed) whose contents never change.
	ReadOnly [][2]uint32

	// OnWrite, if set, is called after every in-range store. Callers use
	// it to invalidate translated code that covers the written word.
	OnWrite func(addr uint32, value uint32)
}

// NewFlatMemory allocates size bytes of zeroed memory at base.
func NewFlatMemory(base uint32, size int) *FlatMemory {
	return &FlatMemory{Base: base, Data: make([]byte, size)}
}

func (m *FlatMemory) offset(addr uint32) (int, bool) {
	if addr < m.Base {
		return 0, false
	}
	off := uint64(addr - m.Base)
	if off+4 > uint64(len(m.Data)) {
		return 0, false
	}
	return int(off), true
}

// ReadCode implements Memory.
func (m *FlatMemory) ReadCode(addr uint32) uint32 {
	return m.Read32(addr)
}

// Read32 implements Memory.
func (m *FlatMemory) Read32(addr uint32) uint32 {
	off, ok := m.offset(addr)
	if !ok {
		return 0
	}
	return binary.LittleEndian.Uint32(m.Data[off:])
}

// Write32 implements Memory.
func (m *FlatMemory) Write32(addr uint32, value uint32) {
	off, ok := m.offset(addr)
	if !ok {
		return
	}
	binary.LittleEndian.PutUint32(m.Data[off:], value)
	if m.OnWrite != nil {
		m.OnWrite(addr, value)
	}
}

// IsReadOnlyMemory implements Memory.
func (m *FlatMemory) IsReadOnlyMemory(addr uint32) bool {
	for _, r := range m.ReadOnly {
		if addr >= r[0] && addr <= r[1] {
			return true
		}
	}
	return false
}

// Load copies words into memory starting at addr without triggering OnWrite.
func (m *FlatMemory) Load(addr uint32, words ...uint32) error {
	for i, w := range words {
		a := addr + uint32(i)*4
		off, ok := m.offset(a)
		if !ok {
			return fmt.Errorf("guest: address %#08x outside memory [%#08x,%#08x)", a, m.Base, m.Base+uint32(len(m.Data)))
		}
		binary.LittleEndian.PutUint32(m.Data[off:], w)
	}
	return nil
}
