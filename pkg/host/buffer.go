package host

import "fmt"

// Entry is the offset of a block's first host instruction in the code buffer.
type Entry uint32

// InvalidEntry never names emitted code.
const InvalidEntry Entry = 0xFFFFFFFF

func (e Entry) String() string {
	return fmt.Sprintf("0x%08x", uint32(e))
}

// BlockDescriptor locates an emitted block in the code buffer.
type BlockDescriptor struct {
	Entry Entry
	Size  int
}

// CodeBuffer is a fixed-capacity arena holding emitted host code. It never
// grows or moves, so an Entry stays valid until the buffer is cleared.
type CodeBuffer struct {
	code []byte
}

// NewCodeBuffer allocates a buffer that can hold capacity bytes of code.
func NewCodeBuffer(capacity int) *CodeBuffer {
	return &CodeBuffer{code: make([]byte, 0, capacity)}
}

// Capacity returns the total size of the buffer.
func (b *CodeBuffer) Capacity() int { return cap(b.code) }

// Used returns the number of bytes holding emitted code.
func (b *CodeBuffer) Used() int { return len(b.code) }

// SpaceRemaining returns the number of bytes still free.
func (b *CodeBuffer) SpaceRemaining() int { return cap(b.code) - len(b.code) }

// Commit copies code into the buffer and returns where it starts. It
// panics rather than grow the buffer: callers keep enough space free.
func (b *CodeBuffer) Commit(code []byte) Entry {
	if len(code) > b.SpaceRemaining() {
		panic(fmt.Sprintf("host: code buffer exhausted: need %d bytes, %d remaining", len(code), b.SpaceRemaining()))
	}
	entry := Entry(len(b.code))
	b.code = append(b.code, code...)
	return entry
}

// Code returns the bytes of an emitted block. The slice aliases the buffer.
func (b *CodeBuffer) Code(d BlockDescriptor) []byte {
	start := int(d.Entry)
	end := start + d.Size
	if d.Entry == InvalidEntry || end > len(b.code) {
		panic(fmt.Sprintf("host: block %s+%d outside emitted code (%d bytes)", d.Entry, d.Size, len(b.code)))
	}
	return b.code[start:end:end]
}

// from returns the emitted code starting at e.
func (b *CodeBuffer) from(e Entry) []byte {
	if int(e) >= len(b.code) {
		panic(fmt.Sprintf("host: entry %s outside emitted code (%d bytes)", e, len(b.code)))
	}
	return b.code[e:]
}

// ClearCache discards all emitted code.
func (b *CodeBuffer) ClearCache() {
	b.code = b.code[:0]
}
