package vm

import "math/big"

// Memory is the byte-addressed scratch memory of a call frame. It starts
// empty and grows in 32-byte words; expansion cost is charged by the
// interpreter before Resize is called.
type Memory struct {
	store []byte
}

// NewMemory returns a new empty memory.
func NewMemory() *Memory {
	return &Memory{}
}

// Set copies value into memory at the given offset. The region must have
// been sized by a prior Resize.
func (m *Memory) Set(offset, size uint64, value []byte) {
	if size == 0 {
		return
	}
	if offset+size > uint64(len(m.store)) {
		panic("vm: memory write out of bounds")
	}
	copy(m.store[offset:offset+size], value)
}

// Set32 writes val as a 32-byte big-endian word at offset.
func (m *Memory) Set32(offset uint64, val *big.Int) {
	if offset+32 > uint64(len(m.store)) {
		panic("vm: memory write out of bounds")
	}
	for i := uint64(0); i < 32; i++ {
		m.store[offset+i] = 0
	}
	b := val.Bytes()
	copy(m.store[offset+32-uint64(len(b)):offset+32], b)
}

// Resize grows memory to at least size bytes.
func (m *Memory) Resize(size uint64) {
	if uint64(len(m.store)) < size {
		m.store = append(m.store, make([]byte, size-uint64(len(m.store)))...)
	}
}

// Get returns a copy of memory at [offset, offset+size). Reads past the
// current length are zero-filled.
func (m *Memory) Get(offset, size uint64) []byte {
	if size == 0 {
		return nil
	}
	out := make([]byte, size)
	if offset < uint64(len(m.store)) {
		copy(out, m.store[offset:])
	}
	return out
}

// GetPtr returns a direct reference to memory at [offset, offset+size).
func (m *Memory) GetPtr(offset, size uint64) []byte {
	if size == 0 {
		return nil
	}
	return m.store[offset : offset+size]
}

// Len returns the current memory length in bytes.
func (m *Memory) Len() int {
	return len(m.store)
}

// Data returns the full backing slice.
func (m *Memory) Data() []byte {
	return m.store
}
