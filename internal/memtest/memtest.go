// Package memtest provides in-process stand-ins for a module's linear memory
// and allocator, used by package tests.
package memtest

import (
	"fmt"
)

// Memory is a byte slice posing as linear memory.
type Memory struct {
	Data []byte
}

// NewMemory creates a memory of size bytes.
func NewMemory(size int) *Memory {
	return &Memory{Data: make([]byte, size)}
}

func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(m.Data)) {
		return nil, fmt.Errorf("memory read out of bounds: offset=%d, length=%d", offset, length)
	}
	return m.Data[offset:end:end], nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	if uint64(offset)+uint64(len(data)) > uint64(len(m.Data)) {
		return fmt.Errorf("memory write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	copy(m.Data[offset:], data)
	return nil
}

func (m *Memory) Size() uint32 {
	return uint32(len(m.Data))
}

// Block is one live allocation.
type Block struct {
	Ptr, Size, Align uint32
}

// Allocator is a bump allocator that records live blocks.
type Allocator struct {
	Live   map[uint32]Block
	Freed  []Block
	mem    *Memory
	offset uint32
}

// NewAllocator allocates from mem starting at 1024 so addresses are never small.
func NewAllocator(mem *Memory) *Allocator {
	return &Allocator{mem: mem, offset: 1024, Live: make(map[uint32]Block)}
}

func (a *Allocator) Alloc(size, align uint32) (uint32, error) {
	if align == 0 {
		align = 1
	}
	ptr := (a.offset + align - 1) &^ (align - 1)
	if uint64(ptr)+uint64(size) > uint64(len(a.mem.Data)) {
		return 0, fmt.Errorf("out of memory: %d bytes", size)
	}
	a.offset = ptr + size
	a.Live[ptr] = Block{Ptr: ptr, Size: size, Align: align}
	return ptr, nil
}

func (a *Allocator) Free(ptr, size, align uint32) {
	if b, ok := a.Live[ptr]; ok {
		delete(a.Live, ptr)
		a.Freed = append(a.Freed, b)
	}
}
