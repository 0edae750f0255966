package wasmbridge

// Memory is the foreign module's linear memory.
// Read returns a slice aliasing the memory, valid until the memory grows.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	Size() uint32
}

// Allocator allocates memory in the foreign module's linear memory.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}
