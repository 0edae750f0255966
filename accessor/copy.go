package accessor

import "encoding/binary"

// CopyFunc copies size bytes from src to dst. Both must hold at least size bytes.
type CopyFunc func(dst, src []byte)

// ResetFunc zeroes size bytes of dst.
type ResetFunc func(dst []byte)

// IsSpecialized reports whether Copier and Resetter have a fixed-width
// implementation for size. Every other size goes through the byte loop.
func IsSpecialized(size int) bool {
	switch size {
	case 1, 2, 4, 8, 16:
		return true
	}
	return false
}

// Copier returns the copy routine for blocks of size bytes.
func Copier(size int) CopyFunc {
	switch size {
	case 0:
		return func(dst, src []byte) {}
	case 1:
		return func(dst, src []byte) { dst[0] = src[0] }
	case 2:
		return func(dst, src []byte) {
			binary.LittleEndian.PutUint16(dst, binary.LittleEndian.Uint16(src))
		}
	case 4:
		return func(dst, src []byte) {
			binary.LittleEndian.PutUint32(dst, binary.LittleEndian.Uint32(src))
		}
	case 8:
		return func(dst, src []byte) {
			binary.LittleEndian.PutUint64(dst, binary.LittleEndian.Uint64(src))
		}
	case 16:
		return func(dst, src []byte) {
			lo := binary.LittleEndian.Uint64(src)
			hi := binary.LittleEndian.Uint64(src[8:])
			binary.LittleEndian.PutUint64(dst, lo)
			binary.LittleEndian.PutUint64(dst[8:], hi)
		}
	}
	return genericCopier(size)
}

// genericCopier handles overlapping ranges the way copy does.
func genericCopier(size int) CopyFunc {
	return func(dst, src []byte) {
		copy(dst[:size], src[:size])
	}
}

// Resetter returns the zeroing routine for blocks of size bytes.
func Resetter(size int) ResetFunc {
	switch size {
	case 0:
		return func(dst []byte) {}
	case 1:
		return func(dst []byte) { dst[0] = 0 }
	case 2:
		return func(dst []byte) { binary.LittleEndian.PutUint16(dst, 0) }
	case 4:
		return func(dst []byte) { binary.LittleEndian.PutUint32(dst, 0) }
	case 8:
		return func(dst []byte) { binary.LittleEndian.PutUint64(dst, 0) }
	case 16:
		return func(dst []byte) {
			binary.LittleEndian.PutUint64(dst, 0)
			binary.LittleEndian.PutUint64(dst[8:], 0)
		}
	}
	return genericResetter(size)
}

func genericResetter(size int) ResetFunc {
	return func(dst []byte) {
		clear(dst[:size])
	}
}
