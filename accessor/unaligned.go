package accessor

// unalignedHandler serves fields that start or end inside a byte. The bits
// are shifted into a scratch buffer sized to the next power of two, decoded
// by the byte-aligned accessor of the same kind and width, and shifted back
// on write with the neighbouring bits of shared bytes preserved.
func unalignedHandler(f Field) (pair, bool, error) {
	if !f.misaligned() {
		return pair{}, false, nil
	}
	shift := f.BitOffset % 8
	bits := f.BitSize
	size := nextPow2((bits + 7) / 8)
	inner, err := resolve(Field{Kind: f.Kind, BitSize: bits, ByteSize: size})
	if err != nil {
		return pair{}, false, err
	}
	span := (shift + bits + 7) / 8

	get := func(b []byte, byteOffset int, little bool) any {
		scratch := make([]byte, size)
		extractBits(scratch, b[byteOffset:byteOffset+span], shift, bits)
		return inner.get(scratch, 0, true)
	}
	set := func(b []byte, byteOffset int, value any, little bool) error {
		scratch := make([]byte, size)
		if err := inner.set(scratch, 0, value, true); err != nil {
			return err
		}
		insertBits(b[byteOffset:byteOffset+span], scratch, shift, bits)
		return nil
	}
	return pair{get: get, set: set}, true, nil
}

// extractBits copies bits starting at bit shift of src into dst starting at bit 0.
func extractBits(dst, src []byte, shift, bits int) {
	n := (bits + 7) / 8
	for i := 0; i < n; i++ {
		v := src[i] >> shift
		if shift != 0 && i+1 < len(src) {
			v |= src[i+1] << (8 - shift)
		}
		dst[i] = v
	}
	if rem := bits % 8; rem != 0 {
		dst[n-1] &= lowMask(rem)
	}
}

// insertBits writes the low bits of src into dst starting at bit shift,
// leaving every other bit of dst untouched.
func insertBits(dst, src []byte, shift, bits int) {
	for i := 0; i < bits; {
		pos := shift + i
		di, db := pos/8, pos%8
		chunk := 8 - db
		if rem := bits - i; rem < chunk {
			chunk = rem
		}
		v := readBits(src, i, chunk)
		mask := lowMask(chunk) << db
		dst[di] = dst[di]&^mask | (v<<db)&mask
		i += chunk
	}
}

func readBits(src []byte, start, n int) byte {
	si, sb := start/8, start%8
	v := uint16(src[si])
	if si+1 < len(src) {
		v |= uint16(src[si+1]) << 8
	}
	return byte(v>>sb) & lowMask(n)
}

func lowMask(n int) byte {
	return byte(uint16(1)<<uint(n) - 1)
}
