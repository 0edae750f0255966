package accessor

import (
	"encoding/binary"
	"math"
	"math/bits"
)

func float16Handler(f Field) (pair, bool, error) {
	if f.Kind != KindFloat || f.BitSize != 16 {
		return pair{}, false, nil
	}
	return floatPair(f, 2, func(b []byte, little bool) float64 {
		return decodeFloat16(uint16(readUint(b, little)))
	}, func(b []byte, v float64, little bool) {
		writeUint(b, uint64(encodeFloat16(v)), little)
	}), true, nil
}

func float32Handler(f Field) (pair, bool, error) {
	if f.Kind != KindFloat || f.BitSize != 32 {
		return pair{}, false, nil
	}
	return floatPair(f, 4, func(b []byte, little bool) float64 {
		return float64(math.Float32frombits(uint32(readUint(b, little))))
	}, func(b []byte, v float64, little bool) {
		writeUint(b, uint64(math.Float32bits(float32(v))), little)
	}), true, nil
}

func float64Handler(f Field) (pair, bool, error) {
	if f.Kind != KindFloat || f.BitSize != 64 {
		return pair{}, false, nil
	}
	return floatPair(f, 8, func(b []byte, little bool) float64 {
		return math.Float64frombits(readUint(b, little))
	}, func(b []byte, v float64, little bool) {
		writeUint(b, math.Float64bits(v), little)
	}), true, nil
}

func float80Handler(f Field) (pair, bool, error) {
	if f.Kind != KindFloat || f.BitSize != 80 {
		return pair{}, false, nil
	}
	return floatPair(f, 10, func(b []byte, little bool) float64 {
		if little {
			return decodeFloat80(binary.LittleEndian.Uint64(b), binary.LittleEndian.Uint16(b[8:]))
		}
		return decodeFloat80(binary.BigEndian.Uint64(b[2:]), binary.BigEndian.Uint16(b))
	}, func(b []byte, v float64, little bool) {
		mant, se := encodeFloat80(v)
		if little {
			binary.LittleEndian.PutUint64(b, mant)
			binary.LittleEndian.PutUint16(b[8:], se)
			return
		}
		binary.BigEndian.PutUint16(b, se)
		binary.BigEndian.PutUint64(b[2:], mant)
	}), true, nil
}

func float128Handler(f Field) (pair, bool, error) {
	if f.Kind != KindFloat || f.BitSize != 128 {
		return pair{}, false, nil
	}
	return floatPair(f, 16, func(b []byte, little bool) float64 {
		if little {
			return decodeFloat128(binary.LittleEndian.Uint64(b[8:]), binary.LittleEndian.Uint64(b))
		}
		return decodeFloat128(binary.BigEndian.Uint64(b), binary.BigEndian.Uint64(b[8:]))
	}, func(b []byte, v float64, little bool) {
		hi, lo := encodeFloat128(v)
		if little {
			binary.LittleEndian.PutUint64(b, lo)
			binary.LittleEndian.PutUint64(b[8:], hi)
			return
		}
		binary.BigEndian.PutUint64(b, hi)
		binary.BigEndian.PutUint64(b[8:], lo)
	}), true, nil
}

// floatPair adapts a fixed-width codec to a container that may be wider than
// the encoding. The encoding sits at the least significant end of the
// container and the padding is zeroed on write.
func floatPair(f Field, width int, decode func([]byte, bool) float64, encode func([]byte, float64, bool)) pair {
	size := f.container()
	if size < width {
		size = width
	}
	window := func(b []byte, byteOffset int, little bool) []byte {
		if little {
			return b[byteOffset : byteOffset+width]
		}
		return b[byteOffset+size-width : byteOffset+size]
	}
	get := func(b []byte, byteOffset int, little bool) any {
		return decode(window(b, byteOffset, little), little)
	}
	set := func(b []byte, byteOffset int, value any, little bool) error {
		v, err := ToFloat64(value)
		if err != nil {
			return err
		}
		if size > width {
			clear(b[byteOffset : byteOffset+size])
		}
		encode(window(b, byteOffset, little), v, little)
		return nil
	}
	return pair{get: get, set: set}
}

// IEEE binary16: 1 sign bit, 5 exponent bits (bias 15), 10 fraction bits.
func decodeFloat16(h uint16) float64 {
	neg := h&0x8000 != 0
	exp := int(h>>10) & 0x1f
	frac := uint64(h & 0x3ff)
	var v float64
	switch exp {
	case 0:
		if frac == 0 {
			v = 0
		} else {
			v = math.Ldexp(float64(frac), -24)
		}
	case 0x1f:
		if frac != 0 {
			return math.NaN()
		}
		v = math.Inf(1)
	default:
		v = math.Ldexp(float64(frac|0x400), exp-25)
	}
	if neg {
		v = math.Copysign(v, -1)
	}
	return v
}

func encodeFloat16(v float64) uint16 {
	if math.IsNaN(v) {
		return 0x7e00
	}
	var sign uint16
	if math.Signbit(v) {
		sign = 0x8000
	}
	a := math.Abs(v)
	switch {
	case math.IsInf(a, 0):
		return sign | 0x7c00
	case a == 0:
		return sign
	}
	frac, exp := math.Frexp(a)
	e := exp - 1
	if e < -14 {
		m := math.RoundToEven(math.Ldexp(a, 24))
		return sign | uint16(m)
	}
	if e > 15 {
		return sign | 0x7c00
	}
	m := int(math.RoundToEven(math.Ldexp(frac, 11)))
	// A mantissa that rounds up to 2048 carries into the exponent.
	h := (e+15)<<10 + (m - 1024)
	if h >= 0x7c00 {
		return sign | 0x7c00
	}
	return sign | uint16(h)
}

// x87 extended precision: explicit integer bit in a 64-bit mantissa,
// 15 exponent bits (bias 16383) and the sign in the top bit of se.
func decodeFloat80(mant uint64, se uint16) float64 {
	neg := se&0x8000 != 0
	exp := int(se & 0x7fff)
	var v float64
	switch exp {
	case 0:
		if mant == 0 {
			v = 0
		} else {
			v = math.Ldexp(float64(mant), -16382-63)
		}
	case 0x7fff:
		if mant<<1 != 0 {
			return math.NaN()
		}
		v = math.Inf(1)
	default:
		v = math.Ldexp(float64(mant), exp-16383-63)
	}
	if neg {
		v = math.Copysign(v, -1)
	}
	return v
}

func encodeFloat80(v float64) (uint64, uint16) {
	if math.IsNaN(v) {
		return 0xC000000000000000, 0x7fff
	}
	var sign uint16
	if math.Signbit(v) {
		sign = 0x8000
	}
	a := math.Abs(v)
	switch {
	case math.IsInf(a, 0):
		return 1 << 63, sign | 0x7fff
	case a == 0:
		return 0, sign
	}
	frac, exp := math.Frexp(a)
	mant := uint64(math.Ldexp(frac, 64))
	// Every float64, subnormals included, is a normal f80.
	return mant, sign | uint16(exp-1+16383)
}

// IEEE binary128: 1 sign bit, 15 exponent bits (bias 16383), 112 fraction
// bits of which the top 48 live in hi.
func decodeFloat128(hi, lo uint64) float64 {
	neg := hi>>63 != 0
	exp := int(hi>>48) & 0x7fff
	fhi := hi & (1<<48 - 1)
	var v float64
	switch exp {
	case 0:
		if fhi == 0 && lo == 0 {
			v = 0
		} else {
			m := math.Ldexp(float64(fhi), -48) + math.Ldexp(float64(lo), -112)
			v = math.Ldexp(m, -16382)
		}
	case 0x7fff:
		if fhi|lo != 0 {
			return math.NaN()
		}
		v = math.Inf(1)
	default:
		m := math.Ldexp(float64(fhi|1<<48), -48) + math.Ldexp(float64(lo), -112)
		v = math.Ldexp(m, exp-16383)
	}
	if neg {
		v = math.Copysign(v, -1)
	}
	return v
}

func encodeFloat128(v float64) (hi, lo uint64) {
	b := math.Float64bits(v)
	sign := b >> 63 << 63
	exp := int(b>>52) & 0x7ff
	frac := b & (1<<52 - 1)
	switch {
	case exp == 0x7ff && frac != 0:
		return 0x7fff<<48 | 1<<47, 0
	case exp == 0x7ff:
		return sign | 0x7fff<<48, 0
	case exp == 0 && frac == 0:
		return sign, 0
	}
	var biased uint64
	if exp == 0 {
		shift := 53 - bits.Len64(frac)
		frac = frac << uint(shift) & (1<<52 - 1)
		biased = uint64(16383 - 1022 - shift)
	} else {
		biased = uint64(exp - 1023 + 16383)
	}
	return sign | biased<<48 | frac>>4, frac << 60
}
