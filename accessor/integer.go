package accessor

import (
	"encoding/binary"
	"math/big"
	"strconv"

	"github.com/wippyai/wasm-bridge/errors"
)

func boolHandler(f Field) (pair, bool, error) {
	if f.Kind != KindBool {
		return pair{}, false, nil
	}
	size := f.container()
	get := func(b []byte, byteOffset int, little bool) any {
		for _, c := range b[byteOffset : byteOffset+size] {
			if c != 0 {
				return true
			}
		}
		return false
	}
	set := func(b []byte, byteOffset int, value any, little bool) error {
		on, err := toBool(value)
		if err != nil {
			return err
		}
		var v uint64
		if on {
			v = 1
		}
		writeUint(b[byteOffset:byteOffset+size], v, little)
		return nil
	}
	return pair{get: get, set: set}, true, nil
}

func toBool(value any) (bool, error) {
	if b, ok := value.(bool); ok {
		return b, nil
	}
	if IsNumber(value) {
		f, err := ToFloat64(value)
		if err != nil {
			return false, err
		}
		return f != 0, nil
	}
	return false, errors.TypeMismatch(errors.PhaseAccess, "", nil, value, "bool")
}

// intHandler covers signed and unsigned integers up to 64 bits held in a
// whole number of bytes. Values wider than BitSize inside the container are
// masked on read and sign extended on write.
func intHandler(f Field) (pair, bool, error) {
	if (f.Kind != KindInt && f.Kind != KindUint) || f.BitSize > 64 {
		return pair{}, false, nil
	}
	size := f.container()
	bits := f.BitSize
	mask := valueMask(bits)
	signed := f.Kind == KindInt

	get := func(b []byte, byteOffset int, little bool) any {
		raw := readUint(b[byteOffset:byteOffset+size], little) & mask
		if !signed {
			return raw
		}
		if bits < 64 && raw&(1<<(bits-1)) != 0 {
			raw |= ^mask
		}
		return int64(raw)
	}

	var set SetFunc
	if signed {
		lo, hi := signedRange(bits)
		set = func(b []byte, byteOffset int, value any, little bool) error {
			v, err := toSigned(value)
			if err != nil {
				if errors.KindOf(err) == errors.KindOverflow {
					return errors.Overflow(errors.PhaseAccess, value, typeName(f))
				}
				return err
			}
			if v < lo || v > hi {
				return errors.Overflow(errors.PhaseAccess, value, typeName(f))
			}
			writeUint(b[byteOffset:byteOffset+size], uint64(v), little)
			return nil
		}
	} else {
		set = func(b []byte, byteOffset int, value any, little bool) error {
			v, err := ToUint64(value)
			if err != nil {
				if errors.KindOf(err) == errors.KindOverflow {
					return errors.Overflow(errors.PhaseAccess, value, typeName(f))
				}
				return err
			}
			if v&^mask != 0 {
				return errors.Overflow(errors.PhaseAccess, value, typeName(f))
			}
			writeUint(b[byteOffset:byteOffset+size], v, little)
			return nil
		}
	}
	return pair{get: get, set: set}, true, nil
}

// toSigned is ToInt64 that also accepts a bool, which the foreign side
// stores as 0 or 1 in integer-backed members.
func toSigned(value any) (int64, error) {
	if b, ok := value.(bool); ok {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	return ToInt64(value)
}

// jumboHandler covers integers wider than 64 bits. The value is composed of
// 64-bit words whose order follows the requested endianness.
func jumboHandler(f Field) (pair, bool, error) {
	if (f.Kind != KindInt && f.Kind != KindUint) || f.BitSize <= 64 {
		return pair{}, false, nil
	}
	bits := f.BitSize
	words := wordCount(bits)
	if f.container() < words*8 {
		return pair{}, false, errors.Internal(errors.PhaseDefine, "%s needs %d bytes, has %d", Name(Get, f), words*8, f.container())
	}
	signed := f.Kind == KindInt
	valueMod := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	fullMod := new(big.Int).Lsh(big.NewInt(1), uint(words*64))
	signBit := new(big.Int).Lsh(big.NewInt(1), uint(bits-1))
	var lo, hi *big.Int
	if signed {
		lo = new(big.Int).Neg(signBit)
		hi = new(big.Int).Sub(signBit, big.NewInt(1))
	} else {
		lo = new(big.Int)
		hi = new(big.Int).Sub(valueMod, big.NewInt(1))
	}

	get := func(b []byte, byteOffset int, little bool) any {
		v := new(big.Int)
		w := new(big.Int)
		for i := words - 1; i >= 0; i-- {
			v.Lsh(v, 64)
			v.Or(v, w.SetUint64(readWord(b, byteOffset, i, words, little)))
		}
		v.Mod(v, valueMod)
		if signed && v.Cmp(signBit) >= 0 {
			v.Sub(v, valueMod)
		}
		return v
	}
	set := func(b []byte, byteOffset int, value any, little bool) error {
		v, err := ToBigInt(value)
		if err != nil {
			return err
		}
		if v.Cmp(lo) < 0 || v.Cmp(hi) > 0 {
			return errors.Overflow(errors.PhaseAccess, value, typeName(f))
		}
		if v.Sign() < 0 {
			v.Add(v, fullMod)
		}
		word := new(big.Int)
		lowWord := new(big.Int).SetUint64(^uint64(0))
		for i := 0; i < words; i++ {
			word.And(v, lowWord)
			writeWord(b, byteOffset, i, words, little, word.Uint64())
			v.Rsh(v, 64)
		}
		return nil
	}
	return pair{get: get, set: set}, true, nil
}

// bytesHandler passes raw bytes through unchanged.
func bytesHandler(f Field) (pair, bool, error) {
	if f.Kind != KindBytes {
		return pair{}, false, nil
	}
	size := f.container()
	get := func(b []byte, byteOffset int, little bool) any {
		out := make([]byte, size)
		copy(out, b[byteOffset:byteOffset+size])
		return out
	}
	set := func(b []byte, byteOffset int, value any, little bool) error {
		var src []byte
		switch v := value.(type) {
		case []byte:
			src = v
		case string:
			src = []byte(v)
		default:
			return errors.TypeMismatch(errors.PhaseAccess, "", nil, value, "bytes")
		}
		if len(src) != size {
			return errors.New(errors.PhaseAccess, errors.KindWrongLength).
				Value(len(src)).
				Detail("expected %d bytes, received %d", size, len(src)).
				Build()
		}
		copy(b[byteOffset:byteOffset+size], src)
		return nil
	}
	return pair{get: get, set: set}, true, nil
}

func readWord(b []byte, base, i, words int, little bool) uint64 {
	if little {
		return binary.LittleEndian.Uint64(b[base+i*8:])
	}
	return binary.BigEndian.Uint64(b[base+(words-1-i)*8:])
}

func writeWord(b []byte, base, i, words int, little bool, v uint64) {
	if little {
		binary.LittleEndian.PutUint64(b[base+i*8:], v)
		return
	}
	binary.BigEndian.PutUint64(b[base+(words-1-i)*8:], v)
}

// readUint reads an unsigned integer filling all of b. Containers wider than
// eight bytes keep the value at their least significant end.
func readUint(b []byte, little bool) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		if little {
			return uint64(binary.LittleEndian.Uint16(b))
		}
		return uint64(binary.BigEndian.Uint16(b))
	case 4:
		if little {
			return uint64(binary.LittleEndian.Uint32(b))
		}
		return uint64(binary.BigEndian.Uint32(b))
	case 8:
		if little {
			return binary.LittleEndian.Uint64(b)
		}
		return binary.BigEndian.Uint64(b)
	}
	if len(b) > 8 {
		if little {
			return binary.LittleEndian.Uint64(b)
		}
		return binary.BigEndian.Uint64(b[len(b)-8:])
	}
	var v uint64
	for i := range b {
		if little {
			v |= uint64(b[i]) << (8 * i)
		} else {
			v = v<<8 | uint64(b[i])
		}
	}
	return v
}

// writeUint writes v into all of b, truncating or zero filling as needed.
func writeUint(b []byte, v uint64, little bool) {
	switch len(b) {
	case 1:
		b[0] = byte(v)
		return
	case 2:
		if little {
			binary.LittleEndian.PutUint16(b, uint16(v))
		} else {
			binary.BigEndian.PutUint16(b, uint16(v))
		}
		return
	case 4:
		if little {
			binary.LittleEndian.PutUint32(b, uint32(v))
		} else {
			binary.BigEndian.PutUint32(b, uint32(v))
		}
		return
	case 8:
		if little {
			binary.LittleEndian.PutUint64(b, v)
		} else {
			binary.BigEndian.PutUint64(b, v)
		}
		return
	}
	n := len(b)
	for i := 0; i < n; i++ {
		var c byte
		if i < 8 {
			c = byte(v >> (8 * i))
		}
		if little {
			b[i] = c
		} else {
			b[n-1-i] = c
		}
	}
}

func valueMask(bits int) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return 1<<uint(bits) - 1
}

func signedRange(bits int) (int64, int64) {
	if bits >= 64 {
		return -1 << 63, 1<<63 - 1
	}
	return -1 << uint(bits-1), 1<<uint(bits-1) - 1
}

func typeName(f Field) string {
	switch f.Kind {
	case KindInt:
		return "i" + strconv.Itoa(f.BitSize)
	case KindUint:
		return "u" + strconv.Itoa(f.BitSize)
	case KindFloat:
		return "f" + strconv.Itoa(f.BitSize)
	}
	return f.Kind.String()
}
