package accessor

import (
	"strconv"
	"sync"

	"github.com/wippyai/wasm-bridge/errors"
)

// Kind is the representation an accessor reads and writes.
type Kind uint8

const (
	KindBool Kind = iota
	KindInt
	KindUint
	KindFloat
	KindBytes
)

var kindNames = [...]string{
	KindBool:  "Bool",
	KindInt:   "Int",
	KindUint:  "Uint",
	KindFloat: "Float",
	KindBytes: "Bytes",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Direction selects the getter or the setter of a field.
type Direction uint8

const (
	Get Direction = iota
	Set
)

func (d Direction) String() string {
	if d == Set {
		return "set"
	}
	return "get"
}

// Field describes one primitive member: its kind, its width in bits, its bit
// offset relative to the start of the containing structure and, when the
// member occupies a fixed number of bytes, that byte size.
type Field struct {
	Kind      Kind
	BitSize   int
	BitOffset int
	ByteSize  int
}

// GetFunc reads the field from b. byteOffset is BitOffset/8 relative to the
// start of the structure in b. Values are bool, int64, uint64, float64,
// *big.Int or []byte depending on the field.
type GetFunc func(b []byte, byteOffset int, little bool) any

// SetFunc writes value into b at byteOffset.
type SetFunc func(b []byte, byteOffset int, value any, little bool) error

type pair struct {
	get GetFunc
	set SetFunc
}

// handler builds the accessor pair for a field or reports that it does not apply.
type handler func(f Field) (pair, bool, error)

// chain is tried in order; the first handler that applies wins. The unaligned
// handler strips the bit offset and resolves the remainder through the chain again.
var chain []handler

func init() {
	chain = []handler{
		unalignedHandler,
		jumboHandler,
		boolHandler,
		intHandler,
		float16Handler,
		float32Handler,
		float64Handler,
		float80Handler,
		float128Handler,
		bytesHandler,
	}
}

var cache sync.Map // string -> pair

// Name returns the accessor name, <get|set><Kind><BitWidth>[@<BitOffset>].
func Name(dir Direction, f Field) string {
	name := dir.String() + f.Kind.String() + strconv.Itoa(f.BitSize)
	if f.misaligned() {
		name += "@" + strconv.Itoa(f.BitOffset%8)
	}
	return name
}

// Getter returns the read accessor for f.
func Getter(f Field) (GetFunc, error) {
	p, err := resolve(f)
	if err != nil {
		return nil, err
	}
	return p.get, nil
}

// Setter returns the write accessor for f.
func Setter(f Field) (SetFunc, error) {
	p, err := resolve(f)
	if err != nil {
		return nil, err
	}
	return p.set, nil
}

func resolve(f Field) (pair, error) {
	if f.BitSize <= 0 {
		return pair{}, errors.Internal(errors.PhaseDefine, "field %s has no bits", Name(Get, f))
	}
	key := cacheKey(f)
	if cached, ok := cache.Load(key); ok {
		return cached.(pair), nil
	}
	for _, h := range chain {
		p, ok, err := h(f)
		if err != nil {
			return pair{}, err
		}
		if ok {
			cache.Store(key, p)
			return p, nil
		}
	}
	return pair{}, errors.Internal(errors.PhaseDefine, "no accessor handles %s", Name(Get, f))
}

func cacheKey(f Field) string {
	key := Name(Get, f)[3:]
	if f.ByteSize > 0 && f.ByteSize != f.natural() {
		key += "/" + strconv.Itoa(f.ByteSize)
	}
	return key
}

// misaligned reports whether the field cannot be addressed as whole bytes
// without disturbing neighbouring bits.
func (f Field) misaligned() bool {
	if f.Kind == KindBytes {
		return false
	}
	if f.BitOffset%8 != 0 {
		return true
	}
	return f.BitSize%8 != 0 && f.ByteSize == 0
}

// natural is the number of bytes the representation needs on its own.
func (f Field) natural() int {
	switch f.Kind {
	case KindBool:
		return 1
	case KindFloat:
		switch f.BitSize {
		case 80:
			return 10
		default:
			return (f.BitSize + 7) / 8
		}
	case KindInt, KindUint:
		if f.BitSize > 64 {
			return wordCount(f.BitSize) * 8
		}
		return (f.BitSize + 7) / 8
	default:
		return (f.BitSize + 7) / 8
	}
}

func (f Field) container() int {
	if f.ByteSize > 0 {
		return f.ByteSize
	}
	return f.natural()
}

func wordCount(bits int) int {
	return (bits + 63) / 64
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
