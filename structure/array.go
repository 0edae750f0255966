package structure

import (
	"encoding/base64"
	"math"
	"reflect"
	"strconv"
	"unicode/utf8"

	"fortio.org/safecast"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"github.com/wippyai/wasm-bridge/accessor"
	"github.com/wippyai/wasm-bridge/errors"
)

// elementAccess reads and writes the elements of arrays, slices and vectors.
// Bit-packed vector elements need one accessor per bit phase.
type elementAccess struct {
	m          *Member
	get        [8]accessor.GetFunc
	set        [8]accessor.SetFunc
	strideBits int
}

func newElementAccess(s *Structure) (*elementAccess, error) {
	m := s.Element()
	e := &elementAccess{m: m, strideBits: s.elementSize() * 8}
	if s.Kind == KindVector && m.hasStorage() {
		e.strideBits = m.BitSize
	}
	if !m.hasStorage() {
		return e, nil
	}
	phases := 1
	if e.strideBits%8 != 0 {
		phases = 8
	}
	for k := 0; k < phases; k++ {
		f := m.field()
		f.BitOffset = k
		var err error
		if e.get[k], err = accessor.Getter(f); err != nil {
			return nil, err
		}
		if e.set[k], err = accessor.Setter(f); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *elementAccess) read(b []byte, i int, little bool) any {
	bit := i * e.strideBits
	return e.get[bit%8](b, bit/8, little)
}

func (e *elementAccess) write(b []byte, i int, v any, little bool) error {
	bit := i * e.strideBits
	return e.set[bit%8](b, bit/8, v, little)
}

func defineArray(r *Registry, s *Structure) (*behavior, error) {
	m := s.Element()
	if m == nil {
		return nil, shapeError(s, "%s without an element member", s.Kind)
	}
	if m.Type == MemberObject && m.Structure == nil {
		return nil, shapeError(s, "element has no structure")
	}
	if s.Flags.Has(FlagString) && !s.stringUnit() {
		return nil, shapeError(s, "string flag on elements of %d bits", m.BitSize)
	}
	elem, err := newElementAccess(s)
	if err != nil {
		return nil, err
	}
	s.elem = elem
	return &behavior{
		init: func(o *Object, v any) error {
			if ok, err := initCompatible(o, v); ok {
				return err
			}
			return o.initElements(v)
		},
		value: func(o *Object, seen map[*Object]bool) (any, error) {
			if s.Flags.Has(FlagString) {
				return o.Text()
			}
			n := o.Len()
			out := make([]any, n)
			for i := 0; i < n; i++ {
				v, err := o.elementValue(i, seen)
				if err != nil {
					return nil, annotate(err, s, itemPath(i))
				}
				out[i] = v
			}
			return out, nil
		},
		visit: func(o *Object, fn VisitFunc, opts VisitOptions, active bool) error {
			if m.Type != MemberObject || !m.Structure.HasPointer() {
				return nil
			}
			for i := 0; i < o.Len(); i++ {
				c := o.existingChild(i)
				if c == nil && !opts.IgnoreUncreated {
					var err error
					if c, err = o.elementChild(i); err != nil {
						return err
					}
				}
				if c == nil {
					continue
				}
				if err := visitChild(c, fn, opts, active); err != nil {
					return err
				}
			}
			return nil
		},
	}, nil
}

// stringUnit reports whether elements are 8 or 16 bit integers.
func (s *Structure) stringUnit() bool {
	m := s.Element()
	return (m.Type == MemberUint || m.Type == MemberInt) && (m.BitSize == 8 || m.BitSize == 16)
}

func (s *Structure) wide() bool { return s.Element().BitSize == 16 }

// sliceLength derives the element count of a new slice from its initializer.
func (s *Structure) sliceLength(init any) (int, error) {
	switch x := init.(type) {
	case nil:
		return 0, nil
	case *Object:
		if x.s == s {
			return x.Len(), nil
		}
	case string:
		if s.Flags.Has(FlagString) {
			b, err := s.encodeString(x)
			if err != nil {
				return 0, err
			}
			return len(b) / s.elementSize(), nil
		}
	case []byte:
		return s.countBytes(len(x))
	case map[string]any:
		b, err := s.specialBytes(x)
		if err != nil {
			return 0, err
		}
		if str, ok := x["string"].(string); ok && s.Flags.Has(FlagString) {
			return s.sliceLength(str)
		}
		return s.countBytes(len(b))
	}
	if accessor.IsNumber(init) {
		n, err := accessor.ToInt64(init)
		if err != nil {
			return 0, err
		}
		if n < 0 {
			return 0, errors.TypeMismatch(errors.PhaseInit, s.String(), nil, init, "non-negative length")
		}
		length, err := safecast.Conv[int](n)
		if err != nil {
			return 0, errors.Overflow(errors.PhaseInit, init, "int")
		}
		return length, nil
	}
	rv := reflect.ValueOf(init)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return rv.Len(), nil
	}
	return 0, errors.TypeMismatch(errors.PhaseInit, s.String(), nil, init, "slice, string or length")
}

func (s *Structure) countBytes(n int) (int, error) {
	size := s.elementSize()
	if size == 0 || n%size != 0 {
		return 0, errors.New(errors.PhaseInit, errors.KindWrongLength).
			Structure(s.String()).
			Value(n).
			Detail("%d bytes is not a multiple of the element size %d", n, size).
			Build()
	}
	n /= size
	if s.Flags.Has(FlagSentinel) && n > 0 {
		n--
	}
	return n, nil
}

// sliceBytes is the memory a slice of n elements needs, sentinel included.
// It must fit the module's 32-bit address space.
func (s *Structure) sliceBytes(n int) (int, error) {
	if s.Flags.Has(FlagSentinel) {
		n++
	}
	size := uint64(s.elementSize())
	count, err := safecast.Conv[uint64](n)
	if err != nil {
		return 0, errors.TypeMismatch(errors.PhaseInit, s.String(), nil, n, "non-negative length")
	}
	if size > 0 && count > math.MaxUint32/size {
		return 0, errors.New(errors.PhaseInit, errors.KindOverflow).
			Structure(s.String()).
			Value(n).
			Detail("%d elements of %d bytes exceed the 32-bit address space", n, size).
			Build()
	}
	return int(count * size), nil
}

func (o *Object) initElements(v any) error {
	s := o.s
	switch x := v.(type) {
	case nil:
		if s.Kind != KindSlice && s.template != nil {
			return o.copyFrom(s.template)
		}
		o.clearPointers()
		if err := o.view.Reset(); err != nil {
			return err
		}
		return o.writeSentinel()
	case *Object:
		if x.s.arrayLike() && sameElement(x.s, s) {
			return o.copyElements(x)
		}
		return errors.TypeMismatch(errors.PhaseInit, s.String(), nil, v, s.String())
	case string:
		if !s.Flags.Has(FlagString) {
			return errors.TypeMismatch(errors.PhaseInit, s.String(), nil, v, "array values")
		}
		b, err := s.encodeString(x)
		if err != nil {
			return err
		}
		return o.initRaw(b)
	case []byte:
		return o.initRaw(x)
	case map[string]any:
		if str, ok := x["string"].(string); ok && s.Flags.Has(FlagString) {
			return o.initElements(str)
		}
		b, err := s.specialBytes(x)
		if err != nil {
			return err
		}
		return o.initRaw(b)
	}
	if accessor.IsNumber(v) && s.Kind == KindSlice {
		return o.writeSentinel()
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return errors.TypeMismatch(errors.PhaseInit, s.String(), nil, v, "array values")
	}
	if n := o.Len(); rv.Len() != n {
		return errors.WrongLength(s.String(), n, rv.Len())
	}
	for i := 0; i < rv.Len(); i++ {
		if err := o.SetAt(i, rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	return o.writeSentinel()
}

func sameElement(a, b *Structure) bool {
	ma, mb := a.Element(), b.Element()
	return ma.Type == mb.Type && ma.BitSize == mb.BitSize && ma.Structure == mb.Structure && a.elementSize() == b.elementSize()
}

// copyElements copies another array-like instance with the same element layout.
func (o *Object) copyElements(src *Object) error {
	if src.Len() != o.Len() {
		return errors.WrongLength(o.s.String(), o.Len(), src.Len())
	}
	if src.view.Len() == o.view.Len() {
		return o.copyFrom(src)
	}
	dst, err := o.view.Bytes()
	if err != nil {
		return err
	}
	b, err := src.view.Bytes()
	if err != nil {
		return err
	}
	copy(dst, b)
	return o.writeSentinel()
}

// initRaw copies bytes laid out exactly as the element memory.
func (o *Object) initRaw(b []byte) error {
	dst, err := o.view.Bytes()
	if err != nil {
		return err
	}
	payload := o.Len() * o.s.elementSize()
	if o.s.Kind == KindVector {
		payload = len(dst)
	}
	switch len(b) {
	case payload, len(dst):
	default:
		return errors.WrongLength(o.s.String(), payload, len(b))
	}
	o.clearPointers()
	copy(dst, b)
	if len(b) == payload {
		return o.writeSentinel()
	}
	return nil
}

func (o *Object) writeSentinel() error {
	sentinel, ok := o.s.sentinel()
	if !ok {
		return nil
	}
	dst, err := o.view.Bytes()
	if err != nil {
		return err
	}
	copy(dst[len(dst)-len(sentinel):], sentinel)
	return nil
}

// specialBytes decodes {"base64": ...}, {"bytes": ...} or {"string": ...}.
func (s *Structure) specialBytes(x map[string]any) ([]byte, error) {
	if len(x) != 1 {
		return nil, errors.TypeMismatch(errors.PhaseInit, s.String(), nil, x, "one of base64, bytes or string")
	}
	for key, v := range x {
		switch key {
		case "base64":
			str, ok := v.(string)
			if !ok {
				return nil, errors.TypeMismatch(errors.PhaseInit, s.String(), []string{key}, v, "string")
			}
			b, err := base64.StdEncoding.DecodeString(str)
			if err != nil {
				return nil, errors.Wrap(errors.PhaseInit, errors.KindInvalidInput, err, "base64 payload")
			}
			return b, nil
		case "bytes":
			b, ok := v.([]byte)
			if !ok {
				return nil, errors.TypeMismatch(errors.PhaseInit, s.String(), []string{key}, v, "[]byte")
			}
			return b, nil
		case "string":
			str, ok := v.(string)
			if !ok {
				return nil, errors.TypeMismatch(errors.PhaseInit, s.String(), []string{key}, v, "string")
			}
			return []byte(str), nil
		}
		return nil, errors.FieldUnknown(errors.PhaseInit, s.String(), key)
	}
	return nil, nil
}

func (s *Structure) utf16() encoding.Encoding {
	order := unicode.LittleEndian
	if !s.registry.little {
		order = unicode.BigEndian
	}
	return unicode.UTF16(order, unicode.IgnoreBOM)
}

// encodeString converts s to the element encoding: UTF-8 bytes for 8-bit
// elements, UTF-16 code units for 16-bit ones.
func (s *Structure) encodeString(str string) ([]byte, error) {
	if !s.wide() {
		return []byte(str), nil
	}
	if !utf8.ValidString(str) {
		return nil, errors.InvalidInput(errors.PhaseInit, "string is not valid UTF-8")
	}
	b, err := s.utf16().NewEncoder().Bytes([]byte(str))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseInit, errors.KindInvalidInput, err, "utf-16 encoding")
	}
	return b, nil
}

// Text decodes a string-like array or slice.
func (o *Object) Text() (string, error) {
	b, err := o.view.Bytes()
	if err != nil {
		return "", err
	}
	b = b[:o.Len()*o.s.elementSize()]
	if !o.s.wide() {
		return string(b), nil
	}
	out, err := o.s.utf16().NewDecoder().Bytes(b)
	if err != nil {
		return "", errors.Wrap(errors.PhaseAccess, errors.KindInvalidData, err, "utf-16 decoding")
	}
	return string(out), nil
}

// At returns element i: a Go value for primitive, enum and error-set
// elements, an *Object otherwise.
func (o *Object) At(i int) (any, error) {
	if err := o.checkIndex(i); err != nil {
		return nil, err
	}
	e := o.s.elem
	if e.m.Type != MemberObject {
		b, err := o.view.Bytes()
		if err != nil {
			return nil, err
		}
		return e.read(b, i, o.little()), nil
	}
	c, err := o.elementChild(i)
	if err != nil {
		return nil, err
	}
	if c.s.Kind.valueLike() {
		return c.Value()
	}
	return c, nil
}

// SetAt writes element i.
func (o *Object) SetAt(i int, v any) error {
	if o.readOnly {
		return errors.ReadOnly(o.s.String(), itemPath(i))
	}
	if err := o.checkIndex(i); err != nil {
		return err
	}
	e := o.s.elem
	if e.m.Type != MemberObject {
		b, err := o.view.Bytes()
		if err != nil {
			return err
		}
		return annotate(e.write(b, i, v, o.little()), o.s, itemPath(i))
	}
	c, err := o.elementChild(i)
	if err != nil {
		return err
	}
	return annotate(c.s.behavior.init(c, v), o.s, itemPath(i))
}

func (o *Object) elementValue(i int, seen map[*Object]bool) (any, error) {
	e := o.s.elem
	if e.m.Type != MemberObject {
		return o.At(i)
	}
	c, err := o.elementChild(i)
	if err != nil {
		return nil, err
	}
	return c.valueOf(seen)
}

func (o *Object) checkIndex(i int) error {
	if !o.s.arrayLike() {
		return errors.Unsupported(errors.PhaseAccess, o.s.Kind.String()+" has no elements")
	}
	if n := o.Len(); i < 0 || i >= n {
		return errors.OutOfBounds(errors.PhaseAccess, o.s.String(), i, n)
	}
	return nil
}

// elementChild returns the object of element i, creating it on first access.
func (o *Object) elementChild(i int) (*Object, error) {
	if c, ok := o.slots[i]; ok && c != nil {
		return c, nil
	}
	m := o.s.Element()
	if m.Type != MemberObject {
		return nil, nil
	}
	size := o.s.elementSize()
	sub, err := o.views().Sub(o.view, i*size, size)
	if err != nil {
		return nil, err
	}
	if err := m.Structure.ready(); err != nil {
		return nil, err
	}
	c := m.Structure.wrap(sub, !o.readOnly)
	c.readOnly = o.readOnly
	o.setSlot(i, c)
	return c, nil
}

func itemPath(i int) string {
	return "[" + strconv.Itoa(i) + "]"
}

func (s *Structure) arrayLike() bool {
	return s.Kind == KindArray || s.Kind == KindSlice || s.Kind == KindVector
}
