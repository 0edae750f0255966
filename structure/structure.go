package structure

import (
	"fmt"
	"sort"

	"github.com/wippyai/wasm-bridge/accessor"
	"github.com/wippyai/wasm-bridge/errors"
)

// Member describes one field of a structure, or one static declaration.
type Member struct {
	Structure *Structure
	get       accessor.GetFunc
	set       accessor.SetFunc
	Name      string
	BitOffset int
	BitSize   int
	ByteSize  int
	Slot      int
	Type      MemberType
	Flags     MemberFlags
}

func (m *Member) field() accessor.Field {
	f := accessor.Field{BitSize: m.BitSize, BitOffset: m.BitOffset, ByteSize: m.ByteSize}
	switch m.Type {
	case MemberBool:
		f.Kind = accessor.KindBool
	case MemberInt:
		f.Kind = accessor.KindInt
	case MemberUint:
		f.Kind = accessor.KindUint
	case MemberFloat:
		f.Kind = accessor.KindFloat
	default:
		f.Kind = accessor.KindBytes
	}
	return f
}

// hasStorage reports whether the member occupies bytes read through an accessor.
func (m *Member) hasStorage() bool {
	switch m.Type {
	case MemberBool, MemberInt, MemberUint, MemberFloat:
		return m.BitSize > 0
	}
	return false
}

// byteSpan returns the byte offset and length the member covers.
func (m *Member) byteSpan() (int, int) {
	off := m.BitOffset / 8
	if m.ByteSize > 0 {
		return off, m.ByteSize
	}
	if m.Structure != nil && m.Type == MemberObject {
		return off, m.Structure.ByteSize
	}
	return off, (m.BitOffset%8 + m.BitSize + 7) / 8
}

// Structure is a foreign type. It is built through a Registry and is
// immutable once finalized.
type Structure struct {
	registry     *Registry
	behavior     *behavior
	template     *Object
	staticSlots  map[int]*Object
	byName       map[string]int
	staticByName map[string]*Member
	items        []*Object
	itemsByName  map[string]*Object
	itemsByValue map[string]*Object
	itemNames    map[*Object]string
	errorsByName map[string]*ErrorValue
	errorsByNum  map[uint64]*ErrorValue
	methods      map[string]*Object
	elem         *elementAccess
	Name         string
	Members      []*Member
	Statics      []*Member
	ByteSize     int
	Align        int
	Length       int
	handle       uint32
	Flags        Flags
	state        buildState
	Kind         Kind
	Purpose      Purpose
}

type buildState uint8

const (
	stateBegun buildState = iota
	stateEnded
	stateDefined
	stateFinalized
)

func (s *Structure) String() string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("%s#%d", s.Kind, s.handle)
}

// Handle is the registry handle the foreign module refers to this structure by.
func (s *Structure) Handle() uint32 { return s.handle }

// HasPointer reports whether instances contain pointers, directly or nested.
func (s *Structure) HasPointer() bool { return s.Flags.Has(FlagHasPointer) }

// Finalized reports whether the second definition pass has run.
func (s *Structure) Finalized() bool { return s.state == stateFinalized }

// Member returns the instance member called name.
func (s *Structure) Member(name string) (*Member, bool) {
	i, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return s.Members[i], true
}

// Template returns the default-value instance, or nil.
func (s *Structure) Template() *Object { return s.template }

// Static returns the value of a static declaration: a Go value for
// value-like structures, an *Object otherwise, or a *Structure for type
// declarations.
func (s *Structure) Static(name string) (any, error) {
	m, ok := s.staticByName[name]
	if !ok {
		return nil, errors.FieldUnknown(errors.PhaseAccess, s.String(), name)
	}
	switch m.Type {
	case MemberTypeRef:
		return m.Structure, nil
	case MemberVoid, MemberNull, MemberUndefined:
		return nil, nil
	case MemberUnsupported:
		return nil, errors.Unsupported(errors.PhaseAccess, "static "+name+" has no runtime representation")
	}
	obj := s.staticSlots[m.Slot]
	if obj == nil {
		return nil, errors.FieldMissing(errors.PhaseAccess, s.String(), name)
	}
	if obj.s.Kind.valueLike() {
		return obj.Value()
	}
	return obj, nil
}

// StaticNames lists static declarations in declaration order.
func (s *Structure) StaticNames() []string {
	names := make([]string, 0, len(s.Statics))
	for _, m := range s.Statics {
		names = append(names, m.Name)
	}
	return names
}

// Items lists enum item names in declaration order.
func (s *Structure) Items() []string {
	names := make([]string, 0, len(s.items))
	for _, it := range s.items {
		names = append(names, s.itemNames[it])
	}
	return names
}

// Item returns the enum item called name.
func (s *Structure) Item(name string) (*Object, bool) {
	it, ok := s.itemsByName[name]
	return it, ok
}

// Errors lists the members of an error set ordered by number.
func (s *Structure) Errors() []*ErrorValue {
	out := make([]*ErrorValue, 0, len(s.errorsByNum))
	for _, e := range s.errorsByNum {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Methods lists bound method names.
func (s *Structure) Methods() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Method returns the function object bound under name.
func (s *Structure) Method(name string) (*Object, bool) {
	fn, ok := s.methods[name]
	return fn, ok
}

// Element returns the element member of arrays, slices and vectors, the
// payload of optionals and error unions, and the target of pointers.
func (s *Structure) Element() *Member {
	if len(s.Members) == 0 {
		return nil
	}
	return s.Members[0]
}

// ArgStruct returns the argument structure of a function.
func (s *Structure) ArgStruct() *Structure {
	if s.Kind != KindFunction || len(s.Members) == 0 {
		return nil
	}
	return s.Members[0].Structure
}

// elementSize is the byte stride of array-like elements.
func (s *Structure) elementSize() int {
	m := s.Element()
	if m == nil {
		return 0
	}
	if m.ByteSize > 0 {
		return m.ByteSize
	}
	if m.Type == MemberObject && m.Structure != nil {
		return m.Structure.ByteSize
	}
	return (m.BitSize + 7) / 8
}

// sentinel returns the terminating element of sentinel arrays and slices.
// It is the last element of the structure template.
func (s *Structure) sentinel() ([]byte, bool) {
	if !s.Flags.Has(FlagSentinel) || s.template == nil {
		return nil, false
	}
	b, err := s.template.view.Bytes()
	size := s.elementSize()
	if err != nil || size == 0 || len(b) < size {
		return nil, false
	}
	return b[len(b)-size:], true
}
