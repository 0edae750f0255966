package structure

import (
	"strconv"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/memory"
)

// Object is an instance of a Structure: a view over host or foreign memory
// plus lazily created child objects for reference-typed members.
type Object struct {
	s     *Structure
	view  *memory.View
	slots map[int]*Object
	// last address and element count seen in a pointer's memory
	lastAddr uint32
	lastLen  uint32
	// field of an untagged union last written from the host, -1 if unknown
	active   int
	readOnly bool
	hasLast  bool
}

// NewOption configures Structure.New.
type NewOption func(*newConfig)

type newConfig struct {
	alloc memory.Allocator
}

// WithAllocator allocates the new object through a.
func WithAllocator(a memory.Allocator) NewOption {
	return func(c *newConfig) { c.alloc = a }
}

// InHostMemory allocates the new object in host memory regardless of the
// runtime's default allocator.
func InHostMemory() NewOption {
	return func(c *newConfig) { c.alloc = nil }
}

func (s *Structure) ready() error {
	if s.state < stateDefined || s.behavior == nil {
		return errors.Internal(errors.PhaseInit, "%s used before it was defined", s)
	}
	return nil
}

func (s *Structure) views() *memory.Manager { return s.registry.rt.Views() }

// New allocates an instance and initializes it from init. Accepted
// initializers depend on the kind; nil means zero or default values.
func (s *Structure) New(init any, opts ...NewOption) (*Object, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	switch s.Kind {
	case KindOpaque, KindFunction:
		return nil, errors.Unsupported(errors.PhaseInit, "cannot create "+s.Kind.String()+" "+s.Name+" from the host")
	}
	cfg := newConfig{alloc: s.registry.rt.Allocator()}
	for _, opt := range opts {
		opt(&cfg)
	}

	size := s.ByteSize
	if s.Kind == KindSlice {
		n, err := s.sliceLength(init)
		if err != nil {
			return nil, err
		}
		if size, err = s.sliceBytes(n); err != nil {
			return nil, err
		}
	}
	view, err := s.views().Allocate(size, s.Align, cfg.alloc)
	if err != nil {
		return nil, err
	}
	if view.Foreign() {
		if err := view.Reset(); err != nil {
			return nil, err
		}
	}
	obj := s.wrap(view, true)
	if err := s.behavior.init(obj, init); err != nil {
		if cfg.alloc != nil {
			_ = s.views().Free(view, cfg.alloc)
		}
		return nil, err
	}
	return obj, nil
}

// Wrap returns the object over view, creating it on first use. Wrapping the
// same view twice yields the same object. Foreign memory is read-only unless
// writable is set.
func (s *Structure) Wrap(view *memory.View, writable bool) (*Object, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if view.Freed() {
		return nil, errors.New(errors.PhaseMemory, errors.KindFreedMemory).
			Structure(s.String()).
			Detail("memory was freed").
			Build()
	}
	if err := s.checkLength(view.Len()); err != nil {
		return nil, err
	}
	return s.wrap(view, writable), nil
}

func (s *Structure) wrap(view *memory.View, writable bool) *Object {
	if cached, ok := view.Cached(s); ok {
		return cached.(*Object)
	}
	obj := &Object{s: s, view: view, active: -1, readOnly: view.Foreign() && !writable}
	view.SetCached(s, obj)
	return obj
}

func (s *Structure) checkLength(n int) error {
	switch s.Kind {
	case KindSlice:
		if size := s.elementSize(); size > 0 && n%size != 0 {
			return errors.New(errors.PhaseInit, errors.KindWrongLength).
				Structure(s.String()).
				Value(n).
				Detail("%d bytes is not a multiple of the element size %d", n, size).
				Build()
		}
	case KindOpaque:
	default:
		if n != s.ByteSize {
			return errors.New(errors.PhaseInit, errors.KindWrongLength).
				Structure(s.String()).
				Value(n).
				Detail("expected %d bytes, received %d", s.ByteSize, n).
				Build()
		}
	}
	return nil
}

// Cast reinterprets value's memory as an instance of s without copying.
func (s *Structure) Cast(value any) (*Object, error) {
	view, err := ExtractView(s, value)
	if err != nil {
		return nil, err
	}
	return s.Wrap(view, true)
}

// Structure returns the object's structure.
func (o *Object) Structure() *Structure { return o.s }

// View returns the memory behind the object.
func (o *Object) View() *memory.View { return o.view }

// ReadOnly reports whether writes are rejected.
func (o *Object) ReadOnly() bool { return o.readOnly }

// Bytes returns the object's memory.
func (o *Object) Bytes() ([]byte, error) { return o.view.Bytes() }

func (o *Object) little() bool { return o.s.registry.little }

func (o *Object) views() *memory.Manager { return o.s.views() }

// Value returns the object as plain Go values: maps for structs, slices for
// arrays, names for enums, the payload or nil for optionals. An error union
// holding an error returns that error.
func (o *Object) Value() (any, error) {
	return o.valueOf(make(map[*Object]bool))
}

func (o *Object) valueOf(seen map[*Object]bool) (any, error) {
	if o.view.Freed() {
		return nil, errors.New(errors.PhaseAccess, errors.KindFreedMemory).Structure(o.s.String()).Build()
	}
	return o.s.behavior.value(o, seen)
}

// Assign initializes the object in place from v, accepting the same
// initializers as Structure.New.
func (o *Object) Assign(v any) error {
	if o.readOnly {
		return errors.ReadOnly(o.s.String())
	}
	return o.s.behavior.init(o, v)
}

// Get returns a member. Members of primitive, enum and error-set structures
// are returned as Go values, all others as *Object.
func (o *Object) Get(name string) (any, error) {
	if o.s.Kind == KindPointer {
		t, err := o.Target()
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, errors.New(errors.PhaseAccess, errors.KindNullPointer).Structure(o.s.String()).Build()
		}
		return t.Get(name)
	}
	m, ok := o.s.Member(name)
	if !ok || m.Flags.Has(MemberSelector) {
		return nil, errors.FieldUnknown(errors.PhaseAccess, o.s.String(), name)
	}
	if o.s.Kind == KindUnion {
		if err := o.checkActive(m); err != nil {
			return nil, err
		}
	}
	v, err := o.readMember(m)
	if err != nil {
		return nil, annotate(err, o.s, name)
	}
	return v, nil
}

// Member returns the child object of a reference-typed member.
func (o *Object) Member(name string) (*Object, error) {
	m, ok := o.s.Member(name)
	if !ok || m.Type != MemberObject {
		return nil, errors.FieldUnknown(errors.PhaseAccess, o.s.String(), name)
	}
	return o.child(m)
}

// Set writes a member.
func (o *Object) Set(name string, v any) error {
	if o.s.Kind == KindPointer {
		t, err := o.Target()
		if err != nil {
			return err
		}
		if t == nil {
			return errors.New(errors.PhaseAccess, errors.KindNullPointer).Structure(o.s.String()).Build()
		}
		if o.s.Flags.Has(FlagConst) {
			return errors.ReadOnly(o.s.String(), name)
		}
		return t.Set(name, v)
	}
	if o.readOnly {
		return errors.ReadOnly(o.s.String(), name)
	}
	m, ok := o.s.Member(name)
	if !ok || m.Flags.Has(MemberSelector) {
		return errors.FieldUnknown(errors.PhaseAccess, o.s.String(), name)
	}
	if m.Flags.Has(MemberReadOnly) {
		return errors.ReadOnly(o.s.String(), name)
	}
	if o.s.Kind == KindUnion {
		return annotate(o.selectField(m, v), o.s, name)
	}
	return annotate(o.writeMember(m, v), o.s, name)
}

func (o *Object) readMember(m *Member) (any, error) {
	switch m.Type {
	case MemberVoid, MemberNull, MemberUndefined:
		return nil, nil
	case MemberTypeRef:
		return m.Structure, nil
	case MemberUnsupported:
		return nil, errors.Unsupported(errors.PhaseAccess, "member "+m.Name+" has no runtime representation")
	case MemberLiteral:
		if t := o.s.template; t != nil {
			if lit := t.slots[m.Slot]; lit != nil {
				return lit.Value()
			}
		}
		return m.Name, nil
	case MemberObject:
		c, err := o.child(m)
		if err != nil {
			return nil, err
		}
		if c.s.Kind.valueLike() {
			return c.Value()
		}
		return c, nil
	}
	b, err := o.view.Bytes()
	if err != nil {
		return nil, err
	}
	return m.get(b, m.BitOffset/8, o.little()), nil
}

func (o *Object) writeMember(m *Member, v any) error {
	switch m.Type {
	case MemberVoid, MemberNull, MemberUndefined, MemberTypeRef, MemberLiteral:
		return nil
	case MemberUnsupported:
		return errors.Unsupported(errors.PhaseInit, "member "+m.Name+" has no runtime representation")
	case MemberObject:
		c, err := o.child(m)
		if err != nil {
			return err
		}
		return c.s.behavior.init(c, v)
	}
	b, err := o.view.Bytes()
	if err != nil {
		return err
	}
	return m.set(b, m.BitOffset/8, v, o.little())
}

// child returns the object for a reference-typed member, creating it on
// first access.
func (o *Object) child(m *Member) (*Object, error) {
	if m.Slot >= 0 {
		if c, ok := o.slots[m.Slot]; ok {
			return c, nil
		}
	}
	if m.Structure == nil {
		return nil, errors.Internal(errors.PhaseAccess, "member %s of %s has no structure", m.Name, o.s)
	}
	off, n := m.byteSpan()
	sub, err := o.views().Sub(o.view, off, n)
	if err != nil {
		return nil, err
	}
	if err := m.Structure.ready(); err != nil {
		return nil, err
	}
	c := m.Structure.wrap(sub, !o.readOnly)
	c.readOnly = o.readOnly
	if m.Slot >= 0 {
		o.setSlot(m.Slot, c)
	}
	return c, nil
}

// existingChild returns the child for a slot without creating it.
func (o *Object) existingChild(slot int) *Object {
	return o.slots[slot]
}

func (o *Object) setSlot(slot int, c *Object) {
	if o.slots == nil {
		o.slots = make(map[int]*Object)
	}
	o.slots[slot] = c
}

// copyFrom copies src's bytes into o and carries pointer targets across.
func (o *Object) copyFrom(src *Object) error {
	if src == o {
		return nil
	}
	if err := o.view.Copy(src.view); err != nil {
		return err
	}
	o.active = src.active
	if o.s.HasPointer() {
		copyPointerSlots(o, src)
	}
	return nil
}

func copyPointerSlots(dst, src *Object) {
	if src.s.Kind == KindPointer {
		dst.setSlot(0, src.slots[0])
		dst.lastAddr, dst.lastLen, dst.hasLast = src.lastAddr, src.lastLen, src.hasLast
		return
	}
	for slot, sc := range src.slots {
		if !sc.s.HasPointer() {
			continue
		}
		dc, err := dst.slotChild(slot)
		if err != nil || dc == nil {
			continue
		}
		copyPointerSlots(dc, sc)
	}
}

// slotChild finds the member or element behind a slot and returns its child.
func (o *Object) slotChild(slot int) (*Object, error) {
	switch o.s.Kind {
	case KindArray, KindSlice, KindVector:
		return o.elementChild(slot)
	}
	for _, m := range o.s.Members {
		if m.Slot == slot && m.Type == MemberObject {
			return o.child(m)
		}
	}
	return nil, nil
}

// Len returns the number of elements of arrays, slices and vectors.
func (o *Object) Len() int {
	switch o.s.Kind {
	case KindArray, KindVector:
		return o.s.Length
	case KindSlice:
		size := o.s.elementSize()
		if size == 0 {
			return 0
		}
		n := o.view.Len() / size
		if o.s.Flags.Has(FlagSentinel) && n > 0 {
			n--
		}
		return n
	}
	return 0
}

// Tag returns the active field of a tagged union or the item name of an enum.
func (o *Object) Tag() (string, error) {
	switch o.s.Kind {
	case KindUnion:
		m, err := o.activeField()
		if err != nil {
			return "", err
		}
		if m == nil {
			return "", nil
		}
		return m.Name, nil
	case KindEnum:
		v, err := o.Value()
		if err != nil {
			return "", err
		}
		if name, ok := v.(string); ok {
			return name, nil
		}
		return "", errors.InvalidEnum(o.s.String(), v)
	}
	return "", errors.Unsupported(errors.PhaseAccess, o.s.Kind.String()+" has no tag")
}

func (o *Object) String() string {
	return o.s.String() + "@" + strconv.Itoa(o.view.Offset())
}

// annotate prefixes the member path of a structured error.
func annotate(err error, s *Structure, path string) error {
	if err == nil {
		return nil
	}
	var e *errors.Error
	if !errors.As(err, &e) {
		return err
	}
	out := *e
	out.Path = append([]string{path}, e.Path...)
	if out.Structure == "" {
		out.Structure = s.String()
	}
	return &out
}
