package structure

import (
	"sort"

	"github.com/wippyai/wasm-bridge/accessor"
	"github.com/wippyai/wasm-bridge/errors"
)

// Argument structures keep the return value in their first member.
const retvalIndex = 0

func defineStruct(r *Registry, s *Structure) (*behavior, error) {
	for _, m := range s.Members {
		if m.Type == MemberObject && m.Slot < 0 {
			return nil, shapeError(s, "member %q has no slot", m.Name)
		}
	}
	return &behavior{
		init: func(o *Object, v any) error {
			if ok, err := initCompatible(o, v); ok {
				return err
			}
			switch x := v.(type) {
			case nil:
				return o.applyDefaults()
			case map[string]any:
				return o.initKeyed(x)
			case []any:
				if !s.Flags.Has(FlagTuple) {
					break
				}
				return o.initTuple(x)
			}
			return errors.TypeMismatch(errors.PhaseInit, s.String(), nil, v, "map of member values")
		},
		value: func(o *Object, seen map[*Object]bool) (any, error) {
			if s.Flags.Has(FlagTuple) {
				out := make([]any, 0, len(s.Members))
				for _, m := range s.Members {
					v, err := o.memberValue(m, seen)
					if err != nil {
						return nil, annotate(err, s, m.Name)
					}
					out = append(out, v)
				}
				return out, nil
			}
			out := make(map[string]any, len(s.Members))
			for i, m := range s.Members {
				if !valueMember(m) || (s.Kind == KindArgStruct && i == retvalIndex) {
					continue
				}
				v, err := o.memberValue(m, seen)
				if err != nil {
					return nil, annotate(err, s, m.Name)
				}
				out[m.Name] = v
			}
			return out, nil
		},
		visit: func(o *Object, fn VisitFunc, opts VisitOptions, active bool) error {
			for i, m := range s.Members {
				if m.Type != MemberObject || !m.Structure.HasPointer() {
					continue
				}
				if opts.IgnoreRetval && s.Kind == KindArgStruct && i == retvalIndex {
					continue
				}
				c, err := o.memberForVisit(m, opts)
				if err != nil {
					return err
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

// valueMember reports whether a member shows up in Value output.
func valueMember(m *Member) bool {
	if m.Name == "" || m.Flags.Has(MemberSelector) {
		return false
	}
	switch m.Type {
	case MemberVoid, MemberNull, MemberUndefined, MemberTypeRef, MemberUnsupported:
		return false
	}
	return true
}

// memberValue reads a member as a plain Go value, following objects deeply.
func (o *Object) memberValue(m *Member, seen map[*Object]bool) (any, error) {
	if m.Type != MemberObject {
		return o.readMember(m)
	}
	c, err := o.child(m)
	if err != nil {
		return nil, err
	}
	return c.valueOf(seen)
}

// applyDefaults copies the template, or zeroes the object when there is none.
func (o *Object) applyDefaults() error {
	if t := o.s.template; t != nil {
		return o.copyFrom(t)
	}
	o.clearPointers()
	return o.view.Reset()
}

func (o *Object) initKeyed(values map[string]any) error {
	s := o.s
	for name := range values {
		if m, ok := s.Member(name); !ok || m.Flags.Has(MemberSelector) {
			return errors.FieldUnknown(errors.PhaseInit, s.String(), name)
		}
	}
	if err := o.applyDefaults(); err != nil {
		return err
	}
	for i, m := range s.Members {
		v, ok := values[m.Name]
		if !ok {
			if m.Flags.Has(MemberRequired) && !(s.Kind == KindArgStruct && i == retvalIndex) {
				return errors.FieldMissing(errors.PhaseInit, s.String(), m.Name)
			}
			continue
		}
		if err := o.writeMember(m, v); err != nil {
			return annotate(err, s, m.Name)
		}
	}
	return nil
}

func (o *Object) initTuple(values []any) error {
	s := o.s
	if len(values) != len(s.Members) {
		return errors.WrongLength(s.String(), len(s.Members), len(values))
	}
	if err := o.applyDefaults(); err != nil {
		return err
	}
	for i, m := range s.Members {
		if err := o.writeMember(m, values[i]); err != nil {
			return annotate(err, s, m.Name)
		}
	}
	return nil
}

// clearPointers forgets the targets of every pointer reachable through
// existing slots without crossing a pointer.
func (o *Object) clearPointers() {
	if !o.s.HasPointer() {
		return
	}
	if o.s.Kind == KindPointer {
		o.setSlot(0, nil)
		o.hasLast = false
		return
	}
	for _, c := range o.slots {
		if c != nil {
			c.clearPointers()
		}
	}
}

// unionFields returns the members of a union that are not the selector.
func (s *Structure) unionFields() []*Member {
	out := make([]*Member, 0, len(s.Members))
	for _, m := range s.Members {
		if !m.Flags.Has(MemberSelector) {
			out = append(out, m)
		}
	}
	return out
}

func (s *Structure) selector() *Member {
	if !s.Flags.Has(FlagSelector) {
		return nil
	}
	for _, m := range s.Members {
		if m.Flags.Has(MemberSelector) {
			return m
		}
	}
	return nil
}

func defineUnion(r *Registry, s *Structure) (*behavior, error) {
	if s.Flags.Has(FlagSelector) && s.selector() == nil {
		return nil, shapeError(s, "tagged union without a selector member")
	}
	if len(s.unionFields()) == 0 {
		return nil, shapeError(s, "union without fields")
	}
	return &behavior{
		init: func(o *Object, v any) error {
			if ok, err := initCompatible(o, v); ok {
				return err
			}
			switch x := v.(type) {
			case nil:
				if s.template == nil {
					return errors.MissingInitializer(s.String())
				}
				return o.copyFrom(s.template)
			case map[string]any:
				return o.initUnion(x)
			}
			return errors.TypeMismatch(errors.PhaseInit, s.String(), nil, v, "map with one field")
		},
		value: func(o *Object, seen map[*Object]bool) (any, error) {
			active, err := o.activeField()
			if err != nil {
				return nil, err
			}
			fields := s.unionFields()
			if active != nil {
				fields = []*Member{active}
			}
			out := make(map[string]any, len(fields))
			for _, m := range fields {
				if !valueMember(m) {
					if m == active {
						out[m.Name] = nil
					}
					continue
				}
				v, err := o.memberValue(m, seen)
				if err != nil {
					return nil, annotate(err, s, m.Name)
				}
				out[m.Name] = v
			}
			return out, nil
		},
		visit: func(o *Object, fn VisitFunc, opts VisitOptions, active bool) error {
			current, err := o.activeField()
			if err != nil {
				return err
			}
			for _, m := range s.unionFields() {
				if m.Type != MemberObject || !m.Structure.HasPointer() {
					continue
				}
				on := current == m
				if !on && opts.IgnoreInactive {
					continue
				}
				c, err := o.memberForVisit(m, opts)
				if err != nil {
					return err
				}
				if c == nil {
					continue
				}
				if err := visitChild(c, fn, opts, active && on); err != nil {
					return err
				}
			}
			return nil
		},
	}, nil
}

func (o *Object) initUnion(values map[string]any) error {
	s := o.s
	switch len(values) {
	case 0:
		if s.template == nil {
			return errors.MissingInitializer(s.String())
		}
		return o.copyFrom(s.template)
	case 1:
	default:
		names := make([]string, 0, len(values))
		for name := range values {
			names = append(names, name)
		}
		sort.Strings(names)
		return errors.MultipleInitializers(s.String(), names)
	}
	for name, v := range values {
		m, ok := s.Member(name)
		if !ok || m.Flags.Has(MemberSelector) {
			return errors.FieldUnknown(errors.PhaseInit, s.String(), name)
		}
		o.active = -1
		return annotate(o.selectField(m, v), s, name)
	}
	return nil
}

// activeField returns the field the selector names, the field last written
// through an untagged union, or nil when it is unknown.
func (o *Object) activeField() (*Member, error) {
	fields := o.s.unionFields()
	sel := o.s.selector()
	if sel == nil {
		if o.active >= 0 && o.active < len(fields) {
			return fields[o.active], nil
		}
		return nil, nil
	}
	raw, err := o.readMember(sel)
	if err != nil {
		return nil, err
	}
	n, err := accessor.ToInt64(raw)
	if err == nil && n >= 0 && n < int64(len(fields)) {
		return fields[n], nil
	}
	return nil, errors.New(errors.PhaseAccess, errors.KindInvalidData).
		Structure(o.s.String()).
		Value(raw).
		Detail("selector %v names no field", raw).
		Build()
}

func (o *Object) checkActive(m *Member) error {
	active, err := o.activeField()
	if err != nil {
		return err
	}
	if active != nil && active != m {
		return errors.New(errors.PhaseAccess, errors.KindInactiveField).
			Structure(o.s.String()).
			Path(m.Name).
			Detail("%s is not the active field, %s is", m.Name, active.Name).
			Build()
	}
	return nil
}

// selectField makes m the active field and writes v into it. Switching
// fields clears the payload and forgets pointers of the old field.
func (o *Object) selectField(m *Member, v any) error {
	fields := o.s.unionFields()
	index := -1
	for i, f := range fields {
		if f == m {
			index = i
			break
		}
	}
	active, err := o.activeField()
	if err != nil || active != m {
		o.clearPointers()
		if err := o.view.Reset(); err != nil {
			return err
		}
		if sel := o.s.selector(); sel != nil {
			if err := o.writeMember(sel, index); err != nil {
				return err
			}
		}
	}
	o.active = index
	return o.writeMember(m, v)
}
