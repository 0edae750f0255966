package structure

import (
	"github.com/wippyai/wasm-bridge/accessor"
	"github.com/wippyai/wasm-bridge/errors"
)

// Optionals keep the payload in their first member and, unless the payload
// is pointer-like, a presence flag in the second. Error unions keep the
// payload first and the error number second.

func defineOptional(r *Registry, s *Structure) (*behavior, error) {
	if len(s.Members) == 0 || len(s.Members) > 2 {
		return nil, shapeError(s, "optional needs a payload and at most a presence flag")
	}
	if len(s.Members) == 1 && !pointerLike(s.Members[0]) {
		return nil, shapeError(s, "optional without a presence flag must hold a pointer")
	}
	payload := s.Members[0]
	return &behavior{
		init: func(o *Object, v any) error {
			if ok, err := initCompatible(o, v); ok {
				return err
			}
			if v == nil {
				return o.clearPayload()
			}
			if src, ok := v.(*Object); ok && src.s.Kind == KindOptional {
				inner, err := src.Value()
				if err != nil {
					return err
				}
				return o.s.behavior.init(o, inner)
			}
			if err := o.writeMember(payload, v); err != nil {
				return err
			}
			if len(s.Members) == 2 {
				return o.writeMember(s.Members[1], true)
			}
			return nil
		},
		value: func(o *Object, seen map[*Object]bool) (any, error) {
			present, err := o.present()
			if err != nil || !present {
				return nil, err
			}
			return o.memberValue(payload, seen)
		},
		visit: func(o *Object, fn VisitFunc, opts VisitOptions, active bool) error {
			if payload.Type != MemberObject || !payload.Structure.HasPointer() {
				return nil
			}
			present := true
			if len(s.Members) == 2 {
				var err error
				if present, err = o.present(); err != nil {
					return err
				}
			}
			if !present && opts.IgnoreInactive {
				return nil
			}
			c, err := o.memberForVisit(payload, opts)
			if err != nil || c == nil {
				return err
			}
			return visitChild(c, fn, opts, active && present)
		},
	}, nil
}

func pointerLike(m *Member) bool {
	return m.Type == MemberObject && m.Structure != nil && m.Structure.Kind == KindPointer
}

// present reports whether an optional holds a value.
func (o *Object) present() (bool, error) {
	if len(o.s.Members) == 2 {
		v, err := o.readMember(o.s.Members[1])
		if err != nil {
			return false, err
		}
		b, _ := v.(bool)
		return b, nil
	}
	ptr, err := o.child(o.s.Members[0])
	if err != nil {
		return false, err
	}
	t, err := ptr.Target()
	return t != nil, err
}

// clearPayload zeroes the object and forgets contained pointers.
func (o *Object) clearPayload() error {
	if o.readOnly {
		return errors.ReadOnly(o.s.String())
	}
	o.clearPointers()
	return o.view.Reset()
}

func defineErrorUnion(r *Registry, s *Structure) (*behavior, error) {
	if len(s.Members) != 2 || s.Members[1].Type != MemberUint {
		return nil, shapeError(s, "error union needs a payload and an error number")
	}
	payload, code := s.Members[0], s.Members[1]
	return &behavior{
		init: func(o *Object, v any) error {
			if ok, err := initCompatible(o, v); ok {
				return err
			}
			var ev *ErrorValue
			if errors.As(asError(v), &ev) {
				e, err := o.resolveUnionError(ev)
				if err != nil {
					return err
				}
				if err := o.clearPayload(); err != nil {
					return err
				}
				return o.writeMember(code, e.Number)
			}
			if _, isErr := v.(error); isErr {
				return errors.TypeMismatch(errors.PhaseInit, s.String(), nil, v, "error from "+s.String())
			}
			if src, ok := v.(*Object); ok && src.s.Kind == KindErrorUnion {
				inner, err := src.Value()
				if err != nil {
					var ev *ErrorValue
					if errors.As(err, &ev) {
						return o.s.behavior.init(o, ev)
					}
					return err
				}
				return o.s.behavior.init(o, inner)
			}
			// The error number is cleared last so a payload that fails to
			// convert leaves the union holding its error.
			if err := o.writeMember(payload, v); err != nil {
				return err
			}
			return o.writeMember(code, 0)
		},
		value: func(o *Object, seen map[*Object]bool) (any, error) {
			e, err := o.unionError()
			if err != nil {
				return nil, err
			}
			if e != nil {
				return nil, e
			}
			return o.memberValue(payload, seen)
		},
		visit: func(o *Object, fn VisitFunc, opts VisitOptions, active bool) error {
			if payload.Type != MemberObject || !payload.Structure.HasPointer() {
				return nil
			}
			failed, err := o.failed()
			if err != nil {
				return err
			}
			if failed && opts.IgnoreInactive {
				return nil
			}
			c, err := o.memberForVisit(payload, opts)
			if err != nil || c == nil {
				return err
			}
			return visitChild(c, fn, opts, active && !failed)
		},
	}, nil
}

func asError(v any) error {
	err, _ := v.(error)
	return err
}

// failed reports whether an error union holds an error.
func (o *Object) failed() (bool, error) {
	raw, err := o.readMember(o.s.Members[1])
	if err != nil {
		return false, err
	}
	n, err := accessor.ToUint64(raw)
	return n != 0, err
}

// unionError returns the error an error union holds, or nil.
func (o *Object) unionError() (*ErrorValue, error) {
	raw, err := o.readMember(o.s.Members[1])
	if err != nil {
		return nil, err
	}
	n, err := accessor.ToUint64(raw)
	if err != nil || n == 0 {
		return nil, err
	}
	if set := o.s.Members[1].Structure; set != nil && set.Kind == KindErrorSet {
		return set.errorFor(n)
	}
	if e, ok := o.s.registry.ErrorByNumber(n); ok {
		return e, nil
	}
	return nil, errors.New(errors.PhaseAccess, errors.KindInvalidError).
		Structure(o.s.String()).
		Value(n).
		Detail("unknown error number %d", n).
		Build()
}

func (o *Object) resolveUnionError(ev *ErrorValue) (*ErrorValue, error) {
	if set := o.s.Members[1].Structure; set != nil && set.Kind == KindErrorSet {
		return set.errorFor(ev.Number)
	}
	return ev, nil
}
