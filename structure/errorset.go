package structure

import (
	"strconv"

	"github.com/wippyai/wasm-bridge/accessor"
	"github.com/wippyai/wasm-bridge/errors"
)

// ErrorValue is one member of a foreign error set. Foreign calls that fail
// through their error-union return value surface as *ErrorValue.
type ErrorValue struct {
	Set    *Structure
	Name   string
	Number uint64
}

func (e *ErrorValue) Error() string {
	if e.Set == nil {
		return "error." + e.Name
	}
	return e.Set.String() + "." + e.Name
}

// Is matches another ErrorValue with the same number.
func (e *ErrorValue) Is(target error) bool {
	t, ok := target.(*ErrorValue)
	return ok && t.Number == e.Number
}

func defineErrorSet(r *Registry, s *Structure) (*behavior, error) {
	if len(s.Members) != 1 || s.Members[0].Type != MemberUint {
		return nil, shapeError(s, "error set needs one unsigned member")
	}
	m := s.Members[0]
	return &behavior{
		init: func(o *Object, v any) error {
			if ok, err := initCompatible(o, v); ok {
				return err
			}
			e, err := s.resolveError(v)
			if err != nil {
				return err
			}
			return o.writeMember(m, e.Number)
		},
		value: func(o *Object, _ map[*Object]bool) (any, error) {
			n, err := o.readMember(m)
			if err != nil {
				return nil, err
			}
			num, err := accessor.ToUint64(n)
			if err != nil {
				return nil, err
			}
			return s.errorFor(num)
		},
	}, nil
}

// resolveError maps an *ErrorValue, a name or a number to a member of s.
func (s *Structure) resolveError(v any) (*ErrorValue, error) {
	switch x := v.(type) {
	case *ErrorValue:
		return s.errorFor(x.Number)
	case string:
		if e, ok := s.errorsByName[x]; ok {
			return e, nil
		}
		return nil, invalidError(s, v)
	}
	if !accessor.IsNumber(v) {
		return nil, errors.TypeMismatch(errors.PhaseInit, s.String(), nil, v, "error name or number")
	}
	n, err := accessor.ToUint64(v)
	if err != nil {
		return nil, err
	}
	return s.errorFor(n)
}

// errorFor looks a number up in the set. A global set accepts any error
// known to the registry.
func (s *Structure) errorFor(n uint64) (*ErrorValue, error) {
	if e, ok := s.errorsByNum[n]; ok {
		return e, nil
	}
	if s.Flags.Has(FlagGlobalSet) {
		if e, ok := s.registry.ErrorByNumber(n); ok {
			return e, nil
		}
	}
	return nil, invalidError(s, n)
}

func invalidError(s *Structure, v any) error {
	return errors.New(errors.PhaseAccess, errors.KindInvalidError).
		Structure(s.String()).
		Value(v).
		Detail("%v is not a member of %s", v, s).
		Build()
}

// finalizeErrorSet collects the static instances of the set as its members
// and publishes them to the registry-wide number index.
func finalizeErrorSet(r *Registry, s *Structure) error {
	if s.errorsByName == nil {
		s.errorsByName = make(map[string]*ErrorValue)
		s.errorsByNum = make(map[uint64]*ErrorValue)
	}
	for _, m := range s.Statics {
		if m.Structure != s {
			continue
		}
		obj := s.staticSlots[m.Slot]
		if obj == nil {
			return errors.FieldMissing(errors.PhaseDefine, s.String(), m.Name)
		}
		raw, err := obj.readMember(s.Members[0])
		if err != nil {
			return err
		}
		n, err := accessor.ToUint64(raw)
		if err != nil {
			return err
		}
		e, ok := r.errorsByNum[n]
		if !ok {
			e = &ErrorValue{Set: s, Name: m.Name, Number: n}
			r.errorsByNum[n] = e
		} else if e.Name != m.Name {
			return errors.New(errors.PhaseDefine, errors.KindInvalidData).
				Structure(s.String()).
				Path(m.Name).
				Detail("error number %s already names %q", strconv.FormatUint(n, 10), e.Name).
				Build()
		}
		s.errorsByName[m.Name] = e
		s.errorsByNum[n] = e
	}
	return nil
}
