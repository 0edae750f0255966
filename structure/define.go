package structure

import (
	"github.com/wippyai/wasm-bridge/errors"
)

// VisitFunc receives each pointer reached by VisitPointers. active is false
// for pointers inside an inactive optional, error union or union branch.
type VisitFunc func(ptr *Object, active bool) error

// VisitOptions controls pointer traversal.
type VisitOptions struct {
	// Vivificate creates child objects that have not been accessed yet.
	Vivificate bool
	// IgnoreInactive skips inactive branches instead of reporting them.
	IgnoreInactive bool
	// IgnoreUncreated skips children that were never created.
	IgnoreUncreated bool
	// IgnoreRetval skips the return value slot of an argument struct.
	IgnoreRetval bool
	// Dereference makes a pointer visit the pointers of its own target.
	Dereference bool
}

type behavior struct {
	init  func(o *Object, v any) error
	value func(o *Object, seen map[*Object]bool) (any, error)
	visit func(o *Object, fn VisitFunc, opts VisitOptions, active bool) error
}

type definer func(r *Registry, s *Structure) (*behavior, error)

// definers is indexed by Kind.
var definers = [kindCount]definer{
	KindPrimitive:  definePrimitive,
	KindArray:      defineArray,
	KindStruct:     defineStruct,
	KindArgStruct:  defineStruct,
	KindUnion:      defineUnion,
	KindErrorUnion: defineErrorUnion,
	KindErrorSet:   defineErrorSet,
	KindEnum:       defineEnum,
	KindOptional:   defineOptional,
	KindPointer:    definePointer,
	KindSlice:      defineArray,
	KindVector:     defineArray,
	KindOpaque:     defineOpaque,
	KindFunction:   defineFunction,
}

func shapeError(s *Structure, format string, args ...any) error {
	return errors.New(errors.PhaseDefine, errors.KindInvalidData).
		Structure(s.String()).
		Detail(format, args...).
		Build()
}

// VisitPointers calls fn for every pointer reachable from o without
// crossing another pointer, unless opts.Dereference is set on a pointer root.
func (o *Object) VisitPointers(fn VisitFunc, opts VisitOptions) error {
	if !o.s.HasPointer() || o.s.behavior.visit == nil {
		return nil
	}
	return o.s.behavior.visit(o, fn, opts, true)
}

// visitChild visits a reference-typed member or reports the pointer itself.
func visitChild(c *Object, fn VisitFunc, opts VisitOptions, active bool) error {
	if c.s.Kind == KindPointer {
		return fn(c, active)
	}
	if c.s.behavior.visit == nil {
		return nil
	}
	return c.s.behavior.visit(c, fn, opts, active)
}

// memberForVisit returns the child of m honoring the creation options.
func (o *Object) memberForVisit(m *Member, opts VisitOptions) (*Object, error) {
	if !opts.Vivificate {
		if c := o.existingChild(m.Slot); c != nil || opts.IgnoreUncreated {
			return c, nil
		}
	}
	return o.child(m)
}

// initCompatible copies a same-structure instance. ok is false when v is
// not such an instance.
func initCompatible(o *Object, v any) (bool, error) {
	src, ok := v.(*Object)
	if !ok || src.s != o.s {
		return false, nil
	}
	return true, o.copyFrom(src)
}

func definePrimitive(r *Registry, s *Structure) (*behavior, error) {
	if len(s.Members) != 1 {
		return nil, shapeError(s, "primitive needs exactly one member, has %d", len(s.Members))
	}
	m := s.Members[0]
	return &behavior{
		init: func(o *Object, v any) error {
			if ok, err := initCompatible(o, v); ok {
				return err
			}
			if v == nil {
				return o.view.Reset()
			}
			return o.writeMember(m, v)
		},
		value: func(o *Object, _ map[*Object]bool) (any, error) {
			return o.readMember(m)
		},
	}, nil
}

func defineOpaque(r *Registry, s *Structure) (*behavior, error) {
	s.Flags |= FlagForeignOnly
	return &behavior{
		init: func(o *Object, v any) error {
			if ok, err := initCompatible(o, v); ok {
				return err
			}
			return errors.Unsupported(errors.PhaseInit, "opaque "+s.Name+" cannot be initialized")
		},
		value: func(o *Object, _ map[*Object]bool) (any, error) {
			return o, nil
		},
	}, nil
}

func defineFunction(r *Registry, s *Structure) (*behavior, error) {
	if s.ArgStruct() == nil {
		return nil, shapeError(s, "function without an argument struct")
	}
	return &behavior{
		init: func(o *Object, v any) error {
			if ok, err := initCompatible(o, v); ok {
				return err
			}
			return errors.Unsupported(errors.PhaseInit, "function "+s.Name+" cannot be initialized")
		},
		value: func(o *Object, _ map[*Object]bool) (any, error) {
			return o, nil
		},
	}, nil
}
