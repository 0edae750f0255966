package structure

import (
	"encoding/binary"
	"reflect"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/memory"
)

// ExtractView returns the memory a value can be reinterpreted as an instance
// of s through. Objects, views and byte slices are used in place; strings,
// numeric slices and {"base64"|"string"|"bytes": ...} maps are encoded into
// fresh host memory. The byte length must fit s: its exact size, or a
// multiple of the element size for slices.
func ExtractView(s *Structure, value any) (*memory.View, error) {
	views := s.views()
	var view *memory.View
	switch x := value.(type) {
	case *Object:
		view = x.view
	case *memory.View:
		view = x
	case []byte:
		view = views.HostView(x)
	case string:
		b := []byte(x)
		if s.arrayLike() && s.Flags.Has(FlagString) {
			var err error
			if b, err = s.encodeString(x); err != nil {
				return nil, err
			}
		}
		view = views.HostView(b)
	case map[string]any:
		b, err := s.specialBytes(x)
		if err != nil {
			return nil, err
		}
		view = views.HostView(b)
	default:
		b, ok := s.numericBytes(value)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseInit, s.String(), nil, value, "object, view or byte buffer")
		}
		view = views.HostView(b)
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
	return view, nil
}

// numericBytes encodes a slice or array of fixed-size numbers in the
// registry byte order.
func (s *Structure) numericBytes(value any) ([]byte, bool) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	switch rv.Type().Elem().Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
	default:
		return nil, false
	}
	var order binary.ByteOrder = binary.LittleEndian
	if !s.registry.little {
		order = binary.BigEndian
	}
	b, err := binary.Append(nil, order, value)
	if err != nil {
		return nil, false
	}
	return b, true
}
