package structure

import (
	"github.com/wippyai/wasm-bridge/accessor"
	"github.com/wippyai/wasm-bridge/errors"
)

func defineEnum(r *Registry, s *Structure) (*behavior, error) {
	if len(s.Members) != 1 || (s.Members[0].Type != MemberInt && s.Members[0].Type != MemberUint) {
		return nil, shapeError(s, "enum needs one integer member")
	}
	m := s.Members[0]
	return &behavior{
		init: func(o *Object, v any) error {
			if ok, err := initCompatible(o, v); ok {
				return err
			}
			if v == nil {
				return errors.InvalidEnum(s.String(), v)
			}
			item, err := s.resolveItem(v)
			if err != nil {
				return err
			}
			if item != nil {
				return o.copyFrom(item)
			}
			return o.writeMember(m, v)
		},
		value: func(o *Object, _ map[*Object]bool) (any, error) {
			n, err := o.readMember(m)
			if err != nil {
				return nil, err
			}
			item, err := s.itemFor(n)
			if err != nil {
				return nil, err
			}
			return item.name, nil
		},
	}, nil
}

type enumItem struct {
	*Object
	name string
}

// resolveItem maps a name, number or tagged union to an item. A nil item
// with a nil error means v is a number an open-ended enum accepts as is.
func (s *Structure) resolveItem(v any) (*Object, error) {
	switch x := v.(type) {
	case string:
		if it, ok := s.itemsByName[x]; ok {
			return it, nil
		}
		return nil, errors.InvalidEnum(s.String(), v)
	case *Object:
		if x.s.Kind == KindUnion && x.s.Flags.Has(FlagSelector) {
			tag, err := x.Tag()
			if err != nil {
				return nil, err
			}
			return s.resolveItem(tag)
		}
		if x.s.Kind == KindEnum {
			tag, err := x.Tag()
			if err != nil {
				return nil, err
			}
			return s.resolveItem(tag)
		}
		return nil, errors.TypeMismatch(errors.PhaseInit, s.String(), nil, v, "enum item")
	}
	if !accessor.IsNumber(v) {
		return nil, errors.TypeMismatch(errors.PhaseInit, s.String(), nil, v, "enum item name or number")
	}
	key, err := numberKey(v)
	if err != nil {
		return nil, err
	}
	if it, ok := s.itemsByValue[key]; ok {
		return it, nil
	}
	if s.Flags.Has(FlagOpenEnded) {
		return nil, nil
	}
	return nil, errors.InvalidEnum(s.String(), v)
}

// itemFor returns the item for a backing value. Open-ended enums synthesize
// an item named after the number the first time it is seen.
func (s *Structure) itemFor(n any) (enumItem, error) {
	key, err := numberKey(n)
	if err != nil {
		return enumItem{}, err
	}
	if it, ok := s.itemsByValue[key]; ok {
		name, _ := s.itemName(it)
		return enumItem{Object: it, name: name}, nil
	}
	if !s.Flags.Has(FlagOpenEnded) {
		return enumItem{}, errors.InvalidEnum(s.String(), n)
	}
	it := s.wrap(s.views().HostView(make([]byte, s.ByteSize)), true)
	if err := it.writeMember(s.Members[0], n); err != nil {
		return enumItem{}, err
	}
	it.readOnly = true
	s.addItem(key, it)
	return enumItem{Object: it, name: key}, nil
}

func (s *Structure) itemName(it *Object) (string, bool) {
	name, ok := s.itemNames[it]
	return name, ok
}

func (s *Structure) addItem(name string, it *Object) {
	if s.itemsByName == nil {
		s.itemsByName = make(map[string]*Object)
		s.itemsByValue = make(map[string]*Object)
		s.itemNames = make(map[*Object]string)
	}
	n, _ := it.readMember(s.Members[0])
	key, _ := numberKey(n)
	s.itemsByName[name] = it
	if _, dup := s.itemsByValue[key]; !dup {
		s.itemsByValue[key] = it
	}
	if _, dup := s.itemNames[it]; !dup {
		s.itemNames[it] = name
		s.items = append(s.items, it)
	}
}

// finalizeEnum turns static members holding instances of the enum itself into items.
func finalizeEnum(s *Structure) error {
	for _, m := range s.Statics {
		if m.Structure != s {
			continue
		}
		it := s.staticSlots[m.Slot]
		if it == nil {
			return errors.FieldMissing(errors.PhaseDefine, s.String(), m.Name)
		}
		s.addItem(m.Name, it)
	}
	return nil
}

func numberKey(v any) (string, error) {
	b, err := accessor.ToBigInt(v)
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
