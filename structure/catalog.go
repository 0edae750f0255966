package structure

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/wippyai/wasm-bridge/errors"
)

// OpKind identifies one protocol call in a catalog.
type OpKind uint8

const (
	OpBegin OpKind = iota + 1
	OpMember
	OpTemplate
	OpSlot
	OpEnd
)

// Op is one recorded protocol call. Handles are those of the recording
// registry.
type Op struct {
	Descriptor *Descriptor       `msgpack:"d,omitempty"`
	Member     *MemberDescriptor `msgpack:"m,omitempty"`
	Bytes      []byte            `msgpack:"b,omitempty"`
	Handle     uint32            `msgpack:"h,omitempty"`
	Structure  uint32            `msgpack:"s,omitempty"`
	Address    uint32            `msgpack:"a,omitempty"`
	Slot       int               `msgpack:"slot,omitempty"`
	Kind       OpKind            `msgpack:"op"`
	Static     bool              `msgpack:"static,omitempty"`
}

// Catalog is the ordered list of protocol calls a module made while
// describing its types. Replaying it rebuilds the same structures without
// running the module.
type Catalog struct {
	Ops []Op `msgpack:"ops"`
}

func (c *Catalog) recordBegin(d Descriptor) {
	c.Ops = append(c.Ops, Op{Kind: OpBegin, Descriptor: &d})
}

func (c *Catalog) recordMember(handle uint32, md MemberDescriptor, static bool) {
	c.Ops = append(c.Ops, Op{Kind: OpMember, Handle: handle, Member: &md, Static: static})
}

func (c *Catalog) recordTemplate(handle uint32, b []byte, address uint32, static bool) {
	c.Ops = append(c.Ops, Op{Kind: OpTemplate, Handle: handle, Bytes: clone(b), Address: address, Static: static})
}

func (c *Catalog) recordSlot(handle uint32, static bool, slot int, st uint32, b []byte, address uint32) {
	c.Ops = append(c.Ops, Op{Kind: OpSlot, Handle: handle, Static: static, Slot: slot, Structure: st, Bytes: clone(b), Address: address})
}

func (c *Catalog) recordEnd(handle uint32) {
	c.Ops = append(c.Ops, Op{Kind: OpEnd, Handle: handle})
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Encode serializes the catalog with msgpack.
func (c *Catalog) Encode() ([]byte, error) {
	b, err := msgpack.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDefine, errors.KindInvalidData, err, "encode catalog")
	}
	return b, nil
}

// DecodeCatalog parses a catalog produced by Encode.
func DecodeCatalog(b []byte) (*Catalog, error) {
	var c Catalog
	if err := msgpack.Unmarshal(b, &c); err != nil {
		return nil, errors.Wrap(errors.PhaseDefine, errors.KindInvalidData, err, "decode catalog")
	}
	return &c, nil
}

// Replay issues the recorded calls against r and finalizes it. Template slot
// memory is always copied to the host, the recorded addresses are not
// meaningful in r's runtime.
func (c *Catalog) Replay(r *Registry) error {
	handles := make(map[uint32]*Structure)
	lookup := func(h uint32) (*Structure, error) {
		s, ok := handles[h]
		if !ok {
			return nil, errors.New(errors.PhaseDefine, errors.KindInvalidData).
				Detail("catalog refers to unknown structure %d", h).
				Build()
		}
		return s, nil
	}
	next := uint32(1)
	for i, op := range c.Ops {
		var err error
		switch op.Kind {
		case OpBegin:
			if op.Descriptor == nil {
				return errors.New(errors.PhaseDefine, errors.KindInvalidData).
					Detail("catalog op %d: begin without descriptor", i).
					Build()
			}
			var s *Structure
			if s, err = r.BeginStructure(*op.Descriptor); err == nil {
				handles[next] = s
				next++
			}
		case OpMember:
			if op.Member == nil {
				return errors.New(errors.PhaseDefine, errors.KindInvalidData).
					Detail("catalog op %d: member without descriptor", i).
					Build()
			}
			var s *Structure
			if s, err = lookup(op.Handle); err != nil {
				break
			}
			md := *op.Member
			if md.Structure != 0 {
				ms, lerr := lookup(md.Structure)
				if lerr != nil {
					err = lerr
					break
				}
				md.Structure = ms.handle
			}
			err = r.AttachMember(s, md, op.Static)
		case OpTemplate:
			var s *Structure
			if s, err = lookup(op.Handle); err == nil {
				err = r.AttachTemplate(s, op.Bytes, 0, op.Static)
			}
		case OpSlot:
			var s, st *Structure
			if s, err = lookup(op.Handle); err != nil {
				break
			}
			if st, err = lookup(op.Structure); err != nil {
				break
			}
			err = r.AttachTemplateSlot(s, op.Static, op.Slot, st, op.Bytes, 0)
		case OpEnd:
			var s *Structure
			if s, err = lookup(op.Handle); err == nil {
				err = r.EndStructure(s)
			}
		default:
			err = errors.New(errors.PhaseDefine, errors.KindInvalidData).
				Detail("unknown catalog op %d", op.Kind).
				Build()
		}
		if err != nil {
			return errors.New(errors.PhaseDefine, errors.KindInvalidData).
				Detail("catalog op %d", i).
				Cause(err).
				Build()
		}
	}
	return r.FinalizeAll()
}
