package structure

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/accessor"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/memory"
)

// Runtime connects structures to the memory and call machinery of a loaded
// module. The env package provides the real implementation.
type Runtime interface {
	// Views returns the view manager objects allocate and wrap memory through.
	Views() *memory.Manager
	// Allocator returns the default allocator for new objects, nil for host memory.
	Allocator() memory.Allocator
	// FindMemory resolves a foreign address range to the view backing it.
	FindMemory(address, length uint32) (*memory.View, error)
	// Call invokes a function object with positional arguments.
	Call(ctx context.Context, fn *Object, args []any) (any, error)
}

// HostRuntime is a Runtime without a foreign module. Objects live in host
// memory and calls are unsupported.
type HostRuntime struct {
	views *memory.Manager
}

// NewHostRuntime creates a host-only runtime.
func NewHostRuntime() *HostRuntime {
	return &HostRuntime{views: memory.NewManager(nil)}
}

func (h *HostRuntime) Views() *memory.Manager      { return h.views }
func (h *HostRuntime) Allocator() memory.Allocator { return nil }

func (h *HostRuntime) FindMemory(address, length uint32) (*memory.View, error) {
	return nil, errors.New(errors.PhaseMemory, errors.KindForeignRequired).
		Detail("no foreign memory to resolve address %#x", address).
		Build()
}

func (h *HostRuntime) Call(ctx context.Context, fn *Object, args []any) (any, error) {
	return nil, errors.Unsupported(errors.PhaseCall, "host runtime cannot call foreign functions")
}

type pendingSlot struct {
	structure *Structure
	view      *memory.View
}

// Registry builds structures from the descriptor protocol the foreign module
// streams at load time.
type Registry struct {
	rt          Runtime
	recorder    *Catalog
	logger      *zap.Logger
	byName      map[string]*Structure
	errorsByNum map[uint64]*ErrorValue
	pending     map[*Structure]map[bool]map[int]pendingSlot
	structures  []*Structure
	little      bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithBigEndian makes accessors read and write big-endian values.
func WithBigEndian() Option {
	return func(r *Registry) { r.little = false }
}

// WithRecorder records every protocol call into c.
func WithRecorder(c *Catalog) Option {
	return func(r *Registry) { r.recorder = c }
}

// WithLogger sets the logger for definition warnings.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty registry bound to rt.
func NewRegistry(rt Runtime, opts ...Option) *Registry {
	r := &Registry{
		rt:          rt,
		logger:      zap.NewNop(),
		little:      true,
		byName:      make(map[string]*Structure),
		errorsByNum: make(map[uint64]*ErrorValue),
		pending:     make(map[*Structure]map[bool]map[int]pendingSlot),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Runtime returns the runtime objects are bound to.
func (r *Registry) Runtime() Runtime { return r.rt }

// Little reports whether the registry uses little-endian accessors.
func (r *Registry) Little() bool { return r.little }

// Lookup returns the structure with the given handle.
func (r *Registry) Lookup(handle uint32) (*Structure, bool) {
	if handle == 0 || int(handle) > len(r.structures) {
		return nil, false
	}
	return r.structures[handle-1], true
}

// Find returns the structure called name.
func (r *Registry) Find(name string) (*Structure, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Structures returns every structure in definition order.
func (r *Registry) Structures() []*Structure { return r.structures }

// ErrorByNumber looks up an error from any error set.
func (r *Registry) ErrorByNumber(n uint64) (*ErrorValue, bool) {
	e, ok := r.errorsByNum[n]
	return e, ok
}

// BeginStructure starts a structure. Members may reference it by handle
// before it is ended, which is how self-referential types are described.
func (r *Registry) BeginStructure(d Descriptor) (*Structure, error) {
	if d.Name == "" {
		return nil, errors.New(errors.PhaseDefine, errors.KindUnnamedStructure).
			Detail("%s structure without a name", d.Kind).
			Build()
	}
	if d.Kind >= kindCount {
		return nil, errors.Internal(errors.PhaseDefine, "unknown structure kind %d", d.Kind)
	}
	s := &Structure{
		registry:     r,
		Name:         d.Name,
		Kind:         d.Kind,
		ByteSize:     d.ByteSize,
		Align:        d.Align,
		Length:       d.Length,
		Flags:        d.Flags &^ capabilityMask,
		Purpose:      d.Purpose,
		byName:       make(map[string]int),
		staticByName: make(map[string]*Member),
		staticSlots:  make(map[int]*Object),
	}
	r.structures = append(r.structures, s)
	s.handle = uint32(len(r.structures))
	// Find keeps returning the first structure of a name. Argument structs
	// all share theirs.
	if first, dup := r.byName[s.Name]; !dup {
		r.byName[s.Name] = s
	} else if s.Kind != KindArgStruct {
		r.logger.Warn("structure name already defined",
			zap.String("name", s.Name),
			zap.Uint32("handle", s.handle),
			zap.Uint32("first", first.handle))
	}
	if r.recorder != nil {
		r.recorder.recordBegin(d)
	}
	return s, nil
}

// AttachMember adds an instance or static member to a structure being built.
func (r *Registry) AttachMember(s *Structure, md MemberDescriptor, static bool) error {
	if s.state != stateBegun {
		return errors.Internal(errors.PhaseDefine, "member %q attached to %s after it was ended", md.Name, s)
	}
	m := &Member{
		Name:      md.Name,
		Type:      md.Type,
		BitOffset: md.BitOffset,
		BitSize:   md.BitSize,
		ByteSize:  md.ByteSize,
		Slot:      md.Slot,
		Flags:     md.Flags,
	}
	if md.Structure != 0 {
		ms, ok := r.Lookup(md.Structure)
		if !ok {
			return errors.NotFound(errors.PhaseDefine, "structure handle", strconv.FormatUint(uint64(md.Structure), 10))
		}
		m.Structure = ms
	}
	if static {
		if _, dup := s.staticByName[m.Name]; dup {
			return duplicateMember(s, m.Name)
		}
		s.staticByName[m.Name] = m
		s.Statics = append(s.Statics, m)
	} else {
		if m.Name != "" {
			if _, dup := s.byName[m.Name]; dup {
				return duplicateMember(s, m.Name)
			}
			s.byName[m.Name] = len(s.Members)
		}
		s.Members = append(s.Members, m)
	}
	if r.recorder != nil {
		r.recorder.recordMember(s.handle, md, static)
	}
	return nil
}

func duplicateMember(s *Structure, name string) error {
	return errors.New(errors.PhaseDefine, errors.KindDuplicateMember).
		Structure(s.String()).
		Path(name).
		Detail("member %q defined twice", name).
		Build()
}

// AttachTemplate sets the default-value bytes of a structure. The bytes are
// copied into host memory. Static templates carry only slots.
func (r *Registry) AttachTemplate(s *Structure, bytes []byte, address uint32, static bool) error {
	if s.state != stateBegun {
		return errors.Internal(errors.PhaseDefine, "template attached to %s after it was ended", s)
	}
	if !static {
		buf := make([]byte, len(bytes))
		copy(buf, bytes)
		s.template = &Object{s: s, view: r.rt.Views().HostView(buf), readOnly: true, active: -1}
	}
	if r.recorder != nil {
		r.recorder.recordTemplate(s.handle, bytes, address, static)
	}
	return nil
}

// AttachTemplateSlot adds a slot object to a structure's instance or static
// template. bytes and address describe the object's memory in the module.
// The object is materialized when the registry is finalized.
func (r *Registry) AttachTemplateSlot(s *Structure, static bool, slot int, st *Structure, bytes []byte, address uint32) error {
	var view *memory.View
	if foreign := r.rt.Views().Foreign(); foreign != nil && address != 0 && uint64(address)+uint64(len(bytes)) <= uint64(foreign.Len()) {
		v, err := r.rt.Views().ForeignView(address, uint32(len(bytes)))
		if err != nil {
			return err
		}
		view = v
	} else {
		buf := make([]byte, len(bytes))
		copy(buf, bytes)
		view = r.rt.Views().HostView(buf)
	}
	bySide := r.pending[s]
	if bySide == nil {
		bySide = make(map[bool]map[int]pendingSlot)
		r.pending[s] = bySide
	}
	if bySide[static] == nil {
		bySide[static] = make(map[int]pendingSlot)
	}
	bySide[static][slot] = pendingSlot{structure: st, view: view}
	if r.recorder != nil {
		r.recorder.recordSlot(s.handle, static, slot, st.handle, bytes, address)
	}
	return nil
}

// EndStructure closes a structure and defines its behavior.
func (r *Registry) EndStructure(s *Structure) error {
	if s.state != stateBegun {
		return errors.Internal(errors.PhaseDefine, "%s ended twice", s)
	}
	s.state = stateEnded
	if r.recorder != nil {
		r.recorder.recordEnd(s.handle)
	}
	return r.Define(s)
}

// Define builds the per-kind behavior of an ended structure through the
// kind dispatch table.
func (r *Registry) Define(s *Structure) error {
	if s.state >= stateDefined {
		return nil
	}
	define := definers[s.Kind]
	b, err := define(r, s)
	if err != nil {
		return err
	}
	for _, m := range s.Members {
		if !m.hasStorage() {
			continue
		}
		if m.get, err = accessor.Getter(m.field()); err != nil {
			return err
		}
		if m.set, err = accessor.Setter(m.field()); err != nil {
			return err
		}
	}
	s.behavior = b
	s.state = stateDefined
	return nil
}

// FinalizeAll runs the second pass over every structure once the whole
// catalog has been received.
func (r *Registry) FinalizeAll() error {
	for _, s := range r.structures {
		if s.state < stateDefined {
			return errors.Internal(errors.PhaseDefine, "%s was never ended", s)
		}
	}
	for _, s := range r.structures {
		if err := r.computeFlags(s, make(map[*Structure]bool)); err != nil {
			return err
		}
	}
	for _, s := range r.structures {
		if err := r.Finalize(s); err != nil {
			return err
		}
	}
	r.pending = make(map[*Structure]map[bool]map[int]pendingSlot)
	return nil
}

// computeFlags derives the capability bits. A structure that contains itself
// by value has no finite layout.
func (r *Registry) computeFlags(s *Structure, visiting map[*Structure]bool) error {
	if s.Flags&capabilityMask != 0 || s.Kind == KindOpaque {
		return nil
	}
	if visiting[s] {
		return errors.New(errors.PhaseDefine, errors.KindRecursiveType).
			Structure(s.String()).
			Detail("%s contains itself by value", s).
			Build()
	}
	visiting[s] = true
	defer delete(visiting, s)

	flags := FlagHasValue
	switch s.Kind {
	case KindPointer:
		flags |= FlagHasPointer | FlagHasObject | FlagHasSlot
	case KindFunction:
		flags = FlagHasValue
	}
	if s.Kind != KindPointer && s.Kind != KindFunction {
		for _, m := range s.Members {
			if m.Type != MemberObject || m.Structure == nil {
				continue
			}
			flags |= FlagHasObject
			if m.Slot >= 0 {
				flags |= FlagHasSlot
			}
			if err := r.computeFlags(m.Structure, visiting); err != nil {
				return errors.New(errors.PhaseDefine, errors.KindRecursiveType).
					Structure(s.String()).
					Path(m.Name).
					Cause(err).
					Build()
			}
			if m.Structure.HasPointer() {
				flags |= FlagHasPointer
			}
		}
	}
	s.Flags |= flags
	return nil
}

// Finalize attaches static members, templates, enum items, error-set
// members and bound methods.
func (r *Registry) Finalize(s *Structure) error {
	if s.state == stateFinalized {
		return nil
	}
	if s.state < stateDefined {
		return errors.Internal(errors.PhaseDefine, "%s finalized before definition", s)
	}
	for static, slots := range r.pending[s] {
		for slot, p := range slots {
			obj, err := p.structure.Wrap(p.view, false)
			if err != nil {
				return errors.New(errors.PhaseDefine, errors.KindInvalidData).
					Structure(s.String()).
					Detail("template slot %d", slot).
					Cause(err).
					Build()
			}
			if static {
				s.staticSlots[slot] = obj
				continue
			}
			if s.template != nil {
				s.template.setSlot(slot, obj)
			}
		}
	}
	s.state = stateFinalized
	switch s.Kind {
	case KindEnum:
		if err := finalizeEnum(s); err != nil {
			return err
		}
	case KindErrorSet:
		if err := finalizeErrorSet(r, s); err != nil {
			return err
		}
	}
	for _, m := range s.Statics {
		if m.Type != MemberObject || m.Structure == nil || m.Structure.Kind != KindFunction {
			continue
		}
		if fn := s.staticSlots[m.Slot]; fn != nil {
			if s.methods == nil {
				s.methods = make(map[string]*Object)
			}
			s.methods[m.Name] = fn
		}
	}
	return nil
}
