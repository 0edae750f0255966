package engine

import (
	"context"
	"strconv"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/structure"
)

// HostModule is the import module name the foreign side links against.
const HostModule = "bridge"

// Host imports. Descriptors travel as msgpack blobs given by (ptr, len).
const (
	importBeginStructure     = "begin_structure"      // (ptr, len) -> handle
	importAttachMember       = "attach_member"        // (handle, ptr, len, static)
	importAttachTemplate     = "attach_template"      // (handle, addr, len, static)
	importAttachTemplateSlot = "attach_template_slot" // (handle, static, slot, structure, addr, len)
	importEndStructure       = "end_structure"        // (handle)
	importCallHost           = "call_host"            // (handle, args) -> status
)

// Module exports.
const (
	exportMemory   = "memory"
	exportAlloc    = "bridge_alloc"     // (len, align) -> ptr
	exportFree     = "bridge_free"      // (ptr, len, align)
	exportInit     = "bridge_init"      // streams the type descriptors
	exportRunThunk = "bridge_run_thunk" // (thunk, fn, args) -> status
	exportReactor  = "_initialize"
)

func knownImport(name string) bool {
	switch name {
	case importBeginStructure, importAttachMember, importAttachTemplate,
		importAttachTemplateSlot, importEndStructure, importCallHost:
		return true
	}
	return false
}

type instanceKey struct{}

// withInstance makes i visible to host functions the call reaches.
func withInstance(ctx context.Context, i *Instance) context.Context {
	return context.WithValue(ctx, instanceKey{}, i)
}

func instanceFrom(ctx context.Context) *Instance {
	i, _ := ctx.Value(instanceKey{}).(*Instance)
	return i
}

var (
	i32  = api.ValueTypeI32
	none []api.ValueType
)

func types(n int) []api.ValueType {
	out := make([]api.ValueType, n)
	for k := range out {
		out[k] = i32
	}
	return out
}

// buildHostModule declares the bridge imports. Each function finds its
// instance through the call context; calls from anywhere else fail.
func buildHostModule(r wazero.Runtime) wazero.HostModuleBuilder {
	b := r.NewHostModuleBuilder(HostModule)
	b = export(b, importBeginStructure, 2, 1, func(ctx context.Context, i *Instance, stack []uint64) {
		var d structure.Descriptor
		if !i.decode(stack[0], stack[1], &d) {
			stack[0] = 0
			return
		}
		s, err := i.env.Registry().BeginStructure(d)
		if err != nil {
			i.fail(err)
			stack[0] = 0
			return
		}
		stack[0] = uint64(s.Handle())
	})
	b = export(b, importAttachMember, 4, 0, func(ctx context.Context, i *Instance, stack []uint64) {
		var md structure.MemberDescriptor
		s := i.structure(stack[0])
		if s == nil || !i.decode(stack[1], stack[2], &md) {
			return
		}
		i.fail(i.env.Registry().AttachMember(s, md, stack[3] != 0))
	})
	b = export(b, importAttachTemplate, 4, 0, func(ctx context.Context, i *Instance, stack []uint64) {
		s := i.structure(stack[0])
		if s == nil {
			return
		}
		addr, n := uint32(stack[1]), uint32(stack[2])
		bytes, ok := i.read(addr, n)
		if !ok {
			return
		}
		i.fail(i.env.Registry().AttachTemplate(s, bytes, addr, stack[3] != 0))
	})
	b = export(b, importAttachTemplateSlot, 6, 0, func(ctx context.Context, i *Instance, stack []uint64) {
		s := i.structure(stack[0])
		st := i.structure(stack[3])
		if s == nil || st == nil {
			return
		}
		addr, n := uint32(stack[4]), uint32(stack[5])
		bytes, ok := i.read(addr, n)
		if !ok {
			return
		}
		i.fail(i.env.Registry().AttachTemplateSlot(s, stack[1] != 0, int(int32(stack[2])), st, bytes, addr))
	})
	b = export(b, importEndStructure, 1, 0, func(ctx context.Context, i *Instance, stack []uint64) {
		if s := i.structure(stack[0]); s != nil {
			i.fail(i.env.Registry().EndStructure(s))
		}
	})
	b = export(b, importCallHost, 2, 1, func(ctx context.Context, i *Instance, stack []uint64) {
		stack[0] = uint64(i.env.HandleInbound(ctx, uint32(stack[0]), uint32(stack[1])))
	})
	return b
}

func export(b wazero.HostModuleBuilder, name string, params, results int, fn func(context.Context, *Instance, []uint64)) wazero.HostModuleBuilder {
	res := none
	if results > 0 {
		res = types(results)
	}
	return b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, _ api.Module, stack []uint64) {
			i := instanceFrom(ctx)
			if i == nil {
				Logger().Error("host import called outside a bridge call", zap.String("import", name))
				if results > 0 {
					stack[0] = 0
				}
				return
			}
			fn(ctx, i, stack)
		}), types(params), res).
		WithName(name).
		Export(name)
}

// decode reads a msgpack blob from linear memory into v.
func (i *Instance) decode(ptr, n uint64, v any) bool {
	b, ok := i.read(uint32(ptr), uint32(n))
	if !ok {
		return false
	}
	if err := msgpack.Unmarshal(b, v); err != nil {
		i.fail(errors.New(errors.PhaseDefine, errors.KindInvalidData).
			Detail("descriptor at %#x", uint32(ptr)).
			Cause(err).
			Build())
		return false
	}
	return true
}

func (i *Instance) read(addr, n uint32) ([]byte, bool) {
	b, err := i.memory.Read(addr, n)
	if err != nil {
		i.fail(errors.Wrap(errors.PhaseDefine, errors.KindOutOfBounds, err, "descriptor memory"))
		return nil, false
	}
	return b, true
}

func (i *Instance) structure(handle uint64) *structure.Structure {
	s, ok := i.env.Registry().Lookup(uint32(handle))
	if !ok {
		i.fail(errors.NotFound(errors.PhaseDefine, "structure handle", strconv.FormatUint(handle, 10)))
		return nil
	}
	return s
}

// fail keeps the first definition error; the load reports it once
// bridge_init returns.
func (i *Instance) fail(err error) {
	if err == nil {
		return
	}
	if i.defineErr == nil {
		i.defineErr = err
	}
	Logger().Debug("definition failed", zap.Error(err))
}
