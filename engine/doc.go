// Package engine hosts foreign modules on wazero.
//
// A module talks to the bridge through one host module, "bridge", and a
// fixed set of exports:
//
//	imports (module "bridge")
//	    begin_structure(ptr, len) -> handle
//	    attach_member(handle, ptr, len, static)
//	    attach_template(handle, addr, len, static)
//	    attach_template_slot(handle, static, slot, structure, addr, len)
//	    end_structure(handle)
//	    call_host(handle, args) -> status
//
//	exports
//	    memory
//	    bridge_alloc(len, align) -> ptr
//	    bridge_free(ptr, len, align)
//	    bridge_init()
//	    bridge_run_thunk(thunk, fn, args) -> status
//
// Descriptors passed to begin_structure and attach_member are msgpack
// encodings of structure.Descriptor and structure.MemberDescriptor.
//
// # Loading
//
//	e := engine.New(ctx, engine.Config{EnableWASI: true})
//	mod, err := e.Compile(ctx, wasmBytes)
//	inst, err := mod.Instantiate(ctx, engine.InstanceConfig{})
//	math, _ := inst.Env().Registry().Find("Math")
//	sum, err := math.Invoke(ctx, "add", 1, 2)
//
// Instantiate runs _initialize when the module is a reactor, then
// bridge_init, during which the module streams its type descriptors. The
// first definition error fails the load.
//
// # Thread Safety
//
// Engine and Module are safe for concurrent use. Instance is NOT thread-safe
// and should be used by a single goroutine.
//
// # Known Limitations
//
// Memory64 is not supported; addresses are 32 bits wide.
package engine
