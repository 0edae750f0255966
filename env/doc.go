// Package env runs calls between the host and a loaded module.
//
// An Environment ties the pieces of one module instance together: the view
// manager over its memory, the structure registry its descriptors build, the
// shadow manager, and the handle table for host callbacks. It implements
// structure.Runtime, so function objects created by the registry call back
// into it.
//
// A call goes through these steps:
//
//	args := fn.Structure().ArgStruct().New(nil, structure.InHostMemory())
//	inv, _ := e.CopyArguments(ctx, name, args, values, opts)
//	ret, _ := e.InvokeThunk(ctx, thunk, index, args)
//
// InvokeThunk opens a shadow context, gives every host object reachable
// through pointers a copy in linear memory, runs the thunk, copies writable
// shadows back and re-reads the pointers the module may have changed.
//
// Parameters whose structure has a purpose are not taken from the caller's
// arguments. The environment registers a host adapter in the handle table
// and passes its handle instead; the module reaches the adapter through
// call_host, which lands in HandleInbound.
package env
