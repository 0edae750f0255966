// Package resource keeps the host values a loaded module can refer to by
// handle, and the destructors that release them.
//
// The call marshaler hands the module small integer handles instead of Go
// values: callbacks for promises and generators, allocator adapters, readers
// and writers. When the module calls back through call_host it passes the
// handle, and the host looks the value up here:
//
//	table := resource.NewTable()
//	h := table.Insert(resource.KindReader, reader)
//
//	v, ok := table.Get(h)
//
// A handle in use by an inbound call is borrowed so it cannot be removed
// underneath it:
//
//	if table.Borrow(h) {
//	    defer table.Return(h)
//	    ...
//	}
//
// Values implementing Dropper are destroyed exactly once: when removed, or
// when the table closes. Defer registers plain cleanup functions the same
// way, which is how shadow allocators and exported callbacks are released
// when an environment is torn down:
//
//	table.Defer(func() { alloc.Release() })
//	...
//	table.Close() // runs destructors newest first; later calls do nothing
package resource
