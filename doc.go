// Package wasmbridge is a runtime bridge between a Go host and a foreign
// WebAssembly module that describes its own types.
//
// The module streams descriptions of its exported types (structs, unions,
// arrays, pointers, enums, error sets, functions) while it initializes. The
// bridge turns each description into a live structure whose instances read
// and write the module's memory directly, bit for bit.
//
// # Architecture Overview
//
//	wasmbridge/          Root package with core Memory and Allocator interfaces
//	├── accessor/        Bit-precise get/set synthesis for primitive members
//	├── memory/          Views, identity cache, allocation, address registry
//	├── structure/       Type descriptor registry and structure instances
//	├── shadow/          Call contexts, shadow copies, target clustering
//	├── env/             Pointer synchronization and call marshaling
//	├── engine/          wazero host for the foreign module and its imports
//	├── runtime/         High-level API, configuration, catalog cache
//	├── resource/        Handle table with registered destructors
//	├── witmap/          Projection of structures onto WIT types
//	├── errors/          Structured error types
//	└── cmd/bridge/      Command line inspector
//
// # Quick Start
//
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	mod, err := rt.Load(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	inst, err := mod.Instantiate(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	point, _ := inst.Structure("Point")
//	p, err := point.New(map[string]any{"x": 1, "y": 2})
//	result, err := inst.Call(ctx, "distance", p)
//
// # Memory Model
//
// Instances created by the host live in Go memory. When a pointer to host
// memory crosses into a foreign call, the bridge makes an aligned shadow copy
// inside linear memory for the duration of the call and copies writable
// shadows back afterwards. Instances wrapping linear memory are read and
// written in place.
//
// # Thread Safety
//
// Runtime is safe for concurrent use. Module and the structures it defines
// are NOT thread-safe and should be used by a single goroutine, or access
// must be synchronized.
package wasmbridge
