// Package runtime provides the high-level API for loading bridge modules.
//
// # Quick Start
//
//	ctx := context.Background()
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
//
//	inst, err := mod.Instantiate(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	point, _ := inst.Structure("Point")
//	p, err := point.New(map[string]any{"x": 3, "y": 4})
//	d, err := inst.Call(ctx, "Geometry.distance", p)
//
// # Loading
//
// Load compiles the module and runs its initializer once to record the
// structures it describes. Identical bytes are loaded once, even when Load
// is called concurrently. Module.Structures are host-memory copies meant for
// inspection; Instance.Structure returns the live structures of an instance.
//
// # Caching
//
// With Config.CacheDir set, compiled code is cached by wazero and the
// recorded structure catalog is written next to it, keyed by the SHA-256 of
// the module bytes. A later Load of the same bytes replays the catalog
// instead of running the initializer.
//
// # Configuration
//
// Config is usually read from TOML with LoadConfig:
//
//	cache_dir = "~/.cache/wasm-bridge"
//	memory_limit_pages = 256
//	wasi = true
//
//	[log]
//	level = "info"
//
// # Function Names
//
// Call accepts "Owner.function", the WIT form "[static]owner.function", or a
// bare function name when only one structure defines it.
package runtime
