// Package shadow makes host memory reachable from foreign code for the
// duration of a call.
//
// A pointer whose target lives in a Go slice has no address the module can
// use. Before the call the bridge allocates an aligned copy in linear memory
// (the shadow), hands the module the shadow's address and copies the host
// bytes in. After the call writable shadows are copied back.
//
// Targets in the same host buffer may overlap, for example a struct and a
// slice of one of its fields. FindTargetClusters merges overlapping targets so
// they share one shadow and the module sees consistent aliasing:
//
//	clusters := shadow.FindTargetClusters(shadow.GroupByBuffer(targets))
//	byTarget := shadow.Index(clusters)
//	ctx := m.StartContext()
//	defer m.EndContext()
//	addr, err := m.ShadowAddress(ctx, t, byTarget[t], writable)
//
// Contexts nest. Shadows are freed only when the outermost context ends, so a
// callback that re-enters the module still sees the shadows of its caller.
package shadow
