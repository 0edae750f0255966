// Package accessor synthesizes bit-precise readers and writers for the
// primitive members of foreign structures.
//
// An accessor is resolved once per (kind, bit width, bit offset, container)
// combination and cached under its name, for example getInt12@4 for a signed
// 12-bit field starting four bits into a byte. Resolution walks a fixed
// handler chain:
//
//	unaligned -> jumbo (>64 bits) -> bool -> int/uint -> f16 -> f32 -> f64 -> f80 -> f128 -> bytes
//
// Values cross the boundary as bool, int64, uint64, float64, *big.Int or
// []byte. Setters accept any Go number and report overflow and type errors
// from the errors package.
package accessor
