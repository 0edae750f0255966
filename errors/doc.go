// Package errors provides structured error types for the wasm bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the offending structure name, the member path, the received
// value and a cause chain, which is enough to format a precise message.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseInit, errors.KindTypeMismatch).
//		Structure("Point").
//		Path("x").
//		Value("hello").
//		Detail("expected number").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.MultipleInitializers("Shape", []string{"circle", "square"})
//	err := errors.OutOfBounds(errors.PhaseAccess, "[4]u8", 10, 4)
//
// All errors implement the standard error interface and support errors.Is/As.
// Is matches on Phase and Kind only, so a bare &Error{Phase, Kind} works as a target.
package errors
