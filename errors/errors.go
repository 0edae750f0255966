package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDefine Phase = "define" // type catalog processing
	PhaseInit   Phase = "init"   // instance initialization and arguments
	PhaseAccess Phase = "access" // property reads and writes
	PhaseMemory Phase = "memory" // views, shadows, registration
	PhaseCall   Phase = "call"   // foreign calls
	PhaseAsync  Phase = "async"  // promise and generator completion
	PhaseLoad   Phase = "load"   // module loading
	PhaseConfig Phase = "config" // configuration
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch         Kind = "type_mismatch"
	KindWrongLength          Kind = "wrong_length"
	KindMultipleInitializers Kind = "multiple_initializers"
	KindMissingInitializer   Kind = "missing_initializer"
	KindFieldMissing         Kind = "field_missing"
	KindFieldUnknown         Kind = "field_unknown"
	KindOutOfBounds          Kind = "out_of_bounds"
	KindOverflow             Kind = "overflow"
	KindArgumentCount        Kind = "argument_count"
	KindConstCast            Kind = "const_cast"
	KindNullPointer          Kind = "null_pointer"
	KindForeignRequired      Kind = "foreign_required"
	KindFreedMemory          Kind = "freed_memory"
	KindAlignmentConflict    Kind = "alignment_conflict"
	KindInactiveField        Kind = "inactive_field"
	KindReadOnly             Kind = "read_only"
	KindInvalidEnum          Kind = "invalid_enum"
	KindInvalidError         Kind = "invalid_error"
	KindDuplicateMember      Kind = "duplicate_member"
	KindUnnamedStructure     Kind = "unnamed_structure"
	KindRecursiveType        Kind = "recursive_type"
	KindNativeCall           Kind = "native_call"
	KindDeadlock             Kind = "deadlock"
	KindAborted              Kind = "aborted"
	KindAllocation           Kind = "allocation"
	KindUnsupported          Kind = "unsupported"
	KindNotFound             Kind = "not_found"
	KindInvalidData          Kind = "invalid_data"
	KindInvalidInput         Kind = "invalid_input"
	KindClosed               Kind = "closed"
	KindInternal             Kind = "internal"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value     any
	Cause     error
	Phase     Phase
	Kind      Kind
	Structure string
	Detail    string
	Path      []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Structure != "" {
		b.WriteString(" in ")
		b.WriteString(e.Structure)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Structure sets the name of the offending structure
func (b *Builder) Structure(name string) *Builder {
	b.err.Structure = name
	return b
}

// Path sets the member path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, structure string, path []string, value any, expected string) *Error {
	return &Error{
		Phase:     phase,
		Kind:      KindTypeMismatch,
		Structure: structure,
		Path:      path,
		Value:     value,
		Detail:    fmt.Sprintf("expected %s, received %s", expected, TypeName(value)),
	}
}

// WrongLength creates a length mismatch error for fixed-length containers
func WrongLength(structure string, expected, actual int) *Error {
	return &Error{
		Phase:     PhaseInit,
		Kind:      KindWrongLength,
		Structure: structure,
		Value:     actual,
		Detail:    fmt.Sprintf("expected %d elements, received %d", expected, actual),
	}
}

// MultipleInitializers creates an error for unions given more than one field
func MultipleInitializers(structure string, names []string) *Error {
	return &Error{
		Phase:     PhaseInit,
		Kind:      KindMultipleInitializers,
		Structure: structure,
		Value:     names,
		Detail:    fmt.Sprintf("only one property may be set, received %s", strings.Join(names, ", ")),
	}
}

// MissingInitializer creates an error for unions without a field or default
func MissingInitializer(structure string) *Error {
	return &Error{
		Phase:     PhaseInit,
		Kind:      KindMissingInitializer,
		Structure: structure,
		Detail:    "an initializer must be provided",
	}
}

// FieldMissing creates a missing field error
func FieldMissing(phase Phase, structure string, fieldName string) *Error {
	return &Error{
		Phase:     phase,
		Kind:      KindFieldMissing,
		Structure: structure,
		Path:      []string{fieldName},
		Detail:    fmt.Sprintf("required field %q not provided", fieldName),
	}
}

// FieldUnknown creates an unknown field error
func FieldUnknown(phase Phase, structure string, fieldName string) *Error {
	return &Error{
		Phase:     phase,
		Kind:      KindFieldUnknown,
		Structure: structure,
		Path:      []string{fieldName},
		Detail:    fmt.Sprintf("unknown field %q", fieldName),
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, structure string, index, length int) *Error {
	return &Error{
		Phase:     phase,
		Kind:      KindOutOfBounds,
		Structure: structure,
		Detail:    fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:     index,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
	}
}

// InvalidEnum creates an invalid enum value error
func InvalidEnum(structure string, value any) *Error {
	return &Error{
		Phase:     PhaseInit,
		Kind:      KindInvalidEnum,
		Structure: structure,
		Detail:    fmt.Sprintf("invalid enum value %v", value),
		Value:     value,
	}
}

// ReadOnly creates an error for writes into frozen memory
func ReadOnly(structure string, path ...string) *Error {
	return &Error{
		Phase:     PhaseAccess,
		Kind:      KindReadOnly,
		Structure: structure,
		Path:      path,
		Detail:    "object is read-only",
	}
}

// AlignmentConflict creates an error for clusters whose members cannot share one shadow
func AlignmentConflict(offset, align int) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindAlignmentConflict,
		Detail: fmt.Sprintf("offset %d within shared shadow does not satisfy alignment %d", offset, align),
		Value:  offset,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align int, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
		Cause:  cause,
	}
}

// NativeCall creates the generic foreign call failure error
func NativeCall(status uint32, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindNativeCall,
		Detail: fmt.Sprintf("foreign call failed with status %d", status),
		Value:  status,
		Cause:  cause,
	}
}

// ArgumentCount creates an error for calls with the wrong number of arguments
func ArgumentCount(function string, expected, actual int) *Error {
	return &Error{
		Phase:     PhaseInit,
		Kind:      KindArgumentCount,
		Structure: function,
		Detail:    fmt.Sprintf("expecting %d argument(s), received %d", expected, actual),
		Value:     actual,
	}
}

// Argument adjusts an initialization error raised for the argument at index.
// Non-structured errors are wrapped as type mismatches.
func Argument(function string, index int, cause error) *Error {
	pos := fmt.Sprintf("args[%d]", index)
	var e *Error
	if As(cause, &e) {
		out := *e
		out.Path = append([]string{pos}, e.Path...)
		if out.Structure == "" {
			out.Structure = function
		}
		return &out
	}
	return &Error{
		Phase:     PhaseInit,
		Kind:      KindTypeMismatch,
		Structure: function,
		Path:      []string{pos},
		Cause:     cause,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Internal reports a broken invariant.
func Internal(phase Phase, detail string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInternal,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}
