package structure

// Kind is the layout family of a structure.
type Kind uint8

const (
	KindPrimitive Kind = iota
	KindArray
	KindStruct
	KindArgStruct
	KindUnion
	KindErrorUnion
	KindErrorSet
	KindEnum
	KindOptional
	KindPointer
	KindSlice
	KindVector
	KindOpaque
	KindFunction
	kindCount
)

var kindNames = [kindCount]string{
	KindPrimitive:  "primitive",
	KindArray:      "array",
	KindStruct:     "struct",
	KindArgStruct:  "arg-struct",
	KindUnion:      "union",
	KindErrorUnion: "error-union",
	KindErrorSet:   "error-set",
	KindEnum:       "enum",
	KindOptional:   "optional",
	KindPointer:    "pointer",
	KindSlice:      "slice",
	KindVector:     "vector",
	KindOpaque:     "opaque",
	KindFunction:   "function",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return "unknown"
}

// valueLike kinds are read through Get and At as Go values rather than objects.
func (k Kind) valueLike() bool {
	return k == KindPrimitive || k == KindEnum || k == KindErrorSet
}

// Flags is the structure flag bitset. The low byte holds capabilities
// computed at definition time; the rest are kind specific and sent by the
// foreign module.
type Flags uint32

const (
	FlagHasValue Flags = 1 << iota
	FlagHasObject
	FlagHasPointer
	FlagHasSlot
	_
	_
	_
	_

	// pointer
	FlagConst
	FlagNullable
	FlagHasLength
	FlagMultiple

	// array, slice
	FlagString
	FlagSentinel

	// union
	FlagSelector

	// enum
	FlagOpenEnded

	// struct
	FlagTuple
	FlagExtern

	// error set
	FlagGlobalSet

	// opaque and pointer targets that must live in foreign memory
	FlagForeignOnly
)

const capabilityMask Flags = 0xff

// Has reports whether all bits of f2 are set.
func (f Flags) Has(f2 Flags) bool { return f&f2 == f2 }

// Purpose marks structures that the call marshaler synthesizes instead of
// taking from positional arguments.
type Purpose uint8

const (
	PurposeNone Purpose = iota
	PurposeAllocator
	PurposePromise
	PurposeGenerator
	PurposeAbortSignal
	PurposeReader
	PurposeWriter
)

var purposeNames = [...]string{
	PurposeNone:        "none",
	PurposeAllocator:   "allocator",
	PurposePromise:     "promise",
	PurposeGenerator:   "generator",
	PurposeAbortSignal: "abort-signal",
	PurposeReader:      "reader",
	PurposeWriter:      "writer",
}

func (p Purpose) String() string {
	if int(p) < len(purposeNames) {
		return purposeNames[p]
	}
	return "unknown"
}

// MemberType is the representation of a member.
type MemberType uint8

const (
	MemberVoid MemberType = iota
	MemberBool
	MemberInt
	MemberUint
	MemberFloat
	MemberObject
	MemberTypeRef
	MemberLiteral
	MemberNull
	MemberUndefined
	MemberUnsupported
)

var memberTypeNames = [...]string{
	MemberVoid:        "void",
	MemberBool:        "bool",
	MemberInt:         "int",
	MemberUint:        "uint",
	MemberFloat:       "float",
	MemberObject:      "object",
	MemberTypeRef:     "type",
	MemberLiteral:     "literal",
	MemberNull:        "null",
	MemberUndefined:   "undefined",
	MemberUnsupported: "unsupported",
}

func (t MemberType) String() string {
	if int(t) < len(memberTypeNames) {
		return memberTypeNames[t]
	}
	return "unknown"
}

// MemberFlags is the member flag bitset.
type MemberFlags uint16

const (
	MemberRequired MemberFlags = 1 << iota
	MemberReadOnly
	MemberSentinel
	MemberPartOfSet
	MemberSelector
	MemberMethod
	MemberBackingInt
)

// Has reports whether all bits of f2 are set.
func (f MemberFlags) Has(f2 MemberFlags) bool { return f&f2 == f2 }
