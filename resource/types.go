package resource

// Handle is an opaque reference to a resource in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Kind identifies what a handle refers to. Observers receive it with every
// lifecycle event.
type Kind uint32

const (
	KindCallback Kind = iota + 1
	KindAllocator
	KindPromise
	KindGenerator
	KindAbortSignal
	KindReader
	KindWriter
	KindDestructor
)

var kindNames = [...]string{
	KindCallback:    "callback",
	KindAllocator:   "allocator",
	KindPromise:     "promise",
	KindGenerator:   "generator",
	KindAbortSignal: "abort-signal",
	KindReader:      "reader",
	KindWriter:      "writer",
	KindDestructor:  "destructor",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "unknown"
}

// EventType identifies a lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

// Event represents a resource lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Kind   Kind
	Type   EventType
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Dropper is implemented by resource values that need cleanup. The table
// calls Drop exactly once, on Remove or on Close.
type Dropper interface {
	Drop()
}

// DropFunc adapts a function to Dropper. Insert one under KindDestructor to
// run arbitrary cleanup when the table closes.
type DropFunc func()

func (f DropFunc) Drop() { f() }
