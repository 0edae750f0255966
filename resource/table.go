package resource

import (
	"sync"
)

// Table maps handles to host values the foreign module refers to, and runs
// their destructors.
type Table struct {
	backend   *LocalBackend
	observers []Observer
	obsMu     sync.RWMutex
	closed    bool
	closeMu   sync.RWMutex
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		backend: NewLocalBackend(),
	}
}

// Insert adds a value and returns its handle, or 0 once the table is closed.
func (t *Table) Insert(kind Kind, value any) Handle {
	t.closeMu.RLock()
	if t.closed {
		t.closeMu.RUnlock()
		return 0
	}
	t.closeMu.RUnlock()

	handle, err := t.backend.Create(kind, value)
	if err != nil {
		return 0
	}

	t.notify(Event{
		Type:   EventCreated,
		Handle: handle,
		Kind:   kind,
		Value:  value,
	})

	return handle
}

// Defer registers fn to run when the table closes.
func (t *Table) Defer(fn func()) Handle {
	return t.Insert(KindDestructor, DropFunc(fn))
}

// Get retrieves a value by handle.
func (t *Table) Get(handle Handle) (any, bool) {
	return t.backend.Get(handle)
}

// Borrow keeps handle alive while it is in use. Every successful Borrow
// must be paired with Return.
func (t *Table) Borrow(handle Handle) bool {
	return t.backend.Borrow(handle)
}

// Return releases a borrow taken with Borrow.
func (t *Table) Return(handle Handle) bool {
	return t.backend.ReturnBorrow(handle)
}

// Remove drops a resource, running its destructor. It returns false for
// unknown or borrowed handles.
func (t *Table) Remove(handle Handle) (any, bool) {
	kind, _ := t.backend.Kind(handle)
	value, err := t.backend.Drop(handle)
	if err != nil {
		return nil, false
	}

	if d, ok := value.(Dropper); ok {
		d.Drop()
	}

	t.notify(Event{
		Type:   EventDropped,
		Handle: handle,
		Kind:   kind,
		Value:  value,
	})

	return value, true
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Len returns the number of active resources.
func (t *Table) Len() int {
	return t.backend.Len()
}

// Each iterates over all active resources.
func (t *Table) Each(fn func(Handle, Kind, any) bool) {
	t.backend.Each(fn)
}

// Close runs every remaining destructor, newest first, and stops accepting
// inserts. Borrowed resources are dropped as well. Calling Close again does
// nothing.
func (t *Table) Close() error {
	t.closeMu.Lock()
	if t.closed {
		t.closeMu.Unlock()
		return nil
	}
	t.closed = true
	t.closeMu.Unlock()

	live := t.backend.Close()
	for i := len(live) - 1; i >= 0; i-- {
		if d, ok := live[i].(Dropper); ok {
			d.Drop()
		}
	}
	return nil
}

// Closed reports whether Close has been called.
func (t *Table) Closed() bool {
	t.closeMu.RLock()
	defer t.closeMu.RUnlock()
	return t.closed
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
