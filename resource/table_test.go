package resource

import (
	"testing"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnResourceEvent(e Event) {
	o.events = append(o.events, e)
}

type dropCounter struct {
	count int
}

func (d *dropCounter) Drop() {
	d.count++
}

func TestTable_Basic(t *testing.T) {
	table := NewTable()

	h := table.Insert(KindReader, "test")
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}

	val, ok := table.Get(h)
	if !ok || val != "test" {
		t.Fatalf("Get = %v, %v", val, ok)
	}

	val, ok = table.Remove(h)
	if !ok || val != "test" {
		t.Fatalf("Remove = %v, %v", val, ok)
	}
	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Remove")
	}
	if _, ok := table.Remove(h); ok {
		t.Fatal("second Remove should fail")
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	h := table.Insert(KindPromise, "test")
	if len(obs.events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(obs.events))
	}
	if e := obs.events[0]; e.Type != EventCreated || e.Handle != h || e.Kind != KindPromise {
		t.Fatalf("unexpected event %+v", e)
	}

	table.Remove(h)
	if len(obs.events) != 2 || obs.events[1].Type != EventDropped {
		t.Fatalf("Expected EventDropped, got %+v", obs.events)
	}

	var live []Kind
	table.Insert(KindWriter, "w")
	table.Each(func(_ Handle, k Kind, _ any) bool {
		live = append(live, k)
		return true
	})
	if len(live) != 1 || live[0] != KindWriter {
		t.Fatalf("Each visited %v", live)
	}
}

func TestTable_Borrowed(t *testing.T) {
	table := NewTable()
	d := &dropCounter{}
	h := table.Insert(KindCallback, d)

	if !table.Borrow(h) {
		t.Fatal("Borrow failed")
	}
	if _, ok := table.Remove(h); ok {
		t.Fatal("borrowed handle was removed")
	}
	if d.count != 0 || table.Len() != 1 {
		t.Fatal("failed Remove dropped a borrowed handle")
	}
	table.Return(h)
	if _, ok := table.Remove(h); !ok || d.count != 1 {
		t.Fatalf("Remove after Return: dropped %d times", d.count)
	}
}

func TestTable_Close(t *testing.T) {
	table := NewTable()

	var order []string
	table.Defer(func() { order = append(order, "first") })
	table.Defer(func() { order = append(order, "second") })
	d := &dropCounter{}
	h := table.Insert(KindAllocator, d)
	table.Borrow(h)

	if err := table.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := table.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if d.count != 1 {
		t.Fatalf("Expected Drop() once, called %d times", d.count)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Fatalf("destructors ran as %v", order)
	}
	if !table.Closed() {
		t.Fatal("Closed() = false")
	}
	if h := table.Insert(KindCallback, "c"); h != 0 {
		t.Fatal("Expected Insert to fail after Close")
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindCallback, "callback"},
		{KindAbortSignal, "abort-signal"},
		{KindDestructor, "destructor"},
		{Kind(0), "unknown"},
		{Kind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
