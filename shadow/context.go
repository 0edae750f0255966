package shadow

import (
	"sync"

	"github.com/wippyai/wasm-bridge/memory"
)

// allocationList tracks the shadow views made during one call context.
type allocationList struct {
	views []*memory.View
}

var allocationListPool = sync.Pool{
	New: func() any {
		return &allocationList{views: make([]*memory.View, 0, 8)}
	},
}

const maxPooledAllocationCapacity = 128

func newAllocationList() *allocationList {
	return allocationListPool.Get().(*allocationList)
}

func (al *allocationList) add(v *memory.View) {
	al.views = append(al.views, v)
}

// release returns the list to the pool. The list is invalid afterwards.
func (al *allocationList) release() {
	if cap(al.views) > maxPooledAllocationCapacity {
		return
	}
	clear(al.views)
	al.views = al.views[:0]
	allocationListPool.Put(al)
}

// Context accumulates the shadows of one top-level foreign call, including
// every call re-entered while it is outstanding.
type Context struct {
	allocs  *allocationList
	byView  map[*memory.View]*memory.Entry
	entries []*memory.Entry
	depth   int
}

// Depth returns how many StartContext calls are still open.
func (c *Context) Depth() int { return c.depth }

// Entries returns the shadow entries registered in this context.
func (c *Context) Entries() []*memory.Entry { return c.entries }
