package shadow

import (
	"sort"

	"github.com/wippyai/wasm-bridge/memory"
)

// Target is host memory a pointer refers to, with the alignment the foreign
// side expects for it.
type Target struct {
	View  *memory.View
	Align int
}

func (t *Target) start() int { return t.View.Offset() }
func (t *Target) end() int   { return t.View.Offset() + t.View.Len() }

func (t *Target) align() int {
	if t.Align <= 0 {
		return 1
	}
	return t.Align
}

// Cluster is a group of targets in one buffer whose byte ranges overlap.
// All of them share a single shadow allocation covering [Start, End).
type Cluster struct {
	Targets []*Target
	Start   int
	End     int
	// Align is the largest alignment of any member.
	Align int
	// Misaligned is set when some member's offset from Start does not
	// satisfy its own alignment.
	Misaligned bool
	entry      *memory.Entry
}

// Len returns the length of the shared range.
func (c *Cluster) Len() int { return c.End - c.Start }

func (c *Cluster) add(t *Target) {
	c.Targets = append(c.Targets, t)
	if t.end() > c.End {
		c.End = t.end()
	}
}

func (c *Cluster) seal() {
	c.Align = 1
	for _, t := range c.Targets {
		if a := t.align(); a > c.Align {
			c.Align = a
		}
	}
	for _, t := range c.Targets {
		if (t.start()-c.Start)%t.align() != 0 {
			c.Misaligned = true
			return
		}
	}
}

// GroupByBuffer splits targets by the buffer they live in, keeping first-seen
// order.
func GroupByBuffer(targets []*Target) [][]*Target {
	index := make(map[*memory.Buffer]int)
	var groups [][]*Target
	for _, t := range targets {
		buf := t.View.Buffer()
		i, ok := index[buf]
		if !ok {
			i = len(groups)
			index[buf] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], t)
	}
	return groups
}

// FindTargetClusters merges overlapping targets of each group into clusters.
// Every group must hold targets of a single buffer. Targets that overlap
// nothing are not part of any cluster, and zero-length targets never overlap.
func FindTargetClusters(groups [][]*Target) []*Cluster {
	var clusters []*Cluster
	for _, group := range groups {
		sorted := make([]*Target, 0, len(group))
		for _, t := range group {
			if t.View.Len() > 0 {
				sorted = append(sorted, t)
			}
		}
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].start() != sorted[j].start() {
				return sorted[i].start() < sorted[j].start()
			}
			return sorted[i].end() > sorted[j].end()
		})

		var current *Cluster
		var prev *Target
		end := -1
		for _, t := range sorted {
			if prev != nil && t.start() < end {
				if current == nil {
					current = &Cluster{Start: prev.start(), End: prev.end()}
					current.Targets = append(current.Targets, prev)
					clusters = append(clusters, current)
				}
				current.add(t)
				if t.end() > end {
					end = t.end()
				}
				continue
			}
			if current != nil {
				current.seal()
			}
			current = nil
			prev = t
			end = t.end()
		}
		if current != nil {
			current.seal()
		}
	}
	return clusters
}

// Index maps each clustered target to its cluster.
func Index(clusters []*Cluster) map[*Target]*Cluster {
	m := make(map[*Target]*Cluster)
	for _, c := range clusters {
		for _, t := range c.Targets {
			m[t] = c
		}
	}
	return m
}
