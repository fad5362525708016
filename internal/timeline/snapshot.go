package timeline

import (
	"sort"
	"time"
)

// Snapshot is an immutable copy of the timeline taken at one instant.
type Snapshot struct {
	Clips []Clip
}

// TotalDuration is the latest window end, 0 when empty.
func (s Snapshot) TotalDuration() time.Duration {
	var total time.Duration
	for _, c := range s.Clips {
		if e := c.End(); e > total {
			total = e
		}
	}
	return total
}

// OfKind returns the clips of kind k in insertion order.
func (s Snapshot) OfKind(k Kind) []Clip {
	var out []Clip
	for _, c := range s.Clips {
		if c.Kind == k {
			out = append(out, c)
		}
	}
	return out
}

// ByLayer returns the clips of kind k ordered by ascending layer; ties keep
// insertion order.
func (s Snapshot) ByLayer(k Kind) []Clip {
	out := s.OfKind(k)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Layer < out[j].Layer })
	return out
}
