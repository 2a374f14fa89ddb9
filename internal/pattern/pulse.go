// Package pattern produces restartable, indexable pulse trains from static
// tables, recursive subdivision trees and Euclidean distributions. A pulse is
// a timed tick candidate; whether it becomes an event is decided downstream
// by gates and emitters.
package pattern

import (
	"github.com/cbegin/tactus-go/internal/timebase"
)

// Pulse is one tick candidate. Index increases strictly monotonically within
// a rhythm; Strength is in [0,1], with 0 meaning a rest slot that still
// occupies an index.
type Pulse struct {
	Index    uint64
	Time     timebase.Position
	Strength float64
}

// Step is one pulse slot within a cycle, positioned in slot units from the
// cycle start. A flat table of N entries spans N slots with one step per
// slot; nested subdivision packs several shorter steps into one slot.
type Step struct {
	Offset   float64
	Dur      float64
	Strength float64
}

// Generator is a restartable pulse source. Cycle must be pure: the same n
// always yields the same steps, so replaying after a reset or a seek
// reproduces the stream exactly. The returned slice is shared; callers must
// not modify it.
type Generator interface {
	Cycle(n int) (steps []Step, slots int)
}
