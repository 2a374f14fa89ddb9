// Package event defines the immutable timed events the engine hands to its
// consumer. Ownership passes from emitter to scheduler to consumer; nothing
// in the engine mutates an event after it is stamped.
package event

import "github.com/cbegin/tactus-go/internal/timebase"

type Kind int

const (
	KindNote Kind = iota + 1
	KindParam
)

// Event is one timed musical event. Exactly one payload is meaningful,
// selected by Kind.
type Event struct {
	Kind  Kind
	Time  timebase.Position
	Note  NotePayload
	Param ParamPayload
}

// NotePayload describes a note (or chord, when Pitches holds several
// values). Delay is a fraction of the originating pulse's duration in
// [0,1) and is folded into Time when the rhythm stamps the event; it is
// kept for consumers that want the unquantized grid position. Off marks a
// note release.
type NotePayload struct {
	Pitches    []int
	Volume     float64
	Pan        float64
	Delay      float64
	Instrument int
	Off        bool
}

// ParamPayload is a parameter change addressed to a named target in the
// downstream engine.
type ParamPayload struct {
	Target string
	Value  float64
}

// NewNote builds a Note event payload with unit volume and centered pan.
func NewNote(pitches ...int) NotePayload {
	return NotePayload{Pitches: pitches, Volume: 1}
}

// Note wraps a payload into an unstamped Note event.
func Note(p NotePayload) Event { return Event{Kind: KindNote, Note: p} }

// Param wraps a parameter change into an unstamped event.
func Param(target string, value float64) Event {
	return Event{Kind: KindParam, Param: ParamPayload{Target: target, Value: value}}
}
