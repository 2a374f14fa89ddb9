// Package emit turns gate-passed pulses into timed events. Emitters are
// invoked once per surviving pulse, in index order, never re-entrantly; a
// stateful emitter may keep private state between calls, which Reset clears
// when its rhythm restarts or is replaced.
package emit

import (
	"errors"

	"github.com/cbegin/tactus-go/internal/event"
	"github.com/cbegin/tactus-go/internal/pattern"
)

type Emitter interface {
	// Emit returns zero or more unstamped events for one pulse. The pulse
	// strength arrives post-gate; emitters fold it into event volume.
	Emit(p pattern.Pulse) ([]event.Event, error)
	// Reset clears private state for a rhythm restart or replacement.
	Reset()
}

// Sequence cycles through a fixed list of note payloads, one per emission:
// the i-th surviving pulse maps to notes[i mod len]. Gate rejections never
// advance the position.
func Sequence(notes ...event.NotePayload) (Emitter, error) {
	if len(notes) == 0 {
		return nil, errors.New("emit: sequence needs at least one note")
	}
	return &sequence{notes: notes}, nil
}

type sequence struct {
	notes []event.NotePayload
	pos   int
}

func (s *sequence) Emit(p pattern.Pulse) ([]event.Event, error) {
	n := s.notes[s.pos%len(s.notes)]
	s.pos++
	n.Volume *= p.Strength
	return []event.Event{event.Note(n)}, nil
}

func (s *sequence) Reset() { s.pos = 0 }

// Func adapts a closure as a stateful emitter. The optional reset is called
// on rhythm restart or replacement.
func Func(fn func(p pattern.Pulse) ([]event.Event, error), reset func()) Emitter {
	return &funcEmitter{fn: fn, reset: reset}
}

type funcEmitter struct {
	fn    func(p pattern.Pulse) ([]event.Event, error)
	reset func()
}

func (f *funcEmitter) Emit(p pattern.Pulse) ([]event.Event, error) { return f.fn(p) }

func (f *funcEmitter) Reset() {
	if f.reset != nil {
		f.reset()
	}
}

// Param cycles through parameter-change values for a named target.
func Param(target string, values ...float64) (Emitter, error) {
	if len(values) == 0 {
		return nil, errors.New("emit: param needs at least one value")
	}
	return &param{target: target, values: values}, nil
}

type param struct {
	target string
	values []float64
	pos    int
}

func (p *param) Emit(pattern.Pulse) ([]event.Event, error) {
	v := p.values[p.pos%len(p.values)]
	p.pos++
	return []event.Event{event.Param(p.target, v)}, nil
}

func (p *param) Reset() { p.pos = 0 }

// ArpOrder selects the walk direction of an arpeggiator.
type ArpOrder int

const (
	ArpUp ArpOrder = iota
	ArpDown
	ArpUpDown
)

// Arp walks a held pitch set one note per pulse. It carries private state
// (position and direction) across calls; Reset restarts the walk.
func Arp(pitches []int, order ArpOrder) (Emitter, error) {
	if len(pitches) == 0 {
		return nil, errors.New("emit: arp needs at least one pitch")
	}
	a := &arp{pitches: pitches, order: order}
	a.Reset()
	return a, nil
}

type arp struct {
	pitches []int
	order   ArpOrder
	pos     int
	dir     int
}

func (a *arp) Emit(p pattern.Pulse) ([]event.Event, error) {
	n := event.NewNote(a.pitches[a.pos])
	n.Volume = p.Strength
	a.step()
	return []event.Event{event.Note(n)}, nil
}

func (a *arp) step() {
	if len(a.pitches) == 1 {
		return
	}
	switch a.order {
	case ArpUp:
		a.pos = (a.pos + 1) % len(a.pitches)
	case ArpDown:
		a.pos--
		if a.pos < 0 {
			a.pos = len(a.pitches) - 1
		}
	case ArpUpDown:
		next := a.pos + a.dir
		if next < 0 || next >= len(a.pitches) {
			a.dir = -a.dir
			next = a.pos + a.dir
		}
		a.pos = next
	}
}

func (a *arp) Reset() {
	a.pos = 0
	a.dir = 1
	if a.order == ArpDown {
		a.pos = len(a.pitches) - 1
	}
}
