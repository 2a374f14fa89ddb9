package emit

import (
	"github.com/cbegin/tactus-go/internal/event"
	"github.com/cbegin/tactus-go/internal/pattern"
)

// Transpose shifts every note an emitter produces by semitones. Parameter
// events pass through untouched.
func Transpose(e Emitter, semitones int) Emitter {
	return &mapped{e: e, fn: func(ev event.Event) event.Event {
		if ev.Kind != event.KindNote {
			return ev
		}
		shifted := make([]int, len(ev.Note.Pitches))
		for i, p := range ev.Note.Pitches {
			shifted[i] = p + semitones
		}
		ev.Note.Pitches = shifted
		return ev
	}}
}

// Gain scales note volume. Values above 1 are clamped at stamp time by the
// consumer; the engine keeps the raw product.
func Gain(e Emitter, scale float64) Emitter {
	return &mapped{e: e, fn: func(ev event.Event) event.Event {
		if ev.Kind == event.KindNote {
			ev.Note.Volume *= scale
		}
		return ev
	}}
}

// Pan overrides note pan, in [-1,1].
func Pan(e Emitter, pan float64) Emitter {
	return &mapped{e: e, fn: func(ev event.Event) event.Event {
		if ev.Kind == event.KindNote {
			ev.Note.Pan = pan
		}
		return ev
	}}
}

// PitchOffsets adds one offset per event from a cycling list, so a single
// emitter can fan a line across intervals without its own logic changing.
// The cycling position is private state and clears on Reset like any other
// emitter state.
func PitchOffsets(e Emitter, offsets []int) Emitter {
	return &pitchOffsets{e: e, offsets: offsets}
}

type pitchOffsets struct {
	e       Emitter
	offsets []int
	i       int
}

func (po *pitchOffsets) Emit(p pattern.Pulse) ([]event.Event, error) {
	evs, err := po.e.Emit(p)
	if err != nil {
		return nil, err
	}
	out := make([]event.Event, len(evs))
	for i, ev := range evs {
		if ev.Kind == event.KindNote && len(po.offsets) > 0 {
			off := po.offsets[po.i%len(po.offsets)]
			po.i++
			shifted := make([]int, len(ev.Note.Pitches))
			for j, p := range ev.Note.Pitches {
				shifted[j] = p + off
			}
			ev.Note.Pitches = shifted
		}
		out[i] = ev
	}
	return out, nil
}

func (po *pitchOffsets) Reset() {
	po.i = 0
	po.e.Reset()
}

type mapped struct {
	e  Emitter
	fn func(event.Event) event.Event
}

func (m *mapped) Emit(p pattern.Pulse) ([]event.Event, error) {
	evs, err := m.e.Emit(p)
	if err != nil {
		return nil, err
	}
	out := make([]event.Event, len(evs))
	for i, ev := range evs {
		out[i] = m.fn(ev)
	}
	return out, nil
}

func (m *mapped) Reset() { m.e.Reset() }

// Stack merges the outputs of several emitters at the same pulse, in the
// order given.
func Stack(ems ...Emitter) Emitter { return stack(ems) }

type stack []Emitter

func (s stack) Emit(p pattern.Pulse) ([]event.Event, error) {
	var out []event.Event
	for _, e := range s {
		evs, err := e.Emit(p)
		if err != nil {
			return nil, err
		}
		out = append(out, evs...)
	}
	return out, nil
}

func (s stack) Reset() {
	for _, e := range s {
		e.Reset()
	}
}

// Rotate hands successive pulses to successive sub-emitters round-robin.
type rotate struct {
	ems []Emitter
	i   int
}

func Rotate(ems ...Emitter) Emitter { return &rotate{ems: ems} }

func (r *rotate) Emit(p pattern.Pulse) ([]event.Event, error) {
	e := r.ems[r.i%len(r.ems)]
	r.i++
	return e.Emit(p)
}

func (r *rotate) Reset() {
	r.i = 0
	for _, e := range r.ems {
		e.Reset()
	}
}
