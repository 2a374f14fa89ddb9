// Package rhythm combines a time base, a pulse generator, an optional gate
// and an emitter into a single source of timed events, and owns the
// offset/resolution/repeat policy around them.
package rhythm

import (
	"errors"
	"fmt"
	"math"

	"github.com/cbegin/tactus-go/internal/emit"
	"github.com/cbegin/tactus-go/internal/event"
	"github.com/cbegin/tactus-go/internal/gate"
	"github.com/cbegin/tactus-go/internal/pattern"
	"github.com/cbegin/tactus-go/internal/timebase"
)

type State int

const (
	Idle State = iota
	Running
	Exhausted
	Removed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Exhausted:
		return "exhausted"
	case Removed:
		return "removed"
	}
	return "invalid"
}

// Config fixes how a rhythm maps its generator's slot grid onto the
// transport. Offset delays the first pulse by that many unit multiples;
// Repeats bounds the number of cycles (0 means unbounded).
type Config struct {
	Unit       timebase.Unit
	Resolution timebase.Ratio
	Offset     float64
	Repeats    int
}

func DefaultConfig() Config {
	return Config{
		Unit:       timebase.Steps(16),
		Resolution: timebase.One,
	}
}

// Replacement carries the parts of a live swap. Nil fields keep the current
// part.
type Replacement struct {
	Generator pattern.Generator
	Gate      gate.Gate
	Emitter   emit.Emitter
}

type Rhythm struct {
	cfg Config
	gen pattern.Generator
	gt  gate.Gate
	em  emit.Emitter

	state     State
	index     uint64
	cycle     int
	steps     []pattern.Step
	slots     int
	stepIdx   int
	slotsDone float64
	last      timebase.Position
	haveLast  bool

	pending       *Replacement
	pendingRemove bool
}

// New validates the configuration; all configuration errors surface here,
// never during playback.
func New(cfg Config, gen pattern.Generator, gt gate.Gate, em emit.Emitter) (*Rhythm, error) {
	if gen == nil {
		return nil, errors.New("rhythm: generator is required")
	}
	if em == nil {
		return nil, errors.New("rhythm: emitter is required")
	}
	if !cfg.Resolution.Valid() {
		return nil, fmt.Errorf("rhythm: invalid resolution %s", cfg.Resolution)
	}
	if cfg.Offset < 0 {
		return nil, fmt.Errorf("rhythm: offset must not be negative, got %v", cfg.Offset)
	}
	if cfg.Repeats < 0 {
		return nil, fmt.Errorf("rhythm: repeats must not be negative, got %d", cfg.Repeats)
	}
	if gt == nil {
		gt = gate.Default()
	}
	return &Rhythm{cfg: cfg, gen: gen, gt: gt, em: em}, nil
}

func (r *Rhythm) State() State { return r.state }

// Replace stages a live swap, applied atomically at the next pulse boundary
// (the start of the next poll) so an in-flight emission is never split.
func (r *Rhythm) Replace(rep Replacement) {
	r.pending = &rep
}

// Remove marks the rhythm for removal at the next poll boundary.
func (r *Rhythm) Remove() {
	r.pendingRemove = true
}

func (r *Rhythm) applyPending() {
	if r.pendingRemove {
		r.state = Removed
		r.pending = nil
		return
	}
	if r.pending == nil {
		return
	}
	rep := r.pending
	r.pending = nil
	if rep.Generator != nil {
		r.gen = rep.Generator
	}
	if rep.Gate != nil {
		r.gt = rep.Gate
	}
	if rep.Emitter != nil {
		r.em = rep.Emitter
	}
	// The cycle walk restarts on the new parts; accumulated slots and the
	// monotonic clamp survive, so time never moves backward across a swap.
	r.em.Reset()
	r.cycle = 0
	r.steps = nil
	r.stepIdx = 0
	if r.state == Exhausted {
		r.state = Running
	}
}

// Poll advances the rhythm through the window [start, end) against the
// given transport snapshot and returns the events that fall due. Pulse
// times are recomputed from the snapshot every call, so tempo changes move
// pending pulses; the monotonic clamp keeps the stream non-decreasing.
// Emitter failures are reported through onError and cost only that pulse's
// events.
func (r *Rhythm) Poll(tr timebase.Transport, start, end timebase.Position, onError func(error)) []event.Event {
	r.applyPending()
	if r.state == Removed || r.state == Exhausted {
		return nil
	}
	r.state = Running

	slotDur, err := tr.UnitSamples(r.cfg.Unit, r.cfg.Resolution)
	if err != nil {
		if onError != nil {
			onError(err)
		}
		return nil
	}
	offset := r.cfg.Offset * slotDur

	var out []event.Event
	for {
		if r.steps == nil {
			if r.cfg.Repeats > 0 && r.cycle >= r.cfg.Repeats {
				r.state = Exhausted
				break
			}
			steps, slots := r.gen.Cycle(r.cycle)
			if slots <= 0 {
				r.state = Exhausted
				break
			}
			if len(steps) == 0 {
				// An all-rest cycle still occupies time. Stop once its start
				// reaches the window end or the poll would never return.
				at := timebase.Position(math.Round(offset + r.slotsDone*slotDur))
				if at >= end {
					break
				}
				r.slotsDone += float64(slots)
				r.cycle++
				continue
			}
			r.steps = steps
			r.slots = slots
			r.stepIdx = 0
		}

		st := r.steps[r.stepIdx]
		t := timebase.Position(math.Round(offset + (r.slotsDone+st.Offset)*slotDur))
		if r.haveLast && t < r.last {
			t = r.last
		}
		if t >= end {
			break
		}

		// Pulses that fell behind the window (a forward seek jumped them)
		// elapse silently: they advance the grid but reach neither gate nor
		// emitter, so a seek never floods the next poll with backlog.
		if t >= start {
			p := pattern.Pulse{Index: r.index, Time: t, Strength: st.Strength}
			d := r.gt.Evaluate(p)
			if d.Passed {
				p.Strength = d.Strength
				evs, err := r.safeEmit(p)
				if err != nil {
					if onError != nil {
						onError(fmt.Errorf("pulse %d: %w", p.Index, err))
					}
				} else {
					for _, ev := range evs {
						ev.Time = t
						if ev.Kind == event.KindNote && ev.Note.Delay > 0 {
							ev.Time += timebase.Position(math.Round(ev.Note.Delay * st.Dur * slotDur))
						}
						out = append(out, ev)
					}
				}
			}
		}

		r.last = t
		r.haveLast = true
		r.index++
		r.stepIdx++
		if r.stepIdx >= len(r.steps) {
			r.slotsDone += float64(r.slots)
			r.cycle++
			r.steps = nil
		}
	}
	return out
}

// safeEmit isolates emitter faults: a panicking user closure costs its own
// pulse, never the poll loop.
func (r *Rhythm) safeEmit(p pattern.Pulse) (evs []event.Event, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			evs = nil
			err = fmt.Errorf("emitter panic: %v", rec)
		}
	}()
	return r.em.Emit(p)
}
