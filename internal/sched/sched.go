// Package sched merges many rhythms into one ordered event stream driven by
// a single transport. The scheduler is advanced by one driving clock (the
// audio callback or an equivalent periodic driver); the only designed
// concurrent path is staging mutations — swaps, removals, transport
// commands — which are queued under a lock and applied strictly between
// polls so a poll always observes one consistent regime.
package sched

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cbegin/tactus-go/internal/event"
	"github.com/cbegin/tactus-go/internal/rhythm"
	"github.com/cbegin/tactus-go/internal/timebase"
)

var (
	ErrNotStarted  = errors.New("sched: transport not started")
	ErrUnknownSlot = errors.New("sched: unknown slot")
)

// Options configures a scheduler. OnError receives non-fatal per-rhythm
// diagnostics (failed emitter calls, bad unit conversions) tagged with the
// offending slot. It runs on the polling goroutine while the scheduler's
// lock is held, so it must not call back into the scheduler.
type Options struct {
	OnError func(slot int, err error)
}

type slot struct {
	id int
	r  *rhythm.Rhythm
}

type Scheduler struct {
	tr      timebase.Transport
	slots   []slot
	nextID  int
	onError func(slot int, err error)

	mu          sync.Mutex
	cmds        []func()
	startQueued bool
}

func New(sampleRate int, opts Options) (*Scheduler, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sched: sample rate must be positive, got %d", sampleRate)
	}
	return &Scheduler{
		tr:      timebase.DefaultTransport(sampleRate),
		onError: opts.OnError,
	}, nil
}

// Add registers a rhythm and returns its slot id. Registration order is the
// poll and tie-break order. The rhythm becomes active at the next poll.
func (s *Scheduler) Add(r *rhythm.Rhythm) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.cmds = append(s.cmds, func() {
		s.slots = append(s.slots, slot{id: id, r: r})
	})
	return id
}

// Swap stages a live replacement for a slot, applied at the start of the
// next poll. The rhythm keeps its slot (and therefore its tie-break order).
func (s *Scheduler) Swap(id int, rep rhythm.Replacement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= s.nextID {
		return fmt.Errorf("%w: %d", ErrUnknownSlot, id)
	}
	s.cmds = append(s.cmds, func() {
		if r := s.find(id); r != nil {
			r.Replace(rep)
		}
	})
	return nil
}

// Remove stages removal of a slot at the next poll boundary.
func (s *Scheduler) Remove(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= s.nextID {
		return fmt.Errorf("%w: %d", ErrUnknownSlot, id)
	}
	s.cmds = append(s.cmds, func() {
		if r := s.find(id); r != nil {
			r.Remove()
		}
	})
	return nil
}

// Start begins the transport at its current position on the next poll.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startQueued = true
	s.cmds = append(s.cmds, func() { s.tr.Running = true })
}

// Stop halts the transport on the next poll; position is retained.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startQueued = false
	s.cmds = append(s.cmds, func() { s.tr.Running = false })
}

// SetTempo validates synchronously and applies between polls.
func (s *Scheduler) SetTempo(bpm float64) error {
	if bpm <= 0 {
		return timebase.ErrInvalidTempo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = append(s.cmds, func() { s.tr.BPM = bpm })
	return nil
}

// SetSignature validates synchronously and applies between polls.
func (s *Scheduler) SetSignature(beatsPerBar int) error {
	if beatsPerBar < 1 {
		return fmt.Errorf("sched: beats per bar must be at least 1, got %d", beatsPerBar)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = append(s.cmds, func() { s.tr.BeatsPerBar = beatsPerBar })
	return nil
}

// Seek validates synchronously (the transport must have been started, the
// target must not be negative) and moves the position between polls.
func (s *Scheduler) Seek(pos timebase.Position) error {
	if pos < 0 {
		return fmt.Errorf("sched: seek target %d is negative", pos)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tr.Running && !s.startQueued {
		return ErrNotStarted
	}
	s.cmds = append(s.cmds, func() { s.tr.Pos = pos })
	return nil
}

// Poll applies staged commands, then collects every event due in
// [pos, pos+frames) across all slots in registration order, merged and
// sorted by time with ties broken by registration order. A fault in one
// rhythm never blocks another's output in the same poll.
func (s *Scheduler) Poll(frames int) []event.Event {
	// The whole poll runs under the lock: control-goroutine readers
	// (Transport, SlotStates) and staged mutations block for at most one
	// poll window and never observe a half-advanced transport.
	s.mu.Lock()
	defer s.mu.Unlock()
	cmds := s.cmds
	s.cmds = nil
	for _, cmd := range cmds {
		cmd()
	}

	if !s.tr.Running || frames <= 0 {
		return nil
	}
	start := s.tr.Pos
	end := start + timebase.Position(frames)

	var out []event.Event
	for _, sl := range s.slots {
		id := sl.id
		var cb func(error)
		if s.onError != nil {
			cb = func(err error) { s.onError(id, err) }
		}
		out = append(out, sl.r.Poll(s.tr, start, end, cb)...)
	}
	s.compact()
	s.tr.Pos = end

	// Events were appended in registration order, so a stable sort by time
	// leaves ties deterministically ordered.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// Transport returns a read-only snapshot of the session clock.
func (s *Scheduler) Transport() timebase.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tr
}

// SlotStates reports each registered slot's lifecycle state, for UIs and
// diagnostics.
func (s *Scheduler) SlotStates() map[int]rhythm.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]rhythm.State, len(s.slots))
	for _, sl := range s.slots {
		out[sl.id] = sl.r.State()
	}
	return out
}

func (s *Scheduler) compact() {
	kept := s.slots[:0]
	for _, sl := range s.slots {
		if sl.r.State() != rhythm.Removed {
			kept = append(kept, sl)
		}
	}
	s.slots = kept
}

func (s *Scheduler) find(id int) *rhythm.Rhythm {
	for _, sl := range s.slots {
		if sl.id == id {
			return sl.r
		}
	}
	return nil
}
