package sched

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/tactus-go/internal/emit"
	"github.com/cbegin/tactus-go/internal/event"
	"github.com/cbegin/tactus-go/internal/gate"
	"github.com/cbegin/tactus-go/internal/pattern"
	"github.com/cbegin/tactus-go/internal/rhythm"
	"github.com/cbegin/tactus-go/internal/timebase"
)

func newRhythm(t *testing.T, pitch int, strengths ...float64) *rhythm.Rhythm {
	t.Helper()
	tab, err := pattern.TableOf(strengths...)
	require.NoError(t, err)
	em, err := emit.Sequence(event.NewNote(pitch))
	require.NoError(t, err)
	r, err := rhythm.New(rhythm.DefaultConfig(), tab, nil, em)
	require.NoError(t, err)
	return r
}

func TestPollMergesAndOrdersAcrossRhythms(t *testing.T) {
	s, err := New(48000, Options{})
	require.NoError(t, err)
	s.Add(newRhythm(t, 60, 1, 0, 1, 0))
	s.Add(newRhythm(t, 72, 1, 1, 1, 1))
	s.Start()

	evs := s.Poll(48000)
	require.NotEmpty(t, evs)
	for i := 1; i < len(evs); i++ {
		require.LessOrEqual(t, evs[i-1].Time, evs[i].Time,
			"merged stream must be ordered by time")
	}
	// Ties at a shared step break by registration order: slot 0's pitch
	// comes first.
	assert.Equal(t, 60, evs[0].Note.Pitches[0])
	assert.Equal(t, 72, evs[1].Note.Pitches[0])
	assert.Equal(t, evs[0].Time, evs[1].Time)
}

func TestPollsCoverContiguousWindowsWithoutGapsOrRepeats(t *testing.T) {
	s, err := New(48000, Options{})
	require.NoError(t, err)
	s.Add(newRhythm(t, 60, 1, 1, 1, 1))
	s.Start()

	var all []event.Event
	for i := 0; i < 100; i++ {
		all = append(all, s.Poll(1024)...)
	}
	require.NotEmpty(t, all)
	seen := map[timebase.Position]bool{}
	var last timebase.Position = -1
	for _, ev := range all {
		require.False(t, seen[ev.Time], "event repeated at %d", ev.Time)
		seen[ev.Time] = true
		require.GreaterOrEqual(t, ev.Time, last)
		last = ev.Time
	}
}

func TestTransportCommandsApplyBetweenPolls(t *testing.T) {
	s, err := New(48000, Options{})
	require.NoError(t, err)
	s.Add(newRhythm(t, 60, 1))
	require.Empty(t, s.Poll(4800), "stopped transport emits nothing")

	s.Start()
	require.NoError(t, s.SetTempo(240))
	evs := s.Poll(48000)
	require.NotEmpty(t, evs)
	assert.Equal(t, 240.0, s.Transport().BPM,
		"tempo staged before the poll must be in force for the whole poll")
}

func TestTransportValidationRejectsSynchronously(t *testing.T) {
	s, err := New(48000, Options{})
	require.NoError(t, err)
	require.ErrorIs(t, s.SetTempo(0), timebase.ErrInvalidTempo)
	require.ErrorIs(t, s.SetTempo(-10), timebase.ErrInvalidTempo)
	require.ErrorIs(t, s.Seek(100), ErrNotStarted, "seek before start is rejected")
	require.Error(t, s.Seek(-1))

	s.Start()
	require.NoError(t, s.Seek(96000))
	s.Poll(1024)
	assert.Equal(t, timebase.Position(96000+1024), s.Transport().Pos)
}

func TestSwapAppliesAtPollBoundary(t *testing.T) {
	s, err := New(48000, Options{})
	require.NoError(t, err)
	id := s.Add(newRhythm(t, 60, 1, 1, 1, 1))
	s.Start()
	first := s.Poll(24000)
	require.NotEmpty(t, first)

	dense, err := pattern.TableOf(1, 1, 1, 1, 1, 1, 1, 1)
	require.NoError(t, err)
	em, err := emit.Sequence(event.NewNote(72))
	require.NoError(t, err)
	require.NoError(t, s.Swap(id, rhythm.Replacement{Generator: dense, Emitter: em}))

	second := s.Poll(24000)
	require.NotEmpty(t, second)
	lastBefore := first[len(first)-1].Time
	for _, ev := range second {
		assert.Equal(t, 72, ev.Note.Pitches[0], "swapped emitter must be live")
		assert.GreaterOrEqual(t, ev.Time, lastBefore,
			"live replacement must never move time backward")
	}
	require.ErrorIs(t, s.Swap(99, rhythm.Replacement{}), ErrUnknownSlot)
}

func TestRemoveTakesEffectNextPoll(t *testing.T) {
	s, err := New(48000, Options{})
	require.NoError(t, err)
	id := s.Add(newRhythm(t, 60, 1, 1, 1, 1))
	keep := s.Add(newRhythm(t, 72, 1, 1, 1, 1))
	s.Start()
	s.Poll(12000)

	require.NoError(t, s.Remove(id))
	evs := s.Poll(48000)
	require.NotEmpty(t, evs)
	for _, ev := range evs {
		assert.Equal(t, 72, ev.Note.Pitches[0], "removed slot must fall silent")
	}
	states := s.SlotStates()
	assert.NotContains(t, states, id)
	assert.Contains(t, states, keep)
}

func TestFaultyRhythmNeverBlocksOthers(t *testing.T) {
	s48 := 48000
	var diags []int
	s, err := New(s48, Options{OnError: func(slot int, err error) {
		diags = append(diags, slot)
	}})
	require.NoError(t, err)

	tab, err := pattern.TableOf(1, 1, 1, 1)
	require.NoError(t, err)
	bad := emit.Func(func(p pattern.Pulse) ([]event.Event, error) {
		return nil, errors.New("malformed payload")
	}, nil)
	badR, err := rhythm.New(rhythm.DefaultConfig(), tab, nil, bad)
	require.NoError(t, err)
	badID := s.Add(badR)
	s.Add(newRhythm(t, 72, 1, 1, 1, 1))
	s.Start()

	evs := s.Poll(48000)
	require.NotEmpty(t, evs, "healthy rhythm keeps playing")
	for _, ev := range evs {
		assert.Equal(t, 72, ev.Note.Pitches[0])
	}
	require.NotEmpty(t, diags)
	for _, slot := range diags {
		assert.Equal(t, badID, slot)
	}
}

func TestSnapshotReadsAreSafeDuringPolls(t *testing.T) {
	s, err := New(48000, Options{})
	require.NoError(t, err)
	s.Add(newRhythm(t, 60, 1, 1, 1, 1))
	s.Start()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			s.Poll(480)
		}
	}()
	// Concurrent control-path reads while the poll goroutine runs; the race
	// detector trips here if transport or slot state is read unlocked.
	for {
		select {
		case <-done:
			assert.Equal(t, timebase.Position(200*480), s.Transport().Pos)
			return
		default:
			_ = s.Transport()
			_ = s.SlotStates()
		}
	}
}

func TestGatedSchedulingEndToEnd(t *testing.T) {
	s, err := New(48000, Options{})
	require.NoError(t, err)
	tab, err := pattern.TableOf(1, 1, 1, 1)
	require.NoError(t, err)
	em, err := emit.Sequence(event.NewNote(60))
	require.NoError(t, err)
	r, err := rhythm.New(rhythm.DefaultConfig(), tab, gate.EveryN(2, 0), em)
	require.NoError(t, err)
	s.Add(r)
	s.Start()

	evs := s.Poll(48000)
	// One second at 120 BPM covers 8 sixteenth pulses; every second one
	// survives the gate.
	assert.Len(t, evs, 4)
}
