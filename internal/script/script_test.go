package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/tactus-go/internal/cycle"
	"github.com/cbegin/tactus-go/internal/pitch"
	"github.com/cbegin/tactus-go/internal/sched"
)

func newEngine(t *testing.T) (*Engine, *sched.Scheduler) {
	t.Helper()
	s, err := sched.New(48000, sched.Options{})
	require.NoError(t, err)
	return New(s, pitch.Resolve, cycle.Options{}), s
}

func TestScriptBuildsAndSchedulesCycle(t *testing.T) {
	e, s := newEngine(t)
	err := e.RunString(`
slot = add(rhythm(cycle("c4 e4 g4"), unit="bar"))
tempo(60)
start()
`)
	require.NoError(t, err)

	// One bar at 60 BPM in 4/4 is 4 seconds; poll it whole.
	evs := s.Poll(4 * 48000)
	require.Len(t, evs, 3)
	assert.Equal(t, 60, evs[0].Note.Pitches[0])
	assert.Equal(t, 64, evs[1].Note.Pitches[0])
	assert.Equal(t, 67, evs[2].Note.Pitches[0])
}

func TestScriptTableWithNotesAndGate(t *testing.T) {
	e, s := newEngine(t)
	err := e.RunString(`
add(rhythm(table(1, 1, 1, 1), notes("c4"), gate=every(2)))
start()
`)
	require.NoError(t, err)
	evs := s.Poll(48000)
	// 8 sixteenth pulses in the window, half pass the gate.
	assert.Len(t, evs, 4)
}

func TestScriptSwapAndRemove(t *testing.T) {
	e, s := newEngine(t)
	err := e.RunString(`
slot = add(rhythm(table(1, 1, 1, 1), notes(60)))
start()
`)
	require.NoError(t, err)
	require.NotEmpty(t, s.Poll(24000))

	require.NoError(t, e.RunString(`swap(0, emitter=notes(72))`))
	evs := s.Poll(24000)
	require.NotEmpty(t, evs)
	for _, ev := range evs {
		assert.Equal(t, 72, ev.Note.Pitches[0])
	}

	require.NoError(t, e.RunString(`remove(0)`))
	assert.Empty(t, s.Poll(24000))
}

func TestScriptArpAndEuclid(t *testing.T) {
	e, s := newEngine(t)
	err := e.RunString(`
add(rhythm(euclid(3, 8), arp([60, 64, 67], order="up")))
start()
`)
	require.NoError(t, err)
	// Eight sixteenth slots hold the euclid cycle; hits land at 0, 3 and 6.
	evs := s.Poll(48000)
	require.Len(t, evs, 3)
	assert.Equal(t, 60, evs[0].Note.Pitches[0])
	assert.Equal(t, 64, evs[1].Note.Pitches[0])
	assert.Equal(t, 67, evs[2].Note.Pitches[0])
}

func TestScriptNumericArgsAcceptInts(t *testing.T) {
	e, s := newEngine(t)
	// Scripts naturally write whole numbers; every float parameter must take
	// them: tempo, threshold, prob and offset below are all Starlark ints.
	err := e.RunString(`
tempo(240)
add(rhythm(table(1, 1, 1, 1), notes(60), gate=threshold(0), offset=1))
add(rhythm(table(1), notes(72), gate=prob(1)))
start()
`)
	require.NoError(t, err)
	evs := s.Poll(48000)
	require.NotEmpty(t, evs)
	assert.Equal(t, 240.0, s.Transport().BPM)
}

func TestScriptErrorsSurfaceAtRunTime(t *testing.T) {
	e, _ := newEngine(t)
	cases := []string{
		`cycle("[a b")`,
		`rhythm(table(1), notes(60), unit="fortnights")`,
		`euclid(9, 8)`,
		`prob(1.5)`,
		`tempo(-10)`,
		`swap(99, emitter=notes(60))`,
		`rhythm(euclid(3, 8))`,
		`notes("zz9")`,
	}
	for _, src := range cases {
		assert.Error(t, e.RunString(src), "script %q should fail", src)
	}
}
