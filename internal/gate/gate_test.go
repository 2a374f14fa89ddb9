package gate

import (
	"testing"

	"github.com/cbegin/tactus-go/internal/pattern"
)

func pulse(i uint64, strength float64) pattern.Pulse {
	return pattern.Pulse{Index: i, Strength: strength}
}

func TestDefaultPassesNonZeroUnchanged(t *testing.T) {
	g := Default()
	d := g.Evaluate(pulse(0, 0.7))
	if !d.Passed || d.Strength != 0.7 {
		t.Fatalf("expected pass at 0.7, got %+v", d)
	}
	if d := g.Evaluate(pulse(1, 0)); d.Passed {
		t.Fatalf("rest slot must not pass the default gate")
	}
}

func TestProbabilityIsDeterministic(t *testing.T) {
	a := Probability(0.5, 42)
	b := Probability(0.5, 42)
	for i := uint64(0); i < 256; i++ {
		if a.Evaluate(pulse(i, 1)).Passed != b.Evaluate(pulse(i, 1)).Passed {
			t.Fatalf("same seed diverged at index %d", i)
		}
	}
	passed := 0
	for i := uint64(0); i < 1000; i++ {
		if a.Evaluate(pulse(i, 1)).Passed {
			passed++
		}
	}
	if passed < 400 || passed > 600 {
		t.Fatalf("prob 0.5 passed %d of 1000", passed)
	}
}

func TestEveryN(t *testing.T) {
	g := EveryN(4, 1)
	var passed []uint64
	for i := uint64(0); i < 12; i++ {
		if g.Evaluate(pulse(i, 1)).Passed {
			passed = append(passed, i)
		}
	}
	want := []uint64{1, 5, 9}
	if len(passed) != len(want) {
		t.Fatalf("expected passes at %v, got %v", want, passed)
	}
	for i := range want {
		if passed[i] != want[i] {
			t.Fatalf("expected passes at %v, got %v", want, passed)
		}
	}
}

func TestEveryNNegativePhaseCountsFromEnd(t *testing.T) {
	g := EveryN(4, -1)
	var passed []uint64
	for i := uint64(0); i < 12; i++ {
		if g.Evaluate(pulse(i, 1)).Passed {
			passed = append(passed, i)
		}
	}
	// Phase -1 of 4 is the last slot of each group.
	want := []uint64{3, 7, 11}
	if len(passed) != len(want) {
		t.Fatalf("expected passes at %v, got %v", want, passed)
	}
	for i := range want {
		if passed[i] != want[i] {
			t.Fatalf("expected passes at %v, got %v", want, passed)
		}
	}
}

func TestAccentMemoryUpdatesOnRejection(t *testing.T) {
	g := Accent(4).(*accent)
	g.Evaluate(pulse(0, 0))
	g.Evaluate(pulse(1, 0))
	if len(g.history) != 2 {
		t.Fatalf("rejected pulses must still update memory, history=%v", g.history)
	}
	// Against an all-rest history the next hit is boosted.
	d := g.Evaluate(pulse(2, 0.5))
	if !d.Passed || d.Strength <= 0.5 {
		t.Fatalf("expected boosted strength above 0.5, got %+v", d)
	}
	if len(g.history) != 3 || g.history[2] != 0.5 {
		t.Fatalf("memory should record the raw strength: %v", g.history)
	}
}

func TestAccentWindowBound(t *testing.T) {
	g := Accent(3).(*accent)
	for i := uint64(0); i < 10; i++ {
		g.Evaluate(pulse(i, 1))
	}
	if len(g.history) != 3 {
		t.Fatalf("history should cap at window, got %d", len(g.history))
	}
}
