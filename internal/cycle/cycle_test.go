package cycle

import (
	"math"
	"strings"
	"testing"

	"github.com/cbegin/tactus-go/internal/pattern"
)

// chromatic resolves c-b note names in a fixed octave, enough for tests.
func chromatic(token string) ([]int, error) {
	base := map[string]int{"c4": 60, "e4": 64, "g4": 67, "bd": 36, "sn": 38, "hh": 42}
	if v, ok := base[token]; ok {
		return []int{v}, nil
	}
	return nil, errNoSuchToken
}

var errNoSuchToken = errString("no such token")

type errString string

func (e errString) Error() string { return string(e) }

func TestThreeLeavesEvenlySpaced(t *testing.T) {
	p, err := Compile("c4 e4 g4", chromatic, Options{})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	for cycle := 0; cycle < 5; cycle++ {
		placed := p.Evaluate(cycle)
		if len(placed) != 3 {
			t.Fatalf("cycle %d: expected 3 leaves, got %d", cycle, len(placed))
		}
		want := []float64{0, 1.0 / 3, 2.0 / 3}
		tokens := []string{"c4", "e4", "g4"}
		for i, pl := range placed {
			if math.Abs(pl.Offset-want[i]) > 1e-9 {
				t.Fatalf("cycle %d leaf %d: expected offset %v, got %v", cycle, i, want[i], pl.Offset)
			}
			if pl.Token != tokens[i] {
				t.Fatalf("cycle %d leaf %d: expected %s, got %s", cycle, i, tokens[i], pl.Token)
			}
		}
	}
}

func TestSequenceRoundTripAnyLength(t *testing.T) {
	for n := 1; n <= 12; n++ {
		src := strings.TrimSpace(strings.Repeat("c4 ", n))
		p, err := Compile(src, chromatic, Options{})
		if err != nil {
			t.Fatalf("n=%d: compile failed: %v", n, err)
		}
		placed := p.Evaluate(7)
		if len(placed) != n {
			t.Fatalf("n=%d: expected %d leaves, got %d", n, n, len(placed))
		}
		for i, pl := range placed {
			want := float64(i) / float64(n)
			if math.Abs(pl.Offset-want) > 1e-9 {
				t.Fatalf("n=%d leaf %d: expected offset %v, got %v", n, i, want, pl.Offset)
			}
			if math.Abs(pl.Dur-1.0/float64(n)) > 1e-9 {
				t.Fatalf("n=%d leaf %d: expected dur %v, got %v", n, i, 1.0/float64(n), pl.Dur)
			}
		}
	}
}

func TestRestsOccupyTimeWithoutLeaves(t *testing.T) {
	p, err := Compile("c4 ~ e4 -", chromatic, Options{})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	placed := p.Evaluate(0)
	if len(placed) != 2 {
		t.Fatalf("expected 2 leaves, got %d", len(placed))
	}
	if math.Abs(placed[1].Offset-0.5) > 1e-9 {
		t.Fatalf("rest should hold its slot: got offset %v", placed[1].Offset)
	}
}

func TestGroupingPlaysFasterInsideSlot(t *testing.T) {
	p, err := Compile("c4 [e4 g4]", chromatic, Options{})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	placed := p.Evaluate(0)
	if len(placed) != 3 {
		t.Fatalf("expected 3 leaves, got %d", len(placed))
	}
	if math.Abs(placed[1].Offset-0.5) > 1e-9 || math.Abs(placed[2].Offset-0.75) > 1e-9 {
		t.Fatalf("grouped pair should split the second half: %v", placed)
	}
}

func TestStackFansOutSimultaneousLeaves(t *testing.T) {
	p, err := Compile("[c4 e4, g4]", chromatic, Options{})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	placed := p.Evaluate(0)
	if len(placed) != 3 {
		t.Fatalf("expected 3 leaves, got %d", len(placed))
	}
	if placed[0].Offset != 0 || placed[1].Offset != 0 {
		t.Fatalf("stacked leaves should share offset 0: %v", placed)
	}
}

func TestAlternationRoundRobin(t *testing.T) {
	p, err := Compile("c4 | e4 | g4", chromatic, Options{})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	want := []string{"c4", "e4", "g4", "c4"}
	for cycle, tok := range want {
		placed := p.Evaluate(cycle)
		if len(placed) != 1 || placed[0].Token != tok {
			t.Fatalf("cycle %d: expected %s, got %v", cycle, tok, placed)
		}
	}
}

func TestRandomAlternationIsSeedStable(t *testing.T) {
	a, err := Compile("c4 | e4 | g4", chromatic, Options{RandomAlternate: true, Seed: 7})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	b, _ := Compile("c4 | e4 | g4", chromatic, Options{RandomAlternate: true, Seed: 7})
	for cycle := 0; cycle < 32; cycle++ {
		if a.Evaluate(cycle)[0].Token != b.Evaluate(cycle)[0].Token {
			t.Fatalf("same seed diverged at cycle %d", cycle)
		}
	}
}

func TestEuclideanShorthand(t *testing.T) {
	p, err := Compile("bd(3,8)", chromatic, Options{})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	placed := p.Evaluate(0)
	if len(placed) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(placed))
	}
	want := []float64{0, 3.0 / 8, 6.0 / 8}
	for i, pl := range placed {
		if math.Abs(pl.Offset-want[i]) > 1e-9 {
			t.Fatalf("hit %d: expected offset %v, got %v", i, want[i], pl.Offset)
		}
	}
}

func TestWeightAndRepeatSuffixes(t *testing.T) {
	p, err := Compile("c4@2 e4", chromatic, Options{})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	placed := p.Evaluate(0)
	if math.Abs(placed[1].Offset-2.0/3) > 1e-9 {
		t.Fatalf("weighted entry should take two thirds: %v", placed)
	}

	p, err = Compile("c4!3 e4", chromatic, Options{})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	placed = p.Evaluate(0)
	if len(placed) != 4 {
		t.Fatalf("repeat suffix should expand entries: %v", placed)
	}
}

func TestCompileErrorsCarryPositions(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unbalanced open", "[c4 e4", "unbalanced '[' at 0"},
		{"unbalanced close", "c4 ]", "unbalanced ']' at 3"},
		{"bad euclid", "c4(9,8)", "at 2"},
		{"empty", "   ", "empty pattern"},
		{"unknown token", "c4 zz9", `unknown token "zz9" at 3`},
	}
	for _, tt := range tests {
		_, err := Compile(tt.src, chromatic, Options{})
		if err == nil {
			t.Fatalf("%s: expected compile error", tt.name)
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: expected error containing %q, got %q", tt.name, tt.want, err)
		}
	}
}

func TestNilResolverAcceptsIntegersOnly(t *testing.T) {
	p, err := Compile("60 64 67", nil, Options{})
	if err != nil {
		t.Fatalf("integer literals should compile without a resolver: %v", err)
	}
	placed := p.Evaluate(0)
	if len(placed) != 3 {
		t.Fatalf("expected 3 leaves, got %d", len(placed))
	}
	if _, err := Compile("c4", nil, Options{}); err == nil {
		t.Fatalf("expected error for symbolic token with nil resolver")
	}
}

func TestGeneratorAndEmitterAgree(t *testing.T) {
	p, err := Compile("c4 e4 g4 | g4 e4", chromatic, Options{})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	em := p.Emitter()
	index := uint64(0)
	wantPitches := []int{60, 64, 67, 67, 64, 60, 64, 67}
	got := make([]int, 0, len(wantPitches))
	for cycle := 0; cycle < 3; cycle++ {
		steps, slots := p.Cycle(cycle)
		if slots != 1 {
			t.Fatalf("compiled patterns span one slot per cycle, got %d", slots)
		}
		for range steps {
			evs, err := em.Emit(pattern.Pulse{Index: index, Strength: 1})
			if err != nil {
				t.Fatalf("emit failed at index %d: %v", index, err)
			}
			got = append(got, evs[0].Note.Pitches[0])
			index++
		}
	}
	for i, w := range wantPitches {
		if got[i] != w {
			t.Fatalf("pulse %d: expected pitch %d, got %d (all: %v)", i, w, got[i], got)
		}
	}
}

func TestEmitterSkipsGatedPulses(t *testing.T) {
	p, err := Compile("c4 e4 g4", chromatic, Options{})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	em := p.Emitter()
	// Pulse 1 was gated out; pulse 2 must still resolve to g4.
	if _, err := em.Emit(pattern.Pulse{Index: 0, Strength: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	evs, err := em.Emit(pattern.Pulse{Index: 2, Strength: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evs[0].Note.Pitches[0] != 67 {
		t.Fatalf("expected g4 after a skipped pulse, got %v", evs[0].Note.Pitches)
	}
}

func TestEmitterKeysOffFirstPulseAfterReset(t *testing.T) {
	p, err := Compile("c4 e4 g4", chromatic, Options{})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	// A rhythm that has been running for a while hands the fresh emitter a
	// nonzero first index; the walk still starts at the first leaf.
	em := p.Emitter()
	evs, err := em.Emit(pattern.Pulse{Index: 4, Strength: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evs[0].Note.Pitches[0] != 60 {
		t.Fatalf("first pulse after attach must play the first leaf, got %v", evs[0].Note.Pitches)
	}
	evs, err = em.Emit(pattern.Pulse{Index: 5, Strength: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evs[0].Note.Pitches[0] != 64 {
		t.Fatalf("second pulse must play the second leaf, got %v", evs[0].Note.Pitches)
	}

	em.Reset()
	evs, err = em.Emit(pattern.Pulse{Index: 9, Strength: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evs[0].Note.Pitches[0] != 60 {
		t.Fatalf("reset must rebase the walk on the next pulse, got %v", evs[0].Note.Pitches)
	}
}
