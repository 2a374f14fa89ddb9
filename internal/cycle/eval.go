package cycle

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"

	"github.com/cbegin/tactus-go/internal/emit"
	"github.com/cbegin/tactus-go/internal/event"
	"github.com/cbegin/tactus-go/internal/pattern"
)

// Options configures evaluation. Alternation is strict round-robin by cycle
// index unless RandomAlternate is set, in which case each cycle draws its
// branches from a rng seeded by (Seed, cycle index) so playback stays
// reproducible for a fixed seed.
type Options struct {
	RandomAlternate bool
	Seed            int64
}

// Resolver maps a leaf token to one or more pitch values. It must be pure;
// the compiler calls it once per distinct token at compile time.
type Resolver func(token string) ([]int, error)

// Placed is one leaf positioned within a cycle: an offset in [0,1) from the
// cycle start and a duration as a fraction of the cycle.
type Placed struct {
	Offset float64
	Dur    float64
	Token  string
	Pos    int
}

// Pattern is a compiled cycle. It implements pattern.Generator (one pulse
// per leaf offset) and derives an emitter carrying each leaf's resolved
// pitches, so compiled text plugs into a rhythm exactly like imperative
// construction.
type Pattern struct {
	src     string
	root    *node
	opts    Options
	pitches map[string][]int
}

// Compile parses src and resolves every leaf token through the resolver.
// With a nil resolver only integer literals are accepted. All malformed
// notation and unknown tokens are reported here, before scheduling, with a
// byte position.
func Compile(src string, resolver Resolver, opts Options) (*Pattern, error) {
	root, err := parse(src)
	if err != nil {
		return nil, err
	}
	p := &Pattern{src: src, root: root, opts: opts, pitches: map[string][]int{}}
	if err := p.resolve(root, resolver); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pattern) resolve(n *node, resolver Resolver) error {
	if n.kind == nLeaf {
		if _, done := p.pitches[n.token]; done {
			return nil
		}
		if v, err := strconv.Atoi(n.token); err == nil {
			p.pitches[n.token] = []int{v}
			return nil
		}
		if resolver == nil {
			return fmt.Errorf("unknown token %q at %d", n.token, n.pos)
		}
		pitches, err := resolver(n.token)
		if err != nil {
			return fmt.Errorf("unknown token %q at %d: %v", n.token, n.pos, err)
		}
		p.pitches[n.token] = pitches
		return nil
	}
	for _, c := range n.children {
		if err := p.resolve(c, resolver); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate returns the cycle's leaves in offset order. Pure: the same cycle
// index always yields the same placement.
func (p *Pattern) Evaluate(cycleIdx int) []Placed {
	var rng *rand.Rand
	if p.opts.RandomAlternate {
		rng = rand.New(rand.NewSource(p.opts.Seed ^ int64(uint64(cycleIdx)*0x9E3779B97F4A7C15)))
	}
	var out []Placed
	evalNode(p.root, cycleIdx, rng, 0, 1, &out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

func evalNode(n *node, cycleIdx int, rng *rand.Rand, start, dur float64, out *[]Placed) {
	switch n.kind {
	case nLeaf:
		*out = append(*out, Placed{Offset: start, Dur: dur, Token: n.token, Pos: n.pos})
	case nSilence:
		// Rests occupy time but place nothing.
	case nSequence:
		total := 0
		for _, w := range n.weights {
			total += w
		}
		at := start
		for i, c := range n.children {
			span := dur * float64(n.weights[i]) / float64(total)
			evalNode(c, cycleIdx, rng, at, span, out)
			at += span
		}
	case nStack:
		for _, c := range n.children {
			evalNode(c, cycleIdx, rng, start, dur, out)
		}
	case nAlternate:
		idx := cycleIdx % len(n.children)
		if idx < 0 {
			idx += len(n.children)
		}
		if rng != nil {
			idx = rng.Intn(len(n.children))
		}
		evalNode(n.children[idx], cycleIdx, rng, start, dur, out)
	case nEuclid:
		slot := dur / float64(n.steps)
		for i, hit := range n.euclid {
			if hit {
				evalNode(n.children[0], cycleIdx, rng, start+float64(i)*slot, slot, out)
			}
		}
	}
}

// Cycle implements pattern.Generator: one strength-1 pulse per leaf, the
// whole cycle spanning a single slot so the rhythm's unit sets the cycle
// length.
func (p *Pattern) Cycle(n int) ([]pattern.Step, int) {
	placed := p.Evaluate(n)
	steps := make([]pattern.Step, len(placed))
	for i, pl := range placed {
		steps[i] = pattern.Step{Offset: pl.Offset, Dur: pl.Dur, Strength: 1}
	}
	return steps, 1
}

// Emitter derives the emitter half of the compiled pattern. It walks the
// same evaluation the generator produced, keyed by pulse index, so gated-out
// pulses are skipped without desynchronizing leaf values.
func (p *Pattern) Emitter() emit.Emitter {
	return &cycleEmitter{p: p}
}

// cycleEmitter advances relative to the first pulse it sees after a reset,
// so a pattern swapped into a long-running rhythm starts at its first leaf
// even though the rhythm's pulse indices keep counting.
type cycleEmitter struct {
	p        *Pattern
	base     uint64
	haveBase bool
	next     uint64
	cycle    int
	placed   []Placed
	used     int
}

func (e *cycleEmitter) Emit(pl pattern.Pulse) ([]event.Event, error) {
	if !e.haveBase {
		e.base = pl.Index
		e.haveBase = true
	}
	if pl.Index < e.base {
		return nil, fmt.Errorf("cycle emitter: pulse index %d replayed", pl.Index)
	}
	rel := pl.Index - e.base
	if rel < e.next {
		return nil, fmt.Errorf("cycle emitter: pulse index %d replayed", pl.Index)
	}
	var out []event.Event
	for e.next <= rel {
		for e.placed == nil || e.used >= len(e.placed) {
			e.placed = e.p.Evaluate(e.cycle)
			e.cycle++
			e.used = 0
			if len(e.placed) == 0 && e.cycle > int(rel)+1 {
				return nil, fmt.Errorf("cycle emitter: no leaf for pulse index %d", pl.Index)
			}
		}
		cur := e.placed[e.used]
		e.used++
		if e.next == rel {
			n := event.NewNote(e.p.pitches[cur.Token]...)
			n.Volume = pl.Strength
			out = append(out, event.Note(n))
		}
		e.next++
	}
	return out, nil
}

func (e *cycleEmitter) Reset() {
	e.base = 0
	e.haveBase = false
	e.next = 0
	e.cycle = 0
	e.placed = nil
	e.used = 0
}
