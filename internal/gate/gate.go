// Package gate filters and rescales pulses before they reach an emitter.
// A gate may keep private running memory; that memory is owned by one gate
// instance, is never shared across rhythms, and updates on every pulse,
// rejected ones included.
package gate

import (
	"github.com/cbegin/tactus-go/internal/pattern"
)

// Decision is the outcome of gating one pulse. Strength replaces the
// pulse's strength on the way to the emitter, so a gate can rescale
// amplitude as well as accept or reject.
type Decision struct {
	Passed   bool
	Strength float64
}

type Gate interface {
	Evaluate(p pattern.Pulse) Decision
}

// Default passes every non-zero-strength pulse through unchanged. This is
// the gate a rhythm uses when none is configured.
func Default() Gate { return threshold{} }

type threshold struct{ min float64 }

func (g threshold) Evaluate(p pattern.Pulse) Decision {
	if p.Strength > g.min {
		return Decision{Passed: true, Strength: p.Strength}
	}
	return Decision{}
}

// Threshold rejects pulses at or below min strength.
func Threshold(min float64) Gate { return threshold{min: min} }

// Func adapts a plain function; closures over local state are the idiomatic
// way to express one-off stateful gates.
func Func(fn func(p pattern.Pulse) Decision) Gate { return funcGate(fn) }

type funcGate func(p pattern.Pulse) Decision

func (g funcGate) Evaluate(p pattern.Pulse) Decision { return g(p) }

// Probability passes non-rest pulses with probability prob, drawn
// deterministically from (seed, pulse index) so a replayed or restarted
// rhythm gates identically.
func Probability(prob float64, seed int64) Gate {
	return probability{prob: prob, seed: seed}
}

type probability struct {
	prob float64
	seed int64
}

func (g probability) Evaluate(p pattern.Pulse) Decision {
	if p.Strength <= 0 {
		return Decision{}
	}
	if indexDraw(g.seed, p.Index) < g.prob {
		return Decision{Passed: true, Strength: p.Strength}
	}
	return Decision{}
}

// indexDraw hashes (seed, index) into [0,1). splitmix64 finalizer.
func indexDraw(seed int64, index uint64) float64 {
	x := uint64(seed) + index*0x9E3779B97F4A7C15
	x ^= x >> 30
	x *= 0xBF58476D1CE4E5B9
	x ^= x >> 27
	x *= 0x94D049BB133111EB
	x ^= x >> 31
	return float64(x>>11) / float64(1<<53)
}

// EveryN passes one pulse in every n, counting from phase. Rest slots keep
// their index in the count so the gate stays locked to the step grid. Phase
// is taken modulo n; negative values count back from the end of the group.
func EveryN(n, phase int) Gate {
	if n < 1 {
		n = 1
	}
	return everyN{n: uint64(n), phase: uint64(((phase % n) + n) % n)}
}

type everyN struct {
	n, phase uint64
}

func (g everyN) Evaluate(p pattern.Pulse) Decision {
	if p.Strength <= 0 || p.Index%g.n != g.phase {
		return Decision{}
	}
	return Decision{Passed: true, Strength: p.Strength}
}

// Accent rescales each passing pulse against the trailing average strength
// of the last window pulses: pulses above the average come through louder,
// pulses below come through softer. The history window updates on every
// pulse, including rejected rests.
func Accent(window int) Gate {
	if window < 1 {
		window = 1
	}
	return &accent{history: make([]float64, 0, window), window: window}
}

type accent struct {
	history []float64
	window  int
}

func (g *accent) Evaluate(p pattern.Pulse) Decision {
	avg := 0.0
	if len(g.history) > 0 {
		sum := 0.0
		for _, s := range g.history {
			sum += s
		}
		avg = sum / float64(len(g.history))
	}
	if len(g.history) == g.window {
		copy(g.history, g.history[1:])
		g.history = g.history[:g.window-1]
	}
	g.history = append(g.history, p.Strength)
	if p.Strength <= 0 {
		return Decision{}
	}
	s := p.Strength * (1 + p.Strength - avg)
	if s > 1 {
		s = 1
	}
	if s <= 0 {
		return Decision{}
	}
	return Decision{Passed: true, Strength: s}
}
