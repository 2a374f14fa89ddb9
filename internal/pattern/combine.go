package pattern

import "sort"

// Concat plays a's cycle followed by b's within one combined cycle. Each
// operand keeps its own internal subdivision timing; the combined cycle
// spans the sum of both slot counts.
func Concat(a, b Generator) Generator { return &concat{a: a, b: b} }

type concat struct {
	a, b Generator
}

func (c *concat) Cycle(n int) ([]Step, int) {
	as, aslots := c.a.Cycle(n)
	bs, bslots := c.b.Cycle(n)
	out := make([]Step, 0, len(as)+len(bs))
	out = append(out, as...)
	for _, s := range bs {
		s.Offset += float64(aslots)
		out = append(out, s)
	}
	return out, aslots + bslots
}

// Merge overlays b onto a within a's cycle span. b's steps are scaled so
// both operands cover the same span while keeping their internal relative
// timing. Steps landing on the same offset collapse into one pulse carrying
// the stronger of the two strengths (numeric OR for 0/1 patterns).
func Merge(a, b Generator) Generator { return &merge{a: a, b: b} }

type merge struct {
	a, b Generator
}

const mergeEpsilon = 1e-9

func (m *merge) Cycle(n int) ([]Step, int) {
	as, aslots := m.a.Cycle(n)
	bs, bslots := m.b.Cycle(n)
	if bslots == 0 {
		return as, aslots
	}
	scale := float64(aslots) / float64(bslots)
	out := make([]Step, 0, len(as)+len(bs))
	out = append(out, as...)
	for _, s := range bs {
		s.Offset *= scale
		s.Dur *= scale
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	collapsed := out[:0]
	for _, s := range out {
		if n := len(collapsed); n > 0 && s.Offset-collapsed[n-1].Offset < mergeEpsilon {
			if s.Strength > collapsed[n-1].Strength {
				collapsed[n-1].Strength = s.Strength
			}
			if s.Dur < collapsed[n-1].Dur {
				collapsed[n-1].Dur = s.Dur
			}
			continue
		}
		collapsed = append(collapsed, s)
	}
	return collapsed, aslots
}
