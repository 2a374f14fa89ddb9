package pattern

import "fmt"

// EuclidPattern distributes hits as evenly as possible among steps slots
// using the bucket (error accumulation) form of the Bjorklund algorithm,
// then rotates the result. Positive rotation moves hit positions right,
// negative moves them left; rotation is taken modulo steps. Exported so the
// cycle notation's (hits,steps,rotation) shorthand shares the exact same
// distribution.
func EuclidPattern(hits, steps, rotation int) ([]bool, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("euclid: steps must be positive, got %d", steps)
	}
	if hits < 0 || hits > steps {
		return nil, fmt.Errorf("euclid: hits %d outside [0,%d]", hits, steps)
	}
	out := make([]bool, steps)
	if hits == 0 {
		return out, nil
	}
	rot := ((rotation % steps) + steps) % steps
	for i := 0; i < steps; i++ {
		src := ((i-rot)%steps + steps) % steps
		out[i] = (src*hits)%steps < hits
	}
	return out, nil
}

// Euclid is a pulse generator over a Euclidean distribution. Every slot is a
// pulse; non-hit slots carry strength 0 so downstream indices stay aligned
// with the step grid.
type Euclid struct {
	steps []Step
	slots int
}

func NewEuclid(hits, steps, rotation int) (*Euclid, error) {
	pat, err := EuclidPattern(hits, steps, rotation)
	if err != nil {
		return nil, err
	}
	e := &Euclid{slots: steps}
	for i, hit := range pat {
		s := Step{Offset: float64(i), Dur: 1}
		if hit {
			s.Strength = 1
		}
		e.steps = append(e.steps, s)
	}
	return e, nil
}

func (e *Euclid) Cycle(int) ([]Step, int) { return e.steps, e.slots }
