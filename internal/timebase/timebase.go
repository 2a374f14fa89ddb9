package timebase

import (
	"errors"
	"fmt"
	"math"
)

// Position is an absolute transport position in samples. All musical
// quantities (beats, bars, steps) derive from it through the Transport in
// force at the moment of conversion, never through a cached tempo.
type Position int64

// UnitKind enumerates the musical units a duration can be expressed in.
type UnitKind int

const (
	KindSamples UnitKind = iota + 1
	KindSeconds
	KindBeats
	KindBars
	KindSteps
)

// Unit is a musical duration unit. Steps units carry the subdivision count
// (e.g. Steps(16) is a sixteenth of a bar).
type Unit struct {
	Kind UnitKind
	Div  int
}

func Samples() Unit  { return Unit{Kind: KindSamples} }
func Seconds() Unit  { return Unit{Kind: KindSeconds} }
func Beats() Unit    { return Unit{Kind: KindBeats} }
func Bars() Unit     { return Unit{Kind: KindBars} }
func Steps(n int) Unit { return Unit{Kind: KindSteps, Div: n} }

func (u Unit) valid() bool {
	switch u.Kind {
	case KindSamples, KindSeconds, KindBeats, KindBars:
		return true
	case KindSteps:
		return u.Div > 0
	}
	return false
}

func (u Unit) String() string {
	switch u.Kind {
	case KindSamples:
		return "samples"
	case KindSeconds:
		return "seconds"
	case KindBeats:
		return "beats"
	case KindBars:
		return "bars"
	case KindSteps:
		return fmt.Sprintf("step%d", u.Div)
	}
	return "invalid"
}

// Ratio is a rational multiplier applied to a unit's nominal duration.
type Ratio struct {
	Num, Den int
}

// One is the identity resolution.
var One = Ratio{Num: 1, Den: 1}

func NewRatio(num, den int) (Ratio, error) {
	r := Ratio{Num: num, Den: den}
	if !r.Valid() {
		return Ratio{}, fmt.Errorf("resolution %d/%d must be positive", num, den)
	}
	return r, nil
}

func (r Ratio) Valid() bool { return r.Num > 0 && r.Den > 0 }

func (r Ratio) Float() float64 { return float64(r.Num) / float64(r.Den) }

func (r Ratio) String() string { return fmt.Sprintf("%d/%d", r.Num, r.Den) }

var (
	ErrInvalidUnit       = errors.New("invalid time unit")
	ErrInvalidResolution = errors.New("invalid resolution")
	ErrInvalidTempo      = errors.New("tempo must be positive")
)

// Transport is a read-only snapshot of the session clock passed into every
// conversion. Only the Scheduler holds the authoritative, mutable copy.
type Transport struct {
	SampleRate  int
	BPM         float64
	BeatsPerBar int
	Pos         Position
	Running     bool
}

func DefaultTransport(sampleRate int) Transport {
	return Transport{
		SampleRate:  sampleRate,
		BPM:         120,
		BeatsPerBar: 4,
	}
}

// SamplesPerBeat returns the duration of one beat in samples at the current
// tempo.
func (t Transport) SamplesPerBeat() float64 {
	return float64(t.SampleRate) * 60.0 / t.BPM
}

// UnitSamples returns the duration of one unit, scaled by res, in samples.
// The tempo and time signature are read now; a later tempo change yields a
// different answer, so callers must convert per poll rather than cache.
func (t Transport) UnitSamples(u Unit, res Ratio) (float64, error) {
	if !u.valid() {
		return 0, ErrInvalidUnit
	}
	if !res.Valid() {
		return 0, ErrInvalidResolution
	}
	if t.BPM <= 0 {
		return 0, ErrInvalidTempo
	}
	scale := res.Float()
	switch u.Kind {
	case KindSamples:
		return scale, nil
	case KindSeconds:
		return float64(t.SampleRate) * scale, nil
	case KindBeats:
		return t.SamplesPerBeat() * scale, nil
	case KindBars:
		return t.SamplesPerBeat() * float64(t.BeatsPerBar) * scale, nil
	case KindSteps:
		return t.SamplesPerBeat() * float64(t.BeatsPerBar) / float64(u.Div) * scale, nil
	}
	return 0, ErrInvalidUnit
}

// ToSamples converts a position expressed as a multiple of a unit into an
// absolute sample count.
func (t Transport) ToSamples(pos float64, u Unit, res Ratio) (Position, error) {
	d, err := t.UnitSamples(u, res)
	if err != nil {
		return 0, err
	}
	return Position(math.Round(pos * d)), nil
}

// Advance returns the position one unit (scaled by res) after cur.
func (t Transport) Advance(cur Position, u Unit, res Ratio) (Position, error) {
	d, err := t.UnitSamples(u, res)
	if err != nil {
		return 0, err
	}
	return cur + Position(math.Round(d)), nil
}

// Seconds derives the wall-clock time of p at the current sample rate.
func (t Transport) Seconds(p Position) float64 {
	return float64(p) / float64(t.SampleRate)
}

// Beats derives the beat position of p at the current tempo.
func (t Transport) Beats(p Position) float64 {
	return float64(p) / t.SamplesPerBeat()
}

// Bars derives the bar position of p at the current tempo and signature.
func (t Transport) Bars(p Position) float64 {
	return t.Beats(p) / float64(t.BeatsPerBar)
}
