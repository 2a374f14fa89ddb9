package audio

import (
	"math"

	"github.com/cbegin/tactus-go/internal/event"
	"github.com/cbegin/tactus-go/internal/timebase"
)

// BlockFunc produces the events due in the next block of frames. Wiring a
// scheduler's Poll here makes the audio device the session's driving clock.
type BlockFunc func(frames int) []event.Event

// Synth is a minimal polyphonic monitor voice: decaying sines, equal-power
// pan, one voice per pitch. It exists so a session is audible out of the
// box, not to be an instrument.
type Synth struct {
	sampleRate int
	block      BlockFunc
	voices     []voice
	pos        timebase.Position
	gain       float32
}

type voice struct {
	phase float64
	step  float64
	amp   float32
	decay float32
	left  float32
	right float32
	start int
}

const maxVoices = 48

func NewSynth(sampleRate int, block BlockFunc) *Synth {
	return &Synth{sampleRate: sampleRate, block: block, gain: 0.2}
}

func (s *Synth) Process(dst []float32) {
	for i := range dst {
		dst[i] = 0
	}
	frames := len(dst) / 2
	if frames == 0 {
		return
	}
	for _, ev := range s.block(frames) {
		s.handle(ev)
	}

	kept := s.voices[:0]
	for vi := range s.voices {
		v := &s.voices[vi]
		for f := v.start; f < frames; f++ {
			sample := float32(math.Sin(v.phase)) * v.amp * s.gain
			dst[f*2] += sample * v.left
			dst[f*2+1] += sample * v.right
			v.phase += v.step
			v.amp *= v.decay
		}
		v.start = 0
		if v.amp > 1e-4 {
			kept = append(kept, *v)
		}
	}
	s.voices = kept
	s.pos += timebase.Position(frames)
}

func (s *Synth) handle(ev event.Event) {
	switch ev.Kind {
	case event.KindParam:
		if ev.Param.Target == "gain" {
			s.gain = float32(ev.Param.Value)
		}
	case event.KindNote:
		if ev.Note.Off {
			return
		}
		start := int(ev.Time - s.pos)
		if start < 0 {
			start = 0
		}
		// 300 ms decay to 1/e, enough tail to hear the groove.
		decay := float32(math.Exp(-1.0 / (float64(s.sampleRate) * 0.3)))
		angle := (ev.Note.Pan + 1) * math.Pi / 4
		left := float32(math.Cos(angle))
		right := float32(math.Sin(angle))
		for _, pitch := range ev.Note.Pitches {
			if len(s.voices) >= maxVoices {
				s.voices = s.voices[1:]
			}
			hz := 440 * math.Pow(2, float64(pitch-69)/12)
			s.voices = append(s.voices, voice{
				step:  2 * math.Pi * hz / float64(s.sampleRate),
				amp:   float32(ev.Note.Volume),
				decay: decay,
				left:  left,
				right: right,
				start: start,
			})
		}
	}
}
