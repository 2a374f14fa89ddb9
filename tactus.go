// Package tactus is a deterministic pattern engine for timed musical events.
// A Session owns one transport and any number of rhythm slots; polling the
// session yields a single ordered event stream the host feeds to its synth,
// MIDI port or file writer. All randomness is seeded, so the same session
// plays the same way twice.
package tactus

import (
	"errors"
	"sync"

	intaudio "github.com/cbegin/tactus-go/internal/audio"
	intcycle "github.com/cbegin/tactus-go/internal/cycle"
	intemit "github.com/cbegin/tactus-go/internal/emit"
	intevent "github.com/cbegin/tactus-go/internal/event"
	intgate "github.com/cbegin/tactus-go/internal/gate"
	intpattern "github.com/cbegin/tactus-go/internal/pattern"
	intpitch "github.com/cbegin/tactus-go/internal/pitch"
	intrhythm "github.com/cbegin/tactus-go/internal/rhythm"
	intsched "github.com/cbegin/tactus-go/internal/sched"
	intscript "github.com/cbegin/tactus-go/internal/script"
	inttime "github.com/cbegin/tactus-go/internal/timebase"
)

// Resolver maps pattern tokens ("c4", "a3min7") to MIDI pitches. The default
// resolver understands note names, accidentals and common chord suffixes.
type Resolver = intcycle.Resolver

type Option func(*sessionConfig)

type sessionConfig struct {
	tempo       float64
	beatsPerBar int
	resolver    Resolver
	randomAlt   bool
	seed        int64
	onError     func(slot int, err error)
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{
		tempo:       120,
		beatsPerBar: 4,
		resolver:    intpitch.Resolve,
	}
}

func WithTempo(bpm float64) Option {
	return func(cfg *sessionConfig) { cfg.tempo = bpm }
}

func WithBeatsPerBar(n int) Option {
	return func(cfg *sessionConfig) { cfg.beatsPerBar = n }
}

// WithResolver replaces the token resolver used when compiling patterns.
func WithResolver(r Resolver) Option {
	return func(cfg *sessionConfig) { cfg.resolver = r }
}

// WithRandomAlternation makes "a | b" choices draw from a seeded rng per
// cycle instead of rotating in order. The seed keeps playback reproducible.
func WithRandomAlternation(seed int64) Option {
	return func(cfg *sessionConfig) {
		cfg.randomAlt = true
		cfg.seed = seed
	}
}

// WithOnError installs a callback for non-fatal per-slot faults. The callback
// runs on the polling goroutine; keep it brief.
func WithOnError(fn func(slot int, err error)) Option {
	return func(cfg *sessionConfig) { cfg.onError = fn }
}

// Session is the top-level handle. All methods are safe to call from a
// control goroutine while another goroutine polls.
type Session struct {
	mu         sync.Mutex
	sched      *intsched.Scheduler
	resolver   Resolver
	opts       intcycle.Options
	sampleRate int
	audio      *intaudio.Player
}

func NewSession(sampleRate int, opts ...Option) (*Session, error) {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	sc, err := intsched.New(sampleRate, intsched.Options{OnError: cfg.onError})
	if err != nil {
		return nil, err
	}
	if err := sc.SetTempo(cfg.tempo); err != nil {
		return nil, err
	}
	if err := sc.SetSignature(cfg.beatsPerBar); err != nil {
		return nil, err
	}
	return &Session{
		sched:      sc,
		resolver:   cfg.resolver,
		opts:       intcycle.Options{RandomAlternate: cfg.randomAlt, Seed: cfg.seed},
		sampleRate: sampleRate,
	}, nil
}

// Compile parses pattern notation with the default resolver, for callers that
// want compile errors before a session exists.
func Compile(src string) (*intcycle.Pattern, error) {
	return intcycle.Compile(src, intpitch.Resolve, intcycle.Options{})
}

// Compile parses pattern notation with the session's resolver and options.
func (s *Session) Compile(src string) (*intcycle.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return intcycle.Compile(src, s.resolver, s.opts)
}

// AddCycle compiles src and schedules it, one cycle per bar. It returns the
// slot id used for later swaps and removal.
func (s *Session) AddCycle(src string) (int, error) {
	p, err := s.Compile(src)
	if err != nil {
		return 0, err
	}
	cfg := intrhythm.DefaultConfig()
	cfg.Unit = inttime.Bars()
	r, err := intrhythm.New(cfg, p, nil, p.Emitter())
	if err != nil {
		return 0, err
	}
	return s.sched.Add(r), nil
}

// AddRhythm schedules an imperatively built rhythm: any generator, optional
// gate, any emitter, under the given timing config.
func (s *Session) AddRhythm(cfg intrhythm.Config, gen intpattern.Generator, gt intgate.Gate, em intemit.Emitter) (int, error) {
	r, err := intrhythm.New(cfg, gen, gt, em)
	if err != nil {
		return 0, err
	}
	return s.sched.Add(r), nil
}

// SwapCycle compiles src and swaps it into a live slot at the next poll
// boundary. Compile errors leave the slot playing what it was playing.
func (s *Session) SwapCycle(id int, src string) error {
	p, err := s.Compile(src)
	if err != nil {
		return err
	}
	return s.sched.Swap(id, intrhythm.Replacement{Generator: p, Emitter: p.Emitter()})
}

// Swap applies a partial live replacement; nil fields keep the current part.
func (s *Session) Swap(id int, rep intrhythm.Replacement) error {
	return s.sched.Swap(id, rep)
}

// Remove silences and frees a slot at the next poll boundary.
func (s *Session) Remove(id int) error {
	return s.sched.Remove(id)
}

func (s *Session) Start() { s.sched.Start() }
func (s *Session) Stop()  { s.sched.Stop() }

func (s *Session) SetTempo(bpm float64) error {
	return s.sched.SetTempo(bpm)
}

// Seek moves the transport. The session must have been started.
func (s *Session) Seek(pos int64) error {
	return s.sched.Seek(inttime.Position(pos))
}

// Poll advances the transport by frames samples and returns every event due
// in that window, ordered by time. The caller's clock (usually the audio
// callback) decides the cadence; the session never spins a timer of its own.
func (s *Session) Poll(frames int) []intevent.Event {
	return s.sched.Poll(frames)
}

// Snapshot is a point-in-time view of the session for UIs and diagnostics.
type Snapshot struct {
	SampleRate  int
	BPM         float64
	BeatsPerBar int
	Pos         int64
	Seconds     float64
	Beats       float64
	Running     bool
	Slots       map[int]string
}

func (s *Session) Snapshot() Snapshot {
	tr := s.sched.Transport()
	slots := map[int]string{}
	for id, st := range s.sched.SlotStates() {
		slots[id] = st.String()
	}
	return Snapshot{
		SampleRate:  tr.SampleRate,
		BPM:         tr.BPM,
		BeatsPerBar: tr.BeatsPerBar,
		Pos:         int64(tr.Pos),
		Seconds:     tr.Seconds(tr.Pos),
		Beats:       tr.Beats(tr.Pos),
		Running:     tr.Running,
		Slots:       slots,
	}
}

// Script returns a Starlark engine bound to this session's scheduler, for
// live-coding frontends.
func (s *Session) Script() *intscript.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return intscript.New(s.sched, s.resolver, s.opts)
}

// Monitor opens the audio device and drives the session from its callback
// through a built-in monitor synth. The device clock becomes the session
// clock, so hosts that call Monitor must not also call Poll.
func (s *Session) Monitor() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audio != nil {
		return errors.New("tactus: monitor already open")
	}
	synth := intaudio.NewSynth(s.sampleRate, func(frames int) []intevent.Event {
		return s.sched.Poll(frames)
	})
	pl, err := intaudio.NewPlayer(s.sampleRate, synth)
	if err != nil {
		return err
	}
	s.audio = pl
	pl.Play()
	return nil
}

// Close stops the monitor if one is open. The session itself needs no
// teardown.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audio == nil {
		return nil
	}
	err := s.audio.Stop()
	s.audio = nil
	return err
}
