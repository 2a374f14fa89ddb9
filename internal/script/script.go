// Package script exposes the scheduler to Starlark programs for live-coding
// sessions. Scripts build generators, emitters and gates with a small set of
// builtins and attach them to scheduler slots; every builtin validates its
// arguments at call time so a bad script fails before the next poll.
package script

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/cbegin/tactus-go/internal/cycle"
	"github.com/cbegin/tactus-go/internal/emit"
	"github.com/cbegin/tactus-go/internal/event"
	"github.com/cbegin/tactus-go/internal/gate"
	"github.com/cbegin/tactus-go/internal/pattern"
	"github.com/cbegin/tactus-go/internal/rhythm"
	"github.com/cbegin/tactus-go/internal/sched"
	"github.com/cbegin/tactus-go/internal/timebase"
)

// Engine binds one scheduler to a Starlark environment. Scripts run on the
// control path, never inside a poll.
type Engine struct {
	sched    *sched.Scheduler
	resolver cycle.Resolver
	opts     cycle.Options
	globals  starlark.StringDict

	// Print receives script print() output. Defaults to stderr when nil.
	Print func(msg string)
}

func New(s *sched.Scheduler, resolver cycle.Resolver, opts cycle.Options) *Engine {
	e := &Engine{sched: s, resolver: resolver, opts: opts}
	e.globals = starlark.StringDict{
		"cycle":     starlark.NewBuiltin("cycle", e.cycleFn),
		"table":     starlark.NewBuiltin("table", e.tableFn),
		"euclid":    starlark.NewBuiltin("euclid", e.euclidFn),
		"notes":     starlark.NewBuiltin("notes", e.notesFn),
		"arp":       starlark.NewBuiltin("arp", e.arpFn),
		"params":    starlark.NewBuiltin("params", e.paramsFn),
		"every":     starlark.NewBuiltin("every", e.everyFn),
		"prob":      starlark.NewBuiltin("prob", e.probFn),
		"threshold": starlark.NewBuiltin("threshold", e.thresholdFn),
		"rhythm":    starlark.NewBuiltin("rhythm", e.rhythmFn),
		"add":       starlark.NewBuiltin("add", e.addFn),
		"swap":      starlark.NewBuiltin("swap", e.swapFn),
		"remove":    starlark.NewBuiltin("remove", e.removeFn),
		"tempo":     starlark.NewBuiltin("tempo", e.tempoFn),
		"start":     starlark.NewBuiltin("start", e.startFn),
		"stop":      starlark.NewBuiltin("stop", e.stopFn),
	}
	return e
}

// Run executes a script. src may be nil (read from filename), a string, or a
// byte slice, as starlark.ExecFile accepts.
func (e *Engine) Run(filename string, src any) error {
	thread := &starlark.Thread{Name: filename}
	if e.Print != nil {
		thread.Print = func(_ *starlark.Thread, msg string) { e.Print(msg) }
	}
	_, err := starlark.ExecFile(thread, filename, src, e.globals)
	return err
}

// RunString executes inline source, for REPL-style use.
func (e *Engine) RunString(src string) error {
	return e.Run("<input>", src)
}

// opaque wraps a Go value as an immutable Starlark value.
type opaque struct {
	kind string
	v    any
}

func (o *opaque) String() string        { return "<" + o.kind + ">" }
func (o *opaque) Type() string          { return o.kind }
func (o *opaque) Freeze()               {}
func (o *opaque) Truth() starlark.Bool  { return starlark.True }
func (o *opaque) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: %s", o.kind) }

func genArg(v starlark.Value) (pattern.Generator, error) {
	if o, ok := v.(*opaque); ok {
		if g, ok := o.v.(pattern.Generator); ok {
			return g, nil
		}
	}
	return nil, fmt.Errorf("expected a generator, got %s", v.Type())
}

func emitArg(v starlark.Value) (emit.Emitter, error) {
	if o, ok := v.(*opaque); ok {
		switch t := o.v.(type) {
		case emit.Emitter:
			return t, nil
		case *cycle.Pattern:
			return t.Emitter(), nil
		}
	}
	return nil, fmt.Errorf("expected an emitter, got %s", v.Type())
}

// floatArg converts a numeric argument, accepting both int and float values
// (UnpackArgs into *float64 rejects ints).
func floatArg(b *starlark.Builtin, name string, v starlark.Value) (float64, error) {
	f, ok := starlark.AsFloat(v)
	if !ok {
		return 0, fmt.Errorf("%s: %s must be a number, got %s", b.Name(), name, v.Type())
	}
	return f, nil
}

func gateArg(v starlark.Value) (gate.Gate, error) {
	if o, ok := v.(*opaque); ok {
		if g, ok := o.v.(gate.Gate); ok {
			return g, nil
		}
	}
	return nil, fmt.Errorf("expected a gate, got %s", v.Type())
}

func (e *Engine) cycleFn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var src string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "src", &src); err != nil {
		return nil, err
	}
	p, err := cycle.Compile(src, e.resolver, e.opts)
	if err != nil {
		return nil, err
	}
	return &opaque{kind: "cycle", v: p}, nil
}

func (e *Engine) tableFn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	strengths := make([]float64, len(args))
	for i, a := range args {
		f, ok := starlark.AsFloat(a)
		if !ok {
			return nil, fmt.Errorf("%s: argument %d is not a number", b.Name(), i+1)
		}
		strengths[i] = f
	}
	tab, err := pattern.TableOf(strengths...)
	if err != nil {
		return nil, err
	}
	return &opaque{kind: "table", v: tab}, nil
}

func (e *Engine) euclidFn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var hits, steps, rotation int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"hits", &hits, "steps", &steps, "rotation?", &rotation); err != nil {
		return nil, err
	}
	g, err := pattern.NewEuclid(hits, steps, rotation)
	if err != nil {
		return nil, err
	}
	return &opaque{kind: "euclid", v: g}, nil
}

// notesFn accepts pitch tokens (resolved like cycle leaves) or plain MIDI
// numbers; each argument becomes one step of the sequence, multi-pitch
// tokens becoming chords.
func (e *Engine) notesFn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	payloads := make([]event.NotePayload, 0, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case starlark.String:
			if e.resolver == nil {
				return nil, fmt.Errorf("%s: no resolver configured for token %q", b.Name(), string(v))
			}
			pitches, err := e.resolver(string(v))
			if err != nil {
				return nil, fmt.Errorf("%s: %v", b.Name(), err)
			}
			payloads = append(payloads, event.NewNote(pitches...))
		case starlark.Int:
			n, err := starlark.AsInt32(v)
			if err != nil {
				return nil, fmt.Errorf("%s: argument %d: %v", b.Name(), i+1, err)
			}
			payloads = append(payloads, event.NewNote(int(n)))
		default:
			return nil, fmt.Errorf("%s: argument %d must be a string or int", b.Name(), i+1)
		}
	}
	em, err := emit.Sequence(payloads...)
	if err != nil {
		return nil, err
	}
	return &opaque{kind: "notes", v: em}, nil
}

func (e *Engine) arpFn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pitches *starlark.List
	order := "up"
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"pitches", &pitches, "order?", &order); err != nil {
		return nil, err
	}
	ps, err := intList(pitches)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", b.Name(), err)
	}
	var o emit.ArpOrder
	switch order {
	case "up":
		o = emit.ArpUp
	case "down":
		o = emit.ArpDown
	case "updown":
		o = emit.ArpUpDown
	default:
		return nil, fmt.Errorf("%s: unknown order %q", b.Name(), order)
	}
	em, err := emit.Arp(ps, o)
	if err != nil {
		return nil, err
	}
	return &opaque{kind: "arp", v: em}, nil
}

func (e *Engine) paramsFn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	if len(args) < 2 {
		return nil, fmt.Errorf("%s: need a target and at least one value", b.Name())
	}
	target, ok := starlark.AsString(args[0])
	if !ok {
		return nil, fmt.Errorf("%s: target must be a string", b.Name())
	}
	values := make([]float64, len(args)-1)
	for i, a := range args[1:] {
		f, ok := starlark.AsFloat(a)
		if !ok {
			return nil, fmt.Errorf("%s: value %d is not a number", b.Name(), i+1)
		}
		values[i] = f
	}
	em, err := emit.Param(target, values...)
	if err != nil {
		return nil, err
	}
	return &opaque{kind: "params", v: em}, nil
}

func (e *Engine) everyFn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var n, phase int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "n", &n, "phase?", &phase); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, fmt.Errorf("%s: n must be at least 1", b.Name())
	}
	return &opaque{kind: "gate", v: gate.EveryN(n, phase)}, nil
}

func (e *Engine) probFn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pV starlark.Value
	var seed int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "p", &pV, "seed?", &seed); err != nil {
		return nil, err
	}
	p, err := floatArg(b, "p", pV)
	if err != nil {
		return nil, err
	}
	if p < 0 || p > 1 {
		return nil, fmt.Errorf("%s: probability %v outside [0,1]", b.Name(), p)
	}
	return &opaque{kind: "gate", v: gate.Probability(p, int64(seed))}, nil
}

func (e *Engine) thresholdFn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var minV starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "min", &minV); err != nil {
		return nil, err
	}
	min, err := floatArg(b, "min", minV)
	if err != nil {
		return nil, err
	}
	return &opaque{kind: "gate", v: gate.Threshold(min)}, nil
}

func (e *Engine) rhythmFn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var genV starlark.Value
	var emitV, gateV, offsetV starlark.Value
	unit := ""
	var repeats int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"gen", &genV, "emitter?", &emitV, "gate?", &gateV,
		"unit?", &unit, "offset?", &offsetV, "repeats?", &repeats); err != nil {
		return nil, err
	}
	gen, err := genArg(genV)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", b.Name(), err)
	}
	var offset float64
	if offsetV != nil {
		if offset, err = floatArg(b, "offset", offsetV); err != nil {
			return nil, err
		}
	}

	var em emit.Emitter
	if emitV != nil {
		if em, err = emitArg(emitV); err != nil {
			return nil, fmt.Errorf("%s: %v", b.Name(), err)
		}
	} else if p, ok := genV.(*opaque).v.(*cycle.Pattern); ok {
		em = p.Emitter()
	} else {
		return nil, fmt.Errorf("%s: an emitter is required for %s generators", b.Name(), genV.Type())
	}

	var gt gate.Gate
	if gateV != nil {
		if gt, err = gateArg(gateV); err != nil {
			return nil, fmt.Errorf("%s: %v", b.Name(), err)
		}
	}

	cfg := rhythm.DefaultConfig()
	cfg.Offset = offset
	cfg.Repeats = repeats
	if unit != "" {
		if cfg.Unit, err = parseUnit(unit); err != nil {
			return nil, fmt.Errorf("%s: %v", b.Name(), err)
		}
	}
	r, err := rhythm.New(cfg, gen, gt, em)
	if err != nil {
		return nil, err
	}
	return &opaque{kind: "rhythm", v: r}, nil
}

func (e *Engine) addFn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "rhythm", &v); err != nil {
		return nil, err
	}
	o, ok := v.(*opaque)
	if !ok {
		return nil, fmt.Errorf("%s: expected a rhythm, got %s", b.Name(), v.Type())
	}
	r, ok := o.v.(*rhythm.Rhythm)
	if !ok {
		return nil, fmt.Errorf("%s: expected a rhythm, got %s", b.Name(), v.Type())
	}
	return starlark.MakeInt(e.sched.Add(r)), nil
}

func (e *Engine) swapFn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var slot int
	var genV, emitV, gateV starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"slot", &slot, "gen?", &genV, "emitter?", &emitV, "gate?", &gateV); err != nil {
		return nil, err
	}
	var rep rhythm.Replacement
	var err error
	if genV != nil {
		if rep.Generator, err = genArg(genV); err != nil {
			return nil, fmt.Errorf("%s: %v", b.Name(), err)
		}
		// A cycle swapped in without an explicit emitter brings its own.
		if emitV == nil {
			if p, ok := genV.(*opaque).v.(*cycle.Pattern); ok {
				rep.Emitter = p.Emitter()
			}
		}
	}
	if emitV != nil {
		if rep.Emitter, err = emitArg(emitV); err != nil {
			return nil, fmt.Errorf("%s: %v", b.Name(), err)
		}
	}
	if gateV != nil {
		if rep.Gate, err = gateArg(gateV); err != nil {
			return nil, fmt.Errorf("%s: %v", b.Name(), err)
		}
	}
	if err := e.sched.Swap(slot, rep); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func (e *Engine) removeFn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var slot int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "slot", &slot); err != nil {
		return nil, err
	}
	if err := e.sched.Remove(slot); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func (e *Engine) tempoFn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var bpmV starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "bpm", &bpmV); err != nil {
		return nil, err
	}
	bpm, err := floatArg(b, "bpm", bpmV)
	if err != nil {
		return nil, err
	}
	if err := e.sched.SetTempo(bpm); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func (e *Engine) startFn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	e.sched.Start()
	return starlark.None, nil
}

func (e *Engine) stopFn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	e.sched.Stop()
	return starlark.None, nil
}

func intList(l *starlark.List) ([]int, error) {
	out := make([]int, l.Len())
	for i := 0; i < l.Len(); i++ {
		n, err := starlark.AsInt32(l.Index(i))
		if err != nil {
			return nil, fmt.Errorf("element %d: %v", i, err)
		}
		out[i] = int(n)
	}
	return out, nil
}

// parseUnit maps unit names used by scripts onto time units: "beat", "bar",
// "second", "sample", or "stepN" for an N-per-bar grid.
func parseUnit(s string) (timebase.Unit, error) {
	switch s {
	case "beat", "beats":
		return timebase.Beats(), nil
	case "bar", "bars":
		return timebase.Bars(), nil
	case "second", "seconds":
		return timebase.Seconds(), nil
	case "sample", "samples":
		return timebase.Samples(), nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "step%d", &n); err == nil && n > 0 {
		return timebase.Steps(n), nil
	}
	return timebase.Unit{}, fmt.Errorf("unknown unit %q", s)
}
