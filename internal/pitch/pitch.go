// Package pitch is the note-name resolver collaborator: a pure mapping from
// token text to MIDI pitch values. The engine only consumes it through the
// cycle compiler's Resolver callback, so embeddings can supply their own.
package pitch

import (
	"fmt"
	"strconv"
)

var noteOffsets = map[byte]int{
	'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11,
}

var chordIntervals = map[string][]int{
	"maj":  {0, 4, 7},
	"min":  {0, 3, 7},
	"dim":  {0, 3, 6},
	"aug":  {0, 4, 8},
	"7":    {0, 4, 7, 10},
	"maj7": {0, 4, 7, 11},
	"min7": {0, 3, 7, 10},
	"sus4": {0, 5, 7},
}

// Resolve maps a token to one or more MIDI pitches. Accepted forms:
// plain integers ("60"), note names with optional accidental and octave
// ("c4", "f#3", "eb2"), and note names followed by a chord suffix
// ("c4maj", "a3min7") which yield the chord's pitch set.
func Resolve(token string) ([]int, error) {
	if v, err := strconv.Atoi(token); err == nil {
		if v < 0 || v > 127 {
			return nil, fmt.Errorf("pitch %d outside MIDI range", v)
		}
		return []int{v}, nil
	}
	root, rest, err := parseNote(token)
	if err != nil {
		return nil, err
	}
	if rest == "" {
		return []int{root}, nil
	}
	intervals, ok := chordIntervals[rest]
	if !ok {
		return nil, fmt.Errorf("unknown chord %q in %q", rest, token)
	}
	out := make([]int, len(intervals))
	for i, iv := range intervals {
		out[i] = root + iv
	}
	return out, nil
}

// parseNote consumes a note letter, optional accidental, and octave digit,
// returning the MIDI pitch and any trailing chord suffix.
func parseNote(token string) (int, string, error) {
	if token == "" {
		return 0, "", fmt.Errorf("empty pitch token")
	}
	off, ok := noteOffsets[lower(token[0])]
	if !ok {
		return 0, "", fmt.Errorf("unknown note %q", token)
	}
	i := 1
	if i < len(token) {
		switch token[i] {
		case '#', '+':
			off++
			i++
		case 'b':
			// 'b' is a flat only when an octave digit follows; otherwise it
			// could open a suffix.
			if i+1 < len(token) && isDigit(token[i+1]) {
				off--
				i++
			}
		}
	}
	if i >= len(token) || !isDigit(token[i]) {
		return 0, "", fmt.Errorf("missing octave in %q", token)
	}
	octave := int(token[i] - '0')
	i++
	midi := (octave+1)*12 + off
	if midi < 0 || midi > 127 {
		return 0, "", fmt.Errorf("pitch %q outside MIDI range", token)
	}
	return midi, token[i:], nil
}

func lower(ch byte) byte {
	if ch >= 'A' && ch <= 'Z' {
		return ch + 32
	}
	return ch
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }
