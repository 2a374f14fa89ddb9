// Package cycle compiles the compact cycle notation into a pattern tree and
// evaluates that tree against a cycle index. Whitespace separates sequence
// entries; [a, b] stacks simultaneous sub-cycles (a bracket with no comma is
// plain grouping, played as a faster inner sequence); | alternates whole
// sub-cycles across successive cycle repetitions; tok(hits,steps[,rot])
// distributes repetitions of tok Euclideanly; '-', '~' and '.' are rests;
// tok@n weights a sequence entry and tok!n repeats it.
//
// A compiled pattern satisfies the same generator and emitter contracts as
// an imperatively built rhythm, so both paths feed the scheduler identically.
package cycle

import (
	"fmt"
	"strconv"

	"github.com/cbegin/tactus-go/internal/pattern"
)

type nodeKind int

const (
	nLeaf nodeKind = iota + 1
	nSilence
	nSequence
	nStack
	nAlternate
	nEuclid
)

type node struct {
	kind     nodeKind
	token    string
	pos      int // byte offset in the source, for error reporting
	children []*node
	weights  []int
	hits     int
	steps    int
	rot      int
	euclid   []bool
}

func isRest(ch byte) bool { return ch == '-' || ch == '~' || ch == '.' }

func isDelimiter(ch byte) bool {
	switch ch {
	case '[', ']', '(', ')', ',', '|', '@', '!', ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

type parser struct {
	src string
	i   int
}

func parse(src string) (*node, error) {
	p := &parser{src: src}
	root, err := p.parseAlt()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.i < len(p.src) {
		if p.src[p.i] == ']' {
			return nil, fmt.Errorf("unbalanced ']' at %d", p.i)
		}
		return nil, fmt.Errorf("unexpected %q at %d", p.src[p.i], p.i)
	}
	return root, nil
}

func (p *parser) skipSpace() {
	for p.i < len(p.src) {
		switch p.src[p.i] {
		case ' ', '\t', '\n', '\r':
			p.i++
		default:
			return
		}
	}
}

func (p *parser) peek() (byte, bool) {
	if p.i < len(p.src) {
		return p.src[p.i], true
	}
	return 0, false
}

// parseAlt handles '|'-separated alternatives; a lone sequence collapses to
// itself.
func (p *parser) parseAlt() (*node, error) {
	first, err := p.parseSeq()
	if err != nil {
		return nil, err
	}
	branches := []*node{first}
	for {
		p.skipSpace()
		ch, ok := p.peek()
		if !ok || ch != '|' {
			break
		}
		p.i++
		next, err := p.parseSeq()
		if err != nil {
			return nil, err
		}
		branches = append(branches, next)
	}
	if len(branches) == 1 {
		return first, nil
	}
	return &node{kind: nAlternate, pos: first.pos, children: branches}, nil
}

func (p *parser) parseSeq() (*node, error) {
	var children []*node
	var weights []int
	start := p.i
	for {
		p.skipSpace()
		ch, ok := p.peek()
		if !ok || ch == ']' || ch == ',' || ch == '|' {
			break
		}
		term, weight, repeat, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		for r := 0; r < repeat; r++ {
			children = append(children, term)
			weights = append(weights, weight)
		}
	}
	if len(children) == 0 {
		return nil, fmt.Errorf("empty pattern at %d", start)
	}
	if len(children) == 1 && weights[0] == 1 {
		return children[0], nil
	}
	return &node{kind: nSequence, pos: children[0].pos, children: children, weights: weights}, nil
}

func (p *parser) parseTerm() (*node, int, int, error) {
	atom, err := p.parseAtom()
	if err != nil {
		return nil, 0, 0, err
	}
	weight, repeat := 1, 1
	for {
		ch, ok := p.peek()
		if !ok {
			break
		}
		switch ch {
		case '(':
			atom, err = p.parseEuclidSuffix(atom)
			if err != nil {
				return nil, 0, 0, err
			}
		case '@':
			p.i++
			weight, err = p.parsePositiveInt("weight")
			if err != nil {
				return nil, 0, 0, err
			}
		case '!':
			p.i++
			repeat, err = p.parsePositiveInt("repeat")
			if err != nil {
				return nil, 0, 0, err
			}
		default:
			return atom, weight, repeat, nil
		}
	}
	return atom, weight, repeat, nil
}

func (p *parser) parseAtom() (*node, error) {
	ch, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of pattern at %d", p.i)
	}
	switch {
	case ch == '[':
		open := p.i
		p.i++
		var groups []*node
		for {
			g, err := p.parseAlt()
			if err != nil {
				return nil, err
			}
			groups = append(groups, g)
			p.skipSpace()
			next, ok := p.peek()
			if !ok {
				return nil, fmt.Errorf("unbalanced '[' at %d", open)
			}
			if next == ',' {
				p.i++
				continue
			}
			if next == ']' {
				p.i++
				break
			}
			return nil, fmt.Errorf("unexpected %q at %d", next, p.i)
		}
		if len(groups) == 1 {
			// Plain grouping: a faster inner pattern confined to this slot.
			return groups[0], nil
		}
		return &node{kind: nStack, pos: open, children: groups}, nil
	case ch == ']':
		return nil, fmt.Errorf("unbalanced ']' at %d", p.i)
	case isRest(ch):
		n := &node{kind: nSilence, pos: p.i}
		p.i++
		return n, nil
	default:
		start := p.i
		for p.i < len(p.src) && !isDelimiter(p.src[p.i]) {
			p.i++
		}
		if p.i == start {
			return nil, fmt.Errorf("unexpected %q at %d", ch, p.i)
		}
		return &node{kind: nLeaf, token: p.src[start:p.i], pos: start}, nil
	}
}

// parseEuclidSuffix wraps content in a Euclidean distribution node and
// validates the arguments immediately, so bad shorthand fails at compile
// time with its location.
func (p *parser) parseEuclidSuffix(content *node) (*node, error) {
	open := p.i
	p.i++ // consume '('
	hits, err := p.parseSignedInt("hits")
	if err != nil {
		return nil, err
	}
	if err := p.expect(','); err != nil {
		return nil, err
	}
	steps, err := p.parseSignedInt("steps")
	if err != nil {
		return nil, err
	}
	rot := 0
	ch, ok := p.peek()
	if ok && ch == ',' {
		p.i++
		rot, err = p.parseSignedInt("rotation")
		if err != nil {
			return nil, err
		}
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	pat, err := pattern.EuclidPattern(hits, steps, rot)
	if err != nil {
		return nil, fmt.Errorf("%v at %d", err, open)
	}
	return &node{
		kind:     nEuclid,
		pos:      content.pos,
		children: []*node{content},
		hits:     hits,
		steps:    steps,
		rot:      rot,
		euclid:   pat,
	}, nil
}

func (p *parser) expect(want byte) error {
	p.skipSpace()
	ch, ok := p.peek()
	if !ok || ch != want {
		return fmt.Errorf("expected %q at %d", want, p.i)
	}
	p.i++
	return nil
}

func (p *parser) parseSignedInt(what string) (int, error) {
	p.skipSpace()
	start := p.i
	if ch, ok := p.peek(); ok && (ch == '-' || ch == '+') {
		p.i++
	}
	for p.i < len(p.src) && p.src[p.i] >= '0' && p.src[p.i] <= '9' {
		p.i++
	}
	v, err := strconv.Atoi(p.src[start:p.i])
	if err != nil {
		return 0, fmt.Errorf("invalid %s at %d", what, start)
	}
	return v, nil
}

func (p *parser) parsePositiveInt(what string) (int, error) {
	v, err := p.parseSignedInt(what)
	if err != nil {
		return 0, err
	}
	if v < 1 {
		return 0, fmt.Errorf("%s must be positive at %d", what, p.i)
	}
	return v, nil
}
