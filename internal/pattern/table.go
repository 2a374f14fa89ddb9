package pattern

import (
	"fmt"
	"math"
)

// Node is one entry of a table definition. A plain node is a pulse strength;
// a node with children subdivides its parent slot evenly among them, so a
// nested list plays as a faster inner pattern confined to the parent's time
// slot. Nesting depth is unbounded.
type Node struct {
	Strength float64
	Sub      []Node
	group    bool
}

// Hit returns a leaf node with the given strength.
func Hit(strength float64) Node { return Node{Strength: strength} }

// Rest returns a zero-strength leaf.
func Rest() Node { return Node{} }

// Group subdivides one slot among the given children. A group with no
// children is malformed and rejected by NewTable.
func Group(children ...Node) Node { return Node{Sub: children, group: true} }

// Table is a fixed pulse train built from a (possibly nested) strength
// table. Every cycle is identical.
type Table struct {
	steps []Step
	slots int
}

// NewTable validates and flattens a table definition. Malformed nesting
// (an empty group, a strength outside [0,1]) is reported here, before the
// table is ever scheduled.
func NewTable(nodes ...Node) (*Table, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("table must have at least one entry")
	}
	t := &Table{slots: len(nodes)}
	for i, n := range nodes {
		if err := t.flatten(n, float64(i), 1, fmt.Sprintf("entry %d", i)); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// TableOf builds a flat table from plain strengths.
func TableOf(strengths ...float64) (*Table, error) {
	nodes := make([]Node, len(strengths))
	for i, s := range strengths {
		nodes[i] = Hit(s)
	}
	return NewTable(nodes...)
}

func (t *Table) flatten(n Node, offset, dur float64, path string) error {
	if len(n.Sub) == 0 {
		if n.group {
			return fmt.Errorf("%s: group must have at least one child", path)
		}
		if math.IsNaN(n.Strength) || n.Strength < 0 || n.Strength > 1 {
			return fmt.Errorf("%s: strength %v outside [0,1]", path, n.Strength)
		}
		t.steps = append(t.steps, Step{Offset: offset, Dur: dur, Strength: n.Strength})
		return nil
	}
	if n.Strength != 0 {
		return fmt.Errorf("%s: group cannot carry its own strength", path)
	}
	inner := dur / float64(len(n.Sub))
	for i, c := range n.Sub {
		err := t.flatten(c, offset+float64(i)*inner, inner, fmt.Sprintf("%s.%d", path, i))
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) Cycle(int) ([]Step, int) { return t.steps, t.slots }
