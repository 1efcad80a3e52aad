// Package workflow provides static status transition tables and a gate that
// enforces them before a status change is applied to an entity.
package workflow

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is matched by every IllegalTransitionError.
var ErrIllegalTransition = errors.New("workflow: illegal transition")

// IllegalTransitionError reports a rejected (current, target) pair.
type IllegalTransitionError[S ~string] struct {
	From S
	To   S
}

func (e *IllegalTransitionError[S]) Error() string {
	return fmt.Sprintf("workflow: cannot transition from %q to %q", string(e.From), string(e.To))
}

// Is lets errors.Is match ErrIllegalTransition.
func (e *IllegalTransitionError[S]) Is(target error) bool {
	return target == ErrIllegalTransition
}

// Spec describes one status: how it is presented and where it may go next.
type Spec[S ~string] struct {
	Label string
	Color string
	Icon  string
	Next  []S
}

// Option is a presentation entry for a reachable status.
type Option[S ~string] struct {
	Value S      `json:"value"`
	Label string `json:"label"`
	Color string `json:"color"`
	Icon  string `json:"icon,omitempty"`
}

// Table is an immutable transition table keyed by status.
type Table[S ~string] struct {
	order []S
	specs map[S]Spec[S]
}

// Entry pairs a status with its spec; used to keep declaration order.
type Entry[S ~string] struct {
	State S
	Spec  Spec[S]
}

// NewTable builds a table from entries in declaration order. Successors that
// are not themselves declared are rejected.
func NewTable[S ~string](entries ...Entry[S]) (Table[S], error) {
	t := Table[S]{specs: make(map[S]Spec[S], len(entries))}
	for _, e := range entries {
		if _, dup := t.specs[e.State]; dup {
			return Table[S]{}, fmt.Errorf("workflow: duplicate state %q", string(e.State))
		}
		spec := e.Spec
		spec.Next = append([]S(nil), e.Spec.Next...)
		t.specs[e.State] = spec
		t.order = append(t.order, e.State)
	}
	for _, state := range t.order {
		for _, next := range t.specs[state].Next {
			if _, ok := t.specs[next]; !ok {
				return Table[S]{}, fmt.Errorf("workflow: state %q targets undeclared %q", string(state), string(next))
			}
		}
	}
	return t, nil
}

// MustTable is NewTable for package-level tables.
func MustTable[S ~string](entries ...Entry[S]) Table[S] {
	t, err := NewTable(entries...)
	if err != nil {
		panic(err)
	}
	return t
}

// Allowed returns the successors of from. Unknown states have none.
func (t Table[S]) Allowed(from S) []S {
	spec, ok := t.specs[from]
	if !ok {
		return nil
	}
	return append([]S(nil), spec.Next...)
}

// CanTransition reports whether to is a declared successor of from.
func (t Table[S]) CanTransition(from, to S) bool {
	spec, ok := t.specs[from]
	if !ok {
		return false
	}
	for _, next := range spec.Next {
		if next == to {
			return true
		}
	}
	return false
}

// Check returns an IllegalTransitionError when from → to is not allowed.
func (t Table[S]) Check(from, to S) error {
	if t.CanTransition(from, to) {
		return nil
	}
	return &IllegalTransitionError[S]{From: from, To: to}
}

// Known reports whether s is declared.
func (t Table[S]) Known(s S) bool {
	_, ok := t.specs[s]
	return ok
}

// Terminal reports whether s is declared and has no successors.
func (t Table[S]) Terminal(s S) bool {
	spec, ok := t.specs[s]
	return ok && len(spec.Next) == 0
}

// Describe returns the spec for s.
func (t Table[S]) Describe(s S) (Spec[S], bool) {
	spec, ok := t.specs[s]
	if !ok {
		return Spec[S]{}, false
	}
	spec.Next = append([]S(nil), spec.Next...)
	return spec, true
}

// Label returns the display label of s, falling back to the raw value.
func (t Table[S]) Label(s S) string {
	if spec, ok := t.specs[s]; ok && spec.Label != "" {
		return spec.Label
	}
	return string(s)
}

// States lists every declared status in declaration order.
func (t Table[S]) States() []S {
	return append([]S(nil), t.order...)
}

// Available lists the successors of from with their presentation data, in
// table order.
func (t Table[S]) Available(from S) []Option[S] {
	spec, ok := t.specs[from]
	if !ok {
		return []Option[S]{}
	}
	options := make([]Option[S], 0, len(spec.Next))
	for _, next := range spec.Next {
		target := t.specs[next]
		options = append(options, Option[S]{
			Value: next,
			Label: target.Label,
			Color: target.Color,
			Icon:  target.Icon,
		})
	}
	return options
}
