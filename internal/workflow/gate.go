package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Hook mutates an entity entering a status. It receives a copy and returns the
// updated copy.
type Hook[E any] func(ctx context.Context, entity E, at time.Time) (E, error)

// Accessor reads and writes the status of an entity value.
type Accessor[S ~string, E any] struct {
	Get func(E) S
	Set func(E, S) E
}

// Gate applies status changes that the table allows and runs the hooks
// registered for the target status.
type Gate[S ~string, E any] struct {
	table  Table[S]
	access Accessor[S, E]
	hooks  map[S][]Hook[E]
	now    func() time.Time
}

// NewGate constructs a gate for the given table.
func NewGate[S ~string, E any](table Table[S], access Accessor[S, E]) *Gate[S, E] {
	return &Gate[S, E]{
		table:  table,
		access: access,
		hooks:  make(map[S][]Hook[E]),
		now:    time.Now,
	}
}

// WithNow overrides the clock for testing.
func (g *Gate[S, E]) WithNow(now func() time.Time) *Gate[S, E] {
	if now != nil {
		g.now = now
	}
	return g
}

// OnEnter registers a hook for entity entering status.
func (g *Gate[S, E]) OnEnter(status S, hook Hook[E]) *Gate[S, E] {
	if hook != nil {
		g.hooks[status] = append(g.hooks[status], hook)
	}
	return g
}

// Table exposes the underlying transition table.
func (g *Gate[S, E]) Table() Table[S] {
	return g.table
}

// Attempt moves entity to the target status. On any failure the original
// entity is returned untouched together with the error.
func (g *Gate[S, E]) Attempt(ctx context.Context, entity E, to S) (E, error) {
	if g == nil || g.access.Get == nil || g.access.Set == nil {
		return entity, errors.New("workflow: gate not configured")
	}
	from := g.access.Get(entity)
	if err := g.table.Check(from, to); err != nil {
		return entity, err
	}
	at := g.now()
	next := entity
	for _, hook := range g.hooks[to] {
		updated, err := hook(ctx, next, at)
		if err != nil {
			return entity, fmt.Errorf("workflow: enter %q: %w", string(to), err)
		}
		next = updated
	}
	return g.access.Set(next, to), nil
}

// Available lists the transitions offered from the entity's current status.
func (g *Gate[S, E]) Available(entity E) []Option[S] {
	if g == nil || g.access.Get == nil {
		return []Option[S]{}
	}
	return g.table.Available(g.access.Get(entity))
}
