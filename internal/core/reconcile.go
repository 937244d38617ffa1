package core

import (
	"context"
	"fmt"
)

// Reconciler classifies diff-mode entries against the loaded snapshot.
//
// Matched entries become updates and reuse the existing identifier. Unmatched
// entries are held back and numbered after every update has been decided, so
// new identifiers never collide with rows seen during the pass.
type Reconciler struct {
	lookup   Lookup
	now      int64
	deferred []Entry
}

// NewReconciler creates a reconciler. now stamps the Update field of every
// entry written in diff mode.
func NewReconciler(lookup Lookup, now int64) *Reconciler {
	return &Reconciler{lookup: lookup, now: now}
}

// Decide looks up e. For an update the entry's ID and Update fields are set
// and the decision is returned with Update true. Otherwise the entry is copied
// into the deferred list.
func (r *Reconciler) Decide(ctx context.Context, e *Entry) (Decision, error) {
	// Compare against the values as they were stored.
	id, ok, err := r.lookup.FindMatch(ctx,
		Clip(e.Channel, limitChannel), e.DateUnix, Clip(e.Theme, limitText), Clip(e.Title, limitText))
	if err != nil {
		return Decision{}, fmt.Errorf("find match for %q/%q: %w", e.Channel, e.Title, err)
	}
	if !ok {
		r.deferred = append(r.deferred, *e)
		return Decision{}, nil
	}

	e.ID = id
	e.Update = r.now
	return Decision{ID: id, Update: true}, nil
}

// Deferred returns the number of entries waiting for an identifier.
func (r *Reconciler) Deferred() int {
	return len(r.deferred)
}

// AssignInsertIDs numbers the deferred entries next, next+1, ... in the order
// they were deferred, marks them new and returns them.
func (r *Reconciler) AssignInsertIDs(next int64) []Entry {
	for i := range r.deferred {
		e := &r.deferred[i]
		e.ID = next + int64(i)
		e.NewEntry = true
		e.Update = r.now
	}
	return r.deferred
}
