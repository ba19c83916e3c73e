package workflow

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
)

// ReferenceChecker reports whether any workflow state currently points at a status
type ReferenceChecker interface {
	IsStatusReferenced(ctx context.Context, statusID string) (bool, error)
}

// ReferenceCheckerFunc adapts a function to ReferenceChecker
type ReferenceCheckerFunc func(ctx context.Context, statusID string) (bool, error)

// IsStatusReferenced calls f
func (f ReferenceCheckerFunc) IsStatusReferenced(ctx context.Context, statusID string) (bool, error) {
	return f(ctx, statusID)
}

// StatusRegistry is the authoritative set of statuses, kept in insertion order.
// It is safe for concurrent use.
type StatusRegistry struct {
	mu       sync.RWMutex
	order    []string
	statuses map[string]entity.Status
	refs     ReferenceChecker
}

// NewStatusRegistry creates an empty registry. refs may be nil, in which case
// no status is ever considered in use.
func NewStatusRegistry(refs ReferenceChecker) *StatusRegistry {
	return &StatusRegistry{
		statuses: make(map[string]entity.Status),
		refs:     refs,
	}
}

// Add registers a status
func (r *StatusRegistry) Add(status entity.Status) error {
	return r.AddWith(status, nil)
}

// AddWith registers a status and runs persist under the registry lock before
// the status becomes visible. A persist error leaves the registry unchanged.
func (r *StatusRegistry) AddWith(status entity.Status, persist func(entity.Status) error) error {
	if status.ID == "" || status.ID == entity.AnyStatus {
		return fmt.Errorf("%w: %q cannot be used as a status id", ErrInvalidStatus, status.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.statuses[status.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, status.ID)
	}

	if persist != nil {
		if err := persist(status); err != nil {
			return err
		}
	}

	r.statuses[status.ID] = status
	r.order = append(r.order, status.ID)
	return nil
}

// Get returns the status with the given id
func (r *StatusRegistry) Get(id string) (entity.Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, ok := r.statuses[id]
	if !ok {
		return entity.Status{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return status, nil
}

// Has reports whether id is registered
func (r *StatusRegistry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.statuses[id]
	return ok
}

// Pin holds a read lock on the registry while id is guaranteed to exist.
// Removals block until release is called. Callers must not call back into
// the registry before releasing.
func (r *StatusRegistry) Pin(id string) (release func(), err error) {
	r.mu.RLock()
	if _, ok := r.statuses[id]; !ok {
		r.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.mu.RUnlock, nil
}

// Remove deletes an unreferenced status
func (r *StatusRegistry) Remove(ctx context.Context, id string) error {
	return r.RemoveWith(ctx, id, nil)
}

// RemoveWith deletes an unreferenced status, running persist under the
// registry lock after the reference check and before the in-memory delete.
func (r *StatusRegistry) RemoveWith(ctx context.Context, id string, persist func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.statuses[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if r.refs != nil {
		inUse, err := r.refs.IsStatusReferenced(ctx, id)
		if err != nil {
			return WrapStorage("check status references", err)
		}
		if inUse {
			return fmt.Errorf("%w: %s is the current status of at least one patient", ErrInUse, id)
		}
	}

	if persist != nil {
		if err := persist(ctx); err != nil {
			return err
		}
	}

	delete(r.statuses, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns a snapshot of all statuses in insertion order
func (r *StatusRegistry) List() []entity.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]entity.Status, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.statuses[id])
	}
	return out
}

// All yields the statuses in insertion order. Each range over the sequence
// takes a fresh snapshot.
func (r *StatusRegistry) All() iter.Seq[entity.Status] {
	return func(yield func(entity.Status) bool) {
		for _, status := range r.List() {
			if !yield(status) {
				return
			}
		}
	}
}

// Len returns the number of registered statuses
func (r *StatusRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
