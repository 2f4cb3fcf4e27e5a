package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a limiter id does not exist.
var ErrNotFound = errors.New("limiter not found")

// Registry owns the configured limiter list. Unlike rule.Registry, limiter
// ids are opaque UUIDs (per the Open Question resolution recorded in
// DESIGN.md: ids are never coerced to or from numeric form), so create/
// delete never renumber anything else — only load order is preserved.
type Registry struct {
	mu       sync.RWMutex
	limiters []Limiter // preserves load/insertion order
	store    LimiterStore
}

// NewRegistry loads the current limiter set from store.
func NewRegistry(ctx context.Context, store LimiterStore) (*Registry, error) {
	loaded, err := store.ListLimiters(ctx)
	if err != nil {
		return nil, fmt.Errorf("list limiters: %w", err)
	}
	cp := make([]Limiter, len(loaded))
	copy(cp, loaded)
	return &Registry{store: store, limiters: cp}, nil
}

// List returns limiters in load order.
func (r *Registry) List() []Limiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Limiter, len(r.limiters))
	copy(out, r.limiters)
	return out
}

// Create validates l, assigns an opaque id, persists it, and appends it to
// the end of the load-order list.
func (r *Registry) Create(ctx context.Context, l Limiter) (Limiter, error) {
	l.ID = uuid.NewString()
	if err := Validate(l); err != nil {
		return Limiter{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.SaveLimiter(ctx, l); err != nil {
		return Limiter{}, fmt.Errorf("persist limiter: %w", err)
	}
	r.limiters = append(r.limiters, l)
	return l, nil
}

// Update replaces every field of the limiter at id except ID itself.
func (r *Registry) Update(ctx context.Context, id string, patch Limiter) error {
	patch.ID = id
	if err := Validate(patch); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOfLocked(id)
	if idx < 0 {
		return ErrNotFound
	}
	if err := r.store.SaveLimiter(ctx, patch); err != nil {
		return fmt.Errorf("persist limiter: %w", err)
	}
	r.limiters[idx] = patch
	return nil
}

// Delete removes id from the configured set. Associated counters are not
// eagerly removed; the Retention Sweeper garbage-collects them.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOfLocked(id)
	if idx < 0 {
		return ErrNotFound
	}
	if err := r.store.DeleteLimiter(ctx, id); err != nil {
		return fmt.Errorf("delete limiter: %w", err)
	}
	r.limiters = append(r.limiters[:idx], r.limiters[idx+1:]...)
	return nil
}

func (r *Registry) indexOfLocked(id string) int {
	for i, l := range r.limiters {
		if l.ID == id {
			return i
		}
	}
	return -1
}
