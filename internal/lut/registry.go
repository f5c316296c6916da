package lut

import (
	"context"
	"sync"
	"sync/atomic"
)

// Entry owns the tables of one plan. Readers load the current snapshot
// without locking; a rebuild publishes a new snapshot atomically so a
// reader never sees a partially generated table.
type Entry struct {
	plan   *Plan
	params func() map[string]float64

	current atomic.Pointer[Set]
	mu      sync.Mutex // serialises builds
	builds  atomic.Int64
}

// Load returns the current tables, generating them on first use or
// after Invalidate.
func (e *Entry) Load(ctx context.Context) (*Set, error) {
	if s := e.current.Load(); s != nil {
		return s, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if s := e.current.Load(); s != nil {
		return s, nil
	}
	s, err := Generate(ctx, e.plan, e.params())
	if err != nil {
		return nil, err
	}
	e.builds.Add(1)
	e.current.Store(s)
	return s, nil
}

// Regenerate rebuilds the tables from the current parameters and swaps
// them in. Readers keep the old snapshot until the swap.
func (e *Entry) Regenerate(ctx context.Context) (*Set, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := Generate(ctx, e.plan, e.params())
	if err != nil {
		return nil, err
	}
	e.builds.Add(1)
	e.current.Store(s)
	return s, nil
}

// Invalidate drops the tables; the next Load regenerates them.
func (e *Entry) Invalidate() { e.current.Store(nil) }

// Ready reports whether tables are currently held.
func (e *Entry) Ready() bool { return e.current.Load() != nil }

// Builds returns how many times the tables have been generated.
func (e *Entry) Builds() int64 { return e.builds.Load() }

// Plan returns the plan the entry samples.
func (e *Entry) Plan() *Plan { return e.plan }

// Registry maps a (model fingerprint, variant) id to its tables. Cells
// of the same model variant share one entry.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Entry returns the entry for id, creating it with plan and params on
// first use. params is called on every build and must return the
// parameter values the tables depend on.
func (r *Registry) Entry(id string, plan *Plan, params func() map[string]float64) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e
	}
	e := &Entry{plan: plan, params: params}
	r.entries[id] = e
	return e
}

// FreeMemory drops the tables of every entry.
func (r *Registry) FreeMemory() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		e.Invalidate()
	}
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
