package state

import (
	"context"
	"fmt"
	"sync"
)

// Persister saves a snapshot source to a Store when marked dirty. It
// implements the MarkDirty/Persist pair the orchestrator expects.
type Persister[T any] struct {
	store  Store[T]
	ref    Ref
	source func() T

	mu    sync.Mutex
	dirty bool
	meta  Meta
}

func NewPersister[T any](store Store[T], ref Ref) *Persister[T] {
	return &Persister[T]{store: store, ref: ref}
}

// SetSource installs the function that produces the snapshot to save.
func (p *Persister[T]) SetSource(source func() T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = source
}

// MarkDirty flags the snapshot as needing a save.
func (p *Persister[T]) MarkDirty() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirty = true
}

// Dirty reports whether a save is pending.
func (p *Persister[T]) Dirty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirty
}

// Meta returns the metadata of the last load or save.
func (p *Persister[T]) Meta() Meta {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneMeta(p.meta)
}

// Load reads the stored snapshot and remembers its ETag for the next save.
func (p *Persister[T]) Load(ctx context.Context) (T, bool, error) {
	var zero T
	if p.store == nil {
		return zero, false, fmt.Errorf("state: store is required")
	}
	snapshot, meta, ok, err := p.store.Load(ctx, p.ref)
	if err != nil {
		return zero, false, err
	}
	p.mu.Lock()
	p.meta = meta
	p.mu.Unlock()
	return snapshot, ok, nil
}

// Persist saves the current snapshot when dirty. The dirty flag stays set when
// the save fails so a later call retries.
func (p *Persister[T]) Persist(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dirty {
		return nil
	}
	if p.store == nil {
		return fmt.Errorf("state: store is required")
	}
	if p.source == nil {
		return fmt.Errorf("state: snapshot source is required")
	}
	saved, err := p.store.Save(ctx, p.ref, p.source(), Meta{ETag: p.meta.ETag})
	if err != nil {
		return fmt.Errorf("state: persist %q/%q: %w", p.ref.Domain, p.ref.Target, err)
	}
	p.meta = saved
	p.dirty = false
	return nil
}
