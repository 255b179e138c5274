// Package persist mirrors Store mutations into durable storage. A Tracker
// listens for change notifications and records which containers are dirty or
// deleted; Flush writes those containers through a Repository.
package persist

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/cory-johannsen/stash/internal/inventory"
)

// Repository is the durable side of a Tracker.
type Repository interface {
	Save(ctx context.Context, snap inventory.ContainerSnapshot) error
	Delete(ctx context.Context, id inventory.ContainerID) error
}

// Source supplies previously saved snapshots to Restore.
type Source interface {
	LoadAll(ctx context.Context) ([]inventory.ContainerSnapshot, error)
}

// Option configures a Tracker.
type Option func(*Tracker)

// Exclude stops the Tracker from recording changes to the given containers.
func Exclude(ids ...inventory.ContainerID) Option {
	return func(t *Tracker) {
		for _, id := range ids {
			t.excluded[id] = struct{}{}
		}
	}
}

// WithLogger sets the Tracker's logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// Tracker accumulates pending writes for a Store. It is not safe for
// concurrent use; call it from the goroutine that drives the Store.
type Tracker struct {
	store    *inventory.Store
	sub      inventory.Subscription
	dirty    map[inventory.ContainerID]struct{}
	deleted  map[inventory.ContainerID]struct{}
	excluded map[inventory.ContainerID]struct{}
	logger   *zap.Logger
}

// NewTracker subscribes a Tracker to every container of s.
//
// Postcondition: mutations made after this call are pending until flushed.
func NewTracker(s *inventory.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:    s,
		dirty:    make(map[inventory.ContainerID]struct{}),
		deleted:  make(map[inventory.ContainerID]struct{}),
		excluded: make(map[inventory.ContainerID]struct{}),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.sub = s.SubscribeAll(t.onChange)
	return t
}

// Close unsubscribes the Tracker. Pending writes are kept.
func (t *Tracker) Close() {
	t.store.Unsubscribe(t.sub)
}

// MarkDirty schedules the given containers for saving regardless of whether
// they changed.
func (t *Tracker) MarkDirty(ids ...inventory.ContainerID) {
	for _, id := range ids {
		t.onChange(t.store, id)
	}
}

func (t *Tracker) onChange(s *inventory.Store, id inventory.ContainerID) {
	if _, skip := t.excluded[id]; skip {
		return
	}
	if s.Has(id) {
		t.dirty[id] = struct{}{}
		delete(t.deleted, id)
		return
	}
	t.deleted[id] = struct{}{}
	delete(t.dirty, id)
}

// Pending returns the number of containers awaiting a write.
func (t *Tracker) Pending() int {
	return len(t.dirty) + len(t.deleted)
}

// Dirty returns the IDs awaiting a save, sorted.
func (t *Tracker) Dirty() []inventory.ContainerID {
	return slices.Sorted(maps.Keys(t.dirty))
}

// Deleted returns the IDs awaiting a delete, sorted.
func (t *Tracker) Deleted() []inventory.ContainerID {
	return slices.Sorted(maps.Keys(t.deleted))
}

// Flush saves every dirty container and deletes every deleted one, in ID
// order. It stops at the first repository error.
//
// Postcondition: containers written successfully are no longer pending; the
// failing container and every container after it stay pending.
func (t *Tracker) Flush(ctx context.Context, repo Repository) (int, error) {
	written := 0
	for _, id := range t.Deleted() {
		if err := repo.Delete(ctx, id); err != nil {
			return written, fmt.Errorf("flushing delete of %q: %w", id, err)
		}
		delete(t.deleted, id)
		written++
	}
	for _, id := range t.Dirty() {
		c, ok := t.store.Container(id)
		if !ok {
			delete(t.dirty, id)
			continue
		}
		if err := repo.Save(ctx, inventory.Export(c)); err != nil {
			return written, fmt.Errorf("flushing container %q: %w", id, err)
		}
		delete(t.dirty, id)
		written++
	}
	if written > 0 {
		t.logger.Info("containers flushed", zap.Int("written", written))
	}
	return written, nil
}

// Restore imports every snapshot from src into s.
//
// Precondition: none of the stored IDs are registered in s.
// Postcondition: returns the number of containers imported; stops at the
// first error.
func Restore(ctx context.Context, src Source, s *inventory.Store) (int, error) {
	snaps, err := src.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("restoring containers: %w", err)
	}
	for i, snap := range snaps {
		if _, err := s.Import(snap); err != nil {
			return i, fmt.Errorf("restoring container %q: %w", snap.ID, err)
		}
	}
	return len(snaps), nil
}
