// Package reconcile maintains a locally consistent, ordered copy of one
// scope's entities by merging a dispatch event stream with authoritative
// reads from the store.
//
// The dispatcher promises at-least-once, unordered delivery, so the view
// must survive duplicated inserts, updates for rows it never saw, deletes
// without a usable key, and dropped events. Anything it cannot merge
// confidently is answered with a full resync: throw the cache away and
// reseed from the store. Resyncs are recovery, not failure; the consumer
// never sees a duplicate row or a misordered list either way.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/telehealth/telehealth/internal/platform/dispatch"
)

// Entity is anything the view can hold: keyed by a stable id and totally
// ordered by Before. Every core entity orders by (created_at, id), with the
// id comparison breaking timestamp ties.
type Entity[T any] interface {
	EntityID() uuid.UUID
	Before(other T) bool
}

// FetchFunc performs the authoritative list read for a scope, in store
// order. It must be restartable: the view calls it on every reseed.
type FetchFunc[T any] func(ctx context.Context) ([]T, error)

// View is one subscriber's reconciled copy of a scope. Safe for concurrent
// use.
type View[T Entity[T]] struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]T
	order   []T
	fetch   FetchFunc[T]
	resyncs int
}

// NewView creates an empty view backed by the given authoritative fetch.
// Call Seed before applying events.
func NewView[T Entity[T]](fetch FetchFunc[T]) *View[T] {
	return &View[T]{
		byID:  make(map[uuid.UUID]T),
		fetch: fetch,
	}
}

// Seed discards local state and rebuilds it from the store.
func (v *View[T]) Seed(ctx context.Context) error {
	items, err := v.fetch(ctx)
	if err != nil {
		return fmt.Errorf("seed view: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.rebuild(items)
	return nil
}

// rebuild replaces all local state. Items are deduplicated by id and sorted
// locally rather than trusting the fetch order. Caller holds v.mu.
func (v *View[T]) rebuild(items []T) {
	v.byID = make(map[uuid.UUID]T, len(items))
	v.order = v.order[:0]
	for _, item := range items {
		if _, dup := v.byID[item.EntityID()]; dup {
			continue
		}
		v.byID[item.EntityID()] = item
		v.order = append(v.order, item)
	}
	sort.SliceStable(v.order, func(i, j int) bool {
		return v.order[i].Before(v.order[j])
	})
}

// Apply merges one push event into the view. Events that cannot be merged
// safely (an update for an unseen row, a delete without a key, a payload of
// the wrong type) trigger a full resync instead of a guess.
func (v *View[T]) Apply(ctx context.Context, ev dispatch.Event) error {
	switch ev.Op {
	case dispatch.OpInsert:
		entity, ok := ev.Entity.(T)
		if !ok {
			return v.Resync(ctx)
		}
		v.applyInsert(entity)
		return nil

	case dispatch.OpUpdate:
		entity, ok := ev.Entity.(T)
		if !ok {
			return v.Resync(ctx)
		}
		if !v.applyUpdate(entity) {
			// An update for a row we never saw means the insert was
			// missed; the stream cannot be trusted any more.
			return v.Resync(ctx)
		}
		return nil

	case dispatch.OpDelete:
		if ev.ID == uuid.Nil {
			// Some transports deliver deletes without an identifying
			// key. Guessing which local row to drop would be worse
			// than refetching.
			return v.Resync(ctx)
		}
		v.applyDelete(ev.ID)
		return nil

	default:
		return v.Resync(ctx)
	}
}

func (v *View[T]) applyInsert(entity T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, dup := v.byID[entity.EntityID()]; dup {
		// Duplicate delivery of an insert we already hold.
		return
	}
	v.byID[entity.EntityID()] = entity

	// Arrival order is meaningless; place the entity by its ordering key.
	i := sort.Search(len(v.order), func(i int) bool {
		return entity.Before(v.order[i])
	})
	v.order = append(v.order, entity)
	copy(v.order[i+1:], v.order[i:])
	v.order[i] = entity
}

func (v *View[T]) applyUpdate(entity T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.byID[entity.EntityID()]; !ok {
		return false
	}
	v.byID[entity.EntityID()] = entity
	for i, existing := range v.order {
		if existing.EntityID() == entity.EntityID() {
			v.order[i] = entity
			break
		}
	}
	return true
}

func (v *View[T]) applyDelete(id uuid.UUID) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.byID[id]; !ok {
		// Duplicate delivery of a delete; the row is already gone.
		return
	}
	delete(v.byID, id)
	for i, existing := range v.order {
		if existing.EntityID() == id {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
}

// Resync discards the local cache and reseeds from the store.
func (v *View[T]) Resync(ctx context.Context) error {
	v.mu.Lock()
	v.resyncs++
	v.mu.Unlock()
	return v.Seed(ctx)
}

// Snapshot returns the current entities in store order.
func (v *View[T]) Snapshot() []T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]T, len(v.order))
	copy(out, v.order)
	return out
}

// Len returns the number of entities currently held.
func (v *View[T]) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.order)
}

// Resyncs reports how many full resyncs the view has performed.
func (v *View[T]) Resyncs() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.resyncs
}

// Run seeds the view and then drives it from the subscription until the
// context is cancelled or the subscription is closed. A gap signal from the
// dispatcher triggers a full resync. Returns nil on normal shutdown.
func (v *View[T]) Run(ctx context.Context, sub *dispatch.Subscription) error {
	if err := v.Seed(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-sub.Gap():
			if err := v.Resync(ctx); err != nil {
				return err
			}

		case ev, open := <-sub.Events():
			if !open {
				return nil
			}
			if err := v.Apply(ctx, ev); err != nil {
				return err
			}
		}
	}
}
