// Package dispatch is the portal's change-feed primitive. Stores publish
// insert/update/delete events after every successful write; any number of
// subscribers receive a live stream of the events for a single scope (a chat
// session id or a recipient user id).
//
// Delivery is at-least-once and unordered: the dispatcher never blocks a
// write on a slow subscriber, so an event may be dropped for one subscriber
// while reaching all others. A subscriber whose buffer overflows is told so
// through its gap channel and is expected to resynchronize from the store
// rather than trust the stream.
package dispatch

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Op identifies the kind of change carried by an Event.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// SessionScope names the scope carrying one chat session's messages.
func SessionScope(sessionID uuid.UUID) string {
	return "session:" + sessionID.String()
}

// UserScope names the scope carrying one user's notifications and alert
// deliveries.
func UserScope(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// Event is one change pushed to subscribers of a scope. Entity carries the
// written record for inserts and updates. Delete events are keyed by ID
// alone; some upstream paths cannot recover the key of a deleted row, in
// which case ID is uuid.Nil and consumers must resync instead of guessing.
type Event struct {
	Op     Op
	ID     uuid.UUID
	Entity interface{}
}

// Subscription is one subscriber's handle on a scope's event stream.
type Subscription struct {
	scope      string
	events     chan Event
	gap        chan struct{}
	dispatcher *Dispatcher

	once sync.Once
}

// Events returns the live event stream. The channel is closed when the
// subscription is cancelled.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Gap signals that at least one event was dropped for this subscriber and
// its local state can no longer be trusted. Consumers should discard their
// cache and reseed from the store.
func (s *Subscription) Gap() <-chan struct{} {
	return s.gap
}

// Scope returns the scope this subscription is bound to.
func (s *Subscription) Scope() string {
	return s.scope
}

// Cancel removes the subscription from its scope and closes the event
// stream. Cancelling twice is a no-op, and cancelling never affects the
// scope's other subscribers.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.dispatcher.remove(s)
		close(s.events)
	})
}

// Dispatcher fans change events out to scope subscribers. All operations are
// safe for concurrent use.
type Dispatcher struct {
	mu     sync.RWMutex
	scopes map[string]map[*Subscription]struct{}
	buffer int
	logger zerolog.Logger
}

// NewDispatcher creates a Dispatcher whose subscriptions buffer up to buffer
// undelivered events before reporting a gap.
func NewDispatcher(buffer int, logger zerolog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	return &Dispatcher{
		scopes: make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new subscriber for the given scope.
func (d *Dispatcher) Subscribe(scope string) *Subscription {
	sub := &Subscription{
		scope:      scope,
		events:     make(chan Event, d.buffer),
		gap:        make(chan struct{}, 1),
		dispatcher: d,
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.scopes[scope] == nil {
		d.scopes[scope] = make(map[*Subscription]struct{})
	}
	d.scopes[scope][sub] = struct{}{}

	return sub
}

// Publish delivers an event to every current subscriber of the scope.
// Best-effort: a subscriber with a full buffer has the event dropped and its
// gap flag raised instead of blocking the caller. Publish never fails; a
// failed per-subscriber delivery is an operational log line, not an error on
// the write path.
func (d *Dispatcher) Publish(scope string, ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	subscribers, ok := d.scopes[scope]
	if !ok {
		return
	}

	for sub := range subscribers {
		select {
		case sub.events <- ev:
		default:
			// Subscriber buffer full. Drop the event and tell the
			// subscriber its stream has a hole in it.
			select {
			case sub.gap <- struct{}{}:
			default:
			}
			d.logger.Warn().
				Str("scope", scope).
				Str("op", string(ev.Op)).
				Str("entity_id", ev.ID.String()).
				Msg("dropped event for slow subscriber")
		}
	}
}

// SubscriberCount returns the number of live subscriptions for a scope.
func (d *Dispatcher) SubscriberCount(scope string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.scopes[scope])
}

func (d *Dispatcher) remove(sub *Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if subscribers, ok := d.scopes[sub.scope]; ok {
		delete(subscribers, sub)
		if len(subscribers) == 0 {
			delete(d.scopes, sub.scope)
		}
	}
}
