package dispatch

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestDispatcher(buffer int) *Dispatcher {
	return NewDispatcher(buffer, zerolog.Nop())
}

func receiveOne(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublish_ReachesAllScopeSubscribers(t *testing.T) {
	d := newTestDispatcher(8)
	a := d.Subscribe("session:1")
	b := d.Subscribe("session:1")
	defer a.Cancel()
	defer b.Cancel()

	id := uuid.New()
	d.Publish("session:1", Event{Op: OpInsert, ID: id})

	for _, sub := range []*Subscription{a, b} {
		ev := receiveOne(t, sub)
		if ev.Op != OpInsert || ev.ID != id {
			t.Errorf("unexpected event: %+v", ev)
		}
	}
}

func TestPublish_ScopeIsolation(t *testing.T) {
	d := newTestDispatcher(8)
	a := d.Subscribe("session:1")
	b := d.Subscribe("session:2")
	defer a.Cancel()
	defer b.Cancel()

	d.Publish("session:1", Event{Op: OpInsert, ID: uuid.New()})

	receiveOne(t, a)
	select {
	case ev := <-b.Events():
		t.Errorf("subscriber of other scope received event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublish_NoSubscribers(t *testing.T) {
	d := newTestDispatcher(8)
	// Must not panic or block.
	d.Publish("session:none", Event{Op: OpInsert, ID: uuid.New()})
}

func TestPublish_SlowSubscriberDoesNotBlock(t *testing.T) {
	d := newTestDispatcher(1)
	slow := d.Subscribe("user:1")
	fast := d.Subscribe("user:1")
	defer slow.Cancel()
	defer fast.Cancel()

	done := make(chan struct{})
	go func() {
		// Three events against a buffer of one: the second and third
		// overflow the slow subscriber but must not block Publish.
		for i := 0; i < 3; i++ {
			d.Publish("user:1", Event{Op: OpInsert, ID: uuid.New()})
			receiveOne(t, fast)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

func TestPublish_OverflowRaisesGap(t *testing.T) {
	d := newTestDispatcher(1)
	sub := d.Subscribe("user:1")
	defer sub.Cancel()

	d.Publish("user:1", Event{Op: OpInsert, ID: uuid.New()})
	d.Publish("user:1", Event{Op: OpInsert, ID: uuid.New()})

	select {
	case <-sub.Gap():
	case <-time.After(time.Second):
		t.Fatal("expected gap signal after overflow")
	}
}

func TestCancel_Idempotent(t *testing.T) {
	d := newTestDispatcher(8)
	sub := d.Subscribe("session:1")

	sub.Cancel()
	sub.Cancel() // must not panic

	if n := d.SubscriberCount("session:1"); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}
}

func TestCancel_DoesNotAffectOthers(t *testing.T) {
	d := newTestDispatcher(8)
	a := d.Subscribe("session:1")
	b := d.Subscribe("session:1")
	defer b.Cancel()

	a.Cancel()

	id := uuid.New()
	d.Publish("session:1", Event{Op: OpInsert, ID: id})
	ev := receiveOne(t, b)
	if ev.ID != id {
		t.Errorf("remaining subscriber missed event: %+v", ev)
	}
}

func TestCancel_ClosesEventStream(t *testing.T) {
	d := newTestDispatcher(8)
	sub := d.Subscribe("session:1")
	sub.Cancel()

	select {
	case _, open := <-sub.Events():
		if open {
			t.Error("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestSubscriberCount(t *testing.T) {
	d := newTestDispatcher(8)
	if n := d.SubscriberCount("x"); n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
	a := d.Subscribe("x")
	b := d.Subscribe("x")
	if n := d.SubscriberCount("x"); n != 2 {
		t.Errorf("expected 2, got %d", n)
	}
	a.Cancel()
	b.Cancel()
	if n := d.SubscriberCount("x"); n != 0 {
		t.Errorf("expected 0 after cancels, got %d", n)
	}
}

func TestEvent_DeleteWithoutKey(t *testing.T) {
	d := newTestDispatcher(8)
	sub := d.Subscribe("session:1")
	defer sub.Cancel()

	d.Publish("session:1", Event{Op: OpDelete})
	ev := receiveOne(t, sub)
	if ev.ID != uuid.Nil {
		t.Errorf("expected nil id on unkeyed delete, got %s", ev.ID)
	}
}
