package alert

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telehealth/telehealth/internal/platform/apperr"
	"github.com/telehealth/telehealth/internal/platform/dispatch"
)

// -- Mock Repositories --

type mockAlertRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*HealthcareAlert
}

func newMockAlertRepo() *mockAlertRepo {
	return &mockAlertRepo{items: make(map[uuid.UUID]*HealthcareAlert)}
}

func (m *mockAlertRepo) Create(_ context.Context, a *HealthcareAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.SentAt = time.Now()
	m.items[a.ID] = a
	return nil
}

func (m *mockAlertRepo) GetByID(_ context.Context, id uuid.UUID) (*HealthcareAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFoundf("alert %s not found", id)
	}
	return a, nil
}

func (m *mockAlertRepo) List(_ context.Context, limit, offset int) ([]*HealthcareAlert, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*HealthcareAlert
	for _, a := range m.items {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SentAt.After(result[j].SentAt) })
	return result, len(result), nil
}

type mockDeliveryRepo struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*UserAlertDelivery
	failFor map[uuid.UUID]bool // user ids whose delivery write fails
}

func newMockDeliveryRepo() *mockDeliveryRepo {
	return &mockDeliveryRepo{
		items:   make(map[uuid.UUID]*UserAlertDelivery),
		failFor: make(map[uuid.UUID]bool),
	}
}

func (m *mockDeliveryRepo) Create(_ context.Context, d *UserAlertDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[d.UserID] {
		return errors.New("write failed")
	}
	d.ID = uuid.New()
	d.DeliveredAt = time.Now()
	m.items[d.ID] = d
	return nil
}

func (m *mockDeliveryRepo) GetByID(_ context.Context, id uuid.UUID) (*UserAlertDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFoundf("alert delivery %s not found", id)
	}
	return d, nil
}

func (m *mockDeliveryRepo) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]*UserAlertDelivery, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*UserAlertDelivery
	for _, d := range m.items {
		if d.UserID == userID {
			result = append(result, d)
		}
	}
	return result, len(result), nil
}

func (m *mockDeliveryRepo) MarkRead(_ context.Context, id, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok || d.UserID != userID || d.ReadAt != nil {
		return false, nil
	}
	now := time.Now()
	d.ReadAt = &now
	return true, nil
}

type staticRoster struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (r *staticRoster) Roster(_ context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uuid.UUID, len(r.ids))
	copy(out, r.ids)
	return out, nil
}

type mockAlertNotifier struct {
	mu    sync.Mutex
	calls int
}

func (m *mockAlertNotifier) NotifyHealthcareAlert(_ context.Context, _, _ uuid.UUID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return nil
}

type alertFixture struct {
	svc        *Service
	alerts     *mockAlertRepo
	deliveries *mockDeliveryRepo
	roster     *staticRoster
	notifier   *mockAlertNotifier
	d          *dispatch.Dispatcher
}

func newAlertFixture(users ...uuid.UUID) *alertFixture {
	alerts := newMockAlertRepo()
	deliveries := newMockDeliveryRepo()
	roster := &staticRoster{ids: users}
	notifier := &mockAlertNotifier{}
	d := dispatch.NewDispatcher(16, zerolog.Nop())
	return &alertFixture{
		svc:        NewService(alerts, deliveries, roster, notifier, d, zerolog.Nop()),
		alerts:     alerts,
		deliveries: deliveries,
		roster:     roster,
		notifier:   notifier,
		d:          d,
	}
}

// -- Tests --

func TestBroadcast(t *testing.T) {
	users := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	f := newAlertFixture(users...)
	admin := uuid.New()

	result, err := f.svc.Broadcast(context.Background(), "clinic closed friday", admin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Alert.SentByAdminID != admin {
		t.Error("alert must record the sending admin")
	}
	if result.Delivered != 3 || len(result.Failed) != 0 {
		t.Errorf("expected 3 deliveries, got %d delivered %d failed", result.Delivered, len(result.Failed))
	}

	// One alert row, one unread delivery per user.
	_, total, _ := f.svc.ListAlerts(context.Background(), 20, 0)
	if total != 1 {
		t.Errorf("expected 1 alert, got %d", total)
	}
	for _, u := range users {
		items, n, _ := f.svc.ListDeliveries(context.Background(), u, 20, 0)
		if n != 1 {
			t.Fatalf("expected 1 delivery for user %s, got %d", u, n)
		}
		if items[0].ReadAt != nil {
			t.Error("new delivery must start unread")
		}
	}
	if f.notifier.calls != 3 {
		t.Errorf("expected 3 alert notifications, got %d", f.notifier.calls)
	}
}

func TestBroadcast_PublishesOnEachRecipientScope(t *testing.T) {
	user := uuid.New()
	f := newAlertFixture(user)

	sub := f.d.Subscribe(dispatch.UserScope(user))
	defer sub.Cancel()

	if _, err := f.svc.Broadcast(context.Background(), "advisory", uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case ev := <-sub.Events():
		if ev.Op != dispatch.OpInsert {
			t.Errorf("expected insert event, got %s", ev.Op)
		}
		if _, ok := ev.Entity.(UserAlertDelivery); !ok {
			t.Errorf("expected UserAlertDelivery payload, got %T", ev.Entity)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery event")
	}
}

func TestBroadcast_PartialFanoutFailure(t *testing.T) {
	good1, bad, good2 := uuid.New(), uuid.New(), uuid.New()
	f := newAlertFixture(good1, bad, good2)
	f.deliveries.failFor[bad] = true

	result, err := f.svc.Broadcast(context.Background(), "advisory", uuid.New())
	if err != nil {
		t.Fatalf("partial failure must not fail the broadcast: %v", err)
	}
	if result.Delivered != 2 {
		t.Errorf("expected 2 deliveries, got %d", result.Delivered)
	}
	if len(result.Failed) != 1 || result.Failed[0] != bad {
		t.Errorf("expected failed=[%s], got %v", bad, result.Failed)
	}
	// The alert row itself is durable.
	if _, total, _ := f.svc.ListAlerts(context.Background(), 20, 0); total != 1 {
		t.Errorf("expected alert persisted, got %d", total)
	}
}

func TestBroadcast_Validation(t *testing.T) {
	f := newAlertFixture(uuid.New())

	if _, err := f.svc.Broadcast(context.Background(), "  ", uuid.New()); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for empty content, got %v", err)
	}
	if _, err := f.svc.Broadcast(context.Background(), "x", uuid.Nil); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for nil admin, got %v", err)
	}
}

func TestBroadcast_LateRegistrantGetsNothing(t *testing.T) {
	early := uuid.New()
	f := newAlertFixture(early)

	if _, err := f.svc.Broadcast(context.Background(), "first", uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	late := uuid.New()
	f.roster.mu.Lock()
	f.roster.ids = append(f.roster.ids, late)
	f.roster.mu.Unlock()

	if _, n, _ := f.svc.ListDeliveries(context.Background(), late, 20, 0); n != 0 {
		t.Errorf("late registrant must have no deliveries for earlier alerts, got %d", n)
	}
	if _, n, _ := f.svc.ListDeliveries(context.Background(), early, 20, 0); n != 1 {
		t.Errorf("expected 1 delivery for early user, got %d", n)
	}
}

func TestMarkDeliveryRead_IdempotentAndMonotonic(t *testing.T) {
	user := uuid.New()
	f := newAlertFixture(user)
	f.svc.Broadcast(context.Background(), "advisory", uuid.New())
	items, _, _ := f.svc.ListDeliveries(context.Background(), user, 20, 0)
	id := items[0].ID

	if err := f.svc.MarkDeliveryRead(context.Background(), id, user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := *items[0].ReadAt

	time.Sleep(5 * time.Millisecond)
	if err := f.svc.MarkDeliveryRead(context.Background(), id, user); err != nil {
		t.Fatalf("repeat mark-read must succeed: %v", err)
	}
	if !items[0].ReadAt.Equal(first) {
		t.Error("read_at must keep its original timestamp")
	}
}

func TestMarkDeliveryRead_NotFound(t *testing.T) {
	f := newAlertFixture()
	err := f.svc.MarkDeliveryRead(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestMarkDeliveryRead_ForeignDelivery(t *testing.T) {
	owner := uuid.New()
	f := newAlertFixture(owner)
	f.svc.Broadcast(context.Background(), "advisory", uuid.New())
	items, _, _ := f.svc.ListDeliveries(context.Background(), owner, 20, 0)

	err := f.svc.MarkDeliveryRead(context.Background(), items[0].ID, uuid.New())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not-found for foreign delivery, got %v", err)
	}
	if items[0].ReadAt != nil {
		t.Error("foreign mark-read must not stamp the delivery")
	}
}
