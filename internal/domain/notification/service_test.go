package notification

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

// -- Mock Repository --

type mockRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Notification
	seq   int
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Notification)}
}

func (m *mockRepo) Create(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	n.ID = uuid.New()
	n.CreatedAt = time.Unix(int64(m.seq), 0)
	m.items[n.ID] = n
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFoundf("notification %s not found", id)
	}
	return n, nil
}

func (m *mockRepo) ListByRecipient(_ context.Context, userID uuid.UUID, limit, offset int) ([]*Notification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Notification
	for _, n := range m.items {
		if n.UserID == userID {
			result = append(result, n)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[j].Before(*result[i]) })
	return result, len(result), nil
}

func (m *mockRepo) UnreadCount(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, x := range m.items {
		if x.UserID == userID && !x.Read {
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) MarkRead(_ context.Context, id, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.UserID != userID || n.Read {
		return false, nil
	}
	n.Read = true
	return true, nil
}

func (m *mockRepo) MarkAllRead(_ context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, x := range m.items {
		if x.UserID == userID && !x.Read {
			x.Read = true
			n++
		}
	}
	return n, nil
}

func newTestService() (*Service, *mockRepo, *dispatch.Dispatcher) {
	repo := newMockRepo()
	d := dispatch.NewDispatcher(16, zerolog.Nop())
	return NewService(repo, d, zerolog.Nop()), repo, d
}

// -- Tests --

func TestNotifyMessage_PublishesOnRecipientScope(t *testing.T) {
	svc, _, d := newTestService()
	recipient, sender, session := uuid.New(), uuid.New(), uuid.New()

	sub := d.Subscribe(dispatch.UserScope(recipient))
	defer sub.Cancel()

	if err := svc.NotifyMessage(context.Background(), recipient, session, sender); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case ev := <-sub.Events():
		if ev.Op != dispatch.OpInsert {
			t.Errorf("expected insert event, got %s", ev.Op)
		}
		n, ok := ev.Entity.(Notification)
		if !ok {
			t.Fatalf("expected Notification payload, got %T", ev.Entity)
		}
		if n.Type != TypeMessage || n.UserID != recipient {
			t.Errorf("unexpected notification %+v", n)
		}
		if n.RelatedID == nil || *n.RelatedID != session {
			t.Error("expected related_id to carry the session id")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for insert event")
	}
}

func TestNotifyAppointmentRequest(t *testing.T) {
	svc, repo, _ := newTestService()
	doctor, request := uuid.New(), uuid.New()

	if err := svc.NotifyAppointmentRequest(context.Background(), doctor, request, "Jane Roe"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items, _, _ := repo.ListByRecipient(context.Background(), doctor, 20, 0)
	if len(items) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(items))
	}
	n := items[0]
	if n.Type != TypeAppointmentRequest {
		t.Errorf("expected type %s, got %s", TypeAppointmentRequest, n.Type)
	}
	if n.Message != "Jane Roe requested an appointment" {
		t.Errorf("unexpected message %q", n.Message)
	}
}

func TestNotifyHealthcareAlert(t *testing.T) {
	svc, repo, _ := newTestService()
	user, alert := uuid.New(), uuid.New()

	if err := svc.NotifyHealthcareAlert(context.Background(), user, alert, "Flu season advisory"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items, _, _ := repo.ListByRecipient(context.Background(), user, 20, 0)
	if len(items) != 1 || items[0].Type != TypeHealthcareAlert {
		t.Fatal("expected one healthcare_alert notification")
	}
	if items[0].Message != "Flu season advisory" {
		t.Errorf("unexpected message %q", items[0].Message)
	}
}

func TestNotifySystem_Validation(t *testing.T) {
	svc, _, _ := newTestService()

	err := svc.NotifySystem(context.Background(), uuid.Nil, "t", "m")
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for nil recipient, got %v", err)
	}
	err = svc.NotifySystem(context.Background(), uuid.New(), "", "m")
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for empty title, got %v", err)
	}
}

func TestListByRecipient_NewestFirst(t *testing.T) {
	svc, _, _ := newTestService()
	user := uuid.New()

	svc.NotifySystem(context.Background(), user, "first", "m")
	svc.NotifySystem(context.Background(), user, "second", "m")
	svc.NotifySystem(context.Background(), user, "third", "m")

	items, total, err := svc.ListByRecipient(context.Background(), user, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 notifications, got %d", total)
	}
	if items[0].Title != "third" || items[2].Title != "first" {
		t.Error("expected newest-first ordering")
	}
}

func TestMarkRead_Idempotent(t *testing.T) {
	svc, repo, _ := newTestService()
	user := uuid.New()
	svc.NotifySystem(context.Background(), user, "hello", "m")
	items, _, _ := repo.ListByRecipient(context.Background(), user, 20, 0)
	id := items[0].ID

	if err := svc.MarkRead(context.Background(), id, user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Second call is a no-op success.
	if err := svc.MarkRead(context.Background(), id, user); err != nil {
		t.Fatalf("expected repeat mark-read to succeed, got %v", err)
	}
	if n, _ := svc.UnreadCount(context.Background(), user); n != 0 {
		t.Errorf("expected 0 unread, got %d", n)
	}
}

func TestMarkRead_UnknownID(t *testing.T) {
	svc, _, _ := newTestService()
	err := svc.MarkRead(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestMarkRead_OtherUsersNotification(t *testing.T) {
	svc, repo, _ := newTestService()
	owner, other := uuid.New(), uuid.New()
	svc.NotifySystem(context.Background(), owner, "private", "m")
	items, _, _ := repo.ListByRecipient(context.Background(), owner, 20, 0)

	err := svc.MarkRead(context.Background(), items[0].ID, other)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not-found for foreign notification, got %v", err)
	}
	if items[0].Read {
		t.Error("foreign mark-read must not flag the notification")
	}
}

func TestMarkAllRead(t *testing.T) {
	svc, _, _ := newTestService()
	user, bystander := uuid.New(), uuid.New()

	svc.NotifySystem(context.Background(), user, "a", "m")
	svc.NotifySystem(context.Background(), user, "b", "m")
	svc.NotifySystem(context.Background(), bystander, "c", "m")

	n, err := svc.MarkAllRead(context.Background(), user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 marked, got %d", n)
	}
	if u, _ := svc.UnreadCount(context.Background(), user); u != 0 {
		t.Errorf("expected 0 unread for user, got %d", u)
	}
	if u, _ := svc.UnreadCount(context.Background(), bystander); u != 1 {
		t.Errorf("bystander's notifications must stay unread, got %d read", 1-u)
	}

	// Repeat is a no-op.
	if n, _ := svc.MarkAllRead(context.Background(), user); n != 0 {
		t.Errorf("expected repeat mark-all-read to touch 0 rows, got %d", n)
	}
}
