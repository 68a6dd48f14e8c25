package notification

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*Notification, error)
	// ListByRecipient returns the user's notifications newest-first,
	// ordered descending by (created_at, id).
	ListByRecipient(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Notification, int, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	// MarkRead flags one notification and reports whether the row changed.
	MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error)
	// MarkAllRead flags every unread notification existing at call time and
	// returns how many rows changed.
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}
