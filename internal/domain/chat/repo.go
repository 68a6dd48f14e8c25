package chat

import (
	"context"

	"github.com/google/uuid"
)

type SessionRepository interface {
	// FindOrCreate returns the session for the pair, creating it when no
	// session exists yet. Concurrent first-contact calls converge on one row.
	FindOrCreate(ctx context.Context, patientID, doctorID uuid.UUID) (*ChatSession, error)
	GetByID(ctx context.Context, id uuid.UUID) (*ChatSession, error)
	ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ChatSession, int, error)
	Touch(ctx context.Context, id uuid.UUID) error
}

type MessageRepository interface {
	Create(ctx context.Context, m *ChatMessage) error
	// ListBySession returns every message of the session ordered ascending
	// by (created_at, id).
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*ChatMessage, error)
	// MarkRead flags every unread message in the session not sent by
	// readerID and returns how many rows changed.
	MarkRead(ctx context.Context, sessionID, readerID uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, sessionID, readerID uuid.UUID) (int, error)
}
