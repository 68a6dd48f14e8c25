package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telehealth/telehealth/internal/platform/apperr"
	"github.com/telehealth/telehealth/internal/platform/dispatch"
)

// MessageNotifier records a new-message notification for the recipient.
// Implemented by the notification service; kept as a local interface so the
// chat package does not depend on it.
type MessageNotifier interface {
	NotifyMessage(ctx context.Context, recipientID, sessionID, senderID uuid.UUID) error
}

type Service struct {
	sessions   SessionRepository
	messages   MessageRepository
	dispatcher *dispatch.Dispatcher
	notifier   MessageNotifier
	logger     zerolog.Logger
}

func NewService(
	sessions SessionRepository,
	messages MessageRepository,
	dispatcher *dispatch.Dispatcher,
	notifier MessageNotifier,
	logger zerolog.Logger,
) *Service {
	return &Service{
		sessions:   sessions,
		messages:   messages,
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     logger,
	}
}

// FindOrCreateSession returns the pair's conversation, creating it on first
// contact. Safe under concurrent calls: every caller gets the same session.
func (s *Service) FindOrCreateSession(ctx context.Context, patientID, doctorID uuid.UUID) (*ChatSession, error) {
	if patientID == uuid.Nil || doctorID == uuid.Nil {
		return nil, apperr.Validationf("patient_id and doctor_id are required")
	}
	if patientID == doctorID {
		return nil, apperr.Validationf("a session needs two distinct participants")
	}
	return s.sessions.FindOrCreate(ctx, patientID, doctorID)
}

// AppendMessage writes a message, publishes the insert on the session scope
// and notifies the other participant. The notification is best-effort: a
// failure there is logged but does not fail the send.
func (s *Service) AppendMessage(ctx context.Context, sessionID, senderID uuid.UUID, content string) (*ChatMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Validationf("message content must not be empty")
	}
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.HasParticipant(senderID) {
		return nil, apperr.Validationf("sender %s is not a participant of session %s", senderID, sessionID)
	}

	msg := &ChatMessage{SessionID: sessionID, SenderID: senderID, Content: content}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.sessions.Touch(ctx, sessionID); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID.String()).
			Msg("failed to touch session after message")
	}

	s.dispatcher.Publish(dispatch.SessionScope(sessionID), dispatch.Event{
		Op: dispatch.OpInsert, ID: msg.ID, Entity: *msg,
	})

	if s.notifier != nil {
		recipient := session.OtherParticipant(senderID)
		if err := s.notifier.NotifyMessage(ctx, recipient, sessionID, senderID); err != nil {
			s.logger.Error().Err(err).
				Str("session_id", sessionID.String()).
				Str("recipient_id", recipient.String()).
				Msg("failed to create message notification")
		}
	}
	return msg, nil
}

// ListMessages returns the full session history in (created_at, id) order.
// Only the session's own participants may read it.
func (s *Service) ListMessages(ctx context.Context, sessionID, readerID uuid.UUID) ([]*ChatMessage, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.HasParticipant(readerID) {
		return nil, apperr.Validationf("reader %s is not a participant of session %s", readerID, sessionID)
	}
	return s.messages.ListBySession(ctx, sessionID)
}

func (s *Service) ListSessionsForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ChatSession, int, error) {
	return s.sessions.ListByParticipant(ctx, userID, limit, offset)
}

// MarkMessagesRead flags every message addressed to readerID in the session.
// Calling it again is a no-op; it returns the number of newly read messages.
func (s *Service) MarkMessagesRead(ctx context.Context, sessionID, readerID uuid.UUID) (int64, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if !session.HasParticipant(readerID) {
		return 0, apperr.Validationf("reader %s is not a participant of session %s", readerID, sessionID)
	}
	n, err := s.messages.MarkRead(ctx, sessionID, readerID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.dispatcher.Publish(dispatch.SessionScope(sessionID), dispatch.Event{
			Op: dispatch.OpUpdate, ID: sessionID,
		})
	}
	return n, nil
}

func (s *Service) UnreadCount(ctx context.Context, sessionID, readerID uuid.UUID) (int, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if !session.HasParticipant(readerID) {
		return 0, apperr.Validationf("reader %s is not a participant of session %s", readerID, sessionID)
	}
	return s.messages.CountUnread(ctx, sessionID, readerID)
}
