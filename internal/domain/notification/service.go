package notification

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telehealth/telehealth/internal/platform/apperr"
	"github.com/telehealth/telehealth/internal/platform/dispatch"
)

type Service struct {
	repo       Repository
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger
}

func NewService(repo Repository, dispatcher *dispatch.Dispatcher, logger zerolog.Logger) *Service {
	return &Service{repo: repo, dispatcher: dispatcher, logger: logger}
}

// create persists the notification and publishes the insert on the
// recipient's scope.
func (s *Service) create(ctx context.Context, n *Notification) error {
	if n.UserID == uuid.Nil {
		return apperr.Validationf("user_id is required")
	}
	if !validType(n.Type) {
		return apperr.Validationf("invalid notification type: %s", n.Type)
	}
	if n.Title == "" {
		return apperr.Validationf("title is required")
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}
	s.dispatcher.Publish(dispatch.UserScope(n.UserID), dispatch.Event{
		Op: dispatch.OpInsert, ID: n.ID, Entity: *n,
	})
	return nil
}

// NotifyMessage records a new-chat-message notification for the recipient.
// Satisfies the chat package's MessageNotifier.
func (s *Service) NotifyMessage(ctx context.Context, recipientID, sessionID, senderID uuid.UUID) error {
	action := "/chat/sessions/" + sessionID.String()
	return s.create(ctx, &Notification{
		UserID:    recipientID,
		Type:      TypeMessage,
		Title:     "New message",
		Message:   "You have a new message in your conversation",
		ActionURL: &action,
		RelatedID: &sessionID,
	})
}

// NotifyAppointmentRequest records a pending appointment request for the
// doctor to review.
func (s *Service) NotifyAppointmentRequest(ctx context.Context, recipientID, requestID uuid.UUID, patientName string) error {
	msg := "A patient requested an appointment"
	if patientName != "" {
		msg = patientName + " requested an appointment"
	}
	action := "/appointments/requests/" + requestID.String()
	return s.create(ctx, &Notification{
		UserID:    recipientID,
		Type:      TypeAppointmentRequest,
		Title:     "Appointment request",
		Message:   msg,
		ActionURL: &action,
		RelatedID: &requestID,
	})
}

// NotifyHealthcareAlert records a broadcast alert delivery in the
// recipient's inbox. Satisfies the alert package's DeliveryNotifier.
func (s *Service) NotifyHealthcareAlert(ctx context.Context, recipientID, alertID uuid.UUID, content string) error {
	return s.create(ctx, &Notification{
		UserID:    recipientID,
		Type:      TypeHealthcareAlert,
		Title:     "Healthcare alert",
		Message:   content,
		RelatedID: &alertID,
	})
}

// NotifySystem records a free-form system notification.
func (s *Service) NotifySystem(ctx context.Context, recipientID uuid.UUID, title, message string) error {
	return s.create(ctx, &Notification{
		UserID:  recipientID,
		Type:    TypeSystem,
		Title:   title,
		Message: message,
	})
}

// ListByRecipient returns the user's notifications newest-first.
func (s *Service) ListByRecipient(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Notification, int, error) {
	return s.repo.ListByRecipient(ctx, userID, limit, offset)
}

func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}

// MarkRead flags one notification. Marking an already-read notification is a
// no-op success; an unknown id is ErrNotFound.
func (s *Service) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	changed, err := s.repo.MarkRead(ctx, id, userID)
	if err != nil {
		return err
	}
	if changed {
		s.publishRead(ctx, id, userID)
		return nil
	}
	// Nothing changed: either already read (fine) or not this user's
	// notification at all.
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return apperr.NotFoundf("notification %s not found", id)
	}
	return nil
}

// MarkAllRead flags every notification existing at call time and returns how
// many were newly read.
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		// Unkeyed update: subscribers resync rather than track each row.
		s.dispatcher.Publish(dispatch.UserScope(userID), dispatch.Event{Op: dispatch.OpUpdate})
	}
	return n, nil
}

func (s *Service) publishRead(ctx context.Context, id, userID uuid.UUID) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("notification_id", id.String()).
			Msg("failed to reload notification after mark-read")
		return
	}
	s.dispatcher.Publish(dispatch.UserScope(userID), dispatch.Event{
		Op: dispatch.OpUpdate, ID: n.ID, Entity: *n,
	})
}
