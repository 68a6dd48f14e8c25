package alert

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telehealth/telehealth/internal/platform/apperr"
	"github.com/telehealth/telehealth/internal/platform/dispatch"
)

// Roster snapshots the ids of every registered user at broadcast time.
// Implemented by the directory service.
type Roster interface {
	Roster(ctx context.Context) ([]uuid.UUID, error)
}

// DeliveryNotifier records a healthcare_alert notification for one
// recipient. Implemented by the notification service.
type DeliveryNotifier interface {
	NotifyHealthcareAlert(ctx context.Context, recipientID, alertID uuid.UUID, content string) error
}

// BroadcastResult reports how far a broadcast's fan-out got. Failed holds
// the user ids whose delivery row could not be written; the alert itself is
// durable regardless.
type BroadcastResult struct {
	Alert     *HealthcareAlert `json:"alert"`
	Delivered int              `json:"delivered"`
	Failed    []uuid.UUID      `json:"failed,omitempty"`
}

type Service struct {
	alerts     AlertRepository
	deliveries DeliveryRepository
	roster     Roster
	notifier   DeliveryNotifier
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger
}

func NewService(
	alerts AlertRepository,
	deliveries DeliveryRepository,
	roster Roster,
	notifier DeliveryNotifier,
	dispatcher *dispatch.Dispatcher,
	logger zerolog.Logger,
) *Service {
	return &Service{
		alerts:     alerts,
		deliveries: deliveries,
		roster:     roster,
		notifier:   notifier,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Broadcast writes one alert and fans it out to every user registered at
// call time. A failed delivery is logged and skipped; it never aborts the
// rest of the fan-out. Users registered after the roster snapshot get
// nothing.
func (s *Service) Broadcast(ctx context.Context, content string, adminID uuid.UUID) (*BroadcastResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Validationf("alert content must not be empty")
	}
	if adminID == uuid.Nil {
		return nil, apperr.Validationf("sending admin id is required")
	}

	recipients, err := s.roster.Roster(ctx)
	if err != nil {
		return nil, err
	}

	a := &HealthcareAlert{MessageContent: content, SentByAdminID: adminID}
	if err := s.alerts.Create(ctx, a); err != nil {
		return nil, err
	}

	result := &BroadcastResult{Alert: a}
	for _, userID := range recipients {
		d := &UserAlertDelivery{AlertID: a.ID, UserID: userID}
		if err := s.deliveries.Create(ctx, d); err != nil {
			s.logger.Error().Err(err).
				Str("alert_id", a.ID.String()).
				Str("user_id", userID.String()).
				Msg("failed to write alert delivery")
			result.Failed = append(result.Failed, userID)
			continue
		}
		result.Delivered++

		s.dispatcher.Publish(dispatch.UserScope(userID), dispatch.Event{
			Op: dispatch.OpInsert, ID: d.ID, Entity: *d,
		})
		if s.notifier != nil {
			if err := s.notifier.NotifyHealthcareAlert(ctx, userID, a.ID, content); err != nil {
				s.logger.Warn().Err(err).
					Str("alert_id", a.ID.String()).
					Str("user_id", userID.String()).
					Msg("failed to create alert notification")
			}
		}
	}

	s.logger.Info().
		Str("alert_id", a.ID.String()).
		Int("delivered", result.Delivered).
		Int("failed", len(result.Failed)).
		Msg("alert broadcast complete")
	return result, nil
}

// ListDeliveries returns the user's alert inbox newest-first.
func (s *Service) ListDeliveries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*UserAlertDelivery, int, error) {
	return s.deliveries.ListByUser(ctx, userID, limit, offset)
}

// MarkDeliveryRead stamps read_at once. Re-reading is a no-op success and
// keeps the original timestamp; an unknown id is ErrNotFound.
func (s *Service) MarkDeliveryRead(ctx context.Context, id, userID uuid.UUID) error {
	changed, err := s.deliveries.MarkRead(ctx, id, userID)
	if err != nil {
		return err
	}
	d, err := s.deliveries.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if d.UserID != userID {
		return apperr.NotFoundf("alert delivery %s not found", id)
	}
	if changed {
		s.dispatcher.Publish(dispatch.UserScope(userID), dispatch.Event{
			Op: dispatch.OpUpdate, ID: d.ID, Entity: *d,
		})
	}
	return nil
}

// ListAlerts is the admin audit view of past broadcasts.
func (s *Service) ListAlerts(ctx context.Context, limit, offset int) ([]*HealthcareAlert, int, error) {
	return s.alerts.List(ctx, limit, offset)
}

// GetAlert returns one broadcast by id.
func (s *Service) GetAlert(ctx context.Context, id uuid.UUID) (*HealthcareAlert, error) {
	return s.alerts.GetByID(ctx, id)
}
