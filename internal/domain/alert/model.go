package alert

import (
	"time"

	"github.com/google/uuid"
)

// HealthcareAlert is one admin broadcast. The alert row is written once; a
// UserAlertDelivery row per roster member tracks who received and read it.
type HealthcareAlert struct {
	ID             uuid.UUID `db:"id" json:"id"`
	MessageContent string    `db:"message_content" json:"message_content"`
	SentAt         time.Time `db:"sent_at" json:"sent_at"`
	SentByAdminID  uuid.UUID `db:"sent_by_admin_id" json:"sent_by_admin_id"`
}

// UserAlertDelivery is one user's copy of a broadcast alert. ReadAt is set
// exactly once; re-reading never moves it.
type UserAlertDelivery struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	AlertID     uuid.UUID  `db:"alert_id" json:"alert_id"`
	UserID      uuid.UUID  `db:"user_id" json:"user_id"`
	DeliveredAt time.Time  `db:"delivered_at" json:"delivered_at"`
	ReadAt      *time.Time `db:"read_at" json:"read_at,omitempty"`
}

// EntityID implements the reconciler entity contract.
func (d UserAlertDelivery) EntityID() uuid.UUID { return d.ID }

// Before orders deliveries by (delivered_at, id).
func (d UserAlertDelivery) Before(other UserAlertDelivery) bool {
	if !d.DeliveredAt.Equal(other.DeliveredAt) {
		return d.DeliveredAt.Before(other.DeliveredAt)
	}
	return d.ID.String() < other.ID.String()
}
