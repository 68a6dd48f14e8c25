package notification

import (
	"time"

	"github.com/google/uuid"
)

// Notification types. The type tells the portal UI which icon and deep link
// to render.
const (
	TypeMessage            = "message"
	TypeAppointmentRequest = "appointment_request"
	TypeHealthcareAlert    = "healthcare_alert"
	TypeSystem             = "system"
)

// Notification is one entry in a user's notification inbox.
type Notification struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    uuid.UUID  `db:"user_id" json:"user_id"`
	Type      string     `db:"type" json:"type"`
	Title     string     `db:"title" json:"title"`
	Message   string     `db:"message" json:"message"`
	ActionURL *string    `db:"action_url" json:"action_url,omitempty"`
	RelatedID *uuid.UUID `db:"related_id" json:"related_id,omitempty"`
	Read      bool       `db:"read" json:"read"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// EntityID implements the reconciler entity contract.
func (n Notification) EntityID() uuid.UUID { return n.ID }

// Before orders notifications by (created_at, id).
func (n Notification) Before(other Notification) bool {
	if !n.CreatedAt.Equal(other.CreatedAt) {
		return n.CreatedAt.Before(other.CreatedAt)
	}
	return n.ID.String() < other.ID.String()
}

func validType(t string) bool {
	switch t {
	case TypeMessage, TypeAppointmentRequest, TypeHealthcareAlert, TypeSystem:
		return true
	}
	return false
}
