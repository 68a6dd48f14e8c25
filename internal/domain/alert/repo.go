package alert

import (
	"context"

	"github.com/google/uuid"
)

type AlertRepository interface {
	Create(ctx context.Context, a *HealthcareAlert) error
	GetByID(ctx context.Context, id uuid.UUID) (*HealthcareAlert, error)
	// List returns alerts newest-first for the admin audit view.
	List(ctx context.Context, limit, offset int) ([]*HealthcareAlert, int, error)
}

type DeliveryRepository interface {
	Create(ctx context.Context, d *UserAlertDelivery) error
	GetByID(ctx context.Context, id uuid.UUID) (*UserAlertDelivery, error)
	// ListByUser returns the user's deliveries newest-first.
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*UserAlertDelivery, int, error)
	// MarkRead stamps read_at once and reports whether the row changed.
	// Already-read deliveries keep their original timestamp.
	MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error)
}
