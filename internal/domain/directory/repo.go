package directory

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	List(ctx context.Context, role string, limit, offset int) ([]*User, int, error)
	// ListUserIDs snapshots the ids of every registered user, optionally
	// filtered by role. Broadcast fan-out uses this snapshot: users
	// registered afterwards are not part of it.
	ListUserIDs(ctx context.Context, role string) ([]uuid.UUID, error)
}
