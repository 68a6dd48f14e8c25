package directory

import (
	"time"

	"github.com/google/uuid"
)

// User is the portal's registered-user record. Identity and credentials live
// in the JWT issuer; this is only the roster the portal needs for chat
// participant lookup and alert fan-out.
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Role      string    `db:"role" json:"role"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
