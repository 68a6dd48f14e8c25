package directory

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/telehealth/telehealth/internal/platform/apperr"
	"github.com/telehealth/telehealth/internal/platform/auth"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func validRole(role string) bool {
	switch role {
	case auth.RolePatient, auth.RoleDoctor, auth.RoleAdmin:
		return true
	}
	return false
}

func (s *Service) Register(ctx context.Context, u *User) error {
	if !validRole(u.Role) {
		return apperr.Validationf("invalid role: %s", u.Role)
	}
	if strings.TrimSpace(u.Name) == "" {
		return apperr.Validationf("name is required")
	}
	if !strings.Contains(u.Email, "@") {
		return apperr.Validationf("invalid email: %s", u.Email)
	}
	return s.repo.Create(ctx, u)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, role string, limit, offset int) ([]*User, int, error) {
	if role != "" && !validRole(role) {
		return nil, 0, apperr.Validationf("invalid role: %s", role)
	}
	return s.repo.List(ctx, role, limit, offset)
}

// Roster snapshots every registered user id for alert fan-out.
func (s *Service) Roster(ctx context.Context) ([]uuid.UUID, error) {
	return s.repo.ListUserIDs(ctx, "")
}
