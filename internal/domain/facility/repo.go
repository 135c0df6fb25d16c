package facility

import (
	"context"

	"github.com/google/uuid"

	"github.com/hfm/hfm/internal/platform/auth"
)

// UserRepository persists users and their role profiles. It also serves the
// auth package's principal and credential lookups.
type UserRepository interface {
	Create(ctx context.Context, u *User, passwordHash string) error
	CreateProfile(ctx context.Context, userID uuid.UUID, p *Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	List(ctx context.Context, f UserFilter, limit, offset int) ([]*User, int, error)

	auth.UserLookup
	auth.CredentialStore
}

type OrgRepository interface {
	CreateHospital(ctx context.Context, h *Hospital) error
	GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error)
	ListHospitals(ctx context.Context, region string, limit, offset int) ([]*Hospital, int, error)

	CreatePharmacy(ctx context.Context, p *Pharmacy) error
	GetPharmacy(ctx context.Context, id uuid.UUID) (*Pharmacy, error)
	ListPharmacies(ctx context.Context, region string, limit, offset int) ([]*Pharmacy, int, error)
}
