package facility

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hfm/hfm/internal/platform/auth"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("already exists")
	ErrValidation = errors.New("validation failed")
)

// ValidationError is a client input error. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

type Hospital struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Region    string    `json:"region"`
	Address   *string   `json:"address,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Pharmacy struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Region    string    `json:"region"`
	Address   *string   `json:"address,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Profile is the role profile record. It holds the user's tenant id, if any.
type Profile struct {
	HospitalID *uuid.UUID `json:"hospitalId,omitempty"`
	PharmacyID *uuid.UUID `json:"pharmacyId,omitempty"`
	Region     *string    `json:"region,omitempty"`
	Specialty  *string    `json:"specialty,omitempty"`
	LicenseNo  *string    `json:"licenseNo,omitempty"`
}

// User is a persisted account. The password hash never leaves the repository
// except through FindCredentials.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Phone     *string   `json:"phone,omitempty"`
	Role      auth.Role `json:"role"`
	Active    bool      `json:"active"`
	Profile   Profile   `json:"profile"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewUser is the provisioning request.
type NewUser struct {
	Email      string     `json:"email" yaml:"email"`
	Password   string     `json:"password" yaml:"password"`
	FullName   string     `json:"fullName" yaml:"fullName"`
	Phone      string     `json:"phone,omitempty" yaml:"phone,omitempty"`
	Role       string     `json:"role" yaml:"role"`
	HospitalID *uuid.UUID `json:"hospitalId,omitempty" yaml:"hospitalId,omitempty"`
	PharmacyID *uuid.UUID `json:"pharmacyId,omitempty" yaml:"pharmacyId,omitempty"`
	Region     string     `json:"region,omitempty" yaml:"region,omitempty"`
	Specialty  string     `json:"specialty,omitempty" yaml:"specialty,omitempty"`
	LicenseNo  string     `json:"licenseNo,omitempty" yaml:"licenseNo,omitempty"`
}

// UserFilter narrows user listings. Zero fields do not filter.
type UserFilter struct {
	Role       auth.Role
	HospitalID uuid.UUID
	Region     string
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
