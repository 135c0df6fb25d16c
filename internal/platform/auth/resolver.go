package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// UserRecord is the persisted view of a user needed to build a Principal.
// Scope ids come from the role's profile record.
type UserRecord struct {
	ID         uuid.UUID
	Role       string
	Active     bool
	HospitalID *uuid.UUID
	PharmacyID *uuid.UUID
	Region     *string
}

// UserLookup loads a UserRecord by id. Implementations return an error
// wrapping ErrUserNotFound when no such user exists; any other error is
// treated as a store failure.
type UserLookup interface {
	LookupPrincipal(ctx context.Context, id uuid.UUID) (*UserRecord, error)
}

// Resolver turns verified claims into a Principal by re-reading storage on
// every call. Only the user id and role are taken from the token.
type Resolver struct {
	users UserLookup
}

func NewResolver(users UserLookup) *Resolver {
	return &Resolver{users: users}
}

// Resolve builds the principal for verified token claims.
func (r *Resolver) Resolve(ctx context.Context, claims *Claims) (*Principal, error) {
	if claims == nil {
		return nil, ErrInvalidToken
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed subject", ErrUserNotFound)
	}
	return r.ResolveIdentity(ctx, id, role)
}

// ResolveIdentity loads the user and attaches the tenant scope implied by role.
func (r *Resolver) ResolveIdentity(ctx context.Context, id uuid.UUID, role Role) (*Principal, error) {
	if !role.Valid() {
		return nil, ErrUnknownRole
	}

	rec, err := r.users.LookupPrincipal(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("lookup principal %s: %w", id, err)
	}
	if rec == nil {
		return nil, ErrUserNotFound
	}
	if !rec.Active {
		return nil, ErrInactiveUser
	}

	stored, err := ParseRole(rec.Role)
	if err != nil {
		return nil, err
	}
	if stored != role {
		return nil, fmt.Errorf("%w: token=%s stored=%s", ErrRoleChanged, role, stored)
	}

	scope, err := scopeFor(role, rec)
	if err != nil {
		return nil, err
	}

	return &Principal{
		ID:     rec.ID,
		Role:   role,
		Active: rec.Active,
		Scope:  scope,
	}, nil
}

// scopeFor derives exactly one tenant scope from the profile ids. Any id that
// the role does not use, or a missing id that it does, is a mismatch.
func scopeFor(role Role, rec *UserRecord) (TenantScope, error) {
	hasHospital := rec.HospitalID != nil && *rec.HospitalID != uuid.Nil
	hasPharmacy := rec.PharmacyID != nil && *rec.PharmacyID != uuid.Nil
	hasRegion := rec.Region != nil && *rec.Region != ""

	kind := role.ScopeKind()
	switch kind {
	case ScopeHospital:
		if hasHospital && !hasPharmacy && !hasRegion {
			return HospitalScope(*rec.HospitalID), nil
		}
	case ScopePharmacy:
		if hasPharmacy && !hasHospital && !hasRegion {
			return PharmacyScope(*rec.PharmacyID), nil
		}
	case ScopeRegion:
		if hasRegion && !hasHospital && !hasPharmacy {
			return RegionScope(*rec.Region), nil
		}
	case ScopeGlobal:
		if !hasHospital && !hasPharmacy && !hasRegion {
			return TenantScope{Kind: ScopeGlobal}, nil
		}
	}
	return TenantScope{}, fmt.Errorf("%w: role %s expects %s scope", ErrScopeMismatch, role, kind)
}
