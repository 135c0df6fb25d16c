package auth

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// TenantScope is the single organizational boundary a principal belongs to.
// Exactly one of HospitalID, PharmacyID or Region is set, matching Kind; a
// global scope sets none.
type TenantScope struct {
	Kind       ScopeKind
	HospitalID uuid.UUID
	PharmacyID uuid.UUID
	Region     string
}

func HospitalScope(id uuid.UUID) TenantScope {
	return TenantScope{Kind: ScopeHospital, HospitalID: id}
}

func PharmacyScope(id uuid.UUID) TenantScope {
	return TenantScope{Kind: ScopePharmacy, PharmacyID: id}
}

func RegionScope(region string) TenantScope {
	return TenantScope{Kind: ScopeRegion, Region: region}
}

func (s TenantScope) IsGlobal() bool { return s.Kind == ScopeGlobal }

// InHospital reports whether the scope is confined to the given hospital.
func (s TenantScope) InHospital(id uuid.UUID) bool {
	return s.Kind == ScopeHospital && s.HospitalID == id
}

func (s TenantScope) InPharmacy(id uuid.UUID) bool {
	return s.Kind == ScopePharmacy && s.PharmacyID == id
}

func (s TenantScope) InRegion(region string) bool {
	return s.Kind == ScopeRegion && s.Region == region
}

// Principal is the identity resolved from storage for one request. It is never
// cached across requests.
type Principal struct {
	ID     uuid.UUID
	Role   Role
	Active bool
	Scope  TenantScope
}

type principalJSON struct {
	ID         uuid.UUID  `json:"id"`
	Role       Role       `json:"role"`
	Active     bool       `json:"active"`
	HospitalID *uuid.UUID `json:"hospitalId,omitempty"`
	PharmacyID *uuid.UUID `json:"pharmacyId,omitempty"`
	Region     string     `json:"region,omitempty"`
}

func (p Principal) MarshalJSON() ([]byte, error) {
	out := principalJSON{ID: p.ID, Role: p.Role, Active: p.Active}
	switch p.Scope.Kind {
	case ScopeHospital:
		id := p.Scope.HospitalID
		out.HospitalID = &id
	case ScopePharmacy:
		id := p.Scope.PharmacyID
		out.PharmacyID = &id
	case ScopeRegion:
		out.Region = p.Scope.Region
	}
	return json.Marshal(out)
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal resolved for the current request,
// or nil when the request was not authenticated.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
