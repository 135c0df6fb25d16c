package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func claimsFor(id uuid.UUID, role string) *Claims {
	c := &Claims{Role: role, Kind: AccessToken}
	c.Subject = id.String()
	c.ID = uuid.NewString()
	return c
}

func TestResolve_ScopeByRole(t *testing.T) {
	store := newFakeUserStore()
	r := NewResolver(store)
	ctx := context.Background()

	for _, role := range AllRoles() {
		t.Run(role.String(), func(t *testing.T) {
			u := store.add(t, role, role.String()+"@example.org", "")
			p, err := r.Resolve(ctx, claimsFor(u.rec.ID, role.String()))
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if p.Role != role {
				t.Errorf("role = %s, want %s", p.Role, role)
			}
			if p.Scope.Kind != role.ScopeKind() {
				t.Errorf("scope kind = %s, want %s", p.Scope.Kind, role.ScopeKind())
			}

			switch role {
			case RoleHospitalAdmin, RoleDoctor, RoleLabTech:
				if p.Scope.HospitalID != *u.rec.HospitalID {
					t.Errorf("hospital = %s, want %s", p.Scope.HospitalID, *u.rec.HospitalID)
				}
				if p.Scope.PharmacyID != uuid.Nil || p.Scope.Region != "" {
					t.Errorf("hospital-scoped principal carries other scope: %+v", p.Scope)
				}
			case RolePharmacist:
				if p.Scope.PharmacyID != *u.rec.PharmacyID {
					t.Errorf("pharmacy = %s, want %s", p.Scope.PharmacyID, *u.rec.PharmacyID)
				}
			case RoleRegionAdmin:
				if p.Scope.Region != "Greater Accra" {
					t.Errorf("region = %q, want Greater Accra", p.Scope.Region)
				}
				if p.Scope.HospitalID != uuid.Nil {
					t.Errorf("region admin resolved a hospital")
				}
			case RoleSuperAdmin, RoleMOHAdmin, RolePatient:
				if !p.Scope.IsGlobal() || p.Scope.HospitalID != uuid.Nil || p.Scope.Region != "" {
					t.Errorf("expected no tenant scope, got %+v", p.Scope)
				}
			}
		})
	}
}

func TestResolve_UnknownRole(t *testing.T) {
	store := newFakeUserStore()
	u := store.add(t, RoleDoctor, "doc@example.org", "")
	r := NewResolver(store)

	for _, role := range []string{"", "admin", "nurse", "DOCTOR"} {
		_, err := r.Resolve(context.Background(), claimsFor(u.rec.ID, role))
		if !errors.Is(err, ErrUnknownRole) {
			t.Errorf("role %q: expected ErrUnknownRole, got %v", role, err)
		}
	}
	if store.calls != 0 {
		t.Errorf("store consulted %d times for unknown roles, want 0", store.calls)
	}
}

func TestResolve_UserNotFound(t *testing.T) {
	r := NewResolver(newFakeUserStore())

	_, err := r.Resolve(context.Background(), claimsFor(uuid.New(), "patient"))
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}

	c := claimsFor(uuid.New(), "patient")
	c.Subject = "not-a-uuid"
	if _, err := r.Resolve(context.Background(), c); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("malformed subject: expected ErrUserNotFound, got %v", err)
	}
}

func TestResolve_InactiveUser(t *testing.T) {
	store := newFakeUserStore()
	r := NewResolver(store)

	for _, role := range AllRoles() {
		u := store.add(t, role, role.String()+"@example.org", "")
		store.setActive(u.rec.ID, false)

		_, err := r.Resolve(context.Background(), claimsFor(u.rec.ID, role.String()))
		if !errors.Is(err, ErrInactiveUser) {
			t.Errorf("role %s: expected ErrInactiveUser, got %v", role, err)
		}
	}
}

func TestResolve_ReReadsStorageEveryCall(t *testing.T) {
	store := newFakeUserStore()
	u := store.add(t, RoleDoctor, "doc@example.org", "")
	r := NewResolver(store)
	claims := claimsFor(u.rec.ID, "doctor")

	if _, err := r.Resolve(context.Background(), claims); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	store.setActive(u.rec.ID, false)
	if _, err := r.Resolve(context.Background(), claims); !errors.Is(err, ErrInactiveUser) {
		t.Fatalf("after deactivation: expected ErrInactiveUser, got %v", err)
	}
	store.setActive(u.rec.ID, true)
	if _, err := r.Resolve(context.Background(), claims); err != nil {
		t.Fatalf("after reactivation: %v", err)
	}
	if store.calls != 3 {
		t.Errorf("store calls = %d, want 3", store.calls)
	}
}

func TestResolve_RoleChanged(t *testing.T) {
	store := newFakeUserStore()
	u := store.add(t, RoleDoctor, "doc@example.org", "")
	r := NewResolver(store)

	_, err := r.Resolve(context.Background(), claimsFor(u.rec.ID, "hospital_admin"))
	if !errors.Is(err, ErrRoleChanged) {
		t.Errorf("expected ErrRoleChanged, got %v", err)
	}
}

func TestResolve_ScopeMismatch(t *testing.T) {
	hospital := uuid.New()
	pharmacy := uuid.New()

	tests := []struct {
		name string
		role Role
		rec  UserRecord
	}{
		{"doctor without hospital", RoleDoctor, UserRecord{}},
		{"hospital admin with region", RoleHospitalAdmin, UserRecord{Region: strPtr("Volta")}},
		{"hospital admin with two scopes", RoleHospitalAdmin, UserRecord{HospitalID: &hospital, PharmacyID: &pharmacy}},
		{"pharmacist with hospital", RolePharmacist, UserRecord{HospitalID: &hospital}},
		{"pharmacist without pharmacy", RolePharmacist, UserRecord{}},
		{"region admin without region", RoleRegionAdmin, UserRecord{}},
		{"region admin with empty region", RoleRegionAdmin, UserRecord{Region: strPtr("")}},
		{"super admin with hospital", RoleSuperAdmin, UserRecord{HospitalID: &hospital}},
		{"moh admin with region", RoleMOHAdmin, UserRecord{Region: strPtr("Volta")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeUserStore()
			id := uuid.New()
			rec := tt.rec
			rec.ID = id
			rec.Role = tt.role.String()
			rec.Active = true
			store.users[id] = &fakeUser{rec: rec}

			_, err := NewResolver(store).Resolve(context.Background(), claimsFor(id, tt.role.String()))
			if !errors.Is(err, ErrScopeMismatch) {
				t.Errorf("expected ErrScopeMismatch, got %v", err)
			}
		})
	}
}

func TestResolve_StoreFailureIsNotSessionError(t *testing.T) {
	store := newFakeUserStore()
	store.failOn = errStoreDown
	r := NewResolver(store)

	_, err := r.Resolve(context.Background(), claimsFor(uuid.New(), "patient"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, errStoreDown) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
	if IsSessionError(err) {
		t.Error("store failure must not be classified as a session error")
	}
}

func TestResolve_NilClaims(t *testing.T) {
	if _, err := NewResolver(newFakeUserStore()).Resolve(context.Background(), nil); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
