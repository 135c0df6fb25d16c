package facility

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/hfm/hfm/internal/platform/auth"
	"github.com/hfm/hfm/internal/platform/db"
)

const minPasswordLen = 8

// hospitalAdminCreatable are the roles a hospital admin may provision inside
// their own hospital.
var hospitalAdminCreatable = auth.Roles(auth.RoleDoctor, auth.RoleLabTech, auth.RolePatient)

// Service provisions users and organizations. Every method takes the acting
// principal; a nil actor is the operator (CLI and seed) and bypasses tenant
// checks.
type Service struct {
	users  UserRepository
	orgs   OrgRepository
	tx     db.Transactor
	hasher auth.PasswordHasher
}

func NewService(users UserRepository, orgs OrgRepository, tx db.Transactor, hasher auth.PasswordHasher) *Service {
	return &Service{users: users, orgs: orgs, tx: tx, hasher: hasher}
}

// -- Users --

// CreateUser hashes the password and writes the user row and its role
// profile in one transaction.
func (s *Service) CreateUser(ctx context.Context, actor *auth.Principal, in NewUser) (*User, error) {
	role, err := s.validateNewUser(&in)
	if err != nil {
		return nil, err
	}
	if actor != nil && actor.Role == auth.RoleHospitalAdmin && role.ScopeKind() == auth.ScopeHospital && in.HospitalID == nil {
		hid := actor.Scope.HospitalID
		in.HospitalID = &hid
	}
	if err := validateScope(role, in); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Email:    in.Email,
		FullName: in.FullName,
		Phone:    optString(in.Phone),
		Role:     role,
		Active:   true,
		Profile: Profile{
			HospitalID: in.HospitalID,
			PharmacyID: in.PharmacyID,
			Region:     optString(in.Region),
			Specialty:  optString(in.Specialty),
			LicenseNo:  optString(in.LicenseNo),
		},
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.checkScopeTarget(ctx, actor, role, in); err != nil {
			return err
		}
		if err := s.users.Create(ctx, u, hash); err != nil {
			return err
		}
		return s.users.CreateProfile(ctx, u.ID, &u.Profile)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) validateNewUser(in *NewUser) (auth.Role, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	in.Region = strings.TrimSpace(in.Region)

	role, err := auth.ParseRole(in.Role)
	if err != nil {
		return 0, invalid("role", fmt.Sprintf("unknown role %q", in.Role))
	}
	if in.Email == "" {
		return 0, invalid("email", "email is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return 0, invalid("email", "email is not a valid address")
	}
	if len(in.Password) < minPasswordLen {
		return 0, invalid("password", fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	if in.FullName == "" {
		return 0, invalid("fullName", "fullName is required")
	}
	return role, nil
}

// validateScope requires exactly the tenant id the role's profile carries.
func validateScope(role auth.Role, in NewUser) error {
	hasHospital := in.HospitalID != nil && *in.HospitalID != uuid.Nil
	hasPharmacy := in.PharmacyID != nil && *in.PharmacyID != uuid.Nil
	hasRegion := in.Region != ""

	switch role.ScopeKind() {
	case auth.ScopeHospital:
		if !hasHospital {
			return invalid("hospitalId", fmt.Sprintf("hospitalId is required for role %s", role))
		}
		if hasPharmacy || hasRegion {
			return invalid("scope", fmt.Sprintf("role %s only takes a hospitalId", role))
		}
	case auth.ScopePharmacy:
		if !hasPharmacy {
			return invalid("pharmacyId", fmt.Sprintf("pharmacyId is required for role %s", role))
		}
		if hasHospital || hasRegion {
			return invalid("scope", fmt.Sprintf("role %s only takes a pharmacyId", role))
		}
	case auth.ScopeRegion:
		if !hasRegion {
			return invalid("region", fmt.Sprintf("region is required for role %s", role))
		}
		if hasHospital || hasPharmacy {
			return invalid("scope", fmt.Sprintf("role %s only takes a region", role))
		}
	default:
		if hasHospital || hasPharmacy || hasRegion {
			return invalid("scope", fmt.Sprintf("role %s has no tenant scope", role))
		}
	}
	return nil
}

// checkScopeTarget loads the referenced organization and applies the
// actor's tenant rules to it.
func (s *Service) checkScopeTarget(ctx context.Context, actor *auth.Principal, role auth.Role, in NewUser) error {
	var targetRegion string
	switch role.ScopeKind() {
	case auth.ScopeHospital:
		h, err := s.orgs.GetHospital(ctx, *in.HospitalID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return invalid("hospitalId", "hospital does not exist")
			}
			return err
		}
		targetRegion = h.Region
	case auth.ScopePharmacy:
		p, err := s.orgs.GetPharmacy(ctx, *in.PharmacyID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return invalid("pharmacyId", "pharmacy does not exist")
			}
			return err
		}
		targetRegion = p.Region
	}

	if actor == nil {
		return nil
	}
	switch actor.Role {
	case auth.RoleSuperAdmin, auth.RoleMOHAdmin:
		return nil
	case auth.RoleHospitalAdmin:
		if !hospitalAdminCreatable.Has(role) {
			return fmt.Errorf("%w: hospital_admin cannot create %s", auth.ErrForbidden, role)
		}
		if role.ScopeKind() == auth.ScopeHospital && !actor.Scope.InHospital(*in.HospitalID) {
			return fmt.Errorf("%w: hospital %s is outside caller scope", auth.ErrForbidden, *in.HospitalID)
		}
		return nil
	case auth.RoleRegionAdmin:
		if role != auth.RoleHospitalAdmin {
			return fmt.Errorf("%w: region_admin cannot create %s", auth.ErrForbidden, role)
		}
		if !actor.Scope.InRegion(targetRegion) {
			return fmt.Errorf("%w: hospital region %q is outside caller scope", auth.ErrForbidden, targetRegion)
		}
		return nil
	}
	return fmt.Errorf("%w: %s cannot provision users", auth.ErrForbidden, actor.Role)
}

// GetUser returns a user visible to actor.
func (s *Service) GetUser(ctx context.Context, actor *auth.Principal, id uuid.UUID) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.visibleTo(ctx, actor, u)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Hidden users look missing rather than forbidden.
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, nil
}

func (s *Service) visibleTo(ctx context.Context, actor *auth.Principal, u *User) (bool, error) {
	if actor == nil {
		return true, nil
	}
	switch actor.Role {
	case auth.RoleSuperAdmin, auth.RoleMOHAdmin:
		return true, nil
	case auth.RoleHospitalAdmin:
		return u.Profile.HospitalID != nil && actor.Scope.InHospital(*u.Profile.HospitalID), nil
	case auth.RoleRegionAdmin:
		switch {
		case u.Profile.Region != nil:
			return actor.Scope.InRegion(*u.Profile.Region), nil
		case u.Profile.HospitalID != nil:
			h, err := s.orgs.GetHospital(ctx, *u.Profile.HospitalID)
			if err != nil {
				return false, err
			}
			return actor.Scope.InRegion(h.Region), nil
		case u.Profile.PharmacyID != nil:
			p, err := s.orgs.GetPharmacy(ctx, *u.Profile.PharmacyID)
			if err != nil {
				return false, err
			}
			return actor.Scope.InRegion(p.Region), nil
		}
	}
	return false, nil
}

// ListUsers narrows the filter to the actor's tenant before listing.
func (s *Service) ListUsers(ctx context.Context, actor *auth.Principal, f UserFilter, limit, offset int) ([]*User, int, error) {
	if actor != nil {
		switch actor.Role {
		case auth.RoleSuperAdmin, auth.RoleMOHAdmin:
		case auth.RoleHospitalAdmin:
			f.HospitalID = actor.Scope.HospitalID
			f.Region = ""
		case auth.RoleRegionAdmin:
			f.Region = actor.Scope.Region
		default:
			return nil, 0, fmt.Errorf("%w: %s cannot list users", auth.ErrForbidden, actor.Role)
		}
	}
	return s.users.List(ctx, f, limit, offset)
}

// SetActive activates or deactivates a user. The change is seen by the
// resolver on the user's next request.
func (s *Service) SetActive(ctx context.Context, actor *auth.Principal, id uuid.UUID, active bool) (*User, error) {
	if actor != nil && actor.ID == id && !active {
		return nil, invalid("active", "cannot deactivate your own account")
	}
	var u *User
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.users.SetActive(ctx, id, active); err != nil {
			return err
		}
		var err error
		u, err = s.users.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// -- Organizations --

func (s *Service) CreateHospital(ctx context.Context, actor *auth.Principal, h *Hospital) error {
	if err := s.prepareOrg(actor, &h.Name, &h.Region); err != nil {
		return err
	}
	return s.orgs.CreateHospital(ctx, h)
}

func (s *Service) CreatePharmacy(ctx context.Context, actor *auth.Principal, p *Pharmacy) error {
	if err := s.prepareOrg(actor, &p.Name, &p.Region); err != nil {
		return err
	}
	return s.orgs.CreatePharmacy(ctx, p)
}

// prepareOrg validates name and region. A region admin's organizations
// default to, and must stay in, their own region.
func (s *Service) prepareOrg(actor *auth.Principal, name, region *string) error {
	*name = strings.TrimSpace(*name)
	*region = strings.TrimSpace(*region)
	if *name == "" {
		return invalid("name", "name is required")
	}
	if actor != nil && actor.Role == auth.RoleRegionAdmin {
		if *region == "" {
			*region = actor.Scope.Region
		}
		if !actor.Scope.InRegion(*region) {
			return fmt.Errorf("%w: region %q is outside caller scope", auth.ErrForbidden, *region)
		}
	}
	if *region == "" {
		return invalid("region", "region is required")
	}
	return nil
}

func (s *Service) ListHospitals(ctx context.Context, actor *auth.Principal, limit, offset int) ([]*Hospital, int, error) {
	return s.orgs.ListHospitals(ctx, regionFilter(actor), limit, offset)
}

func (s *Service) ListPharmacies(ctx context.Context, actor *auth.Principal, limit, offset int) ([]*Pharmacy, int, error) {
	return s.orgs.ListPharmacies(ctx, regionFilter(actor), limit, offset)
}

func regionFilter(actor *auth.Principal) string {
	if actor != nil && actor.Scope.Kind == auth.ScopeRegion {
		return actor.Scope.Region
	}
	return ""
}
