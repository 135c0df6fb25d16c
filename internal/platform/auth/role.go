package auth

import (
	"fmt"
	"strings"
)

// Role is the closed set of principal roles. The zero value is not a role.
type Role uint8

const (
	RolePatient Role = iota + 1
	RoleDoctor
	RoleLabTech
	RolePharmacist
	RoleHospitalAdmin
	RoleRegionAdmin
	RoleSuperAdmin
	RoleMOHAdmin
)

var roleNames = [...]string{
	RolePatient:       "patient",
	RoleDoctor:        "doctor",
	RoleLabTech:       "lab_tech",
	RolePharmacist:    "pharmacist",
	RoleHospitalAdmin: "hospital_admin",
	RoleRegionAdmin:   "region_admin",
	RoleSuperAdmin:    "super_admin",
	RoleMOHAdmin:      "moh_admin",
}

// AllRoles lists every valid role in declaration order.
func AllRoles() []Role {
	return []Role{
		RolePatient, RoleDoctor, RoleLabTech, RolePharmacist,
		RoleHospitalAdmin, RoleRegionAdmin, RoleSuperAdmin, RoleMOHAdmin,
	}
}

// ParseRole maps a wire name to a Role. Unknown names yield ErrUnknownRole.
func ParseRole(s string) (Role, error) {
	for _, r := range AllRoles() {
		if roleNames[r] == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

func (r Role) Valid() bool {
	return r >= RolePatient && r <= RoleMOHAdmin
}

func (r Role) String() string {
	if !r.Valid() {
		return fmt.Sprintf("role(%d)", uint8(r))
	}
	return roleNames[r]
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, uint8(r))
	}
	return []byte(roleNames[r]), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ScopeKind names the organizational boundary a role is confined to.
type ScopeKind uint8

const (
	ScopeGlobal ScopeKind = iota
	ScopeHospital
	ScopePharmacy
	ScopeRegion
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeHospital:
		return "hospital"
	case ScopePharmacy:
		return "pharmacy"
	case ScopeRegion:
		return "region"
	default:
		return "global"
	}
}

// ScopeKind reports which tenant scope the role's profile record must carry.
// Patients own their own records and carry no organizational scope.
func (r Role) ScopeKind() ScopeKind {
	switch r {
	case RoleDoctor, RoleLabTech, RoleHospitalAdmin:
		return ScopeHospital
	case RolePharmacist:
		return ScopePharmacy
	case RoleRegionAdmin:
		return ScopeRegion
	case RolePatient, RoleSuperAdmin, RoleMOHAdmin:
		return ScopeGlobal
	}
	return ScopeGlobal
}

// RoleSet is a route's allowed-role contract. Membership is explicit: there is
// no inheritance between roles.
type RoleSet uint16

// Roles builds a RoleSet from the given roles. Invalid roles are ignored.
func Roles(rs ...Role) RoleSet {
	var s RoleSet
	for _, r := range rs {
		if r.Valid() {
			s |= 1 << r
		}
	}
	return s
}

func (s RoleSet) Has(r Role) bool {
	return r.Valid() && s&(1<<r) != 0
}

func (s RoleSet) Members() []Role {
	var out []Role
	for _, r := range AllRoles() {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s RoleSet) String() string {
	members := s.Members()
	names := make([]string, len(members))
	for i, r := range members {
		names[i] = r.String()
	}
	return strings.Join(names, ",")
}
