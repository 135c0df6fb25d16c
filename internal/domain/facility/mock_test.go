package facility

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hfm/hfm/internal/platform/auth"
)

// -- Mock User Repository --

type mockUser struct {
	user *User
	hash string
}

type mockUserRepo struct {
	mu         sync.Mutex
	users      map[uuid.UUID]*mockUser
	profileErr error
	profiles   int
	orgs       *mockOrgRepo
}

func newMockUserRepo(orgs *mockOrgRepo) *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*mockUser), orgs: orgs}
}

func (m *mockUserRepo) Create(_ context.Context, u *User, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.user.Email, u.Email) {
			return fmt.Errorf("email %s: %w", u.Email, ErrConflict)
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.users[u.ID] = &mockUser{user: &cp, hash: hash}
	return nil
}

func (m *mockUserRepo) CreateProfile(_ context.Context, id uuid.UUID, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profileErr != nil {
		return m.profileErr
	}
	mu, ok := m.users[id]
	if !ok {
		return errors.New("profile for unknown user")
	}
	mu.user.Profile = *p
	m.profiles++
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mu, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	cp := *mu.user
	return &cp, nil
}

func (m *mockUserRepo) EmailExists(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mu := range m.users {
		if strings.EqualFold(mu.user.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mu, ok := m.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	mu.user.Active = active
	return nil
}

func (m *mockUserRepo) List(_ context.Context, f UserFilter, limit, offset int) ([]*User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*User
	for _, mu := range m.users {
		u := mu.user
		if f.Role.Valid() && u.Role != f.Role {
			continue
		}
		if f.HospitalID != uuid.Nil && (u.Profile.HospitalID == nil || *u.Profile.HospitalID != f.HospitalID) {
			continue
		}
		if f.Region != "" && m.regionOf(u) != f.Region {
			continue
		}
		out = append(out, u)
	}
	total := len(out)
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *mockUserRepo) regionOf(u *User) string {
	switch {
	case u.Profile.Region != nil:
		return *u.Profile.Region
	case u.Profile.HospitalID != nil:
		if h, ok := m.orgs.hospitals[*u.Profile.HospitalID]; ok {
			return h.Region
		}
	case u.Profile.PharmacyID != nil:
		if p, ok := m.orgs.pharmacies[*u.Profile.PharmacyID]; ok {
			return p.Region
		}
	}
	return ""
}

func (m *mockUserRepo) LookupPrincipal(_ context.Context, id uuid.UUID) (*auth.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mu, ok := m.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	u := mu.user
	return &auth.UserRecord{
		ID: u.ID, Role: u.Role.String(), Active: u.Active,
		HospitalID: u.Profile.HospitalID, PharmacyID: u.Profile.PharmacyID, Region: u.Profile.Region,
	}, nil
}

func (m *mockUserRepo) FindCredentials(_ context.Context, email string) (*auth.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mu := range m.users {
		if strings.EqualFold(mu.user.Email, email) {
			return &auth.Credentials{UserID: mu.user.ID, Role: mu.user.Role.String(), PasswordHash: mu.hash}, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

// snapshot and restore let mockTx roll back.
func (m *mockUserRepo) snapshot() map[uuid.UUID]mockUser {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]mockUser, len(m.users))
	for id, mu := range m.users {
		u := *mu.user
		out[id] = mockUser{user: &u, hash: mu.hash}
	}
	return out
}

func (m *mockUserRepo) restore(s map[uuid.UUID]mockUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = make(map[uuid.UUID]*mockUser, len(s))
	for id, mu := range s {
		mu := mu
		m.users[id] = &mu
	}
}

// -- Mock Org Repository --

type mockOrgRepo struct {
	hospitals  map[uuid.UUID]*Hospital
	pharmacies map[uuid.UUID]*Pharmacy
}

func newMockOrgRepo() *mockOrgRepo {
	return &mockOrgRepo{
		hospitals:  make(map[uuid.UUID]*Hospital),
		pharmacies: make(map[uuid.UUID]*Pharmacy),
	}
}

func (m *mockOrgRepo) CreateHospital(_ context.Context, h *Hospital) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	m.hospitals[h.ID] = h
	return nil
}

func (m *mockOrgRepo) GetHospital(_ context.Context, id uuid.UUID) (*Hospital, error) {
	h, ok := m.hospitals[id]
	if !ok {
		return nil, fmt.Errorf("hospital %s: %w", id, ErrNotFound)
	}
	return h, nil
}

func (m *mockOrgRepo) ListHospitals(_ context.Context, region string, _, _ int) ([]*Hospital, int, error) {
	var out []*Hospital
	for _, h := range m.hospitals {
		if region == "" || h.Region == region {
			out = append(out, h)
		}
	}
	return out, len(out), nil
}

func (m *mockOrgRepo) CreatePharmacy(_ context.Context, p *Pharmacy) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.pharmacies[p.ID] = p
	return nil
}

func (m *mockOrgRepo) GetPharmacy(_ context.Context, id uuid.UUID) (*Pharmacy, error) {
	p, ok := m.pharmacies[id]
	if !ok {
		return nil, fmt.Errorf("pharmacy %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (m *mockOrgRepo) ListPharmacies(_ context.Context, region string, _, _ int) ([]*Pharmacy, int, error) {
	var out []*Pharmacy
	for _, p := range m.pharmacies {
		if region == "" || p.Region == region {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

// -- Mock Transactor --

// mockTx restores the user map when fn fails, giving the service's
// all-or-nothing writes something observable to test against.
type mockTx struct {
	users *mockUserRepo
	calls int
}

func (m *mockTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	snap := m.users.snapshot()
	if err := fn(ctx); err != nil {
		m.users.restore(snap)
		return err
	}
	return nil
}

// plainHasher avoids bcrypt cost in service tests.
type plainHasher struct{}

func (plainHasher) Hash(s string) (string, error) { return "plain:" + s, nil }

func (plainHasher) Compare(s, digest string) bool { return digest == "plain:"+s }
