package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	testSecret = []byte("test-secret-key-for-unit-tests-only-32b")
	testNow    = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
)

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *clock { return &clock{t: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestIssuer(t *testing.T, now func() time.Time) *TokenIssuer {
	t.Helper()
	iss, err := NewTokenIssuer(TokenConfig{
		Secret:     testSecret,
		Issuer:     "hfm-test",
		AccessTTL:  time.Hour,
		RefreshTTL: 7 * 24 * time.Hour,
		Now:        now,
	})
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	return iss
}

// -- Fake user store --

type fakeUser struct {
	rec      UserRecord
	email    string
	password string
	hash     string
}

type fakeUserStore struct {
	mu     sync.Mutex
	users  map[uuid.UUID]*fakeUser
	failOn error
	calls  int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[uuid.UUID]*fakeUser)}
}

func strPtr(s string) *string { return &s }

func uuidPtr(id uuid.UUID) *uuid.UUID { return &id }

// add registers a user whose profile matches role. The password is hashed
// with the minimum bcrypt cost to keep tests fast.
func (s *fakeUserStore) add(t *testing.T, role Role, email, password string) *fakeUser {
	t.Helper()
	u := &fakeUser{
		rec:      UserRecord{ID: uuid.New(), Role: role.String(), Active: true},
		email:    email,
		password: password,
	}
	switch role.ScopeKind() {
	case ScopeHospital:
		u.rec.HospitalID = uuidPtr(uuid.New())
	case ScopePharmacy:
		u.rec.PharmacyID = uuidPtr(uuid.New())
	case ScopeRegion:
		u.rec.Region = strPtr("Greater Accra")
	}
	if password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		u.hash = string(h)
	}
	s.mu.Lock()
	s.users[u.rec.ID] = u
	s.mu.Unlock()
	return u
}

func (s *fakeUserStore) setActive(id uuid.UUID, active bool) {
	s.mu.Lock()
	s.users[id].rec.Active = active
	s.mu.Unlock()
}

func (s *fakeUserStore) LookupPrincipal(_ context.Context, id uuid.UUID) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failOn != nil {
		return nil, s.failOn
	}
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrUserNotFound)
	}
	rec := u.rec
	return &rec, nil
}

func (s *fakeUserStore) FindCredentials(_ context.Context, email string) (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != nil {
		return nil, s.failOn
	}
	for _, u := range s.users {
		if u.email == email {
			return &Credentials{UserID: u.rec.ID, Role: u.rec.Role, PasswordHash: u.hash}, nil
		}
	}
	return nil, ErrUserNotFound
}

var errStoreDown = errors.New("connection refused")
