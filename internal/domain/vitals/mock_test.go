package vitals

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hfm/hfm/internal/platform/auth"
)

var (
	testNow      = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	errStoreDown = errors.New("connection refused")
)

// -- Mock Measurement Repository --

type mockMeasurementRepo struct {
	mu      sync.Mutex
	rows    []Measurement
	failOn  error
	batches int
}

func (m *mockMeasurementRepo) CreateBatch(_ context.Context, ms []Measurement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		return m.failOn
	}
	m.rows = append(m.rows, ms...)
	m.batches++
	return nil
}

func (m *mockMeasurementRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Measurement, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Measurement
	for _, r := range m.rows {
		if r.PatientID == patientID {
			all = append(all, r)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].RecordedAt.After(all[j].RecordedAt) })
	return page(all, limit, offset), len(all), nil
}

func (m *mockMeasurementRepo) HasDoctor(_ context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		return false, m.failOn
	}
	for _, r := range m.rows {
		if r.PatientID == patientID && r.DoctorID != nil && *r.DoctorID == doctorID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockMeasurementRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// -- Mock Alert Repository --

type mockAlertRepo struct {
	mu     sync.Mutex
	rows   []Alert
	failOn error
}

func (m *mockAlertRepo) CreateBatch(_ context.Context, alerts []Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		return m.failOn
	}
	m.rows = append(m.rows, alerts...)
	return nil
}

func (m *mockAlertRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Alert, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Alert
	for _, a := range m.rows {
		if a.PatientID == patientID {
			all = append(all, a)
		}
	}
	return page(all, limit, offset), len(all), nil
}

func (m *mockAlertRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func page[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return []T{}
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

// -- Mock Transactor --

type mockTx struct {
	commits   int
	rollbacks int
}

func (m *mockTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		m.rollbacks++
		return err
	}
	m.commits++
	return nil
}

// -- Mock User Lookup --

type mockUsers map[uuid.UUID]*auth.UserRecord

func (m mockUsers) add(role auth.Role, active bool) uuid.UUID {
	id := uuid.New()
	rec := &auth.UserRecord{ID: id, Role: role.String(), Active: active}
	if role.ScopeKind() == auth.ScopeHospital {
		hid := uuid.New()
		rec.HospitalID = &hid
	}
	m[id] = rec
	return id
}

func (m mockUsers) LookupPrincipal(_ context.Context, id uuid.UUID) (*auth.UserRecord, error) {
	rec, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, auth.ErrUserNotFound)
	}
	cp := *rec
	return &cp, nil
}

// -- Mock Publisher --

type mockPublisher struct {
	mu        sync.Mutex
	published []Alert
	failOn    error
	// hang blocks Publish until its context ends, like an unreachable broker.
	hang    bool
	lastErr error
}

func (m *mockPublisher) Publish(ctx context.Context, _ uuid.UUID, alerts []Alert) error {
	if m.hang {
		<-ctx.Done()
		m.mu.Lock()
		m.lastErr = ctx.Err()
		m.mu.Unlock()
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		return m.failOn
	}
	m.published = append(m.published, alerts...)
	return nil
}

func (m *mockPublisher) Close() error { return nil }
