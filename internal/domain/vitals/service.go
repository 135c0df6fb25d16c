package vitals

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hfm/hfm/internal/platform/auth"
	"github.com/hfm/hfm/internal/platform/db"
	"github.com/hfm/hfm/internal/platform/telemetry"
)

// DefaultPublishTimeout bounds alert publication once alerts are committed.
const DefaultPublishTimeout = 5 * time.Second

// Submission outcomes recorded in metrics.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

type ServiceConfig struct {
	Measurements MeasurementRepository
	Alerts       AlertRepository
	Users        auth.UserLookup
	Tx           db.Transactor
	Publisher    AlertPublisher
	Metrics      *telemetry.Metrics
	Logger       zerolog.Logger
	Now          func() time.Time

	// PublishTimeout defaults to DefaultPublishTimeout.
	PublishTimeout time.Duration
}

type Service struct {
	measurements MeasurementRepository
	alerts       AlertRepository
	users        auth.UserLookup
	tx           db.Transactor
	publisher    AlertPublisher
	engine       *Engine
	metrics      *telemetry.Metrics
	logger       zerolog.Logger
	now          func() time.Time

	publishTimeout time.Duration
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Publisher == nil {
		cfg.Publisher = NopPublisher{}
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	return &Service{
		measurements: cfg.Measurements,
		alerts:       cfg.Alerts,
		users:        cfg.Users,
		tx:           cfg.Tx,
		publisher:    cfg.Publisher,
		engine:       NewEngine(cfg.Now),
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With().Str("component", "vitals").Logger(),
		now:          cfg.Now,

		publishTimeout: cfg.PublishTimeout,
	}
}

// Result echoes a stored submission.
type Result struct {
	SubmissionID     uuid.UUID     `json:"submissionId"`
	HeartRate        *float64      `json:"heartRate,omitempty"`
	BloodPressure    string        `json:"bloodPressure,omitempty"`
	Temperature      *float64      `json:"temperature,omitempty"`
	BloodSugar       *float64      `json:"bloodSugar,omitempty"`
	OxygenSaturation *float64      `json:"oxygenSaturation,omitempty"`
	Weight           *float64      `json:"weight,omitempty"`
	Source           Source        `json:"source"`
	Timestamp        time.Time     `json:"timestamp"`
	Measurements     []Measurement `json:"measurements"`
	Alerts           []Alert       `json:"alerts"`
}

// Submit stores one patient submission and the alerts it triggers.
//
// The engine runs before anything is written, so a malformed batch leaves no
// records. Measurements and alerts are then written as two separate atomic
// groups. Store failures are returned as-is and never retried.
func (s *Service) Submit(ctx context.Context, actor *auth.Principal, in Submission) (*Result, error) {
	if actor == nil || actor.Role != auth.RolePatient {
		return nil, auth.ErrForbidden
	}

	res, err := s.submit(ctx, actor.ID, in)
	switch {
	case err == nil:
		s.metrics.Submission(OutcomeAccepted)
	case errors.Is(err, ErrValidation):
		s.metrics.Submission(OutcomeRejected)
	default:
		s.metrics.Submission(OutcomeFailed)
	}
	return res, err
}

func (s *Service) submit(ctx context.Context, patientID uuid.UUID, in Submission) (*Result, error) {
	now := s.now()
	batch, err := Normalize(in, patientID, now)
	if err != nil {
		return nil, err
	}
	if in.DoctorID != nil {
		if err := s.checkDoctor(ctx, *in.DoctorID); err != nil {
			return nil, err
		}
	}

	alerts, err := s.engine.Evaluate(batch.Measurements)
	if err != nil {
		return nil, err
	}

	for i := range batch.Measurements {
		batch.Measurements[i].CreatedAt = now.UTC()
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.measurements.CreateBatch(ctx, batch.Measurements)
	})
	if err != nil {
		return nil, fmt.Errorf("store measurements: %w", err)
	}

	if len(alerts) > 0 {
		err = s.tx.WithTx(ctx, func(ctx context.Context) error {
			return s.alerts.CreateBatch(ctx, alerts)
		})
		if err != nil {
			return nil, fmt.Errorf("store alerts for submission %s: %w", batch.SubmissionID, err)
		}
		for _, a := range alerts {
			s.metrics.AlertEmitted(string(a.Severity))
		}
		s.publish(ctx, batch.SubmissionID, alerts)
	}

	return newResult(batch, in, alerts), nil
}

// publish is best effort. The alerts are already committed, so a slow broker
// may delay the response by at most publishTimeout and a client disconnect
// does not cut publication short.
func (s *Service) publish(ctx context.Context, submissionID uuid.UUID, alerts []Alert) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, submissionID, alerts); err != nil {
		s.logger.Warn().Err(err).
			Str("submission_id", submissionID.String()).
			Int("alerts", len(alerts)).
			Msg("alert publication failed")
	}
}

func (s *Service) checkDoctor(ctx context.Context, id uuid.UUID) error {
	rec, err := s.users.LookupPrincipal(ctx, id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return invalid("doctorId", "doctorId must reference an active doctor")
		}
		return err
	}
	if rec.Role != auth.RoleDoctor.String() || !rec.Active {
		return invalid("doctorId", "doctorId must reference an active doctor")
	}
	return nil
}

func newResult(b *Batch, in Submission, alerts []Alert) *Result {
	if alerts == nil {
		alerts = []Alert{}
	}
	r := &Result{
		SubmissionID: b.SubmissionID,
		Source:       b.Measurements[0].Source,
		Timestamp:    b.RecordedAt,
		Measurements: b.Measurements,
		Alerts:       alerts,
	}
	vals := b.Values()
	get := func(t VitalType) *float64 {
		if v, ok := vals[t]; ok {
			return &v
		}
		return nil
	}
	r.HeartRate = get(HeartRate)
	r.Temperature = get(Temperature)
	r.BloodSugar = get(BloodSugar)
	r.OxygenSaturation = get(OxygenSaturation)
	r.Weight = get(Weight)
	if in.BloodPressure != nil {
		r.BloodPressure = formatValue(vals[BloodPressureSystolic]) + "/" + formatValue(vals[BloodPressureDiastolic])
	}
	return r
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// patientFor returns whose records actor may read. Patients read their own;
// a doctor may read a patient who has named them on a measurement.
func (s *Service) patientFor(ctx context.Context, actor *auth.Principal, patientID uuid.UUID) (uuid.UUID, error) {
	if actor == nil {
		return uuid.Nil, auth.ErrForbidden
	}
	switch actor.Role {
	case auth.RolePatient:
		if patientID != uuid.Nil && patientID != actor.ID {
			return uuid.Nil, auth.ErrForbidden
		}
		return actor.ID, nil
	case auth.RoleDoctor:
		if patientID == uuid.Nil {
			return uuid.Nil, invalid("patientId", "patientId is required")
		}
		ok, err := s.measurements.HasDoctor(ctx, patientID, actor.ID)
		if err != nil {
			return uuid.Nil, err
		}
		if !ok {
			return uuid.Nil, auth.ErrForbidden
		}
		return patientID, nil
	}
	return uuid.Nil, auth.ErrForbidden
}

func (s *Service) ListMeasurements(ctx context.Context, actor *auth.Principal, patientID uuid.UUID, limit, offset int) ([]Measurement, int, error) {
	pid, err := s.patientFor(ctx, actor, patientID)
	if err != nil {
		return nil, 0, err
	}
	return s.measurements.ListByPatient(ctx, pid, limit, offset)
}

func (s *Service) ListAlerts(ctx context.Context, actor *auth.Principal, patientID uuid.UUID, limit, offset int) ([]Alert, int, error) {
	pid, err := s.patientFor(ctx, actor, patientID)
	if err != nil {
		return nil, 0, err
	}
	return s.alerts.ListByPatient(ctx, pid, limit, offset)
}
