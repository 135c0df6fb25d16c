package vitals

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hfm/hfm/internal/platform/db"
)

// -- Measurement Repository --

type measurementRepoPG struct {
	pool *pgxpool.Pool
}

func NewMeasurementRepo(pool *pgxpool.Pool) MeasurementRepository {
	return &measurementRepoPG{pool: pool}
}

func (r *measurementRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

var measurementCols = []string{
	"id", "submission_id", "patient_id", "doctor_id", "type", "value", "unit", "source", "recorded_at", "created_at",
}

// CreateBatch copies the rows in a single COPY, which the server applies
// atomically.
func (r *measurementRepoPG) CreateBatch(ctx context.Context, ms []Measurement) error {
	if len(ms) == 0 {
		return nil
	}
	n, err := r.conn(ctx).CopyFrom(ctx, pgx.Identifier{"vital_measurements"}, measurementCols,
		pgx.CopyFromSlice(len(ms), func(i int) ([]interface{}, error) {
			m := ms[i]
			return []interface{}{
				m.ID, m.SubmissionID, m.PatientID, m.DoctorID, string(m.Type), m.Value, m.Unit, string(m.Source), m.RecordedAt, m.CreatedAt,
			}, nil
		}),
	)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return invalid("doctorId", "doctorId does not reference a user")
		}
		return fmt.Errorf("copy measurements: %w", err)
	}
	if int(n) != len(ms) {
		return fmt.Errorf("copy measurements: wrote %d of %d rows", n, len(ms))
	}
	return nil
}

func (r *measurementRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Measurement, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM vital_measurements WHERE patient_id = $1`, patientID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count measurements: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, submission_id, patient_id, doctor_id, type, value::float8, unit, source, recorded_at, created_at
		FROM vital_measurements WHERE patient_id = $1
		ORDER BY recorded_at DESC, created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list measurements: %w", err)
	}
	defer rows.Close()

	out := []Measurement{}
	for rows.Next() {
		var m Measurement
		if err := rows.Scan(&m.ID, &m.SubmissionID, &m.PatientID, &m.DoctorID, &m.Type, &m.Value, &m.Unit, &m.Source, &m.RecordedAt, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

func (r *measurementRepoPG) HasDoctor(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM vital_measurements WHERE patient_id = $1 AND doctor_id = $2)`,
		patientID, doctorID,
	).Scan(&ok)
	return ok, err
}

// -- Alert Repository --

type alertRepoPG struct {
	pool *pgxpool.Pool
}

func NewAlertRepo(pool *pgxpool.Pool) AlertRepository {
	return &alertRepoPG{pool: pool}
}

func (r *alertRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

var alertCols = []string{
	"id", "patient_id", "type", "message", "severity", "related_record_id", "is_resolved", "created_at",
}

func (r *alertRepoPG) CreateBatch(ctx context.Context, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	n, err := r.conn(ctx).CopyFrom(ctx, pgx.Identifier{"health_alerts"}, alertCols,
		pgx.CopyFromSlice(len(alerts), func(i int) ([]interface{}, error) {
			a := alerts[i]
			return []interface{}{
				a.ID, a.PatientID, a.Type, a.Message, string(a.Severity), a.RelatedRecordID, a.Resolved, a.CreatedAt,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy alerts: %w", err)
	}
	if int(n) != len(alerts) {
		return fmt.Errorf("copy alerts: wrote %d of %d rows", n, len(alerts))
	}
	return nil
}

func (r *alertRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Alert, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM health_alerts WHERE patient_id = $1`, patientID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, type, message, severity, related_record_id, is_resolved, created_at
		FROM health_alerts WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	out := []Alert{}
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.PatientID, &a.Type, &a.Message, &a.Severity, &a.RelatedRecordID, &a.Resolved, &a.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}
