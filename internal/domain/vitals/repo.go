package vitals

import (
	"context"

	"github.com/google/uuid"
)

// MeasurementRepository persists measurement batches. CreateBatch writes all
// rows or none.
type MeasurementRepository interface {
	CreateBatch(ctx context.Context, ms []Measurement) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Measurement, int, error)
	// HasDoctor reports whether the patient has named doctorID on any
	// measurement.
	HasDoctor(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error)
}

type AlertRepository interface {
	CreateBatch(ctx context.Context, alerts []Alert) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Alert, int, error)
}
