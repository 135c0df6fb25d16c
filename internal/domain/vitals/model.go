package vitals

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// VitalType names one kind of physiological reading.
type VitalType string

const (
	HeartRate              VitalType = "heartRate"
	BloodPressureSystolic  VitalType = "bloodPressureSystolic"
	BloodPressureDiastolic VitalType = "bloodPressureDiastolic"
	Temperature            VitalType = "temperature"
	BloodSugar             VitalType = "bloodSugar"
	OxygenSaturation       VitalType = "oxygenSaturation"
	Weight                 VitalType = "weight"
)

// Unit returns the unit a reading of this type is stored in.
func (t VitalType) Unit() string {
	switch t {
	case HeartRate:
		return "bpm"
	case BloodPressureSystolic, BloodPressureDiastolic:
		return "mmHg"
	case Temperature:
		return "°C"
	case BloodSugar:
		return "mg/dL"
	case OxygenSaturation:
		return "%"
	case Weight:
		return "kg"
	}
	return ""
}

type Source string

const (
	SourceManual Source = "manual"
	SourceDevice Source = "device"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AlertTypeVital is the alert type produced by the threshold engine.
const AlertTypeVital = "vital"

// Measurement is one immutable reading. All measurements from one submission
// share SubmissionID and RecordedAt.
type Measurement struct {
	ID           uuid.UUID  `json:"id"`
	SubmissionID uuid.UUID  `json:"submissionId"`
	PatientID    uuid.UUID  `json:"patientId"`
	DoctorID     *uuid.UUID `json:"doctorId,omitempty"`
	Type         VitalType  `json:"type"`
	Value        float64    `json:"value"`
	Unit         string     `json:"unit"`
	Source       Source     `json:"source"`
	RecordedAt   time.Time  `json:"recordedAt"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Alert is a derived safety signal owned by the patient.
type Alert struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patientId"`
	Type            string     `json:"type"`
	Message         string     `json:"message"`
	Severity        Severity   `json:"severity"`
	RelatedRecordID *uuid.UUID `json:"relatedRecordId,omitempty"`
	Resolved        bool       `json:"isResolved"`
	CreatedAt       time.Time  `json:"createdAt"`
}

var ErrValidation = errors.New("validation failed")

// ValidationError rejects a whole submission. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
