package vitals

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxClockSkew is how far in the future a client recordedAt may lie.
const maxClockSkew = 5 * time.Minute

// valueScale matches the two decimal places of vital_measurements.value.
const valueScale = 100

type valueRange struct{ min, max float64 }

// plausible bounds each vital to what a patient or a device can produce.
// Every bound fits the stored NUMERIC(8, 2) column.
var plausible = map[VitalType]valueRange{
	HeartRate:              {20, 300},
	BloodPressureSystolic:  {40, 300},
	BloodPressureDiastolic: {20, 200},
	Temperature:            {25, 45},
	BloodSugar:             {10, 1000},
	OxygenSaturation:       {50, 100},
	Weight:                 {0.5, 500},
}

// Reading is a numeric vital as submitted. Clients send either a JSON number
// or a numeric string; parsing is deferred to Normalize so that a bad value
// surfaces as a ValidationError naming the field.
type Reading struct {
	raw string
}

func (r *Reading) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		r.raw = strings.TrimSpace(s)
		return nil
	}
	r.raw = string(b)
	return nil
}

func (r Reading) MarshalJSON() ([]byte, error) {
	if v, err := strconv.ParseFloat(r.raw, 64); err == nil {
		return json.Marshal(v)
	}
	return json.Marshal(r.raw)
}

// Submission is the body of POST /vitals. Every vital is optional but at
// least one must be present.
type Submission struct {
	HeartRate        *Reading   `json:"heartRate,omitempty"`
	BloodPressure    *string    `json:"bloodPressure,omitempty"`
	Temperature      *Reading   `json:"temperature,omitempty"`
	BloodSugar       *Reading   `json:"bloodSugar,omitempty"`
	OxygenSaturation *Reading   `json:"oxygenSaturation,omitempty"`
	Weight           *Reading   `json:"weight,omitempty"`
	Source           string     `json:"source,omitempty"`
	DoctorID         *uuid.UUID `json:"doctorId,omitempty"`
	RecordedAt       *time.Time `json:"recordedAt,omitempty"`
}

// Batch is one normalized submission.
type Batch struct {
	SubmissionID uuid.UUID
	PatientID    uuid.UUID
	RecordedAt   time.Time
	Measurements []Measurement
}

// Values returns the first value recorded for each type.
func (b *Batch) Values() map[VitalType]float64 {
	out := make(map[VitalType]float64, len(b.Measurements))
	for _, m := range b.Measurements {
		if _, ok := out[m.Type]; !ok {
			out[m.Type] = m.Value
		}
	}
	return out
}

// Normalize validates a submission and expands it into measurements. Blood
// pressure splits into a systolic and a diastolic record. Nothing is
// persisted; any malformed field rejects the whole submission.
func Normalize(s Submission, patientID uuid.UUID, now time.Time) (*Batch, error) {
	source := SourceManual
	switch Source(strings.ToLower(strings.TrimSpace(s.Source))) {
	case "", SourceManual:
	case SourceDevice:
		source = SourceDevice
	default:
		return nil, invalid("source", "source must be manual or device")
	}

	recordedAt := now.UTC()
	if s.RecordedAt != nil {
		if s.RecordedAt.After(now.Add(maxClockSkew)) {
			return nil, invalid("recordedAt", "recordedAt cannot be in the future")
		}
		recordedAt = s.RecordedAt.UTC()
	}

	b := &Batch{SubmissionID: uuid.New(), PatientID: patientID, RecordedAt: recordedAt}
	add := func(t VitalType, v float64) {
		b.Measurements = append(b.Measurements, Measurement{
			ID:           uuid.New(),
			SubmissionID: b.SubmissionID,
			PatientID:    patientID,
			DoctorID:     s.DoctorID,
			Type:         t,
			Value:        v,
			Unit:         t.Unit(),
			Source:       source,
			RecordedAt:   recordedAt,
		})
	}

	if s.HeartRate != nil {
		v, err := parseReading("heartRate", s.HeartRate)
		if err != nil {
			return nil, err
		}
		if err := checkRange("heartRate", HeartRate, v); err != nil {
			return nil, err
		}
		add(HeartRate, v)
	}
	if s.BloodPressure != nil {
		sys, dia, err := ParseBloodPressure(*s.BloodPressure)
		if err != nil {
			return nil, err
		}
		if err := checkRange("bloodPressure", BloodPressureSystolic, sys); err != nil {
			return nil, err
		}
		if err := checkRange("bloodPressure", BloodPressureDiastolic, dia); err != nil {
			return nil, err
		}
		add(BloodPressureSystolic, sys)
		add(BloodPressureDiastolic, dia)
	}

	rest := []struct {
		field string
		typ   VitalType
		r     *Reading
	}{
		{"temperature", Temperature, s.Temperature},
		{"bloodSugar", BloodSugar, s.BloodSugar},
		{"oxygenSaturation", OxygenSaturation, s.OxygenSaturation},
		{"weight", Weight, s.Weight},
	}
	for _, f := range rest {
		if f.r == nil {
			continue
		}
		v, err := parseReading(f.field, f.r)
		if err != nil {
			return nil, err
		}
		if err := checkRange(f.field, f.typ, v); err != nil {
			return nil, err
		}
		add(f.typ, v)
	}

	if len(b.Measurements) == 0 {
		return nil, invalid("", "at least one vital sign is required")
	}
	return b, nil
}

// ParseBloodPressure splits "systolic/diastolic" into two positive numbers.
func ParseBloodPressure(s string) (systolic, diastolic float64, err error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return 0, 0, invalid("bloodPressure", "bloodPressure must be in the form systolic/diastolic")
	}
	if systolic, err = parseValue("bloodPressure", parts[0]); err != nil {
		return 0, 0, invalid("bloodPressure", "bloodPressure must be in the form systolic/diastolic")
	}
	if diastolic, err = parseValue("bloodPressure", parts[1]); err != nil {
		return 0, 0, invalid("bloodPressure", "bloodPressure must be in the form systolic/diastolic")
	}
	return systolic, diastolic, nil
}

func parseReading(field string, r *Reading) (float64, error) {
	return parseValue(field, r.raw)
}

// parseValue reads a positive number rounded to the stored precision, so
// the engine judges exactly the value that is persisted.
func parseValue(field, raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, invalid(field, field+" must be a number")
	}
	v = math.Round(v*valueScale) / valueScale
	if v <= 0 {
		return 0, invalid(field, field+" must be positive")
	}
	return v, nil
}

func checkRange(field string, t VitalType, v float64) error {
	r, ok := plausible[t]
	if !ok || (v >= r.min && v <= r.max) {
		return nil
	}
	name := field
	switch t {
	case BloodPressureSystolic:
		name = "systolic pressure"
	case BloodPressureDiastolic:
		name = "diastolic pressure"
	}
	return invalid(field, fmt.Sprintf("%s must be between %s and %s %s",
		name, formatValue(r.min), formatValue(r.max), t.Unit()))
}
