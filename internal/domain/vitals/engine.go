package vitals

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Alert thresholds.
const (
	systolicAlert   = 140
	diastolicAlert  = 90
	systolicSevere  = 160
	diastolicSevere = 100

	heartRateLow  = 60
	heartRateHigh = 100

	bloodSugarLow  = 70
	bloodSugarHigh = 200
)

const (
	MsgHighBloodPressure = "High blood pressure detected"
	MsgLowHeartRate      = "Low heart rate detected"
	MsgHighHeartRate     = "High heart rate detected"
	MsgLowBloodSugar     = "Low blood sugar detected"
	MsgHighBloodSugar    = "High blood sugar detected"
)

// Engine evaluates alert rules over one patient's batch. It holds no state
// between calls and never consults prior alerts.
type Engine struct {
	now func() time.Time
}

func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now}
}

// Evaluate returns one alert per fired rule, blood pressure first, then heart
// rate, then blood sugar. A systolic reading without its diastolic partner
// (or the reverse) fails the batch.
func (e *Engine) Evaluate(batch []Measurement) ([]Alert, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	patientID := batch[0].PatientID

	byType := make(map[VitalType][]Measurement)
	for _, m := range batch {
		if m.PatientID != patientID {
			return nil, fmt.Errorf("batch spans patients %s and %s", patientID, m.PatientID)
		}
		byType[m.Type] = append(byType[m.Type], m)
	}

	created := e.now().UTC()
	var alerts []Alert
	emit := func(m Measurement, msg string, sev Severity) {
		related := m.ID
		alerts = append(alerts, Alert{
			ID:              uuid.New(),
			PatientID:       patientID,
			Type:            AlertTypeVital,
			Message:         msg,
			Severity:        sev,
			RelatedRecordID: &related,
			CreatedAt:       created,
		})
	}

	sys, dia := byType[BloodPressureSystolic], byType[BloodPressureDiastolic]
	if len(sys) != len(dia) {
		return nil, invalid("bloodPressure", "blood pressure requires both systolic and diastolic values")
	}
	for i := range sys {
		s, d := sys[i].Value, dia[i].Value
		if s > systolicAlert || d > diastolicAlert {
			sev := SeverityMedium
			if s > systolicSevere || d > diastolicSevere {
				sev = SeverityHigh
			}
			emit(sys[i], MsgHighBloodPressure, sev)
		}
	}

	for _, m := range byType[HeartRate] {
		switch {
		case m.Value < heartRateLow:
			emit(m, MsgLowHeartRate, SeverityMedium)
		case m.Value > heartRateHigh:
			emit(m, MsgHighHeartRate, SeverityMedium)
		}
	}

	for _, m := range byType[BloodSugar] {
		switch {
		case m.Value < bloodSugarLow:
			emit(m, MsgLowBloodSugar, SeverityHigh)
		case m.Value > bloodSugarHigh:
			emit(m, MsgHighBloodSugar, SeverityHigh)
		}
	}

	return alerts, nil
}
