package qc

import (
	"time"

	"github.com/google/uuid"
	"github.com/minasoft/lab-interop/internal/db"
)

// ControlRun is one control measurement as entered at the instrument.
type ControlRun struct {
	TenantID     string    `json:"tenant_id"`
	TestID       string    `json:"test_id"`
	TestName     string    `json:"test_name,omitempty"`
	ControlLevel string    `json:"control_level"`
	Lot          string    `json:"lot"`
	Value        float64   `json:"value"`
	InstrumentID string    `json:"instrument_id,omitempty"`
	PerformedBy  string    `json:"performed_by,omitempty"`
	PerformedAt  time.Time `json:"performed_at"`
}

// Key returns the window key the run belongs to.
func (r ControlRun) Key() TargetKey {
	return TargetKey{
		TenantID:     r.TenantID,
		TestID:       r.TestID,
		ControlLevel: r.ControlLevel,
		Lot:          r.Lot,
	}
}

// NewQCResult evaluates run against its target and the prior window
// (oldest first) and returns the finished record.
func NewQCResult(run ControlRun, target db.QCTarget, prior []float64) db.QCResult {
	eval := Evaluate(run.Value, target.Mean, target.SD, prior)
	status := ClassifyStatus(eval.Violations)

	performedAt := run.PerformedAt
	if performedAt.IsZero() {
		performedAt = time.Now()
	}

	testName := run.TestName
	if testName == "" {
		testName = target.TestName
	}

	return db.QCResult{
		ID:           uuid.New().String(),
		TenantID:     run.TenantID,
		TestID:       run.TestID,
		TestName:     testName,
		ControlLevel: run.ControlLevel,
		Lot:          run.Lot,
		Value:        run.Value,
		Mean:         target.Mean,
		SD:           target.SD,
		CV:           db.Float(target.SD / target.Mean * 100),
		ZScore:       db.Float(eval.ZScore),
		Violations:   Codes(eval.Violations),
		Status:       string(status),
		Accepted:     status != StatusRejected,
		InstrumentID: run.InstrumentID,
		PerformedBy:  run.PerformedBy,
		PerformedAt:  performedAt,
	}
}
