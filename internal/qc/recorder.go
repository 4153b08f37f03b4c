package qc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/minasoft/lab-interop/internal/db"
)

var (
	// ErrWindowConflict means another run was appended to the window after
	// it was read.
	ErrWindowConflict = errors.New("QC penceresi eşzamanlı olarak güncellendi")
	ErrTargetNotFound = errors.New("QC kontrol hedefi bulunamadı")
)

// TargetKey identifies one control lot of one test.
type TargetKey struct {
	TenantID     string
	TestID       string
	ControlLevel string
	Lot          string
}

// Window is the rolling series of prior control values, oldest first, at a
// store revision.
type Window struct {
	Values   []float64
	Revision uint64
}

// WindowStore persists targets and rolling windows. Append must fail with
// ErrWindowConflict when revision is no longer current, which is what
// serializes concurrent runs of the same key.
type WindowStore interface {
	Target(ctx context.Context, key TargetKey) (db.QCTarget, error)
	Window(ctx context.Context, key TargetKey) (Window, error)
	Append(ctx context.Context, result db.QCResult, revision uint64) error
}

// Recorder records control runs.
type Recorder struct {
	store      WindowStore
	escalator  *Escalator
	maxRetries int
}

func NewRecorder(store WindowStore, escalator *Escalator, maxRetries int) *Recorder {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Recorder{store: store, escalator: escalator, maxRetries: maxRetries}
}

// Record evaluates run against the current window and appends it. On a
// window conflict the run is re-evaluated against the fresh window. An
// escalation failure is returned together with the stored result.
func (r *Recorder) Record(ctx context.Context, run ControlRun) (db.QCResult, *Escalation, error) {
	key := run.Key()

	target, err := r.store.Target(ctx, key)
	if err != nil {
		return db.QCResult{}, nil, fmt.Errorf("QC hedefi okunamadı: %w", err)
	}

	var result db.QCResult
	for attempt := 1; ; attempt++ {
		window, err := r.store.Window(ctx, key)
		if err != nil {
			return db.QCResult{}, nil, fmt.Errorf("QC penceresi okunamadı: %w", err)
		}

		result = NewQCResult(run, target, window.Values)
		err = r.store.Append(ctx, result, window.Revision)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrWindowConflict) || attempt >= r.maxRetries {
			return db.QCResult{}, nil, fmt.Errorf("QC sonucu kaydedilemedi: %w", err)
		}
		slog.Debug("QC penceresi çakışması, yeniden değerlendiriliyor",
			"testID", run.TestID, "level", run.ControlLevel, "lot", run.Lot, "attempt", attempt)
	}

	slog.Info("QC sonucu kaydedildi",
		"id", result.ID,
		"testID", result.TestID,
		"level", result.ControlLevel,
		"zScore", result.ZScore,
		"violations", result.Violations,
		"status", result.Status)

	if r.escalator == nil {
		return result, nil, nil
	}

	esc, err := r.escalator.Escalate(ctx, result)
	if err != nil {
		return result, esc, err
	}
	return result, esc, nil
}
