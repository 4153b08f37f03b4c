package qc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minasoft/lab-interop/internal/db"
)

// AffectedWindow is how far back a critical QC failure puts released
// patient results under suspicion.
const AffectedWindow = 24 * time.Hour

const NotificationTypeQC = "qc_violation"

// NotificationSink delivers notifications to the fan-out layer.
type NotificationSink interface {
	Send(ctx context.Context, n db.Notification) error
}

// ResultLookup finds patient results released for a test in [since, until].
type ResultLookup interface {
	ReleasedResults(ctx context.Context, tenantID, testID string, since, until time.Time) ([]db.PatientResult, error)
}

// AffectedResults returns the released results of testID within
// AffectedWindow before at.
func AffectedResults(testID string, at time.Time, released []db.PatientResult) []db.PatientResult {
	since := at.Add(-AffectedWindow)
	var out []db.PatientResult
	for _, r := range released {
		if r.TestID != testID {
			continue
		}
		if r.ReleasedAt.Before(since) || r.ReleasedAt.After(at) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Escalation is what was sent for one QC result.
type Escalation struct {
	Severity      Severity           `json:"severity"`
	Critical      bool               `json:"critical"`
	Notifications []db.Notification  `json:"notifications"`
	Affected      []db.PatientResult `json:"affected,omitempty"`
}

// Escalator turns violated QC results into notifications.
type Escalator struct {
	sink   NotificationSink
	lookup ResultLookup
}

func NewEscalator(sink NotificationSink, lookup ResultLookup) *Escalator {
	return &Escalator{sink: sink, lookup: lookup}
}

// Escalate notifies the QC supervisor of any violation. Critical results
// also notify the lab director with the patient results released in the
// preceding AffectedWindow. It returns nil when the result has no
// violations.
func (e *Escalator) Escalate(ctx context.Context, result db.QCResult) (*Escalation, error) {
	severity, ok := ClassifySeverity(ParseCodes(result.Violations))
	if !ok {
		return nil, nil
	}

	esc := &Escalation{Severity: severity, Critical: severity == SeverityCritical}

	supervisor := e.notification(result, db.RecipientQCSupervisor, severity)
	supervisor.Title = fmt.Sprintf("QC %s: %s (%s)", severity, testLabel(result), result.ControlLevel)
	supervisor.Message = fmt.Sprintf("Kontrol değeri %.4g (z=%.2f), ihlal edilen kurallar: %s, durum: %s",
		result.Value, result.ZScore, strings.Join(result.Violations, ", "), result.Status)

	if err := e.sink.Send(ctx, supervisor); err != nil {
		return nil, fmt.Errorf("QC bildirimi gönderilemedi: %w", err)
	}
	esc.Notifications = append(esc.Notifications, supervisor)

	if !esc.Critical {
		return esc, nil
	}

	released, err := e.lookup.ReleasedResults(ctx, result.TenantID, result.TestID,
		result.PerformedAt.Add(-AffectedWindow), result.PerformedAt)
	if err != nil {
		return esc, fmt.Errorf("etkilenen sonuçlar sorgulanamadı: %w", err)
	}
	esc.Affected = AffectedResults(result.TestID, result.PerformedAt, released)

	director := e.notification(result, db.RecipientLabDirector, severity)
	director.Title = fmt.Sprintf("Kritik QC hatası: %s", testLabel(result))
	director.Message = fmt.Sprintf("Son 24 saatte onaylanan %d hasta sonucu potansiyel olarak etkilendi (kurallar: %s)",
		len(esc.Affected), strings.Join(result.Violations, ", "))
	for _, r := range esc.Affected {
		director.AffectedResults = append(director.AffectedResults, r.ID)
	}

	if err := e.sink.Send(ctx, director); err != nil {
		return esc, fmt.Errorf("laboratuvar direktörü bildirimi gönderilemedi: %w", err)
	}
	esc.Notifications = append(esc.Notifications, director)

	slog.Warn("Kritik QC hatası yükseltildi",
		"qcResultID", result.ID,
		"testID", result.TestID,
		"violations", result.Violations,
		"affected", len(esc.Affected))

	return esc, nil
}

func (e *Escalator) notification(result db.QCResult, recipient string, severity Severity) db.Notification {
	return db.Notification{
		ID:         uuid.New().String(),
		TenantID:   result.TenantID,
		Type:       NotificationTypeQC,
		Recipient:  recipient,
		Severity:   string(severity),
		Critical:   severity == SeverityCritical,
		QCResultID: result.ID,
		CreatedAt:  time.Now(),
	}
}

func testLabel(r db.QCResult) string {
	if r.TestName != "" {
		return r.TestName
	}
	return r.TestID
}
