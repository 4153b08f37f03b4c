package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/minasoft/lab-interop/internal/db"
	"github.com/minasoft/lab-interop/internal/qc"
	"github.com/nats-io/nats.go/jetstream"
)

// DefaultWindowSize keeps enough history for the 10x rule with headroom.
const DefaultWindowSize = 20

// kvToken makes s usable as one dot-separated KV key or subject token.
// Letters, digits and '-' pass through; every other byte, '_' included,
// becomes _XX (hex), so distinct inputs never share a token. The empty
// string maps to a lone "_", which no escaped value can produce.
func kvToken(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02X", c)
		}
	}
	return b.String()
}

func kvKey(parts ...string) string {
	tokens := make([]string, len(parts))
	for i, p := range parts {
		tokens[i] = kvToken(p)
	}
	return strings.Join(tokens, ".")
}

func targetKey(k qc.TargetKey) string {
	return kvKey(k.TenantID, k.TestID, k.ControlLevel, k.Lot)
}

type windowRecord struct {
	Values []float64 `json:"values"`
}

// isRevisionConflict reports a KV write rejected for a stale revision.
func isRevisionConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}

type resultPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// QCStore keeps control targets and rolling windows in KV and appends every
// QC result to the QC_RESULTS stream. Window writes are compare-and-set on
// the KV revision, so concurrent runs of one key cannot both succeed.
type QCStore struct {
	js         jetstream.JetStream
	publisher  resultPublisher
	targets    jetstream.KeyValue
	windows    jetstream.KeyValue
	windowSize int
}

func NewQCStore(ctx context.Context, js jetstream.JetStream, windowSize int) (*QCStore, error) {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}

	targets, err := js.KeyValue(ctx, BucketQCTargets)
	if err != nil {
		return nil, fmt.Errorf("%s erişilemedi: %w", BucketQCTargets, err)
	}
	windows, err := js.KeyValue(ctx, BucketQCWindows)
	if err != nil {
		return nil, fmt.Errorf("%s erişilemedi: %w", BucketQCWindows, err)
	}

	return &QCStore{js: js, publisher: js, targets: targets, windows: windows, windowSize: windowSize}, nil
}

// PutTarget stores the manufacturer target of a control lot.
func (s *QCStore) PutTarget(ctx context.Context, t db.QCTarget) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("hedef serialize hatası: %w", err)
	}
	key := targetKey(qc.TargetKey{TenantID: t.TenantID, TestID: t.TestID, ControlLevel: t.ControlLevel, Lot: t.Lot})
	if _, err := s.targets.Put(ctx, key, data); err != nil {
		return fmt.Errorf("hedef kaydedilemedi: %w", err)
	}
	return nil
}

func (s *QCStore) Target(ctx context.Context, key qc.TargetKey) (db.QCTarget, error) {
	entry, err := s.targets.Get(ctx, targetKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return db.QCTarget{}, qc.ErrTargetNotFound
	}
	if err != nil {
		return db.QCTarget{}, err
	}

	var t db.QCTarget
	if err := json.Unmarshal(entry.Value(), &t); err != nil {
		return db.QCTarget{}, fmt.Errorf("hedef parse hatası: %w", err)
	}
	return t, nil
}

func (s *QCStore) Window(ctx context.Context, key qc.TargetKey) (qc.Window, error) {
	entry, err := s.windows.Get(ctx, targetKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return qc.Window{}, nil
	}
	if err != nil {
		return qc.Window{}, err
	}

	var rec windowRecord
	if err := json.Unmarshal(entry.Value(), &rec); err != nil {
		return qc.Window{}, fmt.Errorf("QC penceresi parse hatası: %w", err)
	}
	return qc.Window{Values: rec.Values, Revision: entry.Revision()}, nil
}

// Append adds result to its window if the window is still at revision,
// then publishes the result. When the publish fails the window is put back
// to its previous values so it never holds a value without a stored result.
func (s *QCStore) Append(ctx context.Context, result db.QCResult, revision uint64) error {
	tk := qc.TargetKey{
		TenantID:     result.TenantID,
		TestID:       result.TestID,
		ControlLevel: result.ControlLevel,
		Lot:          result.Lot,
	}
	key := targetKey(tk)

	current, err := s.Window(ctx, tk)
	if err != nil {
		return err
	}
	if current.Revision != revision {
		return qc.ErrWindowConflict
	}

	previous, err := json.Marshal(windowRecord{Values: current.Values})
	if err != nil {
		return fmt.Errorf("QC penceresi serialize hatası: %w", err)
	}
	values := append(append([]float64(nil), current.Values...), result.Value)
	if len(values) > s.windowSize {
		values = values[len(values)-s.windowSize:]
	}
	data, err := json.Marshal(windowRecord{Values: values})
	if err != nil {
		return fmt.Errorf("QC penceresi serialize hatası: %w", err)
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("QC sonucu serialize hatası: %w", err)
	}

	var written uint64
	if revision == 0 {
		written, err = s.windows.Create(ctx, key, data)
	} else {
		written, err = s.windows.Update(ctx, key, data, revision)
	}
	if isRevisionConflict(err) {
		return qc.ErrWindowConflict
	}
	if err != nil {
		return fmt.Errorf("QC penceresi yazılamadı: %w", err)
	}

	subject := "qc.results." + kvKey(result.TenantID, result.TestID)
	if _, err := s.publisher.Publish(ctx, subject, payload, jetstream.WithMsgID(result.ID)); err != nil {
		if _, rbErr := s.windows.Update(ctx, key, previous, written); rbErr != nil {
			slog.Error("QC penceresi geri alınamadı",
				"key", key,
				"resultID", result.ID,
				"error", rbErr)
		}
		return fmt.Errorf("QC sonucu yayınlanamadı: %w", err)
	}

	return nil
}

// Results returns the QC results of one test from the QC_RESULTS stream,
// oldest first.
func (s *QCStore) Results(ctx context.Context, tenantID, testID string) ([]db.QCResult, error) {
	subject := "qc.results." + kvKey(tenantID, testID)

	stream, err := s.js.Stream(ctx, StreamQCResults)
	if err != nil {
		return nil, fmt.Errorf("%s erişilemedi: %w", StreamQCResults, err)
	}

	cons, err := stream.CreateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject:     subject,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		AckPolicy:         jetstream.AckNonePolicy,
		InactiveThreshold: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("QC sonuç tüketicisi oluşturulamadı: %w", err)
	}
	info := cons.CachedInfo()
	defer stream.DeleteConsumer(context.Background(), info.Name)

	var results []db.QCResult
	remaining := int(info.NumPending)
	for remaining > 0 {
		batch, err := cons.FetchNoWait(remaining)
		if err != nil {
			return nil, err
		}
		got := 0
		for msg := range batch.Messages() {
			got++
			var r db.QCResult
			if err := json.Unmarshal(msg.Data(), &r); err == nil {
				results = append(results, r)
			}
		}
		if err := batch.Error(); err != nil {
			return nil, err
		}
		if got == 0 {
			break
		}
		remaining -= got
	}

	return results, nil
}
