package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minasoft/lab-interop/internal/db"
	"github.com/nats-io/nats.go/jetstream"
)

// ResultStore holds released patient results for the QC affected-results
// lookup. Keys are <tenant>.<test>.<result id>.
type ResultStore struct {
	kv jetstream.KeyValue
}

func NewResultStore(ctx context.Context, js jetstream.JetStream) (*ResultStore, error) {
	kv, err := js.KeyValue(ctx, BucketLabResults)
	if err != nil {
		return nil, fmt.Errorf("%s erişilemedi: %w", BucketLabResults, err)
	}
	return &ResultStore{kv: kv}, nil
}

func (s *ResultStore) Save(ctx context.Context, r db.PatientResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("sonuç serialize hatası: %w", err)
	}
	if _, err := s.kv.Put(ctx, kvKey(r.TenantID, r.TestID, r.ID), data); err != nil {
		return fmt.Errorf("sonuç kaydedilemedi: %w", err)
	}
	return nil
}

// ReleasedResults returns results of one test released within [since, until].
func (s *ResultStore) ReleasedResults(ctx context.Context, tenantID, testID string, since, until time.Time) ([]db.PatientResult, error) {
	keys, err := s.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sonuç anahtarları okunamadı: %w", err)
	}

	prefix := kvKey(tenantID, testID) + "."
	var out []db.PatientResult
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		entry, err := s.kv.Get(ctx, key)
		if err != nil {
			continue
		}

		var r db.PatientResult
		if err := json.Unmarshal(entry.Value(), &r); err != nil {
			continue
		}
		if r.ReleasedAt.Before(since) || r.ReleasedAt.After(until) {
			continue
		}
		out = append(out, r)
	}

	return out, nil
}
