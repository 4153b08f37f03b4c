package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nats-io/nats.go/jetstream"
)

// Counter keys in LAB_STATS
const (
	StatInboundReceived  = "inbound_received"
	StatResultsIngested  = "results_ingested"
	StatOutboundQueued   = "outbound_queued"
	StatOutboundSent     = "outbound_sent"
	StatOutboundFailed   = "outbound_failed"
	StatQCRuns           = "qc_runs"
	StatQCRejected       = "qc_rejected"
	StatLastInboundTime  = "last_inbound_time"
	StatLastOutboundTime = "last_outbound_time"
)

// StatKeys lists the counters reported by the dashboard.
var StatKeys = []string{
	StatInboundReceived, StatResultsIngested,
	StatOutboundQueued, StatOutboundSent, StatOutboundFailed,
	StatQCRuns, StatQCRejected,
}

// Stats is a set of counters in the LAB_STATS bucket.
type Stats struct {
	kv jetstream.KeyValue
}

func NewStats(ctx context.Context, js jetstream.JetStream) (*Stats, error) {
	kv, err := js.KeyValue(ctx, BucketStats)
	if err != nil {
		return nil, fmt.Errorf("%s erişilemedi: %w", BucketStats, err)
	}
	return &Stats{kv: kv}, nil
}

// Incr adds one to key.
func (s *Stats) Incr(ctx context.Context, key string) {
	s.IncrBy(ctx, key, 1)
}

// IncrBy adds delta to key. Concurrent writers retry on revision conflicts.
// Failures are logged; counters never fail the caller.
func (s *Stats) IncrBy(ctx context.Context, key string, delta int64) {
	if s == nil || delta == 0 {
		return
	}
	for attempt := 0; attempt < 5; attempt++ {
		entry, err := s.kv.Get(ctx, key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			if _, err := s.kv.Create(ctx, key, []byte(strconv.FormatInt(delta, 10))); err == nil || !isRevisionConflict(err) {
				s.logErr(key, err)
				return
			}
			continue
		}
		if err != nil {
			s.logErr(key, err)
			return
		}

		n, _ := strconv.ParseInt(string(entry.Value()), 10, 64)
		_, err = s.kv.Update(ctx, key, []byte(strconv.FormatInt(n+delta, 10)), entry.Revision())
		if err == nil || !isRevisionConflict(err) {
			s.logErr(key, err)
			return
		}
	}
	slog.Warn("Sayaç güncellenemedi", "key", key)
}

// Set stores a raw value, used for timestamps.
func (s *Stats) Set(ctx context.Context, key, value string) {
	if s == nil {
		return
	}
	if _, err := s.kv.Put(ctx, key, []byte(value)); err != nil {
		s.logErr(key, err)
	}
}

// Get returns the counter value, 0 when unset.
func (s *Stats) Get(ctx context.Context, key string) int64 {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		return 0
	}
	n, _ := strconv.ParseInt(string(entry.Value()), 10, 64)
	return n
}

// Raw returns the stored string value.
func (s *Stats) Raw(ctx context.Context, key string) (string, bool) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		return "", false
	}
	return string(entry.Value()), true
}

func (s *Stats) logErr(key string, err error) {
	if err != nil {
		slog.Error("Sayaç hatası", "key", key, "error", err)
	}
}
