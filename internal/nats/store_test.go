package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/minasoft/lab-interop/internal/db"
	"github.com/minasoft/lab-interop/internal/qc"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *EmbeddedServer {
	t.Helper()
	es, err := NewEmbeddedServer(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(es.Shutdown)
	return es
}

var testKey = qc.TargetKey{TenantID: "t1", TestID: "GLU", ControlLevel: db.ControlNormal, Lot: "L-01"}

func testTarget() db.QCTarget {
	return db.QCTarget{
		TenantID:     testKey.TenantID,
		TestID:       testKey.TestID,
		TestName:     "Glucose",
		ControlLevel: testKey.ControlLevel,
		Lot:          testKey.Lot,
		Mean:         100,
		SD:           10,
	}
}

func testResult(value float64) db.QCResult {
	return db.QCResult{
		ID:           "r-" + time.Now().Format("150405.000000000"),
		TenantID:     testKey.TenantID,
		TestID:       testKey.TestID,
		ControlLevel: testKey.ControlLevel,
		Lot:          testKey.Lot,
		Value:        value,
		PerformedAt:  time.Now(),
	}
}

func TestEmbeddedServerCreatesStreamsAndBuckets(t *testing.T) {
	es := newTestServer(t)
	ctx := context.Background()

	for _, name := range AllStreams {
		_, err := es.JetStream().Stream(ctx, name)
		assert.NoError(t, err, name)
	}
	for _, bucket := range []string{BucketQCTargets, BucketQCWindows, BucketLabResults, BucketStats, BucketDLQ} {
		_, err := es.JetStream().KeyValue(ctx, bucket)
		assert.NoError(t, err, bucket)
	}
	assert.True(t, es.Connection().IsConnected())
}

func TestQCStoreTargets(t *testing.T) {
	es := newTestServer(t)
	ctx := context.Background()

	store, err := NewQCStore(ctx, es.JetStream(), 0)
	require.NoError(t, err)

	_, err = store.Target(ctx, testKey)
	assert.ErrorIs(t, err, qc.ErrTargetNotFound)

	require.NoError(t, store.PutTarget(ctx, testTarget()))
	got, err := store.Target(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, testTarget(), got)
}

func TestQCStoreAppendRejectsStaleRevision(t *testing.T) {
	es := newTestServer(t)
	ctx := context.Background()

	store, err := NewQCStore(ctx, es.JetStream(), 3)
	require.NoError(t, err)

	w, err := store.Window(ctx, testKey)
	require.NoError(t, err)
	assert.Empty(t, w.Values)
	assert.Zero(t, w.Revision)

	require.NoError(t, store.Append(ctx, testResult(101), 0))
	assert.ErrorIs(t, store.Append(ctx, testResult(102), 0), qc.ErrWindowConflict)

	w, err = store.Window(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, []float64{101}, w.Values)

	stale := w.Revision
	require.NoError(t, store.Append(ctx, testResult(103), stale))
	assert.ErrorIs(t, store.Append(ctx, testResult(104), stale), qc.ErrWindowConflict)

	for _, v := range []float64{105, 106} {
		w, err = store.Window(ctx, testKey)
		require.NoError(t, err)
		require.NoError(t, store.Append(ctx, testResult(v), w.Revision))
	}

	w, err = store.Window(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, []float64{103, 105, 106}, w.Values, "window keeps the newest values")

	results, err := store.Results(ctx, testKey.TenantID, testKey.TestID)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, 101.0, results[0].Value)
	assert.Equal(t, 106.0, results[3].Value)
}

func TestKVRevisionConflictDetection(t *testing.T) {
	es := newTestServer(t)
	ctx := context.Background()

	kv, err := es.JetStream().KeyValue(ctx, BucketQCWindows)
	require.NoError(t, err)

	rev, err := kv.Create(ctx, "k", []byte("1"))
	require.NoError(t, err)

	_, err = kv.Create(ctx, "k", []byte("2"))
	assert.True(t, isRevisionConflict(err))

	_, err = kv.Update(ctx, "k", []byte("2"), rev)
	require.NoError(t, err)

	_, err = kv.Update(ctx, "k", []byte("3"), rev)
	assert.True(t, isRevisionConflict(err))
	assert.False(t, isRevisionConflict(nil))
}

func TestRecorderOverQCStore(t *testing.T) {
	es := newTestServer(t)
	ctx := context.Background()
	js := es.JetStream()

	store, err := NewQCStore(ctx, js, DefaultWindowSize)
	require.NoError(t, err)
	require.NoError(t, store.PutTarget(ctx, testTarget()))

	results, err := NewResultStore(ctx, js)
	require.NoError(t, err)
	performedAt := time.Now()
	require.NoError(t, results.Save(ctx, db.PatientResult{
		ID: "MSG1-1", TenantID: "t1", TestID: "GLU", Value: "140", ResultStatus: "F",
		ReleasedAt: performedAt.Add(-time.Hour),
	}))

	rec := qc.NewRecorder(store, qc.NewEscalator(NewNotificationPublisher(js), results), 3)
	run := qc.ControlRun{
		TenantID: "t1", TestID: "GLU", ControlLevel: db.ControlNormal, Lot: "L-01",
		Value: 135, PerformedAt: performedAt,
	}

	result, esc, err := rec.Record(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, string(qc.StatusRejected), result.Status)
	require.NotNil(t, esc)
	assert.True(t, esc.Critical)
	require.Len(t, esc.Affected, 1)
	assert.Equal(t, "MSG1-1", esc.Affected[0].ID)

	stream, err := js.Stream(ctx, StreamNotifications)
	require.NoError(t, err)
	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.State.Msgs)
}

func TestResultStoreReleasedResults(t *testing.T) {
	es := newTestServer(t)
	ctx := context.Background()

	store, err := NewResultStore(ctx, es.JetStream())
	require.NoError(t, err)

	none, err := store.ReleasedResults(ctx, "t1", "GLU", time.Time{}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, none)

	now := time.Now()
	for _, r := range []db.PatientResult{
		{ID: "a", TenantID: "t1", TestID: "GLU", ReleasedAt: now.Add(-time.Hour)},
		{ID: "b", TenantID: "t1", TestID: "GLU", ReleasedAt: now.Add(-48 * time.Hour)},
		{ID: "c", TenantID: "t1", TestID: "GLUC", ReleasedAt: now.Add(-time.Hour)},
		{ID: "d", TenantID: "t2", TestID: "GLU", ReleasedAt: now.Add(-time.Hour)},
	} {
		require.NoError(t, store.Save(ctx, r))
	}

	got, err := store.ReleasedResults(ctx, "t1", "GLU", now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestNotificationPublisherDeduplicates(t *testing.T) {
	es := newTestServer(t)
	ctx := context.Background()
	js := es.JetStream()

	pub := NewNotificationPublisher(js)
	n := db.Notification{ID: "n-1", TenantID: "t1", Severity: "critical", Title: "QC"}
	require.NoError(t, pub.Send(ctx, n))
	require.NoError(t, pub.Send(ctx, n))

	stream, err := js.Stream(ctx, StreamNotifications)
	require.NoError(t, err)
	msg, err := stream.GetLastMsgForSubject(ctx, "notifications.t1.critical")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), msg.Sequence)
}

func TestDeadLetters(t *testing.T) {
	es := newTestServer(t)
	ctx := context.Background()

	dlq, err := NewDeadLetters(ctx, es.JetStream())
	require.NoError(t, err)

	empty, err := dlq.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = dlq.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotInDLQ)

	now := time.Now()
	older := db.LabMessage{ID: "m-1", Timestamp: now.Add(-time.Minute), Status: db.StatusFailed}
	newer := db.LabMessage{ID: "m-2", Timestamp: now, Status: db.StatusFailed, LastError: "timeout"}
	require.NoError(t, dlq.Put(ctx, older))
	require.NoError(t, dlq.Put(ctx, newer))

	list, err := dlq.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "m-2", list[0].ID)

	got, err := dlq.Get(ctx, "m-2")
	require.NoError(t, err)
	assert.Equal(t, "timeout", got.LastError)

	require.NoError(t, dlq.Delete(ctx, "m-2"))
	_, err = dlq.Get(ctx, "m-2")
	assert.ErrorIs(t, err, ErrNotInDLQ)
}

func TestStats(t *testing.T) {
	es := newTestServer(t)
	ctx := context.Background()

	stats, err := NewStats(ctx, es.JetStream())
	require.NoError(t, err)

	assert.Zero(t, stats.Get(ctx, StatQCRuns))
	for i := 0; i < 3; i++ {
		stats.Incr(ctx, StatQCRuns)
	}
	assert.Equal(t, int64(3), stats.Get(ctx, StatQCRuns))
	stats.IncrBy(ctx, StatQCRuns, 4)
	stats.IncrBy(ctx, StatResultsIngested, 2)
	assert.Equal(t, int64(7), stats.Get(ctx, StatQCRuns))
	assert.Equal(t, int64(2), stats.Get(ctx, StatResultsIngested))

	stats.Set(ctx, StatLastInboundTime, "2024-01-17T12:00:00Z")
	v, ok := stats.Raw(ctx, StatLastInboundTime)
	assert.True(t, ok)
	assert.Equal(t, "2024-01-17T12:00:00Z", v)

	var nilStats *Stats
	nilStats.Incr(ctx, StatQCRuns)
	nilStats.IncrBy(ctx, StatQCRuns, 3)
	nilStats.Set(ctx, StatLastInboundTime, "x")
}

func TestKVToken(t *testing.T) {
	assert.Equal(t, "_", kvToken(""))
	assert.Equal(t, "L-01", kvToken("L-01"))
	assert.Equal(t, "a_2Eb_20c", kvToken("a.b c"))
	assert.Equal(t, "a_5Fb", kvToken("a_b"))
	assert.Equal(t, "_5F", kvToken("_"))
	assert.Equal(t, "t1.GLU.normal.L-01", targetKey(testKey))

	seen := make(map[string]string)
	for _, lot := range []string{"L 01", "L.01", "L_01", "L*01", "L>01", "L_2001", "L_2E01", "", "_"} {
		token := kvToken(lot)
		if other, ok := seen[token]; ok {
			t.Errorf("%q and %q share token %q", lot, other, token)
		}
		seen[token] = lot
	}
}

func TestQCStoreKeepsLotsApart(t *testing.T) {
	es := newTestServer(t)
	ctx := context.Background()

	store, err := NewQCStore(ctx, es.JetStream(), 0)
	require.NoError(t, err)

	spaced, dotted := testKey, testKey
	spaced.Lot, dotted.Lot = "L 01", "L.01"

	r := testResult(121)
	r.Lot = spaced.Lot
	require.NoError(t, store.Append(ctx, r, 0))

	w, err := store.Window(ctx, dotted)
	require.NoError(t, err)
	assert.Empty(t, w.Values)
	assert.Zero(t, w.Revision)

	w, err = store.Window(ctx, spaced)
	require.NoError(t, err)
	assert.Equal(t, []float64{121}, w.Values)

	target := testTarget()
	target.Lot = dotted.Lot
	require.NoError(t, store.PutTarget(ctx, target))
	_, err = store.Target(ctx, spaced)
	assert.ErrorIs(t, err, qc.ErrTargetNotFound)
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	return nil, errors.New("stream unavailable")
}

func TestQCStoreAppendRollsBackWhenPublishFails(t *testing.T) {
	es := newTestServer(t)
	ctx := context.Background()

	store, err := NewQCStore(ctx, es.JetStream(), 0)
	require.NoError(t, err)

	store.publisher = failingPublisher{}
	err = store.Append(ctx, testResult(150), 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, qc.ErrWindowConflict)

	w, err := store.Window(ctx, testKey)
	require.NoError(t, err)
	assert.Empty(t, w.Values)

	store.publisher = es.JetStream()
	require.NoError(t, store.Append(ctx, testResult(101), w.Revision))

	w, err = store.Window(ctx, testKey)
	require.NoError(t, err)
	store.publisher = failingPublisher{}
	require.Error(t, store.Append(ctx, testResult(160), w.Revision))

	w, err = store.Window(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, []float64{101}, w.Values)

	store.publisher = es.JetStream()
	require.NoError(t, store.Append(ctx, testResult(102), w.Revision))

	w, err = store.Window(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, []float64{101, 102}, w.Values)

	results, err := store.Results(ctx, testKey.TenantID, testKey.TestID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 101.0, results[0].Value)
	assert.Equal(t, 102.0, results[1].Value)
}

func TestQCStoreDeduplicatesResultPublish(t *testing.T) {
	es := newTestServer(t)
	ctx := context.Background()

	store, err := NewQCStore(ctx, es.JetStream(), 0)
	require.NoError(t, err)

	r := testResult(101)
	require.NoError(t, store.Append(ctx, r, 0))
	w, err := store.Window(ctx, testKey)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, r, w.Revision))

	results, err := store.Results(ctx, testKey.TenantID, testKey.TestID)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
