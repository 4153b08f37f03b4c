package qc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/minasoft/lab-interop/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore is a WindowStore with revision checks. beforeAppend lets a
// test slip a concurrent write in between read and append.
type memoryStore struct {
	mu           sync.Mutex
	targets      map[TargetKey]db.QCTarget
	windows      map[TargetKey]Window
	appended     []db.QCResult
	beforeAppend func()
	appendErr    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		targets: make(map[TargetKey]db.QCTarget),
		windows: make(map[TargetKey]Window),
	}
}

func (s *memoryStore) Target(ctx context.Context, key TargetKey) (db.QCTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[key]
	if !ok {
		return db.QCTarget{}, ErrTargetNotFound
	}
	return t, nil
}

func (s *memoryStore) Window(ctx context.Context, key TargetKey) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.windows[key]
	return Window{Values: append([]float64(nil), w.Values...), Revision: w.Revision}, nil
}

func (s *memoryStore) Append(ctx context.Context, result db.QCResult, revision uint64) error {
	if hook := s.beforeAppend; hook != nil {
		s.beforeAppend = nil
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}

	key := TargetKey{TenantID: result.TenantID, TestID: result.TestID, ControlLevel: result.ControlLevel, Lot: result.Lot}
	w := s.windows[key]
	if w.Revision != revision {
		return ErrWindowConflict
	}
	s.windows[key] = Window{Values: append(w.Values, result.Value), Revision: w.Revision + 1}
	s.appended = append(s.appended, result)
	return nil
}

func (s *memoryStore) push(key TargetKey, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.windows[key]
	s.windows[key] = Window{Values: append(w.Values, v), Revision: w.Revision + 1}
}

var glucoseKey = TargetKey{TenantID: "t1", TestID: "GLU", ControlLevel: db.ControlNormal, Lot: "L1"}

func glucoseRun(value float64) ControlRun {
	return ControlRun{
		TenantID:     glucoseKey.TenantID,
		TestID:       glucoseKey.TestID,
		ControlLevel: glucoseKey.ControlLevel,
		Lot:          glucoseKey.Lot,
		Value:        value,
		InstrumentID: "AU680",
		PerformedAt:  time.Date(2024, 1, 17, 12, 0, 0, 0, time.UTC),
	}
}

func storeWithTarget() *memoryStore {
	s := newMemoryStore()
	s.targets[glucoseKey] = db.QCTarget{
		TenantID: "t1", TestID: "GLU", TestName: "Glucose",
		ControlLevel: db.ControlNormal, Lot: "L1", Mean: 100, SD: 10,
	}
	return s
}

func TestRecorderRecordsAcceptedRun(t *testing.T) {
	store := storeWithTarget()
	sink := &recordingSink{}
	rec := NewRecorder(store, NewEscalator(sink, &staticLookup{}), 0)

	result, esc, err := rec.Record(context.Background(), glucoseRun(104))
	require.NoError(t, err)
	assert.Nil(t, esc)

	assert.NotEmpty(t, result.ID)
	assert.Equal(t, "Glucose", result.TestName)
	assert.Equal(t, 100.0, result.Mean)
	assert.Equal(t, 10.0, result.SD)
	assert.InDelta(t, 10.0, float64(result.CV), 1e-9)
	assert.InDelta(t, 0.4, float64(result.ZScore), 1e-9)
	assert.Equal(t, []string{}, result.Violations)
	assert.Equal(t, string(StatusAccepted), result.Status)
	assert.True(t, result.Accepted)
	assert.Empty(t, sink.sent)

	w, _ := store.Window(context.Background(), glucoseKey)
	assert.Equal(t, []float64{104}, w.Values)
}

func TestRecorderUsesWindow(t *testing.T) {
	store := storeWithTarget()
	store.push(glucoseKey, 121)
	sink := &recordingSink{}
	rec := NewRecorder(store, NewEscalator(sink, &staticLookup{}), 3)

	result, esc, err := rec.Record(context.Background(), glucoseRun(121))
	require.NoError(t, err)

	assert.Equal(t, []string{"1_2s", "2_2s"}, result.Violations)
	assert.Equal(t, string(StatusRejected), result.Status)
	assert.False(t, result.Accepted)
	require.NotNil(t, esc)
	assert.Equal(t, SeverityHigh, esc.Severity)
	assert.Len(t, sink.sent, 1)
}

func TestRecorderReevaluatesAfterConflict(t *testing.T) {
	store := storeWithTarget()
	store.beforeAppend = func() { store.push(glucoseKey, 121) }
	rec := NewRecorder(store, nil, 3)

	result, _, err := rec.Record(context.Background(), glucoseRun(121))
	require.NoError(t, err)

	// The first evaluation saw an empty window; the retry sees 121 and
	// fires 2_2s.
	assert.Contains(t, result.Violations, string(Rule2_2s))
	require.Len(t, store.appended, 1)
	assert.Equal(t, result.ID, store.appended[0].ID)

	w, _ := store.Window(context.Background(), glucoseKey)
	assert.Equal(t, []float64{121, 121}, w.Values)
}

func TestRecorderGivesUpAfterMaxRetries(t *testing.T) {
	store := storeWithTarget()
	store.appendErr = ErrWindowConflict
	rec := NewRecorder(store, nil, 2)

	_, _, err := rec.Record(context.Background(), glucoseRun(100))
	assert.ErrorIs(t, err, ErrWindowConflict)
}

func TestRecorderMissingTarget(t *testing.T) {
	rec := NewRecorder(newMemoryStore(), nil, 3)

	_, _, err := rec.Record(context.Background(), glucoseRun(100))
	assert.ErrorIs(t, err, ErrTargetNotFound)
}

func TestRecorderStoreFailure(t *testing.T) {
	store := storeWithTarget()
	store.appendErr = errors.New("disk full")
	rec := NewRecorder(store, nil, 3)

	result, _, err := rec.Record(context.Background(), glucoseRun(100))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrWindowConflict)
	assert.Empty(t, result.ID)
}

func TestRecorderConcurrentRunsSerialize(t *testing.T) {
	store := storeWithTarget()
	rec := NewRecorder(store, nil, 50)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			_, _, err := rec.Record(context.Background(), glucoseRun(v))
			assert.NoError(t, err)
		}(100 + float64(i))
	}
	wg.Wait()

	w, _ := store.Window(context.Background(), glucoseKey)
	assert.Len(t, w.Values, 10)
	assert.Equal(t, uint64(10), w.Revision)
	assert.Len(t, store.appended, 10)
}

func TestNewQCResultDefaults(t *testing.T) {
	run := glucoseRun(80)
	run.PerformedAt = time.Time{}
	run.TestName = "Glikoz"

	before := time.Now()
	r := NewQCResult(run, db.QCTarget{Mean: 100, SD: 10, TestName: "Glucose"}, nil)

	assert.Equal(t, "Glikoz", r.TestName)
	assert.False(t, r.PerformedAt.Before(before))
	assert.Equal(t, "AU680", r.InstrumentID)
	assert.InDelta(t, -2.0, float64(r.ZScore), 1e-9)
	assert.Equal(t, string(StatusAccepted), r.Status)
}
