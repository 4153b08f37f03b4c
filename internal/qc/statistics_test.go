package qc

import (
	"math"
	"testing"
	"time"

	"github.com/minasoft/lab-interop/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeStatistics(t *testing.T) {
	s := ComputeStatistics([]float64{10, 12, 8, 11, 9}, 9.5)

	assert.Equal(t, 5, s.N)
	assert.InDelta(t, 10.0, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), s.SD, 1e-12)
	assert.InDelta(t, math.Sqrt(2.5)*10, s.CV, 1e-9)
	assert.InDelta(t, 100.0/19, s.Bias, 1e-9)
	assert.Equal(t, WithinSD{OneSD: 3, TwoSD: 5, ThreeSD: 5}, s.WithinSD)

	one, two, three := s.Coverage()
	assert.InDelta(t, 60.0, one, 1e-9)
	assert.InDelta(t, 100.0, two, 1e-9)
	assert.InDelta(t, 100.0, three, 1e-9)
}

func TestComputeStatisticsCountsNeverExceedN(t *testing.T) {
	series := [][]float64{
		{1},
		{5, 5, 5, 5},
		{1, 2, 3, 4, 5, 6, 7, 8, 9, 100},
	}
	for _, values := range series {
		s := ComputeStatistics(values, 1)
		assert.LessOrEqual(t, s.WithinSD.OneSD, s.WithinSD.TwoSD)
		assert.LessOrEqual(t, s.WithinSD.TwoSD, s.WithinSD.ThreeSD)
		assert.LessOrEqual(t, s.WithinSD.ThreeSD, s.N)
	}
}

func TestComputeStatisticsDegenerate(t *testing.T) {
	empty := ComputeStatistics(nil, 10)
	assert.Equal(t, 0, empty.N)
	assert.True(t, math.IsNaN(empty.Mean))

	single := ComputeStatistics([]float64{4}, 4)
	assert.Equal(t, 4.0, single.Mean)
	assert.True(t, math.IsNaN(single.SD))
	assert.Equal(t, 0, single.WithinSD.ThreeSD)

	flat := ComputeStatistics([]float64{5, 5, 5}, 0)
	assert.Equal(t, 0.0, flat.SD)
	assert.Equal(t, 3, flat.WithinSD.OneSD)
	assert.True(t, math.IsInf(flat.Bias, 1))
}

func TestPeriodStart(t *testing.T) {
	wed := time.Date(2024, 1, 17, 15, 4, 5, 0, time.UTC)
	sun := time.Date(2024, 1, 21, 23, 0, 0, 0, time.UTC)
	may := time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		p    Period
		at   time.Time
		want time.Time
	}{
		{PeriodDaily, wed, time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC)},
		{PeriodWeekly, wed, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{PeriodWeekly, sun, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{PeriodMonthly, may, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{PeriodQuarterly, may, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
		{PeriodQuarterly, wed, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, err := PeriodStart(tt.p, tt.at)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s %s", tt.p, tt.at)
	}

	_, err := PeriodStart("yearly", wed)
	assert.Error(t, err)
}

func TestStatisticsForPeriod(t *testing.T) {
	now := time.Date(2024, 1, 17, 12, 0, 0, 0, time.UTC)
	result := func(value float64, level, lot string, at time.Time) db.QCResult {
		return db.QCResult{TestID: "GLU", ControlLevel: level, Lot: lot, Value: value, PerformedAt: at}
	}

	results := []db.QCResult{
		result(10, db.ControlNormal, "L1", now.Add(-time.Hour)),
		result(12, db.ControlNormal, "L1", now.Add(-2*time.Hour)),
		result(8, db.ControlNormal, "L1", now.Add(-3*time.Hour)),
		result(50, db.ControlNormal, "L1", now.Add(-48*time.Hour)),
		result(50, db.ControlHigh, "L1", now.Add(-time.Hour)),
		result(50, db.ControlNormal, "L2", now.Add(-time.Hour)),
		{TestID: "K", ControlLevel: db.ControlNormal, Lot: "L1", Value: 50, PerformedAt: now},
	}

	s, err := StatisticsForPeriod(results, "GLU", db.ControlNormal, "L1", PeriodDaily, now, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, s.N)
	assert.InDelta(t, 10.0, s.Mean, 1e-12)
	assert.InDelta(t, 0.0, s.Bias, 1e-12)

	weekly, err := StatisticsForPeriod(results, "GLU", db.ControlNormal, "L1", PeriodWeekly, now, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, weekly.N)

	_, err = StatisticsForPeriod(results, "GLU", db.ControlNormal, "L1", "hourly", now, 10)
	assert.Error(t, err)
}
