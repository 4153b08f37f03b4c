package qc

import (
	"fmt"
	"math"
	"time"

	"github.com/minasoft/lab-interop/internal/db"
)

// Expected share of a Gaussian population within 1, 2 and 3 SD of the mean.
const (
	ExpectedWithin1SD = 68.27
	ExpectedWithin2SD = 95.45
	ExpectedWithin3SD = 99.73
)

// WithinSD holds raw counts of values within ±1/2/3 SD of the series mean.
type WithinSD struct {
	OneSD   int `json:"one_sd"`
	TwoSD   int `json:"two_sd"`
	ThreeSD int `json:"three_sd"`
}

// Statistics describes one test+level+lot bucket. SD is the sample
// standard deviation (n-1 denominator).
type Statistics struct {
	N        int
	Mean     float64
	SD       float64
	CV       float64
	Bias     float64
	WithinSD WithinSD
}

// ComputeStatistics computes mean, sample SD, CV% and bias% against the
// manufacturer target. n < 2, a zero mean or a zero target give NaN or Inf
// fields; nothing is clamped.
func ComputeStatistics(values []float64, targetMean float64) Statistics {
	n := len(values)

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	sd := math.Sqrt(sq / float64(n-1))

	s := Statistics{
		N:    n,
		Mean: mean,
		SD:   sd,
		CV:   sd / mean * 100,
		Bias: (mean - targetMean) / targetMean * 100,
	}

	for _, v := range values {
		dev := math.Abs(v - mean)
		if dev <= sd {
			s.WithinSD.OneSD++
		}
		if dev <= 2*sd {
			s.WithinSD.TwoSD++
		}
		if dev <= 3*sd {
			s.WithinSD.ThreeSD++
		}
	}

	return s
}

// Coverage returns the within-SD counts as percentages of N.
func (s Statistics) Coverage() (one, two, three float64) {
	n := float64(s.N)
	return float64(s.WithinSD.OneSD) / n * 100,
		float64(s.WithinSD.TwoSD) / n * 100,
		float64(s.WithinSD.ThreeSD) / n * 100
}

// Period is a dashboard reporting bucket.
type Period string

const (
	PeriodDaily     Period = "daily"
	PeriodWeekly    Period = "weekly"
	PeriodMonthly   Period = "monthly"
	PeriodQuarterly Period = "quarterly"
)

// PeriodStart returns the start of the bucket containing t. Weeks start on
// Monday.
func PeriodStart(p Period, t time.Time) (time.Time, error) {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())

	switch p {
	case PeriodDaily:
		return day, nil
	case PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset), nil
	case PeriodMonthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, t.Location()), nil
	case PeriodQuarterly:
		qm := time.Month((int(m)-1)/3*3 + 1)
		return time.Date(y, qm, 1, 0, 0, 0, 0, t.Location()), nil
	default:
		return time.Time{}, fmt.Errorf("bilinmeyen periyot: %q", p)
	}
}

// StatisticsForPeriod filters results to the bucket of p containing now and
// to the given test, level and lot, then computes statistics.
func StatisticsForPeriod(results []db.QCResult, testID, level, lot string, p Period, now time.Time, targetMean float64) (Statistics, error) {
	start, err := PeriodStart(p, now)
	if err != nil {
		return Statistics{}, err
	}

	var values []float64
	for _, r := range results {
		if r.TestID != testID || r.ControlLevel != level || r.Lot != lot {
			continue
		}
		if r.PerformedAt.Before(start) || r.PerformedAt.After(now) {
			continue
		}
		values = append(values, r.Value)
	}

	return ComputeStatistics(values, targetMean), nil
}
