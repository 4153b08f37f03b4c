// Package qc implements the Westgard multi-rule quality control engine and
// the Levey-Jennings statistics behind the QC dashboard.
//
// The engine is pure: callers fetch the control target and the rolling
// window of prior results, and must serialize writes per test, level and
// lot so two runs never evaluate against the same window.
package qc

import "math"

// RuleCode names a Westgard rule.
type RuleCode string

const (
	Rule1_2s RuleCode = "1_2s"
	Rule1_3s RuleCode = "1_3s"
	Rule2_2s RuleCode = "2_2s"
	RuleR_4s RuleCode = "R_4s"
	Rule4_1s RuleCode = "4_1s"
	Rule10x  RuleCode = "10x"
)

// Rejection reports whether a violation of r rejects the run. Only 1_2s is
// a warning.
func (r RuleCode) Rejection() bool {
	return r != Rule1_2s
}

// Evaluation is the outcome of running the rules on one new value.
type Evaluation struct {
	Violations []RuleCode
	ZScore     float64
}

// Evaluate scores value against mean and sd and checks every rule over the
// window prior+value (prior ordered oldest to newest). Several rules may
// fire at once. sd == 0 yields an infinite or NaN z-score, which is
// returned as is.
func Evaluate(value, mean, sd float64, prior []float64) Evaluation {
	z := make([]float64, 0, len(prior)+1)
	for _, v := range prior {
		z = append(z, (v-mean)/sd)
	}
	z = append(z, (value-mean)/sd)

	latest := z[len(z)-1]
	violations := []RuleCode{}

	if math.Abs(latest) > 2 {
		violations = append(violations, Rule1_2s)
	}
	if math.Abs(latest) > 3 {
		violations = append(violations, Rule1_3s)
	}
	if last := tail(z, 2); last != nil {
		if allAbove(last, 2) || allBelow(last, -2) {
			violations = append(violations, Rule2_2s)
		}
		if (last[0] > 2 && last[1] < -2) || (last[0] < -2 && last[1] > 2) {
			violations = append(violations, RuleR_4s)
		}
	}
	if last := tail(z, 4); last != nil && (allAbove(last, 1) || allBelow(last, -1)) {
		violations = append(violations, Rule4_1s)
	}
	if last := tail(z, 10); last != nil && (allAbove(last, 0) || allBelow(last, 0)) {
		violations = append(violations, Rule10x)
	}

	return Evaluation{Violations: violations, ZScore: latest}
}

// tail returns the last n values, or nil when the window is shorter.
func tail(z []float64, n int) []float64 {
	if len(z) < n {
		return nil
	}
	return z[len(z)-n:]
}

func allAbove(z []float64, limit float64) bool {
	for _, v := range z {
		if !(v > limit) {
			return false
		}
	}
	return true
}

func allBelow(z []float64, limit float64) bool {
	for _, v := range z {
		if !(v < limit) {
			return false
		}
	}
	return true
}
