package qc

// Status is the accept/warn/reject outcome of a control run. Both the UI
// and escalation use ClassifyStatus; nothing else derives it.
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusWarning  Status = "warning"
	StatusRejected Status = "rejected"
)

// Severity drives notification fan-out.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityWarning  Severity = "warning"
)

var criticalRules = map[RuleCode]bool{
	Rule1_3s: true,
	RuleR_4s: true,
	Rule4_1s: true,
	Rule10x:  true,
}

func ClassifyStatus(violations []RuleCode) Status {
	if len(violations) == 0 {
		return StatusAccepted
	}
	for _, v := range violations {
		if v.Rejection() {
			return StatusRejected
		}
	}
	return StatusWarning
}

// ClassifySeverity maps violations to an escalation severity. ok is false
// when there is nothing to escalate. A lone 1_2s stays at warning; 2_2s
// raises to high.
func ClassifySeverity(violations []RuleCode) (severity Severity, ok bool) {
	if len(violations) == 0 {
		return "", false
	}

	severity = SeverityWarning
	for _, v := range violations {
		if criticalRules[v] {
			return SeverityCritical, true
		}
		if v == Rule2_2s {
			severity = SeverityHigh
		}
	}
	return severity, true
}

// Codes converts violations to their wire strings.
func Codes(violations []RuleCode) []string {
	out := make([]string, len(violations))
	for i, v := range violations {
		out[i] = string(v)
	}
	return out
}

// ParseCodes is the inverse of Codes. Unknown codes are kept.
func ParseCodes(codes []string) []RuleCode {
	out := make([]RuleCode, len(codes))
	for i, c := range codes {
		out[i] = RuleCode(c)
	}
	return out
}
