package db

import (
	"time"
)

// Message directions
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message statuses
const (
	StatusPending   = "pending"
	StatusForwarded = "forwarded"
	StatusIngested  = "ingested"
	StatusFailed    = "failed"
)

// LabMessage is an HL7 message in transit on the HL7 streams.
type LabMessage struct {
	ID               string     `json:"id"`
	Timestamp        time.Time  `json:"timestamp"`
	Direction        string     `json:"direction"`
	SourceAddr       string     `json:"source_addr,omitempty"`
	DestinationAddr  string     `json:"destination_addr,omitempty"`
	MessageType      string     `json:"message_type"`
	TriggerEvent     string     `json:"trigger_event,omitempty"`
	MessageControlID string     `json:"message_control_id"`
	PatientID        string     `json:"patient_id,omitempty"`
	PatientName      string     `json:"patient_name,omitempty"`
	RawMessage       []byte     `json:"raw_message"`
	Status           string     `json:"status"`
	RetryCount       int        `json:"retry_count"`
	LastError        string     `json:"last_error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}

// PatientResult is a released patient result. The QC escalation looks these
// up to find results released before a failed control run.
type PatientResult struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenant_id"`
	TestID           string    `json:"test_id"`
	TestName         string    `json:"test_name,omitempty"`
	PatientID        string    `json:"patient_id,omitempty"`
	PlacerOrder      string    `json:"placer_order,omitempty"`
	FillerOrder      string    `json:"filler_order,omitempty"`
	Value            string    `json:"value"`
	Units            string    `json:"units,omitempty"`
	AbnormalFlags    []string  `json:"abnormal_flags,omitempty"`
	ResultStatus     string    `json:"result_status"`
	MessageControlID string    `json:"message_control_id,omitempty"`
	ReleasedAt       time.Time `json:"released_at"`
}

// Control levels
const (
	ControlLow    = "low"
	ControlNormal = "normal"
	ControlHigh   = "high"
)

// QCTarget is the manufacturer-assigned target for one control lot.
type QCTarget struct {
	TenantID     string  `json:"tenant_id"`
	TestID       string  `json:"test_id"`
	TestName     string  `json:"test_name,omitempty"`
	ControlLevel string  `json:"control_level"`
	Lot          string  `json:"lot"`
	Mean         float64 `json:"mean"`
	SD           float64 `json:"sd"`
}

// QCResult is one control run. It is immutable after creation apart from
// NotificationSent.
type QCResult struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenant_id"`
	TestID           string    `json:"test_id"`
	TestName         string    `json:"test_name,omitempty"`
	ControlLevel     string    `json:"control_level"`
	Lot              string    `json:"lot"`
	Value            float64   `json:"value"`
	Mean             float64   `json:"mean"`
	SD               float64   `json:"sd"`
	CV               Float     `json:"cv"`
	ZScore           Float     `json:"z_score"`
	Violations       []string  `json:"violations"`
	Status           string    `json:"status"`
	Accepted         bool      `json:"accepted"`
	InstrumentID     string    `json:"instrument_id,omitempty"`
	PerformedBy      string    `json:"performed_by,omitempty"`
	PerformedAt      time.Time `json:"performed_at"`
	NotificationSent bool      `json:"notification_sent"`
}

// Notification recipients
const (
	RecipientQCSupervisor = "qc_supervisor"
	RecipientLabDirector  = "lab_director"
)

// Notification is handed to the notification fan-out (email/SMS/push).
type Notification struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	Type            string    `json:"type"`
	Recipient       string    `json:"recipient"`
	Severity        string    `json:"severity"`
	Critical        bool      `json:"critical"`
	Title           string    `json:"title"`
	Message         string    `json:"message"`
	QCResultID      string    `json:"qc_result_id,omitempty"`
	AffectedResults []string  `json:"affected_results,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type StreamInfo struct {
	Name          string `json:"name"`
	Messages      uint64 `json:"messages"`
	Bytes         uint64 `json:"bytes"`
	FirstSequence uint64 `json:"first_sequence"`
	LastSequence  uint64 `json:"last_sequence"`
}

type ConsumerInfo struct {
	Stream          string `json:"stream"`
	Name            string `json:"name"`
	Pending         uint64 `json:"pending"`
	Delivered       uint64 `json:"delivered"`
	AckPending      uint64 `json:"ack_pending"`
	RedeliveryCount uint64 `json:"redelivery_count"`
}
