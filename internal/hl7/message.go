package hl7

import "strings"

// Message types seen on the lab interfaces. MSH-9.1 is kept as a plain
// string on Message so unknown types still round-trip.
const (
	TypeADT = "ADT"
	TypeORM = "ORM"
	TypeORU = "ORU"
	TypeORR = "ORR"
	TypeACK = "ACK"
)

// Delimiters is the encoding character set declared by a message's MSH.
type Delimiters struct {
	Field        byte
	Component    byte
	Repetition   byte
	Escape       byte
	SubComponent byte
}

// DefaultDelimiters is |^~\&.
var DefaultDelimiters = Delimiters{
	Field:        '|',
	Component:    '^',
	Repetition:   '~',
	Escape:       '\\',
	SubComponent: '&',
}

// EncodingCharacters returns the MSH-2 value for d.
func (d Delimiters) EncodingCharacters() string {
	return string([]byte{d.Component, d.Repetition, d.Escape, d.SubComponent})
}

// orDefault fills unset delimiters from DefaultDelimiters.
func (d Delimiters) orDefault() Delimiters {
	if d.Field == 0 {
		d.Field = DefaultDelimiters.Field
	}
	if d.Component == 0 {
		d.Component = DefaultDelimiters.Component
	}
	if d.Repetition == 0 {
		d.Repetition = DefaultDelimiters.Repetition
	}
	if d.Escape == 0 {
		d.Escape = DefaultDelimiters.Escape
	}
	if d.SubComponent == 0 {
		d.SubComponent = DefaultDelimiters.SubComponent
	}
	return d
}

// Segment is one delimited line of a message. Fields[i] holds HL7 field i+1;
// for MSH, Fields[0] is the field separator itself and Fields[1] the
// encoding characters.
type Segment struct {
	Type   string   `json:"type"`
	Fields []string `json:"fields"`
}

// Field returns HL7 field n (1-based), or "" when absent.
func (s Segment) Field(n int) string {
	i := n - 1
	if i < 0 || i >= len(s.Fields) {
		return ""
	}
	return s.Fields[i]
}

// Component returns component c (1-based) of the first repetition of field n.
func (s Segment) Component(n, c int, d Delimiters) string {
	d = d.orDefault()
	reps := splitField(s.Field(n), d.Repetition)
	if len(reps) == 0 {
		return ""
	}
	return at(splitField(reps[0], d.Component), c-1)
}

// Message is a parsed or assembled HL7v2 message. The package never
// mutates a Message after returning it.
type Message struct {
	Segments             []Segment  `json:"segments"`
	MessageType          string     `json:"messageType"`
	TriggerEvent         string     `json:"triggerEvent,omitempty"`
	MessageControlID     string     `json:"messageControlId"`
	ProcessingID         string     `json:"processingId,omitempty"`
	Version              string     `json:"version,omitempty"`
	SendingApplication   string     `json:"sendingApplication,omitempty"`
	SendingFacility      string     `json:"sendingFacility,omitempty"`
	ReceivingApplication string     `json:"receivingApplication,omitempty"`
	ReceivingFacility    string     `json:"receivingFacility,omitempty"`
	Timestamp            string     `json:"timestamp,omitempty"`
	Delimiters           Delimiters `json:"-"`
}

// Segment returns the first segment of the given type.
func (m *Message) Segment(segType string) (Segment, bool) {
	for _, seg := range m.Segments {
		if seg.Type == segType {
			return seg, true
		}
	}
	return Segment{}, false
}

// SegmentsOf returns all segments of the given type in source order.
func (m *Message) SegmentsOf(segType string) []Segment {
	var out []Segment
	for _, seg := range m.Segments {
		if seg.Type == segType {
			out = append(out, seg)
		}
	}
	return out
}

// splitField splits s on sep. An empty field has no parts.
func splitField(s string, sep byte) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, string(sep))
}

func at(parts []string, i int) string {
	if i < 0 || i >= len(parts) {
		return ""
	}
	return parts[i]
}
