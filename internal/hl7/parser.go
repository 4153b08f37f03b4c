package hl7

import (
	"bytes"
	"regexp"
	"strings"
)

const (
	// MLLP frame characters
	StartBlock     = 0x0B
	EndBlock       = 0x1C
	CarriageReturn = 0x0D
)

var lineBreak = regexp.MustCompile(`\r\n|\r|\n`)

// ParseMessage parses raw HL7 text into a Message. It never fails: missing
// pieces show up as empty values and ValidateMessage reports what a caller
// should reject.
func ParseMessage(data []byte) *Message {
	data = UnwrapMLLP(data)

	msg := &Message{Delimiters: DefaultDelimiters}
	delims := DefaultDelimiters
	haveMSH := false

	for _, line := range lineBreak.Split(string(data), -1) {
		if strings.TrimSpace(line) == "" {
			continue
		}

		if isMSH(line) {
			if !haveMSH {
				delims = delimitersFromMSH(line)
				haveMSH = true
			}
			msg.Segments = append(msg.Segments, parseMSH(line))
			continue
		}

		msg.Segments = append(msg.Segments, parseSegment(line, delims))
	}

	msg.Delimiters = delims
	if msh, ok := msg.Segment("MSH"); ok {
		msg.SendingApplication = msh.Field(3)
		msg.SendingFacility = msh.Field(4)
		msg.ReceivingApplication = msh.Field(5)
		msg.ReceivingFacility = msh.Field(6)
		msg.Timestamp = msh.Field(7)
		msg.MessageType = msh.Component(9, 1, delims)
		msg.TriggerEvent = msh.Component(9, 2, delims)
		msg.MessageControlID = msh.Field(10)
		msg.ProcessingID = msh.Field(11)
		msg.Version = msh.Field(12)
	}

	return msg
}

func isMSH(line string) bool {
	return len(line) >= 4 && line[:3] == "MSH"
}

// delimitersFromMSH reads the field separator at index 3 and the encoding
// characters at indices 4-7. Anything missing keeps its default.
func delimitersFromMSH(line string) Delimiters {
	d := Delimiters{Field: line[3]}
	enc := []*byte{&d.Component, &d.Repetition, &d.Escape, &d.SubComponent}
	for i, p := range enc {
		pos := 4 + i
		if pos >= len(line) || line[pos] == d.Field {
			break
		}
		*p = line[pos]
	}
	return d.orDefault()
}

func parseMSH(line string) Segment {
	sep := line[3]
	fields := append([]string{string(sep)}, splitOn(line[4:], sep)...)
	return Segment{Type: "MSH", Fields: fields}
}

func parseSegment(line string, d Delimiters) Segment {
	parts := splitOn(line, d.Field)
	return Segment{Type: parts[0], Fields: parts[1:]}
}

func splitOn(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

// ValidationResult lists every check a message failed.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Validation messages, in check order.
const (
	ErrTextMissingMSH       = "MSH segmenti bulunamadı"
	ErrTextMissingControlID = "mesaj kontrol ID (MSH-10) boş"
	ErrTextMissingType      = "mesaj tipi (MSH-9) boş"
)

// ValidateMessage runs the structural checks and accumulates failures.
func ValidateMessage(msg *Message) ValidationResult {
	errs := []string{}

	if _, ok := msg.Segment("MSH"); !ok {
		errs = append(errs, ErrTextMissingMSH)
	}
	if msg.MessageControlID == "" {
		errs = append(errs, ErrTextMissingControlID)
	}
	if msg.MessageType == "" {
		errs = append(errs, ErrTextMissingType)
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// WrapMLLP adds MLLP wrapper to message
func WrapMLLP(message []byte) []byte {
	if len(message) == 0 {
		return message
	}

	// Check if already wrapped
	if message[0] == StartBlock {
		return message
	}

	return append([]byte{StartBlock}, append(message, EndBlock, CarriageReturn)...)
}

// UnwrapMLLP removes MLLP wrapper from message
func UnwrapMLLP(message []byte) []byte {
	message = bytes.TrimPrefix(message, []byte{StartBlock})
	message = bytes.TrimSuffix(message, []byte{EndBlock, CarriageReturn})
	return bytes.TrimSuffix(message, []byte{EndBlock})
}
