package hl7

import (
	"math/rand"
	"strconv"
	"strings"
	"time"
)

const (
	timestampLayout = "20060102150405"
	defaultVersion  = "2.5"
	base36Alphabet  = "0123456789abcdefghijklmnopqrstuvwxyz"
)

var now = time.Now

// FormatTimestamp formats t as an HL7 DTM (YYYYMMDDHHMMSS).
func FormatTimestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

// NewControlID returns <epoch-ms><9 base36 chars>. Uniqueness is only
// probabilistic; receivers correlating ACKs should not rely on it across
// high-volume senders.
func NewControlID() string {
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = base36Alphabet[rand.Intn(len(base36Alphabet))]
	}
	return strconv.FormatInt(now().UnixMilli(), 10) + string(suffix)
}

// GenerateMessage serializes msg. MSH is always rebuilt from the header
// fields; other segments are joined as-is, so field values must already be
// escaped (see Escape).
func GenerateMessage(msg *Message) string {
	d := msg.Delimiters.orDefault()
	sep := string(d.Field)

	timestamp := msg.Timestamp
	if timestamp == "" {
		timestamp = FormatTimestamp(now())
	}

	controlID := msg.MessageControlID
	if controlID == "" {
		controlID = NewControlID()
	}

	messageType := msg.MessageType
	if msg.TriggerEvent != "" {
		messageType += string(d.Component) + msg.TriggerEvent
	}

	version := msg.Version
	if version == "" {
		version = defaultVersion
	}

	msh := strings.Join([]string{
		"MSH" + sep + d.EncodingCharacters(),
		msg.SendingApplication,
		msg.SendingFacility,
		msg.ReceivingApplication,
		msg.ReceivingFacility,
		timestamp,
		"",
		messageType,
		controlID,
		"P",
		version,
	}, sep)

	lines := []string{msh}
	for _, seg := range msg.Segments {
		if seg.Type == "MSH" {
			continue
		}
		lines = append(lines, strings.Join(append([]string{seg.Type}, seg.Fields...), sep))
	}

	return strings.Join(lines, "\r\n")
}
