package hl7

import (
	"strconv"
	"strings"
)

// CodedElement is a CE/CWE value: identifier^text^codingSystem.
type CodedElement struct {
	Identifier   string `json:"identifier,omitempty"`
	Text         string `json:"text,omitempty"`
	CodingSystem string `json:"codingSystem,omitempty"`
}

// Provider is an XCN value reduced to id^familyName^givenName.
type Provider struct {
	ID         string `json:"id,omitempty"`
	FamilyName string `json:"familyName,omitempty"`
	GivenName  string `json:"givenName,omitempty"`
}

// fieldReader reads positional fields of one segment. pos is the 0-based
// index into Segment.Fields; out of range reads are empty.
type fieldReader struct {
	fields []string
	d      Delimiters
}

func newFieldReader(seg Segment, d Delimiters) fieldReader {
	return fieldReader{fields: seg.Fields, d: d.orDefault()}
}

func (r fieldReader) value(pos int) string {
	return at(r.fields, pos)
}

func (r fieldReader) repeats(pos int) []string {
	return splitField(r.value(pos), r.d.Repetition)
}

func (r fieldReader) components(pos int) []string {
	return splitField(at(r.repeats(pos), 0), r.d.Component)
}

func (r fieldReader) splitComponents(raw string) []string {
	return splitField(raw, r.d.Component)
}

func (r fieldReader) setID(pos int) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.value(pos)))
	if err != nil {
		return 0
	}
	return n
}

func (r fieldReader) coded(pos int) *CodedElement {
	c := r.components(pos)
	if len(c) == 0 {
		return nil
	}
	return &CodedElement{Identifier: at(c, 0), Text: at(c, 1), CodingSystem: at(c, 2)}
}

func (r fieldReader) provider(pos int) *Provider {
	c := r.components(pos)
	if len(c) == 0 {
		return nil
	}
	return &Provider{ID: at(c, 0), FamilyName: at(c, 1), GivenName: at(c, 2)}
}

// fieldWriter builds a full positional field array.
type fieldWriter struct {
	fields []string
	d      Delimiters
}

func newFieldWriter(size int, d Delimiters) *fieldWriter {
	return &fieldWriter{fields: make([]string, size), d: d.orDefault()}
}

func (w *fieldWriter) set(pos int, v string) {
	w.fields[pos] = v
}

func (w *fieldWriter) setID(pos, id int) {
	if id > 0 {
		w.fields[pos] = strconv.Itoa(id)
	}
}

func (w *fieldWriter) setRepeats(pos int, reps []string) {
	w.fields[pos] = strings.Join(reps, string(w.d.Repetition))
}

func (w *fieldWriter) joinComponents(parts ...string) string {
	end := len(parts)
	for end > 0 && parts[end-1] == "" {
		end--
	}
	return strings.Join(parts[:end], string(w.d.Component))
}

func (w *fieldWriter) setCoded(pos int, c *CodedElement) {
	if c != nil {
		w.fields[pos] = w.joinComponents(c.Identifier, c.Text, c.CodingSystem)
	}
}

func (w *fieldWriter) setProvider(pos int, p *Provider) {
	if p != nil {
		w.fields[pos] = w.joinComponents(p.ID, p.FamilyName, p.GivenName)
	}
}

func (w *fieldWriter) segment(segType string) Segment {
	return Segment{Type: segType, Fields: w.fields}
}
