package hl7

import "strings"

// Escape replaces delimiter characters in a field value with HL7 escape
// sequences (\F\ \S\ \R\ \E\ \T\). GenerateMessage does not call it; callers
// that build segments from free text must.
func Escape(value string, d Delimiters) string {
	d = d.orDefault()
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		switch c := value[i]; c {
		case d.Escape:
			b.WriteString(seq(d, 'E'))
		case d.Field:
			b.WriteString(seq(d, 'F'))
		case d.Component:
			b.WriteString(seq(d, 'S'))
		case d.Repetition:
			b.WriteString(seq(d, 'R'))
		case d.SubComponent:
			b.WriteString(seq(d, 'T'))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Unescape reverses Escape. Unknown sequences are left untouched.
func Unescape(value string, d Delimiters) string {
	d = d.orDefault()
	if strings.IndexByte(value, d.Escape) < 0 {
		return value
	}

	var b strings.Builder
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c != d.Escape || i+2 >= len(value) || value[i+2] != d.Escape {
			b.WriteByte(c)
			continue
		}
		var r byte
		switch value[i+1] {
		case 'F':
			r = d.Field
		case 'S':
			r = d.Component
		case 'R':
			r = d.Repetition
		case 'E':
			r = d.Escape
		case 'T':
			r = d.SubComponent
		default:
			b.WriteByte(c)
			continue
		}
		b.WriteByte(r)
		i += 2
	}
	return b.String()
}

func seq(d Delimiters, code byte) string {
	return string([]byte{d.Escape, code, d.Escape})
}
