package transform

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// pinOffset is where the PIN begins on PM records.
const pinOffset = 6

const pinFill = "0000"

// pinControlMinLength is the longest PM1/PM3 line left alone.
const pinControlMinLength = 7

// PinControl repairs PM1 and PM3 records whose PIN slot starts with a
// control character (C0, DEL or C1) by inserting a zero-filled PIN in
// front of it.
type PinControl struct{}

func (PinControl) TransformLine(line string, _ int) (string, bool) {
	if len(line) <= pinControlMinLength {
		return line, true
	}
	if r, _ := utf8.DecodeRuneInString(line[pinOffset:]); r != utf8.RuneError && unicode.IsControl(r) {
		return line[:pinOffset] + pinFill + line[pinOffset:], true
	}
	return line, true
}

func (PinControl) RequiresTransformation() bool { return true }
func (PinControl) Initialize() error            { return nil }
func (PinControl) Cleanup()                     {}

// PinDigit repairs PM2, PM5 and PM6 records whose PIN slot does not start
// with a digit by replacing the four PIN bytes with zeros. Lines too short
// to hold the whole PIN end with the zero fill.
type PinDigit struct{}

func (PinDigit) TransformLine(line string, _ int) (string, bool) {
	if len(line) <= pinOffset {
		return line, true
	}
	if c := line[pinOffset]; c >= '0' && c <= '9' {
		return line, true
	}

	out := line[:pinOffset] + pinFill
	if end := pinOffset + len(pinFill); len(line) > end {
		out += line[end:]
	}
	return out, true
}

func (PinDigit) RequiresTransformation() bool { return true }
func (PinDigit) Initialize() error            { return nil }
func (PinDigit) Cleanup()                     {}

// sentinelDateField is the zero-based index of the fourth IM2 field, a date
// that may carry the 0000/00/00 placeholder.
const sentinelDateField = 3

const sentinelDate = "0000/00/00"

// SentinelDate trims every tab-separated field of IM2 records and blanks the
// placeholder date so it loads as NULL.
type SentinelDate struct{}

func (SentinelDate) TransformLine(line string, _ int) (string, bool) {
	fields := strings.Split(line, "\t")
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	if len(fields) > sentinelDateField && fields[sentinelDateField] == sentinelDate {
		fields[sentinelDateField] = ""
	}
	return strings.Join(fields, "\t"), true
}

func (SentinelDate) RequiresTransformation() bool { return true }
func (SentinelDate) Initialize() error            { return nil }
func (SentinelDate) Cleanup()                     {}
