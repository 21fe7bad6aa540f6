package grading

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ESEKind tags how an ESE cell was resolved at ingestion.
type ESEKind int

const (
	ESENumeric ESEKind = iota
	ESEAbsent
	ESEInvalid
)

func (k ESEKind) String() string {
	switch k {
	case ESENumeric:
		return "numeric"
	case ESEAbsent:
		return "absent"
	default:
		return "invalid"
	}
}

func (k ESEKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ESEKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "numeric":
		*k = ESENumeric
	case "absent":
		*k = ESEAbsent
	case "invalid":
		*k = ESEInvalid
	default:
		return fmt.Errorf("unknown ese kind %q", b)
	}
	return nil
}

// AbsentMark is the sheet sentinel for a student who missed the ESE.
const AbsentMark = "AB"

// ESEMarks is an end-semester score that may be a number, the absentee sentinel, or garbage.
type ESEMarks struct {
	Kind  ESEKind `json:"kind"`
	Value float64 `json:"value,omitempty"`
	Raw   string  `json:"raw,omitempty"`
}

func NumericESE(v float64) ESEMarks { return ESEMarks{Kind: ESENumeric, Value: v} }
func AbsentESE() ESEMarks           { return ESEMarks{Kind: ESEAbsent, Raw: AbsentMark} }

// ParseESE resolves a raw cell once. Anything that is neither a number nor "AB" is invalid.
func ParseESE(raw string) ESEMarks {
	s := strings.TrimSpace(raw)
	if strings.EqualFold(s, AbsentMark) {
		return ESEMarks{Kind: ESEAbsent, Raw: s}
	}
	if v, ok := parseFloatLoose(s); ok {
		return ESEMarks{Kind: ESENumeric, Value: v, Raw: s}
	}
	return ESEMarks{Kind: ESEInvalid, Raw: s}
}

// Numeric is the value used for threshold comparisons; absent and invalid count as zero.
func (e ESEMarks) Numeric() float64 {
	if e.Kind != ESENumeric {
		return 0
	}
	return e.Value
}

func (e ESEMarks) String() string {
	switch e.Kind {
	case ESENumeric:
		return strconv.FormatFloat(e.Value, 'f', -1, 64)
	case ESEAbsent:
		return AbsentMark
	default:
		return e.Raw
	}
}

// ParseScore reads a marks or attendance cell. Unreadable cells come back as NaN.
func ParseScore(raw string) float64 {
	if v, ok := parseFloatLoose(raw); ok {
		return v
	}
	return math.NaN()
}

// parseFloatLoose accepts "42", " 42.5 " and "42 marks".
func parseFloatLoose(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return v, true
	}
	if sp := strings.Fields(s); len(sp) > 0 {
		if v, err := strconv.ParseFloat(sp[0], 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v, true
		}
	}
	return 0, false
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}
