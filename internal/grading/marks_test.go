package grading

import (
	"errors"
	"math"
	"testing"
)

func TestParseESE(t *testing.T) {
	cases := []struct {
		raw  string
		kind ESEKind
		val  float64
	}{
		{"40", ESENumeric, 40},
		{" 12.5 ", ESENumeric, 12.5},
		{"18 marks", ESENumeric, 18},
		{"AB", ESEAbsent, 0},
		{"ab", ESEAbsent, 0},
		{" aB", ESEAbsent, 0},
		{"", ESEInvalid, 0},
		{"absent", ESEInvalid, 0},
		{"NaN", ESEInvalid, 0},
	}
	for _, c := range cases {
		got := ParseESE(c.raw)
		if got.Kind != c.kind || got.Numeric() != c.val {
			t.Errorf("ParseESE(%q) = %v/%v, want %v/%v", c.raw, got.Kind, got.Numeric(), c.kind, c.val)
		}
	}
}

func TestParseScore(t *testing.T) {
	if v := ParseScore("82"); v != 82 {
		t.Fatalf("got %v", v)
	}
	if v := ParseScore("n/a"); !math.IsNaN(v) {
		t.Fatalf("want NaN, got %v", v)
	}
}

func TestCourseConfigDerived(t *testing.T) {
	th := CourseConfig{TotalMax: 150, ESEMax: 90, Type: Theory}
	if th.PassMark() != 60 || th.ESEThreshold() != 18 || th.FloorMark() != 45 {
		t.Fatalf("theory derived values: P=%v ESE=%v floor=%v", th.PassMark(), th.ESEThreshold(), th.FloorMark())
	}
	pr := CourseConfig{TotalMax: 50, ESEMax: 25, Type: Practical}
	if pr.PassMark() != 25 {
		t.Fatalf("practical pass mark = %v", pr.PassMark())
	}
	if DefaultESEMax(100) != 60 {
		t.Fatalf("default ESE max = %v", DefaultESEMax(100))
	}
}

func TestCourseConfigValidate(t *testing.T) {
	ok := CourseConfig{TotalMax: 100, ESEMax: 100, Type: Practical}
	if err := ok.Validate("X"); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	bad := []CourseConfig{
		{TotalMax: 0, ESEMax: 10, Type: Theory},
		{TotalMax: 100, ESEMax: 0, Type: Theory},
		{TotalMax: 100, ESEMax: 120, Type: Theory},
		{TotalMax: 100, ESEMax: 60, Type: "Seminar"},
	}
	for _, c := range bad {
		err := c.Validate("X")
		if !errors.Is(err, ErrConfiguration) {
			t.Errorf("%+v: want configuration error, got %v", c, err)
		}
	}
}

func TestParseProtocolAndModeration(t *testing.T) {
	for in, want := range map[string]Protocol{
		"":                       Exclusive,
		"Exclusive":              Exclusive,
		"Protocol A (Strict)":    Exclusive,
		"Protocol B (Inclusive)": Inclusive,
		"inclusive":              Inclusive,
	} {
		got, err := ParseProtocol(in)
		if err != nil || got != want {
			t.Errorf("ParseProtocol(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseProtocol("curve"); err == nil {
		t.Error("expected error for unknown protocol")
	}
	if m, _ := ParseModeration("redistribute"); m != ModerationRedistribute {
		t.Errorf("got %v", m)
	}
	if m, _ := ParseModeration(""); m != ModerationCapOnly {
		t.Errorf("got %v", m)
	}
	if ct, _ := ParseCourseType(" PRACTICAL "); ct != Practical {
		t.Errorf("got %v", ct)
	}
}
