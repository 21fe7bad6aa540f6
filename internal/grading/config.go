package grading

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

type CourseType string

const (
	Theory    CourseType = "Theory"
	Practical CourseType = "Practical"
)

// ParseCourseType accepts "theory"/"practical" in any case.
func ParseCourseType(s string) (CourseType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "theory", "t":
		return Theory, nil
	case "practical", "p", "lab":
		return Practical, nil
	}
	return "", fmt.Errorf("unknown course type %q", s)
}

// Protocol selects which records feed the mean/sigma pool.
type Protocol string

const (
	// Exclusive keeps ESE failures out of the statistics pool.
	Exclusive Protocol = "exclusive"
	// Inclusive only removes attendance defaulters; ESE failures zero-inflate the pool.
	Inclusive Protocol = "inclusive"
)

func ParseProtocol(s string) (Protocol, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case v == "", strings.HasPrefix(v, "exclusive"), strings.HasPrefix(v, "strict"), v == "a", strings.HasPrefix(v, "protocol a"):
		return Exclusive, nil
	case strings.HasPrefix(v, "inclusive"), v == "b", strings.HasPrefix(v, "protocol b"):
		return Inclusive, nil
	}
	return "", fmt.Errorf("unknown protocol %q", s)
}

// Moderation picks what happens to C+ and C when D is capped at the pass mark.
type Moderation string

const (
	// ModerationCapOnly caps D and leaves the rest of the curve alone.
	ModerationCapOnly Moderation = "cap"
	// ModerationRedistribute caps D and spaces C+ and C in thirds between mean and pass mark.
	ModerationRedistribute Moderation = "redistribute"
)

func ParseModeration(s string) (Moderation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cap", "cap-only", "caponly":
		return ModerationCapOnly, nil
	case "redistribute", "linear":
		return ModerationRedistribute, nil
	}
	return "", fmt.Errorf("unknown moderation variant %q", s)
}

// Policy holds the per-run parameters. Everything else about the rules is fixed.
type Policy struct {
	Protocol   Protocol   `json:"protocol" yaml:"protocol"`
	Moderation Moderation `json:"moderation" yaml:"moderation"`
}

func DefaultPolicy() Policy {
	return Policy{Protocol: Exclusive, Moderation: ModerationCapOnly}
}

// Fixed rule constants.
const (
	MinAttendance   = 75.0
	MinPoolSize     = 30
	ESEHurdleRatio  = 0.20
	FloorRatio      = 0.30
	GraceWindow     = 3.0
	MaxGraceSubject = 2

	// DefaultESERatio is the share of total marks assumed for the ESE when a sheet does not say.
	DefaultESERatio = 0.60
)

// CourseConfig is fixed for a subject batch before grading starts.
type CourseConfig struct {
	TotalMax float64    `json:"total_max" yaml:"total_max" validate:"gt=0"`
	ESEMax   float64    `json:"ese_max" yaml:"ese_max" validate:"gt=0,ltefield=TotalMax"`
	Type     CourseType `json:"course_type" yaml:"course_type" validate:"oneof=Theory Practical"`
}

// DefaultESEMax is the ESE maximum used when none is given.
func DefaultESEMax(totalMax float64) float64 {
	return math.Round(DefaultESERatio * totalMax)
}

// PassMark is the course pass mark P.
func (c CourseConfig) PassMark() float64 {
	if c.Type == Practical {
		return 0.50 * c.TotalMax
	}
	return 0.40 * c.TotalMax
}

// ESEThreshold is the minimum ESE score that clears the hurdle.
func (c CourseConfig) ESEThreshold() float64 { return ESEHurdleRatio * c.ESEMax }

// FloorMark is the lowest value the D boundary may take under relative grading.
func (c CourseConfig) FloorMark() float64 { return FloorRatio * c.TotalMax }

var configValidate = validator.New()

// ErrConfiguration marks batch-level configuration problems.
var ErrConfiguration = errors.New("configuration error")

// ConfigError rejects a whole subject batch before grading.
type ConfigError struct {
	Subject string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Subject == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error in %s: %s", e.Subject, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// Validate checks the course config for a subject.
func (c CourseConfig) Validate(subject string) error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ConfigError{Subject: subject, Reason: describeField(verrs[0])}
		}
		return &ConfigError{Subject: subject, Reason: err.Error()}
	}
	return nil
}

func describeField(fe validator.FieldError) string {
	switch fe.Field() {
	case "TotalMax":
		return "total max marks must be positive"
	case "ESEMax":
		if fe.Tag() == "ltefield" {
			return "ESE max marks exceed total max marks"
		}
		return "ESE max marks must be positive"
	case "Type":
		return fmt.Sprintf("unknown course type %q", fe.Value())
	}
	return fe.Error()
}
