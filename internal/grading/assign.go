package grading

import (
	"fmt"
	"math"
	"strings"
)

// Record is one student's raw marks in one subject. Treat as read-only.
type Record struct {
	StudentID   string  `json:"student_id"`
	SubjectCode string  `json:"subject_code,omitempty"`
	Credits     float64 `json:"credits"`
	// Course is set when the sheet carries per-row course columns.
	Course     *CourseConfig `json:"course,omitempty"`
	Marks      float64       `json:"marks"`
	ESE        ESEMarks      `json:"ese"`
	Attendance float64       `json:"attendance"`
	// Anonymous is set when the row had no student id; StudentID then holds a row key.
	Anonymous bool `json:"anonymous,omitempty"`
	// Issues collects problems found while reading the row.
	Issues []string `json:"issues,omitempty"`
}

// Result is the graded form of a Record. Grace may change Grade, Point and Graced once.
type Result struct {
	StudentID    string   `json:"student_id"`
	SubjectCode  string   `json:"subject_code"`
	Credits      float64  `json:"credits"`
	Marks        float64  `json:"marks"`
	InvalidMarks bool     `json:"invalid_marks,omitempty"`
	ESE          ESEMarks `json:"ese"`
	Attendance   float64  `json:"attendance"`
	Grade        Grade    `json:"grade"`
	Point        float64  `json:"grade_point"`
	BoundaryD    float64  `json:"boundary_d"`
	ESEThreshold float64  `json:"ese_threshold"`
	Graced       bool     `json:"graced"`
	Issues       []string `json:"issues,omitempty"`
}

// Batch is every record of one subject together with its course config.
type Batch struct {
	Subject string
	Config  CourseConfig
	Records []Record
}

// BatchStats are the headline numbers of a graded subject, before grace.
type BatchStats struct {
	Students     int           `json:"students"`
	RawAverage   float64       `json:"raw_average"`
	PassPercent  float64       `json:"pass_percent"`
	Defaulters   int           `json:"attendance_defaulters"`
	Absent       int           `json:"absent"`
	ESEFailed    int           `json:"ese_failed"`
	Distribution map[Grade]int `json:"distribution"`
}

type BatchResult struct {
	Subject    string       `json:"subject"`
	Config     CourseConfig `json:"config"`
	Protocol   Protocol     `json:"protocol"`
	Boundaries Boundaries   `json:"boundaries"`
	Results    []Result     `json:"results"`
	Stats      BatchStats   `json:"stats"`
	Notes      []string     `json:"notes,omitempty"`
}

// GradeBatch applies the hurdles and the boundary lookup to one subject batch.
// A bad row degrades to a hurdle failure; only configuration problems reject the batch.
func GradeBatch(b Batch, pol Policy) (BatchResult, error) {
	cfg := b.Config
	if err := cfg.Validate(b.Subject); err != nil {
		return BatchResult{}, err
	}
	for _, r := range b.Records {
		if math.IsNaN(r.Credits) || r.Credits < 0 {
			return BatchResult{}, &ConfigError{Subject: b.Subject, Reason: fmt.Sprintf("negative credits for student %s", r.StudentID)}
		}
	}
	if pol.Protocol == "" {
		pol.Protocol = Exclusive
	}

	thr := cfg.ESEThreshold()
	out := BatchResult{
		Subject:  b.Subject,
		Config:   cfg,
		Protocol: pol.Protocol,
		Results:  make([]Result, len(b.Records)),
		Stats:    BatchStats{Students: len(b.Records), Distribution: map[Grade]int{}},
	}

	var pool []float64
	var eligibleSum float64
	var eligible int
	for i, r := range b.Records {
		res := Result{
			StudentID:    r.StudentID,
			SubjectCode:  b.Subject,
			Credits:      r.Credits,
			Marks:        r.Marks,
			ESE:          r.ESE,
			Attendance:   r.Attendance,
			ESEThreshold: thr,
			Issues:       append([]string(nil), r.Issues...),
		}

		attOK := inRange(r.Attendance, 0, 100)
		if !attOK {
			res.Attendance = 0
			res.Issues = append(res.Issues, fmt.Sprintf("attendance %v outside 0..100", r.Attendance))
		}
		marksOK := inRange(r.Marks, 0, cfg.TotalMax)
		switch {
		case r.Anonymous || strings.TrimSpace(r.StudentID) == "":
			marksOK = false
			res.Marks = 0
			res.InvalidMarks = true
			res.Issues = append(res.Issues, "missing student id, graded as invalid")
		case !marksOK:
			res.Marks = 0
			res.InvalidMarks = true
			res.Issues = append(res.Issues, fmt.Sprintf("marks %v outside 0..%v", r.Marks, cfg.TotalMax))
		}
		switch {
		case r.ESE.Kind == ESENumeric && !inRange(r.ESE.Value, 0, cfg.ESEMax):
			res.ESE = ESEMarks{Kind: ESEInvalid, Raw: r.ESE.String()}
			res.Issues = append(res.Issues, fmt.Sprintf("ese_marks %v outside 0..%v", r.ESE.Value, cfg.ESEMax))
		case r.ESE.Kind == ESEInvalid:
			res.Issues = append(res.Issues, fmt.Sprintf("ese_marks %q is neither a number nor %s", r.ESE.Raw, AbsentMark))
		}
		eseNum := res.ESE.Numeric()
		present := attOK && r.Attendance >= MinAttendance

		switch {
		case !present:
			res.Grade = GradeI
			out.Stats.Defaulters++
		case res.ESE.Kind == ESEAbsent:
			res.Grade = GradeZ
			out.Stats.Absent++
		case eseNum < thr:
			res.Grade = GradeF
			out.Stats.ESEFailed++
		case !marksOK:
			res.Grade = GradeF
		}

		if present && marksOK {
			eligibleSum += r.Marks
			eligible++
			if pol.Protocol == Inclusive || eseNum >= thr {
				pool = append(pool, r.Marks)
			}
		}
		out.Results[i] = res
	}

	out.Boundaries = ComputeBoundaries(pool, cfg, pol.Moderation)
	d := out.Boundaries.D()

	passed := 0
	for i := range out.Results {
		res := &out.Results[i]
		if res.Grade == "" {
			res.Grade = out.Boundaries.Lookup(res.Marks)
		}
		res.Point = res.Grade.Point()
		res.BoundaryD = d
		out.Stats.Distribution[res.Grade]++
		if !res.Grade.Failing() {
			passed++
		}
	}
	if eligible > 0 {
		out.Stats.RawAverage = eligibleSum / float64(eligible)
	}
	if n := len(out.Results); n > 0 {
		out.Stats.PassPercent = float64(passed) / float64(n) * 100
	}
	out.Notes = batchNotes(out.Stats, pol.Protocol, thr)
	return out, nil
}

func batchNotes(st BatchStats, p Protocol, thr float64) []string {
	var notes []string
	if st.Defaulters > 0 {
		notes = append(notes, fmt.Sprintf("%d students below %.0f%% attendance, grade I assigned", st.Defaulters, MinAttendance))
	}
	if st.Absent > 0 {
		notes = append(notes, fmt.Sprintf("%d students marked %s in ESE, grade Z assigned", st.Absent, AbsentMark))
	}
	if st.ESEFailed > 0 {
		notes = append(notes, fmt.Sprintf("%d students failed ESE (scored < %.1f), grade F assigned", st.ESEFailed, thr))
	}
	switch p {
	case Inclusive:
		notes = append(notes, "inclusive protocol: statistics include ESE failures")
	default:
		notes = append(notes, fmt.Sprintf("exclusive protocol: statistics use only students with ESE >= %.1f", thr))
	}
	return notes
}
