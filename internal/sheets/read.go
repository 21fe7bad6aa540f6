package sheets

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mind-engage/mindengage-results/internal/grading"
)

// ErrMissingColumns is returned when a sheet lacks a required column. The whole sheet is rejected.
var ErrMissingColumns = errors.New("missing required columns")

// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX.
var ErrUnsupportedFormat = errors.New("unsupported sheet format")

type Layout string

const (
	// SingleSubject sheets hold one course; its config comes from the caller.
	SingleSubject Layout = "single"
	// Semester sheets hold one row per student per subject.
	Semester Layout = "semester"
)

// Options fill in what a single-subject sheet does not say about itself.
type Options struct {
	Subject string
	Credits float64
	Course  *grading.CourseConfig
}

type Sheet struct {
	Layout  Layout
	Records []grading.Record
}

var aliases = map[string]string{
	"student_id":    "id",
	"student":       "id",
	"roll_no":       "id",
	"ese":           "ese_marks",
	"subject":       "subject_code",
	"type":          "course_type",
	"total_marks":   "total_max",
	"ese_max_marks": "ese_max",
}

var (
	singleRequired   = []string{"id", "marks", "attendance", "ese_marks"}
	semesterRequired = []string{"id", "subject_code", "credits", "marks", "attendance", "ese_marks"}
)

// Read picks the parser from the file extension.
func Read(name string, r io.Reader, opts Options) (Sheet, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", "":
		return ReadCSV(r, opts)
	case ".xlsx":
		return ReadXLSX(r, opts)
	}
	return Sheet{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
}

// ReadCSV parses a marks sheet. Header names are trimmed and case-folded.
func ReadCSV(r io.Reader, opts Options) (Sheet, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	all, err := cr.ReadAll()
	if err != nil {
		return Sheet{}, fmt.Errorf("read csv: %w", err)
	}
	if len(all) == 0 {
		return Sheet{}, fmt.Errorf("%w: empty sheet", ErrMissingColumns)
	}
	return parseRows(all[0], all[1:], opts)
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	h = strings.ReplaceAll(h, " ", "_")
	if a, ok := aliases[h]; ok {
		return a
	}
	return h
}

func parseRows(header []string, rows [][]string, opts Options) (Sheet, error) {
	idx := map[string]int{}
	for i, h := range header {
		k := normalizeHeader(h)
		if _, dup := idx[k]; !dup {
			idx[k] = i
		}
	}

	sh := Sheet{Layout: SingleSubject}
	required := singleRequired
	if _, ok := idx["subject_code"]; ok {
		sh.Layout = Semester
		required = semesterRequired
	}
	var missing []string
	for _, k := range required {
		if _, ok := idx[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Sheet{}, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	cell := func(row []string, k string) (string, bool) {
		i, ok := idx[k]
		if !ok || i >= len(row) {
			return "", false
		}
		return strings.TrimSpace(row[i]), true
	}

	for n, row := range rows {
		if blank(row) {
			continue
		}
		line := n + 2
		id, _ := cell(row, "id")
		marks, _ := cell(row, "marks")
		att, _ := cell(row, "attendance")
		ese, _ := cell(row, "ese_marks")
		rec := grading.Record{
			StudentID:   id,
			SubjectCode: opts.Subject,
			Credits:     opts.Credits,
			Course:      opts.Course,
			Marks:       grading.ParseScore(marks),
			ESE:         grading.ParseESE(ese),
			Attendance:  grading.ParseScore(att),
		}
		if id == "" {
			// Anonymous rows get their own key so they never share a summary or grace.
			rec.StudentID = fmt.Sprintf("row-%d", line)
			rec.Anonymous = true
			rec.Issues = append(rec.Issues, fmt.Sprintf("row %d: missing student id", line))
		}
		if sh.Layout == Semester {
			rec.SubjectCode, _ = cell(row, "subject_code")
			cr, _ := cell(row, "credits")
			rec.Credits = grading.ParseScore(cr)
			if math.IsNaN(rec.Credits) {
				rec.Credits = 0
				rec.Issues = append(rec.Issues, fmt.Sprintf("row %d: credits %q unreadable, counted as 0", line, cr))
			}
			course, issue := rowCourse(cell, row)
			if issue != "" {
				rec.Issues = append(rec.Issues, fmt.Sprintf("row %d: %s", line, issue))
			}
			if course != nil {
				rec.Course = course
			}
		}
		sh.Records = append(sh.Records, rec)
	}
	return sh, nil
}

// rowCourse reads the optional per-row course columns. It returns nil when the row does not
// carry a usable course_type and total_max.
func rowCourse(cell func([]string, string) (string, bool), row []string) (*grading.CourseConfig, string) {
	ct, okType := cell(row, "course_type")
	tm, okMax := cell(row, "total_max")
	if !okType || !okMax || (ct == "" && tm == "") {
		return nil, ""
	}
	typ, err := grading.ParseCourseType(ct)
	if err != nil {
		return nil, err.Error()
	}
	total := grading.ParseScore(tm)
	if math.IsNaN(total) {
		return nil, fmt.Sprintf("total_max %q unreadable", tm)
	}
	cfg := grading.CourseConfig{TotalMax: total, Type: typ, ESEMax: grading.DefaultESEMax(total)}
	if em, ok := cell(row, "ese_max"); ok && em != "" {
		v := grading.ParseScore(em)
		if math.IsNaN(v) {
			return nil, fmt.Sprintf("ese_max %q unreadable", em)
		}
		cfg.ESEMax = v
	}
	return &cfg, ""
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
