package sheets

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/mind-engage/mindengage-results/internal/grading"
)

// Table is one exported sheet.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func fixed2(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

// MasterTable pivots a semester into one row per student: a grade column per subject in
// batch order, then earned credits, SGPA, failed subjects and graced count.
func MasterTable(sem grading.Semester) Table {
	subjects := make([]string, 0, len(sem.Batches))
	col := map[string]int{}
	for _, b := range sem.Batches {
		col[b.Subject] = len(subjects)
		subjects = append(subjects, b.Subject)
	}

	grades := map[string][]string{}
	for _, r := range sem.Results {
		row, ok := grades[r.StudentID]
		if !ok {
			row = make([]string, len(subjects))
			grades[r.StudentID] = row
		}
		if i, ok := col[r.SubjectCode]; ok {
			row[i] = string(r.Grade)
		}
	}

	t := Table{Name: "Master", Header: append([]string{"student_id"}, subjects...)}
	t.Header = append(t.Header, "earned_credits", "sgpa", "failed_subjects", "graced_count")
	for _, s := range sem.Summaries {
		failed := "None"
		if len(s.FailedSubjects) > 0 {
			failed = strings.Join(s.FailedSubjects, ", ")
		}
		row := append([]string{s.StudentID}, grades[s.StudentID]...)
		row = append(row, num(s.EarnedCredits), fixed2(s.SGPA), failed, strconv.Itoa(s.GracedCount))
		t.Rows = append(t.Rows, row)
	}
	return t
}

// DetailTable lists every graded record in input order.
func DetailTable(sem grading.Semester) Table {
	t := Table{
		Name: "Results",
		Header: []string{
			"student_id", "subject_code", "credits", "marks", "ese_marks", "attendance",
			"final_grade", "grade_point", "boundary_d", "min_ese_required", "is_graced", "issues",
		},
	}
	for _, r := range sem.Results {
		marks := num(r.Marks)
		if r.InvalidMarks {
			marks = ""
		}
		t.Rows = append(t.Rows, []string{
			r.StudentID, r.SubjectCode, num(r.Credits), marks, r.ESE.String(), num(r.Attendance),
			string(r.Grade), num(r.Point), fixed2(r.BoundaryD), fixed2(r.ESEThreshold),
			strconv.FormatBool(r.Graced), strings.Join(r.Issues, "; "),
		})
	}
	return t
}

// BoundaryTable has one row per graded subject with its cutoffs and batch numbers.
func BoundaryTable(sem grading.Semester) Table {
	t := Table{Name: "Boundaries", Header: []string{"subject_code", "method", "pool_size", "mean", "sigma"}}
	for _, g := range grading.BoundaryGrades() {
		t.Header = append(t.Header, string(g))
	}
	t.Header = append(t.Header, "students", "raw_average", "pass_percent", "notes")
	for _, b := range sem.Batches {
		row := []string{b.Subject, string(b.Boundaries.Method), strconv.Itoa(b.Boundaries.PoolSize),
			fixed2(b.Boundaries.Mean), fixed2(b.Boundaries.Sigma)}
		for _, g := range grading.BoundaryGrades() {
			row = append(row, fixed2(b.Boundaries.Min(g)))
		}
		notes := append(append([]string{}, b.Boundaries.Notes...), b.Notes...)
		row = append(row, strconv.Itoa(b.Stats.Students), fixed2(b.Stats.RawAverage),
			fixed2(b.Stats.PassPercent), strings.Join(notes, "; "))
		t.Rows = append(t.Rows, row)
	}
	return t
}

// TemplateTable is a sample sheet users can fill in.
func TemplateTable(layout Layout) Table {
	ids := []string{"1", "2", "3", "4", "5"}
	marks := []string{"82", "65", "45", "32", "91"}
	att := []string{"90", "85", "80", "76", "95"}
	ese := []string{"40", "30", grading.AbsentMark, "10", "50"}

	if layout != Semester {
		t := Table{Name: "Template", Header: []string{"id", "marks", "attendance", "ese_marks"}}
		for i := range ids {
			t.Rows = append(t.Rows, []string{ids[i], marks[i], att[i], ese[i]})
		}
		return t
	}
	t := Table{Name: "Template", Header: []string{
		"id", "subject_code", "credits", "course_type", "total_max", "ese_max", "marks", "attendance", "ese_marks",
	}}
	for i := range ids {
		t.Rows = append(t.Rows,
			[]string{ids[i], "MA101", "4", "Theory", "100", "60", marks[i], att[i], ese[i]},
			[]string{ids[i], "PH101L", "2", "Practical", "100", "40", marks[(i+2)%5], att[i], "20"},
		)
	}
	return t
}

func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}
