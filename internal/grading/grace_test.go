package grading_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/mind-engage/mindengage-results/internal/grading"
)

// failed builds an F result for a subject with D at 40 and ESE threshold 12.
func failed(student, subject string, marks float64, ese float64) grading.Result {
	return grading.Result{
		StudentID:    student,
		SubjectCode:  subject,
		Credits:      4,
		Marks:        marks,
		ESE:          grading.NumericESE(ese),
		Attendance:   90,
		Grade:        grading.GradeF,
		BoundaryD:    40,
		ESEThreshold: 12,
	}
}

func passed(student, subject string, g grading.Grade) grading.Result {
	return grading.Result{
		StudentID:    student,
		SubjectCode:  subject,
		Credits:      3,
		Marks:        70,
		ESE:          grading.NumericESE(40),
		Attendance:   90,
		Grade:        g,
		Point:        g.Point(),
		BoundaryD:    40,
		ESEThreshold: 12,
	}
}

func TestApplyGrace_OneOrTwoSubjects(t *testing.T) {
	in := []grading.Result{
		failed("s1", "MA101", 38, 20),
		passed("s1", "PH101", grading.GradeB),
		failed("s1", "CS101", 37, 15),
		failed("s2", "MA101", 39.5, 20),
	}
	out := grading.ApplyGrace(in)

	assert.Equal(t, grading.GradeDGrace, out[0].Grade)
	assert.True(t, out[0].Graced)
	assert.Equal(t, grading.GradeD.Point(), out[0].Point)
	assert.Equal(t, grading.GradeB, out[1].Grade)
	assert.False(t, out[1].Graced)
	assert.Equal(t, grading.GradeDGrace, out[2].Grade, "a shortfall of exactly 3 is graced")
	assert.Equal(t, grading.GradeDGrace, out[3].Grade)

	// input untouched
	assert.Equal(t, grading.GradeF, in[0].Grade)
}

func TestApplyGrace_ThreeCandidatesVoidsAll(t *testing.T) {
	in := []grading.Result{
		failed("s1", "A", 38, 20),
		failed("s1", "B", 39, 20),
		failed("s1", "C", 37.5, 20),
	}
	out := grading.ApplyGrace(in)
	for _, r := range out {
		assert.Equal(t, grading.GradeF, r.Grade, r.SubjectCode)
		assert.False(t, r.Graced)
	}
}

func TestApplyGrace_ESEFailureAnywhereBlocks(t *testing.T) {
	in := []grading.Result{
		failed("s1", "A", 38, 20),
		failed("s1", "B", 60, 5), // ESE hurdle failure in another subject
	}
	in[1].Grade = grading.GradeF
	out := grading.ApplyGrace(in)
	assert.Equal(t, grading.GradeF, out[0].Grade)

	absent := []grading.Result{
		failed("s2", "A", 38, 20),
		passed("s2", "B", grading.GradeZ),
	}
	absent[1].ESE = grading.AbsentESE()
	out = grading.ApplyGrace(absent)
	assert.Equal(t, grading.GradeF, out[0].Grade)
}

func TestApplyGrace_Window(t *testing.T) {
	in := []grading.Result{
		failed("far", "A", 36.9, 20),
		failed("bad", "A", 0, 20),
	}
	in[1].InvalidMarks = true
	in[1].BoundaryD = 2
	out := grading.ApplyGrace(in)
	assert.Equal(t, grading.GradeF, out[0].Grade, "3.1 marks short is outside the window")
	assert.Equal(t, grading.GradeF, out[1].Grade, "unreadable marks are never graced")

	// Attendance and absentee grades are not F, so they are never candidates.
	other := []grading.Result{failed("i", "A", 39, 20)}
	other[0].Grade = grading.GradeI
	assert.Equal(t, grading.GradeI, grading.ApplyGrace(other)[0].Grade)
}

func TestApplyGrace_Idempotent(t *testing.T) {
	in := []grading.Result{
		failed("s1", "A", 38, 20),
		passed("s1", "B", grading.GradeC),
		failed("s2", "A", 38, 20),
		failed("s2", "B", 38, 20),
		failed("s2", "C", 38, 20),
	}
	once := grading.ApplyGrace(in)
	twice := grading.ApplyGrace(once)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("second grace pass changed results (-once +twice):\n%s", diff)
	}
}

func TestGroupByStudent_PreservesOrder(t *testing.T) {
	in := []grading.Result{
		passed("b", "X", grading.GradeA),
		passed("a", "X", grading.GradeA),
		passed("b", "Y", grading.GradeA),
	}
	groups := grading.GroupByStudent(in)
	assert.Len(t, groups, 2)
	assert.Equal(t, "b", groups[0].StudentID)
	assert.Equal(t, []int{0, 2}, groups[0].Index)
	assert.Equal(t, []int{1}, groups[1].Index)
}

func TestGroupByStudent_BlankIDsNeverMerge(t *testing.T) {
	in := []grading.Result{
		failed("", "MA101", 38, 30),
		passed("", "PH101", grading.GradeAPlus),
		failed("s1", "MA101", 38, 30),
		passed("s1", "PH101", grading.GradeB),
	}
	groups := grading.GroupByStudent(in)
	assert.Len(t, groups, 3)
	assert.Equal(t, []int{0}, groups[0].Index)
	assert.Equal(t, []int{1}, groups[1].Index)
	assert.Equal(t, []int{2, 3}, groups[2].Index)
}
