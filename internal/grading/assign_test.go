package grading_test

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-results/internal/grading"
)

func rec(id string, marks, attendance float64, ese string) grading.Record {
	return grading.Record{
		StudentID:  id,
		Credits:    4,
		Marks:      marks,
		Attendance: attendance,
		ESE:        grading.ParseESE(ese),
	}
}

func gradesByStudent(br grading.BatchResult) map[string]grading.Grade {
	out := map[string]grading.Grade{}
	for _, r := range br.Results {
		out[r.StudentID] = r.Grade
	}
	return out
}

func TestGradeBatch_FiveStudentSheet(t *testing.T) {
	b := grading.Batch{
		Subject: "CS101",
		Config:  theory100,
		Records: []grading.Record{
			rec("1", 82, 90, "40"),
			rec("2", 65, 85, "30"),
			rec("3", 45, 80, "AB"),
			rec("4", 32, 76, "10"),
			rec("5", 91, 95, "50"),
		},
	}
	br, err := grading.GradeBatch(b, grading.DefaultPolicy())
	require.NoError(t, err)

	assert.Equal(t, grading.Absolute, br.Boundaries.Method)
	assert.Equal(t, 3, br.Boundaries.PoolSize)
	assert.Equal(t, []float64{90, 80, 72, 64, 56, 48, 40}, cutoffs(br.Boundaries))

	// The absolute theory table puts 82 at A (>= 80) and 65 at B (>= 64), not the B+/C+ some
	// worked examples quote for this sheet.
	assert.Equal(t, map[string]grading.Grade{
		"1": grading.GradeA,
		"2": grading.GradeB,
		"3": grading.GradeZ,
		"4": grading.GradeF,
		"5": grading.GradeAPlus,
	}, gradesByStudent(br))

	for _, r := range br.Results {
		assert.Equal(t, 40.0, r.BoundaryD)
		assert.Equal(t, 12.0, r.ESEThreshold)
		assert.False(t, r.Graced)
	}
	assert.Equal(t, 1, br.Stats.Absent)
	assert.Equal(t, 1, br.Stats.ESEFailed)
	assert.InDelta(t, 60, br.Stats.PassPercent, 1e-9)
	assert.InDelta(t, (82+65+45+32+91)/5.0, br.Stats.RawAverage, 1e-9)
}

func TestGradeBatch_MissingStudentIDIsInvalid(t *testing.T) {
	anon := rec("row-3", 90, 90, "50")
	anon.Anonymous = true
	b := grading.Batch{Subject: "X", Config: theory100, Records: []grading.Record{
		rec("", 85, 90, "50"),
		anon,
		rec("a", 85, 90, "50"),
	}}
	br, err := grading.GradeBatch(b, grading.DefaultPolicy())
	require.NoError(t, err)
	for _, r := range br.Results[:2] {
		assert.Equal(t, grading.GradeF, r.Grade)
		assert.True(t, r.InvalidMarks)
		assert.Contains(t, r.Issues, "missing student id, graded as invalid")
	}
	assert.Equal(t, grading.GradeA, br.Results[2].Grade)
	assert.Equal(t, 1, br.Boundaries.PoolSize)
}

func TestGradeBatch_AttendanceOverridesEverything(t *testing.T) {
	b := grading.Batch{Subject: "X", Config: theory100, Records: []grading.Record{
		rec("a", 99, 74.9, "55"),
		rec("b", 99, 10, "AB"),
		rec("c", 10, 0, "0"),
		rec("d", 99, math.NaN(), "55"),
		rec("e", 99, 120, "55"),
	}}
	br, err := grading.GradeBatch(b, grading.DefaultPolicy())
	require.NoError(t, err)
	for _, r := range br.Results {
		assert.Equal(t, grading.GradeI, r.Grade, "student %s", r.StudentID)
		assert.Equal(t, 0.0, r.Point)
	}
	assert.Equal(t, 5, br.Stats.Defaulters)
}

func TestGradeBatch_AbsentIsCaseInsensitive(t *testing.T) {
	b := grading.Batch{Subject: "X", Config: theory100, Records: []grading.Record{
		rec("a", 70, 75, "AB"),
		rec("b", 70, 80, "ab"),
		rec("c", 70, 90, " Ab "),
	}}
	br, err := grading.GradeBatch(b, grading.DefaultPolicy())
	require.NoError(t, err)
	for _, r := range br.Results {
		assert.Equal(t, grading.GradeZ, r.Grade, "student %s", r.StudentID)
	}
}

func TestGradeBatch_ESEHurdle(t *testing.T) {
	b := grading.Batch{Subject: "X", Config: theory100, Records: []grading.Record{
		rec("below", 95, 90, "11.9"),
		rec("at", 95, 90, "12"),
		rec("junk", 95, 90, "n/a"),
		rec("over", 95, 90, "61"),
	}}
	br, err := grading.GradeBatch(b, grading.DefaultPolicy())
	require.NoError(t, err)
	got := gradesByStudent(br)
	assert.Equal(t, grading.GradeF, got["below"])
	assert.Equal(t, grading.GradeAPlus, got["at"])
	assert.Equal(t, grading.GradeF, got["junk"])
	assert.Equal(t, grading.GradeF, got["over"])
	assert.NotEmpty(t, br.Results[2].Issues)
	assert.Equal(t, grading.ESEInvalid, br.Results[3].ESE.Kind)
}

func TestGradeBatch_InvalidMarksDegrade(t *testing.T) {
	b := grading.Batch{Subject: "X", Config: theory100, Records: []grading.Record{
		rec("nan", math.NaN(), 90, "40"),
		rec("neg", -1, 90, "40"),
		rec("big", 101, 90, "40"),
		rec("ok", 50, 90, "40"),
	}}
	br, err := grading.GradeBatch(b, grading.DefaultPolicy())
	require.NoError(t, err)
	require.Len(t, br.Results, 4)
	for _, r := range br.Results[:3] {
		assert.Equal(t, grading.GradeF, r.Grade)
		assert.True(t, r.InvalidMarks)
		assert.Equal(t, 0.0, r.Marks)
	}
	assert.Equal(t, grading.GradeC, br.Results[3].Grade)
	assert.Equal(t, 1, br.Boundaries.PoolSize)
}

func semesterBatch(n int, failESE int) grading.Batch {
	b := grading.Batch{Subject: "BIG", Config: theory100}
	for i := 0; i < n; i++ {
		b.Records = append(b.Records, rec(fmt.Sprintf("s%02d", i), float64(40+i), 90, "30"))
	}
	for i := 0; i < failESE; i++ {
		b.Records = append(b.Records, rec(fmt.Sprintf("f%02d", i), 5, 90, "3"))
	}
	return b
}

func TestGradeBatch_ProtocolPools(t *testing.T) {
	b := semesterBatch(25, 10)

	excl, err := grading.GradeBatch(b, grading.Policy{Protocol: grading.Exclusive})
	require.NoError(t, err)
	assert.Equal(t, 25, excl.Boundaries.PoolSize)
	assert.Equal(t, grading.Absolute, excl.Boundaries.Method)

	incl, err := grading.GradeBatch(b, grading.Policy{Protocol: grading.Inclusive})
	require.NoError(t, err)
	assert.Equal(t, 35, incl.Boundaries.PoolSize)
	assert.Equal(t, grading.Relative, incl.Boundaries.Method)

	// ESE failures stay F whatever the pool looks like.
	for _, r := range incl.Results[25:] {
		assert.Equal(t, grading.GradeF, r.Grade)
	}
}

func TestGradeBatch_ConfigurationErrors(t *testing.T) {
	bad := grading.Batch{Subject: "X", Config: grading.CourseConfig{TotalMax: 50, ESEMax: 60, Type: grading.Theory}}
	_, err := grading.GradeBatch(bad, grading.DefaultPolicy())
	require.Error(t, err)
	assert.True(t, errors.Is(err, grading.ErrConfiguration))
	assert.Contains(t, err.Error(), "exceed")

	neg := grading.Batch{Subject: "X", Config: theory100, Records: []grading.Record{rec("a", 50, 90, "40")}}
	neg.Records[0].Credits = -1
	_, err = grading.GradeBatch(neg, grading.DefaultPolicy())
	var ce *grading.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "X", ce.Subject)
}

func TestGradeBatch_EveryRecordGraded(t *testing.T) {
	b := semesterBatch(40, 5)
	b.Records = append(b.Records, rec("odd", math.NaN(), math.NaN(), "??"))
	br, err := grading.GradeBatch(b, grading.Policy{Protocol: grading.Inclusive, Moderation: grading.ModerationRedistribute})
	require.NoError(t, err)
	require.Len(t, br.Results, len(b.Records))
	total := 0
	for _, r := range br.Results {
		assert.True(t, r.Grade.Valid(), "student %s has grade %q", r.StudentID, r.Grade)
		total++
	}
	sum := 0
	for _, n := range br.Stats.Distribution {
		sum += n
	}
	assert.Equal(t, total, sum)
}

func TestGradeBatch_Deterministic(t *testing.T) {
	b := semesterBatch(45, 6)
	first, err := grading.GradeBatch(b, grading.Policy{Protocol: grading.Inclusive})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := grading.GradeBatch(b, grading.Policy{Protocol: grading.Inclusive})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
