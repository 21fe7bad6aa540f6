package grading

// Grade is a final letter grade.
type Grade string

const (
	GradeAPlus  Grade = "A+"
	GradeA      Grade = "A"
	GradeBPlus  Grade = "B+"
	GradeB      Grade = "B"
	GradeCPlus  Grade = "C+"
	GradeC      Grade = "C"
	GradeD      Grade = "D"
	GradeDGrace Grade = "D*"
	GradeF      Grade = "F"
	// GradeI is the attendance-hurdle grade.
	GradeI Grade = "I"
	// GradeZ is the ESE-absent grade.
	GradeZ Grade = "Z"
)

// boundaryOrder is the scan order for boundary lookup, strictest first.
var boundaryOrder = []Grade{GradeAPlus, GradeA, GradeBPlus, GradeB, GradeCPlus, GradeC, GradeD}

// BoundaryGrades returns the grades that carry a cutoff, A+ down to D.
func BoundaryGrades() []Grade { return append([]Grade(nil), boundaryOrder...) }

// AllGrades lists every grade a result can carry, best to worst.
var AllGrades = []Grade{GradeAPlus, GradeA, GradeBPlus, GradeB, GradeCPlus, GradeC, GradeD, GradeDGrace, GradeF, GradeI, GradeZ}

var gradePoints = map[Grade]float64{
	GradeAPlus:  10,
	GradeA:      9,
	GradeBPlus:  8,
	GradeB:      7,
	GradeCPlus:  6,
	GradeC:      5,
	GradeD:      4,
	GradeDGrace: 4,
	GradeF:      0,
	GradeI:      0,
	GradeZ:      0,
}

// Point returns the grade point for g; unknown grades score zero.
func (g Grade) Point() float64 { return gradePoints[g] }

// Failing reports whether g earns no credits.
func (g Grade) Failing() bool {
	return g == GradeF || g == GradeI || g == GradeZ
}

func (g Grade) Valid() bool {
	_, ok := gradePoints[g]
	return ok
}
