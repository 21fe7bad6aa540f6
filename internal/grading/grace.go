package grading

// graceEpsilon absorbs float noise in statistical D boundaries when measuring the shortfall.
const graceEpsilon = 1e-9

// StudentResults is every graded subject of one student, in input order.
type StudentResults struct {
	StudentID string
	// Index holds the position of each result in the slice it was grouped from.
	Index   []int
	Results []Result
}

// GroupByStudent groups results per student, ordered by first appearance. Results without a
// student id are never merged; each forms its own group.
func GroupByStudent(results []Result) []StudentResults {
	pos := map[string]int{}
	var groups []StudentResults
	for i, r := range results {
		j, ok := pos[r.StudentID]
		if r.StudentID == "" {
			ok = false
		}
		if !ok {
			j = len(groups)
			if r.StudentID != "" {
				pos[r.StudentID] = j
			}
			groups = append(groups, StudentResults{StudentID: r.StudentID})
		}
		groups[j].Index = append(groups[j].Index, i)
		groups[j].Results = append(groups[j].Results, r)
	}
	return groups
}

// ClearedAllESE reports whether the student met the ESE threshold in every subject.
func (s StudentResults) ClearedAllESE() bool {
	for _, r := range s.Results {
		if r.ESE.Numeric() < r.ESEThreshold {
			return false
		}
	}
	return true
}

// GraceCandidates returns the positions (within s.Results) of failed subjects that are
// short of the D boundary by more than zero and at most GraceWindow marks.
func (s StudentResults) GraceCandidates() []int {
	var idx []int
	for i, r := range s.Results {
		if r.Grade != GradeF || r.InvalidMarks {
			continue
		}
		short := r.BoundaryD - r.Marks
		if short > 0 && short <= GraceWindow+graceEpsilon {
			idx = append(idx, i)
		}
	}
	return idx
}

// Grace upgrades the student's near-miss failures to D* when the student cleared every ESE
// and has between one and MaxGraceSubject candidates. It returns how many subjects were graced.
func (s *StudentResults) Grace() int {
	if !s.ClearedAllESE() {
		return 0
	}
	cand := s.GraceCandidates()
	if len(cand) == 0 || len(cand) > MaxGraceSubject {
		return 0
	}
	for _, i := range cand {
		r := &s.Results[i]
		r.Grade = GradeDGrace
		r.Point = GradeDGrace.Point()
		r.Graced = true
	}
	return len(cand)
}

// ApplyGrace evaluates grace per student and returns a new slice in the input order.
// Running it again on its own output changes nothing.
func ApplyGrace(results []Result) []Result {
	out := make([]Result, len(results))
	for _, g := range GroupByStudent(results) {
		g.Grace()
		for k, i := range g.Index {
			out[i] = g.Results[k]
		}
	}
	return out
}
