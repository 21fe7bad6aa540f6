package grading

import (
	"math"
	"sort"
)

// StudentSummary is the semester roll-up for one student.
type StudentSummary struct {
	StudentID      string   `json:"student_id"`
	TotalCredits   float64  `json:"total_credits"`
	EarnedCredits  float64  `json:"earned_credits"`
	TotalPoints    float64  `json:"total_points"`
	SGPA           float64  `json:"sgpa"`
	FailedSubjects []string `json:"failed_subjects"`
	GracedCount    int      `json:"graced_count"`
}

// Summarize rolls up one student's subjects.
func Summarize(s StudentResults) StudentSummary {
	sum := StudentSummary{StudentID: s.StudentID, FailedSubjects: []string{}}
	for _, r := range s.Results {
		sum.TotalCredits += r.Credits
		sum.TotalPoints += r.Credits * r.Point
		if r.Grade.Failing() {
			sum.FailedSubjects = append(sum.FailedSubjects, r.SubjectCode)
		} else {
			sum.EarnedCredits += r.Credits
		}
		if r.Grade == GradeDGrace {
			sum.GracedCount++
		}
	}
	if sum.TotalCredits > 0 {
		sum.SGPA = round2(sum.TotalPoints / sum.TotalCredits)
	}
	return sum
}

// Aggregate produces one summary per student, sorted by student id.
func Aggregate(results []Result) []StudentSummary {
	groups := GroupByStudent(results)
	out := make([]StudentSummary, len(groups))
	for i, g := range groups {
		out[i] = Summarize(g)
	}
	sortSummaries(out)
	return out
}

func sortSummaries(s []StudentSummary) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].StudentID < s[j].StudentID })
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
