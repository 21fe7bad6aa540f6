package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mind-engage/mindengage-results/internal/grading"
)

var (
	// subjectsGraded counts graded subject batches by boundary method
	subjectsGraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "results_subjects_graded_total",
		Help: "Subject batches graded, by boundary method",
	}, []string{"method"})

	subjectsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "results_subjects_rejected_total",
		Help: "Subject batches rejected for configuration errors",
	})

	// gradesAssigned counts final grades before grace
	gradesAssigned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "results_grades_assigned_total",
		Help: "Grades assigned by the boundary and hurdle pass, by grade",
	}, []string{"grade"})

	boundaryAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "results_boundary_adjustments_total",
		Help: "Relative boundary protections triggered, by kind",
	}, []string{"kind"})

	poolSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "results_statistics_pool_size",
		Help:    "Size of the statistics pool per subject",
		Buckets: []float64{5, 10, 20, 30, 50, 100, 200, 500},
	})

	gracedSubjects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "results_graced_subjects_total",
		Help: "Subjects upgraded to D* by grace",
	})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "results_run_duration_seconds",
		Help:    "Semester run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	}, []string{"result"})
)

// Observer feeds engine events into the Prometheus collectors.
type Observer struct{}

var _ grading.Observer = Observer{}

func (Observer) BatchGraded(br grading.BatchResult) {
	subjectsGraded.WithLabelValues(string(br.Boundaries.Method)).Inc()
	poolSize.Observe(float64(br.Boundaries.PoolSize))
	for g, n := range br.Stats.Distribution {
		gradesAssigned.WithLabelValues(string(g)).Add(float64(n))
	}
	if br.Boundaries.Moderated {
		boundaryAdjustments.WithLabelValues("moderation").Inc()
	}
	if br.Boundaries.Floored {
		boundaryAdjustments.WithLabelValues("floor").Inc()
	}
	if br.Boundaries.Capped {
		boundaryAdjustments.WithLabelValues("ceiling").Inc()
	}
}

func (Observer) BatchRejected(string, error) { subjectsRejected.Inc() }

func (Observer) StudentGraced(subjects int) { gracedSubjects.Add(float64(subjects)) }

// ObserveRun records how long a whole run took.
func ObserveRun(start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	runDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}
