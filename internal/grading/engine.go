package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// CourseLookup resolves the course config for a subject whose rows carry none.
type CourseLookup interface {
	Course(subject string) (CourseConfig, bool)
}

// StaticCourse serves one config for every subject; single-subject sheets use it.
type StaticCourse CourseConfig

func (s StaticCourse) Course(string) (CourseConfig, bool) { return CourseConfig(s), true }

// Observer is told about each stage of a run. Metrics hook in here.
type Observer interface {
	BatchGraded(br BatchResult)
	BatchRejected(subject string, err error)
	StudentGraced(subjects int)
}

// Engine options

type Option func(*config)

type config struct {
	policy   Policy
	workers  int
	logger   *slog.Logger
	catalog  CourseLookup
	observer Observer
}

func WithPolicy(p Policy) Option         { return func(c *config) { c.policy = p } }
func WithWorkers(n int) Option           { return func(c *config) { c.workers = n } }
func WithLogger(l *slog.Logger) Option   { return func(c *config) { c.logger = l } }
func WithCatalog(cl CourseLookup) Option { return func(c *config) { c.catalog = cl } }
func WithObserver(o Observer) Option     { return func(c *config) { c.observer = o } }

// Engine runs the whole semester pipeline: grade per subject, grace per student, roll up.
type Engine struct {
	cfg config
}

func New(opts ...Option) *Engine {
	cfg := config{
		policy:  DefaultPolicy(),
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.workers < 1 {
		cfg.workers = 1
	}
	if cfg.policy.Protocol == "" {
		cfg.policy.Protocol = Exclusive
	}
	if cfg.policy.Moderation == "" {
		cfg.policy.Moderation = ModerationCapOnly
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) Policy() Policy { return e.cfg.policy }

// Rejection is a subject batch that could not be graded.
type Rejection struct {
	Subject string `json:"subject"`
	Records int    `json:"records"`
	Reason  string `json:"reason"`
	Err     error  `json:"-"`
}

// Semester is the output of a full run.
type Semester struct {
	Policy    Policy           `json:"policy"`
	Batches   []BatchResult    `json:"batches"`
	Rejected  []Rejection      `json:"rejected,omitempty"`
	Results   []Result         `json:"results"`
	Summaries []StudentSummary `json:"summaries"`
}

// Batches splits records by subject code in order of first appearance and resolves each
// subject's course config from the first row that carries one, then the catalog.
func (e *Engine) Batches(records []Record) ([]Batch, []Rejection) {
	pos := map[string]int{}
	var batches []Batch
	var course []*CourseConfig
	for _, r := range records {
		i, ok := pos[r.SubjectCode]
		if !ok {
			i = len(batches)
			pos[r.SubjectCode] = i
			batches = append(batches, Batch{Subject: r.SubjectCode})
			course = append(course, nil)
		}
		if course[i] == nil && r.Course != nil {
			c := *r.Course
			course[i] = &c
		}
		batches[i].Records = append(batches[i].Records, r)
	}

	var out []Batch
	var rejected []Rejection
	for i, b := range batches {
		switch {
		case course[i] != nil:
			b.Config = *course[i]
		case e.cfg.catalog != nil:
			c, ok := e.cfg.catalog.Course(b.Subject)
			if !ok {
				err := &ConfigError{Subject: b.Subject, Reason: "no course configuration"}
				rejected = append(rejected, Rejection{Subject: b.Subject, Records: len(b.Records), Reason: err.Error(), Err: err})
				continue
			}
			b.Config = c
		default:
			err := &ConfigError{Subject: b.Subject, Reason: "no course configuration"}
			rejected = append(rejected, Rejection{Subject: b.Subject, Records: len(b.Records), Reason: err.Error(), Err: err})
			continue
		}
		out = append(out, b)
	}
	return out, rejected
}

// Run grades every subject, then applies grace, then aggregates. Each phase finishes before
// the next starts. A cancelled context aborts the run; no partial semester is returned.
func (e *Engine) Run(ctx context.Context, records []Record) (Semester, error) {
	log := e.cfg.logger
	sem := Semester{Policy: e.cfg.policy}

	batches, rejected := e.Batches(records)
	sem.Rejected = rejected

	graded := make([]BatchResult, len(batches))
	batchErr := make([]error, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.workers)
	for i, b := range batches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			br, err := GradeBatch(b, e.cfg.policy)
			if err != nil {
				batchErr[i] = err
				return nil
			}
			graded[i] = br
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Semester{}, fmt.Errorf("grade subjects: %w", err)
	}

	var all []Result
	for i, b := range batches {
		if err := batchErr[i]; err != nil {
			if !errors.Is(err, ErrConfiguration) {
				return Semester{}, fmt.Errorf("grade %s: %w", b.Subject, err)
			}
			sem.Rejected = append(sem.Rejected, Rejection{Subject: b.Subject, Records: len(b.Records), Reason: err.Error(), Err: err})
			continue
		}
		br := graded[i]
		for _, n := range br.Boundaries.Notes {
			log.Debug("boundaries", "subject", br.Subject, "note", n)
		}
		for _, n := range br.Notes {
			log.Debug("batch", "subject", br.Subject, "note", n)
		}
		sem.Batches = append(sem.Batches, br)
		all = append(all, br.Results...)
	}
	for _, rj := range sem.Rejected {
		log.Warn("subject rejected", "subject", rj.Subject, "records", rj.Records, "err", rj.Reason)
		if e.cfg.observer != nil {
			e.cfg.observer.BatchRejected(rj.Subject, rj.Err)
		}
	}
	if e.cfg.observer != nil {
		for _, br := range sem.Batches {
			e.cfg.observer.BatchGraded(br)
		}
	}
	if err := ctx.Err(); err != nil {
		return Semester{}, err
	}

	groups := GroupByStudent(all)
	graced := make([]int, len(groups))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.workers)
	for i := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			graced[i] = groups[i].Grace()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Semester{}, fmt.Errorf("apply grace: %w", err)
	}

	sem.Results = make([]Result, len(all))
	for _, grp := range groups {
		for k, i := range grp.Index {
			sem.Results[i] = grp.Results[k]
		}
	}
	gracedStudents := 0
	for _, n := range graced {
		if n > 0 {
			gracedStudents++
			if e.cfg.observer != nil {
				e.cfg.observer.StudentGraced(n)
			}
		}
	}

	sem.Summaries = make([]StudentSummary, len(groups))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.workers)
	for i := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sem.Summaries[i] = Summarize(groups[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Semester{}, fmt.Errorf("aggregate: %w", err)
	}
	sortSummaries(sem.Summaries)

	log.Info("semester graded",
		"subjects", len(sem.Batches),
		"rejected", len(sem.Rejected),
		"records", len(sem.Results),
		"students", len(sem.Summaries),
		"graced_students", gracedStudents,
		"protocol", e.cfg.policy.Protocol,
	)
	return sem, nil
}
