package results

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-results/internal/grading"
	"github.com/mind-engage/mindengage-results/internal/metrics"
	"github.com/mind-engage/mindengage-results/internal/sheets"
	"github.com/mind-engage/mindengage-results/internal/storage"
	syncx "github.com/mind-engage/mindengage-results/internal/sync"
)

// GradeRequest is one uploaded sheet plus the knobs that apply to it.
type GradeRequest struct {
	Source string
	Data   []byte
	Sheet  sheets.Options
	// Policy overrides the service policy field by field; empty fields keep the default.
	Policy    *grading.Policy
	CreatedBy string
}

type Option func(*config)

type config struct {
	blobs   storage.BlobStore
	events  *syncx.EventRepo
	catalog *sheets.Catalog
	policy  grading.Policy
	workers int
	logger  *slog.Logger
	now     func() time.Time
}

func WithBlobStore(b storage.BlobStore) Option { return func(c *config) { c.blobs = b } }
func WithEvents(e *syncx.EventRepo) Option     { return func(c *config) { c.events = e } }
func WithCatalog(cat *sheets.Catalog) Option   { return func(c *config) { c.catalog = cat } }
func WithPolicy(p grading.Policy) Option       { return func(c *config) { c.policy = p } }
func WithWorkers(n int) Option                 { return func(c *config) { c.workers = n } }
func WithLogger(l *slog.Logger) Option         { return func(c *config) { c.logger = l } }
func withClock(now func() time.Time) Option    { return func(c *config) { c.now = now } }

// Service reads a sheet, grades it and keeps the run.
type Service struct {
	store Store
	cfg   config
}

func NewService(store Store, opts ...Option) *Service {
	cfg := config{policy: grading.DefaultPolicy(), logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(&cfg)
	}
	return &Service{store: store, cfg: cfg}
}

func (s *Service) Store() Store { return s.store }

// Grade runs the full pipeline for one upload. Sheet-level errors (missing columns, unreadable
// file) abort the request; subject-level configuration errors end up in Semester.Rejected.
func (s *Service) Grade(ctx context.Context, req GradeRequest) (run Run, err error) {
	start := s.cfg.now()
	defer func() { metrics.ObserveRun(start, err) }()

	sh, err := sheets.Read(req.Source, bytes.NewReader(req.Data), req.Sheet)
	if err != nil {
		return Run{}, err
	}
	if s.cfg.catalog != nil {
		s.cfg.catalog.FillCredits(sh.Records)
	}

	pol := s.cfg.policy
	if s.cfg.catalog != nil {
		if pol, err = s.cfg.catalog.Policy(pol); err != nil {
			return Run{}, fmt.Errorf("catalog policy: %w", err)
		}
	}
	if req.Policy != nil {
		if req.Policy.Protocol != "" {
			pol.Protocol = req.Policy.Protocol
		}
		if req.Policy.Moderation != "" {
			pol.Moderation = req.Policy.Moderation
		}
	}

	opts := []grading.Option{
		grading.WithPolicy(pol),
		grading.WithLogger(s.cfg.logger),
		grading.WithObserver(metrics.Observer{}),
	}
	if s.cfg.workers > 0 {
		opts = append(opts, grading.WithWorkers(s.cfg.workers))
	}
	if s.cfg.catalog != nil {
		opts = append(opts, grading.WithCatalog(s.cfg.catalog))
	}
	sem, err := grading.New(opts...).Run(ctx, sh.Records)
	if err != nil {
		return Run{}, err
	}
	if len(sem.Batches) == 0 && len(sem.Rejected) > 0 {
		err = fmt.Errorf("no subject could be graded: %w", errors.Join(rejectionErrs(sem.Rejected)...))
		return Run{}, err
	}

	run = Run{
		ID:        uuid.NewString(),
		Source:    req.Source,
		Layout:    string(sh.Layout),
		CreatedBy: req.CreatedBy,
		CreatedAt: start.UTC(),
		Semester:  sem,
	}
	if s.cfg.blobs != nil {
		key, err := s.cfg.blobs.Put(storage.RunKey(run.ID, req.Source), bytes.NewReader(req.Data))
		if err != nil {
			s.cfg.logger.Warn("archive upload failed", "run", run.ID, "err", err)
		} else {
			run.BlobKey = key
		}
	}
	if err := s.store.Put(ctx, run); err != nil {
		return Run{}, fmt.Errorf("save run: %w", err)
	}
	s.record(ctx, run)

	s.cfg.logger.Info("run graded", "run", run.ID, "source", run.Source, "layout", run.Layout,
		"subjects", len(sem.Batches), "rejected", len(sem.Rejected), "students", len(sem.Summaries))
	return run, nil
}

func (s *Service) Get(ctx context.Context, id string) (Run, error) { return s.store.Get(ctx, id) }

func (s *Service) List(ctx context.Context, opts ListOpts) ([]RunSummary, error) {
	return s.store.List(ctx, opts)
}

// record appends to the event log; failures are logged, the run is already saved.
func (s *Service) record(ctx context.Context, run Run) {
	if s.cfg.events == nil {
		return
	}
	sum := run.Summary()
	if err := s.cfg.events.AppendJSON(ctx, syncx.EventRunGraded, run.ID, sum); err != nil {
		s.cfg.logger.Warn("event append failed", "run", run.ID, "err", err)
	}
	for _, rj := range run.Semester.Rejected {
		if err := s.cfg.events.AppendJSON(ctx, syncx.EventRunRejected, run.ID, rj); err != nil {
			s.cfg.logger.Warn("event append failed", "run", run.ID, "err", err)
		}
	}
}

func rejectionErrs(rs []grading.Rejection) []error {
	out := make([]error, 0, len(rs))
	for _, r := range rs {
		if r.Err != nil {
			out = append(out, r.Err)
		} else {
			out = append(out, errors.New(r.Reason))
		}
	}
	return out
}
