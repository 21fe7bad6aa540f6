package results

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mind-engage/mindengage-results/internal/grading"
)

var ErrNotFound = errors.New("run not found")

// Run is one graded upload.
type Run struct {
	ID        string           `json:"id"`
	Source    string           `json:"source"`
	Layout    string           `json:"layout"`
	CreatedBy string           `json:"created_by,omitempty"`
	BlobKey   string           `json:"blob_key,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Semester  grading.Semester `json:"semester"`
}

// RunSummary is the list view of a run.
type RunSummary struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Layout    string    `json:"layout"`
	CreatedBy string    `json:"created_by,omitempty"`
	Students  int       `json:"students"`
	Subjects  int       `json:"subjects"`
	Rejected  int       `json:"rejected"`
	CreatedAt time.Time `json:"created_at"`
}

func (r Run) Summary() RunSummary {
	return RunSummary{
		ID:        r.ID,
		Source:    r.Source,
		Layout:    r.Layout,
		CreatedBy: r.CreatedBy,
		Students:  len(r.Semester.Summaries),
		Subjects:  len(r.Semester.Batches),
		Rejected:  len(r.Semester.Rejected),
		CreatedAt: r.CreatedAt,
	}
}

type ListOpts struct {
	CreatedBy string
	Limit     int
	Offset    int
}

func (o ListOpts) limit() int {
	if o.Limit <= 0 || o.Limit > 200 {
		return 50
	}
	return o.Limit
}

type Store interface {
	Put(ctx context.Context, r Run) error
	Get(ctx context.Context, id string) (Run, error)
	List(ctx context.Context, opts ListOpts) ([]RunSummary, error)
}

type memoryStore struct {
	mu   sync.RWMutex
	runs map[string]Run
}

// NewInMemoryStore keeps runs for the life of the process. The CLI and tests use it.
func NewInMemoryStore() Store {
	return &memoryStore{runs: map[string]Run{}}
}

func (m *memoryStore) Put(_ context.Context, r Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = r
	return nil
}

func (m *memoryStore) Get(_ context.Context, id string) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return r, nil
}

func (m *memoryStore) List(_ context.Context, opts ListOpts) ([]RunSummary, error) {
	m.mu.RLock()
	out := make([]RunSummary, 0, len(m.runs))
	for _, r := range m.runs {
		if opts.CreatedBy != "" && r.CreatedBy != opts.CreatedBy {
			continue
		}
		out = append(out, r.Summary())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if opts.Offset >= len(out) {
		return []RunSummary{}, nil
	}
	out = out[opts.Offset:]
	if n := opts.limit(); len(out) > n {
		out = out[:n]
	}
	return out, nil
}
