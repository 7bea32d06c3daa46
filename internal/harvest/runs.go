package harvest

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/affiliation-harvester/internal/domain"
)

// Run is one tracked harvest run. Snapshots returned by the registry are
// copies; the stored result is immutable once set.
type Run struct {
	ID        string           `json:"id"`
	Status    domain.RunStatus `json:"status"`
	Request   Request          `json:"request"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`

	Result *domain.HarvestResult `json:"-"`
}

var _ StatusReporter = (*Runs)(nil)

// Runs is an in-memory registry of harvest runs. All methods are safe for
// concurrent use.
type Runs struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewRuns creates an empty registry.
func NewRuns() *Runs {
	return &Runs{runs: make(map[string]*Run)}
}

// Create registers a new accepted run and returns its snapshot.
func (r *Runs) Create(req Request) Run {
	now := time.Now().UTC()
	run := &Run{
		ID:        uuid.New().String(),
		Status:    domain.RunStatusAccepted,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
	return *run
}

// Get returns a snapshot of the run.
func (r *Runs) Get(id string) (Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// List returns snapshots of every run, newest first.
func (r *Runs) List() []Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]Run, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, *run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	return runs
}

// SetStatus records a phase transition. Unknown runs are ignored, and a
// terminal status never regresses.
func (r *Runs) SetStatus(id string, status domain.RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok || run.Status.IsTerminal() {
		return
	}
	run.Status = status
	run.UpdatedAt = time.Now().UTC()
}

// Complete stores the result and marks the run completed, or partial when
// the result carries a failure partition.
func (r *Runs) Complete(id string, result *domain.HarvestResult) {
	status := domain.RunStatusCompleted
	if result != nil && !result.Clean() {
		status = domain.RunStatusPartial
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return
	}
	run.Result = result
	run.Status = status
	run.UpdatedAt = time.Now().UTC()
}

// Fail marks the run failed with the given error.
func (r *Runs) Fail(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return
	}
	run.Status = domain.RunStatusFailed
	if err != nil {
		run.Error = err.Error()
	}
	run.UpdatedAt = time.Now().UTC()
}
