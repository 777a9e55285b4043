package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mohammad-safakhou/errander/internal/artifact"
)

// Status is a run's lifecycle state.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// RunRecord is the externally observable state of one execution. It is
// created at run start, mutated as steps complete and immutable once the
// status is terminal.
type RunRecord struct {
	ID         string              `json:"id"`
	Status     Status              `json:"status"`
	Log        []string            `json:"log"`
	Artifacts  []artifact.Artifact `json:"artifacts"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}

// RunContext is the mutable scratch space threaded through one plan's
// execution. It is owned exclusively by the executor for the lifetime of a
// run; handlers read and write it sequentially.
type RunContext struct {
	LastArtifact *artifact.Artifact
	LastText     string

	record *RunRecord
}

// Logf appends a timestamped line to the run log.
func (rc *RunContext) Logf(format string, args ...interface{}) {
	line := fmt.Sprintf("%s %s", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
	rc.record.Log = append(rc.record.Log, line)
}

// AddArtifact records a produced artifact on the run and makes it the
// context's latest.
func (rc *RunContext) AddArtifact(a artifact.Artifact) {
	rc.record.Artifacts = append(rc.record.Artifacts, a)
	rc.LastArtifact = &a
}

// RunRepository stores run records. The executor depends only on this
// interface; an in-memory implementation backs tests and small deployments,
// a Postgres one backs production (internal/store).
type RunRepository interface {
	Create(ctx context.Context, rec *RunRecord) error
	Update(ctx context.Context, rec *RunRecord) error
	Get(ctx context.Context, id string) (*RunRecord, bool, error)
	List(ctx context.Context, limit int) ([]*RunRecord, error)
}

// MemoryRepository keeps run records in a mutex-guarded map.
type MemoryRepository struct {
	mu   sync.RWMutex
	runs map[string]*RunRecord
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{runs: make(map[string]*RunRecord)}
}

func (r *MemoryRepository) Create(_ context.Context, rec *RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[rec.ID] = snapshot(rec)
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, rec *RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[rec.ID]; !ok {
		return fmt.Errorf("run %s not found", rec.ID)
	}
	r.runs[rec.ID] = snapshot(rec)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*RunRecord, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.runs[id]
	if !ok {
		return nil, false, nil
	}
	return snapshot(rec), true, nil
}

func (r *MemoryRepository) List(_ context.Context, limit int) ([]*RunRecord, error) {
	// same default as the Postgres repository, so /runs?limit=0 means the
	// same thing on either backend
	if limit <= 0 {
		limit = 50
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*RunRecord, 0, len(r.runs))
	for _, rec := range r.runs {
		out = append(out, snapshot(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// snapshot copies a record so callers never share the executor's mutable state.
func snapshot(rec *RunRecord) *RunRecord {
	c := *rec
	c.Log = append([]string(nil), rec.Log...)
	c.Artifacts = append([]artifact.Artifact(nil), rec.Artifacts...)
	if rec.FinishedAt != nil {
		t := *rec.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
