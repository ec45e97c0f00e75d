package workflow

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/abanklabs/crewflow/internal/model"
)

// Store persists run snapshots so a run survives its approval suspension,
// which may last days, across process restarts. The runner saves a full
// snapshot on every state transition.
type Store interface {
	SaveRun(ctx context.Context, run model.WorkflowRun) error
	GetRun(ctx context.Context, id uuid.UUID) (model.WorkflowRun, error)
	ListRuns(ctx context.Context, limit int) ([]model.WorkflowRun, error)
}

// MemoryStore is an in-process Store for DB-less deployments and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]model.WorkflowRun
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[uuid.UUID]model.WorkflowRun)}
}

// SaveRun stores a deep copy of the snapshot.
func (s *MemoryStore) SaveRun(_ context.Context, run model.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run.Clone()
	return nil
}

// GetRun returns a copy of the stored snapshot.
func (s *MemoryStore) GetRun(_ context.Context, id uuid.UUID) (model.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return model.WorkflowRun{}, ErrRunNotFound
	}
	return run.Clone(), nil
}

// ListRuns returns stored runs, most recently started first.
func (s *MemoryStore) ListRuns(_ context.Context, limit int) ([]model.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.WorkflowRun, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
