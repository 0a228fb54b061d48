package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/masonrylabs/masonry/pkg/api"
)

// MemoryRunStore is a goroutine-safe RunStore backed by maps. It is the
// default store for embedded and test usage.
type MemoryRunStore struct {
	mu     sync.RWMutex
	runs   map[string]*api.Run
	sealed map[string]bool
}

// NewMemoryRunStore creates a new MemoryRunStore.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{
		runs:   make(map[string]*api.Run),
		sealed: make(map[string]bool),
	}
}

// Ensure MemoryRunStore implements the interface.
var _ RunStore = (*MemoryRunStore)(nil)

func (s *MemoryRunStore) CreateRun(ctx context.Context, run *api.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return ErrRunExists
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryRunStore) AppendOutcome(ctx context.Context, runID string, outcome api.StepOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	if s.sealed[runID] {
		return ErrRunSealed
	}

	run.Outcomes = append(run.Outcomes, outcome)
	return nil
}

func (s *MemoryRunStore) SealRun(ctx context.Context, runID string, status api.RunStatus, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	if s.sealed[runID] {
		return ErrRunSealed
	}

	run.Status = status
	run.EndedAt = endedAt
	s.sealed[runID] = true
	return nil
}

func (s *MemoryRunStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}

	return cloneRun(run), nil
}

func (s *MemoryRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.Run
	for _, run := range s.runs {
		if filter.WorkflowName != "" && run.WorkflowName != filter.WorkflowName {
			continue
		}
		if !filter.From.IsZero() && run.StartedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !run.StartedAt.Before(filter.To) {
			continue
		}
		result = append(result, cloneRun(run))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})

	return result, nil
}

// cloneRun copies a run so callers never share the store's mutable state.
func cloneRun(run *api.Run) *api.Run {
	copied := *run
	copied.Outcomes = make([]api.StepOutcome, len(run.Outcomes))
	copy(copied.Outcomes, run.Outcomes)
	return &copied
}
