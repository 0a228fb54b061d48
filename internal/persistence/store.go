package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/masonrylabs/masonry/pkg/api"
)

var (
	// ErrRunNotFound is returned when a run is not found.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunExists is returned when creating a run whose ID is already
	// taken.
	ErrRunExists = errors.New("run already exists")

	// ErrRunSealed is returned when attempting to append to or re-seal a
	// run whose terminal status has already been set.
	ErrRunSealed = errors.New("run already sealed")
)

// RunFilter selects runs from the store. Zero values mean "no filter"
// for that field. From/To bound StartedAt (inclusive From, exclusive To).
type RunFilter struct {
	WorkflowName string
	From         time.Time
	To           time.Time
}

// RunStore is the durable persistence boundary for runs. A run is
// created when a pass begins, grows by appended step outcomes as steps
// complete, and is sealed exactly once with its terminal status.
//
// AppendOutcome may be called from concurrent steps of the same run;
// implementations must make the append itself safe, nothing broader.
type RunStore interface {
	CreateRun(ctx context.Context, run *api.Run) error
	AppendOutcome(ctx context.Context, runID string, outcome api.StepOutcome) error
	SealRun(ctx context.Context, runID string, status api.RunStatus, endedAt time.Time) error
	GetRun(ctx context.Context, id string) (*api.Run, error)
	// ListRuns returns matching runs ordered most recent first.
	ListRuns(ctx context.Context, filter RunFilter) ([]*api.Run, error)
}
