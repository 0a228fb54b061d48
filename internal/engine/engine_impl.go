package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/masonrylabs/masonry/internal/persistence"
	"github.com/masonrylabs/masonry/internal/scheduler"
	"github.com/masonrylabs/masonry/pkg/api"
)

// engineImpl is the in-process pass controller: it owns the definition
// registry, creates and seals runs, and drives the workflow runner.
type engineImpl struct {
	reg      *registry
	runs     persistence.RunStore
	sched    *scheduler.Scheduler
	observer api.Observer
	logger   *slog.Logger
}

// Config describes how to construct an engineImpl.
// Only used inside this package; external callers use the helper functions.
type Config struct {
	Runs     persistence.RunStore
	Observer api.Observer
	Logger   *slog.Logger
}

// NewInMemoryEngine returns an Engine backed entirely by in-memory state.
func NewInMemoryEngine() api.Engine {
	return NewEngineWithConfig(Config{})
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the
// given Observer.
func NewInMemoryEngineWithObserver(obs api.Observer) api.Engine {
	return NewEngineWithConfig(Config{Observer: obs})
}

// NewSQLiteEngine returns an Engine that persists runs in a SQLite
// database. Definitions stay in-memory; runs are what persist.
func NewSQLiteEngine(db *sql.DB) (api.Engine, error) {
	runs, err := persistence.NewSQLiteRunStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{Runs: runs}), nil
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the
// given Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs api.Observer) (api.Engine, error) {
	runs, err := persistence.NewSQLiteRunStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{Runs: runs, Observer: obs}), nil
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	runs := cfg.Runs
	if runs == nil {
		runs = persistence.NewMemoryRunStore()
	}
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &engineImpl{
		reg:      newRegistry(),
		runs:     runs,
		sched:    scheduler.New(),
		observer: obs,
		logger:   logger,
	}
}

func (e *engineImpl) RegisterTask(t api.Task) error {
	if t.Name == "" {
		return errors.New("task name is required")
	}
	if t.Fn == nil {
		return fmt.Errorf("task %q has nil body", t.Name)
	}
	return e.reg.putTask(t)
}

func (e *engineImpl) RegisterGraph(g api.StageGraph) error {
	compiled, err := compileGraph(g, e.reg.hasTask)
	if err != nil {
		return err
	}
	return e.reg.putGraph(compiled)
}

func (e *engineImpl) RegisterWorkflow(w api.Workflow) error {
	if w.Name == "" {
		return errors.New("workflow name is required")
	}
	if len(w.Entries) == 0 {
		return fmt.Errorf("workflow %q must reference at least one graph", w.Name)
	}

	positions := make(map[string]int, len(w.Entries))
	for _, entry := range w.Entries {
		if _, ok := e.reg.graph(entry.GraphName); !ok {
			return fmt.Errorf("workflow %q references unregistered graph %q", w.Name, entry.GraphName)
		}
		if _, dup := positions[entry.GraphName]; dup {
			return fmt.Errorf("workflow %q references graph %q at more than one position", w.Name, entry.GraphName)
		}
		positions[entry.GraphName] = entry.Position
	}

	for _, entry := range w.Entries {
		for _, dep := range entry.DependsOn {
			depPos, ok := positions[dep]
			if !ok {
				return fmt.Errorf("workflow %q: graph %q depends on graph %q which is not part of the workflow", w.Name, entry.GraphName, dep)
			}
			if depPos >= entry.Position {
				return fmt.Errorf("workflow %q: graph %q (position %d) depends on %q (position %d); dependencies must be at an earlier position",
					w.Name, entry.GraphName, entry.Position, dep, depPos)
			}
		}
	}

	return e.reg.putWorkflow(w)
}

func (e *engineImpl) ListTasks() []string     { return e.reg.taskNames() }
func (e *engineImpl) ListGraphs() []string    { return e.reg.graphNames() }
func (e *engineImpl) ListWorkflows() []string { return e.reg.workflowNames() }

func (e *engineImpl) GraphPlan(name string) (api.Plan, error) {
	g, ok := e.reg.graph(name)
	if !ok {
		return nil, fmt.Errorf("graph %q not found", name)
	}
	plan := make(api.Plan, len(g.plan))
	copy(plan, g.plan)
	return plan, nil
}

func (e *engineImpl) FirstPass(ctx context.Context, workflowName string) (*api.Run, error) {
	return e.pass(ctx, workflowName, api.TriggerFirstPass)
}

func (e *engineImpl) ScheduledPass(workflowName string, scheduleSpec string) (api.ScheduleHandle, error) {
	if !e.reg.hasWorkflow(workflowName) {
		return nil, &api.UnknownWorkflowError{Name: workflowName}
	}

	// Each occurrence is an independent run. Occurrences that overlap a
	// still-running previous occurrence are not serialized.
	handle, err := e.sched.Schedule(scheduleSpec, func() {
		if _, err := e.pass(context.Background(), workflowName, api.TriggerScheduled); err != nil {
			e.logger.Error("scheduled pass failed",
				slog.String("workflow", workflowName),
				slog.Any("error", err),
			)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", scheduleSpec, err)
	}
	return handle, nil
}

func (e *engineImpl) GetRun(ctx context.Context, id string) (*api.Run, error) {
	run, err := e.runs.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrRunNotFound) {
			return nil, fmt.Errorf("run not found: %s", id)
		}
		return nil, err
	}
	return run, nil
}

func (e *engineImpl) ListRuns(ctx context.Context, opts api.RunListOptions) ([]*api.Run, error) {
	return e.runs.ListRuns(ctx, persistence.RunFilter{
		WorkflowName: opts.WorkflowName,
		From:         opts.From,
		To:           opts.To,
	})
}

func (e *engineImpl) Close() error {
	e.sched.Close()
	return nil
}

// pass creates a run, executes the workflow, and seals the run with its
// terminal status. Step-level failures never surface as an error; they
// are captured in the run's outcomes and aggregate status.
func (e *engineImpl) pass(ctx context.Context, workflowName string, trigger api.TriggerKind) (*api.Run, error) {
	snap, err := e.reg.acquire(workflowName)
	if err != nil {
		return nil, err
	}
	defer e.reg.release(snap)

	run := &api.Run{
		ID:           uuid.NewString(),
		WorkflowName: workflowName,
		Trigger:      trigger,
		Status:       api.RunRunning,
		StartedAt:    time.Now().UTC(),
	}

	e.observer.OnRunStart(ctx, run)

	if err := e.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	// Each step writes exactly one outcome; the mutex keeps the in-memory
	// collection and the durable append in the same order.
	var mu sync.Mutex
	record := func(outcome api.StepOutcome) {
		mu.Lock()
		defer mu.Unlock()
		run.Outcomes = append(run.Outcomes, outcome)
		if err := e.runs.AppendOutcome(ctx, run.ID, outcome); err != nil {
			e.logger.Error("append outcome failed",
				slog.String("run_id", run.ID),
				slog.String("step", outcome.StepName),
				slog.Any("error", err),
			)
		}
	}

	statuses := runWorkflow(ctx, snap, run, record, e.observer)

	run.Status = aggregateRunStatus(statuses)
	run.EndedAt = time.Now().UTC()

	if err := e.runs.SealRun(ctx, run.ID, run.Status, run.EndedAt); err != nil {
		return run, fmt.Errorf("seal run: %w", err)
	}

	e.observer.OnRunSealed(ctx, run)

	return run, nil
}

// aggregateRunStatus derives the run's terminal status from its graph
// statuses: SUCCEEDED when every graph succeeded, FAILED when none did,
// PARTIALLY_FAILED for the mixture.
func aggregateRunStatus(statuses map[string]api.GraphStatus) api.RunStatus {
	succeeded, total := 0, 0
	for _, status := range statuses {
		total++
		if status == api.GraphSucceeded {
			succeeded++
		}
	}

	switch {
	case succeeded == total:
		return api.RunSucceeded
	case succeeded == 0:
		return api.RunFailed
	default:
		return api.RunPartiallyFailed
	}
}
