package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be
// done asynchronously so as not to delay run execution. Step callbacks
// may be invoked concurrently for steps in the same stage.
type Observer interface {
	// OnRunStart is called once when a run is created, before any graph
	// executes.
	OnRunStart(ctx context.Context, run *Run)

	// OnRunSealed is called once when the run's terminal status is set.
	OnRunSealed(ctx context.Context, run *Run)

	// OnGraphStart is called before a stage graph begins executing.
	OnGraphStart(ctx context.Context, run *Run, graphName string, position int)

	// OnGraphCompleted is called when a stage graph reaches a terminal
	// status, including GraphSkipped.
	OnGraphCompleted(ctx context.Context, run *Run, graphName string, status GraphStatus)

	// OnStepStart is called before a step's task body is invoked. It is
	// not called for skipped steps.
	OnStepStart(ctx context.Context, run *Run, graphName, stepName string, stage int)

	// OnStepCompleted is called after a step reaches a terminal state,
	// for successes, failures, and skips alike.
	OnStepCompleted(ctx context.Context, run *Run, outcome StepOutcome, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, run *Run)  {}
func (NoopObserver) OnRunSealed(ctx context.Context, run *Run) {}
func (NoopObserver) OnGraphStart(ctx context.Context, run *Run, graphName string, position int) {}
func (NoopObserver) OnGraphCompleted(ctx context.Context, run *Run, graphName string, status GraphStatus) {
}
func (NoopObserver) OnStepStart(ctx context.Context, run *Run, graphName, stepName string, stage int) {
}
func (NoopObserver) OnStepCompleted(ctx context.Context, run *Run, outcome StepOutcome, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, run *Run) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, run)
	}
}

func (c *CompositeObserver) OnRunSealed(ctx context.Context, run *Run) {
	for _, o := range c.observers {
		o.OnRunSealed(ctx, run)
	}
}

func (c *CompositeObserver) OnGraphStart(ctx context.Context, run *Run, graphName string, position int) {
	for _, o := range c.observers {
		o.OnGraphStart(ctx, run, graphName, position)
	}
}

func (c *CompositeObserver) OnGraphCompleted(ctx context.Context, run *Run, graphName string, status GraphStatus) {
	for _, o := range c.observers {
		o.OnGraphCompleted(ctx, run, graphName, status)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, run *Run, graphName, stepName string, stage int) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, run, graphName, stepName, stage)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, run *Run, outcome StepOutcome, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, run, outcome, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / graph / step
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, run *Run) {
	o.Logger.InfoContext(ctx, "run_start",
		slog.String("workflow", run.WorkflowName),
		slog.String("run_id", run.ID),
		slog.String("trigger", string(run.Trigger)),
	)
}

func (o *LoggingObserver) OnRunSealed(ctx context.Context, run *Run) {
	level := slog.LevelInfo
	if run.Status != RunSucceeded {
		level = slog.LevelWarn
	}
	o.Logger.Log(ctx, level, "run_sealed",
		slog.String("workflow", run.WorkflowName),
		slog.String("run_id", run.ID),
		slog.String("status", string(run.Status)),
		slog.Duration("duration", run.EndedAt.Sub(run.StartedAt)),
	)
}

func (o *LoggingObserver) OnGraphStart(ctx context.Context, run *Run, graphName string, position int) {
	o.Logger.DebugContext(ctx, "graph_start",
		slog.String("workflow", run.WorkflowName),
		slog.String("run_id", run.ID),
		slog.String("graph", graphName),
		slog.Int("position", position),
	)
}

func (o *LoggingObserver) OnGraphCompleted(ctx context.Context, run *Run, graphName string, status GraphStatus) {
	level := slog.LevelDebug
	if status == GraphFailed {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "graph_completed",
		slog.String("workflow", run.WorkflowName),
		slog.String("run_id", run.ID),
		slog.String("graph", graphName),
		slog.String("status", string(status)),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, run *Run, graphName, stepName string, stage int) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("run_id", run.ID),
		slog.String("graph", graphName),
		slog.String("step", stepName),
		slog.Int("stage", stage),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, run *Run, outcome StepOutcome, d time.Duration) {
	level := slog.LevelDebug
	if outcome.Status == StepFailed {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "step_completed",
		slog.String("run_id", run.ID),
		slog.String("graph", outcome.GraphName),
		slog.String("step", outcome.StepName),
		slog.String("status", string(outcome.Status)),
		slog.Duration("duration", d),
		slog.String("error", outcome.Error),
	)
}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	runsStarted         atomic.Int64
	runsSucceeded       atomic.Int64
	runsFailed          atomic.Int64
	runsPartiallyFailed atomic.Int64

	stepsSucceeded    atomic.Int64
	stepsFailed       atomic.Int64
	stepsSkipped      atomic.Int64
	totalStepDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted         int64
	RunsSucceeded       int64
	RunsFailed          int64
	RunsPartiallyFailed int64
	RunsInFlight        int64

	StepsSucceeded  int64
	StepsFailed     int64
	StepsSkipped    int64
	AvgStepDuration time.Duration
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, run *Run) {
	m.runsStarted.Add(1)
}

func (m *BasicMetrics) OnRunSealed(ctx context.Context, run *Run) {
	switch run.Status {
	case RunSucceeded:
		m.runsSucceeded.Add(1)
	case RunPartiallyFailed:
		m.runsPartiallyFailed.Add(1)
	default:
		m.runsFailed.Add(1)
	}
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, run *Run, outcome StepOutcome, d time.Duration) {
	switch outcome.Status {
	case StepSucceeded:
		m.stepsSucceeded.Add(1)
		m.totalStepDuration.Add(d.Nanoseconds())
	case StepFailed:
		m.stepsFailed.Add(1)
	case StepSkipped:
		m.stepsSkipped.Add(1)
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.runsStarted.Load()
	succeeded := m.runsSucceeded.Load()
	failed := m.runsFailed.Load()
	partial := m.runsPartiallyFailed.Load()
	steps := m.stepsSucceeded.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if steps > 0 {
		avg = time.Duration(totalNs / steps)
	}

	return BasicMetricsSnapshot{
		RunsStarted:         started,
		RunsSucceeded:       succeeded,
		RunsFailed:          failed,
		RunsPartiallyFailed: partial,
		RunsInFlight:        started - succeeded - failed - partial,
		StepsSucceeded:      steps,
		StepsFailed:         m.stepsFailed.Load(),
		StepsSkipped:        m.stepsSkipped.Load(),
		AvgStepDuration:     avg,
	}
}
