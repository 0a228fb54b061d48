package masonry

import (
	"context"
	"database/sql"

	"github.com/masonrylabs/masonry/internal/engine"
	"github.com/masonrylabs/masonry/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	Task                 = api.Task
	TaskFunc             = api.TaskFunc
	Params               = api.Params
	ParamValue           = api.ParamValue
	StepInstruction      = api.StepInstruction
	StageGraph           = api.StageGraph
	Workflow             = api.Workflow
	WorkflowEntry        = api.WorkflowEntry
	Run                  = api.Run
	StepOutcome          = api.StepOutcome
	RunListOptions       = api.RunListOptions
	RetryPolicy          = api.RetryPolicy
	Schema               = api.Schema
	ScheduleHandle       = api.ScheduleHandle
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export parameter-binding constructors and observer helpers.

var (
	Lit                  = api.Lit
	Ref                  = api.Ref
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export status values for convenience.

const (
	StepSucceeded = api.StepSucceeded
	StepFailed    = api.StepFailed
	StepSkipped   = api.StepSkipped

	RunSucceeded       = api.RunSucceeded
	RunFailed          = api.RunFailed
	RunPartiallyFailed = api.RunPartiallyFailed

	TriggerFirstPass = api.TriggerFirstPass
	TriggerScheduled = api.TriggerScheduled
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory state.
func NewInMemoryEngine() Engine {
	return engine.NewInMemoryEngine()
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given Observer.
func NewInMemoryEngineWithObserver(obs Observer) Engine {
	return engine.NewInMemoryEngineWithObserver(obs)
}

// NewSQLiteEngine returns an Engine that persists run history in a
// SQLite database. Definitions are kept in-memory.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return engine.NewSQLiteEngine(db)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	return engine.NewSQLiteEngineWithObserver(db, obs)
}

// Convenience helpers that just forward to the underlying Engine.

// FirstPass executes a registered workflow once, synchronously, and
// returns the sealed Run.
func FirstPass(ctx context.Context, eng Engine, workflowName string) (*Run, error) {
	return eng.FirstPass(ctx, workflowName)
}

// ScheduledPass installs a recurring trigger for the workflow.
func ScheduledPass(eng Engine, workflowName, scheduleSpec string) (ScheduleHandle, error) {
	return eng.ScheduledPass(workflowName, scheduleSpec)
}

// CancelSchedule stops a schedule installed via ScheduledPass.
// Runs already in flight are allowed to finish.
func CancelSchedule(handle ScheduleHandle) {
	if handle != nil {
		handle.Stop()
	}
}

// GetRun fetches a run by ID.
func GetRun(ctx context.Context, eng Engine, id string) (*Run, error) {
	return eng.GetRun(ctx, id)
}

// ListRuns lists runs according to the given options.
func ListRuns(ctx context.Context, eng Engine, opts RunListOptions) ([]*Run, error) {
	return eng.ListRuns(ctx, opts)
}
