package api

import "context"

// ScheduleHandle identifies one recurring schedule installed via
// ScheduledPass. Stopping it prevents future occurrences; runs already in
// flight are allowed to finish.
type ScheduleHandle interface {
	// ID returns an opaque identifier for the schedule.
	ID() string

	// Stop cancels the recurring trigger. It is idempotent.
	Stop()
}

// Engine is the orchestration engine API.
//
// Definitions (tasks, stage graphs, workflows) are registered up front
// and are read-only during execution. Registration is idempotent by
// name: re-registering replaces the previous definition unless an
// in-flight run still references it, in which case it fails with
// *DefinitionInUseError.
type Engine interface {
	// RegisterTask registers a task definition by name.
	RegisterTask(t Task) error

	// RegisterGraph validates a stage graph against the registered tasks,
	// derives and caches its executable plan, and registers it by name.
	// Construction errors (UnknownTaskError, UnknownDependencyError,
	// CyclicDependencyError, StageOrderingViolation) are returned
	// synchronously; a rejected graph is never runnable.
	RegisterGraph(g StageGraph) error

	// RegisterWorkflow registers a workflow by name. Every referenced
	// graph must already be registered, and each graph may appear at most
	// once.
	RegisterWorkflow(w Workflow) error

	// ListTasks, ListGraphs and ListWorkflows return the registered names
	// in lexical order.
	ListTasks() []string
	ListGraphs() []string
	ListWorkflows() []string

	// GraphPlan returns the cached executable plan for a registered graph.
	GraphPlan(name string) (Plan, error)

	// FirstPass executes the named workflow once, synchronously. It
	// creates a new Run, executes every stage graph, seals the Run with
	// its terminal status, and returns it. Execution-time step failures
	// do not surface as an error; they are captured in the Run's
	// outcomes and aggregate status. The returned error is non-nil only
	// for pass-level failures (unknown workflow, persistence).
	FirstPass(ctx context.Context, workflowName string) (*Run, error)

	// ScheduledPass installs a recurring trigger that executes the named
	// workflow at each occurrence of the schedule, producing one
	// independent Run per occurrence. Overlapping occurrences run
	// concurrently; the engine does not serialize them.
	//
	// The schedule spec accepts standard cron expressions as well as
	// "@every <duration>" intervals.
	ScheduledPass(workflowName string, scheduleSpec string) (ScheduleHandle, error)

	// GetRun looks up a run by ID.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs matching the given options, most recent
	// first. Zero-valued options return all runs.
	ListRuns(ctx context.Context, opts RunListOptions) ([]*Run, error)

	// Close stops all installed schedules and waits for scheduled runs
	// already in flight to seal.
	Close() error
}
