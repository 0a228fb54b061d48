package api

import "time"

// StepStatus is the lifecycle state of one step within a run.
// Transitions: PENDING -> RUNNING -> (SUCCEEDED | FAILED | SKIPPED).
type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepRunning   StepStatus = "RUNNING"
	StepSucceeded StepStatus = "SUCCEEDED"
	StepFailed    StepStatus = "FAILED"
	StepSkipped   StepStatus = "SKIPPED"
)

// GraphStatus is the aggregate result of one StageGraph within a run.
//
// A graph is SUCCEEDED only if every step succeeded. Any failed step
// makes it FAILED, even when everything downstream was merely skipped;
// a broken pipeline is never reported as partially successful.
type GraphStatus string

const (
	GraphSucceeded GraphStatus = "SUCCEEDED"
	GraphFailed    GraphStatus = "FAILED"
	GraphSkipped   GraphStatus = "SKIPPED"
)

// RunStatus is the terminal status of a Run.
type RunStatus string

const (
	RunRunning         RunStatus = "RUNNING"
	RunSucceeded       RunStatus = "SUCCEEDED"
	RunFailed          RunStatus = "FAILED"
	RunPartiallyFailed RunStatus = "PARTIALLY_FAILED"
)

// TriggerKind says how a Run was started.
type TriggerKind string

const (
	// TriggerFirstPass marks a one-time execution.
	TriggerFirstPass TriggerKind = "first_pass"

	// TriggerScheduled marks one occurrence of a recurring schedule.
	// Each occurrence produces an independent Run.
	TriggerScheduled TriggerKind = "scheduled_pass"
)

// StepOutcome records the result of one step's execution. It is owned
// exclusively by the Run that produced it and never mutated after the
// step completes.
type StepOutcome struct {
	StepName  string
	GraphName string

	// Input is the snapshot of the step's fully resolved parameters.
	// Nil for steps that were skipped before resolution.
	Input Params

	// Output is the task body's product, or nil on failure or skip.
	Output any

	Status StepStatus

	// Error carries the failure detail for FAILED steps.
	Error string

	// Reason explains SKIPPED steps, e.g. "cancelled" or
	// "dependency failed: extract".
	Reason string

	StartedAt time.Time
	EndedAt   time.Time
}

// Run is a single execution instance of a Workflow. It is created when a
// pass begins, grows append-only as steps complete, and is sealed
// (immutable) once its terminal status is set.
type Run struct {
	ID           string
	WorkflowName string
	Trigger      TriggerKind
	Status       RunStatus
	StartedAt    time.Time
	EndedAt      time.Time

	// Outcomes is ordered by completion within each graph, graphs in
	// workflow position order.
	Outcomes []StepOutcome
}

// RunListOptions filters ListRuns. Zero values mean "no filter".
type RunListOptions struct {
	WorkflowName string

	// From/To bound the run's StartedAt (inclusive From, exclusive To).
	From time.Time
	To   time.Time
}
