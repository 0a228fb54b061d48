package api

import (
	"context"
	"time"
)

// Params is the validated input set handed to a task body, keyed by
// parameter name.
type Params = map[string]any

// TaskFunc is the executable body of a Task. It receives the fully
// resolved and schema-validated input set and returns the task's output
// (or nil for tasks that produce none).
//
// Bodies must treat their input as read-only: the engine snapshots the
// resolved parameters into the step's outcome record before invocation.
type TaskFunc func(ctx context.Context, input Params) (any, error)

// Task is an atomic, named, typed unit of work. Tasks are registered once
// at startup and are read-only during execution; graphs reference them by
// name.
type Task struct {
	Name        string
	Description string
	Tags        []string

	// InputSchema maps each expected parameter name to the schema its
	// resolved value must satisfy. Parameters without an entry are passed
	// through unchecked; a nil map disables input validation entirely.
	InputSchema map[string]Schema

	// OutputSchema, if non-nil, is checked against the task's output
	// after a successful invocation.
	OutputSchema Schema

	Fn TaskFunc
}

// RetryPolicy controls how a step invocation is retried when the task
// body returns an error. MaxAttempts includes the first attempt:
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 3 => initial call + up to 2 retries
//
// Backoff is the delay between failed attempts; zero retries immediately.
// Retried bodies re-consume the already-resolved parameters, so they must
// be idempotent-safe.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}
