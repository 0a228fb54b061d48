// Package api contains the core building blocks used by the masonry
// orchestration engine. It provides the data model for tasks, stage
// graphs, workflows and runs, the Engine interface, the typed error
// kinds, and the pluggable schema-validation and observability
// boundaries.
//
// Most users interact with the higher-level masonry package, which
// re-exports selected types and helpers from this package. The api
// package is intended for advanced use cases, custom integrations, or
// contributors extending the engine itself.
//
// # Concepts
//
// The api package centers around a small set of concepts:
//
//   - Tasks: atomic, named, typed units of work
//   - Stage graphs: validated dependency graphs of task invocations
//   - Workflows: ordered compositions of stage graphs
//   - Runs: durable records of a single workflow execution
//
// # Tasks
//
// A Task couples a name, an input/output schema, and an executable body.
// Tasks are registered once at startup and looked up by name during
// graph execution; they are never mutated afterwards.
//
// Task bodies are expected to be idempotent-safe when combined with a
// RetryPolicy: a retried body re-consumes the same already-resolved
// parameters.
//
// # Stage Graphs
//
// A StageGraph is a list of StepInstructions, each naming a task, its
// parameter bindings, an explicit stage number, and the steps it depends
// on. Registration validates the graph (unknown tasks, unknown
// dependencies, cycles, stage ordering) and derives a deterministic
// executable Plan: stages in ascending order, each stage a set of steps
// eligible to run concurrently.
//
// Equal stage numbers are a deliberate concurrency hint: steps sharing a
// stage run together once every earlier stage has reached a terminal
// state.
//
// # Parameter Binding
//
// Parameters bind either to a literal value (Lit) or to the output of an
// earlier step (Ref). References are tagged values, not string
// conventions, and must name a declared dependency; resolution
// substitutes the referenced step's output and validates the result
// against the task's input schema before invocation.
//
// # Runs and Outcomes
//
// Executing a workflow produces a Run: an append-only collection of
// per-step StepOutcome records plus a terminal status. Step failures
// never propagate as panics or errors across step boundaries; they are
// captured per step, dependents are skipped, and the aggregate status is
// the only signal surfaced to the caller.
//
// # Observability
//
// The Observer interface reports run, graph, and step lifecycle events.
// Ready-made implementations are provided: LoggingObserver (log/slog),
// BasicMetrics (in-memory counters), CompositeObserver, and
// NoopObserver.
//
// # Usage
//
// Most applications should start from the masonry package, using the
// GraphBuilder / WorkflowBuilder and engine constructors provided there.
// See the examples directory for end-to-end usage.
package api
