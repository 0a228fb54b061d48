// Package masonry provides a lightweight, embeddable DAG orchestration
// engine for ETL-style workflows in Go.
//
// Masonry is designed for backend services that need typed, dependency-
// ordered pipelines (extract/transform/load chains, batch jobs, report
// builders) without introducing heavy infrastructure. It runs fully in
// Go, records every step's inputs, outputs and failures durably, and
// integrates cleanly into existing codebases.
//
// # Core Concepts
//
// The Masonry programming model is intentionally small:
//
//  1. Task: an atomic, named, typed unit of work
//  2. StageGraph: a validated dependency graph of task invocations
//  3. Workflow: an ordered composition of stage graphs
//  4. Run: the durable record of one workflow execution
//  5. Engine: registration, execution, and run history
//
// # Tasks
//
// A task couples a name, an input/output schema, and an executable body:
//
//	eng.RegisterTask(masonry.Task{
//	    Name: "extract-orders",
//	    InputSchema: map[string]masonry.Schema{
//	        "since": schema.String(),
//	    },
//	    Fn: func(ctx context.Context, in masonry.Params) (any, error) {
//	        return map[string]any{"rows": fetchSince(in["since"].(string))}, nil
//	    },
//	})
//
// # Stage Graphs
//
// A stage graph wires tasks together with explicit stage numbers and
// dependencies. Steps sharing a stage number run concurrently; a step's
// parameters may reference the output of any step it depends on:
//
//	masonry.NewGraph("daily-etl").
//	    Step("extract", "extract-orders", 1,
//	        masonry.Param("since", masonry.Lit("yesterday"))).
//	    Step("transform", "normalize-orders", 2,
//	        masonry.DependsOn("extract"),
//	        masonry.Param("data", masonry.Ref("extract"))).
//	    Step("load", "load-warehouse", 3,
//	        masonry.DependsOn("transform"),
//	        masonry.Param("data", masonry.Ref("transform"))).
//	    MustRegister(eng)
//
// Registration validates the graph (unknown tasks, unknown or cyclic
// dependencies, and stage-ordering violations are rejected before
// anything runs) and caches a deterministic execution plan.
//
// # Workflows and Passes
//
// A workflow arranges registered graphs into positions; graphs at the
// same position run concurrently. FirstPass executes a workflow once,
// synchronously, and returns the sealed Run. ScheduledPass installs a
// recurring trigger (cron expression or "@every" interval) producing one
// independent Run per occurrence; overlapping occurrences are not
// serialized.
//
//	run, err := eng.FirstPass(ctx, "nightly")
//	handle, err := eng.ScheduledPass("nightly", "0 2 * * *")
//	defer handle.Stop()
//
// # Failure Semantics
//
// A step failure is scoped to that step: siblings in the same stage are
// unaffected, dependents are skipped transitively, and the run's
// aggregate status (SUCCEEDED, FAILED, or PARTIALLY_FAILED) is the only
// signal surfaced to the caller. A graph with any failed step is FAILED
// outright; downstream skips never soften a broken pipeline into a
// partial success.
//
// # Persistence
//
// Run history is durable behind a pluggable store:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability via modernc.org/sqlite)
//
// Definitions stay in-memory; they are registered at startup and
// read-only during execution.
//
// # Observability
//
// The Observer interface reports run, graph, and step lifecycle events.
// Ready-made implementations include a log/slog logger and an in-memory
// metrics collector; combine them with NewCompositeObserver.
//
// See the examples directory for end-to-end usage.
package masonry
