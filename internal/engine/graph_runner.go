package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/masonrylabs/masonry/pkg/api"
)

// graphRunner executes one compiled StageGraph within a run.
//
// Stages execute strictly in ascending order; steps within a stage run
// concurrently. A step failure is scoped to that step: siblings in the
// same stage are unaffected, dependents are skipped, and the skip
// propagates transitively. Cancellation is cooperative: it is observed
// at stage barriers, in-flight steps are allowed to finish, and
// not-yet-started steps are skipped with reason "cancelled".
type graphRunner struct {
	graph    *compiledGraph
	tasks    map[string]api.Task
	run      *api.Run
	record   func(api.StepOutcome)
	observer api.Observer
}

func (r *graphRunner) execute(ctx context.Context) api.GraphStatus {
	results := make(map[string]api.StepOutcome, len(r.graph.steps))

	for _, stage := range r.graph.plan {
		cancelled := ctx.Err() != nil

		var runnable []api.StepInstruction
		for _, name := range stage.Steps {
			inst := r.graph.steps[name]

			if cancelled {
				results[name] = r.skip(ctx, inst, "cancelled")
				continue
			}
			if blocker, blockerStatus, blocked := blockedBy(inst, results); blocked {
				reason := "dependency failed: " + blocker
				if blockerStatus == api.StepSkipped {
					reason = "dependency skipped: " + blocker
				}
				results[name] = r.skip(ctx, inst, reason)
				continue
			}
			runnable = append(runnable, inst)
		}

		if len(runnable) == 0 {
			continue
		}

		// Resolution may only reference earlier stages, so a pre-stage
		// snapshot gives every goroutine a read-only view while siblings
		// write their own outcomes under the mutex.
		prior := make(map[string]api.StepOutcome, len(results))
		for name, outcome := range results {
			prior[name] = outcome
		}

		var mu sync.Mutex
		g, stageCtx := errgroup.WithContext(ctx)
		for _, inst := range runnable {
			inst := inst
			g.Go(func() error {
				outcome := r.invoke(stageCtx, inst, prior)
				mu.Lock()
				results[inst.Name] = outcome
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	return aggregateGraphStatus(r.graph, results)
}

// blockedBy returns the first declared dependency (in declaration order)
// that did not succeed, if any.
func blockedBy(inst api.StepInstruction, results map[string]api.StepOutcome) (string, api.StepStatus, bool) {
	for _, dep := range inst.DependsOn {
		outcome, ok := results[dep]
		if !ok || outcome.Status != api.StepSucceeded {
			status := api.StepFailed
			if ok {
				status = outcome.Status
			}
			return dep, status, true
		}
	}
	return "", "", false
}

// invoke resolves the step's parameters and runs the task body, applying
// the step's retry policy. Failures are captured in the outcome, never
// propagated.
func (r *graphRunner) invoke(ctx context.Context, inst api.StepInstruction, results map[string]api.StepOutcome) api.StepOutcome {
	task := r.tasks[inst.TaskName]

	outcome := api.StepOutcome{
		StepName:  inst.Name,
		GraphName: r.graph.def.Name,
		Status:    api.StepRunning,
		StartedAt: time.Now().UTC(),
	}

	r.observer.OnStepStart(ctx, r.run, r.graph.def.Name, inst.Name, inst.Stage)

	input, err := resolveParams(inst, task, results)
	if err != nil {
		outcome.Status = api.StepFailed
		outcome.Error = err.Error()
		return r.finish(ctx, outcome)
	}
	outcome.Input = input

	maxAttempts := 1
	var backoff time.Duration
	if inst.Retry != nil {
		if inst.Retry.MaxAttempts > 0 {
			maxAttempts = inst.Retry.MaxAttempts
		}
		backoff = inst.Retry.Backoff
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		output, err := task.Fn(ctx, input)
		if err == nil {
			if task.OutputSchema != nil {
				if verr := task.OutputSchema.Validate(output); verr != nil {
					// Output shape mismatches are deterministic; retrying
					// the body cannot fix them.
					outcome.Status = api.StepFailed
					outcome.Error = "invalid output: " + verr.Error()
					return r.finish(ctx, outcome)
				}
			}
			outcome.Status = api.StepSucceeded
			outcome.Output = output
			return r.finish(ctx, outcome)
		}

		if attempt == maxAttempts {
			outcome.Status = api.StepFailed
			outcome.Error = err.Error()
			return r.finish(ctx, outcome)
		}

		if backoff > 0 {
			select {
			case <-ctx.Done():
				outcome.Status = api.StepFailed
				outcome.Error = ctx.Err().Error()
				return r.finish(ctx, outcome)
			case <-time.After(backoff):
			}
		}
	}

	// Unreachable: the loop always returns.
	outcome.Status = api.StepFailed
	return r.finish(ctx, outcome)
}

func (r *graphRunner) skip(ctx context.Context, inst api.StepInstruction, reason string) api.StepOutcome {
	now := time.Now().UTC()
	outcome := api.StepOutcome{
		StepName:  inst.Name,
		GraphName: r.graph.def.Name,
		Status:    api.StepSkipped,
		Reason:    reason,
		StartedAt: now,
		EndedAt:   now,
	}
	r.record(outcome)
	r.observer.OnStepCompleted(ctx, r.run, outcome, 0)
	return outcome
}

func (r *graphRunner) finish(ctx context.Context, outcome api.StepOutcome) api.StepOutcome {
	outcome.EndedAt = time.Now().UTC()
	r.record(outcome)
	r.observer.OnStepCompleted(ctx, r.run, outcome, outcome.EndedAt.Sub(outcome.StartedAt))
	return outcome
}

// aggregateGraphStatus derives the graph's terminal status. A graph is
// SUCCEEDED only when every step succeeded; any failure makes it FAILED
// even when everything downstream was merely skipped. A graph whose
// steps were all skipped is SKIPPED; a success/skip mixture (cancelled
// mid-run) counts as FAILED.
func aggregateGraphStatus(graph *compiledGraph, results map[string]api.StepOutcome) api.GraphStatus {
	succeeded, skipped := 0, 0
	for _, outcome := range results {
		switch outcome.Status {
		case api.StepFailed:
			return api.GraphFailed
		case api.StepSucceeded:
			succeeded++
		case api.StepSkipped:
			skipped++
		}
	}

	switch {
	case succeeded == len(graph.steps):
		return api.GraphSucceeded
	case skipped == len(graph.steps):
		return api.GraphSkipped
	default:
		return api.GraphFailed
	}
}
