package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/masonrylabs/masonry/pkg/api"
)

// runWorkflow executes a workflow's stage graphs position by position.
// Graphs sharing a position run concurrently; the runner advances only
// once every graph at the current position has reached a terminal state.
//
// A graph whose declared dependency failed (or was skipped) is skipped
// wholesale: every step in its plan is recorded SKIPPED. Graphs without
// such a dependency still execute; the workflow does not abort on the
// first failure.
func runWorkflow(ctx context.Context, snap *snapshot, run *api.Run, record func(api.StepOutcome), observer api.Observer) map[string]api.GraphStatus {
	byPosition := make(map[int][]api.WorkflowEntry)
	var positions []int
	for _, entry := range snap.workflow.Entries {
		if _, seen := byPosition[entry.Position]; !seen {
			positions = append(positions, entry.Position)
		}
		byPosition[entry.Position] = append(byPosition[entry.Position], entry)
	}
	sort.Ints(positions)

	statuses := make(map[string]api.GraphStatus, len(snap.workflow.Entries))

	for _, position := range positions {
		cancelled := ctx.Err() != nil

		var runnable []api.WorkflowEntry
		for _, entry := range byPosition[position] {
			if cancelled {
				skipGraph(ctx, snap.graphs[entry.GraphName], run, "cancelled", record, observer)
				statuses[entry.GraphName] = api.GraphSkipped
				continue
			}
			if blocker, blockerStatus, blocked := blockedGraph(entry, statuses); blocked {
				reason := "graph dependency failed: " + blocker
				if blockerStatus == api.GraphSkipped {
					reason = "graph dependency skipped: " + blocker
				}
				skipGraph(ctx, snap.graphs[entry.GraphName], run, reason, record, observer)
				statuses[entry.GraphName] = api.GraphSkipped
				continue
			}
			runnable = append(runnable, entry)
		}

		if len(runnable) == 0 {
			continue
		}

		var mu sync.Mutex
		g, posCtx := errgroup.WithContext(ctx)
		for _, entry := range runnable {
			entry := entry
			g.Go(func() error {
				observer.OnGraphStart(posCtx, run, entry.GraphName, entry.Position)

				runner := &graphRunner{
					graph:    snap.graphs[entry.GraphName],
					tasks:    snap.tasks,
					run:      run,
					record:   record,
					observer: observer,
				}
				status := runner.execute(posCtx)

				observer.OnGraphCompleted(posCtx, run, entry.GraphName, status)

				mu.Lock()
				statuses[entry.GraphName] = status
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	return statuses
}

// blockedGraph returns the first declared graph dependency that did not
// succeed, if any, along with its status.
func blockedGraph(entry api.WorkflowEntry, statuses map[string]api.GraphStatus) (string, api.GraphStatus, bool) {
	for _, dep := range entry.DependsOn {
		if status := statuses[dep]; status != api.GraphSucceeded {
			return dep, status, true
		}
	}
	return "", "", false
}

// skipGraph records a SKIPPED outcome for every step of the graph, in
// plan order, without invoking anything.
func skipGraph(ctx context.Context, graph *compiledGraph, run *api.Run, reason string, record func(api.StepOutcome), observer api.Observer) {
	now := time.Now().UTC()
	for _, stage := range graph.plan {
		for _, name := range stage.Steps {
			outcome := api.StepOutcome{
				StepName:  name,
				GraphName: graph.def.Name,
				Status:    api.StepSkipped,
				Reason:    reason,
				StartedAt: now,
				EndedAt:   now,
			}
			record(outcome)
			observer.OnStepCompleted(ctx, run, outcome, 0)
		}
	}
}
