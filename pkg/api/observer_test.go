package api

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// countingObserver records how many times each callback fired.
type countingObserver struct {
	mu sync.Mutex

	runStarts  int
	runSeals   int
	graphDone  int
	stepStarts int
	stepDone   int
}

func (o *countingObserver) OnRunStart(ctx context.Context, run *Run) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runStarts++
}

func (o *countingObserver) OnRunSealed(ctx context.Context, run *Run) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runSeals++
}

func (o *countingObserver) OnGraphStart(ctx context.Context, run *Run, graphName string, position int) {}

func (o *countingObserver) OnGraphCompleted(ctx context.Context, run *Run, graphName string, status GraphStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.graphDone++
}

func (o *countingObserver) OnStepStart(ctx context.Context, run *Run, graphName, stepName string, stage int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stepStarts++
}

func (o *countingObserver) OnStepCompleted(ctx context.Context, run *Run, outcome StepOutcome, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stepDone++
}

func TestCompositeObserver_FanOut(t *testing.T) {
	ctx := context.Background()
	a := &countingObserver{}
	b := &countingObserver{}

	composite := NewCompositeObserver(a, nil, b)

	run := &Run{ID: "r1", WorkflowName: "wf"}
	composite.OnRunStart(ctx, run)
	composite.OnRunSealed(ctx, run)
	composite.OnGraphCompleted(ctx, run, "g", GraphSucceeded)
	composite.OnStepStart(ctx, run, "g", "s", 1)
	composite.OnStepCompleted(ctx, run, StepOutcome{StepName: "s", Status: StepSucceeded}, time.Millisecond)

	for _, obs := range []*countingObserver{a, b} {
		if obs.runStarts != 1 || obs.runSeals != 1 || obs.graphDone != 1 || obs.stepStarts != 1 || obs.stepDone != 1 {
			t.Fatalf("callbacks not fanned out: %+v", obs)
		}
	}
}

func TestCompositeObserver_Degenerate(t *testing.T) {
	if _, ok := NewCompositeObserver().(NoopObserver); !ok {
		t.Fatal("expected NoopObserver when no observers are given")
	}

	single := &countingObserver{}
	if got := NewCompositeObserver(single, nil); got != Observer(single) {
		t.Fatal("expected a lone observer to be returned unwrapped")
	}
}

func TestBasicMetrics_Snapshot(t *testing.T) {
	ctx := context.Background()
	m := &BasicMetrics{}

	run := &Run{ID: "r1"}
	m.OnRunStart(ctx, run)
	m.OnRunStart(ctx, &Run{ID: "r2"})
	m.OnRunSealed(ctx, &Run{ID: "r1", Status: RunSucceeded})

	m.OnStepCompleted(ctx, run, StepOutcome{Status: StepSucceeded}, 10*time.Millisecond)
	m.OnStepCompleted(ctx, run, StepOutcome{Status: StepSucceeded}, 20*time.Millisecond)
	m.OnStepCompleted(ctx, run, StepOutcome{Status: StepFailed}, time.Millisecond)
	m.OnStepCompleted(ctx, run, StepOutcome{Status: StepSkipped}, 0)

	snap := m.Snapshot()
	if snap.RunsStarted != 2 || snap.RunsSucceeded != 1 || snap.RunsInFlight != 1 {
		t.Fatalf("unexpected run counters: %+v", snap)
	}
	if snap.StepsSucceeded != 2 || snap.StepsFailed != 1 || snap.StepsSkipped != 1 {
		t.Fatalf("unexpected step counters: %+v", snap)
	}
	if snap.AvgStepDuration != 15*time.Millisecond {
		t.Fatalf("expected 15ms average, got %v", snap.AvgStepDuration)
	}
}

func TestBasicMetrics_PartialFailureCounted(t *testing.T) {
	ctx := context.Background()
	m := &BasicMetrics{}

	m.OnRunStart(ctx, &Run{ID: "r1"})
	m.OnRunSealed(ctx, &Run{ID: "r1", Status: RunPartiallyFailed})

	snap := m.Snapshot()
	if snap.RunsPartiallyFailed != 1 || snap.RunsFailed != 0 || snap.RunsInFlight != 0 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
}

func TestLoggingObserver_WritesStructuredEvents(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	obs := NewLoggingObserver(logger)

	run := &Run{ID: "r1", WorkflowName: "nightly", Trigger: TriggerFirstPass, Status: RunFailed}
	obs.OnRunStart(ctx, run)
	obs.OnStepCompleted(ctx, run, StepOutcome{GraphName: "etl", StepName: "extract", Status: StepFailed, Error: "boom"}, time.Millisecond)
	obs.OnRunSealed(ctx, run)

	out := buf.String()
	for _, want := range []string{"run_start", "workflow=nightly", "step_completed", "error=boom", "run_sealed", "level=WARN"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q:\n%s", want, out)
		}
	}
}
