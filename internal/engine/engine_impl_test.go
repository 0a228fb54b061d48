package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/masonrylabs/masonry/pkg/api"
	"github.com/masonrylabs/masonry/pkg/schema"
)

// registerETL wires the canonical extract -> transform -> load pipeline:
// extract produces 42, transform doubles it, load records what it saw.
func registerETL(t *testing.T, eng api.Engine, extractFn api.TaskFunc) *int {
	t.Helper()

	var loaded int

	if extractFn == nil {
		extractFn = func(ctx context.Context, in api.Params) (any, error) {
			return 42, nil
		}
	}

	tasks := []api.Task{
		{
			Name:         "extract-number",
			OutputSchema: schema.Int(),
			Fn:           extractFn,
		},
		{
			Name:         "double",
			InputSchema:  map[string]api.Schema{"data": schema.Int()},
			OutputSchema: schema.Int(),
			Fn: func(ctx context.Context, in api.Params) (any, error) {
				return in["data"].(int) * 2, nil
			},
		},
		{
			Name:        "record",
			InputSchema: map[string]api.Schema{"data": schema.Int()},
			Fn: func(ctx context.Context, in api.Params) (any, error) {
				loaded = in["data"].(int)
				return nil, nil
			},
		},
	}
	for _, task := range tasks {
		if err := eng.RegisterTask(task); err != nil {
			t.Fatalf("RegisterTask(%s) failed: %v", task.Name, err)
		}
	}

	g := api.StageGraph{
		Name: "etl",
		Instructions: []api.StepInstruction{
			{Name: "extract", TaskName: "extract-number", Stage: 1},
			{
				Name: "transform", TaskName: "double", Stage: 2,
				DependsOn: []string{"extract"},
				Params:    map[string]api.ParamValue{"data": api.Ref("extract")},
			},
			{
				Name: "load", TaskName: "record", Stage: 3,
				DependsOn: []string{"transform"},
				Params:    map[string]api.ParamValue{"data": api.Ref("transform")},
			},
		},
	}
	if err := eng.RegisterGraph(g); err != nil {
		t.Fatalf("RegisterGraph failed: %v", err)
	}

	wf := api.Workflow{
		Name:    "nightly",
		Entries: []api.WorkflowEntry{{GraphName: "etl", Position: 1}},
	}
	if err := eng.RegisterWorkflow(wf); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}

	return &loaded
}

func outcomeByStep(run *api.Run) map[string]api.StepOutcome {
	out := make(map[string]api.StepOutcome, len(run.Outcomes))
	for _, o := range run.Outcomes {
		out[o.StepName] = o
	}
	return out
}

func TestFirstPass_ETLSucceeds(t *testing.T) {
	eng := NewInMemoryEngine()
	loaded := registerETL(t, eng, nil)

	run, err := eng.FirstPass(context.Background(), "nightly")
	if err != nil {
		t.Fatalf("FirstPass failed: %v", err)
	}

	if run.Status != api.RunSucceeded {
		t.Fatalf("expected run status %q, got %q", api.RunSucceeded, run.Status)
	}
	if run.Trigger != api.TriggerFirstPass {
		t.Fatalf("expected trigger %q, got %q", api.TriggerFirstPass, run.Trigger)
	}
	if run.ID == "" {
		t.Fatal("expected a non-empty run ID")
	}
	if *loaded != 84 {
		t.Fatalf("expected load to see 84, got %d", *loaded)
	}

	byStep := outcomeByStep(run)
	if len(byStep) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(run.Outcomes))
	}
	if byStep["extract"].Output != 42 {
		t.Fatalf("expected extract output 42, got %v", byStep["extract"].Output)
	}
	if byStep["transform"].Output != 84 {
		t.Fatalf("expected transform output 84, got %v", byStep["transform"].Output)
	}
	if byStep["transform"].Input["data"] != 42 {
		t.Fatalf("expected transform input snapshot 42, got %v", byStep["transform"].Input)
	}
	for _, name := range []string{"extract", "transform", "load"} {
		if byStep[name].Status != api.StepSucceeded {
			t.Fatalf("expected step %q SUCCEEDED, got %q", name, byStep[name].Status)
		}
	}
}

func TestFirstPass_FailureSkipsDependents(t *testing.T) {
	eng := NewInMemoryEngine()
	loaded := registerETL(t, eng, func(ctx context.Context, in api.Params) (any, error) {
		return nil, errors.New("upstream unavailable")
	})

	run, err := eng.FirstPass(context.Background(), "nightly")
	if err != nil {
		t.Fatalf("FirstPass failed: %v", err)
	}

	if run.Status != api.RunFailed {
		t.Fatalf("expected run status %q, got %q", api.RunFailed, run.Status)
	}
	if *loaded != 0 {
		t.Fatalf("expected load never to run, saw %d", *loaded)
	}

	byStep := outcomeByStep(run)
	if byStep["extract"].Status != api.StepFailed {
		t.Fatalf("expected extract FAILED, got %q", byStep["extract"].Status)
	}
	if byStep["extract"].Error != "upstream unavailable" {
		t.Fatalf("unexpected extract error: %q", byStep["extract"].Error)
	}
	if byStep["transform"].Status != api.StepSkipped {
		t.Fatalf("expected transform SKIPPED, got %q", byStep["transform"].Status)
	}
	if byStep["transform"].Reason != "dependency failed: extract" {
		t.Fatalf("unexpected transform skip reason: %q", byStep["transform"].Reason)
	}
	if byStep["load"].Reason != "dependency skipped: transform" {
		t.Fatalf("unexpected load skip reason: %q", byStep["load"].Reason)
	}
}

func TestFirstPass_SiblingSurvivesFailure(t *testing.T) {
	eng := NewInMemoryEngine()

	mustRegisterTask(t, eng, api.Task{
		Name: "ok",
		Fn:   func(ctx context.Context, in api.Params) (any, error) { return "fine", nil },
	})
	mustRegisterTask(t, eng, api.Task{
		Name: "boom",
		Fn:   func(ctx context.Context, in api.Params) (any, error) { return nil, errors.New("boom") },
	})

	g := api.StageGraph{
		Name: "fanout",
		Instructions: []api.StepInstruction{
			{Name: "good", TaskName: "ok", Stage: 1},
			{Name: "bad", TaskName: "boom", Stage: 1},
		},
	}
	if err := eng.RegisterGraph(g); err != nil {
		t.Fatalf("RegisterGraph failed: %v", err)
	}
	if err := eng.RegisterWorkflow(api.Workflow{
		Name:    "wf",
		Entries: []api.WorkflowEntry{{GraphName: "fanout", Position: 1}},
	}); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}

	run, err := eng.FirstPass(context.Background(), "wf")
	if err != nil {
		t.Fatalf("FirstPass failed: %v", err)
	}

	byStep := outcomeByStep(run)
	if byStep["good"].Status != api.StepSucceeded {
		t.Fatalf("expected sibling to succeed, got %q", byStep["good"].Status)
	}
	if byStep["bad"].Status != api.StepFailed {
		t.Fatalf("expected bad step to fail, got %q", byStep["bad"].Status)
	}
	if run.Status != api.RunFailed {
		t.Fatalf("expected run status %q, got %q", api.RunFailed, run.Status)
	}
}

func TestFirstPass_ConcurrentSiblingsResolveRefs(t *testing.T) {
	eng := NewInMemoryEngine()

	mustRegisterTask(t, eng, api.Task{
		Name:         "produce",
		OutputSchema: schema.Int(),
		Fn: func(ctx context.Context, in api.Params) (any, error) {
			return 7, nil
		},
	})
	mustRegisterTask(t, eng, api.Task{
		Name:         "double",
		InputSchema:  map[string]api.Schema{"data": schema.Int()},
		OutputSchema: schema.Int(),
		Fn: func(ctx context.Context, in api.Params) (any, error) {
			return in["data"].(int) * 2, nil
		},
	})

	// A wide stage of consumers all resolving the producer's output
	// concurrently.
	instructions := []api.StepInstruction{{Name: "producer", TaskName: "produce", Stage: 1}}
	for i := 0; i < 64; i++ {
		instructions = append(instructions, api.StepInstruction{
			Name:      fmt.Sprintf("consumer-%02d", i),
			TaskName:  "double",
			Stage:     2,
			DependsOn: []string{"producer"},
			Params:    map[string]api.ParamValue{"data": api.Ref("producer")},
		})
	}
	if err := eng.RegisterGraph(api.StageGraph{Name: "fanout", Instructions: instructions}); err != nil {
		t.Fatalf("RegisterGraph failed: %v", err)
	}
	if err := eng.RegisterWorkflow(api.Workflow{
		Name:    "wf",
		Entries: []api.WorkflowEntry{{GraphName: "fanout", Position: 1}},
	}); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}

	run, err := eng.FirstPass(context.Background(), "wf")
	if err != nil {
		t.Fatalf("FirstPass failed: %v", err)
	}

	if run.Status != api.RunSucceeded {
		t.Fatalf("expected run status %q, got %q", api.RunSucceeded, run.Status)
	}
	if len(run.Outcomes) != 65 {
		t.Fatalf("expected 65 outcomes, got %d", len(run.Outcomes))
	}
	for _, o := range run.Outcomes {
		if o.Status != api.StepSucceeded {
			t.Fatalf("expected %q SUCCEEDED, got %q", o.StepName, o.Status)
		}
		if o.StepName != "producer" && o.Output != 14 {
			t.Fatalf("expected %q output 14, got %v", o.StepName, o.Output)
		}
	}
}

func TestFirstPass_PartialFailureAcrossGraphs(t *testing.T) {
	eng := NewInMemoryEngine()

	mustRegisterTask(t, eng, api.Task{
		Name: "ok",
		Fn:   func(ctx context.Context, in api.Params) (any, error) { return "fine", nil },
	})
	mustRegisterTask(t, eng, api.Task{
		Name: "boom",
		Fn:   func(ctx context.Context, in api.Params) (any, error) { return nil, errors.New("boom") },
	})

	graphs := []api.StageGraph{
		{Name: "healthy", Instructions: []api.StepInstruction{{Name: "s", TaskName: "ok", Stage: 1}}},
		{Name: "broken", Instructions: []api.StepInstruction{{Name: "s", TaskName: "boom", Stage: 1}}},
	}
	for _, g := range graphs {
		if err := eng.RegisterGraph(g); err != nil {
			t.Fatalf("RegisterGraph(%s) failed: %v", g.Name, err)
		}
	}
	if err := eng.RegisterWorkflow(api.Workflow{
		Name: "wf",
		Entries: []api.WorkflowEntry{
			{GraphName: "healthy", Position: 1},
			{GraphName: "broken", Position: 1},
		},
	}); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}

	run, err := eng.FirstPass(context.Background(), "wf")
	if err != nil {
		t.Fatalf("FirstPass failed: %v", err)
	}
	if run.Status != api.RunPartiallyFailed {
		t.Fatalf("expected run status %q, got %q", api.RunPartiallyFailed, run.Status)
	}
}

func TestFirstPass_GraphDependencySkipsWholesale(t *testing.T) {
	eng := NewInMemoryEngine()

	mustRegisterTask(t, eng, api.Task{
		Name: "boom",
		Fn:   func(ctx context.Context, in api.Params) (any, error) { return nil, errors.New("boom") },
	})
	mustRegisterTask(t, eng, api.Task{
		Name: "ok",
		Fn:   func(ctx context.Context, in api.Params) (any, error) { return "fine", nil },
	})

	graphs := []api.StageGraph{
		{Name: "first", Instructions: []api.StepInstruction{{Name: "s", TaskName: "boom", Stage: 1}}},
		{Name: "second", Instructions: []api.StepInstruction{
			{Name: "a", TaskName: "ok", Stage: 1},
			{Name: "b", TaskName: "ok", Stage: 2, DependsOn: []string{"a"}},
		}},
	}
	for _, g := range graphs {
		if err := eng.RegisterGraph(g); err != nil {
			t.Fatalf("RegisterGraph(%s) failed: %v", g.Name, err)
		}
	}
	if err := eng.RegisterWorkflow(api.Workflow{
		Name: "wf",
		Entries: []api.WorkflowEntry{
			{GraphName: "first", Position: 1},
			{GraphName: "second", Position: 2, DependsOn: []string{"first"}},
		},
	}); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}

	run, err := eng.FirstPass(context.Background(), "wf")
	if err != nil {
		t.Fatalf("FirstPass failed: %v", err)
	}

	if run.Status != api.RunFailed {
		t.Fatalf("expected run status %q, got %q", api.RunFailed, run.Status)
	}

	skipped := 0
	for _, o := range run.Outcomes {
		if o.GraphName != "second" {
			continue
		}
		if o.Status != api.StepSkipped {
			t.Fatalf("expected every step of %q skipped, %q is %q", "second", o.StepName, o.Status)
		}
		if o.Reason != "graph dependency failed: first" {
			t.Fatalf("unexpected skip reason: %q", o.Reason)
		}
		skipped++
	}
	if skipped != 2 {
		t.Fatalf("expected 2 skipped outcomes for graph second, got %d", skipped)
	}
}

func TestFirstPass_GraphSkipReasonDistinguishesBlocker(t *testing.T) {
	eng := NewInMemoryEngine()

	mustRegisterTask(t, eng, api.Task{
		Name: "boom",
		Fn:   func(ctx context.Context, in api.Params) (any, error) { return nil, errors.New("boom") },
	})
	mustRegisterTask(t, eng, api.Task{
		Name: "ok",
		Fn:   func(ctx context.Context, in api.Params) (any, error) { return "fine", nil },
	})

	graphs := []api.StageGraph{
		{Name: "first", Instructions: []api.StepInstruction{{Name: "s", TaskName: "boom", Stage: 1}}},
		{Name: "second", Instructions: []api.StepInstruction{{Name: "s", TaskName: "ok", Stage: 1}}},
		{Name: "third", Instructions: []api.StepInstruction{{Name: "s", TaskName: "ok", Stage: 1}}},
	}
	for _, g := range graphs {
		if err := eng.RegisterGraph(g); err != nil {
			t.Fatalf("RegisterGraph(%s) failed: %v", g.Name, err)
		}
	}
	if err := eng.RegisterWorkflow(api.Workflow{
		Name: "wf",
		Entries: []api.WorkflowEntry{
			{GraphName: "first", Position: 1},
			{GraphName: "second", Position: 2, DependsOn: []string{"first"}},
			{GraphName: "third", Position: 3, DependsOn: []string{"second"}},
		},
	}); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}

	run, err := eng.FirstPass(context.Background(), "wf")
	if err != nil {
		t.Fatalf("FirstPass failed: %v", err)
	}

	byGraph := make(map[string]api.StepOutcome)
	for _, o := range run.Outcomes {
		byGraph[o.GraphName] = o
	}
	// A failed dependency and a skipped dependency read differently.
	if got := byGraph["second"].Reason; got != "graph dependency failed: first" {
		t.Fatalf("unexpected skip reason for second: %q", got)
	}
	if got := byGraph["third"].Reason; got != "graph dependency skipped: second" {
		t.Fatalf("unexpected skip reason for third: %q", got)
	}
}

func TestFirstPass_CancelledBeforeStart(t *testing.T) {
	eng := NewInMemoryEngine()
	loaded := registerETL(t, eng, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := eng.FirstPass(ctx, "nightly")
	if err != nil {
		t.Fatalf("FirstPass failed: %v", err)
	}

	if *loaded != 0 {
		t.Fatalf("expected no task to run, saw %d", *loaded)
	}
	for _, o := range run.Outcomes {
		if o.Status != api.StepSkipped || o.Reason != "cancelled" {
			t.Fatalf("expected %q skipped as cancelled, got %q / %q", o.StepName, o.Status, o.Reason)
		}
	}
	if run.Status != api.RunFailed {
		t.Fatalf("expected run status %q, got %q", api.RunFailed, run.Status)
	}
}

func TestFirstPass_RetryPolicy(t *testing.T) {
	eng := NewInMemoryEngine()

	attempts := 0
	mustRegisterTask(t, eng, api.Task{
		Name: "flaky",
		Fn: func(ctx context.Context, in api.Params) (any, error) {
			attempts++
			if attempts < 3 {
				return nil, fmt.Errorf("attempt %d failed", attempts)
			}
			return "ok", nil
		},
	})

	g := api.StageGraph{
		Name: "g",
		Instructions: []api.StepInstruction{{
			Name: "s", TaskName: "flaky", Stage: 1,
			Retry: &api.RetryPolicy{MaxAttempts: 3},
		}},
	}
	if err := eng.RegisterGraph(g); err != nil {
		t.Fatalf("RegisterGraph failed: %v", err)
	}
	if err := eng.RegisterWorkflow(api.Workflow{
		Name:    "wf",
		Entries: []api.WorkflowEntry{{GraphName: "g", Position: 1}},
	}); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}

	run, err := eng.FirstPass(context.Background(), "wf")
	if err != nil {
		t.Fatalf("FirstPass failed: %v", err)
	}

	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if run.Status != api.RunSucceeded {
		t.Fatalf("expected run to succeed after retries, got %q", run.Status)
	}
	// One outcome per step regardless of attempts.
	if len(run.Outcomes) != 1 {
		t.Fatalf("expected exactly one outcome, got %d", len(run.Outcomes))
	}
}

func TestFirstPass_UnknownWorkflow(t *testing.T) {
	eng := NewInMemoryEngine()

	_, err := eng.FirstPass(context.Background(), "ghost")

	var uwe *api.UnknownWorkflowError
	if !errors.As(err, &uwe) {
		t.Fatalf("expected UnknownWorkflowError, got %v", err)
	}
}

func TestGetRunAndListRuns(t *testing.T) {
	eng := NewInMemoryEngine()
	registerETL(t, eng, nil)

	ctx := context.Background()
	first, err := eng.FirstPass(ctx, "nightly")
	if err != nil {
		t.Fatalf("FirstPass failed: %v", err)
	}
	second, err := eng.FirstPass(ctx, "nightly")
	if err != nil {
		t.Fatalf("FirstPass failed: %v", err)
	}

	got, err := eng.GetRun(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.ID != first.ID || got.Status != api.RunSucceeded {
		t.Fatalf("unexpected run: %+v", got)
	}
	if len(got.Outcomes) != 3 {
		t.Fatalf("expected 3 persisted outcomes, got %d", len(got.Outcomes))
	}

	if _, err := eng.GetRun(ctx, "missing"); err == nil {
		t.Fatal("expected error for unknown run ID, got nil")
	}

	runs, err := eng.ListRuns(ctx, api.RunListOptions{WorkflowName: "nightly"})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	// Most recent first.
	if runs[0].ID != second.ID {
		t.Fatalf("expected most recent run first, got %s", runs[0].ID)
	}

	runs, err = eng.ListRuns(ctx, api.RunListOptions{WorkflowName: "other"})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs for other workflow, got %d", len(runs))
	}
}

func TestListDefinitions(t *testing.T) {
	eng := NewInMemoryEngine()
	registerETL(t, eng, nil)

	wantTasks := []string{"double", "extract-number", "record"}
	if got := eng.ListTasks(); !reflect.DeepEqual(got, wantTasks) {
		t.Fatalf("ListTasks: got %v, want %v", got, wantTasks)
	}
	if got := eng.ListGraphs(); !reflect.DeepEqual(got, []string{"etl"}) {
		t.Fatalf("ListGraphs: got %v", got)
	}
	if got := eng.ListWorkflows(); !reflect.DeepEqual(got, []string{"nightly"}) {
		t.Fatalf("ListWorkflows: got %v", got)
	}

	plan, err := eng.GraphPlan("etl")
	if err != nil {
		t.Fatalf("GraphPlan failed: %v", err)
	}
	if len(plan) != 3 || plan[0].Stage != 1 || plan[0].Steps[0] != "extract" {
		t.Fatalf("unexpected plan: %v", plan)
	}
}

func TestRegisterWorkflow_Validation(t *testing.T) {
	eng := NewInMemoryEngine()
	registerETL(t, eng, nil)

	cases := []struct {
		name string
		wf   api.Workflow
	}{
		{"unknown graph", api.Workflow{
			Name:    "wf",
			Entries: []api.WorkflowEntry{{GraphName: "ghost", Position: 1}},
		}},
		{"duplicate graph", api.Workflow{
			Name: "wf",
			Entries: []api.WorkflowEntry{
				{GraphName: "etl", Position: 1},
				{GraphName: "etl", Position: 2},
			},
		}},
		{"dependency at same position", api.Workflow{
			Name: "wf",
			Entries: []api.WorkflowEntry{
				{GraphName: "etl", Position: 1, DependsOn: []string{"etl"}},
			},
		}},
		{"no entries", api.Workflow{Name: "wf"}},
		{"no name", api.Workflow{
			Entries: []api.WorkflowEntry{{GraphName: "etl", Position: 1}},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := eng.RegisterWorkflow(tc.wf); err == nil {
				t.Fatal("expected registration error, got nil")
			}
		})
	}
}

func TestRegisterTask_Validation(t *testing.T) {
	eng := NewInMemoryEngine()

	if err := eng.RegisterTask(api.Task{Fn: func(ctx context.Context, in api.Params) (any, error) { return nil, nil }}); err == nil {
		t.Fatal("expected error for unnamed task, got nil")
	}
	if err := eng.RegisterTask(api.Task{Name: "t"}); err == nil {
		t.Fatal("expected error for task without body, got nil")
	}
}

func TestReplaceDefinitionWhileInFlight(t *testing.T) {
	eng := NewInMemoryEngine()

	started := make(chan struct{})
	release := make(chan struct{})
	mustRegisterTask(t, eng, api.Task{
		Name: "slow",
		Fn: func(ctx context.Context, in api.Params) (any, error) {
			close(started)
			<-release
			return nil, nil
		},
	})

	g := api.StageGraph{
		Name:         "g",
		Instructions: []api.StepInstruction{{Name: "s", TaskName: "slow", Stage: 1}},
	}
	if err := eng.RegisterGraph(g); err != nil {
		t.Fatalf("RegisterGraph failed: %v", err)
	}
	if err := eng.RegisterWorkflow(api.Workflow{
		Name:    "wf",
		Entries: []api.WorkflowEntry{{GraphName: "g", Position: 1}},
	}); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := eng.FirstPass(context.Background(), "wf"); err != nil {
			t.Errorf("FirstPass failed: %v", err)
		}
	}()

	<-started

	err := eng.RegisterTask(api.Task{
		Name: "slow",
		Fn:   func(ctx context.Context, in api.Params) (any, error) { return nil, nil },
	})
	var diue *api.DefinitionInUseError
	if !errors.As(err, &diue) {
		t.Fatalf("expected DefinitionInUseError, got %v", err)
	}
	if diue.Kind != "task" || diue.Name != "slow" {
		t.Fatalf("unexpected error fields: %+v", diue)
	}

	close(release)
	<-done

	// Sealed run released the snapshot; replacement now succeeds.
	if err := eng.RegisterTask(api.Task{
		Name: "slow",
		Fn:   func(ctx context.Context, in api.Params) (any, error) { return "v2", nil },
	}); err != nil {
		t.Fatalf("expected replacement to succeed after run sealed: %v", err)
	}
}

func mustRegisterTask(t *testing.T, eng api.Engine, task api.Task) {
	t.Helper()
	if err := eng.RegisterTask(task); err != nil {
		t.Fatalf("RegisterTask(%s) failed: %v", task.Name, err)
	}
}
