package api

// StepInstruction declares one task invocation inside a StageGraph.
//
// Steps sharing a Stage number are eligible to run concurrently; every
// declared dependency must live in a strictly lower stage. Parameter
// bindings that reference another step's output must name a member of
// DependsOn.
type StepInstruction struct {
	// Name identifies the step within its graph. Must be unique.
	Name string

	// TaskName names the registered Task this step invokes.
	TaskName string

	// Params maps task parameter names to literal values or
	// back-references (see Lit and Ref).
	Params map[string]ParamValue

	// Stage is the explicit stage index. Stage numbers are a deliberate
	// concurrency hint: equal stages run together, not an ambiguity to be
	// resolved.
	Stage int

	// DependsOn lists step names this step depends on. All of them must
	// have completed successfully before this step runs.
	DependsOn []string

	// Retry, if non-nil, is applied around the task body invocation.
	Retry *RetryPolicy
}

// StageGraph is a named, immutable collection of StepInstructions.
// Registering a graph validates it and derives its executable Plan; the
// definition itself is never mutated afterwards.
type StageGraph struct {
	Name         string
	Description  string
	Instructions []StepInstruction
}

// StagePlan is one stage of an executable plan: the set of steps that may
// run concurrently once every earlier stage has reached a terminal state.
// Steps is in original declaration order, which makes plan output stable
// across rebuilds.
type StagePlan struct {
	Stage int
	Steps []string
}

// Plan is the derived executable form of a StageGraph: stages in
// ascending stage-number order. Building the same instruction list twice
// yields an identical plan.
type Plan []StagePlan
