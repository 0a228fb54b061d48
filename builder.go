package masonry

import (
	"fmt"

	"github.com/masonrylabs/masonry/pkg/api"
)

// GraphBuilder provides a fluent API for defining stage graphs:
//
//	graph := masonry.NewGraph("daily-etl").
//	    Step("extract", "extract-orders", 1).
//	    Step("transform", "normalize-orders", 2,
//	        masonry.DependsOn("extract"),
//	        masonry.Param("data", masonry.Ref("extract")))
//
//	if err := graph.Register(eng); err != nil {
//	    log.Fatal(err)
//	}
type GraphBuilder struct {
	def api.StageGraph
}

// NewGraph creates a new stage-graph builder with the given name.
func NewGraph(name string) *GraphBuilder {
	return &GraphBuilder{
		def: api.StageGraph{
			Name:         name,
			Instructions: make([]api.StepInstruction, 0),
		},
	}
}

// Name returns the graph name.
func (b *GraphBuilder) Name() string {
	return b.def.Name
}

// Definition returns the underlying StageGraph.
// Typically used when interacting with lower-level APIs.
func (b *GraphBuilder) Definition() StageGraph {
	return b.def
}

// StepOption customizes one step instruction.
type StepOption func(*api.StepInstruction)

// DependsOn declares the step names this step depends on. All of them
// must live in a strictly lower stage.
func DependsOn(steps ...string) StepOption {
	return func(inst *api.StepInstruction) {
		inst.DependsOn = append(inst.DependsOn, steps...)
	}
}

// Param binds one task parameter to a literal (Lit) or to the output of
// a declared dependency (Ref).
func Param(name string, value ParamValue) StepOption {
	return func(inst *api.StepInstruction) {
		if inst.Params == nil {
			inst.Params = make(map[string]api.ParamValue)
		}
		inst.Params[name] = value
	}
}

// WithRetry applies a retry policy around the step's task invocation.
func WithRetry(policy RetryPolicy) StepOption {
	return func(inst *api.StepInstruction) {
		// Copy so callers can mutate their RetryPolicy after the call
		// without affecting the stored definition.
		p := policy
		inst.Retry = &p
	}
}

// Step appends a step invoking the named task at the given stage.
func (b *GraphBuilder) Step(name, taskName string, stage int, opts ...StepOption) *GraphBuilder {
	if name == "" {
		panic("masonry: step name must not be empty")
	}
	if taskName == "" {
		panic(fmt.Sprintf("masonry: step %q has empty task name", name))
	}

	inst := api.StepInstruction{
		Name:     name,
		TaskName: taskName,
		Stage:    stage,
	}
	for _, opt := range opts {
		opt(&inst)
	}

	b.def.Instructions = append(b.def.Instructions, inst)
	return b
}

// Register registers the built graph with the given engine.
func (b *GraphBuilder) Register(eng Engine) error {
	return eng.RegisterGraph(b.def)
}

// MustRegister is like Register but panics on error.
// Useful for initialization in main().
func (b *GraphBuilder) MustRegister(eng Engine) {
	if err := b.Register(eng); err != nil {
		panic(err)
	}
}

// WorkflowBuilder provides a fluent API for composing registered graphs
// into a workflow. Graphs at the same position run concurrently.
type WorkflowBuilder struct {
	def api.Workflow
}

// NewWorkflow creates a new workflow builder with the given name.
func NewWorkflow(name string) *WorkflowBuilder {
	return &WorkflowBuilder{
		def: api.Workflow{
			Name:    name,
			Entries: make([]api.WorkflowEntry, 0),
		},
	}
}

// Name returns the workflow name.
func (b *WorkflowBuilder) Name() string {
	return b.def.Name
}

// Definition returns the underlying Workflow.
func (b *WorkflowBuilder) Definition() Workflow {
	return b.def
}

// Graph places a registered stage graph at the given position. Optional
// dependsOn names graphs at earlier positions whose failure skips this
// one.
func (b *WorkflowBuilder) Graph(name string, position int, dependsOn ...string) *WorkflowBuilder {
	if name == "" {
		panic("masonry: graph name must not be empty")
	}

	b.def.Entries = append(b.def.Entries, api.WorkflowEntry{
		GraphName: name,
		Position:  position,
		DependsOn: dependsOn,
	})
	return b
}

// Register registers the built workflow with the given engine.
func (b *WorkflowBuilder) Register(eng Engine) error {
	return eng.RegisterWorkflow(b.def)
}

// MustRegister is like Register but panics on error.
func (b *WorkflowBuilder) MustRegister(eng Engine) {
	if err := b.Register(eng); err != nil {
		panic(err)
	}
}
