package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/masonrylabs/masonry/pkg/api"
)

// compiledGraph pairs a StageGraph definition with its cached executable
// plan. Compiled once at registration; read-only afterwards.
type compiledGraph struct {
	def   api.StageGraph
	plan  api.Plan
	steps map[string]api.StepInstruction
}

// registry holds all registered definitions. Definitions are read-only
// during execution; replacement is idempotent by name but refused while
// an in-flight run references the definition.
type registry struct {
	mu        sync.RWMutex
	tasks     map[string]api.Task
	graphs    map[string]*compiledGraph
	workflows map[string]api.Workflow

	taskRefs  map[string]int
	graphRefs map[string]int
	wfRefs    map[string]int
}

func newRegistry() *registry {
	return &registry{
		tasks:     make(map[string]api.Task),
		graphs:    make(map[string]*compiledGraph),
		workflows: make(map[string]api.Workflow),
		taskRefs:  make(map[string]int),
		graphRefs: make(map[string]int),
		wfRefs:    make(map[string]int),
	}
}

func (r *registry) putTask(t api.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[t.Name]; exists && r.taskRefs[t.Name] > 0 {
		return &api.DefinitionInUseError{Kind: "task", Name: t.Name}
	}
	r.tasks[t.Name] = t
	return nil
}

func (r *registry) task(name string) (api.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[name]
	return t, ok
}

func (r *registry) hasTask(name string) bool {
	_, ok := r.task(name)
	return ok
}

func (r *registry) putGraph(g *compiledGraph) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := g.def.Name
	if _, exists := r.graphs[name]; exists && r.graphRefs[name] > 0 {
		return &api.DefinitionInUseError{Kind: "graph", Name: name}
	}
	r.graphs[name] = g
	return nil
}

func (r *registry) graph(name string) (*compiledGraph, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.graphs[name]
	return g, ok
}

func (r *registry) putWorkflow(w api.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workflows[w.Name]; exists && r.wfRefs[w.Name] > 0 {
		return &api.DefinitionInUseError{Kind: "workflow", Name: w.Name}
	}
	r.workflows[w.Name] = w
	return nil
}

func (r *registry) hasWorkflow(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.workflows[name]
	return ok
}

func (r *registry) taskNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *registry) graphNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.graphs))
	for name := range r.graphs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *registry) workflowNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.workflows))
	for name := range r.workflows {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// snapshot is the frozen view of every definition one run executes
// against. Holding a snapshot pins its definitions: they cannot be
// replaced until the run seals and the snapshot is released.
type snapshot struct {
	workflow api.Workflow
	graphs   map[string]*compiledGraph
	tasks    map[string]api.Task
}

// acquire resolves the workflow and everything it references, increments
// the in-use counts, and returns a consistent snapshot.
func (r *registry) acquire(workflowName string) (*snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wf, ok := r.workflows[workflowName]
	if !ok {
		return nil, &api.UnknownWorkflowError{Name: workflowName}
	}

	s := &snapshot{
		workflow: wf,
		graphs:   make(map[string]*compiledGraph),
		tasks:    make(map[string]api.Task),
	}

	for _, entry := range wf.Entries {
		g, ok := r.graphs[entry.GraphName]
		if !ok {
			return nil, fmt.Errorf("workflow %q references unregistered graph %q", workflowName, entry.GraphName)
		}
		s.graphs[entry.GraphName] = g

		for _, inst := range g.def.Instructions {
			t, ok := r.tasks[inst.TaskName]
			if !ok {
				return nil, &api.UnknownTaskError{Graph: g.def.Name, Step: inst.Name, Task: inst.TaskName}
			}
			s.tasks[inst.TaskName] = t
		}
	}

	r.wfRefs[workflowName]++
	for name := range s.graphs {
		r.graphRefs[name]++
	}
	for name := range s.tasks {
		r.taskRefs[name]++
	}

	return s, nil
}

// release undoes acquire once the run is sealed.
func (r *registry) release(s *snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.wfRefs[s.workflow.Name]--
	for name := range s.graphs {
		r.graphRefs[name]--
	}
	for name := range s.tasks {
		r.taskRefs[name]--
	}
}
