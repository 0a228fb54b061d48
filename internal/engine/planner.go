package engine

import (
	"fmt"
	"sort"

	"github.com/masonrylabs/masonry/pkg/api"
)

// compileGraph validates a StageGraph and derives its executable plan.
//
// Validation: unknown tasks, unknown dependencies, dependency cycles,
// then stage ordering. Cycles are checked before stage ordering so that
// a cyclic graph is reported as a cycle: under the stage invariant a
// cycle always contains at least one edge that also violates ordering,
// and the cycle is the more useful diagnosis.
//
// The plan is deterministic: stages in ascending stage-number order,
// step names within a stage in original declaration order.
func compileGraph(g api.StageGraph, hasTask func(name string) bool) (*compiledGraph, error) {
	if g.Name == "" {
		return nil, fmt.Errorf("graph name is required")
	}
	if len(g.Instructions) == 0 {
		return nil, fmt.Errorf("graph %q must have at least one step", g.Name)
	}

	steps := make(map[string]api.StepInstruction, len(g.Instructions))
	for _, inst := range g.Instructions {
		if inst.Name == "" {
			return nil, fmt.Errorf("graph %q: step name is required", g.Name)
		}
		if _, dup := steps[inst.Name]; dup {
			return nil, fmt.Errorf("graph %q: duplicate step name %q", g.Name, inst.Name)
		}
		steps[inst.Name] = inst
	}

	for _, inst := range g.Instructions {
		if !hasTask(inst.TaskName) {
			return nil, &api.UnknownTaskError{Graph: g.Name, Step: inst.Name, Task: inst.TaskName}
		}
	}

	for _, inst := range g.Instructions {
		for _, dep := range inst.DependsOn {
			if _, ok := steps[dep]; !ok {
				return nil, &api.UnknownDependencyError{Graph: g.Name, Step: inst.Name, Dependency: dep}
			}
		}
	}

	if cycle := findCycle(g.Instructions, steps); cycle != nil {
		return nil, &api.CyclicDependencyError{Graph: g.Name, Cycle: cycle}
	}

	for _, inst := range g.Instructions {
		for _, dep := range inst.DependsOn {
			if steps[dep].Stage >= inst.Stage {
				return nil, &api.StageOrderingViolation{
					Graph:           g.Name,
					Step:            inst.Name,
					Stage:           inst.Stage,
					Dependency:      dep,
					DependencyStage: steps[dep].Stage,
				}
			}
		}
	}

	// A parameter back-reference must name a declared dependency so it
	// never silently depends on an undeclared predecessor.
	for _, inst := range g.Instructions {
		declared := make(map[string]bool, len(inst.DependsOn))
		for _, dep := range inst.DependsOn {
			declared[dep] = true
		}
		for param, value := range inst.Params {
			if value.IsRef() && !declared[value.RefName()] {
				return nil, fmt.Errorf("graph %q: step %q parameter %q references step %q which is not in its depends_on set",
					g.Name, inst.Name, param, value.RefName())
			}
		}
	}

	return &compiledGraph{
		def:   g,
		plan:  buildPlan(g.Instructions),
		steps: steps,
	}, nil
}

// buildPlan groups instructions into ascending stages, preserving
// declaration order within each stage.
func buildPlan(instructions []api.StepInstruction) api.Plan {
	byStage := make(map[int][]string)
	var stages []int
	for _, inst := range instructions {
		if _, seen := byStage[inst.Stage]; !seen {
			stages = append(stages, inst.Stage)
		}
		byStage[inst.Stage] = append(byStage[inst.Stage], inst.Name)
	}
	sort.Ints(stages)

	plan := make(api.Plan, 0, len(stages))
	for _, stage := range stages {
		plan = append(plan, api.StagePlan{Stage: stage, Steps: byStage[stage]})
	}
	return plan
}

// findCycle runs a depth-first traversal over the dependency relation
// with a "visiting" marker. It returns the first cycle found as an
// ordered list of step names with the entry step repeated at the end,
// or nil if the graph is acyclic. Steps and their dependencies are
// visited in declaration order, so the reported cycle is deterministic.
func findCycle(instructions []api.StepInstruction, steps map[string]api.StepInstruction) []string {
	const (
		unvisited = iota
		visiting
		done
	)

	state := make(map[string]int, len(steps))
	var stack []string

	var visit func(name string) []string
	visit = func(name string) []string {
		state[name] = visiting
		stack = append(stack, name)

		for _, dep := range steps[name].DependsOn {
			switch state[dep] {
			case visiting:
				// Unwind the stack to the start of the cycle.
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				cycle := append([]string{}, stack[start:]...)
				return append(cycle, dep)
			case unvisited:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[name] = done
		return nil
	}

	for _, inst := range instructions {
		if state[inst.Name] == unvisited {
			if cycle := visit(inst.Name); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
