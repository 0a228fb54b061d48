package api

import (
	"fmt"
	"strings"
)

// Graph-construction errors. These are fatal: the StageGraph is rejected
// at registration time and never runs.

// UnknownTaskError reports a step referencing an unregistered task.
type UnknownTaskError struct {
	Graph string
	Step  string
	Task  string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("graph %q: step %q references unknown task %q", e.Graph, e.Step, e.Task)
}

// UnknownDependencyError reports a dependency naming no step in the graph.
type UnknownDependencyError struct {
	Graph      string
	Step       string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("graph %q: step %q depends on unknown step %q", e.Graph, e.Step, e.Dependency)
}

// StageOrderingViolation reports a dependency that does not live in a
// strictly lower stage than its dependent.
type StageOrderingViolation struct {
	Graph           string
	Step            string
	Stage           int
	Dependency      string
	DependencyStage int
}

func (e *StageOrderingViolation) Error() string {
	return fmt.Sprintf("graph %q: step %q (stage %d) depends on %q (stage %d); dependencies must be in a strictly lower stage",
		e.Graph, e.Step, e.Stage, e.Dependency, e.DependencyStage)
}

// CyclicDependencyError reports a dependency cycle. Cycle holds the
// offending steps in order, with the first step repeated at the end.
type CyclicDependencyError struct {
	Graph string
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("graph %q: dependency cycle: %s", e.Graph, strings.Join(e.Cycle, " -> "))
}

// Resolution-time errors. These are scoped to one step: the step fails,
// its dependents are skipped, and siblings are unaffected.

// UnresolvedReferenceError reports a parameter back-reference whose
// target step has no successful outcome in the current run.
type UnresolvedReferenceError struct {
	Step      string
	Parameter string
	Ref       string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("step %q: parameter %q references step %q which has no successful outcome", e.Step, e.Parameter, e.Ref)
}

// ParameterValidationError reports a resolved parameter that does not
// satisfy the target task's input schema.
type ParameterValidationError struct {
	Step      string
	Parameter string
	Cause     *ValidationError
}

func (e *ParameterValidationError) Error() string {
	return fmt.Sprintf("step %q: parameter %q: %s", e.Step, e.Parameter, e.Cause.Error())
}

func (e *ParameterValidationError) Unwrap() error { return e.Cause }

// Pass-start errors.

// UnknownWorkflowError reports a pass started for an unregistered workflow.
type UnknownWorkflowError struct {
	Name string
}

func (e *UnknownWorkflowError) Error() string {
	return fmt.Sprintf("unknown workflow: %s", e.Name)
}

// DefinitionInUseError reports an attempt to replace a task, graph, or
// workflow definition that an in-flight run still references.
type DefinitionInUseError struct {
	Kind string // "task", "graph", or "workflow"
	Name string
}

func (e *DefinitionInUseError) Error() string {
	return fmt.Sprintf("%s %q is referenced by an in-flight run and cannot be replaced", e.Kind, e.Name)
}
