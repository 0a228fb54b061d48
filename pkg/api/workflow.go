package api

// WorkflowEntry places one StageGraph inside a Workflow.
//
// Entries sharing a Position run their graphs concurrently, analogous to
// steps sharing a stage. DependsOn names graphs at earlier positions
// whose failure (or skip) causes this graph to be skipped; graphs with no
// such dependency still execute after an unrelated failure.
type WorkflowEntry struct {
	GraphName string
	Position  int
	DependsOn []string
}

// Workflow is a named, ordered composition of StageGraphs. Each graph
// name may appear at most once; re-running the same graph at two
// positions is rejected at registration time.
type Workflow struct {
	Name        string
	Description string
	Entries     []WorkflowEntry
}
