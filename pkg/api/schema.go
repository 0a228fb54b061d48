package api

import "fmt"

// Schema is the pluggable validation boundary: given a candidate value it
// returns nil on success or a *ValidationError describing the mismatch.
// Any structural-typing layer can implement it; pkg/schema provides the
// default implementation.
type Schema interface {
	Validate(value any) error

	// Describe returns a short human-readable description of the shape
	// the schema accepts, used in validation error messages.
	Describe() string
}

// ValidationError is a structured schema-validation failure.
type ValidationError struct {
	// Path locates the offending value, e.g. "data.value" ("" for the
	// root value).
	Path     string
	Expected string
	Actual   string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("expected %s, got %s", e.Expected, e.Actual)
	}
	return fmt.Sprintf("%s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}
