package api

// ParamValue is one parameter binding in a StepInstruction: either a
// literal value passed through unchanged, or a reference to the output of
// another step in the same graph.
//
// References are explicit (built with Ref) rather than string-prefixed,
// so a literal string can never be mistaken for a back-reference.
type ParamValue struct {
	literal any
	ref     string
	isRef   bool
}

// Lit binds a parameter to a literal value.
func Lit(v any) ParamValue {
	return ParamValue{literal: v}
}

// Ref binds a parameter to the output of the named step. The named step
// must appear in the instruction's DependsOn set; the planner rejects
// bindings that silently depend on an undeclared predecessor.
func Ref(step string) ParamValue {
	return ParamValue{ref: step, isRef: true}
}

// IsRef reports whether the binding is a back-reference.
func (p ParamValue) IsRef() bool { return p.isRef }

// RefName returns the referenced step name, or "" for literals.
func (p ParamValue) RefName() string { return p.ref }

// Literal returns the bound literal value, or nil for references.
func (p ParamValue) Literal() any { return p.literal }
