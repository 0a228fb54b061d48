package engine

import (
	"errors"

	"github.com/masonrylabs/masonry/pkg/api"
)

// resolveParams resolves a step's parameter bindings against the
// outcomes already recorded for the current run, then checks the result
// against the target task's input schema.
//
// Resolution is a pure computation: it produces either a validated input
// set or a typed error, performs no side effects, and is safe to repeat.
func resolveParams(step api.StepInstruction, task api.Task, outcomes map[string]api.StepOutcome) (api.Params, error) {
	resolved := make(api.Params, len(step.Params))

	for name, value := range step.Params {
		if !value.IsRef() {
			resolved[name] = value.Literal()
			continue
		}

		ref := value.RefName()
		outcome, ok := outcomes[ref]
		if !ok || outcome.Status != api.StepSucceeded {
			return nil, &api.UnresolvedReferenceError{Step: step.Name, Parameter: name, Ref: ref}
		}
		resolved[name] = outcome.Output
	}

	for name, s := range task.InputSchema {
		value, present := resolved[name]
		if !present {
			return nil, &api.ParameterValidationError{
				Step:      step.Name,
				Parameter: name,
				Cause:     &api.ValidationError{Expected: s.Describe(), Actual: "missing"},
			}
		}
		if err := s.Validate(value); err != nil {
			var ve *api.ValidationError
			if !errors.As(err, &ve) {
				ve = &api.ValidationError{Expected: s.Describe(), Actual: err.Error()}
			}
			return nil, &api.ParameterValidationError{Step: step.Name, Parameter: name, Cause: ve}
		}
	}

	return resolved, nil
}
