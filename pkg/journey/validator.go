package journey

import (
	"fmt"

	"github.com/enroutehq/enroute/pkg/models"
)

// ValidationResult is the outcome of one validator run. All violations are
// collected, never just the first, so an editor can repair the whole graph
// in a single pass.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Validate decides whether a journey's step graph is executable. It is a
// pure function over the full step set of one journey; no side effects.
func Validate(steps []*models.Step) ValidationResult {
	result := ValidationResult{Valid: true, Errors: make([]string, 0)}

	if len(steps) == 0 {
		result.fail("journey has no steps")

		return result
	}

	if len(steps) == 1 && steps[0].IsExit() {
		// A lone exit step is an entry candidate that does nothing and
		// goes nowhere.
		result.fail("journey has no actionable steps")

		return result
	}

	byID := make(map[string]*models.Step, len(steps))
	for _, step := range steps {
		byID[step.ID] = step
	}

	// Entry candidates are the steps no edge references.
	referenced := make(map[string]bool)

	for _, step := range steps {
		for _, target := range step.OutgoingEdges() {
			if byID[target] == nil {
				result.fail(fmt.Sprintf("edge from %q references a missing step", step.Name))

				continue
			}

			referenced[target] = true
		}
	}

	entries := make([]*models.Step, 0, 1)

	for _, step := range steps {
		if !referenced[step.ID] {
			entries = append(entries, step)
		}
	}

	switch {
	case len(entries) == 0:
		result.fail("cyclic graph, no entry point")
	case len(entries) > 1:
		result.fail("multiple entry points")
	}

	for _, step := range steps {
		if !step.IsExit() && !step.HasOutgoingEdge() {
			result.fail(fmt.Sprintf("dangling step %q", step.Name))
		}

		if step.IsBranch() && (step.ConditionTrue == nil || step.ConditionFalse == nil) {
			result.fail(fmt.Sprintf("incomplete branch on %q", step.Name))
		}

		if step.Type == models.StepTypeSendEmail {
			subject, body := step.EmailContent()
			if subject == "" || body == "" {
				result.fail(fmt.Sprintf("incomplete email content on %q", step.Name))
			}
		}

		if step.Type == models.StepTypeDelay {
			if _, err := step.DelayDuration(); err != nil {
				result.fail(fmt.Sprintf("incomplete delay on %q", step.Name))
			}
		}
	}

	return result
}

// EntryStep returns the unique entry point of a validated step set: the
// step no edge references. Callers must validate first; on malformed
// graphs the result is undefined.
func EntryStep(steps []*models.Step) *models.Step {
	referenced := make(map[string]bool)

	for _, step := range steps {
		for _, target := range step.OutgoingEdges() {
			referenced[target] = true
		}
	}

	for _, step := range steps {
		if !referenced[step.ID] {
			return step
		}
	}

	return nil
}

func (r *ValidationResult) fail(reason string) {
	r.Valid = false
	r.Errors = append(r.Errors, reason)
}
