// Package journey provides graph storage, validation and lifecycle
// management for journey definitions.
package journey

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTransition indicates a status change the lifecycle state
	// machine does not allow.
	ErrInvalidTransition = errors.New("invalid journey status transition")

	// ErrJourneyArchived indicates an operation on an archived journey.
	ErrJourneyArchived = errors.New("journey is archived")

	// ErrJourneyNotEditable indicates a graph edit on a journey that is
	// neither draft nor paused.
	ErrJourneyNotEditable = errors.New("journey graph is not editable in its current status")

	// ErrCrossJourneyEdge indicates a connect between steps of different
	// journeys.
	ErrCrossJourneyEdge = errors.New("edge references a step in another journey")

	// ErrInvalidStepConfig indicates a step config that fails its type's
	// schema.
	ErrInvalidStepConfig = errors.New("invalid step configuration")
)

// InvalidGraphError carries the complete validator error list so editors
// can fix every problem in one pass.
type InvalidGraphError struct {
	JourneyID string
	Errors    []string
}

func (e *InvalidGraphError) Error() string {
	return fmt.Sprintf("journey %s graph is invalid: %s", e.JourneyID, strings.Join(e.Errors, "; "))
}

// IsInvalidGraph checks if an error is a graph validation failure.
func IsInvalidGraph(err error) bool {
	var invalidGraph *InvalidGraphError

	return errors.As(err, &invalidGraph)
}
