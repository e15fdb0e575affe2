package protocol

import (
	"context"
	"log/slog"
	"time"

	"github.com/enroutehq/enroute/pkg/models"
)

// StepInput carries everything a handler may read while performing a
// step's side effect.
type StepInput struct {
	Journey    *models.Journey
	Step       *models.Step
	Enrollment *models.Enrollment
	Execution  *models.StepExecution
	Contact    *ContactSummary
}

// StepOutcome is what a handler reports back to the runner. The runner owns
// edge selection and status bookkeeping; handlers only produce facts.
type StepOutcome struct {
	// Result is stored on the execution row for audit.
	Result map[string]any

	// Branch carries the boolean routing decision of condition and
	// ai_decision steps; nil for single-successor types.
	Branch *Decision

	// DeferUntil suspends the enrollment until the given time (delay
	// steps). The runner reschedules instead of advancing.
	DeferUntil *time.Time

	// Exit marks the enrollment finished (exit steps).
	Exit bool

	// ContextPatch merges into the enrollment context after the step.
	ContextPatch map[string]any

	// EmailSent flags the enrollment's emails_sent counter.
	EmailSent bool

	// ProviderMessageID links the execution row to the delivery provider.
	ProviderMessageID string
}

// StepHandler performs one step type's side effect.
type StepHandler interface {
	Execute(ctx context.Context, input StepInput, logger *slog.Logger) (*StepOutcome, error)
}

// StepHandlerFactory creates handlers and describes the step type for the
// registry: id, human metadata and the JSON schema its config must satisfy.
type StepHandlerFactory interface {
	Create(collaborators Collaborators) (StepHandler, error)
	Type() models.StepType
	Name() string
	Description() string
	Schema() map[string]any
}
