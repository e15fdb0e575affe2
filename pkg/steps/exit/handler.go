// Package exit provides the exit step handler.
package exit

import (
	"context"
	"log/slog"

	"github.com/enroutehq/enroute/pkg/protocol"
)

// Handler ends the enrollment. No side effect; the runner performs the
// terminal transition.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Execute(ctx context.Context, input protocol.StepInput, logger *slog.Logger) (*protocol.StepOutcome, error) {
	reason, _ := input.Step.Config["reason"].(string)
	if reason == "" {
		reason = "exit step"
	}

	return &protocol.StepOutcome{
		Exit:   true,
		Result: map[string]any{"reason": reason},
	}, nil
}
