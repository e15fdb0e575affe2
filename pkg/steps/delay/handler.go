// Package delay provides the delay step handler. A delay performs no side
// effect: on first execution it asks the runner to defer, and once the
// scheduled time has passed it completes immediately.
package delay

import (
	"context"
	"log/slog"
	"time"

	"github.com/enroutehq/enroute/pkg/protocol"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Execute(ctx context.Context, input protocol.StepInput, logger *slog.Logger) (*protocol.StepOutcome, error) {
	now := time.Now().UTC()

	// A claimed execution whose ScheduledFor has passed is the wake-up of
	// an earlier deferral; the wait is over.
	if input.Execution.ScheduledFor != nil && !input.Execution.ScheduledFor.After(now) {
		return &protocol.StepOutcome{
			Result: map[string]any{
				"waited_until": input.Execution.ScheduledFor.Format(time.RFC3339),
			},
		}, nil
	}

	duration, err := input.Step.DelayDuration()
	if err != nil {
		return nil, err
	}

	until := now.Add(duration)

	logger.InfoContext(ctx, "Deferring enrollment",
		"enrollment_id", input.Enrollment.ID, "until", until)

	return &protocol.StepOutcome{
		DeferUntil: &until,
		Result: map[string]any{
			"defer_until": until.Format(time.RFC3339),
		},
	}, nil
}
