// Package subjourney provides the enroll_in_journey step handler.
package subjourney

import (
	"context"
	"errors"
	"log/slog"

	"github.com/enroutehq/enroute/pkg/protocol"
)

// Handler admits the contact into another journey. Admission failures from
// policy (already enrolled, re-enrollment rejected) do not fail the step:
// fanning a contact into a journey it is already in is the normal case.
type Handler struct {
	enroller protocol.SubJourneyEnroller
}

func NewHandler(collaborators protocol.Collaborators) (*Handler, error) {
	if collaborators.Enroller == nil {
		return nil, errors.New("enroll_in_journey requires an enroller")
	}

	return &Handler{enroller: collaborators.Enroller}, nil
}

func (h *Handler) Execute(ctx context.Context, input protocol.StepInput, logger *slog.Logger) (*protocol.StepOutcome, error) {
	targetID, _ := input.Step.Config["journey_id"].(string)
	if targetID == "" {
		return nil, errors.New("enroll_in_journey step has no journey_id")
	}

	if targetID == input.Journey.ID {
		return nil, errors.New("enroll_in_journey cannot target its own journey")
	}

	err := h.enroller.EnrollContact(ctx, targetID, input.Enrollment.ContactID, input.Enrollment.Context)
	if err != nil {
		if errors.Is(err, protocol.ErrAdmissionRejected) {
			logger.InfoContext(ctx, "Cross-enrollment rejected by policy",
				"target_journey_id", targetID, "contact_id", input.Enrollment.ContactID, "reason", err)

			return &protocol.StepOutcome{
				Result: map[string]any{"target_journey_id": targetID, "enrolled": false},
			}, nil
		}

		return nil, err
	}

	logger.InfoContext(ctx, "Cross-enrolled contact",
		"target_journey_id", targetID, "contact_id", input.Enrollment.ContactID)

	return &protocol.StepOutcome{
		Result: map[string]any{"target_journey_id": targetID, "enrolled": true},
	}, nil
}
