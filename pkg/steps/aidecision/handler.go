// Package aidecision provides the ai_decision step handler, which routes
// the enrollment on a boolean verdict from the AI collaborator.
package aidecision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/enroutehq/enroute/pkg/protocol"
	"github.com/enroutehq/enroute/pkg/template"
)

type Handler struct {
	contacts  protocol.ContactDirectory
	decisions protocol.DecisionProvider
}

func NewHandler(collaborators protocol.Collaborators) (*Handler, error) {
	if collaborators.Decisions == nil {
		return nil, errors.New("ai_decision requires a decision provider")
	}

	return &Handler{
		contacts:  collaborators.Contacts,
		decisions: collaborators.Decisions,
	}, nil
}

func (h *Handler) Execute(ctx context.Context, input protocol.StepInput, logger *slog.Logger) (*protocol.StepOutcome, error) {
	promptTmpl, _ := input.Step.Config["prompt"].(string)
	if promptTmpl == "" {
		return nil, errors.New("ai_decision step has no prompt")
	}

	contact := input.Contact
	if contact == nil && h.contacts != nil {
		resolved, err := h.contacts.GetContact(ctx, input.Enrollment.ContactID)
		if err == nil {
			contact = resolved
		}
	}

	prompt, err := template.RenderString(promptTmpl, input.Journey, input.Enrollment, contact)
	if err != nil {
		return nil, fmt.Errorf("failed to render prompt: %w", err)
	}

	decision, err := h.decisions.Decide(ctx, prompt, input.Enrollment.Context)
	if err != nil {
		return nil, err
	}

	if decision.Label != "true" && decision.Label != "false" {
		return nil, fmt.Errorf("decision provider returned unknown label %q", decision.Label)
	}

	logger.InfoContext(ctx, "AI decision made",
		"enrollment_id", input.Enrollment.ID, "label", decision.Label, "reason", decision.Reason)

	return &protocol.StepOutcome{
		Branch: decision,
		Result: map[string]any{
			"label":  decision.Label,
			"reason": decision.Reason,
		},
	}, nil
}
