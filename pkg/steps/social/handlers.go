// Package social provides the social media step handlers: replies, direct
// messages and post creation, all delivered through the action executor.
package social

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/enroutehq/enroute/pkg/protocol"
	"github.com/enroutehq/enroute/pkg/template"
)

// Handler performs one social delivery. The action kind distinguishes
// reply, DM and post; the payload shape is the same.
type Handler struct {
	contacts protocol.ContactDirectory
	actions  protocol.ActionExecutor
	kind     protocol.ActionKind
}

func newHandler(collaborators protocol.Collaborators, kind protocol.ActionKind) (*Handler, error) {
	if collaborators.Actions == nil {
		return nil, fmt.Errorf("%s requires an action executor", kind)
	}

	return &Handler{
		contacts: collaborators.Contacts,
		actions:  collaborators.Actions,
		kind:     kind,
	}, nil
}

func (h *Handler) Execute(ctx context.Context, input protocol.StepInput, logger *slog.Logger) (*protocol.StepOutcome, error) {
	messageTmpl, _ := input.Step.Config["message"].(string)
	if messageTmpl == "" {
		return nil, errors.New("social step has no message")
	}

	platform, _ := input.Step.Config["platform"].(string)

	contact := input.Contact
	if contact == nil && h.contacts != nil {
		resolved, err := h.contacts.GetContact(ctx, input.Enrollment.ContactID)
		if err == nil {
			contact = resolved
		}
	}

	message, err := template.RenderString(messageTmpl, input.Journey, input.Enrollment, contact)
	if err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}

	result, err := h.actions.Send(ctx, h.kind, map[string]any{
		"contact_id": input.Enrollment.ContactID,
		"platform":   platform,
		"message":    message,
		"journey_id": input.Journey.ID,
	})
	if err != nil {
		return nil, err
	}

	if !result.Delivered {
		return nil, fmt.Errorf("social delivery failed: %s", result.Error)
	}

	logger.InfoContext(ctx, "Delivered social action",
		"kind", h.kind, "platform", platform, "contact_id", input.Enrollment.ContactID)

	return &protocol.StepOutcome{
		Result: map[string]any{
			"kind":     string(h.kind),
			"platform": platform,
		},
		ProviderMessageID: result.ProviderMessageID,
	}, nil
}
