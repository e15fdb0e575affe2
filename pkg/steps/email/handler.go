// Package email provides the send_email step handler.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/enroutehq/enroute/pkg/protocol"
	"github.com/enroutehq/enroute/pkg/template"
)

// Handler renders and delivers one marketing email to the enrolled
// contact through the action executor.
type Handler struct {
	contacts protocol.ContactDirectory
	actions  protocol.ActionExecutor
}

func NewHandler(collaborators protocol.Collaborators) (*Handler, error) {
	if collaborators.Actions == nil {
		return nil, errors.New("send_email requires an action executor")
	}

	return &Handler{
		contacts: collaborators.Contacts,
		actions:  collaborators.Actions,
	}, nil
}

func (h *Handler) Execute(ctx context.Context, input protocol.StepInput, logger *slog.Logger) (*protocol.StepOutcome, error) {
	contact := input.Contact
	if contact == nil && h.contacts != nil {
		var err error

		contact, err = h.contacts.GetContact(ctx, input.Enrollment.ContactID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve contact %s: %w", input.Enrollment.ContactID, err)
		}
	}

	if contact == nil || contact.Email == "" {
		return nil, fmt.Errorf("contact %s has no email address", input.Enrollment.ContactID)
	}

	subjectTmpl, bodyTmpl := input.Step.EmailContent()

	subject, err := template.RenderString(subjectTmpl, input.Journey, input.Enrollment, contact)
	if err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}

	body, err := template.RenderString(bodyTmpl, input.Journey, input.Enrollment, contact)
	if err != nil {
		return nil, fmt.Errorf("failed to render body: %w", err)
	}

	result, err := h.actions.Send(ctx, protocol.ActionKindEmail, map[string]any{
		"to":            contact.Email,
		"subject":       subject,
		"body":          body,
		"contact_id":    contact.ID,
		"journey_id":    input.Journey.ID,
		"enrollment_id": input.Enrollment.ID,
	})
	if err != nil {
		return nil, err
	}

	if !result.Delivered {
		return nil, fmt.Errorf("email delivery failed: %s", result.Error)
	}

	logger.InfoContext(ctx, "Sent email",
		"to", contact.Email, "subject", subject, "provider_message_id", result.ProviderMessageID)

	return &protocol.StepOutcome{
		Result: map[string]any{
			"to":      contact.Email,
			"subject": subject,
		},
		EmailSent:         true,
		ProviderMessageID: result.ProviderMessageID,
	}, nil
}
