// Package webhook provides the webhook step handler.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/enroutehq/enroute/pkg/protocol"
	"github.com/enroutehq/enroute/pkg/template"
)

// Handler posts a templated payload to an external URL through the action
// executor.
type Handler struct {
	actions protocol.ActionExecutor
}

func NewHandler(collaborators protocol.Collaborators) (*Handler, error) {
	if collaborators.Actions == nil {
		return nil, errors.New("webhook requires an action executor")
	}

	return &Handler{actions: collaborators.Actions}, nil
}

func (h *Handler) Execute(ctx context.Context, input protocol.StepInput, logger *slog.Logger) (*protocol.StepOutcome, error) {
	url, _ := input.Step.Config["url"].(string)
	if url == "" {
		return nil, errors.New("webhook step has no url")
	}

	method, _ := input.Step.Config["method"].(string)
	if method == "" {
		method = "POST"
	}

	payloadTmpl, _ := input.Step.Config["payload"].(map[string]any)

	payload, err := template.RenderMap(payloadTmpl, map[string]any{
		"context": input.Enrollment.Context,
		"enrollment": map[string]any{
			"id":         input.Enrollment.ID,
			"contact_id": input.Enrollment.ContactID,
			"journey_id": input.Enrollment.JourneyID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render webhook payload: %w", err)
	}

	result, err := h.actions.Send(ctx, protocol.ActionKindWebhook, map[string]any{
		"url":     url,
		"method":  method,
		"headers": input.Step.Config["headers"],
		"payload": payload,
	})
	if err != nil {
		return nil, err
	}

	if !result.Delivered {
		return nil, fmt.Errorf("webhook delivery failed: %s", result.Error)
	}

	logger.InfoContext(ctx, "Delivered webhook", "url", url, "method", method)

	return &protocol.StepOutcome{
		Result: map[string]any{"url": url, "method": method},
	}, nil
}
