package webhook

import (
	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/protocol"
)

type Factory struct{}

func NewFactory() protocol.StepHandlerFactory {
	return &Factory{}
}

func (f *Factory) Create(collaborators protocol.Collaborators) (protocol.StepHandler, error) {
	return NewHandler(collaborators)
}

func (f *Factory) Type() models.StepType {
	return models.StepTypeWebhook
}

func (f *Factory) Name() string {
	return "Webhook"
}

func (f *Factory) Description() string {
	return "Posts a templated payload to an external URL"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Target URL.",
				"format":      "uri",
			},
			"method": map[string]any{
				"type":    "string",
				"default": "POST",
				"enum":    []string{"POST", "PUT", "PATCH"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Extra request headers.",
			},
			"payload": map[string]any{
				"type":        "object",
				"description": "Request body. String values support templating against .context.",
			},
		},
		"required": []string{"url"},
	}
}
