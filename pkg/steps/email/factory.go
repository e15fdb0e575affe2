package email

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
	return models.StepTypeSendEmail
}

func (f *Factory) Name() string {
	return "Send Email"
}

func (f *Factory) Description() string {
	return "Sends a templated email to the enrolled contact"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"subject": map[string]any{
				"type":        "string",
				"description": "Email subject. Supports templating against .contact and .context.",
				"examples": []string{
					"Welcome aboard, {{.contact.first_name}}!",
					"Your trial ends soon",
				},
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Email body. Supports the same template data as subject.",
			},
			"from_name": map[string]any{
				"type":        "string",
				"description": "Optional sender display name.",
			},
		},
		"required": []string{"subject", "body"},
	}
}
