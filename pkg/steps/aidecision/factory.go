package aidecision

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
	return models.StepTypeAIDecision
}

func (f *Factory) Name() string {
	return "AI Decision"
}

func (f *Factory) Description() string {
	return "Routes the enrollment through the true or false branch based on an AI verdict"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "Question for the AI, answered true or false. Supports templating.",
				"examples": []string{
					"Is {{.contact.email}} likely a decision maker at their company?",
				},
			},
		},
		"required": []string{"prompt"},
	}
}
