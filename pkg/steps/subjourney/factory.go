package subjourney

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
	return models.StepTypeEnrollJourney
}

func (f *Factory) Name() string {
	return "Enroll in Journey"
}

func (f *Factory) Description() string {
	return "Admits the contact into another journey"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"journey_id": map[string]any{
				"type":        "string",
				"description": "Target journey. Must not be the current journey.",
				"minLength":   1,
			},
		},
		"required": []string{"journey_id"},
	}
}
