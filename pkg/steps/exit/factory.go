package exit

import (
	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/protocol"
)

type Factory struct{}

func NewFactory() protocol.StepHandlerFactory {
	return &Factory{}
}

func (f *Factory) Create(collaborators protocol.Collaborators) (protocol.StepHandler, error) {
	return NewHandler(), nil
}

func (f *Factory) Type() models.StepType {
	return models.StepTypeExit
}

func (f *Factory) Name() string {
	return "Exit"
}

func (f *Factory) Description() string {
	return "Ends the enrollment at this point in the graph"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{
				"type":        "string",
				"description": "Recorded as the enrollment's exit reason.",
			},
		},
	}
}
