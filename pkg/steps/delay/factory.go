package delay

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
	return models.StepTypeDelay
}

func (f *Factory) Name() string {
	return "Delay"
}

func (f *Factory) Description() string {
	return "Suspends the enrollment for a fixed amount of time"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value": map[string]any{
				"type":             "number",
				"description":      "Amount of time to wait.",
				"exclusiveMinimum": 0,
			},
			"unit": map[string]any{
				"type":        "string",
				"description": "Unit of the wait amount.",
				"enum": []string{
					models.DelayUnitMinutes,
					models.DelayUnitHours,
					models.DelayUnitDays,
					models.DelayUnitWeeks,
				},
			},
		},
		"required": []string{"value", "unit"},
	}
}
