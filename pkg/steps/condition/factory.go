package condition

import (
	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/protocol"
)

type Factory struct{}

func NewFactory() protocol.StepHandlerFactory {
	return &Factory{}
}

func (f *Factory) Create(collaborators protocol.Collaborators) (protocol.StepHandler, error) {
	return NewHandler(collaborators), nil
}

func (f *Factory) Type() models.StepType {
	return models.StepTypeCondition
}

func (f *Factory) Name() string {
	return "Condition"
}

func (f *Factory) Description() string {
	return "Routes the enrollment through the true or false branch based on a predicate"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"field": map[string]any{
				"type":        "string",
				"description": "Field to test: an enrollment context key or a contact.* field.",
				"examples":    []string{"contact.lifecycle", "contact.tags", "deal_value"},
			},
			"operator": map[string]any{
				"type":    "string",
				"default": "equals",
				"enum": []string{
					"equals", "not_equals", "contains", "not_contains",
					"greater_than", "less_than", "exists", "not_exists",
				},
			},
			"value": map[string]any{
				"description": "Value to compare against. Ignored by exists/not_exists.",
			},
		},
		"required": []string{"field"},
	}
}
