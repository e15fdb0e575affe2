package crm

import (
	"errors"

	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/protocol"
)

type UpdateContactFactory struct{}

func NewUpdateContactFactory() protocol.StepHandlerFactory {
	return &UpdateContactFactory{}
}

func (f *UpdateContactFactory) Create(collaborators protocol.Collaborators) (protocol.StepHandler, error) {
	if collaborators.CRM == nil {
		return nil, errors.New("update_contact requires a CRM mutator")
	}

	return &UpdateContactHandler{crm: collaborators.CRM}, nil
}

func (f *UpdateContactFactory) Type() models.StepType {
	return models.StepTypeUpdateContact
}

func (f *UpdateContactFactory) Name() string {
	return "Update Contact"
}

func (f *UpdateContactFactory) Description() string {
	return "Applies a field patch to the enrolled contact in the CRM"
}

func (f *UpdateContactFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"fields": map[string]any{
				"type":        "object",
				"description": "Field name to new value. String values support templating against .context.",
				"minProperties": 1,
			},
		},
		"required": []string{"fields"},
	}
}

type AddTagFactory struct{}

func NewAddTagFactory() protocol.StepHandlerFactory {
	return &AddTagFactory{}
}

func (f *AddTagFactory) Create(collaborators protocol.Collaborators) (protocol.StepHandler, error) {
	if collaborators.CRM == nil {
		return nil, errors.New("add_tag requires a CRM mutator")
	}

	return &TagHandler{crm: collaborators.CRM}, nil
}

func (f *AddTagFactory) Type() models.StepType {
	return models.StepTypeAddTag
}

func (f *AddTagFactory) Name() string {
	return "Add Tag"
}

func (f *AddTagFactory) Description() string {
	return "Adds a tag to the enrolled contact"
}

func (f *AddTagFactory) Schema() map[string]any {
	return tagSchema
}

type RemoveTagFactory struct{}

func NewRemoveTagFactory() protocol.StepHandlerFactory {
	return &RemoveTagFactory{}
}

func (f *RemoveTagFactory) Create(collaborators protocol.Collaborators) (protocol.StepHandler, error) {
	if collaborators.CRM == nil {
		return nil, errors.New("remove_tag requires a CRM mutator")
	}

	return &TagHandler{crm: collaborators.CRM, remove: true}, nil
}

func (f *RemoveTagFactory) Type() models.StepType {
	return models.StepTypeRemoveTag
}

func (f *RemoveTagFactory) Name() string {
	return "Remove Tag"
}

func (f *RemoveTagFactory) Description() string {
	return "Removes a tag from the enrolled contact"
}

func (f *RemoveTagFactory) Schema() map[string]any {
	return tagSchema
}

var tagSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"tag": map[string]any{
			"type":        "string",
			"description": "Tag to add or remove.",
			"minLength":   1,
		},
	},
	"required": []string{"tag"},
}

type MoveDealFactory struct{}

func NewMoveDealFactory() protocol.StepHandlerFactory {
	return &MoveDealFactory{}
}

func (f *MoveDealFactory) Create(collaborators protocol.Collaborators) (protocol.StepHandler, error) {
	if collaborators.CRM == nil {
		return nil, errors.New("move_deal_stage requires a CRM mutator")
	}

	return &MoveDealHandler{crm: collaborators.CRM}, nil
}

func (f *MoveDealFactory) Type() models.StepType {
	return models.StepTypeMoveDealStage
}

func (f *MoveDealFactory) Name() string {
	return "Move Deal Stage"
}

func (f *MoveDealFactory) Description() string {
	return "Moves a deal to another pipeline stage"
}

func (f *MoveDealFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"stage_id": map[string]any{
				"type":        "string",
				"description": "Target pipeline stage.",
				"minLength":   1,
			},
			"deal_id": map[string]any{
				"type":        "string",
				"description": "Deal to move. Falls back to the enrollment context's deal_id.",
			},
		},
		"required": []string{"stage_id"},
	}
}

type CreateActivityFactory struct{}

func NewCreateActivityFactory() protocol.StepHandlerFactory {
	return &CreateActivityFactory{}
}

func (f *CreateActivityFactory) Create(collaborators protocol.Collaborators) (protocol.StepHandler, error) {
	if collaborators.Actions == nil {
		return nil, errors.New("create_activity requires an action executor")
	}

	return &CreateActivityHandler{actions: collaborators.Actions}, nil
}

func (f *CreateActivityFactory) Type() models.StepType {
	return models.StepTypeCreateActivity
}

func (f *CreateActivityFactory) Name() string {
	return "Create Activity"
}

func (f *CreateActivityFactory) Description() string {
	return "Logs a CRM activity against the enrolled contact"
}

func (f *CreateActivityFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"activity_type": map[string]any{
				"type":        "string",
				"description": "Kind of activity to log.",
				"examples":    []string{"call", "task", "note"},
			},
			"note": map[string]any{
				"type":        "string",
				"description": "Activity note. Supports templating.",
			},
		},
		"required": []string{"activity_type"},
	}
}
