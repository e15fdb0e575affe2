package social

import (
	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/protocol"
)

// Factory builds one of the three social handlers depending on the step
// type it was constructed for.
type Factory struct {
	stepType    models.StepType
	kind        protocol.ActionKind
	name        string
	description string
}

func NewReplyFactory() protocol.StepHandlerFactory {
	return &Factory{
		stepType:    models.StepTypeSocialReply,
		kind:        protocol.ActionKindSocialReply,
		name:        "Social Reply",
		description: "Replies to the contact's social post or comment",
	}
}

func NewDMFactory() protocol.StepHandlerFactory {
	return &Factory{
		stepType:    models.StepTypeSocialDM,
		kind:        protocol.ActionKindSocialDM,
		name:        "Social DM",
		description: "Sends the contact a direct message on a social platform",
	}
}

func NewPostFactory() protocol.StepHandlerFactory {
	return &Factory{
		stepType:    models.StepTypeCreatePost,
		kind:        protocol.ActionKindSocialPost,
		name:        "Create Post",
		description: "Publishes a social post",
	}
}

func (f *Factory) Create(collaborators protocol.Collaborators) (protocol.StepHandler, error) {
	return newHandler(collaborators, f.kind)
}

func (f *Factory) Type() models.StepType {
	return f.stepType
}

func (f *Factory) Name() string {
	return f.name
}

func (f *Factory) Description() string {
	return f.description
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message or post body. Supports templating.",
				"minLength":   1,
			},
			"platform": map[string]any{
				"type":        "string",
				"description": "Target platform.",
				"examples":    []string{"linkedin", "x", "facebook"},
			},
		},
		"required": []string{"message"},
	}
}
