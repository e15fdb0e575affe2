package registry

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegisterDefaultHandlers(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.RegisterDefaultHandlers()

	types := reg.Types()
	assert.Len(t, types, 15)

	for _, stepType := range []models.StepType{
		models.StepTypeSendEmail,
		models.StepTypeDelay,
		models.StepTypeCondition,
		models.StepTypeAIDecision,
		models.StepTypeUpdateContact,
		models.StepTypeCreateActivity,
		models.StepTypeMoveDealStage,
		models.StepTypeAddTag,
		models.StepTypeRemoveTag,
		models.StepTypeWebhook,
		models.StepTypeEnrollJourney,
		models.StepTypeSocialReply,
		models.StepTypeSocialDM,
		models.StepTypeCreatePost,
		models.StepTypeExit,
	} {
		factory, ok := reg.Factory(stepType)
		require.True(t, ok, "missing factory for %s", stepType)
		assert.Equal(t, stepType, factory.Type())
		assert.NotEmpty(t, factory.Name())
	}
}

func TestCreate_UnknownType(t *testing.T) {
	reg := NewRegistry(testLogger())

	_, err := reg.Create(models.StepType("teleport"), protocol.Collaborators{})
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.RegisterDefaultHandlers()

	assert.NoError(t, reg.ValidateConfig(models.StepTypeDelay,
		map[string]any{"value": 2, "unit": "hours"}))

	assert.Error(t, reg.ValidateConfig(models.StepTypeDelay,
		map[string]any{"value": 2, "unit": "fortnights"}))

	assert.Error(t, reg.ValidateConfig(models.StepTypeDelay,
		map[string]any{"value": 2}))

	assert.Error(t, reg.ValidateConfig(models.StepType("teleport"), nil))
}

func TestValidateConfig_NoSchemaAcceptsAnything(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.RegisterDefaultHandlers()

	factory, ok := reg.Factory(models.StepTypeExit)
	require.True(t, ok)

	if factory.Schema() == nil {
		assert.NoError(t, reg.ValidateConfig(models.StepTypeExit, map[string]any{"anything": true}))
	}
}
