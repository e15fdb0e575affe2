package journey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/testutil"
)

func TestValidate_EmptyGraph(t *testing.T) {
	result := Validate(nil)

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "journey has no steps")
}

func TestValidate_LoneExitStep(t *testing.T) {
	exit := testutil.CreateTestStep("j1", testutil.WithStepType(models.StepTypeExit, nil))

	result := Validate([]*models.Step{exit})

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "journey has no actionable steps")
}

func TestValidate_LinearGraph(t *testing.T) {
	exit := testutil.CreateTestStep("j1", testutil.WithStepType(models.StepTypeExit, nil))
	email := testutil.CreateTestStep("j1", testutil.WithNext(exit.ID))

	result := Validate([]*models.Step{email, exit})

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidate_MultipleEntryPoints(t *testing.T) {
	exit := testutil.CreateTestStep("j1", testutil.WithStepType(models.StepTypeExit, nil))
	first := testutil.CreateTestStep("j1", testutil.WithNext(exit.ID))
	orphan := testutil.CreateTestStep("j1", testutil.WithNext(exit.ID))

	result := Validate([]*models.Step{first, orphan, exit})

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "multiple entry points")
}

func TestValidate_CyclicGraphHasNoEntry(t *testing.T) {
	a := testutil.CreateTestStep("j1")
	b := testutil.CreateTestStep("j1", testutil.WithNext(a.ID))
	a.Next = &b.ID

	result := Validate([]*models.Step{a, b})

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "cyclic graph, no entry point")
}

func TestValidate_DanglingStep(t *testing.T) {
	dangling := testutil.CreateTestStep("j1")
	entry := testutil.CreateTestStep("j1", testutil.WithNext(dangling.ID))

	result := Validate([]*models.Step{entry, dangling})

	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "dangling step")
}

func TestValidate_EdgeToMissingStep(t *testing.T) {
	ghost := "no-such-step"
	exit := testutil.CreateTestStep("j1", testutil.WithStepType(models.StepTypeExit, nil))
	entry := testutil.CreateTestStep("j1", func(s *models.Step) {
		s.Next = &ghost
	})
	_ = exit

	result := Validate([]*models.Step{entry})

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "references a missing step")
}

func TestValidate_IncompleteBranch(t *testing.T) {
	exit := testutil.CreateTestStep("j1", testutil.WithStepType(models.StepTypeExit, nil))
	branch := testutil.CreateTestStep("j1", testutil.WithStepType(models.StepTypeCondition, map[string]any{
		"field": "plan", "operator": "equals", "value": "pro",
	}))
	branch.ConditionTrue = &exit.ID

	result := Validate([]*models.Step{branch, exit})

	assert.False(t, result.Valid)
	assert.Contains(t, strings.Join(result.Errors, "; "), "incomplete branch")
}

func TestValidate_EmailWithoutContent(t *testing.T) {
	exit := testutil.CreateTestStep("j1", testutil.WithStepType(models.StepTypeExit, nil))
	email := testutil.CreateTestStep("j1",
		testutil.WithStepType(models.StepTypeSendEmail, map[string]any{"subject": "Hi"}),
		testutil.WithNext(exit.ID),
	)

	result := Validate([]*models.Step{email, exit})

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "incomplete email content")
}

func TestValidate_DelayWithoutDuration(t *testing.T) {
	exit := testutil.CreateTestStep("j1", testutil.WithStepType(models.StepTypeExit, nil))
	delay := testutil.CreateTestStep("j1",
		testutil.WithStepType(models.StepTypeDelay, map[string]any{}),
		testutil.WithNext(exit.ID),
	)

	result := Validate([]*models.Step{delay, exit})

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "incomplete delay")
}

func TestValidate_BranchGraph(t *testing.T) {
	exitWon := testutil.CreateTestStep("j1", testutil.WithStepType(models.StepTypeExit, nil))
	exitLost := testutil.CreateTestStep("j1", testutil.WithStepType(models.StepTypeExit, nil))
	branch := testutil.CreateTestStep("j1",
		testutil.WithStepType(models.StepTypeCondition, map[string]any{
			"field": "plan", "operator": "equals", "value": "pro",
		}),
		testutil.WithBranches(exitWon.ID, exitLost.ID),
	)
	entry := testutil.CreateTestStep("j1", testutil.WithNext(branch.ID))

	result := Validate([]*models.Step{entry, branch, exitWon, exitLost})

	assert.True(t, result.Valid)
}

func TestEntryStep(t *testing.T) {
	exit := testutil.CreateTestStep("j1", testutil.WithStepType(models.StepTypeExit, nil))
	middle := testutil.CreateTestStep("j1", testutil.WithNext(exit.ID))
	entry := testutil.CreateTestStep("j1", testutil.WithNext(middle.ID))

	found := EntryStep([]*models.Step{middle, exit, entry})

	require.NotNil(t, found)
	assert.Equal(t, entry.ID, found.ID)
}
