package runner

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/enroutehq/enroute/pkg/enrollment"
	"github.com/enroutehq/enroute/pkg/mocks"
	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/persistence/file"
	"github.com/enroutehq/enroute/pkg/protocol"
	"github.com/enroutehq/enroute/pkg/registry"
	"github.com/enroutehq/enroute/pkg/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testHarness bundles the persistence and runner wiring shared by the
// runner tests.
type testHarness struct {
	persistence *file.Persistence
	runner      *Runner
	controller  *enrollment.Controller
	contacts    *mocks.MockContactDirectory
	actions     *mocks.MockActionExecutor
	crm         *mocks.MockCRMMutator
}

func newHarness(t *testing.T, config Config) *testHarness {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(testLogger())
	reg.RegisterDefaultHandlers()

	contacts := &mocks.MockContactDirectory{}
	actions := &mocks.MockActionExecutor{}
	crm := &mocks.MockCRMMutator{}

	collaborators := protocol.Collaborators{
		Contacts: contacts,
		Actions:  actions,
		CRM:      crm,
	}

	controller := enrollment.NewController(p, nil, testLogger())
	r := NewRunner(p, reg, collaborators, controller, nil, nil, testLogger(), config)

	return &testHarness{
		persistence: p,
		runner:      r,
		controller:  controller,
		contacts:    contacts,
		actions:     actions,
		crm:         crm,
	}
}

func (h *testHarness) expectContact() {
	h.contacts.On("GetContact", mock.Anything, "contact-1").Return(&protocol.ContactSummary{
		ID:        "contact-1",
		Email:     "ada@example.com",
		FirstName: "Ada",
	}, nil)
}

func (h *testHarness) save(t *testing.T, journeyModel *models.Journey, steps []*models.Step, enrollmentModel *models.Enrollment, execution *models.StepExecution) {
	t.Helper()

	require.NoError(t, h.persistence.JourneyRepository().Save(t.Context(), journeyModel))

	for _, step := range steps {
		require.NoError(t, h.persistence.StepRepository().Save(t.Context(), step))
	}

	require.NoError(t, h.persistence.EnrollmentRepository().Save(t.Context(), enrollmentModel))
	require.NoError(t, h.persistence.ExecutionRepository().Save(t.Context(), execution))
}

func TestProcessExecution_AdvancesLinearGraph(t *testing.T) {
	h := newHarness(t, Config{})
	h.expectContact()
	h.actions.On("Send", mock.Anything, protocol.ActionKindEmail, mock.Anything).
		Return(&protocol.ActionResult{Delivered: true, ProviderMessageID: "msg-1"}, nil)

	journeyModel := testutil.CreateTestJourney()
	exitStep := testutil.CreateTestStep(journeyModel.ID, testutil.WithStepType(models.StepTypeExit, nil))
	emailStep := testutil.CreateTestStep(journeyModel.ID, testutil.WithNext(exitStep.ID))
	enrollmentModel := testutil.CreateTestEnrollment(journeyModel, emailStep.ID)
	execution := testutil.CreateTestExecution(enrollmentModel, emailStep.ID)
	h.save(t, journeyModel, []*models.Step{emailStep, exitStep}, enrollmentModel, execution)

	require.NoError(t, h.runner.ProcessExecution(t.Context(), execution.ID))

	finished, err := h.persistence.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusExecuted, finished.Status)
	assert.Equal(t, "msg-1", finished.ProviderMessageID)
	assert.NotNil(t, finished.FinishedAt)

	advanced, err := h.persistence.EnrollmentRepository().GetByID(t.Context(), enrollmentModel.ID)
	require.NoError(t, err)
	require.NotNil(t, advanced.CurrentStepID)
	assert.Equal(t, exitStep.ID, *advanced.CurrentStepID)
	assert.Equal(t, int64(1), advanced.StepsCompleted)
	assert.Equal(t, int64(1), advanced.EmailsSent)

	open, err := h.persistence.ExecutionRepository().OpenByEnrollment(t.Context(), enrollmentModel.ID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, exitStep.ID, open.StepID)
	assert.Equal(t, models.ExecutionStatusPending, open.Status)

	savedStep, err := h.persistence.StepRepository().GetByID(t.Context(), emailStep.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), savedStep.TotalExecutions)
	assert.Equal(t, int64(1), savedStep.TotalSuccess)
}

func TestProcessEnrollment_DrainsDueChain(t *testing.T) {
	h := newHarness(t, Config{})
	h.expectContact()
	h.actions.On("Send", mock.Anything, protocol.ActionKindEmail, mock.Anything).
		Return(&protocol.ActionResult{Delivered: true}, nil)

	journeyModel := testutil.CreateTestJourney()
	exitStep := testutil.CreateTestStep(journeyModel.ID, testutil.WithStepType(models.StepTypeExit, nil))
	emailStep := testutil.CreateTestStep(journeyModel.ID, testutil.WithNext(exitStep.ID))
	enrollmentModel := testutil.CreateTestEnrollment(journeyModel, emailStep.ID)
	execution := testutil.CreateTestExecution(enrollmentModel, emailStep.ID)
	h.save(t, journeyModel, []*models.Step{emailStep, exitStep}, enrollmentModel, execution)

	require.NoError(t, h.runner.ProcessEnrollment(t.Context(), enrollmentModel.ID))

	drained, err := h.persistence.EnrollmentRepository().GetByID(t.Context(), enrollmentModel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, drained.Status)
	assert.NotNil(t, drained.CompletedAt)

	open, err := h.persistence.ExecutionRepository().OpenByEnrollment(t.Context(), enrollmentModel.ID)
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestProcessExecution_ExitStepCompletesEnrollment(t *testing.T) {
	h := newHarness(t, Config{})
	h.expectContact()

	journeyModel := testutil.CreateTestJourney()
	exitStep := testutil.CreateTestStep(journeyModel.ID, testutil.WithStepType(models.StepTypeExit, nil))
	enrollmentModel := testutil.CreateTestEnrollment(journeyModel, exitStep.ID)
	execution := testutil.CreateTestExecution(enrollmentModel, exitStep.ID)
	h.save(t, journeyModel, []*models.Step{exitStep}, enrollmentModel, execution)

	require.NoError(t, h.runner.ProcessExecution(t.Context(), execution.ID))

	finished, err := h.persistence.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusExecuted, finished.Status)

	// Reaching an exit step is the designed end of the path: the run
	// finishes as completed, not as a removal.
	completed, err := h.persistence.EnrollmentRepository().GetByID(t.Context(), enrollmentModel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, completed.Status)
	assert.NotNil(t, completed.CompletedAt)
	assert.Nil(t, completed.CurrentStepID)
	assert.Empty(t, completed.ExitReason)

	savedJourney, err := h.persistence.JourneyRepository().GetByID(t.Context(), journeyModel.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), savedJourney.TotalCompleted)
}

func TestProcessExecution_MissingOutgoingEdgeFailsEnrollment(t *testing.T) {
	h := newHarness(t, Config{})
	h.expectContact()
	h.actions.On("Send", mock.Anything, protocol.ActionKindEmail, mock.Anything).
		Return(&protocol.ActionResult{Delivered: true}, nil)

	journeyModel := testutil.CreateTestJourney()

	// A non-exit step whose outgoing edge was removed under the live run.
	emailStep := testutil.CreateTestStep(journeyModel.ID)
	enrollmentModel := testutil.CreateTestEnrollment(journeyModel, emailStep.ID)
	execution := testutil.CreateTestExecution(enrollmentModel, emailStep.ID)
	h.save(t, journeyModel, []*models.Step{emailStep}, enrollmentModel, execution)

	require.NoError(t, h.runner.ProcessExecution(t.Context(), execution.ID))

	failed, err := h.persistence.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, failed.Status)
	assert.Equal(t, ErrGraphDrift.Error(), failed.ErrorMessage)

	dead, err := h.persistence.EnrollmentRepository().GetByID(t.Context(), enrollmentModel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusFailed, dead.Status)
	assert.Equal(t, ErrGraphDrift.Error(), dead.LastError)
}

// TestProcessEnrollment_EngagementDrivenBranch walks a whole journey:
// welcome email, one day delay, a condition on the open, then the tag
// branch into the exit.
func TestProcessEnrollment_EngagementDrivenBranch(t *testing.T) {
	h := newHarness(t, Config{})
	h.expectContact()
	h.actions.On("Send", mock.Anything, protocol.ActionKindEmail, mock.Anything).
		Return(&protocol.ActionResult{Delivered: true, ProviderMessageID: "msg-welcome"}, nil)
	h.crm.On("AddTag", mock.Anything, "contact-1", "engaged").Return(nil)

	journeyModel := testutil.CreateTestJourney()
	exitStep := testutil.CreateTestStep(journeyModel.ID, testutil.WithStepType(models.StepTypeExit, nil))
	tagStep := testutil.CreateTestStep(journeyModel.ID,
		testutil.WithStepType(models.StepTypeAddTag, map[string]any{"tag": "engaged"}),
		testutil.WithNext(exitStep.ID))
	followUpStep := testutil.CreateTestStep(journeyModel.ID,
		testutil.WithStepType(models.StepTypeSendEmail, map[string]any{
			"subject": "Still there?",
			"body":    "Checking in",
		}),
		testutil.WithNext(exitStep.ID))
	conditionStep := testutil.CreateTestStep(journeyModel.ID,
		testutil.WithStepType(models.StepTypeCondition, map[string]any{
			"field":    "opened_email",
			"operator": "equals",
			"value":    true,
		}),
		testutil.WithBranches(tagStep.ID, followUpStep.ID))
	delayStep := testutil.CreateTestStep(journeyModel.ID,
		testutil.WithStepType(models.StepTypeDelay, map[string]any{"value": 1, "unit": "days"}),
		testutil.WithNext(conditionStep.ID))
	welcomeStep := testutil.CreateTestStep(journeyModel.ID, testutil.WithNext(delayStep.ID))

	require.NoError(t, h.persistence.JourneyRepository().Save(t.Context(), journeyModel))

	steps := []*models.Step{welcomeStep, delayStep, conditionStep, tagStep, followUpStep, exitStep}
	for _, step := range steps {
		require.NoError(t, h.persistence.StepRepository().Save(t.Context(), step))
	}

	enrolled, err := h.controller.Enroll(t.Context(), enrollment.EnrollInput{
		JourneyID: journeyModel.ID,
		ContactID: "contact-1",
		TenantID:  journeyModel.TenantID,
		Source:    "api",
	})
	require.NoError(t, err)

	// The welcome email goes out and the run parks on the delay.
	require.NoError(t, h.runner.ProcessEnrollment(t.Context(), enrolled.ID))

	parked, err := h.persistence.ExecutionRepository().OpenByEnrollment(t.Context(), enrolled.ID)
	require.NoError(t, err)
	require.NotNil(t, parked)
	assert.Equal(t, delayStep.ID, parked.StepID)
	assert.Equal(t, models.ExecutionStatusScheduled, parked.Status)

	// The contact opens the email before the delay expires.
	executions, err := h.persistence.ExecutionRepository().ListByEnrollment(t.Context(), enrolled.ID)
	require.NoError(t, err)

	var welcomeExecution *models.StepExecution

	for _, execution := range executions {
		if execution.StepID == welcomeStep.ID {
			welcomeExecution = execution
		}
	}

	require.NotNil(t, welcomeExecution)

	stamped, err := h.controller.RecordEmailEvent(t.Context(), welcomeExecution.ID, "opened", time.Now().UTC())
	require.NoError(t, err)
	assert.NotNil(t, stamped.OpenedAt)

	// The delay expires and the sweep resumes the run.
	past := time.Now().UTC().Add(-time.Minute)
	parked.ScheduledFor = &past
	require.NoError(t, h.persistence.ExecutionRepository().Save(t.Context(), parked))

	require.NoError(t, h.runner.ProcessEnrollment(t.Context(), enrolled.ID))

	finished, err := h.persistence.EnrollmentRepository().GetByID(t.Context(), enrolled.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, finished.Status)
	assert.NotNil(t, finished.CompletedAt)
	assert.Equal(t, int64(1), finished.EmailsOpened)

	h.crm.AssertCalled(t, "AddTag", mock.Anything, "contact-1", "engaged")

	// The follow-up branch never fired: the only send was the welcome
	// email.
	h.actions.AssertNumberOfCalls(t, "Send", 1)

	executions, err = h.persistence.ExecutionRepository().ListByEnrollment(t.Context(), enrolled.ID)
	require.NoError(t, err)

	for _, execution := range executions {
		assert.Equal(t, models.ExecutionStatusExecuted, execution.Status)
	}
}

func TestProcessExecution_BranchRouting(t *testing.T) {
	h := newHarness(t, Config{})
	h.expectContact()

	journeyModel := testutil.CreateTestJourney()
	trueStep := testutil.CreateTestStep(journeyModel.ID, testutil.WithStepType(models.StepTypeExit, nil))
	falseStep := testutil.CreateTestStep(journeyModel.ID, testutil.WithStepType(models.StepTypeExit, nil))
	conditionStep := testutil.CreateTestStep(journeyModel.ID,
		testutil.WithStepType(models.StepTypeCondition, map[string]any{
			"field":    "plan",
			"operator": "equals",
			"value":    "pro",
		}),
		testutil.WithBranches(trueStep.ID, falseStep.ID))
	enrollmentModel := testutil.CreateTestEnrollment(journeyModel, conditionStep.ID, func(e *models.Enrollment) {
		e.Context = map[string]any{"plan": "pro"}
	})
	execution := testutil.CreateTestExecution(enrollmentModel, conditionStep.ID)
	h.save(t, journeyModel, []*models.Step{conditionStep, trueStep, falseStep}, enrollmentModel, execution)

	require.NoError(t, h.runner.ProcessExecution(t.Context(), execution.ID))

	finished, err := h.persistence.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)
	require.NotNil(t, finished.DecisionMade)
	assert.True(t, *finished.DecisionMade)
	assert.NotEmpty(t, finished.DecisionReason)

	advanced, err := h.persistence.EnrollmentRepository().GetByID(t.Context(), enrollmentModel.ID)
	require.NoError(t, err)
	require.NotNil(t, advanced.CurrentStepID)
	assert.Equal(t, trueStep.ID, *advanced.CurrentStepID)
}

func TestProcessExecution_DelayReschedulesThenAdvances(t *testing.T) {
	h := newHarness(t, Config{})
	h.expectContact()

	journeyModel := testutil.CreateTestJourney()
	exitStep := testutil.CreateTestStep(journeyModel.ID, testutil.WithStepType(models.StepTypeExit, nil))
	delayStep := testutil.CreateTestStep(journeyModel.ID,
		testutil.WithStepType(models.StepTypeDelay, map[string]any{"value": 2, "unit": "hours"}),
		testutil.WithNext(exitStep.ID))
	enrollmentModel := testutil.CreateTestEnrollment(journeyModel, delayStep.ID)
	execution := testutil.CreateTestExecution(enrollmentModel, delayStep.ID)
	h.save(t, journeyModel, []*models.Step{delayStep, exitStep}, enrollmentModel, execution)

	require.NoError(t, h.runner.ProcessExecution(t.Context(), execution.ID))

	parked, err := h.persistence.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusScheduled, parked.Status)
	require.NotNil(t, parked.ScheduledFor)
	assert.WithinDuration(t, time.Now().UTC().Add(2*time.Hour), *parked.ScheduledFor, time.Minute)

	// The enrollment has not moved.
	held, err := h.persistence.EnrollmentRepository().GetByID(t.Context(), enrollmentModel.ID)
	require.NoError(t, err)
	require.NotNil(t, held.CurrentStepID)
	assert.Equal(t, delayStep.ID, *held.CurrentStepID)
	assert.Equal(t, int64(0), held.StepsCompleted)

	// Fast-forward the wake-up and process again.
	past := time.Now().UTC().Add(-time.Minute)
	parked.ScheduledFor = &past
	require.NoError(t, h.persistence.ExecutionRepository().Save(t.Context(), parked))

	require.NoError(t, h.runner.ProcessExecution(t.Context(), execution.ID))

	advanced, err := h.persistence.EnrollmentRepository().GetByID(t.Context(), enrollmentModel.ID)
	require.NoError(t, err)
	require.NotNil(t, advanced.CurrentStepID)
	assert.Equal(t, exitStep.ID, *advanced.CurrentStepID)
}

func TestProcessExecution_RetriesWithBackoffThenFails(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 1, RetryBackoff: time.Minute})
	h.expectContact()
	h.actions.On("Send", mock.Anything, protocol.ActionKindEmail, mock.Anything).
		Return(&protocol.ActionResult{Delivered: false, Error: "smtp unreachable"}, nil)

	journeyModel := testutil.CreateTestJourney()
	emailStep := testutil.CreateTestStep(journeyModel.ID)
	enrollmentModel := testutil.CreateTestEnrollment(journeyModel, emailStep.ID)
	execution := testutil.CreateTestExecution(enrollmentModel, emailStep.ID)
	h.save(t, journeyModel, []*models.Step{emailStep}, enrollmentModel, execution)

	require.NoError(t, h.runner.ProcessExecution(t.Context(), execution.ID))

	retrying, err := h.persistence.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusScheduled, retrying.Status)
	assert.Equal(t, 1, retrying.RetryCount)
	require.NotNil(t, retrying.ScheduledFor)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Minute), *retrying.ScheduledFor, 15*time.Second)
	assert.Contains(t, retrying.ErrorMessage, "smtp unreachable")

	// Retry comes due and fails again; the retry budget is spent.
	past := time.Now().UTC().Add(-time.Second)
	retrying.ScheduledFor = &past
	require.NoError(t, h.persistence.ExecutionRepository().Save(t.Context(), retrying))

	require.NoError(t, h.runner.ProcessExecution(t.Context(), execution.ID))

	failed, err := h.persistence.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, failed.Status)
	assert.Equal(t, 2, failed.RetryCount)

	dead, err := h.persistence.EnrollmentRepository().GetByID(t.Context(), enrollmentModel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusFailed, dead.Status)
	assert.Contains(t, dead.LastError, "smtp unreachable")

	savedStep, err := h.persistence.StepRepository().GetByID(t.Context(), emailStep.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), savedStep.TotalFailure)
}

func TestProcessExecution_GoalShortCircuitsEdgeSelection(t *testing.T) {
	h := newHarness(t, Config{})
	h.expectContact()
	h.actions.On("Send", mock.Anything, protocol.ActionKindEmail, mock.Anything).
		Return(&protocol.ActionResult{Delivered: true}, nil)

	journeyModel := testutil.CreateTestJourney(
		testutil.WithGoal(map[string]any{"field": "plan", "operator": "equals", "value": "pro"}))
	exitStep := testutil.CreateTestStep(journeyModel.ID, testutil.WithStepType(models.StepTypeExit, nil))
	emailStep := testutil.CreateTestStep(journeyModel.ID, testutil.WithNext(exitStep.ID))
	enrollmentModel := testutil.CreateTestEnrollment(journeyModel, emailStep.ID, func(e *models.Enrollment) {
		e.Context = map[string]any{"plan": "pro"}
	})
	execution := testutil.CreateTestExecution(enrollmentModel, emailStep.ID)
	h.save(t, journeyModel, []*models.Step{emailStep, exitStep}, enrollmentModel, execution)

	require.NoError(t, h.runner.ProcessExecution(t.Context(), execution.ID))

	reached, err := h.persistence.EnrollmentRepository().GetByID(t.Context(), enrollmentModel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusGoalReached, reached.Status)
	assert.NotNil(t, reached.GoalReachedAt)

	// No further execution was opened.
	open, err := h.persistence.ExecutionRepository().OpenByEnrollment(t.Context(), enrollmentModel.ID)
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestProcessExecution_GraphDriftFailsOnlyAffectedEnrollment(t *testing.T) {
	h := newHarness(t, Config{})

	journeyModel := testutil.CreateTestJourney()
	survivorStep := testutil.CreateTestStep(journeyModel.ID)

	drifted := testutil.CreateTestEnrollment(journeyModel, "deleted-step")
	driftedExecution := testutil.CreateTestExecution(drifted, "deleted-step")
	h.save(t, journeyModel, []*models.Step{survivorStep}, drifted, driftedExecution)

	survivor := testutil.CreateTestEnrollment(journeyModel, survivorStep.ID, func(e *models.Enrollment) {
		e.ContactID = "contact-2"
	})
	require.NoError(t, h.persistence.EnrollmentRepository().Save(t.Context(), survivor))

	require.NoError(t, h.runner.ProcessExecution(t.Context(), driftedExecution.ID))

	failed, err := h.persistence.EnrollmentRepository().GetByID(t.Context(), drifted.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusFailed, failed.Status)
	assert.Equal(t, ErrGraphDrift.Error(), failed.LastError)

	unharmed, err := h.persistence.EnrollmentRepository().GetByID(t.Context(), survivor.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, unharmed.Status)
}

func TestProcessExecution_SkipsTerminalEnrollment(t *testing.T) {
	h := newHarness(t, Config{})

	journeyModel := testutil.CreateTestJourney()
	emailStep := testutil.CreateTestStep(journeyModel.ID)
	enrollmentModel := testutil.CreateTestEnrollment(journeyModel, emailStep.ID, func(e *models.Enrollment) {
		exited := time.Now().UTC()
		e.Status = models.EnrollmentStatusExited
		e.ExitedAt = &exited
	})
	execution := testutil.CreateTestExecution(enrollmentModel, emailStep.ID)
	h.save(t, journeyModel, []*models.Step{emailStep}, enrollmentModel, execution)

	require.NoError(t, h.runner.ProcessExecution(t.Context(), execution.ID))

	skipped, err := h.persistence.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSkipped, skipped.Status)

	h.actions.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessExecution_PausedEnrollmentReleasesClaim(t *testing.T) {
	h := newHarness(t, Config{})

	journeyModel := testutil.CreateTestJourney()
	emailStep := testutil.CreateTestStep(journeyModel.ID)
	enrollmentModel := testutil.CreateTestEnrollment(journeyModel, emailStep.ID, func(e *models.Enrollment) {
		e.Status = models.EnrollmentStatusPaused
	})
	execution := testutil.CreateTestExecution(enrollmentModel, emailStep.ID)
	h.save(t, journeyModel, []*models.Step{emailStep}, enrollmentModel, execution)

	require.NoError(t, h.runner.ProcessExecution(t.Context(), execution.ID))

	released, err := h.persistence.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, released.Status)
	assert.Nil(t, released.StartedAt)

	h.actions.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessExecution_PausedJourneyHoldsRuns(t *testing.T) {
	h := newHarness(t, Config{})

	journeyModel := testutil.CreateTestJourney(testutil.WithStatus(models.JourneyStatusPaused))
	emailStep := testutil.CreateTestStep(journeyModel.ID)
	enrollmentModel := testutil.CreateTestEnrollment(journeyModel, emailStep.ID)
	execution := testutil.CreateTestExecution(enrollmentModel, emailStep.ID)
	h.save(t, journeyModel, []*models.Step{emailStep}, enrollmentModel, execution)

	require.NoError(t, h.runner.ProcessExecution(t.Context(), execution.ID))

	released, err := h.persistence.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, released.Status)
}

func TestProcessExecution_ArchivedJourneyKeepsRunning(t *testing.T) {
	h := newHarness(t, Config{})
	h.expectContact()
	h.actions.On("Send", mock.Anything, protocol.ActionKindEmail, mock.Anything).
		Return(&protocol.ActionResult{Delivered: true}, nil)

	journeyModel := testutil.CreateTestJourney(testutil.WithStatus(models.JourneyStatusArchived))
	exitStep := testutil.CreateTestStep(journeyModel.ID, testutil.WithStepType(models.StepTypeExit, nil))
	emailStep := testutil.CreateTestStep(journeyModel.ID, testutil.WithNext(exitStep.ID))
	enrollmentModel := testutil.CreateTestEnrollment(journeyModel, emailStep.ID)
	execution := testutil.CreateTestExecution(enrollmentModel, emailStep.ID)
	h.save(t, journeyModel, []*models.Step{emailStep, exitStep}, enrollmentModel, execution)

	require.NoError(t, h.runner.ProcessExecution(t.Context(), execution.ID))

	advanced, err := h.persistence.EnrollmentRepository().GetByID(t.Context(), enrollmentModel.ID)
	require.NoError(t, err)
	require.NotNil(t, advanced.CurrentStepID)
	assert.Equal(t, exitStep.ID, *advanced.CurrentStepID)
}

func TestProcessDue(t *testing.T) {
	h := newHarness(t, Config{})
	h.expectContact()
	h.actions.On("Send", mock.Anything, protocol.ActionKindEmail, mock.Anything).
		Return(&protocol.ActionResult{Delivered: true}, nil)

	journeyModel := testutil.CreateTestJourney()
	exitStep := testutil.CreateTestStep(journeyModel.ID, testutil.WithStepType(models.StepTypeExit, nil))
	emailStep := testutil.CreateTestStep(journeyModel.ID, testutil.WithNext(exitStep.ID))
	enrollmentModel := testutil.CreateTestEnrollment(journeyModel, emailStep.ID)
	execution := testutil.CreateTestExecution(enrollmentModel, emailStep.ID)
	h.save(t, journeyModel, []*models.Step{emailStep, exitStep}, enrollmentModel, execution)

	// A second enrollment parked in the future stays untouched.
	future := time.Now().UTC().Add(time.Hour)
	waiting := testutil.CreateTestEnrollment(journeyModel, emailStep.ID, func(e *models.Enrollment) {
		e.ContactID = "contact-2"
	})
	require.NoError(t, h.persistence.EnrollmentRepository().Save(t.Context(), waiting))
	parked := testutil.CreateTestExecution(waiting, emailStep.ID, func(e *models.StepExecution) {
		e.Status = models.ExecutionStatusScheduled
		e.ScheduledFor = &future
	})
	require.NoError(t, h.persistence.ExecutionRepository().Save(t.Context(), parked))

	processed, err := h.runner.ProcessDue(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	untouched, err := h.persistence.ExecutionRepository().GetByID(t.Context(), parked.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusScheduled, untouched.Status)
}
