package enrollment

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/persistence/file"
	"github.com/enroutehq/enroute/pkg/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedJourney saves an active journey with a linear entry -> exit graph and
// returns the journey and its entry step.
func seedJourney(t *testing.T, p *file.Persistence, overrides ...func(*models.Journey)) (*models.Journey, *models.Step) {
	t.Helper()

	journeyModel := testutil.CreateTestJourney(overrides...)
	require.NoError(t, p.JourneyRepository().Save(t.Context(), journeyModel))

	exit := testutil.CreateTestStep(journeyModel.ID,
		testutil.WithStepType(models.StepTypeExit, nil))
	entry := testutil.CreateTestStep(journeyModel.ID, testutil.WithNext(exit.ID))

	require.NoError(t, p.StepRepository().Save(t.Context(), entry))
	require.NoError(t, p.StepRepository().Save(t.Context(), exit))

	return journeyModel, entry
}

func TestEnroll(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	journeyModel, entry := seedJourney(t, p)
	controller := NewController(p, nil, testLogger())

	enrollmentModel, err := controller.Enroll(t.Context(), EnrollInput{
		JourneyID: journeyModel.ID,
		ContactID: "contact-42",
		TenantID:  journeyModel.TenantID,
		Source:    "api",
		Context:   map[string]any{"plan": "pro"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusActive, enrollmentModel.Status)
	require.NotNil(t, enrollmentModel.CurrentStepID)
	assert.Equal(t, entry.ID, *enrollmentModel.CurrentStepID)
	assert.NotNil(t, enrollmentModel.StartedAt)

	open, err := p.ExecutionRepository().OpenByEnrollment(t.Context(), enrollmentModel.ID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, entry.ID, open.StepID)
	assert.Equal(t, models.ExecutionStatusPending, open.Status)

	saved, err := p.JourneyRepository().GetByID(t.Context(), journeyModel.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.TotalEnrolled)
}

func TestEnroll_JourneyNotActive(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	journeyModel, _ := seedJourney(t, p, testutil.WithStatus(models.JourneyStatusPaused))
	controller := NewController(p, nil, testLogger())

	_, err := controller.Enroll(t.Context(), EnrollInput{
		JourneyID: journeyModel.ID,
		ContactID: "contact-42",
		TenantID:  journeyModel.TenantID,
	})
	assert.ErrorIs(t, err, ErrJourneyNotActive)
}

func TestEnroll_TenantMismatch(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	journeyModel, _ := seedJourney(t, p)
	controller := NewController(p, nil, testLogger())

	_, err := controller.Enroll(t.Context(), EnrollInput{
		JourneyID: journeyModel.ID,
		ContactID: "contact-42",
		TenantID:  "someone-else",
	})
	assert.ErrorIs(t, err, ErrTenantMismatch)
}

func TestEnroll_AlreadyEnrolled(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	journeyModel, _ := seedJourney(t, p)
	controller := NewController(p, nil, testLogger())

	input := EnrollInput{
		JourneyID: journeyModel.ID,
		ContactID: "contact-42",
		TenantID:  journeyModel.TenantID,
	}

	_, err := controller.Enroll(t.Context(), input)
	require.NoError(t, err)

	_, err = controller.Enroll(t.Context(), input)
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
}

func TestEnroll_ReEnrollmentNotAllowed(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	journeyModel, entry := seedJourney(t, p)
	controller := NewController(p, nil, testLogger())

	past := testutil.CreateTestEnrollment(journeyModel, entry.ID, func(e *models.Enrollment) {
		completed := time.Now().UTC().Add(-48 * time.Hour)
		e.ContactID = "contact-42"
		e.Status = models.EnrollmentStatusCompleted
		e.CompletedAt = &completed
	})
	require.NoError(t, p.EnrollmentRepository().Save(t.Context(), past))

	_, err := controller.Enroll(t.Context(), EnrollInput{
		JourneyID: journeyModel.ID,
		ContactID: "contact-42",
		TenantID:  journeyModel.TenantID,
	})
	assert.ErrorIs(t, err, ErrReEnrollmentNotAllowed)
}

func TestEnroll_ReEnrollmentCooldown(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	journeyModel, entry := seedJourney(t, p,
		testutil.WithReEnrollment(models.ReEnrollmentPolicy{Allowed: true, CooldownDays: 7}))
	controller := NewController(p, nil, testLogger())

	past := testutil.CreateTestEnrollment(journeyModel, entry.ID, func(e *models.Enrollment) {
		completed := time.Now().UTC().Add(-24 * time.Hour)
		e.ContactID = "contact-42"
		e.Status = models.EnrollmentStatusCompleted
		e.CompletedAt = &completed
	})
	require.NoError(t, p.EnrollmentRepository().Save(t.Context(), past))

	_, err := controller.Enroll(t.Context(), EnrollInput{
		JourneyID: journeyModel.ID,
		ContactID: "contact-42",
		TenantID:  journeyModel.TenantID,
	})
	assert.ErrorIs(t, err, ErrReEnrollmentNotAllowed)
}

func TestEnroll_ReEnrollmentAfterCooldown(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	journeyModel, entry := seedJourney(t, p,
		testutil.WithReEnrollment(models.ReEnrollmentPolicy{Allowed: true, CooldownDays: 7}))
	controller := NewController(p, nil, testLogger())

	past := testutil.CreateTestEnrollment(journeyModel, entry.ID, func(e *models.Enrollment) {
		completed := time.Now().UTC().AddDate(0, 0, -30)
		e.ContactID = "contact-42"
		e.Status = models.EnrollmentStatusCompleted
		e.CompletedAt = &completed
		e.EnrolledAt = completed.Add(-time.Hour)
	})
	require.NoError(t, p.EnrollmentRepository().Save(t.Context(), past))

	_, err := controller.Enroll(t.Context(), EnrollInput{
		JourneyID: journeyModel.ID,
		ContactID: "contact-42",
		TenantID:  journeyModel.TenantID,
	})
	assert.NoError(t, err)
}

func TestEnroll_ReEnrollmentLimit(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	journeyModel, entry := seedJourney(t, p,
		testutil.WithReEnrollment(models.ReEnrollmentPolicy{Allowed: true, MaxEnrollmentsPerContact: 2}))
	controller := NewController(p, nil, testLogger())

	for i := 0; i < 2; i++ {
		past := testutil.CreateTestEnrollment(journeyModel, entry.ID, func(e *models.Enrollment) {
			completed := time.Now().UTC().AddDate(0, 0, -10+i)
			e.ContactID = "contact-42"
			e.Status = models.EnrollmentStatusCompleted
			e.CompletedAt = &completed
			e.EnrolledAt = completed
		})
		require.NoError(t, p.EnrollmentRepository().Save(t.Context(), past))
	}

	_, err := controller.Enroll(t.Context(), EnrollInput{
		JourneyID: journeyModel.ID,
		ContactID: "contact-42",
		TenantID:  journeyModel.TenantID,
	})
	assert.ErrorIs(t, err, ErrReEnrollmentNotAllowed)
}

func TestExit(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	journeyModel, _ := seedJourney(t, p)
	controller := NewController(p, nil, testLogger())

	enrollmentModel, err := controller.Enroll(t.Context(), EnrollInput{
		JourneyID: journeyModel.ID,
		ContactID: "contact-42",
		TenantID:  journeyModel.TenantID,
	})
	require.NoError(t, err)

	exited, err := controller.Exit(t.Context(), enrollmentModel.ID, "unsubscribed")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusExited, exited.Status)
	assert.Equal(t, "unsubscribed", exited.ExitReason)
	assert.Nil(t, exited.CurrentStepID)
	assert.NotNil(t, exited.ExitedAt)

	open, err := p.ExecutionRepository().OpenByEnrollment(t.Context(), enrollmentModel.ID)
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestExit_Idempotent(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	journeyModel, _ := seedJourney(t, p)
	controller := NewController(p, nil, testLogger())

	enrollmentModel, err := controller.Enroll(t.Context(), EnrollInput{
		JourneyID: journeyModel.ID,
		ContactID: "contact-42",
		TenantID:  journeyModel.TenantID,
	})
	require.NoError(t, err)

	_, err = controller.Exit(t.Context(), enrollmentModel.ID, "first")
	require.NoError(t, err)

	again, err := controller.Exit(t.Context(), enrollmentModel.ID, "second")
	require.NoError(t, err)
	assert.Equal(t, "first", again.ExitReason)
}

func TestExit_LeavesExecutingRowAlone(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	journeyModel, entry := seedJourney(t, p)
	controller := NewController(p, nil, testLogger())

	enrollmentModel := testutil.CreateTestEnrollment(journeyModel, entry.ID)
	require.NoError(t, p.EnrollmentRepository().Save(t.Context(), enrollmentModel))

	execution := testutil.CreateTestExecution(enrollmentModel, entry.ID, func(e *models.StepExecution) {
		started := time.Now().UTC()
		e.Status = models.ExecutionStatusExecuting
		e.StartedAt = &started
	})
	require.NoError(t, p.ExecutionRepository().Save(t.Context(), execution))

	_, err := controller.Exit(t.Context(), enrollmentModel.ID, "goodbye")
	require.NoError(t, err)

	saved, err := p.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusExecuting, saved.Status)
}

func TestPauseAndResume(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	journeyModel, _ := seedJourney(t, p)
	controller := NewController(p, nil, testLogger())

	enrollmentModel, err := controller.Enroll(t.Context(), EnrollInput{
		JourneyID: journeyModel.ID,
		ContactID: "contact-42",
		TenantID:  journeyModel.TenantID,
	})
	require.NoError(t, err)

	paused, err := controller.Pause(t.Context(), enrollmentModel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusPaused, paused.Status)

	// Pausing twice is a no-op.
	_, err = controller.Pause(t.Context(), enrollmentModel.ID)
	require.NoError(t, err)

	resumed, err := controller.Resume(t.Context(), enrollmentModel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, resumed.Status)

	_, err = controller.Resume(t.Context(), enrollmentModel.ID)
	assert.ErrorIs(t, err, ErrEnrollmentNotPaused)
}

func TestPause_TerminalEnrollment(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	journeyModel, _ := seedJourney(t, p)
	controller := NewController(p, nil, testLogger())

	enrollmentModel, err := controller.Enroll(t.Context(), EnrollInput{
		JourneyID: journeyModel.ID,
		ContactID: "contact-42",
		TenantID:  journeyModel.TenantID,
	})
	require.NoError(t, err)

	_, err = controller.Exit(t.Context(), enrollmentModel.ID, "done")
	require.NoError(t, err)

	_, err = controller.Pause(t.Context(), enrollmentModel.ID)
	assert.ErrorIs(t, err, ErrEnrollmentTerminal)
}

func TestComplete(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	journeyModel, entry := seedJourney(t, p)
	controller := NewController(p, nil, testLogger())

	enrollmentModel := testutil.CreateTestEnrollment(journeyModel, entry.ID, func(e *models.Enrollment) {
		e.StepsCompleted = 3
	})
	require.NoError(t, p.EnrollmentRepository().Save(t.Context(), enrollmentModel))

	require.NoError(t, controller.Complete(t.Context(), journeyModel, enrollmentModel))

	assert.Equal(t, models.EnrollmentStatusCompleted, enrollmentModel.Status)
	assert.NotNil(t, enrollmentModel.CompletedAt)
	assert.Nil(t, enrollmentModel.CurrentStepID)

	saved, err := p.JourneyRepository().GetByID(t.Context(), journeyModel.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.TotalCompleted)
}

func TestReachGoal(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	journeyModel, entry := seedJourney(t, p,
		testutil.WithGoal(map[string]any{"field": "converted", "operator": "equals", "value": true}))
	controller := NewController(p, nil, testLogger())

	enrollmentModel := testutil.CreateTestEnrollment(journeyModel, entry.ID)
	require.NoError(t, p.EnrollmentRepository().Save(t.Context(), enrollmentModel))

	require.NoError(t, controller.ReachGoal(t.Context(), journeyModel, enrollmentModel))

	assert.Equal(t, models.EnrollmentStatusGoalReached, enrollmentModel.Status)
	assert.NotNil(t, enrollmentModel.GoalReachedAt)

	saved, err := p.JourneyRepository().GetByID(t.Context(), journeyModel.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.TotalGoalReached)
}

func TestFail(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	journeyModel, entry := seedJourney(t, p)
	controller := NewController(p, nil, testLogger())

	enrollmentModel := testutil.CreateTestEnrollment(journeyModel, entry.ID)
	require.NoError(t, p.EnrollmentRepository().Save(t.Context(), enrollmentModel))

	require.NoError(t, controller.Fail(t.Context(), enrollmentModel, entry.ID, "smtp unreachable"))

	assert.Equal(t, models.EnrollmentStatusFailed, enrollmentModel.Status)
	assert.Equal(t, "smtp unreachable", enrollmentModel.LastError)
	assert.NotNil(t, enrollmentModel.FailedAt)
	// The failure site stays visible.
	require.NotNil(t, enrollmentModel.CurrentStepID)
	assert.Equal(t, entry.ID, *enrollmentModel.CurrentStepID)
}

func TestRecordEmailEvent(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	journeyModel, entry := seedJourney(t, p)
	controller := NewController(p, nil, testLogger())

	enrollmentModel := testutil.CreateTestEnrollment(journeyModel, entry.ID)
	require.NoError(t, p.EnrollmentRepository().Save(t.Context(), enrollmentModel))

	execution := testutil.CreateTestExecution(enrollmentModel, entry.ID, func(e *models.StepExecution) {
		finished := time.Now().UTC()
		e.Status = models.ExecutionStatusExecuted
		e.FinishedAt = &finished
	})
	require.NoError(t, p.ExecutionRepository().Save(t.Context(), execution))

	opened := time.Now().UTC()
	stamped, err := controller.RecordEmailEvent(t.Context(), execution.ID, "opened", opened)
	require.NoError(t, err)
	require.NotNil(t, stamped.OpenedAt)
	assert.Equal(t, opened, *stamped.OpenedAt)
	assert.Nil(t, stamped.ClickedAt)

	saved, err := p.EnrollmentRepository().GetByID(t.Context(), enrollmentModel.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.EmailsOpened)
	assert.Equal(t, true, saved.Context["opened_email"])

	clicked := opened.Add(time.Minute)
	stamped, err = controller.RecordEmailEvent(t.Context(), execution.ID, "clicked", clicked)
	require.NoError(t, err)
	require.NotNil(t, stamped.ClickedAt)

	saved, err = p.EnrollmentRepository().GetByID(t.Context(), enrollmentModel.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.EmailsClicked)
	assert.Equal(t, true, saved.Context["clicked_email"])
}

func TestRecordEmailEvent_RepeatedCallbackIsNoop(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	journeyModel, entry := seedJourney(t, p)
	controller := NewController(p, nil, testLogger())

	enrollmentModel := testutil.CreateTestEnrollment(journeyModel, entry.ID)
	require.NoError(t, p.EnrollmentRepository().Save(t.Context(), enrollmentModel))

	execution := testutil.CreateTestExecution(enrollmentModel, entry.ID)
	require.NoError(t, p.ExecutionRepository().Save(t.Context(), execution))

	first := time.Now().UTC()
	_, err := controller.RecordEmailEvent(t.Context(), execution.ID, "opened", first)
	require.NoError(t, err)

	// Delivery providers redeliver callbacks; the first stamp wins.
	stamped, err := controller.RecordEmailEvent(t.Context(), execution.ID, "opened", first.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, stamped.OpenedAt)
	assert.Equal(t, first, *stamped.OpenedAt)

	saved, err := p.EnrollmentRepository().GetByID(t.Context(), enrollmentModel.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.EmailsOpened)
}

func TestRecordEmailEvent_UnknownEvent(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	journeyModel, entry := seedJourney(t, p)
	controller := NewController(p, nil, testLogger())

	enrollmentModel := testutil.CreateTestEnrollment(journeyModel, entry.ID)
	require.NoError(t, p.EnrollmentRepository().Save(t.Context(), enrollmentModel))

	execution := testutil.CreateTestExecution(enrollmentModel, entry.ID)
	require.NoError(t, p.ExecutionRepository().Save(t.Context(), execution))

	_, err := controller.RecordEmailEvent(t.Context(), execution.ID, "bounced", time.Now().UTC())
	assert.ErrorIs(t, err, ErrUnknownEngagementEvent)
}
