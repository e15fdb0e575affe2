package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/persistence"
	"github.com/enroutehq/enroute/pkg/persistence/postgresql"
	"github.com/enroutehq/enroute/pkg/testutil"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"step_executions", "journey_enrollments", "journey_steps", "journeys", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("enroute_test"),
			postgres.WithUsername("enroute"),
			postgres.WithPassword("enroute"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

// seedEnrollment saves a journey with a linear graph plus one active
// enrollment positioned at the entry step.
func seedEnrollment(ctx context.Context, t *testing.T, p *postgresql.Persistence) (*models.Journey, *models.Step, *models.Enrollment) {
	t.Helper()

	journeyModel := testutil.CreateTestJourney()
	require.NoError(t, p.JourneyRepository().Save(ctx, journeyModel))

	exitStep := testutil.CreateTestStep(journeyModel.ID, testutil.WithStepType(models.StepTypeExit, nil))
	entry := testutil.CreateTestStep(journeyModel.ID, testutil.WithNext(exitStep.ID))
	require.NoError(t, p.StepRepository().Save(ctx, entry))
	require.NoError(t, p.StepRepository().Save(ctx, exitStep))

	enrollmentModel := testutil.CreateTestEnrollment(journeyModel, entry.ID)
	require.NoError(t, p.EnrollmentRepository().Save(ctx, enrollmentModel))

	return journeyModel, entry, enrollmentModel
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	for _, table := range []string{"journeys", "journey_steps", "journey_enrollments", "step_executions", "schema_migrations"} {
		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table+" table should exist")
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestNewPersistence_SaveAndRetrieveJourney(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	journeyModel := testutil.CreateTestJourney(
		testutil.WithGoal(map[string]any{"field": "converted", "operator": "equals", "value": true}),
		testutil.WithReEnrollment(models.ReEnrollmentPolicy{Allowed: true, CooldownDays: 7}),
	)
	journeyModel.Tags = []string{"onboarding", "welcome"}

	require.NoError(t, p.JourneyRepository().Save(ctx, journeyModel))

	retrieved, err := p.JourneyRepository().GetByID(ctx, journeyModel.ID)
	require.NoError(t, err)

	assert.Equal(t, journeyModel.ID, retrieved.ID)
	assert.Equal(t, journeyModel.TenantID, retrieved.TenantID)
	assert.Equal(t, journeyModel.Name, retrieved.Name)
	assert.Equal(t, models.JourneyStatusActive, retrieved.Status)
	assert.Equal(t, journeyModel.TriggerType, retrieved.TriggerType)
	assert.Equal(t, []string{"onboarding", "welcome"}, retrieved.Tags)
	require.NotNil(t, retrieved.Goal)
	assert.Equal(t, "converted", retrieved.Goal.Conditions["field"])
	assert.True(t, retrieved.ReEnrollment.Allowed)
	assert.Equal(t, 7, retrieved.ReEnrollment.CooldownDays)

	_, err = p.JourneyRepository().GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, persistence.ErrJourneyNotFound)
}

func TestNewPersistence_DeleteJourneyCascades(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	journeyModel, entry, enrollmentModel := seedEnrollment(ctx, t, p)

	execution := testutil.CreateTestExecution(enrollmentModel, entry.ID)
	require.NoError(t, p.ExecutionRepository().Save(ctx, execution))

	require.NoError(t, p.JourneyRepository().Delete(ctx, journeyModel.ID))

	_, err := p.JourneyRepository().GetByID(ctx, journeyModel.ID)
	assert.ErrorIs(t, err, persistence.ErrJourneyNotFound)

	_, err = p.StepRepository().GetByID(ctx, entry.ID)
	assert.ErrorIs(t, err, persistence.ErrStepNotFound)

	_, err = p.EnrollmentRepository().GetByID(ctx, enrollmentModel.ID)
	assert.ErrorIs(t, err, persistence.ErrEnrollmentNotFound)

	_, err = p.ExecutionRepository().GetByID(ctx, execution.ID)
	assert.ErrorIs(t, err, persistence.ErrExecutionNotFound)
}

func TestNewPersistence_ClaimContention(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	_, entry, enrollmentModel := seedEnrollment(ctx, t, p)

	execution := testutil.CreateTestExecution(enrollmentModel, entry.ID)
	require.NoError(t, p.ExecutionRepository().Save(ctx, execution))

	now := time.Now().UTC()

	claimed, err := p.ExecutionRepository().Claim(ctx, execution.ID, now)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusExecuting, claimed.Status)
	require.NotNil(t, claimed.StartedAt)

	// A second worker loses the race on the same row.
	_, err = p.ExecutionRepository().Claim(ctx, execution.ID, now)
	assert.ErrorIs(t, err, persistence.ErrExecutionNotClaimable)
}

func TestNewPersistence_ClaimRespectsSchedule(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	_, entry, enrollmentModel := seedEnrollment(ctx, t, p)

	future := time.Now().UTC().Add(time.Hour)
	execution := testutil.CreateTestExecution(enrollmentModel, entry.ID, func(e *models.StepExecution) {
		e.Status = models.ExecutionStatusScheduled
		e.ScheduledFor = &future
	})
	require.NoError(t, p.ExecutionRepository().Save(ctx, execution))

	_, err := p.ExecutionRepository().Claim(ctx, execution.ID, time.Now().UTC())
	assert.ErrorIs(t, err, persistence.ErrExecutionNotClaimable)

	// Once the scheduled time has passed the row becomes claimable.
	claimed, err := p.ExecutionRepository().Claim(ctx, execution.ID, future.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusExecuting, claimed.Status)
}

func TestNewPersistence_ListDue(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	_, entry, enrollmentModel := seedEnrollment(ctx, t, p)

	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	pending := testutil.CreateTestExecution(enrollmentModel, entry.ID, func(e *models.StepExecution) {
		e.CreatedAt = now.Add(-2 * time.Minute)
	})
	woken := testutil.CreateTestExecution(enrollmentModel, entry.ID, func(e *models.StepExecution) {
		e.Status = models.ExecutionStatusScheduled
		e.ScheduledFor = &past
		e.CreatedAt = now.Add(-time.Minute)
	})
	parked := testutil.CreateTestExecution(enrollmentModel, entry.ID, func(e *models.StepExecution) {
		e.Status = models.ExecutionStatusScheduled
		e.ScheduledFor = &future
	})
	finished := testutil.CreateTestExecution(enrollmentModel, entry.ID, func(e *models.StepExecution) {
		e.Status = models.ExecutionStatusExecuted
		e.FinishedAt = &now
	})

	for _, execution := range []*models.StepExecution{pending, woken, parked, finished} {
		require.NoError(t, p.ExecutionRepository().Save(ctx, execution))
	}

	due, err := p.ExecutionRepository().ListDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)

	// Oldest first.
	assert.Equal(t, pending.ID, due[0].ID)
	assert.Equal(t, woken.ID, due[1].ID)

	limited, err := p.ExecutionRepository().ListDue(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, pending.ID, limited[0].ID)
}

func TestNewPersistence_EnrollmentRoundTrip(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	_, entry, enrollmentModel := seedEnrollment(ctx, t, p)

	enrollmentModel.Context = map[string]any{"opened_email": true}
	enrollmentModel.StepsCompleted = 2
	enrollmentModel.EmailsSent = 1
	enrollmentModel.EmailsOpened = 1
	require.NoError(t, p.EnrollmentRepository().Save(ctx, enrollmentModel))

	retrieved, err := p.EnrollmentRepository().GetByID(ctx, enrollmentModel.ID)
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusActive, retrieved.Status)
	require.NotNil(t, retrieved.CurrentStepID)
	assert.Equal(t, entry.ID, *retrieved.CurrentStepID)
	assert.Equal(t, int64(2), retrieved.StepsCompleted)
	assert.Equal(t, int64(1), retrieved.EmailsOpened)
	assert.Equal(t, true, retrieved.Context["opened_email"])

	byContact, err := p.EnrollmentRepository().ListByContact(ctx, enrollmentModel.JourneyID, enrollmentModel.ContactID)
	require.NoError(t, err)
	require.Len(t, byContact, 1)
	assert.Equal(t, enrollmentModel.ID, byContact[0].ID)
}
