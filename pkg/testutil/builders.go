// Package testutil provides test data builders shared across test suites.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/enroutehq/enroute/pkg/models"
)

// CreateTestJourney creates an active journey with default values that can
// be overridden.
func CreateTestJourney(overrides ...func(*models.Journey)) *models.Journey {
	now := time.Now().UTC()

	journey := &models.Journey{
		ID:          uuid.New().String(),
		TenantID:    "tenant-1",
		Name:        "Test Journey",
		Description: "journey used in tests",
		Status:      models.JourneyStatusActive,
		TriggerType: models.TriggerManual,
		ReEnrollment: models.ReEnrollmentPolicy{
			Allowed: false,
		},
		CreatedAt:   now,
		UpdatedAt:   now,
		ActivatedAt: &now,
	}

	for _, override := range overrides {
		override(journey)
	}

	return journey
}

// WithTrigger sets the journey's trigger type and conditions.
func WithTrigger(triggerType models.TriggerType, conditions map[string]any) func(*models.Journey) {
	return func(j *models.Journey) {
		j.TriggerType = triggerType
		j.TriggerConditions = conditions
	}
}

// WithGoal sets the journey's goal predicate.
func WithGoal(conditions map[string]any) func(*models.Journey) {
	return func(j *models.Journey) {
		j.Goal = &models.Goal{Type: "condition", Conditions: conditions}
	}
}

// WithReEnrollment sets the journey's re-enrollment policy.
func WithReEnrollment(policy models.ReEnrollmentPolicy) func(*models.Journey) {
	return func(j *models.Journey) {
		j.ReEnrollment = policy
	}
}

// WithStatus sets the journey's status.
func WithStatus(status models.JourneyStatus) func(*models.Journey) {
	return func(j *models.Journey) {
		j.Status = status
	}
}

// CreateTestStep creates a step with default values that can be
// overridden.
func CreateTestStep(journeyID string, overrides ...func(*models.Step)) *models.Step {
	now := time.Now().UTC()

	step := &models.Step{
		ID:        uuid.New().String(),
		JourneyID: journeyID,
		Name:      "Test Step",
		Type:      models.StepTypeSendEmail,
		Config: map[string]any{
			"subject": "Hello",
			"body":    "Hi there",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(step)
	}

	return step
}

// WithStepType sets the step's type and config.
func WithStepType(stepType models.StepType, config map[string]any) func(*models.Step) {
	return func(s *models.Step) {
		s.Type = stepType
		s.Config = config
	}
}

// WithNext wires the step's next edge.
func WithNext(targetID string) func(*models.Step) {
	return func(s *models.Step) {
		s.Next = &targetID
	}
}

// WithBranches wires a condition step's true and false edges.
func WithBranches(trueID, falseID string) func(*models.Step) {
	return func(s *models.Step) {
		s.ConditionTrue = &trueID
		s.ConditionFalse = &falseID
	}
}

// CreateTestEnrollment creates an active enrollment positioned at the
// given step.
func CreateTestEnrollment(journey *models.Journey, stepID string, overrides ...func(*models.Enrollment)) *models.Enrollment {
	now := time.Now().UTC()

	enrollment := &models.Enrollment{
		ID:            uuid.New().String(),
		JourneyID:     journey.ID,
		TenantID:      journey.TenantID,
		ContactID:     "contact-1",
		Status:        models.EnrollmentStatusActive,
		CurrentStepID: &stepID,
		Context:       map[string]any{},
		Source:        "test",
		EnrolledAt:    now,
	}

	for _, override := range overrides {
		override(enrollment)
	}

	return enrollment
}

// CreateTestExecution creates a pending execution for the enrollment at
// the given step.
func CreateTestExecution(enrollment *models.Enrollment, stepID string, overrides ...func(*models.StepExecution)) *models.StepExecution {
	execution := &models.StepExecution{
		ID:           uuid.New().String(),
		EnrollmentID: enrollment.ID,
		StepID:       stepID,
		Status:       models.ExecutionStatusPending,
		CreatedAt:    time.Now().UTC(),
	}

	for _, override := range overrides {
		override(execution)
	}

	return execution
}
