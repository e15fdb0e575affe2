// Package persistence provides the data storage abstraction for journeys,
// steps, enrollments and step executions.
package persistence

import (
	"context"
	"time"

	"github.com/enroutehq/enroute/pkg/models"
)

// Persistence is the storage entry point. Implementations expose one
// repository per aggregate; the file implementation backs development and
// tests, PostgreSQL backs production.
type Persistence interface {
	JourneyRepository() JourneyRepository
	StepRepository() StepRepository
	EnrollmentRepository() EnrollmentRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListJourneysOptions narrows and pages journey listings.
type ListJourneysOptions struct {
	TenantID    string
	Status      *models.JourneyStatus
	TriggerType *models.TriggerType
	Limit       int
	Offset      int
}

// JourneyRepository stores journey definitions.
type JourneyRepository interface {
	GetByID(ctx context.Context, id string) (*models.Journey, error)
	List(ctx context.Context, opts ListJourneysOptions) ([]*models.Journey, error)
	Save(ctx context.Context, journey *models.Journey) error
	// Delete removes the journey and cascades to its steps, enrollments
	// and their executions.
	Delete(ctx context.Context, id string) error
}

// StepRepository stores the step arena of each journey. It is a dumb graph
// store: referential consistency across edges is the validator's concern.
type StepRepository interface {
	GetByID(ctx context.Context, id string) (*models.Step, error)
	ListByJourney(ctx context.Context, journeyID string) ([]*models.Step, error)
	Save(ctx context.Context, step *models.Step) error
	Delete(ctx context.Context, id string) error
}

// EnrollmentRepository stores contact runs.
type EnrollmentRepository interface {
	GetByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListByJourney(ctx context.Context, journeyID string) ([]*models.Enrollment, error)
	// ListByContact returns every historical enrollment of the contact in
	// the journey, newest first. Re-enrollment accounting depends on the
	// full history being returned.
	ListByContact(ctx context.Context, journeyID, contactID string) ([]*models.Enrollment, error)
	Save(ctx context.Context, enrollment *models.Enrollment) error
}

// ExecutionRepository stores the append-only step execution log.
type ExecutionRepository interface {
	GetByID(ctx context.Context, id string) (*models.StepExecution, error)
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]*models.StepExecution, error)
	// OpenByEnrollment returns the single non-terminal execution of the
	// enrollment, or nil when the enrollment has none in flight.
	OpenByEnrollment(ctx context.Context, enrollmentID string) (*models.StepExecution, error)
	// ListDue returns pending executions plus scheduled executions whose
	// ScheduledFor has passed, oldest first, capped at limit.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.StepExecution, error)
	Save(ctx context.Context, execution *models.StepExecution) error
	// Claim atomically moves a due execution to executing and returns the
	// claimed row. A row claimed, finished or rescheduled by someone else
	// fails with ErrExecutionNotClaimable; this compare-and-set is the
	// unit of mutual exclusion between a retry sweep and a live trigger.
	Claim(ctx context.Context, id string, now time.Time) (*models.StepExecution, error)
}
