// Package events defines the event types emitted over the bus as journeys,
// enrollments and step executions change state.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/enroutehq/enroute/pkg/models"
)

type EventType string

const Topic = "enroute.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Journey lifecycle events.
	JourneyActivatedEvent EventType = "journey.activated"
	JourneyPausedEvent    EventType = "journey.paused"
	JourneyArchivedEvent  EventType = "journey.archived"

	// Enrollment lifecycle events.
	EnrollmentCreatedEvent     EventType = "enrollment.created"
	EnrollmentPausedEvent      EventType = "enrollment.paused"
	EnrollmentResumedEvent     EventType = "enrollment.resumed"
	EnrollmentExitedEvent      EventType = "enrollment.exited"
	EnrollmentCompletedEvent   EventType = "enrollment.completed"
	EnrollmentGoalReachedEvent EventType = "enrollment.goal_reached"
	EnrollmentFailedEvent      EventType = "enrollment.failed"

	// Step execution events.
	StepExecutedEvent        EventType = "step.executed"
	StepExecutionFailedEvent EventType = "step.execution.failed"
	StepScheduledEvent       EventType = "step.scheduled"

	// Delivery provider callbacks.
	EmailEngagementEvent EventType = "email.engagement"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TenantID  string         `json:"tenant_id,omitempty"`
	JourneyID string         `json:"journey_id"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, journeyID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		JourneyID: journeyID,
	}
}

type JourneyActivated struct {
	BaseEvent

	StepCount int `json:"step_count"`
}

func (e JourneyActivated) GetType() EventType { return JourneyActivatedEvent }

type JourneyPaused struct {
	BaseEvent
}

func (e JourneyPaused) GetType() EventType { return JourneyPausedEvent }

type JourneyArchived struct {
	BaseEvent

	ExitedEnrollments bool `json:"exited_enrollments"`
}

func (e JourneyArchived) GetType() EventType { return JourneyArchivedEvent }

type EnrollmentCreated struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	ContactID    string `json:"contact_id"`
	Source       string `json:"source,omitempty"`
	EntryStepID  string `json:"entry_step_id"`
}

func (e EnrollmentCreated) GetType() EventType { return EnrollmentCreatedEvent }

type EnrollmentPaused struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	ContactID    string `json:"contact_id"`
}

func (e EnrollmentPaused) GetType() EventType { return EnrollmentPausedEvent }

type EnrollmentResumed struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	ContactID    string `json:"contact_id"`
}

func (e EnrollmentResumed) GetType() EventType { return EnrollmentResumedEvent }

type EnrollmentExited struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	ContactID    string `json:"contact_id"`
	Reason       string `json:"reason,omitempty"`
}

func (e EnrollmentExited) GetType() EventType { return EnrollmentExitedEvent }

type EnrollmentCompleted struct {
	BaseEvent

	EnrollmentID   string `json:"enrollment_id"`
	ContactID      string `json:"contact_id"`
	StepsCompleted int64  `json:"steps_completed"`
}

func (e EnrollmentCompleted) GetType() EventType { return EnrollmentCompletedEvent }

type EnrollmentGoalReached struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	ContactID    string `json:"contact_id"`
	GoalType     string `json:"goal_type"`
}

func (e EnrollmentGoalReached) GetType() EventType { return EnrollmentGoalReachedEvent }

type EnrollmentFailed struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	ContactID    string `json:"contact_id"`
	StepID       string `json:"step_id,omitempty"`
	Error        string `json:"error"`
}

func (e EnrollmentFailed) GetType() EventType { return EnrollmentFailedEvent }

type StepExecuted struct {
	BaseEvent

	EnrollmentID string          `json:"enrollment_id"`
	ExecutionID  string          `json:"execution_id"`
	StepID       string          `json:"step_id"`
	StepType     models.StepType `json:"step_type"`
	DurationMs   int64           `json:"duration_ms"`
	Result       map[string]any  `json:"result,omitempty"`
}

func (e StepExecuted) GetType() EventType { return StepExecutedEvent }

type StepExecutionFailed struct {
	BaseEvent

	EnrollmentID string          `json:"enrollment_id"`
	ExecutionID  string          `json:"execution_id"`
	StepID       string          `json:"step_id"`
	StepType     models.StepType `json:"step_type"`
	Error        string          `json:"error"`
	RetryCount   int             `json:"retry_count"`
	WillRetry    bool            `json:"will_retry"`
}

func (e StepExecutionFailed) GetType() EventType { return StepExecutionFailedEvent }

type StepScheduled struct {
	BaseEvent

	EnrollmentID string    `json:"enrollment_id"`
	ExecutionID  string    `json:"execution_id"`
	StepID       string    `json:"step_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

func (e StepScheduled) GetType() EventType { return StepScheduledEvent }

type EmailEngagement struct {
	BaseEvent

	EnrollmentID string    `json:"enrollment_id"`
	ExecutionID  string    `json:"execution_id"`
	ContactID    string    `json:"contact_id"`
	Event        string    `json:"event"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func (e EmailEngagement) GetType() EventType { return EmailEngagementEvent }
