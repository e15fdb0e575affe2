package models

import "time"

// ExecutionStatus represents the state of one step attempt.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"   // Ready to run
	ExecutionStatusScheduled ExecutionStatus = "scheduled" // Dormant until ScheduledFor
	ExecutionStatusExecuting ExecutionStatus = "executing" // Claimed by a runner
	ExecutionStatusExecuted  ExecutionStatus = "executed"  // Side effect performed
	ExecutionStatusFailed    ExecutionStatus = "failed"    // Retries exhausted
	ExecutionStatusSkipped   ExecutionStatus = "skipped"   // Enrollment left active before the side effect ran
)

// StepExecution is one attempt to perform a step's action for one
// enrollment. Rows are append-only: updated in place until a terminal
// status, never deleted, forming the audit log of the run.
type StepExecution struct {
	ID           string          `json:"id"`
	EnrollmentID string          `json:"enrollment_id" validate:"required"`
	StepID       string          `json:"step_id"       validate:"required"`
	Status       ExecutionStatus `json:"status"`

	// ScheduledFor defers execution for delay steps; a scheduled row with
	// a future ScheduledFor suspends the enrollment without holding a
	// worker.
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`

	Result       map[string]any `json:"result,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	RetryCount   int            `json:"retry_count"`

	// Branch steps record the routing decision for audit.
	DecisionMade   *bool  `json:"decision_made,omitempty"`
	DecisionReason string `json:"decision_reason,omitempty"`

	// Email delivery sub-fields, filled in by delivery callbacks.
	ProviderMessageID string     `json:"provider_message_id,omitempty"`
	OpenedAt          *time.Time `json:"opened_at,omitempty"`
	ClickedAt         *time.Time `json:"clicked_at,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// IsTerminal reports whether the execution row is immutable.
func (x *StepExecution) IsTerminal() bool {
	switch x.Status {
	case ExecutionStatusExecuted, ExecutionStatusFailed, ExecutionStatusSkipped:
		return true
	default:
		return false
	}
}

// IsDue reports whether the execution is ready to be claimed at now:
// pending rows immediately, scheduled rows once ScheduledFor has passed.
func (x *StepExecution) IsDue(now time.Time) bool {
	switch x.Status {
	case ExecutionStatusPending:
		return true
	case ExecutionStatusScheduled:
		return x.ScheduledFor != nil && !x.ScheduledFor.After(now)
	default:
		return false
	}
}
