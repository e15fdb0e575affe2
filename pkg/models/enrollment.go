package models

import "time"

// EnrollmentStatus represents the state of one contact's run through a journey.
type EnrollmentStatus string

const (
	EnrollmentStatusActive      EnrollmentStatus = "active"
	EnrollmentStatusPaused      EnrollmentStatus = "paused"
	EnrollmentStatusCompleted   EnrollmentStatus = "completed"
	EnrollmentStatusGoalReached EnrollmentStatus = "goal_reached"
	EnrollmentStatusExited      EnrollmentStatus = "exited"
	EnrollmentStatusFailed      EnrollmentStatus = "failed"
)

// Enrollment is one contact's live run through one journey. Re-enrollment
// creates a new row, so (journey, contact) is not unique across time.
type Enrollment struct {
	ID        string           `json:"id"`
	JourneyID string           `json:"journey_id" validate:"required"`
	ContactID string           `json:"contact_id" validate:"required"`
	TenantID  string           `json:"tenant_id"  validate:"required"`
	Status    EnrollmentStatus `json:"status"`

	// CurrentStepID is nil only before the first execution is created or
	// after the enrollment reached a terminal status.
	CurrentStepID *string `json:"current_step_id,omitempty"`

	// Context is the key-value bag carried across steps; condition and
	// goal predicates evaluate against it.
	Context map[string]any `json:"context,omitempty"`

	Source     string `json:"source,omitempty"`
	ExitReason string `json:"exit_reason,omitempty"`
	LastError  string `json:"last_error,omitempty"`

	StepsCompleted int64 `json:"steps_completed"`
	EmailsSent     int64 `json:"emails_sent"`
	EmailsOpened   int64 `json:"emails_opened"`
	EmailsClicked  int64 `json:"emails_clicked"`

	EnrolledAt    time.Time  `json:"enrolled_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ExitedAt      *time.Time `json:"exited_at,omitempty"`
	GoalReachedAt *time.Time `json:"goal_reached_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
}

// IsTerminal reports whether the enrollment can never advance again.
func (e *Enrollment) IsTerminal() bool {
	switch e.Status {
	case EnrollmentStatusCompleted, EnrollmentStatusGoalReached,
		EnrollmentStatusExited, EnrollmentStatusFailed:
		return true
	default:
		return false
	}
}

// TerminalAt returns when the enrollment reached its terminal status, used
// for re-enrollment cooldown accounting. Nil for non-terminal enrollments.
func (e *Enrollment) TerminalAt() *time.Time {
	switch e.Status {
	case EnrollmentStatusCompleted:
		return e.CompletedAt
	case EnrollmentStatusGoalReached:
		return e.GoalReachedAt
	case EnrollmentStatusExited:
		return e.ExitedAt
	case EnrollmentStatusFailed:
		return e.FailedAt
	default:
		return nil
	}
}

// ContextValue reads one key from the context bag.
func (e *Enrollment) ContextValue(key string) (any, bool) {
	if e.Context == nil {
		return nil, false
	}

	v, ok := e.Context[key]

	return v, ok
}

// SetContextValue writes one key into the context bag.
func (e *Enrollment) SetContextValue(key string, value any) {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}

	e.Context[key] = value
}
