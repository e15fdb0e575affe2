// Package models defines the core domain models for journey automation.
package models

import "time"

// JourneyStatus represents the lifecycle state of a journey definition.
type JourneyStatus string

const (
	JourneyStatusDraft    JourneyStatus = "draft"    // Editable, not executable
	JourneyStatusActive   JourneyStatus = "active"   // Accepting enrollments, executable
	JourneyStatusPaused   JourneyStatus = "paused"   // Temporarily halted, resumable
	JourneyStatusArchived JourneyStatus = "archived" // Terminal, rejects new enrollments
)

// TriggerType identifies the event that admits a contact into a journey.
type TriggerType string

const (
	TriggerManual            TriggerType = "manual"
	TriggerLifecycleChange   TriggerType = "lifecycle_change"
	TriggerTagAdded          TriggerType = "tag_added"
	TriggerDealStageChanged  TriggerType = "deal_stage_changed"
	TriggerFormSubmit        TriggerType = "form_submit"
	TriggerInboundEmail      TriggerType = "inbound_email"
	TriggerAITriggered       TriggerType = "ai_triggered"
	TriggerContactCreated    TriggerType = "contact_created"
	TriggerActivityCompleted TriggerType = "activity_completed"
)

// ReEnrollmentPolicy governs whether and how a contact may run the same
// journey more than once.
type ReEnrollmentPolicy struct {
	Allowed                  bool `json:"allowed"`
	CooldownDays             int  `json:"cooldown_days"               validate:"min=0"`
	MaxEnrollmentsPerContact int  `json:"max_enrollments_per_contact" validate:"min=0"`
}

// Goal is a predicate on an enrollment's context that, when satisfied, ends
// the enrollment successfully regardless of graph position.
type Goal struct {
	Type       string         `json:"type"`
	Conditions map[string]any `json:"conditions,omitempty"`
}

// Journey represents one automated campaign definition: a directed graph of
// steps plus the admission and completion rules around it.
type Journey struct {
	ID                string             `json:"id"`
	TenantID          string             `json:"tenant_id"          validate:"required"`
	Name              string             `json:"name"               validate:"required,min=3"`
	Description       string             `json:"description"`
	Status            JourneyStatus      `json:"status"             validate:"required"`
	TriggerType       TriggerType        `json:"trigger_type"`
	TriggerConditions map[string]any     `json:"trigger_conditions,omitempty"`
	Goal              *Goal              `json:"goal,omitempty"`
	ReEnrollment      ReEnrollmentPolicy `json:"re_enrollment"`
	Tags              []string           `json:"tags,omitempty"`

	// Denormalized aggregates, maintained by the enrollment controller
	// alongside the authoritative enrollment rows.
	TotalEnrolled    int64 `json:"total_enrolled"`
	TotalCompleted   int64 `json:"total_completed"`
	TotalGoalReached int64 `json:"total_goal_reached"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
}

// journeyTransitions holds the allowed status transitions. Archived is
// terminal; draft never comes back once activated.
var journeyTransitions = map[JourneyStatus][]JourneyStatus{
	JourneyStatusDraft:    {JourneyStatusActive, JourneyStatusArchived},
	JourneyStatusActive:   {JourneyStatusPaused, JourneyStatusArchived},
	JourneyStatusPaused:   {JourneyStatusActive, JourneyStatusArchived},
	JourneyStatusArchived: {},
}

// CanTransitionTo reports whether the journey may move to the target status.
func (j *Journey) CanTransitionTo(target JourneyStatus) bool {
	for _, allowed := range journeyTransitions[j.Status] {
		if allowed == target {
			return true
		}
	}

	return false
}

// AcceptsEnrollments reports whether new contacts may be admitted.
func (j *Journey) AcceptsEnrollments() bool {
	return j.Status == JourneyStatusActive
}

// IsEditable reports whether the step graph may be modified. Graphs are
// edited in draft or paused; editing under active enrollments is the
// caller's risk (see runner drift handling).
func (j *Journey) IsEditable() bool {
	return j.Status == JourneyStatusDraft || j.Status == JourneyStatusPaused
}
