// Package web provides HTTP request and response types for the journey API.
package web

import (
	"time"

	"github.com/enroutehq/enroute/pkg/models"
)

// CreateJourneyRequest represents the request body for creating a journey.
type CreateJourneyRequest struct {
	TenantID          string                    `json:"tenant_id"    validate:"required"`
	Name              string                    `json:"name"         validate:"required,min=3"`
	Description       string                    `json:"description"`
	TriggerType       models.TriggerType        `json:"trigger_type"`
	TriggerConditions map[string]any            `json:"trigger_conditions,omitempty"`
	Goal              *models.Goal              `json:"goal,omitempty"`
	ReEnrollment      models.ReEnrollmentPolicy `json:"re_enrollment"`
	Tags              []string                  `json:"tags,omitempty"`
}

// UpdateJourneyRequest represents the request body for updating a journey.
// All fields are optional to support partial updates.
type UpdateJourneyRequest struct {
	Name              *string                    `json:"name,omitempty" validate:"omitempty,min=3"`
	Description       *string                    `json:"description,omitempty"`
	TriggerType       *models.TriggerType        `json:"trigger_type,omitempty"`
	TriggerConditions map[string]any             `json:"trigger_conditions,omitempty"`
	Goal              *models.Goal               `json:"goal,omitempty"`
	ReEnrollment      *models.ReEnrollmentPolicy `json:"re_enrollment,omitempty"`
	Tags              []string                   `json:"tags,omitempty"`
}

// CreateStepRequest represents the request body for adding a step to a
// journey's graph. Edges are connected separately.
type CreateStepRequest struct {
	Name      string         `json:"name"       validate:"required,min=1"`
	Type      string         `json:"type"       validate:"required"`
	Config    map[string]any `json:"config"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// ConnectStepsRequest represents the request body for wiring one outgoing
// edge of a step to a target step in the same journey.
type ConnectStepsRequest struct {
	SourceID string `json:"source_id" validate:"required"`
	TargetID string `json:"target_id" validate:"required"`
	Kind     string `json:"kind"      validate:"required,oneof=next condition_true condition_false"`
}

// DisconnectStepsRequest represents the request body for clearing one
// outgoing edge of a step.
type DisconnectStepsRequest struct {
	SourceID string `json:"source_id" validate:"required"`
	Kind     string `json:"kind"      validate:"required,oneof=next condition_true condition_false"`
}

// UpdatePositionsRequest represents a bulk editor layout update.
type UpdatePositionsRequest struct {
	Positions []PositionRequest `json:"positions" validate:"required,min=1,dive"`
}

// PositionRequest moves a single step on the editor canvas.
type PositionRequest struct {
	StepID    string `json:"step_id" validate:"required"`
	PositionX int    `json:"position_x"`
	PositionY int    `json:"position_y"`
}

// EnrollRequest represents the request body for manually enrolling a
// contact into a journey.
type EnrollRequest struct {
	TenantID  string         `json:"tenant_id"  validate:"required"`
	ContactID string         `json:"contact_id" validate:"required"`
	Context   map[string]any `json:"context,omitempty"`
}

// ExitEnrollmentRequest represents the request body for manually exiting
// an enrollment.
type ExitEnrollmentRequest struct {
	Reason string `json:"reason"`
}

// DeliveryEventRequest represents a delivery provider callback reporting
// engagement with a sent email. Timestamp defaults to now.
type DeliveryEventRequest struct {
	Event     string     `json:"event" validate:"required,oneof=opened clicked"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// SignalRequest represents an inbound trigger signal fanned out to every
// matching active journey.
type SignalRequest struct {
	TenantID   string         `json:"tenant_id"  validate:"required"`
	Type       string         `json:"type"       validate:"required"`
	ContactID  string         `json:"contact_id" validate:"required"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// StepTypeResponse describes one registered step type and its config schema.
type StepTypeResponse struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema,omitempty"`
}
