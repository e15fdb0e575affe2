package models

import (
	"fmt"
	"time"
)

// StepType identifies the action a journey step performs.
type StepType string

const (
	StepTypeSendEmail      StepType = "send_email"
	StepTypeDelay          StepType = "delay"
	StepTypeCondition      StepType = "condition"
	StepTypeAIDecision     StepType = "ai_decision"
	StepTypeUpdateContact  StepType = "update_contact"
	StepTypeCreateActivity StepType = "create_activity"
	StepTypeMoveDealStage  StepType = "move_deal_stage"
	StepTypeAddTag         StepType = "add_tag"
	StepTypeRemoveTag      StepType = "remove_tag"
	StepTypeWebhook        StepType = "webhook"
	StepTypeEnrollJourney  StepType = "enroll_in_journey"
	StepTypeSocialReply    StepType = "social_reply"
	StepTypeSocialDM       StepType = "social_dm"
	StepTypeCreatePost     StepType = "create_post"
	StepTypeExit           StepType = "exit"
)

// EdgeKind names an outgoing edge slot on a step.
type EdgeKind string

const (
	EdgeNext           EdgeKind = "next"
	EdgeConditionTrue  EdgeKind = "condition_true"
	EdgeConditionFalse EdgeKind = "condition_false"
)

// Step is one node in a journey's directed graph. Edges are plain id
// references into the same journey's step set, never pointers, so the
// graph stays a flat arena and cloning is a two-pass id rewrite.
type Step struct {
	ID        string         `json:"id"`
	JourneyID string         `json:"journey_id" validate:"required"`
	Name      string         `json:"name"       validate:"required,min=1"`
	Type      StepType       `json:"type"       validate:"required"`
	Config    map[string]any `json:"config"`

	// Exactly one of {Next} or {ConditionTrue, ConditionFalse} is
	// populated depending on the step type; exit steps have none.
	Next           *string `json:"next,omitempty"`
	ConditionTrue  *string `json:"condition_true,omitempty"`
	ConditionFalse *string `json:"condition_false,omitempty"`

	// Editor layout only, no business-rule impact.
	PositionX int `json:"position_x"`
	PositionY int `json:"position_y"`

	TotalExecutions int64 `json:"total_executions"`
	TotalSuccess    int64 `json:"total_success"`
	TotalFailure    int64 `json:"total_failure"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsBranch reports whether the step routes by boolean outcome through the
// condition_true/condition_false pair instead of the single next edge.
func (s *Step) IsBranch() bool {
	return s.Type == StepTypeCondition || s.Type == StepTypeAIDecision
}

// IsExit reports whether the step terminates an enrollment.
func (s *Step) IsExit() bool {
	return s.Type == StepTypeExit
}

// Edge returns the target id stored in the named edge slot, or nil.
func (s *Step) Edge(kind EdgeKind) *string {
	switch kind {
	case EdgeNext:
		return s.Next
	case EdgeConditionTrue:
		return s.ConditionTrue
	case EdgeConditionFalse:
		return s.ConditionFalse
	default:
		return nil
	}
}

// SetEdge stores target into the named edge slot, overwriting any previous
// value. A nil target clears the slot.
func (s *Step) SetEdge(kind EdgeKind, target *string) error {
	switch kind {
	case EdgeNext:
		s.Next = target
	case EdgeConditionTrue:
		s.ConditionTrue = target
	case EdgeConditionFalse:
		s.ConditionFalse = target
	default:
		return fmt.Errorf("unknown edge kind %q", kind)
	}

	return nil
}

// OutgoingEdges returns the populated edge targets in a stable order.
func (s *Step) OutgoingEdges() []string {
	edges := make([]string, 0, 2)
	for _, e := range []*string{s.Next, s.ConditionTrue, s.ConditionFalse} {
		if e != nil && *e != "" {
			edges = append(edges, *e)
		}
	}

	return edges
}

// HasOutgoingEdge reports whether any edge slot is populated.
func (s *Step) HasOutgoingEdge() bool {
	return len(s.OutgoingEdges()) > 0
}

// DelayUnit values accepted by delay step configs.
const (
	DelayUnitMinutes = "minutes"
	DelayUnitHours   = "hours"
	DelayUnitDays    = "days"
	DelayUnitWeeks   = "weeks"
)

// DelayDuration parses a delay step's config into a duration. The value
// must be a positive number and the unit one of the DelayUnit constants.
func (s *Step) DelayDuration() (time.Duration, error) {
	value, ok := toFloat(s.Config["value"])
	if !ok || value <= 0 {
		return 0, fmt.Errorf("delay step %q has no positive value", s.Name)
	}

	unit, _ := s.Config["unit"].(string)

	var base time.Duration

	switch unit {
	case DelayUnitMinutes:
		base = time.Minute
	case DelayUnitHours:
		base = time.Hour
	case DelayUnitDays:
		base = 24 * time.Hour
	case DelayUnitWeeks:
		base = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("delay step %q has unknown unit %q", s.Name, unit)
	}

	return time.Duration(value * float64(base)), nil
}

// EmailContent extracts the subject and body of a send_email step config.
func (s *Step) EmailContent() (subject, body string) {
	subject, _ = s.Config["subject"].(string)
	body, _ = s.Config["body"].(string)

	return subject, body
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
