// Package protocol defines the interfaces and contracts between the journey
// engine and its external collaborators.
package protocol

import (
	"context"
	"errors"
)

// ErrAdmissionRejected wraps enrollment policy rejections crossing the
// SubJourneyEnroller boundary, so step handlers can treat them as
// non-fatal without importing the enrollment package.
var ErrAdmissionRejected = errors.New("admission rejected by policy")

// ContactSummary is the slice of CRM contact data the engine needs for
// personalization and predicate evaluation. The engine never owns contact
// data; it is a foreign reference into the CRM.
type ContactSummary struct {
	ID         string         `json:"id"`
	Email      string         `json:"email"`
	FirstName  string         `json:"first_name"`
	LastName   string         `json:"last_name"`
	Lifecycle  string         `json:"lifecycle"`
	Tags       []string       `json:"tags"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// ContactDirectory looks up contacts in the external CRM.
type ContactDirectory interface {
	GetContact(ctx context.Context, id string) (*ContactSummary, error)
}

// ActionKind names a delivery channel handled by the ActionExecutor.
type ActionKind string

const (
	ActionKindEmail       ActionKind = "email"
	ActionKindWebhook     ActionKind = "webhook"
	ActionKindSocialReply ActionKind = "social_reply"
	ActionKindSocialDM    ActionKind = "social_dm"
	ActionKindSocialPost  ActionKind = "social_post"
	ActionKindActivity    ActionKind = "activity"
)

// ActionResult reports the outcome of one delivery attempt.
type ActionResult struct {
	Delivered         bool   `json:"delivered"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

// ActionExecutor performs outbound side effects: email, social posting,
// webhooks, activity creation. Implementations live outside the engine.
type ActionExecutor interface {
	Send(ctx context.Context, kind ActionKind, payload map[string]any) (*ActionResult, error)
}

// Decision is the outcome of an AI decision request.
type Decision struct {
	Label  string `json:"label"` // "true" or "false"
	Reason string `json:"reason"`
}

// DecisionProvider asks the AI collaborator for a boolean routing decision.
type DecisionProvider interface {
	Decide(ctx context.Context, prompt string, context map[string]any) (*Decision, error)
}

// CRMMutator applies contact and deal mutations in the external CRM.
type CRMMutator interface {
	MutateContact(ctx context.Context, contactID string, patch map[string]any) error
	MoveDeal(ctx context.Context, dealID, stageID string) error
	AddTag(ctx context.Context, contactID, tag string) error
	RemoveTag(ctx context.Context, contactID, tag string) error
}

// Collaborators bundles every external dependency a step handler may need.
type Collaborators struct {
	Contacts  ContactDirectory
	Actions   ActionExecutor
	Decisions DecisionProvider
	CRM       CRMMutator
	// Enroller breaks the import cycle between step handlers and the
	// enrollment controller for enroll_in_journey steps.
	Enroller SubJourneyEnroller
}

// SubJourneyEnroller admits a contact into another journey.
type SubJourneyEnroller interface {
	EnrollContact(ctx context.Context, journeyID, contactID string, context map[string]any) error
}
