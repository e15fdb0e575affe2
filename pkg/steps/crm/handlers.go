// Package crm provides the step handlers that mutate the external CRM:
// contact updates, tagging, deal stage moves and activity creation.
package crm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/enroutehq/enroute/pkg/protocol"
	"github.com/enroutehq/enroute/pkg/template"
)

// UpdateContactHandler applies a field patch to the enrolled contact.
type UpdateContactHandler struct {
	crm protocol.CRMMutator
}

func (h *UpdateContactHandler) Execute(ctx context.Context, input protocol.StepInput, logger *slog.Logger) (*protocol.StepOutcome, error) {
	fields, _ := input.Step.Config["fields"].(map[string]any)
	if len(fields) == 0 {
		return nil, errors.New("update_contact step has no fields")
	}

	patch, err := template.RenderMap(fields, map[string]any{"context": input.Enrollment.Context})
	if err != nil {
		return nil, fmt.Errorf("failed to render contact patch: %w", err)
	}

	if err := h.crm.MutateContact(ctx, input.Enrollment.ContactID, patch); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Updated contact",
		"contact_id", input.Enrollment.ContactID, "fields", len(patch))

	return &protocol.StepOutcome{
		Result: map[string]any{"updated_fields": keys(patch)},
	}, nil
}

// TagHandler adds or removes one tag on the enrolled contact.
type TagHandler struct {
	crm    protocol.CRMMutator
	remove bool
}

func (h *TagHandler) Execute(ctx context.Context, input protocol.StepInput, logger *slog.Logger) (*protocol.StepOutcome, error) {
	tag, _ := input.Step.Config["tag"].(string)
	if tag == "" {
		return nil, errors.New("tag step has no tag")
	}

	var err error
	if h.remove {
		err = h.crm.RemoveTag(ctx, input.Enrollment.ContactID, tag)
	} else {
		err = h.crm.AddTag(ctx, input.Enrollment.ContactID, tag)
	}

	if err != nil {
		return nil, err
	}

	return &protocol.StepOutcome{
		Result: map[string]any{"tag": tag, "removed": h.remove},
	}, nil
}

// MoveDealHandler moves a deal to another pipeline stage. The deal comes
// from the step config or, as a fallback, the enrollment context.
type MoveDealHandler struct {
	crm protocol.CRMMutator
}

func (h *MoveDealHandler) Execute(ctx context.Context, input protocol.StepInput, logger *slog.Logger) (*protocol.StepOutcome, error) {
	stageID, _ := input.Step.Config["stage_id"].(string)
	if stageID == "" {
		return nil, errors.New("move_deal_stage step has no stage_id")
	}

	dealID, _ := input.Step.Config["deal_id"].(string)
	if dealID == "" {
		if fromContext, ok := input.Enrollment.ContextValue("deal_id"); ok {
			dealID = fmt.Sprint(fromContext)
		}
	}

	if dealID == "" {
		return nil, errors.New("move_deal_stage has no deal: neither config nor enrollment context carries deal_id")
	}

	if err := h.crm.MoveDeal(ctx, dealID, stageID); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Moved deal", "deal_id", dealID, "stage_id", stageID)

	return &protocol.StepOutcome{
		Result: map[string]any{"deal_id": dealID, "stage_id": stageID},
	}, nil
}

// CreateActivityHandler logs a CRM activity against the contact through
// the action executor.
type CreateActivityHandler struct {
	actions protocol.ActionExecutor
}

func (h *CreateActivityHandler) Execute(ctx context.Context, input protocol.StepInput, logger *slog.Logger) (*protocol.StepOutcome, error) {
	activityType, _ := input.Step.Config["activity_type"].(string)
	if activityType == "" {
		return nil, errors.New("create_activity step has no activity_type")
	}

	noteTmpl, _ := input.Step.Config["note"].(string)

	note, err := template.RenderString(noteTmpl, input.Journey, input.Enrollment, input.Contact)
	if err != nil {
		return nil, fmt.Errorf("failed to render activity note: %w", err)
	}

	result, err := h.actions.Send(ctx, protocol.ActionKindActivity, map[string]any{
		"contact_id":    input.Enrollment.ContactID,
		"activity_type": activityType,
		"note":          note,
		"journey_id":    input.Journey.ID,
	})
	if err != nil {
		return nil, err
	}

	if !result.Delivered {
		return nil, fmt.Errorf("activity creation failed: %s", result.Error)
	}

	return &protocol.StepOutcome{
		Result: map[string]any{"activity_type": activityType},
	}, nil
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	return out
}
