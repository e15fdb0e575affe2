// Package condition provides the condition step handler and the predicate
// evaluator shared with goal checking.
package condition

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/enroutehq/enroute/pkg/protocol"
)

type Handler struct {
	contacts protocol.ContactDirectory
}

func NewHandler(collaborators protocol.Collaborators) *Handler {
	return &Handler{contacts: collaborators.Contacts}
}

func (h *Handler) Execute(ctx context.Context, input protocol.StepInput, logger *slog.Logger) (*protocol.StepOutcome, error) {
	contact := input.Contact
	if contact == nil && h.contacts != nil {
		resolved, err := h.contacts.GetContact(ctx, input.Enrollment.ContactID)
		if err == nil {
			contact = resolved
		}
	}

	matched, reason, err := Evaluate(input.Step.Config, Data(input.Enrollment.Context, contact))
	if err != nil {
		return nil, err
	}

	decision := &protocol.Decision{Reason: reason}
	if matched {
		decision.Label = "true"
	} else {
		decision.Label = "false"
	}

	return &protocol.StepOutcome{
		Branch: decision,
		Result: map[string]any{
			"matched": matched,
			"reason":  reason,
		},
	}, nil
}

// Data flattens the enrollment context and the contact into the lookup
// space predicates resolve fields against. Contact fields live under the
// "contact." prefix.
func Data(enrollmentContext map[string]any, contact *protocol.ContactSummary) map[string]any {
	data := make(map[string]any, len(enrollmentContext)+6)

	for k, v := range enrollmentContext {
		data[k] = v
	}

	if contact != nil {
		data["contact.id"] = contact.ID
		data["contact.email"] = contact.Email
		data["contact.first_name"] = contact.FirstName
		data["contact.last_name"] = contact.LastName
		data["contact.lifecycle"] = contact.Lifecycle
		data["contact.tags"] = contact.Tags

		for k, v := range contact.Attributes {
			data["contact."+k] = v
		}
	}

	return data
}

// Evaluate runs one {field, operator, value} predicate against data and
// returns the boolean outcome plus a human-readable reason.
func Evaluate(spec map[string]any, data map[string]any) (bool, string, error) {
	field, _ := spec["field"].(string)
	if field == "" {
		return false, "", fmt.Errorf("condition has no field")
	}

	operator, _ := spec["operator"].(string)
	if operator == "" {
		operator = "equals"
	}

	want := spec["value"]
	got, exists := data[field]

	matched, err := apply(operator, got, exists, want)
	if err != nil {
		return false, "", err
	}

	reason := fmt.Sprintf("%s %s %v (actual: %v)", field, operator, want, got)

	return matched, reason, nil
}

func apply(operator string, got any, exists bool, want any) (bool, error) {
	switch operator {
	case "exists":
		return exists && got != nil, nil
	case "not_exists":
		return !exists || got == nil, nil
	case "equals":
		return exists && fmt.Sprint(got) == fmt.Sprint(want), nil
	case "not_equals":
		return !exists || fmt.Sprint(got) != fmt.Sprint(want), nil
	case "contains":
		return containsValue(got, fmt.Sprint(want)), nil
	case "not_contains":
		return !containsValue(got, fmt.Sprint(want)), nil
	case "greater_than":
		gotNum, wantNum, ok := numericPair(got, want)

		return ok && gotNum > wantNum, nil
	case "less_than":
		gotNum, wantNum, ok := numericPair(got, want)

		return ok && gotNum < wantNum, nil
	default:
		return false, fmt.Errorf("unknown condition operator %q", operator)
	}
}

func containsValue(haystack any, needle string) bool {
	switch typed := haystack.(type) {
	case string:
		return strings.Contains(typed, needle)
	case []string:
		for _, item := range typed {
			if item == needle {
				return true
			}
		}

		return false
	case []any:
		for _, item := range typed {
			if fmt.Sprint(item) == needle {
				return true
			}
		}

		return false
	default:
		return false
	}
}

func numericPair(got, want any) (float64, float64, bool) {
	gotNum, gotOK := toNumber(got)
	wantNum, wantOK := toNumber(want)

	return gotNum, wantNum, gotOK && wantOK
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		parsed, err := strconv.ParseFloat(n, 64)

		return parsed, err == nil
	default:
		return 0, false
	}
}
