package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/persistence"
)

// TriggerSignal is one CRM occurrence that may admit a contact into
// journeys: a tag added, a lifecycle change, a form submit.
type TriggerSignal struct {
	TenantID   string             `json:"tenant_id"`
	Type       models.TriggerType `json:"type"`
	ContactID  string             `json:"contact_id"`
	Attributes map[string]any     `json:"attributes,omitempty"`
}

// Matcher fans a trigger signal out to every active journey whose trigger
// type and conditions match, enrolling the contact in each.
type Matcher struct {
	persistence persistence.Persistence
	controller  *Controller
	logger      *slog.Logger
}

// NewMatcher creates a trigger matcher on top of the controller.
func NewMatcher(persistence persistence.Persistence, controller *Controller, logger *slog.Logger) *Matcher {
	return &Matcher{
		persistence: persistence,
		controller:  controller,
		logger:      logger.With("module", "trigger_matcher"),
	}
}

// Match enrolls the signal's contact into every matching active journey.
// Admissions rejected by policy are skipped, not errors: a contact already
// enrolled is the normal case for repeated signals.
func (m *Matcher) Match(ctx context.Context, signal TriggerSignal) ([]*models.Enrollment, error) {
	active := models.JourneyStatusActive
	journeys, err := m.persistence.JourneyRepository().List(ctx, persistence.ListJourneysOptions{
		TenantID:    signal.TenantID,
		Status:      &active,
		TriggerType: &signal.Type,
	})
	if err != nil {
		return nil, err
	}

	enrolled := make([]*models.Enrollment, 0, len(journeys))

	for _, journeyModel := range journeys {
		if !conditionsMatch(journeyModel.TriggerConditions, signal.Attributes) {
			continue
		}

		enrollmentModel, err := m.controller.Enroll(ctx, EnrollInput{
			JourneyID: journeyModel.ID,
			ContactID: signal.ContactID,
			TenantID:  signal.TenantID,
			Source:    "trigger:" + string(signal.Type),
			Context:   signal.Attributes,
		})
		if err != nil {
			if errors.Is(err, ErrAlreadyEnrolled) || errors.Is(err, ErrReEnrollmentNotAllowed) {
				m.logger.DebugContext(ctx, "Admission rejected by policy",
					"journey_id", journeyModel.ID, "contact_id", signal.ContactID, "reason", err)

				continue
			}

			return enrolled, err
		}

		enrolled = append(enrolled, enrollmentModel)
	}

	return enrolled, nil
}

// conditionsMatch checks every journey condition against the signal's
// attributes. An empty condition set matches any signal of the trigger
// type; comparison is loose, on the string forms.
func conditionsMatch(conditions, attributes map[string]any) bool {
	for key, want := range conditions {
		got, ok := attributes[key]
		if !ok {
			return false
		}

		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}

	return true
}
