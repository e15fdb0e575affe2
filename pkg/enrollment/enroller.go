package enrollment

import (
	"context"
	"errors"
	"fmt"

	"github.com/enroutehq/enroute/pkg/protocol"
)

// Enroller adapts the controller to the protocol.SubJourneyEnroller port
// used by enroll_in_journey steps. Policy rejections cross the boundary
// wrapped in protocol.ErrAdmissionRejected.
type Enroller struct {
	controller *Controller
}

// NewEnroller wires the controller as a sub-journey enroller.
func NewEnroller(controller *Controller) *Enroller {
	return &Enroller{controller: controller}
}

func (e *Enroller) EnrollContact(ctx context.Context, journeyID, contactID string, enrollmentContext map[string]any) error {
	journeyModel, err := e.controller.persistence.JourneyRepository().GetByID(ctx, journeyID)
	if err != nil {
		return err
	}

	_, err = e.controller.Enroll(ctx, EnrollInput{
		JourneyID: journeyID,
		ContactID: contactID,
		TenantID:  journeyModel.TenantID,
		Source:    "journey_step",
		Context:   enrollmentContext,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyEnrolled) || errors.Is(err, ErrReEnrollmentNotAllowed) || errors.Is(err, ErrJourneyNotActive) {
			return fmt.Errorf("%w: %w", protocol.ErrAdmissionRejected, err)
		}

		return err
	}

	return nil
}
