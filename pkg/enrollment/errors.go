package enrollment

import "errors"

var (
	// ErrJourneyNotActive means the journey is not admitting contacts.
	ErrJourneyNotActive = errors.New("journey is not active")

	// ErrAlreadyEnrolled means the contact has a live run in the journey.
	ErrAlreadyEnrolled = errors.New("contact is already enrolled")

	// ErrReEnrollmentNotAllowed means the journey's re-enrollment policy
	// rejected the admission.
	ErrReEnrollmentNotAllowed = errors.New("re-enrollment not allowed")

	// ErrTenantMismatch means the contact and journey belong to different
	// tenants.
	ErrTenantMismatch = errors.New("journey belongs to a different tenant")

	// ErrEnrollmentTerminal means the operation needs a live enrollment.
	ErrEnrollmentTerminal = errors.New("enrollment already reached a terminal status")

	// ErrEnrollmentNotPaused is returned by Resume on a non-paused run.
	ErrEnrollmentNotPaused = errors.New("enrollment is not paused")

	// ErrUnknownEngagementEvent means the delivery callback carried an
	// event kind we do not track.
	ErrUnknownEngagementEvent = errors.New("unknown engagement event")
)
