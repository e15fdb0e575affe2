package web

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/enroutehq/enroute/pkg/enrollment"
	"github.com/enroutehq/enroute/pkg/journey"
	"github.com/enroutehq/enroute/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// invalidGraphProblem builds the 422 problem with the complete validator
// error list under the "errors" extension, so editors can fix every
// problem in one pass instead of parsing the joined detail string.
func invalidGraphProblem(c fiber.Ctx, invalidGraph *journey.InvalidGraphError) error {
	problem := problems.NewStatusProblem(422).
		WithInstance(c.Path()).
		WithType("invalid_graph").
		WithDetail(invalidGraph.Error())

	raw, err := json.Marshal(problem)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)
	}

	body := fiber.Map{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)
	}

	body["errors"] = invalidGraph.Errors

	return c.Status(fiber.StatusUnprocessableEntity).JSON(body)
}

// handleServiceError maps service layer errors onto problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsJourneyNotFound(err):
		return notFound(c, "journey not found")

	case persistence.IsStepNotFound(err):
		return notFound(c, "step not found")

	case persistence.IsEnrollmentNotFound(err):
		return notFound(c, "enrollment not found")

	case errors.Is(err, persistence.ErrExecutionNotFound):
		return notFound(c, "execution not found")

	case errors.Is(err, enrollment.ErrUnknownEngagementEvent):
		return badRequest(c, err.Error())

	case journey.IsInvalidGraph(err):
		var invalidGraph *journey.InvalidGraphError
		errors.As(err, &invalidGraph)

		return invalidGraphProblem(c, invalidGraph)

	case errors.Is(err, journey.ErrInvalidTransition):
		return conflict(c, "invalid_transition", err.Error())

	case errors.Is(err, journey.ErrJourneyArchived):
		return conflict(c, "journey_archived", err.Error())

	case errors.Is(err, journey.ErrJourneyNotEditable):
		return conflict(c, "journey_not_editable", err.Error())

	case errors.Is(err, journey.ErrCrossJourneyEdge):
		return badRequest(c, err.Error())

	case errors.Is(err, journey.ErrInvalidStepConfig):
		return badRequest(c, err.Error())

	case errors.Is(err, enrollment.ErrAlreadyEnrolled):
		return conflict(c, "already_enrolled", err.Error())

	case errors.Is(err, enrollment.ErrReEnrollmentNotAllowed):
		return conflict(c, "re_enrollment_not_allowed", err.Error())

	case errors.Is(err, enrollment.ErrEnrollmentTerminal):
		return conflict(c, "enrollment_terminal", err.Error())

	case errors.Is(err, enrollment.ErrEnrollmentNotPaused):
		return conflict(c, "enrollment_not_paused", err.Error())

	case errors.Is(err, enrollment.ErrJourneyNotActive):
		return badRequest(c, err.Error())

	case errors.Is(err, enrollment.ErrTenantMismatch):
		return notFound(c, "journey not found")

	default:
		return internalError(c, err)
	}
}
