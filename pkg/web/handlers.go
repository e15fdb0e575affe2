package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/enroutehq/enroute/pkg/enrollment"
	"github.com/enroutehq/enroute/pkg/journey"
	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/persistence"
	"github.com/enroutehq/enroute/pkg/registry"
)

// APIHandlers holds the HTTP handlers for the journey API.
type APIHandlers struct {
	lifecycle   *journey.Manager
	store       *journey.Store
	controller  *enrollment.Controller
	matcher     *enrollment.Matcher
	registry    *registry.Registry
	persistence persistence.Persistence
	validator   *validator.Validate
}

// NewAPIHandlers creates API handlers over the journey and enrollment
// services.
func NewAPIHandlers(
	lifecycle *journey.Manager,
	store *journey.Store,
	controller *enrollment.Controller,
	matcher *enrollment.Matcher,
	reg *registry.Registry,
	persistence persistence.Persistence,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		lifecycle:   lifecycle,
		store:       store,
		controller:  controller,
		matcher:     matcher,
		registry:    reg,
		persistence: persistence,
		validator:   validator,
	}
}

// HealthCheck reports the health of the API and its dependencies.
func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "degraded"
	httpStatus := http.StatusServiceUnavailable

	repositoryCheck := "failed"
	if err := h.persistence.HealthCheck(c.Context()); err == nil {
		repositoryCheck = "ok"
	}

	registryCheck := "failed"
	if len(h.registry.Types()) > 0 {
		registryCheck = "ok"
	}

	if repositoryCheck == "ok" && registryCheck == "ok" {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func parseListJourneysOptions(c fiber.Ctx) (persistence.ListJourneysOptions, error) {
	opts := persistence.ListJourneysOptions{
		TenantID: c.Query("tenant_id"),
	}

	if raw := c.Query("status"); raw != "" {
		status := models.JourneyStatus(raw)
		opts.Status = &status
	}

	if raw := c.Query("trigger_type"); raw != "" {
		triggerType := models.TriggerType(raw)
		opts.TriggerType = &triggerType
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return opts, fiber.NewError(fiber.StatusBadRequest, "invalid limit")
		}

		opts.Limit = limit
	}

	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return opts, fiber.NewError(fiber.StatusBadRequest, "invalid offset")
		}

		opts.Offset = offset
	}

	return opts, nil
}

// GetJourneys lists journeys, filtered by tenant, status and trigger type.
func (h *APIHandlers) GetJourneys(c fiber.Ctx) error {
	opts, err := parseListJourneysOptions(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	journeys, err := h.lifecycle.List(c.Context(), opts)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(journeys)
}

// CreateJourney creates a new journey in draft status.
func (h *APIHandlers) CreateJourney(c fiber.Ctx) error {
	var req CreateJourneyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.lifecycle.Create(c.Context(), journey.CreateJourneyInput{
		TenantID:          req.TenantID,
		Name:              req.Name,
		Description:       req.Description,
		TriggerType:       req.TriggerType,
		TriggerConditions: req.TriggerConditions,
		Goal:              req.Goal,
		ReEnrollment:      req.ReEnrollment,
		Tags:              req.Tags,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// GetJourney fetches one journey by id.
func (h *APIHandlers) GetJourney(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	journeyModel, err := h.lifecycle.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(journeyModel)
}

// UpdateJourney applies a partial update to a journey definition.
func (h *APIHandlers) UpdateJourney(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	var req UpdateJourneyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.lifecycle.Update(c.Context(), id, journey.UpdateJourneyInput{
		Name:              req.Name,
		Description:       req.Description,
		TriggerType:       req.TriggerType,
		TriggerConditions: req.TriggerConditions,
		Goal:              req.Goal,
		ReEnrollment:      req.ReEnrollment,
		Tags:              req.Tags,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

// DeleteJourney removes a journey and cascades to its steps, enrollments
// and execution log.
func (h *APIHandlers) DeleteJourney(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	if err := h.lifecycle.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ActivateJourney validates the graph and moves the journey to active.
func (h *APIHandlers) ActivateJourney(c fiber.Ctx) error {
	return h.lifecycleTransition(c, h.lifecycle.Activate)
}

// PauseJourney moves an active journey to paused.
func (h *APIHandlers) PauseJourney(c fiber.Ctx) error {
	return h.lifecycleTransition(c, h.lifecycle.Pause)
}

// ResumeJourney moves a paused journey back to active, revalidating the
// graph first.
func (h *APIHandlers) ResumeJourney(c fiber.Ctx) error {
	return h.lifecycleTransition(c, h.lifecycle.Resume)
}

// ArchiveJourney retires a journey. In-flight enrollments keep running
// unless the lifecycle policy says otherwise.
func (h *APIHandlers) ArchiveJourney(c fiber.Ctx) error {
	return h.lifecycleTransition(c, h.lifecycle.Archive)
}

// CloneJourney deep-copies a journey into a fresh draft with remapped
// step ids and zeroed counters.
func (h *APIHandlers) CloneJourney(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	clone, err := h.lifecycle.Clone(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(clone)
}

// ValidateJourney runs the graph validator without changing status.
func (h *APIHandlers) ValidateJourney(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	result, err := h.lifecycle.ValidateGraph(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) lifecycleTransition(
	c fiber.Ctx,
	transition func(ctx context.Context, journeyID string) (*models.Journey, error),
) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	journeyModel, err := transition(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(journeyModel)
}

// GetSteps lists the steps of a journey's graph.
func (h *APIHandlers) GetSteps(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	steps, err := h.store.Steps(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(steps)
}

// CreateStep adds a step with no edges to a journey's graph.
func (h *APIHandlers) CreateStep(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	var req CreateStepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	step, err := h.store.CreateStep(c.Context(), journey.CreateStepInput{
		JourneyID: id,
		Name:      req.Name,
		Type:      models.StepType(req.Type),
		Config:    req.Config,
		PositionX: req.PositionX,
		PositionY: req.PositionY,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(step)
}

// ConnectSteps wires one outgoing edge of a step to a target step.
func (h *APIHandlers) ConnectSteps(c fiber.Ctx) error {
	var req ConnectStepsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.store.Connect(c.Context(), req.SourceID, req.TargetID, models.EdgeKind(req.Kind))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// DisconnectSteps clears one outgoing edge of a step.
func (h *APIHandlers) DisconnectSteps(c fiber.Ctx) error {
	var req DisconnectStepsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.store.Disconnect(c.Context(), req.SourceID, models.EdgeKind(req.Kind))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// UpdatePositions bulk-moves steps for editor layout.
func (h *APIHandlers) UpdatePositions(c fiber.Ctx) error {
	var req UpdatePositionsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	batch := make([]journey.PositionUpdate, 0, len(req.Positions))
	for _, position := range req.Positions {
		batch = append(batch, journey.PositionUpdate{
			StepID:    position.StepID,
			PositionX: position.PositionX,
			PositionY: position.PositionY,
		})
	}

	if err := h.store.UpdatePositions(c.Context(), batch); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteStep removes a step from a journey's graph.
func (h *APIHandlers) DeleteStep(c fiber.Ctx) error {
	stepID := c.Params("stepId")
	if stepID == "" {
		return badRequest(c, "Step ID is required")
	}

	if err := h.store.DeleteStep(c.Context(), stepID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// EnrollContact manually admits a contact into a journey.
func (h *APIHandlers) EnrollContact(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	var req EnrollRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	enrolled, err := h.controller.Enroll(c.Context(), enrollment.EnrollInput{
		JourneyID: id,
		ContactID: req.ContactID,
		TenantID:  req.TenantID,
		Source:    "api",
		Context:   req.Context,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(enrolled)
}

// GetJourneyEnrollments lists the enrollments of a journey.
func (h *APIHandlers) GetJourneyEnrollments(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	enrollments, err := h.controller.ListByJourney(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(enrollments)
}

// GetEnrollment fetches one enrollment by id.
func (h *APIHandlers) GetEnrollment(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Enrollment ID is required")
	}

	enrolled, err := h.controller.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(enrolled)
}

// ExitEnrollment manually removes a contact from a journey.
func (h *APIHandlers) ExitEnrollment(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Enrollment ID is required")
	}

	var req ExitEnrollmentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	reason := req.Reason
	if reason == "" {
		reason = "manual exit"
	}

	exited, err := h.controller.Exit(c.Context(), id, reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(exited)
}

// PauseEnrollment suspends progress of one enrollment.
func (h *APIHandlers) PauseEnrollment(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Enrollment ID is required")
	}

	paused, err := h.controller.Pause(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(paused)
}

// ResumeEnrollment resumes a paused enrollment.
func (h *APIHandlers) ResumeEnrollment(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Enrollment ID is required")
	}

	resumed, err := h.controller.Resume(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(resumed)
}

// GetEnrollmentExecutions lists the step execution log of an enrollment.
func (h *APIHandlers) GetEnrollmentExecutions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Enrollment ID is required")
	}

	if _, err := h.controller.Get(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	executions, err := h.persistence.ExecutionRepository().ListByEnrollment(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(executions)
}

// RecordDeliveryEvent ingests a delivery provider callback for the email
// sent by one execution.
func (h *APIHandlers) RecordDeliveryEvent(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	var req DeliveryEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	at := time.Now().UTC()
	if req.Timestamp != nil {
		at = *req.Timestamp
	}

	execution, err := h.controller.RecordEmailEvent(c.Context(), id, req.Event, at)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

// Signal fans a trigger signal out to every matching active journey.
func (h *APIHandlers) Signal(c fiber.Ctx) error {
	var req SignalRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	enrollments, err := h.matcher.Match(c.Context(), enrollment.TriggerSignal{
		TenantID:   req.TenantID,
		Type:       models.TriggerType(req.Type),
		ContactID:  req.ContactID,
		Attributes: req.Attributes,
	})
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"enrolled":    len(enrollments),
		"enrollments": enrollments,
	})
}

// GetStepTypes lists the registered step types with their config schemas.
func (h *APIHandlers) GetStepTypes(c fiber.Ctx) error {
	types := h.registry.Types()

	response := make([]StepTypeResponse, 0, len(types))

	for _, stepType := range types {
		factory, ok := h.registry.Factory(stepType)
		if !ok {
			continue
		}

		response = append(response, StepTypeResponse{
			Type:        string(stepType),
			Name:        factory.Name(),
			Description: factory.Description(),
			Schema:      factory.Schema(),
		})
	}

	return c.JSON(response)
}
