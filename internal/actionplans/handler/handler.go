// Package handler exposes the action plan API over HTTP.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"realty_crm_backend/internal/actionplans/repository"
	"realty_crm_backend/internal/actionplans/service"
	"realty_crm_backend/internal/actionplans/transport"
	"realty_crm_backend/platform/httpkit"
	"realty_crm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid id"
)

// Handler handles HTTP requests for action plans and executions.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.UUID{}, false
	}
	return id, true
}

func toStepParams(steps []transport.StepRequest) []repository.StepParams {
	params := make([]repository.StepParams, 0, len(steps))
	for _, step := range steps {
		params = append(params, repository.StepParams{
			StepType:   step.StepType,
			DelayDays:  step.DelayDays,
			DelayHours: step.DelayHours,
			SortOrder:  step.SortOrder,
		})
	}
	return params
}

// ListPlans handles GET /action-plans.
func (h *Handler) ListPlans(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	plans, err := h.svc.ListPlans(c.Request.Context(), identity.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToPlanResponses(plans))
}

// GetPlan handles GET /action-plans/:id.
func (h *Handler) GetPlan(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	plan, err := h.svc.GetPlan(c.Request.Context(), identity.TenantID(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToPlanResponse(plan))
}

// CreatePlan handles POST /action-plans.
func (h *Handler) CreatePlan(c *gin.Context) {
	var req transport.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	plan, err := h.svc.CreatePlan(c.Request.Context(), identity.TenantID(), req.Name, toStepParams(req.Steps))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToPlanResponse(plan))
}

// RenamePlan handles PUT /action-plans/:id.
func (h *Handler) RenamePlan(c *gin.Context) {
	var req transport.RenamePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	plan, err := h.svc.RenamePlan(c.Request.Context(), identity.TenantID(), id, req.Name)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToPlanResponse(plan))
}

// DeletePlan handles DELETE /action-plans/:id.
func (h *Handler) DeletePlan(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if httpkit.HandleError(c, h.svc.DeletePlan(c.Request.Context(), identity.TenantID(), id)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// ReplaceSteps handles PUT /action-plans/:id/steps.
func (h *Handler) ReplaceSteps(c *gin.Context) {
	var req transport.ReplaceStepsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	plan, err := h.svc.ReplaceSteps(c.Request.Context(), identity.TenantID(), id, toStepParams(req.Steps))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToPlanResponse(plan))
}

// ListDue handles GET /executions/due.
func (h *Handler) ListDue(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	var asOf time.Time
	if raw := c.Query("asOf"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "asOf must be RFC 3339", nil)
			return
		}
		asOf = parsed
	}

	executions, err := h.svc.ListDue(c.Request.Context(), identity.TenantID(), asOf, limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToExecutionResponses(executions))
}

// ListByLead handles GET /leads/:id/executions.
func (h *Handler) ListByLead(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	leadID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	executions, err := h.svc.ListByLead(c.Request.Context(), identity.TenantID(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToExecutionResponses(executions))
}

// Complete handles POST /executions/:id/complete.
func (h *Handler) Complete(c *gin.Context) {
	var req transport.CompleteExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	execution, err := h.svc.Complete(c.Request.Context(), identity.TenantID(), id, req.Notes)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToExecutionResponse(execution))
}
