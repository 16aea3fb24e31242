// Package actionplans provides the follow-up automation bounded context:
// plan and step management plus scheduled execution tracking.
package actionplans

import (
	"realty_crm_backend/internal/actionplans/handler"
	"realty_crm_backend/internal/actionplans/repository"
	"realty_crm_backend/internal/actionplans/service"
	"realty_crm_backend/internal/events"
	"realty_crm_backend/internal/http"
	"realty_crm_backend/platform/httpkit"
	"realty_crm_backend/platform/logger"
	"realty_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the action plans bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the action plans module.
func NewModule(pool *pgxpool.Pool, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, bus, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "actionplans"
}

// Service returns the service layer; the routing module uses it as its plan
// scheduler, and the scheduler binary drives DispatchDue through it.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts action plan routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *http.RouterContext) {
	plans := ctx.Protected.Group("/action-plans", httpkit.RequireRole("admin"))
	plans.GET("", m.handler.ListPlans)
	plans.POST("", m.handler.CreatePlan)
	plans.GET("/:id", m.handler.GetPlan)
	plans.PUT("/:id", m.handler.RenamePlan)
	plans.DELETE("/:id", m.handler.DeletePlan)
	plans.PUT("/:id/steps", m.handler.ReplaceSteps)

	executions := ctx.Protected.Group("/executions")
	executions.GET("/due", m.handler.ListDue)
	executions.POST("/:id/complete", m.handler.Complete)

	ctx.Protected.GET("/leads/:id/executions", m.handler.ListByLead)
}
