// Package contacts provides the contacts bounded context module: lead
// records as people, separate from how they are routed.
package contacts

import (
	"realty_crm_backend/internal/contacts/handler"
	"realty_crm_backend/internal/contacts/repository"
	"realty_crm_backend/internal/contacts/service"
	"realty_crm_backend/internal/events"
	"realty_crm_backend/internal/http"
	"realty_crm_backend/platform/logger"
	"realty_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the contacts bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the contacts module.
func NewModule(pool *pgxpool.Pool, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, bus, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "contacts"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts contact routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *http.RouterContext) {
	leads := ctx.Protected.Group("/leads")
	leads.GET("", m.handler.List)
	leads.POST("", m.handler.Create)
	leads.GET("/:id", m.handler.GetByID)
	leads.PUT("/:id", m.handler.Update)
	leads.DELETE("/:id", m.handler.Delete)
}
