// Package routing provides the lead routing bounded context module: flow
// rules, distribution groups, ponds, claim coordination, and the flow log.
package routing

import (
	"context"

	"realty_crm_backend/internal/events"
	"realty_crm_backend/internal/http"
	"realty_crm_backend/internal/routing/handler"
	"realty_crm_backend/internal/routing/ports"
	"realty_crm_backend/internal/routing/repository"
	"realty_crm_backend/internal/routing/service"
	"realty_crm_backend/platform/config"
	"realty_crm_backend/platform/httpkit"
	"realty_crm_backend/platform/logger"
	"realty_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the routing bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
	log     *logger.Logger
}

// NewModule creates and initializes the routing module.
func NewModule(pool *pgxpool.Pool, plans ports.PlanScheduler, expiry ports.ClaimExpiryScheduler, bus events.Bus, val *validator.Validator, cfg config.RoutingConfig, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, plans, expiry, bus, log, cfg)
	admin := service.NewAdmin(repo, log)
	h := handler.New(svc, admin, val)

	return &Module{
		handler: h,
		service: svc,
		repo:    repo,
		log:     log,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "routing"
}

// Service returns the service layer for wiring into workers and subscribers.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository exposes read access for sibling modules (notifications need
// member emails).
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// SubscribeEvents wires routing to lead lifecycle events: every new lead gets
// a routing pass.
func (m *Module) SubscribeEvents(bus events.Bus) {
	bus.Subscribe(events.LeadCreated{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		created, ok := event.(events.LeadCreated)
		if !ok {
			return nil
		}
		_, err := m.service.RouteLead(ctx, created.TenantID, created.LeadID)
		return err
	}))
}

// RegisterRoutes mounts routing routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *http.RouterContext) {
	leads := ctx.Protected.Group("/routing/leads")
	leads.POST("/:id/route", m.handler.RouteLead)
	leads.POST("/:id/claim", ctx.ClaimRateLimiter.RateLimit(), m.handler.Claim)
	leads.GET("/:id/flow-logs", m.handler.FlowLogs)

	// Configuration surface is admin-only.
	cfgGroup := ctx.Protected.Group("/routing", httpkit.RequireRole("admin"))
	cfgGroup.GET("/rules", m.handler.ListRules)
	cfgGroup.POST("/rules", m.handler.CreateRule)
	cfgGroup.GET("/rules/:id", m.handler.GetRule)
	cfgGroup.PUT("/rules/:id", m.handler.UpdateRule)
	cfgGroup.DELETE("/rules/:id", m.handler.DeleteRule)
	cfgGroup.PUT("/rules/:id/conditions", m.handler.ReplaceConditions)

	cfgGroup.GET("/groups", m.handler.ListGroups)
	cfgGroup.POST("/groups", m.handler.CreateGroup)
	cfgGroup.GET("/groups/:id", m.handler.GetGroup)
	cfgGroup.PUT("/groups/:id", m.handler.UpdateGroup)
	cfgGroup.DELETE("/groups/:id", m.handler.DeleteGroup)
	cfgGroup.GET("/groups/:id/members", m.handler.ListMembers)
	cfgGroup.PUT("/groups/:id/members", m.handler.SetMembers)

	cfgGroup.GET("/ponds", m.handler.ListPonds)
	cfgGroup.POST("/ponds", m.handler.CreatePond)
	cfgGroup.PUT("/ponds/:id", m.handler.UpdatePond)
	cfgGroup.DELETE("/ponds/:id", m.handler.DeletePond)
}
