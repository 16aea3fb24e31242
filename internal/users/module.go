// Package users provides the tenant user directory: the agents and lenders
// that leads get routed to.
package users

import (
	"realty_crm_backend/internal/http"
	"realty_crm_backend/internal/users/handler"
	"realty_crm_backend/internal/users/repository"
	"realty_crm_backend/platform/httpkit"
	"realty_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the users module implementing http.Module.
type Module struct {
	handler *handler.Handler
	repo    *repository.Repository
}

// NewModule creates and initializes the users module.
func NewModule(pool *pgxpool.Pool, val *validator.Validator) *Module {
	repo := repository.New(pool)
	return &Module{handler: handler.New(repo, val), repo: repo}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "users"
}

// Repository returns the directory store for other modules.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts user directory routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *http.RouterContext) {
	usersGroup := ctx.Protected.Group("/users")
	usersGroup.GET("", m.handler.List)
	usersGroup.GET("/:id", m.handler.GetByID)

	admin := usersGroup.Group("", httpkit.RequireRole("admin"))
	admin.POST("", m.handler.Create)
	admin.PUT("/:id", m.handler.Update)
	admin.DELETE("/:id", m.handler.Delete)
}
