// Package handler exposes the tenant user directory over HTTP.
package handler

import (
	"errors"
	"net/http"

	"realty_crm_backend/internal/users/repository"
	"realty_crm_backend/internal/users/transport"
	"realty_crm_backend/platform/apperr"
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

// Handler handles HTTP requests for the user directory.
type Handler struct {
	repo *repository.Repository
	val  *validator.Validator
}

func New(repo *repository.Repository, val *validator.Validator) *Handler {
	return &Handler{repo: repo, val: val}
}

func parseIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.UUID{}, false
	}
	return id, true
}

func mapErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("user not found")
	}
	return err
}

// List handles GET /users. An optional role query narrows to agents or lenders.
func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	role := c.Query("role")
	switch role {
	case "", repository.RoleAgent, repository.RoleLender, repository.RoleAdmin:
	default:
		httpkit.Error(c, http.StatusBadRequest, "unknown role", nil)
		return
	}

	users, err := h.repo.List(c.Request.Context(), identity.TenantID(), role)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToUserResponses(users))
}

// GetByID handles GET /users/:id.
func (h *Handler) GetByID(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	user, err := h.repo.GetByID(c.Request.Context(), id, identity.TenantID())
	if httpkit.HandleError(c, mapErr(err)) {
		return
	}
	httpkit.OK(c, transport.ToUserResponse(user))
}

// Create handles POST /users.
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateUserRequest
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

	user, err := h.repo.Create(c.Request.Context(), repository.CreateUserParams{
		OrganizationID: identity.TenantID(),
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		Role:           req.Role,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToUserResponse(user))
}

// Update handles PUT /users/:id.
func (h *Handler) Update(c *gin.Context) {
	var req transport.UpdateUserRequest
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
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	user, err := h.repo.Update(c.Request.Context(), id, identity.TenantID(), repository.UpdateUserParams{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
	})
	if httpkit.HandleError(c, mapErr(err)) {
		return
	}
	httpkit.OK(c, transport.ToUserResponse(user))
}

// Delete handles DELETE /users/:id.
func (h *Handler) Delete(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if httpkit.HandleError(c, mapErr(h.repo.Delete(c.Request.Context(), id, identity.TenantID()))) {
		return
	}
	c.Status(http.StatusNoContent)
}
