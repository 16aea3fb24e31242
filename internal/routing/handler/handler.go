// Package handler exposes the routing API over HTTP.
package handler

import (
	"net/http"
	"strconv"

	"realty_crm_backend/internal/routing/repository"
	"realty_crm_backend/internal/routing/service"
	"realty_crm_backend/internal/routing/transport"
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

// Handler handles HTTP requests for lead routing.
type Handler struct {
	svc   *service.Service
	admin *service.Admin
	val   *validator.Validator
}

func New(svc *service.Service, admin *service.Admin, val *validator.Validator) *Handler {
	return &Handler{svc: svc, admin: admin, val: val}
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.UUID{}, false
	}
	return id, true
}

// RouteLead handles POST /routing/leads/:id/route. The body is optional and
// overrides the lead's stored source for this pass only.
func (h *Handler) RouteLead(c *gin.Context) {
	var req transport.RouteLeadRequest
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
	leadID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.RouteLeadFrom(c.Request.Context(), identity.TenantID(), leadID, req.SourceType, req.SourceName)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Claim handles POST /routing/leads/:id/claim. The claiming user is the
// authenticated caller; claiming on someone else's behalf is not a thing.
func (h *Handler) Claim(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	leadID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	state, err := h.svc.Claim(c.Request.Context(), identity.TenantID(), leadID, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ClaimResponse{
		LeadID:         state.LeadID,
		AssignedUserID: state.AssignedUserID,
		ClaimedFrom:    state.LastGroupID,
	})
}

// FlowLogs handles GET /routing/leads/:id/flow-logs.
func (h *Handler) FlowLogs(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	leadID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := h.svc.FlowLogs(c.Request.Context(), identity.TenantID(), leadID, limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToFlowLogResponses(entries))
}

// ListRules handles GET /routing/rules.
func (h *Handler) ListRules(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	rules, err := h.admin.ListRules(c.Request.Context(), identity.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToRuleResponses(rules))
}

// GetRule handles GET /routing/rules/:id.
func (h *Handler) GetRule(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	rule, err := h.admin.GetRule(c.Request.Context(), id, identity.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToRuleResponse(rule))
}

// CreateRule handles POST /routing/rules.
func (h *Handler) CreateRule(c *gin.Context) {
	var req transport.CreateRuleRequest
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

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	matchType := req.MatchType
	if matchType == "" {
		matchType = "all"
	}

	rule, err := h.admin.CreateRule(c.Request.Context(), repository.CreateRuleParams{
		OrganizationID:   identity.TenantID(),
		Name:             req.Name,
		SourceType:       req.SourceType,
		SourceName:       req.SourceName,
		Priority:         req.Priority,
		IsActive:         isActive,
		IsDefault:        req.IsDefault,
		MatchType:        matchType,
		AssignedAgentID:  req.AssignedAgentID,
		AssignedLenderID: req.AssignedLenderID,
		GroupID:          req.GroupID,
		PondID:           req.PondID,
		ActionPlanID:     req.ActionPlanID,
	}, toConditionParams(req.Conditions))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToRuleResponse(rule))
}

// UpdateRule handles PUT /routing/rules/:id.
func (h *Handler) UpdateRule(c *gin.Context) {
	var req transport.UpdateRuleRequest
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

	params := repository.UpdateRuleParams{
		Name:         req.Name,
		SourceType:   req.SourceType,
		SourceName:   req.SourceName,
		Priority:     req.Priority,
		IsActive:     req.IsActive,
		IsDefault:    req.IsDefault,
		MatchType:    req.MatchType,
		ActionPlanID: req.ActionPlanID,
	}
	if req.Target != nil {
		params.TargetSet = true
		params.AssignedAgentID = req.Target.AssignedAgentID
		params.AssignedLenderID = req.Target.AssignedLenderID
		params.GroupID = req.Target.GroupID
		params.PondID = req.Target.PondID
	}

	rule, err := h.admin.UpdateRule(c.Request.Context(), id, identity.TenantID(), params)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToRuleResponse(rule))
}

// DeleteRule handles DELETE /routing/rules/:id.
func (h *Handler) DeleteRule(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if httpkit.HandleError(c, h.admin.DeleteRule(c.Request.Context(), id, identity.TenantID())) {
		return
	}
	c.Status(http.StatusNoContent)
}

// ReplaceConditions handles PUT /routing/rules/:id/conditions.
func (h *Handler) ReplaceConditions(c *gin.Context) {
	var req transport.ReplaceConditionsRequest
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

	rule, err := h.admin.ReplaceConditions(c.Request.Context(), id, identity.TenantID(), toConditionParams(req.Conditions))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToRuleResponse(rule))
}

func toConditionParams(conditions []transport.ConditionRequest) []repository.ConditionParams {
	params := make([]repository.ConditionParams, 0, len(conditions))
	for _, cond := range conditions {
		params = append(params, repository.ConditionParams{
			Field:     cond.Field,
			Operator:  cond.Operator,
			Value:     cond.Value,
			SortOrder: cond.SortOrder,
		})
	}
	return params
}

// ListGroups handles GET /routing/groups.
func (h *Handler) ListGroups(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	groups, err := h.admin.ListGroups(c.Request.Context(), identity.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}
	responses := make([]transport.GroupResponse, 0, len(groups))
	for _, group := range groups {
		responses = append(responses, transport.ToGroupResponse(group))
	}
	httpkit.OK(c, responses)
}

// GetGroup handles GET /routing/groups/:id.
func (h *Handler) GetGroup(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	group, err := h.admin.GetGroup(c.Request.Context(), id, identity.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToGroupResponse(group))
}

// CreateGroup handles POST /routing/groups.
func (h *Handler) CreateGroup(c *gin.Context) {
	var req transport.CreateGroupRequest
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

	distribution := req.Distribution
	if distribution == "" {
		distribution = repository.DistributionBroadcast
	}
	window := req.ClaimWindowSeconds
	if window == 0 {
		window = 3600
	}

	group, err := h.admin.CreateGroup(c.Request.Context(), repository.CreateGroupParams{
		OrganizationID:     identity.TenantID(),
		Name:               req.Name,
		Distribution:       distribution,
		ClaimWindowSeconds: window,
		DefaultUserID:      req.DefaultUserID,
		DefaultPondID:      req.DefaultPondID,
		DefaultGroupID:     req.DefaultGroupID,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToGroupResponse(group))
}

// UpdateGroup handles PUT /routing/groups/:id.
func (h *Handler) UpdateGroup(c *gin.Context) {
	var req transport.UpdateGroupRequest
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

	params := repository.UpdateGroupParams{
		Name:               req.Name,
		Distribution:       req.Distribution,
		ClaimWindowSeconds: req.ClaimWindowSeconds,
	}
	if req.Fallback != nil {
		params.FallbackSet = true
		params.DefaultUserID = req.Fallback.DefaultUserID
		params.DefaultPondID = req.Fallback.DefaultPondID
		params.DefaultGroupID = req.Fallback.DefaultGroupID
	}

	group, err := h.admin.UpdateGroup(c.Request.Context(), id, identity.TenantID(), params)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToGroupResponse(group))
}

// DeleteGroup handles DELETE /routing/groups/:id.
func (h *Handler) DeleteGroup(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if httpkit.HandleError(c, h.admin.DeleteGroup(c.Request.Context(), id, identity.TenantID())) {
		return
	}
	c.Status(http.StatusNoContent)
}

// ListMembers handles GET /routing/groups/:id/members.
func (h *Handler) ListMembers(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	members, err := h.admin.ListMembers(c.Request.Context(), id, identity.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}
	responses := make([]transport.MemberResponse, 0, len(members))
	for _, member := range members {
		responses = append(responses, transport.MemberResponse{UserID: member.UserID, SortOrder: member.SortOrder})
	}
	httpkit.OK(c, responses)
}

// SetMembers handles PUT /routing/groups/:id/members.
func (h *Handler) SetMembers(c *gin.Context) {
	var req transport.SetMembersRequest
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

	members := make([]repository.GroupMember, 0, len(req.Members))
	for _, member := range req.Members {
		members = append(members, repository.GroupMember{UserID: member.UserID, SortOrder: member.SortOrder})
	}

	if httpkit.HandleError(c, h.admin.SetMembers(c.Request.Context(), id, identity.TenantID(), members)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// ListPonds handles GET /routing/ponds.
func (h *Handler) ListPonds(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	ponds, err := h.admin.ListPonds(c.Request.Context(), identity.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}
	responses := make([]transport.PondResponse, 0, len(ponds))
	for _, pond := range ponds {
		responses = append(responses, transport.ToPondResponse(pond))
	}
	httpkit.OK(c, responses)
}

// CreatePond handles POST /routing/ponds.
func (h *Handler) CreatePond(c *gin.Context) {
	var req transport.PondRequest
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

	pond, err := h.admin.CreatePond(c.Request.Context(), identity.TenantID(), req.Name, req.OwnerUserID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToPondResponse(pond))
}

// UpdatePond handles PUT /routing/ponds/:id.
func (h *Handler) UpdatePond(c *gin.Context) {
	var req transport.PondRequest
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

	pond, err := h.admin.UpdatePond(c.Request.Context(), id, identity.TenantID(), req.Name, req.OwnerUserID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToPondResponse(pond))
}

// DeletePond handles DELETE /routing/ponds/:id.
func (h *Handler) DeletePond(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if httpkit.HandleError(c, h.admin.DeletePond(c.Request.Context(), id, identity.TenantID())) {
		return
	}
	c.Status(http.StatusNoContent)
}
