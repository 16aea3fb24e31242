// Package transport defines request and response shapes for the routing API.
package transport

import (
	"encoding/json"
	"time"

	"realty_crm_backend/internal/routing/repository"

	"github.com/google/uuid"
)

type ConditionRequest struct {
	Field     string `json:"field" validate:"required"`
	Operator  string `json:"operator" validate:"required"`
	Value     string `json:"value"`
	SortOrder int    `json:"sortOrder"`
}

type CreateRuleRequest struct {
	Name             string             `json:"name" validate:"required,max=200"`
	SourceType       *string            `json:"sourceType"`
	SourceName       *string            `json:"sourceName"`
	Priority         int                `json:"priority"`
	IsActive         *bool              `json:"isActive"`
	IsDefault        bool               `json:"isDefault"`
	MatchType        string             `json:"matchType"`
	AssignedAgentID  *uuid.UUID         `json:"assignedAgentId"`
	AssignedLenderID *uuid.UUID         `json:"assignedLenderId"`
	GroupID          *uuid.UUID         `json:"groupId"`
	PondID           *uuid.UUID         `json:"pondId"`
	ActionPlanID     *uuid.UUID         `json:"actionPlanId"`
	Conditions       []ConditionRequest `json:"conditions" validate:"dive"`
}

type UpdateRuleRequest struct {
	Name         *string    `json:"name" validate:"omitempty,max=200"`
	SourceType   *string    `json:"sourceType"`
	SourceName   *string    `json:"sourceName"`
	Priority     *int       `json:"priority"`
	IsActive     *bool      `json:"isActive"`
	IsDefault    *bool      `json:"isDefault"`
	MatchType    *string    `json:"matchType"`
	ActionPlanID *uuid.UUID `json:"actionPlanId"`

	// Target replaces all four destination fields at once when present.
	Target *RuleTargetRequest `json:"target"`
}

type RuleTargetRequest struct {
	AssignedAgentID  *uuid.UUID `json:"assignedAgentId"`
	AssignedLenderID *uuid.UUID `json:"assignedLenderId"`
	GroupID          *uuid.UUID `json:"groupId"`
	PondID           *uuid.UUID `json:"pondId"`
}

type ReplaceConditionsRequest struct {
	Conditions []ConditionRequest `json:"conditions" validate:"dive"`
}

type ConditionResponse struct {
	ID        uuid.UUID `json:"id"`
	Field     string    `json:"field"`
	Operator  string    `json:"operator"`
	Value     string    `json:"value"`
	SortOrder int       `json:"sortOrder"`
}

type RuleResponse struct {
	ID               uuid.UUID           `json:"id"`
	Name             string              `json:"name"`
	SourceType       *string             `json:"sourceType,omitempty"`
	SourceName       *string             `json:"sourceName,omitempty"`
	Priority         int                 `json:"priority"`
	IsActive         bool                `json:"isActive"`
	IsDefault        bool                `json:"isDefault"`
	MatchType        string              `json:"matchType"`
	AssignedAgentID  *uuid.UUID          `json:"assignedAgentId,omitempty"`
	AssignedLenderID *uuid.UUID          `json:"assignedLenderId,omitempty"`
	GroupID          *uuid.UUID          `json:"groupId,omitempty"`
	PondID           *uuid.UUID          `json:"pondId,omitempty"`
	ActionPlanID     *uuid.UUID          `json:"actionPlanId,omitempty"`
	LeadsCount       int                 `json:"leadsCount"`
	LastLeadAt       *time.Time          `json:"lastLeadAt,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
	Conditions       []ConditionResponse `json:"conditions"`
}

func ToRuleResponse(rule repository.Rule) RuleResponse {
	resp := RuleResponse{
		ID:               rule.ID,
		Name:             rule.Name,
		SourceType:       rule.SourceType,
		SourceName:       rule.SourceName,
		Priority:         rule.Priority,
		IsActive:         rule.IsActive,
		IsDefault:        rule.IsDefault,
		MatchType:        rule.MatchType,
		AssignedAgentID:  rule.AssignedAgentID,
		AssignedLenderID: rule.AssignedLenderID,
		GroupID:          rule.GroupID,
		PondID:           rule.PondID,
		ActionPlanID:     rule.ActionPlanID,
		LeadsCount:       rule.LeadsCount,
		LastLeadAt:       rule.LastLeadAt,
		CreatedAt:        rule.CreatedAt,
		UpdatedAt:        rule.UpdatedAt,
		Conditions:       make([]ConditionResponse, 0, len(rule.Conditions)),
	}
	for _, cond := range rule.Conditions {
		resp.Conditions = append(resp.Conditions, ConditionResponse{
			ID:        cond.ID,
			Field:     cond.Field,
			Operator:  cond.Operator,
			Value:     cond.Value,
			SortOrder: cond.SortOrder,
		})
	}
	return resp
}

func ToRuleResponses(rules []repository.Rule) []RuleResponse {
	responses := make([]RuleResponse, 0, len(rules))
	for _, rule := range rules {
		responses = append(responses, ToRuleResponse(rule))
	}
	return responses
}

type CreateGroupRequest struct {
	Name               string     `json:"name" validate:"required,max=200"`
	Distribution       string     `json:"distribution"`
	ClaimWindowSeconds int        `json:"claimWindowSeconds"`
	DefaultUserID      *uuid.UUID `json:"defaultUserId"`
	DefaultPondID      *uuid.UUID `json:"defaultPondId"`
	DefaultGroupID     *uuid.UUID `json:"defaultGroupId"`
}

type UpdateGroupRequest struct {
	Name               *string               `json:"name" validate:"omitempty,max=200"`
	Distribution       *string               `json:"distribution"`
	ClaimWindowSeconds *int                  `json:"claimWindowSeconds"`
	Fallback           *GroupFallbackRequest `json:"fallback"`
}

type GroupFallbackRequest struct {
	DefaultUserID  *uuid.UUID `json:"defaultUserId"`
	DefaultPondID  *uuid.UUID `json:"defaultPondId"`
	DefaultGroupID *uuid.UUID `json:"defaultGroupId"`
}

type GroupResponse struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	Distribution       string     `json:"distribution"`
	ClaimWindowSeconds int        `json:"claimWindowSeconds"`
	DefaultUserID      *uuid.UUID `json:"defaultUserId,omitempty"`
	DefaultPondID      *uuid.UUID `json:"defaultPondId,omitempty"`
	DefaultGroupID     *uuid.UUID `json:"defaultGroupId,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func ToGroupResponse(group repository.Group) GroupResponse {
	return GroupResponse{
		ID:                 group.ID,
		Name:               group.Name,
		Distribution:       group.Distribution,
		ClaimWindowSeconds: group.ClaimWindowSeconds,
		DefaultUserID:      group.DefaultUserID,
		DefaultPondID:      group.DefaultPondID,
		DefaultGroupID:     group.DefaultGroupID,
		CreatedAt:          group.CreatedAt,
		UpdatedAt:          group.UpdatedAt,
	}
}

type MemberRequest struct {
	UserID    uuid.UUID `json:"userId" validate:"required"`
	SortOrder int       `json:"sortOrder"`
}

type SetMembersRequest struct {
	Members []MemberRequest `json:"members" validate:"dive"`
}

type MemberResponse struct {
	UserID    uuid.UUID `json:"userId"`
	SortOrder int       `json:"sortOrder"`
}

type PondRequest struct {
	Name        string    `json:"name" validate:"required,max=200"`
	OwnerUserID uuid.UUID `json:"ownerUserId" validate:"required"`
}

type PondResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	OwnerUserID uuid.UUID `json:"ownerUserId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func ToPondResponse(pond repository.Pond) PondResponse {
	return PondResponse{
		ID:          pond.ID,
		Name:        pond.Name,
		OwnerUserID: pond.OwnerUserID,
		CreatedAt:   pond.CreatedAt,
		UpdatedAt:   pond.UpdatedAt,
	}
}

// RouteLeadRequest overrides the lead's stored source for a single routing
// pass. The body is optional; without it the snapshot's source is used.
type RouteLeadRequest struct {
	SourceType string `json:"sourceType" validate:"omitempty,max=100"`
	SourceName string `json:"sourceName" validate:"omitempty,max=200"`
}

type ClaimResponse struct {
	LeadID         uuid.UUID  `json:"leadId"`
	AssignedUserID *uuid.UUID `json:"assignedUserId"`
	ClaimedFrom    *uuid.UUID `json:"claimedFrom,omitempty"`
}

type FlowLogResponse struct {
	ID            uuid.UUID       `json:"id"`
	Seq           int64           `json:"seq"`
	LeadID        uuid.UUID       `json:"leadId"`
	RuleID        *uuid.UUID      `json:"ruleId,omitempty"`
	Action        string          `json:"action"`
	RuleData      json.RawMessage `json:"ruleData,omitempty"`
	ConditionsMet json.RawMessage `json:"conditionsMet,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func ToFlowLogResponses(entries []repository.FlowLogEntry) []FlowLogResponse {
	responses := make([]FlowLogResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, FlowLogResponse{
			ID:            entry.ID,
			Seq:           entry.Seq,
			LeadID:        entry.LeadID,
			RuleID:        entry.RuleID,
			Action:        entry.Action,
			RuleData:      entry.RuleData,
			ConditionsMet: entry.ConditionsMet,
			CreatedAt:     entry.CreatedAt,
		})
	}
	return responses
}
