// Package transport defines request and response shapes for the action plan API.
package transport

import (
	"time"

	"realty_crm_backend/internal/actionplans/repository"

	"github.com/google/uuid"
)

type StepRequest struct {
	StepType   string `json:"stepType" validate:"required"`
	DelayDays  int    `json:"delayDays" validate:"min=0"`
	DelayHours int    `json:"delayHours" validate:"min=0"`
	SortOrder  int    `json:"sortOrder"`
}

type CreatePlanRequest struct {
	Name  string        `json:"name" validate:"required,max=200"`
	Steps []StepRequest `json:"steps" validate:"dive"`
}

type RenamePlanRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type ReplaceStepsRequest struct {
	Steps []StepRequest `json:"steps" validate:"dive"`
}

type StepResponse struct {
	ID         uuid.UUID `json:"id"`
	StepType   string    `json:"stepType"`
	DelayDays  int       `json:"delayDays"`
	DelayHours int       `json:"delayHours"`
	SortOrder  int       `json:"sortOrder"`
}

type PlanResponse struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Steps     []StepResponse `json:"steps"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func ToPlanResponse(plan repository.Plan) PlanResponse {
	resp := PlanResponse{
		ID:        plan.ID,
		Name:      plan.Name,
		Steps:     make([]StepResponse, 0, len(plan.Steps)),
		CreatedAt: plan.CreatedAt,
		UpdatedAt: plan.UpdatedAt,
	}
	for _, step := range plan.Steps {
		resp.Steps = append(resp.Steps, StepResponse{
			ID:         step.ID,
			StepType:   step.StepType,
			DelayDays:  step.DelayDays,
			DelayHours: step.DelayHours,
			SortOrder:  step.SortOrder,
		})
	}
	return resp
}

func ToPlanResponses(plans []repository.Plan) []PlanResponse {
	responses := make([]PlanResponse, 0, len(plans))
	for _, plan := range plans {
		responses = append(responses, ToPlanResponse(plan))
	}
	return responses
}

type CompleteExecutionRequest struct {
	Notes *string `json:"notes" validate:"omitempty,max=2000"`
}

type ExecutionResponse struct {
	ID               uuid.UUID  `json:"id"`
	LeadID           uuid.UUID  `json:"leadId"`
	PlanID           uuid.UUID  `json:"planId"`
	StepID           uuid.UUID  `json:"stepId"`
	StepType         string     `json:"stepType,omitempty"`
	Status           string     `json:"status"`
	ScheduledAt      time.Time  `json:"scheduledAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	AssignedToUserID *uuid.UUID `json:"assignedToUserId,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

func ToExecutionResponse(execution repository.Execution) ExecutionResponse {
	return ExecutionResponse{
		ID:               execution.ID,
		LeadID:           execution.LeadID,
		PlanID:           execution.PlanID,
		StepID:           execution.StepID,
		StepType:         execution.StepType,
		Status:           execution.Status,
		ScheduledAt:      execution.ScheduledAt,
		CompletedAt:      execution.CompletedAt,
		AssignedToUserID: execution.AssignedToUserID,
		Notes:            execution.Notes,
		CreatedAt:        execution.CreatedAt,
	}
}

func ToExecutionResponses(executions []repository.Execution) []ExecutionResponse {
	responses := make([]ExecutionResponse, 0, len(executions))
	for _, execution := range executions {
		responses = append(responses, ToExecutionResponse(execution))
	}
	return responses
}
