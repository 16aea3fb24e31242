// Package service implements action plan management and execution
// scheduling. Its Service satisfies the routing module's PlanScheduler port.
package service

import (
	"context"
	"errors"
	"time"

	"realty_crm_backend/internal/actionplans/repository"
	"realty_crm_backend/internal/events"
	"realty_crm_backend/platform/apperr"
	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the persistence surface the service needs. Implemented by
// *repository.Repository.
type Store interface {
	GetPlan(ctx context.Context, id, organizationID uuid.UUID) (repository.Plan, error)
	ListPlans(ctx context.Context, organizationID uuid.UUID) ([]repository.Plan, error)
	CreatePlan(ctx context.Context, organizationID uuid.UUID, name string) (repository.Plan, error)
	RenamePlan(ctx context.Context, id, organizationID uuid.UUID, name string) (repository.Plan, error)
	DeletePlan(ctx context.Context, id, organizationID uuid.UUID) error
	ReplaceSteps(ctx context.Context, planID, organizationID uuid.UUID, steps []repository.StepParams) error

	CreateExecution(ctx context.Context, params repository.CreateExecutionParams, force bool) (bool, error)
	MarkDue(ctx context.Context, limit int) ([]repository.Execution, error)
	ListDue(ctx context.Context, organizationID uuid.UUID, asOf time.Time, limit int) ([]repository.Execution, error)
	ListByLead(ctx context.Context, leadID, organizationID uuid.UUID) ([]repository.Execution, error)
	GetExecution(ctx context.Context, id, organizationID uuid.UUID) (repository.Execution, error)
	CompleteExecution(ctx context.Context, id, organizationID uuid.UUID, notes *string) (repository.Execution, error)
	CancelPendingForLead(ctx context.Context, leadID, organizationID uuid.UUID) (int, error)
}

type Service struct {
	store Store
	bus   events.Bus
	log   *logger.Logger
}

func New(store Store, bus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, bus: bus, log: log}
}

// StepDueAt computes when a step falls due relative to its anchor: the plan's
// scheduling time, usually the moment the lead was routed. Delays are plain
// wall-clock offsets; days are 24 hours, no timezone arithmetic.
func StepDueAt(anchor time.Time, delayDays, delayHours int) time.Time {
	return anchor.Add(time.Duration(delayDays*24+delayHours) * time.Hour)
}

// Schedule materializes a plan into one pending execution per step, due at
// anchor plus the step's delay. Steps that already have an open execution for
// this lead are skipped unless force is set. Returns the number created.
func (s *Service) Schedule(ctx context.Context, organizationID, leadID, planID uuid.UUID, assignedTo *uuid.UUID, anchor time.Time, force bool) (int, error) {
	plan, err := s.store.GetPlan(ctx, planID, organizationID)
	if err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return 0, apperr.NotFound("action plan not found")
		}
		return 0, err
	}

	created := 0
	for _, step := range plan.Steps {
		inserted, err := s.store.CreateExecution(ctx, repository.CreateExecutionParams{
			OrganizationID:   organizationID,
			LeadID:           leadID,
			PlanID:           plan.ID,
			StepID:           step.ID,
			ScheduledAt:      StepDueAt(anchor, step.DelayDays, step.DelayHours),
			AssignedToUserID: assignedTo,
		}, force)
		if err != nil {
			return created, err
		}
		if inserted {
			created++
		}
	}

	s.log.Info("action plan scheduled",
		"planId", plan.ID, "leadId", leadID, "steps", len(plan.Steps), "created", created)
	return created, nil
}

// CancelPendingForLead cancels a lead's open executions.
func (s *Service) CancelPendingForLead(ctx context.Context, organizationID, leadID uuid.UUID) (int, error) {
	return s.store.CancelPendingForLead(ctx, leadID, organizationID)
}

// DispatchDue moves ripe executions to the due state and publishes an
// ExecutionDue event for each. Called by the scheduler loop.
func (s *Service) DispatchDue(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	executions, err := s.store.MarkDue(ctx, batch)
	if err != nil {
		return 0, err
	}

	for _, execution := range executions {
		s.bus.Publish(ctx, events.ExecutionDue{
			BaseEvent:   events.NewBaseEvent(),
			ExecutionID: execution.ID,
			TenantID:    execution.OrganizationID,
			LeadID:      execution.LeadID,
			StepType:    execution.StepType,
			AssignedTo:  execution.AssignedToUserID,
		})
	}
	return len(executions), nil
}

// ListDue returns the tenant's open work queue as of a point in time. A zero
// asOf means now.
func (s *Service) ListDue(ctx context.Context, organizationID uuid.UUID, asOf time.Time, limit int) ([]repository.Execution, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}
	return s.store.ListDue(ctx, organizationID, asOf, limit)
}

// ListByLead returns a lead's execution history.
func (s *Service) ListByLead(ctx context.Context, organizationID, leadID uuid.UUID) ([]repository.Execution, error) {
	return s.store.ListByLead(ctx, leadID, organizationID)
}

// Complete marks an open execution done.
func (s *Service) Complete(ctx context.Context, organizationID, executionID uuid.UUID, notes *string) (repository.Execution, error) {
	execution, err := s.store.CompleteExecution(ctx, executionID, organizationID, notes)
	if err != nil {
		if !errors.Is(err, repository.ErrExecutionNotFound) {
			return repository.Execution{}, err
		}
		// Either the row does not exist or it is already closed.
		current, getErr := s.store.GetExecution(ctx, executionID, organizationID)
		if getErr != nil {
			return repository.Execution{}, apperr.NotFound("execution not found")
		}
		return repository.Execution{}, apperr.Conflict("execution is already " + current.Status)
	}

	s.bus.Publish(ctx, events.ExecutionCompleted{
		BaseEvent:   events.NewBaseEvent(),
		ExecutionID: execution.ID,
		TenantID:    organizationID,
		LeadID:      execution.LeadID,
	})
	return execution, nil
}

// Plan CRUD.

func (s *Service) GetPlan(ctx context.Context, organizationID, id uuid.UUID) (repository.Plan, error) {
	plan, err := s.store.GetPlan(ctx, id, organizationID)
	if errors.Is(err, repository.ErrPlanNotFound) {
		return repository.Plan{}, apperr.NotFound("action plan not found")
	}
	return plan, err
}

func (s *Service) ListPlans(ctx context.Context, organizationID uuid.UUID) ([]repository.Plan, error) {
	return s.store.ListPlans(ctx, organizationID)
}

func (s *Service) CreatePlan(ctx context.Context, organizationID uuid.UUID, name string, steps []repository.StepParams) (repository.Plan, error) {
	if err := validateSteps(steps); err != nil {
		return repository.Plan{}, err
	}
	plan, err := s.store.CreatePlan(ctx, organizationID, name)
	if err != nil {
		return repository.Plan{}, err
	}
	if len(steps) > 0 {
		if err := s.store.ReplaceSteps(ctx, plan.ID, organizationID, steps); err != nil {
			return repository.Plan{}, err
		}
		return s.store.GetPlan(ctx, plan.ID, organizationID)
	}
	return plan, nil
}

func (s *Service) RenamePlan(ctx context.Context, organizationID, id uuid.UUID, name string) (repository.Plan, error) {
	plan, err := s.store.RenamePlan(ctx, id, organizationID, name)
	if errors.Is(err, repository.ErrPlanNotFound) {
		return repository.Plan{}, apperr.NotFound("action plan not found")
	}
	return plan, err
}

func (s *Service) DeletePlan(ctx context.Context, organizationID, id uuid.UUID) error {
	err := s.store.DeletePlan(ctx, id, organizationID)
	if errors.Is(err, repository.ErrPlanNotFound) {
		return apperr.NotFound("action plan not found")
	}
	return err
}

// ReplaceSteps swaps a plan's steps and cancels open executions for the old
// ones.
func (s *Service) ReplaceSteps(ctx context.Context, organizationID, planID uuid.UUID, steps []repository.StepParams) (repository.Plan, error) {
	if err := validateSteps(steps); err != nil {
		return repository.Plan{}, err
	}
	if err := s.store.ReplaceSteps(ctx, planID, organizationID, steps); err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return repository.Plan{}, apperr.NotFound("action plan not found")
		}
		return repository.Plan{}, err
	}
	return s.store.GetPlan(ctx, planID, organizationID)
}

var validStepTypes = map[string]bool{
	"call":  true,
	"email": true,
	"text":  true,
	"task":  true,
}

func validateSteps(steps []repository.StepParams) error {
	for _, step := range steps {
		if !validStepTypes[step.StepType] {
			return apperr.Validation("unknown step type: " + step.StepType)
		}
		if step.DelayDays < 0 || step.DelayHours < 0 {
			return apperr.Validation("step delays must not be negative")
		}
	}
	return nil
}
