// Package repository provides persistence for action plans, their steps, and
// scheduled executions.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrPlanNotFound      = errors.New("action plan not found")
	ErrExecutionNotFound = errors.New("execution not found")
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Plan struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Steps          []Step
}

type Step struct {
	ID         uuid.UUID
	PlanID     uuid.UUID
	StepType   string
	DelayDays  int
	DelayHours int
	SortOrder  int
	CreatedAt  time.Time
}

func (r *Repository) GetPlan(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (Plan, error) {
	var plan Plan
	err := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, name, created_at, updated_at
		FROM action_plans WHERE id = $1 AND organization_id = $2
	`, id, organizationID).Scan(&plan.ID, &plan.OrganizationID, &plan.Name, &plan.CreatedAt, &plan.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Plan{}, ErrPlanNotFound
	}
	if err != nil {
		return Plan{}, err
	}

	plan.Steps, err = r.listSteps(ctx, plan.ID)
	return plan, err
}

func (r *Repository) listSteps(ctx context.Context, planID uuid.UUID) ([]Step, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, plan_id, step_type, delay_days, delay_hours, sort_order, created_at
		FROM action_plan_steps
		WHERE plan_id = $1
		ORDER BY sort_order ASC, id ASC
	`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := make([]Step, 0)
	for rows.Next() {
		var step Step
		if err := rows.Scan(&step.ID, &step.PlanID, &step.StepType, &step.DelayDays, &step.DelayHours, &step.SortOrder, &step.CreatedAt); err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func (r *Repository) ListPlans(ctx context.Context, organizationID uuid.UUID) ([]Plan, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, name, created_at, updated_at
		FROM action_plans WHERE organization_id = $1 ORDER BY name ASC
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := make([]Plan, 0)
	for rows.Next() {
		var plan Plan
		if err := rows.Scan(&plan.ID, &plan.OrganizationID, &plan.Name, &plan.CreatedAt, &plan.UpdatedAt); err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	for i := range plans {
		steps, err := r.listSteps(ctx, plans[i].ID)
		if err != nil {
			return nil, err
		}
		plans[i].Steps = steps
	}
	return plans, nil
}

func (r *Repository) CreatePlan(ctx context.Context, organizationID uuid.UUID, name string) (Plan, error) {
	var plan Plan
	err := r.pool.QueryRow(ctx, `
		INSERT INTO action_plans (organization_id, name)
		VALUES ($1, $2)
		RETURNING id, organization_id, name, created_at, updated_at
	`, organizationID, name).Scan(&plan.ID, &plan.OrganizationID, &plan.Name, &plan.CreatedAt, &plan.UpdatedAt)
	plan.Steps = []Step{}
	return plan, err
}

func (r *Repository) RenamePlan(ctx context.Context, id uuid.UUID, organizationID uuid.UUID, name string) (Plan, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE action_plans SET name = $3, updated_at = now()
		WHERE id = $1 AND organization_id = $2
	`, id, organizationID, name)
	if err != nil {
		return Plan{}, err
	}
	if result.RowsAffected() == 0 {
		return Plan{}, ErrPlanNotFound
	}
	return r.GetPlan(ctx, id, organizationID)
}

func (r *Repository) DeletePlan(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM action_plans WHERE id = $1 AND organization_id = $2
	`, id, organizationID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}

type StepParams struct {
	StepType   string
	DelayDays  int
	DelayHours int
	SortOrder  int
}

// ReplaceSteps swaps a plan's step list in one transaction. Pending
// executions for removed steps are cancelled rather than orphaned.
func (r *Repository) ReplaceSteps(ctx context.Context, planID uuid.UUID, organizationID uuid.UUID, steps []StepParams) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `SELECT FROM action_plans WHERE id = $1 AND organization_id = $2`, planID, organizationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}

	if _, err := tx.Exec(ctx, `
		UPDATE action_plan_executions SET status = 'cancelled', updated_at = now()
		WHERE plan_id = $1 AND status IN ('pending', 'due')
	`, planID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM action_plan_steps WHERE plan_id = $1`, planID); err != nil {
		return err
	}
	for _, step := range steps {
		if _, err := tx.Exec(ctx, `
			INSERT INTO action_plan_steps (plan_id, step_type, delay_days, delay_hours, sort_order)
			VALUES ($1, $2, $3, $4, $5)
		`, planID, step.StepType, step.DelayDays, step.DelayHours, step.SortOrder); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
