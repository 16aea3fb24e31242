package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	StatusPending   = "pending"
	StatusDue       = "due"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

type Execution struct {
	ID               uuid.UUID
	OrganizationID   uuid.UUID
	LeadID           uuid.UUID
	PlanID           uuid.UUID
	StepID           uuid.UUID
	StepType         string
	Status           string
	ScheduledAt      time.Time
	CompletedAt      *time.Time
	AssignedToUserID *uuid.UUID
	Notes            *string
	CreatedAt        time.Time
}

type CreateExecutionParams struct {
	OrganizationID   uuid.UUID
	LeadID           uuid.UUID
	PlanID           uuid.UUID
	StepID           uuid.UUID
	ScheduledAt      time.Time
	AssignedToUserID *uuid.UUID
}

// CreateExecution schedules one step for a lead. Unless force is set, the
// insert is suppressed while an open execution for the same (lead, step) pair
// exists, which makes plan scheduling idempotent across re-routes. Returns
// whether a row was inserted.
func (r *Repository) CreateExecution(ctx context.Context, params CreateExecutionParams, force bool) (bool, error) {
	query := `
		INSERT INTO action_plan_executions (organization_id, lead_id, plan_id, step_id, status, scheduled_at, assigned_to_user_id)
		SELECT $1, $2, $3, $4, 'pending', $5, $6
		WHERE NOT EXISTS (
			SELECT 1 FROM action_plan_executions
			WHERE lead_id = $2 AND step_id = $4 AND status IN ('pending', 'due')
		)
	`
	if force {
		query = `
			INSERT INTO action_plan_executions (organization_id, lead_id, plan_id, step_id, status, scheduled_at, assigned_to_user_id)
			VALUES ($1, $2, $3, $4, 'pending', $5, $6)
		`
	}
	result, err := r.pool.Exec(ctx, query,
		params.OrganizationID, params.LeadID, params.PlanID, params.StepID, params.ScheduledAt, params.AssignedToUserID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

const executionColumns = `e.id, e.organization_id, e.lead_id, e.plan_id, e.step_id,
	COALESCE(s.step_type, ''), e.status, e.scheduled_at, e.completed_at, e.assigned_to_user_id, e.notes, e.created_at`

const executionFrom = `FROM action_plan_executions e
	LEFT JOIN action_plan_steps s ON s.id = e.step_id`

func scanExecution(row pgx.Row) (Execution, error) {
	var execution Execution
	err := row.Scan(
		&execution.ID, &execution.OrganizationID, &execution.LeadID, &execution.PlanID, &execution.StepID,
		&execution.StepType, &execution.Status, &execution.ScheduledAt, &execution.CompletedAt,
		&execution.AssignedToUserID, &execution.Notes, &execution.CreatedAt,
	)
	return execution, err
}

// MarkDue flips up to limit pending executions whose time has come to the due
// state and returns them. SKIP LOCKED lets concurrent dispatchers split the
// backlog without double-publishing.
func (r *Repository) MarkDue(ctx context.Context, limit int) ([]Execution, error) {
	rows, err := r.pool.Query(ctx, `
		WITH ready AS (
			SELECT id FROM action_plan_executions
			WHERE status = 'pending' AND scheduled_at <= now()
			ORDER BY scheduled_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE action_plan_executions e
		SET status = 'due', updated_at = now()
		FROM ready
		WHERE e.id = ready.id
		RETURNING e.id, e.organization_id, e.lead_id, e.plan_id, e.step_id,
			''::text, e.status, e.scheduled_at, e.completed_at, e.assigned_to_user_id, e.notes, e.created_at
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	executions := make([]Execution, 0)
	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, execution)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := r.attachStepTypes(ctx, executions); err != nil {
		return nil, err
	}
	return executions, nil
}

func (r *Repository) attachStepTypes(ctx context.Context, executions []Execution) error {
	if len(executions) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(executions))
	for _, execution := range executions {
		ids = append(ids, execution.StepID)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, step_type FROM action_plan_steps WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	types := make(map[uuid.UUID]string)
	for rows.Next() {
		var id uuid.UUID
		var stepType string
		if err := rows.Scan(&id, &stepType); err != nil {
			return err
		}
		types[id] = stepType
	}
	if rows.Err() != nil {
		return rows.Err()
	}

	for i := range executions {
		executions[i].StepType = types[executions[i].StepID]
	}
	return nil
}

// ListDue returns a tenant's open, ripe executions: those already marked due
// plus pending ones whose time has passed but the dispatcher has not touched
// yet.
func (r *Repository) ListDue(ctx context.Context, organizationID uuid.UUID, asOf time.Time, limit int) ([]Execution, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+executionColumns+` `+executionFrom+`
		WHERE e.organization_id = $1
			AND (e.status = 'due' OR (e.status = 'pending' AND e.scheduled_at <= $2))
		ORDER BY e.scheduled_at ASC
		LIMIT $3
	`, organizationID, asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	executions := make([]Execution, 0)
	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, execution)
	}
	return executions, rows.Err()
}

// ListByLead returns all executions for a lead, soonest first.
func (r *Repository) ListByLead(ctx context.Context, leadID uuid.UUID, organizationID uuid.UUID) ([]Execution, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+executionColumns+` `+executionFrom+`
		WHERE e.lead_id = $1 AND e.organization_id = $2
		ORDER BY e.scheduled_at ASC
	`, leadID, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	executions := make([]Execution, 0)
	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, execution)
	}
	return executions, rows.Err()
}

// CompleteExecution moves an open execution to completed. Completing an
// already-completed or cancelled execution is a conflict, surfaced by the
// returned current status.
func (r *Repository) CompleteExecution(ctx context.Context, id uuid.UUID, organizationID uuid.UUID, notes *string) (Execution, error) {
	execution, err := scanExecution(r.pool.QueryRow(ctx, `
		UPDATE action_plan_executions e
		SET status = 'completed', completed_at = now(), notes = COALESCE($3, e.notes), updated_at = now()
		WHERE e.id = $1 AND e.organization_id = $2 AND e.status IN ('pending', 'due')
		RETURNING e.id, e.organization_id, e.lead_id, e.plan_id, e.step_id,
			''::text, e.status, e.scheduled_at, e.completed_at, e.assigned_to_user_id, e.notes, e.created_at
	`, id, organizationID, notes))
	if errors.Is(err, pgx.ErrNoRows) {
		return Execution{}, ErrExecutionNotFound
	}
	if err != nil {
		return Execution{}, err
	}

	executions := []Execution{execution}
	if err := r.attachStepTypes(ctx, executions); err != nil {
		return Execution{}, err
	}
	return executions[0], nil
}

// GetExecution loads one execution row.
func (r *Repository) GetExecution(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (Execution, error) {
	execution, err := scanExecution(r.pool.QueryRow(ctx, `
		SELECT `+executionColumns+` `+executionFrom+`
		WHERE e.id = $1 AND e.organization_id = $2
	`, id, organizationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Execution{}, ErrExecutionNotFound
	}
	return execution, err
}

// CancelPendingForLead cancels all of a lead's open executions and returns
// how many were cancelled.
func (r *Repository) CancelPendingForLead(ctx context.Context, leadID uuid.UUID, organizationID uuid.UUID) (int, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE action_plan_executions
		SET status = 'cancelled', updated_at = now()
		WHERE lead_id = $1 AND organization_id = $2 AND status IN ('pending', 'due')
	`, leadID, organizationID)
	if err != nil {
		return 0, err
	}
	return int(result.RowsAffected()), nil
}
