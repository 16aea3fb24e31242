// Package repository provides persistence for contacts (leads as people:
// identity, origin, custom attributes).
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("lead not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Lead struct {
	ID                  uuid.UUID
	OrganizationID      uuid.UUID
	FirstName           string
	LastName            string
	Email               *string
	Phone               *string
	SourceType          *string
	SourceName          *string
	CustomFields        map[string]string
	AssignedUserID      *uuid.UUID
	AssignedLenderID    *uuid.UUID
	AssignedPondID      *uuid.UUID
	AvailableForGroupID *uuid.UUID
	ClaimExpiresAt      *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

const leadColumns = `id, organization_id, first_name, last_name, email, phone, source_type, source_name,
	custom_fields, assigned_user_id, assigned_lender_id, assigned_pond_id,
	available_for_group_id, claim_expires_at, created_at, updated_at`

func scanLead(row pgx.Row) (Lead, error) {
	var lead Lead
	err := row.Scan(
		&lead.ID, &lead.OrganizationID, &lead.FirstName, &lead.LastName, &lead.Email, &lead.Phone,
		&lead.SourceType, &lead.SourceName, &lead.CustomFields,
		&lead.AssignedUserID, &lead.AssignedLenderID, &lead.AssignedPondID,
		&lead.AvailableForGroupID, &lead.ClaimExpiresAt, &lead.CreatedAt, &lead.UpdatedAt,
	)
	return lead, err
}

type CreateLeadParams struct {
	OrganizationID uuid.UUID
	FirstName      string
	LastName       string
	Email          *string
	Phone          *string
	SourceType     *string
	SourceName     *string
	CustomFields   map[string]string
}

func (r *Repository) Create(ctx context.Context, params CreateLeadParams) (Lead, error) {
	customFields := params.CustomFields
	if customFields == nil {
		customFields = map[string]string{}
	}
	return scanLead(r.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO leads (organization_id, first_name, last_name, email, phone, source_type, source_name, custom_fields)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING %s
	`, leadColumns),
		params.OrganizationID, params.FirstName, params.LastName, params.Email, params.Phone,
		params.SourceType, params.SourceName, customFields,
	))
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM leads WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`, leadColumns), id, organizationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	return lead, err
}

type ListLeadsParams struct {
	AssignedUserID      *uuid.UUID
	AssignedPondID      *uuid.UUID
	AvailableForGroupID *uuid.UUID
	SourceType          *string
	Search              string
	Limit               int
	Offset              int
}

func (r *Repository) List(ctx context.Context, organizationID uuid.UUID, params ListLeadsParams) ([]Lead, int, error) {
	where := []string{"organization_id = $1", "deleted_at IS NULL"}
	args := []interface{}{organizationID}
	argIdx := 2

	add := func(clause string, value interface{}) {
		where = append(where, fmt.Sprintf(clause, argIdx))
		args = append(args, value)
		argIdx++
	}

	if params.AssignedUserID != nil {
		add("assigned_user_id = $%d", *params.AssignedUserID)
	}
	if params.AssignedPondID != nil {
		add("assigned_pond_id = $%d", *params.AssignedPondID)
	}
	if params.AvailableForGroupID != nil {
		add("available_for_group_id = $%d", *params.AvailableForGroupID)
	}
	if params.SourceType != nil {
		add("source_type = $%d", *params.SourceType)
	}
	if params.Search != "" {
		where = append(where, fmt.Sprintf(
			"(first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d)", argIdx, argIdx, argIdx))
		args = append(args, "%"+params.Search+"%")
		argIdx++
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM leads WHERE "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := params.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM leads WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, leadColumns, whereClause, argIdx, argIdx+1)
	args = append(args, limit, params.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	leads := make([]Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, 0, err
		}
		leads = append(leads, lead)
	}
	return leads, total, rows.Err()
}

type UpdateLeadParams struct {
	FirstName    *string
	LastName     *string
	Email        *string
	Phone        *string
	SourceType   *string
	SourceName   *string
	CustomFields map[string]string
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, organizationID uuid.UUID, params UpdateLeadParams) (Lead, error) {
	setClauses := []string{}
	args := []interface{}{}
	argIdx := 1

	add := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if params.FirstName != nil {
		add("first_name", *params.FirstName)
	}
	if params.LastName != nil {
		add("last_name", *params.LastName)
	}
	if params.Email != nil {
		add("email", *params.Email)
	}
	if params.Phone != nil {
		add("phone", *params.Phone)
	}
	if params.SourceType != nil {
		add("source_type", *params.SourceType)
	}
	if params.SourceName != nil {
		add("source_name", *params.SourceName)
	}
	if params.CustomFields != nil {
		// Merged, not replaced: partial updates must not drop other keys.
		setClauses = append(setClauses, fmt.Sprintf("custom_fields = custom_fields || $%d", argIdx))
		args = append(args, params.CustomFields)
		argIdx++
	}

	if len(setClauses) == 0 {
		return r.GetByID(ctx, id, organizationID)
	}

	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id, organizationID)

	query := fmt.Sprintf(`
		UPDATE leads SET %s
		WHERE id = $%d AND organization_id = $%d AND deleted_at IS NULL
		RETURNING %s
	`, strings.Join(setClauses, ", "), argIdx, argIdx+1, leadColumns)

	lead, err := scanLead(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	return lead, err
}

// Delete soft-deletes; routing history and executions keep their references.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE leads SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`, id, organizationID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
