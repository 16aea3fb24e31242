package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Pond struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	OwnerUserID    uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (r *Repository) GetPond(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (Pond, error) {
	var pond Pond
	err := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, name, owner_user_id, created_at, updated_at
		FROM ponds WHERE id = $1 AND organization_id = $2
	`, id, organizationID).Scan(&pond.ID, &pond.OrganizationID, &pond.Name, &pond.OwnerUserID, &pond.CreatedAt, &pond.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Pond{}, ErrPondNotFound
	}
	return pond, err
}

func (r *Repository) ListPonds(ctx context.Context, organizationID uuid.UUID) ([]Pond, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, name, owner_user_id, created_at, updated_at
		FROM ponds WHERE organization_id = $1 ORDER BY name ASC
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ponds := make([]Pond, 0)
	for rows.Next() {
		var pond Pond
		if err := rows.Scan(&pond.ID, &pond.OrganizationID, &pond.Name, &pond.OwnerUserID, &pond.CreatedAt, &pond.UpdatedAt); err != nil {
			return nil, err
		}
		ponds = append(ponds, pond)
	}
	return ponds, rows.Err()
}

func (r *Repository) CreatePond(ctx context.Context, organizationID uuid.UUID, name string, ownerUserID uuid.UUID) (Pond, error) {
	var pond Pond
	err := r.pool.QueryRow(ctx, `
		INSERT INTO ponds (organization_id, name, owner_user_id)
		VALUES ($1, $2, $3)
		RETURNING id, organization_id, name, owner_user_id, created_at, updated_at
	`, organizationID, name, ownerUserID).Scan(&pond.ID, &pond.OrganizationID, &pond.Name, &pond.OwnerUserID, &pond.CreatedAt, &pond.UpdatedAt)
	return pond, err
}

func (r *Repository) UpdatePond(ctx context.Context, id uuid.UUID, organizationID uuid.UUID, name string, ownerUserID uuid.UUID) (Pond, error) {
	var pond Pond
	err := r.pool.QueryRow(ctx, `
		UPDATE ponds SET name = $3, owner_user_id = $4, updated_at = now()
		WHERE id = $1 AND organization_id = $2
		RETURNING id, organization_id, name, owner_user_id, created_at, updated_at
	`, id, organizationID, name, ownerUserID).Scan(&pond.ID, &pond.OrganizationID, &pond.Name, &pond.OwnerUserID, &pond.CreatedAt, &pond.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Pond{}, ErrPondNotFound
	}
	return pond, err
}

func (r *Repository) DeletePond(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM ponds WHERE id = $1 AND organization_id = $2
	`, id, organizationID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPondNotFound
	}
	return nil
}
