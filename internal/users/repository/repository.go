// Package repository provides persistence for the tenant's user directory.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("user not found")

const (
	RoleAgent  = "agent"
	RoleLender = "lender"
	RoleAdmin  = "admin"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type User struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	FirstName      string
	LastName       string
	Email          string
	Role           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const userColumns = `id, organization_id, first_name, last_name, email, role, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.OrganizationID, &user.FirstName, &user.LastName, &user.Email, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`, id, organizationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

// List returns the tenant's users, optionally filtered by role.
func (r *Repository) List(ctx context.Context, organizationID uuid.UUID, role string) ([]User, error) {
	query := `
		SELECT ` + userColumns + ` FROM users
		WHERE organization_id = $1 AND deleted_at IS NULL
	`
	args := []interface{}{organizationID}
	if role != "" {
		query += ` AND role = $2`
		args = append(args, role)
	}
	query += ` ORDER BY last_name ASC, first_name ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

type CreateUserParams struct {
	OrganizationID uuid.UUID
	FirstName      string
	LastName       string
	Email          string
	Role           string
}

func (r *Repository) Create(ctx context.Context, params CreateUserParams) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		INSERT INTO users (organization_id, first_name, last_name, email, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns+`
	`, params.OrganizationID, params.FirstName, params.LastName, strings.ToLower(params.Email), params.Role))
}

type UpdateUserParams struct {
	FirstName *string
	LastName  *string
	Role      *string
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, organizationID uuid.UUID, params UpdateUserParams) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `
		UPDATE users
		SET first_name = COALESCE($3, first_name),
			last_name = COALESCE($4, last_name),
			role = COALESCE($5, role),
			updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
		RETURNING `+userColumns+`
	`, id, organizationID, params.FirstName, params.LastName, params.Role))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET deleted_at = now(), updated_at = now()
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
