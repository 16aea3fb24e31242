package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	DistributionBroadcast  = "broadcast"
	DistributionRoundRobin = "round_robin"
)

type Group struct {
	ID                 uuid.UUID
	OrganizationID     uuid.UUID
	Name               string
	Distribution       string
	ClaimWindowSeconds int
	DefaultUserID      *uuid.UUID
	DefaultPondID      *uuid.UUID
	DefaultGroupID     *uuid.UUID
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ClaimWindow returns the group's claim window as a duration.
func (g Group) ClaimWindow() time.Duration {
	return time.Duration(g.ClaimWindowSeconds) * time.Second
}

type GroupMember struct {
	UserID    uuid.UUID
	SortOrder int
}

const groupColumns = `id, organization_id, name, distribution, claim_window_seconds,
	default_user_id, default_pond_id, default_group_id, created_at, updated_at`

func scanGroup(row pgx.Row) (Group, error) {
	var group Group
	err := row.Scan(
		&group.ID, &group.OrganizationID, &group.Name, &group.Distribution, &group.ClaimWindowSeconds,
		&group.DefaultUserID, &group.DefaultPondID, &group.DefaultGroupID, &group.CreatedAt, &group.UpdatedAt,
	)
	return group, err
}

func (r *Repository) GetGroup(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (Group, error) {
	group, err := scanGroup(r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM groups WHERE id = $1 AND organization_id = $2
	`, groupColumns), id, organizationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Group{}, ErrGroupNotFound
	}
	return group, err
}

func (r *Repository) ListGroups(ctx context.Context, organizationID uuid.UUID) ([]Group, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM groups WHERE organization_id = $1 ORDER BY name ASC
	`, groupColumns), organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := make([]Group, 0)
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

type CreateGroupParams struct {
	OrganizationID     uuid.UUID
	Name               string
	Distribution       string
	ClaimWindowSeconds int
	DefaultUserID      *uuid.UUID
	DefaultPondID      *uuid.UUID
	DefaultGroupID     *uuid.UUID
}

func (r *Repository) CreateGroup(ctx context.Context, params CreateGroupParams) (Group, error) {
	return scanGroup(r.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO groups (organization_id, name, distribution, claim_window_seconds, default_user_id, default_pond_id, default_group_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING %s
	`, groupColumns),
		params.OrganizationID, params.Name, params.Distribution, params.ClaimWindowSeconds,
		params.DefaultUserID, params.DefaultPondID, params.DefaultGroupID,
	))
}

type UpdateGroupParams struct {
	Name               *string
	Distribution       *string
	ClaimWindowSeconds *int
	// Fallback fields are updated together so the expiry chain stays coherent.
	FallbackSet    bool
	DefaultUserID  *uuid.UUID
	DefaultPondID  *uuid.UUID
	DefaultGroupID *uuid.UUID
}

func (r *Repository) UpdateGroup(ctx context.Context, id uuid.UUID, organizationID uuid.UUID, params UpdateGroupParams) (Group, error) {
	setClauses := []string{}
	args := []interface{}{}
	argIdx := 1

	add := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if params.Name != nil {
		add("name", *params.Name)
	}
	if params.Distribution != nil {
		add("distribution", *params.Distribution)
	}
	if params.ClaimWindowSeconds != nil {
		add("claim_window_seconds", *params.ClaimWindowSeconds)
	}
	if params.FallbackSet {
		add("default_user_id", params.DefaultUserID)
		add("default_pond_id", params.DefaultPondID)
		add("default_group_id", params.DefaultGroupID)
	}

	if len(setClauses) == 0 {
		return r.GetGroup(ctx, id, organizationID)
	}

	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id, organizationID)

	group, err := scanGroup(r.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE groups SET %s
		WHERE id = $%d AND organization_id = $%d
		RETURNING %s
	`, strings.Join(setClauses, ", "), argIdx, argIdx+1, groupColumns), args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Group{}, ErrGroupNotFound
	}
	return group, err
}

func (r *Repository) DeleteGroup(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM groups WHERE id = $1 AND organization_id = $2
	`, id, organizationID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (r *Repository) ListMembers(ctx context.Context, groupID uuid.UUID) ([]GroupMember, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, sort_order FROM group_members
		WHERE group_id = $1
		ORDER BY sort_order ASC, user_id ASC
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]GroupMember, 0)
	for rows.Next() {
		var member GroupMember
		if err := rows.Scan(&member.UserID, &member.SortOrder); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// SetMembers replaces the group's roster in one transaction.
func (r *Repository) SetMembers(ctx context.Context, groupID uuid.UUID, organizationID uuid.UUID, members []GroupMember) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `SELECT FROM groups WHERE id = $1 AND organization_id = $2`, groupID, organizationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrGroupNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM group_members WHERE group_id = $1`, groupID); err != nil {
		return err
	}
	for _, member := range members {
		if _, err := tx.Exec(ctx, `
			INSERT INTO group_members (group_id, user_id, sort_order) VALUES ($1, $2, $3)
		`, groupID, member.UserID, member.SortOrder); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *Repository) IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)
	`, groupID, userID).Scan(&exists)
	return exists, err
}

// NextRoundRobinMember returns the member the group's cursor points at and
// advances the cursor, in a single statement. The UPDATE takes a row lock on
// the group, so concurrent distributions serialize on the cursor and each
// gets a distinct member. Returns nil when the group has no members.
//
// RETURNING sees the post-update cursor, so the picked position is recovered
// as (new + total - 1) % total, which equals the pre-update cursor mod total
// even after the roster has shrunk.
func (r *Repository) NextRoundRobinMember(ctx context.Context, groupID uuid.UUID, organizationID uuid.UUID) (*uuid.UUID, error) {
	var userID uuid.UUID
	err := r.pool.QueryRow(ctx, `
		WITH members AS (
			SELECT user_id,
				row_number() OVER (ORDER BY sort_order ASC, user_id ASC) - 1 AS pos,
				count(*) OVER () AS total
			FROM group_members
			WHERE group_id = $1
		), advanced AS (
			UPDATE groups g
			SET round_robin_cursor = (g.round_robin_cursor + 1) % (SELECT total FROM members LIMIT 1),
				updated_at = now()
			WHERE g.id = $1 AND g.organization_id = $2
				AND EXISTS (SELECT 1 FROM members)
			RETURNING (g.round_robin_cursor + (SELECT total FROM members LIMIT 1) - 1)
				% (SELECT total FROM members LIMIT 1) AS pick
		)
		SELECT m.user_id FROM members m JOIN advanced a ON m.pos = a.pick
	`, groupID, organizationID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &userID, nil
}

// ListMemberEmails returns the email addresses of a group's members, for
// broadcast notifications.
func (r *Repository) ListMemberEmails(ctx context.Context, groupID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.email FROM group_members gm
		JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1
		ORDER BY gm.sort_order ASC, gm.user_id ASC
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	emails := make([]string, 0)
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}
