package repository

import (
	"context"
	"errors"
	"time"

	"realty_crm_backend/internal/routing/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RoutingState is the routing-relevant slice of a lead row.
type RoutingState struct {
	LeadID              uuid.UUID
	OrganizationID      uuid.UUID
	AssignedUserID      *uuid.UUID
	AssignedLenderID    *uuid.UUID
	AssignedPondID      *uuid.UUID
	AvailableForGroupID *uuid.UUID
	LastGroupID         *uuid.UUID
	ClaimExpiresAt      *time.Time
}

// GetSnapshot loads the evaluation view of a lead.
func (r *Repository) GetSnapshot(ctx context.Context, leadID uuid.UUID, organizationID uuid.UUID) (domain.Snapshot, error) {
	var snapshot domain.Snapshot
	var firstName, lastName, email, phone, sourceType, sourceName *string
	var customFields map[string]string

	err := r.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, email, phone, source_type, source_name, custom_fields, created_at
		FROM leads
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`, leadID, organizationID).Scan(
		&snapshot.ID, &firstName, &lastName, &email, &phone,
		&sourceType, &sourceName, &customFields, &snapshot.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return domain.Snapshot{}, err
	}

	snapshot.FirstName = derefString(firstName)
	snapshot.LastName = derefString(lastName)
	snapshot.Email = derefString(email)
	snapshot.Phone = derefString(phone)
	snapshot.SourceType = derefString(sourceType)
	snapshot.SourceName = derefString(sourceName)
	snapshot.CustomFields = customFields
	return snapshot, nil
}

// GetRoutingState loads the lead's current assignment and claim columns.
func (r *Repository) GetRoutingState(ctx context.Context, leadID uuid.UUID, organizationID uuid.UUID) (RoutingState, error) {
	var state RoutingState
	err := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, assigned_user_id, assigned_lender_id, assigned_pond_id,
			available_for_group_id, last_group_id, claim_expires_at
		FROM leads
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`, leadID, organizationID).Scan(
		&state.LeadID, &state.OrganizationID, &state.AssignedUserID, &state.AssignedLenderID,
		&state.AssignedPondID, &state.AvailableForGroupID, &state.LastGroupID, &state.ClaimExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return RoutingState{}, ErrNotFound
	}
	return state, err
}

// AssignAgent routes the lead directly to an agent. Any open claim window is
// cancelled: a fresh routing decision supersedes group availability.
func (r *Repository) AssignAgent(ctx context.Context, leadID, organizationID, userID uuid.UUID) error {
	return r.assign(ctx, leadID, organizationID, `
		UPDATE leads
		SET assigned_user_id = $3, available_for_group_id = NULL, claim_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`, userID)
}

// AssignLender routes the lead directly to a lender.
func (r *Repository) AssignLender(ctx context.Context, leadID, organizationID, lenderID uuid.UUID) error {
	return r.assign(ctx, leadID, organizationID, `
		UPDATE leads
		SET assigned_lender_id = $3, available_for_group_id = NULL, claim_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`, lenderID)
}

// AssignPond parks the lead in a pond.
func (r *Repository) AssignPond(ctx context.Context, leadID, organizationID, pondID uuid.UUID) error {
	return r.assign(ctx, leadID, organizationID, `
		UPDATE leads
		SET assigned_pond_id = $3, available_for_group_id = NULL, claim_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`, pondID)
}

func (r *Repository) assign(ctx context.Context, leadID, organizationID uuid.UUID, query string, targetID uuid.UUID) error {
	result, err := r.pool.Exec(ctx, query, leadID, organizationID, targetID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAvailableForGroup opens (or re-opens) a claim window. A re-route over an
// existing window replaces it; windows never stack.
func (r *Repository) MarkAvailableForGroup(ctx context.Context, leadID, organizationID, groupID uuid.UUID, expiresAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET available_for_group_id = $3, claim_expires_at = $4, updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`, leadID, organizationID, groupID, expiresAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimLead atomically takes an available lead for a user. The conditional
// WHERE clause is the whole concurrency story: of N simultaneous claimers,
// exactly one UPDATE matches the still-available row. The group the lead was
// claimed from is preserved in last_group_id.
func (r *Repository) ClaimLead(ctx context.Context, leadID, organizationID, userID uuid.UUID) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET assigned_user_id = $3,
			last_group_id = available_for_group_id,
			available_for_group_id = NULL,
			claim_expires_at = NULL,
			updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
			AND available_for_group_id IS NOT NULL
			AND claim_expires_at > now()
	`, leadID, organizationID, userID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// ExpiredClaim is a lead whose claim window has lapsed without a taker.
type ExpiredClaim struct {
	LeadID         uuid.UUID
	OrganizationID uuid.UUID
	GroupID        uuid.UUID
}

// ListExpiredClaims returns leads with lapsed claim windows across all
// tenants. The sweep is a system job; per-lead resolution re-checks tenant
// and group so a concurrent claim or re-route always wins.
func (r *Repository) ListExpiredClaims(ctx context.Context, limit int) ([]ExpiredClaim, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, available_for_group_id
		FROM leads
		WHERE available_for_group_id IS NOT NULL AND claim_expires_at <= now() AND deleted_at IS NULL
		ORDER BY claim_expires_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	claims := make([]ExpiredClaim, 0)
	for rows.Next() {
		var claim ExpiredClaim
		if err := rows.Scan(&claim.LeadID, &claim.OrganizationID, &claim.GroupID); err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

// The Resolve* writes below share a guard: they only apply while the lead is
// still expired and still available for the same group. If a user claimed the
// lead or a re-route replaced the window in the meantime, zero rows match and
// the sweep result is discarded.

func (r *Repository) ResolveExpiredToUser(ctx context.Context, claim ExpiredClaim, userID uuid.UUID) (bool, error) {
	return r.resolveExpired(ctx, claim, `
		UPDATE leads
		SET assigned_user_id = $4, last_group_id = $3, available_for_group_id = NULL, claim_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND available_for_group_id = $3 AND claim_expires_at <= now()
	`, userID)
}

func (r *Repository) ResolveExpiredToPond(ctx context.Context, claim ExpiredClaim, pondID uuid.UUID) (bool, error) {
	return r.resolveExpired(ctx, claim, `
		UPDATE leads
		SET assigned_pond_id = $4, last_group_id = $3, available_for_group_id = NULL, claim_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND available_for_group_id = $3 AND claim_expires_at <= now()
	`, pondID)
}

// ResolveExpiredToGroup re-broadcasts to a fallback group with a fresh window.
func (r *Repository) ResolveExpiredToGroup(ctx context.Context, claim ExpiredClaim, groupID uuid.UUID, expiresAt time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET available_for_group_id = $4, claim_expires_at = $5, last_group_id = $3, updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND available_for_group_id = $3 AND claim_expires_at <= now()
	`, claim.LeadID, claim.OrganizationID, claim.GroupID, groupID, expiresAt)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// ResolveExpiredToNone clears the lapsed window without reassigning.
func (r *Repository) ResolveExpiredToNone(ctx context.Context, claim ExpiredClaim) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET available_for_group_id = NULL, claim_expires_at = NULL, last_group_id = $3, updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND available_for_group_id = $3 AND claim_expires_at <= now()
	`, claim.LeadID, claim.OrganizationID, claim.GroupID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *Repository) resolveExpired(ctx context.Context, claim ExpiredClaim, query string, targetID uuid.UUID) (bool, error) {
	result, err := r.pool.Exec(ctx, query, claim.LeadID, claim.OrganizationID, claim.GroupID, targetID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}
