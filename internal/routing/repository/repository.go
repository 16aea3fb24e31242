// Package repository provides persistence for the routing bounded context:
// flow rules and their conditions, groups, ponds, the routing view of leads,
// and the append-only flow log.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"realty_crm_backend/internal/routing/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound      = errors.New("routing record not found")
	ErrGroupNotFound = errors.New("group not found")
	ErrPondNotFound  = errors.New("pond not found")
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const ruleColumns = `id, organization_id, name, source_type, source_name, priority, is_active, is_default,
	match_type, assigned_agent_id, assigned_lender_id, group_id, pond_id, action_plan_id,
	leads_count, last_lead_at, created_at, updated_at`

// Rule is the persisted flow rule row, including running counters that the
// pure domain.Rule deliberately omits.
type Rule struct {
	ID               uuid.UUID
	OrganizationID   uuid.UUID
	Name             string
	SourceType       *string
	SourceName       *string
	Priority         int
	IsActive         bool
	IsDefault        bool
	MatchType        string
	AssignedAgentID  *uuid.UUID
	AssignedLenderID *uuid.UUID
	GroupID          *uuid.UUID
	PondID           *uuid.UUID
	ActionPlanID     *uuid.UUID
	LeadsCount       int
	LastLeadAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Conditions       []ConditionRow
}

// ConditionRow is the persisted condition row.
type ConditionRow struct {
	ID        uuid.UUID
	RuleID    uuid.UUID
	Field     string
	Operator  string
	Value     string
	SortOrder int
	CreatedAt time.Time
}

// ToDomain converts a rule row (and its conditions) to the evaluation model.
func (r Rule) ToDomain() domain.Rule {
	rule := domain.Rule{
		ID:               r.ID,
		Name:             r.Name,
		SourceType:       derefString(r.SourceType),
		SourceName:       derefString(r.SourceName),
		Priority:         r.Priority,
		IsActive:         r.IsActive,
		IsDefault:        r.IsDefault,
		MatchType:        domain.MatchType(r.MatchType),
		AssignedAgentID:  r.AssignedAgentID,
		AssignedLenderID: r.AssignedLenderID,
		GroupID:          r.GroupID,
		PondID:           r.PondID,
		ActionPlanID:     r.ActionPlanID,
		CreatedAt:        r.CreatedAt,
	}
	for _, cond := range r.Conditions {
		rule.Conditions = append(rule.Conditions, domain.Condition{
			ID:        cond.ID,
			Field:     cond.Field,
			Operator:  domain.Operator(cond.Operator),
			Value:     cond.Value,
			SortOrder: cond.SortOrder,
		})
	}
	return rule
}

func scanRule(row pgx.Row) (Rule, error) {
	var rule Rule
	err := row.Scan(
		&rule.ID, &rule.OrganizationID, &rule.Name, &rule.SourceType, &rule.SourceName,
		&rule.Priority, &rule.IsActive, &rule.IsDefault, &rule.MatchType,
		&rule.AssignedAgentID, &rule.AssignedLenderID, &rule.GroupID, &rule.PondID, &rule.ActionPlanID,
		&rule.LeadsCount, &rule.LastLeadAt, &rule.CreatedAt, &rule.UpdatedAt,
	)
	return rule, err
}

// ListActiveRules returns the tenant's active rules with conditions attached,
// ordered for deterministic selection.
func (r *Repository) ListActiveRules(ctx context.Context, organizationID uuid.UUID) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM lead_flow_rules
		WHERE organization_id = $1 AND is_active = true
		ORDER BY priority ASC, created_at ASC, id ASC
	`, ruleColumns), organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]Rule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := r.attachConditions(ctx, rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *Repository) attachConditions(ctx context.Context, rules []Rule) error {
	if len(rules) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(rules))
	index := make(map[uuid.UUID]int, len(rules))
	for i, rule := range rules {
		ids = append(ids, rule.ID)
		index[rule.ID] = i
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, rule_id, field, operator, value, sort_order, created_at
		FROM lead_flow_rule_conditions
		WHERE rule_id = ANY($1)
		ORDER BY rule_id, sort_order ASC, id ASC
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cond ConditionRow
		if err := rows.Scan(&cond.ID, &cond.RuleID, &cond.Field, &cond.Operator, &cond.Value, &cond.SortOrder, &cond.CreatedAt); err != nil {
			return err
		}
		if i, ok := index[cond.RuleID]; ok {
			rules[i].Conditions = append(rules[i].Conditions, cond)
		}
	}
	return rows.Err()
}

// GetRuleByID returns a single rule with conditions.
func (r *Repository) GetRuleByID(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (Rule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM lead_flow_rules WHERE id = $1 AND organization_id = $2
	`, ruleColumns), id, organizationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrNotFound
	}
	if err != nil {
		return Rule{}, err
	}

	rules := []Rule{rule}
	if err := r.attachConditions(ctx, rules); err != nil {
		return Rule{}, err
	}
	return rules[0], nil
}

// ListRules returns all of the tenant's rules (active and inactive).
func (r *Repository) ListRules(ctx context.Context, organizationID uuid.UUID) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM lead_flow_rules
		WHERE organization_id = $1
		ORDER BY priority ASC, created_at ASC, id ASC
	`, ruleColumns), organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]Rule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := r.attachConditions(ctx, rules); err != nil {
		return nil, err
	}
	return rules, nil
}

type CreateRuleParams struct {
	OrganizationID   uuid.UUID
	Name             string
	SourceType       *string
	SourceName       *string
	Priority         int
	IsActive         bool
	IsDefault        bool
	MatchType        string
	AssignedAgentID  *uuid.UUID
	AssignedLenderID *uuid.UUID
	GroupID          *uuid.UUID
	PondID           *uuid.UUID
	ActionPlanID     *uuid.UUID
}

func (r *Repository) CreateRule(ctx context.Context, params CreateRuleParams) (Rule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO lead_flow_rules (
			organization_id, name, source_type, source_name, priority, is_active, is_default,
			match_type, assigned_agent_id, assigned_lender_id, group_id, pond_id, action_plan_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING %s
	`, ruleColumns),
		params.OrganizationID, params.Name, params.SourceType, params.SourceName,
		params.Priority, params.IsActive, params.IsDefault, params.MatchType,
		params.AssignedAgentID, params.AssignedLenderID, params.GroupID, params.PondID, params.ActionPlanID,
	))
	return rule, err
}

type UpdateRuleParams struct {
	Name         *string
	SourceType   *string
	SourceName   *string
	Priority     *int
	IsActive     *bool
	IsDefault    *bool
	MatchType    *string
	ActionPlanID *uuid.UUID
	// Target fields are updated together so a rule's destination stays coherent.
	TargetSet        bool
	AssignedAgentID  *uuid.UUID
	AssignedLenderID *uuid.UUID
	GroupID          *uuid.UUID
	PondID           *uuid.UUID
}

func (r *Repository) UpdateRule(ctx context.Context, id uuid.UUID, organizationID uuid.UUID, params UpdateRuleParams) (Rule, error) {
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
	if params.SourceType != nil {
		add("source_type", *params.SourceType)
	}
	if params.SourceName != nil {
		add("source_name", *params.SourceName)
	}
	if params.Priority != nil {
		add("priority", *params.Priority)
	}
	if params.IsActive != nil {
		add("is_active", *params.IsActive)
	}
	if params.IsDefault != nil {
		add("is_default", *params.IsDefault)
	}
	if params.MatchType != nil {
		add("match_type", *params.MatchType)
	}
	if params.ActionPlanID != nil {
		add("action_plan_id", *params.ActionPlanID)
	}
	if params.TargetSet {
		add("assigned_agent_id", params.AssignedAgentID)
		add("assigned_lender_id", params.AssignedLenderID)
		add("group_id", params.GroupID)
		add("pond_id", params.PondID)
	}

	if len(setClauses) == 0 {
		return r.GetRuleByID(ctx, id, organizationID)
	}

	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id, organizationID)

	query := fmt.Sprintf(`
		UPDATE lead_flow_rules SET %s
		WHERE id = $%d AND organization_id = $%d
		RETURNING %s
	`, strings.Join(setClauses, ", "), argIdx, argIdx+1, ruleColumns)

	rule, err := scanRule(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrNotFound
	}
	if err != nil {
		return Rule{}, err
	}

	rules := []Rule{rule}
	if err := r.attachConditions(ctx, rules); err != nil {
		return Rule{}, err
	}
	return rules[0], nil
}

func (r *Repository) DeleteRule(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM lead_flow_rules WHERE id = $1 AND organization_id = $2
	`, id, organizationID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type ConditionParams struct {
	Field     string
	Operator  string
	Value     string
	SortOrder int
}

// ReplaceConditions swaps a rule's condition list in one transaction.
func (r *Repository) ReplaceConditions(ctx context.Context, ruleID uuid.UUID, organizationID uuid.UUID, conditions []ConditionParams) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		SELECT FROM lead_flow_rules WHERE id = $1 AND organization_id = $2
	`, ruleID, organizationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM lead_flow_rule_conditions WHERE rule_id = $1`, ruleID); err != nil {
		return err
	}

	for _, cond := range conditions {
		if _, err := tx.Exec(ctx, `
			INSERT INTO lead_flow_rule_conditions (rule_id, field, operator, value, sort_order)
			VALUES ($1, $2, $3, $4, $5)
		`, ruleID, cond.Field, cond.Operator, cond.Value, cond.SortOrder); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// TouchRuleCounters bumps leads_count and last_lead_at as a single atomic
// increment. Lost updates are tolerable here; claim ownership is not, and
// that path has its own conditional write.
func (r *Repository) TouchRuleCounters(ctx context.Context, ruleID uuid.UUID, organizationID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE lead_flow_rules
		SET leads_count = leads_count + 1, last_lead_at = now(), updated_at = now()
		WHERE id = $1 AND organization_id = $2
	`, ruleID, organizationID)
	return err
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
