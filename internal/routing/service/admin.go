package service

import (
	"context"
	"fmt"

	"realty_crm_backend/internal/routing/domain"
	"realty_crm_backend/internal/routing/repository"
	"realty_crm_backend/platform/apperr"
	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
)

// Admin manages the routing configuration surface: rules, conditions, groups,
// and ponds. Split from Service so the hot routing path depends only on the
// narrow Store interface.
type Admin struct {
	repo *repository.Repository
	log  *logger.Logger
}

func NewAdmin(repo *repository.Repository, log *logger.Logger) *Admin {
	return &Admin{repo: repo, log: log}
}

var validOperators = map[domain.Operator]bool{
	domain.OpEquals:      true,
	domain.OpNotEquals:   true,
	domain.OpContains:    true,
	domain.OpNotContains: true,
	domain.OpGreaterThan: true,
	domain.OpLessThan:    true,
	domain.OpIsEmpty:     true,
	domain.OpIsNotEmpty:  true,
}

func validateMatchType(matchType string) error {
	if matchType != string(domain.MatchAll) && matchType != string(domain.MatchAny) {
		return apperr.Validation(fmt.Sprintf("match type must be %q or %q", domain.MatchAll, domain.MatchAny))
	}
	return nil
}

func validateConditions(conditions []repository.ConditionParams) error {
	for i, cond := range conditions {
		if cond.Field == "" {
			return apperr.Validation(fmt.Sprintf("condition %d: field is required", i))
		}
		if !validOperators[domain.Operator(cond.Operator)] {
			return apperr.Validation(fmt.Sprintf("condition %d: unknown operator %q", i, cond.Operator))
		}
	}
	return nil
}

func (a *Admin) ListRules(ctx context.Context, organizationID uuid.UUID) ([]repository.Rule, error) {
	return a.repo.ListRules(ctx, organizationID)
}

func (a *Admin) GetRule(ctx context.Context, id, organizationID uuid.UUID) (repository.Rule, error) {
	rule, err := a.repo.GetRuleByID(ctx, id, organizationID)
	if err == repository.ErrNotFound {
		return repository.Rule{}, apperr.NotFound("rule not found")
	}
	return rule, err
}

func (a *Admin) CreateRule(ctx context.Context, params repository.CreateRuleParams, conditions []repository.ConditionParams) (repository.Rule, error) {
	if err := validateMatchType(params.MatchType); err != nil {
		return repository.Rule{}, err
	}
	if !params.IsDefault && params.SourceType == nil && params.SourceName == nil {
		return repository.Rule{}, apperr.Validation("a non-default rule must declare a source type or source name")
	}
	if err := validateConditions(conditions); err != nil {
		return repository.Rule{}, err
	}

	rule, err := a.repo.CreateRule(ctx, params)
	if err != nil {
		return repository.Rule{}, err
	}
	if len(conditions) > 0 {
		if err := a.repo.ReplaceConditions(ctx, rule.ID, params.OrganizationID, conditions); err != nil {
			return repository.Rule{}, err
		}
		return a.repo.GetRuleByID(ctx, rule.ID, params.OrganizationID)
	}
	return rule, nil
}

func (a *Admin) UpdateRule(ctx context.Context, id, organizationID uuid.UUID, params repository.UpdateRuleParams) (repository.Rule, error) {
	if params.MatchType != nil {
		if err := validateMatchType(*params.MatchType); err != nil {
			return repository.Rule{}, err
		}
	}
	rule, err := a.repo.UpdateRule(ctx, id, organizationID, params)
	if err == repository.ErrNotFound {
		return repository.Rule{}, apperr.NotFound("rule not found")
	}
	return rule, err
}

func (a *Admin) DeleteRule(ctx context.Context, id, organizationID uuid.UUID) error {
	err := a.repo.DeleteRule(ctx, id, organizationID)
	if err == repository.ErrNotFound {
		return apperr.NotFound("rule not found")
	}
	return err
}

func (a *Admin) ReplaceConditions(ctx context.Context, ruleID, organizationID uuid.UUID, conditions []repository.ConditionParams) (repository.Rule, error) {
	if err := validateConditions(conditions); err != nil {
		return repository.Rule{}, err
	}
	if err := a.repo.ReplaceConditions(ctx, ruleID, organizationID, conditions); err != nil {
		if err == repository.ErrNotFound {
			return repository.Rule{}, apperr.NotFound("rule not found")
		}
		return repository.Rule{}, err
	}
	return a.repo.GetRuleByID(ctx, ruleID, organizationID)
}

func validateGroupParams(distribution string, claimWindowSeconds int) error {
	if distribution != repository.DistributionBroadcast && distribution != repository.DistributionRoundRobin {
		return apperr.Validation(fmt.Sprintf("distribution must be %q or %q", repository.DistributionBroadcast, repository.DistributionRoundRobin))
	}
	if claimWindowSeconds <= 0 {
		return apperr.Validation("claim window must be positive")
	}
	return nil
}

func (a *Admin) ListGroups(ctx context.Context, organizationID uuid.UUID) ([]repository.Group, error) {
	return a.repo.ListGroups(ctx, organizationID)
}

func (a *Admin) GetGroup(ctx context.Context, id, organizationID uuid.UUID) (repository.Group, error) {
	group, err := a.repo.GetGroup(ctx, id, organizationID)
	if err == repository.ErrGroupNotFound {
		return repository.Group{}, apperr.NotFound("group not found")
	}
	return group, err
}

func (a *Admin) CreateGroup(ctx context.Context, params repository.CreateGroupParams) (repository.Group, error) {
	if err := validateGroupParams(params.Distribution, params.ClaimWindowSeconds); err != nil {
		return repository.Group{}, err
	}
	return a.repo.CreateGroup(ctx, params)
}

func (a *Admin) UpdateGroup(ctx context.Context, id, organizationID uuid.UUID, params repository.UpdateGroupParams) (repository.Group, error) {
	if params.Distribution != nil || params.ClaimWindowSeconds != nil {
		current, err := a.GetGroup(ctx, id, organizationID)
		if err != nil {
			return repository.Group{}, err
		}
		distribution := current.Distribution
		if params.Distribution != nil {
			distribution = *params.Distribution
		}
		window := current.ClaimWindowSeconds
		if params.ClaimWindowSeconds != nil {
			window = *params.ClaimWindowSeconds
		}
		if err := validateGroupParams(distribution, window); err != nil {
			return repository.Group{}, err
		}
	}
	if params.FallbackSet && params.DefaultGroupID != nil && *params.DefaultGroupID == id {
		return repository.Group{}, apperr.Validation("a group cannot be its own fallback group")
	}
	group, err := a.repo.UpdateGroup(ctx, id, organizationID, params)
	if err == repository.ErrGroupNotFound {
		return repository.Group{}, apperr.NotFound("group not found")
	}
	return group, err
}

func (a *Admin) DeleteGroup(ctx context.Context, id, organizationID uuid.UUID) error {
	err := a.repo.DeleteGroup(ctx, id, organizationID)
	if err == repository.ErrGroupNotFound {
		return apperr.NotFound("group not found")
	}
	return err
}

func (a *Admin) ListMembers(ctx context.Context, groupID, organizationID uuid.UUID) ([]repository.GroupMember, error) {
	if _, err := a.GetGroup(ctx, groupID, organizationID); err != nil {
		return nil, err
	}
	return a.repo.ListMembers(ctx, groupID)
}

func (a *Admin) SetMembers(ctx context.Context, groupID, organizationID uuid.UUID, members []repository.GroupMember) error {
	seen := make(map[uuid.UUID]bool, len(members))
	for _, member := range members {
		if seen[member.UserID] {
			return apperr.Validation("duplicate user in member list")
		}
		seen[member.UserID] = true
	}
	err := a.repo.SetMembers(ctx, groupID, organizationID, members)
	if err == repository.ErrGroupNotFound {
		return apperr.NotFound("group not found")
	}
	return err
}

func (a *Admin) ListPonds(ctx context.Context, organizationID uuid.UUID) ([]repository.Pond, error) {
	return a.repo.ListPonds(ctx, organizationID)
}

func (a *Admin) CreatePond(ctx context.Context, organizationID uuid.UUID, name string, ownerUserID uuid.UUID) (repository.Pond, error) {
	if name == "" {
		return repository.Pond{}, apperr.Validation("pond name is required")
	}
	return a.repo.CreatePond(ctx, organizationID, name, ownerUserID)
}

func (a *Admin) UpdatePond(ctx context.Context, id, organizationID uuid.UUID, name string, ownerUserID uuid.UUID) (repository.Pond, error) {
	if name == "" {
		return repository.Pond{}, apperr.Validation("pond name is required")
	}
	pond, err := a.repo.UpdatePond(ctx, id, organizationID, name, ownerUserID)
	if err == repository.ErrPondNotFound {
		return repository.Pond{}, apperr.NotFound("pond not found")
	}
	return pond, err
}

func (a *Admin) DeletePond(ctx context.Context, id, organizationID uuid.UUID) error {
	err := a.repo.DeletePond(ctx, id, organizationID)
	if err == repository.ErrPondNotFound {
		return apperr.NotFound("pond not found")
	}
	return err
}
