// Package service orchestrates lead routing: rule selection, distribution,
// claim coordination, action plan scheduling, and the flow log.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"realty_crm_backend/internal/events"
	"realty_crm_backend/internal/routing/domain"
	"realty_crm_backend/internal/routing/ports"
	"realty_crm_backend/internal/routing/repository"
	"realty_crm_backend/platform/apperr"
	"realty_crm_backend/platform/config"
	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the persistence surface the routing service needs. Implemented by
// *repository.Repository.
type Store interface {
	GetSnapshot(ctx context.Context, leadID, organizationID uuid.UUID) (domain.Snapshot, error)
	GetRoutingState(ctx context.Context, leadID, organizationID uuid.UUID) (repository.RoutingState, error)
	ListActiveRules(ctx context.Context, organizationID uuid.UUID) ([]repository.Rule, error)
	TouchRuleCounters(ctx context.Context, ruleID, organizationID uuid.UUID) error

	AssignAgent(ctx context.Context, leadID, organizationID, userID uuid.UUID) error
	AssignLender(ctx context.Context, leadID, organizationID, lenderID uuid.UUID) error
	AssignPond(ctx context.Context, leadID, organizationID, pondID uuid.UUID) error
	MarkAvailableForGroup(ctx context.Context, leadID, organizationID, groupID uuid.UUID, expiresAt time.Time) error
	ClaimLead(ctx context.Context, leadID, organizationID, userID uuid.UUID) (bool, error)

	GetGroup(ctx context.Context, id, organizationID uuid.UUID) (repository.Group, error)
	IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error)
	NextRoundRobinMember(ctx context.Context, groupID, organizationID uuid.UUID) (*uuid.UUID, error)
	GetPond(ctx context.Context, id, organizationID uuid.UUID) (repository.Pond, error)

	ListExpiredClaims(ctx context.Context, limit int) ([]repository.ExpiredClaim, error)
	ResolveExpiredToUser(ctx context.Context, claim repository.ExpiredClaim, userID uuid.UUID) (bool, error)
	ResolveExpiredToPond(ctx context.Context, claim repository.ExpiredClaim, pondID uuid.UUID) (bool, error)
	ResolveExpiredToGroup(ctx context.Context, claim repository.ExpiredClaim, groupID uuid.UUID, expiresAt time.Time) (bool, error)
	ResolveExpiredToNone(ctx context.Context, claim repository.ExpiredClaim) (bool, error)

	InsertFlowLog(ctx context.Context, params repository.InsertFlowLogParams) (repository.FlowLogEntry, error)
	ListFlowLogs(ctx context.Context, leadID, organizationID uuid.UUID, limit int) ([]repository.FlowLogEntry, error)
}

type Service struct {
	store  Store
	plans  ports.PlanScheduler
	expiry ports.ClaimExpiryScheduler
	bus    events.Bus
	log    *logger.Logger
	cfg    config.RoutingConfig
	now    func() time.Time
}

func New(store Store, plans ports.PlanScheduler, expiry ports.ClaimExpiryScheduler, bus events.Bus, log *logger.Logger, cfg config.RoutingConfig) *Service {
	return &Service{
		store:  store,
		plans:  plans,
		expiry: expiry,
		bus:    bus,
		log:    log,
		cfg:    cfg,
		now:    time.Now,
	}
}

// RouteResult reports what a routing pass did to a lead.
type RouteResult struct {
	LeadID           uuid.UUID                `json:"leadId"`
	Action           domain.Action            `json:"action"`
	RuleID           *uuid.UUID               `json:"ruleId,omitempty"`
	RuleName         string                   `json:"ruleName,omitempty"`
	AssigneeKind     string                   `json:"assigneeKind,omitempty"`
	AssigneeID       *uuid.UUID               `json:"assigneeId,omitempty"`
	GroupID          *uuid.UUID               `json:"groupId,omitempty"`
	ClaimExpiresAt   *time.Time               `json:"claimExpiresAt,omitempty"`
	ExecutionsQueued int                      `json:"executionsQueued"`
	ConditionResults []domain.ConditionResult `json:"conditionResults,omitempty"`
}

// flowRuleData is the denormalized rule snapshot stored on each flow log row,
// so history survives later edits or deletion of the rule.
type flowRuleData struct {
	RuleID       *uuid.UUID `json:"ruleId,omitempty"`
	RuleName     string     `json:"ruleName,omitempty"`
	Priority     int        `json:"priority,omitempty"`
	AssigneeKind string     `json:"assigneeKind,omitempty"`
	AssigneeID   *uuid.UUID `json:"assigneeId,omitempty"`
	GroupID      *uuid.UUID `json:"groupId,omitempty"`
	Fallback     string     `json:"fallback,omitempty"`
}

// RouteLead runs one full routing pass over a lead: select a rule, distribute
// to its target, bump counters, schedule the attached action plan, and append
// a flow log entry. Re-running is safe; a later pass simply supersedes the
// earlier assignment.
func (s *Service) RouteLead(ctx context.Context, organizationID, leadID uuid.UUID) (RouteResult, error) {
	return s.RouteLeadFrom(ctx, organizationID, leadID, "", "")
}

// RouteLeadFrom is RouteLead with the lead's stored source overridden for this
// pass. Empty overrides fall back to the snapshot.
func (s *Service) RouteLeadFrom(ctx context.Context, organizationID, leadID uuid.UUID, sourceType, sourceName string) (RouteResult, error) {
	lead, err := s.store.GetSnapshot(ctx, leadID, organizationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return RouteResult{}, apperr.NotFound("lead not found")
		}
		return RouteResult{}, err
	}

	if sourceType == "" {
		sourceType = lead.SourceType
	}
	if sourceName == "" {
		sourceName = lead.SourceName
	}

	rows, err := s.store.ListActiveRules(ctx, organizationID)
	if err != nil {
		return RouteResult{}, err
	}
	rules := make([]domain.Rule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, row.ToDomain())
	}

	selection := domain.SelectRule(lead, sourceType, sourceName, rules, s.defaultMatchType())

	result := RouteResult{
		LeadID:           leadID,
		Action:           selection.Action,
		ConditionResults: selection.Results,
	}

	if selection.Rule == nil {
		s.log.RoutingDecision(leadID.String(), "", string(domain.ActionNoRule))
		s.appendFlowLog(ctx, organizationID, leadID, nil, string(domain.ActionNoRule), flowRuleData{}, nil)
		return result, nil
	}

	rule := *selection.Rule
	result.RuleID = &rule.ID
	result.RuleName = rule.Name

	if s.cfg.GetCancelOnReroute() {
		if _, err := s.plans.CancelPendingForLead(ctx, organizationID, leadID); err != nil {
			s.log.Error("cancel pending executions failed", "leadId", leadID, "error", err)
		}
	}

	assigned, err := s.distribute(ctx, organizationID, leadID, rule.Target())
	if err != nil {
		return RouteResult{}, err
	}
	result.AssigneeKind = assigned.Kind
	result.AssigneeID = assigned.AssigneeID
	result.GroupID = assigned.GroupID
	result.ClaimExpiresAt = assigned.ClaimExpiresAt

	if err := s.store.TouchRuleCounters(ctx, rule.ID, organizationID); err != nil {
		s.log.Error("rule counter update failed", "ruleId", rule.ID, "error", err)
	}

	if rule.ActionPlanID != nil {
		queued, err := s.plans.Schedule(ctx, organizationID, leadID, *rule.ActionPlanID, assigned.AssigneeID, s.now(), false)
		if err != nil {
			s.log.Error("action plan scheduling failed", "leadId", leadID, "planId", *rule.ActionPlanID, "error", err)
		} else {
			result.ExecutionsQueued = queued
		}
	}

	s.log.RoutingDecision(leadID.String(), rule.ID.String(), string(selection.Action))
	s.appendFlowLog(ctx, organizationID, leadID, &rule.ID, string(selection.Action), flowRuleData{
		RuleID:       &rule.ID,
		RuleName:     rule.Name,
		Priority:     rule.Priority,
		AssigneeKind: assigned.Kind,
		AssigneeID:   assigned.AssigneeID,
		GroupID:      assigned.GroupID,
	}, selection.Results)

	s.bus.Publish(ctx, events.LeadRouted{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       leadID,
		TenantID:     organizationID,
		RuleID:       &rule.ID,
		Action:       string(selection.Action),
		AssigneeKind: assigned.Kind,
		AssigneeID:   assigned.AssigneeID,
	})

	return result, nil
}

// FlowLogs returns a lead's routing history, newest first.
func (s *Service) FlowLogs(ctx context.Context, organizationID, leadID uuid.UUID, limit int) ([]repository.FlowLogEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListFlowLogs(ctx, leadID, organizationID, limit)
}

func (s *Service) defaultMatchType() domain.MatchType {
	if s.cfg.GetDefaultMatchType() == string(domain.MatchAny) {
		return domain.MatchAny
	}
	return domain.MatchAll
}

// appendFlowLog writes a decision record. The flow log is an audit trail, not
// part of the routing transaction; failures are logged and swallowed.
func (s *Service) appendFlowLog(ctx context.Context, organizationID, leadID uuid.UUID, ruleID *uuid.UUID, action string, data flowRuleData, results []domain.ConditionResult) {
	ruleData, err := json.Marshal(data)
	if err != nil {
		s.log.Error("flow log rule data marshal failed", "leadId", leadID, "error", err)
		return
	}
	var conditionsMet []byte
	if results != nil {
		conditionsMet, err = json.Marshal(results)
		if err != nil {
			s.log.Error("flow log conditions marshal failed", "leadId", leadID, "error", err)
			return
		}
	}
	if _, err := s.store.InsertFlowLog(ctx, repository.InsertFlowLogParams{
		OrganizationID: organizationID,
		LeadID:         leadID,
		RuleID:         ruleID,
		Action:         action,
		RuleData:       ruleData,
		ConditionsMet:  conditionsMet,
	}); err != nil {
		s.log.Error("flow log append failed", "leadId", leadID, "action", action, "error", err)
	}
}
