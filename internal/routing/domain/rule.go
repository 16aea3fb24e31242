package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action describes the outcome of a routing pass for the flow log.
type Action string

const (
	// ActionMatched means a source-matching rule's conditions passed.
	ActionMatched Action = "matched"
	// ActionDefaulted means the tenant's default rule was applied.
	ActionDefaulted Action = "defaulted"
	// ActionNoRule means no rule applied; the lead stays unrouted.
	ActionNoRule Action = "no_rule"
)

// Rule is a prioritized, conditionally matched routing policy.
type Rule struct {
	ID               uuid.UUID
	Name             string
	SourceType       string
	SourceName       string
	Priority         int
	IsActive         bool
	IsDefault        bool
	MatchType        MatchType
	AssignedAgentID  *uuid.UUID
	AssignedLenderID *uuid.UUID
	GroupID          *uuid.UUID
	PondID           *uuid.UUID
	ActionPlanID     *uuid.UUID
	CreatedAt        time.Time
	Conditions       []Condition
}

// MatchesSource reports whether the rule's source key matches the lead's
// origin. An empty source field acts as a wildcard, but a rule must declare
// at least one source field to source-match; catch-alls belong to defaults.
func (r Rule) MatchesSource(sourceType, sourceName string) bool {
	if r.SourceType != "" && !strings.EqualFold(r.SourceType, sourceType) {
		return false
	}
	if r.SourceName != "" && !strings.EqualFold(r.SourceName, sourceName) {
		return false
	}
	return r.SourceType != "" || r.SourceName != ""
}

// Selection is the result of evaluating a tenant's rules against one lead.
type Selection struct {
	Rule    *Rule
	Action  Action
	Results []ConditionResult
}

// SelectRule picks the single rule to apply to a lead.
//
// Candidates are the tenant's active rules whose source matches the lead's
// origin or which are marked default, ordered by priority ascending with
// created_at then ID as deterministic tie-breaks. The first candidate whose
// conditions pass wins; rules without conditions match unconditionally. If
// nothing passes, the best-ranked active default rule applies unconditionally.
// defaultMatch supplies the match type for rules that do not declare one.
func SelectRule(lead Snapshot, sourceType, sourceName string, rules []Rule, defaultMatch MatchType) Selection {
	candidates := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		if rule.MatchesSource(sourceType, sourceName) || rule.IsDefault {
			candidates = append(candidates, rule)
		}
	}
	orderRules(candidates)

	for i := range candidates {
		rule := candidates[i]
		matchType := rule.MatchType
		if matchType != MatchAll && matchType != MatchAny {
			matchType = defaultMatch
		}
		passed, results := Evaluate(lead, matchType, rule.Conditions)
		if !passed {
			continue
		}
		action := ActionMatched
		if !rule.MatchesSource(sourceType, sourceName) {
			action = ActionDefaulted
		}
		return Selection{Rule: &candidates[i], Action: action, Results: results}
	}

	// No candidate matched: the best-ranked active default applies without
	// re-evaluating its conditions.
	defaults := make([]Rule, 0)
	for _, rule := range rules {
		if rule.IsActive && rule.IsDefault {
			defaults = append(defaults, rule)
		}
	}
	if len(defaults) > 0 {
		orderRules(defaults)
		fallback := defaults[0]
		return Selection{Rule: &fallback, Action: ActionDefaulted}
	}

	return Selection{Action: ActionNoRule}
}

func orderRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID.String() < rules[j].ID.String()
	})
}
