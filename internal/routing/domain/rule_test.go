package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func ruleFixture(priority int, opts func(*Rule)) Rule {
	rule := Rule{
		ID:         uuid.New(),
		Name:       "rule",
		SourceType: "web",
		SourceName: "contact-form",
		Priority:   priority,
		IsActive:   true,
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if opts != nil {
		opts(&rule)
	}
	return rule
}

func TestSelectRule_PriorityOrdering(t *testing.T) {
	lead := snapshotFixture()
	rules := []Rule{
		ruleFixture(3, nil),
		ruleFixture(1, nil),
		ruleFixture(2, nil),
	}

	selection := SelectRule(lead, "web", "contact-form", rules, MatchAll)
	if selection.Rule == nil {
		t.Fatal("expected a rule to be selected")
	}
	if selection.Rule.Priority != 1 {
		t.Fatalf("expected priority 1 rule, got %d", selection.Rule.Priority)
	}
	if selection.Action != ActionMatched {
		t.Fatalf("expected matched, got %s", selection.Action)
	}
}

func TestSelectRule_SkipsFailingConditions(t *testing.T) {
	lead := snapshotFixture()
	rules := []Rule{
		ruleFixture(1, func(r *Rule) {
			r.Conditions = []Condition{{Field: "email", Operator: OpContains, Value: "competitor.com"}}
		}),
		ruleFixture(2, nil),
	}

	selection := SelectRule(lead, "web", "contact-form", rules, MatchAll)
	if selection.Rule == nil || selection.Rule.Priority != 2 {
		t.Fatal("expected the priority 2 rule after the first rule's conditions failed")
	}
}

func TestSelectRule_DefaultFallback(t *testing.T) {
	lead := snapshotFixture()
	defaultRule := ruleFixture(50, func(r *Rule) {
		r.SourceType = ""
		r.SourceName = ""
		r.IsDefault = true
	})
	rules := []Rule{
		ruleFixture(1, func(r *Rule) { r.SourceName = "zillow-import" }),
		defaultRule,
	}

	selection := SelectRule(lead, "web", "contact-form", rules, MatchAll)
	if selection.Rule == nil || selection.Rule.ID != defaultRule.ID {
		t.Fatal("expected the default rule")
	}
	if selection.Action != ActionDefaulted {
		t.Fatalf("expected defaulted, got %s", selection.Action)
	}
}

func TestSelectRule_Unrouted(t *testing.T) {
	lead := snapshotFixture()
	rules := []Rule{
		ruleFixture(1, func(r *Rule) { r.SourceType = "import" }),
	}

	selection := SelectRule(lead, "web", "contact-form", rules, MatchAll)
	if selection.Rule != nil {
		t.Fatal("expected no rule")
	}
	if selection.Action != ActionNoRule {
		t.Fatalf("expected no_rule, got %s", selection.Action)
	}
}

func TestSelectRule_InactiveRulesIgnored(t *testing.T) {
	lead := snapshotFixture()
	rules := []Rule{
		ruleFixture(1, func(r *Rule) { r.IsActive = false }),
	}

	selection := SelectRule(lead, "web", "contact-form", rules, MatchAll)
	if selection.Action != ActionNoRule {
		t.Fatalf("expected no_rule for inactive-only tenant, got %s", selection.Action)
	}
}

func TestSelectRule_DefaultRuleWithFailingConditionsStillFallsBack(t *testing.T) {
	lead := snapshotFixture()
	defaultRule := ruleFixture(10, func(r *Rule) {
		r.SourceType = ""
		r.SourceName = ""
		r.IsDefault = true
		r.Conditions = []Condition{{Field: "email", Operator: OpContains, Value: "nowhere.example"}}
	})

	selection := SelectRule(lead, "web", "contact-form", []Rule{defaultRule}, MatchAll)
	if selection.Rule == nil || selection.Rule.ID != defaultRule.ID {
		t.Fatal("expected unconditional default fallback")
	}
	if selection.Action != ActionDefaulted {
		t.Fatalf("expected defaulted, got %s", selection.Action)
	}
}

func TestSelectRule_TieBreakByCreatedAt(t *testing.T) {
	lead := snapshotFixture()
	older := ruleFixture(1, func(r *Rule) {
		r.CreatedAt = time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	})
	newer := ruleFixture(1, func(r *Rule) {
		r.CreatedAt = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	})

	selection := SelectRule(lead, "web", "contact-form", []Rule{newer, older}, MatchAll)
	if selection.Rule == nil || selection.Rule.ID != older.ID {
		t.Fatal("expected the earlier-created rule to win the priority tie")
	}
}

func TestRuleTarget_Precedence(t *testing.T) {
	agent := uuid.New()
	lender := uuid.New()
	group := uuid.New()
	pond := uuid.New()

	rule := Rule{AssignedAgentID: &agent, AssignedLenderID: &lender, GroupID: &group, PondID: &pond}
	if target := rule.Target(); target.Kind != TargetAgent || target.ID != agent {
		t.Fatalf("expected agent target, got %s", target.Kind)
	}

	rule.AssignedAgentID = nil
	if target := rule.Target(); target.Kind != TargetLender {
		t.Fatalf("expected lender target, got %s", target.Kind)
	}

	rule.AssignedLenderID = nil
	if target := rule.Target(); target.Kind != TargetGroup {
		t.Fatalf("expected group target, got %s", target.Kind)
	}

	rule.GroupID = nil
	if target := rule.Target(); target.Kind != TargetPond {
		t.Fatalf("expected pond target, got %s", target.Kind)
	}

	rule.PondID = nil
	if target := rule.Target(); target.Kind != TargetNone {
		t.Fatalf("expected no target, got %s", target.Kind)
	}
}
