// Package domain holds the pure lead-routing logic: condition evaluation,
// rule selection, and target resolution. Nothing in this package touches
// the database, the clock, or any other side effect, so every function is
// safe to call repeatedly for previews and audits.
package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MatchType declares how a rule's conditions combine.
type MatchType string

const (
	// MatchAll requires every condition to pass.
	MatchAll MatchType = "all"
	// MatchAny requires at least one condition to pass.
	MatchAny MatchType = "any"
)

// Operator is a single comparison applied to a lead field.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpIsEmpty     Operator = "is_empty"
	OpIsNotEmpty  Operator = "is_not_empty"
)

// Condition is one field/operator/value test within a rule.
type Condition struct {
	ID        uuid.UUID
	Field     string
	Operator  Operator
	Value     string
	SortOrder int
}

// ConditionResult records the outcome of one condition for the flow log.
type ConditionResult struct {
	ConditionID uuid.UUID `json:"conditionId"`
	Field       string    `json:"field"`
	Operator    Operator  `json:"operator"`
	Value       string    `json:"value"`
	Actual      string    `json:"actual"`
	Passed      bool      `json:"passed"`
}

// Snapshot is the routable view of a lead at evaluation time.
type Snapshot struct {
	ID           uuid.UUID
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	SourceType   string
	SourceName   string
	CreatedAt    time.Time
	CustomFields map[string]string
}

// ResolveField looks up a condition field on the lead: direct attributes
// first, then custom fields by name. Unresolved fields report ok=false and
// are treated as empty by the evaluator.
func (s Snapshot) ResolveField(name string) (string, bool) {
	switch normalizeFieldName(name) {
	case "first_name", "firstname":
		return s.FirstName, true
	case "last_name", "lastname":
		return s.LastName, true
	case "email":
		return s.Email, true
	case "phone":
		return s.Phone, true
	case "source_type", "sourcetype":
		return s.SourceType, true
	case "source_name", "sourcename", "source":
		return s.SourceName, true
	}

	if s.CustomFields != nil {
		if value, ok := s.CustomFields[name]; ok {
			return value, true
		}
		if value, ok := s.CustomFields[normalizeFieldName(name)]; ok {
			return value, true
		}
	}

	return "", false
}

// Evaluate applies the rule's conditions to the lead in sort_order (tie-broken
// by condition ID for reproducible audits) and combines them per matchType.
// An empty condition list always passes.
func Evaluate(lead Snapshot, matchType MatchType, conditions []Condition) (bool, []ConditionResult) {
	if len(conditions) == 0 {
		return true, nil
	}

	ordered := make([]Condition, len(conditions))
	copy(ordered, conditions)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].SortOrder != ordered[j].SortOrder {
			return ordered[i].SortOrder < ordered[j].SortOrder
		}
		return ordered[i].ID.String() < ordered[j].ID.String()
	})

	results := make([]ConditionResult, 0, len(ordered))
	passedCount := 0
	for _, cond := range ordered {
		actual, _ := lead.ResolveField(cond.Field)
		passed := evalCondition(cond, actual)
		if strings.TrimSpace(cond.Field) == "" {
			// Malformed condition: degrade to false, never abort evaluation.
			passed = false
		}
		if passed {
			passedCount++
		}
		results = append(results, ConditionResult{
			ConditionID: cond.ID,
			Field:       cond.Field,
			Operator:    cond.Operator,
			Value:       cond.Value,
			Actual:      actual,
			Passed:      passed,
		})
	}

	if matchType == MatchAny {
		return passedCount > 0, results
	}
	return passedCount == len(ordered), results
}

func evalCondition(cond Condition, actual string) bool {
	switch cond.Operator {
	case OpEquals:
		return valuesEqual(actual, cond.Value)
	case OpNotEquals:
		return !valuesEqual(actual, cond.Value)
	case OpContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(cond.Value))
	case OpNotContains:
		return !strings.Contains(strings.ToLower(actual), strings.ToLower(cond.Value))
	case OpGreaterThan:
		left, right, ok := coerceNumbers(actual, cond.Value)
		return ok && left > right
	case OpLessThan:
		left, right, ok := coerceNumbers(actual, cond.Value)
		return ok && left < right
	case OpIsEmpty:
		return strings.TrimSpace(actual) == ""
	case OpIsNotEmpty:
		return strings.TrimSpace(actual) != ""
	default:
		// Unknown operator: fail closed.
		return false
	}
}

// valuesEqual compares numerically when both sides coerce to numbers,
// otherwise falls back to case-insensitive string equality.
func valuesEqual(actual, expected string) bool {
	if left, right, ok := coerceNumbers(actual, expected); ok {
		return left == right
	}
	return strings.EqualFold(strings.TrimSpace(actual), strings.TrimSpace(expected))
}

func coerceNumbers(left, right string) (float64, float64, bool) {
	l, errL := strconv.ParseFloat(strings.TrimSpace(left), 64)
	r, errR := strconv.ParseFloat(strings.TrimSpace(right), 64)
	if errL != nil || errR != nil {
		return 0, 0, false
	}
	return l, r, true
}

func normalizeFieldName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}
