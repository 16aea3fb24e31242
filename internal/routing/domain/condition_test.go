package domain

import (
	"testing"

	"github.com/google/uuid"
)

func snapshotFixture() Snapshot {
	return Snapshot{
		ID:         uuid.New(),
		FirstName:  "Dana",
		LastName:   "Reyes",
		Email:      "dana@example.com",
		Phone:      "+15551234567",
		SourceType: "web",
		SourceName: "contact-form",
		CustomFields: map[string]string{
			"budget":   "450000",
			"timeline": "3 months",
		},
	}
}

func TestEvaluate_Operators(t *testing.T) {
	lead := snapshotFixture()

	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equals case insensitive", Condition{Field: "first_name", Operator: OpEquals, Value: "dana"}, true},
		{"equals mismatch", Condition{Field: "first_name", Operator: OpEquals, Value: "Alex"}, false},
		{"not_equals", Condition{Field: "last_name", Operator: OpNotEquals, Value: "Smith"}, true},
		{"contains case insensitive", Condition{Field: "email", Operator: OpContains, Value: "EXAMPLE.COM"}, true},
		{"not_contains", Condition{Field: "email", Operator: OpNotContains, Value: "gmail"}, true},
		{"greater_than custom field", Condition{Field: "budget", Operator: OpGreaterThan, Value: "400000"}, true},
		{"less_than fails", Condition{Field: "budget", Operator: OpLessThan, Value: "400000"}, false},
		{"numeric coercion fails closed", Condition{Field: "timeline", Operator: OpGreaterThan, Value: "2"}, false},
		{"is_empty on unresolved field", Condition{Field: "nonexistent", Operator: OpIsEmpty}, true},
		{"is_not_empty", Condition{Field: "phone", Operator: OpIsNotEmpty}, true},
		{"unknown operator fails closed", Condition{Field: "email", Operator: Operator("regex")}, false},
		{"missing field name fails closed", Condition{Field: "", Operator: OpIsEmpty}, false},
	}

	for _, tc := range cases {
		passed, results := Evaluate(lead, MatchAll, []Condition{tc.cond})
		if passed != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, passed)
		}
		if len(results) != 1 {
			t.Fatalf("%s: expected 1 result, got %d", tc.name, len(results))
		}
		if results[0].Passed != tc.want {
			t.Errorf("%s: result record disagrees with outcome", tc.name)
		}
	}
}

func TestEvaluate_MatchTypes(t *testing.T) {
	lead := snapshotFixture()
	conditions := []Condition{
		{Field: "email", Operator: OpContains, Value: "example.com", SortOrder: 0},
		{Field: "first_name", Operator: OpEquals, Value: "Alex", SortOrder: 1},
	}

	if passed, _ := Evaluate(lead, MatchAll, conditions); passed {
		t.Fatal("all: expected failure when one condition fails")
	}
	if passed, _ := Evaluate(lead, MatchAny, conditions); !passed {
		t.Fatal("any: expected success when one condition passes")
	}
}

func TestEvaluate_EmptyConditionsPass(t *testing.T) {
	passed, results := Evaluate(snapshotFixture(), MatchAll, nil)
	if !passed {
		t.Fatal("expected empty condition list to pass")
	}
	if results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	lead := snapshotFixture()
	conditions := []Condition{
		{ID: uuid.New(), Field: "budget", Operator: OpGreaterThan, Value: "100000", SortOrder: 2},
		{ID: uuid.New(), Field: "email", Operator: OpContains, Value: "example", SortOrder: 1},
	}

	first, firstResults := Evaluate(lead, MatchAll, conditions)
	second, secondResults := Evaluate(lead, MatchAll, conditions)

	if first != second {
		t.Fatal("evaluation is not idempotent")
	}
	if len(firstResults) != len(secondResults) {
		t.Fatal("result lengths differ between runs")
	}
	for i := range firstResults {
		if firstResults[i] != secondResults[i] {
			t.Fatalf("result %d differs between runs", i)
		}
	}
	// Input order must be untouched.
	if conditions[0].SortOrder != 2 {
		t.Fatal("evaluate mutated its input")
	}
}

func TestEvaluate_ResultsFollowSortOrder(t *testing.T) {
	lead := snapshotFixture()
	conditions := []Condition{
		{ID: uuid.New(), Field: "phone", Operator: OpIsNotEmpty, SortOrder: 5},
		{ID: uuid.New(), Field: "email", Operator: OpIsNotEmpty, SortOrder: 1},
	}

	_, results := Evaluate(lead, MatchAll, conditions)
	if results[0].Field != "email" || results[1].Field != "phone" {
		t.Fatalf("expected sort_order evaluation, got %s then %s", results[0].Field, results[1].Field)
	}
}
