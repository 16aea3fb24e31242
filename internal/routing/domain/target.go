package domain

import "github.com/google/uuid"

// TargetKind identifies what a rule routes leads to.
type TargetKind string

const (
	TargetAgent  TargetKind = "agent"
	TargetLender TargetKind = "lender"
	TargetGroup  TargetKind = "group"
	TargetPond   TargetKind = "pond"
	TargetNone   TargetKind = "none"
)

// Target is the resolved routing destination of a rule. The data model does
// not enforce exclusivity between the four target columns, so precedence is
// resolved exactly once here: agent > lender > group > pond.
type Target struct {
	Kind TargetKind
	ID   uuid.UUID
}

// Target resolves the rule's destination.
func (r Rule) Target() Target {
	switch {
	case r.AssignedAgentID != nil:
		return Target{Kind: TargetAgent, ID: *r.AssignedAgentID}
	case r.AssignedLenderID != nil:
		return Target{Kind: TargetLender, ID: *r.AssignedLenderID}
	case r.GroupID != nil:
		return Target{Kind: TargetGroup, ID: *r.GroupID}
	case r.PondID != nil:
		return Target{Kind: TargetPond, ID: *r.PondID}
	default:
		return Target{Kind: TargetNone}
	}
}
