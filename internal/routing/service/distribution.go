package service

import (
	"context"
	"time"

	"realty_crm_backend/internal/events"
	"realty_crm_backend/internal/routing/domain"
	"realty_crm_backend/internal/routing/repository"

	"github.com/google/uuid"
)

// assignment is the concrete outcome of distributing a lead to a rule target.
type assignment struct {
	// Kind is "agent", "lender", "pond", "group" (claimable broadcast), or "none".
	Kind           string
	AssigneeID     *uuid.UUID
	GroupID        *uuid.UUID
	ClaimExpiresAt *time.Time
}

// distribute writes the lead's assignment for the rule's resolved target.
//
// Direct targets write their assignment field immediately. Group targets
// depend on the group's distribution mode: round_robin advances the cursor
// and assigns the member it lands on; broadcast opens a claim window instead
// of assigning anyone. A round_robin group with no members degrades to
// broadcast so the lead stays visible rather than silently unrouted.
func (s *Service) distribute(ctx context.Context, organizationID, leadID uuid.UUID, target domain.Target) (assignment, error) {
	switch target.Kind {
	case domain.TargetAgent:
		if err := s.store.AssignAgent(ctx, leadID, organizationID, target.ID); err != nil {
			return assignment{}, err
		}
		id := target.ID
		return assignment{Kind: "agent", AssigneeID: &id}, nil

	case domain.TargetLender:
		if err := s.store.AssignLender(ctx, leadID, organizationID, target.ID); err != nil {
			return assignment{}, err
		}
		id := target.ID
		return assignment{Kind: "lender", AssigneeID: &id}, nil

	case domain.TargetPond:
		pond, err := s.store.GetPond(ctx, target.ID, organizationID)
		if err != nil {
			return assignment{}, err
		}
		if err := s.store.AssignPond(ctx, leadID, organizationID, pond.ID); err != nil {
			return assignment{}, err
		}
		owner := pond.OwnerUserID
		return assignment{Kind: "pond", AssigneeID: &owner}, nil

	case domain.TargetGroup:
		return s.distributeToGroup(ctx, organizationID, leadID, target.ID)

	default:
		return assignment{Kind: "none"}, nil
	}
}

func (s *Service) distributeToGroup(ctx context.Context, organizationID, leadID, groupID uuid.UUID) (assignment, error) {
	group, err := s.store.GetGroup(ctx, groupID, organizationID)
	if err != nil {
		return assignment{}, err
	}

	if group.Distribution == repository.DistributionRoundRobin {
		memberID, err := s.store.NextRoundRobinMember(ctx, group.ID, organizationID)
		if err != nil {
			return assignment{}, err
		}
		if memberID != nil {
			if err := s.store.AssignAgent(ctx, leadID, organizationID, *memberID); err != nil {
				return assignment{}, err
			}
			gid := group.ID
			return assignment{Kind: "agent", AssigneeID: memberID, GroupID: &gid}, nil
		}
		// Empty roster: fall through to broadcast.
	}

	expiresAt := s.now().Add(group.ClaimWindow())
	if err := s.store.MarkAvailableForGroup(ctx, leadID, organizationID, group.ID, expiresAt); err != nil {
		return assignment{}, err
	}

	if err := s.expiry.ScheduleClaimExpiry(ctx, organizationID, leadID, group.ID, expiresAt); err != nil {
		// The periodic sweep will still resolve the window.
		s.log.Error("claim expiry scheduling failed", "leadId", leadID, "groupId", group.ID, "error", err)
	}

	s.bus.Publish(ctx, events.LeadBroadcast{
		BaseEvent:      events.NewBaseEvent(),
		LeadID:         leadID,
		TenantID:       organizationID,
		GroupID:        group.ID,
		ClaimExpiresAt: expiresAt,
	})

	gid := group.ID
	return assignment{Kind: "group", GroupID: &gid, ClaimExpiresAt: &expiresAt}, nil
}
