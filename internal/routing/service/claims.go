package service

import (
	"context"
	"errors"

	"realty_crm_backend/internal/events"
	"realty_crm_backend/internal/routing/repository"
	"realty_crm_backend/platform/apperr"

	"github.com/google/uuid"
)

const (
	actionClaimed      = "claimed"
	actionClaimExpired = "claim_expired"
)

// Claim takes an available lead for a group member. The database performs the
// actual race arbitration with a conditional update; the pre-checks here only
// exist to return precise errors to losers and non-members.
func (s *Service) Claim(ctx context.Context, organizationID, leadID, userID uuid.UUID) (repository.RoutingState, error) {
	state, err := s.store.GetRoutingState(ctx, leadID, organizationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.RoutingState{}, apperr.NotFound("lead not found")
		}
		return repository.RoutingState{}, err
	}

	if state.AvailableForGroupID == nil {
		if state.AssignedUserID != nil {
			s.log.ClaimConflict(leadID.String(), userID.String(), "already_claimed")
			return repository.RoutingState{}, apperr.Conflict("lead has already been claimed")
		}
		return repository.RoutingState{}, apperr.BadRequest("lead is not open for claiming")
	}
	if state.ClaimExpiresAt == nil || !state.ClaimExpiresAt.After(s.now()) {
		s.log.ClaimConflict(leadID.String(), userID.String(), "window_expired")
		return repository.RoutingState{}, apperr.Gone("claim window has expired")
	}

	groupID := *state.AvailableForGroupID
	isMember, err := s.store.IsMember(ctx, groupID, userID)
	if err != nil {
		return repository.RoutingState{}, err
	}
	if !isMember {
		return repository.RoutingState{}, apperr.Forbidden("only members of the offered group may claim this lead")
	}

	claimed, err := s.store.ClaimLead(ctx, leadID, organizationID, userID)
	if err != nil {
		return repository.RoutingState{}, err
	}
	if !claimed {
		// Lost the race or the window lapsed between read and write.
		current, err := s.store.GetRoutingState(ctx, leadID, organizationID)
		if err != nil {
			return repository.RoutingState{}, err
		}
		if current.AvailableForGroupID != nil && current.ClaimExpiresAt != nil && !current.ClaimExpiresAt.After(s.now()) {
			s.log.ClaimConflict(leadID.String(), userID.String(), "window_expired")
			return repository.RoutingState{}, apperr.Gone("claim window has expired")
		}
		s.log.ClaimConflict(leadID.String(), userID.String(), "lost_race")
		return repository.RoutingState{}, apperr.Conflict("lead has already been claimed")
	}

	s.appendFlowLog(ctx, organizationID, leadID, nil, actionClaimed, flowRuleData{
		AssigneeKind: "agent",
		AssigneeID:   &userID,
		GroupID:      &groupID,
	}, nil)

	s.bus.Publish(ctx, events.LeadClaimed{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		TenantID:  organizationID,
		UserID:    userID,
		GroupID:   groupID,
	})

	return s.store.GetRoutingState(ctx, leadID, organizationID)
}

// ExpireClaim resolves one lapsed claim window using the group's fallback
// chain: default user, then default pond, then re-broadcast to a default
// group, then plain release. Every resolution write re-checks that the lead
// is still expired and still offered to the same group, so a concurrent claim
// or re-route always wins and the expiry becomes a no-op.
func (s *Service) ExpireClaim(ctx context.Context, claim repository.ExpiredClaim) (bool, error) {
	group, err := s.store.GetGroup(ctx, claim.GroupID, claim.OrganizationID)
	if err != nil {
		if errors.Is(err, repository.ErrGroupNotFound) {
			// Group deleted while the window was open; just release the lead.
			resolved, err := s.store.ResolveExpiredToNone(ctx, claim)
			if err != nil || !resolved {
				return false, err
			}
			s.recordExpiry(ctx, claim, "none", nil)
			return true, nil
		}
		return false, err
	}

	var (
		resolved bool
		fallback string
		targetID *uuid.UUID
	)

	switch {
	case group.DefaultUserID != nil:
		fallback = "user"
		targetID = group.DefaultUserID
		resolved, err = s.store.ResolveExpiredToUser(ctx, claim, *group.DefaultUserID)

	case group.DefaultPondID != nil:
		fallback = "pond"
		targetID = group.DefaultPondID
		resolved, err = s.store.ResolveExpiredToPond(ctx, claim, *group.DefaultPondID)

	case group.DefaultGroupID != nil:
		fallback = "group"
		targetID = group.DefaultGroupID
		var next repository.Group
		next, err = s.store.GetGroup(ctx, *group.DefaultGroupID, claim.OrganizationID)
		if err != nil {
			return false, err
		}
		expiresAt := s.now().Add(next.ClaimWindow())
		resolved, err = s.store.ResolveExpiredToGroup(ctx, claim, next.ID, expiresAt)
		if err == nil && resolved {
			if err := s.expiry.ScheduleClaimExpiry(ctx, claim.OrganizationID, claim.LeadID, next.ID, expiresAt); err != nil {
				s.log.Error("claim expiry scheduling failed", "leadId", claim.LeadID, "groupId", next.ID, "error", err)
			}
			s.bus.Publish(ctx, events.LeadBroadcast{
				BaseEvent:      events.NewBaseEvent(),
				LeadID:         claim.LeadID,
				TenantID:       claim.OrganizationID,
				GroupID:        next.ID,
				ClaimExpiresAt: expiresAt,
			})
		}

	default:
		fallback = "none"
		resolved, err = s.store.ResolveExpiredToNone(ctx, claim)
	}

	if err != nil {
		return false, err
	}
	if !resolved {
		// Someone claimed or re-routed the lead first.
		return false, nil
	}

	s.recordExpiry(ctx, claim, fallback, targetID)
	return true, nil
}

func (s *Service) recordExpiry(ctx context.Context, claim repository.ExpiredClaim, fallback string, targetID *uuid.UUID) {
	groupID := claim.GroupID
	s.appendFlowLog(ctx, claim.OrganizationID, claim.LeadID, nil, actionClaimExpired, flowRuleData{
		GroupID:    &groupID,
		Fallback:   fallback,
		AssigneeID: targetID,
	}, nil)

	s.bus.Publish(ctx, events.LeadClaimExpired{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    claim.LeadID,
		TenantID:  claim.OrganizationID,
		GroupID:   claim.GroupID,
		Fallback:  fallback,
	})
}

// SweepExpiredClaims resolves up to batch lapsed claim windows. Runs
// periodically as a safety net behind the per-lead expiry tasks; both paths
// share the same conditional writes, so double resolution is harmless.
func (s *Service) SweepExpiredClaims(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	claims, err := s.store.ListExpiredClaims(ctx, batch)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, claim := range claims {
		ok, err := s.ExpireClaim(ctx, claim)
		if err != nil {
			s.log.Error("claim expiry failed", "leadId", claim.LeadID, "error", err)
			continue
		}
		if ok {
			resolved++
		}
	}
	return resolved, nil
}
