// Package ports declares the routing module's outbound dependencies. The
// implementations live in actionplans (plan scheduling) and scheduler (claim
// expiry tasks); routing only sees these interfaces.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PlanScheduler materializes an action plan into scheduled executions for a
// lead. Schedule returns the number of executions created; duplicates for a
// (lead, step) pair are suppressed unless force is set.
type PlanScheduler interface {
	Schedule(ctx context.Context, organizationID, leadID, planID uuid.UUID, assignedTo *uuid.UUID, anchor time.Time, force bool) (int, error)
	CancelPendingForLead(ctx context.Context, organizationID, leadID uuid.UUID) (int, error)
}

// ClaimExpiryScheduler arranges for a lead's claim window to be resolved at
// its deadline. A periodic sweep backstops lost tasks, so enqueue failures
// are logged rather than fatal.
type ClaimExpiryScheduler interface {
	ScheduleClaimExpiry(ctx context.Context, organizationID, leadID, groupID uuid.UUID, runAt time.Time) error
}
