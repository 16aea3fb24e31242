// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"realty_crm_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// NewInMemoryBus creates a new in-memory event bus.
var NewInMemoryBus = events.NewInMemoryBus

// =============================================================================
// Contacts Domain Events
// =============================================================================

// LeadCreated is published when a new lead (person) enters the system.
type LeadCreated struct {
	BaseEvent
	LeadID     uuid.UUID `json:"leadId"`
	TenantID   uuid.UUID `json:"tenantId"`
	SourceType string    `json:"sourceType,omitempty"`
	SourceName string    `json:"sourceName,omitempty"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
}

func (e LeadCreated) EventName() string { return "contacts.lead.created" }

// =============================================================================
// Routing Domain Events
// =============================================================================

// LeadRouted is published after a routing decision lands a direct assignment.
type LeadRouted struct {
	BaseEvent
	LeadID       uuid.UUID  `json:"leadId"`
	TenantID     uuid.UUID  `json:"tenantId"`
	RuleID       *uuid.UUID `json:"ruleId,omitempty"`
	Action       string     `json:"action"`
	AssigneeKind string     `json:"assigneeKind,omitempty"`
	AssigneeID   *uuid.UUID `json:"assigneeId,omitempty"`
}

func (e LeadRouted) EventName() string { return "routing.lead.routed" }

// LeadBroadcast is published when a lead becomes claimable by a group.
type LeadBroadcast struct {
	BaseEvent
	LeadID         uuid.UUID `json:"leadId"`
	TenantID       uuid.UUID `json:"tenantId"`
	GroupID        uuid.UUID `json:"groupId"`
	ClaimExpiresAt time.Time `json:"claimExpiresAt"`
}

func (e LeadBroadcast) EventName() string { return "routing.lead.broadcast" }

// LeadClaimed is published when a group member wins the claim race.
type LeadClaimed struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	TenantID uuid.UUID `json:"tenantId"`
	UserID   uuid.UUID `json:"userId"`
	GroupID  uuid.UUID `json:"groupId"`
}

func (e LeadClaimed) EventName() string { return "routing.lead.claimed" }

// LeadClaimExpired is published when an unclaimed broadcast window lapses and
// the lead falls back to the group's configured default.
type LeadClaimExpired struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	TenantID uuid.UUID `json:"tenantId"`
	GroupID  uuid.UUID `json:"groupId"`
	Fallback string    `json:"fallback"` // "user", "pond", "group", or "none"
}

func (e LeadClaimExpired) EventName() string { return "routing.lead.claim_expired" }

// =============================================================================
// Action Plan Domain Events
// =============================================================================

// ExecutionDue is published when a scheduled follow-up action becomes due.
// The action-dispatch worker listens for it.
type ExecutionDue struct {
	BaseEvent
	ExecutionID uuid.UUID  `json:"executionId"`
	TenantID    uuid.UUID  `json:"tenantId"`
	LeadID      uuid.UUID  `json:"leadId"`
	StepType    string     `json:"stepType"`
	AssignedTo  *uuid.UUID `json:"assignedTo,omitempty"`
}

func (e ExecutionDue) EventName() string { return "actionplans.execution.due" }

// ExecutionCompleted is published when a due execution has been performed.
type ExecutionCompleted struct {
	BaseEvent
	ExecutionID uuid.UUID `json:"executionId"`
	TenantID    uuid.UUID `json:"tenantId"`
	LeadID      uuid.UUID `json:"leadId"`
}

func (e ExecutionCompleted) EventName() string { return "actionplans.execution.completed" }
