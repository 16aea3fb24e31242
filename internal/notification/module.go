// Package notification turns domain events into outbound email. Domain
// modules publish what happened; this module decides who hears about it,
// so they never need to know about SMTP or templates.
package notification

import (
	"context"
	"fmt"
	"strings"

	"realty_crm_backend/internal/email"
	"realty_crm_backend/internal/events"
	"realty_crm_backend/platform/config"
	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MemberReader lists the email addresses of a routing group's members.
type MemberReader interface {
	ListMemberEmails(ctx context.Context, groupID uuid.UUID) ([]string, error)
}

// Module handles notification-related event subscriptions.
type Module struct {
	pool    *pgxpool.Pool
	sender  email.Sender
	cfg     config.NotificationConfig
	log     *logger.Logger
	members MemberReader
}

// New creates a new notification module.
func New(pool *pgxpool.Pool, sender email.Sender, cfg config.NotificationConfig, log *logger.Logger) *Module {
	return &Module{pool: pool, sender: sender, cfg: cfg, log: log}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "notification" }

// SetMemberReader injects the reader used to fan broadcasts out to a group.
func (m *Module) SetMemberReader(reader MemberReader) { m.members = reader }

// RegisterHandlers subscribes to the domain events this module reacts to.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadBroadcast{}.EventName(), m)
	bus.Subscribe(events.LeadClaimExpired{}.EventName(), m)
	bus.Subscribe(events.ExecutionDue{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadBroadcast:
		return m.handleLeadBroadcast(ctx, e)
	case events.LeadClaimExpired:
		return m.handleLeadClaimExpired(ctx, e)
	case events.ExecutionDue:
		return m.handleExecutionDue(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

func (m *Module) handleLeadBroadcast(ctx context.Context, e events.LeadBroadcast) error {
	if m.members == nil {
		m.log.Debug("member reader not configured, skipping broadcast email", "leadId", e.LeadID)
		return nil
	}
	emails, err := m.members.ListMemberEmails(ctx, e.GroupID)
	if err != nil {
		m.log.Error("failed to list group member emails", "groupId", e.GroupID, "error", err)
		return err
	}
	if len(emails) == 0 {
		return nil
	}

	leadName := m.resolveLeadName(ctx, e.LeadID, e.TenantID)
	groupName := m.resolveGroupName(ctx, e.GroupID, e.TenantID)
	claimURL := m.buildURL("/leads/" + e.LeadID.String())

	for _, toEmail := range emails {
		if err := m.sender.SendLeadBroadcastEmail(ctx, toEmail, leadName, groupName, claimURL); err != nil {
			m.log.Error("failed to send lead broadcast email", "leadId", e.LeadID, "email", toEmail, "error", err)
		}
	}
	m.log.Info("lead broadcast emails sent", "leadId", e.LeadID, "groupId", e.GroupID, "recipients", len(emails))
	return nil
}

func (m *Module) handleLeadClaimExpired(ctx context.Context, e events.LeadClaimExpired) error {
	// Only the user fallback has a single obvious recipient. Pond and group
	// fallbacks surface through their own views, and a group fallback
	// re-broadcasts, which notifies on its own.
	if e.Fallback != "user" {
		return nil
	}

	toEmail := m.resolveFallbackUserEmail(ctx, e.GroupID, e.TenantID)
	if toEmail == "" {
		return nil
	}

	leadName := m.resolveLeadName(ctx, e.LeadID, e.TenantID)
	groupName := m.resolveGroupName(ctx, e.GroupID, e.TenantID)

	if err := m.sender.SendClaimExpiredEmail(ctx, toEmail, leadName, groupName); err != nil {
		m.log.Error("failed to send claim expired email", "leadId", e.LeadID, "email", toEmail, "error", err)
		return err
	}
	m.log.Info("claim expired email sent", "leadId", e.LeadID, "email", toEmail)
	return nil
}

func (m *Module) handleExecutionDue(ctx context.Context, e events.ExecutionDue) error {
	if e.AssignedTo == nil {
		m.log.Debug("execution due with no assignee, skipping email", "executionId", e.ExecutionID)
		return nil
	}

	toEmail := m.resolveUserEmail(ctx, *e.AssignedTo, e.TenantID)
	if toEmail == "" {
		return nil
	}

	leadName := m.resolveLeadName(ctx, e.LeadID, e.TenantID)
	dueAt := e.OccurredAt().Format("Jan 2, 2006 15:04 MST")

	if err := m.sender.SendExecutionDueEmail(ctx, toEmail, leadName, e.StepType, dueAt); err != nil {
		m.log.Error("failed to send execution due email", "executionId", e.ExecutionID, "email", toEmail, "error", err)
		return err
	}
	m.log.Info("execution due email sent", "executionId", e.ExecutionID, "email", toEmail)
	return nil
}

func (m *Module) resolveLeadName(ctx context.Context, leadID, orgID uuid.UUID) string {
	if m.pool == nil || leadID == uuid.Nil {
		return "a new lead"
	}
	var first, last string
	err := m.pool.QueryRow(ctx,
		`SELECT first_name, last_name FROM leads WHERE id = $1 AND organization_id = $2`,
		leadID, orgID,
	).Scan(&first, &last)
	if err != nil {
		return "a new lead"
	}
	name := strings.TrimSpace(first + " " + last)
	if name == "" {
		return "a new lead"
	}
	return name
}

func (m *Module) resolveGroupName(ctx context.Context, groupID, orgID uuid.UUID) string {
	if m.pool == nil || groupID == uuid.Nil {
		return "your team"
	}
	var name string
	if err := m.pool.QueryRow(ctx,
		`SELECT name FROM groups WHERE id = $1 AND organization_id = $2`,
		groupID, orgID,
	).Scan(&name); err != nil {
		return "your team"
	}
	return name
}

func (m *Module) resolveUserEmail(ctx context.Context, userID, orgID uuid.UUID) string {
	if m.pool == nil || userID == uuid.Nil {
		return ""
	}
	var userEmail string
	if err := m.pool.QueryRow(ctx,
		`SELECT email FROM users WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL`,
		userID, orgID,
	).Scan(&userEmail); err != nil {
		m.log.Warn("failed to resolve user email", "userId", userID, "error", err)
		return ""
	}
	return userEmail
}

func (m *Module) resolveFallbackUserEmail(ctx context.Context, groupID, orgID uuid.UUID) string {
	if m.pool == nil {
		return ""
	}
	var userEmail string
	err := m.pool.QueryRow(ctx, `
		SELECT u.email FROM groups g
		JOIN users u ON u.id = g.default_user_id
		WHERE g.id = $1 AND g.organization_id = $2 AND u.deleted_at IS NULL
	`, groupID, orgID).Scan(&userEmail)
	if err != nil {
		return ""
	}
	return userEmail
}

func (m *Module) buildURL(path string) string {
	base := strings.TrimRight(m.cfg.GetAppBaseURL(), "/")
	return fmt.Sprintf("%s%s", base, path)
}
