package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FlowLogEntry is one append-only record of a routing decision. Seq gives a
// global, gap-tolerant ordering; per-lead history sorts by it.
type FlowLogEntry struct {
	ID             uuid.UUID
	Seq            int64
	OrganizationID uuid.UUID
	LeadID         uuid.UUID
	RuleID         *uuid.UUID
	Action         string
	RuleData       json.RawMessage
	ConditionsMet  json.RawMessage
	CreatedAt      time.Time
}

type InsertFlowLogParams struct {
	OrganizationID uuid.UUID
	LeadID         uuid.UUID
	RuleID         *uuid.UUID
	Action         string
	RuleData       json.RawMessage
	ConditionsMet  json.RawMessage
}

// InsertFlowLog appends a decision record. Rows are never updated or deleted.
func (r *Repository) InsertFlowLog(ctx context.Context, params InsertFlowLogParams) (FlowLogEntry, error) {
	entry := FlowLogEntry{
		OrganizationID: params.OrganizationID,
		LeadID:         params.LeadID,
		RuleID:         params.RuleID,
		Action:         params.Action,
		RuleData:       params.RuleData,
		ConditionsMet:  params.ConditionsMet,
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO lead_flow_logs (organization_id, lead_id, rule_id, action, rule_data, conditions_met)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, seq, created_at
	`, params.OrganizationID, params.LeadID, params.RuleID, params.Action, params.RuleData, params.ConditionsMet).
		Scan(&entry.ID, &entry.Seq, &entry.CreatedAt)
	return entry, err
}

// ListFlowLogs returns a lead's routing history, newest first.
func (r *Repository) ListFlowLogs(ctx context.Context, leadID uuid.UUID, organizationID uuid.UUID, limit int) ([]FlowLogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, seq, organization_id, lead_id, rule_id, action, rule_data, conditions_met, created_at
		FROM lead_flow_logs
		WHERE lead_id = $1 AND organization_id = $2
		ORDER BY seq DESC
		LIMIT $3
	`, leadID, organizationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]FlowLogEntry, 0)
	for rows.Next() {
		var entry FlowLogEntry
		if err := rows.Scan(
			&entry.ID, &entry.Seq, &entry.OrganizationID, &entry.LeadID, &entry.RuleID,
			&entry.Action, &entry.RuleData, &entry.ConditionsMet, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
