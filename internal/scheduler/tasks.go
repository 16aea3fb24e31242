package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskClaimExpiry = "routing.claim.expiry"

type ClaimExpiryPayload struct {
	LeadID         string `json:"leadId"`
	OrganizationID string `json:"organizationId"`
	GroupID        string `json:"groupId"`
}

func NewClaimExpiryTask(payload ClaimExpiryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskClaimExpiry, data), nil
}

func ParseClaimExpiryPayload(task *asynq.Task) (ClaimExpiryPayload, error) {
	var payload ClaimExpiryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ClaimExpiryPayload{}, err
	}
	return payload, nil
}
