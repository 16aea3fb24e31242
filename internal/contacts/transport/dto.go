// Package transport defines request and response shapes for the contacts API.
package transport

import (
	"time"

	"realty_crm_backend/internal/contacts/repository"

	"github.com/google/uuid"
)

type CreateLeadRequest struct {
	FirstName    string            `json:"firstName" validate:"max=100"`
	LastName     string            `json:"lastName" validate:"max=100"`
	Email        string            `json:"email" validate:"omitempty,email"`
	Phone        string            `json:"phone" validate:"max=32"`
	SourceType   string            `json:"sourceType" validate:"max=100"`
	SourceName   string            `json:"sourceName" validate:"max=100"`
	CustomFields map[string]string `json:"customFields"`
}

type UpdateLeadRequest struct {
	FirstName    *string           `json:"firstName" validate:"omitempty,max=100"`
	LastName     *string           `json:"lastName" validate:"omitempty,max=100"`
	Email        *string           `json:"email" validate:"omitempty,email"`
	Phone        *string           `json:"phone" validate:"omitempty,max=32"`
	SourceType   *string           `json:"sourceType" validate:"omitempty,max=100"`
	SourceName   *string           `json:"sourceName" validate:"omitempty,max=100"`
	CustomFields map[string]string `json:"customFields"`
}

type ListLeadsRequest struct {
	AssignedUserID      *uuid.UUID `form:"assignedUserId"`
	AssignedPondID      *uuid.UUID `form:"pondId"`
	AvailableForGroupID *uuid.UUID `form:"availableForGroupId"`
	SourceType          *string    `form:"sourceType"`
	Search              string     `form:"search"`
	Limit               int        `form:"limit"`
	Offset              int        `form:"offset"`
}

type LeadResponse struct {
	ID                  uuid.UUID         `json:"id"`
	FirstName           string            `json:"firstName"`
	LastName            string            `json:"lastName"`
	Email               *string           `json:"email,omitempty"`
	Phone               *string           `json:"phone,omitempty"`
	SourceType          *string           `json:"sourceType,omitempty"`
	SourceName          *string           `json:"sourceName,omitempty"`
	CustomFields        map[string]string `json:"customFields"`
	AssignedUserID      *uuid.UUID        `json:"assignedUserId,omitempty"`
	AssignedLenderID    *uuid.UUID        `json:"assignedLenderId,omitempty"`
	AssignedPondID      *uuid.UUID        `json:"assignedPondId,omitempty"`
	AvailableForGroupID *uuid.UUID        `json:"availableForGroupId,omitempty"`
	ClaimExpiresAt      *time.Time        `json:"claimExpiresAt,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

func ToLeadResponse(lead repository.Lead) LeadResponse {
	return LeadResponse{
		ID:                  lead.ID,
		FirstName:           lead.FirstName,
		LastName:            lead.LastName,
		Email:               lead.Email,
		Phone:               lead.Phone,
		SourceType:          lead.SourceType,
		SourceName:          lead.SourceName,
		CustomFields:        lead.CustomFields,
		AssignedUserID:      lead.AssignedUserID,
		AssignedLenderID:    lead.AssignedLenderID,
		AssignedPondID:      lead.AssignedPondID,
		AvailableForGroupID: lead.AvailableForGroupID,
		ClaimExpiresAt:      lead.ClaimExpiresAt,
		CreatedAt:           lead.CreatedAt,
		UpdatedAt:           lead.UpdatedAt,
	}
}

type LeadListResponse struct {
	Leads  []LeadResponse `json:"leads"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}
