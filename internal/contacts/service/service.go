// Package service implements lead intake and contact management. Creating a
// lead publishes LeadCreated, which the routing module picks up to run its
// routing pass.
package service

import (
	"context"
	"errors"
	"strings"

	"realty_crm_backend/internal/contacts/repository"
	"realty_crm_backend/internal/events"
	"realty_crm_backend/platform/apperr"
	"realty_crm_backend/platform/logger"
	"realty_crm_backend/platform/phone"

	"github.com/google/uuid"
)

type Service struct {
	repo *repository.Repository
	bus  events.Bus
	log  *logger.Logger
}

func New(repo *repository.Repository, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, log: log}
}

type CreateLeadInput struct {
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	SourceType   string
	SourceName   string
	CustomFields map[string]string
}

// Create stores a new lead and announces it. Phone numbers are normalized to
// E.164 where they parse; otherwise the trimmed input is stored as-is so a
// typo never loses a lead.
func (s *Service) Create(ctx context.Context, organizationID uuid.UUID, input CreateLeadInput) (repository.Lead, error) {
	params := repository.CreateLeadParams{
		OrganizationID: organizationID,
		FirstName:      strings.TrimSpace(input.FirstName),
		LastName:       strings.TrimSpace(input.LastName),
		CustomFields:   input.CustomFields,
	}
	if params.FirstName == "" && params.LastName == "" {
		return repository.Lead{}, apperr.Validation("a lead needs at least a first or last name")
	}

	if email := strings.TrimSpace(strings.ToLower(input.Email)); email != "" {
		params.Email = &email
	}
	if raw := strings.TrimSpace(input.Phone); raw != "" {
		normalized := phone.NormalizeE164(raw)
		params.Phone = &normalized
	}
	if sourceType := strings.TrimSpace(input.SourceType); sourceType != "" {
		params.SourceType = &sourceType
	}
	if sourceName := strings.TrimSpace(input.SourceName); sourceName != "" {
		params.SourceName = &sourceName
	}

	lead, err := s.repo.Create(ctx, params)
	if err != nil {
		return repository.Lead{}, err
	}

	s.log.Info("lead created", "leadId", lead.ID, "sourceType", input.SourceType, "sourceName", input.SourceName)

	s.bus.Publish(ctx, events.LeadCreated{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     lead.ID,
		TenantID:   organizationID,
		SourceType: input.SourceType,
		SourceName: input.SourceName,
		Email:      input.Email,
		Phone:      input.Phone,
	})

	return lead, nil
}

func (s *Service) GetByID(ctx context.Context, organizationID, id uuid.UUID) (repository.Lead, error) {
	lead, err := s.repo.GetByID(ctx, id, organizationID)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Lead{}, apperr.NotFound("lead not found")
	}
	return lead, err
}

func (s *Service) List(ctx context.Context, organizationID uuid.UUID, params repository.ListLeadsParams) ([]repository.Lead, int, error) {
	return s.repo.List(ctx, organizationID, params)
}

type UpdateLeadInput struct {
	FirstName    *string
	LastName     *string
	Email        *string
	Phone        *string
	SourceType   *string
	SourceName   *string
	CustomFields map[string]string
}

func (s *Service) Update(ctx context.Context, organizationID, id uuid.UUID, input UpdateLeadInput) (repository.Lead, error) {
	params := repository.UpdateLeadParams{
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		SourceType:   input.SourceType,
		SourceName:   input.SourceName,
		CustomFields: input.CustomFields,
	}
	if input.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*input.Email))
		params.Email = &email
	}
	if input.Phone != nil {
		normalized := phone.NormalizeE164(*input.Phone)
		params.Phone = &normalized
	}

	lead, err := s.repo.Update(ctx, id, organizationID, params)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Lead{}, apperr.NotFound("lead not found")
	}
	return lead, err
}

func (s *Service) Delete(ctx context.Context, organizationID, id uuid.UUID) error {
	err := s.repo.Delete(ctx, id, organizationID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("lead not found")
	}
	return err
}
