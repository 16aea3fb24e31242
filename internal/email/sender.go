// Package email renders and delivers transactional email for the CRM.
package email

import (
	"context"

	"realty_crm_backend/platform/config"
	"realty_crm_backend/platform/logger"
)

// Sender delivers the notification emails the CRM produces.
type Sender interface {
	// SendLeadBroadcastEmail tells a group member a lead is up for grabs.
	SendLeadBroadcastEmail(ctx context.Context, toEmail, leadName, groupName, claimURL string) error
	// SendExecutionDueEmail tells an agent a follow-up step is due.
	SendExecutionDueEmail(ctx context.Context, toEmail, leadName, stepType, dueAt string) error
	// SendClaimExpiredEmail tells a fallback owner a claim window closed unclaimed.
	SendClaimExpiredEmail(ctx context.Context, toEmail, leadName, groupName string) error
}

// NewSender picks a sender from configuration: SMTP when email is enabled,
// a log-only sender otherwise so development setups need no mail server.
func NewSender(cfg config.EmailConfig, log *logger.Logger) Sender {
	if !cfg.GetEmailEnabled() {
		return &LogSender{log: log}
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	)
}

// LogSender records sends without delivering anything.
type LogSender struct {
	log *logger.Logger
}

func (s *LogSender) SendLeadBroadcastEmail(_ context.Context, toEmail, leadName, groupName, _ string) error {
	s.log.Info("email disabled, skipping lead broadcast email", "to", toEmail, "lead", leadName, "group", groupName)
	return nil
}

func (s *LogSender) SendExecutionDueEmail(_ context.Context, toEmail, leadName, stepType, dueAt string) error {
	s.log.Info("email disabled, skipping execution due email", "to", toEmail, "lead", leadName, "stepType", stepType, "dueAt", dueAt)
	return nil
}

func (s *LogSender) SendClaimExpiredEmail(_ context.Context, toEmail, leadName, groupName string) error {
	s.log.Info("email disabled, skipping claim expired email", "to", toEmail, "lead", leadName, "group", groupName)
	return nil
}
