package email

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender implements Sender over a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a new SMTPSender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func (s *SMTPSender) SendLeadBroadcastEmail(ctx context.Context, toEmail, leadName, groupName, claimURL string) error {
	content, err := renderEmailTemplate("lead_broadcast.html", leadBroadcastEmailData{
		baseEmailData: baseEmailData{
			Title:    "New lead available",
			Heading:  "A new lead is up for grabs",
			CTALabel: "Claim lead",
			CTAURL:   claimURL,
		},
		LeadName:  leadName,
		GroupName: groupName,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, fmt.Sprintf(subjectLeadBroadcastFmt, leadName), content)
}

func (s *SMTPSender) SendExecutionDueEmail(ctx context.Context, toEmail, leadName, stepType, dueAt string) error {
	content, err := renderEmailTemplate("execution_due.html", executionDueEmailData{
		baseEmailData: baseEmailData{
			Title:   "Follow-up due",
			Heading: "A follow-up step is due",
		},
		LeadName: leadName,
		StepType: stepType,
		DueAt:    dueAt,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, fmt.Sprintf(subjectExecutionDueFmt, stepType, leadName), content)
}

func (s *SMTPSender) SendClaimExpiredEmail(ctx context.Context, toEmail, leadName, groupName string) error {
	content, err := renderEmailTemplate("claim_expired.html", claimExpiredEmailData{
		baseEmailData: baseEmailData{
			Title:   "Lead went unclaimed",
			Heading: "A claim window closed without a taker",
		},
		LeadName:  leadName,
		GroupName: groupName,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, fmt.Sprintf(subjectClaimExpiredFmt, leadName), content)
}
