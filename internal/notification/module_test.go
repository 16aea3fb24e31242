package notification

import (
	"context"
	"strings"
	"testing"
	"time"

	"realty_crm_backend/internal/events"
	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
)

type testNotificationConfig struct{}

func (testNotificationConfig) GetAppBaseURL() string { return "https://app.example.com/" }

type testSender struct {
	broadcastTo   []string
	broadcastURLs []string
	dueTo         []string
	expiredTo     []string
}

func (s *testSender) SendLeadBroadcastEmail(_ context.Context, toEmail, _, _, claimURL string) error {
	s.broadcastTo = append(s.broadcastTo, toEmail)
	s.broadcastURLs = append(s.broadcastURLs, claimURL)
	return nil
}

func (s *testSender) SendExecutionDueEmail(_ context.Context, toEmail, _, _, _ string) error {
	s.dueTo = append(s.dueTo, toEmail)
	return nil
}

func (s *testSender) SendClaimExpiredEmail(_ context.Context, toEmail, _, _ string) error {
	s.expiredTo = append(s.expiredTo, toEmail)
	return nil
}

type testMemberReader struct {
	emails []string
}

func (r testMemberReader) ListMemberEmails(context.Context, uuid.UUID) ([]string, error) {
	return r.emails, nil
}

func TestHandleLeadBroadcastFansOutToGroupMembers(t *testing.T) {
	sender := &testSender{}
	m := New(nil, sender, testNotificationConfig{}, logger.New("development"))
	m.SetMemberReader(testMemberReader{emails: []string{"a@example.com", "b@example.com"}})

	leadID := uuid.New()
	err := m.Handle(context.Background(), events.LeadBroadcast{
		BaseEvent:      events.NewBaseEvent(),
		LeadID:         leadID,
		TenantID:       uuid.New(),
		GroupID:        uuid.New(),
		ClaimExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if len(sender.broadcastTo) != 2 {
		t.Fatalf("expected 2 broadcast emails, got %d", len(sender.broadcastTo))
	}
	wantURL := "https://app.example.com/leads/" + leadID.String()
	if sender.broadcastURLs[0] != wantURL {
		t.Fatalf("claim URL = %q, want %q", sender.broadcastURLs[0], wantURL)
	}
}

func TestHandleLeadBroadcastWithoutMemberReaderIsNoop(t *testing.T) {
	sender := &testSender{}
	m := New(nil, sender, testNotificationConfig{}, logger.New("development"))

	err := m.Handle(context.Background(), events.LeadBroadcast{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    uuid.New(),
		TenantID:  uuid.New(),
		GroupID:   uuid.New(),
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if len(sender.broadcastTo) != 0 {
		t.Fatalf("expected no emails without a member reader, got %d", len(sender.broadcastTo))
	}
}

func TestHandleExecutionDueWithoutAssigneeIsNoop(t *testing.T) {
	sender := &testSender{}
	m := New(nil, sender, testNotificationConfig{}, logger.New("development"))

	err := m.Handle(context.Background(), events.ExecutionDue{
		BaseEvent:   events.NewBaseEvent(),
		ExecutionID: uuid.New(),
		TenantID:    uuid.New(),
		LeadID:      uuid.New(),
		StepType:    "call",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if len(sender.dueTo) != 0 {
		t.Fatalf("expected no emails for an unassigned execution, got %d", len(sender.dueTo))
	}
}

func TestHandleClaimExpiredNonUserFallbackIsNoop(t *testing.T) {
	sender := &testSender{}
	m := New(nil, sender, testNotificationConfig{}, logger.New("development"))

	for _, fallback := range []string{"pond", "group", "none"} {
		err := m.Handle(context.Background(), events.LeadClaimExpired{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    uuid.New(),
			TenantID:  uuid.New(),
			GroupID:   uuid.New(),
			Fallback:  fallback,
		})
		if err != nil {
			t.Fatalf("Handle(%s) returned error: %v", fallback, err)
		}
	}
	if len(sender.expiredTo) != 0 {
		t.Fatalf("expected no claim expired emails, got %d", len(sender.expiredTo))
	}
}

func TestBuildURLTrimsTrailingSlash(t *testing.T) {
	m := New(nil, &testSender{}, testNotificationConfig{}, logger.New("development"))
	url := m.buildURL("/leads/abc")
	if strings.Contains(url, "com//") {
		t.Fatalf("buildURL produced a double slash: %q", url)
	}
}
