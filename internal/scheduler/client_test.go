package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type testSchedulerConfig struct {
	redisURL string
	queue    string
}

func (c testSchedulerConfig) GetRedisURL() string      { return c.redisURL }
func (c testSchedulerConfig) GetRedisTLSInsecure() bool { return false }
func (c testSchedulerConfig) GetAsynqQueueName() string { return c.queue }
func (c testSchedulerConfig) GetAsynqConcurrency() int  { return 1 }

func TestScheduleClaimExpiryEnqueuesScheduledTask(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	defer mr.Close()

	client, err := NewClient(testSchedulerConfig{redisURL: "redis://" + mr.Addr(), queue: "crm"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	defer client.Close()

	leadID := uuid.New()
	orgID := uuid.New()
	groupID := uuid.New()
	runAt := time.Now().Add(time.Hour)

	if err := client.ScheduleClaimExpiry(context.Background(), orgID, leadID, groupID, runAt); err != nil {
		t.Fatalf("ScheduleClaimExpiry returned error: %v", err)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer inspector.Close()

	tasks, err := inspector.ListScheduledTasks("crm")
	if err != nil {
		t.Fatalf("listing scheduled tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 scheduled task, got %d", len(tasks))
	}
	if tasks[0].Type != TaskClaimExpiry {
		t.Fatalf("task type = %q, want %q", tasks[0].Type, TaskClaimExpiry)
	}

	payload, err := ParseClaimExpiryPayload(asynq.NewTask(tasks[0].Type, tasks[0].Payload))
	if err != nil {
		t.Fatalf("parsing payload: %v", err)
	}
	if payload.LeadID != leadID.String() {
		t.Fatalf("payload lead = %q, want %q", payload.LeadID, leadID)
	}
	if payload.OrganizationID != orgID.String() {
		t.Fatalf("payload org = %q, want %q", payload.OrganizationID, orgID)
	}
	if payload.GroupID != groupID.String() {
		t.Fatalf("payload group = %q, want %q", payload.GroupID, groupID)
	}
}

func TestNewClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(testSchedulerConfig{}); err == nil {
		t.Fatal("expected error for missing redis url")
	}
}

func TestRedisClientOptRejectsBadURL(t *testing.T) {
	if _, err := redisClientOpt("not-a-url", false); err == nil {
		t.Fatal("expected parse error for malformed redis url")
	}
}

func TestRedisClientOptTLSInsecure(t *testing.T) {
	opt, err := redisClientOpt("rediss://example.com:6380", true)
	if err != nil {
		t.Fatalf("redisClientOpt returned error: %v", err)
	}
	if opt.TLSConfig == nil || !opt.TLSConfig.InsecureSkipVerify {
		t.Fatal("expected insecure TLS config for rediss url with tls insecure set")
	}
}
