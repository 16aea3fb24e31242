package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"realty_crm_backend/internal/actionplans/repository"
	"realty_crm_backend/internal/events"
	"realty_crm_backend/platform/apperr"
	platformevents "realty_crm_backend/platform/events"
	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
)

func TestStepDueAt(t *testing.T) {
	anchor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		days, hours int
		want        time.Time
	}{
		{0, 0, anchor},
		{1, 6, time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC)},
		{0, 36, time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)},
		{7, 0, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := StepDueAt(anchor, tc.days, tc.hours); !got.Equal(tc.want) {
			t.Errorf("StepDueAt(%dd %dh) = %v, want %v", tc.days, tc.hours, got, tc.want)
		}
	}
}

// planStore is an in-memory Store that mirrors the repository's open-execution
// guard on inserts.
type planStore struct {
	mu         sync.Mutex
	plans      map[uuid.UUID]repository.Plan
	executions []repository.Execution
}

func newPlanStore() *planStore {
	return &planStore{plans: make(map[uuid.UUID]repository.Plan)}
}

func (p *planStore) GetPlan(_ context.Context, id, _ uuid.UUID) (repository.Plan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	plan, ok := p.plans[id]
	if !ok {
		return repository.Plan{}, repository.ErrPlanNotFound
	}
	return plan, nil
}

func (p *planStore) ListPlans(_ context.Context, _ uuid.UUID) ([]repository.Plan, error) {
	return nil, nil
}

func (p *planStore) CreatePlan(_ context.Context, organizationID uuid.UUID, name string) (repository.Plan, error) {
	plan := repository.Plan{ID: uuid.New(), OrganizationID: organizationID, Name: name}
	p.plans[plan.ID] = plan
	return plan, nil
}

func (p *planStore) RenamePlan(_ context.Context, id, _ uuid.UUID, name string) (repository.Plan, error) {
	plan := p.plans[id]
	plan.Name = name
	p.plans[id] = plan
	return plan, nil
}

func (p *planStore) DeletePlan(_ context.Context, id, _ uuid.UUID) error {
	delete(p.plans, id)
	return nil
}

func (p *planStore) ReplaceSteps(_ context.Context, planID, _ uuid.UUID, steps []repository.StepParams) error {
	plan := p.plans[planID]
	plan.Steps = nil
	for _, step := range steps {
		plan.Steps = append(plan.Steps, repository.Step{
			ID: uuid.New(), PlanID: planID,
			StepType: step.StepType, DelayDays: step.DelayDays, DelayHours: step.DelayHours, SortOrder: step.SortOrder,
		})
	}
	p.plans[planID] = plan
	return nil
}

func (p *planStore) CreateExecution(_ context.Context, params repository.CreateExecutionParams, force bool) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !force {
		for _, execution := range p.executions {
			open := execution.Status == repository.StatusPending || execution.Status == repository.StatusDue
			if open && execution.LeadID == params.LeadID && execution.StepID == params.StepID {
				return false, nil
			}
		}
	}
	p.executions = append(p.executions, repository.Execution{
		ID:               uuid.New(),
		OrganizationID:   params.OrganizationID,
		LeadID:           params.LeadID,
		PlanID:           params.PlanID,
		StepID:           params.StepID,
		Status:           repository.StatusPending,
		ScheduledAt:      params.ScheduledAt,
		AssignedToUserID: params.AssignedToUserID,
	})
	return true, nil
}

func (p *planStore) MarkDue(_ context.Context, limit int) ([]repository.Execution, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	due := make([]repository.Execution, 0)
	now := time.Now()
	for i := range p.executions {
		if p.executions[i].Status == repository.StatusPending && !p.executions[i].ScheduledAt.After(now) {
			p.executions[i].Status = repository.StatusDue
			due = append(due, p.executions[i])
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

func (p *planStore) ListDue(_ context.Context, _ uuid.UUID, _ time.Time, _ int) ([]repository.Execution, error) {
	return nil, nil
}

func (p *planStore) ListByLead(_ context.Context, leadID, _ uuid.UUID) ([]repository.Execution, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	matches := make([]repository.Execution, 0)
	for _, execution := range p.executions {
		if execution.LeadID == leadID {
			matches = append(matches, execution)
		}
	}
	return matches, nil
}

func (p *planStore) GetExecution(_ context.Context, id, _ uuid.UUID) (repository.Execution, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, execution := range p.executions {
		if execution.ID == id {
			return execution, nil
		}
	}
	return repository.Execution{}, repository.ErrExecutionNotFound
}

func (p *planStore) CompleteExecution(_ context.Context, id, _ uuid.UUID, notes *string) (repository.Execution, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.executions {
		execution := &p.executions[i]
		if execution.ID != id {
			continue
		}
		if execution.Status != repository.StatusPending && execution.Status != repository.StatusDue {
			return repository.Execution{}, repository.ErrExecutionNotFound
		}
		now := time.Now()
		execution.Status = repository.StatusCompleted
		execution.CompletedAt = &now
		if notes != nil {
			execution.Notes = notes
		}
		return *execution, nil
	}
	return repository.Execution{}, repository.ErrExecutionNotFound
}

func (p *planStore) CancelPendingForLead(_ context.Context, leadID, _ uuid.UUID) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cancelled := 0
	for i := range p.executions {
		execution := &p.executions[i]
		open := execution.Status == repository.StatusPending || execution.Status == repository.StatusDue
		if open && execution.LeadID == leadID {
			execution.Status = repository.StatusCancelled
			cancelled++
		}
	}
	return cancelled, nil
}

type nullBus struct{}

func (nullBus) Publish(context.Context, platformevents.Event) {}
func (nullBus) PublishSync(context.Context, platformevents.Event) error {
	return nil
}
func (nullBus) Subscribe(string, platformevents.Handler) {}

func newTestService(t *testing.T) (*Service, *planStore) {
	t.Helper()
	store := newPlanStore()
	return New(store, nullBus{}, logger.New("development")), store
}

func seedPlan(t *testing.T, svc *Service, org uuid.UUID) repository.Plan {
	t.Helper()
	plan, err := svc.CreatePlan(context.Background(), org, "new buyer follow-up", []repository.StepParams{
		{StepType: "call", DelayDays: 0, DelayHours: 0, SortOrder: 0},
		{StepType: "email", DelayDays: 1, DelayHours: 6, SortOrder: 1},
		{StepType: "task", DelayDays: 7, DelayHours: 0, SortOrder: 2},
	})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	return plan
}

func TestSchedule_CreatesOneExecutionPerStep(t *testing.T) {
	svc, store := newTestService(t)
	org := uuid.New()
	plan := seedPlan(t, svc, org)
	leadID := uuid.New()
	anchor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	created, err := svc.Schedule(context.Background(), org, leadID, plan.ID, nil, anchor, false)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if created != 3 {
		t.Fatalf("expected 3 executions, got %d", created)
	}

	executions, _ := store.ListByLead(context.Background(), leadID, org)
	wantTimes := []time.Time{
		anchor,
		time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
	}
	for i, execution := range executions {
		if !execution.ScheduledAt.Equal(wantTimes[i]) {
			t.Errorf("step %d scheduled at %v, want %v", i, execution.ScheduledAt, wantTimes[i])
		}
		if execution.Status != repository.StatusPending {
			t.Errorf("step %d status %s, want pending", i, execution.Status)
		}
	}
}

func TestSchedule_IsIdempotentWhileExecutionsAreOpen(t *testing.T) {
	svc, store := newTestService(t)
	org := uuid.New()
	plan := seedPlan(t, svc, org)
	leadID := uuid.New()
	anchor := time.Now()

	if _, err := svc.Schedule(context.Background(), org, leadID, plan.ID, nil, anchor, false); err != nil {
		t.Fatalf("first schedule: %v", err)
	}
	created, err := svc.Schedule(context.Background(), org, leadID, plan.ID, nil, anchor, false)
	if err != nil {
		t.Fatalf("second schedule: %v", err)
	}
	if created != 0 {
		t.Fatalf("re-scheduling must be a no-op, created %d", created)
	}

	executions, _ := store.ListByLead(context.Background(), leadID, org)
	if len(executions) != 3 {
		t.Fatalf("expected 3 executions total, got %d", len(executions))
	}
}

func TestSchedule_ForceDuplicates(t *testing.T) {
	svc, store := newTestService(t)
	org := uuid.New()
	plan := seedPlan(t, svc, org)
	leadID := uuid.New()

	svc.Schedule(context.Background(), org, leadID, plan.ID, nil, time.Now(), false)
	created, err := svc.Schedule(context.Background(), org, leadID, plan.ID, nil, time.Now(), true)
	if err != nil {
		t.Fatalf("forced schedule: %v", err)
	}
	if created != 3 {
		t.Fatalf("force must bypass the open-execution guard, created %d", created)
	}
	executions, _ := store.ListByLead(context.Background(), leadID, org)
	if len(executions) != 6 {
		t.Fatalf("expected 6 executions after force, got %d", len(executions))
	}
}

func TestSchedule_UnknownPlan(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Schedule(context.Background(), uuid.New(), uuid.New(), uuid.New(), nil, time.Now(), false)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestComplete_ClosedExecutionConflicts(t *testing.T) {
	svc, store := newTestService(t)
	org := uuid.New()
	plan := seedPlan(t, svc, org)
	leadID := uuid.New()
	svc.Schedule(context.Background(), org, leadID, plan.ID, nil, time.Now().Add(-time.Hour), false)

	executions, _ := store.ListByLead(context.Background(), leadID, org)
	if _, err := svc.Complete(context.Background(), org, executions[0].ID, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_, err := svc.Complete(context.Background(), org, executions[0].ID, nil)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreatePlan_RejectsUnknownStepType(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CreatePlan(context.Background(), uuid.New(), "bad", []repository.StepParams{
		{StepType: "carrier-pigeon"},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDispatchDue_PublishesOnceAndMarksDue(t *testing.T) {
	store := newPlanStore()
	bus := &countingBus{}
	svc := New(store, bus, logger.New("development"))
	org := uuid.New()
	plan, _ := svc.CreatePlan(context.Background(), org, "p", []repository.StepParams{{StepType: "call"}})
	svc.Schedule(context.Background(), org, uuid.New(), plan.ID, nil, time.Now().Add(-time.Minute), false)

	dispatched, err := svc.DispatchDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if dispatched != 1 || bus.count() != 1 {
		t.Fatalf("expected 1 dispatch and 1 event, got %d and %d", dispatched, bus.count())
	}

	// A second pass must not re-publish.
	dispatched, _ = svc.DispatchDue(context.Background(), 10)
	if dispatched != 0 || bus.count() != 1 {
		t.Fatalf("expected no re-dispatch, got %d and %d events", dispatched, bus.count())
	}
}

type countingBus struct {
	mu sync.Mutex
	n  int
}

func (b *countingBus) Publish(_ context.Context, event platformevents.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := event.(events.ExecutionDue); ok {
		b.n++
	}
}

func (b *countingBus) PublishSync(ctx context.Context, event platformevents.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *countingBus) Subscribe(string, platformevents.Handler) {}

func (b *countingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}
