package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"realty_crm_backend/internal/routing/domain"
	"realty_crm_backend/internal/routing/repository"
	"realty_crm_backend/platform/apperr"
	"realty_crm_backend/platform/events"
	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
)

// clock is a settable time source shared by the service and the fake store.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeStore reproduces the repository's conditional-write semantics in
// memory, mutex-guarded so claim races behave like they do against Postgres.
type fakeStore struct {
	mu        sync.Mutex
	clock     *clock
	snapshots map[uuid.UUID]domain.Snapshot
	states    map[uuid.UUID]*repository.RoutingState
	rules     []repository.Rule
	groups    map[uuid.UUID]repository.Group
	members   map[uuid.UUID][]repository.GroupMember
	ponds     map[uuid.UUID]repository.Pond
	cursors   map[uuid.UUID]int
	counters  map[uuid.UUID]int
	flowLogs  []repository.FlowLogEntry
	seq       int64
}

func newFakeStore(c *clock) *fakeStore {
	return &fakeStore{
		clock:     c,
		snapshots: make(map[uuid.UUID]domain.Snapshot),
		states:    make(map[uuid.UUID]*repository.RoutingState),
		groups:    make(map[uuid.UUID]repository.Group),
		members:   make(map[uuid.UUID][]repository.GroupMember),
		ponds:     make(map[uuid.UUID]repository.Pond),
		cursors:   make(map[uuid.UUID]int),
		counters:  make(map[uuid.UUID]int),
	}
}

func (f *fakeStore) addLead(organizationID uuid.UUID, snapshot domain.Snapshot) {
	f.snapshots[snapshot.ID] = snapshot
	f.states[snapshot.ID] = &repository.RoutingState{LeadID: snapshot.ID, OrganizationID: organizationID}
}

func (f *fakeStore) GetSnapshot(_ context.Context, leadID, _ uuid.UUID) (domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot, ok := f.snapshots[leadID]
	if !ok {
		return domain.Snapshot{}, repository.ErrNotFound
	}
	return snapshot, nil
}

func (f *fakeStore) GetRoutingState(_ context.Context, leadID, _ uuid.UUID) (repository.RoutingState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[leadID]
	if !ok {
		return repository.RoutingState{}, repository.ErrNotFound
	}
	return *state, nil
}

func (f *fakeStore) ListActiveRules(_ context.Context, _ uuid.UUID) ([]repository.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	active := make([]repository.Rule, 0, len(f.rules))
	for _, rule := range f.rules {
		if rule.IsActive {
			active = append(active, rule)
		}
	}
	return active, nil
}

func (f *fakeStore) TouchRuleCounters(_ context.Context, ruleID, _ uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[ruleID]++
	return nil
}

func (f *fakeStore) AssignAgent(_ context.Context, leadID, _, userID uuid.UUID) error {
	return f.assign(leadID, func(state *repository.RoutingState) {
		id := userID
		state.AssignedUserID = &id
	})
}

func (f *fakeStore) AssignLender(_ context.Context, leadID, _, lenderID uuid.UUID) error {
	return f.assign(leadID, func(state *repository.RoutingState) {
		id := lenderID
		state.AssignedLenderID = &id
	})
}

func (f *fakeStore) AssignPond(_ context.Context, leadID, _, pondID uuid.UUID) error {
	return f.assign(leadID, func(state *repository.RoutingState) {
		id := pondID
		state.AssignedPondID = &id
	})
}

func (f *fakeStore) assign(leadID uuid.UUID, mutate func(*repository.RoutingState)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[leadID]
	if !ok {
		return repository.ErrNotFound
	}
	mutate(state)
	state.AvailableForGroupID = nil
	state.ClaimExpiresAt = nil
	return nil
}

func (f *fakeStore) MarkAvailableForGroup(_ context.Context, leadID, _, groupID uuid.UUID, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[leadID]
	if !ok {
		return repository.ErrNotFound
	}
	gid := groupID
	exp := expiresAt
	state.AvailableForGroupID = &gid
	state.ClaimExpiresAt = &exp
	return nil
}

func (f *fakeStore) ClaimLead(_ context.Context, leadID, _, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[leadID]
	if !ok {
		return false, nil
	}
	if state.AvailableForGroupID == nil || state.ClaimExpiresAt == nil || !state.ClaimExpiresAt.After(f.clock.Now()) {
		return false, nil
	}
	id := userID
	state.AssignedUserID = &id
	state.LastGroupID = state.AvailableForGroupID
	state.AvailableForGroupID = nil
	state.ClaimExpiresAt = nil
	return true, nil
}

func (f *fakeStore) GetGroup(_ context.Context, id, _ uuid.UUID) (repository.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	group, ok := f.groups[id]
	if !ok {
		return repository.Group{}, repository.ErrGroupNotFound
	}
	return group, nil
}

func (f *fakeStore) IsMember(_ context.Context, groupID, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, member := range f.members[groupID] {
		if member.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) NextRoundRobinMember(_ context.Context, groupID, _ uuid.UUID) (*uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := f.members[groupID]
	if len(members) == 0 {
		return nil, nil
	}
	pick := members[f.cursors[groupID]%len(members)].UserID
	f.cursors[groupID]++
	return &pick, nil
}

func (f *fakeStore) GetPond(_ context.Context, id, _ uuid.UUID) (repository.Pond, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pond, ok := f.ponds[id]
	if !ok {
		return repository.Pond{}, repository.ErrPondNotFound
	}
	return pond, nil
}

func (f *fakeStore) ListExpiredClaims(_ context.Context, limit int) ([]repository.ExpiredClaim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	expired := make([]repository.ExpiredClaim, 0)
	for _, state := range f.states {
		if state.AvailableForGroupID != nil && state.ClaimExpiresAt != nil && !state.ClaimExpiresAt.After(f.clock.Now()) {
			expired = append(expired, repository.ExpiredClaim{
				LeadID:         state.LeadID,
				OrganizationID: state.OrganizationID,
				GroupID:        *state.AvailableForGroupID,
			})
			if len(expired) == limit {
				break
			}
		}
	}
	return expired, nil
}

func (f *fakeStore) resolveExpired(claim repository.ExpiredClaim, mutate func(*repository.RoutingState)) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[claim.LeadID]
	if !ok {
		return false, nil
	}
	if state.AvailableForGroupID == nil || *state.AvailableForGroupID != claim.GroupID {
		return false, nil
	}
	if state.ClaimExpiresAt == nil || state.ClaimExpiresAt.After(f.clock.Now()) {
		return false, nil
	}
	gid := claim.GroupID
	state.LastGroupID = &gid
	mutate(state)
	return true, nil
}

func (f *fakeStore) ResolveExpiredToUser(_ context.Context, claim repository.ExpiredClaim, userID uuid.UUID) (bool, error) {
	return f.resolveExpired(claim, func(state *repository.RoutingState) {
		id := userID
		state.AssignedUserID = &id
		state.AvailableForGroupID = nil
		state.ClaimExpiresAt = nil
	})
}

func (f *fakeStore) ResolveExpiredToPond(_ context.Context, claim repository.ExpiredClaim, pondID uuid.UUID) (bool, error) {
	return f.resolveExpired(claim, func(state *repository.RoutingState) {
		id := pondID
		state.AssignedPondID = &id
		state.AvailableForGroupID = nil
		state.ClaimExpiresAt = nil
	})
}

func (f *fakeStore) ResolveExpiredToGroup(_ context.Context, claim repository.ExpiredClaim, groupID uuid.UUID, expiresAt time.Time) (bool, error) {
	return f.resolveExpired(claim, func(state *repository.RoutingState) {
		gid := groupID
		exp := expiresAt
		state.AvailableForGroupID = &gid
		state.ClaimExpiresAt = &exp
	})
}

func (f *fakeStore) ResolveExpiredToNone(_ context.Context, claim repository.ExpiredClaim) (bool, error) {
	return f.resolveExpired(claim, func(state *repository.RoutingState) {
		state.AvailableForGroupID = nil
		state.ClaimExpiresAt = nil
	})
}

func (f *fakeStore) InsertFlowLog(_ context.Context, params repository.InsertFlowLogParams) (repository.FlowLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	entry := repository.FlowLogEntry{
		ID:             uuid.New(),
		Seq:            f.seq,
		OrganizationID: params.OrganizationID,
		LeadID:         params.LeadID,
		RuleID:         params.RuleID,
		Action:         params.Action,
		RuleData:       params.RuleData,
		ConditionsMet:  params.ConditionsMet,
		CreatedAt:      f.clock.Now(),
	}
	f.flowLogs = append(f.flowLogs, entry)
	return entry, nil
}

func (f *fakeStore) ListFlowLogs(_ context.Context, leadID, _ uuid.UUID, _ int) ([]repository.FlowLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := make([]repository.FlowLogEntry, 0)
	for i := len(f.flowLogs) - 1; i >= 0; i-- {
		if f.flowLogs[i].LeadID == leadID {
			entries = append(entries, f.flowLogs[i])
		}
	}
	return entries, nil
}

func (f *fakeStore) logActions(leadID uuid.UUID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	actions := make([]string, 0)
	for _, entry := range f.flowLogs {
		if entry.LeadID == leadID {
			actions = append(actions, entry.Action)
		}
	}
	return actions
}

type scheduledPlan struct {
	LeadID     uuid.UUID
	PlanID     uuid.UUID
	AssignedTo *uuid.UUID
	Anchor     time.Time
	Force      bool
}

type fakePlans struct {
	mu        sync.Mutex
	scheduled []scheduledPlan
	cancelled []uuid.UUID
}

func (f *fakePlans) Schedule(_ context.Context, _, leadID, planID uuid.UUID, assignedTo *uuid.UUID, anchor time.Time, force bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, scheduledPlan{LeadID: leadID, PlanID: planID, AssignedTo: assignedTo, Anchor: anchor, Force: force})
	return 1, nil
}

func (f *fakePlans) CancelPendingForLead(_ context.Context, _, leadID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, leadID)
	return 1, nil
}

type scheduledExpiry struct {
	LeadID  uuid.UUID
	GroupID uuid.UUID
	RunAt   time.Time
}

type fakeExpiry struct {
	mu        sync.Mutex
	scheduled []scheduledExpiry
}

func (f *fakeExpiry) ScheduleClaimExpiry(_ context.Context, _, leadID, groupID uuid.UUID, runAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, scheduledExpiry{LeadID: leadID, GroupID: groupID, RunAt: runAt})
	return nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.events))
	for _, event := range b.events {
		names = append(names, event.EventName())
	}
	return names
}

type routingCfg struct {
	matchType       string
	cancelOnReroute bool
}

func (c routingCfg) GetDefaultMatchType() string                 { return c.matchType }
func (c routingCfg) GetCancelOnReroute() bool                    { return c.cancelOnReroute }
func (c routingCfg) GetClaimSweepInterval() time.Duration        { return time.Minute }
func (c routingCfg) GetExecutionDispatchInterval() time.Duration { return 30 * time.Second }
func (c routingCfg) GetExecutionDispatchBatch() int              { return 100 }

type fixture struct {
	svc    *Service
	store  *fakeStore
	plans  *fakePlans
	expiry *fakeExpiry
	bus    *recordingBus
	clock  *clock
	org    uuid.UUID
}

func newFixture(t *testing.T, cfg routingCfg) *fixture {
	t.Helper()
	if cfg.matchType == "" {
		cfg.matchType = "all"
	}
	c := &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := newFakeStore(c)
	plans := &fakePlans{}
	expiry := &fakeExpiry{}
	bus := &recordingBus{}
	svc := New(store, plans, expiry, bus, logger.New("development"), cfg)
	svc.now = c.Now
	return &fixture{svc: svc, store: store, plans: plans, expiry: expiry, bus: bus, clock: c, org: uuid.New()}
}

func (fx *fixture) addLead(email string) uuid.UUID {
	lead := domain.Snapshot{
		ID:         uuid.New(),
		FirstName:  "Dana",
		LastName:   "Reyes",
		Email:      email,
		SourceType: "web",
		SourceName: "contact-form",
		CreatedAt:  fx.clock.Now(),
	}
	fx.store.addLead(fx.org, lead)
	return lead.ID
}

func (fx *fixture) addGroup(distribution string, windowSeconds int, members ...uuid.UUID) uuid.UUID {
	group := repository.Group{
		ID:                 uuid.New(),
		OrganizationID:     fx.org,
		Name:               "buyers",
		Distribution:       distribution,
		ClaimWindowSeconds: windowSeconds,
	}
	fx.store.groups[group.ID] = group
	for i, userID := range members {
		fx.store.members[group.ID] = append(fx.store.members[group.ID], repository.GroupMember{UserID: userID, SortOrder: i})
	}
	return group.ID
}

func (fx *fixture) addRule(rule repository.Rule) {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	rule.OrganizationID = fx.org
	if rule.MatchType == "" {
		rule.MatchType = "all"
	}
	fx.store.rules = append(fx.store.rules, rule)
}

func strptr(s string) *string { return &s }

func TestRouteLead_BroadcastEndToEnd(t *testing.T) {
	fx := newFixture(t, routingCfg{})
	groupID := fx.addGroup(repository.DistributionBroadcast, 3600, uuid.New())
	planID := uuid.New()
	ruleID := uuid.New()
	fx.addRule(repository.Rule{
		ID:           ruleID,
		Name:         "web buyers",
		SourceType:   strptr("web"),
		SourceName:   strptr("contact-form"),
		Priority:     1,
		IsActive:     true,
		GroupID:      &groupID,
		ActionPlanID: &planID,
		Conditions: []repository.ConditionRow{
			{ID: uuid.New(), Field: "email", Operator: "contains", Value: "example.com"},
		},
	})
	leadID := fx.addLead("dana@example.com")

	result, err := fx.svc.RouteLead(context.Background(), fx.org, leadID)
	if err != nil {
		t.Fatalf("route: %v", err)
	}

	if result.Action != domain.ActionMatched {
		t.Fatalf("expected matched, got %s", result.Action)
	}
	if result.RuleID == nil || *result.RuleID != ruleID {
		t.Fatal("expected the web buyers rule")
	}

	state, _ := fx.store.GetRoutingState(context.Background(), leadID, fx.org)
	if state.AvailableForGroupID == nil || *state.AvailableForGroupID != groupID {
		t.Fatal("expected lead to be claimable by the group")
	}
	wantExpiry := fx.clock.Now().Add(time.Hour)
	if state.ClaimExpiresAt == nil || !state.ClaimExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expected claim window to close at %v, got %v", wantExpiry, state.ClaimExpiresAt)
	}
	if state.AssignedUserID != nil {
		t.Fatal("broadcast must not assign anyone")
	}

	if len(fx.plans.scheduled) != 1 || fx.plans.scheduled[0].PlanID != planID {
		t.Fatalf("expected one scheduled plan, got %+v", fx.plans.scheduled)
	}
	if fx.plans.scheduled[0].AssignedTo != nil {
		t.Fatal("broadcast routing has no assignee for plan executions")
	}
	if len(fx.expiry.scheduled) != 1 || !fx.expiry.scheduled[0].RunAt.Equal(wantExpiry) {
		t.Fatalf("expected claim expiry scheduled at window close, got %+v", fx.expiry.scheduled)
	}

	if actions := fx.store.logActions(leadID); len(actions) != 1 || actions[0] != "matched" {
		t.Fatalf("expected one matched flow log entry, got %v", actions)
	}
	if fx.store.counters[ruleID] != 1 {
		t.Fatal("expected rule counters to be bumped once")
	}

	names := fx.bus.names()
	if len(names) != 2 || names[0] != "routing.lead.broadcast" || names[1] != "routing.lead.routed" {
		t.Fatalf("unexpected events: %v", names)
	}
}

func TestRouteLead_NoRule(t *testing.T) {
	fx := newFixture(t, routingCfg{})
	leadID := fx.addLead("dana@example.com")

	result, err := fx.svc.RouteLead(context.Background(), fx.org, leadID)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.Action != domain.ActionNoRule {
		t.Fatalf("expected no_rule, got %s", result.Action)
	}
	if actions := fx.store.logActions(leadID); len(actions) != 1 || actions[0] != "no_rule" {
		t.Fatalf("expected a no_rule flow log entry, got %v", actions)
	}
	state, _ := fx.store.GetRoutingState(context.Background(), leadID, fx.org)
	if state.AssignedUserID != nil || state.AvailableForGroupID != nil {
		t.Fatal("unrouted lead must stay unassigned")
	}
}

func TestRouteLeadFrom_SourceOverride(t *testing.T) {
	fx := newFixture(t, routingCfg{})
	agent := uuid.New()
	ruleID := uuid.New()
	fx.addRule(repository.Rule{
		ID: ruleID, Name: "imports", SourceType: strptr("import"), Priority: 1, IsActive: true, AssignedAgentID: &agent,
	})
	leadID := fx.addLead("dana@example.com")

	result, err := fx.svc.RouteLead(context.Background(), fx.org, leadID)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.Action != domain.ActionNoRule {
		t.Fatalf("stored web source must not match the import rule, got %s", result.Action)
	}

	result, err = fx.svc.RouteLeadFrom(context.Background(), fx.org, leadID, "import", "spreadsheet")
	if err != nil {
		t.Fatalf("route with override: %v", err)
	}
	if result.Action != domain.ActionMatched {
		t.Fatalf("expected matched with overridden source, got %s", result.Action)
	}
	if result.RuleID == nil || *result.RuleID != ruleID {
		t.Fatal("expected the imports rule")
	}
}

func TestRouteLead_RoundRobinRotation(t *testing.T) {
	fx := newFixture(t, routingCfg{})
	first, second := uuid.New(), uuid.New()
	groupID := fx.addGroup(repository.DistributionRoundRobin, 3600, first, second)
	fx.addRule(repository.Rule{
		Name: "rr", SourceType: strptr("web"), Priority: 1, IsActive: true, GroupID: &groupID,
	})

	assignees := make([]uuid.UUID, 0, 3)
	for i := 0; i < 3; i++ {
		leadID := fx.addLead("dana@example.com")
		result, err := fx.svc.RouteLead(context.Background(), fx.org, leadID)
		if err != nil {
			t.Fatalf("route %d: %v", i, err)
		}
		if result.AssigneeID == nil {
			t.Fatalf("route %d: expected a direct assignment", i)
		}
		assignees = append(assignees, *result.AssigneeID)
	}

	want := []uuid.UUID{first, second, first}
	for i := range want {
		if assignees[i] != want[i] {
			t.Fatalf("rotation broke at %d: got %v, want %v", i, assignees, want)
		}
	}
}

func TestRouteLead_EmptyRoundRobinFallsBackToBroadcast(t *testing.T) {
	fx := newFixture(t, routingCfg{})
	groupID := fx.addGroup(repository.DistributionRoundRobin, 600)
	fx.addRule(repository.Rule{
		Name: "rr", SourceType: strptr("web"), Priority: 1, IsActive: true, GroupID: &groupID,
	})
	leadID := fx.addLead("dana@example.com")

	result, err := fx.svc.RouteLead(context.Background(), fx.org, leadID)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.AssigneeID != nil {
		t.Fatal("empty roster must not assign anyone")
	}
	if result.ClaimExpiresAt == nil {
		t.Fatal("expected a claim window instead")
	}
}

func TestRouteLead_PondTargetResolvesOwner(t *testing.T) {
	fx := newFixture(t, routingCfg{})
	owner := uuid.New()
	pond := repository.Pond{ID: uuid.New(), OrganizationID: fx.org, Name: "nurture", OwnerUserID: owner}
	fx.store.ponds[pond.ID] = pond
	planID := uuid.New()
	fx.addRule(repository.Rule{
		Name: "pond", SourceType: strptr("web"), Priority: 1, IsActive: true, PondID: &pond.ID, ActionPlanID: &planID,
	})
	leadID := fx.addLead("dana@example.com")

	result, err := fx.svc.RouteLead(context.Background(), fx.org, leadID)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.AssigneeKind != "pond" || result.AssigneeID == nil || *result.AssigneeID != owner {
		t.Fatalf("expected pond owner as assignee, got %+v", result)
	}
	if len(fx.plans.scheduled) != 1 || fx.plans.scheduled[0].AssignedTo == nil || *fx.plans.scheduled[0].AssignedTo != owner {
		t.Fatal("expected plan executions assigned to the pond owner")
	}
}

func TestRouteLead_CancelOnReroute(t *testing.T) {
	fx := newFixture(t, routingCfg{cancelOnReroute: true})
	agent := uuid.New()
	fx.addRule(repository.Rule{
		Name: "direct", SourceType: strptr("web"), Priority: 1, IsActive: true, AssignedAgentID: &agent,
	})
	leadID := fx.addLead("dana@example.com")

	if _, err := fx.svc.RouteLead(context.Background(), fx.org, leadID); err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(fx.plans.cancelled) != 1 || fx.plans.cancelled[0] != leadID {
		t.Fatal("expected pending executions to be cancelled before re-distribution")
	}
}

func TestClaim_ExactlyOneWinner(t *testing.T) {
	fx := newFixture(t, routingCfg{})
	members := make([]uuid.UUID, 5)
	for i := range members {
		members[i] = uuid.New()
	}
	groupID := fx.addGroup(repository.DistributionBroadcast, 3600, members...)
	leadID := fx.addLead("dana@example.com")
	expiresAt := fx.clock.Now().Add(time.Hour)
	if err := fx.store.MarkAvailableForGroup(context.Background(), leadID, fx.org, groupID, expiresAt); err != nil {
		t.Fatalf("mark available: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(members))
	for i, userID := range members {
		wg.Add(1)
		go func(i int, userID uuid.UUID) {
			defer wg.Done()
			_, errs[i] = fx.svc.Claim(context.Background(), fx.org, leadID, userID)
		}(i, userID)
	}
	wg.Wait()

	winners, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case apperr.Is(err, apperr.KindConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	if conflicts != len(members)-1 {
		t.Fatalf("expected %d conflicts, got %d", len(members)-1, conflicts)
	}

	state, _ := fx.store.GetRoutingState(context.Background(), leadID, fx.org)
	if state.AssignedUserID == nil {
		t.Fatal("winner must own the lead")
	}
	if state.AvailableForGroupID != nil || state.ClaimExpiresAt != nil {
		t.Fatal("claim must clear availability")
	}
	if state.LastGroupID == nil || *state.LastGroupID != groupID {
		t.Fatal("claim must record the source group")
	}
	if actions := fx.store.logActions(leadID); len(actions) != 1 || actions[0] != "claimed" {
		t.Fatalf("expected exactly one claimed flow log entry, got %v", actions)
	}
}

func TestClaim_AfterExpiryIsGone(t *testing.T) {
	fx := newFixture(t, routingCfg{})
	member := uuid.New()
	groupID := fx.addGroup(repository.DistributionBroadcast, 600, member)
	leadID := fx.addLead("dana@example.com")
	fx.store.MarkAvailableForGroup(context.Background(), leadID, fx.org, groupID, fx.clock.Now().Add(10*time.Minute))

	fx.clock.Advance(11 * time.Minute)

	_, err := fx.svc.Claim(context.Background(), fx.org, leadID, member)
	if !apperr.Is(err, apperr.KindGone) {
		t.Fatalf("expected gone, got %v", err)
	}
}

func TestClaim_NonMemberForbidden(t *testing.T) {
	fx := newFixture(t, routingCfg{})
	groupID := fx.addGroup(repository.DistributionBroadcast, 600, uuid.New())
	leadID := fx.addLead("dana@example.com")
	fx.store.MarkAvailableForGroup(context.Background(), leadID, fx.org, groupID, fx.clock.Now().Add(10*time.Minute))

	_, err := fx.svc.Claim(context.Background(), fx.org, leadID, uuid.New())
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestClaim_NotBroadcastIsBadRequest(t *testing.T) {
	fx := newFixture(t, routingCfg{})
	leadID := fx.addLead("dana@example.com")

	_, err := fx.svc.Claim(context.Background(), fx.org, leadID, uuid.New())
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestExpireClaim_FallbackToDefaultUser(t *testing.T) {
	fx := newFixture(t, routingCfg{})
	fallbackUser := uuid.New()
	groupID := fx.addGroup(repository.DistributionBroadcast, 600, uuid.New())
	group := fx.store.groups[groupID]
	group.DefaultUserID = &fallbackUser
	fx.store.groups[groupID] = group

	leadID := fx.addLead("dana@example.com")
	fx.store.MarkAvailableForGroup(context.Background(), leadID, fx.org, groupID, fx.clock.Now().Add(10*time.Minute))
	fx.clock.Advance(11 * time.Minute)

	resolved, err := fx.svc.ExpireClaim(context.Background(), repository.ExpiredClaim{
		LeadID: leadID, OrganizationID: fx.org, GroupID: groupID,
	})
	if err != nil || !resolved {
		t.Fatalf("expected resolution, got resolved=%v err=%v", resolved, err)
	}

	state, _ := fx.store.GetRoutingState(context.Background(), leadID, fx.org)
	if state.AssignedUserID == nil || *state.AssignedUserID != fallbackUser {
		t.Fatal("expected fallback to the group's default user")
	}
	if state.AvailableForGroupID != nil {
		t.Fatal("expiry must clear availability")
	}
	if actions := fx.store.logActions(leadID); len(actions) != 1 || actions[0] != "claim_expired" {
		t.Fatalf("expected claim_expired flow log entry, got %v", actions)
	}
}

func TestExpireClaim_RebroadcastToFallbackGroup(t *testing.T) {
	fx := newFixture(t, routingCfg{})
	nextGroupID := fx.addGroup(repository.DistributionBroadcast, 1800, uuid.New())
	groupID := fx.addGroup(repository.DistributionBroadcast, 600, uuid.New())
	group := fx.store.groups[groupID]
	group.DefaultGroupID = &nextGroupID
	fx.store.groups[groupID] = group

	leadID := fx.addLead("dana@example.com")
	fx.store.MarkAvailableForGroup(context.Background(), leadID, fx.org, groupID, fx.clock.Now().Add(10*time.Minute))
	fx.clock.Advance(11 * time.Minute)

	resolved, err := fx.svc.ExpireClaim(context.Background(), repository.ExpiredClaim{
		LeadID: leadID, OrganizationID: fx.org, GroupID: groupID,
	})
	if err != nil || !resolved {
		t.Fatalf("expected resolution, got resolved=%v err=%v", resolved, err)
	}

	state, _ := fx.store.GetRoutingState(context.Background(), leadID, fx.org)
	if state.AvailableForGroupID == nil || *state.AvailableForGroupID != nextGroupID {
		t.Fatal("expected re-broadcast to the fallback group")
	}
	wantExpiry := fx.clock.Now().Add(30 * time.Minute)
	if state.ClaimExpiresAt == nil || !state.ClaimExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expected a fresh window from the fallback group, got %v", state.ClaimExpiresAt)
	}
	if len(fx.expiry.scheduled) != 1 || fx.expiry.scheduled[0].GroupID != nextGroupID {
		t.Fatal("expected a new expiry task for the fallback window")
	}
}

func TestExpireClaim_ClaimedLeadIsLeftAlone(t *testing.T) {
	fx := newFixture(t, routingCfg{})
	member := uuid.New()
	groupID := fx.addGroup(repository.DistributionBroadcast, 600, member)
	leadID := fx.addLead("dana@example.com")
	fx.store.MarkAvailableForGroup(context.Background(), leadID, fx.org, groupID, fx.clock.Now().Add(10*time.Minute))

	if _, err := fx.svc.Claim(context.Background(), fx.org, leadID, member); err != nil {
		t.Fatalf("claim: %v", err)
	}
	fx.clock.Advance(time.Hour)

	resolved, err := fx.svc.ExpireClaim(context.Background(), repository.ExpiredClaim{
		LeadID: leadID, OrganizationID: fx.org, GroupID: groupID,
	})
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if resolved {
		t.Fatal("a claimed lead must not be touched by expiry")
	}

	state, _ := fx.store.GetRoutingState(context.Background(), leadID, fx.org)
	if state.AssignedUserID == nil || *state.AssignedUserID != member {
		t.Fatal("claim winner lost the lead to the sweep")
	}
}

func TestSweepExpiredClaims(t *testing.T) {
	fx := newFixture(t, routingCfg{})
	groupID := fx.addGroup(repository.DistributionBroadcast, 600, uuid.New())

	for i := 0; i < 3; i++ {
		leadID := fx.addLead("dana@example.com")
		fx.store.MarkAvailableForGroup(context.Background(), leadID, fx.org, groupID, fx.clock.Now().Add(10*time.Minute))
	}
	fx.clock.Advance(time.Hour)

	resolved, err := fx.svc.SweepExpiredClaims(context.Background(), 100)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if resolved != 3 {
		t.Fatalf("expected 3 resolutions, got %d", resolved)
	}
}
