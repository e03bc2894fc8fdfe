package quota

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minara-ai/minara/internal/config"
	inats "github.com/minara-ai/minara/internal/nats"
	"github.com/minara-ai/minara/internal/orgs"
	"github.com/minara-ai/minara/internal/users"
)

type fakeUserStore struct {
	users     map[uuid.UUID]*users.User
	increments map[uuid.UUID]int64
	getErr    error
	incrErr   error
}

func newFakeUserStore(us ...*users.User) *fakeUserStore {
	s := &fakeUserStore{
		users:      make(map[uuid.UUID]*users.User),
		increments: make(map[uuid.UUID]int64),
	}
	for _, u := range us {
		s.users[u.ID] = u
	}
	return s
}

// GetByID returns a copy, like a row scan would.
func (s *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*users.User, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUserStore) IncrementQuotaUsed(_ context.Context, id uuid.UUID, delta int64) error {
	if s.incrErr != nil {
		return s.incrErr
	}
	s.increments[id] += delta
	if u, ok := s.users[id]; ok {
		u.QuotaUsed += delta
	}
	return nil
}

type fakeOrgStore struct {
	orgs       map[uuid.UUID]*orgs.Organization
	increments map[uuid.UUID]int64
	incrErr    error
}

func newFakeOrgStore(os ...*orgs.Organization) *fakeOrgStore {
	s := &fakeOrgStore{
		orgs:       make(map[uuid.UUID]*orgs.Organization),
		increments: make(map[uuid.UUID]int64),
	}
	for _, o := range os {
		s.orgs[o.ID] = o
	}
	return s
}

func (s *fakeOrgStore) GetByID(_ context.Context, id uuid.UUID) (*orgs.Organization, error) {
	o, ok := s.orgs[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (s *fakeOrgStore) IncrementUsage(_ context.Context, id uuid.UUID, delta int64) error {
	if s.incrErr != nil {
		return s.incrErr
	}
	s.increments[id] += delta
	if o, ok := s.orgs[id]; ok {
		o.UsageUsed += delta
	}
	return nil
}

type fakeLedgerStore struct {
	ledgers       map[uuid.UUID]*Ledger
	createCalls   int
	tokenErr      error
	messageErr    error
	tokenWrites   int
	messageWrites int
}

func newFakeLedgerStore(ls ...*Ledger) *fakeLedgerStore {
	s := &fakeLedgerStore{ledgers: make(map[uuid.UUID]*Ledger)}
	for _, l := range ls {
		s.ledgers[l.UserID] = l
	}
	return s
}

func (s *fakeLedgerStore) GetOrCreate(_ context.Context, userID uuid.UUID, tier string, limits config.TierLimits) (*Ledger, error) {
	if _, ok := s.ledgers[userID]; !ok {
		s.createCalls++
		s.ledgers[userID] = &Ledger{
			UserID:        userID,
			Tier:          tier,
			LimitTokens:   limits.Tokens,
			LimitMessages: limits.Messages,
		}
	}
	cp := *s.ledgers[userID]
	return &cp, nil
}

func (s *fakeLedgerStore) IncrementTokens(_ context.Context, userID uuid.UUID, units int64) error {
	if s.tokenErr != nil {
		return s.tokenErr
	}
	s.tokenWrites++
	s.ledgers[userID].TokenUsage += units
	return nil
}

func (s *fakeLedgerStore) IncrementMessages(_ context.Context, userID uuid.UUID, count int64) error {
	if s.messageErr != nil {
		return s.messageErr
	}
	s.messageWrites++
	s.ledgers[userID].MessageCount += count
	return nil
}

type fakeAlertSink struct {
	events []inats.QuotaAlertEvent
	usage  []inats.UsageEvent
	err    error
}

func (s *fakeAlertSink) PublishQuotaAlert(_ context.Context, event inats.QuotaAlertEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *fakeAlertSink) PublishUsage(_ context.Context, event inats.UsageEvent) error {
	if s.err != nil {
		return s.err
	}
	s.usage = append(s.usage, event)
	return nil
}

func testLimitTable() *LimitTable {
	return NewLimitTable(map[string]config.TierLimits{
		"free":    {Tokens: 10000, Messages: 100},
		"basic":   {Tokens: 50000, Messages: 500},
		"premium": {Tokens: 200000, Messages: 2000},
	})
}

func tierUser(tier string) *users.User {
	return &users.User{
		ID:       uuid.New(),
		Email:    "member@example.com",
		Tier:     tier,
		IsActive: true,
	}
}

func orgManagedUser(orgID uuid.UUID, limit, used int64) *users.User {
	return &users.User{
		ID:                uuid.New(),
		Email:             "member@example.com",
		Tier:              "free",
		OrganizationID:    &orgID,
		QuotaMonthlyLimit: &limit,
		QuotaUsed:         used,
		IsActive:          true,
	}
}

func TestEnforce_TierRegime_ExactFillThenDenial(t *testing.T) {
	user := tierUser("free")
	userStore := newFakeUserStore(user)
	orgStore := newFakeOrgStore()
	ledgers := newFakeLedgerStore()
	e := NewEnforcer(userStore, orgStore, ledgers, testLimitTable(), nil, 0.8)
	ctx := context.Background()

	// Fill the budget exactly.
	require.NoError(t, e.EnforceAndRecord(ctx, user.ID, 10000, false))
	assert.Equal(t, int64(10000), ledgers.ledgers[user.ID].TokenUsage)
	assert.Equal(t, int64(1), ledgers.ledgers[user.ID].MessageCount)

	// One more unit busts it; counters stay put.
	err := e.EnforceAndRecord(ctx, user.ID, 1, false)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, int64(10000), ledgers.ledgers[user.ID].TokenUsage)
	assert.Equal(t, int64(1), ledgers.ledgers[user.ID].MessageCount)

	// Zero-cost calls still pass (and count a message).
	require.NoError(t, e.EnforceAndRecord(ctx, user.ID, 0, false))
	assert.Equal(t, int64(2), ledgers.ledgers[user.ID].MessageCount)
}

func TestEnforce_OrgCeilingDeniesBeforeUserChecks(t *testing.T) {
	org := &orgs.Organization{ID: uuid.New(), Name: "Acme", UsageTotalLimit: 1000, UsageUsed: 990}
	user := orgManagedUser(org.ID, 100000, 0) // plenty of personal headroom
	userStore := newFakeUserStore(user)
	orgStore := newFakeOrgStore(org)
	ledgers := newFakeLedgerStore()
	e := NewEnforcer(userStore, orgStore, ledgers, testLimitTable(), nil, 0.8)

	err := e.EnforceAndRecord(context.Background(), user.ID, 11, false)
	assert.ErrorIs(t, err, ErrOrgQuotaExceeded)

	// Nothing was written anywhere.
	assert.Empty(t, userStore.increments)
	assert.Empty(t, orgStore.increments)
	assert.Zero(t, ledgers.tokenWrites)
	assert.Zero(t, ledgers.messageWrites)
}

func TestEnforce_OrgManagedCommitsUserAndOrg(t *testing.T) {
	org := &orgs.Organization{ID: uuid.New(), Name: "Acme", UsageTotalLimit: 100000}
	user := orgManagedUser(org.ID, 5000, 0)
	userStore := newFakeUserStore(user)
	orgStore := newFakeOrgStore(org)
	ledgers := newFakeLedgerStore()
	e := NewEnforcer(userStore, orgStore, ledgers, testLimitTable(), nil, 0.8)

	require.NoError(t, e.EnforceAndRecord(context.Background(), user.ID, 300, false))

	assert.Equal(t, int64(300), userStore.increments[user.ID])
	assert.Equal(t, int64(300), orgStore.increments[org.ID])
	// The tier token counter is untouched under the org regime, but the
	// message count still advances.
	assert.Zero(t, ledgers.tokenWrites)
	assert.Equal(t, int64(1), ledgers.ledgers[user.ID].MessageCount)
}

func TestEnforce_OrgMemberWithoutOverrideUsesTierLedger(t *testing.T) {
	org := &orgs.Organization{ID: uuid.New(), Name: "Acme", UsageTotalLimit: 100000}
	user := tierUser("basic")
	user.OrganizationID = &org.ID // member, but no assigned budget
	userStore := newFakeUserStore(user)
	orgStore := newFakeOrgStore(org)
	ledgers := newFakeLedgerStore()
	e := NewEnforcer(userStore, orgStore, ledgers, testLimitTable(), nil, 0.8)

	require.NoError(t, e.EnforceAndRecord(context.Background(), user.ID, 300, false))

	assert.Equal(t, int64(300), ledgers.ledgers[user.ID].TokenUsage)
	assert.Empty(t, userStore.increments)
	assert.Empty(t, orgStore.increments)
}

func TestEnforce_LedgerSeededFromTierSnapshot(t *testing.T) {
	user := tierUser("premium")
	ledgers := newFakeLedgerStore()
	e := NewEnforcer(newFakeUserStore(user), newFakeOrgStore(), ledgers, testLimitTable(), nil, 0.8)

	require.NoError(t, e.EnforceAndRecord(context.Background(), user.ID, 1, false))

	l := ledgers.ledgers[user.ID]
	assert.Equal(t, 1, ledgers.createCalls)
	assert.Equal(t, "premium", l.Tier)
	assert.Equal(t, int64(200000), l.LimitTokens)
	assert.Equal(t, int64(2000), l.LimitMessages)
}

func TestEnforce_UnknownTierFallsBackToFree(t *testing.T) {
	user := tierUser("enterprise-gold")
	ledgers := newFakeLedgerStore()
	e := NewEnforcer(newFakeUserStore(user), newFakeOrgStore(), ledgers, testLimitTable(), nil, 0.8)

	require.NoError(t, e.EnforceAndRecord(context.Background(), user.ID, 1, false))

	l := ledgers.ledgers[user.ID]
	assert.Equal(t, "free", l.Tier)
	assert.Equal(t, int64(10000), l.LimitTokens)
}

func TestEnforce_MessageCapBlocksOrgManagedUser(t *testing.T) {
	org := &orgs.Organization{ID: uuid.New(), Name: "Acme", UsageTotalLimit: 1000000}
	user := orgManagedUser(org.ID, 500000, 0)
	ledger := &Ledger{UserID: user.ID, Tier: "free", MessageCount: 100, LimitTokens: 10000, LimitMessages: 100}
	userStore := newFakeUserStore(user)
	orgStore := newFakeOrgStore(org)
	ledgers := newFakeLedgerStore(ledger)
	e := NewEnforcer(userStore, orgStore, ledgers, testLimitTable(), nil, 0.8)

	err := e.EnforceAndRecord(context.Background(), user.ID, 10, false)
	assert.ErrorIs(t, err, ErrMessageLimitExceeded)
	assert.Empty(t, userStore.increments)
	assert.Empty(t, orgStore.increments)
}

func TestEnforce_UnlimitedBudgetNeverDeniesTokens(t *testing.T) {
	user := tierUser("free")
	ledger := &Ledger{UserID: user.ID, Tier: "free", TokenUsage: 999999999, LimitTokens: Unlimited, LimitMessages: 100}
	ledgers := newFakeLedgerStore(ledger)
	e := NewEnforcer(newFakeUserStore(user), newFakeOrgStore(), ledgers, testLimitTable(), nil, 0.8)

	require.NoError(t, e.EnforceAndRecord(context.Background(), user.ID, 1000000, false))
}

func TestEnforce_ZeroBudgetDeniesImmediately(t *testing.T) {
	org := &orgs.Organization{ID: uuid.New(), Name: "Acme", UsageTotalLimit: 100000}
	user := orgManagedUser(org.ID, 0, 0) // explicit zero budget, not "unset"
	e := NewEnforcer(newFakeUserStore(user), newFakeOrgStore(org), newFakeLedgerStore(), testLimitTable(), nil, 0.8)

	err := e.EnforceAndRecord(context.Background(), user.ID, 1, false)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestEnforce_NegativeUnitsRejectedBeforeAnyLoad(t *testing.T) {
	userStore := newFakeUserStore()
	userStore.getErr = errors.New("store must not be touched")
	e := NewEnforcer(userStore, newFakeOrgStore(), newFakeLedgerStore(), testLimitTable(), nil, 0.8)

	err := e.EnforceAndRecord(context.Background(), uuid.New(), -5, false)
	assert.ErrorIs(t, err, ErrNegativeUnits)
}

func TestEnforce_MissingUserIsInconsistency(t *testing.T) {
	e := NewEnforcer(newFakeUserStore(), newFakeOrgStore(), newFakeLedgerStore(), testLimitTable(), nil, 0.8)

	err := e.EnforceAndRecord(context.Background(), uuid.New(), 10, false)
	assert.ErrorIs(t, err, ErrAccountInconsistent)
}

func TestEnforce_MissingOrgIsInconsistency(t *testing.T) {
	orphanOrgID := uuid.New()
	user := tierUser("free")
	user.OrganizationID = &orphanOrgID
	e := NewEnforcer(newFakeUserStore(user), newFakeOrgStore(), newFakeLedgerStore(), testLimitTable(), nil, 0.8)

	err := e.EnforceAndRecord(context.Background(), user.ID, 10, false)
	assert.ErrorIs(t, err, ErrAccountInconsistent)
}

func TestEnforce_CommitWriteErrorFailsCall(t *testing.T) {
	user := tierUser("free")
	ledgers := newFakeLedgerStore()
	ledgers.tokenErr = errors.New("connection reset")
	e := NewEnforcer(newFakeUserStore(user), newFakeOrgStore(), ledgers, testLimitTable(), nil, 0.8)

	err := e.EnforceAndRecord(context.Background(), user.ID, 10, false)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrQuotaExceeded)
}

func TestEnforce_SequentialDrain(t *testing.T) {
	// 9999 units, then 2 must bounce, then 1 exactly fills the budget.
	user := tierUser("free")
	ledgers := newFakeLedgerStore()
	e := NewEnforcer(newFakeUserStore(user), newFakeOrgStore(), ledgers, testLimitTable(), nil, 0.8)
	ctx := context.Background()

	require.NoError(t, e.EnforceAndRecord(ctx, user.ID, 9999, false))

	err := e.EnforceAndRecord(ctx, user.ID, 2, false)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	require.NoError(t, e.EnforceAndRecord(ctx, user.ID, 1, false))
	assert.Equal(t, int64(10000), ledgers.ledgers[user.ID].TokenUsage)
}

func TestEnforce_WarningAlertsPastThreshold(t *testing.T) {
	user := tierUser("free")
	sink := &fakeAlertSink{}
	e := NewEnforcer(newFakeUserStore(user), newFakeOrgStore(), newFakeLedgerStore(), testLimitTable(), sink, 0.8)
	ctx := context.Background()

	// 7000/10000 = 70%: quiet.
	require.NoError(t, e.EnforceAndRecord(ctx, user.ID, 7000, true))
	assert.Empty(t, sink.events)

	// 8500/10000 = 85%: user-scope alert fires.
	require.NoError(t, e.EnforceAndRecord(ctx, user.ID, 1500, true))
	require.Len(t, sink.events, 1)
	event := sink.events[0]
	assert.Equal(t, inats.AlertScopeUser, event.Scope)
	assert.Equal(t, int64(8500), event.Used)
	assert.Equal(t, int64(10000), event.Limit)
	assert.Equal(t, "member@example.com", event.UserEmail)

	// Alerts re-fire on every call past the threshold.
	require.NoError(t, e.EnforceAndRecord(ctx, user.ID, 100, true))
	assert.Len(t, sink.events, 2)
}

func TestEnforce_WarningsSuppressedWhenDisabled(t *testing.T) {
	user := tierUser("free")
	sink := &fakeAlertSink{}
	e := NewEnforcer(newFakeUserStore(user), newFakeOrgStore(), newFakeLedgerStore(), testLimitTable(), sink, 0.8)

	require.NoError(t, e.EnforceAndRecord(context.Background(), user.ID, 9500, false))
	assert.Empty(t, sink.events)
}

func TestEnforce_OrgAlertCarriesOrgScope(t *testing.T) {
	org := &orgs.Organization{ID: uuid.New(), Name: "Acme", UsageTotalLimit: 10000, UsageUsed: 8000}
	user := orgManagedUser(org.ID, 100000, 0)
	sink := &fakeAlertSink{}
	e := NewEnforcer(newFakeUserStore(user), newFakeOrgStore(org), newFakeLedgerStore(), testLimitTable(), sink, 0.8)

	require.NoError(t, e.EnforceAndRecord(context.Background(), user.ID, 500, true))

	var scopes []string
	for _, ev := range sink.events {
		scopes = append(scopes, ev.Scope)
	}
	assert.Contains(t, scopes, inats.AlertScopeOrganization)
	for _, ev := range sink.events {
		if ev.Scope == inats.AlertScopeOrganization {
			assert.Equal(t, "Acme", ev.OrgName)
			assert.Equal(t, int64(8500), ev.Used)
			assert.Equal(t, int64(10000), ev.Limit)
		}
	}
}

func TestEnforce_UsageEventPerCommit(t *testing.T) {
	user := tierUser("free")
	sink := &fakeAlertSink{}
	e := NewEnforcer(newFakeUserStore(user), newFakeOrgStore(), newFakeLedgerStore(), testLimitTable(), sink, 0.8)
	ctx := context.Background()

	require.NoError(t, e.EnforceAndRecord(ctx, user.ID, 100, false))
	require.Len(t, sink.usage, 1)
	assert.Equal(t, int64(100), sink.usage[0].Units)
	assert.False(t, sink.usage[0].OrgManaged)

	// Denials emit nothing.
	err := e.EnforceAndRecord(ctx, user.ID, 999999, false)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Len(t, sink.usage, 1)
}

func TestEnforce_AlertSinkErrorDoesNotFailCall(t *testing.T) {
	user := tierUser("free")
	sink := &fakeAlertSink{err: errors.New("nats down")}
	e := NewEnforcer(newFakeUserStore(user), newFakeOrgStore(), newFakeLedgerStore(), testLimitTable(), sink, 0.8)

	assert.NoError(t, e.EnforceAndRecord(context.Background(), user.ID, 9500, true))
}
