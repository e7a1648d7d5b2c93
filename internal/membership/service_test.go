package membership

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkhayef/sharesub/internal/pool"
)

type entryKey struct {
	membershipID int64
	cycleDate    time.Time
}

type bookedEntry struct {
	amountCents int64
	dueAt       time.Time
}

// fixture backs the Store and Pools fakes with shared state so slot releases
// and cycle bookings are observable from the tests.
type fixture struct {
	mu          sync.Mutex
	pools       map[int64]*pool.Pool
	memberships map[int64]*Membership
	entries     map[entryKey]bookedEntry
	nextID      int64
}

func newFixture() *fixture {
	return &fixture{
		pools:       make(map[int64]*pool.Pool),
		memberships: make(map[int64]*Membership),
		entries:     make(map[entryKey]bookedEntry),
	}
}

func (f *fixture) addPool(p *pool.Pool) *pool.Pool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p.ID = f.nextID
	f.pools[p.ID] = p
	return p
}

func (f *fixture) addMembership(m *Membership) *Membership {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m.ID = f.nextID
	f.memberships[m.ID] = m
	return m
}

type fakeStore struct{ f *fixture }

func (s *fakeStore) GetByID(ctx context.Context, id int64) (*Membership, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	m, ok := s.f.memberships[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) ListByUser(ctx context.Context, userID int64, status Status) ([]*Membership, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	var out []*Membership
	for _, m := range s.f.memberships {
		if m.UserID == userID && (status == "" || m.Status == status) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) Cancel(ctx context.Context, id int64, now time.Time) (*Membership, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	m, ok := s.f.memberships[id]
	if !ok || m.Status != StatusActive {
		return nil, nil
	}
	m.Status = StatusCancelled
	m.CancelledAt = &now
	m.NextBillingAt = nil
	if p := s.f.pools[m.PoolID]; p != nil && p.SlotsFilled > 0 {
		p.SlotsFilled--
		if p.Status == pool.StatusFull {
			p.Status = pool.StatusOpen
		}
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) Expire(ctx context.Context, id int64) (*Membership, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	m, ok := s.f.memberships[id]
	if !ok || m.Status != StatusActive {
		return nil, nil
	}
	m.Status = StatusExpired
	m.NextBillingAt = nil
	if p := s.f.pools[m.PoolID]; p != nil && p.SlotsFilled > 0 {
		p.SlotsFilled--
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) AdvanceCycle(ctx context.Context, id int64, cycleStart, dueAt, nextBillingAt, prevBillingAt time.Time) (*Membership, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	m, ok := s.f.memberships[id]
	if !ok || m.Status != StatusActive || m.NextBillingAt == nil || !m.NextBillingAt.Equal(prevBillingAt) {
		return nil, nil
	}
	key := entryKey{id, cycleStart}
	if _, booked := s.f.entries[key]; !booked {
		s.f.entries[key] = bookedEntry{amountCents: m.PricePerSlot, dueAt: dueAt}
	}
	next := nextBillingAt
	m.NextBillingAt = &next
	cp := *m
	return &cp, nil
}

func (s *fakeStore) ListDueIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	var ids []int64
	for _, m := range s.f.memberships {
		if m.Status == StatusActive && m.NextBillingAt != nil && !m.NextBillingAt.After(now) {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

type fakePools struct{ f *fixture }

func (p *fakePools) GetByID(ctx context.Context, id int64) (*pool.Pool, error) {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	existing, ok := p.f.pools[id]
	if !ok {
		return nil, pool.ErrPoolNotFound
	}
	cp := *existing
	return &cp, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	reopened []int64
}

func (n *fakeNotifier) NotifySlotReopened(ctx context.Context, ownerID int64, planName string, poolID int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reopened = append(n.reopened, poolID)
	return nil
}

func newTestService(f *fixture) (*Service, *fakeNotifier) {
	notifier := &fakeNotifier{}
	return NewService(&fakeStore{f: f}, &fakePools{f: f}, notifier), notifier
}

func activeMembership(f *fixture, poolID, userID, price int64, nextBilling time.Time) *Membership {
	return f.addMembership(&Membership{
		PoolID:           poolID,
		UserID:           userID,
		Status:           StatusActive,
		PricePerSlot:     price,
		JoinedAt:         nextBilling.AddDate(0, -1, 0),
		BillingAnchorDay: nextBilling.Day(),
		NextBillingAt:    &nextBilling,
	})
}

func TestCancelReleasesSlotExactlyOnce(t *testing.T) {
	f := newFixture()
	p := f.addPool(&pool.Pool{OwnerID: 1, PlanName: "Stream Pro", PricePerSlot: 499, SlotsTotal: 2, SlotsFilled: 2, Status: pool.StatusFull})
	m := activeMembership(f, p.ID, 2, 499, time.Date(2026, time.October, 15, 0, 0, 0, 0, time.UTC))
	svc, notifier := newTestService(f)
	ctx := context.Background()

	cancelled, err := svc.Cancel(ctx, m.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.NextBillingAt)
	assert.Equal(t, 1, f.pools[p.ID].SlotsFilled)
	assert.Equal(t, pool.StatusOpen, f.pools[p.ID].Status)
	assert.Equal(t, []int64{p.ID}, notifier.reopened)

	// A second cancel must not release another slot.
	_, err = svc.Cancel(ctx, m.ID, 2)
	assert.ErrorIs(t, err, ErrNotActive)
	assert.Equal(t, 1, f.pools[p.ID].SlotsFilled)
}

func TestCancelAuthorization(t *testing.T) {
	f := newFixture()
	p := f.addPool(&pool.Pool{OwnerID: 1, PlanName: "Stream Pro", PricePerSlot: 499, SlotsTotal: 2, SlotsFilled: 1, Status: pool.StatusOpen})
	m := activeMembership(f, p.ID, 2, 499, time.Date(2026, time.October, 15, 0, 0, 0, 0, time.UTC))
	svc, _ := newTestService(f)
	ctx := context.Background()

	_, err := svc.Cancel(ctx, m.ID, 99)
	assert.ErrorIs(t, err, ErrNotAllowed)

	// The pool owner may evict the member.
	cancelled, err := svc.Cancel(ctx, m.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
}

func TestAdvanceBeforeBoundaryIsNoop(t *testing.T) {
	f := newFixture()
	p := f.addPool(&pool.Pool{OwnerID: 1, PlanName: "Stream Pro", PricePerSlot: 499, SlotsTotal: 2, SlotsFilled: 1, Status: pool.StatusOpen})
	boundary := time.Date(2026, time.October, 15, 0, 0, 0, 0, time.UTC)
	m := activeMembership(f, p.ID, 2, 499, boundary)
	svc, _ := newTestService(f)

	got, err := svc.AdvanceBillingCycle(context.Background(), m.ID, boundary.AddDate(0, 0, -1))
	require.NoError(t, err)
	require.NotNil(t, got.NextBillingAt)
	assert.True(t, got.NextBillingAt.Equal(boundary))
	assert.Empty(t, f.entries)
}

func TestAdvanceBooksExactlyOneEntryPerCycle(t *testing.T) {
	f := newFixture()
	p := f.addPool(&pool.Pool{OwnerID: 1, PlanName: "Stream Pro", PricePerSlot: 599, SlotsTotal: 2, SlotsFilled: 1, Status: pool.StatusOpen})
	boundary := time.Date(2026, time.October, 15, 0, 0, 0, 0, time.UTC)
	// Joined when the pool cost 499; the pool has since gone up to 599.
	m := activeMembership(f, p.ID, 2, 499, boundary)
	svc, _ := newTestService(f)
	ctx := context.Background()
	now := boundary.Add(2 * time.Hour)

	advanced, err := svc.AdvanceBillingCycle(ctx, m.ID, now)
	require.NoError(t, err)
	require.NotNil(t, advanced.NextBillingAt)
	assert.True(t, advanced.NextBillingAt.Equal(time.Date(2026, time.November, 15, 0, 0, 0, 0, time.UTC)))

	// Re-running for the same instant must not double-book.
	again, err := svc.AdvanceBillingCycle(ctx, m.ID, now)
	require.NoError(t, err)
	assert.True(t, again.NextBillingAt.Equal(*advanced.NextBillingAt))

	require.Len(t, f.entries, 1)
	entry := f.entries[entryKey{m.ID, boundary}]
	assert.Equal(t, int64(499), entry.amountCents, "billed at the locked join price, not the current pool price")
	assert.True(t, entry.dueAt.Equal(boundary.AddDate(0, 0, 7)))
}

func TestAdvanceExpiresMembershipOfClosedPool(t *testing.T) {
	f := newFixture()
	p := f.addPool(&pool.Pool{OwnerID: 1, PlanName: "Stream Pro", PricePerSlot: 499, SlotsTotal: 2, SlotsFilled: 1, Status: pool.StatusClosed})
	boundary := time.Date(2026, time.October, 15, 0, 0, 0, 0, time.UTC)
	m := activeMembership(f, p.ID, 2, 499, boundary)
	svc, _ := newTestService(f)

	got, err := svc.AdvanceBillingCycle(context.Background(), m.ID, boundary.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
	assert.Nil(t, got.NextBillingAt)
	assert.Empty(t, f.entries, "an expiring membership is not billed again")
	assert.Equal(t, 0, f.pools[p.ID].SlotsFilled)
}

func TestAdvanceAllDue(t *testing.T) {
	f := newFixture()
	p := f.addPool(&pool.Pool{OwnerID: 1, PlanName: "Stream Pro", PricePerSlot: 499, SlotsTotal: 4, SlotsFilled: 3, Status: pool.StatusOpen})
	boundary := time.Date(2026, time.October, 15, 0, 0, 0, 0, time.UTC)
	due1 := activeMembership(f, p.ID, 2, 499, boundary)
	due2 := activeMembership(f, p.ID, 3, 499, boundary.AddDate(0, 0, -3))
	notDue := activeMembership(f, p.ID, 4, 499, boundary.AddDate(0, 1, 0))
	svc, _ := newTestService(f)

	advanced, err := svc.AdvanceAllDue(context.Background(), boundary.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, advanced)
	assert.Len(t, f.entries, 2)

	for _, id := range []int64{due1.ID, due2.ID} {
		m, err := svc.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, m.NextBillingAt.After(boundary))
	}
	m, err := svc.GetByID(context.Background(), notDue.ID)
	require.NoError(t, err)
	assert.True(t, m.NextBillingAt.Equal(boundary.AddDate(0, 1, 0)))
}

func TestGetByIDNotFound(t *testing.T) {
	svc, _ := newTestService(newFixture())

	_, err := svc.GetByID(context.Background(), 42)
	assert.ErrorIs(t, err, ErrMembershipNotFound)
}
