package joinrequest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkhayef/sharesub/internal/membership"
	"github.com/fkhayef/sharesub/internal/pool"
)

type memberKey struct {
	poolID int64
	userID int64
}

// fixture holds the shared state behind the Store and Pools fakes. Approve
// mirrors the repository transaction: resolve, claim, insert, all-or-nothing
// under one lock.
type fixture struct {
	mu          sync.Mutex
	pools       map[int64]*pool.Pool
	requests    map[int64]*JoinRequest
	members     map[memberKey]bool
	memberships map[int64]*membership.Membership
	nextID      int64
}

func newFixture() *fixture {
	return &fixture{
		pools:       make(map[int64]*pool.Pool),
		requests:    make(map[int64]*JoinRequest),
		members:     make(map[memberKey]bool),
		memberships: make(map[int64]*membership.Membership),
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

func (f *fixture) addRequest(poolID, requesterID int64) *JoinRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	jr := &JoinRequest{
		ID:          f.nextID,
		PoolID:      poolID,
		RequesterID: requesterID,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	f.requests[jr.ID] = jr
	return jr
}

type fakeStore struct{ f *fixture }

func (s *fakeStore) Create(ctx context.Context, poolID, requesterID int64, message string) (*JoinRequest, error) {
	jr := s.f.addRequest(poolID, requesterID)
	jr.Message = message
	return jr, nil
}

func (s *fakeStore) GetByID(ctx context.Context, id int64) (*JoinRequest, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	jr, ok := s.f.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *jr
	return &cp, nil
}

func (s *fakeStore) ListByPool(ctx context.Context, poolID int64, status Status) ([]*JoinRequest, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	var out []*JoinRequest
	for _, jr := range s.f.requests {
		if jr.PoolID == poolID && (status == "" || jr.Status == status) {
			cp := *jr
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) ListByRequester(ctx context.Context, requesterID int64) ([]*JoinRequest, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	var out []*JoinRequest
	for _, jr := range s.f.requests {
		if jr.RequesterID == requesterID {
			cp := *jr
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) Resolve(ctx context.Context, id int64, status Status, now time.Time) (*JoinRequest, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	jr, ok := s.f.requests[id]
	if !ok || jr.Status != StatusPending {
		return nil, nil
	}
	jr.Status = status
	jr.ResolvedAt = &now
	cp := *jr
	return &cp, nil
}

func (s *fakeStore) HasActiveMembership(ctx context.Context, poolID, userID int64) (bool, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	return s.f.members[memberKey{poolID, userID}], nil
}

func (s *fakeStore) Approve(ctx context.Context, requestID int64, nm membership.NewMembership) (*membership.Membership, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()

	jr, ok := s.f.requests[requestID]
	if !ok || jr.Status != StatusPending {
		return nil, ErrAlreadyResolved
	}
	p := s.f.pools[jr.PoolID]
	if p.Status != pool.StatusOpen || p.SlotsFilled >= p.SlotsTotal {
		// The request stays PENDING, exactly like the rolled-back transaction.
		return nil, pool.ErrCapacityExceeded
	}
	if s.f.members[memberKey{jr.PoolID, jr.RequesterID}] {
		return nil, ErrAlreadyMember
	}

	p.SlotsFilled++
	if p.SlotsFilled >= p.SlotsTotal {
		p.Status = pool.StatusFull
	}
	jr.Status = StatusApproved
	jr.ResolvedAt = &nm.JoinedAt
	s.f.members[memberKey{jr.PoolID, jr.RequesterID}] = true

	s.f.nextID++
	next := nm.NextBillingAt
	m := &membership.Membership{
		ID:               s.f.nextID,
		PoolID:           jr.PoolID,
		UserID:           jr.RequesterID,
		Status:           membership.StatusActive,
		PricePerSlot:     nm.PricePerSlot,
		JoinedAt:         nm.JoinedAt,
		BillingAnchorDay: nm.BillingAnchorDay,
		NextBillingAt:    &next,
	}
	s.f.memberships[m.ID] = m
	return m, nil
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
	mu        sync.Mutex
	requested []int64
	approved  []int64
}

func (n *fakeNotifier) NotifyJoinRequested(ctx context.Context, ownerID int64, planName string, requestID int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requested = append(n.requested, requestID)
	return nil
}

func (n *fakeNotifier) NotifyRequestApproved(ctx context.Context, requesterID int64, planName string, poolID int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.approved = append(n.approved, requesterID)
	return nil
}

func newTestService(f *fixture) (*Service, *fakeNotifier) {
	notifier := &fakeNotifier{}
	return NewService(&fakeStore{f: f}, &fakePools{f: f}, notifier), notifier
}

func TestSubmitOwnPool(t *testing.T) {
	f := newFixture()
	p := f.addPool(&pool.Pool{OwnerID: 1, PlanName: "Stream Pro", PricePerSlot: 499, SlotsTotal: 4, Status: pool.StatusOpen})
	svc, _ := newTestService(f)

	_, err := svc.Submit(context.Background(), 1, &SubmitRequest{PoolID: p.ID})
	assert.ErrorIs(t, err, ErrOwnPool)
}

func TestSubmitUnjoinablePool(t *testing.T) {
	f := newFixture()
	full := f.addPool(&pool.Pool{OwnerID: 1, PlanName: "Stream Pro", PricePerSlot: 499, SlotsTotal: 2, SlotsFilled: 2, Status: pool.StatusFull})
	closed := f.addPool(&pool.Pool{OwnerID: 1, PlanName: "Music Duo", PricePerSlot: 299, SlotsTotal: 2, Status: pool.StatusClosed})
	svc, _ := newTestService(f)
	ctx := context.Background()

	_, err := svc.Submit(ctx, 2, &SubmitRequest{PoolID: full.ID})
	assert.ErrorIs(t, err, ErrPoolUnavailable)

	_, err = svc.Submit(ctx, 2, &SubmitRequest{PoolID: closed.ID})
	assert.ErrorIs(t, err, ErrPoolUnavailable)
}

func TestSubmitAlreadyMember(t *testing.T) {
	f := newFixture()
	p := f.addPool(&pool.Pool{OwnerID: 1, PlanName: "Stream Pro", PricePerSlot: 499, SlotsTotal: 4, SlotsFilled: 1, Status: pool.StatusOpen})
	f.members[memberKey{p.ID, 2}] = true
	svc, _ := newTestService(f)

	_, err := svc.Submit(context.Background(), 2, &SubmitRequest{PoolID: p.ID})
	assert.ErrorIs(t, err, ErrAlreadyMember)
}

func TestSubmitNotifiesOwner(t *testing.T) {
	f := newFixture()
	p := f.addPool(&pool.Pool{OwnerID: 1, PlanName: "Stream Pro", PricePerSlot: 499, SlotsTotal: 4, Status: pool.StatusOpen})
	svc, notifier := newTestService(f)

	jr, err := svc.Submit(context.Background(), 2, &SubmitRequest{PoolID: p.ID, Message: "room for one more?"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, jr.Status)
	assert.Equal(t, []int64{jr.ID}, notifier.requested)
}

func TestSubmitAutoApprove(t *testing.T) {
	f := newFixture()
	p := f.addPool(&pool.Pool{OwnerID: 1, PlanName: "Stream Pro", PricePerSlot: 499, SlotsTotal: 4, Status: pool.StatusOpen, AutoApprove: true})
	svc, notifier := newTestService(f)

	jr, err := svc.Submit(context.Background(), 2, &SubmitRequest{PoolID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, jr.Status)
	assert.Equal(t, []int64{2}, notifier.approved)

	assert.Equal(t, 1, f.pools[p.ID].SlotsFilled)
	assert.True(t, f.members[memberKey{p.ID, 2}])
}

func TestApproveCreatesMembershipAtLockedPrice(t *testing.T) {
	f := newFixture()
	p := f.addPool(&pool.Pool{OwnerID: 1, PlanName: "Stream Pro", PricePerSlot: 499, SlotsTotal: 4, Status: pool.StatusOpen})
	jr := f.addRequest(p.ID, 2)
	svc, notifier := newTestService(f)

	m, err := svc.Approve(context.Background(), jr.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.UserID)
	assert.Equal(t, int64(499), m.PricePerSlot)
	assert.Equal(t, membership.StatusActive, m.Status)
	require.NotNil(t, m.NextBillingAt)
	assert.Equal(t, []int64{2}, notifier.approved)
	assert.Equal(t, 1, f.pools[p.ID].SlotsFilled)
}

func TestApproveOnlyByOwner(t *testing.T) {
	f := newFixture()
	p := f.addPool(&pool.Pool{OwnerID: 1, PlanName: "Stream Pro", PricePerSlot: 499, SlotsTotal: 4, Status: pool.StatusOpen})
	jr := f.addRequest(p.ID, 2)
	svc, _ := newTestService(f)

	_, err := svc.Approve(context.Background(), jr.ID, 2)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestApproveAlreadyResolved(t *testing.T) {
	f := newFixture()
	p := f.addPool(&pool.Pool{OwnerID: 1, PlanName: "Stream Pro", PricePerSlot: 499, SlotsTotal: 4, Status: pool.StatusOpen})
	jr := f.addRequest(p.ID, 2)
	jr.Status = StatusRejected
	svc, _ := newTestService(f)

	_, err := svc.Approve(context.Background(), jr.ID, 1)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestApproveConcurrentLastSlot(t *testing.T) {
	f := newFixture()
	p := f.addPool(&pool.Pool{OwnerID: 1, PlanName: "Stream Pro", PricePerSlot: 499, SlotsTotal: 2, SlotsFilled: 1, Status: pool.StatusOpen})
	first := f.addRequest(p.ID, 2)
	second := f.addRequest(p.ID, 3)
	svc, _ := newTestService(f)
	ctx := context.Background()

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, id := range []int64{first.ID, second.ID} {
		wg.Add(1)
		go func(requestID int64) {
			defer wg.Done()
			_, err := svc.Approve(ctx, requestID, 1)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	won, lost := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			won++
		default:
			assert.ErrorIs(t, err, pool.ErrCapacityExceeded)
			lost++
		}
	}
	assert.Equal(t, 1, won, "only one approval can claim the last slot")
	assert.Equal(t, 1, lost)

	// The loser's request must survive as PENDING for a future opening.
	f.mu.Lock()
	defer f.mu.Unlock()
	pending := 0
	for _, jr := range f.requests {
		if jr.Status == StatusPending {
			pending++
		}
	}
	assert.Equal(t, 1, pending)
	assert.Equal(t, 2, f.pools[p.ID].SlotsFilled)
	assert.Equal(t, pool.StatusFull, f.pools[p.ID].Status)
}

func TestRejectLeavesCapacityUntouched(t *testing.T) {
	f := newFixture()
	p := f.addPool(&pool.Pool{OwnerID: 1, PlanName: "Stream Pro", PricePerSlot: 499, SlotsTotal: 4, SlotsFilled: 1, Status: pool.StatusOpen})
	jr := f.addRequest(p.ID, 2)
	svc, _ := newTestService(f)

	rejected, err := svc.Reject(context.Background(), jr.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, 1, f.pools[p.ID].SlotsFilled)
}

func TestWithdrawOnlyByRequester(t *testing.T) {
	f := newFixture()
	p := f.addPool(&pool.Pool{OwnerID: 1, PlanName: "Stream Pro", PricePerSlot: 499, SlotsTotal: 4, Status: pool.StatusOpen})
	jr := f.addRequest(p.ID, 2)
	svc, _ := newTestService(f)
	ctx := context.Background()

	_, err := svc.Withdraw(ctx, jr.ID, 3)
	assert.ErrorIs(t, err, ErrNotRequester)

	withdrawn, err := svc.Withdraw(ctx, jr.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusWithdrawn, withdrawn.Status)

	_, err = svc.Withdraw(ctx, jr.ID, 2)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}
