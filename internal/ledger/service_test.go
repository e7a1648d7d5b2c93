package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store mirroring the one-way status transitions of
// the SQL repository.
type fakeStore struct {
	mu      sync.Mutex
	entries map[int64]*Entry
	nextID  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[int64]*Entry)}
}

func (f *fakeStore) add(e *Entry) *Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	e.ID = f.nextID
	if e.Type == "" {
		e.Type = TypePayment
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	f.entries[e.ID] = e
	return e
}

func (f *fakeStore) GetByID(ctx context.Context, id int64) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (f *fakeStore) ListByUser(ctx context.Context, userID int64, direction Direction, status EntryStatus, limit, offset int) ([]*Entry, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Entry
	for _, e := range f.entries {
		byMe := e.PayerID == userID && (direction == "" || direction == DirectionOwedByMe)
		toMe := e.PayeeID == userID && (direction == "" || direction == DirectionOwedToMe)
		if (byMe || toMe) && (status == "" || e.Status == status) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (f *fakeStore) MarkPaid(ctx context.Context, id int64, now time.Time) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok || !e.Settleable() {
		return nil, nil
	}
	e.Status = StatusPaid
	e.SettledAt = &now
	cp := *e
	return &cp, nil
}

func (f *fakeStore) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var flipped int64
	for _, e := range f.entries {
		if (e.Status == StatusOwed || e.Status == StatusPending) && e.DueAt.Before(now) {
			e.Status = StatusOverdue
			flipped++
		}
	}
	return flipped, nil
}

func (f *fakeStore) NetPosition(ctx context.Context, userID int64, asOf time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var net int64
	for _, e := range f.entries {
		if e.Status == StatusPaid || e.CreatedAt.After(asOf) {
			continue
		}
		if e.PayeeID == userID {
			net += e.AmountCents
		} else if e.PayerID == userID {
			net -= e.AmountCents
		}
	}
	return net, nil
}

func (f *fakeStore) CollectionCounts(ctx context.Context, ownerID int64) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	paid, total := 0, 0
	for _, e := range f.entries {
		if e.PayeeID != ownerID || e.Type != TypePayment {
			continue
		}
		total++
		if e.Status == StatusPaid {
			paid++
		}
	}
	return paid, total, nil
}

func (f *fakeStore) CreateRefund(ctx context.Context, original *Entry, now time.Time) (*Entry, error) {
	return f.add(&Entry{
		PoolID:       original.PoolID,
		MembershipID: original.MembershipID,
		PayerID:      original.PayeeID,
		PayeeID:      original.PayerID,
		Type:         TypeRefund,
		Status:       StatusOwed,
		AmountCents:  original.AmountCents,
		CycleDate:    original.CycleDate,
		DueAt:        now,
	}), nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	received []int64
}

func (n *fakeNotifier) NotifyPaymentReceived(ctx context.Context, payeeID int64, amountCents int64, entryID int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.received = append(n.received, entryID)
	return nil
}

func owedEntry(store *fakeStore, payerID, payeeID, amount int64, dueAt time.Time) *Entry {
	return store.add(&Entry{
		PoolID:       1,
		MembershipID: 1,
		PayerID:      payerID,
		PayeeID:      payeeID,
		Status:       StatusOwed,
		AmountCents:  amount,
		CycleDate:    dueAt.AddDate(0, 0, -7),
		DueAt:        dueAt,
	})
}

func TestMarkPaidSettles(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	svc := NewService(store, notifier)
	ctx := context.Background()

	e := owedEntry(store, 2, 1, 499, time.Now().UTC().AddDate(0, 0, 5))

	paid, err := svc.MarkPaid(ctx, e.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)
	require.NotNil(t, paid.SettledAt)
	assert.Equal(t, []int64{e.ID}, notifier.received)

	_, err = svc.MarkPaid(ctx, e.ID, 2)
	assert.ErrorIs(t, err, ErrAlreadySettled)
}

func TestMarkPaidOnlyByPayer(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeNotifier{})

	e := owedEntry(store, 2, 1, 499, time.Now().UTC())

	// Neither the payee nor a stranger can settle on the payer's behalf.
	_, err := svc.MarkPaid(context.Background(), e.ID, 1)
	assert.ErrorIs(t, err, ErrNotPayer)
	_, err = svc.MarkPaid(context.Background(), e.ID, 99)
	assert.ErrorIs(t, err, ErrNotPayer)
}

func TestMarkPaidSettlesOverdueEntry(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeNotifier{})
	ctx := context.Background()

	e := owedEntry(store, 2, 1, 499, time.Now().UTC().AddDate(0, 0, -3))

	flipped, err := svc.MarkOverdue(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), flipped)

	// Late payment still settles.
	paid, err := svc.MarkPaid(ctx, e.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)
}

func TestMarkOverdueLeavesPaidAndFutureAlone(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeNotifier{})
	ctx := context.Background()
	now := time.Now().UTC()

	past := owedEntry(store, 2, 1, 499, now.AddDate(0, 0, -3))
	future := owedEntry(store, 3, 1, 499, now.AddDate(0, 0, 3))
	settled := owedEntry(store, 4, 1, 499, now.AddDate(0, 0, -3))
	_, err := svc.MarkPaid(ctx, settled.ID, 4)
	require.NoError(t, err)

	flipped, err := svc.MarkOverdue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), flipped)

	assert.Equal(t, StatusOverdue, store.entries[past.ID].Status)
	assert.Equal(t, StatusOwed, store.entries[future.ID].Status)
	assert.Equal(t, StatusPaid, store.entries[settled.ID].Status)

	// Idempotent: a second sweep finds nothing new.
	flipped, err = svc.MarkOverdue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), flipped)
}

func TestNetPositionEmpty(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeNotifier{})

	pos, err := svc.NetPosition(context.Background(), 1, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos.AmountCents)
	assert.Equal(t, "You are all settled up", pos.Message)
}

func TestNetPositionCreditorAndDebtor(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeNotifier{})
	ctx := context.Background()
	now := time.Now().UTC()

	// Owner 1 is owed by two members and owes one entry elsewhere.
	owedEntry(store, 2, 1, 499, now.AddDate(0, 0, 5))
	owedEntry(store, 3, 1, 499, now.AddDate(0, 0, 5))
	owedEntry(store, 1, 9, 299, now.AddDate(0, 0, 5))

	pos, err := svc.NetPosition(ctx, 1, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(699), pos.AmountCents)
	assert.Equal(t, "You are owed $6.99", pos.Message)

	pos, err = svc.NetPosition(ctx, 2, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(-499), pos.AmountCents)
	assert.Equal(t, "You owe $4.99", pos.Message)
}

func TestNetPositionSettlingDrivesToZero(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeNotifier{})
	ctx := context.Background()
	now := time.Now().UTC()

	e := owedEntry(store, 2, 1, 499, now.AddDate(0, 0, 5))

	_, err := svc.MarkPaid(ctx, e.ID, 2)
	require.NoError(t, err)

	pos, err := svc.NetPosition(ctx, 2, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos.AmountCents)
}

func TestNetPositionAsOfExcludesLaterEntries(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeNotifier{})
	now := time.Now().UTC()

	early := owedEntry(store, 2, 1, 499, now.AddDate(0, 0, 5))
	late := owedEntry(store, 2, 1, 299, now.AddDate(0, 1, 5))
	store.entries[early.ID].CreatedAt = now.AddDate(0, -1, 0)
	store.entries[late.ID].CreatedAt = now.AddDate(0, 0, 1)

	pos, err := svc.NetPosition(context.Background(), 1, now)
	require.NoError(t, err)
	assert.Equal(t, int64(499), pos.AmountCents)
}

func TestCollectionRate(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeNotifier{})
	ctx := context.Background()
	now := time.Now().UTC()

	// No entries collects at 0%, not a division error.
	rate, err := svc.CollectionRate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, rate.TotalEntries)
	assert.Equal(t, 0.0, rate.Rate)

	paid := owedEntry(store, 2, 1, 499, now)
	owedEntry(store, 3, 1, 499, now)
	_, err = svc.MarkPaid(ctx, paid.ID, 2)
	require.NoError(t, err)

	rate, err = svc.CollectionRate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rate.PaidEntries)
	assert.Equal(t, 2, rate.TotalEntries)
	assert.InDelta(t, 50.0, rate.Rate, 0.001)
}

func TestRefund(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeNotifier{})
	ctx := context.Background()

	e := owedEntry(store, 2, 1, 499, time.Now().UTC())

	// Unsettled entries cannot be refunded.
	_, err := svc.Refund(ctx, e.ID, 1)
	assert.ErrorIs(t, err, ErrNotRefundable)

	_, err = svc.MarkPaid(ctx, e.ID, 2)
	require.NoError(t, err)

	// Only the payee can issue the refund.
	_, err = svc.Refund(ctx, e.ID, 2)
	assert.ErrorIs(t, err, ErrNotPayee)

	refund, err := svc.Refund(ctx, e.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, TypeRefund, refund.Type)
	assert.Equal(t, StatusOwed, refund.Status)
	assert.Equal(t, e.PayeeID, refund.PayerID, "refund reverses the roles")
	assert.Equal(t, e.PayerID, refund.PayeeID)
	assert.Equal(t, e.AmountCents, refund.AmountCents)
}

func TestEntryResponseDirection(t *testing.T) {
	settledAt := time.Date(2026, time.October, 20, 12, 0, 0, 0, time.UTC)
	e := &Entry{
		ID:            7,
		PayerID:       2,
		PayeeID:       1,
		Type:          TypePayment,
		Status:        StatusPaid,
		AmountCents:   499,
		CycleDate:     time.Date(2026, time.October, 15, 0, 0, 0, 0, time.UTC),
		DueAt:         time.Date(2026, time.October, 22, 0, 0, 0, 0, time.UTC),
		SettledAt:     &settledAt,
		PayerUsername: "maya",
		PayeeUsername: "omar",
	}

	fromPayer := e.ToResponse(2)
	assert.Equal(t, DirectionOwedByMe, fromPayer.Direction)
	assert.Equal(t, "omar", fromPayer.Counterparty)

	fromPayee := e.ToResponse(1)
	assert.Equal(t, DirectionOwedToMe, fromPayee.Direction)
	assert.Equal(t, "maya", fromPayee.Counterparty)
}
