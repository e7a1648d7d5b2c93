package membership

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fkhayef/sharesub/internal/membership/billing"
	"github.com/fkhayef/sharesub/internal/pool"
)

// Common errors
var (
	ErrMembershipNotFound = errors.New("membership not found")
	ErrNotActive          = errors.New("membership is not active")
	ErrNotAllowed         = errors.New("only the member or the pool owner can cancel")
)

// sweepBatchSize limits how many due memberships a single sweep picks up
const sweepBatchSize = 100

// Store is the persistence contract the membership service needs
type Store interface {
	GetByID(ctx context.Context, id int64) (*Membership, error)
	ListByUser(ctx context.Context, userID int64, status Status) ([]*Membership, error)
	Cancel(ctx context.Context, id int64, now time.Time) (*Membership, error)
	Expire(ctx context.Context, id int64) (*Membership, error)
	AdvanceCycle(ctx context.Context, id int64, cycleStart, dueAt, nextBillingAt, prevBillingAt time.Time) (*Membership, error)
	ListDueIDs(ctx context.Context, now time.Time, limit int) ([]int64, error)
}

// Pools is the slice of the pool registry the membership service needs
type Pools interface {
	GetByID(ctx context.Context, id int64) (*pool.Pool, error)
}

// Notifier delivers fire-and-forget events; failures are logged, never
// propagated
type Notifier interface {
	NotifySlotReopened(ctx context.Context, ownerID int64, planName string, poolID int64) error
}

// Service handles membership business logic
type Service struct {
	store    Store
	pools    Pools
	notifier Notifier
}

// NewService creates a new membership service
func NewService(store Store, pools Pools, notifier Notifier) *Service {
	return &Service{
		store:    store,
		pools:    pools,
		notifier: notifier,
	}
}

// GetByID retrieves a membership by its ID
func (s *Service) GetByID(ctx context.Context, id int64) (*Membership, error) {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMembershipNotFound
	}
	return m, nil
}

// ListByUser retrieves a user's memberships
func (s *Service) ListByUser(ctx context.Context, userID int64, status Status) ([]*Membership, error) {
	return s.store.ListByUser(ctx, userID, status)
}

// Cancel ends a membership and releases its slot. Entries already OWED stay
// payable; the member consumed that time.
func (s *Service) Cancel(ctx context.Context, id, actorID int64) (*Membership, error) {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMembershipNotFound
	}
	if m.Status != StatusActive {
		return nil, ErrNotActive
	}

	p, err := s.pools.GetByID(ctx, m.PoolID)
	if err != nil {
		return nil, err
	}
	if actorID != m.UserID && (p == nil || actorID != p.OwnerID) {
		return nil, ErrNotAllowed
	}

	cancelled, err := s.store.Cancel(ctx, id, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if cancelled == nil {
		// Lost a race with another cancel.
		return nil, ErrNotActive
	}

	if p != nil {
		if err := s.notifier.NotifySlotReopened(ctx, p.OwnerID, p.PlanName, p.ID); err != nil {
			log.Warn().Err(err).Int64("pool_id", p.ID).Msg("failed to notify slot reopened")
		}
	}

	return cancelled, nil
}

// AdvanceBillingCycle books the OWED entry for a reached billing boundary and
// moves the schedule one cycle forward. Safe to call repeatedly: before the
// boundary it is a no-op, and at the boundary the store books at most one
// entry per (membership, cycle). Memberships of CLOSED pools expire instead
// of billing again.
func (s *Service) AdvanceBillingCycle(ctx context.Context, id int64, now time.Time) (*Membership, error) {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMembershipNotFound
	}
	if m.Status != StatusActive || m.NextBillingAt == nil || now.Before(*m.NextBillingAt) {
		return m, nil
	}

	p, err := s.pools.GetByID(ctx, m.PoolID)
	if err != nil {
		return nil, err
	}
	if p != nil && p.Status == pool.StatusClosed {
		expired, err := s.store.Expire(ctx, id)
		if err != nil {
			return nil, err
		}
		if expired == nil {
			return m, nil
		}
		return expired, nil
	}

	cycleStart := *m.NextBillingAt
	advanced, err := s.store.AdvanceCycle(ctx, id,
		cycleStart,
		billing.DueDate(cycleStart),
		billing.NextCycle(cycleStart, m.BillingAnchorDay),
		cycleStart,
	)
	if err != nil {
		return nil, err
	}
	if advanced == nil {
		// A concurrent sweep got there first; re-read the current state.
		return s.GetByID(ctx, id)
	}

	return advanced, nil
}

// AdvanceAllDue advances every membership whose billing boundary has been
// reached. Individual failures do not stop the sweep; the count of advanced
// memberships and the first error are returned.
func (s *Service) AdvanceAllDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.store.ListDueIDs(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	advanced := 0
	var firstErr error
	for _, id := range ids {
		if _, err := s.AdvanceBillingCycle(ctx, id, now); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		advanced++
	}

	return advanced, firstErr
}
