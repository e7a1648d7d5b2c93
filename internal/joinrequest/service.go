package joinrequest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fkhayef/sharesub/internal/membership"
	"github.com/fkhayef/sharesub/internal/pool"
)

// Common errors
var (
	ErrRequestNotFound = errors.New("join request not found")
	ErrAlreadyResolved = errors.New("join request is already resolved")
	ErrAlreadyMember   = errors.New("user already has a slot in this pool")
	ErrPoolUnavailable = errors.New("pool is not accepting join requests")
	ErrOwnPool         = errors.New("cannot request to join your own pool")
	ErrNotOwner        = errors.New("only the pool owner can resolve requests")
	ErrNotRequester    = errors.New("only the requester can withdraw")
)

// Store is the persistence contract the workflow needs
type Store interface {
	Create(ctx context.Context, poolID, requesterID int64, message string) (*JoinRequest, error)
	GetByID(ctx context.Context, id int64) (*JoinRequest, error)
	ListByPool(ctx context.Context, poolID int64, status Status) ([]*JoinRequest, error)
	ListByRequester(ctx context.Context, requesterID int64) ([]*JoinRequest, error)
	Resolve(ctx context.Context, id int64, status Status, now time.Time) (*JoinRequest, error)
	HasActiveMembership(ctx context.Context, poolID, userID int64) (bool, error)
	Approve(ctx context.Context, requestID int64, nm membership.NewMembership) (*membership.Membership, error)
}

// Pools is the slice of the pool registry the workflow needs
type Pools interface {
	GetByID(ctx context.Context, id int64) (*pool.Pool, error)
}

// Notifier delivers fire-and-forget events; failures are logged, never
// propagated
type Notifier interface {
	NotifyJoinRequested(ctx context.Context, ownerID int64, planName string, requestID int64) error
	NotifyRequestApproved(ctx context.Context, requesterID int64, planName string, poolID int64) error
}

// Service mediates join requests against pool capacity
type Service struct {
	store    Store
	pools    Pools
	notifier Notifier
}

// NewService creates a new join request service
func NewService(store Store, pools Pools, notifier Notifier) *Service {
	return &Service{
		store:    store,
		pools:    pools,
		notifier: notifier,
	}
}

// Submit files a join request against a pool. Auto-approve pools resolve the
// request immediately through the same approval transaction every manual
// approval uses.
func (s *Service) Submit(ctx context.Context, requesterID int64, req *SubmitRequest) (*JoinRequest, error) {
	p, err := s.pools.GetByID(ctx, req.PoolID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID == requesterID {
		return nil, ErrOwnPool
	}
	if !p.Joinable() {
		return nil, ErrPoolUnavailable
	}

	member, err := s.store.HasActiveMembership(ctx, req.PoolID, requesterID)
	if err != nil {
		return nil, err
	}
	if member {
		return nil, ErrAlreadyMember
	}

	jr, err := s.store.Create(ctx, req.PoolID, requesterID, req.Message)
	if err != nil {
		return nil, err
	}

	if p.AutoApprove {
		nm := membership.AtJoin(p.ID, requesterID, p.PricePerSlot, time.Now().UTC())
		if _, err := s.store.Approve(ctx, jr.ID, nm); err != nil {
			if errors.Is(err, pool.ErrCapacityExceeded) {
				// Lost the last slot between the capacity check and the
				// claim; the request stays PENDING for a future opening.
				return nil, ErrPoolUnavailable
			}
			return nil, err
		}
		jr, err = s.store.GetByID(ctx, jr.ID)
		if err != nil {
			return nil, err
		}
		if err := s.notifier.NotifyRequestApproved(ctx, requesterID, p.PlanName, p.ID); err != nil {
			log.Warn().Err(err).Int64("request_id", jr.ID).Msg("failed to notify request approved")
		}
		return jr, nil
	}

	if err := s.notifier.NotifyJoinRequested(ctx, p.OwnerID, p.PlanName, jr.ID); err != nil {
		log.Warn().Err(err).Int64("request_id", jr.ID).Msg("failed to notify join requested")
	}

	return jr, nil
}

// Approve accepts a pending request. The capacity increment, the membership
// creation, and the first ledger entry apply as a single atomic unit; losing
// a race for the last slot surfaces pool.ErrCapacityExceeded and leaves the
// request PENDING for the owner to re-resolve.
func (s *Service) Approve(ctx context.Context, requestID, actorID int64) (*membership.Membership, error) {
	jr, err := s.store.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if jr == nil {
		return nil, ErrRequestNotFound
	}

	p, err := s.pools.GetByID(ctx, jr.PoolID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != actorID {
		return nil, ErrNotOwner
	}
	if jr.Status != StatusPending {
		return nil, ErrAlreadyResolved
	}

	nm := membership.AtJoin(p.ID, jr.RequesterID, p.PricePerSlot, time.Now().UTC())
	m, err := s.store.Approve(ctx, requestID, nm)
	if err != nil {
		return nil, err
	}

	if err := s.notifier.NotifyRequestApproved(ctx, jr.RequesterID, p.PlanName, p.ID); err != nil {
		log.Warn().Err(err).Int64("request_id", requestID).Msg("failed to notify request approved")
	}

	return m, nil
}

// Reject declines a pending request; capacity is untouched
func (s *Service) Reject(ctx context.Context, requestID, actorID int64) (*JoinRequest, error) {
	jr, err := s.store.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if jr == nil {
		return nil, ErrRequestNotFound
	}

	p, err := s.pools.GetByID(ctx, jr.PoolID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != actorID {
		return nil, ErrNotOwner
	}

	resolved, err := s.store.Resolve(ctx, requestID, StatusRejected, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return nil, ErrAlreadyResolved
	}

	return resolved, nil
}

// Withdraw lets the requester retract a still-pending request
func (s *Service) Withdraw(ctx context.Context, requestID, requesterID int64) (*JoinRequest, error) {
	jr, err := s.store.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if jr == nil {
		return nil, ErrRequestNotFound
	}
	if jr.RequesterID != requesterID {
		return nil, ErrNotRequester
	}

	resolved, err := s.store.Resolve(ctx, requestID, StatusWithdrawn, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return nil, ErrAlreadyResolved
	}

	return resolved, nil
}

// GetByID retrieves a join request by its ID
func (s *Service) GetByID(ctx context.Context, id int64) (*JoinRequest, error) {
	jr, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if jr == nil {
		return nil, ErrRequestNotFound
	}
	return jr, nil
}

// ListByPool retrieves a pool's join requests for its owner
func (s *Service) ListByPool(ctx context.Context, poolID, actorID int64, status Status) ([]*JoinRequest, error) {
	p, err := s.pools.GetByID(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != actorID {
		return nil, ErrNotOwner
	}

	return s.store.ListByPool(ctx, poolID, status)
}

// ListByRequester retrieves the requests a user has submitted
func (s *Service) ListByRequester(ctx context.Context, requesterID int64) ([]*JoinRequest, error) {
	return s.store.ListByRequester(ctx, requesterID)
}
