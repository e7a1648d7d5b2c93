package pool

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrPoolNotFound     = errors.New("pool not found")
	ErrInvalidSlotCount = errors.New("a pool needs at least 2 slots")
	ErrInvalidPrice     = errors.New("price per slot must be positive")
	ErrCapacityExceeded = errors.New("pool has no free slots")
	ErrPoolClosed       = errors.New("pool is closed")
	ErrNoFilledSlots    = errors.New("pool has no filled slots to release")
	ErrNotOwner         = errors.New("only the pool owner can do this")
)

// MinSlots is the smallest pool worth sharing; a single-slot pool is just a
// personal subscription.
const MinSlots = 2

// Store is the persistence contract the pool service needs
type Store interface {
	Create(ctx context.Context, ownerID int64, req *CreatePoolRequest) (*Pool, error)
	GetByID(ctx context.Context, id int64) (*Pool, error)
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Pool, int, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*Pool, error)
	IncrementFill(ctx context.Context, id int64) (*Pool, error)
	DecrementFill(ctx context.Context, id int64) (*Pool, error)
	SetStatus(ctx context.Context, id int64, status Status) (*Pool, error)
}

// Service handles pool business logic
type Service struct {
	store Store
}

// NewService creates a new pool service
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create creates a new pool for the owner
func (s *Service) Create(ctx context.Context, ownerID int64, req *CreatePoolRequest) (*Pool, error) {
	if req.SlotsTotal < MinSlots {
		return nil, ErrInvalidSlotCount
	}
	if req.PricePerSlot <= 0 {
		return nil, ErrInvalidPrice
	}

	return s.store.Create(ctx, ownerID, req)
}

// GetByID retrieves a pool by its ID
func (s *Service) GetByID(ctx context.Context, id int64) (*Pool, error) {
	pool, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrPoolNotFound
	}
	return pool, nil
}

// List retrieves pools matching the filter with pagination
func (s *Service) List(ctx context.Context, filter ListFilter, page, perPage int) ([]*Pool, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.store.List(ctx, filter, perPage, offset)
}

// ListByOwner retrieves all pools owned by a user
func (s *Service) ListByOwner(ctx context.Context, ownerID int64) ([]*Pool, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// IncrementFill claims one slot. The store applies the capacity check and the
// increment as one conditional update, so a lost race surfaces here as
// ErrCapacityExceeded rather than an overbooked pool.
func (s *Service) IncrementFill(ctx context.Context, id int64) (*Pool, error) {
	pool, err := s.store.IncrementFill(ctx, id)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		return pool, nil
	}

	// The conditional update matched nothing; find out why.
	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrPoolNotFound
	}
	if existing.Status == StatusClosed {
		return nil, ErrPoolClosed
	}
	return nil, ErrCapacityExceeded
}

// DecrementFill releases one slot on membership cancellation or expiry
func (s *Service) DecrementFill(ctx context.Context, id int64) (*Pool, error) {
	pool, err := s.store.DecrementFill(ctx, id)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		return pool, nil
	}

	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrPoolNotFound
	}
	return nil, ErrNoFilledSlots
}

// Close permanently closes a pool. Closing is terminal and owner-gated; fill
// level does not matter.
func (s *Service) Close(ctx context.Context, id, actorID int64) (*Pool, error) {
	pool, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrPoolNotFound
	}
	if pool.OwnerID != actorID {
		return nil, ErrNotOwner
	}
	if pool.Status == StatusClosed {
		return pool, nil
	}

	return s.store.SetStatus(ctx, id, StatusClosed)
}
