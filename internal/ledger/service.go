package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Common errors
var (
	ErrEntryNotFound  = errors.New("ledger entry not found")
	ErrAlreadySettled = errors.New("entry is already settled")
	ErrNotPayer       = errors.New("only the payer can mark an entry paid")
	ErrNotPayee       = errors.New("only the payee can issue a refund")
	ErrNotRefundable  = errors.New("only paid entries can be refunded")
)

// Store is the persistence contract the ledger service needs
type Store interface {
	GetByID(ctx context.Context, id int64) (*Entry, error)
	ListByUser(ctx context.Context, userID int64, direction Direction, status EntryStatus, limit, offset int) ([]*Entry, int, error)
	MarkPaid(ctx context.Context, id int64, now time.Time) (*Entry, error)
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
	NetPosition(ctx context.Context, userID int64, asOf time.Time) (int64, error)
	CollectionCounts(ctx context.Context, ownerID int64) (paid, total int, err error)
	CreateRefund(ctx context.Context, original *Entry, now time.Time) (*Entry, error)
}

// Notifier delivers fire-and-forget events; failures are logged, never
// propagated
type Notifier interface {
	NotifyPaymentReceived(ctx context.Context, payeeID int64, amountCents int64, entryID int64) error
}

// Service reconciles the financial ledger
type Service struct {
	store    Store
	notifier Notifier
}

// NewService creates a new ledger service
func NewService(store Store, notifier Notifier) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
	}
}

// GetByID retrieves an entry by its ID
func (s *Service) GetByID(ctx context.Context, id int64) (*Entry, error) {
	e, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrEntryNotFound
	}
	return e, nil
}

// ListByUser retrieves a user's entries split by direction
func (s *Service) ListByUser(ctx context.Context, userID int64, direction Direction, status EntryStatus, page, perPage int) ([]*Entry, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.store.ListByUser(ctx, userID, direction, status, perPage, offset)
}

// MarkPaid settles an entry. Settling never touches capacity or membership
// status; it only moves the net-position aggregates.
func (s *Service) MarkPaid(ctx context.Context, entryID, actorID int64) (*Entry, error) {
	e, err := s.store.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrEntryNotFound
	}
	if e.PayerID != actorID {
		return nil, ErrNotPayer
	}
	if e.Status == StatusPaid {
		return nil, ErrAlreadySettled
	}

	settled, err := s.store.MarkPaid(ctx, entryID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if settled == nil {
		// Lost a race with another settle.
		return nil, ErrAlreadySettled
	}

	if err := s.notifier.NotifyPaymentReceived(ctx, settled.PayeeID, settled.AmountCents, settled.ID); err != nil {
		log.Warn().Err(err).Int64("entry_id", settled.ID).Msg("failed to notify payment received")
	}

	return settled, nil
}

// MarkOverdue flips unsettled entries past their due date to OVERDUE.
// Time-driven and idempotent; the worker runs it every sweep.
func (s *Service) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	return s.store.MarkOverdue(ctx, now)
}

// NetPosition returns the user's aggregate unsettled position as of the given
// instant; positive means net creditor
func (s *Service) NetPosition(ctx context.Context, userID int64, asOf time.Time) (*NetPositionResponse, error) {
	net, err := s.store.NetPosition(ctx, userID, asOf)
	if err != nil {
		return nil, err
	}
	return NewNetPositionResponse(userID, net), nil
}

// CollectionRate returns the share of an owner's billed entries that were
// collected, as a percentage. An owner with no entries collects at 0%, not a
// division error.
func (s *Service) CollectionRate(ctx context.Context, ownerID int64) (*CollectionRateResponse, error) {
	paid, total, err := s.store.CollectionCounts(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	rate := 0.0
	if total > 0 {
		rate = float64(paid) / float64(total) * 100
	}

	return &CollectionRateResponse{
		OwnerID:      ownerID,
		PaidEntries:  paid,
		TotalEntries: total,
		Rate:         rate,
	}, nil
}

// Refund books a reversing REFUND entry for a settled payment. The original
// entry is never mutated backward; the refund is its own forward-moving fact.
func (s *Service) Refund(ctx context.Context, entryID, actorID int64) (*Entry, error) {
	e, err := s.store.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrEntryNotFound
	}
	if e.PayeeID != actorID {
		return nil, ErrNotPayee
	}
	if e.Status != StatusPaid || e.Type != TypePayment {
		return nil, ErrNotRefundable
	}

	return s.store.CreateRefund(ctx, e, time.Now().UTC())
}
