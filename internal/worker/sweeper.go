package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Memberships is the slice of the membership service the sweeper needs
type Memberships interface {
	AdvanceAllDue(ctx context.Context, now time.Time) (int, error)
}

// Ledger is the slice of the ledger service the sweeper needs
type Ledger interface {
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically advances due billing cycles and marks unsettled
// entries overdue. Both operations are idempotent, so an overlapping or
// restarted sweep can never double-book.
type Sweeper struct {
	memberships Memberships
	ledger      Ledger
	interval    time.Duration
}

// NewSweeper creates a new sweeper
func NewSweeper(memberships Memberships, ledger Ledger, interval time.Duration) *Sweeper {
	return &Sweeper{
		memberships: memberships,
		ledger:      ledger,
		interval:    interval,
	}
}

// Start runs the sweep loop until the context is cancelled. Blocking call.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("billing sweeper started")

	// One sweep up front so a restarted service catches up immediately.
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("billing sweeper stopping")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	now := time.Now().UTC()

	advanced, err := s.memberships.AdvanceAllDue(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("billing cycle sweep failed")
	}

	overdue, err := s.ledger.MarkOverdue(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("overdue sweep failed")
	}

	if advanced > 0 || overdue > 0 {
		log.Info().Int("cycles_advanced", advanced).Int64("marked_overdue", overdue).Msg("sweep complete")
	}
}
