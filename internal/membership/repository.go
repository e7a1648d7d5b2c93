package membership

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository handles membership data persistence
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new membership repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const membershipColumns = `m.id, m.pool_id, m.user_id, m.status, m.price_per_slot, m.joined_at, m.billing_anchor_day, m.next_billing_at, m.cancelled_at`

func scanMembership(row interface{ Scan(...interface{}) error }, withPlan bool) (*Membership, error) {
	m := &Membership{}
	dest := []interface{}{
		&m.ID,
		&m.PoolID,
		&m.UserID,
		&m.Status,
		&m.PricePerSlot,
		&m.JoinedAt,
		&m.BillingAnchorDay,
		&m.NextBillingAt,
		&m.CancelledAt,
	}
	if withPlan {
		dest = append(dest, &m.PlanName)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByID retrieves a membership by its ID
func (r *Repository) GetByID(ctx context.Context, id int64) (*Membership, error) {
	query := `
		SELECT ` + membershipColumns + `, p.plan_name
		FROM memberships m
		JOIN pools p ON m.pool_id = p.id
		WHERE m.id = $1
	`

	m, err := scanMembership(r.db.QueryRowContext(ctx, query, id), true)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	return m, nil
}

// ListByUser retrieves a user's memberships, optionally filtered by status
func (r *Repository) ListByUser(ctx context.Context, userID int64, status Status) ([]*Membership, error) {
	query := `
		SELECT ` + membershipColumns + `, p.plan_name
		FROM memberships m
		JOIN pools p ON m.pool_id = p.id
		WHERE m.user_id = $1 AND ($2 = '' OR m.status = $2)
		ORDER BY m.joined_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*Membership
	for rows.Next() {
		m, err := scanMembership(rows, true)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}

	return memberships, nil
}

// Cancel transitions an ACTIVE membership to CANCELLED and releases its pool
// slot in the same transaction, so a cancelled member can never keep a slot
// counted. Returns nil when the membership is missing or not ACTIVE.
func (r *Repository) Cancel(ctx context.Context, id int64, now time.Time) (*Membership, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin cancel transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE memberships m
		SET status = $2, cancelled_at = $3, next_billing_at = NULL
		WHERE m.id = $1 AND m.status = $4
		RETURNING ` + membershipColumns

	m, err := scanMembership(tx.QueryRowContext(ctx, query, id, StatusCancelled, now, StatusActive), false)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to cancel membership: %w", err)
	}

	release := `
		UPDATE pools
		SET slots_filled = slots_filled - 1,
		    status = CASE WHEN status = 'FULL' THEN 'OPEN' ELSE status END
		WHERE id = $1 AND slots_filled > 0
	`
	result, err := tx.ExecContext(ctx, release, m.PoolID)
	if err != nil {
		return nil, fmt.Errorf("failed to release pool slot: %w", err)
	}
	released, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if released == 0 {
		// An active membership without a counted slot means the books are
		// already wrong; refuse to make it worse.
		return nil, fmt.Errorf("pool %d has no filled slots for membership %d", m.PoolID, m.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cancel transaction: %w", err)
	}

	return m, nil
}

// Expire transitions an ACTIVE membership to EXPIRED (its pool was closed)
// and releases the slot. Returns nil when the membership is missing or not
// ACTIVE.
func (r *Repository) Expire(ctx context.Context, id int64) (*Membership, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin expire transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE memberships m
		SET status = $2, next_billing_at = NULL
		WHERE m.id = $1 AND m.status = $3
		RETURNING ` + membershipColumns

	m, err := scanMembership(tx.QueryRowContext(ctx, query, id, StatusExpired, StatusActive), false)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to expire membership: %w", err)
	}

	release := `
		UPDATE pools
		SET slots_filled = slots_filled - 1
		WHERE id = $1 AND slots_filled > 0
	`
	if _, err := tx.ExecContext(ctx, release, m.PoolID); err != nil {
		return nil, fmt.Errorf("failed to release pool slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit expire transaction: %w", err)
	}

	return m, nil
}

// AdvanceCycle books the OWED ledger entry for the cycle starting at
// cycleStart and moves next_billing_at forward, as one transaction. The entry
// insert is keyed on (membership_id, cycle_date) and the schedule update is
// conditional on the previous next_billing_at, so running twice for the same
// boundary books exactly one entry and advances the schedule exactly once.
func (r *Repository) AdvanceCycle(ctx context.Context, id int64, cycleStart, dueAt, nextBillingAt, prevBillingAt time.Time) (*Membership, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin advance transaction: %w", err)
	}
	defer tx.Rollback()

	book := `
		INSERT INTO ledger_entries (pool_id, membership_id, payer_id, payee_id, entry_type, status, amount_cents, cycle_date, due_at)
		SELECT m.pool_id, m.id, m.user_id, p.owner_id, 'PAYMENT', 'OWED', m.price_per_slot, $2, $3
		FROM memberships m
		JOIN pools p ON m.pool_id = p.id
		WHERE m.id = $1 AND m.status = 'ACTIVE'
		ON CONFLICT (membership_id, cycle_date) WHERE entry_type = 'PAYMENT' DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, book, id, cycleStart, dueAt); err != nil {
		return nil, fmt.Errorf("failed to book cycle entry: %w", err)
	}

	advance := `
		UPDATE memberships m
		SET next_billing_at = $2
		WHERE m.id = $1 AND m.status = 'ACTIVE' AND m.next_billing_at = $3
		RETURNING ` + membershipColumns

	m, err := scanMembership(tx.QueryRowContext(ctx, advance, id, nextBillingAt, prevBillingAt), false)
	if err != nil {
		if err == sql.ErrNoRows {
			// Another sweep already advanced this membership; nothing to do.
			return nil, nil
		}
		return nil, fmt.Errorf("failed to advance billing schedule: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit advance transaction: %w", err)
	}

	return m, nil
}

// ListDueIDs returns the IDs of ACTIVE memberships whose billing boundary has
// been reached
func (r *Repository) ListDueIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	query := `
		SELECT id FROM memberships
		WHERE status = 'ACTIVE' AND next_billing_at IS NOT NULL AND next_billing_at <= $1
		ORDER BY next_billing_at
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due memberships: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan membership id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}
