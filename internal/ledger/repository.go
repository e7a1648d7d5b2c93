package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository handles ledger entry persistence. Entries are append-only facts
// whose status only moves forward.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new ledger repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const entryColumns = `le.id, le.pool_id, le.membership_id, le.payer_id, le.payee_id, le.entry_type, le.status, le.amount_cents, le.cycle_date, le.due_at, le.settled_at, le.created_at`

func scanEntry(row interface{ Scan(...interface{}) error }, joined bool) (*Entry, error) {
	e := &Entry{}
	dest := []interface{}{
		&e.ID,
		&e.PoolID,
		&e.MembershipID,
		&e.PayerID,
		&e.PayeeID,
		&e.Type,
		&e.Status,
		&e.AmountCents,
		&e.CycleDate,
		&e.DueAt,
		&e.SettledAt,
		&e.CreatedAt,
	}
	if joined {
		dest = append(dest, &e.PlanName, &e.PayerUsername, &e.PayeeUsername)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return e, nil
}

// GetByID retrieves an entry by its ID
func (r *Repository) GetByID(ctx context.Context, id int64) (*Entry, error) {
	query := `
		SELECT ` + entryColumns + `, p.plan_name, payer.username, payee.username
		FROM ledger_entries le
		JOIN pools p ON le.pool_id = p.id
		JOIN users payer ON le.payer_id = payer.id
		JOIN users payee ON le.payee_id = payee.id
		WHERE le.id = $1
	`

	e, err := scanEntry(r.db.QueryRowContext(ctx, query, id), true)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	return e, nil
}

// ListByUser retrieves a user's entries split by direction: OWED_BY_ME
// matches entries where the user is payer, OWED_TO_ME where the user is
// payee, empty direction matches both.
func (r *Repository) ListByUser(ctx context.Context, userID int64, direction Direction, status EntryStatus, limit, offset int) ([]*Entry, int, error) {
	where := `
		((($2 = '' OR $2 = 'OWED_BY_ME') AND le.payer_id = $1)
		 OR (($2 = '' OR $2 = 'OWED_TO_ME') AND le.payee_id = $1))
		AND ($3 = '' OR le.status = $3)
	`

	var total int
	countQuery := `SELECT COUNT(*) FROM ledger_entries le WHERE ` + where
	if err := r.db.QueryRowContext(ctx, countQuery, userID, string(direction), string(status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	query := `
		SELECT ` + entryColumns + `, p.plan_name, payer.username, payee.username
		FROM ledger_entries le
		JOIN pools p ON le.pool_id = p.id
		JOIN users payer ON le.payer_id = payer.id
		JOIN users payee ON le.payee_id = payee.id
		WHERE ` + where + `
		ORDER BY le.due_at DESC, le.id DESC
		LIMIT $4 OFFSET $5
	`

	rows, err := r.db.QueryContext(ctx, query, userID, string(direction), string(status), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows, true)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, total, nil
}

// MarkPaid settles an entry. The status condition makes the transition
// one-way; a second call matches nothing. Returns nil when the entry is
// missing or not settleable.
func (r *Repository) MarkPaid(ctx context.Context, id int64, now time.Time) (*Entry, error) {
	query := `
		UPDATE ledger_entries le
		SET status = $2, settled_at = $3
		WHERE le.id = $1 AND le.status IN ('OWED', 'PENDING', 'OVERDUE')
		RETURNING ` + entryColumns

	e, err := scanEntry(r.db.QueryRowContext(ctx, query, id, StatusPaid, now), false)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to mark entry paid: %w", err)
	}

	return e, nil
}

// MarkOverdue flips every unsettled entry past its due date to OVERDUE.
// Re-running is harmless; already-overdue and paid entries never match.
func (r *Repository) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE ledger_entries
		SET status = 'OVERDUE'
		WHERE status IN ('OWED', 'PENDING') AND due_at < $1
	`

	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to mark entries overdue: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

// NetPosition sums a user's unsettled entries: amounts owed to them minus
// amounts they owe, over entries created up to asOf. PAID entries are
// excluded.
func (r *Repository) NetPosition(ctx context.Context, userID int64, asOf time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN le.payee_id = $1 THEN le.amount_cents ELSE -le.amount_cents END), 0)
		FROM ledger_entries le
		WHERE (le.payee_id = $1 OR le.payer_id = $1)
		  AND le.status IN ('OWED', 'PENDING', 'OVERDUE')
		  AND le.created_at <= $2
	`

	var net int64
	if err := r.db.QueryRowContext(ctx, query, userID, asOf).Scan(&net); err != nil {
		return 0, fmt.Errorf("failed to compute net position: %w", err)
	}

	return net, nil
}

// CollectionCounts returns how many entries billed by an owner's pools were
// collected and how many exist in total
func (r *Repository) CollectionCounts(ctx context.Context, ownerID int64) (paid, total int, err error) {
	query := `
		SELECT COUNT(*) FILTER (WHERE le.status = 'PAID'), COUNT(*)
		FROM ledger_entries le
		WHERE le.payee_id = $1 AND le.entry_type = 'PAYMENT'
	`

	if err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&paid, &total); err != nil {
		return 0, 0, fmt.Errorf("failed to count collections: %w", err)
	}

	return paid, total, nil
}

// CreateRefund books a REFUND fact reversing a settled entry: payer and payee
// swap, the amount carries over, and the refund is immediately due
func (r *Repository) CreateRefund(ctx context.Context, original *Entry, now time.Time) (*Entry, error) {
	query := `
		INSERT INTO ledger_entries (pool_id, membership_id, payer_id, payee_id, entry_type, status, amount_cents, cycle_date, due_at)
		VALUES ($1, $2, $3, $4, 'REFUND', 'OWED', $5, $6, $7)
		RETURNING id, pool_id, membership_id, payer_id, payee_id, entry_type, status, amount_cents, cycle_date, due_at, settled_at, created_at
	`

	e := &Entry{}
	err := r.db.QueryRowContext(ctx, query,
		original.PoolID, original.MembershipID, original.PayeeID, original.PayerID,
		original.AmountCents, original.CycleDate, now).
		Scan(&e.ID, &e.PoolID, &e.MembershipID, &e.PayerID, &e.PayeeID, &e.Type, &e.Status,
			&e.AmountCents, &e.CycleDate, &e.DueAt, &e.SettledAt, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create refund entry: %w", err)
	}

	return e, nil
}
