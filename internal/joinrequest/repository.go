package joinrequest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/fkhayef/sharesub/internal/membership"
	"github.com/fkhayef/sharesub/internal/pool"
)

// uniqueViolation is the Postgres error code raised by the partial unique
// index on active (pool_id, user_id) memberships
const uniqueViolation = "23505"

// Repository handles join request data persistence
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new join request repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const requestColumns = `jr.id, jr.pool_id, jr.requester_id, jr.status, jr.message, jr.created_at, jr.resolved_at`

func scanRequest(row interface{ Scan(...interface{}) error }, joined bool) (*JoinRequest, error) {
	j := &JoinRequest{}
	dest := []interface{}{
		&j.ID,
		&j.PoolID,
		&j.RequesterID,
		&j.Status,
		&j.Message,
		&j.CreatedAt,
		&j.ResolvedAt,
	}
	if joined {
		dest = append(dest, &j.RequesterUsername, &j.PlanName)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return j, nil
}

// Create inserts a new pending join request
func (r *Repository) Create(ctx context.Context, poolID, requesterID int64, message string) (*JoinRequest, error) {
	query := `
		INSERT INTO join_requests (pool_id, requester_id, status, message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, pool_id, requester_id, status, message, created_at, resolved_at
	`

	j, err := scanRequest(r.db.QueryRowContext(ctx, query, poolID, requesterID, StatusPending, message), false)
	if err != nil {
		return nil, fmt.Errorf("failed to create join request: %w", err)
	}

	return j, nil
}

// GetByID retrieves a join request by its ID
func (r *Repository) GetByID(ctx context.Context, id int64) (*JoinRequest, error) {
	query := `
		SELECT ` + requestColumns + `, u.username, p.plan_name
		FROM join_requests jr
		JOIN users u ON jr.requester_id = u.id
		JOIN pools p ON jr.pool_id = p.id
		WHERE jr.id = $1
	`

	j, err := scanRequest(r.db.QueryRowContext(ctx, query, id), true)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get join request: %w", err)
	}

	return j, nil
}

// ListByPool retrieves join requests for a pool, optionally filtered by status
func (r *Repository) ListByPool(ctx context.Context, poolID int64, status Status) ([]*JoinRequest, error) {
	query := `
		SELECT ` + requestColumns + `, u.username, p.plan_name
		FROM join_requests jr
		JOIN users u ON jr.requester_id = u.id
		JOIN pools p ON jr.pool_id = p.id
		WHERE jr.pool_id = $1 AND ($2 = '' OR jr.status = $2)
		ORDER BY jr.created_at
	`

	return r.queryRequests(ctx, query, poolID, string(status))
}

// ListByRequester retrieves all join requests submitted by a user
func (r *Repository) ListByRequester(ctx context.Context, requesterID int64) ([]*JoinRequest, error) {
	query := `
		SELECT ` + requestColumns + `, u.username, p.plan_name
		FROM join_requests jr
		JOIN users u ON jr.requester_id = u.id
		JOIN pools p ON jr.pool_id = p.id
		WHERE jr.requester_id = $1
		ORDER BY jr.created_at DESC
	`

	return r.queryRequests(ctx, query, requesterID)
}

func (r *Repository) queryRequests(ctx context.Context, query string, args ...interface{}) ([]*JoinRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list join requests: %w", err)
	}
	defer rows.Close()

	var requests []*JoinRequest
	for rows.Next() {
		j, err := scanRequest(rows, true)
		if err != nil {
			return nil, fmt.Errorf("failed to scan join request: %w", err)
		}
		requests = append(requests, j)
	}

	return requests, nil
}

// Resolve moves a PENDING request to a terminal status. Returns nil when the
// request is missing or already resolved.
func (r *Repository) Resolve(ctx context.Context, id int64, status Status, now time.Time) (*JoinRequest, error) {
	query := `
		UPDATE join_requests jr
		SET status = $2, resolved_at = $3
		WHERE jr.id = $1 AND jr.status = $4
		RETURNING ` + requestColumns

	j, err := scanRequest(r.db.QueryRowContext(ctx, query, id, status, now, StatusPending), false)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve join request: %w", err)
	}

	return j, nil
}

// HasActiveMembership reports whether the user already holds or is pending a
// slot in the pool
func (r *Repository) HasActiveMembership(ctx context.Context, poolID, userID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM memberships
			WHERE pool_id = $1 AND user_id = $2 AND status IN ('ACTIVE', 'PENDING')
		)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, poolID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}

	return exists, nil
}

// Approve applies the whole approval as one transaction: resolve the request,
// claim a slot with the conditional fill update, create the membership, and
// book the first ledger entry. Either all four happen or none do; a lost
// capacity race rolls everything back and the request stays PENDING.
func (r *Repository) Approve(ctx context.Context, requestID int64, nm membership.NewMembership) (*membership.Membership, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin approve transaction: %w", err)
	}
	defer tx.Rollback()

	resolve := `
		UPDATE join_requests
		SET status = $2, resolved_at = $3
		WHERE id = $1 AND status = $4
		RETURNING pool_id, requester_id
	`
	var poolID, requesterID int64
	err = tx.QueryRowContext(ctx, resolve, requestID, StatusApproved, nm.JoinedAt, StatusPending).
		Scan(&poolID, &requesterID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAlreadyResolved
		}
		return nil, fmt.Errorf("failed to resolve join request: %w", err)
	}

	claim := `
		UPDATE pools
		SET slots_filled = slots_filled + 1,
		    status = CASE WHEN slots_filled + 1 >= slots_total THEN 'FULL' ELSE status END
		WHERE id = $1 AND status = 'OPEN' AND slots_filled < slots_total
		RETURNING owner_id
	`
	var ownerID int64
	if err := tx.QueryRowContext(ctx, claim, poolID).Scan(&ownerID); err != nil {
		if err == sql.ErrNoRows {
			// No free slot; the rollback leaves the request PENDING for the
			// owner to re-resolve.
			return nil, pool.ErrCapacityExceeded
		}
		return nil, fmt.Errorf("failed to claim pool slot: %w", err)
	}

	insert := `
		INSERT INTO memberships (pool_id, user_id, status, price_per_slot, joined_at, billing_anchor_day, next_billing_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, pool_id, user_id, status, price_per_slot, joined_at, billing_anchor_day, next_billing_at, cancelled_at
	`
	m := &membership.Membership{}
	err = tx.QueryRowContext(ctx, insert,
		poolID, requesterID, membership.StatusActive, nm.PricePerSlot, nm.JoinedAt, nm.BillingAnchorDay, nm.NextBillingAt).
		Scan(&m.ID, &m.PoolID, &m.UserID, &m.Status, &m.PricePerSlot, &m.JoinedAt, &m.BillingAnchorDay, &m.NextBillingAt, &m.CancelledAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			return nil, ErrAlreadyMember
		}
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}

	book := `
		INSERT INTO ledger_entries (pool_id, membership_id, payer_id, payee_id, entry_type, status, amount_cents, cycle_date, due_at)
		VALUES ($1, $2, $3, $4, 'PAYMENT', 'OWED', $5, $6, $7)
	`
	if _, err := tx.ExecContext(ctx, book,
		poolID, m.ID, requesterID, ownerID, nm.PricePerSlot, nm.JoinedAt, nm.FirstDueAt); err != nil {
		return nil, fmt.Errorf("failed to book first ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit approve transaction: %w", err)
	}

	return m, nil
}
