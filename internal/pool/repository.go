package pool

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Repository handles pool data persistence
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new pool repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const poolColumns = `id, owner_id, plan_name, category, price_per_slot, slots_total, slots_filled, status, auto_approve, created_at`

func scanPool(row interface{ Scan(...interface{}) error }) (*Pool, error) {
	p := &Pool{}
	err := row.Scan(
		&p.ID,
		&p.OwnerID,
		&p.PlanName,
		&p.Category,
		&p.PricePerSlot,
		&p.SlotsTotal,
		&p.SlotsFilled,
		&p.Status,
		&p.AutoApprove,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create inserts a new pool into the database
func (r *Repository) Create(ctx context.Context, ownerID int64, req *CreatePoolRequest) (*Pool, error) {
	query := `
		INSERT INTO pools (owner_id, plan_name, category, price_per_slot, slots_total, slots_filled, status, auto_approve)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
		RETURNING ` + poolColumns

	pool, err := scanPool(r.db.QueryRowContext(ctx, query,
		ownerID, req.PlanName, req.Category, req.PricePerSlot, req.SlotsTotal, StatusOpen, req.AutoApprove))
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	return pool, nil
}

// GetByID retrieves a pool by its ID
func (r *Repository) GetByID(ctx context.Context, id int64) (*Pool, error) {
	query := `
		SELECT p.id, p.owner_id, p.plan_name, p.category, p.price_per_slot, p.slots_total,
		       p.slots_filled, p.status, p.auto_approve, p.created_at, u.username
		FROM pools p
		JOIN users u ON p.owner_id = u.id
		WHERE p.id = $1
	`

	p := &Pool{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.OwnerID,
		&p.PlanName,
		&p.Category,
		&p.PricePerSlot,
		&p.SlotsTotal,
		&p.SlotsFilled,
		&p.Status,
		&p.AutoApprove,
		&p.CreatedAt,
		&p.OwnerUsername,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pool: %w", err)
	}

	return p, nil
}

// List retrieves pools matching the filter, newest first
func (r *Repository) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Pool, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}

	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("p.category = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("p.status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("p.plan_name ILIKE $%d", len(args)))
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM pools p WHERE ` + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count pools: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT p.id, p.owner_id, p.plan_name, p.category, p.price_per_slot, p.slots_total,
		       p.slots_filled, p.status, p.auto_approve, p.created_at, u.username
		FROM pools p
		JOIN users u ON p.owner_id = u.id
		WHERE %s
		ORDER BY p.created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pools: %w", err)
	}
	defer rows.Close()

	var pools []*Pool
	for rows.Next() {
		p := &Pool{}
		if err := rows.Scan(
			&p.ID,
			&p.OwnerID,
			&p.PlanName,
			&p.Category,
			&p.PricePerSlot,
			&p.SlotsTotal,
			&p.SlotsFilled,
			&p.Status,
			&p.AutoApprove,
			&p.CreatedAt,
			&p.OwnerUsername,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan pool: %w", err)
		}
		pools = append(pools, p)
	}

	return pools, total, nil
}

// ListByOwner retrieves all pools owned by a user
func (r *Repository) ListByOwner(ctx context.Context, ownerID int64) ([]*Pool, error) {
	query := `
		SELECT ` + poolColumns + `
		FROM pools
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pools by owner: %w", err)
	}
	defer rows.Close()

	var pools []*Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pool: %w", err)
		}
		pools = append(pools, p)
	}

	return pools, nil
}

// IncrementFill claims one slot with a single conditional update so that two
// concurrent claims can never overshoot slots_total. Returns nil when the pool
// is missing, closed, or already full.
func (r *Repository) IncrementFill(ctx context.Context, id int64) (*Pool, error) {
	query := `
		UPDATE pools
		SET slots_filled = slots_filled + 1,
		    status = CASE WHEN slots_filled + 1 >= slots_total THEN 'FULL' ELSE status END
		WHERE id = $1 AND status = 'OPEN' AND slots_filled < slots_total
		RETURNING ` + poolColumns

	pool, err := scanPool(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to increment fill: %w", err)
	}

	return pool, nil
}

// DecrementFill releases one slot, reopening a FULL pool. Returns nil when the
// pool is missing or has no filled slots.
func (r *Repository) DecrementFill(ctx context.Context, id int64) (*Pool, error) {
	query := `
		UPDATE pools
		SET slots_filled = slots_filled - 1,
		    status = CASE WHEN status = 'FULL' THEN 'OPEN' ELSE status END
		WHERE id = $1 AND slots_filled > 0
		RETURNING ` + poolColumns

	pool, err := scanPool(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decrement fill: %w", err)
	}

	return pool, nil
}

// SetStatus updates the status of a pool
func (r *Repository) SetStatus(ctx context.Context, id int64, status Status) (*Pool, error) {
	query := `
		UPDATE pools
		SET status = $2
		WHERE id = $1
		RETURNING ` + poolColumns

	pool, err := scanPool(r.db.QueryRowContext(ctx, query, id, status))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to set pool status: %w", err)
	}

	return pool, nil
}
