package membership

import (
	"time"

	"github.com/fkhayef/sharesub/internal/membership/billing"
)

// Status represents the lifecycle state of a membership
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusPending   Status = "PENDING"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// Membership represents a user's claim on one pool slot. The price is locked
// at join time; later pool price changes never touch existing members.
type Membership struct {
	ID               int64      `json:"id"`
	PoolID           int64      `json:"pool_id"`
	UserID           int64      `json:"user_id"`
	Status           Status     `json:"status"`
	PricePerSlot     int64      `json:"price_per_slot"` // cents, locked at join
	JoinedAt         time.Time  `json:"joined_at"`
	BillingAnchorDay int        `json:"billing_anchor_day"`
	NextBillingAt    *time.Time `json:"next_billing_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`

	// Populated via JOIN
	PlanName string `json:"plan_name,omitempty"`
}

// NewMembership carries the attributes of a membership about to be created.
// The join-request approval transaction persists it atomically with the
// pool fill increment.
type NewMembership struct {
	PoolID           int64
	UserID           int64
	PricePerSlot     int64
	JoinedAt         time.Time
	BillingAnchorDay int
	NextBillingAt    time.Time
	FirstDueAt       time.Time
}

// AtJoin computes the membership attributes for a user joining a pool now:
// the billing anchor is the join day clamped to 1-28, the first billing
// boundary is the next occurrence of that anchor strictly after joining, and
// the first entry is due a grace period after joining.
func AtJoin(poolID, userID, pricePerSlot int64, joinedAt time.Time) NewMembership {
	anchor := billing.AnchorDay(joinedAt)
	return NewMembership{
		PoolID:           poolID,
		UserID:           userID,
		PricePerSlot:     pricePerSlot,
		JoinedAt:         joinedAt,
		BillingAnchorDay: anchor,
		NextBillingAt:    billing.NextOccurrence(joinedAt, anchor),
		FirstDueAt:       billing.DueDate(joinedAt.UTC()),
	}
}
