package pool

import "time"

// Status represents the lifecycle state of a pool
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusFull   Status = "FULL"
	StatusClosed Status = "CLOSED"
)

// Pool represents a shared subscription with a fixed number of paid slots
type Pool struct {
	ID           int64     `json:"id"`
	OwnerID      int64     `json:"owner_id"`
	PlanName     string    `json:"plan_name"`
	Category     string    `json:"category"`
	PricePerSlot int64     `json:"price_per_slot"` // minor currency units per slot per cycle
	SlotsTotal   int       `json:"slots_total"`
	SlotsFilled  int       `json:"slots_filled"`
	Status       Status    `json:"status"`
	AutoApprove  bool      `json:"auto_approve"`
	CreatedAt    time.Time `json:"created_at"`

	// Populated via JOIN
	OwnerUsername string `json:"owner_username,omitempty"`
}

// SlotsAvailable returns the number of unclaimed slots
func (p *Pool) SlotsAvailable() int {
	return p.SlotsTotal - p.SlotsFilled
}

// Joinable reports whether the pool can accept a new join request
func (p *Pool) Joinable() bool {
	return p.Status == StatusOpen && p.SlotsFilled < p.SlotsTotal
}
