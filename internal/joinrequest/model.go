package joinrequest

import "time"

// Status represents the resolution state of a join request
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusWithdrawn Status = "WITHDRAWN"
)

// JoinRequest represents a user's proposal to claim one pool slot. A request
// is terminal once resolved or withdrawn and is never re-opened.
type JoinRequest struct {
	ID          int64      `json:"id"`
	PoolID      int64      `json:"pool_id"`
	RequesterID int64      `json:"requester_id"`
	Status      Status     `json:"status"`
	Message     string     `json:"message"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`

	// Populated via JOIN
	RequesterUsername string `json:"requester_username,omitempty"`
	PlanName          string `json:"plan_name,omitempty"`
}
