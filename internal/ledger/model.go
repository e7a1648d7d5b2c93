package ledger

import "time"

// EntryType distinguishes the stored economic facts. A recurring obligation
// is stored once as PAYMENT (member owes owner); REFUND reverses the roles.
// The member/owner viewpoints are projections, never separate rows, so the
// two sides cannot drift apart on settlement.
type EntryType string

const (
	TypePayment EntryType = "PAYMENT"
	TypeRefund  EntryType = "REFUND"
)

// EntryStatus represents the settlement state of an entry. Transitions only
// move forward: OWED/PENDING to PAID, or OWED/PENDING to OVERDUE by time.
type EntryStatus string

const (
	StatusOwed    EntryStatus = "OWED"
	StatusPending EntryStatus = "PENDING"
	StatusPaid    EntryStatus = "PAID"
	StatusOverdue EntryStatus = "OVERDUE"
)

// Direction is how an entry looks from a particular user's side
type Direction string

const (
	DirectionOwedByMe Direction = "OWED_BY_ME"
	DirectionOwedToMe Direction = "OWED_TO_ME"
)

// Entry represents one financial obligation tied to a membership's billing
// cycle
type Entry struct {
	ID           int64       `json:"id"`
	PoolID       int64       `json:"pool_id"`
	MembershipID int64       `json:"membership_id"`
	PayerID      int64       `json:"payer_id"`
	PayeeID      int64       `json:"payee_id"`
	Type         EntryType   `json:"type"`
	Status       EntryStatus `json:"status"`
	AmountCents  int64       `json:"amount_cents"`
	CycleDate    time.Time   `json:"cycle_date"`
	DueAt        time.Time   `json:"due_at"`
	SettledAt    *time.Time  `json:"settled_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`

	// Populated via JOIN
	PlanName      string `json:"plan_name,omitempty"`
	PayerUsername string `json:"payer_username,omitempty"`
	PayeeUsername string `json:"payee_username,omitempty"`
}

// Settleable reports whether the entry can still be marked paid
func (e *Entry) Settleable() bool {
	return e.Status == StatusOwed || e.Status == StatusPending || e.Status == StatusOverdue
}
