package ledger

import "fmt"

// EntryResponse represents an entry projected for a particular viewer
type EntryResponse struct {
	ID           int64       `json:"id"`
	PoolID       int64       `json:"pool_id"`
	PlanName     string      `json:"plan_name,omitempty"`
	MembershipID int64       `json:"membership_id"`
	Type         EntryType   `json:"type"`
	Status       EntryStatus `json:"status"`
	AmountCents  int64       `json:"amount_cents"`
	Direction    Direction   `json:"direction"`
	Counterparty string      `json:"counterparty,omitempty"`
	CycleDate    string      `json:"cycle_date"`
	DueAt        string      `json:"due_at"`
	SettledAt    string      `json:"settled_at,omitempty"`
}

// ToResponse projects the single stored fact onto the viewer's side of it
func (e *Entry) ToResponse(viewerID int64) *EntryResponse {
	resp := &EntryResponse{
		ID:           e.ID,
		PoolID:       e.PoolID,
		PlanName:     e.PlanName,
		MembershipID: e.MembershipID,
		Type:         e.Type,
		Status:       e.Status,
		AmountCents:  e.AmountCents,
		CycleDate:    e.CycleDate.Format("2006-01-02"),
		DueAt:        e.DueAt.Format("2006-01-02T15:04:05Z"),
	}
	if viewerID == e.PayerID {
		resp.Direction = DirectionOwedByMe
		resp.Counterparty = e.PayeeUsername
	} else {
		resp.Direction = DirectionOwedToMe
		resp.Counterparty = e.PayerUsername
	}
	if e.SettledAt != nil {
		resp.SettledAt = e.SettledAt.Format("2006-01-02T15:04:05Z")
	}
	return resp
}

// NetPositionResponse represents a user's aggregate unsettled position
type NetPositionResponse struct {
	UserID      int64  `json:"user_id"`
	AmountCents int64  `json:"amount_cents"` // positive = net creditor
	Message     string `json:"message"`
}

// NewNetPositionResponse builds the response with a human-readable summary
func NewNetPositionResponse(userID, amountCents int64) *NetPositionResponse {
	var message string
	switch {
	case amountCents > 0:
		message = fmt.Sprintf("You are owed $%.2f", float64(amountCents)/100)
	case amountCents < 0:
		message = fmt.Sprintf("You owe $%.2f", float64(-amountCents)/100)
	default:
		message = "You are all settled up"
	}
	return &NetPositionResponse{
		UserID:      userID,
		AmountCents: amountCents,
		Message:     message,
	}
}

// CollectionRateResponse represents how much of an owner's billed entries
// were actually collected
type CollectionRateResponse struct {
	OwnerID      int64   `json:"owner_id"`
	PaidEntries  int     `json:"paid_entries"`
	TotalEntries int     `json:"total_entries"`
	Rate         float64 `json:"rate"` // percentage, 0-100
}
