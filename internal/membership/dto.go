package membership

// MembershipResponse represents the response for a membership
type MembershipResponse struct {
	ID               int64  `json:"id"`
	PoolID           int64  `json:"pool_id"`
	PlanName         string `json:"plan_name,omitempty"`
	UserID           int64  `json:"user_id"`
	Status           Status `json:"status"`
	PricePerSlot     int64  `json:"price_per_slot"`
	JoinedAt         string `json:"joined_at"`
	BillingAnchorDay int    `json:"billing_anchor_day"`
	NextBillingAt    string `json:"next_billing_at,omitempty"`
	CancelledAt      string `json:"cancelled_at,omitempty"`
}

// ToResponse converts a Membership model to a MembershipResponse DTO
func (m *Membership) ToResponse() *MembershipResponse {
	resp := &MembershipResponse{
		ID:               m.ID,
		PoolID:           m.PoolID,
		PlanName:         m.PlanName,
		UserID:           m.UserID,
		Status:           m.Status,
		PricePerSlot:     m.PricePerSlot,
		JoinedAt:         m.JoinedAt.Format("2006-01-02T15:04:05Z"),
		BillingAnchorDay: m.BillingAnchorDay,
	}
	if m.NextBillingAt != nil {
		resp.NextBillingAt = m.NextBillingAt.Format("2006-01-02T15:04:05Z")
	}
	if m.CancelledAt != nil {
		resp.CancelledAt = m.CancelledAt.Format("2006-01-02T15:04:05Z")
	}
	return resp
}
