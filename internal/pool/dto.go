package pool

// CreatePoolRequest represents the request to create a pool
type CreatePoolRequest struct {
	PlanName     string `json:"plan_name" validate:"required"`
	Category     string `json:"category"`
	PricePerSlot int64  `json:"price_per_slot" validate:"required"` // cents
	SlotsTotal   int    `json:"slots_total" validate:"required"`
	AutoApprove  bool   `json:"auto_approve"`
}

// PoolResponse represents the response for a pool
type PoolResponse struct {
	ID             int64  `json:"id"`
	OwnerID        int64  `json:"owner_id"`
	OwnerUsername  string `json:"owner_username,omitempty"`
	PlanName       string `json:"plan_name"`
	Category       string `json:"category"`
	PricePerSlot   int64  `json:"price_per_slot"`
	SlotsTotal     int    `json:"slots_total"`
	SlotsFilled    int    `json:"slots_filled"`
	SlotsAvailable int    `json:"slots_available"`
	Status         Status `json:"status"`
	AutoApprove    bool   `json:"auto_approve"`
	CreatedAt      string `json:"created_at"`
}

// ToResponse converts a Pool model to a PoolResponse DTO
func (p *Pool) ToResponse() *PoolResponse {
	return &PoolResponse{
		ID:             p.ID,
		OwnerID:        p.OwnerID,
		OwnerUsername:  p.OwnerUsername,
		PlanName:       p.PlanName,
		Category:       p.Category,
		PricePerSlot:   p.PricePerSlot,
		SlotsTotal:     p.SlotsTotal,
		SlotsFilled:    p.SlotsFilled,
		SlotsAvailable: p.SlotsAvailable(),
		Status:         p.Status,
		AutoApprove:    p.AutoApprove,
		CreatedAt:      p.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// ListFilter narrows down the pool listing
type ListFilter struct {
	Category string
	Status   Status
	Search   string // matched against plan_name
}
