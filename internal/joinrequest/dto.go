package joinrequest

// SubmitRequest represents the request to join a pool
type SubmitRequest struct {
	PoolID  int64  `json:"pool_id" validate:"required"`
	Message string `json:"message"`
}

// JoinRequestResponse represents the response for a join request
type JoinRequestResponse struct {
	ID                int64  `json:"id"`
	PoolID            int64  `json:"pool_id"`
	PlanName          string `json:"plan_name,omitempty"`
	RequesterID       int64  `json:"requester_id"`
	RequesterUsername string `json:"requester_username,omitempty"`
	Status            Status `json:"status"`
	Message           string `json:"message"`
	CreatedAt         string `json:"created_at"`
	ResolvedAt        string `json:"resolved_at,omitempty"`
}

// ToResponse converts a JoinRequest model to a JoinRequestResponse DTO
func (j *JoinRequest) ToResponse() *JoinRequestResponse {
	resp := &JoinRequestResponse{
		ID:                j.ID,
		PoolID:            j.PoolID,
		PlanName:          j.PlanName,
		RequesterID:       j.RequesterID,
		RequesterUsername: j.RequesterUsername,
		Status:            j.Status,
		Message:           j.Message,
		CreatedAt:         j.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if j.ResolvedAt != nil {
		resp.ResolvedAt = j.ResolvedAt.Format("2006-01-02T15:04:05Z")
	}
	return resp
}
