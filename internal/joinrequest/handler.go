package joinrequest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/sharesub/internal/pool"
	"github.com/fkhayef/sharesub/pkg/middleware"
	"github.com/fkhayef/sharesub/pkg/response"
)

// Handler handles HTTP requests for join request operations
type Handler struct {
	service *Service
}

// NewHandler creates a new join request handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for join request endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Submit)
	r.Get("/", h.ListMine)
	r.Get("/pool/{poolId}", h.ListByPool)
	r.Get("/{id}", h.GetByID)
	r.Post("/{id}/approve", h.Approve)
	r.Post("/{id}/reject", h.Reject)
	r.Post("/{id}/withdraw", h.Withdraw)

	return r
}

// Submit handles POST /requests
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	jr, err := h.service.Submit(r.Context(), requesterID, &req)
	if err != nil {
		switch {
		case errors.Is(err, pool.ErrPoolNotFound):
			response.NotFound(w, err.Error())
		case errors.Is(err, ErrAlreadyMember), errors.Is(err, ErrPoolUnavailable):
			response.Conflict(w, err.Error())
		case errors.Is(err, ErrOwnPool):
			response.BadRequest(w, err.Error())
		default:
			response.InternalError(w, "Failed to submit join request")
		}
		return
	}

	response.JSON(w, http.StatusCreated, jr.ToResponse())
}

// ListMine handles GET /requests
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	requests, err := h.service.ListByRequester(r.Context(), requesterID)
	if err != nil {
		response.InternalError(w, "Failed to list join requests")
		return
	}

	requestResponses := make([]*JoinRequestResponse, len(requests))
	for i, jr := range requests {
		requestResponses[i] = jr.ToResponse()
	}

	response.JSON(w, http.StatusOK, requestResponses)
}

// ListByPool handles GET /requests/pool/{poolId}
func (h *Handler) ListByPool(w http.ResponseWriter, r *http.Request) {
	poolID, err := strconv.ParseInt(chi.URLParam(r, "poolId"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid pool ID")
		return
	}

	actorID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	status := Status(r.URL.Query().Get("status"))

	requests, err := h.service.ListByPool(r.Context(), poolID, actorID, status)
	if err != nil {
		if errors.Is(err, pool.ErrPoolNotFound) {
			response.NotFound(w, err.Error())
			return
		}
		if errors.Is(err, ErrNotOwner) {
			response.Forbidden(w, err.Error())
			return
		}
		response.InternalError(w, "Failed to list join requests")
		return
	}

	requestResponses := make([]*JoinRequestResponse, len(requests))
	for i, jr := range requests {
		requestResponses[i] = jr.ToResponse()
	}

	response.JSON(w, http.StatusOK, requestResponses)
}

// GetByID handles GET /requests/{id}
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid request ID")
		return
	}

	jr, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			response.NotFound(w, err.Error())
			return
		}
		response.InternalError(w, "Failed to get join request")
		return
	}

	response.JSON(w, http.StatusOK, jr.ToResponse())
}

// Approve handles POST /requests/{id}/approve
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid request ID")
		return
	}

	actorID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	m, err := h.service.Approve(r.Context(), id, actorID)
	if err != nil {
		switch {
		case errors.Is(err, ErrRequestNotFound), errors.Is(err, pool.ErrPoolNotFound):
			response.NotFound(w, err.Error())
		case errors.Is(err, ErrNotOwner):
			response.Forbidden(w, err.Error())
		case errors.Is(err, ErrAlreadyResolved), errors.Is(err, ErrAlreadyMember),
			errors.Is(err, pool.ErrCapacityExceeded):
			response.Conflict(w, err.Error())
		default:
			response.InternalError(w, "Failed to approve join request")
		}
		return
	}

	response.JSON(w, http.StatusCreated, m.ToResponse())
}

// Reject handles POST /requests/{id}/reject
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid request ID")
		return
	}

	actorID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	jr, err := h.service.Reject(r.Context(), id, actorID)
	if err != nil {
		switch {
		case errors.Is(err, ErrRequestNotFound), errors.Is(err, pool.ErrPoolNotFound):
			response.NotFound(w, err.Error())
		case errors.Is(err, ErrNotOwner):
			response.Forbidden(w, err.Error())
		case errors.Is(err, ErrAlreadyResolved):
			response.Conflict(w, err.Error())
		default:
			response.InternalError(w, "Failed to reject join request")
		}
		return
	}

	response.JSON(w, http.StatusOK, jr.ToResponse())
}

// Withdraw handles POST /requests/{id}/withdraw
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid request ID")
		return
	}

	requesterID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	jr, err := h.service.Withdraw(r.Context(), id, requesterID)
	if err != nil {
		switch {
		case errors.Is(err, ErrRequestNotFound):
			response.NotFound(w, err.Error())
		case errors.Is(err, ErrNotRequester):
			response.Forbidden(w, err.Error())
		case errors.Is(err, ErrAlreadyResolved):
			response.Conflict(w, err.Error())
		default:
			response.InternalError(w, "Failed to withdraw join request")
		}
		return
	}

	response.JSON(w, http.StatusOK, jr.ToResponse())
}
