package membership

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/sharesub/pkg/middleware"
	"github.com/fkhayef/sharesub/pkg/response"
)

// Handler handles HTTP requests for membership operations
type Handler struct {
	service *Service
}

// NewHandler creates a new membership handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for membership endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/{id}", h.GetByID)
	r.Post("/{id}/cancel", h.Cancel)

	return r
}

// List handles GET /memberships
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	status := Status(r.URL.Query().Get("status"))

	memberships, err := h.service.ListByUser(r.Context(), userID, status)
	if err != nil {
		response.InternalError(w, "Failed to list memberships")
		return
	}

	membershipResponses := make([]*MembershipResponse, len(memberships))
	for i, m := range memberships {
		membershipResponses[i] = m.ToResponse()
	}

	response.JSON(w, http.StatusOK, membershipResponses)
}

// GetByID handles GET /memberships/{id}
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid membership ID")
		return
	}

	m, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrMembershipNotFound) {
			response.NotFound(w, err.Error())
			return
		}
		response.InternalError(w, "Failed to get membership")
		return
	}

	response.JSON(w, http.StatusOK, m.ToResponse())
}

// Cancel handles POST /memberships/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid membership ID")
		return
	}

	actorID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	m, err := h.service.Cancel(r.Context(), id, actorID)
	if err != nil {
		if errors.Is(err, ErrMembershipNotFound) {
			response.NotFound(w, err.Error())
			return
		}
		if errors.Is(err, ErrNotAllowed) {
			response.Forbidden(w, err.Error())
			return
		}
		if errors.Is(err, ErrNotActive) {
			response.Conflict(w, err.Error())
			return
		}
		response.InternalError(w, "Failed to cancel membership")
		return
	}

	response.JSON(w, http.StatusOK, m.ToResponse())
}
