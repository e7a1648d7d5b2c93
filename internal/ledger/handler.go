package ledger

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/sharesub/pkg/middleware"
	"github.com/fkhayef/sharesub/pkg/response"
)

// Handler handles HTTP requests for ledger operations
type Handler struct {
	service *Service
}

// NewHandler creates a new ledger handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for ledger endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/net", h.NetPosition)
	r.Get("/collection-rate", h.CollectionRate)
	r.Get("/{id}", h.GetByID)
	r.Post("/{id}/pay", h.MarkPaid)
	r.Post("/{id}/refund", h.Refund)

	return r
}

// List handles GET /ledger
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	direction := Direction(r.URL.Query().Get("direction"))
	status := EntryStatus(r.URL.Query().Get("status"))

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	entries, total, err := h.service.ListByUser(r.Context(), userID, direction, status, page, perPage)
	if err != nil {
		response.InternalError(w, "Failed to list ledger entries")
		return
	}

	entryResponses := make([]*EntryResponse, len(entries))
	for i, e := range entries {
		entryResponses[i] = e.ToResponse(userID)
	}

	totalPages := (total + perPage - 1) / perPage
	meta := &response.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	}

	response.JSONWithMeta(w, http.StatusOK, entryResponses, meta)
}

// NetPosition handles GET /ledger/net
func (h *Handler) NetPosition(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.BadRequest(w, "Invalid as_of timestamp")
			return
		}
		asOf = parsed
	}

	net, err := h.service.NetPosition(r.Context(), userID, asOf)
	if err != nil {
		response.InternalError(w, "Failed to compute net position")
		return
	}

	response.JSON(w, http.StatusOK, net)
}

// CollectionRate handles GET /ledger/collection-rate
func (h *Handler) CollectionRate(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	rate, err := h.service.CollectionRate(r.Context(), ownerID)
	if err != nil {
		response.InternalError(w, "Failed to compute collection rate")
		return
	}

	response.JSON(w, http.StatusOK, rate)
}

// GetByID handles GET /ledger/{id}
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid entry ID")
		return
	}

	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	e, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			response.NotFound(w, err.Error())
			return
		}
		response.InternalError(w, "Failed to get ledger entry")
		return
	}

	response.JSON(w, http.StatusOK, e.ToResponse(userID))
}

// MarkPaid handles POST /ledger/{id}/pay
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid entry ID")
		return
	}

	actorID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	e, err := h.service.MarkPaid(r.Context(), id, actorID)
	if err != nil {
		switch {
		case errors.Is(err, ErrEntryNotFound):
			response.NotFound(w, err.Error())
		case errors.Is(err, ErrNotPayer):
			response.Forbidden(w, err.Error())
		case errors.Is(err, ErrAlreadySettled):
			response.Conflict(w, err.Error())
		default:
			response.InternalError(w, "Failed to mark entry paid")
		}
		return
	}

	response.JSON(w, http.StatusOK, e.ToResponse(actorID))
}

// Refund handles POST /ledger/{id}/refund
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid entry ID")
		return
	}

	actorID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	e, err := h.service.Refund(r.Context(), id, actorID)
	if err != nil {
		switch {
		case errors.Is(err, ErrEntryNotFound):
			response.NotFound(w, err.Error())
		case errors.Is(err, ErrNotPayee):
			response.Forbidden(w, err.Error())
		case errors.Is(err, ErrNotRefundable):
			response.Conflict(w, err.Error())
		default:
			response.InternalError(w, "Failed to refund entry")
		}
		return
	}

	response.JSON(w, http.StatusCreated, e.ToResponse(actorID))
}
