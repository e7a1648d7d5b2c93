package pool

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/sharesub/pkg/middleware"
	"github.com/fkhayef/sharesub/pkg/response"
)

// Handler handles HTTP requests for pool operations
type Handler struct {
	service *Service
}

// NewHandler creates a new pool handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for pool endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/mine", h.ListMine)
	r.Get("/{id}", h.GetByID)
	r.Post("/{id}/close", h.Close)

	return r
}

// Create handles POST /pools
// @Summary      Create a new pool
// @Description  Offer a shared subscription with a fixed number of paid slots
// @Tags         pools
// @Accept       json
// @Produce      json
// @Param        request body CreatePoolRequest true "Pool creation request"
// @Success      201 {object} response.APIResponse{data=PoolResponse}
// @Failure      400 {object} response.APIResponse
// @Router       /pools [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	var req CreatePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	pool, err := h.service.Create(r.Context(), ownerID, &req)
	if err != nil {
		if errors.Is(err, ErrInvalidSlotCount) || errors.Is(err, ErrInvalidPrice) {
			response.BadRequest(w, err.Error())
			return
		}
		response.InternalError(w, "Failed to create pool")
		return
	}

	response.JSON(w, http.StatusCreated, pool.ToResponse())
}

// List handles GET /pools
// @Summary      List pools
// @Description  Browse pools filtered by category, status, or plan-name search
// @Tags         pools
// @Produce      json
// @Param        category query string false "Category filter"
// @Param        status query string false "Status filter (OPEN, FULL, CLOSED)"
// @Param        search query string false "Plan name search"
// @Param        page query int false "Page number" default(1)
// @Param        per_page query int false "Items per page" default(20)
// @Success      200 {object} response.APIResponse{data=[]PoolResponse}
// @Router       /pools [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Category: r.URL.Query().Get("category"),
		Status:   Status(r.URL.Query().Get("status")),
		Search:   r.URL.Query().Get("search"),
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	pools, total, err := h.service.List(r.Context(), filter, page, perPage)
	if err != nil {
		response.InternalError(w, "Failed to list pools")
		return
	}

	poolResponses := make([]*PoolResponse, len(pools))
	for i, p := range pools {
		poolResponses[i] = p.ToResponse()
	}

	totalPages := (total + perPage - 1) / perPage
	meta := &response.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	}

	response.JSONWithMeta(w, http.StatusOK, poolResponses, meta)
}

// ListMine handles GET /pools/mine
// @Summary      List my pools
// @Description  List the pools owned by the authenticated user
// @Tags         pools
// @Produce      json
// @Success      200 {object} response.APIResponse{data=[]PoolResponse}
// @Router       /pools/mine [get]
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	pools, err := h.service.ListByOwner(r.Context(), ownerID)
	if err != nil {
		response.InternalError(w, "Failed to list pools")
		return
	}

	poolResponses := make([]*PoolResponse, len(pools))
	for i, p := range pools {
		poolResponses[i] = p.ToResponse()
	}

	response.JSON(w, http.StatusOK, poolResponses)
}

// GetByID handles GET /pools/{id}
// @Summary      Get pool by ID
// @Tags         pools
// @Produce      json
// @Param        id path int true "Pool ID"
// @Success      200 {object} response.APIResponse{data=PoolResponse}
// @Failure      404 {object} response.APIResponse
// @Router       /pools/{id} [get]
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid pool ID")
		return
	}

	pool, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrPoolNotFound) {
			response.NotFound(w, err.Error())
			return
		}
		response.InternalError(w, "Failed to get pool")
		return
	}

	response.JSON(w, http.StatusOK, pool.ToResponse())
}

// Close handles POST /pools/{id}/close
// @Summary      Close a pool
// @Description  Permanently close a pool; closing is terminal and owner-only
// @Tags         pools
// @Produce      json
// @Param        id path int true "Pool ID"
// @Success      200 {object} response.APIResponse{data=PoolResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /pools/{id}/close [post]
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid pool ID")
		return
	}

	actorID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	pool, err := h.service.Close(r.Context(), id, actorID)
	if err != nil {
		if errors.Is(err, ErrPoolNotFound) {
			response.NotFound(w, err.Error())
			return
		}
		if errors.Is(err, ErrNotOwner) {
			response.Forbidden(w, err.Error())
			return
		}
		response.InternalError(w, "Failed to close pool")
		return
	}

	response.JSON(w, http.StatusOK, pool.ToResponse())
}
