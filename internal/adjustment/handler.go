package adjustment

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stocklane/stocklane/internal/platform/httpx"
	"github.com/stocklane/stocklane/internal/shared"
)

// Handler wires HTTP endpoints for the adjustment ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs adjustment handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers adjustment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Patch("/{id}", h.handleEdit)
	r.Post("/{id}/approve", h.handleApprove)
	r.Post("/{id}/reject", h.handleReject)
	r.Post("/{id}/complete", h.handleComplete)
}

type createRequest struct {
	IntakeID  string `json:"intake_id" validate:"required,uuid4"`
	Type      string `json:"type" validate:"required"`
	Qty       int64  `json:"qty" validate:"required"`
	Reason    string `json:"reason" validate:"required"`
	Reference string `json:"reference"`
	UnitCost  string `json:"unit_cost"`
}

type editRequest struct {
	Type      *string `json:"type"`
	Qty       *int64  `json:"qty"`
	Reason    *string `json:"reason"`
	Reference *string `json:"reference"`
	UnitCost  *string `json:"unit_cost"`
}

type rejectRequest struct {
	Note string `json:"note"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.ScopeRequired(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ValidationProblem(err))
		return
	}
	intakeID, err := uuid.Parse(req.IntakeID)
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("intake_id", "not a valid uuid"))
		return
	}
	input := CreateInput{
		IntakeID:  intakeID,
		Type:      Type(req.Type),
		Qty:       req.Qty,
		Reason:    req.Reason,
		Reference: req.Reference,
	}
	if req.UnitCost != "" {
		cost, err := decimal.NewFromString(req.UnitCost)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("unit_cost", "not a valid decimal"))
			return
		}
		input.UnitCost = &cost
	}
	adj, err := h.service.Create(r.Context(), scope, input)
	if err != nil && !isAvailabilityError(err) {
		h.logger.Error("adjustment create failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	// An auto-approved adjustment that failed the availability check is
	// still created; report both the record and the conflict.
	if err != nil {
		httpx.JSON(w, http.StatusConflict, map[string]any{"data": adj, "error": err.Error()})
		return
	}
	httpx.JSON(w, http.StatusCreated, adj)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.ScopeRequired(w, r)
	if !ok {
		return
	}
	id, err := parseUUID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	adj, err := h.service.Get(r.Context(), scope, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.ScopeRequired(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := Filter{
		Status:  Status(q.Get("status")),
		Type:    Type(q.Get("type")),
		Page:    atoi(q.Get("page")),
		PerPage: atoi(q.Get("per_page")),
	}
	if raw := q.Get("intake_id"); raw != "" {
		intakeID, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("intake_id", "not a valid uuid"))
			return
		}
		filter.IntakeID = intakeID
	}
	adjustments, page, err := h.service.List(r.Context(), scope, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": adjustments, "pagination": page})
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.ScopeRequired(w, r)
	if !ok {
		return
	}
	id, err := parseUUID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req editRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	input := EditInput{Qty: req.Qty, Reason: req.Reason, Reference: req.Reference}
	if req.Type != nil {
		t := Type(*req.Type)
		input.Type = &t
	}
	if req.UnitCost != nil {
		cost, err := decimal.NewFromString(*req.UnitCost)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("unit_cost", "not a valid decimal"))
			return
		}
		input.UnitCost = &cost
	}
	adj, err := h.service.Edit(r.Context(), scope, id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.ScopeRequired(w, r)
	if !ok {
		return
	}
	id, err := parseUUID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	adj, err := h.service.Approve(r.Context(), scope, id)
	if err != nil {
		if isAvailabilityError(err) {
			httpx.JSON(w, http.StatusConflict, map[string]any{"data": adj, "error": err.Error()})
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.ScopeRequired(w, r)
	if !ok {
		return
	}
	id, err := parseUUID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	// The note body is optional.
	var req rejectRequest
	_ = httpx.DecodeJSON(r, &req)
	adj, err := h.service.Reject(r.Context(), scope, id, req.Note)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.ScopeRequired(w, r)
	if !ok {
		return
	}
	id, err := parseUUID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	adj, err := h.service.Complete(r.Context(), scope, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func parseUUID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, shared.NewValidationError("id", "not a valid uuid")
	}
	return id, nil
}

func atoi(raw string) int {
	n, _ := strconv.Atoi(raw)
	return n
}
