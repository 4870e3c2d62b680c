package intake

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

// Handler wires HTTP endpoints for intake records.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs intake handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers intake routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/recount", h.handleRecount)
}

type createRequest struct {
	ProductID  int64  `json:"product_id" validate:"required"`
	LocationID int64  `json:"location_id" validate:"required"`
	Qty        int64  `json:"qty" validate:"required,gt=0"`
	UnitCost   string `json:"unit_cost" validate:"required"`
	Reference  string `json:"reference"`
}

type recountRequest struct {
	CountedQty int64  `json:"counted_qty" validate:"gte=0"`
	Reason     string `json:"reason" validate:"required"`
	Confirm    bool   `json:"confirm"`
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
	unitCost, err := decimal.NewFromString(req.UnitCost)
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("unit_cost", "not a valid decimal"))
		return
	}
	record, err := h.service.Create(r.Context(), scope, CreateInput{
		ProductID:  req.ProductID,
		LocationID: req.LocationID,
		Qty:        req.Qty,
		UnitCost:   unitCost,
		Reference:  req.Reference,
	})
	if err != nil {
		h.logger.Error("intake create failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, record)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.ScopeRequired(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("id", "not a valid uuid"))
		return
	}
	record, err := h.service.Get(r.Context(), scope, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, record)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.ScopeRequired(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := Filter{
		ProductID:  parseID(q.Get("product_id")),
		LocationID: parseID(q.Get("location_id")),
		Page:       int(parseID(q.Get("page"))),
		PerPage:    int(parseID(q.Get("per_page"))),
	}
	records, page, err := h.service.List(r.Context(), scope, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": records, "pagination": page})
}

func (h *Handler) handleRecount(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.ScopeRequired(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("id", "not a valid uuid"))
		return
	}
	var req recountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ValidationProblem(err))
		return
	}
	record, err := h.service.Recount(r.Context(), scope, RecountInput{
		IntakeID:   id,
		CountedQty: req.CountedQty,
		Reason:     req.Reason,
		Confirm:    req.Confirm,
	})
	if err != nil {
		h.logger.Error("intake recount failed", slog.Any("error", err), slog.String("intake_id", id.String()))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, record)
}

func parseID(raw string) int64 {
	id, _ := strconv.ParseInt(raw, 10, 64)
	return id
}
