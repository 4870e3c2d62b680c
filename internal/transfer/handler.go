package transfer

import (
	"errors"
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

// Handler wires HTTP endpoints for the transfer engine.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs transfer handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Patch("/{id}", h.handleUpdate)
	r.Post("/{id}/complete", h.handleComplete)
	r.Post("/{id}/cancel", h.handleCancel)
	r.Post("/{id}/in-transit", h.handleInTransit)
}

type itemRequest struct {
	ProductID int64  `json:"product_id" validate:"required"`
	IntakeID  string `json:"intake_id"`
	Qty       int64  `json:"qty" validate:"required"`
	UnitCost  string `json:"unit_cost"`
}

type createRequest struct {
	SrcLocationID int64         `json:"src_location_id" validate:"required"`
	DstLocationID int64         `json:"dst_location_id" validate:"required"`
	Reference     string        `json:"reference"`
	Notes         string        `json:"notes"`
	Items         []itemRequest `json:"items" validate:"required,min=1"`
}

type updateRequest struct {
	Notes *string       `json:"notes"`
	Items []itemRequest `json:"items"`
}

type cancelRequest struct {
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
	items, err := parseItems(req.Items)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tr, err := h.service.Create(r.Context(), scope, CreateInput{
		SrcLocationID: req.SrcLocationID,
		DstLocationID: req.DstLocationID,
		Reference:     req.Reference,
		Notes:         req.Notes,
		Items:         items,
	})
	if err != nil {
		h.respondError(w, "transfer create failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tr)
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
	tr, err := h.service.Get(r.Context(), scope, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tr)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.ScopeRequired(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := Filter{
		Status:     Status(q.Get("status")),
		LocationID: parseID(q.Get("location_id")),
		ProductID:  parseID(q.Get("product_id")),
		Page:       int(parseID(q.Get("page"))),
		PerPage:    int(parseID(q.Get("per_page"))),
	}
	transfers, page, err := h.service.List(r.Context(), scope, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": transfers, "pagination": page})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.ScopeRequired(w, r)
	if !ok {
		return
	}
	id, err := parseUUID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	input := UpdateInput{Notes: req.Notes}
	if req.Items != nil {
		items, err := parseItems(req.Items)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.Items = items
	}
	tr, err := h.service.Update(r.Context(), scope, id, input)
	if err != nil {
		h.respondError(w, "transfer update failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tr)
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
	tr, err := h.service.Complete(r.Context(), scope, id)
	if err != nil {
		h.respondError(w, "transfer complete failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tr)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
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
	var req cancelRequest
	_ = httpx.DecodeJSON(r, &req)
	tr, err := h.service.Cancel(r.Context(), scope, id, req.Note)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tr)
}

func (h *Handler) handleInTransit(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.ScopeRequired(w, r)
	if !ok {
		return
	}
	id, err := parseUUID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tr, err := h.service.MarkInTransit(r.Context(), scope, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tr)
}

// respondError keeps item errors positional: the response carries one entry
// per requested item so callers can tell valid items from invalid ones.
func (h *Handler) respondError(w http.ResponseWriter, msg string, err error) {
	var itemErr *ItemValidationError
	if errors.As(err, &itemErr) {
		httpx.JSON(w, http.StatusConflict, map[string]any{
			"title":  "Item Validation Failed",
			"detail": itemErr.Error(),
			"items":  itemErr.Items,
		})
		return
	}
	h.logger.Error(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func parseItems(reqs []itemRequest) ([]ItemInput, error) {
	items := make([]ItemInput, len(reqs))
	for i, req := range reqs {
		item := ItemInput{ProductID: req.ProductID, Qty: req.Qty}
		if req.IntakeID != "" {
			intakeID, err := uuid.Parse(req.IntakeID)
			if err != nil {
				return nil, shared.NewValidationError("items", "item %d: intake_id is not a valid uuid", i)
			}
			item.IntakeID = intakeID
		}
		if req.UnitCost != "" {
			cost, err := decimal.NewFromString(req.UnitCost)
			if err != nil {
				return nil, shared.NewValidationError("items", "item %d: unit_cost is not a valid decimal", i)
			}
			item.UnitCost = &cost
		}
		items[i] = item
	}
	return items, nil
}

func parseUUID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, shared.NewValidationError("id", "not a valid uuid")
	}
	return id, nil
}

func parseID(raw string) int64 {
	id, _ := strconv.ParseInt(raw, 10, 64)
	return id
}
