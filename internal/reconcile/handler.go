package reconcile

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stocklane/stocklane/internal/platform/httpx"
	"github.com/stocklane/stocklane/internal/shared"
)

// Handler wires the reconciliation endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs reconcile handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleGet)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.ScopeRequired(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	query := Query{
		ProductID:  parseID(q.Get("product_id")),
		LocationID: parseID(q.Get("location_id")),
	}
	if raw := q.Get("intake_id"); raw != "" {
		intakeID, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("intake_id", "not a valid uuid"))
			return
		}
		query.IntakeID = intakeID
	}
	snapshot, err := h.service.Get(r.Context(), scope, query)
	if err != nil {
		h.logger.Error("reconciliation failed", slog.Any("error", err), slog.Int64("product_id", query.ProductID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snapshot)
}

func parseID(raw string) int64 {
	id, _ := strconv.ParseInt(raw, 10, 64)
	return id
}
