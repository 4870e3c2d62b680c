package movement

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stocklane/stocklane/internal/platform/httpx"
	"github.com/stocklane/stocklane/internal/shared"
)

// Handler wires the movement feed endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs movement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers movement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleFeed)
	r.Get("/summary", h.handleSummary)
}

func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.ScopeRequired(w, r)
	if !ok {
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	events, page, err := h.service.Feed(r.Context(), scope, filter)
	if err != nil {
		h.logger.Error("movement feed failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": events, "pagination": page})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.ScopeRequired(w, r)
	if !ok {
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	groups, err := h.service.Summary(r.Context(), scope, filter, Grouping(r.URL.Query().Get("grouping")))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": groups})
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	filter := Filter{
		LocationID: parseID(q.Get("location_id")),
		ProductID:  parseID(q.Get("product_id")),
		Kind:       Kind(q.Get("kind")),
		Search:     q.Get("search"),
		Page:       int(parseID(q.Get("page"))),
		PerPage:    int(parseID(q.Get("per_page"))),
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return Filter{}, shared.NewValidationError("from", "use YYYY-MM-DD")
		}
		filter.From = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return Filter{}, shared.NewValidationError("to", "use YYYY-MM-DD")
		}
		// Make the upper bound inclusive of the whole day.
		filter.To = to.Add(24 * time.Hour)
	}
	return filter, nil
}

func parseID(raw string) int64 {
	id, _ := strconv.ParseInt(raw, 10, 64)
	return id
}
