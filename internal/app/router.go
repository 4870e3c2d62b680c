package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/stocklane/stocklane/internal/adjustment"
	"github.com/stocklane/stocklane/internal/intake"
	"github.com/stocklane/stocklane/internal/movement"
	"github.com/stocklane/stocklane/internal/observability"
	"github.com/stocklane/stocklane/internal/reconcile"
	"github.com/stocklane/stocklane/internal/transfer"
	"github.com/stocklane/stocklane/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Config            *Config
	IntakeHandler     *intake.Handler
	AdjustmentHandler *adjustment.Handler
	TransferHandler   *transfer.Handler
	ReconcileHandler  *reconcile.Handler
	MovementHandler   *movement.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Stocklane defaults. Everything
// under /v1 requires the tenant scope headers.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(ScopeMiddleware)
		r.Route("/intake", params.IntakeHandler.MountRoutes)
		r.Route("/adjustments", params.AdjustmentHandler.MountRoutes)
		r.Route("/transfers", params.TransferHandler.MountRoutes)
		r.Route("/reconciliation", params.ReconcileHandler.MountRoutes)
		r.Route("/movements", params.MovementHandler.MountRoutes)
	})

	return r
}
