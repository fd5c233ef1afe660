package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/misung-crm/misung-crm/internal/observability"
	"github.com/misung-crm/misung-crm/internal/overinvestment"
	"github.com/misung-crm/misung-crm/internal/platform/httpx"
	statshttp "github.com/misung-crm/misung-crm/internal/stats/http"
	"github.com/misung-crm/misung-crm/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger                *slog.Logger
	Config                *Config
	StatsHandler          *statshttp.Handler
	OverInvestmentHandler *overinvestment.Handler
	JobHandler            *jobs.Handler
	Metrics               *observability.Metrics
	// Ready reports dependency health for /readyz; nil means always ready.
	Ready func(*http.Request) error
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if params.Ready != nil {
			if err := params.Ready(r); err != nil {
				params.Logger.Warn("readiness", slog.Any("error", err))
				httpx.RespondError(w, httpx.ErrNotReady)
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	if params.StatsHandler != nil {
		params.StatsHandler.MountRoutes(r)
	}
	if params.OverInvestmentHandler != nil {
		params.OverInvestmentHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
