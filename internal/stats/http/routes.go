package statshttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/misung-crm/misung-crm/internal/stats"
	"github.com/misung-crm/misung-crm/internal/stats/export"
)

const rateLimit = 10
const rateWindow = time.Minute

// MountRoutes registers the stats endpoints and their CSV/XLSX exports.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	mountFamily(h, r, limiter, family[stats.ActivityStats]{
		name:  "activity",
		build: StatsService.Activity,
		table: export.Activity,
	})
	mountFamily(h, r, limiter, family[stats.SalesStats]{
		name:        "sales",
		requireName: true,
		build:       StatsService.Sales,
		table:       export.Sales,
	})
	mountFamily(h, r, limiter, family[stats.OrderStats]{
		name:        "order",
		requireName: true,
		build:       StatsService.Order,
		table:       export.Order,
	})
	mountFamily(h, r, limiter, family[stats.CostEfficiencyStats]{
		name:        "cost-efficiency",
		requireName: true,
		build:       StatsService.CostEfficiency,
		table:       export.CostEfficiency,
	})
	mountFamily(h, r, limiter, family[stats.CollectionStats]{
		name:        "collection",
		requireName: true,
		build:       StatsService.Collection,
		table:       export.Collection,
	})

	r.Get("/api/construction-score-stats/month", h.handleScoresByMonth)
	r.Get("/api/construction-score-stats/year", h.handleScoresByYear)
}

func mountFamily[T any](h *Handler, r chi.Router, limiter func(http.Handler) http.Handler, f family[T]) {
	base := "/api/" + f.name + "-stats"
	r.Get(base, serveFamily(h, f))
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		for _, format := range []string{"csv", "xlsx"} {
			gr.Get(base+"/export."+format, exportFamily(h, f, format))
		}
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if user := strings.TrimSpace(r.URL.Query().Get("user_name")); user != "" {
		return "user:" + user, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
