package overinvestment

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/misung-crm/misung-crm/internal/platform/httpx"
	"github.com/misung-crm/misung-crm/internal/shared"
)

const defaultActor = "admin"

// Handler manages the ledger endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   func(http.Handler) http.Handler
}

// NewHandler builds Handler. guard protects the write routes.
func NewHandler(logger *slog.Logger, service *Service, guard func(http.Handler) http.Handler) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/api/monthly-over-investment", h.handleList)
	r.Group(func(r chi.Router) {
		r.Use(h.guard)
		r.Post("/api/monthly-over-investment", h.handleSave)
		r.Delete("/api/monthly-over-investment", h.handleDelete)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	p, ok := parsePeriod(w, r)
	if !ok {
		return
	}
	respond(w, h.service.List(r.Context(), p))
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.logger.Debug("decode over-investment body", slog.Any("error", err))
		httpx.JSON(w, http.StatusBadRequest, shared.Fail[struct{}](msgInvalidInput))
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if actor == "" {
		actor = defaultActor
	}
	respond(w, h.service.Save(r.Context(), req, actor))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	p, ok := parsePeriod(w, r)
	if !ok {
		return
	}
	respond(w, h.service.Delete(r.Context(), p))
}

func parsePeriod(w http.ResponseWriter, r *http.Request) (Period, bool) {
	q := r.URL.Query()
	year, errY := strconv.Atoi(strings.TrimSpace(q.Get("year")))
	month, errM := strconv.Atoi(strings.TrimSpace(q.Get("month")))
	if errY != nil || errM != nil {
		httpx.JSON(w, http.StatusBadRequest, shared.Fail[struct{}](msgInvalidInput))
		return Period{}, false
	}
	return Period{Year: year, Month: month}, true
}

func respond[T any](w http.ResponseWriter, resp shared.Response[T]) {
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusBadRequest
	}
	httpx.JSON(w, status, resp)
}
