package statshttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/misung-crm/misung-crm/internal/branch"
	"github.com/misung-crm/misung-crm/internal/platform/httpx"
	"github.com/misung-crm/misung-crm/internal/shared"
	"github.com/misung-crm/misung-crm/internal/stats"
	"github.com/misung-crm/misung-crm/internal/stats/export"
)

const (
	msgUserNameRequired = "user_name parameter is required"
	msgInvalidParams    = "요청 파라미터가 올바르지 않습니다."
)

var errInvalidQuery = errors.New("statshttp: invalid query")

// StatsService is the assembler contract served over HTTP.
type StatsService interface {
	Activity(ctx context.Context, req stats.Request) shared.Response[stats.ActivityStats]
	Sales(ctx context.Context, req stats.Request) shared.Response[stats.SalesStats]
	Order(ctx context.Context, req stats.Request) shared.Response[stats.OrderStats]
	CostEfficiency(ctx context.Context, req stats.Request) shared.Response[stats.CostEfficiencyStats]
	Collection(ctx context.Context, req stats.Request) shared.Response[stats.CollectionStats]
	ConstructionScoresByMonth(ctx context.Context, year, month int, f stats.ScoreFilter) shared.Response[stats.ScoreStats]
	ConstructionScoresByYear(ctx context.Context, year int, f stats.ScoreFilter) shared.Response[stats.ScoreStats]
}

// Handler serves the stats endpoints.
type Handler struct {
	logger   *slog.Logger
	service  StatsService
	validate *validator.Validate
	loc      *time.Location
	timeout  time.Duration
	now      func() time.Time
	bufPool  sync.Pool
}

// NewHandler constructs the stats HTTP handler. Years default to the current
// year observed in loc.
func NewHandler(logger *slog.Logger, service StatsService, loc *time.Location, timeout time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	h := &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		loc:      loc,
		timeout:  timeout,
		now:      time.Now,
	}
	h.bufPool.New = func() any { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

type statsQuery struct {
	Year      int    `validate:"gte=2000,lte=2100"`
	Month     int    `validate:"omitempty,gte=1,lte=12"`
	UserName  string `validate:"max=100"`
	UserID    string `validate:"max=100"`
	CreatedBy string `validate:"max=100"`
	Branch    string `validate:"omitempty,oneof=all headquarters incheon"`
}

func (h *Handler) parseQuery(values url.Values) (statsQuery, error) {
	q := statsQuery{
		UserName:  strings.TrimSpace(values.Get("user_name")),
		UserID:    strings.TrimSpace(values.Get("user_id")),
		CreatedBy: strings.TrimSpace(values.Get("created_by")),
		Branch:    strings.ToLower(strings.TrimSpace(values.Get("branch"))),
		Year:      h.now().In(h.loc).Year(),
	}
	if raw := strings.TrimSpace(values.Get("year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return q, fmt.Errorf("%w: year %q", errInvalidQuery, raw)
		}
		q.Year = year
	}
	if raw := strings.TrimSpace(values.Get("month")); raw != "" {
		month, err := strconv.Atoi(raw)
		if err != nil {
			return q, fmt.Errorf("%w: month %q", errInvalidQuery, raw)
		}
		q.Month = month
	}
	if err := h.validate.Struct(q); err != nil {
		return q, fmt.Errorf("%w: %v", errInvalidQuery, err)
	}
	return q, nil
}

func (q statsQuery) request() stats.Request {
	sel, _ := branch.ParseSelector(q.Branch)
	return stats.Request{Year: q.Year, UserName: q.UserName, Branch: sel, UserID: q.UserID}
}

func (q statsQuery) scoreFilter() stats.ScoreFilter {
	sel, _ := branch.ParseSelector(q.Branch)
	return stats.ScoreFilter{UserID: q.UserID, CreatedBy: q.CreatedBy, Branch: sel}
}

func (h *Handler) context(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout > 0 {
		return context.WithTimeout(r.Context(), h.timeout)
	}
	return context.WithCancel(r.Context())
}

// family describes one monthly stats endpoint.
type family[T any] struct {
	name        string
	requireName bool
	build       func(StatsService, context.Context, stats.Request) shared.Response[T]
	table       func(T) export.Table
}

func serveFamily[T any](h *Handler, f family[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, ok := h.queryOrFail(w, r, f.requireName)
		if !ok {
			return
		}
		ctx, cancel := h.context(r)
		defer cancel()
		respond(w, f.build(h.service, ctx, q.request()))
	}
}

func exportFamily[T any](h *Handler, f family[T], format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := h.parseQuery(r.URL.Query())
		if err == nil && f.requireName && q.UserName == "" {
			err = fmt.Errorf("%w: user_name required", errInvalidQuery)
		}
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrInvalidParams, err))
			return
		}
		ctx, cancel := h.context(r)
		defer cancel()
		resp := f.build(h.service, ctx, q.request())
		if !resp.Success || resp.Data == nil {
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUpstream, resp.Message))
			return
		}
		h.writeTable(w, f.table(*resp.Data), format, fmt.Sprintf("%s-stats-%d", f.name, q.Year))
	}
}

func (h *Handler) writeTable(w http.ResponseWriter, table export.Table, format, filename string) {
	buf := h.bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer h.bufPool.Put(buf)

	var (
		err         error
		contentType string
	)
	switch format {
	case "xlsx":
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = export.WriteXLSX(buf, table)
	default:
		format = "csv"
		contentType = "text/csv; charset=utf-8"
		err = export.WriteCSV(buf, table)
	}
	if err != nil {
		h.logger.Error("render stats export", slog.String("format", format), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Export Failed", "")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+"."+format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleScoresByMonth(w http.ResponseWriter, r *http.Request) {
	q, ok := h.queryOrFail(w, r, false)
	if !ok {
		return
	}
	if q.Month == 0 {
		q.Month = int(h.now().In(h.loc).Month())
	}
	ctx, cancel := h.context(r)
	defer cancel()
	respond(w, h.service.ConstructionScoresByMonth(ctx, q.Year, q.Month, q.scoreFilter()))
}

func (h *Handler) handleScoresByYear(w http.ResponseWriter, r *http.Request) {
	q, ok := h.queryOrFail(w, r, false)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	respond(w, h.service.ConstructionScoresByYear(ctx, q.Year, q.scoreFilter()))
}

func (h *Handler) queryOrFail(w http.ResponseWriter, r *http.Request, requireName bool) (statsQuery, bool) {
	q, err := h.parseQuery(r.URL.Query())
	if err != nil {
		h.logger.Debug("reject stats query", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.JSON(w, http.StatusBadRequest, shared.Fail[struct{}](msgInvalidParams))
		return q, false
	}
	if requireName && q.UserName == "" {
		httpx.JSON(w, http.StatusBadRequest, shared.Fail[struct{}](msgUserNameRequired))
		return q, false
	}
	return q, true
}

func respond[T any](w http.ResponseWriter, resp shared.Response[T]) {
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusBadRequest
	}
	httpx.JSON(w, status, resp)
}
