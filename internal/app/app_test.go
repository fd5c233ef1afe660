package app

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/misung-crm/misung-crm/internal/branch"
	"github.com/misung-crm/misung-crm/internal/observability"
	"github.com/misung-crm/misung-crm/internal/rowstore"
	"github.com/misung-crm/misung-crm/internal/shared"
	"github.com/misung-crm/misung-crm/internal/stats"
	statshttp "github.com/misung-crm/misung-crm/internal/stats/http"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"MULTI_BRANCH_USERS", "STATS_CACHE_TTL", "STATS_TIMEZONE"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, []string{"송기정", "김태현"}, cfg.MultiBranchUsers)
	assert.False(t, cfg.CacheEnabled())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Seoul", loc.String())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("MULTI_BRANCH_USERS", "송기정, Kim ,")
	t.Setenv("STATS_CACHE_TTL", "5m")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"송기정", "Kim"}, cfg.MultiBranchUsers)
	assert.True(t, cfg.CacheEnabled())
	assert.Equal(t, 5*time.Minute, cfg.StatsCacheTTL)
}

func TestLoadConfigRejectsBadTimezone(t *testing.T) {
	t.Setenv("STATS_TIMEZONE", "Mars/Olympus")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestTestModeFlag(t *testing.T) {
	t.Setenv(testModeEnv, "true")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	assert.False(t, InTestMode())
}

func guarded(token string) http.Handler {
	return AdminGuard(token, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(shared.ActorFromContext(r.Context())))
	}))
}

func TestAdminGuard(t *testing.T) {
	h := guarded("s3cret")

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Admin-Token", "s3cret")
	req.Header.Set("X-User-Name", "%EA%B4%80%EB%A6%AC%EC%9E%90")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "관리자", rr.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Admin-Token", "")
	rr = httptest.NewRecorder()
	guarded("").ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func newTestRouter(t *testing.T, ready func(*http.Request) error) http.Handler {
	t.Helper()
	kst := time.FixedZone("KST", 9*3600)
	store := rowstore.NewMemory()
	store.Insert("inpays", rowstore.Row{"sales_date": "2025-03-04", "supply_price": 1000.0, "construction_manager": "Kim"})
	svc := stats.NewService(store, branch.NewResolver(), discardLogger(), kst)
	handler := statshttp.NewHandler(discardLogger(), svc, kst, time.Second)
	return NewRouter(RouterParams{
		Logger:       discardLogger(),
		Config:       &Config{AppEnv: "test", AppRequestTimeout: time.Second},
		StatsHandler: handler,
		Metrics:      observability.NewMetrics(),
		Ready:        ready,
	})
}

func TestRouterServesStatsAndProbes(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sales-stats?year=2025&user_name=Kim", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var resp shared.Response[stats.SalesStats]
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.True(t, resp.Success)
	assert.Equal(t, 1000.0, resp.Data.Monthly[2].Revenue)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rr.Body.String(), `route="/api/sales-stats"`))
}

func TestRouterReadiness(t *testing.T) {
	router := newTestRouter(t, func(*http.Request) error { return errors.New("db down") })
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
