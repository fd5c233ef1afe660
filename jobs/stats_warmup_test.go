package jobs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/misung-crm/misung-crm/internal/jobs"
	"github.com/misung-crm/misung-crm/internal/rowstore"
	"github.com/misung-crm/misung-crm/internal/shared"
	"github.com/misung-crm/misung-crm/internal/stats"
)

type recordingWarmer struct {
	mu        sync.Mutex
	requests  map[string][]stats.Request
	failSales bool
}

func (r *recordingWarmer) add(family string, req stats.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.requests == nil {
		r.requests = make(map[string][]stats.Request)
	}
	r.requests[family] = append(r.requests[family], req)
}

func (r *recordingWarmer) Activity(_ context.Context, req stats.Request) shared.Response[stats.ActivityStats] {
	r.add("activity", req)
	return shared.OK(stats.ActivityStats{})
}

func (r *recordingWarmer) Sales(_ context.Context, req stats.Request) shared.Response[stats.SalesStats] {
	r.add("sales", req)
	if r.failSales {
		return shared.Fail[stats.SalesStats]("매출 데이터를 불러오지 못했습니다.")
	}
	return shared.OK(stats.SalesStats{})
}

func (r *recordingWarmer) Order(_ context.Context, req stats.Request) shared.Response[stats.OrderStats] {
	r.add("order", req)
	return shared.OK(stats.OrderStats{})
}

func (r *recordingWarmer) CostEfficiency(_ context.Context, req stats.Request) shared.Response[stats.CostEfficiencyStats] {
	r.add("cost-efficiency", req)
	return shared.OK(stats.CostEfficiencyStats{})
}

func (r *recordingWarmer) Collection(_ context.Context, req stats.Request) shared.Response[stats.CollectionStats] {
	r.add("collection", req)
	return shared.OK(stats.CollectionStats{})
}

var kst = time.FixedZone("KST", 9*3600)

func seededStore() *rowstore.Memory {
	store := rowstore.NewMemory()
	store.Insert("weekly_plans",
		rowstore.Row{"created_by": "Kim", "created_at": time.Date(2025, 2, 3, 9, 0, 0, 0, kst)},
		rowstore.Row{"created_by": "송기정(In)", "created_at": time.Date(2025, 3, 3, 9, 0, 0, 0, kst)},
		rowstore.Row{"created_by": "송기정", "created_at": time.Date(2025, 4, 3, 9, 0, 0, 0, kst)},
		rowstore.Row{"created_by": "", "created_at": time.Date(2025, 4, 3, 9, 0, 0, 0, kst)},
		rowstore.Row{"created_by": "Park", "created_at": time.Date(2024, 12, 31, 23, 0, 0, 0, kst)},
	)
	return store
}

func newTestJob(warmer StatsWarmer, store rowstore.Client) (*StatsWarmupJob, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	job := NewStatsWarmupJob(warmer, store, kst, slog.New(slog.NewTextHandler(io.Discard, nil)), jobmetrics.NewMetrics(registry))
	job.clock = func() time.Time { return time.Date(2025, 7, 10, 9, 0, 0, 0, kst) }
	return job, registry
}

func scrape(t *testing.T, registry *prometheus.Registry) string {
	t.Helper()
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Body.String()
}

func TestStatsWarmupWarmsDiscoveredUsers(t *testing.T) {
	warmer := &recordingWarmer{}
	job, _ := newTestJob(warmer, seededStore())

	task, err := NewStatsWarmupTask(0, uuid.Nil)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	for _, family := range []string{"activity", "sales", "order", "cost-efficiency", "collection"} {
		reqs := warmer.requests[family]
		require.Len(t, reqs, 2, family)
		assert.Equal(t, "Kim", reqs[0].UserName)
		assert.Equal(t, "송기정", reqs[1].UserName)
		assert.Equal(t, 2025, reqs[0].Year)
	}
}

func TestStatsWarmupReportsFailures(t *testing.T) {
	warmer := &recordingWarmer{failSales: true}
	job, registry := newTestJob(warmer, seededStore())

	err := job.Run(context.Background(), StatsWarmupPayload{Year: 2025, RunID: uuid.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 responses failed")
	assert.Len(t, warmer.requests["collection"], 2)
	body := scrape(t, registry)
	assert.Contains(t, body, `misung_jobs_total{job="stats:warmup",status="failure"} 1`)
	assert.Contains(t, body, `misung_stats_warmed_total{family="sales",status="failure"} 2`)
	assert.Contains(t, body, `misung_stats_warmed_total{family="order",status="success"} 2`)
}

func TestStatsWarmupNoUsers(t *testing.T) {
	warmer := &recordingWarmer{}
	job, _ := newTestJob(warmer, rowstore.NewMemory())
	require.NoError(t, job.Run(context.Background(), StatsWarmupPayload{Year: 2023}))
	assert.Empty(t, warmer.requests)
}

func TestStatsWarmupSkipsMalformedPayload(t *testing.T) {
	job, _ := newTestJob(&recordingWarmer{}, seededStore())
	err := job.Handle(context.Background(), asynq.NewTask(TaskStatsWarmup, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestStatsWarmupTaskPayload(t *testing.T) {
	id := uuid.New()
	task, err := NewStatsWarmupTask(2024, id)
	require.NoError(t, err)
	assert.Equal(t, TaskStatsWarmup, task.Type())

	var payload StatsWarmupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, StatsWarmupPayload{Year: 2024, RunID: id}, payload)
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var health QueueHealth
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&health))
	assert.Equal(t, QueueHealth{Queue: QueueDefault}, health)
}
