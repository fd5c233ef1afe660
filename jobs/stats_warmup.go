package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/misung-crm/misung-crm/internal/branch"
	jobmetrics "github.com/misung-crm/misung-crm/internal/jobs"
	"github.com/misung-crm/misung-crm/internal/rowstore"
	"github.com/misung-crm/misung-crm/internal/shared"
	"github.com/misung-crm/misung-crm/internal/stats"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// StatsWarmer is the cached stats surface the warm-up job drives.
type StatsWarmer interface {
	Activity(ctx context.Context, req stats.Request) shared.Response[stats.ActivityStats]
	Sales(ctx context.Context, req stats.Request) shared.Response[stats.SalesStats]
	Order(ctx context.Context, req stats.Request) shared.Response[stats.OrderStats]
	CostEfficiency(ctx context.Context, req stats.Request) shared.Response[stats.CostEfficiencyStats]
	Collection(ctx context.Context, req stats.Request) shared.Response[stats.CollectionStats]
}

// StatsWarmupJob pre-computes the year's monthly stats for every user that
// authored a weekly plan in that year.
type StatsWarmupJob struct {
	Stats    StatsWarmer
	Store    rowstore.Client
	Location *time.Location
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewStatsWarmupJob wires dependencies for the warm-up handler.
func NewStatsWarmupJob(warmer StatsWarmer, store rowstore.Client, loc *time.Location, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatsWarmupJob {
	if loc == nil {
		loc = time.UTC
	}
	return &StatsWarmupJob{
		Stats:    warmer,
		Store:    store,
		Location: loc,
		Logger:   logger,
		Metrics:  metrics,
		clock:    time.Now,
	}
}

// Handle processes stats warm-up tasks.
func (j *StatsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("stats warmup: handler not configured")
	}
	var payload StatsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Year == 0 {
		payload.Year = j.now().In(j.Location).Year()
	}
	if payload.RunID == uuid.Nil {
		payload.RunID = uuid.New()
	}
	return j.Run(ctx, payload)
}

// Run warms every discovered user for payload.Year.
func (j *StatsWarmupJob) Run(ctx context.Context, payload StatsWarmupPayload) (resultErr error) {
	tracker := j.metrics().Track(TaskStatsWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("year", payload.Year), slog.String("run_id", payload.RunID.String()))
	logger.Info("starting stats warmup")
	started := j.now()

	users, err := j.fetchUsers(ctx, payload.Year)
	if err != nil {
		logger.Error("load warmup users", slog.Any("error", err))
		return err
	}
	if len(users) == 0 {
		logger.Info("no users discovered for warmup")
		return nil
	}

	failed := 0
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		failed += j.warmUser(ctx, stats.Request{Year: payload.Year, UserName: user, Branch: branch.SelectAll}, logger)
	}

	logger.Info("completed stats warmup", slog.Int("users", len(users)), slog.Int("failed", failed), slog.Duration("duration", j.now().Sub(started)))
	if failed > 0 {
		return fmt.Errorf("stats warmup: %d responses failed", failed)
	}
	return nil
}

// warmUser computes each family for one user and returns the failure count.
func (j *StatsWarmupJob) warmUser(ctx context.Context, req stats.Request, logger *slog.Logger) int {
	if j.Stats == nil {
		return 0
	}
	userCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	families := []struct {
		name string
		run  func() (bool, string)
	}{
		{"activity", func() (bool, string) { r := j.Stats.Activity(userCtx, req); return r.Success, r.Message }},
		{"sales", func() (bool, string) { r := j.Stats.Sales(userCtx, req); return r.Success, r.Message }},
		{"order", func() (bool, string) { r := j.Stats.Order(userCtx, req); return r.Success, r.Message }},
		{"cost-efficiency", func() (bool, string) { r := j.Stats.CostEfficiency(userCtx, req); return r.Success, r.Message }},
		{"collection", func() (bool, string) { r := j.Stats.Collection(userCtx, req); return r.Success, r.Message }},
	}

	failed := 0
	for _, f := range families {
		ok, message := f.run()
		j.metrics().AddWarmed(f.name, ok)
		if !ok {
			failed++
			logger.Warn("warm stats", slog.String("user", req.UserName), slog.String("family", f.name), slog.String("message", message))
		}
	}
	return failed
}

// fetchUsers lists the distinct plan authors of the year, with branch suffixes
// folded into the base name.
func (j *StatsWarmupJob) fetchUsers(ctx context.Context, year int) ([]string, error) {
	if j.Store == nil {
		return nil, errors.New("stats warmup: row store not configured")
	}
	rows, err := j.Store.Query(ctx, rowstore.Query{
		Table:   "weekly_plans",
		Columns: []string{"created_by"},
		Where: []rowstore.Condition{
			rowstore.Gte("created_at", time.Date(year, time.January, 1, 0, 0, 0, 0, j.Location)),
			rowstore.Lt("created_at", time.Date(year+1, time.January, 1, 0, 0, 0, 0, j.Location)),
		},
	})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, row := range rows {
		owner, _ := row["created_by"].(string)
		id := branch.ParseOwner(owner)
		if id.Name == "" {
			continue
		}
		seen[id.Name] = struct{}{}
	}
	users := make([]string, 0, len(seen))
	for name := range seen {
		users = append(users, name)
	}
	sort.Strings(users)
	return users, nil
}

func (j *StatsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStatsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskStatsWarmup))
}

func (j *StatsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *StatsWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now()
}
