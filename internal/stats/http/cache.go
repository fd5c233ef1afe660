package statshttp

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/misung-crm/misung-crm/internal/branch"
	"github.com/misung-crm/misung-crm/internal/observability"
	"github.com/misung-crm/misung-crm/internal/platform/cache"
	"github.com/misung-crm/misung-crm/internal/shared"
	"github.com/misung-crm/misung-crm/internal/stats"
)

var errNotCacheable = errors.New("statshttp: response not cacheable")

const (
	defaultFlightTimeout = 30 * time.Second
	msgRequestCancelled  = "요청이 취소되었습니다."
)

// CacheRecorder receives one outcome per cached lookup.
type CacheRecorder interface {
	CacheOutcome(family, result string)
}

// CachedService memoises successful monthly stats responses in Redis.
// Concurrent identical requests share a single computation that is detached
// from any one caller's cancellation.
type CachedService struct {
	next          StatsService
	cache         *cache.Versioned
	resolver      *branch.Resolver
	logger        *slog.Logger
	recorder      CacheRecorder
	flightTimeout time.Duration
	group         singleflight.Group
}

// NewCachedService decorates next. The resolver collapses selectors that
// resolve to the same owners onto one cache entry; it may be nil.
func NewCachedService(next StatsService, c *cache.Versioned, resolver *branch.Resolver, logger *slog.Logger) *CachedService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedService{
		next:          next,
		cache:         c,
		resolver:      resolver,
		logger:        logger.With(slog.String("component", "stats.cache")),
		flightTimeout: defaultFlightTimeout,
	}
}

// WithFlightTimeout bounds each shared computation. Non-positive values keep
// the default.
func (c *CachedService) WithFlightTimeout(d time.Duration) *CachedService {
	if d > 0 {
		c.flightTimeout = d
	}
	return c
}

// WithRecorder reports cache outcomes to r.
func (c *CachedService) WithRecorder(r CacheRecorder) *CachedService {
	c.recorder = r
	return c
}

// Invalidate drops every cached stats response.
func (c *CachedService) Invalidate(ctx context.Context) error {
	return c.cache.Bump(ctx)
}

func (c *CachedService) Activity(ctx context.Context, req stats.Request) shared.Response[stats.ActivityStats] {
	return cached(ctx, c, "activity", req, func(ctx context.Context) shared.Response[stats.ActivityStats] {
		return c.next.Activity(ctx, req)
	})
}

func (c *CachedService) Sales(ctx context.Context, req stats.Request) shared.Response[stats.SalesStats] {
	return cached(ctx, c, "sales", req, func(ctx context.Context) shared.Response[stats.SalesStats] {
		return c.next.Sales(ctx, req)
	})
}

func (c *CachedService) Order(ctx context.Context, req stats.Request) shared.Response[stats.OrderStats] {
	return cached(ctx, c, "order", req, func(ctx context.Context) shared.Response[stats.OrderStats] {
		return c.next.Order(ctx, req)
	})
}

func (c *CachedService) CostEfficiency(ctx context.Context, req stats.Request) shared.Response[stats.CostEfficiencyStats] {
	return cached(ctx, c, "cost-efficiency", req, func(ctx context.Context) shared.Response[stats.CostEfficiencyStats] {
		return c.next.CostEfficiency(ctx, req)
	})
}

func (c *CachedService) Collection(ctx context.Context, req stats.Request) shared.Response[stats.CollectionStats] {
	return cached(ctx, c, "collection", req, func(ctx context.Context) shared.Response[stats.CollectionStats] {
		return c.next.Collection(ctx, req)
	})
}

// ConstructionScoresByMonth is not cached: recency depends on the current day.
func (c *CachedService) ConstructionScoresByMonth(ctx context.Context, year, month int, f stats.ScoreFilter) shared.Response[stats.ScoreStats] {
	return c.next.ConstructionScoresByMonth(ctx, year, month, f)
}

func (c *CachedService) ConstructionScoresByYear(ctx context.Context, year int, f stats.ScoreFilter) shared.Response[stats.ScoreStats] {
	return c.next.ConstructionScoresByYear(ctx, year, f)
}

func (c *CachedService) keyParts(family string, req stats.Request) []string {
	owner := req.UserName + "@" + string(req.Branch)
	if c.resolver != nil && req.UserName != "" {
		owner = c.resolver.Resolve(req.UserName, req.Branch).Key()
	}
	return []string{"stats", family, strconv.Itoa(req.Year), owner, "uid=" + req.UserID}
}

func (c *CachedService) record(family, result string) {
	if !c.cache.Enabled() {
		result = observability.CacheDisabled
	}
	if c.recorder != nil {
		c.recorder.CacheOutcome(family, result)
	}
}

func cached[T any](ctx context.Context, c *CachedService, family string, req stats.Request, load func(context.Context) shared.Response[T]) shared.Response[T] {
	key, err := c.cache.BuildKey(ctx, c.keyParts(family, req)...)
	if err != nil {
		c.logger.Warn("stats cache key unavailable", slog.Any("error", err))
		c.record(family, observability.CacheError)
		return load(ctx)
	}
	ch := c.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flightTimeout)
		defer cancel()
		var (
			out    shared.Response[T]
			loaded *shared.Response[T]
		)
		err := c.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			resp := load(ctx)
			loaded = &resp
			if !resp.Success {
				return nil, errNotCacheable
			}
			return resp, nil
		})
		switch {
		case err == nil && loaded == nil:
			c.record(family, observability.CacheHit)
			return out, nil
		case err == nil:
			c.record(family, observability.CacheMiss)
			return out, nil
		case loaded != nil:
			if errors.Is(err, errNotCacheable) {
				c.record(family, observability.CacheUncacheable)
			} else {
				c.record(family, observability.CacheError)
				c.logger.Warn("stats cache write failed", slog.String("key", key), slog.Any("error", err))
			}
			return *loaded, nil
		default:
			c.record(family, observability.CacheError)
			c.logger.Warn("stats cache read failed", slog.String("key", key), slog.Any("error", err))
			return load(ctx), nil
		}
	})
	select {
	case <-ctx.Done():
		return shared.Fail[T](msgRequestCancelled)
	case res := <-ch:
		return res.Val.(shared.Response[T])
	}
}
