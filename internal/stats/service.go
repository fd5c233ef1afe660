// Package stats assembles the monthly dashboards: activity, sales, order,
// cost efficiency, collection and construction score. Every assembler reads
// from a row store, buckets rows by calendar month and returns the uniform
// success/data/message envelope.
package stats

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/misung-crm/misung-crm/internal/branch"
	"github.com/misung-crm/misung-crm/internal/rowstore"
	"github.com/misung-crm/misung-crm/internal/shared"
)

var (
	// ErrIdentityRequired is returned when a request names no user.
	ErrIdentityRequired = errors.New("stats: user identity required")
	// ErrInvalidYear is returned for a non-positive year.
	ErrInvalidYear = errors.New("stats: invalid year")
	// ErrInvalidPeriod is returned for an out-of-range month or date range.
	ErrInvalidPeriod = errors.New("stats: invalid period")
)

const (
	msgIdentityRequired = "사용자 정보가 필요합니다."
	msgInvalidYear      = "조회 연도가 올바르지 않습니다."
	msgInvalidPeriod    = "조회 기간이 올바르지 않습니다."
	msgStatsFailed      = "통계 데이터를 불러오지 못했습니다."
	msgWeeklyPlans      = "주간 계획 데이터를 불러오지 못했습니다."
	msgDailyPlans       = "일일 업무 데이터를 불러오지 못했습니다."
	msgInpays           = "매출 데이터를 불러오지 못했습니다."
	msgOutpays          = "매입 데이터를 불러오지 못했습니다."
	msgSites            = "현장 정보를 불러오지 못했습니다."
	msgOrders           = "수주 데이터를 불러오지 못했습니다."
	msgCollections      = "수금 데이터를 불러오지 못했습니다."
	msgConstructionSale = "건설사 영업 데이터를 불러오지 못했습니다."
	msgScoreFailed      = "점수 통계를 조회하는데 실패했습니다."
)

// Report is the data payload of a monthly stats family.
type Report[M, S any] struct {
	Monthly []M `json:"monthly"`
	Summary S   `json:"summary"`
}

// Request identifies whose statistics to build and for which year.
type Request struct {
	Year     int
	UserName string
	Branch   branch.Selector
	UserID   string
}

// Service builds stats envelopes from a row store.
type Service struct {
	store      rowstore.Client
	resolver   *branch.Resolver
	logger     *slog.Logger
	bucketizer Bucketizer
	now        func() time.Time
}

// NewService wires the assemblers. A nil location means UTC.
func NewService(store rowstore.Client, resolver *branch.Resolver, logger *slog.Logger, loc *time.Location) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if resolver == nil {
		resolver = branch.NewResolver()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:      store,
		resolver:   resolver,
		logger:     logger.With(slog.String("component", "stats")),
		bucketizer: Bucketizer{Location: loc},
		now:        time.Now,
	}
}

// WithNow overrides the clock used for activity recency.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// Location returns the zone months are observed in.
func (s *Service) Location() *time.Location {
	return s.bucketizer.Location
}

// Resolver exposes the branch resolver used for owner filters.
func (s *Service) Resolver() *branch.Resolver {
	return s.resolver
}

// yearBounds returns [Jan 1 year, Jan 1 year+1) in the stats location.
func (s *Service) yearBounds(year int) (time.Time, time.Time) {
	loc := s.Location()
	return time.Date(year, time.January, 1, 0, 0, 0, 0, loc), time.Date(year+1, time.January, 1, 0, 0, 0, 0, loc)
}

func (s *Service) yearRange(column string, year int) []rowstore.Condition {
	start, end := s.yearBounds(year)
	return []rowstore.Condition{rowstore.Gte(column, start), rowstore.Lt(column, end)}
}

// ownerFilter resolves the request's user and branch selector.
func (s *Service) ownerFilter(req Request) (branch.OwnerFilter, error) {
	if req.Year <= 0 {
		return branch.OwnerFilter{}, ErrInvalidYear
	}
	f := s.resolver.Resolve(req.UserName, req.Branch)
	if f.IsZero() {
		return branch.OwnerFilter{}, ErrIdentityRequired
	}
	return f, nil
}

func where(conds []rowstore.Condition, more ...rowstore.Condition) []rowstore.Condition {
	out := make([]rowstore.Condition, 0, len(conds)+len(more))
	out = append(out, conds...)
	return append(out, more...)
}

// fail converts an assembler error into the envelope and logs it.
func fail[T any](s *Service, family string, err error) shared.Response[T] {
	var fetchErr *FetchError
	switch {
	case errors.As(err, &fetchErr):
		msg := fetchErr.Message
		if msg == "" {
			msg = msgStatsFailed
		}
		return shared.Fail[T](msg)
	case errors.Is(err, ErrIdentityRequired):
		return shared.Fail[T](msgIdentityRequired)
	case errors.Is(err, ErrInvalidYear):
		return shared.Fail[T](msgInvalidYear)
	case errors.Is(err, ErrInvalidPeriod):
		return shared.Fail[T](msgInvalidPeriod)
	default:
		s.logger.Error(fmt.Sprintf("build %s stats", family), slog.Any("error", err))
		return shared.Fail[T](msgStatsFailed)
	}
}
