package overinvestment

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/misung-crm/misung-crm/internal/shared"
)

// Invalidator drops cached results derived from the ledger.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Service applies ledger operations and reports them in the response envelope.
type Service struct {
	store       Store
	invalidator Invalidator
	logger      *slog.Logger
	validate    *validator.Validate
}

// NewService constructs the ledger service. invalidator may be nil.
func NewService(store Store, invalidator Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       store,
		invalidator: invalidator,
		logger:      logger.With(slog.String("component", "overinvestment")),
		validate:    validator.New(),
	}
}

// List returns the month's rows ordered by manager name.
func (s *Service) List(ctx context.Context, p Period) shared.Response[[]Entry] {
	if err := s.validate.Struct(p); err != nil {
		return shared.Fail[[]Entry](msgInvalidInput)
	}
	entries, err := s.store.List(ctx, p.Year, p.Month)
	if err != nil {
		s.logger.Error("list over-investment", slog.Int("year", p.Year), slog.Int("month", p.Month), slog.Any("error", err))
		return shared.Fail[[]Entry](msgLoadFailed)
	}
	return shared.OK(entries)
}

// Save replaces the month with req.Rows, attributed to createdBy.
func (s *Service) Save(ctx context.Context, req SaveRequest, createdBy string) shared.Response[struct{}] {
	if err := s.validate.Struct(req); err != nil {
		s.logger.Debug("reject over-investment save", slog.Any("error", err))
		return shared.Fail[struct{}](msgInvalidInput)
	}
	for i := range req.Rows {
		req.Rows[i].ManagerName = strings.TrimSpace(req.Rows[i].ManagerName)
	}
	if err := s.store.Replace(ctx, req.Year, req.Month, req.Rows, createdBy); err != nil {
		s.logger.Error("save over-investment", slog.Int("year", req.Year), slog.Int("month", req.Month), slog.Any("error", err))
		if errors.Is(err, ErrClearMonth) {
			return shared.Fail[struct{}](msgClearFailed)
		}
		return shared.Fail[struct{}](msgSaveFailed)
	}
	s.invalidate(ctx)
	s.logger.Info("over-investment saved", slog.Int("year", req.Year), slog.Int("month", req.Month), slog.Int("rows", len(req.Rows)), slog.String("by", createdBy))
	return shared.Response[struct{}]{Success: true, Message: msgSaved}
}

// Delete removes every row of the month.
func (s *Service) Delete(ctx context.Context, p Period) shared.Response[struct{}] {
	if err := s.validate.Struct(p); err != nil {
		return shared.Fail[struct{}](msgInvalidInput)
	}
	n, err := s.store.Delete(ctx, p.Year, p.Month)
	if err != nil {
		s.logger.Error("delete over-investment", slog.Int("year", p.Year), slog.Int("month", p.Month), slog.Any("error", err))
		return shared.Fail[struct{}](msgDeleteFailed)
	}
	s.invalidate(ctx)
	s.logger.Info("over-investment deleted", slog.Int("year", p.Year), slog.Int("month", p.Month), slog.Int64("rows", n))
	return shared.Response[struct{}]{Success: true, Message: msgDeleted}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate stats cache", slog.Any("error", err))
	}
}
