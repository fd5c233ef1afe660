package stats

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/misung-crm/misung-crm/internal/rowstore"
)

// Source is one row set an assembler needs.
type Source struct {
	Name     string
	Query    rowstore.Query
	Optional bool
	// Message is the user-facing text returned when a required source fails.
	Message string
}

// FetchError reports a required source that could not be read.
type FetchError struct {
	Source  string
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("stats: fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// fetchAll runs the queries concurrently and joins them. Optional failures
// are logged and yield no rows; the first required failure in declaration
// order is returned.
func (s *Service) fetchAll(ctx context.Context, sources ...Source) (map[string][]rowstore.Row, error) {
	results := make([][]rowstore.Row, len(sources))
	errs := make([]error, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			results[i], errs[i] = s.store.Query(ctx, src.Query)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string][]rowstore.Row, len(sources))
	for i, src := range sources {
		if err := errs[i]; err != nil {
			if src.Optional {
				s.logger.Warn("optional stats source unavailable",
					slog.String("source", src.Name),
					slog.String("table", src.Query.Table),
					slog.Any("error", err))
				out[src.Name] = nil
				continue
			}
			s.logger.Error("fetch stats source",
				slog.String("source", src.Name),
				slog.String("table", src.Query.Table),
				slog.Any("error", err))
			return nil, &FetchError{Source: src.Name, Message: src.Message, Err: err}
		}
		out[src.Name] = results[i]
	}
	return out, nil
}
