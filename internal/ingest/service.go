// Package ingest coordinates provider fetches into the local cache with
// bounded concurrency.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"perth/internal/cache"
)

// BarProvider fetches daily bars for one symbol.
type BarProvider interface {
	GetDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]cache.Quote, error)
}

// Config controls batch fetch behaviour.
type Config struct {
	Concurrency int  // bounded in-flight symbol fetches (default 10)
	Force       bool // refetch even when the cache covers the range
}

// Result summarizes one batch refresh.
type Result struct {
	JobID   string
	Fetched int
	Skipped int
	Failed  []string
}

// Service fills the quote cache from the provider.
type Service struct {
	provider BarProvider
	quotes   *cache.QuoteRepository
	log      zerolog.Logger
}

func NewService(provider BarProvider, quotes *cache.QuoteRepository, log zerolog.Logger) *Service {
	return &Service{
		provider: provider,
		quotes:   quotes,
		log:      log.With().Str("component", "ingest").Logger(),
	}
}

// RefreshQuotes ensures the cache covers [start, end] for every symbol.
// Symbols already covered are skipped unless Force is set. Individual
// fetch failures are logged and skipped; the rest of the batch proceeds.
func (s *Service) RefreshQuotes(ctx context.Context, symbols []string, start, end time.Time, cfg Config) (*Result, error) {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 10
	}

	res := &Result{JobID: uuid.NewString()}
	var mu sync.Mutex

	s.log.Info().Str("job_id", res.JobID).Int("symbols", len(symbols)).
		Str("start", start.Format(cache.DateFormat)).
		Str("end", end.Format(cache.DateFormat)).
		Msg("refreshing quote cache")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			if !cfg.Force {
				ok, err := s.quotes.HasRange(symbol, start, end)
				if err != nil {
					return err
				}
				if ok {
					mu.Lock()
					res.Skipped++
					mu.Unlock()
					return nil
				}
			}

			bars, err := s.provider.GetDailyBars(ctx, symbol, start, end)
			if err != nil {
				// One symbol failing must not abort the batch.
				s.log.Warn().Str("job_id", res.JobID).Str("symbol", symbol).
					Err(err).Msg("symbol fetch failed, skipping")
				mu.Lock()
				res.Failed = append(res.Failed, symbol)
				mu.Unlock()
				return nil
			}

			if err := s.quotes.Upsert(bars); err != nil {
				return err
			}
			mu.Lock()
			res.Fetched++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return res, err
	}

	s.log.Info().Str("job_id", res.JobID).Int("fetched", res.Fetched).
		Int("skipped", res.Skipped).Int("failed", len(res.Failed)).
		Msg("quote refresh complete")
	return res, nil
}
