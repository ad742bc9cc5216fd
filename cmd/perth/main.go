// Package main is the entry point for the perth equity risk and attribution
// engine. It wires the SQLite cache, the market-data ingesters, and the
// factor-model pipeline behind a small set of subcommands.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"perth/internal/cache"
	"perth/internal/clients/quotes"
	"perth/internal/config"
	"perth/internal/database"
	"perth/internal/ingest"
	"perth/internal/snapshots"
	"perth/pkg/logger"
)

// app bundles everything a subcommand needs. Built once in the root
// PersistentPreRunE so every command shares the same cache connection.
type app struct {
	cfg          *config.Config
	log          zerolog.Logger
	db           *database.DB
	quotes       *cache.QuoteRepository
	universe     *cache.UniverseRepository
	fundamentals *cache.FundamentalsRepository
	store        *snapshots.Store
	ingest       *ingest.Service
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate cache database: %w", err)
	}

	client := quotes.NewClient(quotes.Config{
		BaseURL:        cfg.QuoteAPIURL,
		Timeout:        time.Duration(cfg.FetchTimeoutSecs) * time.Second,
		RequestsPerSec: cfg.RateLimitPerSec,
	}, log)

	quoteRepo := cache.NewQuoteRepository(db.Conn(), log)

	return &app{
		cfg:          cfg,
		log:          log,
		db:           db,
		quotes:       quoteRepo,
		universe:     cache.NewUniverseRepository(db.Conn(), log),
		fundamentals: cache.NewFundamentalsRepository(db.Conn(), log),
		store:        snapshots.NewStore(db.Conn(), log),
		ingest:       ingest.NewService(client, quoteRepo, log),
	}, nil
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close cache database")
		}
	}
}

func main() {
	var a *app

	root := &cobra.Command{
		Use:           "perth",
		Short:         "Multi-factor equity risk and attribution engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			a, err = newApp()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a != nil {
				a.close()
			}
		},
	}

	root.AddCommand(newAnalyzeCmd(&a))
	root.AddCommand(newUniverseCmd(&a))
	root.AddCommand(newRiskCmd(&a))
	root.AddCommand(newServeCmd(&a))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
