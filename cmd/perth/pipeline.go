package main

import (
	"context"
	"fmt"
	"time"

	"perth/internal/engine"
	"perth/internal/ingest"
	"perth/internal/snapshots"
)

// runPipeline refreshes cached quotes for the active universe, fits the
// factor model over the lookback window, and stores a snapshot. Returns the
// fitted model and the saved snapshot.
func runPipeline(ctx context.Context, a *app, benchmark string, years int, force bool) (*engine.Model, *snapshots.Snapshot, error) {
	securities, err := a.universe.List("")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load universe: %w", err)
	}
	if len(securities) == 0 {
		return nil, nil, fmt.Errorf("universe is empty; seed the universe table before fitting a model")
	}

	symbols := make([]string, 0, len(securities))
	for _, sec := range securities {
		symbols = append(symbols, sec.Symbol)
	}

	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(-years, 0, 0)

	fetchList := append(append([]string{}, symbols...), benchmark)
	result, err := a.ingest.RefreshQuotes(ctx, fetchList, start, end, ingest.Config{
		Concurrency: a.cfg.FetchConcurrency,
		Force:       force,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("quote refresh failed: %w", err)
	}
	a.log.Info().
		Int("fetched", result.Fetched).
		Int("skipped", result.Skipped).
		Int("failed", len(result.Failed)).
		Msg("quote refresh complete")

	panelBuilder := engine.NewPanelBuilder(a.quotes, a.fundamentals, a.log)
	p, err := panelBuilder.Build(symbols, benchmark, start, end)
	if err != nil {
		return nil, nil, fmt.Errorf("panel build failed: %w", err)
	}

	classification, err := a.universe.Classifications()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load sector classifications: %w", err)
	}

	builder := engine.NewBuilder(engine.ModelConfig{
		EWMADecay:      a.cfg.EWMADecay,
		ShrinkageKappa: a.cfg.ShrinkageKappa,
		RegimeScaling:  a.cfg.RegimeScaling,
		WinsorizePct:   a.cfg.WinsorizePercent,
	}, a.log)

	model, err := builder.Fit(p, classification)
	if err != nil {
		return nil, nil, fmt.Errorf("model fit failed: %w", err)
	}

	snap := snapshotFromModel(model)
	if _, err := a.store.Save(snap); err != nil {
		return nil, nil, fmt.Errorf("failed to store model snapshot: %w", err)
	}
	a.log.Info().Str("id", snap.ID).Str("model_date", snap.ModelDate).Msg("model snapshot stored")

	return model, snap, nil
}

func snapshotFromModel(m *engine.Model) *snapshots.Snapshot {
	returns, dates := m.Regression.FactorReturnMatrix()

	specificRisk := make(map[string]float64, len(m.Specific))
	for symbol, est := range m.Specific {
		specificRisk[symbol] = est.Volatility
	}

	exposures := make(map[string][]float64, m.Panel.NumSymbols())
	for _, symbol := range m.Panel.Symbols() {
		if x, _, ok := m.LatestExposures(symbol); ok {
			exposures[symbol] = x
		}
	}

	snap := &snapshots.Snapshot{
		ModelDate:     m.Panel.Dates()[m.Panel.NumDates()-1],
		FactorNames:   m.FactorNames,
		Dates:         dates,
		FactorReturns: returns,
		Covariance:    m.Covariance,
		SpecificRisk:  specificRisk,
		Exposures:     exposures,
		Regime:        "normal",
		RegimeScale:   1,
	}
	if m.Regime != nil {
		snap.Regime = string(m.Regime.Regime)
		snap.RegimeScale = m.Regime.Scale
	}
	return snap
}
