package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"perth/internal/attribution"
	"perth/internal/report"
	"perth/pkg/formulas"
)

func newAnalyzeCmd(a **app) *cobra.Command {
	var (
		years   int
		noCache bool
		refresh bool
		bench   string
		format  string
	)

	cmd := &cobra.Command{
		Use:   "analyze <symbol>",
		Short: "Fit the factor model and attribute one security's return",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := *a
			symbol := strings.ToUpper(args[0])
			if years == 0 {
				years = app.cfg.LookbackYears
			}

			if noCache {
				if err := app.quotes.Purge(symbol); err != nil {
					return fmt.Errorf("failed to purge cached quotes for %s: %w", symbol, err)
				}
			}

			model, _, err := runPipeline(cmd.Context(), app, bench, years, refresh)
			if err != nil {
				return err
			}

			exposures, asOf, ok := model.LatestExposures(symbol)
			if !ok {
				return fmt.Errorf("no usable exposures for %s; is it in the universe with enough history?", symbol)
			}

			window := model.Panel.NumDates()
			factorReturns := model.CumulativeFactorReturns(window)
			totalReturn, ok := model.CumulativeReturn(symbol, window)
			if !ok {
				return fmt.Errorf("no return history for %s over the model window", symbol)
			}

			analyzer := attribution.NewAnalyzer(app.log)
			attr, err := analyzer.AttributeReturn(symbol, model.FactorNames, exposures, factorReturns, totalReturn)
			if err != nil {
				return fmt.Errorf("attribution failed: %w", err)
			}

			out, err := report.RenderAttribution(attr, report.Format(format))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exposures as of %s\n%s\n", asOf, out)

			if report.Format(format) == report.FormatText {
				printTechnicals(cmd, app, symbol)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&years, "years", 0, "lookback window in years (default from config)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "purge the symbol's cached quotes before fetching")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "force a refetch of all cached quotes")
	cmd.Flags().StringVar(&bench, "benchmark", "SPY", "benchmark symbol for the market return")
	cmd.Flags().StringVar(&format, "format", string(report.FormatText), "output format: text, markdown, json, csv")
	return cmd
}

// printTechnicals adds RSI and SMA context lines under the attribution table.
func printTechnicals(cmd *cobra.Command, app *app, symbol string) {
	end := time.Now().UTC()
	bars, err := app.quotes.GetRange(symbol, end.AddDate(0, -6, 0), end)
	if err != nil || len(bars) == 0 {
		return
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.AdjustedClose
	}
	if rsi := formulas.CalculateRSI(closes, 14); rsi != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "RSI(14): %.1f\n", *rsi)
	}
	if sma := formulas.CalculateSMA(closes, 50); sma != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "SMA(50): %.2f  last close: %.2f\n", *sma, closes[len(closes)-1])
	}
}
