package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"perth/internal/attribution"
	"perth/internal/report"
)

func newRiskCmd(a **app) *cobra.Command {
	var (
		showCov      bool
		showSpecific bool
		showRegime   bool
		symbol       string
		format       string
	)

	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Show the latest fitted risk model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := *a
			out := cmd.OutOrStdout()

			snap, err := app.store.Latest("")
			if err != nil {
				return fmt.Errorf("failed to load model snapshot: %w", err)
			}
			if snap == nil {
				return fmt.Errorf("no model snapshot available; run `perth analyze` or `perth serve` first")
			}

			if symbol != "" {
				symbol = strings.ToUpper(symbol)
				exposures, ok := snap.Exposures[symbol]
				if !ok {
					return fmt.Errorf("no exposures for %s in the latest snapshot", symbol)
				}
				vol, ok := snap.SpecificRisk[symbol]
				if !ok {
					return fmt.Errorf("no specific risk estimate for %s", symbol)
				}

				analyzer := attribution.NewAnalyzer(app.log)
				decomp, err := analyzer.DecomposeRisk(snap.FactorNames, []float64{1}, [][]float64{exposures}, snap.Covariance, []float64{vol * vol})
				if err != nil {
					return fmt.Errorf("risk decomposition failed: %w", err)
				}
				rendered, err := report.RenderRisk(decomp, report.Format(format))
				if err != nil {
					return err
				}
				fmt.Fprintln(out, rendered)
				return nil
			}

			if report.Format(format) == report.FormatJSON {
				return json.NewEncoder(out).Encode(snap)
			}

			fmt.Fprintf(out, "Model date: %s  regime: %s  variance scale: %.4f  fitted dates: %d\n",
				snap.ModelDate, snap.Regime, snap.RegimeScale, len(snap.Dates))

			if showRegime {
				return nil
			}

			if showCov {
				t := &report.Table{Title: "Factor Covariance (annualized)", Headers: append([]string{""}, snap.FactorNames...)}
				for i, name := range snap.FactorNames {
					row := []string{name}
					for j := range snap.FactorNames {
						row = append(row, strconv.FormatFloat(snap.Covariance[i][j], 'f', 6, 64))
					}
					t.Rows = append(t.Rows, row)
				}
				fmt.Fprintln(out, t.ASCII())
			}

			if showSpecific {
				symbols := make([]string, 0, len(snap.SpecificRisk))
				for s := range snap.SpecificRisk {
					symbols = append(symbols, s)
				}
				sort.Strings(symbols)
				t := &report.Table{Title: "Specific Risk (annualized)", Headers: []string{"Symbol", "Volatility"}}
				for _, s := range symbols {
					t.Rows = append(t.Rows, []string{s, fmt.Sprintf("%.2f%%", snap.SpecificRisk[s]*100)})
				}
				fmt.Fprintln(out, t.ASCII())
			}

			if !showCov && !showSpecific {
				fmt.Fprintf(out, "Factors: %s\n", strings.Join(snap.FactorNames, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showCov, "covariance", false, "print the factor covariance matrix")
	cmd.Flags().BoolVar(&showSpecific, "specific", false, "print per-security specific risk")
	cmd.Flags().BoolVar(&showRegime, "regime", false, "print only the volatility regime")
	cmd.Flags().StringVar(&symbol, "symbol", "", "decompose total risk for one security")
	cmd.Flags().StringVar(&format, "format", string(report.FormatText), "output format: text, markdown, json, csv")
	return cmd
}
