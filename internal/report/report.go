package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"perth/internal/attribution"
)

// Format selects the output rendering.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
)

// AttributionTable builds the per-factor contribution table.
func AttributionTable(a *attribution.ReturnAttribution) *Table {
	title := "Return Attribution"
	if a.Symbol != "" {
		title += ": " + a.Symbol
	}
	t := &Table{
		Title:   title,
		Headers: []string{"Factor", "Exposure", "Factor Return", "Contribution", "% of Total"},
	}
	for _, c := range a.Contributions {
		t.Rows = append(t.Rows, []string{
			c.Factor,
			fmt.Sprintf("%.4f", c.Exposure),
			fmt.Sprintf("%.4f", c.FactorReturn),
			fmt.Sprintf("%.4f", c.Contribution),
			fmt.Sprintf("%.1f%%", c.PctOfTotal),
		})
	}
	t.Rows = append(t.Rows,
		[]string{"factor_return", "", "", fmt.Sprintf("%.4f", a.FactorReturn), ""},
		[]string{"specific_return", "", "", fmt.Sprintf("%.4f", a.SpecificReturn), ""},
		[]string{"total_return", "", "", fmt.Sprintf("%.4f", a.TotalReturn), ""},
	)
	return t
}

// RiskTable builds the variance-decomposition table.
func RiskTable(r *attribution.RiskDecomposition) *Table {
	t := &Table{
		Title:   "Risk Decomposition",
		Headers: []string{"Component", "Variance", "Risk", "% of Total"},
	}
	pct := func(v float64) string {
		if r.TotalVariance <= 0 {
			return "0.0%"
		}
		return fmt.Sprintf("%.1f%%", v/r.TotalVariance*100)
	}
	t.Rows = append(t.Rows,
		[]string{"factor", fmt.Sprintf("%.6f", r.FactorVariance), fmt.Sprintf("%.4f", r.FactorRisk), pct(r.FactorVariance)},
		[]string{"specific", fmt.Sprintf("%.6f", r.SpecificVariance), fmt.Sprintf("%.4f", r.SpecificRisk), pct(r.SpecificVariance)},
		[]string{"total", fmt.Sprintf("%.6f", r.TotalVariance), fmt.Sprintf("%.4f", r.TotalRisk), "100.0%"},
	)
	for _, f := range r.FactorRisks {
		t.Rows = append(t.Rows, []string{
			"factor_" + f.Factor,
			fmt.Sprintf("%.6f", f.Contribution),
			"",
			fmt.Sprintf("%.1f%%", f.PctOfTotal),
		})
	}
	return t
}

// RenderAttribution renders a return attribution in the requested format.
func RenderAttribution(a *attribution.ReturnAttribution, format Format) (string, error) {
	switch format {
	case FormatMarkdown:
		return AttributionTable(a).Markdown(), nil
	case FormatJSON:
		payload, err := json.MarshalIndent(a, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal attribution: %w", err)
		}
		return string(payload), nil
	case FormatCSV:
		return attributionCSV(a)
	default:
		return AttributionTable(a).ASCII(), nil
	}
}

// RenderRisk renders a risk decomposition in the requested format.
func RenderRisk(r *attribution.RiskDecomposition, format Format) (string, error) {
	switch format {
	case FormatMarkdown:
		return RiskTable(r).Markdown(), nil
	case FormatJSON:
		payload, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal risk decomposition: %w", err)
		}
		return string(payload), nil
	case FormatCSV:
		return riskCSV(r)
	default:
		return RiskTable(r).ASCII(), nil
	}
}

func attributionCSV(a *attribution.ReturnAttribution) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write([]string{"factor", "exposure", "factor_return", "contribution", "pct_of_total"}); err != nil {
		return "", err
	}
	for _, c := range a.Contributions {
		record := []string{
			c.Factor,
			fmt.Sprintf("%g", c.Exposure),
			fmt.Sprintf("%g", c.FactorReturn),
			fmt.Sprintf("%g", c.Contribution),
			fmt.Sprintf("%g", c.PctOfTotal),
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	return sb.String(), w.Error()
}

// riskCSV flattens the decomposition with a risk_type column: total,
// factor, specific, then factor_<name> rows.
func riskCSV(r *attribution.RiskDecomposition) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write([]string{"risk_type", "variance", "risk", "pct_of_total"}); err != nil {
		return "", err
	}
	pct := func(v float64) string {
		if r.TotalVariance <= 0 {
			return "0"
		}
		return fmt.Sprintf("%g", v/r.TotalVariance*100)
	}
	rows := [][]string{
		{"total", fmt.Sprintf("%g", r.TotalVariance), fmt.Sprintf("%g", r.TotalRisk), "100"},
		{"factor", fmt.Sprintf("%g", r.FactorVariance), fmt.Sprintf("%g", r.FactorRisk), pct(r.FactorVariance)},
		{"specific", fmt.Sprintf("%g", r.SpecificVariance), fmt.Sprintf("%g", r.SpecificRisk), pct(r.SpecificVariance)},
	}
	for _, f := range r.FactorRisks {
		rows = append(rows, []string{
			"factor_" + f.Factor,
			fmt.Sprintf("%g", f.Contribution),
			"",
			fmt.Sprintf("%g", f.PctOfTotal),
		})
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return sb.String(), w.Error()
}
