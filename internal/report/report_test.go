package report

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perth/internal/attribution"
)

func sampleAttribution() *attribution.ReturnAttribution {
	return &attribution.ReturnAttribution{
		Symbol:         "AAPL",
		TotalReturn:    0.15,
		FactorReturn:   0.145,
		SpecificReturn: 0.005,
		RSquared:       0.9344,
		Contributions: []attribution.FactorContribution{
			{Factor: "market", Exposure: 1.2, FactorReturn: 0.10, Contribution: 0.12, PctOfTotal: 80},
			{Factor: "size", Exposure: 0.5, FactorReturn: 0.05, Contribution: 0.025, PctOfTotal: 16.67},
		},
	}
}

func sampleRisk() *attribution.RiskDecomposition {
	return &attribution.RiskDecomposition{
		FactorVariance:   0.04,
		SpecificVariance: 0.01,
		TotalVariance:    0.05,
		FactorRisk:       0.2,
		SpecificRisk:     0.1,
		TotalRisk:        0.2236,
		VaR95:            0.3678,
		VaR99:            0.5201,
		FactorRisks: []attribution.FactorRisk{
			{Factor: "market", Exposure: 1.0, Contribution: 0.04, PctOfTotal: 80},
		},
	}
}

func TestASCIITable(t *testing.T) {
	out, err := RenderAttribution(sampleAttribution(), FormatText)
	require.NoError(t, err)

	assert.Contains(t, out, "Return Attribution: AAPL")
	assert.Contains(t, out, "┌")
	assert.Contains(t, out, "┘")
	assert.Contains(t, out, "market")
	assert.Contains(t, out, "0.1200")

	// Every line of the box has the same visible width.
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	width := len([]rune(lines[1]))
	for _, line := range lines[1:] {
		assert.Equal(t, width, len([]rune(line)))
	}
}

func TestMarkdownTable(t *testing.T) {
	out, err := RenderAttribution(sampleAttribution(), FormatMarkdown)
	require.NoError(t, err)
	assert.Contains(t, out, "| Factor | Exposure |")
	assert.Contains(t, out, "|---|")
	assert.Contains(t, out, "| market |")
}

func TestJSONSnakeCase(t *testing.T) {
	out, err := RenderAttribution(sampleAttribution(), FormatJSON)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Contains(t, decoded, "total_return")
	assert.Contains(t, decoded, "factor_return")
	assert.Contains(t, decoded, "specific_return")
	assert.Contains(t, decoded, "r_squared")

	out, err = RenderRisk(sampleRisk(), FormatJSON)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Contains(t, decoded, "total_variance")
	assert.Contains(t, decoded, "var_95")
}

func TestRiskCSV(t *testing.T) {
	out, err := RenderRisk(sampleRisk(), FormatCSV)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "risk_type,variance,risk,pct_of_total", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "total,"))
	assert.True(t, strings.HasPrefix(lines[2], "factor,"))
	assert.True(t, strings.HasPrefix(lines[3], "specific,"))
	assert.True(t, strings.HasPrefix(lines[4], "factor_market,"))
}

func TestAttributionCSV(t *testing.T) {
	out, err := RenderAttribution(sampleAttribution(), FormatCSV)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "factor,exposure,factor_return,contribution,pct_of_total", lines[0])
}
