package attribution

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perth/internal/errs"
)

func newTestAnalyzer() *Analyzer {
	return NewAnalyzer(zerolog.Nop())
}

// TestAttributeReturn: exposures Market=1.2, Size=0.5, factor returns 0.10
// and 0.05, total return 0.15 gives contributions 0.12 and 0.025, factor
// return 0.145, specific return 0.005, R^2 ~ 0.9344.
func TestAttributeReturn(t *testing.T) {
	a := newTestAnalyzer()
	out, err := a.AttributeReturn("AAPL",
		[]string{"market", "size"},
		[]float64{1.2, 0.5},
		[]float64{0.10, 0.05},
		0.15,
	)
	require.NoError(t, err)

	assert.InDelta(t, 0.12, out.Contributions[0].Contribution, 1e-12)
	assert.InDelta(t, 0.025, out.Contributions[1].Contribution, 1e-12)
	assert.InDelta(t, 0.145, out.FactorReturn, 1e-12)
	assert.InDelta(t, 0.005, out.SpecificReturn, 1e-12)
	assert.InDelta(t, math.Pow(0.145/0.15, 2), out.RSquared, 1e-12)
	assert.InDelta(t, 0.9344, out.RSquared, 1e-3)
	assert.InDelta(t, 0.12/0.15*100, out.Contributions[0].PctOfTotal, 1e-10)
}

// Total return always equals factor return plus specific return.
func TestAttributionIdentity(t *testing.T) {
	a := newTestAnalyzer()
	names := []string{"value", "momentum", "size"}
	cases := []struct {
		exposures []float64
		returns   []float64
		total     float64
	}{
		{[]float64{0.3, -1.1, 2.0}, []float64{0.01, -0.02, 0.003}, 0.017},
		{[]float64{0, 0, 0}, []float64{0.01, 0.02, 0.03}, -0.004},
		{[]float64{1.5, 0.2, -0.7}, []float64{0, 0, 0}, 0},
	}
	for _, tc := range cases {
		out, err := a.AttributeReturn("X", names, tc.exposures, tc.returns, tc.total)
		require.NoError(t, err)
		assert.InDelta(t, tc.total, out.FactorReturn+out.SpecificReturn, 1e-10)
	}
}

func TestAttributeReturnZeroGuard(t *testing.T) {
	a := newTestAnalyzer()
	out, err := a.AttributeReturn("X", []string{"f"}, []float64{1}, []float64{0.01}, 1e-12)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.RSquared)
	assert.Equal(t, 0.0, out.Contributions[0].PctOfTotal)
}

func TestAttributeReturnDimensionMismatch(t *testing.T) {
	a := newTestAnalyzer()
	_, err := a.AttributeReturn("X", []string{"f", "g"}, []float64{1}, []float64{0.01, 0.02}, 0.1)
	var mismatch *errs.DimensionMismatch
	assert.ErrorAs(t, err, &mismatch)
}

func TestAttributePortfolio(t *testing.T) {
	a := newTestAnalyzer()
	names := []string{"market", "size"}
	returns := []float64{0.10, 0.05}

	positions := []Position{
		{Symbol: "AAPL", Weight: 0.6, Exposures: []float64{1.2, 0.5}, TotalReturn: 0.15},
		{Symbol: "XOM", Weight: 0.4, Exposures: []float64{0.8, -0.5}, TotalReturn: 0.05},
	}
	out, err := a.AttributePortfolio(positions, names, returns)
	require.NoError(t, err)

	wantTotal := 0.6*0.15 + 0.4*0.05
	assert.InDelta(t, wantTotal, out.TotalReturn, 1e-12)
	wantMarket := (0.6*1.2 + 0.4*0.8) * 0.10
	assert.InDelta(t, wantMarket, out.Contributions[0].Contribution, 1e-12)
	assert.InDelta(t, wantTotal, out.FactorReturn+out.SpecificReturn, 1e-10)
}

func TestAttributePortfolioWeightSum(t *testing.T) {
	a := newTestAnalyzer()
	_, err := a.AttributePortfolio(
		[]Position{{Weight: 0.5, Exposures: []float64{1}}, {Weight: 0.4, Exposures: []float64{1}}},
		[]string{"f"}, []float64{0.01},
	)
	var invalid *errs.InvalidParameter
	assert.ErrorAs(t, err, &invalid)
}

func TestDecomposeRisk(t *testing.T) {
	a := newTestAnalyzer()
	names := []string{"market", "size"}
	weights := []float64{0.5, 0.5}
	exposures := [][]float64{{1.0, 0.4}, {1.0, -0.4}}
	cov := [][]float64{{0.04, 0}, {0, 0.01}}
	specific := []float64{0.09, 0.04}

	out, err := a.DecomposeRisk(names, weights, exposures, cov, specific)
	require.NoError(t, err)

	// Portfolio exposure is (1.0, 0.0): the size tilts cancel.
	assert.InDelta(t, 0.04, out.FactorVariance, 1e-12)
	wantSpecific := 0.25*0.09 + 0.25*0.04
	assert.InDelta(t, wantSpecific, out.SpecificVariance, 1e-12)
	assert.InDelta(t, out.FactorVariance+out.SpecificVariance, out.TotalVariance, 1e-15)
	assert.InDelta(t, math.Sqrt(out.TotalVariance), out.TotalRisk, 1e-15)

	assert.InDelta(t, 1.0, out.FactorRisks[0].Exposure, 1e-12)
	assert.InDelta(t, 0.04, out.FactorRisks[0].Contribution, 1e-12)
	assert.InDelta(t, 0.0, out.FactorRisks[1].Contribution, 1e-12)
}

// Monetary VaR at 95% equals portfolio value times 1.645 times total risk.
func TestVaRScaling(t *testing.T) {
	a := newTestAnalyzer()
	out, err := a.DecomposeRisk(
		[]string{"market"},
		[]float64{1.0},
		[][]float64{{1.0}},
		[][]float64{{0.0256}},
		[]float64{0.0144},
	)
	require.NoError(t, err)

	assert.Equal(t, 1.645*out.TotalRisk, out.VaR95)
	assert.Equal(t, 2.326*out.TotalRisk, out.VaR99)

	v95, v99 := out.MonetaryVaR(1_000_000)
	assert.Equal(t, 1_000_000*out.VaR95, v95)
	assert.Equal(t, 1_000_000*out.VaR99, v99)
}

func TestDecomposeRiskRejectsNonPD(t *testing.T) {
	a := newTestAnalyzer()
	_, err := a.DecomposeRisk(
		[]string{"a", "b"},
		[]float64{1},
		[][]float64{{1, 1}},
		[][]float64{{1, 2}, {2, 1}},
		[]float64{0.01},
	)
	var notPD *errs.NotPositiveDefinite
	require.ErrorAs(t, err, &notPD)
	assert.InDelta(t, -1, notPD.MinEigenvalue, 1e-10)
}

func TestDecomposeRiskDimensionChecks(t *testing.T) {
	a := newTestAnalyzer()
	var mismatch *errs.DimensionMismatch

	_, err := a.DecomposeRisk([]string{"a"}, []float64{1, 1}, [][]float64{{1}}, [][]float64{{1}}, []float64{0.01, 0.01})
	assert.ErrorAs(t, err, &mismatch)

	_, err = a.DecomposeRisk([]string{"a", "b"}, []float64{1}, [][]float64{{1, 1}}, [][]float64{{1}}, []float64{0.01})
	assert.ErrorAs(t, err, &mismatch)
}
