package factors

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perth/internal/panel"
	"perth/pkg/formulas"
)

func tradingDates(n int) []string {
	dates := make([]string, n)
	for i := range dates {
		dates[i] = fmt.Sprintf("2024-%02d-%02d", i/28+1, i%28+1)
	}
	return dates
}

// TestMediumTermMomentumScores reproduces the three-security 6-1 momentum
// scenario: cumulative lagged 6-month returns of +0.30, 0.00 and -0.30 must
// standardize to ±1.224744871 and 0.
func TestMediumTermMomentumScores(t *testing.T) {
	nDates := 160 // needs 126-day window + 21-day skip + a reference date
	dates := tradingDates(nDates)

	// Constant daily returns chosen so the 126-day sums are 0.30 / 0 / -0.30.
	daily := map[string]float64{
		"AAA": 0.30 / 126,
		"BBB": 0.0,
		"CCC": -0.30 / 126,
	}

	b := panel.NewBuilder()
	for _, d := range dates {
		for sym, r := range daily {
			b.Set(sym, d, panel.ColReturn, r)
		}
	}
	p := b.Build()

	scores, err := NewMediumTermMomentum(MomentumConfig{}).Compute(p)
	require.NoError(t, err)

	ref := p.NumDates() - 1
	want := map[string]float64{"AAA": 1.224744871, "BBB": 0, "CCC": -1.224744871}
	for sym, w := range want {
		got := scores[p.FlatIndex(ref, p.SymbolIndex(sym))]
		assert.InDelta(t, w, got, 1e-6, "symbol %s", sym)
	}
}

// TestMomentumLagWindows verifies the exact date ranges each horizon sums:
// short [d-20, d], medium [d-146, d-21], long [d-272, d-21].
func TestMomentumLagWindows(t *testing.T) {
	nDates := 300
	dates := tradingDates(nDates)

	b := panel.NewBuilder()
	for di, d := range dates {
		b.Set("AAA", d, panel.ColReturn, float64(di)) // r_t = t, sums are arithmetic series
		b.Set("BBB", d, panel.ColReturn, 0)
	}
	p := b.Build()
	returns, err := p.Column(panel.ColReturn)
	require.NoError(t, err)

	sumRange := func(lo, hi int) float64 {
		s := 0.0
		for k := lo; k <= hi; k++ {
			s += float64(k)
		}
		return s
	}
	d := nDates - 1
	si := p.SymbolIndex("AAA")

	short, err := panel.RollingSum(p, returns, 21, 21)
	require.NoError(t, err)
	assert.InDelta(t, sumRange(d-20, d), short[p.FlatIndex(d, si)], 1e-9)

	lag21, err := panel.Shift(p, returns, 21)
	require.NoError(t, err)
	medium, err := panel.RollingSum(p, lag21, 126, 126)
	require.NoError(t, err)
	assert.InDelta(t, sumRange(d-146, d-21), medium[p.FlatIndex(d, si)], 1e-9)

	long, err := panel.RollingSum(p, lag21, 252, 252)
	require.NoError(t, err)
	assert.InDelta(t, sumRange(d-272, d-21), long[p.FlatIndex(d, si)], 1e-9)
}

// TestLogMarketCapScores reproduces the size scenario: caps of e^1, e^2, e^3
// give the z-scores of (1, 2, 3).
func TestLogMarketCapScores(t *testing.T) {
	b := panel.NewBuilder()
	caps := map[string]float64{
		"AAA": math.E,
		"BBB": math.E * math.E,
		"CCC": math.E * math.E * math.E,
	}
	for sym, c := range caps {
		b.Set(sym, "2024-06-03", panel.ColMarketCap, c)
	}
	p := b.Build()

	scores, err := NewLogMarketCap(LogMarketCapConfig{}).Compute(p)
	require.NoError(t, err)

	want := map[string]float64{"AAA": -1.22474, "BBB": 0, "CCC": 1.22474}
	for sym, w := range want {
		got := scores[p.FlatIndex(0, p.SymbolIndex(sym))]
		assert.InDelta(t, w, got, 1e-5, "symbol %s", sym)
	}
}

func TestBookToPriceNullOnNonPositiveCap(t *testing.T) {
	b := panel.NewBuilder()
	b.Set("AAA", "2024-06-03", panel.ColBookValue, 10)
	b.Set("AAA", "2024-06-03", panel.ColMarketCap, -5)
	b.Set("BBB", "2024-06-03", panel.ColBookValue, 10)
	b.Set("BBB", "2024-06-03", panel.ColMarketCap, 100)
	b.Set("CCC", "2024-06-03", panel.ColBookValue, 30)
	b.Set("CCC", "2024-06-03", panel.ColMarketCap, 100)
	p := b.Build()

	scores, err := NewBookToPrice().Compute(p)
	require.NoError(t, err)
	assert.True(t, panel.IsNull(scores[p.FlatIndex(0, p.SymbolIndex("AAA"))]))
	assert.False(t, panel.IsNull(scores[p.FlatIndex(0, p.SymbolIndex("BBB"))]))
}

func TestMissingColumnIsTypedError(t *testing.T) {
	p := panel.NewBuilder().Build()
	_, err := NewBookToPrice().Compute(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "book_value")
}

// TestLeverageSignInverted checks that the leverage score correlates
// negatively with the raw debt/equity ratio across a date.
func TestLeverageSignInverted(t *testing.T) {
	b := panel.NewBuilder()
	ratios := []float64{0.1, 0.4, 0.9, 1.6, 2.5, 4.0}
	for i, r := range ratios {
		sym := fmt.Sprintf("S%02d", i)
		b.Set(sym, "2024-06-03", panel.ColTotalDebt, r*100)
		b.Set(sym, "2024-06-03", panel.ColEquity, 100)
	}
	p := b.Build()

	scores, err := NewLeverage().Compute(p)
	require.NoError(t, err)

	var raw, scored []float64
	for i, r := range ratios {
		sym := fmt.Sprintf("S%02d", i)
		raw = append(raw, r)
		scored = append(scored, scores[p.FlatIndex(0, p.SymbolIndex(sym))])
	}
	assert.Less(t, formulas.Correlation(scored, raw), 0.0)
}

// TestAllScoresStandardized runs the full default style set over a synthetic
// panel and checks the standardization invariant on every date with at least
// two non-null scores.
func TestAllScoresStandardized(t *testing.T) {
	nDates := 300
	nSyms := 8
	dates := tradingDates(nDates)

	b := panel.NewBuilder()
	for di, d := range dates {
		mkt := 0.0005 * math.Cos(float64(di)/7)
		for si := 0; si < nSyms; si++ {
			sym := fmt.Sprintf("S%02d", si)
			f := float64(si + 1)
			b.Set(sym, d, panel.ColReturn, 0.001*math.Sin(float64(di)*f/9)+mkt*f/4)
			b.Set(sym, d, panel.ColMarketReturn, mkt)
			b.Set(sym, d, panel.ColMarketCap, 1e9*f)
			b.Set(sym, d, panel.ColAdjustedClose, 50+f+float64(di)/100)
			b.Set(sym, d, panel.ColVolume, 1e6*f)
			b.Set(sym, d, panel.ColSharesOutstanding, 1e8)
			b.Set(sym, d, panel.ColBookValue, 4e8*f)
			b.Set(sym, d, panel.ColEarnings, 5e7*f*(1+float64(di)/1000))
			b.Set(sym, d, panel.ColSales, 2e8*f*(1+float64(di)/800))
			b.Set(sym, d, panel.ColNetIncome, 5e7*f)
			b.Set(sym, d, panel.ColEquity, 3e8*f)
			b.Set(sym, d, panel.ColTotalDebt, 1e8*f*f)
		}
	}
	p := b.Build()

	for _, f := range DefaultStyleSet() {
		scores, err := f.Compute(p)
		require.NoError(t, err, f.Name())

		for di := 0; di < p.NumDates(); di++ {
			var vals []float64
			for si := 0; si < p.NumSymbols(); si++ {
				if v := scores[p.FlatIndex(di, si)]; !panel.IsNull(v) {
					vals = append(vals, v)
				}
			}
			if len(vals) < 2 {
				continue
			}
			assert.InDelta(t, 0, formulas.Mean(vals), 1e-9, "%s mean on date %d", f.Name(), di)
			sd := formulas.PopStdDev(vals)
			if sd != 0 { // constant cross-section standardizes to all zeros
				assert.InDelta(t, 1, sd, 1e-9, "%s std on date %d", f.Name(), di)
			}
		}
	}
}
