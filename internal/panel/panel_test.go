package panel

import (
	"math"
	"testing"
)

// buildTestPanel builds a small panel with three symbols over the given
// dates, applying fn(symbolIdx, dateIdx) for the "x" column.
func buildTestPanel(dates []string, fn func(si, di int) float64) *Panel {
	symbols := []string{"AAA", "BBB", "CCC"}
	b := NewBuilder()
	for di, d := range dates {
		for si, s := range symbols {
			v := fn(si, di)
			if !math.IsNaN(v) {
				b.Set(s, d, "x", v)
			} else {
				// Register the key so the panel has the full grid
				b.Set(s, d, "return", 0)
			}
		}
	}
	return b.Build()
}

func TestBuilderKeysAreSortedAndUnique(t *testing.T) {
	b := NewBuilder()
	b.Set("MSFT", "2024-01-03", "x", 2)
	b.Set("AAPL", "2024-01-02", "x", 1)
	b.Set("AAPL", "2024-01-02", "x", 5) // overwrite
	p := b.Build()

	if got := p.Symbols(); got[0] != "AAPL" || got[1] != "MSFT" {
		t.Fatalf("symbols not sorted: %v", got)
	}
	if got := p.Dates(); got[0] != "2024-01-02" || got[1] != "2024-01-03" {
		t.Fatalf("dates not sorted: %v", got)
	}
	if v := p.At("x", "2024-01-02", "AAPL"); v != 5 {
		t.Fatalf("overwrite not applied: got %v", v)
	}
	if v := p.At("x", "2024-01-03", "AAPL"); !math.IsNaN(v) {
		t.Fatalf("unset cell should be NaN, got %v", v)
	}
}

func TestZScoreByDate(t *testing.T) {
	p := buildTestPanel([]string{"2024-01-02"}, func(si, di int) float64 {
		return float64(si + 1) // 1, 2, 3
	})
	col, err := p.Column("x")
	if err != nil {
		t.Fatal(err)
	}
	z := ZScoreByDate(p, col)

	// z-scores of (1,2,3) with population std sqrt(2/3).
	want := []float64{-1.224744871, 0, 1.224744871}
	for si, w := range want {
		got := z[p.FlatIndex(0, si)]
		if math.Abs(got-w) > 1e-6 {
			t.Errorf("z[%d] = %v, want %v", si, got, w)
		}
	}
}

func TestZScoreMeanZeroStdOne(t *testing.T) {
	dates := []string{"2024-01-02", "2024-01-03", "2024-01-04"}
	p := buildTestPanel(dates, func(si, di int) float64 {
		return float64(si*7+di*3) + 0.25
	})
	col, _ := p.Column("x")
	z := ZScoreByDate(p, col)

	for di := range dates {
		var vals []float64
		for si := 0; si < p.NumSymbols(); si++ {
			if v := z[p.FlatIndex(di, si)]; !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
		var mu float64
		for _, v := range vals {
			mu += v
		}
		mu /= float64(len(vals))
		var m2 float64
		for _, v := range vals {
			m2 += (v - mu) * (v - mu)
		}
		sd := math.Sqrt(m2 / float64(len(vals)))
		if math.Abs(mu) > 1e-9 {
			t.Errorf("date %d: cross-sectional mean %v, want 0", di, mu)
		}
		if math.Abs(sd-1) > 1e-9 {
			t.Errorf("date %d: cross-sectional population std %v, want 1", di, sd)
		}
	}
}

func TestZScoreZeroStdAndNulls(t *testing.T) {
	p := buildTestPanel([]string{"2024-01-02"}, func(si, di int) float64 {
		if si == 2 {
			return math.NaN()
		}
		return 4.0 // constant cross-section
	})
	col, _ := p.Column("x")
	z := ZScoreByDate(p, col)

	if v := z[p.FlatIndex(0, 0)]; v != 0 {
		t.Errorf("zero-std score should be 0, got %v", v)
	}
	if v := z[p.FlatIndex(0, 2)]; !math.IsNaN(v) {
		t.Errorf("null input should stay null, got %v", v)
	}
}

func TestWinsorizeIdempotent(t *testing.T) {
	// One date, 100 securities with an outlier at each end.
	b := NewBuilder()
	for i := 0; i < 100; i++ {
		v := float64(i)
		if i == 0 {
			v = -1000
		}
		if i == 99 {
			v = 1000
		}
		b.Set(symName(i), "2024-01-02", "x", v)
	}
	p := b.Build()
	col, _ := p.Column("x")

	once, err := WinsorizeByDate(p, col, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := WinsorizeByDate(p, once, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	for i := range once {
		if math.IsNaN(once[i]) && math.IsNaN(twice[i]) {
			continue
		}
		if math.Abs(once[i]-twice[i]) > 1e-12 {
			t.Fatalf("winsorize not idempotent at %d: %v vs %v", i, once[i], twice[i])
		}
	}

	// The raw outliers must actually be clipped.
	for i := range once {
		if once[i] == -1000 || once[i] == 1000 {
			t.Fatalf("outlier survived winsorization at %d", i)
		}
	}
}

func symName(i int) string {
	return string([]byte{'A' + byte(i/26), 'A' + byte(i%26), 'X'})
}

func TestRollingSumAndMinPeriods(t *testing.T) {
	dates := []string{"d1", "d2", "d3", "d4", "d5"}
	p := buildTestPanel(dates, func(si, di int) float64 {
		if si != 0 {
			return math.NaN()
		}
		return float64(di + 1) // 1..5
	})
	col, _ := p.Column("x")

	sum, err := RollingSum(p, col, 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	if v := sum[p.FlatIndex(1, 0)]; !math.IsNaN(v) {
		t.Errorf("below min periods should be null, got %v", v)
	}
	if v := sum[p.FlatIndex(2, 0)]; v != 6 {
		t.Errorf("rolling sum at d3 = %v, want 6", v)
	}
	if v := sum[p.FlatIndex(4, 0)]; v != 12 {
		t.Errorf("rolling sum at d5 = %v, want 12", v)
	}
}

func TestRollingStdRepeatedValues(t *testing.T) {
	dates := make([]string, 50)
	for i := range dates {
		dates[i] = time2date(i)
	}
	p := buildTestPanel(dates, func(si, di int) float64 {
		return 1e8 + 0.5 // large identical values stress cancellation
	})
	col, _ := p.Column("x")

	std, err := RollingStd(p, col, 10, 5)
	if err != nil {
		t.Fatal(err)
	}
	if v := std[p.FlatIndex(49, 0)]; v != 0 {
		t.Errorf("std of identical values = %v, want exactly 0", v)
	}
}

func time2date(i int) string {
	return "2024-02-" + string([]byte{'0' + byte((i+1)/10), '0' + byte((i+1)%10)})
}

func TestShift(t *testing.T) {
	dates := []string{"d1", "d2", "d3"}
	p := buildTestPanel(dates, func(si, di int) float64 {
		return float64(di)
	})
	col, _ := p.Column("x")

	shifted, err := Shift(p, col, 1)
	if err != nil {
		t.Fatal(err)
	}
	if v := shifted[p.FlatIndex(0, 0)]; !math.IsNaN(v) {
		t.Errorf("first shifted cell should be null, got %v", v)
	}
	if v := shifted[p.FlatIndex(2, 1)]; v != 1 {
		t.Errorf("shifted value = %v, want 1", v)
	}
}

func TestRollingBetaRecoversSlope(t *testing.T) {
	// r = 2*m exactly: beta must be 2 wherever defined.
	dates := make([]string, 30)
	for i := range dates {
		dates[i] = time2date(i)
	}
	b := NewBuilder()
	for di, d := range dates {
		m := math.Sin(float64(di)) * 0.01
		b.Set("AAA", d, "return", 2*m)
		b.Set("AAA", d, "market_return", m)
	}
	p := b.Build()
	rets, _ := p.Column("return")
	mkt, _ := p.Column("market_return")

	beta, err := RollingBeta(p, rets, mkt, 20, 10)
	if err != nil {
		t.Fatal(err)
	}
	v := beta[p.FlatIndex(29, 0)]
	if math.Abs(v-2) > 1e-10 {
		t.Errorf("beta = %v, want 2", v)
	}

	res := BetaResiduals(p, rets, mkt, beta)
	if r := res[p.FlatIndex(29, 0)]; math.Abs(r) > 1e-12 {
		t.Errorf("residual = %v, want 0", r)
	}
}
