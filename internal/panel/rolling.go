package panel

import (
	"math"

	"perth/internal/errs"
)

// RollingSum computes the per-symbol rolling sum of a column over a fixed
// window of dates, requiring at least minPeriods non-null observations in
// the window. Cells below the requirement are null.
func RollingSum(p *Panel, col []float64, window, minPeriods int) ([]float64, error) {
	return rollingApply(p, col, window, minPeriods, func(vals []float64) float64 {
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		return sum
	})
}

// RollingMean computes the per-symbol rolling mean of a column.
func RollingMean(p *Panel, col []float64, window, minPeriods int) ([]float64, error) {
	return rollingApply(p, col, window, minPeriods, func(vals []float64) float64 {
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		return sum / float64(len(vals))
	})
}

// RollingStd computes the per-symbol rolling sample standard deviation
// (n-1 divisor) of a column. The two-pass mean-then-deviations form keeps the
// result stable when the window holds near-identical values.
func RollingStd(p *Panel, col []float64, window, minPeriods int) ([]float64, error) {
	if minPeriods < 2 {
		minPeriods = 2
	}
	return rollingApply(p, col, window, minPeriods, func(vals []float64) float64 {
		mu := 0.0
		for _, v := range vals {
			mu += v
		}
		mu /= float64(len(vals))
		m2 := 0.0
		for _, v := range vals {
			d := v - mu
			m2 += d * d
		}
		return math.Sqrt(m2 / float64(len(vals)-1))
	})
}

func rollingApply(p *Panel, col []float64, window, minPeriods int, fn func([]float64) float64) ([]float64, error) {
	if window < 1 {
		return nil, &errs.InvalidParameter{Msg: "rolling window must be >= 1"}
	}
	if minPeriods < 1 {
		minPeriods = 1
	}
	if minPeriods > window {
		return nil, &errs.InvalidParameter{Msg: "rolling min periods cannot exceed the window"}
	}

	out := p.NewAligned()
	nSym := p.NumSymbols()
	nDates := p.NumDates()
	vals := make([]float64, 0, window)

	for si := 0; si < nSym; si++ {
		for di := 0; di < nDates; di++ {
			start := di - window + 1
			if start < 0 {
				start = 0
			}
			vals = vals[:0]
			for k := start; k <= di; k++ {
				if v := col[k*nSym+si]; !math.IsNaN(v) {
					vals = append(vals, v)
				}
			}
			if len(vals) >= minPeriods {
				out[di*nSym+si] = fn(vals)
			}
		}
	}
	return out, nil
}

// Shift lags a column by k periods per symbol, dates ascending. The first k
// dates of each symbol become null. k must be >= 0.
func Shift(p *Panel, col []float64, k int) ([]float64, error) {
	if k < 0 {
		return nil, &errs.InvalidParameter{Msg: "shift periods must be >= 0"}
	}
	out := p.NewAligned()
	if k == 0 {
		copy(out, col)
		return out, nil
	}

	nSym := p.NumSymbols()
	for si := 0; si < nSym; si++ {
		for di := k; di < p.NumDates(); di++ {
			out[di*nSym+si] = col[(di-k)*nSym+si]
		}
	}
	return out, nil
}

// RollingBeta computes the per-symbol rolling regression slope of a return
// column against a market-return column over a fixed window:
// beta = mean((r-mu_r)(m-mu_m)) / mean((m-mu_m)^2). Dates where fewer than
// minPeriods paired observations exist, or where the market variance is
// zero, are null.
func RollingBeta(p *Panel, returns, market []float64, window, minPeriods int) ([]float64, error) {
	if window < 2 {
		return nil, &errs.InvalidParameter{Msg: "beta window must be >= 2"}
	}
	if minPeriods < 2 {
		minPeriods = 2
	}

	out := p.NewAligned()
	nSym := p.NumSymbols()
	nDates := p.NumDates()
	rs := make([]float64, 0, window)
	ms := make([]float64, 0, window)

	for si := 0; si < nSym; si++ {
		for di := 0; di < nDates; di++ {
			start := di - window + 1
			if start < 0 {
				start = 0
			}
			rs, ms = rs[:0], ms[:0]
			for k := start; k <= di; k++ {
				r := returns[k*nSym+si]
				m := market[k*nSym+si]
				if math.IsNaN(r) || math.IsNaN(m) {
					continue
				}
				rs = append(rs, r)
				ms = append(ms, m)
			}
			if len(rs) < minPeriods {
				continue
			}

			var muR, muM float64
			for k := range rs {
				muR += rs[k]
				muM += ms[k]
			}
			n := float64(len(rs))
			muR /= n
			muM /= n

			var cov, varM float64
			for k := range rs {
				dm := ms[k] - muM
				cov += (rs[k] - muR) * dm
				varM += dm * dm
			}
			if varM == 0 {
				continue
			}
			out[di*nSym+si] = cov / varM
		}
	}
	return out, nil
}

// BetaResiduals computes eps_t = r_t - beta_t*m_t given an aligned rolling
// beta column. Null wherever any of the three inputs is null.
func BetaResiduals(p *Panel, returns, market, beta []float64) []float64 {
	out := p.NewAligned()
	for i := range out {
		r, m, b := returns[i], market[i], beta[i]
		if math.IsNaN(r) || math.IsNaN(m) || math.IsNaN(b) {
			continue
		}
		out[i] = r - b*m
	}
	return out
}
