package panel

import (
	"math"
	"sort"

	"perth/pkg/formulas"

	"perth/internal/errs"
)

// WinsorizeByDate clips a column to its per-date [pct, 1-pct] range. The
// bounds are order statistics of the date's non-null values (the k-th values
// from each end, k = floor(pct*n)), so the bounds are attained data points
// and re-winsorizing an already-clipped column is a no-op. Nulls pass
// through unchanged. pct must lie in [0, 0.5).
func WinsorizeByDate(p *Panel, col []float64, pct float64) ([]float64, error) {
	if pct < 0 || pct >= 0.5 {
		return nil, &errs.InvalidParameter{Msg: "winsorize percentile must be in [0, 0.5)"}
	}
	out := make([]float64, len(col))
	copy(out, col)

	nSym := p.NumSymbols()
	scratch := make([]float64, 0, nSym)
	for di := 0; di < p.NumDates(); di++ {
		scratch = scratch[:0]
		base := di * nSym
		for si := 0; si < nSym; si++ {
			if v := col[base+si]; !math.IsNaN(v) {
				scratch = append(scratch, v)
			}
		}
		if len(scratch) == 0 {
			continue
		}
		sort.Float64s(scratch)
		k := int(pct*float64(len(scratch)) + 1e-9)
		lo := scratch[k]
		hi := scratch[len(scratch)-1-k]
		for si := 0; si < nSym; si++ {
			v := out[base+si]
			if math.IsNaN(v) {
				continue
			}
			if v < lo {
				out[base+si] = lo
			} else if v > hi {
				out[base+si] = hi
			}
		}
	}
	return out, nil
}

// ZScoreByDate standardizes a column cross-sectionally: for each date the
// non-null values are mapped to (v - mean) / popStd, with the population
// (divisor n) standard deviation so a cross-section like (1,2,3) scores to
// exactly (-1.2247, 0, 1.2247). When the std is zero the score is 0. Nulls
// propagate as nulls.
func ZScoreByDate(p *Panel, col []float64) []float64 {
	out := p.NewAligned()

	nSym := p.NumSymbols()
	scratch := make([]float64, 0, nSym)
	for di := 0; di < p.NumDates(); di++ {
		scratch = scratch[:0]
		base := di * nSym
		for si := 0; si < nSym; si++ {
			if v := col[base+si]; !math.IsNaN(v) {
				scratch = append(scratch, v)
			}
		}
		if len(scratch) == 0 {
			continue
		}

		mu := formulas.Mean(scratch)
		sd := formulas.PopStdDev(scratch)
		for si := 0; si < nSym; si++ {
			v := col[base+si]
			if math.IsNaN(v) {
				continue
			}
			if sd == 0 || math.IsNaN(sd) {
				out[base+si] = 0
			} else {
				out[base+si] = (v - mu) / sd
			}
		}
	}
	return out
}
