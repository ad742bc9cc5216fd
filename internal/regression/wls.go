// Package regression implements the per-date cross-sectional weighted least
// squares estimator that recovers factor returns and residuals from asset
// returns, sector indicators and style exposures.
package regression

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"perth/internal/errs"
	"perth/internal/panel"
	"perth/internal/sectors"
	"perth/pkg/formulas"
)

// Config controls the per-date regression.
type Config struct {
	// ResidualizeStyles regresses each style column on the sector block
	// (same weights) and replaces it by its residual before the joint fit.
	ResidualizeStyles bool
	// WinsorizeReturns clips the asset-return vector at the symmetric
	// percentile below before fitting.
	WinsorizeReturns bool
	// ReturnWinsorPct is the symmetric return clip percentile (default 0.05).
	ReturnWinsorPct float64
	// Ridge is the fallback regularizer added to the normal-matrix diagonal
	// when both Cholesky and QR fail (default 1e-8).
	Ridge float64
}

func (c *Config) defaults() {
	if c.ReturnWinsorPct == 0 {
		c.ReturnWinsorPct = 0.05
	}
	if c.Ridge == 0 {
		c.Ridge = 1e-8
	}
}

// Estimator runs the cross-sectional WLS, one date at a time.
type Estimator struct {
	cfg Config
	log zerolog.Logger
}

// New creates an estimator.
func New(cfg Config, log zerolog.Logger) *Estimator {
	cfg.defaults()
	return &Estimator{
		cfg: cfg,
		log: log.With().Str("component", "wls").Logger(),
	}
}

// Result holds the time-stacked regression outputs.
type Result struct {
	// Dates are the panel dates, ascending.
	Dates []string
	// FactorNames orders the K coefficients: sector indicators first (or a
	// lone intercept when no sectors are supplied), then style factors.
	FactorNames []string
	// FactorReturns is T x K; a nil row marks a skipped date.
	FactorReturns [][]float64
	// Residuals is aligned to the panel's (date, symbol) indexing; cells for
	// securities that did not participate in that date's fit are null.
	Residuals []float64
	// Skipped counts dates with too few participants.
	Skipped int
}

// FactorReturnMatrix stacks the non-nil rows into a dense T' x K matrix,
// returning the dates kept.
func (r *Result) FactorReturnMatrix() ([][]float64, []string) {
	rows := make([][]float64, 0, len(r.FactorReturns))
	dates := make([]string, 0, len(r.FactorReturns))
	for i, row := range r.FactorReturns {
		if row != nil {
			rows = append(rows, row)
			dates = append(dates, r.Dates[i])
		}
	}
	return rows, dates
}

// observation is one security's row in a single date's design matrix.
type observation struct {
	symIdx int
	ret    float64
	weight float64
	sector []float64
	style  []float64
}

// Fit runs the regression for every date of the panel. styles maps factor
// names to panel-aligned standardized score columns; styleNames fixes the
// column order. Securities missing a return, a positive market cap, a sector
// or any style score on a date are excluded from that date's fit.
//
// Sectors enter as a one-hot block with no explicit intercept (they span the
// constant). A nil or empty encoder replaces the block with an intercept
// column so the regression stays full rank.
func (e *Estimator) Fit(p *panel.Panel, styleNames []string, styles map[string][]float64, enc *sectors.Encoder) (*Result, error) {
	returns, err := p.Column(panel.ColReturn)
	if err != nil {
		return nil, err
	}
	caps, err := p.Column(panel.ColMarketCap)
	if err != nil {
		return nil, err
	}
	styleCols := make([][]float64, len(styleNames))
	for i, name := range styleNames {
		col, ok := styles[name]
		if !ok {
			return nil, &errs.MissingInput{Column: name}
		}
		styleCols[i] = col
	}

	intercept := enc == nil || enc.NumSectors() == 0
	var sectorNames []string
	if intercept {
		sectorNames = []string{"intercept"}
	} else {
		for _, sec := range enc.Sectors() {
			sectorNames = append(sectorNames, "sector_"+sec)
		}
	}
	s := len(sectorNames)
	k := s + len(styleNames)

	res := &Result{
		Dates:         p.Dates(),
		FactorNames:   append(sectorNames, styleNames...),
		FactorReturns: make([][]float64, p.NumDates()),
		Residuals:     p.NewAligned(),
	}

	nSym := p.NumSymbols()
	symbols := p.Symbols()
	for di := 0; di < p.NumDates(); di++ {
		obs := e.assemble(di, nSym, symbols, returns, caps, styleCols, enc, intercept)
		if len(obs) < k+1 {
			res.Skipped++
			if len(obs) > 0 {
				e.log.Debug().
					Str("date", p.Dates()[di]).
					Int("participants", len(obs)).
					Int("factors", k).
					Msg("Skipping date with too few participants")
			}
			continue
		}

		if e.cfg.ResidualizeStyles && !intercept {
			residualizeStyles(obs)
		}

		r := make([]float64, len(obs))
		w := make([]float64, len(obs))
		for i, o := range obs {
			r[i] = o.ret
			w[i] = o.weight
		}
		if e.cfg.WinsorizeReturns {
			winsorizeVector(r, e.cfg.ReturnWinsorPct)
		}

		x := mat.NewDense(len(obs), k, nil)
		for i, o := range obs {
			for j := 0; j < s; j++ {
				x.Set(i, j, o.sector[j])
			}
			for j, v := range o.style {
				x.Set(i, s+j, v)
			}
		}

		beta, err := e.solve(x, r, w)
		if err != nil {
			return nil, fmt.Errorf("regression failed on %s: %w", p.Dates()[di], err)
		}
		res.FactorReturns[di] = beta

		for i, o := range obs {
			fitted := 0.0
			for j := 0; j < k; j++ {
				fitted += x.At(i, j) * beta[j]
			}
			res.Residuals[di*nSym+o.symIdx] = r[i] - fitted
		}
	}

	e.log.Info().
		Int("dates", p.NumDates()).
		Int("skipped", res.Skipped).
		Int("factors", k).
		Msg("Fitted cross-sectional regressions")
	return res, nil
}

func (e *Estimator) assemble(di, nSym int, symbols []string, returns, caps []float64, styleCols [][]float64, enc *sectors.Encoder, intercept bool) []observation {
	var obs []observation
	for si := 0; si < nSym; si++ {
		flat := di*nSym + si
		ret := returns[flat]
		mc := caps[flat]
		if panel.IsNull(ret) || panel.IsNull(mc) || mc <= 0 {
			continue
		}

		var oneHot []float64
		if intercept {
			oneHot = []float64{1}
		} else {
			var ok bool
			oneHot, ok = enc.Encode(symbols[si])
			if !ok {
				continue
			}
		}

		style := make([]float64, len(styleCols))
		complete := true
		for ci, col := range styleCols {
			v := col[flat]
			if panel.IsNull(v) {
				complete = false
				break
			}
			style[ci] = v
		}
		if !complete {
			continue
		}

		obs = append(obs, observation{
			symIdx: si,
			ret:    ret,
			weight: math.Sqrt(mc),
			sector: oneHot,
			style:  style,
		})
	}
	return obs
}

// solve computes beta from the weighted normal equations (X'WX) b = X'Wr,
// preferring Cholesky, then QR on the weighted system, then ridge.
func (e *Estimator) solve(x *mat.Dense, r, w []float64) ([]float64, error) {
	n, k := x.Dims()

	// Normal matrix X'WX and right-hand side X'Wr.
	normal := mat.NewSymDense(k, nil)
	rhs := make([]float64, k)
	for a := 0; a < k; a++ {
		for b := a; b < k; b++ {
			sum := 0.0
			for i := 0; i < n; i++ {
				sum += x.At(i, a) * w[i] * x.At(i, b)
			}
			normal.SetSym(a, b, sum)
		}
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += x.At(i, a) * w[i] * r[i]
		}
		rhs[a] = sum
	}

	var chol mat.Cholesky
	if chol.Factorize(normal) && chol.Cond() < 1e12 {
		beta := mat.NewVecDense(k, nil)
		if err := chol.SolveVecTo(beta, mat.NewVecDense(k, rhs)); err == nil {
			return beta.RawVector().Data, nil
		}
	}

	// Ill-conditioned: solve the weighted least-squares system by QR on
	// sqrt(W) X.
	wx := mat.NewDense(n, k, nil)
	wr := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		sw := math.Sqrt(w[i])
		for j := 0; j < k; j++ {
			wx.Set(i, j, sw*x.At(i, j))
		}
		wr.SetVec(i, sw*r[i])
	}
	var qr mat.QR
	qr.Factorize(wx)
	beta := mat.NewVecDense(k, nil)
	if err := qr.SolveVecTo(beta, false, wr); err == nil {
		return beta.RawVector().Data, nil
	}

	// Rank deficient even for QR: ridge with a tiny regularizer.
	e.log.Warn().Float64("ridge", e.cfg.Ridge).Msg("Rank-deficient normal matrix, falling back to ridge")
	for a := 0; a < k; a++ {
		normal.SetSym(a, a, normal.At(a, a)+e.cfg.Ridge)
	}
	if !chol.Factorize(normal) {
		return nil, &errs.NumericalFailure{Msg: "ridge-regularized normal matrix is not positive definite"}
	}
	out := mat.NewVecDense(k, nil)
	if err := chol.SolveVecTo(out, mat.NewVecDense(k, rhs)); err != nil {
		return nil, &errs.NumericalFailure{Msg: "ridge solve failed: " + err.Error()}
	}
	return out.RawVector().Data, nil
}

// residualizeStyles replaces each style column by its residual from a
// weighted regression on the sector indicators. With a one-hot block that
// regression reduces to subtracting the per-sector weighted mean.
func residualizeStyles(obs []observation) {
	if len(obs) == 0 {
		return
	}
	nStyles := len(obs[0].style)
	nSectors := len(obs[0].sector)

	for sc := 0; sc < nStyles; sc++ {
		num := make([]float64, nSectors)
		den := make([]float64, nSectors)
		for _, o := range obs {
			for j := 0; j < nSectors; j++ {
				if o.sector[j] == 1 {
					num[j] += o.weight * o.style[sc]
					den[j] += o.weight
					break
				}
			}
		}
		for _, o := range obs {
			for j := 0; j < nSectors; j++ {
				if o.sector[j] == 1 && den[j] > 0 {
					o.style[sc] -= num[j] / den[j]
					break
				}
			}
		}
	}
}

// winsorizeVector clips a vector in place at the symmetric percentile.
func winsorizeVector(v []float64, pct float64) {
	if len(v) == 0 || pct <= 0 {
		return
	}
	lo := formulas.Quantile(v, pct)
	hi := formulas.Quantile(v, 1-pct)
	for i := range v {
		if v[i] < lo {
			v[i] = lo
		} else if v[i] > hi {
			v[i] = hi
		}
	}
}
