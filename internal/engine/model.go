package engine

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"perth/internal/errs"
	"perth/internal/factors"
	"perth/internal/panel"
	"perth/internal/regression"
	"perth/internal/riskmodel"
	"perth/internal/sectors"
	"perth/internal/specific"
)

// CovarianceMethod selects the factor covariance estimator.
type CovarianceMethod string

const (
	CovLedoitWolf CovarianceMethod = "ledoit_wolf"
	CovEWMA       CovarianceMethod = "ewma"
	CovNeweyWest  CovarianceMethod = "newey_west"
)

// ModelConfig configures the risk-model pipeline.
type ModelConfig struct {
	Covariance        CovarianceMethod // default ledoit_wolf
	EWMADecay         float64          // default 0.95
	ShrinkageKappa    float64          // specific-risk shrinkage strength
	RegimeScaling     bool
	ResidualizeStyles bool
	WinsorizePct      float64 // style winsorization percentile
}

func (c *ModelConfig) defaults() {
	if c.Covariance == "" {
		c.Covariance = CovLedoitWolf
	}
	if c.EWMADecay == 0 {
		c.EWMADecay = 0.95
	}
	if c.WinsorizePct == 0 {
		c.WinsorizePct = factors.DefaultWinsorizePct
	}
}

// Model is a fitted risk model: factor returns, covariance, and specific
// risk over one panel.
type Model struct {
	Panel       *panel.Panel
	Encoder     *sectors.Encoder
	FactorNames []string // regression column order: sectors then styles
	StyleNames  []string
	Styles      map[string][]float64 // panel-aligned standardized scores
	Regression  *regression.Result
	Covariance  [][]float64
	Regime      *riskmodel.RegimeState
	Specific    map[string]specific.Estimate
}

// Builder fits risk models from panels.
type Builder struct {
	cfg ModelConfig
	log zerolog.Logger
}

func NewBuilder(cfg ModelConfig, log zerolog.Logger) *Builder {
	cfg.defaults()
	return &Builder{cfg: cfg, log: log.With().Str("component", "model_builder").Logger()}
}

// Fit runs the full pipeline: style scores, cross-sectional WLS, factor
// covariance with PD enforcement and optional regime scaling, and Bayesian
// specific risk grouped by sector.
func (b *Builder) Fit(p *panel.Panel, classification sectors.Classification) (*Model, error) {
	styleNames, styles, err := b.computeStyles(p)
	if err != nil {
		return nil, err
	}
	if len(styleNames) == 0 {
		return nil, &errs.MissingInput{Column: panel.ColReturn}
	}

	var enc *sectors.Encoder
	if len(classification) > 0 {
		enc = sectors.NewEncoder(classification)
	}

	est := regression.New(regression.Config{ResidualizeStyles: b.cfg.ResidualizeStyles}, b.log)
	reg, err := est.Fit(p, styleNames, styles, enc)
	if err != nil {
		return nil, fmt.Errorf("cross-sectional regression failed: %w", err)
	}

	cov, regime, err := b.estimateCovariance(p, reg)
	if err != nil {
		return nil, err
	}

	spec, err := b.estimateSpecific(p, reg, classification)
	if err != nil {
		return nil, err
	}

	return &Model{
		Panel:       p,
		Encoder:     enc,
		FactorNames: reg.FactorNames,
		StyleNames:  styleNames,
		Styles:      styles,
		Regression:  reg,
		Covariance:  cov,
		Regime:      regime,
		Specific:    spec,
	}, nil
}

// computeStyles evaluates the default style set, skipping factors whose
// input columns the panel lacks.
func (b *Builder) computeStyles(p *panel.Panel) ([]string, map[string][]float64, error) {
	var names []string
	styles := make(map[string][]float64)
	for _, f := range factors.DefaultStyleSet() {
		scores, err := f.Compute(p)
		if err != nil {
			var missing *errs.MissingInput
			if errors.As(err, &missing) {
				b.log.Warn().Str("factor", f.Name()).Str("column", missing.Column).
					Msg("skipping factor, input column missing")
				continue
			}
			return nil, nil, fmt.Errorf("factor %s failed: %w", f.Name(), err)
		}
		names = append(names, f.Name())
		styles[f.Name()] = scores
	}
	return names, styles, nil
}

func (b *Builder) estimateCovariance(p *panel.Panel, reg *regression.Result) ([][]float64, *riskmodel.RegimeState, error) {
	matrix, _ := reg.FactorReturnMatrix()
	if len(matrix) < 2 {
		return nil, nil, &errs.InsufficientData{Required: 2, Actual: len(matrix)}
	}

	var cov [][]float64
	var err error
	switch b.cfg.Covariance {
	case CovEWMA:
		cov, err = riskmodel.EWMACovariance(matrix, riskmodel.EWMAConfig{Decay: b.cfg.EWMADecay})
	case CovNeweyWest:
		cov, err = riskmodel.NeweyWest(matrix, riskmodel.NeweyWestConfig{})
	default:
		var res *riskmodel.LedoitWolfResult
		res, err = riskmodel.LedoitWolf(matrix, riskmodel.TargetScaledIdentity)
		if res != nil {
			cov = res.Covariance
			b.log.Debug().Float64("intensity", res.Intensity).Msg("shrunk factor covariance")
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("covariance estimation failed: %w", err)
	}

	cov, err = riskmodel.EnforcePositiveDefinite(cov, riskmodel.EnforceOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("positive-definite enforcement failed: %w", err)
	}

	var regime *riskmodel.RegimeState
	if b.cfg.RegimeScaling {
		series := marketReturnSeries(p)
		scaled, state, err := riskmodel.ScaleCovariance(cov, series, riskmodel.RegimeConfig{})
		if err != nil {
			var insufficient *errs.InsufficientData
			if errors.As(err, &insufficient) {
				b.log.Warn().Err(err).Msg("skipping regime scaling")
			} else {
				return nil, nil, err
			}
		} else {
			cov = scaled
			regime = state
		}
	}

	return cov, regime, nil
}

func (b *Builder) estimateSpecific(p *panel.Panel, reg *regression.Result, classification sectors.Classification) (map[string]specific.Estimate, error) {
	est, err := specific.NewEstimator(specific.Config{Kappa: b.cfg.ShrinkageKappa}, b.log)
	if err != nil {
		return nil, err
	}

	residuals := make(map[string][]float64, p.NumSymbols())
	for si, symbol := range p.Symbols() {
		series := make([]float64, p.NumDates())
		for di := 0; di < p.NumDates(); di++ {
			series[di] = reg.Residuals[p.FlatIndex(di, si)]
		}
		residuals[symbol] = series
	}

	groups := make(map[string]string, len(classification))
	for symbol, sector := range classification {
		groups[symbol] = sector
	}
	return est.ShrinkToGroups(residuals, groups)
}

// marketReturnSeries extracts the benchmark return series, one value per
// date with at least one non-null cell.
func marketReturnSeries(p *panel.Panel) []float64 {
	col, err := p.Column(panel.ColMarketReturn)
	if err != nil {
		return nil
	}
	out := make([]float64, 0, p.NumDates())
	for di := 0; di < p.NumDates(); di++ {
		for si := 0; si < p.NumSymbols(); si++ {
			v := col[p.FlatIndex(di, si)]
			if !panel.IsNull(v) {
				out = append(out, v)
				break
			}
		}
	}
	return out
}

// Exposures returns a symbol's exposure row on a date, aligned with
// FactorNames: the sector one-hot block (or intercept) followed by style
// scores. The boolean is false when any piece is missing.
func (m *Model) Exposures(date, symbol string) ([]float64, bool) {
	di := m.Panel.DateIndex(date)
	si := m.Panel.SymbolIndex(symbol)
	if di < 0 || si < 0 {
		return nil, false
	}

	var row []float64
	if m.Encoder != nil {
		sector, ok := m.Encoder.Encode(symbol)
		if !ok {
			return nil, false
		}
		row = append(row, sector...)
	} else {
		row = append(row, 1) // intercept
	}

	idx := m.Panel.FlatIndex(di, si)
	for _, name := range m.StyleNames {
		v := m.Styles[name][idx]
		if panel.IsNull(v) {
			return nil, false
		}
		row = append(row, v)
	}
	return row, true
}

// LatestExposures walks dates backward until the symbol has a complete
// exposure row, returning the row and its date.
func (m *Model) LatestExposures(symbol string) ([]float64, string, bool) {
	dates := m.Panel.Dates()
	for i := len(dates) - 1; i >= 0; i-- {
		if row, ok := m.Exposures(dates[i], symbol); ok {
			return row, dates[i], true
		}
	}
	return nil, "", false
}

// CumulativeFactorReturns sums the estimated factor returns over the last
// n fitted dates (all when n <= 0).
func (m *Model) CumulativeFactorReturns(n int) []float64 {
	matrix, _ := m.Regression.FactorReturnMatrix()
	if n <= 0 || n > len(matrix) {
		n = len(matrix)
	}
	out := make([]float64, len(m.FactorNames))
	for _, row := range matrix[len(matrix)-n:] {
		for j, v := range row {
			out[j] += v
		}
	}
	return out
}

// CumulativeReturn is a symbol's compounded return over the last n panel
// dates (all when n <= 0).
func (m *Model) CumulativeReturn(symbol string, n int) (float64, bool) {
	si := m.Panel.SymbolIndex(symbol)
	if si < 0 {
		return 0, false
	}
	col, err := m.Panel.Column(panel.ColReturn)
	if err != nil {
		return 0, false
	}
	start := 0
	if n > 0 && n < m.Panel.NumDates() {
		start = m.Panel.NumDates() - n
	}
	total := 1.0
	seen := false
	for di := start; di < m.Panel.NumDates(); di++ {
		v := col[m.Panel.FlatIndex(di, si)]
		if panel.IsNull(v) {
			continue
		}
		total *= 1 + v
		seen = true
	}
	if !seen {
		return 0, false
	}
	return total - 1, true
}
