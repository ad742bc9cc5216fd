// Package specific estimates per-security idiosyncratic volatility from
// regression residuals, with Bayesian shrinkage toward sector priors.
package specific

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"perth/internal/errs"
	"perth/internal/panel"
	"perth/pkg/formulas"
)

// Method selects the point estimator for a security's residual variance.
type Method string

const (
	MethodHistorical Method = "historical"
	MethodEWMA       Method = "ewma"
)

// Config configures the specific-risk estimators.
type Config struct {
	// Method is the point estimator (default historical).
	Method Method
	// Decay is the EWMA decay lambda for MethodEWMA (default 0.95).
	Decay float64
	// MinObservations below which a security falls back to its prior
	// (default 20).
	MinObservations int
	// Annualization multiplies the per-period volatility (default sqrt(252)).
	Annualization float64
	// Kappa is the Bayesian shrinkage strength: w = n/(n+kappa)
	// (default 60).
	Kappa float64
	// DefaultPrior is the annualized vol used when a group has no usable
	// members (default 0.30).
	DefaultPrior float64
}

func (c *Config) defaults() error {
	if c.Method == "" {
		c.Method = MethodHistorical
	}
	if c.Method != MethodHistorical && c.Method != MethodEWMA {
		return &errs.InvalidParameter{Msg: "unknown specific-risk method " + string(c.Method)}
	}
	if c.Decay == 0 {
		c.Decay = 0.95
	}
	if c.Decay <= 0 || c.Decay >= 1 {
		return &errs.InvalidParameter{Msg: "EWMA decay must be in (0,1)"}
	}
	if c.MinObservations == 0 {
		c.MinObservations = 20
	}
	if c.Annualization == 0 {
		c.Annualization = math.Sqrt(252)
	}
	if c.Kappa == 0 {
		c.Kappa = 60
	}
	if c.Kappa < 0 {
		return &errs.InvalidParameter{Msg: "shrinkage strength must be nonnegative"}
	}
	if c.DefaultPrior == 0 {
		c.DefaultPrior = 0.30
	}
	return nil
}

// Estimate is the shrinkage output for one security.
type Estimate struct {
	Symbol       string
	Group        string
	Observations int
	Individual   float64 // annualized point estimate, 0 when unavailable
	Prior        float64 // annualized group or external prior
	Weight       float64 // n / (n + kappa), 0 when the individual failed
	Volatility   float64 // w*individual + (1-w)*prior
}

// Estimator computes specific risk from residual series.
type Estimator struct {
	cfg Config
	log zerolog.Logger
}

func NewEstimator(cfg Config, log zerolog.Logger) (*Estimator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	return &Estimator{
		cfg: cfg,
		log: log.With().Str("component", "specific_risk").Logger(),
	}, nil
}

// HistoricalVolatility is the annualized sample standard deviation of the
// non-null residuals, divisor n-1.
func (e *Estimator) HistoricalVolatility(residuals []float64) (float64, error) {
	obs := dropNull(residuals)
	if len(obs) < 2 {
		return 0, &errs.InsufficientData{Required: 2, Actual: len(obs)}
	}
	return formulas.StdDev(obs) * e.cfg.Annualization, nil
}

// EWMAVolatility runs v_0 = r_0^2, v_t = lambda*v_{t-1} + (1-lambda)*r_t^2
// over the non-null residuals in date order, returning sqrt(v) annualized.
func (e *Estimator) EWMAVolatility(residuals []float64) (float64, error) {
	obs := dropNull(residuals)
	if len(obs) < 2 {
		return 0, &errs.InsufficientData{Required: 2, Actual: len(obs)}
	}
	v := obs[0] * obs[0]
	for _, r := range obs[1:] {
		v = e.cfg.Decay*v + (1-e.cfg.Decay)*r*r
	}
	return math.Sqrt(v) * e.cfg.Annualization, nil
}

func (e *Estimator) pointEstimate(residuals []float64) (float64, int, error) {
	n := len(dropNull(residuals))
	if n < e.cfg.MinObservations {
		return 0, n, &errs.InsufficientData{Required: e.cfg.MinObservations, Actual: n}
	}
	var vol float64
	var err error
	switch e.cfg.Method {
	case MethodEWMA:
		vol, err = e.EWMAVolatility(residuals)
	default:
		vol, err = e.HistoricalVolatility(residuals)
	}
	return vol, n, err
}

// ShrinkToGroups estimates every security's volatility and shrinks it toward
// the mean volatility of its group:
//
//	w = n / (n + kappa)
//	vol = w*individual + (1-w)*prior
//
// Securities whose individual estimate fails (too few observations) take the
// prior outright. Groups with no usable member fall back to the configured
// default prior, as do ungrouped securities.
func (e *Estimator) ShrinkToGroups(residuals map[string][]float64, groups map[string]string) (map[string]Estimate, error) {
	individual := make(map[string]Estimate, len(residuals))
	groupVols := make(map[string][]float64)
	for _, sym := range sortedKeys(residuals) {
		vol, n, err := e.pointEstimate(residuals[sym])
		est := Estimate{Symbol: sym, Group: groups[sym], Observations: n}
		if err != nil {
			e.log.Debug().Str("symbol", sym).Int("observations", n).
				Msg("falling back to prior for specific risk")
		} else {
			est.Individual = vol
			groupVols[est.Group] = append(groupVols[est.Group], vol)
		}
		individual[sym] = est
	}

	priors := make(map[string]float64, len(groupVols))
	for g, vols := range groupVols {
		priors[g] = formulas.Mean(vols)
	}

	out := make(map[string]Estimate, len(individual))
	for sym, est := range individual {
		prior, ok := priors[est.Group]
		if !ok || prior == 0 {
			prior = e.cfg.DefaultPrior
		}
		out[sym] = e.shrink(est, prior)
	}
	return out, nil
}

// ShrinkToPriors is the externally supplied prior variant: each security's
// prior comes from the priors map instead of a group mean. Symbols without
// an entry use the configured default.
func (e *Estimator) ShrinkToPriors(residuals map[string][]float64, priors map[string]float64) (map[string]Estimate, error) {
	out := make(map[string]Estimate, len(residuals))
	for _, sym := range sortedKeys(residuals) {
		vol, n, err := e.pointEstimate(residuals[sym])
		est := Estimate{Symbol: sym, Observations: n}
		if err == nil {
			est.Individual = vol
		}
		prior, ok := priors[sym]
		if !ok || prior == 0 {
			prior = e.cfg.DefaultPrior
		}
		out[sym] = e.shrink(est, prior)
	}
	return out, nil
}

func (e *Estimator) shrink(est Estimate, prior float64) Estimate {
	est.Prior = prior
	if est.Individual == 0 {
		est.Volatility = prior
		return est
	}
	w := float64(est.Observations) / (float64(est.Observations) + e.cfg.Kappa)
	est.Weight = w
	est.Volatility = w*est.Individual + (1-w)*prior
	return est
}

// Variances maps each estimate to sigma^2 for risk decomposition.
func Variances(estimates map[string]Estimate) map[string]float64 {
	out := make(map[string]float64, len(estimates))
	for sym, est := range estimates {
		out[sym] = est.Volatility * est.Volatility
	}
	return out
}

func dropNull(series []float64) []float64 {
	out := make([]float64, 0, len(series))
	for _, v := range series {
		if !panel.IsNull(v) {
			out = append(out, v)
		}
	}
	return out
}

func sortedKeys(m map[string][]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
