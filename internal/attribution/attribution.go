// Package attribution decomposes security and portfolio returns and risk
// into factor and specific components.
package attribution

import (
	"math"

	"github.com/rs/zerolog"

	"perth/internal/errs"
	"perth/internal/riskmodel"
)

const (
	// zeroReturn is the threshold below which a total return is treated as
	// zero for percentage and R-squared calculations.
	zeroReturn = 1e-10
	// weightSumTolerance bounds the allowed deviation of portfolio weights
	// from summing to one.
	weightSumTolerance = 1e-6

	zScore95 = 1.645
	zScore99 = 2.326
)

// FactorContribution is one factor's share of a return.
type FactorContribution struct {
	Factor       string  `json:"factor"`
	Exposure     float64 `json:"exposure"`
	FactorReturn float64 `json:"factor_return"`
	Contribution float64 `json:"contribution"`
	PctOfTotal   float64 `json:"pct_of_total"`
}

// ReturnAttribution splits a realized return into factor and specific parts.
type ReturnAttribution struct {
	Symbol         string               `json:"symbol,omitempty"`
	TotalReturn    float64              `json:"total_return"`
	FactorReturn   float64              `json:"factor_return"`
	SpecificReturn float64              `json:"specific_return"`
	RSquared       float64              `json:"r_squared"`
	Contributions  []FactorContribution `json:"contributions"`
}

// Position is one portfolio holding for attribution.
type Position struct {
	Symbol      string
	Weight      float64
	Exposures   []float64
	TotalReturn float64
}

// Analyzer performs return attribution and risk decomposition.
type Analyzer struct {
	log zerolog.Logger
}

func NewAnalyzer(log zerolog.Logger) *Analyzer {
	return &Analyzer{log: log.With().Str("component", "attribution").Logger()}
}

// AttributeReturn decomposes a security's total return given its exposures
// and the factor returns over the same horizon. contribution_f =
// exposure_f * factor_return_f; the specific return is the remainder.
func (a *Analyzer) AttributeReturn(symbol string, factorNames []string, exposures, factorReturns []float64, totalReturn float64) (*ReturnAttribution, error) {
	if len(exposures) != len(factorNames) || len(factorReturns) != len(factorNames) {
		return nil, &errs.DimensionMismatch{
			Expected: "equal-length factor names, exposures, and factor returns",
			Actual:   "mismatched inputs",
		}
	}

	out := &ReturnAttribution{
		Symbol:        symbol,
		TotalReturn:   totalReturn,
		Contributions: make([]FactorContribution, len(factorNames)),
	}
	for i, name := range factorNames {
		contribution := exposures[i] * factorReturns[i]
		out.FactorReturn += contribution
		pct := 0.0
		if math.Abs(totalReturn) >= zeroReturn {
			pct = contribution / totalReturn * 100
		}
		out.Contributions[i] = FactorContribution{
			Factor:       name,
			Exposure:     exposures[i],
			FactorReturn: factorReturns[i],
			Contribution: contribution,
			PctOfTotal:   pct,
		}
	}
	out.SpecificReturn = totalReturn - out.FactorReturn

	if math.Abs(totalReturn) >= zeroReturn {
		r2 := out.FactorReturn / totalReturn
		r2 *= r2
		if r2 > 1 {
			r2 = 1
		}
		out.RSquared = r2
	}
	return out, nil
}

// AttributePortfolio is the weight-weighted sum of per-security
// attributions. Weights must sum to one within tolerance.
func (a *Analyzer) AttributePortfolio(positions []Position, factorNames []string, factorReturns []float64) (*ReturnAttribution, error) {
	if len(positions) == 0 {
		return nil, &errs.InsufficientData{Required: 1, Actual: 0}
	}
	weightSum := 0.0
	for _, p := range positions {
		weightSum += p.Weight
	}
	if math.Abs(weightSum-1) > weightSumTolerance {
		return nil, &errs.InvalidParameter{Msg: "portfolio weights must sum to 1"}
	}

	exposures := make([]float64, len(factorNames))
	totalReturn := 0.0
	for _, p := range positions {
		if len(p.Exposures) != len(factorNames) {
			return nil, &errs.DimensionMismatch{
				Expected: "one exposure per factor",
				Actual:   "mismatched exposures for " + p.Symbol,
			}
		}
		for i, x := range p.Exposures {
			exposures[i] += p.Weight * x
		}
		totalReturn += p.Weight * p.TotalReturn
	}
	return a.AttributeReturn("", factorNames, exposures, factorReturns, totalReturn)
}

// FactorRisk is one factor's marginal and total risk contribution.
type FactorRisk struct {
	Factor       string  `json:"factor"`
	Exposure     float64 `json:"exposure"`
	Marginal     float64 `json:"marginal_contribution"`
	Contribution float64 `json:"risk_contribution"`
	PctOfTotal   float64 `json:"pct_of_total"`
}

// RiskDecomposition is the variance split of a portfolio.
type RiskDecomposition struct {
	FactorVariance   float64      `json:"factor_variance"`
	SpecificVariance float64      `json:"specific_variance"`
	TotalVariance    float64      `json:"total_variance"`
	FactorRisk       float64      `json:"factor_risk"`
	SpecificRisk     float64      `json:"specific_risk"`
	TotalRisk        float64      `json:"total_risk"`
	VaR95            float64      `json:"var_95"`
	VaR99            float64      `json:"var_99"`
	FactorRisks      []FactorRisk `json:"factor_risks"`
}

// MonetaryVaR scales the percentage VaR by the portfolio value.
func (r *RiskDecomposition) MonetaryVaR(portfolioValue float64) (var95, var99 float64) {
	return portfolioValue * r.VaR95, portfolioValue * r.VaR99
}

// DecomposeRisk computes factor vs specific variance for portfolio weights
// w over an N x K exposure matrix, a K x K factor covariance, and
// per-security specific variances:
//
//	factor variance   = (X'w)' Sigma (X'w)
//	specific variance = sum_i w_i^2 * sigma_eps_i^2
//
// The covariance must be positive definite; callers holding a raw estimate
// apply enforcement first.
func (a *Analyzer) DecomposeRisk(factorNames []string, weights []float64, exposures [][]float64, cov [][]float64, specificVariances []float64) (*RiskDecomposition, error) {
	n := len(weights)
	k := len(factorNames)
	if len(exposures) != n || len(specificVariances) != n {
		return nil, &errs.DimensionMismatch{
			Expected: "one exposure row and specific variance per weight",
			Actual:   "mismatched row counts",
		}
	}
	if len(cov) != k {
		return nil, &errs.DimensionMismatch{Expected: "K x K covariance", Actual: "wrong covariance order"}
	}
	for _, row := range exposures {
		if len(row) != k {
			return nil, &errs.DimensionMismatch{Expected: "one exposure per factor", Actual: "ragged exposure row"}
		}
	}
	pd, err := riskmodel.IsPositiveDefinite(cov, 0)
	if err != nil {
		return nil, err
	}
	if !pd {
		vals, eigErr := riskmodel.Eigenvalues(cov)
		minEig := 0.0
		if eigErr == nil && len(vals) > 0 {
			minEig = vals[0]
			for _, v := range vals[1:] {
				if v < minEig {
					minEig = v
				}
			}
		}
		return nil, &errs.NotPositiveDefinite{MinEigenvalue: minEig}
	}

	// Portfolio factor exposure p = X'w.
	portfolio := make([]float64, k)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			portfolio[j] += weights[i] * exposures[i][j]
		}
	}

	out := &RiskDecomposition{FactorRisks: make([]FactorRisk, k)}
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			out.FactorVariance += portfolio[i] * cov[i][j] * portfolio[j]
		}
	}
	for i := 0; i < n; i++ {
		out.SpecificVariance += weights[i] * weights[i] * specificVariances[i]
	}
	out.TotalVariance = out.FactorVariance + out.SpecificVariance
	out.FactorRisk = math.Sqrt(out.FactorVariance)
	out.SpecificRisk = math.Sqrt(out.SpecificVariance)
	out.TotalRisk = math.Sqrt(out.TotalVariance)
	out.VaR95 = zScore95 * out.TotalRisk
	out.VaR99 = zScore99 * out.TotalRisk

	for i, name := range factorNames {
		marginal := portfolio[i] * cov[i][i]
		contribution := portfolio[i] * marginal
		pct := 0.0
		if out.TotalVariance > 0 {
			pct = contribution / out.TotalVariance * 100
		}
		out.FactorRisks[i] = FactorRisk{
			Factor:       name,
			Exposure:     portfolio[i],
			Marginal:     marginal,
			Contribution: contribution,
			PctOfTotal:   pct,
		}
	}
	return out, nil
}
