// Package errs defines the typed errors shared by the Perth quantitative core.
// Every recoverable failure inside the math packages is one of these kinds;
// plumbing code wraps them with fmt.Errorf("...: %w", err) for context.
package errs

import "fmt"

// InsufficientData is returned when an estimator's minimum-observation
// requirement is not met.
type InsufficientData struct {
	Required int
	Actual   int
}

func (e *InsufficientData) Error() string {
	return fmt.Sprintf("insufficient data: need at least %d observations, got %d", e.Required, e.Actual)
}

// DimensionMismatch is returned when matrix/vector shapes disagree.
type DimensionMismatch struct {
	Expected string
	Actual   string
}

func (e *DimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// InvalidParameter is returned for out-of-range configuration values
// (decay outside (0,1), inverted thresholds, negative scales).
type InvalidParameter struct {
	Msg string
}

func (e *InvalidParameter) Error() string {
	return "invalid parameter: " + e.Msg
}

// NotPositiveDefinite is returned by callers that require a positive-definite
// covariance matrix and did not opt in to enforcement.
type NotPositiveDefinite struct {
	MinEigenvalue float64
}

func (e *NotPositiveDefinite) Error() string {
	return fmt.Sprintf("matrix is not positive definite (min eigenvalue %.6e)", e.MinEigenvalue)
}

// NumericalFailure covers rank-deficient regressions after fallback,
// non-converging eigensolves, and NaN/Inf detection.
type NumericalFailure struct {
	Msg string
}

func (e *NumericalFailure) Error() string {
	return "numerical failure: " + e.Msg
}

// MissingInput is returned when a required named column is absent from the
// input panel.
type MissingInput struct {
	Column string
}

func (e *MissingInput) Error() string {
	return fmt.Sprintf("missing input column %q", e.Column)
}
