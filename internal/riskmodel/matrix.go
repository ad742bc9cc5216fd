// Package riskmodel implements the factor covariance stack: EWMA,
// Ledoit-Wolf shrinkage, Newey-West HAC estimation, positive-definite
// enforcement and volatility-regime scaling. Matrices are [][]float64,
// symmetric unless stated otherwise.
package riskmodel

import (
	"fmt"
	"math"

	"perth/internal/errs"
)

const (
	// DefaultEigenFloor is the eigenvalue floor used by PD enforcement.
	DefaultEigenFloor = 1e-8
	// jacobiMaxSweeps bounds the Jacobi eigensolver.
	jacobiMaxSweeps = 100
	// jacobiTol is the off-diagonal convergence tolerance.
	jacobiTol = 1e-12
)

// NewMatrix allocates an n x n zero matrix.
func NewMatrix(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}

// CloneMatrix deep-copies a matrix.
func CloneMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i := range m {
		out[i] = make([]float64, len(m[i]))
		copy(out[i], m[i])
	}
	return out
}

// checkSquare validates that m is square, non-empty and free of NaN/Inf.
func checkSquare(m [][]float64) error {
	n := len(m)
	if n == 0 {
		return &errs.DimensionMismatch{Expected: "non-empty square matrix", Actual: "0x0"}
	}
	for i := range m {
		if len(m[i]) != n {
			return &errs.DimensionMismatch{
				Expected: fmt.Sprintf("%dx%d", n, n),
				Actual:   fmt.Sprintf("row %d has %d columns", i, len(m[i])),
			}
		}
		for j := range m[i] {
			if math.IsNaN(m[i][j]) || math.IsInf(m[i][j], 0) {
				return &errs.NumericalFailure{Msg: fmt.Sprintf("non-finite entry at (%d,%d)", i, j)}
			}
		}
	}
	return nil
}

// Trace returns the sum of diagonal entries.
func Trace(m [][]float64) float64 {
	t := 0.0
	for i := range m {
		t += m[i][i]
	}
	return t
}

// frobeniusDistance returns ||a - b||_F.
func frobeniusDistance(a, b [][]float64) float64 {
	sum := 0.0
	for i := range a {
		for j := range a[i] {
			d := a[i][j] - b[i][j]
			sum += d * d
		}
	}
	return math.Sqrt(sum)
}

// jacobiEigen computes the eigendecomposition of a symmetric matrix with
// cyclic Jacobi rotations. Returns the eigenvalues and the matrix of
// eigenvectors (columns). Fails if the off-diagonal mass has not dropped
// below tolerance within the sweep budget.
func jacobiEigen(m [][]float64) ([]float64, [][]float64, error) {
	if err := checkSquare(m); err != nil {
		return nil, nil, err
	}
	n := len(m)
	a := CloneMatrix(m)

	v := NewMatrix(n)
	for i := 0; i < n; i++ {
		v[i][i] = 1
	}

	offDiag := func() float64 {
		sum := 0.0
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				sum += a[i][j] * a[i][j]
			}
		}
		return sum
	}

	for sweep := 0; sweep < jacobiMaxSweeps; sweep++ {
		if offDiag() < jacobiTol {
			vals := make([]float64, n)
			for i := 0; i < n; i++ {
				vals[i] = a[i][i]
			}
			return vals, v, nil
		}

		for p := 0; p < n-1; p++ {
			for q := p + 1; q < n; q++ {
				if math.Abs(a[p][q]) < jacobiTol/float64(n*n) {
					continue
				}

				// Rotation angle zeroing a[p][q].
				theta := (a[q][q] - a[p][p]) / (2 * a[p][q])
				t := math.Copysign(1, theta) / (math.Abs(theta) + math.Sqrt(theta*theta+1))
				c := 1 / math.Sqrt(t*t+1)
				s := t * c

				for k := 0; k < n; k++ {
					akp, akq := a[k][p], a[k][q]
					a[k][p] = c*akp - s*akq
					a[k][q] = s*akp + c*akq
				}
				for k := 0; k < n; k++ {
					apk, aqk := a[p][k], a[q][k]
					a[p][k] = c*apk - s*aqk
					a[q][k] = s*apk + c*aqk
				}
				for k := 0; k < n; k++ {
					vkp, vkq := v[k][p], v[k][q]
					v[k][p] = c*vkp - s*vkq
					v[k][q] = s*vkp + c*vkq
				}
			}
		}
	}

	if offDiag() < jacobiTol {
		vals := make([]float64, n)
		for i := 0; i < n; i++ {
			vals[i] = a[i][i]
		}
		return vals, v, nil
	}
	return nil, nil, &errs.NumericalFailure{Msg: "Jacobi eigensolver did not converge"}
}

// Eigenvalues returns the eigenvalues of a symmetric matrix, unsorted.
func Eigenvalues(m [][]float64) ([]float64, error) {
	vals, _, err := jacobiEigen(m)
	return vals, err
}

// IsPositiveDefinite reports whether every eigenvalue of the symmetric
// matrix exceeds tol.
func IsPositiveDefinite(m [][]float64, tol float64) (bool, error) {
	vals, err := Eigenvalues(m)
	if err != nil {
		return false, err
	}
	for _, v := range vals {
		if v <= tol {
			return false, nil
		}
	}
	return true, nil
}

// ConditionNumber returns the ratio of the largest to the smallest absolute
// eigenvalue. A singular matrix yields +Inf.
func ConditionNumber(m [][]float64) (float64, error) {
	vals, err := Eigenvalues(m)
	if err != nil {
		return 0, err
	}
	minAbs, maxAbs := math.Inf(1), 0.0
	for _, v := range vals {
		av := math.Abs(v)
		if av < minAbs {
			minAbs = av
		}
		if av > maxAbs {
			maxAbs = av
		}
	}
	if minAbs == 0 {
		return math.Inf(1), nil
	}
	return maxAbs / minAbs, nil
}

// EnforceOptions configures EnforcePositiveDefinite.
type EnforceOptions struct {
	// Floor is the minimum eigenvalue after clipping (default 1e-8).
	Floor float64
	// PreserveTrace rescales the clipped spectrum so the output trace
	// matches the input.
	PreserveTrace bool
}

// EnforcePositiveDefinite clips the eigenvalues of a symmetric matrix to the
// floor and reconstructs M = V diag(lambda') V'. The result is symmetric
// with minimum eigenvalue >= floor.
func EnforcePositiveDefinite(m [][]float64, opts EnforceOptions) ([][]float64, error) {
	if opts.Floor <= 0 {
		opts.Floor = DefaultEigenFloor
	}
	vals, vecs, err := jacobiEigen(m)
	if err != nil {
		return nil, err
	}
	n := len(vals)

	clipped := make([]float64, n)
	for i, v := range vals {
		if v < opts.Floor {
			clipped[i] = opts.Floor
		} else {
			clipped[i] = v
		}
	}

	if opts.PreserveTrace {
		origTrace := Trace(m)
		sum := 0.0
		for _, v := range clipped {
			sum += v
		}
		if sum > 0 && origTrace > 0 {
			scale := origTrace / sum
			for i := range clipped {
				clipped[i] *= scale
				if clipped[i] < opts.Floor {
					clipped[i] = opts.Floor
				}
			}
		}
	}

	out := NewMatrix(n)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sum := 0.0
			for k := 0; k < n; k++ {
				sum += vecs[i][k] * clipped[k] * vecs[j][k]
			}
			out[i][j] = sum
			out[j][i] = sum
		}
	}
	return out, nil
}

// NearestPD computes Higham's nearest positive-definite matrix by
// alternating projections with a Dykstra correction: eigen-clip to the PSD
// cone, push the diagonal up to the floor, re-symmetrize, until the
// Frobenius update falls below tolerance.
func NearestPD(m [][]float64, floor float64) ([][]float64, error) {
	if err := checkSquare(m); err != nil {
		return nil, err
	}
	if floor <= 0 {
		floor = DefaultEigenFloor
	}
	const (
		maxIter = 100
		tol     = 1e-8
	)
	n := len(m)

	y := CloneMatrix(m)
	delta := NewMatrix(n)

	for iter := 0; iter < maxIter; iter++ {
		// R = Y - Dykstra correction
		r := NewMatrix(n)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				r[i][j] = y[i][j] - delta[i][j]
			}
		}

		x, err := EnforcePositiveDefinite(r, EnforceOptions{Floor: floor})
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				delta[i][j] = x[i][j] - r[i][j]
			}
		}

		next := CloneMatrix(x)
		for i := 0; i < n; i++ {
			if next[i][i] < floor {
				next[i][i] = floor
			}
		}
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				avg := (next[i][j] + next[j][i]) / 2
				next[i][j] = avg
				next[j][i] = avg
			}
		}

		if frobeniusDistance(next, y) < tol {
			return next, nil
		}
		y = next
	}
	return y, nil
}
