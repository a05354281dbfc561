package services

import (
	"errors"
	"math"
)

var errSingularSystem = errors.New("normal equations are not positive definite")

// olsFit fits y ~ X by ordinary least squares. X is column major: X[i] is the
// i-th regressor over all observations. ridge is added to the diagonal of X'X.
// It returns the coefficients and the residual standard deviation.
func olsFit(y []float64, X [][]float64, ridge float64) ([]float64, float64, error) {
	n := len(y)
	k := len(X)
	if n == 0 || k == 0 {
		return nil, 0, errors.New("empty regression")
	}
	if n <= k {
		return nil, 0, errors.New("fewer observations than regressors")
	}
	for i := 0; i < k; i++ {
		if len(X[i]) != n {
			return nil, 0, errors.New("regressor length mismatch")
		}
	}
	// Build X'X and X'y
	XtX := make([][]float64, k)
	for i := 0; i < k; i++ {
		XtX[i] = make([]float64, k)
		for j := 0; j < k; j++ {
			var sum float64
			for t := 0; t < n; t++ {
				sum += X[i][t] * X[j][t]
			}
			XtX[i][j] = sum
		}
		XtX[i][i] += ridge
	}
	Xty := make([]float64, k)
	for i := 0; i < k; i++ {
		var sum float64
		for t := 0; t < n; t++ {
			sum += X[i][t] * y[t]
		}
		Xty[i] = sum
	}
	beta, err := solveSymmetric(XtX, Xty)
	if err != nil {
		return nil, 0, err
	}
	var rss float64
	for t := 0; t < n; t++ {
		var pred float64
		for i := 0; i < k; i++ {
			pred += beta[i] * X[i][t]
		}
		res := y[t] - pred
		rss += res * res
	}
	sigma := math.Sqrt(rss / float64(n-k))
	if !finite(sigma) || !allFinite(beta) {
		return nil, 0, errors.New("non-finite coefficients")
	}
	return beta, sigma, nil
}

// solveSymmetric solves A*x=b for symmetric positive definite A by Cholesky
func solveSymmetric(A [][]float64, b []float64) ([]float64, error) {
	n := len(A)
	if n == 0 || len(b) != n {
		return nil, errSingularSystem
	}
	for _, row := range A {
		if len(row) != n {
			return nil, errSingularSystem
		}
	}
	L := make([][]float64, n)
	for i := 0; i < n; i++ {
		L[i] = make([]float64, n)
		copy(L[i], A[i])
	}
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			var sum float64
			for k := 0; k < j; k++ {
				sum += L[i][k] * L[j][k]
			}
			if i == j {
				val := L[i][i] - sum
				if val <= 0 || math.IsNaN(val) {
					return nil, errSingularSystem
				}
				L[i][j] = math.Sqrt(val)
			} else {
				L[i][j] = (L[i][j] - sum) / L[j][j]
			}
		}
		for j := i + 1; j < n; j++ {
			L[i][j] = 0
		}
	}
	// Forward substitution
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < i; j++ {
			sum += L[i][j] * y[j]
		}
		y[i] = (b[i] - sum) / L[i][i]
	}
	// Back substitution
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		var sum float64
		for j := i + 1; j < n; j++ {
			sum += L[j][i] * x[j]
		}
		x[i] = (y[i] - sum) / L[i][i]
	}
	return x, nil
}

// firstDifference returns vals[i]-vals[i-1].
func firstDifference(vals []float64) []float64 {
	if len(vals) < 2 {
		return nil
	}
	out := make([]float64, 0, len(vals)-1)
	for i := 1; i < len(vals); i++ {
		out = append(out, vals[i]-vals[i-1])
	}
	return out
}

// meanAbsolutePercentageError compares predictions against actuals. Zero
// actuals use eps as denominator so the result stays finite.
func meanAbsolutePercentageError(actual []float64, predicted []int, eps float64) float64 {
	n := len(actual)
	if len(predicted) < n {
		n = len(predicted)
	}
	if n == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := 0; i < n; i++ {
		denom := math.Abs(actual[i])
		if denom < eps {
			denom = eps
		}
		sum += math.Abs(actual[i]-float64(predicted[i])) / denom
	}
	return sum / float64(n)
}

func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// calculateStandardDeviation is the population standard deviation.
func calculateStandardDeviation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := calculateMean(values)
	sumSquaredDiff := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}
	return math.Sqrt(sumSquaredDiff / float64(len(values)))
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(vals []float64) bool {
	for _, v := range vals {
		if !finite(v) {
			return false
		}
	}
	return true
}
