package calibration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrSingularDesign is returned when the design matrix is rank deficient
	ErrSingularDesign = errors.New("design matrix is singular or ill-conditioned")

	// ErrNonFiniteEstimate is returned when a fitted coefficient is NaN or Inf
	ErrNonFiniteEstimate = errors.New("non-finite coefficient estimate")

	// ErrTooFewObservations is returned when there are fewer rows than regressors
	ErrTooFewObservations = errors.New("too few observations")
)

// YieldModel is the quadratic corp = A0 + A1*sov + A2*sov^2, yields in percent
type YieldModel struct {
	A0, A1, A2 float64
}

// DefaultYieldModel holds the published sovereign-to-corporate coefficients
var DefaultYieldModel = YieldModel{A0: 8.199, A1: -2.975, A2: 0.478}

// Corporate returns the implied corporate yield for a sovereign yield
func (m YieldModel) Corporate(sov float64) float64 {
	return m.A0 + m.A1*sov + m.A2*sov*sov
}

// Sovereign yield grid: 2.0 to 11.9 in steps of 0.1, held as tenths
const (
	gridFirstTenth = 20
	gridPoints     = 100
)

// YieldCurve is a synthetic sovereign grid paired with implied corporate yields
type YieldCurve struct {
	Sovereign []float64
	Corporate []float64
}

// SyntheticYieldCurve generates the fixed grid under model.
// Grid points are computed as integer tenths to avoid accumulated step error.
func SyntheticYieldCurve(model YieldModel) YieldCurve {
	curve := YieldCurve{
		Sovereign: make([]float64, gridPoints),
		Corporate: make([]float64, gridPoints),
	}
	for i := 0; i < gridPoints; i++ {
		sov := float64(gridFirstTenth+i) / 10
		curve.Sovereign[i] = sov
		curve.Corporate[i] = model.Corporate(sov)
	}
	return curve
}

// OLS fits y = X·beta by least squares using a QR factorization
func OLS(y []float64, X *mat.Dense) ([]float64, error) {
	rows, cols := X.Dims()
	if rows != len(y) {
		return nil, fmt.Errorf("ols: %d responses for %d rows", len(y), rows)
	}
	if rows < cols {
		return nil, fmt.Errorf("%w: %d rows for %d regressors", ErrTooFewObservations, rows, cols)
	}

	var qr mat.QR
	qr.Factorize(X)

	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, mat.NewVecDense(rows, append([]float64(nil), y...))); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return nil, fmt.Errorf("%w: condition number %g", ErrSingularDesign, float64(cond))
		}
		return nil, fmt.Errorf("ols: %w", err)
	}

	out := make([]float64, cols)
	for i := range out {
		out[i] = beta.AtVec(i)
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			return nil, fmt.Errorf("%w: beta[%d] = %g", ErrNonFiniteEstimate, i, out[i])
		}
	}
	return out, nil
}

// RiskPremium is the linear mapping sov = Intercept + Slope*corp with the
// derived model coefficients
type RiskPremium struct {
	Intercept float64
	Slope     float64
	Shift     float64 // r_gov_shift: -Intercept/100, percentage points to decimal
	Scale     float64 // r_gov_scale: Slope
}

// EstimateRiskPremium regresses the sovereign yield on [1, corp]
func EstimateRiskPremium(curve YieldCurve) (RiskPremium, error) {
	n := len(curve.Sovereign)
	if len(curve.Corporate) != n {
		return RiskPremium{}, fmt.Errorf("yield curve: %d sovereign vs %d corporate points", n, len(curve.Corporate))
	}

	if n == 0 {
		return RiskPremium{}, fmt.Errorf("%w: empty yield curve", ErrTooFewObservations)
	}

	X := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, 1)
		X.Set(i, 1, curve.Corporate[i])
	}

	beta, err := OLS(curve.Sovereign, X)
	if err != nil {
		return RiskPremium{}, err
	}

	return RiskPremium{
		Intercept: beta[0],
		Slope:     beta[1],
		Shift:     -beta[0] / 100,
		Scale:     beta[1],
	}, nil
}
