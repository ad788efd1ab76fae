package calibration

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSyntheticYieldCurve(t *testing.T) {
	curve := SyntheticYieldCurve(DefaultYieldModel)

	require.Len(t, curve.Sovereign, 100)
	require.Len(t, curve.Corporate, 100)
	assert.Equal(t, 2.0, curve.Sovereign[0])
	assert.Equal(t, 11.9, curve.Sovereign[99])
	assert.Equal(t, 5.0, curve.Sovereign[30])

	// corp(2.0) = 8.199 - 5.95 + 1.912
	assert.InDelta(t, 4.161, curve.Corporate[0], 1e-12)
}

func TestEstimateRiskPremium(t *testing.T) {
	premium, err := EstimateRiskPremium(SyntheticYieldCurve(DefaultYieldModel))
	require.NoError(t, err)

	assert.InDelta(t, 3.3766250438035166, premium.Intercept, 1e-9)
	assert.InDelta(t, 0.2448476359365782, premium.Slope, 1e-9)
	assert.InDelta(t, -0.03376625043803517, premium.Shift, 1e-11)
	assert.Equal(t, premium.Slope, premium.Scale)
	assert.Equal(t, -premium.Intercept/100, premium.Shift)
}

func TestEstimateRiskPremiumDeterministic(t *testing.T) {
	first, err := EstimateRiskPremium(SyntheticYieldCurve(DefaultYieldModel))
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		again, err := EstimateRiskPremium(SyntheticYieldCurve(DefaultYieldModel))
		require.NoError(t, err)
		assert.Equal(t, math.Float64bits(first.Shift), math.Float64bits(again.Shift))
		assert.Equal(t, math.Float64bits(first.Scale), math.Float64bits(again.Scale))
	}
}

func TestEstimateRiskPremiumSingular(t *testing.T) {
	// corp is identically zero: the design matrix has a zero column
	_, err := EstimateRiskPremium(SyntheticYieldCurve(YieldModel{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSingularDesign), "got %v", err)
}

func TestEstimateRiskPremiumBadCurve(t *testing.T) {
	_, err := EstimateRiskPremium(YieldCurve{})
	assert.True(t, errors.Is(err, ErrTooFewObservations))

	_, err = EstimateRiskPremium(YieldCurve{Sovereign: []float64{1, 2}, Corporate: []float64{1}})
	assert.Error(t, err)
}

func TestOLSExactLine(t *testing.T) {
	// y = 1 + 2x
	X := mat.NewDense(4, 2, []float64{
		1, 0,
		1, 1,
		1, 2,
		1, 3,
	})
	beta, err := OLS([]float64{1, 3, 5, 7}, X)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, beta[0], 1e-12)
	assert.InDelta(t, 2.0, beta[1], 1e-12)
}

func TestOLSTooFewRows(t *testing.T) {
	_, err := OLS([]float64{1}, mat.NewDense(1, 2, []float64{1, 2}))
	assert.True(t, errors.Is(err, ErrTooFewObservations))
}
