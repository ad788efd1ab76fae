package calibration

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/macrocal/internal/external/ilostat"
	"github.com/wonny/macrocal/internal/external/wdi"
	"github.com/wonny/macrocal/internal/fiscalref"
	"github.com/wonny/macrocal/pkg/logger"
)

type fakeIndicators struct {
	frame *wdi.Frame
	err   error
	calls int
}

func (f *fakeIndicators) FetchIndicators(_ context.Context, _ string, _, _ time.Time, _ ...string) (*wdi.Frame, error) {
	f.calls++
	return f.frame, f.err
}

type fakeObservations struct {
	obs   []ilostat.Observation
	err   error
	query ilostat.Query
	calls int
}

func (f *fakeObservations) FetchIndicator(_ context.Context, q ilostat.Query) ([]ilostat.Observation, error) {
	f.calls++
	f.query = q
	return f.obs, f.err
}

func testRequest(t *testing.T) Request {
	t.Helper()
	req, err := NewRequest("eth",
		time.Date(1947, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		true)
	require.NoError(t, err)
	return req
}

func TestNewRequest(t *testing.T) {
	req := testRequest(t)
	assert.Equal(t, "ETH", req.Country)
	assert.Equal(t, 1947, req.StartYear())
	assert.Equal(t, 2024, req.EndYear())

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := NewRequest("ET", day, day, true)
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	_, err = NewRequest("ETH", day.AddDate(1, 0, 0), day, true)
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestPctChangeReversed(t *testing.T) {
	got := PctChangeReversed([]float64{110.25, 105, 100})
	require.Len(t, got, 3)
	assert.InDelta(t, 0.05, got[0], 1e-12)
	assert.InDelta(t, 0.05, got[1], 1e-12)
	assert.True(t, math.IsNaN(got[2]))

	assert.Empty(t, PctChangeReversed(nil))
}

func TestMeanNonMissing(t *testing.T) {
	mean, ok := MeanNonMissing([]float64{0.1, math.NaN(), 0.3})
	assert.True(t, ok)
	assert.InDelta(t, 0.2, mean, 1e-12)

	_, ok = MeanNonMissing([]float64{math.NaN(), math.NaN()})
	assert.False(t, ok)

	_, ok = MeanNonMissing(nil)
	assert.False(t, ok)
}

func TestGrowthStage(t *testing.T) {
	source := &fakeIndicators{frame: wdi.NewFrame(
		[]int{2024, 2023, 2022},
		map[string][]float64{wdi.IndicatorGDPPerCapita: {110.25, 105, 100}},
	)}

	params, err := NewGrowthStage(source).Run(context.Background(), testRequest(t))
	require.NoError(t, err)

	v, ok := params.Get(KeyGrowthRate)
	require.True(t, ok)
	g, isScalar := v.Float()
	require.True(t, isScalar)
	assert.InDelta(t, 0.05, g, 1e-12)
}

func TestGrowthStageAllMissingWritesNull(t *testing.T) {
	source := &fakeIndicators{frame: wdi.NewFrame(
		[]int{2024},
		map[string][]float64{wdi.IndicatorGDPPerCapita: {100}},
	)}

	params, err := NewGrowthStage(source).Run(context.Background(), testRequest(t))
	require.NoError(t, err)

	v, ok := params.Get(KeyGrowthRate)
	require.True(t, ok)
	assert.Equal(t, ShapeNull, v.Shape())
}

func TestGrowthStageMissingColumn(t *testing.T) {
	source := &fakeIndicators{frame: wdi.NewFrame(
		[]int{2024},
		map[string][]float64{"NY.GDP.MKTP.KD": {1e9}},
	)}

	params, err := NewGrowthStage(source).Run(context.Background(), testRequest(t))
	assert.Nil(t, params)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingSeries))
	assert.Equal(t, KindSchemaDrift, classify(err))
}

func TestLaborShareStage(t *testing.T) {
	source := &fakeObservations{obs: []ilostat.Observation{
		{Time: "2023", Value: 36.5},
		{Time: "2024", Value: 35.0},
		{Time: "2024", Value: 99},
	}}

	params, err := NewLaborShareStage(source).Run(context.Background(), testRequest(t))
	require.NoError(t, err)

	v, ok := params.Get(KeyLaborShare)
	require.True(t, ok)
	assert.Equal(t, []float64{0.65}, v.Floats())

	assert.Equal(t, ilostat.Query{
		ID:       ilostat.IndicatorCapitalShare,
		RefArea:  "ETH",
		TimeFrom: 1947,
		TimeTo:   2024,
	}, source.query)
}

func TestLaborShareStageMissingYear(t *testing.T) {
	tests := []struct {
		name string
		obs  []ilostat.Observation
	}{
		{"no end-year row", []ilostat.Observation{{Time: "2023", Value: 36.5}}},
		{"empty end-year value", []ilostat.Observation{{Time: "2024", Value: math.NaN()}}},
		{"no rows", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := NewLaborShareStage(&fakeObservations{obs: tt.obs}).Run(context.Background(), testRequest(t))
			assert.Nil(t, params)
			assert.True(t, errors.Is(err, ErrMissingSeries))
			assert.Equal(t, KindSchemaDrift, classify(err))
		})
	}
}

func TestFiscalRiskStage(t *testing.T) {
	stage := NewFiscalRiskStage(nil, DefaultYieldModel, logger.Nop())

	params, err := stage.Run(context.Background(), testRequest(t))
	require.NoError(t, err)
	assert.ElementsMatch(t, stage.Keys(), params.Keys())

	alphaT, _ := params.Get(KeyTransfers)
	assert.InDelta(t, 0.05, alphaT.Floats()[0], 1e-12)

	alphaG, _ := params.Get(KeyGovSpending)
	assert.Equal(t, []float64{0.095}, alphaG.Floats())

	debt, _ := params.Get(KeyInitialDebtRatio)
	d, isScalar := debt.Float()
	assert.True(t, isScalar)
	assert.Equal(t, 0.327, d)

	foreign, _ := params.Get(KeyInitialForeignDebtRatio)
	f, _ := foreign.Float()
	assert.Equal(t, 0.42, f)

	zeta, _ := params.Get(KeyForeignDebtPurchase)
	assert.Equal(t, []float64{0.12}, zeta.Floats())

	shift, _ := params.Get(KeyRGovShift)
	assert.InDelta(t, -0.03376625043803517, shift.Floats()[0], 1e-11)

	scale, _ := params.Get(KeyRGovScale)
	assert.InDelta(t, 0.2448476359365782, scale.Floats()[0], 1e-9)
}

func TestFiscalRiskStageUsesReferenceBook(t *testing.T) {
	book := fiscalref.DefaultBook()
	book.Countries["KEN"] = fiscalref.Reference{AlphaT: 0.03, AlphaG: 0.2, InitialDebtRatio: 0.7, InitialForeignDebtRatio: 0.5, ZetaD: 0.3}

	req, err := NewRequest("KEN", time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true)
	require.NoError(t, err)

	params, err := NewFiscalRiskStage(book, DefaultYieldModel, logger.Nop()).Run(context.Background(), req)
	require.NoError(t, err)

	debt, _ := params.Get(KeyInitialDebtRatio)
	d, _ := debt.Float()
	assert.Equal(t, 0.7, d)
}

func TestFiscalRiskStageRegressionFailureKeepsStaticBlock(t *testing.T) {
	stage := NewFiscalRiskStage(nil, YieldModel{}, logger.Nop())

	params, err := stage.Run(context.Background(), testRequest(t))
	require.Error(t, err)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, KindEstimation, stageErr.Kind)
	assert.Equal(t, []string{KeyRGovShift, KeyRGovScale}, stageErr.Keys)

	require.NotNil(t, params)
	assert.ElementsMatch(t, staticKeys(), params.Keys())
	assert.False(t, params.Has(KeyRGovShift))
	assert.False(t, params.Has(KeyRGovScale))
}
