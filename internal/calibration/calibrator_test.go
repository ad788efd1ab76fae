package calibration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/macrocal/internal/external/ilostat"
	"github.com/wonny/macrocal/internal/external/wdi"
	"github.com/wonny/macrocal/pkg/config"
	"github.com/wonny/macrocal/pkg/httputil"
	"github.com/wonny/macrocal/pkg/logger"
)

const wdiPayload = `[
  {"page":1,"pages":1,"per_page":20000,"total":3},
  [
    {"indicator":{"id":"NY.GDP.PCAP.KD","value":"GDP per capita (constant 2015 US$)"},"countryiso3code":"ETH","date":"2024","value":110.25},
    {"indicator":{"id":"NY.GDP.PCAP.KD","value":"GDP per capita (constant 2015 US$)"},"countryiso3code":"ETH","date":"2023","value":105},
    {"indicator":{"id":"NY.GDP.PCAP.KD","value":"GDP per capita (constant 2015 US$)"},"countryiso3code":"ETH","date":"2022","value":100}
  ]
]`

const wdiEmptyPayload = `[{"page":1,"pages":0,"per_page":20000,"total":0},null]`

const iloPayload = "ref_area,indicator,time,obs_value\n" +
	"ETH,SDG_1041_NOC_RT_A,2024,35.0\n" +
	"ETH,SDG_1041_NOC_RT_A,2023,36.0\n"

// fakeSources serves WDI and ILOSTAT from one httptest server and counts hits
type fakeSources struct {
	server  *httptest.Server
	hits    atomic.Int64
	wdiBody string
	iloBody string
	iloCode int
	wdiCode int
	iloHTML bool
}

func newFakeSources(t *testing.T) *fakeSources {
	t.Helper()
	f := &fakeSources{wdiBody: wdiPayload, iloBody: iloPayload, iloCode: http.StatusOK, wdiCode: http.StatusOK}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		switch {
		case strings.HasPrefix(r.URL.Path, "/wdi/"):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.wdiCode)
			w.Write([]byte(f.wdiBody))
		case strings.HasPrefix(r.URL.Path, "/ilo/"):
			if f.iloHTML {
				w.Header().Set("Content-Type", "text/html")
			}
			w.WriteHeader(f.iloCode)
			w.Write([]byte(f.iloBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeSources) calibrator() *Calibrator {
	cfg := &config.Config{Env: "test", HTTP: config.HTTPConfig{Timeout: 5 * time.Second}}
	client := httputil.New(cfg, logger.Nop())

	return NewDefault(
		wdi.NewClient(client, nil, f.server.URL+"/wdi", logger.Nop()),
		ilostat.NewClient(client, nil, f.server.URL+"/ilo", "Mozilla/5.0 (test)", logger.Nop()),
		nil,
		logger.Nop(),
	)
}

func outcomeOf(t *testing.T, r *Result, stage string) StageOutcome {
	t.Helper()
	for _, o := range r.Outcomes {
		if o.Stage == stage {
			return o
		}
	}
	t.Fatalf("no outcome for stage %s", stage)
	return StageOutcome{}
}

func TestRunUpdateDisabled(t *testing.T) {
	sources := newFakeSources(t)
	req := testRequest(t)
	req.Update = false

	result := sources.calibrator().Run(context.Background(), req)

	assert.Equal(t, 0, result.Params.Len())
	assert.Empty(t, result.Outcomes)
	assert.Equal(t, int64(0), sources.hits.Load(), "no network call when update is disabled")
}

func TestRunAllStagesSucceed(t *testing.T) {
	sources := newFakeSources(t)

	result := sources.calibrator().Run(context.Background(), testRequest(t))

	assert.NotEmpty(t, result.RunID)
	assert.Empty(t, result.Failed())
	assert.Equal(t, int64(2), sources.hits.Load())
	assert.Equal(t, []string{"growth", "labor_share", "fiscal_risk"}, []string{
		result.Outcomes[0].Stage, result.Outcomes[1].Stage, result.Outcomes[2].Stage,
	})

	assert.ElementsMatch(t, []string{
		KeyGrowthRate, KeyLaborShare,
		KeyTransfers, KeyGovSpending, KeyInitialDebtRatio, KeyInitialForeignDebtRatio, KeyForeignDebtPurchase,
		KeyRGovShift, KeyRGovScale,
	}, result.Params.Keys())

	g, _ := result.Params.Get(KeyGrowthRate)
	gy, _ := g.Float()
	assert.InDelta(t, 0.05, gy, 1e-12)

	gamma, _ := result.Params.Get(KeyLaborShare)
	assert.Equal(t, []float64{0.65}, gamma.Floats())
}

func TestRunLaborSourceDown(t *testing.T) {
	sources := newFakeSources(t)
	sources.iloCode = http.StatusInternalServerError
	sources.iloBody = "upstream error"

	result := sources.calibrator().Run(context.Background(), testRequest(t))

	assert.False(t, result.Params.Has(KeyLaborShare))
	assert.True(t, result.Params.Has(KeyGrowthRate))
	for _, k := range staticKeys() {
		assert.True(t, result.Params.Has(k), "static key %s", k)
	}

	debt, _ := result.Params.Get(KeyInitialDebtRatio)
	d, _ := debt.Float()
	assert.Equal(t, 0.327, d)

	labor := outcomeOf(t, result, "labor_share")
	require.NotNil(t, labor.Err)
	assert.Equal(t, KindSourceUnavailable, labor.Kind)
	assert.Equal(t, []string{KeyLaborShare}, labor.Err.Keys)
	assert.Contains(t, labor.Error, "500")

	assert.True(t, outcomeOf(t, result, "growth").OK())
	assert.True(t, outcomeOf(t, result, "fiscal_risk").OK())
}

func TestRunLaborSourceBlockPage(t *testing.T) {
	sources := newFakeSources(t)
	sources.iloCode = http.StatusForbidden
	sources.iloHTML = true
	sources.iloBody = "<html><head><title>Access denied</title></head></html>"

	result := sources.calibrator().Run(context.Background(), testRequest(t))

	labor := outcomeOf(t, result, "labor_share")
	require.NotNil(t, labor.Err)
	assert.Contains(t, labor.Error, "Access denied")
}

func TestRunGrowthColumnMissing(t *testing.T) {
	sources := newFakeSources(t)
	sources.wdiBody = wdiEmptyPayload

	result := sources.calibrator().Run(context.Background(), testRequest(t))

	assert.False(t, result.Params.Has(KeyGrowthRate))
	assert.True(t, result.Params.Has(KeyLaborShare))

	growth := outcomeOf(t, result, "growth")
	require.NotNil(t, growth.Err)
	assert.Equal(t, KindSchemaDrift, growth.Kind)
}

func TestRunGrowthMalformed(t *testing.T) {
	sources := newFakeSources(t)
	sources.wdiBody = "<html>maintenance</html>"

	result := sources.calibrator().Run(context.Background(), testRequest(t))

	assert.False(t, result.Params.Has(KeyGrowthRate))
	assert.Equal(t, KindSchemaDrift, outcomeOf(t, result, "growth").Kind)
}

func TestRunSourceUnreachable(t *testing.T) {
	sources := newFakeSources(t)
	cal := sources.calibrator()
	sources.server.Close()

	result := cal.Run(context.Background(), testRequest(t))

	assert.False(t, result.Params.Has(KeyGrowthRate))
	assert.False(t, result.Params.Has(KeyLaborShare))
	assert.Equal(t, KindSourceUnavailable, outcomeOf(t, result, "growth").Kind)
	assert.Equal(t, KindSourceUnavailable, outcomeOf(t, result, "labor_share").Kind)
	assert.True(t, result.Params.Has(KeyRGovShift), "estimation does not depend on the network")
}

type panicStage struct{}

func (panicStage) Name() string   { return "broken" }
func (panicStage) Source() string { return "nowhere" }
func (panicStage) Keys() []string { return []string{KeyLaborShare} }
func (panicStage) Run(context.Context, Request) (*Params, error) {
	panic("index out of range")
}

func TestRunRecoversPanickingStage(t *testing.T) {
	cal := New(logger.Nop(), panicStage{}, NewFiscalRiskStage(nil, DefaultYieldModel, logger.Nop()))

	var result *Result
	require.NotPanics(t, func() {
		result = cal.Run(context.Background(), testRequest(t))
	})

	broken := outcomeOf(t, result, "broken")
	require.NotNil(t, broken.Err)
	assert.Equal(t, KindInternal, broken.Kind)
	assert.True(t, result.Params.Has(KeyRGovScale))
}

func TestRunEstimationFailure(t *testing.T) {
	cal := New(logger.Nop(), NewFiscalRiskStage(nil, YieldModel{}, logger.Nop()))

	result := cal.Run(context.Background(), testRequest(t))

	fiscal := outcomeOf(t, result, "fiscal_risk")
	require.NotNil(t, fiscal.Err)
	assert.Equal(t, KindEstimation, fiscal.Kind)
	assert.ElementsMatch(t, staticKeys(), fiscal.Keys)
	assert.False(t, result.Params.Has(KeyRGovShift))
	assert.True(t, result.Params.Has(KeyForeignDebtPurchase))
}

func TestRunIsRepeatable(t *testing.T) {
	sources := newFakeSources(t)
	cal := sources.calibrator()

	first := cal.Run(context.Background(), testRequest(t))
	second := cal.Run(context.Background(), testRequest(t))

	assert.Equal(t, first.Params.Keys(), second.Params.Keys())
	for _, k := range first.Params.Keys() {
		a, _ := first.Params.Get(k)
		b, _ := second.Params.Get(k)
		assert.True(t, a.Equal(b), "key %s: %s vs %s", k, a, b)
	}
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestStages(t *testing.T) {
	assert.Equal(t, []string{"growth", "labor_share", "fiscal_risk"}, newFakeSources(t).calibrator().Stages())
}
