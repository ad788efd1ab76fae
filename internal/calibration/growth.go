package calibration

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/wonny/macrocal/internal/external/wdi"
)

// GDPPerCapitaLabel is the readable column name for wdi.IndicatorGDPPerCapita
const GDPPerCapitaLabel = "GDP per capita (constant 2015 US$)"

// IndicatorFetcher downloads WDI indicators into a Frame
type IndicatorFetcher interface {
	FetchIndicators(ctx context.Context, country string, start, end time.Time, codes ...string) (*wdi.Frame, error)
}

// GrowthStage derives the average annual per-capita output growth rate
type GrowthStage struct {
	source IndicatorFetcher
}

// NewGrowthStage creates the growth-rate extractor
func NewGrowthStage(source IndicatorFetcher) *GrowthStage {
	return &GrowthStage{source: source}
}

func (s *GrowthStage) Name() string   { return "growth" }
func (s *GrowthStage) Source() string { return "World Bank WDI" }
func (s *GrowthStage) Keys() []string { return []string{KeyGrowthRate} }

// Run fetches GDP per capita and writes the mean growth rate
func (s *GrowthStage) Run(ctx context.Context, req Request) (*Params, error) {
	frame, err := s.source.FetchIndicators(ctx, req.Country, req.Start, req.End, wdi.IndicatorGDPPerCapita)
	if err != nil {
		return nil, err
	}

	frame.Rename(map[string]string{wdi.IndicatorGDPPerCapita: GDPPerCapitaLabel})

	series, ok := frame.Column(GDPPerCapitaLabel)
	if !ok {
		return nil, fmt.Errorf("%w: column %q (have %v)", ErrMissingSeries, GDPPerCapitaLabel, frame.Columns())
	}

	params := NewParams()
	mean, ok := MeanNonMissing(PctChangeReversed(series))
	value := Null()
	if ok {
		value = Scalar(mean)
	}
	if err := params.Set(KeyGrowthRate, value); err != nil {
		return nil, err
	}

	return params, nil
}

// PctChangeReversed computes period-over-period change on a most-recent-first
// series: out[i] = x[i]/x[i+1] - 1. The oldest element has no predecessor and
// is NaN, as is any change involving a missing value.
func PctChangeReversed(x []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		if i+1 >= len(x) {
			out[i] = math.NaN()
			continue
		}
		out[i] = x[i]/x[i+1] - 1
	}
	return out
}

// MeanNonMissing averages the finite values of x; ok is false when there are none
func MeanNonMissing(x []float64) (float64, bool) {
	var sum float64
	var n int
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
