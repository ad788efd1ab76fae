package calibration

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/wonny/macrocal/internal/external/ilostat"
)

// ObservationFetcher downloads one ILOSTAT indicator
type ObservationFetcher interface {
	FetchIndicator(ctx context.Context, q ilostat.Query) ([]ilostat.Observation, error)
}

// LaborShareStage derives gamma = 1 - capital share for the end year
type LaborShareStage struct {
	source ObservationFetcher
}

// NewLaborShareStage creates the labor-share extractor
func NewLaborShareStage(source ObservationFetcher) *LaborShareStage {
	return &LaborShareStage{source: source}
}

func (s *LaborShareStage) Name() string   { return "labor_share" }
func (s *LaborShareStage) Source() string { return "ILOSTAT" }
func (s *LaborShareStage) Keys() []string { return []string{KeyLaborShare} }

// Run fetches the capital share series and writes gamma for the end year
func (s *LaborShareStage) Run(ctx context.Context, req Request) (*Params, error) {
	obs, err := s.source.FetchIndicator(ctx, ilostat.Query{
		ID:       ilostat.IndicatorCapitalShare,
		RefArea:  req.Country,
		TimeFrom: req.StartYear(),
		TimeTo:   req.EndYear(),
	})
	if err != nil {
		return nil, err
	}

	capitalShare, err := valueAt(obs, strconv.Itoa(req.EndYear()))
	if err != nil {
		return nil, err
	}

	params := NewParams()
	if err := params.Set(KeyLaborShare, Vector(1-capitalShare/100)); err != nil {
		return nil, err
	}

	return params, nil
}

// valueAt returns the first observation whose time equals year
func valueAt(obs []ilostat.Observation, year string) (float64, error) {
	for _, o := range obs {
		if o.Time != year {
			continue
		}
		if math.IsNaN(o.Value) {
			return 0, fmt.Errorf("%w: empty obs_value for %s", ErrMissingSeries, year)
		}
		return o.Value, nil
	}
	return 0, fmt.Errorf("%w: no observation for %s in %d rows", ErrMissingSeries, year, len(obs))
}
