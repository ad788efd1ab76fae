package calibration

import (
	"context"
	"fmt"

	"github.com/wonny/macrocal/internal/fiscalref"
	"github.com/wonny/macrocal/pkg/logger"
)

// ReferenceSource resolves the fiscal reference block for a country
type ReferenceSource interface {
	Lookup(country string) (fiscalref.Reference, bool)
}

// FiscalRiskStage writes the fiscal reference block and estimates the
// sovereign risk-premium coefficients
type FiscalRiskStage struct {
	refs   ReferenceSource
	model  YieldModel
	logger *logger.Logger
}

// NewFiscalRiskStage creates the fiscal/risk estimator. refs may be nil for the built-in book.
func NewFiscalRiskStage(refs ReferenceSource, model YieldModel, log *logger.Logger) *FiscalRiskStage {
	if refs == nil {
		refs = fiscalref.DefaultBook()
	}
	return &FiscalRiskStage{
		refs:   refs,
		model:  model,
		logger: log.WithField("module", "fiscal_risk"),
	}
}

func (s *FiscalRiskStage) Name() string   { return "fiscal_risk" }
func (s *FiscalRiskStage) Source() string { return "fiscal reference + OLS" }

func (s *FiscalRiskStage) Keys() []string {
	return append(staticKeys(), regressionKeys()...)
}

func staticKeys() []string {
	return []string{KeyTransfers, KeyGovSpending, KeyInitialDebtRatio, KeyInitialForeignDebtRatio, KeyForeignDebtPurchase}
}

func regressionKeys() []string {
	return []string{KeyRGovShift, KeyRGovScale}
}

// Run writes the static block, then the regression coefficients. A failed
// regression returns the static block together with an estimation error.
func (s *FiscalRiskStage) Run(_ context.Context, req Request) (*Params, error) {
	ref, exact := s.refs.Lookup(req.Country)
	if !exact {
		s.logger.WithFields(map[string]interface{}{
			"country": req.Country,
			"as_of":   ref.AsOf,
		}).Warn("No fiscal reference for country, using default entry")
	}

	params := NewParams()
	static := []struct {
		key   string
		value Value
	}{
		{KeyTransfers, Vector(ref.AlphaT)},
		{KeyGovSpending, Vector(ref.AlphaG)},
		{KeyInitialDebtRatio, Scalar(ref.InitialDebtRatio)},
		{KeyInitialForeignDebtRatio, Scalar(ref.InitialForeignDebtRatio)},
		{KeyForeignDebtPurchase, Vector(ref.ZetaD)},
	}
	for _, kv := range static {
		if err := params.Set(kv.key, kv.value); err != nil {
			return nil, err
		}
	}

	premium, err := EstimateRiskPremium(SyntheticYieldCurve(s.model))
	if err != nil {
		return params, &StageError{
			Kind:   KindEstimation,
			Stage:  s.Name(),
			Source: s.Source(),
			Keys:   regressionKeys(),
			Cause:  fmt.Errorf("risk premium regression: %w", err),
		}
	}

	if err := params.Set(KeyRGovShift, Vector(premium.Shift)); err != nil {
		return params, err
	}
	if err := params.Set(KeyRGovScale, Vector(premium.Scale)); err != nil {
		return params, err
	}

	return params, nil
}
