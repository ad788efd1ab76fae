// Package calibration derives OG model calibration parameters from live
// statistical sources. A Calibrator runs independent stages in sequence and
// merges whatever keys each stage produces; a failing stage costs only its
// own keys and never aborts the run.
package calibration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/macrocal/pkg/logger"
)

// Stage is one independent step of the pipeline.
// Run may return partial params together with an error.
type Stage interface {
	Name() string
	Source() string
	Keys() []string
	Run(ctx context.Context, req Request) (*Params, error)
}

// Result is the outcome of one calibration run
type Result struct {
	RunID    string         `json:"run_id"`
	Request  Request        `json:"request"`
	Params   *Params        `json:"params"`
	Outcomes []StageOutcome `json:"outcomes"`
	Duration time.Duration  `json:"duration_ns"`
}

// Failed returns the outcomes that carry a failure
func (r *Result) Failed() []StageOutcome {
	var failed []StageOutcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Calibrator runs the stages and accumulates one Params
// ⭐ SSOT: 캘리브레이션 파이프라인 조율은 여기서만
type Calibrator struct {
	stages []Stage
	logger *logger.Logger
}

// New creates a Calibrator running stages in the given order
func New(log *logger.Logger, stages ...Stage) *Calibrator {
	return &Calibrator{
		stages: stages,
		logger: log.WithField("module", "calibration"),
	}
}

// NewDefault wires the growth, labor-share and fiscal/risk stages.
// refs may be nil for the built-in fiscal reference book.
func NewDefault(growth IndicatorFetcher, labor ObservationFetcher, refs ReferenceSource, log *logger.Logger) *Calibrator {
	return New(log,
		NewGrowthStage(growth),
		NewLaborShareStage(labor),
		NewFiscalRiskStage(refs, DefaultYieldModel, log),
	)
}

// Stages returns the configured stage names in run order
func (c *Calibrator) Stages() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes every stage and returns the merged parameters.
// It never fails: stage failures are reported in Result.Outcomes and the
// affected keys are simply absent from Result.Params.
func (c *Calibrator) Run(ctx context.Context, req Request) *Result {
	startTime := time.Now()

	result := &Result{
		RunID:   uuid.New().String(),
		Request: req,
		Params:  NewParams(),
	}

	if !req.Update {
		c.logger.Info("Not updating calibration parameters from live sources, keeping defaults")
		result.Duration = time.Since(startTime)
		return result
	}

	log := c.logger.WithFields(map[string]interface{}{
		"run_id":  result.RunID,
		"country": req.Country,
		"start":   req.Start.Format(time.DateOnly),
		"end":     req.End.Format(time.DateOnly),
	})
	log.Info("Starting calibration run")

	for _, stage := range c.stages {
		outcome := c.runStage(ctx, stage, req, result.Params)
		result.Outcomes = append(result.Outcomes, outcome)

		if outcome.Err != nil {
			log.WithFields(map[string]interface{}{
				"stage":  outcome.Stage,
				"source": outcome.Source,
				"kind":   string(outcome.Kind),
				"keys":   strings.Join(outcome.Err.Keys, ","),
			}).WithError(outcome.Err.Cause).Warn(fmt.Sprintf(
				"Failed to update from %s; not updating %s", outcome.Source, strings.Join(outcome.Err.Keys, ", ")))
		}
	}

	result.Duration = time.Since(startTime)

	log.WithFields(map[string]interface{}{
		"keys":     result.Params.Len(),
		"failed":   len(result.Failed()),
		"duration": result.Duration.Seconds(),
	}).Info("Calibration run completed")

	return result
}

// runStage runs one stage, converting errors and panics into the outcome
// and merging whatever keys the stage produced into params
func (c *Calibrator) runStage(ctx context.Context, stage Stage, req Request, params *Params) (outcome StageOutcome) {
	stageStart := time.Now()
	outcome = StageOutcome{Stage: stage.Name(), Source: stage.Source()}

	defer func() {
		if r := recover(); r != nil {
			outcome.Keys = nil
			outcome.Err = &StageError{
				Kind:   KindInternal,
				Stage:  stage.Name(),
				Source: stage.Source(),
				Keys:   stage.Keys(),
				Cause:  fmt.Errorf("panic: %v", r),
			}
			outcome.Kind = outcome.Err.Kind
			outcome.Error = outcome.Err.Error()
		}
		outcome.Duration = time.Since(stageStart)
	}()

	produced, err := stage.Run(ctx, req)
	if produced != nil {
		for _, key := range produced.Keys() {
			v, _ := produced.Get(key)
			c.logger.WithFields(map[string]interface{}{
				"key":   key,
				"value": v.String(),
			}).Info(fmt.Sprintf("%s updated from %s", key, stage.Source()))
		}
		params.Merge(produced)
		outcome.Keys = produced.Keys()
	}

	if err != nil {
		outcome.Err = newStageError(stage, missingKeys(stage.Keys(), produced), err)
		outcome.Kind = outcome.Err.Kind
		outcome.Error = outcome.Err.Error()
	}

	return outcome
}

// missingKeys returns the declared keys absent from produced
func missingKeys(declared []string, produced *Params) []string {
	var missing []string
	for _, k := range declared {
		if produced == nil || !produced.Has(k) {
			missing = append(missing, k)
		}
	}
	return missing
}
