package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wonny/macrocal/internal/calibration"
	"github.com/wonny/macrocal/pkg/logger"
)

// Runner runs one calibration
type Runner interface {
	Run(ctx context.Context, req calibration.Request) *calibration.Result
}

// Archiver stores a calibration result
type Archiver interface {
	SaveRun(ctx context.Context, result *calibration.Result, referenceHash string) error
}

// CalibrationJob refreshes the calibration of one country from live sources
type CalibrationJob struct {
	country       string
	start, end    time.Time
	schedule      string
	runner        Runner
	archive       Archiver // nil: results are only logged
	referenceHash string
	logger        *logger.Logger

	mu   sync.RWMutex
	last *calibration.Result
}

// NewCalibrationJob creates a calibration refresh job; archive may be nil
func NewCalibrationJob(
	country string,
	start, end time.Time,
	schedule string,
	runner Runner,
	archive Archiver,
	referenceHash string,
	log *logger.Logger,
) *CalibrationJob {
	return &CalibrationJob{
		country:       strings.ToUpper(country),
		start:         start,
		end:           end,
		schedule:      schedule,
		runner:        runner,
		archive:       archive,
		referenceHash: referenceHash,
		logger:        log.WithField("job", "calibration").WithField("country", strings.ToUpper(country)),
	}
}

// Name returns the job name
func (j *CalibrationJob) Name() string {
	return "calibration_" + strings.ToLower(j.country)
}

// Schedule returns the cron schedule
func (j *CalibrationJob) Schedule() string {
	return j.schedule
}

// Last returns the result of the most recent run, nil before the first run
func (j *CalibrationJob) Last() *calibration.Result {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.last
}

// Run executes one live calibration and archives it.
// Stage failures are archived too, then reported as the job error.
func (j *CalibrationJob) Run(ctx context.Context) error {
	req, err := calibration.NewRequest(j.country, j.start, j.end, true)
	if err != nil {
		return err
	}

	result := j.runner.Run(ctx, req)

	j.mu.Lock()
	j.last = result
	j.mu.Unlock()

	if j.archive != nil {
		if err := j.archive.SaveRun(ctx, result, j.referenceHash); err != nil {
			return fmt.Errorf("archive run %s: %w", result.RunID, err)
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id": result.RunID,
		"keys":   strings.Join(result.Params.Keys(), ","),
	}).Info("Calibration refreshed")

	if failed := result.Failed(); len(failed) > 0 {
		stages := make([]string, len(failed))
		for i, o := range failed {
			stages[i] = fmt.Sprintf("%s (%s)", o.Stage, o.Kind)
		}
		return fmt.Errorf("%d of %d stages failed: %s", len(failed), len(result.Outcomes), strings.Join(stages, ", "))
	}

	return nil
}
