package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/macrocal/internal/calibration"
	"github.com/wonny/macrocal/internal/external/ilostat"
	"github.com/wonny/macrocal/pkg/logger"
)

type archiveSpy struct {
	saved []*calibration.Result
	hash  string
	err   error
}

func (a *archiveSpy) SaveRun(_ context.Context, result *calibration.Result, hash string) error {
	a.saved = append(a.saved, result)
	a.hash = hash
	return a.err
}

type downSource struct{}

func (downSource) FetchIndicator(context.Context, ilostat.Query) ([]ilostat.Observation, error) {
	return nil, errors.New("dial tcp: connection refused")
}

var (
	windowStart = time.Date(1947, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
)

func offlineCalibrator() *calibration.Calibrator {
	return calibration.New(logger.Nop(), calibration.NewFiscalRiskStage(nil, calibration.DefaultYieldModel, logger.Nop()))
}

func TestCalibrationJob(t *testing.T) {
	archive := &archiveSpy{}
	job := NewCalibrationJob("eth", windowStart, windowEnd, "0 0 6 * * 1", offlineCalibrator(), archive, "hash", logger.Nop())

	assert.Equal(t, "calibration_eth", job.Name())
	assert.Equal(t, "0 0 6 * * 1", job.Schedule())
	assert.Nil(t, job.Last())

	require.NoError(t, job.Run(context.Background()))

	require.Len(t, archive.saved, 1)
	assert.Equal(t, "hash", archive.hash)
	assert.Equal(t, "ETH", archive.saved[0].Request.Country)
	assert.True(t, archive.saved[0].Request.Update)
	assert.True(t, job.Last().Params.Has(calibration.KeyRGovShift))
}

func TestCalibrationJobReportsStageFailures(t *testing.T) {
	cal := calibration.New(logger.Nop(),
		calibration.NewLaborShareStage(downSource{}),
		calibration.NewFiscalRiskStage(nil, calibration.DefaultYieldModel, logger.Nop()),
	)
	archive := &archiveSpy{}
	job := NewCalibrationJob("ETH", windowStart, windowEnd, "@weekly", cal, archive, "", logger.Nop())

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "labor_share")

	// partial results are still archived
	require.Len(t, archive.saved, 1)
	assert.False(t, archive.saved[0].Params.Has(calibration.KeyLaborShare))
	assert.True(t, archive.saved[0].Params.Has(calibration.KeyInitialDebtRatio))
}

func TestCalibrationJobArchiveFailure(t *testing.T) {
	archive := &archiveSpy{err: errors.New("connection reset")}
	job := NewCalibrationJob("ETH", windowStart, windowEnd, "@weekly", offlineCalibrator(), archive, "", logger.Nop())

	assert.Error(t, job.Run(context.Background()))
}

func TestCalibrationJobWithoutArchive(t *testing.T) {
	job := NewCalibrationJob("ETH", windowStart, windowEnd, "@weekly", offlineCalibrator(), nil, "", logger.Nop())
	assert.NoError(t, job.Run(context.Background()))
}

func TestCalibrationJobInvalidCountry(t *testing.T) {
	job := NewCalibrationJob("ETHIOPIA", windowStart, windowEnd, "@weekly", offlineCalibrator(), nil, "", logger.Nop())
	assert.Error(t, job.Run(context.Background()))
}

func TestCalibrationJobLastConcurrent(t *testing.T) {
	job := NewCalibrationJob("ETH", windowStart, windowEnd, "@weekly", offlineCalibrator(), nil, "", logger.Nop())

	// cron and a manual `scheduler run` may overlap with readers of Last
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, job.Run(context.Background()))
		}()
		go func() {
			defer wg.Done()
			if last := job.Last(); last != nil {
				assert.Equal(t, "ETH", last.Request.Country)
			}
		}()
	}
	wg.Wait()

	require.NotNil(t, job.Last())
}
