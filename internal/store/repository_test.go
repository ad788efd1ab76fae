package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/macrocal/internal/calibration"
	"github.com/wonny/macrocal/pkg/config"
	"github.com/wonny/macrocal/pkg/database"
	"github.com/wonny/macrocal/pkg/logger"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	if testing.Short() || os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	repo := NewRepository(db.Pool)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo
}

func testResult(t *testing.T, country string) *calibration.Result {
	t.Helper()
	req, err := calibration.NewRequest(country,
		time.Date(1947, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		true)
	require.NoError(t, err)

	cal := calibration.New(logger.Nop(), calibration.NewFiscalRiskStage(nil, calibration.DefaultYieldModel, logger.Nop()))
	return cal.Run(context.Background(), req)
}

func TestSaveRunSkipsDisabledUpdate(t *testing.T) {
	// no pool needed: disabled runs return before touching the database
	repo := NewRepository(nil)

	result := &calibration.Result{Params: calibration.NewParams()}
	assert.NoError(t, repo.SaveRun(context.Background(), result, ""))
}

func TestSaveAndLatestRun(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	// ZZZ is never used by real runs
	result := testResult(t, "ZZZ")
	require.NoError(t, repo.SaveRun(ctx, result, "abc123"))

	latest, err := repo.LatestRun(ctx, "ZZZ")
	require.NoError(t, err)

	assert.Equal(t, result.RunID, latest.RunID)
	assert.Equal(t, "abc123", latest.ReferenceHash)
	assert.Equal(t, result.Params.Keys(), latest.Params.Keys())
	require.Len(t, latest.Outcomes, 1)
	assert.Equal(t, "fiscal_risk", latest.Outcomes[0].Stage)

	runs, err := repo.ListRuns(ctx, "ZZZ", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, runs)
}

func TestLatestRunNotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.LatestRun(context.Background(), "QQQ")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPruneRuns(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveRun(ctx, testResult(t, "ZZY"), ""))

	// a cutoff in the past leaves the fresh run alone
	_, err := repo.PruneRuns(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = repo.LatestRun(ctx, "ZZY")
	require.NoError(t, err)

	removed, err := repo.PruneRuns(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, removed, int64(1))

	_, err = repo.LatestRun(ctx, "ZZY")
	assert.ErrorIs(t, err, ErrNotFound)
}
