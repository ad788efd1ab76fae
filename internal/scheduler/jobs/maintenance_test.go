package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/macrocal/pkg/logger"
)

type prunerSpy struct {
	cutoff  time.Time
	removed int64
	err     error
}

func (p *prunerSpy) PruneRuns(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	return p.removed, p.err
}

func TestArchivePruneJob(t *testing.T) {
	spy := &prunerSpy{removed: 3}
	job := NewArchivePruneJob(spy, 30*24*time.Hour, "0 30 3 * * *", logger.Nop())
	job.now = func() time.Time { return time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC) }

	assert.Equal(t, "archive_prune", job.Name())
	assert.Equal(t, "0 30 3 * * *", job.Schedule())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), spy.cutoff)
}

func TestArchivePruneJobError(t *testing.T) {
	spy := &prunerSpy{err: errors.New("connection reset")}
	job := NewArchivePruneJob(spy, time.Hour, "@daily", logger.Nop())

	assert.ErrorContains(t, job.Run(context.Background()), "connection reset")
}
