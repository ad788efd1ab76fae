package jobs

import (
	"context"
	"time"

	"github.com/wonny/macrocal/pkg/logger"
)

// Pruner deletes archived runs older than a cutoff
type Pruner interface {
	PruneRuns(ctx context.Context, cutoff time.Time) (int64, error)
}

// ArchivePruneJob removes archived calibration runs past the retention window
type ArchivePruneJob struct {
	archive   Pruner
	retention time.Duration
	schedule  string
	logger    *logger.Logger

	now func() time.Time
}

// NewArchivePruneJob creates a new archive prune job
func NewArchivePruneJob(archive Pruner, retention time.Duration, schedule string, log *logger.Logger) *ArchivePruneJob {
	return &ArchivePruneJob{
		archive:   archive,
		retention: retention,
		schedule:  schedule,
		logger:    log.WithField("job", "archive_prune"),
		now:       time.Now,
	}
}

// Name returns the job name
func (j *ArchivePruneJob) Name() string {
	return "archive_prune"
}

// Schedule returns the cron schedule
func (j *ArchivePruneJob) Schedule() string {
	return j.schedule
}

// Run executes the archive cleanup
func (j *ArchivePruneJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled archive prune")

	cutoff := j.now().Add(-j.retention)
	count, err := j.archive.PruneRuns(ctx, cutoff)
	if err != nil {
		return err
	}

	if count > 0 {
		j.logger.WithFields(map[string]interface{}{
			"removed": count,
			"cutoff":  cutoff.Format(time.RFC3339),
		}).Info("Archive prune completed")
	}

	return nil
}
