package scheduler

import (
	"context"
	"time"
)

// Job represents a scheduled job
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	// Name returns the job name, e.g. calibration_eth or archive_prune
	Name() string

	// Run executes the job
	Run(ctx context.Context) error

	// Schedule returns the cron schedule expression (with seconds)
	// Examples: "0 0 6 * * 1" (weekly refresh, Mondays at 06:00)
	//           "0 30 3 * * *" (daily archive prune)
	Schedule() string
}

// JobResult records one execution. A calibration job that archived a
// partial result still fails; Error then names the failed stages.
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// maxHistory is two years of weekly refreshes
const maxHistory = 104

// JobHistory is a bounded record of results, oldest first.
// Callers hold the scheduler lock.
type JobHistory struct {
	results []JobResult
}

// Record appends a result, dropping the oldest beyond maxHistory
func (h *JobHistory) Record(result JobResult) {
	h.results = append(h.results, result)
	if n := len(h.results); n > maxHistory {
		h.results = append(h.results[:0:0], h.results[n-maxHistory:]...)
	}
}

// Len returns the number of recorded results
func (h *JobHistory) Len() int {
	return len(h.results)
}

// Latest returns a copy of the latest n results, oldest first
func (h *JobHistory) Latest(n int) []JobResult {
	n = min(max(n, 0), len(h.results))
	out := make([]JobResult, n)
	copy(out, h.results[len(h.results)-n:])
	return out
}

// Failures returns the number of failed results
func (h *JobHistory) Failures() int {
	failed := 0
	for _, r := range h.results {
		if !r.Success {
			failed++
		}
	}
	return failed
}

// SuccessRate returns the success rate (0.0 - 1.0)
func (h *JobHistory) SuccessRate() float64 {
	if len(h.results) == 0 {
		return 0.0
	}
	return float64(len(h.results)-h.Failures()) / float64(len(h.results))
}

// LastWith returns the start of the most recent result with the given
// outcome, nil if there is none
func (h *JobHistory) LastWith(success bool) *time.Time {
	for i := len(h.results) - 1; i >= 0; i-- {
		if h.results[i].Success == success {
			t := h.results[i].StartTime
			return &t
		}
	}
	return nil
}
