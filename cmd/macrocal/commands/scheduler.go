package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/macrocal/internal/scheduler"
	"github.com/wonny/macrocal/internal/scheduler/jobs"
	"github.com/wonny/macrocal/pkg/logger"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `주기적 캘리브레이션 스케줄러를 시작하거나 작업을 관리합니다.

SCHEDULE_COUNTRIES의 국가마다 calibration_<iso3> 작업이
SCHEDULE_CRON 주기로 등록됩니다. DATABASE_URL이 설정되어 있으면
결과를 보관합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행 (인자 없으면 전체)

Example:
  go run ./cmd/macrocal scheduler start
  go run ./cmd/macrocal scheduler list
  go run ./cmd/macrocal scheduler run calibration_eth`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		RunE:  runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "작업 즉시 실행",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	sched, d, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer d.Close()

	sched.Start()

	PrintSuccess(os.Stderr, "Scheduler started")
	for _, jobName := range sched.GetAllJobs() {
		next, _ := sched.NextRun(jobName)
		PrintKeyValue(os.Stderr, jobName, "next run "+next.Format("2006-01-02 15:04:05"), 20)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	sched.Stop()
	printSessionSummary(sched)
	return nil
}

// printSessionSummary reports what ran while the scheduler was up
func printSessionSummary(sched *scheduler.Scheduler) {
	stats := sched.GetJobStats()

	PrintDoubleSeparator(os.Stderr)
	widths := []int{20, 6, 8, 30}
	PrintTableHeader(os.Stderr, []string{"Job", "Runs", "Success", "Last error"}, widths)
	for _, jobName := range sched.GetAllJobs() {
		lastErr := ""
		if history, err := sched.GetJobHistory(jobName); err == nil && len(history) > 0 {
			lastErr = history[len(history)-1].Error
		}
		stat := stats[jobName]
		PrintTableRow(os.Stderr, []string{
			jobName,
			fmt.Sprintf("%d", stat.TotalRuns),
			fmt.Sprintf("%.0f%%", stat.SuccessRate*100),
			lastErr,
		}, widths)
	}
	PrintDoubleSeparator(os.Stderr)
}

func listJobs(cmd *cobra.Command, args []string) error {
	sched, d, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer d.Close()

	stats := sched.GetJobStats()
	for _, jobName := range sched.GetAllJobs() {
		PrintKeyValue(os.Stdout, jobName, stats[jobName].Schedule, 20)
	}

	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	sched, d, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer d.Close()

	var results []scheduler.JobResult
	if len(args) == 1 {
		result, err := sched.RunJob(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("run job: %w", err)
		}
		results = append(results, result)
	} else {
		results = sched.RunAll(cmd.Context())
	}

	failed := 0
	for _, r := range results {
		if r.Success {
			PrintSuccess(os.Stderr, fmt.Sprintf("%s completed in %.2fs", r.JobName, r.Duration.Seconds()))
			continue
		}
		failed++
		PrintWarning(os.Stderr, fmt.Sprintf("%s: %s", r.JobName, r.Error))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(results))
	}
	return nil
}

func initScheduler() (*scheduler.Scheduler, *deps, error) {
	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Wire dependencies (database optional)
	d, err := buildDeps(cfg, log, true)
	if err != nil {
		return nil, nil, err
	}

	var archive jobs.Archiver
	if d.runs != nil {
		archive = d.runs
	}

	// 4. Create scheduler and register one job per country
	sched := scheduler.New(log)
	for _, country := range cfg.Schedule.Countries {
		job := jobs.NewCalibrationJob(country,
			cfg.Calibration.Start, cfg.Calibration.End,
			cfg.Schedule.Cron, d.calibrator, archive, d.bookHash, log)
		if err := sched.AddJob(job); err != nil {
			d.Close()
			return nil, nil, err
		}
	}

	// 5. Archive retention (only with a database and a retention window)
	if d.runs != nil && cfg.Schedule.Retention > 0 {
		if err := sched.AddJob(jobs.NewArchivePruneJob(d.runs, cfg.Schedule.Retention, cfg.Schedule.PruneCron, log)); err != nil {
			d.Close()
			return nil, nil, err
		}
	}

	return sched, d, nil
}
