package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/macrocal/internal/api"
	"github.com/wonny/macrocal/internal/api/handlers"
	"github.com/wonny/macrocal/pkg/logger"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- HTTP API 서버 시작
- 캘리브레이션 실행 엔드포인트 제공
- 보관된 실행 결과 조회 (DATABASE_URL 설정 시)

Endpoints:
  GET  /health                   - Health check
  GET  /api/calibration          - 캘리브레이션 실행 (country, start, end, update, save)
  GET  /api/calibration/latest   - 최근 보관 결과 조회 (country)
  GET  /api/calibration/runs     - 보관 결과 목록 (country, limit)
  GET  /api/reference            - 재정 기준값 조회 (country)

Example:
  go run ./cmd/macrocal api
  go run ./cmd/macrocal api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if apiPort != "" {
		cfg.Port = apiPort
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("Initializing API server")

	// 3. Wire dependencies (database optional)
	d, err := buildDeps(cfg, log, true)
	if err != nil {
		return err
	}
	defer d.Close()

	// 4. Create handler
	var runs handlers.RunStore
	var health api.HealthChecker
	if d.runs != nil {
		runs = d.runs
		health = d.db
	}
	calibrationHandler := handlers.NewCalibrationHandler(d.calibrator, runs, d.book, cfg.Calibration, log)

	// 5. Create router and server
	router := api.NewRouter(calibrationHandler, health, log)
	server := api.New(cfg, log, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	PrintSuccess(os.Stderr, fmt.Sprintf("Server running on http://localhost:%s", cfg.Port))
	PrintList(os.Stderr, []string{
		"GET  /health",
		"GET  /api/calibration",
		"GET  /api/calibration/latest",
		"GET  /api/calibration/runs",
		"GET  /api/reference",
	})

	// Wait for interrupt signal or server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
