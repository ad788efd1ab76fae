package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/macrocal/internal/calibration"
	"github.com/wonny/macrocal/pkg/config"
	"github.com/wonny/macrocal/pkg/logger"
)

// calibrateCmd represents the calibrate command
var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "캘리브레이션 파라미터 산출",
	Long: `외부 통계 소스로부터 캘리브레이션 파라미터를 산출하여 JSON으로 출력합니다.

이 명령어는:
- World Bank WDI에서 1인당 GDP 성장률 (g_y_annual)
- ILOSTAT에서 노동소득분배율 (gamma)
- 재정 기준값 (alpha_T, alpha_G, initial_debt_ratio, initial_foreign_debt_ratio, zeta_D)
- 위험프리미엄 회귀 (r_gov_shift, r_gov_scale)

--update 없이는 네트워크 호출 없이 빈 결과를 출력합니다.
실패한 소스의 키는 결과에서 빠지며, 기본값을 그대로 유지하면 됩니다.

Example:
  go run ./cmd/macrocal calibrate --update
  go run ./cmd/macrocal calibrate --update --country ETH --start 1990-01-01 --end 2024-12-31
  go run ./cmd/macrocal calibrate --update --check-connection
  go run ./cmd/macrocal calibrate --update --defaults params.json --out params.new.json
  go run ./cmd/macrocal calibrate --update --save`,
	RunE: runCalibrate,
}

var (
	calCountry         string
	calStart           string
	calEnd             string
	calUpdate          bool
	calCheckConnection bool
	calDefaultsFile    string
	calOutFile         string
	calSave            bool
	calSummary         bool
)

func init() {
	rootCmd.AddCommand(calibrateCmd)

	// Flags
	calibrateCmd.Flags().StringVar(&calCountry, "country", "", "ISO3 국가 코드 (default CAL_COUNTRY)")
	calibrateCmd.Flags().StringVar(&calStart, "start", "", "시작일 YYYY-MM-DD (default CAL_START)")
	calibrateCmd.Flags().StringVar(&calEnd, "end", "", "종료일 YYYY-MM-DD (default CAL_END)")
	calibrateCmd.Flags().BoolVar(&calUpdate, "update", false, "외부 소스에서 갱신 (default CAL_UPDATE_FROM_API)")
	calibrateCmd.Flags().BoolVar(&calCheckConnection, "check-connection", false, "오프라인이면 갱신하지 않음")
	calibrateCmd.Flags().StringVar(&calDefaultsFile, "defaults", "", "기본 파라미터 JSON (결과를 병합)")
	calibrateCmd.Flags().StringVar(&calOutFile, "out", "", "출력 파일 (default stdout)")
	calibrateCmd.Flags().BoolVar(&calSave, "save", false, "실행 결과를 DB에 보관")
	calibrateCmd.Flags().BoolVar(&calSummary, "summary", true, "stderr에 요약 출력")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Build request from flags over config defaults
	update := cfg.Calibration.UpdateFromAPI
	if cmd.Flags().Changed("update") {
		update = calUpdate
	}
	req, err := requestFromFlags(cfg.Calibration, calCountry, calStart, calEnd, update)
	if err != nil {
		return err
	}

	// 4. Wire dependencies
	d, err := buildDeps(cfg, log, calSave)
	if err != nil {
		return err
	}
	defer d.Close()

	if calSave && d.runs == nil {
		return fmt.Errorf("--save requires DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 4*cfg.HTTP.Timeout+time.Minute)
	defer cancel()

	// 5. Optional connectivity probe
	if req.Update && calCheckConnection && !d.probe(ctx) {
		log.Warn("Live sources unreachable, not updating from live sources")
		req.Update = false
	}

	// 6. Run
	result := d.calibrator.Run(ctx, req)

	if calSummary {
		printCalibrationSummary(os.Stderr, result)
	}

	// 7. Archive
	if calSave {
		if _, err := archiveRun(ctx, d.runs, result, d.bookHash, log); err != nil {
			return err
		}
	}

	// 8. Output
	out, err := renderOutput(result.Params, calDefaultsFile)
	if err != nil {
		return err
	}
	return writeOutput(calOutFile, out)
}

// runArchiver stores a calibration result
type runArchiver interface {
	SaveRun(ctx context.Context, result *calibration.Result, referenceHash string) error
}

// archiveRun stores result and reports whether a row was written.
// Runs without a live update carry no parameters and are skipped.
func archiveRun(ctx context.Context, runs runArchiver, result *calibration.Result, hash string, log *logger.Logger) (bool, error) {
	if !result.Request.Update {
		log.Info("Live update disabled, calibration run not archived")
		return false, nil
	}
	if err := runs.SaveRun(ctx, result, hash); err != nil {
		return false, fmt.Errorf("save run: %w", err)
	}
	log.WithField("run_id", result.RunID).Info("Calibration run archived")
	return true, nil
}

// requestFromFlags overlays the flag values on the configured defaults
func requestFromFlags(defaults config.CalibrationConfig, country, start, end string, update bool) (calibration.Request, error) {
	if country == "" {
		country = defaults.Country
	}

	startDate, endDate := defaults.Start, defaults.End
	var err error
	if start != "" {
		if startDate, err = time.Parse(config.DateLayout, start); err != nil {
			return calibration.Request{}, fmt.Errorf("invalid --start %q: expected YYYY-MM-DD", start)
		}
	}
	if end != "" {
		if endDate, err = time.Parse(config.DateLayout, end); err != nil {
			return calibration.Request{}, fmt.Errorf("invalid --end %q: expected YYYY-MM-DD", end)
		}
	}

	return calibration.NewRequest(country, startDate, endDate, update)
}

// renderOutput encodes params, merged into the defaults file when one is given
func renderOutput(params *calibration.Params, defaultsFile string) ([]byte, error) {
	if defaultsFile == "" {
		return json.MarshalIndent(params, "", "  ")
	}

	data, err := os.ReadFile(defaultsFile)
	if err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}

	var defaults map[string]json.RawMessage
	if err := json.Unmarshal(data, &defaults); err != nil {
		return nil, fmt.Errorf("decode defaults %s: %w", defaultsFile, err)
	}

	merged, err := params.MergeInto(defaults)
	if err != nil {
		return nil, err
	}

	return json.MarshalIndent(merged, "", "  ")
}

func writeOutput(path string, data []byte) error {
	data = append(data, '\n')
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// printCalibrationSummary prints a per-stage table and the derived values
func printCalibrationSummary(w io.Writer, result *calibration.Result) {
	req := result.Request

	PrintDoubleSeparator(w)
	fmt.Fprintf(w, "  Calibration %s  %s ~ %s\n", req.Country,
		req.Start.Format(config.DateLayout), req.End.Format(config.DateLayout))
	PrintSeparator(w)

	if !req.Update {
		PrintInfo(w, "Live update disabled: no parameters derived, defaults apply")
		PrintDoubleSeparator(w)
		return
	}

	widths := []int{12, 24, 20, 10}
	PrintTableHeader(w, []string{"Stage", "Source", "Status", "Duration"}, widths)
	for _, o := range result.Outcomes {
		status := "ok"
		if !o.OK() {
			status = string(o.Kind)
		}
		PrintTableRow(w, []string{o.Stage, o.Source, status, o.Duration.Round(time.Millisecond).String()}, widths)
	}

	fmt.Fprintln(w)
	for _, key := range result.Params.Keys() {
		v, _ := result.Params.Get(key)
		PrintKeyValue(w, key, v.String(), 26)
	}

	for _, o := range result.Failed() {
		PrintWarning(w, fmt.Sprintf("%s: not updating %s", o.Source, strings.Join(o.Err.Keys, ", ")))
	}
	PrintDoubleSeparator(w)
}
