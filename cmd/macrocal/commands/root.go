package commands

import (
	"github.com/spf13/cobra"

	"github.com/wonny/macrocal/pkg/config"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "macrocal",
	Short: "macrocal - OG 재정모형 캘리브레이션 파라미터 산출",
	Long: `macrocal Unified CLI

World Bank WDI, ILOSTAT, 재정 기준값, 위험프리미엄 회귀로부터
OG 재정모형 캘리브레이션 파라미터를 산출합니다.

Usage:
  go run ./cmd/macrocal [command]

Examples:
  go run ./cmd/macrocal calibrate --update
  go run ./cmd/macrocal calibrate --update --defaults params.json --out params.new.json
  go run ./cmd/macrocal api
  go run ./cmd/macrocal scheduler start
  go run ./cmd/macrocal test-db`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "env file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production|test)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
}

// loadConfig loads configuration and applies the global flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, err
	}

	if env != "" {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	return cfg, nil
}
