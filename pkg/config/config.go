package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DateLayout is the layout used for every date-valued setting
const DateLayout = "2006-01-02"

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production, test

	// Database (optional, calibration run archive)
	Database DatabaseConfig

	// Redis (optional, raw series cache)
	Redis RedisConfig

	// External sources
	WDI  WDIConfig
	ILO  ILOConfig
	HTTP HTTPConfig

	// Calibration defaults
	Calibration CalibrationConfig

	// Scheduler
	Schedule ScheduleConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Enabled reports whether a database URL was configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	CacheTTL time.Duration
}

// WDIConfig holds World Bank World Development Indicators API configuration
type WDIConfig struct {
	BaseURL string
}

// ILOConfig holds ILOSTAT data API configuration
type ILOConfig struct {
	BaseURL   string
	UserAgent string
}

// HTTPConfig holds outbound HTTP settings shared by every source client
type HTTPConfig struct {
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables throttling
}

// CalibrationConfig holds the default calibration request
type CalibrationConfig struct {
	Country       string
	Start         time.Time
	End           time.Time
	UpdateFromAPI bool
	ReferenceFile string // optional YAML overriding fiscal reference constants
}

// ScheduleConfig holds periodic recalibration settings
type ScheduleConfig struct {
	Cron      string
	Countries []string

	// Archive pruning
	PruneCron string
	Retention time.Duration // 0 keeps every run
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	start, err := getEnvAsDate("CAL_START", "1947-01-01")
	if err != nil {
		return nil, err
	}
	end, err := getEnvAsDate("CAL_END", "2024-12-31")
	if err != nil {
		return nil, err
	}

	country := strings.ToUpper(getEnv("CAL_COUNTRY", "ETH"))

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 5),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			CacheTTL: getEnvAsDuration("REDIS_CACHE_TTL", "24h"),
		},

		// External sources
		WDI: WDIConfig{
			BaseURL: getEnv("WDI_BASE_URL", "https://api.worldbank.org/v2"),
		},
		ILO: ILOConfig{
			BaseURL:   getEnv("ILO_BASE_URL", "https://rplumber.ilo.org"),
			UserAgent: getEnv("ILO_USER_AGENT", defaultUserAgent),
		},
		HTTP: HTTPConfig{
			Timeout:   getEnvAsDuration("HTTP_TIMEOUT", "30s"),
			RateLimit: getEnvAsFloat("HTTP_RATE_LIMIT", 5),
		},

		// Calibration
		Calibration: CalibrationConfig{
			Country:       country,
			Start:         start,
			End:           end,
			UpdateFromAPI: getEnvAsBool("CAL_UPDATE_FROM_API", false),
			ReferenceFile: getEnv("FISCAL_REFERENCE_FILE", ""),
		},

		// Scheduler
		Schedule: ScheduleConfig{
			Cron:      getEnv("SCHEDULE_CRON", "0 0 6 * * 1"), // Mondays 06:00
			Countries: getEnvAsList("SCHEDULE_COUNTRIES", []string{country}),
			PruneCron: getEnv("ARCHIVE_PRUNE_CRON", "0 30 3 * * *"), // daily 03:30
			Retention: getEnvAsDuration("ARCHIVE_RETENTION", "0s"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile loads an explicit env file before reading the environment.
// An empty path behaves like Load.
func LoadFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return Load()
}

// validate checks if configuration values are consistent
func (c *Config) validate() error {
	switch c.Env {
	case "development", "staging", "production", "test":
	default:
		return fmt.Errorf("ENV must be one of: development, staging, production, test")
	}

	if c.Calibration.Start.After(c.Calibration.End) {
		return fmt.Errorf("CAL_START (%s) must not be after CAL_END (%s)",
			c.Calibration.Start.Format(DateLayout), c.Calibration.End.Format(DateLayout))
	}

	if c.Schedule.Retention < 0 {
		return fmt.Errorf("ARCHIVE_RETENTION must not be negative")
	}

	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("HTTP_RATE_LIMIT must not be negative")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsDate fails loudly: a silently defaulted calibration window is worse than none
func getEnvAsDate(key string, defaultValue string) (time.Time, error) {
	valueStr := getEnv(key, defaultValue)

	t, err := time.Parse(DateLayout, valueStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: invalid date %q (expected YYYY-MM-DD): %w", key, valueStr, err)
	}

	return t, nil
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	if len(out) == 0 {
		return defaultValue
	}

	return out
}
