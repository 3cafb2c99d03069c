package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"mangrovewatch/adapters/redis"
	"mangrovewatch/adapters/sqlx"
	"mangrovewatch/core"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the complete application configuration
type Config struct {
	// Environment and profile settings
	Environment Environment `json:"environment" env:"MANGROVEWATCH_ENV"`
	Profile     string      `json:"profile" env:"MANGROVEWATCH_PROFILE"`

	Server       ServerConfig       `json:"server"`
	Storage      StorageConfig      `json:"storage"`
	Logging      LoggingConfig      `json:"logging"`
	Gamification GamificationConfig `json:"gamification"`
	Webhooks     WebhookConfig      `json:"webhooks"`
	Analytics    AnalyticsConfig    `json:"analytics"`
	Security     SecurityConfig     `json:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" env:"MANGROVEWATCH_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" env:"MANGROVEWATCH_SERVER_PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" env:"MANGROVEWATCH_SERVER_CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"MANGROVEWATCH_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"MANGROVEWATCH_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"MANGROVEWATCH_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"MANGROVEWATCH_SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"MANGROVEWATCH_SERVER_SHUTDOWN_TIMEOUT"`
}

// StorageConfig holds storage adapter configuration
type StorageConfig struct {
	Adapter string       `json:"adapter" env:"MANGROVEWATCH_STORAGE_ADAPTER"`
	Redis   redis.Config `json:"redis,omitempty"`
	SQL     sqlx.Config  `json:"sql,omitempty"`
	File    FileConfig   `json:"file,omitempty"`
}

// FileConfig holds JSON file storage configuration
type FileConfig struct {
	Path string `json:"path" env:"MANGROVEWATCH_STORAGE_FILE_PATH"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" env:"MANGROVEWATCH_LOG_LEVEL"`
	Format     string            `json:"format" env:"MANGROVEWATCH_LOG_FORMAT"`
	Output     string            `json:"output" env:"MANGROVEWATCH_LOG_OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty" env:"MANGROVEWATCH_LOG_ATTRIBUTES"`
}

// GamificationConfig tunes the rule tables and the leaderboard refresh.
type GamificationConfig struct {
	GuardianPoints  int64 `json:"guardian_points" env:"MANGROVEWATCH_LEVEL_GUARDIAN"`
	ProtectorPoints int64 `json:"protector_points" env:"MANGROVEWATCH_LEVEL_PROTECTOR"`
	ChampionPoints  int64 `json:"champion_points" env:"MANGROVEWATCH_LEVEL_CHAMPION"`
	CriticalBonus   int64 `json:"critical_bonus" env:"MANGROVEWATCH_CRITICAL_BONUS"`

	// DispatchMode is "sync" or "async".
	DispatchMode string `json:"dispatch_mode" env:"MANGROVEWATCH_DISPATCH_MODE"`

	// LeaderboardRefreshInterval of zero disables the scheduled refresh.
	LeaderboardRefreshInterval time.Duration `json:"leaderboard_refresh_interval" env:"MANGROVEWATCH_LEADERBOARD_REFRESH"`
	LeaderboardSize            int           `json:"leaderboard_size" env:"MANGROVEWATCH_LEADERBOARD_SIZE"`
}

// Rules builds the point and level tables described by the config.
func (g GamificationConfig) Rules() (core.Rules, error) {
	rules := core.DefaultRules()
	rules.Points.SeverityBonus[core.SeverityCritical] = g.CriticalBonus
	rules.Levels = core.LevelTable{
		{Level: core.LevelScout, MinPoints: 0},
		{Level: core.LevelGuardian, MinPoints: g.GuardianPoints},
		{Level: core.LevelProtector, MinPoints: g.ProtectorPoints},
		{Level: core.LevelChampion, MinPoints: g.ChampionPoints},
	}
	if err := rules.Levels.Validate(); err != nil {
		return core.Rules{}, fmt.Errorf("level table: %w", err)
	}
	return rules, nil
}

// Async reports whether events are dispatched on background workers.
func (g GamificationConfig) Async() bool { return g.DispatchMode == "async" }

// WebhookConfig lists endpoints that receive engine events.
type WebhookConfig struct {
	Endpoints  []string      `json:"endpoints,omitempty" env:"MANGROVEWATCH_WEBHOOK_ENDPOINTS"`
	EventTypes []string      `json:"event_types,omitempty" env:"MANGROVEWATCH_WEBHOOK_EVENTS"`
	Timeout    time.Duration `json:"timeout" env:"MANGROVEWATCH_WEBHOOK_TIMEOUT"`
}

// AnalyticsConfig controls the community rollup export.
type AnalyticsConfig struct {
	Enabled        bool          `json:"enabled" env:"MANGROVEWATCH_ANALYTICS_ENABLED"`
	ExportEndpoint string        `json:"export_endpoint,omitempty" env:"MANGROVEWATCH_ANALYTICS_ENDPOINT"`
	ExportAPIKey   string        `json:"export_api_key,omitempty" env:"MANGROVEWATCH_ANALYTICS_API_KEY"`
	ExportInterval time.Duration `json:"export_interval" env:"MANGROVEWATCH_ANALYTICS_INTERVAL"`
	BatchSize      int           `json:"batch_size" env:"MANGROVEWATCH_ANALYTICS_BATCH_SIZE"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" env:"MANGROVEWATCH_SECURITY_RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty"`
	APIKeys         []string        `json:"api_keys,omitempty" env:"MANGROVEWATCH_SECURITY_API_KEYS"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute" env:"MANGROVEWATCH_SECURITY_RATE_LIMIT_RPM"`
	BurstSize         int           `json:"burst_size" env:"MANGROVEWATCH_SECURITY_RATE_LIMIT_BURST"`
	CleanupInterval   time.Duration `json:"cleanup_interval" env:"MANGROVEWATCH_SECURITY_RATE_LIMIT_CLEANUP"`
}

// LoadDotEnv loads variables from .env style files without overriding
// variables already present in the process environment. Missing files
// are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load builds the configuration from defaults, .env and the process
// environment, then validates it.
func Load() (*Config, error) {
	src, err := newEnvSource()
	if err != nil {
		return nil, err
	}
	return applyEnv(DefaultConfig(), src)
}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	if !strings.HasSuffix(strings.ToLower(cleanPath), ".json") {
		return errors.New("config file must have .json extension")
	}

	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}

	return nil
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}

	file, err := os.Open(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Environment variables override file values
	src, err := newEnvSource()
	if err != nil {
		return nil, err
	}
	return applyEnv(cfg, src)
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter: "memory",
			Redis:   redis.DefaultConfig(),
			SQL:     sqlx.DefaultConfig(sqlx.DriverPostgres),
			File: FileConfig{
				Path: "./data/mangrovewatch.json",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Gamification: GamificationConfig{
			GuardianPoints:             100,
			ProtectorPoints:            500,
			ChampionPoints:             1000,
			CriticalBonus:              20,
			DispatchMode:               "async",
			LeaderboardRefreshInterval: time.Minute,
			LeaderboardSize:            10,
		},
		Webhooks: WebhookConfig{
			Timeout: 5 * time.Second,
		},
		Analytics: AnalyticsConfig{
			Enabled:        true,
			ExportInterval: time.Hour,
			BatchSize:      10,
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
				CleanupInterval:   5 * time.Minute,
			},
			APIKeys: []string{},
		},
	}
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}

	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"server", &c.Server},
		{"storage", &c.Storage},
		{"logging", &c.Logging},
		{"gamification", &c.Gamification},
		{"webhooks", &c.Webhooks},
		{"analytics", &c.Analytics},
		{"security", c.Security},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("%s config: %v", s.name, err))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	cfg := *c

	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = "[REDACTED]"
	}
	if cfg.Storage.Redis.Password != "" {
		cfg.Storage.Redis.Password = "[REDACTED]"
	}
	if cfg.Analytics.ExportAPIKey != "" {
		cfg.Analytics.ExportAPIKey = "[REDACTED]"
	}
	if len(cfg.Security.APIKeys) > 0 {
		cfg.Security.APIKeys = []string{"[REDACTED]"}
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
