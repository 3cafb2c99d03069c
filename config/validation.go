package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"mangrovewatch/adapters/sqlx"
	"mangrovewatch/core"
)

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	var errs []string

	if s.Address == "" {
		errs = append(errs, "address cannot be empty")
	}

	if s.ReadTimeout <= 0 {
		errs = append(errs, "read_timeout must be positive")
	}

	if s.WriteTimeout <= 0 {
		errs = append(errs, "write_timeout must be positive")
	}

	if s.IdleTimeout <= 0 {
		errs = append(errs, "idle_timeout must be positive")
	}

	if s.ReadHeaderTimeout <= 0 {
		errs = append(errs, "read_header_timeout must be positive")
	}

	if s.ShutdownTimeout <= 0 {
		errs = append(errs, "shutdown_timeout must be positive")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	var errs []string

	validAdapters := []string{"memory", "redis", "sql", "file"}
	isValidAdapter := false
	for _, adapter := range validAdapters {
		if s.Adapter == adapter {
			isValidAdapter = true
			break
		}
	}

	if !isValidAdapter {
		errs = append(errs, fmt.Sprintf("adapter must be one of: %s", strings.Join(validAdapters, ", ")))
	}

	// Validate adapter-specific configs
	switch s.Adapter {
	case "file":
		if err := s.File.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("file config: %v", err))
		}
	case "redis":
		if s.Redis.Addr == "" {
			errs = append(errs, "redis addr cannot be empty")
		}
	case "sql":
		if s.SQL.Driver != sqlx.DriverPostgres && s.SQL.Driver != sqlx.DriverMySQL {
			errs = append(errs, fmt.Sprintf("sql driver must be one of: %s, %s", sqlx.DriverPostgres, sqlx.DriverMySQL))
		}
		if s.SQL.DSN == "" {
			errs = append(errs, "sql dsn cannot be empty")
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Validate validates file storage configuration
func (f *FileConfig) Validate() error {
	if f.Path == "" {
		return errors.New("path cannot be empty")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	var errs []string

	validLevels := []string{"debug", "info", "warn", "error"}
	isValidLevel := false
	for _, level := range validLevels {
		if l.Level == level {
			isValidLevel = true
			break
		}
	}

	if !isValidLevel {
		errs = append(errs, fmt.Sprintf("level must be one of: %s", strings.Join(validLevels, ", ")))
	}

	validFormats := []string{"json", "text"}
	isValidFormat := false
	for _, format := range validFormats {
		if l.Format == format {
			isValidFormat = true
			break
		}
	}

	if !isValidFormat {
		errs = append(errs, fmt.Sprintf("format must be one of: %s", strings.Join(validFormats, ", ")))
	}

	validOutputs := []string{"stdout", "stderr"}
	isValidOutput := false
	for _, output := range validOutputs {
		if l.Output == output {
			isValidOutput = true
			break
		}
	}

	if !isValidOutput {
		errs = append(errs, fmt.Sprintf("output must be one of: %s", strings.Join(validOutputs, ", ")))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Validate checks the level thresholds and leaderboard settings.
func (g *GamificationConfig) Validate() error {
	var errs []string

	if _, err := g.Rules(); err != nil {
		errs = append(errs, err.Error())
	}
	if g.CriticalBonus < 0 {
		errs = append(errs, "critical_bonus cannot be negative")
	}
	if g.DispatchMode != "sync" && g.DispatchMode != "async" {
		errs = append(errs, "dispatch_mode must be one of: sync, async")
	}
	if g.LeaderboardRefreshInterval < 0 {
		errs = append(errs, "leaderboard_refresh_interval cannot be negative")
	}
	if g.LeaderboardSize <= 0 {
		errs = append(errs, "leaderboard_size must be positive")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates webhook endpoints and event names.
func (w *WebhookConfig) Validate() error {
	var errs []string

	for i, endpoint := range w.Endpoints {
		if err := validateHTTPURL(endpoint); err != nil {
			errs = append(errs, fmt.Sprintf("endpoints[%d]: %v", i, err))
		}
	}
	known := make(map[core.EventType]struct{})
	for _, t := range core.EventTypes() {
		known[t] = struct{}{}
	}
	for _, name := range w.EventTypes {
		if _, ok := known[core.EventType(name)]; !ok {
			errs = append(errs, fmt.Sprintf("unknown event type %q", name))
		}
	}
	if len(w.Endpoints) > 0 && w.Timeout <= 0 {
		errs = append(errs, "timeout must be positive when endpoints are set")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates analytics export configuration
func (a *AnalyticsConfig) Validate() error {
	var errs []string

	if a.Enabled {
		if a.ExportInterval <= 0 {
			errs = append(errs, "export_interval must be positive when analytics are enabled")
		}
		if a.BatchSize <= 0 {
			errs = append(errs, "batch_size must be positive when analytics are enabled")
		}
		if a.ExportEndpoint != "" {
			if err := validateHTTPURL(a.ExportEndpoint); err != nil {
				errs = append(errs, fmt.Sprintf("export_endpoint: %v", err))
			}
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}
