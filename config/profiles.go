package config

import (
	"fmt"
	"time"
)

// profiles adjust DefaultConfig for each deployment environment.
var profiles = map[string]func(*Config){
	"development": func(c *Config) {
		c.Environment = EnvDevelopment
		c.Logging.Level = "debug"
		c.Logging.Format = "text"
	},
	"testing": func(c *Config) {
		c.Environment = EnvTesting
		c.Logging.Level = "warn"
		c.Gamification.DispatchMode = "sync"
		c.Gamification.LeaderboardRefreshInterval = 0
		c.Analytics.Enabled = false
	},
	"staging": func(c *Config) {
		c.Environment = EnvStaging
		c.Storage.Adapter = "redis"
		c.Security.EnableRateLimit = true
		c.Gamification.LeaderboardRefreshInterval = 5 * time.Minute
	},
	"production": func(c *Config) {
		c.Environment = EnvProduction
		c.Storage.Adapter = "sql"
		c.Server.CORSOrigin = ""
		c.Security.EnableRateLimit = true
		c.Security.RateLimit.RequestsPerMinute = 120
		c.Security.RateLimit.BurstSize = 20
		c.Gamification.LeaderboardRefreshInterval = 5 * time.Minute
	},
}

// Profiles returns the names of the built-in profiles.
func Profiles() []string {
	return []string{"development", "testing", "staging", "production"}
}

// LoadProfile returns the named built-in profile with environment
// overrides applied.
func LoadProfile(name string) (*Config, error) {
	apply, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q", name)
	}
	cfg := DefaultConfig()
	cfg.Profile = name
	apply(cfg)
	src, err := newEnvSource()
	if err != nil {
		return nil, err
	}
	return applyEnv(cfg, src)
}
