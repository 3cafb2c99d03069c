package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrSecretNotFound is returned when a secret store has no value for a key.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore resolves credentials kept out of config files.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	GetWithDefault(ctx context.Context, key, def string) string
}

// EnvironmentSecretStore reads secrets from process environment variables.
type EnvironmentSecretStore struct{}

func NewEnvironmentSecretStore() *EnvironmentSecretStore { return &EnvironmentSecretStore{} }

func (EnvironmentSecretStore) Get(_ context.Context, key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	}
	return v, nil
}

func (s EnvironmentSecretStore) GetWithDefault(ctx context.Context, key, def string) string {
	v, err := s.Get(ctx, key)
	if err != nil {
		return def
	}
	return v
}

// Secret keys consulted by ApplySecrets.
const (
	SecretSQLDSN          = "MANGROVEWATCH_SECRET_SQL_DSN"
	SecretRedisPassword   = "MANGROVEWATCH_SECRET_REDIS_PASSWORD"
	SecretAnalyticsAPIKey = "MANGROVEWATCH_SECRET_ANALYTICS_API_KEY"
	SecretAPIKeys         = "MANGROVEWATCH_SECRET_API_KEYS"
)

// ApplySecrets fills credentials from store. A configured Redis password,
// analytics key or API key list wins over the store; a stored SQL DSN
// replaces the configured one. Missing secrets are not an error.
func (c *Config) ApplySecrets(ctx context.Context, store SecretStore) error {
	fill := func(dst *string, key string) error {
		if *dst != "" {
			return nil
		}
		v, err := store.Get(ctx, key)
		switch {
		case errors.Is(err, ErrSecretNotFound):
			return nil
		case err != nil:
			return fmt.Errorf("secret %s: %w", key, err)
		}
		*dst = v
		return nil
	}
	if err := fill(&c.Storage.Redis.Password, SecretRedisPassword); err != nil {
		return err
	}
	if err := fill(&c.Analytics.ExportAPIKey, SecretAnalyticsAPIKey); err != nil {
		return err
	}
	if v := store.GetWithDefault(ctx, SecretSQLDSN, ""); v != "" {
		c.Storage.SQL.DSN = v
	}
	if len(c.Security.APIKeys) == 0 {
		for _, k := range strings.Split(store.GetWithDefault(ctx, SecretAPIKeys, ""), ",") {
			if k = strings.TrimSpace(k); k != "" {
				c.Security.APIKeys = append(c.Security.APIKeys, k)
			}
		}
	}
	return nil
}
