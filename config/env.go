package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every environment variable the server reads.
const EnvPrefix = "MANGROVEWATCH_"

// Variables read outside the Config struct.
const (
	EnvConfigFile = EnvPrefix + "CONFIG_FILE"
	EnvProfile    = EnvPrefix + "PROFILE"
	envSecretPfx  = EnvPrefix + "SECRET_"
)

var durationType = reflect.TypeOf(time.Duration(0))

// envSource resolves MANGROVEWATCH_ settings from the process environment,
// falling back to values read from dotenv files. Dotenv values never leak
// into the process environment.
type envSource struct {
	dotenv map[string]string
	read   map[string]struct{}
}

// newEnvSource reads the given dotenv files (".env" when none are given).
// Missing files are skipped; the first file defining a key wins.
func newEnvSource(files ...string) (*envSource, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	src := &envSource{dotenv: map[string]string{}, read: map[string]struct{}{}}
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range vals {
			if _, dup := src.dotenv[k]; !dup {
				src.dotenv[k] = v
			}
		}
	}
	return src, nil
}

func (s *envSource) lookup(key string) (string, bool) {
	s.read[key] = struct{}{}
	if v := os.Getenv(key); v != "" {
		return v, true
	}
	v := s.dotenv[key]
	return v, v != ""
}

// apply overrides cfg fields whose env tag resolves to a value.
func (s *envSource) apply(cfg *Config) error {
	return s.applyStruct(reflect.ValueOf(cfg).Elem())
}

func (s *envSource) applyStruct(val reflect.Value) error {
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field, sf := val.Field(i), typ.Field(i)
		if !sf.IsExported() {
			continue
		}
		if field.Kind() == reflect.Struct {
			if err := s.applyStruct(field); err != nil {
				return err
			}
			continue
		}
		key := sf.Tag.Get("env")
		if key == "" {
			continue
		}
		raw, ok := s.lookup(key)
		if !ok {
			continue
		}
		if err := setField(field, raw); err != nil {
			return fmt.Errorf("%s (%s): %w", key, sf.Name, err)
		}
	}
	return nil
}

// unknown lists MANGROVEWATCH_ variables, from the process or the dotenv
// files, that no config field read. Secrets and the loader selectors are
// consumed elsewhere and never reported.
func (s *envSource) unknown() []string {
	keys := make(map[string]struct{}, len(s.dotenv))
	for k := range s.dotenv {
		keys[k] = struct{}{}
	}
	for _, kv := range os.Environ() {
		k, _, _ := strings.Cut(kv, "=")
		keys[k] = struct{}{}
	}

	var out []string
	for k := range keys {
		if !strings.HasPrefix(k, EnvPrefix) || strings.HasPrefix(k, envSecretPfx) {
			continue
		}
		if k == EnvConfigFile || k == EnvProfile {
			continue
		}
		if _, ok := s.read[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func setField(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q", raw)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", raw)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer %q", raw)
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid number %q", raw)
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported list of %s", field.Type().Elem())
		}
		items := splitList(raw)
		list := reflect.MakeSlice(field.Type(), len(items), len(items))
		for i, item := range items {
			list.Index(i).SetString(item)
		}
		field.Set(list)
	case reflect.Map:
		if field.Type().Key().Kind() != reflect.String || field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported map %s", field.Type())
		}
		m := reflect.MakeMapWithSize(field.Type(), 4)
		for _, pair := range splitList(raw) {
			k, v, ok := strings.Cut(pair, "=")
			if !ok || strings.TrimSpace(k) == "" {
				return fmt.Errorf("map entry %q is not key=value", pair)
			}
			m.SetMapIndex(reflect.ValueOf(strings.TrimSpace(k)).Convert(field.Type().Key()),
				reflect.ValueOf(strings.TrimSpace(v)).Convert(field.Type().Elem()))
		}
		field.Set(m)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// splitList splits a comma separated value, dropping empty items.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// applyEnv layers the environment over cfg, warns about unrecognised
// MANGROVEWATCH_ variables and validates the result.
func applyEnv(cfg *Config, src *envSource) (*Config, error) {
	if err := src.apply(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if unknown := src.unknown(); len(unknown) > 0 {
		slog.Warn("ignoring unknown configuration variables", "variables", unknown)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
