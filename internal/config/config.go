// Package config loads and validates aip-core's runtime configuration from
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds every environment-derived setting an aip-core entrypoint
// needs.
type Config struct {
	// Signing key.
	SigningKeyPath string // hex-encoded 32-byte Ed25519 seed, as written by cmd/aip-genkey.
	MasterSecret   string // hex, for internal/keyderive; when set, the signing key is derived instead of read from SigningKeyPath.

	// Storage backend: "memory" (default), "sqlite", or "postgres".
	StoreBackend string
	SQLitePath   string
	DatabaseURL  string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// MCP server settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible
// defaults. Returns an error if any environment variable contains an
// unparseable value; missing variables fall back to their defaults.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		SigningKeyPath: envStr("AIP_SIGNING_KEY_PATH", "data/aip_signing_key.hex"),
		MasterSecret:   envStr("AIP_MASTER_SECRET", ""),
		StoreBackend:   envStr("AIP_STORE_BACKEND", "memory"),
		SQLitePath:     envStr("AIP_SQLITE_PATH", "data/aip.db"),
		DatabaseURL:    envStr("AIP_DATABASE_URL", ""),
		OTELEndpoint:   envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:    envStr("OTEL_SERVICE_NAME", "aip-core"),
		LogLevel:       envStr("AIP_LOG_LEVEL", "info"),
	}

	cfg.OTELInsecure, errs = collectBool(errs, "OTEL_EXPORTER_OTLP_INSECURE", false)

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return Config{}, fmt.Errorf("config: invalid environment variables:\n  %s", strings.Join(msgs, "\n  "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the selected store backend has what it needs.
func (c Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case "memory", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("config: AIP_STORE_BACKEND %q must be one of memory, sqlite, postgres", c.StoreBackend))
	}
	if c.StoreBackend == "sqlite" && c.SQLitePath == "" {
		errs = append(errs, errors.New("config: AIP_SQLITE_PATH is required when AIP_STORE_BACKEND=sqlite"))
	}
	if c.StoreBackend == "postgres" && c.DatabaseURL == "" {
		errs = append(errs, errors.New("config: AIP_DATABASE_URL is required when AIP_STORE_BACKEND=postgres"))
	}

	return errors.Join(errs...)
}

func collectBool(errs []error, key string, fallback bool) (bool, []error) {
	v, err := envBool(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

// ParseLogLevel maps a config log level string to a time.Duration-free slog
// level name, mirroring the convention used across aip-core's entrypoints.
func ParseLogLevel(raw string) string {
	switch strings.ToLower(raw) {
	case "debug", "warn", "error":
		return strings.ToLower(raw)
	default:
		return "info"
	}
}
