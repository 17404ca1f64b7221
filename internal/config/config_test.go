package config

import (
	"strings"
	"testing"
)

func TestEnvBoolValid(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	v, err := envBool("TEST_BOOL", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Fatal("expected true")
	}
}

func TestEnvBoolFallback(t *testing.T) {
	v, err := envBool("TEST_BOOL_MISSING", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Fatal("expected fallback true")
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.StoreBackend != "memory" {
		t.Fatalf("expected default store backend memory, got %s", cfg.StoreBackend)
	}
	if cfg.SigningKeyPath != "data/aip_signing_key.hex" {
		t.Fatalf("unexpected default signing key path: %s", cfg.SigningKeyPath)
	}
}

func TestLoadFailsOnInvalidStoreBackend(t *testing.T) {
	t.Setenv("AIP_STORE_BACKEND", "bogus")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with an unknown AIP_STORE_BACKEND")
	}
	if !strings.Contains(err.Error(), "AIP_STORE_BACKEND") {
		t.Fatalf("error should mention AIP_STORE_BACKEND, got: %s", err)
	}
}

func TestLoadFailsWhenPostgresBackendMissingURL(t *testing.T) {
	t.Setenv("AIP_STORE_BACKEND", "postgres")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail without AIP_DATABASE_URL")
	}
	if !strings.Contains(err.Error(), "AIP_DATABASE_URL") {
		t.Fatalf("error should mention AIP_DATABASE_URL, got: %s", err)
	}
}

func TestLoadFailsOnInvalidBool(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "not-a-bool")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with an invalid OTEL_EXPORTER_OTLP_INSECURE")
	}
	if !strings.Contains(err.Error(), "OTEL_EXPORTER_OTLP_INSECURE") {
		t.Fatalf("error should mention the bad variable, got: %s", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]string{
		"debug": "debug",
		"WARN":  "warn",
		"error": "error",
		"":      "info",
		"trace": "info",
	}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %q, want %q", in, got, want)
		}
	}
}
