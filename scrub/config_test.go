package scrub

import (
	"errors"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Patterns.CreditCard || !cfg.Patterns.SSN || !cfg.Patterns.Email {
		t.Fatalf("card, ssn and email must default on: %+v", cfg.Patterns)
	}
	if cfg.Patterns.PhoneUS {
		t.Fatal("phone detection must default off")
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Fatalf("max body = %d", cfg.MaxBodyBytes)
	}
	if len(cfg.BypassPaths) != 2 || cfg.BypassPaths[0] != "/health" || cfg.BypassPaths[1] != "/metrics" {
		t.Fatalf("bypass paths = %v", cfg.BypassPaths)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
}

func TestParseConfigEmpty(t *testing.T) {
	cfg, err := ParseConfig(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Fatalf("max body = %d", cfg.MaxBodyBytes)
	}
}

func TestParseConfigMalformed(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"patterns": `))
	if !errors.Is(err, ErrBadConfig) {
		t.Fatalf("expected ErrBadConfig, got %v", err)
	}
	if !cfg.Patterns.SSN || cfg.Patterns.PhoneUS {
		t.Fatalf("malformed config must yield defaults: %+v", cfg.Patterns)
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Fatalf("max body = %d", cfg.MaxBodyBytes)
	}
}

func TestParseConfigFull(t *testing.T) {
	raw := []byte(`{
		"log_level": "debug",
		"patterns": {"credit_card": false, "phone_us": true},
		"bypass_paths": ["/ping", "/static/*"],
		"max_body_size_bytes": 4096
	}`)

	cfg, err := ParseConfig(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if cfg.Patterns.CreditCard {
		t.Fatal("credit_card should be disabled")
	}
	if !cfg.Patterns.SSN || !cfg.Patterns.Email {
		t.Fatal("unmentioned patterns keep their defaults")
	}
	if !cfg.Patterns.PhoneUS {
		t.Fatal("phone_us should be enabled")
	}
	if len(cfg.BypassPaths) != 2 || cfg.BypassPaths[0] != "/ping" {
		t.Fatalf("bypass paths = %v", cfg.BypassPaths)
	}
	if cfg.MaxBodyBytes != 4096 {
		t.Fatalf("max body = %d", cfg.MaxBodyBytes)
	}
}

func TestParseConfigIgnoresBadValues(t *testing.T) {
	raw := []byte(`{
		"bypass_paths": ["/ok", 42, ""],
		"max_body_size_bytes": -5
	}`)

	cfg, err := ParseConfig(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.BypassPaths) != 1 || cfg.BypassPaths[0] != "/ok" {
		t.Fatalf("bypass paths = %v", cfg.BypassPaths)
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Fatalf("nonpositive ceiling must fall back, got %d", cfg.MaxBodyBytes)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"trace", LevelTrace},
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"TRACE", LevelTrace},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
