package scrub

import (
	"errors"
	"log"

	"github.com/tidwall/gjson"
)

const defaultMaxBodyBytes = 1 << 20

// ErrBadConfig reports that the supplied configuration could not be parsed
// and defaults were substituted. It is never fatal.
var ErrBadConfig = errors.New("malformed filter configuration, using defaults")

// Patterns selects which detectors a matcher applies.
type Patterns struct {
	CreditCard bool
	SSN        bool
	Email      bool
	PhoneUS    bool
}

// Config is the process-wide filter policy. It is built once, shared
// read-only by every exchange, and replaced wholesale on reconfiguration.
type Config struct {
	LogLevel     string
	Patterns     Patterns
	BypassPaths  []string
	MaxBodyBytes int

	// Logger receives filter diagnostics. Defaults to a discard logger.
	Logger *log.Logger
	// Audit, when set, receives one event per redacted exchange.
	Audit *Auditor
}

// DefaultConfig returns the documented defaults: card, SSN and email
// detection on, US phone off, health and metrics paths bypassed, 1 MiB
// body ceiling.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Patterns: Patterns{
			CreditCard: true,
			SSN:        true,
			Email:      true,
			PhoneUS:    false,
		},
		BypassPaths:  []string{"/health", "/metrics"},
		MaxBodyBytes: defaultMaxBodyBytes,
	}
}

// ParseConfig reads a JSON policy document. Every field is optional and
// falls back to its default; a document that is not valid JSON yields the
// full default config and ErrBadConfig so the caller can log it.
func ParseConfig(raw []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(raw) == 0 {
		return cfg, nil
	}
	if !gjson.ValidBytes(raw) {
		return cfg, ErrBadConfig
	}

	if v := gjson.GetBytes(raw, "log_level"); v.Exists() {
		cfg.LogLevel = v.String()
	}

	for key, field := range map[string]*bool{
		"patterns.credit_card": &cfg.Patterns.CreditCard,
		"patterns.ssn":         &cfg.Patterns.SSN,
		"patterns.email":       &cfg.Patterns.Email,
		"patterns.phone_us":    &cfg.Patterns.PhoneUS,
	} {
		if v := gjson.GetBytes(raw, key); v.Exists() {
			*field = v.Bool()
		}
	}

	if v := gjson.GetBytes(raw, "bypass_paths"); v.IsArray() {
		paths := make([]string, 0, len(v.Array()))
		for _, item := range v.Array() {
			if item.Type == gjson.String && item.String() != "" {
				paths = append(paths, item.String())
			}
		}
		cfg.BypassPaths = paths
	}

	if v := gjson.GetBytes(raw, "max_body_size_bytes"); v.Exists() {
		if n := v.Int(); n > 0 {
			cfg.MaxBodyBytes = int(n)
		}
	}

	return cfg, nil
}
