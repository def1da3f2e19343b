package scrub

import (
	"time"

	"github.com/google/uuid"
)

// Filter is the process-wide entry point. It owns the immutable policy and
// the shared matcher, and stamps out one Exchange per HTTP exchange. A
// Filter is safe for concurrent use; reconfiguration means building a new
// Filter, never mutating an existing one.
type Filter struct {
	cfg     Config
	matcher *Matcher
	logger  *Logger
}

// NewFilter builds a filter from the given policy. Zero values are filled
// with the documented defaults.
func NewFilter(cfg Config) *Filter {
	if cfg.BypassPaths == nil {
		cfg.BypassPaths = DefaultConfig().BypassPaths
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	return &Filter{
		cfg:     cfg,
		matcher: NewMatcher(cfg.Patterns),
		logger:  newLogger(ParseLevel(cfg.LogLevel), cfg.Logger),
	}
}

// Config returns a copy of the active policy.
func (f *Filter) Config() Config {
	return f.cfg
}

// Matcher returns the shared pattern matcher.
func (f *Filter) Matcher() *Matcher {
	return f.matcher
}

// NewExchange creates the per-request filter state bound to one host
// exchange. The returned value must only be driven by that exchange's
// callbacks, in delivery order.
func (f *Filter) NewExchange(host Host) *Exchange {
	return &Exchange{
		id:      uuid.NewString(),
		f:       f,
		host:    host,
		started: time.Now(),
	}
}
