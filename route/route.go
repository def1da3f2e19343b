// Package route evaluates declarative routing rules over request headers
// and cookies to pick an upstream target for A/B and canary traffic.
package route

import (
	"net/http"
	"regexp"
	"sort"
	"strings"
)

// Request headers injected with the routing decision.
const (
	HeaderRoutedBy    = "X-Routed-By"
	HeaderRouteReason = "X-Route-Reason"

	routedByValue = "edge-router"
)

// Condition sources and operators.
const (
	SourceHeader = "header"
	SourceCookie = "cookie"

	OpEquals   = "equals"
	OpContains = "contains"
	OpRegex    = "regex"
)

// Condition is one predicate of a rule. All of a rule's conditions must
// match for the rule to apply.
type Condition struct {
	Source   string
	Key      string
	Operator string
	Value    string

	// re is compiled once at config-parse time. A condition whose regex
	// failed to compile can never match.
	re *regexp.Regexp
}

// Rule maps a condition set to an upstream target. Lower priority numbers
// win.
type Rule struct {
	Name       string
	Priority   int
	Conditions []Condition
	Target     string
	AddHeaders map[string]string
}

// Config holds the rule set and the fallback target.
type Config struct {
	DefaultTarget string
	Rules         []Rule
}

// Decision is the outcome of evaluating one request.
type Decision struct {
	Target  string
	Reason  string
	Headers map[string]string
}

// Router evaluates requests against a fixed, priority-sorted rule set.
// Routers are immutable after construction and safe for concurrent use.
type Router struct {
	defaultTarget string
	rules         []Rule
}

// New builds a router. The rule slice is copied and sorted by ascending
// priority; ties keep their configuration order.
func New(cfg Config) *Router {
	defaultTarget := cfg.DefaultTarget
	if defaultTarget == "" {
		defaultTarget = defaultTargetLabel
	}

	rules := make([]Rule, len(cfg.Rules))
	copy(rules, cfg.Rules)
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})

	return &Router{defaultTarget: defaultTarget, rules: rules}
}

// DefaultTarget returns the fallback target label.
func (r *Router) DefaultTarget() string {
	return r.defaultTarget
}

// Route picks the first fully matching rule in priority order, or the
// default target when none matches. Header and cookie keys are matched
// case-insensitively.
func (r *Router) Route(headers, cookies map[string]string) Decision {
	for _, rule := range r.rules {
		if matchAll(rule.Conditions, headers, cookies) {
			return Decision{
				Target:  rule.Target,
				Reason:  rule.Name,
				Headers: rule.AddHeaders,
			}
		}
	}
	return Decision{Target: r.defaultTarget, Reason: "default"}
}

// RewritePath prefixes path with the target label unless it is already
// there. The second return reports whether a rewrite happened.
func RewritePath(path, target string) (string, bool) {
	if target == "" {
		return path, false
	}
	prefix := "/" + target
	if strings.HasPrefix(path, prefix) {
		return path, false
	}
	return prefix + path, true
}

// ParseCookies splits a Cookie header into a lowercase-keyed map.
func ParseCookies(header string) map[string]string {
	cookies := make(map[string]string)
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if key, value, ok := strings.Cut(part, "="); ok {
			cookies[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
		}
	}
	return cookies
}

// Middleware applies the routing decision to incoming requests: it injects
// the decision headers and, when the chosen target differs from the
// default, prefixes the request path with the target label.
func Middleware(router *Router) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if router == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers := lowerHeaders(r.Header)
			cookies := ParseCookies(r.Header.Get("Cookie"))

			d := router.Route(headers, cookies)

			r.Header.Set(HeaderRoutedBy, routedByValue)
			r.Header.Set(HeaderRouteReason, d.Reason)
			for key, value := range d.Headers {
				r.Header.Set(key, value)
			}

			if d.Target != router.defaultTarget {
				if rewritten, ok := RewritePath(r.URL.Path, d.Target); ok {
					r.URL.Path = rewritten
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func matchAll(conditions []Condition, headers, cookies map[string]string) bool {
	for i := range conditions {
		if !conditions[i].match(headers, cookies) {
			return false
		}
	}
	return true
}

func (c *Condition) match(headers, cookies map[string]string) bool {
	var value string
	var ok bool

	switch c.Source {
	case SourceHeader:
		value, ok = headers[strings.ToLower(c.Key)]
	case SourceCookie:
		value, ok = cookies[strings.ToLower(c.Key)]
	default:
		return false
	}
	if !ok {
		return false
	}

	switch c.Operator {
	case OpEquals:
		return value == c.Value
	case OpContains:
		return strings.Contains(value, c.Value)
	case OpRegex:
		return c.re != nil && c.re.MatchString(value)
	default:
		return false
	}
}

func lowerHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		out[strings.ToLower(key)] = strings.Join(values, ", ")
	}
	return out
}
