package route

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testConfig() Config {
	return Config{
		DefaultTarget: "v1",
		Rules: []Rule{
			{
				Name:     "beta-cookie",
				Priority: 20,
				Conditions: []Condition{
					{Source: SourceCookie, Key: "beta", Operator: OpEquals, Value: "true"},
				},
				Target: "v2",
			},
			{
				Name:     "canary-header",
				Priority: 10,
				Conditions: []Condition{
					{Source: SourceHeader, Key: "X-Canary", Operator: OpEquals, Value: "on"},
				},
				Target:     "canary",
				AddHeaders: map[string]string{"X-Experiment": "canary-2026"},
			},
		},
	}
}

func TestRoutePriorityOrder(t *testing.T) {
	r := New(testConfig())

	// Both rules match; the lower priority number wins regardless of
	// configuration order.
	d := r.Route(
		map[string]string{"x-canary": "on"},
		map[string]string{"beta": "true"},
	)
	if d.Target != "canary" || d.Reason != "canary-header" {
		t.Fatalf("decision = %+v", d)
	}
	if d.Headers["X-Experiment"] != "canary-2026" {
		t.Fatalf("headers = %v", d.Headers)
	}
}

func TestRouteDefaultFallback(t *testing.T) {
	r := New(testConfig())

	d := r.Route(map[string]string{"user-agent": "curl"}, nil)
	if d.Target != "v1" || d.Reason != "default" {
		t.Fatalf("decision = %+v", d)
	}
}

func TestRouteCookieRule(t *testing.T) {
	r := New(testConfig())

	d := r.Route(nil, map[string]string{"beta": "true"})
	if d.Target != "v2" || d.Reason != "beta-cookie" {
		t.Fatalf("decision = %+v", d)
	}

	d = r.Route(nil, map[string]string{"beta": "false"})
	if d.Target != "v1" {
		t.Fatalf("decision = %+v", d)
	}
}

func TestRouteAllConditionsRequired(t *testing.T) {
	cfg := Config{
		DefaultTarget: "v1",
		Rules: []Rule{{
			Name:     "both",
			Priority: 1,
			Conditions: []Condition{
				{Source: SourceHeader, Key: "X-A", Operator: OpEquals, Value: "1"},
				{Source: SourceHeader, Key: "X-B", Operator: OpEquals, Value: "2"},
			},
			Target: "v2",
		}},
	}
	r := New(cfg)

	if d := r.Route(map[string]string{"x-a": "1"}, nil); d.Target != "v1" {
		t.Fatalf("partial match routed: %+v", d)
	}
	if d := r.Route(map[string]string{"x-a": "1", "x-b": "2"}, nil); d.Target != "v2" {
		t.Fatalf("full match missed: %+v", d)
	}
}

func TestRouteOperators(t *testing.T) {
	tests := []struct {
		name  string
		cond  Condition
		value string
		want  bool
	}{
		{"equals match", Condition{Operator: OpEquals, Value: "abc"}, "abc", true},
		{"equals miss", Condition{Operator: OpEquals, Value: "abc"}, "abcd", false},
		{"contains match", Condition{Operator: OpContains, Value: "Mobile"}, "Mozilla Mobile Safari", true},
		{"contains miss", Condition{Operator: OpContains, Value: "Mobile"}, "Mozilla", false},
		{"unknown operator", Condition{Operator: "startswith", Value: "a"}, "abc", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.cond
			c.Source = SourceHeader
			c.Key = "X-Test"
			got := c.match(map[string]string{"x-test": tt.value}, nil)
			if got != tt.want {
				t.Fatalf("match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRouteRegexOperator(t *testing.T) {
	raw := []byte(`{
		"default_target": "v1",
		"rules": [{
			"name": "mobile",
			"priority": 1,
			"conditions": [{"type": "header", "key": "User-Agent", "operator": "regex", "value": "(iPhone|Android)"}],
			"target": "mobile"
		}]
	}`)
	cfg, err := ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r := New(cfg)

	if d := r.Route(map[string]string{"user-agent": "Mozilla (iPhone; CPU)"}, nil); d.Target != "mobile" {
		t.Fatalf("decision = %+v", d)
	}
	if d := r.Route(map[string]string{"user-agent": "curl/8.0"}, nil); d.Target != "v1" {
		t.Fatalf("decision = %+v", d)
	}
}

func TestRouteInvalidRegexFailsClosed(t *testing.T) {
	raw := []byte(`{
		"rules": [{
			"name": "broken",
			"priority": 1,
			"conditions": [{"type": "header", "key": "X-Test", "operator": "regex", "value": "("}],
			"target": "v2"
		}]
	}`)
	cfg, err := ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r := New(cfg)

	if d := r.Route(map[string]string{"x-test": "anything"}, nil); d.Target != "v1" {
		t.Fatalf("broken regex must never match: %+v", d)
	}
}

func TestRouteMissingValueNeverMatches(t *testing.T) {
	c := Condition{Source: SourceCookie, Key: "session", Operator: OpEquals, Value: ""}
	if c.match(nil, map[string]string{}) {
		t.Fatal("missing cookie matched")
	}
}

func TestParseCookies(t *testing.T) {
	cookies := ParseCookies("session=abc123; Beta=true; malformed; empty=")
	if cookies["session"] != "abc123" {
		t.Fatalf("cookies = %v", cookies)
	}
	if cookies["beta"] != "true" {
		t.Fatalf("cookie keys must be lowercased: %v", cookies)
	}
	if _, ok := cookies["malformed"]; ok {
		t.Fatal("pair without '=' must be dropped")
	}
	if v, ok := cookies["empty"]; !ok || v != "" {
		t.Fatalf("cookies = %v", cookies)
	}
}

func TestRewritePath(t *testing.T) {
	tests := []struct {
		path, target string
		want         string
		rewrote      bool
	}{
		{"/api/user", "v2", "/v2/api/user", true},
		{"/v2/api/user", "v2", "/v2/api/user", false},
		{"/api/user", "", "/api/user", false},
	}
	for _, tt := range tests {
		got, rewrote := RewritePath(tt.path, tt.target)
		if got != tt.want || rewrote != tt.rewrote {
			t.Fatalf("RewritePath(%q, %q) = %q, %v", tt.path, tt.target, got, rewrote)
		}
	}
}

func TestParseConfigMalformed(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"rules": [`))
	if !errors.Is(err, ErrBadConfig) {
		t.Fatalf("expected ErrBadConfig, got %v", err)
	}
	if cfg.DefaultTarget != "v1" || len(cfg.Rules) != 0 {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestParseConfigDropsIncompleteRules(t *testing.T) {
	raw := []byte(`{
		"rules": [
			{"name": "", "priority": 1, "target": "v2"},
			{"name": "no-target", "priority": 2},
			{"name": "good", "priority": 3, "target": "v2"}
		]
	}`)
	cfg, err := ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.Rules) != 1 || cfg.Rules[0].Name != "good" {
		t.Fatalf("rules = %+v", cfg.Rules)
	}
}

func TestMiddlewareInjectsDecision(t *testing.T) {
	r := New(testConfig())

	var seen *http.Request
	handler := Middleware(r)(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		seen = req
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.Header.Set("X-Canary", "on")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen.Header.Get(HeaderRoutedBy) != "edge-router" {
		t.Fatalf("X-Routed-By = %q", seen.Header.Get(HeaderRoutedBy))
	}
	if seen.Header.Get(HeaderRouteReason) != "canary-header" {
		t.Fatalf("X-Route-Reason = %q", seen.Header.Get(HeaderRouteReason))
	}
	if seen.Header.Get("X-Experiment") != "canary-2026" {
		t.Fatalf("X-Experiment = %q", seen.Header.Get("X-Experiment"))
	}
	if seen.URL.Path != "/canary/api/user" {
		t.Fatalf("path = %q", seen.URL.Path)
	}
}

func TestMiddlewareDefaultKeepsPath(t *testing.T) {
	r := New(testConfig())

	var seen *http.Request
	handler := Middleware(r)(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		seen = req
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen.URL.Path != "/api/user" {
		t.Fatalf("path = %q", seen.URL.Path)
	}
	if seen.Header.Get(HeaderRouteReason) != "default" {
		t.Fatalf("X-Route-Reason = %q", seen.Header.Get(HeaderRouteReason))
	}
}
