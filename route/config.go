package route

import (
	"errors"
	"regexp"

	"github.com/tidwall/gjson"
)

const defaultTargetLabel = "v1"

// ErrBadConfig reports that the supplied rule document could not be parsed
// and the default (rule-less) config was substituted.
var ErrBadConfig = errors.New("malformed routing configuration, using defaults")

// DefaultConfig routes everything to the default target with no rules.
func DefaultConfig() Config {
	return Config{DefaultTarget: defaultTargetLabel}
}

// ParseConfig reads a JSON rule document. Malformed input yields the
// default config and ErrBadConfig; individually malformed rules or
// conditions are dropped rather than failing the document.
func ParseConfig(raw []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(raw) == 0 {
		return cfg, nil
	}
	if !gjson.ValidBytes(raw) {
		return cfg, ErrBadConfig
	}

	if v := gjson.GetBytes(raw, "default_target"); v.Exists() && v.String() != "" {
		cfg.DefaultTarget = v.String()
	}

	for _, item := range gjson.GetBytes(raw, "rules").Array() {
		if rule, ok := parseRule(item); ok {
			cfg.Rules = append(cfg.Rules, rule)
		}
	}

	return cfg, nil
}

func parseRule(item gjson.Result) (Rule, bool) {
	rule := Rule{
		Name:     item.Get("name").String(),
		Priority: int(item.Get("priority").Int()),
		Target:   item.Get("target").String(),
	}
	if rule.Name == "" || rule.Target == "" {
		return Rule{}, false
	}

	for _, c := range item.Get("conditions").Array() {
		cond := Condition{
			Source:   c.Get("type").String(),
			Key:      c.Get("key").String(),
			Operator: c.Get("operator").String(),
			Value:    c.Get("value").String(),
		}
		if cond.Operator == OpRegex {
			// Compile once here; a broken pattern leaves re nil and the
			// condition fails closed instead of failing the config.
			cond.re, _ = regexp.Compile(cond.Value)
		}
		rule.Conditions = append(rule.Conditions, cond)
	}

	for key, value := range item.Get("add_headers").Map() {
		if rule.AddHeaders == nil {
			rule.AddHeaders = make(map[string]string)
		}
		rule.AddHeaders[key] = value.String()
	}

	return rule, true
}
