package xport

import (
	"strconv"
	"strings"
	"time"
)

// Config is the flat option mapping a Builder hands to an adapter factory.
type Config map[string]any

// String returns the string option k, or d when missing or empty.
func (c Config) String(k, d string) string {
	switch v := c[k].(type) {
	case string:
		if v != "" {
			return v
		}
	case []byte:
		if len(v) > 0 {
			return string(v)
		}
	}
	return d
}

// Int accepts the numeric shapes produced by env parsing, YAML and JSON.
func (c Config) Int(k string, d int) int {
	switch v := c[k].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint16:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return d
}

func (c Config) Bool(k string, d bool) bool {
	switch v := c[k].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return d
}

func (c Config) Float(k string, d float64) float64 {
	switch v := c[k].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return d
}

func (c Config) Duration(k string, d time.Duration) time.Duration {
	switch v := c[k].(type) {
	case time.Duration:
		return v
	case string:
		if p, err := time.ParseDuration(v); err == nil {
			return p
		}
	case float64:
		return time.Duration(v)
	case int64:
		return time.Duration(v)
	}
	return d
}

// Strings accepts either a slice or a comma separated string.
func (c Config) Strings(k string, d []string) []string {
	switch v := c[k].(type) {
	case []string:
		if len(v) > 0 {
			return v
		}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	case string:
		if out := SplitList(v); len(out) > 0 {
			return out
		}
	}
	return d
}

// SplitList splits a comma separated list, dropping blanks and surrounding spaces.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
