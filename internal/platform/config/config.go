// Package config handles application configuration via environment variables
package config

import (
	"strconv"
	"strings"
	"time"

	"refguard/internal/platform/logger"
)

// Conf is a namespaced view over environment variables (e.g., "CHECK_", "CACHE_")
// Use New() for global access, or Prefix("CHECK_") for component scopes.
type Conf struct{ prefix string }

// New creates a root Conf (no prefix)
func New() Conf { return Conf{} }

// Prefix creates a child Conf with an additional prefix, e.g. cfg.Prefix("CHECK_")
func (c Conf) Prefix(p string) Conf { return Conf{prefix: c.prefix + p} }

// key composes the fully-qualified env var name
func (c Conf) key(k string) string { return c.prefix + k }

func (c Conf) getenv(key string) string {
	return strings.TrimSpace(env(c.key(key)))
}

// env is a seam so tests can fake the environment
var env = defaultEnv

// MustString panics if the given key is missing or empty
func (c Conf) MustString(key string) string {
	v := c.getenv(key)
	if v == "" {
		logger.Get().Panic().Str("key", c.key(key)).Msg("missing required env")
	}
	return v
}

// MustInt panics if the given key is missing, empty, or not an int
func (c Conf) MustInt(key string) int {
	s := c.getenv(key)
	if s == "" {
		logger.Get().Panic().Str("key", c.key(key)).Msg("missing required env")
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		logger.Get().Panic().Str("key", c.key(key)).Str("value", s).Msg("invalid int value")
	}
	return v
}

// MayString returns the value or def if missing/empty
func (c Conf) MayString(key, def string) string {
	v := c.getenv(key)
	if v == "" {
		return def
	}
	return v
}

// MayInt returns the value or def if missing/empty; logs and returns def if invalid
func (c Conf) MayInt(key string, def int) int {
	s := c.getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		logger.Get().Warn().Str("key", c.key(key)).Str("value", s).Msg("invalid int value, using default")
		return def
	}
	return v
}

// MayBool returns the value or def if missing/empty; logs and returns def if invalid
func (c Conf) MayBool(key string, def bool) bool {
	s := c.getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		logger.Get().Warn().Str("key", c.key(key)).Str("value", s).Msg("invalid bool value, using default")
		return def
	}
	return v
}

// MayDuration returns the value or def if missing/empty; logs and returns def if invalid
func (c Conf) MayDuration(key string, def time.Duration) time.Duration {
	s := c.getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		logger.Get().Warn().Str("key", c.key(key)).Str("value", s).Msg("invalid duration, using default")
		return def
	}
	return d
}

// MayCSV returns the comma-separated value split and trimmed, or def if missing
func (c Conf) MayCSV(key string, def []string) []string {
	s := c.getenv(key)
	if s == "" {
		return def
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
