// Package domain carries the validation service's config and progress
// event contracts
package domain

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"refguard/internal/platform/config"
)

// Defaults applied by Normalized
const (
	DefaultWorkers        = 4
	DefaultDBTimeout      = 10 * time.Second
	DefaultDBTimeoutShort = 5 * time.Second
	DefaultPositiveTTL    = 180 * 24 * time.Hour
	DefaultNegativeTTL    = 14 * 24 * time.Hour
)

// Config is the validation service configuration. It is consumed, not
// owned, here: the CLI assembles it from env and flags.
type Config struct {
	// Workers bounds the concurrent references in flight
	Workers int `validate:"gte=1"`

	// DBTimeout is the per-backend query deadline; doubled on retry
	DBTimeout time.Duration `validate:"gt=0"`
	// DBTimeoutShort bounds the advisory retraction checks (by DOI and by
	// title); the DOI lookup itself runs under DBTimeout
	DBTimeoutShort time.Duration `validate:"gt=0"`

	// DisabledDBs removes backends by name, case-insensitively
	DisabledDBs []string

	// API keys and mailto; their presence tightens the rate policy
	OpenAlexKey    string
	S2APIKey       string
	CrossRefMailto string `validate:"omitempty,email"`

	// CheckOpenAlexAuthors lets OpenAlex author metadata produce
	// author-mismatch verdicts (noisy, off by default)
	CheckOpenAlexAuthors bool

	// SearxURL enables the web-search fallback backend when set
	SearxURL string `validate:"omitempty,url"`

	// Offline index paths; when set, the local variant replaces the
	// online backend of the same name
	DBLPIndexPath     string
	ACLIndexPath      string
	OpenAlexIndexPath string

	// CachePath locates the persistent query cache; empty keeps the
	// cache in memory only
	CachePath        string
	CachePositiveTTL time.Duration `validate:"gte=0"`
	CacheNegativeTTL time.Duration `validate:"gte=0"`
}

// Default returns the baseline config
func Default() Config {
	return Config{
		Workers:          DefaultWorkers,
		DBTimeout:        DefaultDBTimeout,
		DBTimeoutShort:   DefaultDBTimeoutShort,
		CachePositiveTTL: DefaultPositiveTTL,
		CacheNegativeTTL: DefaultNegativeTTL,
	}
}

// FromEnv reads the CHECK_* and CACHE_* env namespaces
func FromEnv(root config.Conf) Config {
	check := root.Prefix("CHECK_")
	cacheCfg := root.Prefix("CACHE_")
	d := Default()
	return Config{
		Workers:              check.MayInt("WORKERS", d.Workers),
		DBTimeout:            check.MayDuration("DB_TIMEOUT", d.DBTimeout),
		DBTimeoutShort:       check.MayDuration("DB_TIMEOUT_SHORT", d.DBTimeoutShort),
		DisabledDBs:          check.MayCSV("DISABLED_DBS", nil),
		OpenAlexKey:          check.MayString("OPENALEX_KEY", ""),
		S2APIKey:             check.MayString("S2_API_KEY", ""),
		CrossRefMailto:       check.MayString("CROSSREF_MAILTO", ""),
		CheckOpenAlexAuthors: check.MayBool("OPENALEX_AUTHORS", false),
		SearxURL:             check.MayString("SEARX_URL", ""),
		DBLPIndexPath:        check.MayString("DBLP_INDEX", ""),
		ACLIndexPath:         check.MayString("ACL_INDEX", ""),
		OpenAlexIndexPath:    check.MayString("OPENALEX_INDEX", ""),
		CachePath:            cacheCfg.MayString("PATH", ""),
		CachePositiveTTL:     cacheCfg.MayDuration("POSITIVE_TTL", d.CachePositiveTTL),
		CacheNegativeTTL:     cacheCfg.MayDuration("NEGATIVE_TTL", d.CacheNegativeTTL),
	}
}

// Normalized fills zero values with defaults
func (c Config) Normalized() Config {
	d := Default()
	if c.Workers == 0 {
		c.Workers = d.Workers
	}
	if c.DBTimeout == 0 {
		c.DBTimeout = d.DBTimeout
	}
	if c.DBTimeoutShort == 0 {
		c.DBTimeoutShort = d.DBTimeoutShort
	}
	if c.CachePositiveTTL == 0 {
		c.CachePositiveTTL = d.CachePositiveTTL
	}
	if c.CacheNegativeTTL == 0 {
		c.CacheNegativeTTL = d.CacheNegativeTTL
	}
	return c
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags
func (c Config) Validate() error { return validate.Struct(c) }

// DBDisabled reports whether a backend name is disabled, case-insensitively
func (c Config) DBDisabled(name string) bool {
	for _, d := range c.DisabledDBs {
		if strings.EqualFold(d, name) {
			return true
		}
	}
	return false
}
