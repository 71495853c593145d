package domain

import (
	"testing"
	"time"

	"refguard/internal/platform/config"
)

func TestNormalizedFillsDefaults(t *testing.T) {
	t.Parallel()

	c := Config{}.Normalized()
	if c.Workers != DefaultWorkers {
		t.Fatalf("workers = %d", c.Workers)
	}
	if c.DBTimeout != DefaultDBTimeout || c.DBTimeoutShort != DefaultDBTimeoutShort {
		t.Fatalf("timeouts = %v / %v", c.DBTimeout, c.DBTimeoutShort)
	}
	if c.CachePositiveTTL != DefaultPositiveTTL || c.CacheNegativeTTL != DefaultNegativeTTL {
		t.Fatalf("ttls = %v / %v", c.CachePositiveTTL, c.CacheNegativeTTL)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("normalized default config should validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	c := Default()
	c.Workers = 0
	if err := c.Validate(); err == nil {
		t.Fatalf("zero workers should fail validation")
	}

	c = Default()
	c.CrossRefMailto = "not an email"
	if err := c.Validate(); err == nil {
		t.Fatalf("malformed mailto should fail validation")
	}

	c = Default()
	c.SearxURL = "http://searx.internal:8080"
	c.CrossRefMailto = "ops@example.org"
	if err := c.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestDBDisabledIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	c := Default()
	c.DisabledDBs = []string{"crossref", "Semantic Scholar"}
	if !c.DBDisabled("CrossRef") || !c.DBDisabled("SEMANTIC SCHOLAR") {
		t.Fatalf("disable matching should ignore case")
	}
	if c.DBDisabled("arXiv") {
		t.Fatalf("arXiv is not disabled")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("CHECK_WORKERS", "9")
	t.Setenv("CHECK_DB_TIMEOUT", "20s")
	t.Setenv("CHECK_DISABLED_DBS", "PubMed, Europe PMC")
	t.Setenv("CACHE_PATH", "/tmp/refguard-cache.db")

	cfg := FromEnv(config.New())
	if cfg.Workers != 9 {
		t.Fatalf("workers = %d", cfg.Workers)
	}
	if cfg.DBTimeout != 20*time.Second {
		t.Fatalf("timeout = %v", cfg.DBTimeout)
	}
	if len(cfg.DisabledDBs) != 2 || cfg.DisabledDBs[0] != "PubMed" {
		t.Fatalf("disabled = %v", cfg.DisabledDBs)
	}
	if cfg.CachePath != "/tmp/refguard-cache.db" {
		t.Fatalf("cache path = %q", cfg.CachePath)
	}
}
