// Package repo implements the two-tier query cache: an in-process map for
// the current run in front of a SQLite store shared across runs. The
// cache is an optimization, never a source of truth: read failures
// degrade to misses, write failures log and continue.
package repo

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	// SQLite driver for the persistent tier
	_ "github.com/mattn/go-sqlite3"

	"refguard/internal/core/citation"
	"refguard/internal/core/match"
	"refguard/internal/platform/logger"
	"refguard/internal/platform/metrics"
)

// ScopeAny marks merged verdicts; per-backend entries use the backend name
const ScopeAny = "any"

// schemaVersion is stamped into the store; a mismatch wipes it once
const schemaVersion = "1"

// Entry is one cached outcome
type Entry struct {
	Status       citation.Status
	Source       string
	FoundAuthors []string
	PaperURL     string
	CreatedAt    time.Time
}

// Cache is the two-tier store. Safe for concurrent use by all workers.
type Cache struct {
	hot    sync.Map // "fingerprint|scope" -> Entry
	db     *sql.DB  // nil when running memory-only
	posTTL time.Duration
	negTTL time.Duration
	now    func() time.Time
	log    logger.Logger
}

// Open opens (and migrates if needed) the cache at path. An empty path
// runs the hot tier only.
func Open(path string, posTTL, negTTL time.Duration) (*Cache, error) {
	c := &Cache{
		posTTL: posTTL,
		negTTL: negTTL,
		now:    time.Now,
		log:    *logger.Named("querycache"),
	}
	if path == "" {
		return c, nil
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// One writer connection keeps transactions short and ordered
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	c.db = db
	return c, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL);
		CREATE TABLE IF NOT EXISTS query_cache (
			fingerprint  TEXT NOT NULL,
			scope        TEXT NOT NULL,
			status       TEXT NOT NULL,
			source       TEXT NOT NULL DEFAULT '',
			authors_json TEXT NOT NULL DEFAULT '[]',
			paper_url    TEXT NOT NULL DEFAULT '',
			created_at   INTEGER NOT NULL,
			PRIMARY KEY (fingerprint, scope)
		);
	`); err != nil {
		return err
	}

	var stored string
	err := db.QueryRow(`SELECT value FROM schema_meta WHERE key = 'version'`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		_, err = db.Exec(`INSERT INTO schema_meta (key, value) VALUES ('version', ?)`, schemaVersion)
		return err
	case err != nil:
		return err
	case stored != schemaVersion:
		// One-time wipe on version mismatch
		if _, err := db.Exec(`DELETE FROM query_cache`); err != nil {
			return err
		}
		_, err = db.Exec(`UPDATE schema_meta SET value = ? WHERE key = 'version'`, schemaVersion)
		return err
	default:
		return nil
	}
}

// Close releases the persistent tier
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func key(fingerprint, scope string) string { return fingerprint + "|" + scope }

// ttl selects the lifetime by polarity: negatives expire sooner so newly
// indexed corpora get re-discovered
func (c *Cache) ttl(status citation.Status) time.Duration {
	if status == citation.StatusNotFound {
		return c.negTTL
	}
	return c.posTTL
}

func (c *Cache) live(e Entry) bool {
	return c.now().Sub(e.CreatedAt) < c.ttl(e.Status)
}

// Get returns the live entry for (title, scope), checking the hot tier
// then the persistent tier
func (c *Cache) Get(title, scope string) (Entry, bool) {
	fp := match.Fingerprint(title)
	if fp == "" {
		return Entry{}, false
	}
	k := key(fp, scope)

	if v, ok := c.hot.Load(k); ok {
		e := v.(Entry)
		if c.live(e) {
			metrics.CacheRequests.WithLabelValues("hot", "hit").Inc()
			return e, true
		}
		c.hot.Delete(k)
	}
	metrics.CacheRequests.WithLabelValues("hot", "miss").Inc()

	if c.db == nil {
		return Entry{}, false
	}

	var (
		e           Entry
		authorsJSON string
		createdAt   int64
		status      string
	)
	err := c.db.QueryRow(`
		SELECT status, source, authors_json, paper_url, created_at
		FROM query_cache WHERE fingerprint = ? AND scope = ?`,
		fp, scope,
	).Scan(&status, &e.Source, &authorsJSON, &e.PaperURL, &createdAt)
	if err != nil {
		if err != sql.ErrNoRows {
			c.log.Warn().Err(err).Msg("cache read failed, treating as miss")
		}
		metrics.CacheRequests.WithLabelValues("persistent", "miss").Inc()
		return Entry{}, false
	}
	e.Status = citation.Status(status)
	e.CreatedAt = time.Unix(createdAt, 0)
	if err := json.Unmarshal([]byte(authorsJSON), &e.FoundAuthors); err != nil {
		e.FoundAuthors = nil
	}

	if !c.live(e) {
		metrics.CacheRequests.WithLabelValues("persistent", "miss").Inc()
		return Entry{}, false
	}

	metrics.CacheRequests.WithLabelValues("persistent", "hit").Inc()
	c.hot.Store(k, e)
	return e, true
}

// Put writes through both tiers. CreatedAt defaults to now.
func (c *Cache) Put(title, scope string, e Entry) {
	fp := match.Fingerprint(title)
	if fp == "" {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.now()
	}
	c.hot.Store(key(fp, scope), e)

	if c.db == nil {
		return
	}
	authorsJSON, err := json.Marshal(e.FoundAuthors)
	if err != nil {
		authorsJSON = []byte("[]")
	}
	if _, err := c.db.Exec(`
		INSERT OR REPLACE INTO query_cache
			(fingerprint, scope, status, source, authors_json, paper_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fp, scope, string(e.Status), e.Source, string(authorsJSON), e.PaperURL, e.CreatedAt.Unix(),
	); err != nil {
		c.log.Warn().Err(err).Str("scope", scope).Msg("cache write failed, continuing")
	}
}

// Clear empties both tiers
func (c *Cache) Clear() error {
	c.hot.Range(func(k, _ any) bool {
		c.hot.Delete(k)
		return true
	})
	if c.db == nil {
		return nil
	}
	_, err := c.db.Exec(`DELETE FROM query_cache`)
	return err
}

// ClearNotFound removes only negative entries, e.g. after a new backend
// or a freshly indexed corpus makes re-discovery likely
func (c *Cache) ClearNotFound() error {
	c.hot.Range(func(k, v any) bool {
		if v.(Entry).Status == citation.StatusNotFound {
			c.hot.Delete(k)
		}
		return true
	})
	if c.db == nil {
		return nil
	}
	_, err := c.db.Exec(`DELETE FROM query_cache WHERE status = ?`, string(citation.StatusNotFound))
	return err
}
