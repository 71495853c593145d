package backends

import (
	"context"
	"database/sql"
	"strings"

	// database/sql driver for the offline indexes
	_ "github.com/mattn/go-sqlite3"

	"refguard/internal/core/match"
	"refguard/internal/platform/logger"
)

// LocalIndex serves an offline SQLite index (DBLP, ACL Anthology or
// OpenAlex builds share one schema: publications + an FTS5 shadow table +
// author joins). It satisfies Backend with Local() == true so the rate
// limiter is bypassed.
type LocalIndex struct {
	name string
	db   *sql.DB
	log  logger.Logger
}

// OpenLocalIndex opens an index file read-only. The name doubles as the
// backend name, so an offline DBLP replaces the online one transparently.
func OpenLocalIndex(name, path string) (*LocalIndex, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	// A single connection keeps SQLite happy under concurrent workers
	db.SetMaxOpenConns(1)
	return &LocalIndex{name: name, db: db, log: *logger.Named("localindex")}, nil
}

// Close releases the underlying database handle
func (l *LocalIndex) Close() error { return l.db.Close() }

// Name implements Backend
func (l *LocalIndex) Name() string { return l.name }

// Local implements Backend
func (l *LocalIndex) Local() bool { return true }

// Query implements Backend. FTS5 narrows candidates by distinctive words;
// the fuzzy title check decides.
func (l *LocalIndex) Query(ctx context.Context, title string) Outcome {
	words := match.QueryWords(title)
	if len(words) == 0 {
		return NotFound()
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT p.uri, p.title
		FROM publications_fts f
		JOIN publications p ON p.id = f.rowid
		WHERE publications_fts MATCH ?
		LIMIT 25`,
		ftsQuery(words),
	)
	if err != nil {
		return Errored(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var uri, found string
		if err := rows.Scan(&uri, &found); err != nil {
			return Errored(err)
		}
		if !match.TitlesMatch(title, strings.TrimSuffix(found, ".")) {
			continue
		}
		authors, err := l.authorsFor(ctx, uri)
		if err != nil {
			l.log.Warn().Err(err).Str("db", l.name).Msg("author lookup failed, returning title-only match")
		}
		return Found(strings.TrimSuffix(found, "."), authors, uri)
	}
	if err := rows.Err(); err != nil {
		return Errored(err)
	}
	return NotFound()
}

func (l *LocalIndex) authorsFor(ctx context.Context, pubURI string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT a.name
		FROM publication_authors pa
		JOIN authors a ON a.uri = pa.author_uri
		WHERE pa.pub_uri = ?`,
		pubURI,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return out, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// ftsQuery builds an AND-of-phrases FTS5 query, quoting each word so
// apostrophes and digits survive
func ftsQuery(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = `"` + strings.ReplaceAll(w, `"`, ``) + `"`
	}
	return strings.Join(quoted, " ")
}
