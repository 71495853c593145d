// Package citation holds the immutable reference model and validation
// result records shared by the checker, the backends, and the CLI
package citation

import "time"

// SkipReason tags references the extractor flagged as non-citations
type SkipReason string

// Skip reasons produced by the extractor. The checker never re-derives these.
const (
	SkipURLOnly    SkipReason = "url_only"
	SkipShortTitle SkipReason = "short_title"
	SkipNoTitle    SkipReason = "no_title"
)

// Reference is one parsed citation. It is created by the extractor and
// never mutated by the validation pipeline.
type Reference struct {
	RawCitation    string     `json:"raw_citation"`
	Title          string     `json:"title,omitempty"`
	Authors        []string   `json:"authors,omitempty"`
	DOI            string     `json:"doi,omitempty"`
	ArxivID        string     `json:"arxiv_id,omitempty"`
	OriginalNumber int        `json:"original_number"`
	SkipReason     SkipReason `json:"skip_reason,omitempty"`
}

// Status is the merged verdict for one reference
type Status string

// Merged verdicts
const (
	StatusVerified       Status = "verified"
	StatusNotFound       Status = "not_found"
	StatusAuthorMismatch Status = "author_mismatch"
	StatusSkipped        Status = "skipped"
)

// DBStatus is the outcome of a single backend query within one validation
type DBStatus string

// Per-backend outcomes. NotRun marks backends left undispatched because a
// cached per-backend match already settled the reference (disabled
// backends get no trace entry at all); Cancelled marks tasks pre-empted
// by a peer match. Neither counts as a failure.
const (
	DBMatch          DBStatus = "match"
	DBNoMatch        DBStatus = "no_match"
	DBAuthorMismatch DBStatus = "author_mismatch"
	DBTimeout        DBStatus = "timeout"
	DBError          DBStatus = "error"
	DBRateLimited    DBStatus = "rate_limited"
	DBNotRun         DBStatus = "not_run"
	DBCancelled      DBStatus = "cancelled"
)

// Failure reports whether the status marks a backend as failed for the retry pass
func (s DBStatus) Failure() bool {
	switch s {
	case DBTimeout, DBError, DBRateLimited:
		return true
	default:
		return false
	}
}

// DBResult is the per-backend trace entry
type DBResult struct {
	DBName       string        `json:"db_name"`
	Status       DBStatus      `json:"status"`
	Elapsed      time.Duration `json:"elapsed"`
	FoundAuthors []string      `json:"found_authors,omitempty"`
	PaperURL     string        `json:"paper_url,omitempty"`
}

// DOIInfo records the side-channel DOI lookup
type DOIInfo struct {
	DOI   string `json:"doi"`
	Valid bool   `json:"valid"`
	Title string `json:"title,omitempty"`
}

// ArxivInfo records the side-channel arXiv id lookup
type ArxivInfo struct {
	ArxivID string `json:"arxiv_id"`
	Valid   bool   `json:"valid"`
	Title   string `json:"title,omitempty"`
}

// RetractionInfo records a positive retraction or expression of concern
type RetractionInfo struct {
	IsRetracted      bool   `json:"is_retracted"`
	RetractionDOI    string `json:"retraction_doi,omitempty"`
	RetractionSource string `json:"retraction_source,omitempty"`
}

// ValidationResult is the verdict for one reference
type ValidationResult struct {
	Title          string          `json:"title"`
	RawCitation    string          `json:"raw_citation"`
	RefAuthors     []string        `json:"ref_authors,omitempty"`
	OriginalNumber int             `json:"original_number"`
	Status         Status          `json:"status"`
	SkipReason     SkipReason      `json:"skip_reason,omitempty"`
	Source         string          `json:"source,omitempty"`
	FoundAuthors   []string        `json:"found_authors,omitempty"`
	PaperURL       string          `json:"paper_url,omitempty"`
	FailedDBs      []string        `json:"failed_dbs,omitempty"`
	DBResults      []DBResult      `json:"db_results,omitempty"`
	DOIInfo        *DOIInfo        `json:"doi_info,omitempty"`
	ArxivInfo      *ArxivInfo      `json:"arxiv_info,omitempty"`
	RetractionInfo *RetractionInfo `json:"retraction_info,omitempty"`
}

// Stats aggregates verdicts for a run summary
type Stats struct {
	Total          int `json:"total"`
	Verified       int `json:"verified"`
	NotFound       int `json:"not_found"`
	AuthorMismatch int `json:"author_mismatch"`
	Retracted      int `json:"retracted"`
	Skipped        int `json:"skipped"`
}

// Add folds one result into the stats
func (s *Stats) Add(r ValidationResult) {
	s.Total++
	switch r.Status {
	case StatusVerified:
		s.Verified++
	case StatusNotFound:
		s.NotFound++
	case StatusAuthorMismatch:
		s.AuthorMismatch++
	case StatusSkipped:
		s.Skipped++
	}
	if r.RetractionInfo != nil && r.RetractionInfo.IsRetracted {
		s.Retracted++
	}
}
