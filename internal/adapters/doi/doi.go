// Package doi resolves DOIs against doi.org and scores the returned
// metadata against the citation. A verified DOI short-circuits the
// database fan-out entirely.
package doi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"refguard/internal/core/authors"
	"refguard/internal/core/match"
	"refguard/internal/platform/logger"
)

const (
	doiBase      = "https://doi.org"
	crossRefBase = "https://api.crossref.org"

	cslAccept = "application/vnd.citationstyles.csl+json"
)

// Probe performs DOI and retraction lookups over the shared HTTP client
type Probe struct {
	Client *http.Client
	Mailto string
	// Base URLs are only overridden in tests
	DOIBase      string
	CrossRefBase string

	log logger.Logger
}

// NewProbe builds a Probe on the shared client
func NewProbe(client *http.Client, mailto string) *Probe {
	return &Probe{Client: client, Mailto: mailto, log: *logger.Named("doi")}
}

// Lookup is the outcome of resolving one DOI
type Lookup struct {
	Valid   bool
	Title   string
	Authors []string
	Err     string
}

// cslWork tolerates title as either a string or a one-element array
type cslWork struct {
	Title  cslTitle `json:"title"`
	Author []struct {
		Given   string `json:"given"`
		Family  string `json:"family"`
		Literal string `json:"literal"`
	} `json:"author"`
}

type cslTitle struct {
	Value string
}

// UnmarshalJSON accepts "title": "..." and "title": ["..."]
func (t *cslTitle) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if data[0] == '[' {
		var arr []string
		if err := json.Unmarshal(data, &arr); err != nil {
			return err
		}
		if len(arr) > 0 {
			t.Value = arr[0]
		}
		return nil
	}
	return json.Unmarshal(data, &t.Value)
}

// Resolve queries doi.org for CSL-JSON metadata. Any failure yields an
// invalid Lookup; the checker falls through to the database fan-out.
func (p *Probe) Resolve(ctx context.Context, doi string) Lookup {
	if doi == "" {
		return Lookup{Err: "no DOI provided"}
	}

	base := p.DOIBase
	if base == "" {
		base = doiBase
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/"+doi, nil)
	if err != nil {
		return Lookup{Err: err.Error()}
	}
	req.Header.Set("Accept", cslAccept)
	req.Header.Set("User-Agent", p.userAgent())

	resp, err := p.Client.Do(req)
	if err != nil {
		return Lookup{Err: fmt.Sprintf("DOI lookup failed: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Lookup{Err: "DOI not found"}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Lookup{Err: fmt.Sprintf("DOI lookup failed: HTTP %d", resp.StatusCode)}
	}

	var work cslWork
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&work); err != nil {
		return Lookup{Err: fmt.Sprintf("failed to parse DOI metadata: %v", err)}
	}

	var names []string
	for _, a := range work.Author {
		switch {
		case a.Family != "":
			names = append(names, strings.TrimSpace(a.Given+" "+a.Family))
		case a.Literal != "":
			names = append(names, a.Literal)
		}
	}
	return Lookup{Valid: true, Title: work.Title.Value, Authors: names}
}

// MatchResult classifies how DOI metadata relates to the citation
type MatchResult int

// Match outcomes
const (
	MatchInvalid MatchResult = iota
	MatchTitleMismatch
	MatchAuthorMismatch
	MatchVerified
)

// Title-match strategy constants
const (
	titleRatio     = 0.95
	prefixMin      = 8
	substringMin   = 20
	toolNameMinLen = 4
)

// Match scores a Lookup against the reference title and authors.
// Strategies, in order: fuzzy ratio, prefix (subtitle dropped), long
// substring containment, and "ToolName: Subtitle" vs "ToolName".
func Match(l Lookup, refTitle string, refAuthors []string) MatchResult {
	if !l.Valid {
		return MatchInvalid
	}

	refNorm := match.Fingerprint(refTitle)
	doiNorm := match.Fingerprint(l.Title)

	titleMatch := match.Ratio(refNorm, doiNorm) >= titleRatio ||
		(len(doiNorm) >= prefixMin && strings.HasPrefix(refNorm, doiNorm)) ||
		(len(doiNorm) >= substringMin && (strings.Contains(refNorm, doiNorm) || strings.Contains(doiNorm, refNorm))) ||
		toolNameMatch(refTitle, doiNorm)

	if !titleMatch {
		return MatchTitleMismatch
	}

	if len(refAuthors) > 0 && len(l.Authors) > 0 {
		if authors.Match(refAuthors, l.Authors) {
			return MatchVerified
		}
		return MatchAuthorMismatch
	}
	return MatchVerified
}

// toolNameMatch handles "ReCon: A Tool for ..." cited as just "ReCon"
func toolNameMatch(refTitle, doiNorm string) bool {
	if len(doiNorm) < toolNameMinLen || !strings.Contains(refTitle, ":") {
		return false
	}
	before := strings.TrimSpace(strings.SplitN(refTitle, ":", 2)[0])
	return match.Fingerprint(before) == doiNorm
}

func (p *Probe) userAgent() string {
	if p.Mailto != "" {
		return fmt.Sprintf("refguard/1.0 (mailto:%s)", p.Mailto)
	}
	return "refguard/1.0"
}

