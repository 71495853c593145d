package service

import (
	"context"
	"strings"
	"time"

	"refguard/internal/adapters/backends"
	"refguard/internal/adapters/doi"
	"refguard/internal/core/citation"
	"refguard/internal/services/validate/domain"
	"refguard/internal/services/validate/repo"
)

// Validate checks a single reference with the configured timeout and no
// event subscriber. Errors never escape: the result always comes back.
func (s *Svc) Validate(ctx context.Context, ref citation.Reference) citation.ValidationResult {
	return s.validateRef(ctx, ref, 0, s.cfg.DBTimeout, nil, func(domain.Event) {})
}

// validateRef is the central per-reference algorithm. onlyDBs restricts
// the pass to previously failed backends (the retry pass); nil means the
// full first pass with cache probe and DOI fast-path.
func (s *Svc) validateRef(
	ctx context.Context,
	ref citation.Reference,
	refIndex int,
	timeout time.Duration,
	onlyDBs []string,
	emit eventFn,
) citation.ValidationResult {
	base := citation.ValidationResult{
		Title:          ref.Title,
		RawCitation:    ref.RawCitation,
		RefAuthors:     ref.Authors,
		OriginalNumber: ref.OriginalNumber,
	}

	// Skip gate: flagged non-citations bypass everything, cache included
	if ref.SkipReason != "" {
		base.Status = citation.StatusSkipped
		base.SkipReason = ref.SkipReason
		return base
	}

	firstPass := onlyDBs == nil

	// Merged-verdict cache probe short-circuits before any limiter is touched
	if firstPass {
		if e, ok := s.cache.Get(ref.Title, repo.ScopeAny); ok {
			base.Status = e.Status
			base.Source = e.Source
			base.FoundAuthors = e.FoundAuthors
			base.PaperURL = e.PaperURL
			return base
		}
	}

	// DOI fast-path
	if firstPass && ref.DOI != "" {
		res, terminal := s.doiFastPath(ctx, ref, base)
		if terminal {
			return res
		}
		base.DOIInfo = res.DOIInfo
	}

	if ref.ArxivID != "" && firstPass {
		base.ArxivInfo = &citation.ArxivInfo{ArxivID: ref.ArxivID}
	}

	// Backend selection: configured list minus disabled, minus retry
	// restriction, minus per-backend cache hits (replayed as seeds)
	var (
		selected []backends.Backend
		seeds    []queried
	)
	for _, b := range s.backends {
		if s.cfg.DBDisabled(b.Name()) {
			continue
		}
		if !firstPass && !nameIn(onlyDBs, b.Name()) {
			continue
		}
		if firstPass {
			if e, ok := s.cache.Get(ref.Title, b.Name()); ok {
				seeds = append(seeds, cachedSeed(b.Name(), e))
				continue
			}
		}
		selected = append(selected, b)
	}

	if len(selected) == 0 && len(seeds) == 0 {
		base.Status = citation.StatusNotFound
		return base
	}

	record := func(name string, st citation.DBStatus, out backends.Outcome) {
		// Only settled outcomes are cached; failures stay uncached so the
		// retry pass and later runs can try again
		switch st {
		case citation.DBMatch:
			s.cache.Put(ref.Title, name, repo.Entry{
				Status:       citation.StatusVerified,
				Source:       name,
				FoundAuthors: out.Authors,
				PaperURL:     out.URL,
			})
		case citation.DBNoMatch:
			s.cache.Put(ref.Title, name, repo.Entry{Status: citation.StatusNotFound})
		case citation.DBAuthorMismatch:
			s.cache.Put(ref.Title, name, repo.Entry{
				Status:       citation.StatusAuthorMismatch,
				Source:       name,
				FoundAuthors: out.Authors,
				PaperURL:     out.URL,
			})
		}
	}

	fo := s.fanOut(ctx, ref.Title, ref.Authors, selected, seeds, timeout, refIndex, emit, record)

	base.Status = fo.status
	base.Source = fo.source
	base.FoundAuthors = fo.foundAuthors
	base.PaperURL = fo.paperURL
	base.FailedDBs = fo.failedDBs
	base.DBResults = fo.dbResults

	// A verified paper still gets the advisory by-title retraction check
	if base.Status == citation.StatusVerified {
		rctx, cancel := context.WithTimeout(ctx, s.cfg.DBTimeoutShort)
		r := s.probe.RetractionByTitle(rctx, ref.Title)
		cancel()
		if r.Retracted {
			base.RetractionInfo = &citation.RetractionInfo{
				IsRetracted:      true,
				RetractionDOI:    r.DOI,
				RetractionSource: r.Source,
			}
		}
	}

	// Merged verdict is cached for both polarities; a later improved
	// retry overwrites it
	s.cache.Put(ref.Title, repo.ScopeAny, repo.Entry{
		Status:       base.Status,
		Source:       base.Source,
		FoundAuthors: base.FoundAuthors,
		PaperURL:     base.PaperURL,
	})

	return base
}

// doiFastPath resolves and scores the DOI. The bool reports a terminal
// verdict; otherwise the caller falls through to the fan-out with the
// DOIInfo recorded.
func (s *Svc) doiFastPath(ctx context.Context, ref citation.Reference, base citation.ValidationResult) (citation.ValidationResult, bool) {
	lctx, cancel := context.WithTimeout(ctx, s.cfg.DBTimeout)
	lookup := s.probe.Resolve(lctx, ref.DOI)
	cancel()

	base.DOIInfo = &citation.DOIInfo{DOI: ref.DOI, Valid: lookup.Valid, Title: lookup.Title}
	doiURL := "https://doi.org/" + ref.DOI

	switch doi.Match(lookup, ref.Title, ref.Authors) {
	case doi.MatchVerified:
		base.Status = citation.StatusVerified
		base.Source = "DOI"
		base.FoundAuthors = lookup.Authors
		base.PaperURL = doiURL
		base.DBResults = []citation.DBResult{{DBName: "DOI", Status: citation.DBMatch, PaperURL: doiURL}}

		rctx, cancel := context.WithTimeout(ctx, s.cfg.DBTimeoutShort)
		r := s.probe.RetractionByDOI(rctx, ref.DOI)
		cancel()
		if r.Retracted {
			base.RetractionInfo = &citation.RetractionInfo{
				IsRetracted:      true,
				RetractionDOI:    r.DOI,
				RetractionSource: r.Source,
			}
		}
		s.cache.Put(ref.Title, repo.ScopeAny, repo.Entry{
			Status:       citation.StatusVerified,
			Source:       "DOI",
			FoundAuthors: lookup.Authors,
			PaperURL:     doiURL,
		})
		return base, true

	case doi.MatchAuthorMismatch:
		base.Status = citation.StatusAuthorMismatch
		base.Source = "DOI"
		base.FoundAuthors = lookup.Authors
		base.PaperURL = doiURL
		base.DBResults = []citation.DBResult{{DBName: "DOI", Status: citation.DBAuthorMismatch, PaperURL: doiURL}}

		s.cache.Put(ref.Title, repo.ScopeAny, repo.Entry{
			Status:       citation.StatusAuthorMismatch,
			Source:       "DOI",
			FoundAuthors: lookup.Authors,
			PaperURL:     doiURL,
		})
		return base, true

	default:
		// Invalid DOI or title mismatch: fall through to the fan-out
		return base, false
	}
}

// cachedSeed replays a per-backend cache entry as an instant task result
func cachedSeed(name string, e repo.Entry) queried {
	q := queried{
		name: name,
		outcome: backends.Outcome{
			Kind:    backends.KindFound,
			Authors: e.FoundAuthors,
			URL:     e.PaperURL,
		},
	}
	switch e.Status {
	case citation.StatusVerified:
		q.status = citation.DBMatch
	case citation.StatusAuthorMismatch:
		q.status = citation.DBAuthorMismatch
	default:
		q.status = citation.DBNoMatch
		q.outcome = backends.NotFound()
	}
	return q
}

func nameIn(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
