package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"refguard/internal/adapters/backends"
	"refguard/internal/adapters/doi"
	"refguard/internal/core/citation"
	"refguard/internal/services/validate/domain"
	"refguard/internal/services/validate/repo"
)

// deadProbe points the DOI/retraction side-checks at a closed port so
// they fail fast and clean
func deadProbe() *doi.Probe {
	p := doi.NewProbe(&http.Client{Timeout: 100 * time.Millisecond}, "")
	p.DOIBase = "http://127.0.0.1:1"
	p.CrossRefBase = "http://127.0.0.1:1"
	return p
}

func newTestSvc(t *testing.T, cfg domain.Config, bks ...backends.Backend) *Svc {
	t.Helper()
	cache, err := repo.Open("", 24*time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })

	opts := []Option{
		WithBackends(bks...),
		WithProbe(deadProbe()),
		WithSleep(func(ctx context.Context, d time.Duration) error { return nil }),
	}
	svc, err := New(cfg, cache, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func vaswani() citation.Reference {
	return citation.Reference{
		RawCitation:    `[1] Vaswani et al. "Attention Is All You Need"`,
		Title:          "Attention Is All You Need",
		Authors:        []string{"Ashish Vaswani", "Noam Shazeer"},
		OriginalNumber: 1,
	}
}

// Scenario: a single mock backend returns a title and author match
func TestValidateVerifiedViaMock(t *testing.T) {
	t.Parallel()

	mock := backends.NewMock("Mock", backends.Found(
		"Attention is All you Need",
		[]string{"Ashish Vaswani", "Noam Shazeer", "Niki Parmar"},
		"https://example.org/attention",
	))
	svc := newTestSvc(t, domain.Default(), mock)

	res := svc.Validate(context.Background(), vaswani())

	if res.Status != citation.StatusVerified {
		t.Fatalf("status = %s, want verified", res.Status)
	}
	if res.Source != "Mock" {
		t.Fatalf("source = %q, want Mock", res.Source)
	}
	matches := 0
	for _, d := range res.DBResults {
		if d.Status == citation.DBMatch {
			matches++
		}
	}
	if matches != 1 {
		t.Fatalf("want exactly one match entry, got %d (%+v)", matches, res.DBResults)
	}
	if res.OriginalNumber != 1 {
		t.Fatalf("original number must be preserved")
	}
}

// Scenario: the DOI resolves to the same paper; no backend is dispatched
func TestValidateDOIFastPath(t *testing.T) {
	t.Parallel()

	doiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"title": "Attention Is All You Need",
			"author": [
				{"given": "Ashish", "family": "Vaswani"},
				{"given": "Noam", "family": "Shazeer"}
			]
		}`))
	}))
	defer doiSrv.Close()

	probe := doi.NewProbe(doiSrv.Client(), "")
	probe.DOIBase = doiSrv.URL
	probe.CrossRefBase = "http://127.0.0.1:1"

	recorder := backends.NewMock("Recorder", backends.Found("Attention Is All You Need", nil, ""))

	cache, err := repo.Open("", 24*time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	svc, err := New(domain.Default(), cache,
		WithBackends(recorder),
		WithProbe(probe),
		WithSleep(func(ctx context.Context, d time.Duration) error { return nil }),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ref := vaswani()
	ref.DOI = "10.48550/arXiv.1706.03762"
	res := svc.Validate(context.Background(), ref)

	if res.Status != citation.StatusVerified {
		t.Fatalf("status = %s, want verified", res.Status)
	}
	if res.Source != "DOI" {
		t.Fatalf("source = %q, want DOI", res.Source)
	}
	if res.DOIInfo == nil || !res.DOIInfo.Valid {
		t.Fatalf("doi info = %+v, want valid", res.DOIInfo)
	}
	if recorder.CallCount() != 0 {
		t.Fatalf("no backend should be dispatched on the DOI fast-path")
	}
}

// Scenario: all backends miss
func TestValidateNotFoundEverywhere(t *testing.T) {
	t.Parallel()

	a := backends.NewMock("A", backends.NotFound())
	b := backends.NewMock("B", backends.NotFound())
	svc := newTestSvc(t, domain.Default(), a, b)

	ref := citation.Reference{
		Title:          "A Completely Fictional Paper That Does Not Exist",
		Authors:        []string{"J. Doe"},
		OriginalNumber: 7,
	}
	res := svc.Validate(context.Background(), ref)

	if res.Status != citation.StatusNotFound {
		t.Fatalf("status = %s, want not found", res.Status)
	}
	if len(res.FailedDBs) != 0 {
		t.Fatalf("failed dbs = %v, want none", res.FailedDBs)
	}
	if len(res.DBResults) != 2 {
		t.Fatalf("db results = %+v, want one NoMatch per backend", res.DBResults)
	}
	for _, d := range res.DBResults {
		if d.Status != citation.DBNoMatch {
			t.Fatalf("entry %s status = %s, want no_match", d.DBName, d.Status)
		}
	}
}

// Scenario: a found title whose authors disagree with the citation
func TestValidateAuthorMismatch(t *testing.T) {
	t.Parallel()

	mock := backends.NewMock("Mock", backends.Found(
		"Understanding Deep Learning Requires Rethinking Generalization",
		[]string{"Completely Different Name"},
		"https://example.org/x",
	))
	svc := newTestSvc(t, domain.Default(), mock)

	ref := citation.Reference{
		Title:          "Understanding Deep Learning Requires Rethinking Generalization",
		Authors:        []string{"Real Author"},
		OriginalNumber: 2,
	}
	res := svc.Validate(context.Background(), ref)

	if res.Status != citation.StatusAuthorMismatch {
		t.Fatalf("status = %s, want author mismatch", res.Status)
	}
	if res.Source != "Mock" {
		t.Fatalf("source = %q", res.Source)
	}
	if len(res.FoundAuthors) != 1 || res.FoundAuthors[0] != "Completely Different Name" {
		t.Fatalf("found authors = %v", res.FoundAuthors)
	}
}

// A match with empty authors against a non-empty citation is a mismatch
func TestValidateEmptyFoundAuthorsIsMismatch(t *testing.T) {
	t.Parallel()

	mock := backends.NewMock("Mock", backends.Found(
		"Some Perfectly Matching Title Here", nil, ""))
	svc := newTestSvc(t, domain.Default(), mock)

	res := svc.Validate(context.Background(), citation.Reference{
		Title:          "Some Perfectly Matching Title Here",
		Authors:        []string{"Real Author"},
		OriginalNumber: 3,
	})
	if res.Status != citation.StatusAuthorMismatch {
		t.Fatalf("status = %s, want author mismatch", res.Status)
	}
}

// OpenAlex mismatches are suppressed from the verdict but kept in the trace
func TestValidateOpenAlexMismatchSuppressed(t *testing.T) {
	t.Parallel()

	openalex := backends.NewMock("OpenAlex", backends.Found(
		"A Title That Matches Exactly", []string{"Wrong Person"}, ""))
	svc := newTestSvc(t, domain.Default(), openalex)

	res := svc.Validate(context.Background(), citation.Reference{
		Title:          "A Title That Matches Exactly",
		Authors:        []string{"Right Person"},
		OriginalNumber: 4,
	})

	if res.Status != citation.StatusNotFound {
		t.Fatalf("status = %s, want not found (mismatch suppressed)", res.Status)
	}
	if len(res.DBResults) != 1 || res.DBResults[0].Status != citation.DBAuthorMismatch {
		t.Fatalf("trace must keep the suppressed mismatch: %+v", res.DBResults)
	}
}

func TestValidateOpenAlexMismatchHonoredWhenEnabled(t *testing.T) {
	t.Parallel()

	openalex := backends.NewMock("OpenAlex", backends.Found(
		"A Title That Matches Exactly", []string{"Wrong Person"}, ""))
	cfg := domain.Default()
	cfg.CheckOpenAlexAuthors = true
	svc := newTestSvc(t, cfg, openalex)

	res := svc.Validate(context.Background(), citation.Reference{
		Title:          "A Title That Matches Exactly",
		Authors:        []string{"Right Person"},
		OriginalNumber: 4,
	})
	if res.Status != citation.StatusAuthorMismatch {
		t.Fatalf("status = %s, want author mismatch", res.Status)
	}
}

// Skip gate: flagged references bypass validation and the cache
func TestValidateSkipGate(t *testing.T) {
	t.Parallel()

	recorder := backends.NewMock("Recorder")
	svc := newTestSvc(t, domain.Default(), recorder)

	res := svc.Validate(context.Background(), citation.Reference{
		RawCitation:    "https://example.org/some-page",
		SkipReason:     citation.SkipURLOnly,
		OriginalNumber: 9,
	})

	if res.Status != citation.StatusSkipped {
		t.Fatalf("status = %s, want skipped", res.Status)
	}
	if res.SkipReason != citation.SkipURLOnly {
		t.Fatalf("skip reason = %s", res.SkipReason)
	}
	if recorder.CallCount() != 0 {
		t.Fatalf("skipped references must not touch backends")
	}
	if res.OriginalNumber != 9 {
		t.Fatalf("original number must be preserved")
	}
}

// Boundary: every backend disabled
func TestValidateAllDisabled(t *testing.T) {
	t.Parallel()

	mock := backends.NewMock("Mock", backends.Found("Whatever The Title Is", nil, ""))
	cfg := domain.Default()
	cfg.DisabledDBs = []string{"mock"} // case-insensitive
	svc := newTestSvc(t, cfg, mock)

	res := svc.Validate(context.Background(), citation.Reference{
		Title: "Whatever The Title Is", OriginalNumber: 1,
	})
	if res.Status != citation.StatusNotFound {
		t.Fatalf("status = %s, want not found", res.Status)
	}
	if len(res.FailedDBs) != 0 || len(res.DBResults) != 0 {
		t.Fatalf("empty selection must not record failures or traces: %+v", res)
	}
	if mock.CallCount() != 0 {
		t.Fatalf("disabled backend was queried")
	}
}

// Idempotence: a second run answers from the cache without any dispatch
func TestValidateSecondRunServedFromCache(t *testing.T) {
	t.Parallel()

	mock := backends.NewMock("Mock", backends.Found(
		"Attention is All you Need",
		[]string{"Ashish Vaswani"},
		"https://example.org/attention",
	))
	svc := newTestSvc(t, domain.Default(), mock)

	first := svc.Validate(context.Background(), vaswani())
	if first.Status != citation.StatusVerified {
		t.Fatalf("first status = %s", first.Status)
	}
	calls := mock.CallCount()

	second := svc.Validate(context.Background(), vaswani())
	if second.Status != first.Status || second.Source != first.Source {
		t.Fatalf("cached result differs: %+v vs %+v", second, first)
	}
	if mock.CallCount() != calls {
		t.Fatalf("cache hit must not dispatch backends")
	}
}

// A per-backend negative cache entry skips only that backend
func TestValidatePerBackendCacheSkipsOnlyThatBackend(t *testing.T) {
	t.Parallel()

	a := backends.NewMock("A", backends.NotFound())
	b := backends.NewMock("B", backends.NotFound())

	cache, err := repo.Open("", 24*time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	svc, err := New(domain.Default(), cache,
		WithBackends(a, b),
		WithProbe(deadProbe()),
		WithSleep(func(ctx context.Context, d time.Duration) error { return nil }),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	title := "A Paper Cached For One Backend Only"
	cache.Put(title, "A", repo.Entry{Status: citation.StatusNotFound})

	res := svc.Validate(context.Background(), citation.Reference{Title: title, OriginalNumber: 1})

	if a.CallCount() != 0 {
		t.Fatalf("backend A had a cached entry and must not be queried")
	}
	if b.CallCount() != 1 {
		t.Fatalf("backend B must still be queried, calls = %d", b.CallCount())
	}
	if len(res.DBResults) != 2 {
		t.Fatalf("trace should carry both the replayed and the live entry: %+v", res.DBResults)
	}
}

// Failures land in FailedDBs and stay disjoint from settled traces
func TestValidateFailuresRecorded(t *testing.T) {
	t.Parallel()

	ok := backends.NewMock("OK", backends.NotFound())
	broken := backends.NewMock("Broken", backends.Errored(context.DeadlineExceeded))
	svc := newTestSvc(t, domain.Default(), ok, broken)

	res := svc.Validate(context.Background(), citation.Reference{
		Title: "Another Missing Paper Title", OriginalNumber: 5,
	})

	if res.Status != citation.StatusNotFound {
		t.Fatalf("status = %s", res.Status)
	}
	if len(res.FailedDBs) != 1 || res.FailedDBs[0] != "Broken" {
		t.Fatalf("failed dbs = %v", res.FailedDBs)
	}
	for _, d := range res.DBResults {
		if d.DBName == "OK" && d.Status.Failure() {
			t.Fatalf("settled backend marked failed")
		}
	}
}
