package backends

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	perr "refguard/internal/platform/errors"
)

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want time.Duration
	}{
		{"5", 5 * time.Second},
		{"0", 0},
		{" 10 ", 10 * time.Second},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 5 * time.Second},
		{"Mon, 01 Jan 2024 00:00:00", 5 * time.Second},
		{"xyz", 0},
		{"", 0},
		{"-3", 0},
	}
	for _, c := range cases {
		if got := ParseRetryAfter(c.in); got != c.want {
			t.Fatalf("ParseRetryAfter(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestUserAgent(t *testing.T) {
	t.Parallel()

	if got := UserAgent(""); got != "refguard/1.0" {
		t.Fatalf("bare UA = %q", got)
	}
	if got := UserAgent("ops@example.org"); got != "refguard/1.0 (mailto:ops@example.org)" {
		t.Fatalf("mailto UA = %q", got)
	}
}

func TestGetClassifies429(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, out, ok := get(context.Background(), srv.Client(), srv.URL, nil)
	if ok {
		t.Fatalf("expected failure outcome")
	}
	if out.Kind != KindRateLimited {
		t.Fatalf("kind = %v, want rate limited", out.Kind)
	}
	if out.RetryAfter != 7*time.Second {
		t.Fatalf("retry after = %v, want 7s", out.RetryAfter)
	}
}

func TestGetClassifiesServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, out, ok := get(context.Background(), srv.Client(), srv.URL, nil)
	if ok {
		t.Fatalf("expected failure outcome")
	}
	if out.Kind != KindError {
		t.Fatalf("kind = %v, want error", out.Kind)
	}
	if !perr.IsCode(out.Err, perr.ErrorCodeUnavailable) {
		t.Fatalf("502 should map to unavailable, got %v", out.Err)
	}
}

func TestGetClassifiesTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, out, ok := get(ctx, srv.Client(), srv.URL, nil)
	if ok {
		t.Fatalf("expected failure outcome")
	}
	if out.Kind != KindError || !perr.IsCode(out.Err, perr.ErrorCodeTimeout) {
		t.Fatalf("deadline should map to timeout, got kind=%v err=%v", out.Kind, out.Err)
	}
}

func TestMockReplaysScriptAndRecords(t *testing.T) {
	t.Parallel()

	m := NewMock("Mock",
		RateLimited(time.Second),
		Found("A Paper", []string{"A. Author"}, "https://example.org/p"),
	)

	first := m.Query(context.Background(), "A Paper")
	if first.Kind != KindRateLimited {
		t.Fatalf("first outcome should be rate limited")
	}
	second := m.Query(context.Background(), "A Paper")
	if second.Kind != KindFound || second.Title != "A Paper" {
		t.Fatalf("second outcome should be the found entry")
	}
	// Last outcome repeats
	third := m.Query(context.Background(), "A Paper")
	if third.Kind != KindFound {
		t.Fatalf("script tail should repeat")
	}
	if m.CallCount() != 3 {
		t.Fatalf("call count = %d, want 3", m.CallCount())
	}
}
