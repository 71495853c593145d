package errors

import (
	stderrs "errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	t.Parallel()

	err := Newf(ErrorCodeTimeout, "query timed out after %ds", 10)
	if CodeOf(err) != ErrorCodeTimeout {
		t.Fatalf("CodeOf = %d, want timeout", CodeOf(err))
	}
	if CodeOf(stderrs.New("plain")) != ErrorCodeUnknown {
		t.Fatalf("plain errors should map to unknown")
	}
	if CodeOf(nil) != ErrorCodeUnknown {
		t.Fatalf("nil should map to unknown")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	t.Parallel()

	cause := stderrs.New("connection refused")
	err := Wrap(cause, ErrorCodeUnavailable, "crossref query failed")

	if !stderrs.Is(err, cause) {
		t.Fatalf("wrapped cause not reachable via errors.Is")
	}
	if Root(err) != cause {
		t.Fatalf("Root should return the deepest cause")
	}
	if got := err.Error(); got != "crossref query failed: connection refused" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestWrapThroughFmt(t *testing.T) {
	t.Parallel()

	inner := RateLimitedf("429 from %s", "arxiv")
	outer := fmt.Errorf("fan-out: %w", inner)
	if CodeOf(outer) != ErrorCodeTooManyRequests {
		t.Fatalf("code should survive fmt.Errorf wrapping")
	}
}

func TestTransient(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want bool
	}{
		{Timeoutf("deadline"), true},
		{RateLimitedf("429"), true},
		{Unavailablef("503"), true},
		{NotFoundf("404"), false},
		{InvalidArgf("bad title"), false},
		{stderrs.New("plain"), false},
	}
	for _, c := range cases {
		if got := Transient(c.err); got != c.want {
			t.Fatalf("Transient(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestFromHTTPStatus(t *testing.T) {
	t.Parallel()

	cases := map[int]ErrorCode{
		429: ErrorCodeTooManyRequests,
		404: ErrorCodeNotFound,
		502: ErrorCodeUnavailable,
		504: ErrorCodeTimeout,
		418: ErrorCodeUnknown,
	}
	for status, want := range cases {
		if got := FromHTTPStatus(status); got != want {
			t.Fatalf("FromHTTPStatus(%d) = %d, want %d", status, got, want)
		}
	}
}
