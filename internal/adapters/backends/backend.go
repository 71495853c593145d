// Package backends implements the query contract over the scholarly
// databases: online HTTP APIs and embedded full-text indexes share one
// interface so the orchestrator can fan out uniformly.
package backends

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	perr "refguard/internal/platform/errors"
)

// Backend is a named query source. Query must honor the ctx deadline, must
// not retry internally, and must never panic; 429 maps to a RateLimited
// outcome, every other non-2xx to Errored.
type Backend interface {
	Name() string
	// Local reports whether the backend is an embedded index; local
	// backends bypass the HTTP rate limiter
	Local() bool
	Query(ctx context.Context, title string) Outcome
}

// OutcomeKind discriminates the Outcome variants
type OutcomeKind int

// Outcome variants
const (
	KindFound OutcomeKind = iota
	KindNotFound
	KindRateLimited
	KindError
)

// Outcome is the result of one backend query
type Outcome struct {
	Kind    OutcomeKind
	Title   string
	Authors []string
	URL     string
	// RetryAfter is the parsed Retry-After hint; zero means unknown
	RetryAfter time.Duration
	Err        error
}

// Found builds a positive outcome
func Found(title string, authors []string, url string) Outcome {
	return Outcome{Kind: KindFound, Title: title, Authors: authors, URL: url}
}

// NotFound builds a negative outcome
func NotFound() Outcome { return Outcome{Kind: KindNotFound} }

// RateLimited builds a 429 outcome with an optional Retry-After hint
func RateLimited(retryAfter time.Duration) Outcome {
	return Outcome{Kind: KindRateLimited, RetryAfter: retryAfter}
}

// Errored builds a failure outcome
func Errored(err error) Outcome { return Outcome{Kind: KindError, Err: err} }

const defaultUA = "refguard/1.0"

// UserAgent builds the polite User-Agent string, carrying the mailto when
// the operator configured one
func UserAgent(mailto string) string {
	if mailto == "" {
		return defaultUA
	}
	return fmt.Sprintf("%s (mailto:%s)", defaultUA, mailto)
}

// ParseRetryAfter parses a Retry-After header value: integer seconds, or a
// conservative 5s for HTTP-date forms
func ParseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if strings.Contains(value, ",") || strings.Contains(value, "GMT") {
		return 5 * time.Second
	}
	return 0
}

const maxBody = 4 << 20

// get performs one GET and classifies failures into an Outcome.
// The returned bool is true when body is usable.
func get(ctx context.Context, client *http.Client, url string, header map[string]string) ([]byte, Outcome, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, Errored(perr.Wrap(err, perr.ErrorCodeUnknown, "build request")), false
	}
	if _, ok := header["User-Agent"]; !ok {
		req.Header.Set("User-Agent", defaultUA)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return nil, Errored(perr.Wrap(err, perr.ErrorCodeTimeout, "query timed out")), false
		}
		return nil, Errored(perr.Wrap(err, perr.ErrorCodeUnavailable, "request failed")), false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return nil, RateLimited(ParseRetryAfter(resp.Header.Get("Retry-After"))), false
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		code := perr.FromHTTPStatus(resp.StatusCode)
		return nil, Errored(perr.Newf(code, "unexpected status %d", resp.StatusCode)), false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return nil, Errored(perr.Wrap(err, perr.ErrorCodeTimeout, "read timed out")), false
		}
		return nil, Errored(perr.Wrap(err, perr.ErrorCodeUnavailable, "read body")), false
	}
	return body, Outcome{}, true
}
