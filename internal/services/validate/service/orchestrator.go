package service

import (
	"context"
	"sync/atomic"
	"time"

	"refguard/internal/adapters/backends"
	"refguard/internal/core/authors"
	"refguard/internal/core/citation"
	perr "refguard/internal/platform/errors"
	"refguard/internal/platform/metrics"
	"refguard/internal/services/validate/domain"
)

// eventFn receives progress events from the fan-out; the pool fills in
// the reference index before forwarding
type eventFn func(domain.Event)

// gateFlag is the dispatch gate the early exit closes: tasks still queued
// when a match wins check it before querying
type gateFlag struct{ b atomic.Bool }

func (g *gateFlag) set()      { g.b.Store(true) }
func (g *gateFlag) won() bool { return g.b.Load() }

// queried is one backend task's completed classification
type queried struct {
	name      string
	status    citation.DBStatus
	outcome   backends.Outcome
	elapsed   time.Duration
	cancelled bool
}

// queryOne runs a single rate-limited backend query. On 429 it escalates
// the limiter, honors Retry-After (capped at the query timeout), and
// retries exactly once; a second 429 is terminal for this pass. The
// elapsed time starts after the first permit so queue wait is not charged.
func (s *Svc) queryOne(ctx context.Context, b backends.Backend, title string, timeout time.Duration, emit eventFn) (backends.Outcome, time.Duration) {
	var limiter *adaptiveLimiter
	if !b.Local() {
		limiter = s.limiters.Get(b.Name())
	}

	if limiter != nil {
		if err := limiter.acquire(ctx); err != nil {
			return backends.Errored(perr.Wrap(err, perr.ErrorCodeUnavailable, "cancelled in limiter queue")), 0
		}
	}

	start := time.Now()
	out := s.query(ctx, b, title, timeout)

	if out.Kind == backends.KindRateLimited {
		metrics.RateLimited.WithLabelValues(b.Name()).Inc()
		if limiter != nil {
			limiter.onRateLimited()
		}

		wait := out.RetryAfter
		if wait <= 0 {
			wait = 2 * time.Second
		}
		if wait > timeout {
			wait = timeout
		}
		emit(domain.RateLimitWait{DBName: b.Name(), Wait: wait})
		s.log.Info().Str("db", b.Name()).Dur("wait", wait).Msg("429 rate limited, waiting then retrying once")

		if err := s.sleep(ctx, wait); err != nil {
			return out, time.Since(start)
		}
		if limiter != nil {
			if err := limiter.acquire(ctx); err != nil {
				return out, time.Since(start)
			}
		}
		emit(domain.RateLimitRetry{DBName: b.Name()})
		out = s.query(ctx, b, title, timeout)
	}

	return out, time.Since(start)
}

// query invokes the backend under its deadline with panic containment.
// Run cancellation does not abort a query already in flight; only the
// per-query timeout bounds it.
func (s *Svc) query(ctx context.Context, b backends.Backend, title string, timeout time.Duration) (out backends.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("db", b.Name()).Any("panic", r).Msg("backend panicked")
			out = backends.Errored(perr.PanicErrf("backend %s panicked: %v", b.Name(), r))
		}
	}()

	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return b.Query(qctx, title)
}

// classify folds the author check into the per-backend status
func classify(out backends.Outcome, refAuthors []string) citation.DBStatus {
	switch out.Kind {
	case backends.KindFound:
		if len(refAuthors) == 0 || authors.Match(refAuthors, out.Authors) {
			return citation.DBMatch
		}
		return citation.DBAuthorMismatch
	case backends.KindNotFound:
		return citation.DBNoMatch
	case backends.KindRateLimited:
		return citation.DBRateLimited
	default:
		if perr.IsCode(out.Err, perr.ErrorCodeTimeout) {
			return citation.DBTimeout
		}
		return citation.DBError
	}
}

// fanOutResult is the merged outcome of one fan-out pass
type fanOutResult struct {
	status       citation.Status
	source       string
	foundAuthors []string
	paperURL     string
	failedDBs    []string
	dbResults    []citation.DBResult
}

// fanOut queries the selected backends concurrently and folds results in
// arrival order. The first Match that passes the author check wins and
// pre-empts the rest: queued tasks report Cancelled without querying,
// while in-flight tasks run to completion in the background so their
// outcomes still reach the per-backend cache (the write race is
// harmless).
func (s *Svc) fanOut(
	ctx context.Context,
	title string,
	refAuthors []string,
	selected []backends.Backend,
	seeds []queried,
	timeout time.Duration,
	refIndex int,
	emit eventFn,
	record func(name string, st citation.DBStatus, out backends.Outcome),
) fanOutResult {
	res := fanOutResult{status: citation.StatusNotFound}
	var mismatch *fanOutResult

	fold := func(q queried) (won bool) {
		emit(domain.DBQueryComplete{
			RefIndex: refIndex,
			DBName:   q.name,
			Status:   q.status,
			Elapsed:  q.elapsed,
		})
		metrics.DBQueries.WithLabelValues(q.name, string(q.status)).Inc()
		if !q.cancelled {
			metrics.DBQuerySeconds.WithLabelValues(q.name).Observe(q.elapsed.Seconds())
		}

		entry := citation.DBResult{
			DBName:       q.name,
			Status:       q.status,
			Elapsed:      q.elapsed,
			FoundAuthors: q.outcome.Authors,
			PaperURL:     q.outcome.URL,
		}
		res.dbResults = append(res.dbResults, entry)

		switch q.status {
		case citation.DBMatch:
			res.status = citation.StatusVerified
			res.source = q.name
			res.foundAuthors = q.outcome.Authors
			res.paperURL = q.outcome.URL
			return true
		case citation.DBAuthorMismatch:
			// OpenAlex author metadata is noisy; its mismatches stay in
			// the trace but only drive the verdict when enabled
			if mismatch == nil && (q.name != "OpenAlex" || s.cfg.CheckOpenAlexAuthors) {
				mismatch = &fanOutResult{
					status:       citation.StatusAuthorMismatch,
					source:       q.name,
					foundAuthors: q.outcome.Authors,
					paperURL:     q.outcome.URL,
				}
			}
		case citation.DBTimeout, citation.DBError, citation.DBRateLimited:
			res.failedDBs = append(res.failedDBs, q.name)
		}
		return false
	}

	// Cached per-backend results replay first; a cached match can settle
	// the reference without dispatching anything
	for _, seed := range seeds {
		if fold(seed) {
			for _, b := range selected {
				fold(queried{name: b.Name(), status: citation.DBNotRun, cancelled: true})
			}
			return res
		}
	}

	if len(selected) == 0 {
		if mismatch != nil {
			mismatch.failedDBs = res.failedDBs
			mismatch.dbResults = res.dbResults
			return *mismatch
		}
		return res
	}

	results := make(chan queried, len(selected))
	var gate gateFlag

	// Tasks that lose the early-exit race keep running for the cache but
	// stop emitting events, so nothing follows this reference's Result
	taskEmit := func(e domain.Event) {
		if !gate.won() {
			emit(e)
		}
	}

	for _, b := range selected {
		go func(b backends.Backend) {
			if ctx.Err() != nil || gate.won() {
				results <- queried{name: b.Name(), status: citation.DBCancelled, cancelled: true}
				return
			}
			out, elapsed := s.queryOne(ctx, b, title, timeout, taskEmit)
			st := classify(out, refAuthors)
			record(b.Name(), st, out)
			results <- queried{name: b.Name(), status: st, outcome: out, elapsed: elapsed}
		}(b)
	}

	pending := make(map[string]struct{}, len(selected))
	for _, b := range selected {
		pending[b.Name()] = struct{}{}
	}

	for received := 0; received < len(selected); received++ {
		q := <-results
		delete(pending, q.name)

		if fold(q) {
			gate.set()
			// Trace the tasks that will not contribute to this verdict;
			// in-flight ones keep running for the cache only
			for name := range pending {
				fold(queried{name: name, status: citation.DBCancelled, cancelled: true})
			}
			go func(remaining int) {
				for i := 0; i < remaining; i++ {
					<-results
				}
			}(len(selected) - received - 1)
			return res
		}
	}

	if mismatch != nil {
		mismatch.failedDBs = res.failedDBs
		mismatch.dbResults = res.dbResults
		return *mismatch
	}
	return res
}
