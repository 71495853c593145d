package service

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Slowdown policy: the factor doubles per 429 and caps; after a quiet
// minute the base schedule is restored. The window is long enough to let
// burst-induced 429s drain but short enough that one bad minute doesn't
// poison a 10k-reference batch.
const (
	maxSlowdown = 16
	decayAfter  = 60 * time.Second
)

// adaptiveLimiter spaces requests for one backend. The token bucket is
// swapped atomically when the schedule changes; acquire never locks.
type adaptiveLimiter struct {
	base    time.Duration
	bucket  atomic.Pointer[rate.Limiter]
	factor  atomic.Uint32
	last429 atomic.Int64 // unix nanos, 0 = never
	now     func() time.Time
}

func newAdaptiveLimiter(period time.Duration) *adaptiveLimiter {
	l := &adaptiveLimiter{base: period, now: time.Now}
	l.factor.Store(1)
	l.bucket.Store(rate.NewLimiter(rate.Every(period), 1))
	return l
}

func perSecond(n int) *adaptiveLimiter {
	if n < 1 {
		n = 1
	}
	return newAdaptiveLimiter(time.Second / time.Duration(n))
}

// acquire suspends until the current schedule releases a token. Elapsed
// accounting starts after acquire so queue wait is not charged to the
// HTTP round trip.
func (l *adaptiveLimiter) acquire(ctx context.Context) error {
	l.tryDecay()
	return l.bucket.Load().Wait(ctx)
}

// onRateLimited doubles the slowdown factor (capped) and swaps in the
// slower schedule
func (l *adaptiveLimiter) onRateLimited() {
	l.last429.Store(l.now().UnixNano())

	for {
		f := l.factor.Load()
		next := f * 2
		if next > maxSlowdown {
			next = maxSlowdown
		}
		if f == next || l.factor.CompareAndSwap(f, next) {
			break
		}
	}

	f := time.Duration(l.factor.Load())
	l.bucket.Store(rate.NewLimiter(rate.Every(l.base*f), 1))
}

// tryDecay restores the base schedule once the quiet window has passed
func (l *adaptiveLimiter) tryDecay() {
	if l.factor.Load() <= 1 {
		return
	}
	last := l.last429.Load()
	if last == 0 || l.now().Sub(time.Unix(0, last)) < decayAfter {
		return
	}
	l.factor.Store(1)
	l.bucket.Store(rate.NewLimiter(rate.Every(l.base), 1))
}

func (l *adaptiveLimiter) currentFactor() uint32 { return l.factor.Load() }

// Limiters is the process-wide registry, one limiter per backend name.
// Rates follow the public documentation of each service; configured
// credentials unlock the faster tiers.
type Limiters struct {
	m map[string]*adaptiveLimiter
}

// NewLimiters builds the registry. Entries are keyed by backend name only;
// local backends share names with online ones (DBLP, OpenAlex, ACL
// Anthology) but are never rate limited, because queryOne skips the
// registry for backends that report Local().
func NewLimiters(hasCrossRefMailto, hasS2Key bool) *Limiters {
	m := make(map[string]*adaptiveLimiter)

	// CrossRef: 1/s anonymous, 3/s in the polite pool
	if hasCrossRefMailto {
		m["CrossRef"] = perSecond(3)
	} else {
		m["CrossRef"] = perSecond(1)
	}

	// arXiv: 3/s documented
	m["arXiv"] = perSecond(3)

	// DBLP online: ~1/s guideline
	m["DBLP"] = perSecond(1)

	// Semantic Scholar: keyless ~100 req/5min, keyed 1/s
	if hasS2Key {
		m["Semantic Scholar"] = perSecond(1)
	} else {
		m["Semantic Scholar"] = newAdaptiveLimiter(3 * time.Second)
	}

	// Europe PMC: undocumented, conservative 2/s
	m["Europe PMC"] = perSecond(2)

	// PubMed: 3/s without key
	m["PubMed"] = perSecond(3)

	// ACL Anthology: conservative 2/s
	m["ACL Anthology"] = perSecond(2)

	// OpenAlex: 10/s; the adaptive slowdown covers the rest
	m["OpenAlex"] = perSecond(10)

	// Self-hosted web search: conservative 2/s
	m["Web Search"] = perSecond(2)

	return &Limiters{m: m}
}

// Get returns the limiter for a backend, or nil when none applies
func (ls *Limiters) Get(name string) *adaptiveLimiter { return ls.m[name] }
