package domain

import (
	"time"

	"refguard/internal/core/citation"
)

// Event is a progress notification sent to the driver's subscriber
// channel. The channel is bounded; a slow subscriber backpressures the
// workers by design.
type Event interface{ event() }

// Checking signals that a worker picked up a reference
type Checking struct {
	Index int
	Total int
	Title string
}

// DBQueryComplete signals one backend task finishing, including Cancelled
// entries for tasks pre-empted by a peer match
type DBQueryComplete struct {
	RefIndex int
	DBName   string
	Status   citation.DBStatus
	Elapsed  time.Duration
}

// RateLimitWait signals a Retry-After sleep before the single 429 retry
type RateLimitWait struct {
	DBName string
	Wait   time.Duration
}

// RateLimitRetry signals the post-sleep retry dispatch
type RateLimitRetry struct {
	DBName string
}

// Result carries the terminal verdict for one reference. On a successful
// retry it is emitted a second time for the same index.
type Result struct {
	Index  int
	Total  int
	Result citation.ValidationResult
}

// Warning signals a completed reference with failed backends
type Warning struct {
	Index     int
	Title     string
	FailedDBs []string
	Message   string
}

// RetryPass signals the start of the retry pass
type RetryPass struct {
	Count int
}

func (Checking) event()        {}
func (DBQueryComplete) event() {}
func (RateLimitWait) event()   {}
func (RateLimitRetry) event()  {}
func (Result) event()          {}
func (Warning) event()         {}
func (RetryPass) event()       {}
