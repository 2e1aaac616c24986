// Package tracker holds the per-instance mutable metrics the dispatch engine
// consults when selecting a candidate and updates after every call. Each
// Tracker guards its own fields with its own mutex (grounded in the teacher's
// internal/router/base.go mu/rngMu split); the map of Trackers itself is
// read-only after build and needs no lock.
package tracker

import (
	"sync"
	"time"

	"github.com/relaygrid/relaygrid/pkg/types"
)

// maxResponseTimes is the capacity of the rolling latency window.
const maxResponseTimes = 10

// Tracker is the mutable runtime state bound to one Instance's lifetime.
type Tracker struct {
	mu            sync.Mutex
	requestCount  uint64
	errorCount    uint64
	responseTimes []time.Duration
	lastUsed      time.Time
	tokenUsage    types.TokenUsage
}

// New returns a zero-initialized Tracker.
func New() *Tracker {
	return &Tracker{responseTimes: make([]time.Duration, 0, maxResponseTimes)}
}

// Snapshot is a consistent, torn-read-free copy of all of a Tracker's fields,
// taken under one lock acquisition.
type Snapshot struct {
	RequestCount  uint64
	ErrorCount    uint64
	ResponseTimes []time.Duration
	LastUsed      time.Time
	TokenUsage    types.TokenUsage
}

// Snapshot takes a brief lock to copy out a consistent view of the Tracker.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	times := make([]time.Duration, len(t.responseTimes))
	copy(times, t.responseTimes)
	return Snapshot{
		RequestCount:  t.requestCount,
		ErrorCount:    t.errorCount,
		ResponseTimes: times,
		LastUsed:      t.lastUsed,
		TokenUsage:    t.tokenUsage,
	}
}

// RecordSuccess applies a successful call's outcome: increments request_count,
// appends latency to the rolling window (evicting the oldest past capacity 10),
// folds usage into the cumulative total, and updates last_used.
func (t *Tracker) RecordSuccess(latency time.Duration, usage types.TokenUsage, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requestCount++
	t.lastUsed = now
	t.responseTimes = append(t.responseTimes, latency)
	if len(t.responseTimes) > maxResponseTimes {
		t.responseTimes = t.responseTimes[len(t.responseTimes)-maxResponseTimes:]
	}
	t.tokenUsage = t.tokenUsage.Add(usage)
}

// RecordFailure applies a failed call's outcome: increments both
// request_count and error_count, updates last_used, and leaves the latency
// window and token usage untouched.
func (t *Tracker) RecordFailure(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requestCount++
	t.errorCount++
	t.lastUsed = now
}

// AvgResponseTime returns the mean of the rolling latency window, or zero if
// the window is empty.
func (t *Tracker) AvgResponseTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return avg(t.responseTimes)
}

func avg(times []time.Duration) time.Duration {
	if len(times) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range times {
		total += d
	}
	return total / time.Duration(len(times))
}

// LastUsed returns the timestamp of the most recently completed call.
func (t *Tracker) LastUsed() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastUsed
}

// ErrorRate returns error_count/request_count * 100.0, or 0 when no requests
// have been recorded yet.
func (t *Tracker) ErrorRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.requestCount == 0 {
		return 0
	}
	return float64(t.errorCount) / float64(t.requestCount) * 100.0
}

// TokenUsage returns the cumulative usage folded in by successful calls.
func (t *Tracker) TokenUsage() types.TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tokenUsage
}

// Counts returns request_count and error_count together, consistently.
func (t *Tracker) Counts() (requests, errors uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.requestCount, t.errorCount
}
