// Package strategy implements the Manager's pluggable candidate-selection
// policies. The source's trait-object-behind-a-mutex is re-expressed here as
// a small closed set of variants chosen at build time, per the "Strategy
// polymorphism" design note: a Go interface with three implementations,
// selected by name at construction.
package strategy

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/relaygrid/relaygrid/internal/tracker"
)

// Name is the closed set of strategy identifiers accepted by configuration.
type Name string

const (
	NameLRU           Name = "lru"
	NameLowestLatency Name = "lowest_latency"
	NameRandom        Name = "random"
)

// Candidate is one eligible (instance ID, tracker) pair handed to a Strategy.
// Strategies never mutate the Tracker; they only read it through its locked
// accessors (LastUsed, AvgResponseTime).
type Candidate struct {
	InstanceID int
	Tracker    *tracker.Tracker
}

// Strategy selects one index into a non-empty candidate slice. The dispatcher
// guarantees the slice is non-empty before calling Pick; implementations may
// panic on an empty slice since that would be a caller bug, not runtime data.
type Strategy interface {
	// Pick returns the index (not the instance ID) of the chosen candidate.
	Pick(candidates []Candidate) int
}

// Parse resolves a configuration-supplied strategy name (including the
// aliases named in §6: "least_recently_used" for "lru", "latency" for
// "lowest_latency") to a Strategy, or an error for any other value.
func Parse(name string) (Strategy, error) {
	switch name {
	case string(NameLRU), "least_recently_used":
		return NewLRU(), nil
	case string(NameLowestLatency), "latency":
		return NewLowestLatency(), nil
	case string(NameRandom):
		return NewRandom(), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

// lruStrategy selects the candidate with the oldest last_used timestamp,
// ties broken by first-encountered (slice order). A freshly added instance's
// zero-value last_used sorts oldest, so it is exercised immediately.
type lruStrategy struct{}

// NewLRU returns the least-recently-used Strategy.
func NewLRU() Strategy { return lruStrategy{} }

func (lruStrategy) Pick(candidates []Candidate) int {
	best := 0
	bestTime := candidates[0].Tracker.LastUsed()
	for i := 1; i < len(candidates); i++ {
		t := candidates[i].Tracker.LastUsed()
		if t.Before(bestTime) {
			best = i
			bestTime = t
		}
	}
	return best
}

// lowestLatencyStrategy selects the candidate whose rolling-window average
// latency is minimal. Empty windows report zero and thus win until they
// acquire data, by design (see §4.4).
type lowestLatencyStrategy struct{}

// NewLowestLatency returns the lowest-average-latency Strategy.
func NewLowestLatency() Strategy { return lowestLatencyStrategy{} }

func (lowestLatencyStrategy) Pick(candidates []Candidate) int {
	best := 0
	bestAvg := candidates[0].Tracker.AvgResponseTime()
	for i := 1; i < len(candidates); i++ {
		avg := candidates[i].Tracker.AvgResponseTime()
		if avg < bestAvg {
			best = i
			bestAvg = avg
		}
	}
	return best
}

// randomStrategy selects a uniformly random candidate. Its PRNG is the only
// mutable state a Strategy carries and is guarded by its own mutex, never
// held across a network call, grounded in the teacher's randIntn helper.
type randomStrategy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom returns the uniform-random Strategy.
func NewRandom() Strategy {
	return &randomStrategy{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (s *randomStrategy) Pick(candidates []Candidate) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(len(candidates))
}
