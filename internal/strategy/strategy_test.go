package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaygrid/relaygrid/internal/tracker"
	"github.com/relaygrid/relaygrid/pkg/types"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"lru", false},
		{"least_recently_used", false},
		{"lowest_latency", false},
		{"latency", false},
		{"random", false},
		{"bogus", true},
	}
	for _, c := range cases {
		s, err := Parse(c.name)
		if c.wantErr {
			assert.Error(t, err, c.name)
			continue
		}
		require.NoError(t, err, c.name)
		assert.NotNil(t, s)
	}
}

func TestLRU_PicksOldestLastUsed(t *testing.T) {
	now := time.Now()
	t0, t1, t2 := tracker.New(), tracker.New(), tracker.New()
	t0.RecordSuccess(time.Millisecond, types.TokenUsage{}, now.Add(3*time.Second))
	t1.RecordSuccess(time.Millisecond, types.TokenUsage{}, now) // oldest
	t2.RecordSuccess(time.Millisecond, types.TokenUsage{}, now.Add(5*time.Second))

	s := NewLRU()
	idx := s.Pick([]Candidate{
		{InstanceID: 0, Tracker: t0},
		{InstanceID: 1, Tracker: t1},
		{InstanceID: 2, Tracker: t2},
	})
	assert.Equal(t, 1, idx)
}

func TestLRU_FreshInstanceWinsImmediately(t *testing.T) {
	now := time.Now()
	used := tracker.New()
	used.RecordSuccess(time.Millisecond, types.TokenUsage{}, now)
	fresh := tracker.New()

	s := NewLRU()
	idx := s.Pick([]Candidate{
		{InstanceID: 0, Tracker: used},
		{InstanceID: 1, Tracker: fresh},
	})
	assert.Equal(t, 1, idx)
}

func TestLowestLatency_PicksMinimumAverage(t *testing.T) {
	now := time.Now()
	slow, fast := tracker.New(), tracker.New()
	slow.RecordSuccess(500*time.Millisecond, types.TokenUsage{}, now)
	fast.RecordSuccess(10*time.Millisecond, types.TokenUsage{}, now)

	s := NewLowestLatency()
	idx := s.Pick([]Candidate{
		{InstanceID: 0, Tracker: slow},
		{InstanceID: 1, Tracker: fast},
	})
	assert.Equal(t, 1, idx)
}

func TestRandom_AlwaysReturnsValidIndex(t *testing.T) {
	s := NewRandom()
	candidates := []Candidate{
		{InstanceID: 0, Tracker: tracker.New()},
		{InstanceID: 1, Tracker: tracker.New()},
		{InstanceID: 2, Tracker: tracker.New()},
	}
	for i := 0; i < 50; i++ {
		idx := s.Pick(candidates)
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, len(candidates))
	}
}
