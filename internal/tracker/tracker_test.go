package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/relaygrid/relaygrid/pkg/types"
)

func TestTracker_RecordSuccess_UpdatesRollingWindow(t *testing.T) {
	trk := New()
	now := time.Now()
	trk.RecordSuccess(100*time.Millisecond, types.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, now)
	trk.RecordSuccess(300*time.Millisecond, types.TokenUsage{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30}, now.Add(time.Second))

	assert.Equal(t, 200*time.Millisecond, trk.AvgResponseTime())
	assert.Equal(t, uint32(30), trk.TokenUsage().PromptTokens)
	assert.Equal(t, now.Add(time.Second), trk.LastUsed())

	requests, errs := trk.Counts()
	assert.Equal(t, uint64(2), requests)
	assert.Equal(t, uint64(0), errs)
}

func TestTracker_RecordSuccess_EvictsOldestPastCapacity(t *testing.T) {
	trk := New()
	now := time.Now()
	for i := 0; i < maxResponseTimes+5; i++ {
		trk.RecordSuccess(time.Duration(i+1)*time.Millisecond, types.TokenUsage{}, now)
	}
	snap := trk.Snapshot()
	assert.Len(t, snap.ResponseTimes, maxResponseTimes)
	// the oldest five (1ms..5ms) should have been evicted, leaving 6ms..15ms
	assert.Equal(t, 6*time.Millisecond, snap.ResponseTimes[0])
}

func TestTracker_RecordFailure_IncrementsErrorCountButNotLatency(t *testing.T) {
	trk := New()
	now := time.Now()
	trk.RecordSuccess(50*time.Millisecond, types.TokenUsage{}, now)
	trk.RecordFailure(now.Add(time.Second))

	requests, errs := trk.Counts()
	assert.Equal(t, uint64(2), requests)
	assert.Equal(t, uint64(1), errs)
	assert.Equal(t, 50*time.Millisecond, trk.AvgResponseTime())
}

func TestTracker_ErrorRate(t *testing.T) {
	trk := New()
	assert.Equal(t, 0.0, trk.ErrorRate())

	now := time.Now()
	trk.RecordSuccess(time.Millisecond, types.TokenUsage{}, now)
	trk.RecordFailure(now)
	trk.RecordFailure(now)
	trk.RecordFailure(now)

	assert.InDelta(t, 75.0, trk.ErrorRate(), 0.001)
}

func TestTracker_AvgResponseTime_EmptyWindowIsZero(t *testing.T) {
	trk := New()
	assert.Equal(t, time.Duration(0), trk.AvgResponseTime())
}
