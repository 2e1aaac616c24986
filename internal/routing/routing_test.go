package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_Candidates_PreservesInsertionOrder(t *testing.T) {
	idx := NewBuilder()
	idx.Add("chat", 2)
	idx.Add("chat", 0)
	idx.Add("chat", 1)
	idx.Add("summarize", 0)

	ids, ok := idx.Candidates("chat")
	require.True(t, ok)
	assert.Equal(t, []int{2, 0, 1}, ids)

	ids, ok = idx.Candidates("summarize")
	require.True(t, ok)
	assert.Equal(t, []int{0}, ids)
}

func TestIndex_Candidates_UnknownTaskReturnsFalse(t *testing.T) {
	idx := NewBuilder()
	_, ok := idx.Candidates("does-not-exist")
	assert.False(t, ok)
}
