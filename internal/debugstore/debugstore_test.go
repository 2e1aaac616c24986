package debugstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestID_ReturnsUniqueValues(t *testing.T) {
	a := NewRequestID()
	b := NewRequestID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestStore_Flush_WritesBufferedEntries(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 12345)

	s.Append(0, "openai", "gpt-4", Entry{RequestID: "r1", Prompt: "hi", Content: "hello"})
	s.Append(0, "openai", "gpt-4", Entry{RequestID: "r2", Prompt: "again", Content: "hi again"})

	require.NoError(t, s.Flush())

	path := filepath.Join(dir, "12345", "0_openai_gpt-4", "debug.json")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []Entry
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "r1", entries[0].RequestID)
	assert.Equal(t, "r2", entries[1].RequestID)
}

func TestStore_Append_WritesOneFilePerInstance(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 1)

	s.Append(0, "openai", "gpt-4", Entry{RequestID: "a"})
	s.Append(1, "anthropic", "claude", Entry{RequestID: "b"})

	require.NoError(t, s.Flush())

	for _, p := range []string{"0_openai_gpt-4", "1_anthropic_claude"} {
		_, err := os.Stat(filepath.Join(dir, "1", p, "debug.json"))
		assert.NoError(t, err)
	}
}

func TestStore_OnEvicted_FlushesWithoutExplicitFlush(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 99)
	s.Append(0, "openai", "gpt-4", Entry{RequestID: "evicted"})

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "99", "0_openai_gpt-4", "debug.json"))
		return err == nil
	}, 2*time.Second, 50*time.Millisecond)
}
