package distcache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/relaygrid/relaygrid/pkg/types"
)

func newTestMirror(t *testing.T) *Mirror {
	t.Helper()
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	return NewWithClient(client, "test")
}

func TestMirror_WriteThenRead(t *testing.T) {
	m := newTestMirror(t)
	ctx := context.Background()

	err := m.Write(ctx, types.TokenUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30})
	require.NoError(t, err)

	got, err := m.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(10), got.PromptTokens)
	require.Equal(t, uint32(20), got.CompletionTokens)
	require.Equal(t, uint32(30), got.TotalTokens)
}

func TestMirror_ReadBeforeWriteReturnsZeroValue(t *testing.T) {
	m := newTestMirror(t)
	got, err := m.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.TokenUsage{}, got)
}
