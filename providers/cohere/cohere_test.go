package cohere

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaygrid/relaygrid/pkg/errors"
	"github.com/relaygrid/relaygrid/pkg/types"
)

func TestBuildChatRequest_MapsMessagesAndParams(t *testing.T) {
	req := types.LlmRequest{
		Model: "command-r-plus",
		Messages: []types.Message{
			{Role: types.RoleSystem, Content: "be terse"},
			{Role: types.RoleUser, Content: "hi"},
		},
		MaxTokens:    128,
		HasMaxTokens: true,
	}
	body := buildChatRequest(req, false)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "system", body.Messages[0].Role)
	assert.Equal(t, "user", body.Messages[1].Role)
	require.NotNil(t, body.MaxTokens)
	assert.Equal(t, 128, *body.MaxTokens)
	assert.False(t, body.Stream)
}

func TestGenerate_ParsesContentAndUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		buf, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(buf), `"model":"command-r-plus"`)
		w.Write([]byte(`{"message":{"content":[{"type":"text","text":"hi there"}]},"finish_reason":"COMPLETE","usage":{"tokens":{"input_tokens":4,"output_tokens":6}}}`))
	}))
	defer srv.Close()

	p := New(WithAPIKey("test-key"), WithBaseURL(srv.URL))
	resp, err := p.Generate(context.Background(), types.LlmRequest{
		Model:    "command-r-plus",
		Messages: []types.Message{{Role: types.RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, uint32(10), resp.Usage.TotalTokens)
}

func TestGenerate_MapsRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"rate limit exceeded"}`))
	}))
	defer srv.Close()

	p := New(WithAPIKey("k"), WithBaseURL(srv.URL))
	_, err := p.Generate(context.Background(), types.LlmRequest{Model: "command-r-plus"})
	require.Error(t, err)
	assert.True(t, errors.IsRateLimit(err))
}

func TestGenerateStream_SkipsUnknownEventsAndReturnsFinal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		w.Write([]byte("data: {\"type\":\"message-start\"}\n\n"))
		flusher.Flush()
		w.Write([]byte("data: {\"type\":\"content-delta\",\"delta\":{\"message\":{\"content\":{\"text\":\"hi\"}}}}\n\n"))
		flusher.Flush()
		w.Write([]byte("data: {\"type\":\"message-end\",\"delta\":{\"usage\":{\"tokens\":{\"input_tokens\":3,\"output_tokens\":2}}}}\n\n"))
		flusher.Flush()
	}))
	defer srv.Close()

	p := New(WithAPIKey("k"), WithBaseURL(srv.URL))
	stream, err := p.GenerateStream(context.Background(), types.LlmRequest{Model: "command-r-plus"})
	require.NoError(t, err)
	defer stream.Close()

	c1, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hi", c1.Content)
	assert.False(t, c1.IsFinal)

	c2, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, c2.IsFinal)
	require.NotNil(t, c2.Usage)
	assert.Equal(t, uint32(5), c2.Usage.TotalTokens)
}
