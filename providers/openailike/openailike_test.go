package openailike

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

func testInfo(baseURL string) Info {
	return Info{
		Name:           "test-provider",
		DefaultBaseURL: baseURL,
	}
}

func TestGenerate_SendsExplicitStreamFalse(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		w.Write([]byte(`{"model":"m","choices":[{"message":{"content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer srv.Close()

	p := New(testInfo(srv.URL), WithAPIKey("k"))
	resp, err := p.Generate(context.Background(), types.LlmRequest{
		Model:    "m",
		Messages: []types.Message{{Role: types.RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, uint32(2), resp.Usage.TotalTokens)
	assert.Contains(t, gotBody, `"stream":false`)
}

func TestGenerate_MapsRateLimitByStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	p := New(testInfo(srv.URL))
	_, err := p.Generate(context.Background(), types.LlmRequest{Model: "m"})
	require.Error(t, err)
	assert.True(t, errors.IsRateLimit(err))
}

func TestGenerate_MapsRateLimitByKeyword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"model is currently overloaded"}}`))
	}))
	defer srv.Close()

	p := New(testInfo(srv.URL))
	_, err := p.Generate(context.Background(), types.LlmRequest{Model: "m"})
	require.Error(t, err)
	assert.True(t, errors.IsRateLimit(err))
}

func TestGenerateStream_YieldsChunksAndFinalFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		w.Write([]byte("data: {\"model\":\"m\",\"choices\":[{\"delta\":{\"content\":\"he\"}}]}\n\n"))
		flusher.Flush()
		w.Write([]byte("data: {\"model\":\"m\",\"choices\":[{\"delta\":{\"content\":\"llo\"},\"finish_reason\":\"stop\"}]}\n\n"))
		flusher.Flush()
		w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	}))
	defer srv.Close()

	p := New(testInfo(srv.URL))
	stream, err := p.GenerateStream(context.Background(), types.LlmRequest{Model: "m"})
	require.NoError(t, err)
	defer stream.Close()

	c1, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "he", c1.Content)
	assert.False(t, c1.IsFinal)

	c2, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "llo", c2.Content)
	assert.True(t, c2.IsFinal)

	_, err = stream.Next(context.Background())
	assert.Error(t, err)
}
