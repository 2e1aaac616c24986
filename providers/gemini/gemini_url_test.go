package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaygrid/relaygrid/pkg/provider"
	"github.com/relaygrid/relaygrid/pkg/types"
)

func TestBuildRequest_EncodesAPIKeyAndEscapesModel(t *testing.T) {
	pAny, err := NewFromConfig(provider.Config{
		APIKey:  "abc&evil=1",
		BaseURL: "https://example.com",
		Headers: map[string]string{
			"X-Foo": "bar",
		},
	})
	require.NoError(t, err)
	p := pAny.(*Provider)

	req, err := p.buildRequest(context.Background(), types.LlmRequest{
		Model: "gemini-1.5/flash",
	}, false)
	require.NoError(t, err)

	require.Equal(t, "/v1beta/models/gemini-1.5%2Fflash:generateContent", req.URL.Path)
	require.Equal(t, "abc&evil=1", req.URL.Query().Get("key"))
	require.Len(t, req.URL.Query(), 1)
	require.Equal(t, "bar", req.Header.Get("X-Foo"))
}

func TestBuildRequest_StreamAddsAltSSE(t *testing.T) {
	p := New(WithAPIKey("k"), WithBaseURL("https://example.com"))

	req, err := p.buildRequest(context.Background(), types.LlmRequest{Model: "gemini-1.5-flash"}, true)
	require.NoError(t, err)
	require.Equal(t, "/v1beta/models/gemini-1.5-flash:streamGenerateContent", req.URL.Path)
	require.Equal(t, "sse", req.URL.Query().Get("alt"))
}

func TestUsageFromMetadata_MapsTotalTokens(t *testing.T) {
	u := usageFromMetadata(&usageMetadata{TotalTokenCount: 42})
	require.Equal(t, uint32(42), u.TotalTokens)
	require.Equal(t, uint32(0), u.PromptTokens)
}
