// Package openailike provides a base Adapter implementation for every
// provider that speaks the OpenAI chat-completions wire format with only
// cosmetic variation (endpoint path, auth header, default base URL). Seven
// of the ten built-in adapters (openai, mistral, groq, ollama, perplexity,
// together, lmstudio) embed a *Provider configured with their own Info and
// inherit Generate/GenerateStream/SupportsStreaming unchanged.
package openailike

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/relaygrid/relaygrid/internal/sse"
	"github.com/relaygrid/relaygrid/pkg/errors"
	"github.com/relaygrid/relaygrid/pkg/provider"
	"github.com/relaygrid/relaygrid/pkg/types"
)

// Info carries the per-provider-family constants that parameterize the
// shared Provider: endpoint, auth scheme, default host.
type Info struct {
	Name                string
	DefaultBaseURL      string
	APIKeyHeader        string // default "Authorization"
	APIKeyPrefix        string // default "Bearer " when APIKeyHeader is Authorization
	ChatEndpoint        string // default "/chat/completions"
	ExtraHeaders        map[string]string
	ModelPrefixes       []string
	AllowPrivateDefault bool // true for local-network providers (ollama, lmstudio)
}

// Provider implements provider.Adapter for one OpenAI-wire-compatible
// provider family.
type Provider struct {
	info       Info
	apiKey     string
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
	streamer   *http.Client
}

// New constructs a Provider directly from Info and functional options,
// bypassing provider.Config validation. Used by the thin per-family
// wrappers' New() entry points.
func New(info Info, opts ...Option) *Provider {
	p := &Provider{
		info:       info,
		baseURL:    info.DefaultBaseURL,
		headers:    map[string]string{},
		httpClient: provider.NewHTTPClient(),
		streamer:   provider.NewStreamingHTTPClient(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromConfig constructs a Provider from a validated provider.Config.
func NewFromConfig(info Info, cfg provider.Config) (provider.Adapter, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = info.DefaultBaseURL
	}
	allowPrivate := cfg.AllowPrivateBaseURL || info.AllowPrivateDefault
	if err := provider.ValidateBaseURL(baseURL, allowPrivate); err != nil {
		return nil, fmt.Errorf("%s: %w", info.Name, err)
	}
	p := &Provider{
		info:       info,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		headers:    map[string]string{},
		httpClient: provider.NewHTTPClient(),
		streamer:   provider.NewStreamingHTTPClient(),
	}
	if cfg.HTTPClient != nil {
		p.httpClient = cfg.HTTPClient
		p.streamer = cfg.HTTPClient
	} else if cfg.RateLimit != nil {
		p.httpClient = provider.WithRateLimit(p.httpClient, cfg.RateLimit)
		p.streamer = provider.WithRateLimit(p.streamer, cfg.RateLimit)
	}
	for k, v := range cfg.Headers {
		p.headers[k] = v
	}
	return p, nil
}

func (p *Provider) Name() string           { return p.info.Name }
func (p *Provider) SupportsStreaming() bool { return true }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   *uint32       `json:"max_tokens,omitempty"`
	Temperature *float32      `json:"temperature,omitempty"`
}

type usage struct {
	PromptTokens     uint32 `json:"prompt_tokens"`
	CompletionTokens uint32 `json:"completion_tokens"`
	TotalTokens      uint32 `json:"total_tokens"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage usage `json:"usage"`
}

type streamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}

func (p *Provider) buildRequest(ctx context.Context, req types.LlmRequest, stream bool) (*http.Request, error) {
	body := p.buildBody(req, stream)
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := p.info.ChatEndpoint
	if endpoint == "" {
		endpoint = "/chat/completions"
	}
	url := strings.TrimSuffix(p.baseURL, "/") + endpoint

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	apiKeyHeader := p.info.APIKeyHeader
	if apiKeyHeader == "" {
		apiKeyHeader = "Authorization"
	}
	apiKeyPrefix := p.info.APIKeyPrefix
	if apiKeyPrefix == "" && apiKeyHeader == "Authorization" {
		apiKeyPrefix = "Bearer "
	}
	if p.apiKey != "" {
		httpReq.Header.Set(apiKeyHeader, apiKeyPrefix+p.apiKey)
	}

	for k, v := range p.info.ExtraHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

// buildBody always emits an explicit "stream" field (true or false) rather
// than omitting it for the non-streaming case; several OpenAI-compatible
// providers (observed on Mistral and Ollama) default a missing field to
// streaming mode on some server versions.
func (p *Provider) buildBody(req types.LlmRequest, stream bool) chatRequest {
	body := chatRequest{
		Model:    req.Model,
		Messages: make([]chatMessage, len(req.Messages)),
		Stream:   stream,
	}
	for i, m := range req.Messages {
		body.Messages[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	if req.HasMaxTokens {
		mt := req.MaxTokens
		body.MaxTokens = &mt
	}
	if req.HasTemperature {
		t := req.Temperature
		body.Temperature = &t
	}
	return body
}

// Generate performs a single non-streaming chat-completion call.
func (p *Provider) Generate(ctx context.Context, req types.LlmRequest) (types.LlmResponse, error) {
	httpReq, err := p.buildRequest(ctx, req, false)
	if err != nil {
		return types.LlmResponse{}, errors.NewRequestError(p.info.Name, req.Model, err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return types.LlmResponse{}, errors.NewRequestError(p.info.Name, req.Model, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.LlmResponse{}, errors.NewRequestError(p.info.Name, req.Model, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.LlmResponse{}, p.mapError(req.Model, resp.StatusCode, raw)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return types.LlmResponse{}, errors.NewParseError(p.info.Name, req.Model, err.Error())
	}
	if len(parsed.Choices) == 0 {
		return types.LlmResponse{}, errors.NewApiError(p.info.Name, req.Model, "response contained no choices")
	}

	return types.LlmResponse{
		Content: parsed.Choices[0].Message.Content,
		Model:   firstNonEmpty(parsed.Model, req.Model),
		Usage: types.TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}

// GenerateStream opens a streaming chat-completion call and returns a lazy
// decoder over its SSE body.
func (p *Provider) GenerateStream(ctx context.Context, req types.LlmRequest) (provider.ChunkStream, error) {
	httpReq, err := p.buildRequest(ctx, req, true)
	if err != nil {
		return nil, errors.NewRequestError(p.info.Name, req.Model, err)
	}

	resp, err := p.streamer.Do(httpReq)
	if err != nil {
		return nil, errors.NewRequestError(p.info.Name, req.Model, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, p.mapError(req.Model, resp.StatusCode, raw)
	}

	return &chunkStream{
		decoder:      sse.NewDecoder(resp.Body),
		providerName: p.info.Name,
		model:        req.Model,
	}, nil
}

type chunkStream struct {
	decoder      *sse.Decoder
	providerName string
	model        string
}

func (s *chunkStream) Next(ctx context.Context) (types.StreamChunk, error) {
	for {
		if err := ctx.Err(); err != nil {
			return types.StreamChunk{}, err
		}
		payload, err := s.decoder.Next()
		if err != nil {
			return types.StreamChunk{}, err
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return types.StreamChunk{}, errors.NewParseError(s.providerName, s.model, err.Error())
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		out := types.StreamChunk{
			Content: chunk.Choices[0].Delta.Content,
			Model:   firstNonEmpty(chunk.Model, s.model),
		}
		if chunk.Choices[0].FinishReason != nil {
			out.IsFinal = true
		}
		if chunk.Usage != nil {
			out.Usage = &types.TokenUsage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		return out, nil
	}
}

func (s *chunkStream) Close() error { return s.decoder.Close() }

func (p *Provider) mapError(model string, statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	message := string(body)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}
	return errors.ClassifyAPIError(p.info.Name, model, statusCode, message)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
