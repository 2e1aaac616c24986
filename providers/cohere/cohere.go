// Package cohere provides the Cohere Chat v2 API adapter. It uses its own
// typed-event SSE stream (content-delta, message-end) rather than the
// OpenAI-style delta-choices shape the openailike base decodes.
package cohere

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

const (
	ProviderName   = "cohere"
	DefaultBaseURL = "https://api.cohere.com/v2"
)

// Provider implements provider.Adapter for Cohere's Chat v2 API.
type Provider struct {
	apiKey     string
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
	streamer   *http.Client
}

// New creates a new Cohere provider with the given options.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL:    DefaultBaseURL,
		headers:    map[string]string{},
		httpClient: provider.NewHTTPClient(),
		streamer:   provider.NewStreamingHTTPClient(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromConfig creates a provider from a validated provider.Config.
func NewFromConfig(cfg provider.Config) (provider.Adapter, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if err := provider.ValidateBaseURL(baseURL, cfg.AllowPrivateBaseURL); err != nil {
		return nil, fmt.Errorf("%s: %w", ProviderName, err)
	}
	p := New(WithAPIKey(cfg.APIKey), WithBaseURL(baseURL))
	for k, v := range cfg.Headers {
		p.headers[k] = v
	}
	if cfg.HTTPClient != nil {
		p.httpClient = cfg.HTTPClient
		p.streamer = cfg.HTTPClient
	} else if cfg.RateLimit != nil {
		p.httpClient = provider.WithRateLimit(p.httpClient, cfg.RateLimit)
		p.streamer = provider.WithRateLimit(p.streamer, cfg.RateLimit)
	}
	return p, nil
}

func (p *Provider) Name() string            { return ProviderName }
func (p *Provider) SupportsStreaming() bool { return true }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float32      `json:"temperature,omitempty"`
}

type tokenUsage struct {
	InputTokens  uint32 `json:"input_tokens"`
	OutputTokens uint32 `json:"output_tokens"`
}

type usage struct {
	Tokens tokenUsage `json:"tokens"`
}

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type chatResponse struct {
	Message struct {
		Content []textContent `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
	Usage        usage  `json:"usage"`
}

func buildChatRequest(req types.LlmRequest, stream bool) chatRequest {
	out := chatRequest{
		Model:    req.Model,
		Messages: make([]chatMessage, len(req.Messages)),
		Stream:   stream,
	}
	for i, m := range req.Messages {
		out.Messages[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	if req.HasMaxTokens {
		mt := int(req.MaxTokens)
		out.MaxTokens = &mt
	}
	if req.HasTemperature {
		t := req.Temperature
		out.Temperature = &t
	}
	return out
}

func (p *Provider) buildRequest(ctx context.Context, req types.LlmRequest, stream bool) (*http.Request, error) {
	body := buildChatRequest(req, stream)
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimSuffix(p.baseURL, "/") + "/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// Generate performs a single non-streaming Chat v2 call.
func (p *Provider) Generate(ctx context.Context, req types.LlmRequest) (types.LlmResponse, error) {
	httpReq, err := p.buildRequest(ctx, req, false)
	if err != nil {
		return types.LlmResponse{}, errors.NewRequestError(ProviderName, req.Model, err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return types.LlmResponse{}, errors.NewRequestError(ProviderName, req.Model, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.LlmResponse{}, errors.NewRequestError(ProviderName, req.Model, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.LlmResponse{}, p.mapError(req.Model, resp.StatusCode, raw)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return types.LlmResponse{}, errors.NewParseError(ProviderName, req.Model, err.Error())
	}

	var text strings.Builder
	for _, c := range parsed.Message.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}

	return types.LlmResponse{
		Content: text.String(),
		Model:   req.Model,
		Usage: types.TokenUsage{
			PromptTokens:     parsed.Usage.Tokens.InputTokens,
			CompletionTokens: parsed.Usage.Tokens.OutputTokens,
			TotalTokens:      parsed.Usage.Tokens.InputTokens + parsed.Usage.Tokens.OutputTokens,
		},
	}, nil
}

// GenerateStream opens a streaming Chat v2 call.
func (p *Provider) GenerateStream(ctx context.Context, req types.LlmRequest) (provider.ChunkStream, error) {
	httpReq, err := p.buildRequest(ctx, req, true)
	if err != nil {
		return nil, errors.NewRequestError(ProviderName, req.Model, err)
	}

	resp, err := p.streamer.Do(httpReq)
	if err != nil {
		return nil, errors.NewRequestError(ProviderName, req.Model, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, p.mapError(req.Model, resp.StatusCode, raw)
	}

	return &chunkStream{
		decoder: sse.NewDecoder(resp.Body),
		model:   req.Model,
	}, nil
}

type chunkStream struct {
	decoder *sse.Decoder
	model   string
}

// streamEvent covers the two event types this adapter cares about:
// content-delta (text) and message-end (final usage). Other event types
// (message-start, content-start, content-end, tool-plan-delta) are skipped.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Message struct {
			Content struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"message"`
		Usage *usage `json:"usage"`
	} `json:"delta"`
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

		var event streamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return types.StreamChunk{}, errors.NewParseError(ProviderName, s.model, err.Error())
		}

		switch event.Type {
		case "content-delta":
			text := event.Delta.Message.Content.Text
			if text == "" {
				continue
			}
			return types.StreamChunk{Content: text, Model: s.model}, nil
		case "message-end":
			out := types.StreamChunk{Model: s.model, IsFinal: true}
			if event.Delta.Usage != nil {
				out.Usage = &types.TokenUsage{
					PromptTokens:     event.Delta.Usage.Tokens.InputTokens,
					CompletionTokens: event.Delta.Usage.Tokens.OutputTokens,
					TotalTokens:      event.Delta.Usage.Tokens.InputTokens + event.Delta.Usage.Tokens.OutputTokens,
				}
			}
			return out, nil
		default:
			continue
		}
	}
}

func (s *chunkStream) Close() error { return s.decoder.Close() }

func (p *Provider) mapError(model string, statusCode int, body []byte) error {
	var errResp struct {
		Message string `json:"message"`
	}
	message := string(body)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		message = errResp.Message
	}
	return errors.ClassifyAPIError(ProviderName, model, statusCode, message)
}
