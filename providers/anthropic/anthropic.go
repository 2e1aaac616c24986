// Package anthropic provides the Anthropic Messages API adapter. Unlike the
// seven OpenAI-wire-compatible families, Anthropic uses its own request
// shape, auth headers, and event-typed SSE stream.
package anthropic

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
	// ProviderName is the identifier for this provider.
	ProviderName = "anthropic"

	// DefaultBaseURL is the default Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultAPIVersion is sent as the anthropic-version header.
	DefaultAPIVersion = "2023-06-01"

	// defaultMaxTokens is sent when the request has no MaxTokens override;
	// the Messages API requires the field and rejects a request without it.
	defaultMaxTokens = 4096
)

// Provider implements provider.Adapter for Anthropic's Messages API.
type Provider struct {
	apiKey     string
	baseURL    string
	apiVersion string
	headers    map[string]string
	httpClient *http.Client
	streamer   *http.Client
}

// New creates a new Anthropic provider with the given options.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL:    DefaultBaseURL,
		apiVersion: DefaultAPIVersion,
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

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature *float32  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type usage struct {
	InputTokens  uint32 `json:"input_tokens"`
	OutputTokens uint32 `json:"output_tokens"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
	Model   string         `json:"model"`
	Usage   usage          `json:"usage"`
}

// buildMessagesRequest translates the generic LlmRequest into Anthropic's
// wire shape. A lone system message is folded into the System field; any
// non-system messages become the ordered message list. If no user-role
// message is present after that split, the Messages API rejects the call
// (it requires at least one user turn), so when there is system text a
// synthetic user message carrying it is spliced in front of whatever
// remains — matching upstream expectations
// exactly rather than silently dropping the conversation.
func buildMessagesRequest(req types.LlmRequest, stream bool) messagesRequest {
	out := messagesRequest{
		Model:     req.Model,
		MaxTokens: defaultMaxTokens,
		Stream:    stream,
	}
	if req.HasMaxTokens && req.MaxTokens > 0 {
		out.MaxTokens = int(req.MaxTokens)
	}
	if req.HasTemperature {
		t := req.Temperature
		out.Temperature = &t
	}

	var system strings.Builder
	hasUser := false
	for _, m := range req.Messages {
		if m.Role == types.RoleSystem {
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(m.Content)
			continue
		}
		role := string(m.Role)
		if m.Role == types.RoleModel {
			role = "assistant"
		}
		if role == "user" {
			hasUser = true
		}
		out.Messages = append(out.Messages, message{Role: role, Content: m.Content})
	}
	out.System = system.String()

	if !hasUser && system.Len() > 0 {
		synthetic := message{Role: "user", Content: system.String()}
		out.Messages = append([]message{synthetic}, out.Messages...)
	}
	return out
}

func (p *Provider) buildRequest(ctx context.Context, req types.LlmRequest, stream bool) (*http.Request, error) {
	body := buildMessagesRequest(req, stream)
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimSuffix(p.baseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", p.apiVersion)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// Generate performs a single non-streaming Messages API call.
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

	var parsed messagesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return types.LlmResponse{}, errors.NewParseError(ProviderName, req.Model, err.Error())
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return types.LlmResponse{
		Content: text.String(),
		Model:   firstNonEmpty(parsed.Model, req.Model),
		Usage: types.TokenUsage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
	}, nil
}

// GenerateStream opens a streaming Messages API call.
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

// event-typed payload shapes. Only the fields this adapter reads are typed;
// the rest of each event (message IDs, stop sequences, tool-use blocks) is
// left unparsed since chat-only streaming never needs them.
type deltaEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Message struct {
		Model string         `json:"model"`
		Usage *anthropicUsage `json:"usage"`
	} `json:"message"`
	Usage *anthropicUsage `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  uint32 `json:"input_tokens"`
	OutputTokens uint32 `json:"output_tokens"`
}

// Next decodes one Anthropic SSE event into a StreamChunk. message_start
// carries the model id; content_block_delta carries text; message_delta
// carries the final stop reason and (often) usage; every other event type
// (content_block_start/stop, ping, message_stop) is skipped.
func (s *chunkStream) Next(ctx context.Context) (types.StreamChunk, error) {
	for {
		if err := ctx.Err(); err != nil {
			return types.StreamChunk{}, err
		}
		payload, err := s.decoder.Next()
		if err != nil {
			return types.StreamChunk{}, err
		}

		var event deltaEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return types.StreamChunk{}, errors.NewParseError(ProviderName, s.model, err.Error())
		}

		switch event.Type {
		case "message_start":
			if event.Message.Model != "" {
				s.model = event.Message.Model
			}
			continue
		case "content_block_delta":
			if event.Delta.Type != "text_delta" {
				continue
			}
			return types.StreamChunk{Content: event.Delta.Text, Model: s.model}, nil
		case "message_delta":
			out := types.StreamChunk{Model: s.model, IsFinal: event.Delta.StopReason != ""}
			if event.Usage != nil {
				out.Usage = &types.TokenUsage{
					PromptTokens:     event.Usage.InputTokens,
					CompletionTokens: event.Usage.OutputTokens,
					TotalTokens:      event.Usage.InputTokens + event.Usage.OutputTokens,
				}
			}
			if out.IsFinal || out.Usage != nil {
				return out, nil
			}
			continue
		default:
			continue
		}
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
	return errors.ClassifyAPIError(ProviderName, model, statusCode, message)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
