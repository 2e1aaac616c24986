// Package gemini provides the Google Gemini generateContent API adapter.
// Authentication is a URL query parameter rather than a header, and
// streaming uses "?alt=sse" over the same endpoint with a typed
// candidate/finishReason response shape instead of OpenAI-style deltas.
package gemini

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/relaygrid/relaygrid/internal/sse"
	"github.com/relaygrid/relaygrid/pkg/errors"
	"github.com/relaygrid/relaygrid/pkg/provider"
	"github.com/relaygrid/relaygrid/pkg/types"
)

const (
	ProviderName      = "google"
	DefaultBaseURL    = "https://generativelanguage.googleapis.com"
	DefaultAPIVersion = "v1beta"
)

// Provider implements provider.Adapter for Google's Gemini API.
type Provider struct {
	apiKey     string
	baseURL    string
	apiVersion string
	headers    map[string]string
	httpClient *http.Client
	streamer   *http.Client
}

// New creates a new Gemini provider with the given options.
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

type part struct {
	Text string `json:"text,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type usageMetadata struct {
	PromptTokenCount     uint32 `json:"promptTokenCount"`
	CandidatesTokenCount uint32 `json:"candidatesTokenCount"`
	TotalTokenCount      uint32 `json:"totalTokenCount"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type generateResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
}

func buildGenerateRequest(req types.LlmRequest) generateRequest {
	out := generateRequest{GenerationConfig: &generationConfig{}}
	if req.HasMaxTokens {
		out.GenerationConfig.MaxOutputTokens = int(req.MaxTokens)
	}
	if req.HasTemperature {
		t := req.Temperature
		out.GenerationConfig.Temperature = &t
	}

	for _, m := range req.Messages {
		if m.Role == types.RoleSystem {
			out.SystemInstruction = &content{Parts: []part{{Text: m.Content}}}
			continue
		}
		role := string(m.Role)
		if m.Role == types.RoleAssistant {
			role = "model"
		}
		out.Contents = append(out.Contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}
	return out
}

func (p *Provider) endpoint(model, action string, stream bool) (string, error) {
	base, err := url.Parse(strings.TrimSuffix(p.baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base_url: %w", err)
	}
	base.Path = base.Path + "/" + p.apiVersion + "/models/" + url.PathEscape(model) + ":" + action
	q := base.Query()
	q.Set("key", p.apiKey)
	if stream {
		q.Set("alt", "sse")
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func (p *Provider) buildRequest(ctx context.Context, req types.LlmRequest, stream bool) (*http.Request, error) {
	body := buildGenerateRequest(req)
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	action := "generateContent"
	if stream {
		action = "streamGenerateContent"
	}
	endpoint, err := p.endpoint(req.Model, action, stream)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// Generate performs a single non-streaming generateContent call.
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

	var parsed generateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return types.LlmResponse{}, errors.NewParseError(ProviderName, req.Model, err.Error())
	}
	if len(parsed.Candidates) == 0 {
		return types.LlmResponse{}, errors.NewApiError(ProviderName, req.Model, "response contained no candidates")
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	return types.LlmResponse{
		Content: text.String(),
		Model:   req.Model,
		Usage:   usageFromMetadata(parsed.UsageMetadata),
	}, nil
}

// usageFromMetadata maps Gemini's usageMetadata onto TokenUsage. Upstream
// responses are only ever observed to populate totalTokenCount reliably;
// prompt/candidates counts are read when present and left zero otherwise
// (see the Open Questions decision in DESIGN.md — this mirrors upstream
// behavior rather than papering over it).
func usageFromMetadata(m *usageMetadata) types.TokenUsage {
	if m == nil {
		return types.TokenUsage{}
	}
	return types.TokenUsage{
		PromptTokens:     m.PromptTokenCount,
		CompletionTokens: m.CandidatesTokenCount,
		TotalTokens:      m.TotalTokenCount,
	}
}

// GenerateStream opens a streamGenerateContent?alt=sse call.
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

func (s *chunkStream) Next(ctx context.Context) (types.StreamChunk, error) {
	for {
		if err := ctx.Err(); err != nil {
			return types.StreamChunk{}, err
		}
		payload, err := s.decoder.Next()
		if err != nil {
			return types.StreamChunk{}, err
		}

		var parsed generateResponse
		if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
			return types.StreamChunk{}, errors.NewParseError(ProviderName, s.model, err.Error())
		}
		if len(parsed.Candidates) == 0 {
			continue
		}

		c := parsed.Candidates[0]
		var text strings.Builder
		for _, part := range c.Content.Parts {
			text.WriteString(part.Text)
		}

		out := types.StreamChunk{Content: text.String(), Model: s.model, IsFinal: c.FinishReason != ""}
		if parsed.UsageMetadata != nil {
			u := usageFromMetadata(parsed.UsageMetadata)
			out.Usage = &u
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
	return errors.ClassifyAPIError(ProviderName, model, statusCode, message)
}
