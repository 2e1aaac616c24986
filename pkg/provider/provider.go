// Package provider declares the Adapter contract that every provider-family
// implementation (openai, anthropic, google, ...) satisfies. Adapters are
// pure per-call translation/HTTP logic; they hold no shared mutable state
// beyond the *http.Client they were constructed with, which is itself safe
// for concurrent use.
package provider

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/relaygrid/relaygrid/pkg/types"
)

// Adapter is the contract one provider-family implementation must satisfy.
type Adapter interface {
	// Name returns the provider-family tag, e.g. "openai", "anthropic".
	Name() string

	// Generate blocks until the upstream call completes (success or error),
	// translating 4xx/5xx/parse failures into *llmerr.LLMError.
	Generate(ctx context.Context, req types.LlmRequest) (types.LlmResponse, error)

	// GenerateStream returns a lazy chunk stream. It performs only the work
	// needed to open the HTTP connection and begin reading before
	// returning; per-chunk decoding happens as the caller calls Next.
	GenerateStream(ctx context.Context, req types.LlmRequest) (ChunkStream, error)

	// SupportsStreaming reports whether GenerateStream is meaningful for
	// this adapter. All ten built-in adapters return true.
	SupportsStreaming() bool
}

// ChunkStream is a lazy, finite sequence of StreamChunks. The adapter owns
// the underlying HTTP response body for the stream's lifetime; Close must be
// called exactly once by the consumer, whether or not the stream was read to
// completion.
type ChunkStream interface {
	// Next blocks until the next chunk is available, the stream ends
	// (err == io.EOF), or an error occurs. Once io.EOF is returned,
	// subsequent calls return io.EOF again; after an event that fails to
	// parse, the next call resumes with the following event.
	Next(ctx context.Context) (types.StreamChunk, error)
	// Close releases the underlying HTTP response body. Safe to call more
	// than once.
	Close() error
}

// Config is the immutable construction-time configuration for one Adapter
// instance: credentials, endpoint override, and dialing options.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string // empty means "use the provider's default"
	Headers map[string]string
	// AllowPrivateBaseURL permits loopback/private/link-local base URLs
	// (e.g. http://127.0.0.1:11434). Local-network providers such as Ollama
	// and LM Studio default this true at the Instance-builder level; hosted
	// providers default it false to reduce SSRF risk when base_url is
	// influenced by an untrusted configuration source.
	AllowPrivateBaseURL bool
	HTTPClient          *http.Client
	// RateLimit, if non-nil, paces this Instance's outbound calls independently
	// of the Dispatcher's retry budget. Ignored when HTTPClient is also set,
	// since the caller's client is used as-is.
	RateLimit *rate.Limiter
}

// Factory constructs an Adapter from its Config.
type Factory func(cfg Config) (Adapter, error)

// DefaultTimeout is the per-call HTTP timeout applied by adapter
// constructors unless the caller supplies its own http.Client.
const DefaultTimeout = 120 * time.Second

// NewHTTPClient returns an *http.Client with connection pooling and
// DefaultTimeout, suitable for non-streaming calls.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// NewStreamingHTTPClient returns an *http.Client tuned for SSE: no overall
// response timeout (it would cut off long-lived streams), but a
// ResponseHeaderTimeout so a dead upstream still fails fast before the first
// byte.
func NewStreamingHTTPClient() *http.Client {
	return &http.Client{Transport: &http.Transport{ResponseHeaderTimeout: 30 * time.Second}}
}
