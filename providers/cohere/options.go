package cohere

import "net/http"

// Option configures a Provider constructed via New.
type Option func(*Provider)

// WithAPIKey sets the bearer credential.
func WithAPIKey(key string) Option { return func(p *Provider) { p.apiKey = key } }

// WithBaseURL overrides the provider's default endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.baseURL = url
		}
	}
}

// WithHeader adds one static header sent on every request.
func WithHeader(k, v string) Option { return func(p *Provider) { p.headers[k] = v } }

// WithHTTPClient overrides both the non-streaming and streaming clients.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
		p.streamer = client
	}
}
