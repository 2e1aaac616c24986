package gemini

import "net/http"

// Option configures a Provider constructed via New.
type Option func(*Provider)

// WithAPIKey sets the credential sent as the "key" URL query parameter.
func WithAPIKey(key string) Option { return func(p *Provider) { p.apiKey = key } }

// WithBaseURL overrides the provider's default endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.baseURL = url
		}
	}
}

// WithAPIVersion overrides the API version path segment (default v1beta).
func WithAPIVersion(v string) Option {
	return func(p *Provider) {
		if v != "" {
			p.apiVersion = v
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
