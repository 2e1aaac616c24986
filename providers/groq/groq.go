// Package groq provides the Groq provider, an OpenAI-wire-compatible
// ultra-fast inference host for open-source models.
// API Reference: https://console.groq.com/docs/api-reference
package groq

import (
	"github.com/relaygrid/relaygrid/pkg/provider"
	"github.com/relaygrid/relaygrid/providers/openailike"
)

const (
	ProviderName   = "groq"
	DefaultBaseURL = "https://api.groq.com/openai/v1"
)

var providerInfo = openailike.Info{
	Name:           ProviderName,
	DefaultBaseURL: DefaultBaseURL,
	ModelPrefixes:  []string{"llama", "mixtral", "gemma"},
}

// Provider wraps the OpenAI-like base for Groq.
type Provider struct {
	*openailike.Provider
}

// New creates a new Groq provider with the given options.
func New(opts ...openailike.Option) *Provider {
	return &Provider{Provider: openailike.New(providerInfo, opts...)}
}

// NewFromConfig creates a provider from a Config struct.
func NewFromConfig(cfg provider.Config) (provider.Adapter, error) {
	return openailike.NewFromConfig(providerInfo, cfg)
}
