// Package openai provides the OpenAI chat-completions adapter. It is the
// reference wrapper over openailike: other OpenAI-wire-compatible families
// follow this same shape.
package openai

import (
	"github.com/relaygrid/relaygrid/pkg/provider"
	"github.com/relaygrid/relaygrid/providers/openailike"
)

const (
	ProviderName   = "openai"
	DefaultBaseURL = "https://api.openai.com/v1"
)

var providerInfo = openailike.Info{
	Name:           ProviderName,
	DefaultBaseURL: DefaultBaseURL,
	ModelPrefixes:  []string{"gpt-", "o1-", "o3-"},
}

// Provider wraps the OpenAI-like base for OpenAI itself.
type Provider struct {
	*openailike.Provider
}

// New creates a new OpenAI provider with the given options.
func New(opts ...openailike.Option) *Provider {
	return &Provider{Provider: openailike.New(providerInfo, opts...)}
}

// NewFromConfig creates a provider from a Config struct.
func NewFromConfig(cfg provider.Config) (provider.Adapter, error) {
	return openailike.NewFromConfig(providerInfo, cfg)
}
