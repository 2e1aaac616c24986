// Package lmstudio provides the LM Studio adapter: a local-network,
// OpenAI-wire-compatible provider family for self-hosted model serving.
package lmstudio

import (
	"github.com/relaygrid/relaygrid/pkg/provider"
	"github.com/relaygrid/relaygrid/providers/openailike"
)

const (
	ProviderName   = "lmstudio"
	DefaultBaseURL = "http://localhost:1234/v1"
)

var providerInfo = openailike.Info{
	Name:                ProviderName,
	DefaultBaseURL:      DefaultBaseURL,
	AllowPrivateDefault: true,
}

// Provider wraps the OpenAI-like base for LM Studio.
type Provider struct {
	*openailike.Provider
}

// New creates a new LM Studio provider with the given options.
func New(opts ...openailike.Option) *Provider {
	return &Provider{Provider: openailike.New(providerInfo, opts...)}
}

// NewFromConfig creates a provider from a Config struct.
func NewFromConfig(cfg provider.Config) (provider.Adapter, error) {
	return openailike.NewFromConfig(providerInfo, cfg)
}
