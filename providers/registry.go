// Package providers provides a unified registry mapping provider-family type
// tags to their Adapter factories, so the Manager builder can construct an
// Adapter from a configuration record without a
// switch statement per call site. Grounded in the teacher's own
// providers/registry.go.
package providers

import (
	"fmt"
	"sync"

	"github.com/relaygrid/relaygrid/pkg/provider"
	"github.com/relaygrid/relaygrid/providers/anthropic"
	"github.com/relaygrid/relaygrid/providers/cohere"
	"github.com/relaygrid/relaygrid/providers/gemini"
	"github.com/relaygrid/relaygrid/providers/groq"
	"github.com/relaygrid/relaygrid/providers/lmstudio"
	"github.com/relaygrid/relaygrid/providers/mistral"
	"github.com/relaygrid/relaygrid/providers/ollama"
	"github.com/relaygrid/relaygrid/providers/openai"
	"github.com/relaygrid/relaygrid/providers/perplexity"
	"github.com/relaygrid/relaygrid/providers/together"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]provider.Factory{}
	once       sync.Once
)

// Register registers factory under providerType, overwriting any existing
// registration for that type.
func Register(providerType string, factory provider.Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[providerType] = factory
}

// Get returns the factory registered for providerType, if any.
func Get(providerType string) (provider.Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[providerType]
	return f, ok
}

// Create constructs an Adapter for cfg's provider type.
func Create(providerType string, cfg provider.Config) (provider.Adapter, error) {
	factory, ok := Get(providerType)
	if !ok {
		return nil, fmt.Errorf("unknown provider type %q (available: %v)", providerType, List())
	}
	return factory(cfg)
}

// List returns every registered provider type tag.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// RegisterBuiltins registers the ten provider-family factories named in
// §4.7. Called automatically on package init.
func RegisterBuiltins() {
	once.Do(func() {
		Register("openai", openai.NewFromConfig)
		Register("mistral", mistral.NewFromConfig)
		Register("groq", groq.NewFromConfig)
		Register("lmstudio", lmstudio.NewFromConfig)
		Register("togetherai", together.NewFromConfig)
		Register("perplexity", perplexity.NewFromConfig)
		Register("ollama", ollama.NewFromConfig)
		Register("anthropic", anthropic.NewFromConfig)
		Register("google", gemini.NewFromConfig)
		Register("cohere", cohere.NewFromConfig)
	})
}

func init() {
	RegisterBuiltins()
}
