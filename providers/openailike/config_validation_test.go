package openailike

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaygrid/relaygrid/pkg/provider"
)

func TestNewFromConfig_RequiresBaseURL(t *testing.T) {
	info := Info{
		Name:           "test-provider",
		DefaultBaseURL: "",
	}

	_, err := NewFromConfig(info, provider.Config{
		APIKey:  "test",
		BaseURL: "",
	})
	require.Error(t, err)
}

func TestNewFromConfig_RejectsPrivateBaseURLByDefault(t *testing.T) {
	info := Info{Name: "test-provider", DefaultBaseURL: "https://api.test.com"}

	_, err := NewFromConfig(info, provider.Config{
		APIKey:  "test",
		BaseURL: "http://127.0.0.1:1234/v1",
	})
	require.Error(t, err)
}

func TestNewFromConfig_AllowsPrivateBaseURLWhenExplicit(t *testing.T) {
	info := Info{Name: "test-provider", DefaultBaseURL: "https://api.test.com"}

	_, err := NewFromConfig(info, provider.Config{
		APIKey:              "test",
		BaseURL:             "http://127.0.0.1:1234/v1",
		AllowPrivateBaseURL: true,
	})
	require.NoError(t, err)
}

func TestNewFromConfig_LocalNetworkProviderAllowsPrivateByDefault(t *testing.T) {
	info := Info{Name: "ollama", DefaultBaseURL: "http://localhost:11434/v1", AllowPrivateDefault: true}

	_, err := NewFromConfig(info, provider.Config{BaseURL: "http://localhost:11434/v1"})
	require.NoError(t, err)
}
