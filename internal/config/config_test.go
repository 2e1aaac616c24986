package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Minimal(t *testing.T) {
	toml := `
[[tasks]]
name = "chat"

[[providers]]
type = "openai"
model = "gpt-4"
api_key = "test-key"
tasks = ["chat"]
`
	cfg, err := Parse([]byte(toml))
	require.NoError(t, err)
	require.Len(t, cfg.Tasks, 1)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "test-key", cfg.Providers[0].APIKey)
	assert.True(t, cfg.Providers[0].Enabled)
}

func TestParse_EnvVarResolution(t *testing.T) {
	os.Setenv("RELAYGRID_TEST_API_KEY", "resolved-key")
	defer os.Unsetenv("RELAYGRID_TEST_API_KEY")

	toml := `
[[tasks]]
name = "chat"

[[providers]]
type = "openai"
model = "gpt-4"
api_key = "${RELAYGRID_TEST_API_KEY}"
tasks = ["chat"]
`
	cfg, err := Parse([]byte(toml))
	require.NoError(t, err)
	assert.Equal(t, "resolved-key", cfg.Providers[0].APIKey)
}

func TestParse_UnresolvedEnvVarErrors(t *testing.T) {
	os.Unsetenv("RELAYGRID_DOES_NOT_EXIST")
	toml := `
[[tasks]]
name = "chat"

[[providers]]
type = "openai"
model = "gpt-4"
api_key = "${RELAYGRID_DOES_NOT_EXIST}"
tasks = ["chat"]
`
	_, err := Parse([]byte(toml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RELAYGRID_DOES_NOT_EXIST")
	assert.Contains(t, err.Error(), "providers[0].api_key")
}

func TestParse_InvalidProviderType(t *testing.T) {
	toml := `
[[providers]]
type = "invalid_provider"
model = "test"
api_key = "key"
`
	_, err := Parse([]byte(toml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider type")
}

func TestParse_UndefinedTaskReference(t *testing.T) {
	toml := `
[[providers]]
type = "openai"
model = "gpt-4"
api_key = "key"
tasks = ["undefined_task"]
`
	_, err := Parse([]byte(toml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined task")
}

func TestParse_DefaultSettings(t *testing.T) {
	toml := `
[[providers]]
type = "openai"
model = "gpt-4"
api_key = "key"
`
	cfg, err := Parse([]byte(toml))
	require.NoError(t, err)
	assert.Equal(t, "lru", cfg.Strategy)
	assert.Equal(t, uint(5), cfg.MaxRetries)
	assert.Empty(t, cfg.DebugFolder)
}

func TestParse_UnknownStrategy(t *testing.T) {
	toml := `
[settings]
strategy = "not-a-strategy"

[[providers]]
type = "openai"
model = "gpt-4"
api_key = "key"
`
	_, err := Parse([]byte(toml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")
}

func TestParse_CollectsMultipleViolations(t *testing.T) {
	toml := `
[settings]
strategy = "bogus"

[[providers]]
type = "bogus-provider"
model = "m"
api_key = "key"
tasks = ["missing"]
`
	_, err := Parse([]byte(toml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")
	assert.Contains(t, err.Error(), "unknown provider type")
	assert.Contains(t, err.Error(), "undefined task")
}
