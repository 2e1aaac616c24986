package relaygrid

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/relaygrid/relaygrid/internal/config"
	"github.com/relaygrid/relaygrid/pkg/types"
)

// NewManagerFromFile loads a TOML configuration file and builds a Manager
// from it in one step, applying any BuildOption overrides (logger, metrics
// registerer) on top of the file's settings.
func NewManagerFromFile(path string, opts ...BuildOption) (*Manager, error) {
	validated, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewManagerFromValidated(validated, opts...)
}

// NewManagerFromConfig parses TOML bytes and builds a Manager from it.
func NewManagerFromConfig(tomlData []byte, opts ...BuildOption) (*Manager, error) {
	validated, err := config.Parse(tomlData)
	if err != nil {
		return nil, err
	}
	return NewManagerFromValidated(validated, opts...)
}

// BuildOption customizes a Builder produced from a parsed configuration,
// for the handful of settings (logger, metrics registerer, debug folder
// override) that a TOML file has no syntax for.
type BuildOption func(*Builder)

// WithLoggerOption installs logger on the Builder derived from a config file.
func WithLoggerOption(logger *slog.Logger) BuildOption {
	return func(b *Builder) { b.WithLogger(logger) }
}

// WithMetricsRegistererOption installs reg on the Builder derived from a
// config file.
func WithMetricsRegistererOption(reg prometheus.Registerer) BuildOption {
	return func(b *Builder) { b.WithMetricsRegisterer(reg) }
}

// NewManagerFromValidated materializes a Manager from an already-validated
// configuration record, translating config.TaskSpec/ProviderSpec into the
// Builder's TaskDefinition/InstanceConfig shapes.
func NewManagerFromValidated(validated *config.Validated, opts ...BuildOption) (*Manager, error) {
	b := NewBuilder().
		WithStrategy(validated.Strategy).
		WithMaxRetries(validated.MaxRetries)
	if validated.DebugFolder != "" {
		b = b.WithDebugFolder(validated.DebugFolder)
	}

	for _, t := range validated.Tasks {
		task := types.NewTaskDefinition(t.Name)
		if t.MaxTokens != nil {
			task = task.WithParam("max_tokens", *t.MaxTokens)
		}
		if t.Temperature != nil {
			task = task.WithParam("temperature", *t.Temperature)
		}
		b = b.WithTask(task)
	}

	for _, p := range validated.Providers {
		b = b.WithInstance(InstanceConfig{
			Name:         p.Name,
			ProviderType: p.Type,
			Model:        p.Model,
			APIKey:       p.APIKey,
			Endpoint:     p.Endpoint,
			Disabled:     !p.Enabled,
			Tasks:        p.Tasks,
		})
	}

	for _, opt := range opts {
		opt(b)
	}
	return b.Build()
}
