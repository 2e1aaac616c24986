package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RequestsTotal.WithLabelValues("openai", "gpt-4", "chat").Inc()
	m.ErrorsTotal.WithLabelValues("openai", "gpt-4", "chat", "rate_limit").Inc()
	m.ProviderHealth.WithLabelValues("openai", "gpt-4").Set(1)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	var found bool
	for _, f := range families {
		if f.GetName() == "relaygrid_requests_total" {
			found = true
			require.Len(t, f.Metric, 1)
			assert.Equal(t, 1.0, f.Metric[0].Counter.GetValue())
		}
	}
	assert.True(t, found, "expected relaygrid_requests_total to be registered")
}

func TestTaskLabel(t *testing.T) {
	assert.Equal(t, "default", TaskLabel(""))
	assert.Equal(t, "chat", TaskLabel("chat"))
}

func TestNew_NilRegistererUsesDefault(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m = New(nil)
	})
	require.NotNil(t, m)
}
