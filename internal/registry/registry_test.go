package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstance_SupportsTask(t *testing.T) {
	inst := &Instance{
		ID: 0,
		SupportedTasks: map[string]TaskSnapshot{
			"chat": {Defaults: map[string]any{"temperature": 0.5}},
		},
	}
	assert.True(t, inst.SupportsTask("chat"))
	assert.False(t, inst.SupportsTask("summarize"))
}
