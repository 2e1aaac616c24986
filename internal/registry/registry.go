// Package registry holds the Instance type: an immutable, numbered pairing
// of a provider Adapter with its model, credential, endpoint override and
// supported-task set. Instances are created once at Manager build time and
// never mutated afterward (grounded in the teacher's provider.Deployment,
// trimmed to what task-based routing needs).
package registry

import (
	"github.com/relaygrid/relaygrid/pkg/provider"
)

// Instance is one configured, addressable endpoint. Immutable after
// construction; the Manager assigns ID on registration and never changes it.
type Instance struct {
	ID             int
	ProviderType   string
	Adapter        provider.Adapter
	Model          string
	Enabled        bool
	SupportedTasks map[string]TaskSnapshot
}

// TaskSnapshot is the default-parameter map captured for one task name at the
// moment this Instance was registered, so later edits to a TaskDefinition
// (there are none post-build, but the snapshot makes that invariant explicit)
// cannot retroactively change an already-built Instance's behavior.
type TaskSnapshot struct {
	Defaults map[string]any
}

// SupportsTask reports whether this Instance declares support for task.
func (i *Instance) SupportsTask(task string) bool {
	_, ok := i.SupportedTasks[task]
	return ok
}
