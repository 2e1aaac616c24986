package relaygrid

import (
	"context"
	"log/slog"
	"sync"

	"github.com/relaygrid/relaygrid/internal/debugstore"
	"github.com/relaygrid/relaygrid/internal/dispatch"
	"github.com/relaygrid/relaygrid/internal/distcache"
	"github.com/relaygrid/relaygrid/internal/registry"
	"github.com/relaygrid/relaygrid/internal/tracker"
	llmerrors "github.com/relaygrid/relaygrid/pkg/errors"
	"github.com/relaygrid/relaygrid/pkg/provider"
	"github.com/relaygrid/relaygrid/pkg/types"
)

// Manager is the façade a caller holds: it owns every registered Instance
// and Tracker, the routing/strategy/dispatch machinery built from them, and
// exposes the request-level operations named in §4.
type Manager struct {
	instances   map[int]*registry.Instance
	trackers    map[int]*tracker.Tracker
	tasks       map[string]types.TaskDefinition
	dispatcher  *dispatch.Dispatcher
	debugStore  *debugstore.Store
	usageMirror *distcache.Mirror
	logger      *slog.Logger
	createdUnix int64
}

// Result is one GenerationRequest's outcome within a GenerateSequentially or
// BatchGenerate call: exactly one of Error or a populated LlmResponse-derived
// Content/Usage/Model is meaningful, discriminated by Success.
type Result struct {
	Content string
	Model   string
	Usage   types.TokenUsage
	Success bool
	Error   error
}

// resolveRequest merges a GenerationRequest's params on top of its task's
// defaults (request wins, per MergeParams) and turns it into a
// dispatch.Request. An unknown non-empty task name is a ConfigError; an
// empty task name means "dispatch across every registered instance".
func (m *Manager) resolveRequest(req types.GenerationRequest) (dispatch.Request, error) {
	defaults := map[string]any{}
	if req.Task != "" {
		def, ok := m.tasks[req.Task]
		if !ok {
			return dispatch.Request{}, llmerrors.NewConfigError("unknown task: " + req.Task)
		}
		defaults = def.Defaults
	}
	return dispatch.Request{
		Task:   req.Task,
		Prompt: req.Prompt,
		Params: types.MergeParams(defaults, req.Params),
	}, nil
}

// Generate dispatches one request, retrying across eligible instances per
// §4.2, and returns the first successful response or the last error once
// the retry budget is exhausted.
func (m *Manager) Generate(ctx context.Context, req types.GenerationRequest) (types.LlmResponse, error) {
	dreq, err := m.resolveRequest(req)
	if err != nil {
		return types.LlmResponse{}, err
	}
	resp, err := m.dispatcher.Dispatch(ctx, dreq)
	if err == nil {
		m.mirrorUsage(ctx)
	}
	return resp, err
}

// mirrorUsage writes the current TotalUsage to the configured Redis mirror,
// if any. A mirror failure is logged and otherwise ignored: it must never
// turn a successful dispatch into a reported failure.
func (m *Manager) mirrorUsage(ctx context.Context) {
	if m.usageMirror == nil {
		return
	}
	if err := m.usageMirror.Write(ctx, m.TotalUsage()); err != nil {
		m.logger.Warn("failed to mirror usage to redis", "error", err)
	}
}

// GenerateSequentially runs each request to completion, one at a time, in
// order, and collects a Result per request. Unlike BatchGenerate, each
// request starts only after the previous one has finished, so a slow or
// retried request delays every later one.
func (m *Manager) GenerateSequentially(ctx context.Context, reqs []types.GenerationRequest) []Result {
	results := make([]Result, len(reqs))
	for i, req := range reqs {
		results[i] = m.generateOne(ctx, req)
	}
	return results
}

// BatchGenerate runs every request concurrently and returns their Results in
// the same order the requests were given, regardless of completion order.
func (m *Manager) BatchGenerate(ctx context.Context, reqs []types.GenerationRequest) []Result {
	results := make([]Result, len(reqs))
	var wg sync.WaitGroup
	wg.Add(len(reqs))
	for i, req := range reqs {
		go func(i int, req types.GenerationRequest) {
			defer wg.Done()
			results[i] = m.generateOne(ctx, req)
		}(i, req)
	}
	wg.Wait()
	return results
}

func (m *Manager) generateOne(ctx context.Context, req types.GenerationRequest) Result {
	resp, err := m.Generate(ctx, req)
	if err != nil {
		return Result{Success: false, Error: err}
	}
	return Result{Content: resp.Content, Model: resp.Model, Usage: resp.Usage, Success: true}
}

// GenerateStream selects one eligible instance and opens a ChunkStream
// against it. Per §4.3, streaming performs no retry: a mid-stream failure
// surfaces to the caller as an error from the returned stream's Next.
func (m *Manager) GenerateStream(ctx context.Context, req types.GenerationRequest) (provider.ChunkStream, error) {
	dreq, err := m.resolveRequest(req)
	if err != nil {
		return nil, err
	}
	return m.dispatcher.DispatchStream(ctx, dreq)
}

// InstanceUsage returns the cumulative TokenUsage recorded for the instance
// with the given ID, or a ConfigError if no such instance is registered.
func (m *Manager) InstanceUsage(id int) (types.TokenUsage, error) {
	trk, ok := m.trackers[id]
	if !ok {
		return types.TokenUsage{}, llmerrors.NewConfigError("no such instance")
	}
	return trk.TokenUsage(), nil
}

// TotalUsage returns the sum of every registered instance's cumulative
// TokenUsage.
func (m *Manager) TotalUsage() types.TokenUsage {
	var total types.TokenUsage
	for _, trk := range m.trackers {
		total = total.Add(trk.TokenUsage())
	}
	return total
}

// ProviderCount returns the number of registered instances, enabled or not.
func (m *Manager) ProviderCount() int {
	return len(m.instances)
}

// Close flushes any buffered debug-transcript writes and releases the usage
// mirror's Redis client. Safe to call even when neither was configured.
func (m *Manager) Close() error {
	var firstErr error
	if m.debugStore != nil {
		firstErr = m.debugStore.Flush()
	}
	if m.usageMirror != nil {
		if err := m.usageMirror.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
