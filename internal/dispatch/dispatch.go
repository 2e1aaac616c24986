// Package dispatch implements the retry/selection loop described in §4.2 and
// §4.3 of the design: given a request, repeatedly pick an eligible Instance,
// invoke its Adapter, classify the outcome, update its Tracker, and decide
// whether to retry, surface, or succeed. Streaming performs a single
// selection pass with no retry. Grounded in the teacher's
// Client.executeWithRetry loop shape; the set of failed instances is a map
// local to one Dispatch call, added to after each non-rate-limit failure.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/relaygrid/relaygrid/internal/debugstore"
	"github.com/relaygrid/relaygrid/internal/registry"
	"github.com/relaygrid/relaygrid/internal/routing"
	"github.com/relaygrid/relaygrid/internal/strategy"
	"github.com/relaygrid/relaygrid/internal/telemetry"
	"github.com/relaygrid/relaygrid/internal/tracker"
	llmerrors "github.com/relaygrid/relaygrid/pkg/errors"
	"github.com/relaygrid/relaygrid/pkg/provider"
	"github.com/relaygrid/relaygrid/pkg/types"
)

// backoffBase and backoffCap implement the exponential backoff: the first
// rate-limit sleep is 2 seconds, doubling per attempt (2, 4, 8, ...), capped
// at 60 seconds.
const (
	backoffBase = 2 * time.Second
	backoffCap  = 60 * time.Second
)

// Request is one resolved dispatch input: the merged prompt/task/params the
// Manager has already computed from a GenerationRequest plus its
// TaskDefinition.
type Request struct {
	Task   string // empty means "no task named", candidates = all instances
	Prompt string
	Params map[string]any
}

// Deps bundles every collaborator the Dispatcher reads or mutates. The
// Instances and Trackers maps are treated as read-only by the Dispatcher
// itself (built once at Manager construction and never added to afterward);
// only a Tracker's own fields are mutated, each under its own lock.
type Deps struct {
	Instances    map[int]*registry.Instance
	Trackers     map[int]*tracker.Tracker
	RoutingIndex *routing.Index
	Strategy     strategy.Strategy
	MaxRetries   uint
	Metrics      *telemetry.Metrics
	Logger       *slog.Logger
	DebugStore   *debugstore.Store // nil disables transcript writing
}

// Dispatcher runs the retry/selection loop against one set of Deps.
type Dispatcher struct {
	deps Deps
}

// New returns a Dispatcher wired to deps.
func New(deps Deps) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Dispatcher{deps: deps}
}

// candidateIDs returns every instance ID eligible for task in routing-index
// order, or all instances in ascending ID (registration) order if task is
// empty.
func (d *Dispatcher) candidateIDs(task string) ([]int, error) {
	if task == "" {
		ids := make([]int, 0, len(d.deps.Instances))
		for id := range d.deps.Instances {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		return ids, nil
	}
	ids, ok := d.deps.RoutingIndex.Candidates(task)
	if !ok {
		return nil, llmerrors.NewConfigError(fmt.Sprintf("no providers registered for task %q", task))
	}
	return ids, nil
}

// filter keeps only enabled, not-yet-failed instance IDs.
func (d *Dispatcher) filter(ids []int, failed map[int]struct{}) []int {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		inst, ok := d.deps.Instances[id]
		if !ok || !inst.Enabled {
			continue
		}
		if _, isFailed := failed[id]; isFailed {
			continue
		}
		out = append(out, id)
	}
	return out
}

// buildLlmRequest merges task defaults with request overrides (request wins)
// and extracts the recognized typed fields (§4.1's parameter merge rule).
func buildLlmRequest(prompt string, params map[string]any) types.LlmRequest {
	req := types.LlmRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: prompt}},
		Params:   params,
	}
	if v, ok := params["model"].(string); ok && v != "" {
		req.Model = v
	}
	if v, ok := params["max_tokens"]; ok {
		if n, ok := toUint32(v); ok {
			req.MaxTokens = n
			req.HasMaxTokens = true
		}
	}
	if v, ok := params["temperature"]; ok {
		if f, ok := toFloat32(v); ok {
			req.Temperature = f
			req.HasTemperature = true
		}
	}
	return req
}

func toUint32(v any) (uint32, bool) {
	switch n := v.(type) {
	case int:
		return uint32(n), true
	case int64:
		return uint32(n), true
	case float64:
		return uint32(n), true
	case uint32:
		return n, true
	default:
		return 0, false
	}
}

func toFloat32(v any) (float32, bool) {
	switch n := v.(type) {
	case float32:
		return n, true
	case float64:
		return float32(n), true
	case int:
		return float32(n), true
	default:
		return 0, false
	}
}

// backoffFor returns min(2^(attempts+1), 60) seconds: 2s for attempts 0,
// 4s for 1, and the 60s cap from attempts 5 onward.
func backoffFor(attempts uint) time.Duration {
	d := backoffBase
	for i := uint(0); i < attempts; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	if d > backoffCap {
		return backoffCap
	}
	return d
}

// sleepContext blocks for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Dispatch runs the full retry loop for one non-streaming request.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (types.LlmResponse, error) {
	failed := map[int]struct{}{}
	var lastErr error

	for attempts := uint(0); attempts <= d.deps.MaxRetries; {
		ids, err := d.candidateIDs(req.Task)
		if err != nil {
			return types.LlmResponse{}, err
		}
		eligible := d.filter(ids, failed)
		if len(eligible) == 0 {
			return types.LlmResponse{}, llmerrors.NewConfigError(
				fmt.Sprintf("no enabled providers available (%d excluded after failure)", len(failed)))
		}

		candidates := make([]strategy.Candidate, len(eligible))
		for i, id := range eligible {
			candidates[i] = strategy.Candidate{InstanceID: id, Tracker: d.deps.Trackers[id]}
		}
		chosenIdx := d.deps.Strategy.Pick(candidates)
		instanceID := eligible[chosenIdx]
		inst := d.deps.Instances[instanceID]
		trk := d.deps.Trackers[instanceID]

		if err := ctx.Err(); err != nil {
			return types.LlmResponse{}, llmerrors.NewRequestError(inst.ProviderType, inst.Model, err)
		}

		llmReq := buildLlmRequest(req.Prompt, req.Params)
		if llmReq.Model == "" {
			llmReq.Model = inst.Model
		}
		requestID := debugstore.NewRequestID()
		start := time.Now()
		resp, callErr := inst.Adapter.Generate(ctx, llmReq)
		duration := time.Since(start)
		now := time.Now()

		taskLabel := telemetry.TaskLabel(req.Task)
		d.recordOutcome(inst, trk, callErr, resp, duration, now, taskLabel)
		d.writeDebugEntry(inst, requestID, req, llmReq, resp, callErr, duration)

		if d.deps.Metrics != nil {
			d.deps.Metrics.RequestsTotal.WithLabelValues(inst.ProviderType, inst.Model, taskLabel).Inc()
			d.deps.Metrics.RequestSeconds.WithLabelValues(inst.ProviderType, inst.Model, taskLabel).Observe(duration.Seconds())
		}

		if callErr == nil {
			return resp, nil
		}
		lastErr = callErr

		kind := llmerrors.KindOf(callErr)
		if d.deps.Metrics != nil {
			d.deps.Metrics.ErrorsTotal.WithLabelValues(inst.ProviderType, inst.Model, taskLabel, string(kind)).Inc()
		}

		if kind == llmerrors.KindRateLimit {
			if d.deps.Metrics != nil {
				d.deps.Metrics.RateLimitTotal.WithLabelValues(inst.ProviderType, inst.Model, taskLabel).Inc()
			}
			d.deps.Logger.Debug("rate limited, backing off", "instance_id", instanceID, "attempts", attempts)
			if err := sleepContext(ctx, backoffFor(attempts)); err != nil {
				return types.LlmResponse{}, llmerrors.NewRequestError(inst.ProviderType, inst.Model, err)
			}
		} else {
			failed[instanceID] = struct{}{}
			d.deps.Logger.Debug("dispatch attempt failed, excluding instance", "instance_id", instanceID, "kind", kind)
		}
		if d.deps.Metrics != nil {
			d.deps.Metrics.RetriesTotal.WithLabelValues(inst.ProviderType, inst.Model, taskLabel).Inc()
		}
		attempts++
	}
	return types.LlmResponse{}, lastErr
}

func (d *Dispatcher) recordOutcome(inst *registry.Instance, trk *tracker.Tracker, callErr error, resp types.LlmResponse, duration time.Duration, now time.Time, taskLabel string) {
	if callErr == nil {
		trk.RecordSuccess(duration, resp.Usage, now)
		if d.deps.Metrics != nil {
			d.deps.Metrics.PromptTokens.WithLabelValues(inst.ProviderType, inst.Model, taskLabel).Add(float64(resp.Usage.PromptTokens))
			d.deps.Metrics.CompletionTokens.WithLabelValues(inst.ProviderType, inst.Model, taskLabel).Add(float64(resp.Usage.CompletionTokens))
			d.deps.Metrics.ProviderHealth.WithLabelValues(inst.ProviderType, inst.Model).Set(1)
		}
		return
	}
	trk.RecordFailure(now)
	if d.deps.Metrics != nil {
		d.deps.Metrics.ProviderHealth.WithLabelValues(inst.ProviderType, inst.Model).Set(0)
	}
}

func (d *Dispatcher) writeDebugEntry(inst *registry.Instance, requestID string, req Request, llmReq types.LlmRequest, resp types.LlmResponse, callErr error, duration time.Duration) {
	if d.deps.DebugStore == nil {
		return
	}
	entry := debugstore.Entry{
		Timestamp:  time.Now(),
		RequestID:  requestID,
		InstanceID: inst.ID,
		Provider:   inst.ProviderType,
		Model:      inst.Model,
		Task:       req.Task,
		Prompt:     req.Prompt,
		Params:     req.Params,
		DurationMS: duration.Milliseconds(),
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	} else {
		entry.Content = resp.Content
		entry.Usage = map[string]uint32{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		}
	}
	d.deps.DebugStore.Append(inst.ID, inst.ProviderType, inst.Model, entry)
}

// DispatchStream performs the single selection pass described in §4.3: no
// retry, since progressive delivery cannot un-deliver already-emitted
// chunks. If selection fails, the call fails synchronously before any chunk
// is produced.
func (d *Dispatcher) DispatchStream(ctx context.Context, req Request) (provider.ChunkStream, error) {
	ids, err := d.candidateIDs(req.Task)
	if err != nil {
		return nil, err
	}
	eligible := d.filter(ids, nil)
	if len(eligible) == 0 {
		return nil, llmerrors.NewConfigError("no enabled providers available for streaming request")
	}

	candidates := make([]strategy.Candidate, len(eligible))
	for i, id := range eligible {
		candidates[i] = strategy.Candidate{InstanceID: id, Tracker: d.deps.Trackers[id]}
	}
	chosenIdx := d.deps.Strategy.Pick(candidates)
	instanceID := eligible[chosenIdx]
	inst := d.deps.Instances[instanceID]

	if !inst.Adapter.SupportsStreaming() {
		d.deps.Logger.Warn("streaming requested on adapter reporting no stream support, attempting anyway", "instance_id", instanceID)
	}

	llmReq := buildLlmRequest(req.Prompt, req.Params)
	if llmReq.Model == "" {
		llmReq.Model = inst.Model
	}
	return inst.Adapter.GenerateStream(ctx, llmReq)
}
