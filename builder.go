package relaygrid

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/relaygrid/relaygrid/internal/debugstore"
	"github.com/relaygrid/relaygrid/internal/dispatch"
	"github.com/relaygrid/relaygrid/internal/distcache"
	"github.com/relaygrid/relaygrid/internal/registry"
	"github.com/relaygrid/relaygrid/internal/routing"
	"github.com/relaygrid/relaygrid/internal/strategy"
	"github.com/relaygrid/relaygrid/internal/telemetry"
	"github.com/relaygrid/relaygrid/internal/tracker"
	llmerrors "github.com/relaygrid/relaygrid/pkg/errors"
	"github.com/relaygrid/relaygrid/pkg/provider"
	"github.com/relaygrid/relaygrid/pkg/types"
	"github.com/relaygrid/relaygrid/providers"
)

// InstanceConfig describes one provider instance to register with the
// Manager builder: a configured pair of (adapter, model, credential,
// endpoint override, enabled flag, supported-task set), per §3's Instance
// data model.
type InstanceConfig struct {
	// Name is an optional human-readable label, otherwise the ProviderType
	// is used in logs.
	Name         string
	ProviderType string
	Model        string
	APIKey       string
	Endpoint     string
	// Disabled excludes this instance from selection without removing it;
	// the zero value (false) keeps an instance eligible, matching the
	// config-file loader's default.
	Disabled bool
	Tasks    []string
	// AllowPrivateBaseURL permits a loopback/private Endpoint; defaults true
	// for the local-network provider types (ollama, lmstudio).
	AllowPrivateBaseURL bool
	Headers             map[string]string
	HTTPClient          *http.Client
	// RateLimit paces this instance's outbound calls independently of the
	// Dispatcher's retry budget; build one with provider.NewLimiter. Ignored
	// when HTTPClient is also set.
	RateLimit *rate.Limiter
	// Adapter, if non-nil, is used directly instead of constructing one from
	// the provider registry — an escape hatch for tests and custom adapters.
	Adapter provider.Adapter
}

// Builder accumulates task definitions, instance descriptors and feature
// toggles, then materializes a Manager in one Build call. Per the
// "Configuration -> Manager" design note, validation of everything an
// instance references happens before any Instance or Tracker is created.
type Builder struct {
	tasks        []types.TaskDefinition
	instanceCfgs []InstanceConfig
	strategyName string
	maxRetries   uint
	debugFolder  string
	logger       *slog.Logger
	registerer   prometheus.Registerer
	usageMirror  *distcache.Config
}

// NewBuilder returns a Builder with the defaults named in §4.1: strategy
// least-recently-used, max_retries 5.
func NewBuilder() *Builder {
	return &Builder{
		strategyName: "lru",
		maxRetries:   5,
	}
}

// WithTask registers one uniquely-named TaskDefinition.
func (b *Builder) WithTask(t types.TaskDefinition) *Builder {
	b.tasks = append(b.tasks, t)
	return b
}

// WithInstance registers one provider instance descriptor.
func (b *Builder) WithInstance(cfg InstanceConfig) *Builder {
	b.instanceCfgs = append(b.instanceCfgs, cfg)
	return b
}

// WithStrategy selects the load-balancing Strategy by name: "lru"
// (alias "least_recently_used"), "lowest_latency" (alias "latency"), or
// "random".
func (b *Builder) WithStrategy(name string) *Builder {
	b.strategyName = name
	return b
}

// WithMaxRetries overrides the default retry budget (5).
func (b *Builder) WithMaxRetries(n uint) *Builder {
	b.maxRetries = n
	return b
}

// WithDebugFolder enables per-instance call transcripts under folder.
func (b *Builder) WithDebugFolder(folder string) *Builder {
	b.debugFolder = folder
	return b
}

// WithLogger installs a structured logger; default is slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsRegisterer installs the prometheus.Registerer metric
// collectors are registered against; default is prometheus.DefaultRegisterer.
func (b *Builder) WithMetricsRegisterer(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// WithUsageMirror enables mirroring TotalUsage into a shared Redis hash
// after every successful Generate call, so multiple Manager processes behind
// a load balancer can report one aggregate figure. Mirror failures are
// logged, never surfaced as a dispatch error.
func (b *Builder) WithUsageMirror(cfg distcache.Config) *Builder {
	b.usageMirror = &cfg
	return b
}

// instanceLabel returns cfg.Name if set, else its provider type, for use in
// error messages and logs.
func instanceLabel(cfg InstanceConfig) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	return cfg.ProviderType
}

// localNetworkProviders default-allow a private/loopback Endpoint, since
// they are expected to point at a machine on the caller's own network.
var localNetworkProviders = map[string]bool{
	"ollama":   true,
	"lmstudio": true,
}

// Build validates the whole accumulated configuration, then materializes
// Instances, Trackers, the Routing Index and the Dispatcher. Validation
// failures are returned as a single aggregate ConfigError; nothing is
// materialized if any instance references an undefined task.
func (b *Builder) Build() (*Manager, error) {
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	taskDefs := make(map[string]types.TaskDefinition, len(b.tasks))
	for _, t := range b.tasks {
		if _, dup := taskDefs[t.Name]; dup {
			return nil, llmerrors.NewConfigError(fmt.Sprintf("duplicate task definition %q", t.Name))
		}
		taskDefs[t.Name] = t
	}

	var problems []string
	for i, ic := range b.instanceCfgs {
		for _, taskName := range ic.Tasks {
			if _, ok := taskDefs[taskName]; !ok {
				problems = append(problems, fmt.Sprintf("instance[%d] (%s): references undefined task %q", i, instanceLabel(ic), taskName))
			}
		}
	}
	if len(problems) > 0 {
		msg := "instance configuration references undefined tasks:"
		for _, p := range problems {
			msg += "\n  - " + p
		}
		return nil, llmerrors.NewConfigError(msg)
	}

	strat, err := strategy.Parse(b.strategyName)
	if err != nil {
		return nil, llmerrors.NewConfigError(err.Error())
	}

	if len(b.instanceCfgs) == 0 {
		logger.Warn("manager built with zero registered instances; every generate call will fail")
	}

	instances := make(map[int]*registry.Instance, len(b.instanceCfgs))
	trackers := make(map[int]*tracker.Tracker, len(b.instanceCfgs))
	routingIdx := routing.NewBuilder()

	for i, ic := range b.instanceCfgs {
		adapter := ic.Adapter
		if adapter == nil {
			allowPrivate := ic.AllowPrivateBaseURL || localNetworkProviders[ic.ProviderType]
			adapter, err = providers.Create(ic.ProviderType, provider.Config{
				APIKey:              ic.APIKey,
				Model:               ic.Model,
				BaseURL:             ic.Endpoint,
				Headers:             ic.Headers,
				AllowPrivateBaseURL: allowPrivate,
				HTTPClient:          ic.HTTPClient,
				RateLimit:           ic.RateLimit,
			})
			if err != nil {
				return nil, llmerrors.NewConfigError(fmt.Sprintf("instance[%d] (%s): %s", i, instanceLabel(ic), err))
			}
		}

		supported := make(map[string]registry.TaskSnapshot, len(ic.Tasks))
		for _, taskName := range ic.Tasks {
			supported[taskName] = registry.TaskSnapshot{Defaults: taskDefs[taskName].Defaults}
		}

		inst := &registry.Instance{
			ID:             i,
			ProviderType:   ic.ProviderType,
			Adapter:        adapter,
			Model:          ic.Model,
			Enabled:        !ic.Disabled,
			SupportedTasks: supported,
		}
		instances[i] = inst
		trackers[i] = tracker.New()
		for _, taskName := range ic.Tasks {
			routingIdx.Add(taskName, i)
		}
	}

	metrics := telemetry.New(b.registerer)

	var usageMirror *distcache.Mirror
	if b.usageMirror != nil {
		usageMirror = distcache.New(*b.usageMirror)
	}

	var debugStore *debugstore.Store
	createdUnix := time.Now().Unix()
	if b.debugFolder != "" {
		debugStore = debugstore.New(b.debugFolder, createdUnix)
	}

	dispatcher := dispatch.New(dispatch.Deps{
		Instances:    instances,
		Trackers:     trackers,
		RoutingIndex: routingIdx,
		Strategy:     strat,
		MaxRetries:   b.maxRetries,
		Metrics:      metrics,
		Logger:       logger,
		DebugStore:   debugStore,
	})

	return &Manager{
		instances:   instances,
		trackers:    trackers,
		tasks:       taskDefs,
		dispatcher:  dispatcher,
		debugStore:  debugStore,
		usageMirror: usageMirror,
		logger:      logger,
		createdUnix: createdUnix,
	}, nil
}
