// Package distcache optionally mirrors the Manager's total token usage into
// a shared Redis hash so multiple Manager processes behind a load balancer
// can report an aggregate figure. It is purely additive: the in-process
// Tracker remains the authoritative source, and a Mirror failure never fails
// a dispatch. Grounded in the teacher's caches/redis client wrapper and
// routers/redis_stats_store.go's UniversalClient usage.
package distcache

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/relaygrid/relaygrid/pkg/types"
)

// Config configures the optional Redis usage mirror.
type Config struct {
	Addr      string
	Password  string
	DB        int
	Namespace string // key prefix; defaults to "relaygrid"
}

// Mirror writes a Manager's total usage snapshot to Redis under
// "<namespace>:usage:total" after each successful Generate call.
type Mirror struct {
	client    goredis.UniversalClient
	namespace string
}

// New dials a Redis client for the given Config. It does not verify
// connectivity; transient Redis unavailability surfaces only when Write is
// called, and Write's caller (Manager.Generate, after a successful dispatch)
// logs that and treats it as non-fatal.
func New(cfg Config) *Mirror {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "relaygrid"
	}
	return &Mirror{
		client: goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		namespace: namespace,
	}
}

// NewWithClient wraps an already-constructed client, primarily so tests can
// inject a miniredis-backed client instead of dialing a real server.
func NewWithClient(client goredis.UniversalClient, namespace string) *Mirror {
	if namespace == "" {
		namespace = "relaygrid"
	}
	return &Mirror{client: client, namespace: namespace}
}

func (m *Mirror) key() string { return m.namespace + ":usage:total" }

// Write mirrors usage into the shared hash. Errors are returned so the
// caller can log them, but they must never be treated as a dispatch failure.
func (m *Mirror) Write(ctx context.Context, usage types.TokenUsage) error {
	_, err := m.client.HSet(ctx, m.key(), map[string]any{
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
		"total_tokens":      usage.TotalTokens,
		"updated_at":        time.Now().Unix(),
	}).Result()
	if err != nil {
		return fmt.Errorf("mirror usage to redis: %w", err)
	}
	return nil
}

// Read returns the most recently mirrored usage snapshot, or a zero value if
// nothing has been mirrored yet.
func (m *Mirror) Read(ctx context.Context) (types.TokenUsage, error) {
	vals, err := m.client.HGetAll(ctx, m.key()).Result()
	if err != nil {
		return types.TokenUsage{}, fmt.Errorf("read mirrored usage from redis: %w", err)
	}
	var usage types.TokenUsage
	usage.PromptTokens = parseUint32(vals["prompt_tokens"])
	usage.CompletionTokens = parseUint32(vals["completion_tokens"])
	usage.TotalTokens = parseUint32(vals["total_tokens"])
	return usage, nil
}

// Close releases the underlying Redis client.
func (m *Mirror) Close() error { return m.client.Close() }

func parseUint32(s string) uint32 {
	var v uint32
	_, _ = fmt.Sscanf(s, "%d", &v)
	return v
}
