// Package debugstore writes per-instance call transcripts to disk when a
// Manager is configured with a debug folder. Writes are coalesced through a
// short-lived patrickmn/go-cache buffer keyed by instance path, grounded in
// the teacher's internal/secret.CachedProvider use of the same library for
// ephemeral in-process caching, so a burst of calls to the same instance
// produces one file write instead of one per call. Every dispatch attempt
// still contributes exactly one JSON array entry once flushed.
package debugstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gocache "github.com/patrickmn/go-cache"
	"github.com/google/uuid"
)

// Entry is one recorded dispatch attempt.
type Entry struct {
	Timestamp  time.Time      `json:"timestamp"`
	RequestID  string         `json:"request_id"`
	InstanceID int            `json:"instance_id"`
	Provider   string         `json:"provider"`
	Model      string         `json:"model"`
	Task       string         `json:"task,omitempty"`
	Prompt     string         `json:"prompt"`
	Params     map[string]any `json:"params,omitempty"`
	Content    string         `json:"content,omitempty"`
	Usage      map[string]uint32 `json:"usage,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// NewRequestID returns a fresh v4 correlation ID, attached to both the
// transcript entry and the structured log line for the same attempt.
func NewRequestID() string { return uuid.NewString() }

type buffer struct {
	mu      sync.Mutex
	entries []Entry
}

// Store buffers and flushes debug transcripts under one root directory.
type Store struct {
	root  string
	flush *gocache.Cache
	mu    sync.Mutex // guards creation of per-path buffer entries in flush
}

// coalesceWindow is how long a per-instance buffer waits for more entries
// before it is flushed to disk.
const coalesceWindow = 250 * time.Millisecond

// New returns a Store rooted at filepath.Join(debugFolder, createdUnix),
// matching the "<manager-timestamp>" transcript folder convention.
func New(debugFolder string, createdUnix int64) *Store {
	root := filepath.Join(debugFolder, fmt.Sprintf("%d", createdUnix))
	s := &Store{
		root:  root,
		flush: gocache.New(coalesceWindow, coalesceWindow*2),
	}
	s.flush.OnEvicted(func(key string, value any) {
		buf, ok := value.(*buffer)
		if !ok {
			return
		}
		buf.mu.Lock()
		entries := append([]Entry(nil), buf.entries...)
		buf.mu.Unlock()
		_ = s.writeEntries(key, entries)
	})
	return s
}

// instancePath returns the per-instance sub-folder name this entry belongs
// to: "<id>_<provider>_<model>".
func instancePath(instanceID int, provider, model string) string {
	return fmt.Sprintf("%d_%s_%s", instanceID, provider, model)
}

// Append buffers entry under its instance's sub-folder, to be flushed to disk
// once the coalescing window elapses without further writes to that path.
func (s *Store) Append(instanceID int, provider, model string, entry Entry) {
	key := instancePath(instanceID, provider, model)

	s.mu.Lock()
	// Evict (and so write out) any expired buffer first; Get reports an
	// expired key as missing, and Set would otherwise replace it unwritten.
	s.flush.DeleteExpired()
	var buf *buffer
	if cached, ok := s.flush.Get(key); ok {
		buf = cached.(*buffer)
	} else {
		buf = &buffer{}
	}
	s.flush.Set(key, buf, gocache.DefaultExpiration)
	s.mu.Unlock()

	buf.mu.Lock()
	buf.entries = append(buf.entries, entry)
	buf.mu.Unlock()
}

// Flush forces every currently buffered instance path to disk immediately,
// for use at Manager shutdown so no buffered entries are lost to process
// exit before the coalescing window elapses.
func (s *Store) Flush() error {
	// Items skips expired buffers the janitor has not evicted yet; evicting
	// them here writes them out through OnEvicted before the cache is cleared.
	s.flush.DeleteExpired()
	var firstErr error
	for key, value := range s.flush.Items() {
		buf, ok := value.Object.(*buffer)
		if !ok {
			continue
		}
		buf.mu.Lock()
		entries := append([]Entry(nil), buf.entries...)
		buf.mu.Unlock()
		if err := s.writeEntries(key, entries); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.flush.Flush()
	return firstErr
}

// writeEntries appends entries to debug_folder/<manager-timestamp>/<instancePath>/debug.json,
// reading and rewriting the existing JSON array (transcripts are expected to
// stay small; this trades write amplification for simplicity and crash safety).
func (s *Store) writeEntries(instancePath string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	dir := filepath.Join(s.root, instancePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create debug transcript dir: %w", err)
	}

	path := filepath.Join(dir, "debug.json")
	existing, err := readExisting(path)
	if err != nil {
		return err
	}
	existing = append(existing, entries...)

	encoded, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal debug transcript: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("write debug transcript: %w", err)
	}
	return nil
}

func readExisting(path string) ([]Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read debug transcript: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse existing debug transcript: %w", err)
	}
	return entries, nil
}
