// Package analysis implements background document analysis: a bounded
// admission scheduler, the thumbnail and page-count tasks it runs, and the
// debounced batch queue that feeds it.
package analysis

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TaskKind identifies one of the two background analysis task kinds.
type TaskKind string

const (
	KindThumbnail TaskKind = "thumbnail"
	KindPageCount TaskKind = "pagecount"
)

// taskKey identifies an in-flight task in the registry.
type taskKey struct {
	path string
	kind TaskKind
}

// taskHandle tracks a registered task for cooperative shutdown.
type taskHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler is the admission controller for analysis tasks. It enforces a
// global concurrency ceiling with counting tokens, deduplicates work per
// (path, kind), and owns the bounded thumbnail cache.
//
// The registry and cache share one mutex, held only for check-and-mutate
// steps. Token acquisition uses a buffered channel and happens outside the
// lock.
type Scheduler struct {
	mu       sync.Mutex
	inflight map[taskKey]*taskHandle
	cache    *thumbCache

	tokens chan struct{}

	keyPolicy    KeyPolicy
	thumbnailDPI int
	grace        time.Duration
	logger       *slog.Logger
}

// SchedulerConfig configures a new scheduler.
type SchedulerConfig struct {
	Concurrency   int       // admission token ceiling (default 1)
	CacheCapacity int       // thumbnail cache entries (default 30)
	KeyPolicy     KeyPolicy // cache key policy (default KeyPolicyMTime)
	ThumbnailDPI  int       // resolution baked into cache keys (default 72)

	// CancelGrace is how long CancelAll waits per task for cooperative
	// shutdown before force-resetting (default 500ms).
	CancelGrace time.Duration

	Logger *slog.Logger
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	capacity := cfg.CacheCapacity
	if capacity <= 0 {
		capacity = 30
	}
	policy := cfg.KeyPolicy
	if policy == "" {
		policy = KeyPolicyMTime
	}
	dpi := cfg.ThumbnailDPI
	if dpi <= 0 {
		dpi = 72
	}
	grace := cfg.CancelGrace
	if grace <= 0 {
		grace = 500 * time.Millisecond
	}

	return &Scheduler{
		inflight:     make(map[taskKey]*taskHandle),
		cache:        newThumbCache(capacity),
		tokens:       make(chan struct{}, concurrency),
		keyPolicy:    policy,
		thumbnailDPI: dpi,
		grace:        grace,
		logger:       logger.With("component", "scheduler"),
	}
}

// TryStart attempts to admit a task for (path, kind). It acquires one
// admission token without blocking; if none is available, or a task for the
// same key is already in flight, it returns false and nothing is held.
//
// On success the returned context governs the task's lifetime (cancelled by
// CancelAll) and the caller must invoke Finish exactly once when the task
// reaches its terminal outcome.
func (s *Scheduler) TryStart(path string, kind TaskKind) (context.Context, bool) {
	select {
	case s.tokens <- struct{}{}:
	default:
		return nil, false
	}

	key := taskKey{path: path, kind: kind}

	s.mu.Lock()
	if _, exists := s.inflight[key]; exists {
		s.mu.Unlock()
		// Duplicate request: give the token back immediately.
		<-s.tokens
		return nil, false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.inflight[key] = &taskHandle{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.mu.Unlock()

	s.logger.Debug("task admitted", "path", path, "kind", kind)
	return ctx, true
}

// Finish removes (path, kind) from the registry and releases its admission
// token. Calling it for a key that is not registered (double finish, or a
// straggler completing after CancelAll reset the registry) is a no-op.
func (s *Scheduler) Finish(path string, kind TaskKind) {
	key := taskKey{path: path, kind: kind}

	s.mu.Lock()
	handle, ok := s.inflight[key]
	if ok {
		delete(s.inflight, key)
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	// The handle's context is left uncancelled on purpose: the task emits
	// its terminal event after Finish and uses cancellation to detect that
	// the result is no longer wanted.
	close(handle.done)

	// Non-blocking: CancelAll may already have drained the tokens.
	select {
	case <-s.tokens:
	default:
	}
}

// HasCapacity reports whether an admission token is currently available.
// Advisory only: a concurrent TryStart may still lose the race.
func (s *Scheduler) HasCapacity() bool {
	return len(s.tokens) < cap(s.tokens)
}

// taskInFlight reports whether (path, kind) currently holds a task.
func (s *Scheduler) taskInFlight(path string, kind TaskKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[taskKey{path: path, kind: kind}]
	return ok
}

// InFlight returns the number of registered tasks.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// GetCachedThumbnail returns the cached thumbnail for a document, if any.
func (s *Scheduler) GetCachedThumbnail(path string) ([]byte, bool) {
	key := cacheKey(path, s.thumbnailDPI, s.keyPolicy)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.get(key)
}

// CacheThumbnail stores a rendered thumbnail, evicting the oldest entry
// first when the cache is at capacity.
func (s *Scheduler) CacheThumbnail(path string, png []byte) {
	key := cacheKey(path, s.thumbnailDPI, s.keyPolicy)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.put(key, png)
}

// CachedCount returns the number of cached thumbnails.
func (s *Scheduler) CachedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.len()
}

// CancelAll shuts the scheduler down in two phases. First every in-flight
// task is cancelled and given the grace period to finish cooperatively.
// Then the registry, cache, and tokens are reset unconditionally, whether
// or not the tasks complied. Results from stragglers arriving afterwards
// hit an empty registry and are absorbed as no-ops by Finish.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	handles := make([]*taskHandle, 0, len(s.inflight))
	for key, handle := range s.inflight {
		s.logger.Debug("cancelling task", "path", key.path, "kind", key.kind)
		handles = append(handles, handle)
	}
	s.mu.Unlock()

	for _, handle := range handles {
		handle.cancel()
	}

	for _, handle := range handles {
		select {
		case <-handle.done:
		case <-time.After(s.grace):
		}
	}

	// Phase two: hard reset, regardless of stragglers.
	s.mu.Lock()
	s.inflight = make(map[taskKey]*taskHandle)
	s.cache.clear()
	s.mu.Unlock()

	for {
		select {
		case <-s.tokens:
		default:
			s.logger.Debug("scheduler reset", "cancelled", len(handles))
			return
		}
	}
}
