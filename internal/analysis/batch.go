package analysis

import (
	"log/slog"
	"sync"
	"time"
)

// Dispatcher submits both analysis kinds for one path. complete is false
// when some kind could not be admitted for capacity reasons and the path
// should be offered again later. Satisfied by *Runner.
type Dispatcher interface {
	Dispatch(path string) (started int, complete bool)
}

// BatchQueue absorbs bursts of added paths and drains them one at a time
// through a debounced timer. Lack of scheduler capacity is a scheduling
// signal, not an error: the queue backs off and retries.
type BatchQueue struct {
	mu      sync.Mutex
	pending []string
	queued  map[string]bool
	timer   *time.Timer
	stopped bool

	scheduler  *Scheduler
	dispatcher Dispatcher

	debounce   time.Duration // quiet period after an addition
	drain      time.Duration // delay between drains while paths remain
	backoff    time.Duration // retry delay when there is no capacity
	chunkDelay time.Duration // delay before a large batch's remainder
	chunkSize  int

	logger *slog.Logger
}

// BatchQueueConfig configures a batch queue.
type BatchQueueConfig struct {
	Scheduler  *Scheduler
	Dispatcher Dispatcher

	Debounce   time.Duration // default 500ms
	Drain      time.Duration // default 800ms
	Backoff    time.Duration // default 1s
	ChunkDelay time.Duration // default 2s
	ChunkSize  int           // default 10

	Logger *slog.Logger
}

// NewBatchQueue creates a batch queue.
func NewBatchQueue(cfg BatchQueueConfig) *BatchQueue {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.Drain <= 0 {
		cfg.Drain = 800 * time.Millisecond
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.ChunkDelay <= 0 {
		cfg.ChunkDelay = 2 * time.Second
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 10
	}

	return &BatchQueue{
		queued:     make(map[string]bool),
		scheduler:  cfg.Scheduler,
		dispatcher: cfg.Dispatcher,
		debounce:   cfg.Debounce,
		drain:      cfg.Drain,
		backoff:    cfg.Backoff,
		chunkDelay: cfg.ChunkDelay,
		chunkSize:  cfg.ChunkSize,
		logger:     logger.With("component", "batch"),
	}
}

// Add appends paths to the pending list and (re)arms the debounce timer.
// Batches larger than the chunk size are split: the first chunk is admitted
// now, the remainder is re-added after the chunk delay so a huge folder add
// never has to be absorbed in one synchronous step. Paths already pending
// are skipped.
func (q *BatchQueue) Add(paths []string) {
	if len(paths) == 0 {
		return
	}

	var remainder []string
	if len(paths) > q.chunkSize {
		remainder = paths[q.chunkSize:]
		paths = paths[:q.chunkSize]
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	added := 0
	for _, p := range paths {
		if q.queued[p] {
			continue
		}
		q.queued[p] = true
		q.pending = append(q.pending, p)
		added++
	}
	if added > 0 {
		q.arm(q.debounce)
	}
	q.mu.Unlock()

	if added > 0 {
		q.logger.Debug("paths queued", "added", added, "deferred", len(remainder))
	}

	if len(remainder) > 0 {
		time.AfterFunc(q.chunkDelay, func() { q.Add(remainder) })
	}
}

// Pending returns the number of paths awaiting dispatch.
func (q *BatchQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stop halts draining and clears the pending list. Further Adds are ignored.
func (q *BatchQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopped = true
	q.pending = nil
	q.queued = make(map[string]bool)
	if q.timer != nil {
		q.timer.Stop()
	}
}

// arm (re)schedules the drain timer. Caller holds q.mu.
func (q *BatchQueue) arm(d time.Duration) {
	if q.timer == nil {
		q.timer = time.AfterFunc(d, q.fire)
		return
	}
	q.timer.Stop()
	q.timer.Reset(d)
}

// fire drains at most one path per invocation. One-at-a-time is a
// deliberate throttle stricter than the admission ceiling itself, keeping
// the system responsive even when the ceiling is configured higher.
func (q *BatchQueue) fire() {
	q.mu.Lock()
	if q.stopped || len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}

	if !q.scheduler.HasCapacity() {
		q.arm(q.backoff)
		q.mu.Unlock()
		return
	}

	path := q.pending[0]
	q.pending = q.pending[1:]
	delete(q.queued, path)
	if len(q.pending) > 0 {
		q.arm(q.drain)
	}
	q.mu.Unlock()

	started, complete := q.dispatcher.Dispatch(path)
	q.logger.Debug("path dispatched", "path", path, "tasks", started, "complete", complete)

	if complete {
		return
	}

	// Some kind was starved of a token. Put the path back at the head so
	// the missing kind is retried once capacity frees up; kinds already in
	// flight dedupe to no-ops on the retry.
	q.mu.Lock()
	if !q.stopped && !q.queued[path] {
		q.queued[path] = true
		q.pending = append([]string{path}, q.pending...)
		q.arm(q.backoff)
	}
	q.mu.Unlock()
}
