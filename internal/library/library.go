// Package library owns the caller-visible working set of documents. A
// single controller goroutine consumes task and merge events one at a time
// and is the only writer of document state, so result handlers never race.
package library

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/pdfdeck/pdfdeck/internal/analysis"
	"github.com/pdfdeck/pdfdeck/internal/config"
	"github.com/pdfdeck/pdfdeck/internal/event"
	"github.com/pdfdeck/pdfdeck/internal/merge"
)

// Document is the caller-visible state of one working-set entry. Page count
// and size are zero until measured.
type Document struct {
	Path           string
	PageCount      int
	FileSize       int64
	Thumbnail      []byte
	ThumbnailError string

	pagesKnown bool
	thumbKnown bool
}

// Analyzed reports whether both analysis kinds have delivered an outcome.
func (d Document) Analyzed() bool {
	return d.pagesKnown && d.thumbKnown
}

// Summary aggregates the working set.
type Summary struct {
	Files     int
	Pages     int
	TotalSize int64
}

// Library wires the scheduler, batch queue, task runner, and merge engine
// together behind the request surface the presentation layer consumes.
type Library struct {
	scheduler *analysis.Scheduler
	queue     *analysis.BatchQueue
	merger    *merge.Engine

	events   chan event.Event
	requests chan mergeRequest
	notify   func(event.Event)

	mu      sync.RWMutex
	docs    map[string]*Document
	order   []string
	merging bool

	outputName string
	logger     *slog.Logger
}

type mergeRequest struct {
	sources []string
	destDir string
}

// Config configures a library.
type Config struct {
	Renderer analysis.Renderer
	Meta     analysis.MetadataReader
	Settings *config.Config

	// Notify receives every event, called from the controller goroutine.
	// Optional.
	Notify func(event.Event)

	Logger *slog.Logger
}

// New creates a library and its internal scheduler, runner, and queue.
func New(cfg Config) *Library {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settings := cfg.Settings
	if settings == nil {
		settings = config.DefaultConfig()
	}

	events := make(chan event.Event, 64)

	scheduler := analysis.NewScheduler(analysis.SchedulerConfig{
		Concurrency:   settings.Analysis.Concurrency,
		CacheCapacity: settings.Analysis.CacheCapacity,
		KeyPolicy:     analysis.KeyPolicy(settings.Analysis.CacheKeyPolicy),
		ThumbnailDPI:  settings.Render.ThumbnailDPI,
		CancelGrace:   settings.Analysis.CancelGrace(),
		Logger:        logger,
	})

	runner := analysis.NewRunner(analysis.RunnerConfig{
		Scheduler:    scheduler,
		Renderer:     cfg.Renderer,
		Meta:         cfg.Meta,
		Events:       events,
		ThumbnailDPI: settings.Render.ThumbnailDPI,
		Logger:       logger,
	})

	queue := analysis.NewBatchQueue(analysis.BatchQueueConfig{
		Scheduler:  scheduler,
		Dispatcher: runner,
		Debounce:   settings.Batch.Debounce(),
		Drain:      settings.Batch.Drain(),
		Backoff:    settings.Batch.Backoff(),
		ChunkDelay: settings.Batch.ChunkDelay(),
		ChunkSize:  settings.Batch.ChunkSize,
		Logger:     logger,
	})

	return &Library{
		scheduler:  scheduler,
		queue:      queue,
		merger:     merge.NewEngine(logger),
		events:     events,
		requests:   make(chan mergeRequest, 1),
		notify:     cfg.Notify,
		docs:       make(map[string]*Document),
		outputName: settings.Merge.OutputName,
		logger:     logger.With("component", "library"),
	}
}

// Run is the controller loop. It processes one delivered result at a time
// until ctx is cancelled, then shuts the scheduler down.
func (l *Library) Run(ctx context.Context) {
	l.logger.Debug("controller started")

	for {
		select {
		case <-ctx.Done():
			l.Shutdown()
			l.logger.Debug("controller stopped")
			return

		case req := <-l.requests:
			l.startMerge(req)

		case ev := <-l.events:
			l.apply(ev)
		}
	}
}

// AddPaths admits new documents to the working set and queues them for
// analysis. Paths already present, missing on disk, or not PDFs are
// skipped. Returns the number of paths admitted.
func (l *Library) AddPaths(paths []string) int {
	var fresh []string

	l.mu.Lock()
	for _, p := range paths {
		if _, exists := l.docs[p]; exists {
			continue
		}
		if !strings.EqualFold(filepath.Ext(p), ".pdf") {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			l.logger.Warn("skipping unreadable path", "path", p, "error", err)
			continue
		}
		l.docs[p] = &Document{Path: p}
		l.order = append(l.order, p)
		fresh = append(fresh, p)
	}
	l.mu.Unlock()

	if len(fresh) > 0 {
		l.logger.Info("paths added", "count", len(fresh))
		l.queue.Add(fresh)
	}
	return len(fresh)
}

// RequestMerge asks the controller to merge the given sources into
// destDir. Progress and the terminal outcome arrive as events. Only one
// merge runs at a time; a second request while one is running fails.
func (l *Library) RequestMerge(sources []string, destDir string) {
	l.requests <- mergeRequest{sources: sources, destDir: destDir}
}

// Shutdown stops the batch queue and tears the scheduler down. Safe to
// call more than once.
func (l *Library) Shutdown() {
	l.queue.Stop()
	l.scheduler.CancelAll()
}

// Documents returns a snapshot of the working set in insertion order.
func (l *Library) Documents() []Document {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Document, 0, len(l.order))
	for _, p := range l.order {
		out = append(out, *l.docs[p])
	}
	return out
}

// Summarize aggregates the working set.
func (l *Library) Summarize() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Summary{Files: len(l.order)}
	for _, d := range l.docs {
		s.Pages += d.PageCount
		s.TotalSize += d.FileSize
	}
	return s
}

// Idle reports whether all queued and in-flight analysis work has drained
// and every document has a terminal outcome for both task kinds.
func (l *Library) Idle() bool {
	if l.queue.Pending() > 0 || l.scheduler.InFlight() > 0 {
		return false
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, d := range l.docs {
		if !d.Analyzed() {
			return false
		}
	}
	return true
}

// apply folds one event into document state and forwards it. Events for
// paths no longer in the working set (stragglers finishing after a reset)
// are dropped.
func (l *Library) apply(ev event.Event) {
	switch e := ev.(type) {
	case event.ThumbnailReady:
		if !l.updateDoc(e.Path, func(d *Document) {
			d.Thumbnail = e.PNG
			d.ThumbnailError = ""
			d.thumbKnown = true
		}) {
			return
		}

	case event.ThumbnailFailed:
		if !l.updateDoc(e.Path, func(d *Document) {
			d.ThumbnailError = e.Message
			d.thumbKnown = true
		}) {
			return
		}

	case event.PagesReady:
		if !l.updateDoc(e.Path, func(d *Document) {
			d.PageCount = e.PageCount
			d.FileSize = e.FileSize
			d.pagesKnown = true
		}) {
			return
		}
		l.logIfSettled()

	case event.MergeDone, event.MergeFailed:
		l.mu.Lock()
		l.merging = false
		l.mu.Unlock()
	}

	if l.notify != nil {
		l.notify(ev)
	}
}

// updateDoc mutates one document under the lock. Returns false when the
// path is not in the working set.
func (l *Library) updateDoc(path string, fn func(*Document)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	d, ok := l.docs[path]
	if !ok {
		l.logger.Debug("dropping event for unknown path", "path", path)
		return false
	}
	fn(d)
	return true
}

// logIfSettled logs the working-set totals once every document is analyzed.
func (l *Library) logIfSettled() {
	if !l.Idle() {
		return
	}
	s := l.Summarize()
	l.logger.Info("working set analyzed",
		"files", s.Files,
		"pages", s.Pages,
		"size", humanize.Bytes(uint64(s.TotalSize)),
	)
}

// startMerge launches one merge job on its own goroutine. The job reports
// through the event channel so the controller remains the single writer.
func (l *Library) startMerge(req mergeRequest) {
	l.mu.Lock()
	if l.merging {
		l.mu.Unlock()
		// Rejected without touching the running job's state.
		if l.notify != nil {
			l.notify(event.MergeFailed{Message: "merge already in progress"})
		}
		return
	}
	l.merging = true
	l.mu.Unlock()

	outputPath := filepath.Join(req.destDir, l.outputName)

	go func() {
		out, err := l.merger.Merge(merge.Request{
			Sources:    req.sources,
			OutputPath: outputPath,
			OnProgress: func(percent int) {
				l.events <- event.MergeProgress{Percent: percent}
			},
		})
		if err != nil {
			l.events <- event.MergeFailed{Message: err.Error()}
			return
		}
		l.events <- event.MergeDone{OutputPath: out}
	}()
}
