package analysis

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"log/slog"

	"github.com/pdfdeck/pdfdeck/internal/event"
)

// Renderer rasterizes one page of a document into an encoded PNG.
type Renderer interface {
	Render(ctx context.Context, path string, pageIndex, dpi int) ([]byte, error)
}

// MetadataReader reads page counts and file sizes.
type MetadataReader interface {
	PageCount(path string) (int, error)
	FileSize(path string) (int64, error)
}

var errEmptyRender = errors.New("renderer returned an empty image")

// Runner executes analysis tasks. Each task runs on its own goroutine,
// makes exactly one attempt, notifies the scheduler via Finish, and then
// delivers exactly one terminal event. Events for tasks whose context was
// cancelled (scheduler shutdown) are dropped rather than delivered late.
type Runner struct {
	scheduler    *Scheduler
	renderer     Renderer
	meta         MetadataReader
	events       chan<- event.Event
	thumbnailDPI int
	logger       *slog.Logger
}

// RunnerConfig configures a task runner.
type RunnerConfig struct {
	Scheduler    *Scheduler
	Renderer     Renderer
	Meta         MetadataReader
	Events       chan<- event.Event
	ThumbnailDPI int // default 72
	Logger       *slog.Logger
}

// NewRunner creates a task runner.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dpi := cfg.ThumbnailDPI
	if dpi <= 0 {
		dpi = 72
	}

	return &Runner{
		scheduler:    cfg.Scheduler,
		renderer:     cfg.Renderer,
		meta:         cfg.Meta,
		events:       cfg.Events,
		thumbnailDPI: dpi,
		logger:       logger.With("component", "tasks"),
	}
}

// Dispatch submits both analysis kinds for one path. A cached thumbnail is
// reported immediately without consuming an admission token. A kind already
// in flight is a no-op; a kind starved of a token makes the dispatch
// incomplete so the batch queue offers the path again later.
func (r *Runner) Dispatch(path string) (started int, complete bool) {
	complete = true

	if cached, ok := r.scheduler.GetCachedThumbnail(path); ok {
		r.events <- event.ThumbnailReady{Path: path, PNG: cached}
	} else if ctx, ok := r.scheduler.TryStart(path, KindThumbnail); ok {
		started++
		go r.runThumbnail(ctx, path)
	} else if !r.scheduler.taskInFlight(path, KindThumbnail) {
		complete = false
	}

	if ctx, ok := r.scheduler.TryStart(path, KindPageCount); ok {
		started++
		go r.runPageCount(ctx, path)
	} else if !r.scheduler.taskInFlight(path, KindPageCount) {
		complete = false
	}

	return started, complete
}

// runThumbnail renders page 0 at thumbnail resolution and caches the result.
func (r *Runner) runThumbnail(ctx context.Context, path string) {
	data, err := r.renderer.Render(ctx, path, 0, r.thumbnailDPI)
	if err == nil {
		err = validatePNG(data)
	}

	if err != nil {
		r.scheduler.Finish(path, KindThumbnail)
		r.logger.Warn("thumbnail failed", "path", path, "error", err)
		r.emit(ctx, event.ThumbnailFailed{Path: path, Message: err.Error()})
		return
	}

	r.scheduler.CacheThumbnail(path, data)
	r.scheduler.Finish(path, KindThumbnail)
	r.logger.Debug("thumbnail ready", "path", path, "bytes", len(data))
	r.emit(ctx, event.ThumbnailReady{Path: path, PNG: data})
}

// runPageCount measures file size and page count. The two reads are
// independent: a structural parse failure reports success with a zero page
// count and the real size, since partial information beats none.
func (r *Runner) runPageCount(ctx context.Context, path string) {
	size, err := r.meta.FileSize(path)
	if err != nil {
		r.logger.Warn("stat failed", "path", path, "error", err)
		size = 0
	}

	pages, err := r.meta.PageCount(path)
	if err != nil {
		r.logger.Warn("page count failed, reporting size only", "path", path, "error", err)
		pages = 0
	}

	r.scheduler.Finish(path, KindPageCount)
	r.emit(ctx, event.PagesReady{Path: path, PageCount: pages, FileSize: size})
}

// emit delivers a terminal event unless the task was cancelled, in which
// case the result is silently discarded: after CancelAll the registry no
// longer reflects this task and nobody is listening for it.
func (r *Runner) emit(ctx context.Context, ev event.Event) {
	select {
	case r.events <- ev:
	case <-ctx.Done():
	}
}

// validatePNG rejects empty or structurally invalid renderer output.
func validatePNG(data []byte) error {
	if len(data) == 0 {
		return errEmptyRender
	}
	if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
		return errors.New("renderer returned an invalid image: " + err.Error())
	}
	return nil
}
