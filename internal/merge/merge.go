// Package merge concatenates PDF documents in caller order into one output.
//
// Processing is strictly sequential and fail-fast: every source is read and
// validated in input order, the merged document is accumulated in memory,
// and the destination file is written once at the very end. A bad source
// anywhere in the sequence therefore never leaves a partial output behind.
package merge

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrNoSources is returned when a merge is requested with no inputs.
var ErrNoSources = errors.New("no source documents to merge")

// Progress receives the completion percentage after each source is
// processed. Values are monotonically non-decreasing and end at 100.
type Progress func(percent int)

// Request describes one merge invocation.
type Request struct {
	// Sources are merged in exactly this order.
	Sources []string

	// OutputPath is the destination file. Its parent directory is created
	// lazily, immediately before the final write.
	OutputPath string

	// OnProgress is optional.
	OnProgress Progress
}

// Engine performs sequential document merges.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a merge engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger.With("component", "merge")}
}

// Merge concatenates every page of every source, in order, into one output
// document and returns the destination path. It aborts on the first source
// that cannot be read or parsed; the error names the offending file. The
// engine runs to completion or failure: there is no cancellation.
func (e *Engine) Merge(req Request) (string, error) {
	if len(req.Sources) == 0 {
		return "", ErrNoSources
	}

	jobID := uuid.New().String()
	log := e.logger.With("job_id", jobID)
	total := len(req.Sources)
	log.Info("starting merge", "sources", total, "output", req.OutputPath)

	readers := make([]io.ReadSeeker, 0, total)
	totalPages := 0

	for i, src := range req.Sources {
		data, err := os.ReadFile(src)
		if err != nil {
			return "", fmt.Errorf("%s: %w", filepath.Base(src), err)
		}

		// Validate structure up front so a corrupt source fails the job
		// before anything is written anywhere.
		pages, err := api.PageCount(bytes.NewReader(data), nil)
		if err != nil {
			return "", fmt.Errorf("%s: %w", filepath.Base(src), err)
		}

		readers = append(readers, bytes.NewReader(data))
		totalPages += pages

		percent := (i + 1) * 100 / total
		if req.OnProgress != nil {
			req.OnProgress(percent)
		}
		log.Debug("source accumulated", "file", filepath.Base(src), "pages", pages, "percent", percent)
	}

	var buf bytes.Buffer
	if err := api.MergeRaw(readers, &buf, false, nil); err != nil {
		return "", fmt.Errorf("merge failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(req.OutputPath, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write output: %w", err)
	}

	log.Info("merge complete", "output", req.OutputPath, "pages", totalPages, "bytes", buf.Len())
	return req.OutputPath, nil
}
