package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/charlievieth/fastwalk"

	"github.com/pdfdeck/pdfdeck/internal/event"
	"github.com/pdfdeck/pdfdeck/internal/library"
	"github.com/pdfdeck/pdfdeck/internal/meta"
	"github.com/pdfdeck/pdfdeck/internal/render"
	"github.com/pdfdeck/pdfdeck/internal/svcctx"
)

var errAnalysisPending = errors.New("analysis still running")

// expandPDFArgs turns command arguments into a flat ordered list of PDF
// paths. File arguments pass through in argument order; directory arguments
// expand to every .pdf beneath them, sorted by path.
func expandPDFArgs(args []string) ([]string, error) {
	var out []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if !info.IsDir() {
			out = append(out, arg)
			continue
		}

		found, err := findPDFs(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", arg, err)
		}
		out = append(out, found...)
	}

	if len(out) == 0 {
		return nil, errors.New("no PDF files found")
	}
	return out, nil
}

// findPDFs walks root and returns all .pdf files beneath it, sorted.
func findPDFs(root string) ([]string, error) {
	var mu sync.Mutex
	var found []string

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			mu.Lock()
			found = append(found, path)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(found)
	return found, nil
}

// buildLibrary constructs a library against the real renderer and reader.
func buildLibrary(s *svcctx.Services, notify func(event.Event)) *library.Library {
	return library.New(library.Config{
		Renderer: render.NewPoppler(),
		Meta:     meta.NewReader(),
		Settings: s.Config.Get(),
		Notify:   notify,
		Logger:   s.Logger,
	})
}

// waitForAnalysis polls until the library settles or the timeout elapses.
func waitForAnalysis(ctx context.Context, lib *library.Library, timeout time.Duration) error {
	const poll = 200 * time.Millisecond

	return retry.Do(
		func() error {
			if !lib.Idle() {
				return errAnalysisPending
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(timeout/poll)),
		retry.Delay(poll),
		retry.DelayType(retry.FixedDelay),
	)
}
