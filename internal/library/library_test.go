package library

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pdfdeck/pdfdeck/internal/config"
	"github.com/pdfdeck/pdfdeck/internal/event"
)

type stubRenderer struct {
	png []byte
	err error
}

func (r *stubRenderer) Render(ctx context.Context, path string, pageIndex, dpi int) ([]byte, error) {
	return r.png, r.err
}

type stubMeta struct {
	pages int
	size  int64
}

func (m *stubMeta) PageCount(path string) (int, error) { return m.pages, nil }
func (m *stubMeta) FileSize(path string) (int64, error) { return m.size, nil }

func encodePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// fastSettings shrinks the queue timings so tests settle quickly.
func fastSettings() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Batch.DebounceMS = 10
	cfg.Batch.DrainMS = 5
	cfg.Batch.BackoffMS = 10
	cfg.Analysis.Concurrency = 2
	cfg.Analysis.CacheKeyPolicy = "path"
	return cfg
}

// touchPDF creates an empty stand-in file; analysis results come from the
// stub renderer and metadata reader, not the file contents.
func touchPDF(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitIdle(t *testing.T, lib *Library) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if lib.Idle() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("library never became idle")
}

// TestLibrary_AddPathsFiltersAndDedupes verifies non-PDFs, missing files,
// and duplicates are skipped on admission.
func TestLibrary_AddPathsFiltersAndDedupes(t *testing.T) {
	dir := t.TempDir()
	a := touchPDF(t, dir, "a.pdf")
	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	lib := New(Config{
		Renderer: &stubRenderer{},
		Meta:     &stubMeta{},
		Settings: fastSettings(),
	})
	defer lib.Shutdown()

	added := lib.AddPaths([]string{
		a,
		a, // duplicate inside the same call
		txt,
		filepath.Join(dir, "ghost.pdf"),
	})
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}

	// Re-adding an admitted path is a no-op.
	if n := lib.AddPaths([]string{a}); n != 0 {
		t.Errorf("re-add admitted %d paths", n)
	}

	docs := lib.Documents()
	if len(docs) != 1 || docs[0].Path != a {
		t.Errorf("working set = %+v", docs)
	}
}

// TestLibrary_AnalysisFlow verifies documents added to the working set end
// up fully analyzed with results folded in by the controller.
func TestLibrary_AnalysisFlow(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		touchPDF(t, dir, "a.pdf"),
		touchPDF(t, dir, "b.pdf"),
		touchPDF(t, dir, "c.pdf"),
	}

	thumb := encodePNG(t)
	lib := New(Config{
		Renderer: &stubRenderer{png: thumb},
		Meta:     &stubMeta{pages: 4, size: 2048},
		Settings: fastSettings(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lib.Run(ctx)

	lib.AddPaths(paths)
	waitIdle(t, lib)

	docs := lib.Documents()
	if len(docs) != 3 {
		t.Fatalf("working set has %d documents, want 3", len(docs))
	}
	for i, d := range docs {
		if d.Path != paths[i] {
			t.Errorf("document %d = %s, want insertion order %s", i, d.Path, paths[i])
		}
		if !d.Analyzed() {
			t.Errorf("%s not analyzed", d.Path)
		}
		if d.PageCount != 4 || d.FileSize != 2048 {
			t.Errorf("%s metadata = pages %d size %d", d.Path, d.PageCount, d.FileSize)
		}
		if !bytes.Equal(d.Thumbnail, thumb) {
			t.Errorf("%s thumbnail mismatch", d.Path)
		}
	}

	s := lib.Summarize()
	if s.Files != 3 || s.Pages != 12 || s.TotalSize != 3*2048 {
		t.Errorf("summary = %+v", s)
	}
}

// TestLibrary_MergeFailureEvent verifies a merge of an unreadable source
// surfaces as a MergeFailed event naming the file.
func TestLibrary_MergeFailureEvent(t *testing.T) {
	dir := t.TempDir()

	events := make(chan event.Event, 16)
	lib := New(Config{
		Renderer: &stubRenderer{png: encodePNG(t)},
		Meta:     &stubMeta{pages: 1, size: 1},
		Settings: fastSettings(),
		Notify:   func(ev event.Event) { events <- ev },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lib.Run(ctx)

	lib.RequestMerge([]string{filepath.Join(dir, "missing.pdf")}, dir)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if failed, ok := ev.(event.MergeFailed); ok {
				if failed.Message == "" {
					t.Error("failure event missing message")
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for MergeFailed")
		}
	}
}
