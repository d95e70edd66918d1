package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pdfdeck/pdfdeck/internal/meta"
	"github.com/pdfdeck/pdfdeck/internal/render"
	"github.com/pdfdeck/pdfdeck/internal/svcctx"
)

var (
	infoPreviewDir  string
	infoWaitTimeout time.Duration
)

var infoCmd = &cobra.Command{
	Use:   "info <pdf|dir>...",
	Short: "Analyze PDFs and print page counts and sizes",
	Long: `Info runs the background analysis pipeline over the inputs and prints
per-file page counts and sizes plus working-set totals.

With --preview-dir, the first pages of each input are rendered as PNGs at
preview resolution into the given directory.

Examples:
  pdfdeck info ./scans
  pdfdeck info report.pdf --preview-dir /tmp/preview`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s := svcctx.ServicesFrom(ctx)

		paths, err := expandPDFArgs(args)
		if err != nil {
			return err
		}

		lib := buildLibrary(s, nil)
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go lib.Run(runCtx)

		lib.AddPaths(paths)
		if err := waitForAnalysis(ctx, lib, infoWaitTimeout); err != nil {
			s.Logger.Warn("analysis did not settle", "error", err)
		}

		for _, d := range lib.Documents() {
			thumb := "ok"
			if d.ThumbnailError != "" {
				thumb = "failed: " + d.ThumbnailError
			} else if len(d.Thumbnail) == 0 {
				thumb = "pending"
			}
			fmt.Printf("%-40s %5d pages  %10s  thumbnail %s\n",
				filepath.Base(d.Path), d.PageCount, humanize.Bytes(uint64(d.FileSize)), thumb)
		}

		sum := lib.Summarize()
		fmt.Printf("\ntotal: %d files, %d pages, %s\n",
			sum.Files, sum.Pages, humanize.Bytes(uint64(sum.TotalSize)))

		if infoPreviewDir != "" {
			return writePreviews(ctx, s, paths)
		}
		return nil
	},
}

// writePreviews renders the first pages of each input at preview resolution.
func writePreviews(ctx context.Context, s *svcctx.Services, paths []string) error {
	cfg := s.Config.Get().Render
	renderer := render.NewPoppler()
	reader := meta.NewReader()

	if err := os.MkdirAll(infoPreviewDir, 0o755); err != nil {
		return fmt.Errorf("failed to create preview directory: %w", err)
	}

	for _, path := range paths {
		pages, err := reader.PageCount(path)
		if err != nil {
			s.Logger.Warn("skipping preview, unreadable structure", "path", path, "error", err)
			continue
		}
		if pages > cfg.PreviewPages {
			pages = cfg.PreviewPages
		}

		base := filepath.Base(path)
		name := base[:len(base)-len(filepath.Ext(base))]

		for i := 0; i < pages; i++ {
			png, err := renderer.Render(ctx, path, i, cfg.PreviewDPI)
			if err != nil {
				return fmt.Errorf("preview of %s page %d: %w", base, i+1, err)
			}
			out := filepath.Join(infoPreviewDir, fmt.Sprintf("%s_page_%02d.png", name, i+1))
			if err := os.WriteFile(out, png, 0o644); err != nil {
				return fmt.Errorf("failed to write preview: %w", err)
			}
		}
		s.Logger.Info("preview written", "path", path, "pages", pages)
	}
	return nil
}

func init() {
	infoCmd.Flags().StringVar(&infoPreviewDir, "preview-dir", "", "render first pages as PNGs into this directory")
	infoCmd.Flags().DurationVar(&infoWaitTimeout, "analysis-timeout", 2*time.Minute, "how long to wait for background analysis")
}
