package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pdfdeck/pdfdeck/internal/event"
	"github.com/pdfdeck/pdfdeck/internal/svcctx"
)

var (
	mergeOutDir      string
	mergeWaitTimeout time.Duration
)

var mergeCmd = &cobra.Command{
	Use:   "merge <pdf|dir>...",
	Short: "Merge PDFs in order into a single document",
	Long: `Merge concatenates every page of every input, in argument order, into
one output PDF. Directory arguments expand to the sorted PDFs beneath them.

Inputs are analyzed first so the final summary can report page and size
totals. The merge itself is sequential and fail-fast: the first unreadable
source aborts the whole job and no output file is written.

Examples:
  pdfdeck merge a.pdf b.pdf c.pdf
  pdfdeck merge ./scans -o ./out`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s := svcctx.ServicesFrom(ctx)

		paths, err := expandPDFArgs(args)
		if err != nil {
			return err
		}

		outDir := mergeOutDir
		if outDir == "" {
			if err := s.Home.EnsureExists(); err != nil {
				return err
			}
			outDir = s.Home.OutputPath()
		}

		done := make(chan event.Event, 1)
		lib := buildLibrary(s, func(ev event.Event) {
			switch e := ev.(type) {
			case event.MergeProgress:
				fmt.Printf("merging... %d%%\n", e.Percent)
			case event.MergeDone, event.MergeFailed:
				done <- e
			}
		})

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go lib.Run(runCtx)

		lib.AddPaths(paths)
		if err := waitForAnalysis(ctx, lib, mergeWaitTimeout); err != nil {
			s.Logger.Warn("analysis did not settle, merging anyway", "error", err)
		}

		sum := lib.Summarize()
		fmt.Printf("merging %d files, %d pages, %s\n",
			sum.Files, sum.Pages, humanize.Bytes(uint64(sum.TotalSize)))

		lib.RequestMerge(paths, outDir)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-done:
			switch e := ev.(type) {
			case event.MergeDone:
				fmt.Printf("merged to %s\n", e.OutputPath)
				return nil
			case event.MergeFailed:
				return errors.New(e.Message)
			}
		}
		return nil
	},
}

func init() {
	mergeCmd.Flags().StringVarP(&mergeOutDir, "out-dir", "o", "", "output directory (default: pdfdeck home output dir)")
	mergeCmd.Flags().DurationVar(&mergeWaitTimeout, "analysis-timeout", 2*time.Minute, "how long to wait for background analysis before merging")
}
