package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/pdfdeck/pdfdeck/internal/event"
	"github.com/pdfdeck/pdfdeck/internal/library"
	"github.com/pdfdeck/pdfdeck/internal/svcctx"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Watch a directory and analyze PDFs as they appear",
	Long: `Watch analyzes every PDF already in the directory, then keeps running
and feeds newly created PDFs into the analysis pipeline as they land.
Results are printed as they arrive. Stop with Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s := svcctx.ServicesFrom(ctx)
		dir := args[0]

		lib := buildLibrary(s, func(ev event.Event) {
			switch e := ev.(type) {
			case event.PagesReady:
				fmt.Printf("%s: %d pages, %s\n",
					filepath.Base(e.Path), e.PageCount, humanize.Bytes(uint64(e.FileSize)))
			case event.ThumbnailReady:
				fmt.Printf("%s: thumbnail ready (%s)\n",
					filepath.Base(e.Path), humanize.Bytes(uint64(len(e.PNG))))
			case event.ThumbnailFailed:
				fmt.Printf("%s: thumbnail failed: %s\n", filepath.Base(e.Path), e.Message)
			}
		})

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go lib.Run(runCtx)

		// Pick up what's already there.
		if existing, err := findPDFs(dir); err == nil && len(existing) > 0 {
			lib.AddPaths(existing)
		}

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		defer watcher.Close()

		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		s.Logger.Info("watching for PDFs", "dir", dir)

		return watchLoop(ctx, lib, watcher)
	},
}

// watchLoop feeds created PDFs into the library until the context ends.
func watchLoop(ctx context.Context, lib *library.Library, watcher *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if strings.EqualFold(filepath.Ext(ev.Name), ".pdf") {
				lib.AddPaths([]string{ev.Name})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", err)
		}
	}
}
