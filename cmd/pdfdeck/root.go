package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdfdeck/pdfdeck/internal/config"
	"github.com/pdfdeck/pdfdeck/internal/home"
	"github.com/pdfdeck/pdfdeck/internal/svcctx"
	"github.com/pdfdeck/pdfdeck/version"
)

var (
	cfgFile string
	homeDir string
)

var rootCmd = &cobra.Command{
	Use:   "pdfdeck",
	Short: "Stage, analyze, and merge PDF documents",
	Long: `pdfdeck stages PDF documents in a working set, analyzes them in the
background (first-page thumbnail, page count, file size), and merges them
in order into a single output document.

Analysis runs under a strict concurrency ceiling so large folder adds never
saturate the machine; merging is sequential and fail-fast, so a bad source
anywhere in the list means no output is written at all.`,
	Version: version.GitRelease,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cm.WatchConfig()

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel(cm.Get().Log.Level),
		}))
		slog.SetDefault(logger)

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}

		cmd.SetContext(svcctx.WithServices(cmd.Context(), &svcctx.Services{
			Config: cm,
			Home:   h,
			Logger: logger,
		}))
		return nil
	},
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.config/pdfdeck/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "pdfdeck home directory (default: XDG data dir)",
	)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
}
