package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/use-agent/pagecount/api/handler"
	"github.com/use-agent/pagecount/archive"
	"github.com/use-agent/pagecount/config"
	"github.com/use-agent/pagecount/engine"
	"github.com/use-agent/pagecount/resolver"
)

// cfg is loaded once in the root PersistentPreRunE and shared by subcommands.
var cfg *config.Config

var (
	flagLogLevel  string
	flagLogFormat string
	flagRender    string
	flagBaseURL   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pagecount",
		Short: "Resolve page counts of archive.org items",
		Long: `pagecount finds how many pages a digitised archive.org item has.

It tries the item's viewer page first, then the page-index, manifest and
file-listing endpoints, and reports the first count any of them yields.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg = config.Load()
			flags := cmd.Flags()
			if flags.Changed("log-level") {
				cfg.Log.Level = flagLogLevel
			}
			if flags.Changed("log-format") {
				cfg.Log.Format = flagLogFormat
			}
			if flags.Changed("render") {
				cfg.Render.Mode = flagRender
			}
			if flags.Changed("base-url") {
				cfg.Archive.BaseURL = flagBaseURL
			}
			// stdout carries results; logs go to stderr.
			initLogger(cfg.Log, cmd.ErrOrStderr())
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&flagLogFormat, "log-format", "text", "log format: text or json")
	pf.StringVar(&flagRender, "render", engine.ModeHTTP, "detail page renderer: http, browser or auto")
	pf.StringVar(&flagBaseURL, "base-url", "https://archive.org", "archive host")

	root.AddCommand(newResolveCmd(), newServeCmd(), &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pagecount version %s\n", handler.Version)
		},
	})
	return root
}

// buildResolver wires the archive client, renderer and probe chain from cfg.
// The returned engine must be closed by the caller.
func buildResolver(cfg *config.Config) (*resolver.Resolver, engine.Engine, error) {
	client := archive.NewClient(archive.Options{
		BaseURL:     cfg.Archive.BaseURL,
		UserAgent:   cfg.Archive.UserAgent,
		Timeout:     cfg.Archive.RequestTimeout,
		ChromeTLS:   cfg.Archive.ChromeTLS,
		StripTokens: cfg.Archive.StripTokens,
	})

	eng, err := engine.New(cfg.Render, client)
	if err != nil {
		return nil, nil, fmt.Errorf("init renderer: %w", err)
	}
	slog.Debug("renderer ready", "engine", eng.Name(), "base_url", cfg.Archive.BaseURL)

	return resolver.New(client, resolver.WithEngine(eng)), eng, nil
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig, w io.Writer) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(h))
}
