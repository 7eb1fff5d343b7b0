package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/pagecount/api"
	"github.com/use-agent/pagecount/batch"
	"github.com/use-agent/pagecount/cache"
)

func newServeCmd() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			return runServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "listen address")
	cmd.Flags().IntVarP(&port, "port", "p", 5000, "listen port")
	return cmd
}

func runServe(ctx context.Context) error {
	slog.Info("pagecount starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"render", cfg.Render.Mode,
		"results_file", cfg.Batch.ResultsFile,
	)

	// ── 1. Resolver (may launch a browser) ──────────────────────────
	res, eng, err := buildResolver(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	// ── 2. Batch runner and result cache ────────────────────────────
	runner := batch.NewRunner(res, cfg.Batch.MinDelay)
	cc := cache.New(cfg.Cache.MaxEntries)
	defer cc.Close()

	// ── 3. Router and HTTP server ───────────────────────────────────
	router := api.NewRouter(cfg, res, runner, cc, time.Now())

	// Request contexts derive from baseCtx so shutdown can stop running batches.
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── 4. Graceful shutdown ────────────────────────────────────────
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	case <-sigCtx.Done():
		slog.Info("shutdown signal received")
	}

	// Streaming batches stop before their next identifier.
	cancelRequests()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("pagecount stopped")
	return nil
}
