package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alvmarrod/site-scribe/internal/app"
	"github.com/alvmarrod/site-scribe/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the crawl form over HTTP",
		Long: `Serve starts an HTTP server with a form to submit a seed URL. Submitting
the form runs a crawl and answers once it is complete. Only one crawl runs
at a time. /healthz reports liveness and /metrics exposes Prometheus metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeCmd(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringP("addr", "a", ":5000", "listen address")
	flags.StringP("output", "o", "scraped_content.txt", "text output file")
	flags.String("index", "", "SQLite page index path (disabled when empty)")

	return cmd
}

// serveFlags maps config keys to serve flags
var serveFlags = map[string]string{
	"listen_addr": "addr",
	"output_path": "output",
	"index_path":  "index",
}

func runServeCmd(cmd *cobra.Command, opts *options) error {
	bindFlags(opts.v, cmd.Flags(), serveFlags)
	cfg, err := opts.setup()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	scraper, err := app.New(cfg, reg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := scraper.Close(); cerr != nil {
			logrus.Warnf("Failed to close index: %v", cerr)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.New(scraper.Crawl, reg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Running crawls are canceled on shutdown
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("Listening on %s", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logrus.Info("Initiating graceful shutdown...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logrus.Info("Graceful shutdown complete")
	return nil
}
