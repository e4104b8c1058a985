package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/litelease/internal/access"
	"github.com/roach88/litelease/internal/replica"
	"github.com/roach88/litelease/internal/store"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Replicate a database whenever it changes",
		Long: `Hold a lease on the source database and replicate it each time the
source file or its write-ahead log changes. Bursts of changes within
--interval collapse into one replication.

A pending replication is flushed on SIGINT or SIGTERM before exiting.

Example:
  litelease watch --source ./app.db --replica ./backup/app.db --interval 2s
  litelease watch --config litelease.yaml --metrics-addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(rootOpts, cmd)
		},
	}

	cmd.Flags().String("source", "", "source database path")
	cmd.Flags().String("replica", "", "replica path")
	cmd.Flags().Duration("interval", time.Second, "coalescing interval for replications")
	cmd.Flags().Duration("busy-timeout", 5*time.Second, "SQLite busy timeout")
	cmd.Flags().String("journal-mode", "", "journal mode to set on the source (default: leave unchanged)")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func runWatch(opts *RootOptions, cmd *cobra.Command) error {
	cfg := opts.Config
	if cfg == nil || cfg.Source == "" || cfg.Replica == "" {
		return opts.fail(cmd, ExitCommandError, ErrCodeConfig, "source and replica are required", nil)
	}
	if _, err := os.Stat(cfg.Source); err != nil {
		return opts.fail(cmd, ExitCommandError, ErrCodeNotFound, "source database not found", err)
	}
	logger := opts.logger()

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	h := store.New(cfg.Source, opts.storeOptions()...)
	defer func() {
		if err := h.Close(); err != nil {
			logger.Error("error closing database", "error", err)
		}
	}()

	lease, err := access.OpenBlocking(h, access.WithLogger(logger))
	if err != nil {
		return opts.fail(cmd, ExitFailure, errorCode(err), "failed to open lease", err)
	}
	defer lease.Dispose(context.Background())

	r := replica.New(lease, cfg.Replica, replica.WithInterval(cfg.Interval), replica.WithLogger(logger))
	if err := r.Perform(ctx); err != nil {
		return opts.fail(cmd, ExitFailure, errorCode(err), "initial replication failed", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return opts.fail(cmd, ExitFailure, ErrCodeGeneric, "failed to create watcher", err)
	}
	defer watcher.Close()

	// Watch the directory: SQLite replaces the -wal file, which would drop a
	// watch on the file itself.
	dir := filepath.Dir(cfg.Source)
	if err := watcher.Add(dir); err != nil {
		return opts.fail(cmd, ExitFailure, ErrCodeGeneric, "failed to watch "+dir, err)
	}

	if cfg.MetricsAddr != "" {
		_, stop, err := serveMetrics(cfg.MetricsAddr, logger)
		if err != nil {
			return opts.fail(cmd, ExitFailure, ErrCodeGeneric, "failed to serve metrics", err)
		}
		defer stop()
	}

	logger.Info("watching", "source", cfg.Source, "replica", r.Target(), "interval", cfg.Interval)
	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s into %s. Press Ctrl-C to stop.\n", cfg.Source, r.Target())

	watchLoop(ctx, watcher, cfg.Source, r, logger)

	if r.Flush() {
		logger.Info("flushed pending replication")
	}
	r.Wait()
	logger.Info("watch stopped")
	return nil
}

// watchLoop schedules a replication for every write to source or its WAL
// until ctx ends.
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, source string, r *replica.Replicator, logger *slog.Logger) {
	source = filepath.Clean(source)
	wal := source + "-wal"

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			name := filepath.Clean(ev.Name)
			if name != source && name != wal {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			logger.Debug("source changed", "file", name, "op", ev.Op.String())
			r.Schedule(0)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error("watch error", "error", err)
		}
	}
}

// serveMetrics starts a /metrics endpoint and returns its address and a
// function that shuts it down.
func serveMetrics(addr string, logger *slog.Logger) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}
