package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/litelease/internal/replica"
)

// ReplicateResult is the outcome of one replication.
type ReplicateResult struct {
	Source   string        `json:"source" yaml:"source"`
	Replica  string        `json:"replica" yaml:"replica"`
	Bytes    int64         `json:"bytes" yaml:"bytes"`
	Duration time.Duration `json:"duration_ns" yaml:"duration_ns"`
}

// WriteText renders the result as one line.
func (r ReplicateResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "replicated %s -> %s (%d bytes)\n", r.Source, r.Replica, r.Bytes)
	return err
}

// NewReplicateCommand creates the replicate command.
func NewReplicateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replicate",
		Short: "Write a consistent snapshot of a database",
		Long: `Write a transactionally consistent snapshot of the source database to the
replica path, replacing any previous replica.

With --lock-source (the default) a shared advisory lock is held on the source
for the whole run, so cooperating writers that take the exclusive lock are
kept out while the connection is open.

Example:
  litelease replicate --source ./app.db --replica ./backup/app.db
  litelease replicate --config litelease.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplicate(rootOpts, cmd)
		},
	}

	cmd.Flags().String("source", "", "source database path")
	cmd.Flags().String("replica", "", "replica path")
	cmd.Flags().Bool("lock-source", true, "hold a shared file lock on the source while replicating")
	cmd.Flags().Duration("busy-timeout", 5*time.Second, "SQLite busy timeout")

	return cmd
}

func runReplicate(opts *RootOptions, cmd *cobra.Command) error {
	cfg := opts.Config
	if cfg == nil || cfg.Source == "" || cfg.Replica == "" {
		return opts.fail(cmd, ExitCommandError, ErrCodeConfig, "source and replica are required", nil)
	}
	if _, err := os.Stat(cfg.Source); err != nil {
		return opts.fail(cmd, ExitCommandError, ErrCodeNotFound, "source database not found", err)
	}

	logger := opts.logger()
	logger.Info("replicating", "source", cfg.Source, "replica", cfg.Replica, "lock_source", cfg.LockSource)

	start := time.Now()
	if err := replica.ReplicateFrom(cmd.Context(), cfg.Source, cfg.Replica, logger, cfg.LockSource, opts.storeOptions()...); err != nil {
		return opts.fail(cmd, ExitFailure, errorCode(err), "replication failed", err)
	}

	result := ReplicateResult{
		Source:   cfg.Source,
		Replica:  cfg.Replica,
		Duration: time.Since(start),
	}
	if fi, err := os.Stat(cfg.Replica); err == nil {
		result.Bytes = fi.Size()
	}
	return opts.formatter(cmd).Success(result)
}
