package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/litelease/internal/filelock"
	"github.com/roach88/litelease/internal/store"
)

// DropOptions holds flags for the drop command.
type DropOptions struct {
	*RootOptions
	Database string
}

// DropResult names the removed database.
type DropResult struct {
	Path string `json:"path" yaml:"path"`
}

// WriteText renders the result as one line.
func (r DropResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "dropped %s\n", r.Path)
	return err
}

// NewDropCommand creates the drop command.
func NewDropCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DropOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Delete a database and its journal files",
		Long: `Delete a database file together with its -wal, -shm and -journal files.

The exclusive advisory lock is held while deleting, so a replication into the
same path is never interrupted half way.

The lock lives in a <db>.lock file next to the database. It is left in place:
removing it would let a new locker take a fresh file while a waiter still
holds the old one. It is safe to delete once no litelease process uses the
path.

Example:
  litelease drop --db ./backup/app.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrop(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runDrop(opts *DropOptions, cmd *cobra.Command) error {
	if _, err := os.Stat(opts.Database); err != nil {
		return opts.fail(cmd, ExitCommandError, ErrCodeNotFound, "database not found", err)
	}

	err := filelock.PerformInLock(cmd.Context(), opts.Database, filelock.Delete, "dropping "+opts.Database, func() error {
		return store.New(opts.Database).Drop()
	})
	if err != nil {
		return opts.fail(cmd, ExitFailure, errorCode(err), "drop failed", err)
	}

	opts.logger().Info("dropped database", "path", opts.Database)
	return opts.formatter(cmd).Success(DropResult{Path: opts.Database})
}
