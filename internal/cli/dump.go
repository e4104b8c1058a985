package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/litelease/internal/access"
	"github.com/roach88/litelease/internal/filelock"
	"github.com/roach88/litelease/internal/store"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	Database string
	Table    string
	Limit    int
}

// DumpResult is the content of one table.
type DumpResult struct {
	Table   string   `json:"table" yaml:"table"`
	Columns []string `json:"columns" yaml:"columns"`
	Rows    [][]any  `json:"rows" yaml:"rows"`
}

// WriteText renders the rows as aligned columns.
func (r DumpResult) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(r.Columns, "\t"))
	for _, row := range r.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("x'%x'", x)
	default:
		return fmt.Sprint(x)
	}
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the rows of a table",
		Long: `Print up to --limit rows of a table. Useful for checking what a replica
contains.

The database is opened read-only under the shared advisory lock, so a dump
waits while a replication is rewriting the same path.

Example:
  litelease dump --db ./backup/app.db --table users
  litelease dump --db ./backup/app.db --table users --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Table, "table", "", "table to print (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum number of rows")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("table")

	return cmd
}

func runDump(opts *DumpOptions, cmd *cobra.Command) error {
	if _, err := os.Stat(opts.Database); err != nil {
		return opts.fail(cmd, ExitCommandError, ErrCodeNotFound, "database not found", err)
	}

	// A replication into this path holds the Delete lock from removing the
	// old file until the snapshot is complete.
	var result DumpResult
	err := filelock.PerformInLock(cmd.Context(), opts.Database, filelock.Read, "dumping "+opts.Database, func() (err error) {
		result, err = readTable(cmd.Context(), opts)
		return err
	})
	if err != nil {
		return opts.fail(cmd, ExitFailure, errorCode(err), "dump failed", err)
	}
	return opts.formatter(cmd).Success(result)
}

func readTable(ctx context.Context, opts *DumpOptions) (DumpResult, error) {
	h := store.New(opts.Database, append(opts.storeOptions(), store.WithReadOnly())...)
	defer h.Close()

	lease, err := access.OpenBlocking(h, access.WithLogger(opts.logger()))
	if err != nil {
		return DumpResult{}, err
	}
	defer lease.Dispose(context.WithoutCancel(ctx))

	return access.Query(ctx, lease, nil, func(ctx context.Context, h *store.Handle) (DumpResult, error) {
		return dumpTable(ctx, h, opts.Table, opts.Limit)
	})
}

// dumpTable reads up to limit rows of table with the statement API.
func dumpTable(ctx context.Context, h *store.Handle, table string, limit int) (DumpResult, error) {
	result := DumpResult{Table: table, Rows: [][]any{}}

	stmt, err := h.Prepare(ctx, "SELECT * FROM "+quoteIdent(table)+" LIMIT ?")
	if err != nil {
		return result, err
	}
	defer stmt.Finalize()

	if err := stmt.Bind(1, limit); err != nil {
		return result, err
	}

	for {
		ok, err := stmt.Step(ctx)
		if err != nil {
			return result, err
		}
		if result.Columns == nil {
			result.Columns = make([]string, stmt.ColumnCount())
			for i := range result.Columns {
				result.Columns[i] = stmt.ColumnName(i)
			}
		}
		if !ok {
			break
		}

		row := make([]any, stmt.ColumnCount())
		for i := range row {
			v, err := stmt.ColumnValue(i)
			if err != nil {
				return result, err
			}
			if b, isBlob := v.([]byte); isBlob {
				v = append([]byte(nil), b...)
			}
			row[i] = v
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
