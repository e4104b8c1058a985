package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/litelease/internal/access"
	"github.com/roach88/litelease/internal/config"
	"github.com/roach88/litelease/internal/filelock"
	"github.com/roach88/litelease/internal/replica"
	"github.com/roach88/litelease/internal/store"
)

// RootOptions holds global flags for all commands, plus the configuration
// and logger resolved from them before any subcommand runs.
type RootOptions struct {
	ConfigFile string
	LogLevel   string
	Format     string // "text" | "json" | "yaml"

	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the litelease CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "litelease",
		Short: "litelease - leased SQLite access and snapshot replication",
		Long: `Replicate live SQLite databases into consistent snapshot files.

Replication takes an exclusive advisory lock on the replica and copies the
source with VACUUM INTO, so the source may be written to while it runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.prepare(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	// Add subcommands
	cmd.AddCommand(NewReplicateCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewDumpCommand(opts))
	cmd.AddCommand(NewDropCommand(opts))

	return cmd
}

// prepare validates the global flags, loads the configuration and installs
// the logger.
func (o *RootOptions) prepare(cmd *cobra.Command) error {
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	cfg, err := config.Load(o.ConfigFile, cmd.Flags())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	o.Config = cfg

	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid log level", err)
	}
	o.Logger = NewLogger(cmd.ErrOrStderr(), level)
	slog.SetDefault(o.Logger)
	return nil
}

// formatter returns an OutputFormatter writing to the command's stdout.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// logger returns the configured logger, or the default one when the command
// runs without the root's pre-run (as in tests).
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// storeOptions converts the configuration into handle options.
func (o *RootOptions) storeOptions() []store.Option {
	cfg := o.Config
	if cfg == nil {
		d := config.Default()
		cfg = &d
	}
	return []store.Option{
		store.WithBusyTimeout(cfg.BusyTimeout),
		store.WithJournalMode(cfg.JournalMode),
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// ParseLevel maps a level name to a slog level. "trace" is replica.LevelTrace.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "trace":
		return replica.LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

// NewLogger returns a text logger at level that prints replica.LevelTrace
// as TRACE.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && len(groups) == 0 {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == replica.LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	})
	return slog.New(handler)
}

// errorCode classifies err for structured output.
func errorCode(err error) string {
	var lockErr *filelock.LockError
	switch {
	case errors.Is(err, store.ErrLeaseConflict):
		return ErrCodeLeaseHeld
	case errors.As(err, &lockErr):
		return ErrCodeLock
	case errors.Is(err, store.ErrEngineCall), errors.Is(err, access.ErrOperationPanicked):
		return ErrCodeEngine
	default:
		return ErrCodeGeneric
	}
}

// fail reports err in structured formats and returns it as an ExitError.
// Text output leaves printing to the caller of Execute.
func (o *RootOptions) fail(cmd *cobra.Command, exitCode int, errCode, message string, err error) error {
	if o.Format == "json" || o.Format == "yaml" {
		var detail any
		if err != nil {
			detail = err.Error()
		}
		if encErr := o.formatter(cmd).Error(errCode, message, detail); encErr != nil {
			return encErr
		}
	}
	return WrapExitError(exitCode, message, err)
}
