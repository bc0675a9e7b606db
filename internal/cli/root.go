// Package cli implements the rollcall command line.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/logger"
	"github.com/spf13/cobra"

	"rollcall/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	DataDir    string
	Storage    string
	Seed       uint64
	LogFile    string
	Verbose    bool
	Format     string // "json" | "text"

	cfg     config.Config
	log     *logger.Logger
	logFile *os.File
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the rollcall CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rollcall",
		Short: "Roll call lottery",
		Long: `Draw names from a roster without repeats, round by round.

Every command works on the saved session in the data directory. Use
"rollcall serve" to run the web projector and JSON API.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.prepare(cmd); err != nil {
				return err
			}
			return opts.loadConfig(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			opts.closeLogging()
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", config.DefaultPath, "config file")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "directory holding the saved session (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Storage, "storage", "", "storage backend: file|sqlite (overrides config)")
	cmd.PersistentFlags().Uint64Var(&opts.Seed, "seed", 0, "seed for the random source, 0 seeds from the clock")
	cmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "append logs to this file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewDrawCommand(opts))
	cmd.AddCommand(NewSkipCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewWeightCommand(opts))
	cmd.AddCommand(NewBalanceCommand(opts))
	cmd.AddCommand(NewMoveCommand(opts))
	cmd.AddCommand(NewShuffleCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewSnapshotCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

// prepare checks the output format and starts logging.
func (o *RootOptions) prepare(cmd *cobra.Command) error {
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}
	return o.setupLogging(cmd)
}

// setupLogging routes google/logger output to the log file and, with -v, to
// stderr. Without either, log lines are discarded so they never mix with
// command output.
func (o *RootOptions) setupLogging(cmd *cobra.Command) error {
	var writers []io.Writer
	if o.LogFile != "" {
		f, err := os.OpenFile(o.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return WrapExitError(ExitCommandError, "open log file", err)
		}
		o.logFile = f
		writers = append(writers, f)
	}
	if o.Verbose {
		writers = append(writers, cmd.ErrOrStderr())
	}

	var w io.Writer = io.Discard
	if len(writers) > 0 {
		w = io.MultiWriter(writers...)
	}
	o.log = logger.Init("rollcall", false, false, w)
	return nil
}

func (o *RootOptions) closeLogging() {
	if o.log != nil {
		o.log.Close()
		o.log = nil
	}
	if o.logFile != nil {
		o.logFile.Close()
		o.logFile = nil
	}
}

// loadConfig reads the config file and environment, then applies the global
// flags the user actually set.
func (o *RootOptions) loadConfig(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir = o.DataDir
	}
	if flags.Changed("storage") {
		cfg.Storage = strings.ToLower(o.Storage)
	}
	if flags.Changed("seed") {
		cfg.Seed = o.Seed
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid settings", err)
	}
	o.cfg = cfg
	return nil
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
