package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"rollcall/internal/config"
)

// NewConfigCommand creates the config command group. Its subcommands read
// and write the config file itself, so they skip the environment and flag
// overrides every other command applies.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings in the config file",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.prepare(cmd)
		},
	}
	cmd.AddCommand(newConfigGetCommand(rootOpts))
	cmd.AddCommand(newConfigSetCommand(rootOpts))
	return cmd
}

func newConfigGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print one setting, or all of them",
		Long: `Print settings as stored in the config file. Keys missing from the
file show their built-in defaults.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			cfg, err := config.LoadFile(rootOpts.ConfigPath)
			if err != nil {
				return f.Fail("read config", err)
			}

			if len(args) == 1 {
				value, err := cfg.Get(args[0])
				if err != nil {
					return f.Fail("config get", err)
				}
				entry := config.Entry{Key: args[0], Value: value}
				return f.Success(entry, func(w io.Writer) {
					fmt.Fprintln(w, value)
				})
			}

			entries, err := cfg.Entries()
			if err != nil {
				return f.Fail("config get", err)
			}
			return f.Success(entries, func(w io.Writer) {
				for _, e := range entries {
					fmt.Fprintf(w, "%s = %s\n", e.Key, e.Value)
				}
			})
		},
	}
}

func newConfigSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting and write the config file",
		Long: `Change one setting and write the config file. The new value must
leave the settings valid, otherwise the file is not touched.`,
		Example: `  rollcall config set max_backups 20
  rollcall config set default_lottery_mode weighted`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			cfg, err := config.LoadFile(rootOpts.ConfigPath)
			if err != nil {
				return f.Fail("read config", err)
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return f.Fail("config set", err)
			}
			if err := cfg.Save(rootOpts.ConfigPath); err != nil {
				return f.Fail("write config", err)
			}

			value, _ := cfg.Get(args[0])
			entry := config.Entry{Key: args[0], Value: value}
			return f.Success(entry, func(w io.Writer) {
				fmt.Fprintf(w, "%s = %s\n", entry.Key, entry.Value)
			})
		},
	}
}
