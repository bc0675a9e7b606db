package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"rollcall/internal/errors"
	"rollcall/internal/models"
)

const timeLayout = "2006-01-02 15:04:05"

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var showNames bool
	cmd := &cobra.Command{
		Use:           "status",
		Short:         "Show pool sizes and the current round",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, showNames, cmd)
		},
	}
	cmd.Flags().BoolVar(&showNames, "names", false, "list both pools")
	return cmd
}

type statusResult struct {
	models.Stats
	UndrawnNames []string `json:"undrawn_names,omitempty"`
	DrawnNames   []string `json:"drawn_names,omitempty"`
}

func runStatus(opts *RootOptions, showNames bool, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	return withSession(opts, cmd, func(ctx context.Context, s *session) error {
		res := statusResult{Stats: s.svc.Stats()}
		if showNames {
			st := s.svc.State()
			res.UndrawnNames, res.DrawnNames = st.Undrawn, st.Drawn
		}
		return f.Success(res, func(w io.Writer) {
			fmt.Fprintf(w, "Round:     %d\n", res.Round)
			fmt.Fprintf(w, "Total:     %d\n", res.Total)
			fmt.Fprintf(w, "Undrawn:   %d\n", res.Undrawn)
			fmt.Fprintf(w, "Drawn:     %d\n", res.Drawn)
			fmt.Fprintf(w, "Completed: %d\n", res.CompletedRounds)
			if showNames {
				fmt.Fprintf(w, "\nUndrawn: %s\n", joinOrNone(res.UndrawnNames))
				fmt.Fprintf(w, "Drawn:   %s\n", joinOrNone(res.DrawnNames))
			}
		})
	})
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	var allowDuplicates bool
	cmd := &cobra.Command{
		Use:           "add <name>...",
		Short:         "Add names to the undrawn pool",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(rootOpts, args, allowDuplicates, cmd)
		},
	}
	cmd.Flags().BoolVar(&allowDuplicates, "allow-duplicates", false, "put names that were already drawn back into the undrawn pool")
	return cmd
}

type addResult struct {
	Added   []string `json:"added"`
	Skipped int      `json:"skipped"`
}

func runAdd(opts *RootOptions, names []string, allowDuplicates bool, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	return withSession(opts, cmd, func(ctx context.Context, s *session) error {
		added, skipped, err := s.svc.AddNames(ctx, names, allowDuplicates)
		if err != nil {
			return f.Fail("add names", err)
		}
		if err := s.flush(ctx); err != nil {
			return f.Fail("add names", err)
		}
		res := addResult{Added: nonNil(added), Skipped: skipped}
		return f.Success(res, func(w io.Writer) {
			fmt.Fprintf(w, "Added %d name(s), skipped %d duplicate(s)\n", len(res.Added), res.Skipped)
		})
	})
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		list  bool
		reuse int
	)
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import a newline-delimited roster file",
		Long: `Import a roster file with one name per line. UTF-8 and UTF-16 files
with a byte order mark are accepted.

Every import is remembered. Use --list to see them and --use N to make
batch N the undrawn pool again.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case list:
				return runImportList(rootOpts, cmd)
			case cmd.Flags().Changed("use"):
				return runImportUse(rootOpts, reuse, cmd)
			case len(args) == 1:
				return runImport(rootOpts, args[0], cmd)
			default:
				return NewExitError(ExitCommandError, "import needs a file, --list or --use")
			}
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list previous imports")
	cmd.Flags().IntVar(&reuse, "use", 0, "make import N the undrawn pool")
	return cmd
}

func runImport(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	return withSession(opts, cmd, func(ctx context.Context, s *session) error {
		added, skipped, err := s.svc.ImportFile(ctx, path)
		if err != nil {
			return f.Fail("import "+path, err)
		}
		if err := s.flush(ctx); err != nil {
			return f.Fail("import "+path, err)
		}
		res := addResult{Added: nonNil(added), Skipped: skipped}
		return f.Success(res, func(w io.Writer) {
			fmt.Fprintf(w, "Imported %d name(s) from %s, skipped %d duplicate(s)\n", len(res.Added), path, res.Skipped)
		})
	})
}

func runImportList(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	return withSession(opts, cmd, func(ctx context.Context, s *session) error {
		imports := s.svc.Imports()
		return f.Success(imports, func(w io.Writer) {
			if len(imports) == 0 {
				fmt.Fprintln(w, "No imports")
				return
			}
			for i, rec := range imports {
				fmt.Fprintf(w, "%d  %s  %s  %d name(s)\n", i, rec.Timestamp.Format(timeLayout), rec.Label, len(rec.Names))
			}
		})
	})
}

func runImportUse(opts *RootOptions, index int, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	return withSession(opts, cmd, func(ctx context.Context, s *session) error {
		undrawn, err := s.svc.UseImport(ctx, index)
		if err != nil {
			return f.Fail("reselect import", err)
		}
		if err := s.flush(ctx); err != nil {
			return f.Fail("reselect import", err)
		}
		return f.Success(undrawn, func(w io.Writer) {
			fmt.Fprintf(w, "Undrawn pool is now import %d (%d name(s))\n", index, len(undrawn))
		})
	})
}

// NewMoveCommand creates the move command.
func NewMoveCommand(rootOpts *RootOptions) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "move <name>... --to drawn|undrawn",
		Short: "Move names between the pools by hand",
		Long: `Move names between the undrawn and drawn pools without recording a
round. Either every name moves or none does.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMove(rootOpts, args, to, cmd)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "destination pool: drawn|undrawn")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func runMove(opts *RootOptions, names []string, to string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	return withSession(opts, cmd, func(ctx context.Context, s *session) error {
		var err error
		switch strings.ToLower(to) {
		case "drawn":
			err = s.svc.MoveToDrawn(ctx, names...)
		case "undrawn":
			err = s.svc.MoveToUndrawn(ctx, names...)
		default:
			err = errors.InvalidInputf("unknown pool %q, want drawn or undrawn", to)
		}
		if err == nil {
			err = s.flush(ctx)
		}
		if err != nil {
			return f.Fail("move names", err)
		}
		return f.Success(names, func(w io.Writer) {
			fmt.Fprintf(w, "Moved %d name(s) to %s\n", len(names), strings.ToLower(to))
		})
	})
}

// NewShuffleCommand creates the shuffle command.
func NewShuffleCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "shuffle",
		Short:         "Shuffle the undrawn pool",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				s.svc.Shuffle(ctx)
				if err := s.flush(ctx); err != nil {
					return f.Fail("shuffle", err)
				}
				undrawn := s.svc.State().Undrawn
				return f.Success(undrawn, func(w io.Writer) {
					fmt.Fprintln(w, joinOrNone(undrawn))
				})
			})
		},
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "history [name]",
		Short:         "Show past draws, or when one name was drawn",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runDrawInfo(rootOpts, args[0], cmd)
			}
			return runHistory(rootOpts, cmd)
		},
	}
}

func runHistory(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	return withSession(opts, cmd, func(ctx context.Context, s *session) error {
		history := s.svc.History()
		return f.Success(history, func(w io.Writer) {
			if len(history) == 0 {
				fmt.Fprintln(w, "No draws yet")
				return
			}
			for _, rec := range history {
				fmt.Fprintf(w, "Round %d (%s, %s): %s\n",
					rec.Round, rec.Mode, rec.Timestamp.Format(timeLayout), strings.Join(rec.Names, ", "))
			}
		})
	})
}

func runDrawInfo(opts *RootOptions, name string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	return withSession(opts, cmd, func(ctx context.Context, s *session) error {
		info, ok := s.svc.DrawInfo(name)
		if !ok {
			return f.Fail("history", errors.NameNotFound(name, "history"))
		}
		return f.Success(info, func(w io.Writer) {
			fmt.Fprintf(w, "%s was drawn in round %d at %s\n", name, info.Round, info.Timestamp.Format(timeLayout))
		})
	})
}

// NewWeightCommand creates the weight command.
func NewWeightCommand(rootOpts *RootOptions) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "weight [name [weight]]",
		Short: "Show or set draw weights",
		Long: `With no arguments, list every weight override. With a name, show its
weight. With a name and a weight between 1 and 10, set it. --reset
removes every override.`,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWeight(rootOpts, args, reset, cmd)
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "remove every weight override")
	return cmd
}

type weightEntry struct {
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

func runWeight(opts *RootOptions, args []string, reset bool, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	return withSession(opts, cmd, func(ctx context.Context, s *session) error {
		switch {
		case reset:
			s.svc.ResetWeights(ctx)
			if err := s.flush(ctx); err != nil {
				return f.Fail("reset weights", err)
			}
			return f.Success(map[string]int{}, func(w io.Writer) {
				fmt.Fprintln(w, "All weights reset")
			})
		case len(args) == 2:
			weight, err := strconv.Atoi(args[1])
			if err != nil {
				return f.Fail("set weight", errors.InvalidInputf("weight %q is not a number", args[1]))
			}
			if err := s.svc.SetWeight(ctx, args[0], weight); err != nil {
				return f.Fail("set weight", err)
			}
			if err := s.flush(ctx); err != nil {
				return f.Fail("set weight", err)
			}
			res := weightEntry{Name: args[0], Weight: weight}
			return f.Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "%s now has weight %d\n", res.Name, res.Weight)
			})
		case len(args) == 1:
			res := weightEntry{Name: args[0], Weight: s.svc.Weight(args[0])}
			return f.Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "%s: %d\n", res.Name, res.Weight)
			})
		default:
			entries := sortedWeights(s.svc.State().Weights)
			return f.Success(entries, func(w io.Writer) {
				if len(entries) == 0 {
					fmt.Fprintln(w, "No weight overrides")
					return
				}
				for _, e := range entries {
					fmt.Fprintf(w, "%s: %d\n", e.Name, e.Weight)
				}
			})
		}
	})
}

// NewBalanceCommand creates the balance command.
func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Weight undrawn names by how often they were drawn",
		Long: `Give every undrawn name a weight based on its past draws: names that
were never drawn get the highest weight.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				applied := s.svc.SmartBalance(ctx)
				if err := s.flush(ctx); err != nil {
					return f.Fail("balance", err)
				}
				entries := sortedWeights(applied)
				return f.Success(entries, func(w io.Writer) {
					fmt.Fprintf(w, "Balanced %d name(s)\n", len(entries))
					for _, e := range entries {
						fmt.Fprintf(w, "  %s: %d\n", e.Name, e.Weight)
					}
				})
			})
		},
	}
}

func sortedWeights(weights map[string]int) []weightEntry {
	entries := make([]weightEntry, 0, len(weights))
	for name, w := range weights {
		entries = append(entries, weightEntry{Name: name, Weight: w})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}

func nonNil(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
