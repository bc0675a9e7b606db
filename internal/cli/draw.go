package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"rollcall/internal/errors"
	"rollcall/internal/models"
)

// NewDrawCommand creates the draw command.
func NewDrawCommand(rootOpts *RootOptions) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "draw <count>",
		Short: "Draw names for the current round",
		Long: `Draw count names from the undrawn pool without replacement and record
them as the current round.

Modes:
  uniform   every undrawn name is equally likely
  weighted  names are picked in proportion to their weight
  fair      names drawn less often in the past are more likely`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDraw(rootOpts, args[0], mode, cmd)
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "draw mode: uniform|weighted|fair (default from config)")
	return cmd
}

func runDraw(opts *RootOptions, countArg, modeArg string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	count, err := strconv.Atoi(countArg)
	if err != nil {
		return f.Fail("draw", errors.InvalidInputf("count %q is not a number", countArg))
	}
	var mode models.Mode
	if modeArg != "" {
		m, ok := models.ParseMode(modeArg)
		if !ok {
			return f.Fail("draw", errors.InvalidInputf("unknown draw mode %q", modeArg))
		}
		mode = m
	}

	return withSession(opts, cmd, func(ctx context.Context, s *session) error {
		rec, err := s.svc.Draw(ctx, count, mode)
		if err != nil {
			return f.Fail("draw", err)
		}
		if err := s.flush(ctx); err != nil {
			return f.Fail("draw", err)
		}
		return f.Success(rec, func(w io.Writer) {
			fmt.Fprintf(w, "Round %d (%s): %s\n", rec.Round, rec.Mode, strings.Join(rec.Names, ", "))
		})
	})
}

// NewSkipCommand creates the skip command.
func NewSkipCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "skip",
		Short:         "Advance to the next round without drawing",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				round, err := s.svc.SkipRound(ctx)
				if err != nil {
					return f.Fail("skip round", err)
				}
				if err := s.flush(ctx); err != nil {
					return f.Fail("skip round", err)
				}
				return f.Success(map[string]int{"round": round}, func(w io.Writer) {
					fmt.Fprintf(w, "Skipped to round %d\n", round)
				})
			})
		},
	}
}

// Reset scopes.
const (
	ScopeSystem = "system"
	ScopeAll    = "all"
	ScopeRoster = "roster"
)

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	var scope string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Start the session over",
		Long: `Start the session over. A snapshot is taken first when auto_backup is on.

Scopes:
  system  return drawn names to the pool, clear history, keep weights and imports
  all     remove every name, weight and record, keep imports
  roster  remove every name and record, keep weights`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(rootOpts, scope, cmd)
		},
	}
	cmd.Flags().StringVar(&scope, "scope", ScopeSystem, "what to reset: system|all|roster")
	return cmd
}

func runReset(opts *RootOptions, scope string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	scope = strings.ToLower(scope)
	return withSession(opts, cmd, func(ctx context.Context, s *session) error {
		var err error
		switch scope {
		case ScopeSystem:
			err = s.svc.ResetSystem(ctx)
		case ScopeAll:
			err = s.svc.ResetAll(ctx)
		case ScopeRoster:
			err = s.svc.ClearRoster(ctx)
		default:
			err = errors.InvalidInputf("unknown reset scope %q", scope)
		}
		if err == nil {
			err = s.flush(ctx)
		}
		if err != nil {
			return f.Fail("reset", err)
		}
		stats := s.svc.Stats()
		return f.Success(stats, func(w io.Writer) {
			fmt.Fprintf(w, "Reset (%s): %d undrawn, round %d\n", scope, stats.Undrawn, stats.Round)
		})
	})
}
