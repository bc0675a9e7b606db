package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewSnapshotCommand creates the snapshot command group.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "snapshot",
		Aliases: []string{"backup"},
		Short:   "Manage session snapshots",
	}
	cmd.AddCommand(newSnapshotListCommand(rootOpts))
	cmd.AddCommand(newSnapshotCreateCommand(rootOpts))
	cmd.AddCommand(newSnapshotRestoreCommand(rootOpts))
	cmd.AddCommand(newSnapshotDeleteCommand(rootOpts))
	cmd.AddCommand(newSnapshotPruneCommand(rootOpts))
	return cmd
}

func newSnapshotListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List snapshots, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				infos, err := s.svc.ListSnapshots(ctx)
				if err != nil {
					return f.Fail("list snapshots", err)
				}
				return f.Success(infos, func(w io.Writer) {
					if len(infos) == 0 {
						fmt.Fprintln(w, "No snapshots")
						return
					}
					for _, info := range infos {
						fmt.Fprintf(w, "%s  %s  round %d  %d/%d drawn  %s\n",
							info.ID, info.CreatedAt.Format(timeLayout), info.Round, info.Drawn, info.Total, info.Reason)
					}
				})
			})
		},
	}
}

func newSnapshotCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:           "create",
		Short:         "Take a snapshot of the session",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				id, err := s.svc.Snapshot(ctx, reason)
				if err != nil {
					return f.Fail("create snapshot", err)
				}
				return f.Success(map[string]string{"id": id}, func(w io.Writer) {
					fmt.Fprintf(w, "Created snapshot %s\n", id)
				})
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "note stored with the snapshot")
	return cmd
}

func newSnapshotRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "restore <id>",
		Short:         "Replace the session with a snapshot",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				if _, err := s.svc.RestoreSnapshot(ctx, args[0]); err != nil {
					return f.Fail("restore snapshot", err)
				}
				if err := s.flush(ctx); err != nil {
					return f.Fail("restore snapshot", err)
				}
				stats := s.svc.Stats()
				return f.Success(stats, func(w io.Writer) {
					fmt.Fprintf(w, "Restored %s: round %d, %d undrawn, %d drawn\n",
						args[0], stats.Round, stats.Undrawn, stats.Drawn)
				})
			})
		},
	}
}

func newSnapshotDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete a snapshot",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				if err := s.svc.DeleteSnapshot(ctx, args[0]); err != nil {
					return f.Fail("delete snapshot", err)
				}
				return f.Success(map[string]string{"id": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted snapshot %s\n", args[0])
				})
			})
		},
	}
}

func newSnapshotPruneCommand(rootOpts *RootOptions) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:           "prune",
		Short:         "Delete the oldest snapshots",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				if !cmd.Flags().Changed("keep") {
					keep = s.cfg.MaxBackups
				}
				removed, err := s.svc.PruneSnapshots(ctx, keep)
				if err != nil {
					return f.Fail("prune snapshots", err)
				}
				removed = nonNil(removed)
				return f.Success(removed, func(w io.Writer) {
					fmt.Fprintf(w, "Removed %d snapshot(s), keeping at most %d\n", len(removed), keep)
				})
			})
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "snapshots to keep (default max_backups)")
	return cmd
}
