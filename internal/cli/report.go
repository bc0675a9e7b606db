package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"rollcall/internal/errors"
	"rollcall/internal/report"
)

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		output string
		csv    bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the session report",
		Long: `Write a plain text report of the session: summary, draw history, how
often each name was drawn, weights and the remaining pool. --csv writes the
draw results as a spreadsheet-friendly CSV instead.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(rootOpts, output, csv, cmd)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&csv, "csv", false, "export draw results as CSV")
	return cmd
}

func runReport(opts *RootOptions, output string, csv bool, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	return withSession(opts, cmd, func(ctx context.Context, s *session) error {
		var buf bytes.Buffer
		var err error
		if csv {
			err = report.WriteResultsCSV(&buf, s.svc.History())
		} else {
			err = report.Write(&buf, s.svc.State(), time.Now())
		}
		if err != nil {
			return f.Fail("render report", err)
		}

		if output == "" {
			_, err := cmd.OutOrStdout().Write(buf.Bytes())
			return err
		}
		if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
			return f.Fail("write report", errors.IOFailure(err, "write "+output))
		}
		return f.Success(map[string]string{"path": output}, func(w io.Writer) {
			io.WriteString(w, "Report written to "+output+"\n")
		})
	})
}
