package cli

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"rollcall/internal/errors"
)

// Process exit codes. A refusal means the session understood the command and
// said no; a command error means it never got that far.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // refused: bad count, unknown name, draw open
	ExitCommandError = 2 // bad flags, unreadable config or save, storage failure
)

// ExitError carries the code main exits with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError prefixes err with message, "draw: count must be ...".
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps a command's error to the process exit code. Errors that
// did not pass through an ExitError count as refusals.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// exitCodeFor sorts session errors: storage trouble is a command error,
// everything else is the session saying no.
func exitCodeFor(err error) int {
	switch errors.KindOf(err) {
	case errors.ErrIOFailure, errors.ErrCorruptState, errors.ErrInternal:
		return ExitCommandError
	default:
		return ExitFailure
	}
}

// CLIResponse is the JSON envelope of every command in --format json.
// Status is "ok" with Data set, or "error" with Error set.
type CLIResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *CLIError   `json:"error,omitempty"`
}

// CLIError names the failure by its kind, e.g. "insufficient_pool".
type CLIError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// OutputFormatter writes a command's result as text or as a CLIResponse.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
}

// Success writes data. In text mode text renders it; in JSON mode data is
// wrapped in a CLIResponse.
func (f *OutputFormatter) Success(data interface{}, text func(w io.Writer)) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Fail reports err and returns it as an ExitError. In JSON mode the error is
// also written to the output so scripts always get an envelope.
func (f *OutputFormatter) Fail(message string, err error) error {
	code := exitCodeFor(err)
	if f.Format == "json" {
		_ = json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Kind:    errors.KindOf(err).String(),
				Message: fmt.Sprintf("%s: %v", message, err),
			},
		})
	}
	return WrapExitError(code, message, err)
}
