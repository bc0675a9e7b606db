package cli

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/errors"
)

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(stderrors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))

	wrapped := WrapExitError(ExitFailure, "draw", errors.InvalidCount(0))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
	assert.True(t, errors.Is(wrapped, errors.ErrInvalidCount))
	assert.Equal(t, "draw: count must be at least 1, got 0", wrapped.Error())
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.InvalidCount(0), ExitFailure},
		{errors.InsufficientPool(3, 1), ExitFailure},
		{errors.NameNotFound("x", "undrawn"), ExitFailure},
		{errors.SnapshotNotFound("x"), ExitFailure},
		{errors.IOFailure(io.ErrUnexpectedEOF, "save"), ExitCommandError},
		{errors.CorruptState(io.ErrUnexpectedEOF, "load"), ExitCommandError},
		{stderrors.New("plain"), ExitCommandError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCodeFor(tt.err), "%v", tt.err)
	}
}

func TestFormatterSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}
	require.NoError(t, f.Success(42, func(w io.Writer) { io.WriteString(w, "forty-two\n") }))
	assert.Equal(t, "forty-two\n", buf.String())

	buf.Reset()
	f.Format = "json"
	require.NoError(t, f.Success(42, func(w io.Writer) { t.Fatal("text renderer used in json mode") }))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, float64(42), resp.Data)
	assert.Nil(t, resp.Error)
}

func TestFormatterFail(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}
	err := f.Fail("draw", errors.InsufficientPool(5, 2))
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Empty(t, buf.String())

	f.Format = "json"
	err = f.Fail("save", errors.IOFailure(io.ErrShortWrite, "write state"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "io_failure", resp.Error.Kind)
	assert.Contains(t, resp.Error.Message, "short write")
}
