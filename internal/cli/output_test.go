package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notekeeper/internal/ledger"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("SYNC", "sync failed", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "SYNC", resp.Error.Code)
	assert.Equal(t, "sync failed", resp.Error.Message)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success(SyncResult{Block: 7, NewNotes: 2})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Synced to block 7: 2 new notes")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"account": "00ff"}
	err := formatter.Error("ACCOUNT_NOT_FOUND", "unknown account", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [ACCOUNT_NOT_FOUND]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_Fail(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  string
		wantExit  int
		retryable bool
	}{
		{
			name:     "initialization",
			err:      ledger.Errorf(ledger.ErrCodeInitialization, "no store"),
			wantCode: "INITIALIZATION",
			wantExit: ExitCommandError,
		},
		{
			name:     "unknown account",
			err:      ledger.Errorf(ledger.ErrCodeAccountNotFound, "account 00 is not tracked"),
			wantCode: "ACCOUNT_NOT_FOUND",
			wantExit: ExitCommandError,
		},
		{
			name:      "retryable submission",
			err:       ledger.WrapRetryable(ledger.ErrCodeSubmission, errors.New("deadline"), "submit"),
			wantCode:  "SUBMISSION",
			wantExit:  ExitFailure,
			retryable: true,
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			wantCode: ErrCodeGeneric,
			wantExit: ExitFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: buf}

			err := formatter.Fail("operation failed", tt.err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))
			assert.ErrorIs(t, err, tt.err)

			var resp CLIResponse
			require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.retryable, resp.Error.Retryable)
			assert.Contains(t, resp.Error.Message, "operation failed")
		})
	}
}

func TestOutputFormatter_FailText(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	_ = formatter.Fail("sync failed", ledger.WrapRetryable(ledger.ErrCodeSync, errors.New("unavailable"), "fetch delta"))
	assert.Contains(t, buf.String(), "Error [SYNC]: sync failed")
	assert.Contains(t, buf.String(), "may succeed if retried")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			diag := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: diag,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("Opening %s", "store.sqlite3")

			assert.Empty(t, out.String(), "diagnostics never go to the data writer")
			if tt.wantLog {
				assert.Contains(t, diag.String(), "Opening store.sqlite3")
			} else {
				assert.Empty(t, diag.String())
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flags")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("other")))
}
