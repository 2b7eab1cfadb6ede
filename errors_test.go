package daemonlink

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRemoteFatalError_KeepsLine tests that the raw FATAL line is the cause.
func TestRemoteFatalError_KeepsLine(t *testing.T) {
	err := &RemoteFatalError{Line: "01J0000000000000000000000AFATAL db error"}

	require.Contains(t, err.Error(), "FATAL db error")
	require.False(t, err.IsCredentialFailure())
	require.True(t, err.IsDaemonLinkError())
}

// TestRemoteFatalError_CredentialFailure tests detection of rotated credentials.
func TestRemoteFatalError_CredentialFailure(t *testing.T) {
	err := &RemoteFatalError{
		Line: `FATAL: DBI connect('dbname=app') failed: password authentication failed for user "app"`,
	}

	require.True(t, err.IsCredentialFailure())
}

// TestProtocolParseError_Unwrap tests that the decode error can be unwrapped.
func TestProtocolParseError_Unwrap(t *testing.T) {
	innerErr := fmt.Errorf("unexpected end of JSON input")
	err := &ProtocolParseError{ID: "01J0000000000000000000000A", RawData: `{"x":`, Err: innerErr}

	require.ErrorIs(t, err, innerErr)
	require.Contains(t, err.Error(), "01J0000000000000000000000A")
	require.Contains(t, err.Error(), `{\"x\":`)
}

// TestConnectionError_Unwrap tests that the socket error can be unwrapped.
func TestConnectionError_Unwrap(t *testing.T) {
	innerErr := fmt.Errorf("connection refused")
	err := &ConnectionError{SocketPath: "/run/d.sock", Err: innerErr}

	require.ErrorIs(t, err, innerErr)
	require.Contains(t, err.Error(), "/run/d.sock")
	require.Contains(t, err.Error(), "connection refused")
}

// TestProcessError_ExitCode tests ProcessError formatting.
func TestProcessError_ExitCode(t *testing.T) {
	err := &ProcessError{PID: 12, ExitCode: 3, Err: fmt.Errorf("exit status 3")}

	require.Contains(t, err.Error(), "daemon process 12")
	require.Contains(t, err.Error(), "exit 3")
}

// TestErrors_ImplementDaemonLinkError tests the shared error interface.
func TestErrors_ImplementDaemonLinkError(t *testing.T) {
	wrapped := fmt.Errorf("interact: %w", &ConnectionError{Err: errors.New("broken pipe")})

	dlErr, ok := errors.AsType[DaemonLinkError](wrapped)
	require.True(t, ok)
	require.True(t, dlErr.IsDaemonLinkError())
}
