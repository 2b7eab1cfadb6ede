package errors

import (
	"errors"
	"fmt"
)

// DaemonLinkError is the base interface for all daemonlink errors.
type DaemonLinkError interface {
	error
	IsDaemonLinkError() bool
}

// Compile-time verification that all error types implement DaemonLinkError.
var (
	_ DaemonLinkError = (*ProtocolParseError)(nil)
	_ DaemonLinkError = (*RemoteFatalError)(nil)
	_ DaemonLinkError = (*ConnectionError)(nil)
	_ DaemonLinkError = (*ProcessError)(nil)
	_ DaemonLinkError = (*ExecutableNotFoundError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrNotActive indicates Interact was called while the daemon is not
	// listening. No connection is attempted.
	ErrNotActive = errors.New("daemon not active")

	// ErrNoOperations indicates Interact was called without operations.
	ErrNoOperations = errors.New("interact requires at least one operation")

	// ErrMissingExecutable indicates the supervisor was started without an
	// executable path.
	ErrMissingExecutable = errors.New("daemon executable path is required")

	// ErrNilOptions indicates the supervisor was started with nil options
	// and had no stored options to fall back on.
	ErrNilOptions = errors.New("daemon options are required")

	// ErrDaemonRunning indicates Start was called while a daemon process
	// owned by the supervisor is still running.
	ErrDaemonRunning = errors.New("daemon already running")

	// ErrConnectionClosed indicates the daemon closed the batch connection
	// before replying to an operation.
	ErrConnectionClosed = errors.New("connection closed before reply")

	// ErrClientClosed indicates the client has been closed and cannot be reused.
	ErrClientClosed = errors.New("client closed: clients are single-use, create a new one with NewClient()")

	// ErrClientAlreadyStarted indicates Start was called twice.
	ErrClientAlreadyStarted = errors.New("client already started")

	// ErrClientNotStarted indicates an operation needed a started client.
	ErrClientNotStarted = errors.New("client not started")
)

// ProtocolParseError indicates a success-shaped reply line whose payload is
// not valid JSON. Only the operation it correlates with is rejected.
type ProtocolParseError struct {
	ID      string
	RawData string
	Err     error
}

func (e *ProtocolParseError) Error() string {
	return fmt.Sprintf("failed to parse reply for %s: %v (payload: %q)", e.ID, e.Err, e.RawData)
}

func (e *ProtocolParseError) Unwrap() error {
	return e.Err
}

// IsDaemonLinkError implements DaemonLinkError.
func (e *ProtocolParseError) IsDaemonLinkError() bool { return true }

// RemoteFatalError indicates the daemon emitted a FATAL line for an
// operation. Line holds the raw line as the cause.
type RemoteFatalError struct {
	Line string
}

func (e *RemoteFatalError) Error() string {
	return "daemon reported failure: " + e.Line
}

// IsDaemonLinkError implements DaemonLinkError.
func (e *RemoteFatalError) IsDaemonLinkError() bool { return true }

// IsCredentialFailure reports whether the FATAL line is the transient
// database password failure seen while credentials are being rotated.
func (e *RemoteFatalError) IsCredentialFailure() bool {
	return IsCredentialFailureLine(e.Line)
}

// ConnectionError indicates a socket-level failure while talking to the
// daemon.
type ConnectionError struct {
	SocketPath string
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.SocketPath == "" {
		return fmt.Sprintf("daemon connection failed: %v", e.Err)
	}

	return fmt.Sprintf("daemon connection to %s failed: %v", e.SocketPath, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsDaemonLinkError implements DaemonLinkError.
func (e *ConnectionError) IsDaemonLinkError() bool { return true }

// ProcessError indicates the daemon process exited or failed.
type ProcessError struct {
	PID      int
	ExitCode int
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("daemon process %d failed (exit %d): %v", e.PID, e.ExitCode, e.Err)
	}

	return fmt.Sprintf("daemon process %d failed (exit %d)", e.PID, e.ExitCode)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IsDaemonLinkError implements DaemonLinkError.
func (e *ProcessError) IsDaemonLinkError() bool { return true }

// ExecutableNotFoundError indicates the daemon executable could not be
// located.
type ExecutableNotFoundError struct {
	Name          string
	SearchedPaths []string
}

func (e *ExecutableNotFoundError) Error() string {
	return fmt.Sprintf("daemon executable %q not found in: %v", e.Name, e.SearchedPaths)
}

// IsDaemonLinkError implements DaemonLinkError.
func (e *ExecutableNotFoundError) IsDaemonLinkError() bool { return true }
