package daemonlink

import "github.com/wagiedev/daemonlink-go/internal/errors"

// Re-export error types from internal package

// ProtocolParseError indicates a reply payload was not valid JSON.
type ProtocolParseError = errors.ProtocolParseError

// RemoteFatalError indicates the daemon reported FATAL for an operation.
type RemoteFatalError = errors.RemoteFatalError

// ConnectionError indicates a socket-level failure.
type ConnectionError = errors.ConnectionError

// ProcessError indicates the daemon process failed.
type ProcessError = errors.ProcessError

// ExecutableNotFoundError indicates the daemon executable could not be located.
type ExecutableNotFoundError = errors.ExecutableNotFoundError

// DaemonLinkError is the base interface for all daemonlink errors.
type DaemonLinkError = errors.DaemonLinkError

// Re-export sentinel errors from internal package.
var (
	// ErrNotActive indicates the daemon was not listening; no connection was attempted.
	ErrNotActive = errors.ErrNotActive

	// ErrNoOperations indicates Interact was called without operations.
	ErrNoOperations = errors.ErrNoOperations

	// ErrMissingExecutable indicates no daemon executable was configured.
	ErrMissingExecutable = errors.ErrMissingExecutable

	// ErrDaemonRunning indicates a daemon is already running.
	ErrDaemonRunning = errors.ErrDaemonRunning

	// ErrConnectionClosed indicates the daemon closed a batch connection
	// before replying to an operation.
	ErrConnectionClosed = errors.ErrConnectionClosed

	// ErrClientClosed indicates the client has been closed and cannot be reused.
	ErrClientClosed = errors.ErrClientClosed

	// ErrClientAlreadyStarted indicates Start was called twice.
	ErrClientAlreadyStarted = errors.ErrClientAlreadyStarted

	// ErrClientNotStarted indicates the client has not been started.
	ErrClientNotStarted = errors.ErrClientNotStarted
)
