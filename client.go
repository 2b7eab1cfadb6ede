package daemonlink

import (
	"context"
)

// Client supervises one daemon process and sends batches of operations to
// it over the daemon's unix socket.
//
// Each Interact call opens its own connection, writes all operations as one
// script and returns their results in submission order. Interact never waits
// for the daemon: while it is not listening the call fails with ErrNotActive.
//
// Lifecycle: Clients are single-use. After Close(), create a new client with NewClient().
//
// Example usage:
//
//	client := daemonlink.NewClient()
//	defer client.Close()
//
//	err := client.Start(ctx,
//	    daemonlink.WithLogger(slog.Default()),
//	    daemonlink.WithExecutable("/usr/local/bin/dbd"),
//	    daemonlink.WithWorkingDir("/var/lib/dbd"),
//	    daemonlink.WithRestartInterval(5*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := client.WaitActive(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	values, err := client.Interact(ctx, "count users", "list groups")
type Client interface {
	// Start spawns the daemon. Must be called before any other methods.
	// Returns once the process is spawned; see WaitActive for readiness.
	Start(ctx context.Context, opts ...Option) error

	// Stop terminates the daemon and disables automatic restarts.
	// If ctx ends before the daemon exits it is killed.
	Stop(ctx context.Context) error

	// Restart stops the daemon and starts it again. Without options the
	// options of the last start are reused.
	Restart(ctx context.Context, opts ...Option) error

	// Interact sends ops as one batch and returns their decoded values in
	// submission order. The first operation to fail in time fails the call.
	// Returns ErrNoOperations without ops and ErrNotActive while the daemon
	// is not listening.
	Interact(ctx context.Context, ops ...string) ([]any, error)

	// InteractEach sends ops as one batch and returns every operation's
	// outcome once all have settled.
	InteractEach(ctx context.Context, ops ...string) ([]Result, error)

	// Active reports whether the daemon is listening.
	Active() bool

	// PID returns the pid of the running daemon, or 0.
	PID() int

	// SocketPath returns the daemon's last announced socket path.
	SocketPath() string

	// WaitActive blocks until the daemon is listening or ctx ends.
	WaitActive(ctx context.Context) error

	// Close stops the daemon and releases the client.
	// After Close(), the client cannot be reused. Safe to call multiple times.
	Close() error
}

// NewClient creates a new client.
//
// Call Start() with options to spawn the daemon:
//
//	client := NewClient()
//	err := client.Start(ctx,
//	    WithExecutable("/usr/local/bin/dbd"),
//	    WithWorkingDir("/var/lib/dbd"),
//	)
func NewClient() Client {
	return newClientImpl()
}
