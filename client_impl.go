package daemonlink

import (
	"context"

	"github.com/wagiedev/daemonlink-go/internal/client"
)

// clientWrapper wraps the internal client to adapt it to the public interface.
type clientWrapper struct {
	impl *client.Client
}

// Compile-time check that *clientWrapper implements the Client interface.
var _ Client = (*clientWrapper)(nil)

// newClientImpl creates the internal client implementation.
func newClientImpl() Client {
	return &clientWrapper{impl: client.New()}
}

// Start spawns the daemon.
func (c *clientWrapper) Start(ctx context.Context, opts ...Option) error {
	return c.impl.Start(ctx, applyOptionsToConfig(opts))
}

// Stop terminates the daemon.
func (c *clientWrapper) Stop(ctx context.Context) error {
	return c.impl.Stop(ctx)
}

// Restart stops the daemon and starts it again.
func (c *clientWrapper) Restart(ctx context.Context, opts ...Option) error {
	if len(opts) == 0 {
		return c.impl.Restart(ctx, nil)
	}

	return c.impl.Restart(ctx, applyOptionsToConfig(opts))
}

// Interact sends ops as one batch.
func (c *clientWrapper) Interact(ctx context.Context, ops ...string) ([]any, error) {
	return c.impl.Interact(ctx, ops)
}

// InteractEach sends ops as one batch and reports every outcome.
func (c *clientWrapper) InteractEach(ctx context.Context, ops ...string) ([]Result, error) {
	return c.impl.InteractEach(ctx, ops)
}

// Active reports whether the daemon is listening.
func (c *clientWrapper) Active() bool {
	return c.impl.Active()
}

// PID returns the pid of the running daemon.
func (c *clientWrapper) PID() int {
	return c.impl.PID()
}

// SocketPath returns the daemon's last announced socket path.
func (c *clientWrapper) SocketPath() string {
	return c.impl.SocketPath()
}

// WaitActive blocks until the daemon is listening.
func (c *clientWrapper) WaitActive(ctx context.Context) error {
	return c.impl.WaitActive(ctx)
}

// Close stops the daemon and releases the client.
func (c *clientWrapper) Close() error {
	return c.impl.Close()
}
