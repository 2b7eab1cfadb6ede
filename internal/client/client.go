package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wagiedev/daemonlink-go/internal/config"
	"github.com/wagiedev/daemonlink-go/internal/errors"
	"github.com/wagiedev/daemonlink-go/internal/protocol"
	"github.com/wagiedev/daemonlink-go/internal/supervisor"
)

const (
	// closeTimeout bounds how long Close waits for the daemon to exit.
	closeTimeout = 10 * time.Second

	// credentialRestartTimeout bounds the stop phase of a restart triggered
	// by a database credential failure.
	credentialRestartTimeout = 30 * time.Second
)

// Client supervises the daemon and sends batches of operations to it.
type Client struct {
	log        *slog.Logger
	supervisor *supervisor.Supervisor
	protocol   *protocol.Client

	// Restarts requested by credential failures
	restarts sync.WaitGroup

	// Lifecycle management
	mu        sync.Mutex
	started   bool
	closed    bool
	closeOnce sync.Once
}

// New creates a new client. No daemon is spawned until Start is called.
func New() *Client {
	return &Client{}
}

// Start spawns the daemon described by options.
//
// Start returns once the process is spawned; the daemon is usable for
// Interact after it reports that it is listening (see WaitActive).
func (c *Client) Start(ctx context.Context, options *config.Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.ErrClientClosed
	}

	if c.started {
		return errors.ErrClientAlreadyStarted
	}

	if options == nil {
		return errors.ErrNilOptions
	}

	log := options.ResolveLogger()
	c.log = log.With("component", "client")

	c.supervisor = supervisor.New(log, options.ResolveClock())
	c.protocol = protocol.NewClient(log, options.Dialer, c.handleCredentialFailure)

	if _, err := c.supervisor.Start(options); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	c.started = true

	c.log.Info("Client started")

	return nil
}

// Stop terminates the daemon and disables automatic restarts.
func (c *Client) Stop(ctx context.Context) error {
	sup, err := c.startedSupervisor()
	if err != nil {
		return err
	}

	return sup.Stop(ctx)
}

// Restart stops the daemon and starts it again. A nil options reuses the
// options of the last start.
func (c *Client) Restart(ctx context.Context, options *config.Options) error {
	sup, err := c.startedSupervisor()
	if err != nil {
		return err
	}

	return sup.Restart(ctx, options)
}

// Interact sends ops as one batch and returns their values in submission
// order. The first operation to fail in time fails the whole call.
func (c *Client) Interact(ctx context.Context, ops []string) ([]any, error) {
	batch, err := c.send(ctx, ops)
	if err != nil {
		return nil, err
	}

	return batch.Wait(ctx)
}

// InteractEach sends ops as one batch and returns every operation's outcome
// in submission order once all have settled.
func (c *Client) InteractEach(ctx context.Context, ops []string) ([]protocol.Result, error) {
	batch, err := c.send(ctx, ops)
	if err != nil {
		return nil, err
	}

	return batch.Results(ctx)
}

// send validates the call and hands the batch to the protocol client. No
// connection is attempted unless the daemon is active.
func (c *Client) send(ctx context.Context, ops []string) (*protocol.Batch, error) {
	if len(ops) == 0 {
		return nil, errors.ErrNoOperations
	}

	sup, err := c.startedSupervisor()
	if err != nil {
		return nil, err
	}

	active, socketPath := sup.State()
	if !active {
		c.log.Debug("Rejecting interaction: daemon not active", "operations", len(ops))

		return nil, errors.ErrNotActive
	}

	return c.protocol.Send(ctx, socketPath, ops), nil
}

// Active reports whether the daemon is listening.
func (c *Client) Active() bool {
	sup, err := c.startedSupervisor()
	if err != nil {
		return false
	}

	return sup.Active()
}

// PID returns the pid of the running daemon, or 0.
func (c *Client) PID() int {
	sup, err := c.startedSupervisor()
	if err != nil {
		return 0
	}

	return sup.PID()
}

// SocketPath returns the daemon's last announced socket path.
func (c *Client) SocketPath() string {
	sup, err := c.startedSupervisor()
	if err != nil {
		return ""
	}

	return sup.SocketPath()
}

// WaitActive blocks until the daemon is listening or ctx ends.
func (c *Client) WaitActive(ctx context.Context) error {
	sup, err := c.startedSupervisor()
	if err != nil {
		return err
	}

	return sup.WaitActive(ctx)
}

// Close stops the daemon and waits for pending credential restarts.
// The client cannot be started again.
func (c *Client) Close() error {
	var closeErr error

	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		wasStarted := c.started
		c.started = false
		sup := c.supervisor
		c.mu.Unlock()

		if !wasStarted {
			return
		}

		c.log.Info("Closing client")

		c.restarts.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()

		if err := sup.Stop(ctx); err != nil {
			closeErr = fmt.Errorf("stop daemon: %w", err)
		}

		c.log.Info("Client closed")
	})

	return closeErr
}

// handleCredentialFailure restarts the daemon in the background so it picks
// up rotated database credentials.
func (c *Client) handleCredentialFailure(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || !c.started {
		return
	}

	sup := c.supervisor

	c.log.Warn("Restarting daemon after credential failure", "line", line)

	c.restarts.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), credentialRestartTimeout)
		defer cancel()

		if err := sup.Restart(ctx, nil); err != nil {
			c.log.Error("Credential restart failed", "error", err)
		}
	})
}

func (c *Client) startedSupervisor() (*supervisor.Supervisor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.ErrClientClosed
	}

	if !c.started {
		return nil, errors.ErrClientNotStarted
	}

	return c.supervisor, nil
}
