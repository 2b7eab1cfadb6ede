package protocol

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/wagiedev/daemonlink-go/internal/config"
	"github.com/wagiedev/daemonlink-go/internal/errors"
	"github.com/wagiedev/daemonlink-go/internal/linesplit"
)

// readChunkSize is the buffer size for each read from a batch connection.
const readChunkSize = 32 * 1024

// CredentialFailureHandler is invoked once per FATAL line that reports a
// refused database password.
type CredentialFailureHandler func(line string)

// Client sends batches of operations to the daemon's socket.
//
// The Client handles:
//   - Assigning correlation ids and encoding the batch script
//   - Opening one connection per batch and half-closing it after the write
//   - Classifying reply lines and settling entries in submission order
//   - Reporting credential-rotation failures to the registered handler
//
// A Client holds no connection state and may be used concurrently.
type Client struct {
	log                 *slog.Logger
	dial                config.Dialer
	onCredentialFailure CredentialFailureHandler
}

// NewClient creates a protocol client. A nil dial uses a unix socket dialer.
func NewClient(log *slog.Logger, dial config.Dialer, onCredentialFailure CredentialFailureHandler) *Client {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	if dial == nil {
		dial = DialUnix
	}

	return &Client{
		log:                 log.With("component", "protocol"),
		dial:                dial,
		onCredentialFailure: onCredentialFailure,
	}
}

// DialUnix connects to a unix domain socket.
func DialUnix(ctx context.Context, socketPath string) (net.Conn, error) {
	var d net.Dialer

	return d.DialContext(ctx, "unix", socketPath)
}

// Batch is the in-flight state of one Send call.
type Batch struct {
	ID string

	log      *slog.Logger
	commands []Command
	entries  []*Entry
	registry *Registry

	failOnce sync.Once
	failed   chan struct{}
	firstErr error

	done chan struct{}
}

// Send registers one entry per operation in submission order and starts the
// batch's connection in the background.
//
// ctx contributes its values to the dial but not its deadline or
// cancellation: once sent, a batch runs until the daemon closes the
// connection. Callers bound their own wait with the ctx passed to Wait or
// Results.
func (c *Client) Send(ctx context.Context, socketPath string, ops []string) *Batch {
	batch := &Batch{
		ID:       NewID(),
		commands: make([]Command, 0, len(ops)),
		entries:  make([]*Entry, 0, len(ops)),
		registry: NewRegistry(),
		failed:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	batch.log = c.log.With("batch_id", batch.ID)

	for _, op := range ops {
		cmd := Command{ID: NewID(), Op: op}

		batch.commands = append(batch.commands, cmd)
		batch.entries = append(batch.entries, batch.registry.Register(cmd.ID, cmd.Op))
	}

	batch.log.Debug("Sending batch", "socket_path", socketPath, "operations", len(ops))

	go c.run(context.WithoutCancel(ctx), batch, socketPath)

	return batch
}

// run owns the batch connection from dial to close.
func (c *Client) run(ctx context.Context, batch *Batch, socketPath string) {
	defer close(batch.done)
	defer batch.closePending()

	conn, err := c.dial(ctx, socketPath)
	if err != nil {
		batch.log.Warn("Failed to connect to daemon", "socket_path", socketPath, "error", err)
		batch.rejectOldest(&errors.ConnectionError{SocketPath: socketPath, Err: fmt.Errorf("dial: %w", err)})

		return
	}

	defer func() {
		if err := conn.Close(); err != nil && !stderrors.Is(err, net.ErrClosed) {
			batch.log.Debug("Failed to close connection", "error", err)
		}
	}()

	if _, err := io.WriteString(conn, EncodeScript(batch.commands)); err != nil {
		batch.log.Warn("Failed to write batch", "socket_path", socketPath, "error", err)
		batch.rejectOldest(&errors.ConnectionError{SocketPath: socketPath, Err: fmt.Errorf("write: %w", err)})

		return
	}

	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			batch.log.Warn("Failed to half-close connection", "socket_path", socketPath, "error", err)
			batch.rejectOldest(&errors.ConnectionError{SocketPath: socketPath, Err: fmt.Errorf("close write: %w", err)})

			return
		}
	}

	c.read(batch, conn, socketPath)
}

// read feeds the connection through a line splitter until it ends.
func (c *Client) read(batch *Batch, r io.Reader, socketPath string) {
	splitter := linesplit.New()
	buf := make([]byte, readChunkSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range splitter.Feed(buf[:n]) {
				c.handleLine(batch, line)
			}
		}

		if err == nil {
			continue
		}

		if !stderrors.Is(err, io.EOF) {
			batch.log.Warn("Batch connection failed", "socket_path", socketPath, "error", err)
			batch.rejectOldest(&errors.ConnectionError{SocketPath: socketPath, Err: fmt.Errorf("read: %w", err)})
		}

		if pending := splitter.Pending(); pending > 0 {
			batch.log.Debug("Discarding unterminated reply", "bytes", pending)
		}

		return
	}
}

// handleLine settles the oldest pending entry according to the line's kind.
func (c *Client) handleLine(batch *Batch, line string) {
	reply := ClassifyLine(line)

	switch reply.Kind {
	case LineSuccess, LineMalformed:
		entry := batch.registry.PopOldest()
		if entry == nil {
			batch.log.Warn("Reply without pending operation", "id", reply.ID)

			return
		}

		if entry.ID != reply.ID {
			batch.log.Warn("Reply id does not match oldest pending operation",
				"reply_id", reply.ID,
				"pending_id", entry.ID,
			)
		}

		if reply.Kind == LineMalformed {
			batch.log.Warn("Failed to parse reply payload", "id", entry.ID, "error", reply.Err)
			batch.settle(entry, nil, &errors.ProtocolParseError{ID: entry.ID, RawData: reply.Payload, Err: reply.Err})

			return
		}

		batch.log.Debug("Operation succeeded", "id", entry.ID)
		batch.settle(entry, reply.Value, nil)

	case LineFatal:
		entry := batch.registry.PopOldest()
		if entry == nil {
			batch.log.Warn("FATAL line without pending operation", "line", line)
		} else {
			batch.log.Warn("Operation failed", "id", entry.ID, "line", line)
			batch.settle(entry, nil, &errors.RemoteFatalError{Line: line})
		}

		if errors.IsCredentialFailureLine(line) && c.onCredentialFailure != nil {
			batch.log.Info("Database credential failure reported, requesting daemon restart")
			c.onCredentialFailure(line)
		}

	default:
		batch.log.Debug("Daemon log line", "line", line)
	}
}

// Entries returns the batch's entries in submission order.
func (b *Batch) Entries() []*Entry {
	return b.entries
}

// Commands returns the batch's commands in submission order.
func (b *Batch) Commands() []Command {
	return b.commands
}

// Done returns a channel that is closed once the connection has ended and
// every entry is settled.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Wait returns the values of all operations in submission order, or the
// first failure in time.
func (b *Batch) Wait(ctx context.Context) ([]any, error) {
	values := make([]any, len(b.entries))

	for i, entry := range b.entries {
		select {
		case <-entry.done:
			if entry.err != nil {
				return nil, b.firstErr
			}

			values[i] = entry.value

		case <-b.failed:
			return nil, b.firstErr

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return values, nil
}

// Results waits until every operation is settled and returns their outcomes
// in submission order.
func (b *Batch) Results(ctx context.Context) ([]Result, error) {
	results := make([]Result, len(b.entries))

	for i, entry := range b.entries {
		select {
		case <-entry.done:
			results[i] = entry.Result()

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return results, nil
}

// settle records the outcome of entry. The first failure is published to
// Wait before the entry itself is marked done.
func (b *Batch) settle(entry *Entry, value any, err error) {
	if err != nil {
		b.failOnce.Do(func() {
			b.firstErr = err
			close(b.failed)
		})
	}

	entry.settle(value, err)
}

func (b *Batch) rejectOldest(err error) {
	if entry := b.registry.PopOldest(); entry != nil {
		b.settle(entry, nil, err)
	}
}

// closePending rejects entries the daemon never answered.
func (b *Batch) closePending() {
	remaining := b.registry.Drain()
	if len(remaining) == 0 {
		return
	}

	b.log.Warn("Connection ended with unanswered operations", "pending", len(remaining))

	for _, entry := range remaining {
		b.settle(entry, nil, errors.ErrConnectionClosed)
	}
}
