package protocol

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wagiedev/daemonlink-go/internal/errors"
)

const waitTimeout = 5 * time.Second

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeDaemon is a unix socket server that answers batch scripts the way the
// real daemon does: it reads until the client half-closes, then streams reply
// lines and closes the connection.
type fakeDaemon struct {
	path    string
	ln      net.Listener
	respond func(cmds []Command) []string
	chunked bool

	wg      sync.WaitGroup
	scripts chan string
}

func newFakeDaemon(t *testing.T, respond func(cmds []Command) []string) *fakeDaemon {
	t.Helper()

	return startFakeDaemon(t, respond, false)
}

// newChunkedFakeDaemon writes its replies one byte at a time.
func newChunkedFakeDaemon(t *testing.T, respond func(cmds []Command) []string) *fakeDaemon {
	t.Helper()

	return startFakeDaemon(t, respond, true)
}

func startFakeDaemon(t *testing.T, respond func(cmds []Command) []string, chunked bool) *fakeDaemon {
	t.Helper()

	// Socket paths are length limited; t.TempDir() can exceed it.
	dir, err := os.MkdirTemp("", "dlproto")
	require.NoError(t, err)

	path := filepath.Join(dir, "d.sock")

	ln, err := net.Listen("unix", path)
	require.NoError(t, err)

	d := &fakeDaemon{
		path:    path,
		ln:      ln,
		respond: respond,
		chunked: chunked,
		scripts: make(chan string, 16),
	}

	d.wg.Go(d.serve)

	t.Cleanup(func() {
		_ = ln.Close()

		d.wg.Wait()

		_ = os.RemoveAll(dir)
	})

	return d
}

func (d *fakeDaemon) serve() {
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}

		d.wg.Go(func() {
			d.handle(conn)
		})
	}
}

func (d *fakeDaemon) handle(conn net.Conn) {
	defer conn.Close()

	data, err := io.ReadAll(conn)
	if err != nil {
		return
	}

	script := string(data)
	d.scripts <- script

	replies := d.respond(decodeScript(script))
	out := strings.Join(replies, "\n")

	if len(replies) > 0 {
		out += "\n"
	}

	if !d.chunked {
		_, _ = io.WriteString(conn, out)

		return
	}

	for i := range len(out) {
		if _, err := conn.Write([]byte{out[i]}); err != nil {
			return
		}
	}
}

func decodeScript(script string) []Command {
	script = strings.TrimSuffix(script, "\n")
	if script == "" {
		return nil
	}

	parts := strings.Split(script, ScriptDelimiter)
	cmds := make([]Command, 0, len(parts))

	for _, part := range parts {
		id, op, _ := strings.Cut(part, " ")
		cmds = append(cmds, Command{ID: id, Op: op})
	}

	return cmds
}

func echoOps(cmds []Command) []string {
	replies := make([]string, 0, len(cmds))

	for _, cmd := range cmds {
		replies = append(replies, cmd.ID+`{"op":"`+cmd.Op+`"}`)
	}

	return replies
}

func waitDone(t *testing.T, batch *Batch) {
	t.Helper()

	select {
	case <-batch.Done():
	case <-time.After(waitTimeout):
		t.Fatal("batch did not finish")
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	t.Cleanup(cancel)

	return ctx
}

func TestSend_ResolvesInSubmissionOrder(t *testing.T) {
	daemon := newFakeDaemon(t, echoOps)
	client := NewClient(slog.Default(), nil, nil)

	batch := client.Send(context.Background(), daemon.path, []string{"a", "b", "c"})

	values, err := batch.Wait(testContext(t))
	require.NoError(t, err)
	require.Equal(t, []any{
		map[string]any{"op": "a"},
		map[string]any{"op": "b"},
		map[string]any{"op": "c"},
	}, values)

	script := <-daemon.scripts
	require.Equal(t, EncodeScript(batch.Commands()), script)
	require.True(t, strings.HasSuffix(script, "\n"))
	require.Equal(t, 1, strings.Count(script, "\n"))

	waitDone(t, batch)
}

func TestSend_ChunkedRepliesWithLogLines(t *testing.T) {
	daemon := newChunkedFakeDaemon(t, func(cmds []Command) []string {
		return []string{
			"[info] connection accepted",
			cmds[0].ID + `[1,2,3]`,
			"[debug] running " + cmds[1].Op,
			cmds[1].ID + `"done"`,
		}
	})

	client := NewClient(nil, nil, nil)
	batch := client.Send(context.Background(), daemon.path, []string{"list", "sync"})

	values, err := batch.Wait(testContext(t))
	require.NoError(t, err)
	require.Equal(t, []any{[]any{float64(1), float64(2), float64(3)}, "done"}, values)

	waitDone(t, batch)
}

func TestSend_SuccessThenFatal(t *testing.T) {
	daemon := newFakeDaemon(t, func(cmds []Command) []string {
		return []string{
			cmds[0].ID + `{"x":1}`,
			cmds[1].ID + "FATAL db error",
		}
	})

	client := NewClient(nil, nil, nil)
	batch := client.Send(context.Background(), daemon.path, []string{"a", "b"})

	results, err := batch.Results(testContext(t))
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.NoError(t, results[0].Err)
	require.Equal(t, map[string]any{"x": float64(1)}, results[0].Value)

	fatal, ok := stderrors.AsType[*errors.RemoteFatalError](results[1].Err)
	require.True(t, ok)
	require.Contains(t, fatal.Line, "FATAL db error")
	require.False(t, fatal.IsCredentialFailure())

	_, err = batch.Wait(testContext(t))
	require.ErrorAs(t, err, &fatal)

	waitDone(t, batch)
}

func TestSend_FatalRejectsKthEntry(t *testing.T) {
	daemon := newFakeDaemon(t, func(cmds []Command) []string {
		return []string{
			cmds[0].ID + `1`,
			"ERROR: FATAL relation does not exist",
			"some unrelated output",
			cmds[2].ID + `3`,
		}
	})

	client := NewClient(nil, nil, nil)
	batch := client.Send(context.Background(), daemon.path, []string{"one", "two", "three"})

	results, err := batch.Results(testContext(t))
	require.NoError(t, err)

	require.NoError(t, results[0].Err)
	require.Equal(t, float64(1), results[0].Value)

	require.ErrorContains(t, results[1].Err, "FATAL relation does not exist")
	require.Equal(t, "two", results[1].Op)

	require.NoError(t, results[2].Err)
	require.Equal(t, float64(3), results[2].Value)

	waitDone(t, batch)
}

func TestSend_MismatchedIDStillCorrelatesByPosition(t *testing.T) {
	daemon := newFakeDaemon(t, func(cmds []Command) []string {
		return []string{
			cmds[1].ID + `"second"`,
			cmds[0].ID + `"first"`,
		}
	})

	client := NewClient(nil, nil, nil)
	batch := client.Send(context.Background(), daemon.path, []string{"a", "b"})

	values, err := batch.Wait(testContext(t))
	require.NoError(t, err)
	require.Equal(t, []any{"second", "first"}, values)

	waitDone(t, batch)
}

func TestSend_MalformedPayloadRejectsOnlyThatEntry(t *testing.T) {
	daemon := newFakeDaemon(t, func(cmds []Command) []string {
		return []string{
			cmds[0].ID + `{"broken":`,
			cmds[1].ID + `true`,
		}
	})

	client := NewClient(nil, nil, nil)
	batch := client.Send(context.Background(), daemon.path, []string{"a", "b"})

	results, err := batch.Results(testContext(t))
	require.NoError(t, err)

	parseErr, ok := stderrors.AsType[*errors.ProtocolParseError](results[0].Err)
	require.True(t, ok)
	require.Equal(t, batch.Commands()[0].ID, parseErr.ID)
	require.Equal(t, `{"broken":`, parseErr.RawData)

	require.NoError(t, results[1].Err)
	require.Equal(t, true, results[1].Value)

	waitDone(t, batch)
}

func TestSend_CredentialFailureRequestsRestartOnce(t *testing.T) {
	const line = `FATAL: DBI connect('dbname=app','app',...) failed: password authentication failed for user "app"`

	daemon := newFakeDaemon(t, func(cmds []Command) []string {
		return []string{line, cmds[1].ID + `{}`}
	})

	var (
		calls atomic.Int32
		got   atomic.Value
	)

	client := NewClient(nil, nil, func(l string) {
		calls.Add(1)
		got.Store(l)
	})

	batch := client.Send(context.Background(), daemon.path, []string{"a", "b"})

	results, err := batch.Results(testContext(t))
	require.NoError(t, err)

	fatal, ok := stderrors.AsType[*errors.RemoteFatalError](results[0].Err)
	require.True(t, ok)
	require.True(t, fatal.IsCredentialFailure())
	require.NoError(t, results[1].Err)

	waitDone(t, batch)

	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, line, got.Load())
}

func TestSend_ConnectionEndRejectsUnanswered(t *testing.T) {
	daemon := newFakeDaemon(t, func(cmds []Command) []string {
		return []string{cmds[0].ID + `"only"`, cmds[1].ID + `"partial`}
	})

	client := NewClient(nil, nil, nil)
	batch := client.Send(context.Background(), daemon.path, []string{"a", "b", "c"})

	results, err := batch.Results(testContext(t))
	require.NoError(t, err)

	require.Equal(t, "only", results[0].Value)
	require.ErrorAs(t, results[1].Err, new(*errors.ProtocolParseError))
	require.ErrorIs(t, results[2].Err, errors.ErrConnectionClosed)

	waitDone(t, batch)
}

func TestSend_DialFailureRejectsOldestWithConnectionError(t *testing.T) {
	dialErr := stderrors.New("connection refused")

	client := NewClient(nil, func(context.Context, string) (net.Conn, error) {
		return nil, dialErr
	}, nil)

	batch := client.Send(context.Background(), "/nonexistent.sock", []string{"a", "b"})

	_, err := batch.Wait(testContext(t))
	connErr, ok := stderrors.AsType[*errors.ConnectionError](err)
	require.True(t, ok)
	require.Equal(t, "/nonexistent.sock", connErr.SocketPath)
	require.ErrorIs(t, err, dialErr)

	results, err := batch.Results(testContext(t))
	require.NoError(t, err)
	require.ErrorIs(t, results[0].Err, dialErr)
	require.ErrorIs(t, results[1].Err, errors.ErrConnectionClosed)

	waitDone(t, batch)
}

func TestSend_WaitContextDoesNotAbortBatch(t *testing.T) {
	release := make(chan struct{})

	daemon := newFakeDaemon(t, func(cmds []Command) []string {
		<-release

		return echoOps(cmds)
	})

	client := NewClient(nil, nil, nil)
	batch := client.Send(context.Background(), daemon.path, []string{"slow"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := batch.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)

	values, err := batch.Wait(testContext(t))
	require.NoError(t, err)
	require.Equal(t, []any{map[string]any{"op": "slow"}}, values)

	waitDone(t, batch)
}

func TestSend_CancelledSendContextStillCompletes(t *testing.T) {
	daemon := newFakeDaemon(t, echoOps)
	client := NewClient(nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := client.Send(ctx, daemon.path, []string{"a", "b"})

	values, err := batch.Wait(testContext(t))
	require.NoError(t, err)
	require.Equal(t, []any{
		map[string]any{"op": "a"},
		map[string]any{"op": "b"},
	}, values)

	waitDone(t, batch)
}

func TestSend_ConcurrentBatchesUseSeparateConnections(t *testing.T) {
	daemon := newFakeDaemon(t, echoOps)
	client := NewClient(nil, nil, nil)

	const batches = 8

	var wg sync.WaitGroup

	for i := range batches {
		wg.Go(func() {
			op := strings.Repeat("x", i+1)
			batch := client.Send(context.Background(), daemon.path, []string{op, op + "!"})

			values, err := batch.Wait(testContext(t))
			assert.NoError(t, err)
			assert.Equal(t, []any{
				map[string]any{"op": op},
				map[string]any{"op": op + "!"},
			}, values)

			<-batch.Done()
		})
	}

	wg.Wait()
	require.Len(t, daemon.scripts, batches)
}

func TestSend_WithoutCloseWriteStillReads(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	client := NewClient(nil, func(context.Context, string) (net.Conn, error) {
		return clientConn, nil
	}, nil)

	batch := client.Send(context.Background(), "pipe", []string{"a"})

	done := make(chan struct{})

	go func() {
		defer close(done)
		defer serverConn.Close()

		line := make([]byte, 0, 64)
		buf := make([]byte, 1)

		for {
			if _, err := serverConn.Read(buf); err != nil {
				return
			}

			if buf[0] == '\n' {
				break
			}

			line = append(line, buf[0])
		}

		cmds := decodeScript(string(line))
		_, _ = io.WriteString(serverConn, cmds[0].ID+`42`+"\n")
	}()

	values, err := batch.Wait(testContext(t))
	require.NoError(t, err)
	require.Equal(t, []any{float64(42)}, values)

	waitDone(t, batch)
	<-done
}
