package daemonlink_test

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	daemonlink "github.com/wagiedev/daemonlink-go"
)

const testTimeout = 10 * time.Second

// shellDaemon returns options that run script under /bin/sh as the daemon.
func shellDaemon(t *testing.T, script string) []daemonlink.Option {
	t.Helper()

	return []daemonlink.Option{
		daemonlink.WithExecutable("/bin/sh"),
		daemonlink.WithArgs("-c", script),
		daemonlink.WithWorkingDir(t.TempDir()),
	}
}

// pipeDaemon returns a dialer whose connections are answered in process.
// Each op is echoed back as a JSON string; the op "fail" gets a FATAL line.
func pipeDaemon(t *testing.T) daemonlink.Dialer {
	t.Helper()

	var wg sync.WaitGroup

	t.Cleanup(wg.Wait)

	return func(_ context.Context, _ string) (net.Conn, error) {
		clientConn, serverConn := net.Pipe()

		wg.Go(func() {
			defer serverConn.Close()

			script, err := bufio.NewReader(serverConn).ReadString('\n')
			if err != nil {
				return
			}

			var out strings.Builder

			for part := range strings.SplitSeq(strings.TrimSuffix(script, "\n"), " ;; ") {
				id, op, _ := strings.Cut(part, " ")

				if op == "fail" {
					fmt.Fprintf(&out, "FATAL cannot %s\n", op)

					continue
				}

				fmt.Fprintf(&out, "%s%q\n", id, op)
			}

			_, _ = serverConn.Write([]byte(out.String()))
		})

		return clientConn, nil
	}
}

func startClient(t *testing.T, opts ...daemonlink.Option) daemonlink.Client {
	t.Helper()

	client := daemonlink.NewClient()
	require.NoError(t, client.Start(context.Background(), opts...))

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func waitActive(t *testing.T, client daemonlink.Client) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	require.NoError(t, client.WaitActive(ctx))
}

func TestNewClient_Creation(t *testing.T) {
	client := daemonlink.NewClient()
	require.NotNil(t, client)

	require.NoError(t, client.Close())
}

func TestClient_InteractNotStarted(t *testing.T) {
	client := daemonlink.NewClient()
	defer client.Close()

	_, err := client.Interact(context.Background(), "a")
	require.ErrorIs(t, err, daemonlink.ErrClientNotStarted)

	_, err = client.Interact(context.Background())
	require.ErrorIs(t, err, daemonlink.ErrNoOperations)
}

func TestClient_InteractWhileInactive(t *testing.T) {
	var dials atomic.Int32

	opts := append(shellDaemon(t, "exec sleep 30"),
		daemonlink.WithDialer(func(context.Context, string) (net.Conn, error) {
			dials.Add(1)

			return nil, errors.New("unexpected dial")
		}),
	)

	client := startClient(t, opts...)

	_, err := client.Interact(context.Background(), "a", "b")
	require.ErrorIs(t, err, daemonlink.ErrNotActive)
	require.Zero(t, dials.Load())
}

func TestClient_InteractEach(t *testing.T) {
	opts := append(shellDaemon(t, "echo event=listening; exec sleep 30"),
		daemonlink.WithDialer(pipeDaemon(t)),
	)

	client := startClient(t, opts...)
	waitActive(t, client)

	results, err := client.InteractEach(context.Background(), "a", "fail", "c")
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.Equal(t, "a", results[0].Value)
	require.Equal(t, "c", results[2].Value)

	fatal, ok := errors.AsType[*daemonlink.RemoteFatalError](results[1].Err)
	require.True(t, ok)
	require.Equal(t, "FATAL cannot fail", fatal.Line)
	require.Equal(t, "fail", results[1].Op)

	_, err = client.Interact(context.Background(), "a", "fail")
	require.ErrorAs(t, err, &fatal)
}

func TestClient_EventsAndRestart(t *testing.T) {
	var (
		mu     sync.Mutex
		events []daemonlink.Event
	)

	opts := append(shellDaemon(t, "echo event=listening; exec sleep 30"),
		daemonlink.WithEventHandler(func(ev daemonlink.Event) {
			mu.Lock()
			defer mu.Unlock()

			events = append(events, ev)
		}),
	)

	client := startClient(t, opts...)
	waitActive(t, client)

	firstPID := client.PID()
	require.NotZero(t, firstPID)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	require.NoError(t, client.Restart(ctx))
	waitActive(t, client)
	require.NotEqual(t, firstPID, client.PID())

	require.NoError(t, client.Stop(ctx))
	require.False(t, client.Active())

	mu.Lock()
	defer mu.Unlock()

	types := make([]daemonlink.EventType, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}

	assert.Equal(t, []daemonlink.EventType{
		daemonlink.EventActive,
		daemonlink.EventInactive,
		daemonlink.EventActive,
		daemonlink.EventInactive,
	}, types)
	assert.Equal(t, firstPID, events[0].PID)
}

func TestClient_StderrHandler(t *testing.T) {
	lines := make(chan string, 1)

	opts := append(shellDaemon(t, "echo 'daemon warming up' >&2; exec sleep 30"),
		daemonlink.WithStderr(func(line string) { lines <- line }),
	)

	startClient(t, opts...)

	select {
	case line := <-lines:
		require.Equal(t, "daemon warming up", line)
	case <-time.After(testTimeout):
		t.Fatal("no stderr line received")
	}
}

func TestClient_StartTwice(t *testing.T) {
	opts := shellDaemon(t, "exec sleep 30")
	client := startClient(t, opts...)

	require.ErrorIs(t, client.Start(context.Background(), opts...), daemonlink.ErrClientAlreadyStarted)

	require.NoError(t, client.Close())
	require.ErrorIs(t, client.Start(context.Background(), opts...), daemonlink.ErrClientClosed)
}
