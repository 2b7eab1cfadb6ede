//go:build integration

package integration

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	daemonlink "github.com/wagiedev/daemonlink-go"
)

const startTimeout = 30 * time.Second

// daemonOptions returns options for the daemon named by DAEMONLINK_DAEMON,
// skipping the test when it is not set. DAEMONLINK_DAEMON_ARGS holds extra
// arguments separated by spaces.
func daemonOptions(t *testing.T, extra ...daemonlink.Option) []daemonlink.Option {
	t.Helper()

	executable := os.Getenv("DAEMONLINK_DAEMON")
	if executable == "" {
		t.Skip("DAEMONLINK_DAEMON not set")
	}

	workDir, err := os.MkdirTemp("", "dlint")
	require.NoError(t, err)

	t.Cleanup(func() { _ = os.RemoveAll(workDir) })

	opts := []daemonlink.Option{
		daemonlink.WithExecutable(executable),
		daemonlink.WithArgs(strings.Fields(os.Getenv("DAEMONLINK_DAEMON_ARGS"))...),
		daemonlink.WithWorkingDir(workDir),
	}

	return append(opts, extra...)
}

// testOps returns the operations listed in DAEMONLINK_TEST_OPS, separated by
// ";", skipping the test when none are configured.
func testOps(t *testing.T) []string {
	t.Helper()

	var ops []string

	for op := range strings.SplitSeq(os.Getenv("DAEMONLINK_TEST_OPS"), ";") {
		if op = strings.TrimSpace(op); op != "" {
			ops = append(ops, op)
		}
	}

	if len(ops) == 0 {
		t.Skip("DAEMONLINK_TEST_OPS not set")
	}

	return ops
}

// startActive starts a client and waits until its daemon is listening.
func startActive(t *testing.T, opts ...daemonlink.Option) daemonlink.Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	client := daemonlink.NewClient()
	require.NoError(t, client.Start(ctx, opts...))

	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.WaitActive(ctx), "daemon did not report event=listening")

	return client
}
