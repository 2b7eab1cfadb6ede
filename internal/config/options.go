// Package config provides configuration types for daemonlink.
package config

import (
	"context"
	"log/slog"
	"maps"
	"net"
	"os"
	"slices"
	"time"

	"github.com/wagiedev/daemonlink-go/internal/clock"
)

// EventType identifies a daemon lifecycle notification.
type EventType string

const (
	// EventActive is emitted when the daemon reports it is listening.
	EventActive EventType = "active"
	// EventInactive is emitted when the daemon process has exited.
	EventInactive EventType = "inactive"
)

// Event is a lifecycle notification for one daemon process.
type Event struct {
	Type       EventType
	PID        int
	SocketPath string
}

// Credential is the process identity the daemon is spawned with.
type Credential struct {
	UID uint32
	GID uint32
}

// Dialer opens a connection to the daemon's socket.
type Dialer func(ctx context.Context, socketPath string) (net.Conn, error)

// Options configures the daemon supervisor and the interaction client.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// ExecutablePath is the daemon binary. Required.
	ExecutablePath string

	// Args are passed to the daemon before the flags added by the supervisor.
	Args []string

	// Verbosity is a single flag (e.g. "--verbose") inserted after Args.
	// Empty means no flag.
	Verbosity string

	// WorkingDir is both the process working directory and the value passed
	// with --working-dir.
	WorkingDir string

	// Credential drops privileges to the given uid/gid when set.
	Credential *Credential

	// Env provides additional environment variables for the daemon.
	Env map[string]string

	// RestartInterval is the delay before an exited daemon is spawned again.
	// Zero disables automatic restarts.
	RestartInterval time.Duration

	// Stderr receives every line the daemon writes to stderr.
	// If nil, lines are logged at warn level.
	Stderr func(string)

	// OnEvent receives active/inactive notifications. It is called from the
	// supervisor's stream goroutines and must not block for long.
	OnEvent func(Event)

	// Dialer overrides how batch connections are opened.
	// If nil, a unix socket dialer is used.
	Dialer Dialer `json:"-"`

	// Clock drives the restart schedule. If nil, the real clock is used.
	Clock clock.Clock `json:"-"`
}

// Clone returns a copy of o that shares no mutable slices or maps.
func (o *Options) Clone() *Options {
	if o == nil {
		return nil
	}

	c := *o
	c.Args = slices.Clone(o.Args)
	c.Env = maps.Clone(o.Env)

	if o.Credential != nil {
		cred := *o.Credential
		c.Credential = &cred
	}

	return &c
}

// BuildArgs returns the daemon argv (without the executable):
// Args, the verbosity flag, --daemonize and --working-dir <dir>, with empty
// tokens removed.
func (o *Options) BuildArgs() []string {
	raw := make([]string, 0, len(o.Args)+4)
	raw = append(raw, o.Args...)
	raw = append(raw, o.Verbosity, "--daemonize", "--working-dir", o.WorkingDir)

	return slices.DeleteFunc(raw, func(token string) bool {
		return token == ""
	})
}

// BuildEnvironment returns the current process environment extended with Env.
func (o *Options) BuildEnvironment() []string {
	env := os.Environ()

	for _, key := range slices.Sorted(maps.Keys(o.Env)) {
		env = append(env, key+"="+o.Env[key])
	}

	return env
}

// ResolveLogger returns o.Logger or a logger that discards everything.
func (o *Options) ResolveLogger() *slog.Logger {
	if o == nil || o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}

	return o.Logger
}

// ResolveClock returns o.Clock or the real clock.
func (o *Options) ResolveClock() clock.Clock {
	if o == nil || o.Clock == nil {
		return clock.Real()
	}

	return o.Clock
}
