package daemonlink

import (
	"log/slog"
	"time"

	"github.com/wagiedev/daemonlink-go/internal/config"
)

// Option configures Options using the functional options pattern.
type Option func(*Options)

// applyOptions applies functional options to a fresh Options struct.
func applyOptions(opts []Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// ===== Basic Configuration =====

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithOptions copies every field of base into the options being built.
// Options applied after it override individual fields.
func WithOptions(base *Options) Option {
	return func(o *Options) {
		if base != nil {
			*o = *base.Clone()
		}
	}
}

// ===== Daemon Process =====

// WithExecutable sets the daemon binary. Required.
func WithExecutable(path string) Option {
	return func(o *Options) {
		o.ExecutablePath = path
	}
}

// WithArgs sets the arguments passed before the supervisor's own flags.
func WithArgs(args ...string) Option {
	return func(o *Options) {
		o.Args = args
	}
}

// WithVerbosity sets a single verbosity flag such as "--verbose".
func WithVerbosity(flag string) Option {
	return func(o *Options) {
		o.Verbosity = flag
	}
}

// WithWorkingDir sets the daemon's working directory, also passed as
// --working-dir.
func WithWorkingDir(dir string) Option {
	return func(o *Options) {
		o.WorkingDir = dir
	}
}

// WithCredential spawns the daemon as the given uid and gid.
func WithCredential(uid, gid uint32) Option {
	return func(o *Options) {
		o.Credential = &Credential{UID: uid, GID: gid}
	}
}

// WithEnv adds environment variables for the daemon.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		o.Env = env
	}
}

// WithRestartInterval sets the delay before an exited daemon is spawned
// again. Zero disables automatic restarts.
func WithRestartInterval(interval time.Duration) Option {
	return func(o *Options) {
		o.RestartInterval = interval
	}
}

// ===== Callbacks =====

// WithStderr sets a callback for the daemon's stderr lines.
func WithStderr(handler func(string)) Option {
	return func(o *Options) {
		o.Stderr = handler
	}
}

// WithEventHandler sets a callback for active/inactive notifications.
func WithEventHandler(handler func(Event)) Option {
	return func(o *Options) {
		o.OnEvent = handler
	}
}

// ===== Advanced =====

// WithDialer overrides how batch connections are opened.
func WithDialer(dialer Dialer) Option {
	return func(o *Options) {
		o.Dialer = dialer
	}
}

// applyOptionsToConfig converts public options to internal config.Options.
func applyOptionsToConfig(opts []Option) *config.Options {
	// Options is a type alias to config.Options, so no conversion is needed
	return applyOptions(opts)
}
