package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	daemonlink "github.com/wagiedev/daemonlink-go"
	"github.com/wagiedev/daemonlink-go/internal/config"
	"github.com/wagiedev/daemonlink-go/internal/discovery"
)

// lockFileName is created in the daemon's working directory so only one
// supervisor runs per directory.
const lockFileName = "daemonlink.lock"

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

type commandContext struct {
	flags *globalFlags

	// logOutput receives log records; stderr unless a test replaces it.
	logOutput io.Writer

	configOnce sync.Once
	config     *config.File
	configPath string
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{
		flags:     flags,
		logOutput: os.Stderr,
	}
}

// ensureConfig loads the configuration file once and applies flag overrides.
func (c *commandContext) ensureConfig() (*config.File, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(strings.TrimSpace(c.flags.configPath))
		if err != nil {
			c.configErr = err

			return
		}

		if c.flags.logLevel != "" {
			cfg.Logging.Level = strings.ToLower(c.flags.logLevel)
		}

		if c.flags.logFormat != "" {
			cfg.Logging.Format = strings.ToLower(c.flags.logFormat)
		}

		if err := cfg.Validate(); err != nil {
			c.configErr = err

			return
		}

		c.config = cfg
		c.configPath = path
	})

	return c.config, c.configErr
}

// logger builds the command's slog logger from the logging settings.
func (c *commandContext) logger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	level, err := config.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(c.logOutput, handlerOpts)), nil
	}

	return slog.New(slog.NewTextHandler(c.logOutput, handlerOpts)), nil
}

// daemonSession is a started client holding the working directory lock.
type daemonSession struct {
	log    *slog.Logger
	client daemonlink.Client
	lock   *flock.Flock
}

// startDaemon takes the working directory lock and spawns the daemon. extra
// options are applied on top of the configuration file.
func (c *commandContext) startDaemon(ctx context.Context, extra ...daemonlink.Option) (*daemonSession, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := c.logger()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	lockPath := filepath.Join(cfg.Daemon.WorkingDir, lockFileName)
	lock := flock.New(lockPath)

	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	if !ok {
		return nil, errors.New("another daemonlink supervisor is already running in " + cfg.Daemon.WorkingDir)
	}

	executable, err := discovery.NewDiscoverer(&discovery.Config{
		Executable:     cfg.Daemon.Executable,
		MinimumVersion: cfg.Daemon.MinVersion,
		Logger:         log,
	}).Discover(ctx)
	if err != nil {
		_ = lock.Unlock()

		return nil, err
	}

	opts := append([]daemonlink.Option{
		daemonlink.WithOptions(cfg.Options(log)),
		daemonlink.WithExecutable(executable),
	}, extra...)

	client := daemonlink.NewClient()
	if err := client.Start(ctx, opts...); err != nil {
		_ = lock.Unlock()

		return nil, err
	}

	log.Debug("Daemon spawned", "pid", client.PID(), "lock", lockPath)

	return &daemonSession{log: log, client: client, lock: lock}, nil
}

// waitActive waits up to timeout for the daemon to listen.
func (s *daemonSession) waitActive(ctx context.Context, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.client.WaitActive(waitCtx); err != nil {
		return fmt.Errorf("daemon did not become active within %s: %w", timeout, err)
	}

	return nil
}

// close stops the daemon and releases the lock.
func (s *daemonSession) close() error {
	closeErr := s.client.Close()

	if err := s.lock.Unlock(); err != nil {
		s.log.Warn("Failed to release lock", "error", err)
	}

	return closeErr
}
