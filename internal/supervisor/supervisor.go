package supervisor

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/wagiedev/daemonlink-go/internal/clock"
	"github.com/wagiedev/daemonlink-go/internal/config"
	"github.com/wagiedev/daemonlink-go/internal/errors"
	"github.com/wagiedev/daemonlink-go/internal/linesplit"
)

const (
	// readChunkSize is the buffer size for each read from a daemon stream.
	readChunkSize = 32 * 1024

	// listeningMarker is the stdout line fragment that marks the daemon ready.
	listeningMarker = "event=listening"
)

// socketLinePattern extracts the socket path the daemon announces on stdout.
// The path runs to the end of the line so paths containing spaces survive.
var socketLinePattern = regexp.MustCompile(`event=socket:(\S.*?)\s*$`)

// errRestartCancelled reports that a scheduled restart lost the race with a
// Stop that disabled restarts.
var errRestartCancelled = stderrors.New("scheduled restart cancelled")

// Process is the handle of one spawned daemon process.
type Process struct {
	cmd  *exec.Cmd
	pid  int
	done chan struct{}

	killed   atomic.Bool // Whether SIGKILL has been sent
	stopping atomic.Bool // Whether Stop() asked this process to exit

	mu  sync.Mutex
	err error
}

// PID returns the operating system process id.
func (p *Process) PID() int {
	return p.pid
}

// Args returns the full argv the process was spawned with, executable first.
func (p *Process) Args() []string {
	return append([]string(nil), p.cmd.Args...)
}

// Done returns a channel that is closed once the process has exited and the
// supervisor has finished processing the exit.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err returns the exit error after Done is closed. It is nil for a clean
// exit and a *errors.ProcessError otherwise.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.err
}

func (p *Process) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.err = err
}

func (p *Process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// kill sends SIGKILL once. Later calls are no-ops.
func (p *Process) kill() error {
	if p.killed.Swap(true) {
		return nil
	}

	if err := p.cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill daemon process (pid %d): %w", p.pid, err)
	}

	return nil
}

// Supervisor owns the lifecycle of one external daemon process.
//
// The Supervisor handles:
//   - Spawning the daemon with the configured argv, identity and environment
//   - Learning the socket path and readiness from the daemon's stdout
//   - Forwarding stderr to the configured sink
//   - Emitting active/inactive notifications
//   - Restarting the daemon after an unexpected exit
//
// The active flag and socket path have a single writer (the stdout goroutine
// of the current process) and many readers; both are guarded by mu.
type Supervisor struct {
	log   *slog.Logger
	clock clock.Clock

	// spawnMu serializes spawns with each other and with Stop's snapshot, so
	// a spawn is either visible to Stop or sees restarts disabled.
	spawnMu sync.Mutex

	mu           sync.Mutex
	options      *config.Options // Supervisor-owned copy, re-read when a restart fires
	current      *Process
	restartTimer *clock.Timer
	active       bool
	socketPath   string
	ready        chan struct{} // Closed while active, replaced on every inactive transition
}

// New creates a supervisor. No process is started until Start is called.
func New(log *slog.Logger, clk clock.Clock) *Supervisor {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	if clk == nil {
		clk = clock.Real()
	}

	return &Supervisor{
		log:   log.With("component", "supervisor"),
		clock: clk,
		ready: make(chan struct{}),
	}
}

// Start stores a copy of options and spawns the daemon.
//
// Start returns as soon as the process has been spawned; readiness is
// signalled later by an EventActive notification. Errors are returned only
// for misuse (nil options, no executable, a daemon already running) and when
// the operating system refuses to spawn the process.
func (s *Supervisor) Start(options *config.Options) (*Process, error) {
	if options == nil {
		return nil, errors.ErrNilOptions
	}

	if strings.TrimSpace(options.ExecutablePath) == "" {
		return nil, errors.ErrMissingExecutable
	}

	return s.spawn(options.Clone(), false)
}

// Stop disables automatic restarts, asks the daemon to terminate and waits
// until it has exited.
//
// If SIGTERM cannot be delivered the process is killed. If ctx ends before
// the process exits it is killed and ctx's error is returned. Stop on a
// supervisor with no running process returns nil.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.spawnMu.Lock()
	s.mu.Lock()

	if s.options != nil {
		s.options.RestartInterval = 0
	}

	if s.restartTimer != nil {
		s.restartTimer.Stop()
		s.restartTimer = nil
	}

	proc := s.current

	s.mu.Unlock()
	s.spawnMu.Unlock()

	if proc == nil || proc.exited() {
		return nil
	}

	s.log.Info("Stopping daemon", "pid", proc.pid)

	proc.stopping.Store(true)

	if err := terminate(proc.cmd.Process); err != nil {
		if !proc.killed.Load() {
			s.log.Warn("Graceful termination failed, killing daemon", "pid", proc.pid, "error", err)

			if killErr := proc.kill(); killErr != nil {
				s.log.Error("Failed to kill daemon", "pid", proc.pid, "error", killErr)
			}
		}
	}

	select {
	case <-proc.done:
		s.log.Info("Daemon stopped", "pid", proc.pid)

		return nil

	case <-ctx.Done():
		s.log.Warn("Daemon did not stop in time, killing", "pid", proc.pid, "error", ctx.Err())

		if killErr := proc.kill(); killErr != nil {
			s.log.Error("Failed to kill daemon", "pid", proc.pid, "error", killErr)
		}

		return ctx.Err()
	}
}

// Restart stops the running daemon and starts it again with options.
// A nil options reuses the options given to the last Start, including
// their restart interval.
func (s *Supervisor) Restart(ctx context.Context, options *config.Options) error {
	if options == nil {
		s.mu.Lock()
		options = s.options.Clone()
		s.mu.Unlock()
	}

	if options == nil {
		return errors.ErrNilOptions
	}

	s.log.Info("Restarting daemon")

	if err := s.Stop(ctx); err != nil {
		return fmt.Errorf("stop daemon: %w", err)
	}

	if _, err := s.Start(options); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	return nil
}

// Active reports whether the current daemon has announced it is listening.
func (s *Supervisor) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active
}

// SocketPath returns the last socket path announced by the daemon. It is
// stale while Active is false.
func (s *Supervisor) SocketPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.socketPath
}

// State returns the active flag and socket path as one consistent snapshot.
func (s *Supervisor) State() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active, s.socketPath
}

// PID returns the pid of the running daemon, or 0 when none is running.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return 0
	}

	return s.current.pid
}

// WaitActive blocks until the daemon is active or ctx ends.
func (s *Supervisor) WaitActive(ctx context.Context) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()

		return nil
	}

	ready := s.ready
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// spawn launches the daemon described by opts and starts its stream
// goroutines. A spawn from Start stores opts once no daemon is running; a
// scheduled spawn keeps the stored options and is cancelled if restarts were
// disabled since the timer fired.
func (s *Supervisor) spawn(opts *config.Options, scheduled bool) (*Process, error) {
	s.spawnMu.Lock()
	defer s.spawnMu.Unlock()

	s.mu.Lock()

	if s.current != nil {
		s.mu.Unlock()

		return nil, errors.ErrDaemonRunning
	}

	if scheduled {
		if s.options == nil || s.options.RestartInterval <= 0 {
			s.mu.Unlock()

			return nil, errRestartCancelled
		}
	} else {
		s.options = opts
	}

	s.mu.Unlock()

	args := opts.BuildArgs()

	s.log.Info("Starting daemon", "executable", opts.ExecutablePath)
	s.log.Debug("Built daemon arguments", "args", args, "working_dir", opts.WorkingDir)

	//nolint:gosec // G204: Subprocess launching with configured args is the purpose of this package
	cmd := exec.Command(opts.ExecutablePath, args...)
	cmd.Dir = opts.WorkingDir
	cmd.Env = opts.BuildEnvironment()
	cmd.SysProcAttr = sysProcAttr(opts)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.log.Error("Failed to create stdout pipe", "error", err)

		return nil, &errors.ProcessError{Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.log.Error("Failed to create stderr pipe", "error", err)

		return nil, &errors.ProcessError{Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		s.log.Error("Failed to start daemon", "error", err)

		return nil, &errors.ProcessError{Err: fmt.Errorf("start process: %w", err)}
	}

	proc := &Process{
		cmd:  cmd,
		pid:  cmd.Process.Pid,
		done: make(chan struct{}),
	}

	s.mu.Lock()
	s.current = proc
	s.mu.Unlock()

	s.log.Info("Daemon started", "pid", proc.pid)

	go s.watch(proc, stdout, stderr)

	return proc, nil
}

// watch drains both streams, reaps the process and handles its exit.
func (s *Supervisor) watch(proc *Process, stdout, stderr io.Reader) {
	var wg sync.WaitGroup

	wg.Go(func() {
		s.pump(proc, "stderr", stderr, s.handleStderrLine)
	})

	s.pump(proc, "stdout", stdout, s.handleStdoutLine)

	// Pipes must be drained before Wait closes them.
	wg.Wait()

	s.handleExit(proc, proc.cmd.Wait())
}

// pump reads r in chunks and hands every complete line to handle.
func (s *Supervisor) pump(proc *Process, stream string, r io.Reader, handle func(*Process, string)) {
	splitter := linesplit.New()
	buf := make([]byte, readChunkSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range splitter.Feed(buf[:n]) {
				handle(proc, line)
			}
		}

		if err == nil {
			continue
		}

		if !stderrors.Is(err, io.EOF) && !stderrors.Is(err, os.ErrClosed) {
			s.handleProcessError(proc, fmt.Errorf("read %s: %w", stream, err))
		}

		if pending := splitter.Pending(); pending > 0 {
			s.log.Debug("Discarding unterminated line", "pid", proc.pid, "stream", stream, "bytes", pending)
		}

		return
	}
}

// handleStdoutLine interprets the daemon's lifecycle lines.
func (s *Supervisor) handleStdoutLine(proc *Process, line string) {
	s.log.Debug("Daemon output", "pid", proc.pid, "line", line)

	if match := socketLinePattern.FindStringSubmatch(line); match != nil {
		s.mu.Lock()
		if s.current == proc {
			s.socketPath = match[1]
		}
		s.mu.Unlock()

		s.log.Info("Daemon announced socket", "pid", proc.pid, "socket_path", match[1])
	}

	if strings.Contains(line, listeningMarker) {
		s.markActive(proc)
	}
}

// handleStderrLine forwards a stderr line to the configured sink.
func (s *Supervisor) handleStderrLine(proc *Process, line string) {
	s.mu.Lock()
	var sink func(string)
	if s.options != nil {
		sink = s.options.Stderr
	}
	s.mu.Unlock()

	if sink != nil {
		sink(line)

		return
	}

	s.log.Warn("Daemon stderr", "pid", proc.pid, "line", line)
}

// handleProcessError logs a process-level failure. Errors mentioning FATAL
// kill the process instead of waiting for it to exit on its own.
func (s *Supervisor) handleProcessError(proc *Process, err error) {
	s.log.Error("Daemon process error", "pid", proc.pid, "error", err)

	if !errors.IsFatal(err.Error()) {
		return
	}

	s.log.Warn("Killing daemon after fatal process error", "pid", proc.pid)

	if killErr := proc.kill(); killErr != nil {
		s.log.Error("Failed to kill daemon", "pid", proc.pid, "error", killErr)
	}
}

// markActive flips the daemon to active on its first listening line.
func (s *Supervisor) markActive(proc *Process) {
	s.mu.Lock()

	if s.current != proc || s.active {
		s.mu.Unlock()

		return
	}

	s.active = true
	close(s.ready)

	event := config.Event{Type: config.EventActive, PID: proc.pid, SocketPath: s.socketPath}
	notify := s.eventHandlerLocked()

	s.mu.Unlock()

	s.log.Info("Daemon active", "pid", proc.pid, "socket_path", event.SocketPath)

	if notify != nil {
		notify(event)
	}
}

// handleExit marks the daemon inactive and schedules a restart when the
// stored restart interval is positive.
func (s *Supervisor) handleExit(proc *Process, waitErr error) {
	exitCode := -1
	if proc.cmd.ProcessState != nil {
		exitCode = proc.cmd.ProcessState.ExitCode()
	}

	switch {
	case waitErr == nil:
		s.log.Info("Daemon exited", "pid", proc.pid)
	case proc.stopping.Load():
		s.log.Debug("Daemon terminated during shutdown", "pid", proc.pid, "error", waitErr)
	default:
		s.log.Error("Daemon exited with error", "pid", proc.pid, "exit_code", exitCode, "error", waitErr)
	}

	if waitErr != nil {
		proc.setErr(&errors.ProcessError{PID: proc.pid, ExitCode: exitCode, Err: waitErr})
	}

	s.mu.Lock()

	if s.current != proc {
		s.mu.Unlock()
		close(proc.done)

		return
	}

	s.current = nil

	if s.active {
		s.active = false
		s.ready = make(chan struct{})
	}

	event := config.Event{Type: config.EventInactive, PID: proc.pid, SocketPath: s.socketPath}
	notify := s.eventHandlerLocked()

	if s.options != nil && s.options.RestartInterval > 0 {
		interval := s.options.RestartInterval
		s.restartTimer = s.clock.AfterFunc(interval, s.restartFromTimer)

		s.log.Info("Scheduled daemon restart", "pid", proc.pid, "interval", interval)
	}

	s.mu.Unlock()

	if notify != nil {
		notify(event)
	}

	close(proc.done)
}

// restartFromTimer runs when a scheduled restart fires. It reads the
// options stored at fire time so an intervening Stop is honoured.
func (s *Supervisor) restartFromTimer() {
	s.mu.Lock()
	s.restartTimer = nil
	opts := s.options.Clone()
	running := s.current != nil
	s.mu.Unlock()

	if opts == nil || opts.RestartInterval <= 0 {
		s.log.Debug("Scheduled restart skipped: restarts disabled")

		return
	}

	if running {
		s.log.Debug("Scheduled restart skipped: daemon already running")

		return
	}

	if _, err := s.spawn(opts, true); err != nil {
		if stderrors.Is(err, errors.ErrDaemonRunning) {
			return
		}

		if stderrors.Is(err, errRestartCancelled) {
			s.log.Debug("Scheduled restart skipped: stopped while restarting")

			return
		}

		s.log.Error("Scheduled restart failed", "error", err)

		s.mu.Lock()
		if s.options != nil && s.options.RestartInterval > 0 && s.restartTimer == nil {
			s.restartTimer = s.clock.AfterFunc(s.options.RestartInterval, s.restartFromTimer)
		}
		s.mu.Unlock()
	}
}

// eventHandlerLocked returns the current OnEvent callback. Caller must hold s.mu.
func (s *Supervisor) eventHandlerLocked() func(config.Event) {
	if s.options == nil {
		return nil
	}

	return s.options.OnEvent
}
