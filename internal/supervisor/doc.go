// Package supervisor owns the lifecycle of the external daemon process.
//
// The Supervisor spawns the daemon, reads its stdout and stderr line by line,
// learns the daemon's socket path from "event=socket:<path>" lines, and marks
// the daemon active on "event=listening". When the process exits it is marked
// inactive and, if a restart interval is configured, spawned again after that
// interval using whatever options are stored at the time the timer fires.
//
// Example usage:
//
//	sup := supervisor.New(log, clock.Real())
//	proc, err := sup.Start(&config.Options{
//	    ExecutablePath:  "/usr/bin/perl",
//	    Args:            []string{"bin/worker.pl"},
//	    WorkingDir:      "/srv/app",
//	    RestartInterval: 5 * time.Second,
//	})
//	if err != nil {
//	    return err
//	}
//
//	if err := sup.WaitActive(ctx); err != nil {
//	    return err
//	}
//
//	active, socketPath := sup.State()
package supervisor
