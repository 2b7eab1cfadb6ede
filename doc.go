// Package daemonlink supervises a long-running daemon process and exchanges
// batches of operations with it over a unix socket.
//
// The daemon is spawned with the configured arguments plus
// "--daemonize --working-dir <dir>". It announces its socket on stdout with an
// "event=socket:<path>" line and its readiness with "event=listening". If it
// exits it is respawned after the configured restart interval.
//
// # Basic Usage
//
// Use WithClient for automatic lifecycle management:
//
//	err := daemonlink.WithClient(ctx, func(c daemonlink.Client) error {
//	    values, err := c.Interact(ctx, "count users", "list groups")
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(values)
//	    return nil
//	},
//	    daemonlink.WithExecutable("/usr/local/bin/dbd"),
//	    daemonlink.WithWorkingDir("/var/lib/dbd"),
//	    daemonlink.WithRestartInterval(5*time.Second),
//	)
//
// Or NewClient directly for more control:
//
//	client := daemonlink.NewClient()
//	defer client.Close()
//
//	err := client.Start(ctx,
//	    daemonlink.WithExecutable("/usr/local/bin/dbd"),
//	    daemonlink.WithEventHandler(func(ev daemonlink.Event) {
//	        log.Printf("daemon %s (pid %d)", ev.Type, ev.PID)
//	    }),
//	)
//
// # Wire Protocol
//
// Each Interact call opens a fresh connection and writes one line:
//
//	<id1> <op1> ;; <id2> <op2>\n
//
// then half-closes the write side. The daemon answers every operation in
// submission order with either "<id><json>" or a line containing FATAL, mixed
// with arbitrary log lines. Replies are matched to operations by position.
//
// # Logging
//
// For detailed operation tracking, use WithLogger:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
//	err := client.Start(ctx, daemonlink.WithLogger(logger), daemonlink.WithExecutable(path))
//
// # Error Handling
//
// Each operation fails on its own:
//
//	results, err := client.InteractEach(ctx, "a", "b")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, r := range results {
//	    if fatal, ok := errors.AsType[*daemonlink.RemoteFatalError](r.Err); ok {
//	        log.Printf("%s failed: %s", r.Op, fatal.Line)
//	    }
//	}
//
// A FATAL reply reporting a refused database password restarts the daemon so
// that it picks up rotated credentials. No other failure is retried.
package daemonlink
