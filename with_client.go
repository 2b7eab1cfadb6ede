package daemonlink

import (
	"context"
	"fmt"
)

// WithClient manages client lifecycle with automatic cleanup.
//
// This helper creates a client, starts it with the provided options, waits
// until the daemon is listening, executes the callback function, and ensures
// proper cleanup via Close() when done.
//
// If the callback returns an error, it is returned to the caller.
// If Close() fails, a warning is logged but does not override the callback's error.
//
// Example usage:
//
//	err := daemonlink.WithClient(ctx, func(c daemonlink.Client) error {
//	    values, err := c.Interact(ctx, "count users")
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(values[0])
//	    return nil
//	},
//	    daemonlink.WithLogger(log),
//	    daemonlink.WithExecutable("/usr/local/bin/dbd"),
//	)
func WithClient(ctx context.Context, fn func(Client) error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	client := NewClient()
	if err := client.Start(ctx, opts...); err != nil {
		return fmt.Errorf("failed to start client: %w", err)
	}

	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			log.Warn("failed to close client", "error", closeErr)
		}
	}()

	if err := client.WaitActive(ctx); err != nil {
		return fmt.Errorf("wait for daemon: %w", err)
	}

	return fn(client)
}
