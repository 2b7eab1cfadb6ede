package main

import (
	"context"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	daemonlink "github.com/wagiedev/daemonlink-go"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var restartInterval time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Supervise the daemon in the foreground until interrupted",
		Long: `Spawn the configured daemon and keep it running. Lifecycle events are
logged and, when a restart interval is set, the daemon is respawned after it
exits. SIGINT or SIGTERM stops the daemon and exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sigCtx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
			defer stop()

			events := make(chan daemonlink.Event, 16)

			extra := []daemonlink.Option{
				daemonlink.WithEventHandler(func(ev daemonlink.Event) {
					select {
					case events <- ev:
					default:
					}
				}),
			}

			if cmd.Flags().Changed("restart-interval") {
				extra = append(extra, daemonlink.WithRestartInterval(restartInterval))
			}

			session, err := ctx.startDaemon(sigCtx, extra...)
			if err != nil {
				return err
			}

			session.log.Info("Supervising daemon", "pid", session.client.PID())

			group, groupCtx := errgroup.WithContext(sigCtx)

			group.Go(func() error {
				logEvents(groupCtx, session, events)

				return nil
			})

			group.Go(func() error {
				<-groupCtx.Done()

				session.log.Info("Shutting down")

				return session.close()
			})

			return group.Wait()
		},
	}

	cmd.Flags().DurationVar(&restartInterval, "restart-interval", 0,
		"Respawn delay after the daemon exits (0 disables, overrides the config file)")

	return cmd
}

func logEvents(ctx context.Context, session *daemonSession, events <-chan daemonlink.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev.Type {
			case daemonlink.EventActive:
				session.log.Info("Daemon active", "pid", ev.PID, "socket", ev.SocketPath)
			case daemonlink.EventInactive:
				session.log.Warn("Daemon inactive", "pid", ev.PID)
			}
		}
	}
}
