package main

import (
	"os/signal"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	daemonlink "github.com/wagiedev/daemonlink-go"
)

// serverVersion is reported to MCP peers during initialization.
const serverVersion = "0.1.0"

func newMCPCommand(ctx *commandContext) *cobra.Command {
	var (
		name        string
		waitTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the daemon's interact and status tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sigCtx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
			defer stop()

			session, err := ctx.startDaemon(sigCtx)
			if err != nil {
				return err
			}
			defer session.close()

			if err := session.waitActive(sigCtx, waitTimeout); err != nil {
				return err
			}

			server := daemonlink.NewMCPServer(session.client, name, serverVersion,
				daemonlink.WithLogger(session.log))

			session.log.Info("Serving MCP over stdio", "name", name, "pid", session.client.PID())

			err = daemonlink.ServeMCP(sigCtx, server, &mcp.StdioTransport{})
			if err != nil && sigCtx.Err() == nil {
				return err
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "daemonlink", "Server name reported to MCP clients")
	cmd.Flags().DurationVar(&waitTimeout, "wait", defaultWaitTimeout, "How long to wait for the daemon to listen")

	return cmd
}
