package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"

	daemonlink "github.com/wagiedev/daemonlink-go"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOutput  bool
		waitTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Start the daemon and report its process and socket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, err := ctx.startDaemon(cmd.Context())
			if err != nil {
				return err
			}
			defer session.close()

			if err := session.waitActive(cmd.Context(), waitTimeout); err != nil {
				return err
			}

			status := daemonlink.MCPDaemonStatus{
				Active:     session.client.Active(),
				PID:        session.client.PID(),
				SocketPath: session.client.SocketPath(),
			}

			if jsonOutput {
				data, err := json.MarshalIndent(status, "", "  ")
				if err != nil {
					return fmt.Errorf("encode status: %w", err)
				}

				fmt.Fprintln(cmd.OutOrStdout(), string(data))

				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Field", "Value"},
				[][]string{
					{"Active", strconv.FormatBool(status.Active)},
					{"PID", strconv.Itoa(status.PID)},
					{"Socket", status.SocketPath},
				},
				nil,
			))

			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print status as JSON")
	cmd.Flags().DurationVar(&waitTimeout, "wait", defaultWaitTimeout, "How long to wait for the daemon to listen")

	return cmd
}
