package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	daemonlink "github.com/wagiedev/daemonlink-go"
)

const defaultWaitTimeout = 30 * time.Second

type execOptions struct {
	jsonOutput  bool
	batchSize   int
	waitTimeout time.Duration
}

// opResult is the JSON shape of one operation's outcome.
type opResult struct {
	ID    string `json:"id"`
	Op    string `json:"op"`
	Value any    `json:"value"`
	Error string `json:"error,omitempty"`
}

func newExecCommand(ctx *commandContext) *cobra.Command {
	var opts execOptions

	cmd := &cobra.Command{
		Use:   "exec OP...",
		Short: "Start the daemon, run operations and print their results",
		Long: `Spawn the configured daemon, wait until it listens and send every OP
argument as one request script. With --batch-size the operations are split
into several scripts sent concurrently. Results are printed in argument order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.batchSize < 0 {
				return fmt.Errorf("--batch-size must not be negative, got %d", opts.batchSize)
			}

			session, err := ctx.startDaemon(cmd.Context())
			if err != nil {
				return err
			}
			defer session.close()

			if err := session.waitActive(cmd.Context(), opts.waitTimeout); err != nil {
				return err
			}

			results, err := interactBatches(cmd.Context(), session.client, args, opts.batchSize)
			if err != nil {
				return err
			}

			if err := printResults(cmd.OutOrStdout(), results, opts.jsonOutput); err != nil {
				return err
			}

			if failed := countFailures(results); failed > 0 {
				return fmt.Errorf("%d of %d operations failed", failed, len(results))
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print results as JSON")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Operations per request script (0 sends one script)")
	cmd.Flags().DurationVar(&opts.waitTimeout, "wait", defaultWaitTimeout, "How long to wait for the daemon to listen")

	return cmd
}

// interactBatches sends ops in scripts of at most size operations and
// returns the results in op order. size 0 sends a single script.
func interactBatches(ctx context.Context, client daemonlink.Client, ops []string, size int) ([]daemonlink.Result, error) {
	if size <= 0 || size >= len(ops) {
		return client.InteractEach(ctx, ops...)
	}

	results := make([]daemonlink.Result, len(ops))
	group, groupCtx := errgroup.WithContext(ctx)

	for start := 0; start < len(ops); start += size {
		end := min(start+size, len(ops))

		group.Go(func() error {
			batch, err := client.InteractEach(groupCtx, ops[start:end]...)
			if err != nil {
				return fmt.Errorf("operations %d-%d: %w", start+1, end, err)
			}

			copy(results[start:end], batch)

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func printResults(w io.Writer, results []daemonlink.Result, jsonOutput bool) error {
	if jsonOutput {
		out := make([]opResult, 0, len(results))
		for _, result := range results {
			item := opResult{ID: result.ID, Op: result.Op, Value: result.Value}
			if result.Err != nil {
				item.Error = result.Err.Error()
			}

			out = append(out, item)
		}

		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("encode results: %w", err)
		}

		_, err = fmt.Fprintln(w, string(data))

		return err
	}

	rows := make([][]string, 0, len(results))
	for i, result := range results {
		status, detail := "ok", formatValue(result.Value)
		if result.Err != nil {
			status, detail = "error", result.Err.Error()
		}

		rows = append(rows, []string{strconv.Itoa(i + 1), result.Op, status, detail})
	}

	_, err := fmt.Fprintln(w, renderTable(
		[]string{"#", "Operation", "Status", "Result"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
	))

	return err
}

func formatValue(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}

	return string(data)
}

func countFailures(results []daemonlink.Result) int {
	failed := 0

	for _, result := range results {
		if result.Err != nil {
			failed++
		}
	}

	return failed
}
