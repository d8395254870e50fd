package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"conductor/internal/cli"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <service>",
		Short: "Show aggregated statistics of a service",
		Long: `Shows instance counts per state, request and failure totals and the average
latency across all instances of a service.

Examples:
  conductor stats api
  conductor stats api -o yaml`,
		Args: cobra.ExactArgs(1),
	}
	executor := clientCommand(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		e, err := executor(cmd)
		if err != nil {
			return err
		}
		return e.Run(commandContext(cmd), "Fetching stats for "+args[0]+"...", func(ctx context.Context, c *cli.Client) (any, error) {
			return c.Stats(ctx, args[0])
		})
	}
	return cmd
}
