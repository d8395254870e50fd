package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"conductor/internal/cli"
)

func newTopologyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "topology",
		Aliases: []string{"get", "ls"},
		Short:   "Show service definitions and their instances",
		Long: `Shows every service definition with its runtime, instance bounds, load
balancing algorithm and dependencies, followed by every instance with its
lifecycle state, health and circuit breaker state.

Examples:
  conductor topology
  conductor topology -o wide
  conductor topology -o json`,
		Args: cobra.NoArgs,
	}
	executor := clientCommand(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		e, err := executor(cmd)
		if err != nil {
			return err
		}
		return e.Run(commandContext(cmd), "Fetching topology...", func(ctx context.Context, c *cli.Client) (any, error) {
			return c.Topology(ctx)
		})
	}
	return cmd
}
