package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"conductor/internal/cli"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <service>",
		Short: "Start one more instance of a service",
		Long: `Starts one instance of a service. Required dependencies that have no running
instance are started first. The command returns once the new instance passed
its startup probe.

Examples:
  conductor start api`,
		Args: cobra.ExactArgs(1),
	}
	executor := clientCommand(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		e, err := executor(cmd)
		if err != nil {
			return err
		}
		return e.Run(commandContext(cmd), "Starting "+args[0]+"...", func(ctx context.Context, c *cli.Client) (any, error) {
			return c.StartService(ctx, args[0])
		})
	}
	return cmd
}
