package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"conductor/internal/cli"
)

func newStopCmd() *cobra.Command {
	var cascade bool

	cmd := &cobra.Command{
		Use:   "stop <instance-id>",
		Short: "Stop an instance",
		Long: `Stops a single instance. Stopping the last running instance of a service is
refused while services that require it are running, unless --cascade is set,
in which case those dependents are stopped first.

Examples:
  conductor stop api-3f2a9c1e
  conductor stop db-0b7d2e44 --cascade`,
		Args: cobra.ExactArgs(1),
	}
	cmd.Flags().BoolVar(&cascade, "cascade", false, "Stop running dependents first")

	executor := clientCommand(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		e, err := executor(cmd)
		if err != nil {
			return err
		}
		err = e.Run(commandContext(cmd), "Stopping "+args[0]+"...", func(ctx context.Context, c *cli.Client) (any, error) {
			return nil, c.StopInstance(ctx, args[0], cascade)
		})
		if err != nil {
			return err
		}
		e.Status(fmt.Sprintf("Instance %s stopped", args[0]))
		return nil
	}
	return cmd
}
