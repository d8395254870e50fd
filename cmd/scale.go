package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"conductor/internal/cli"
)

func newScaleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scale <service> <count>",
		Short: "Set the number of active instances of a service",
		Long: `Brings the number of active instances of a service to count. The count must
lie within the service's minInstances and maxInstances. Scale-down drains the
oldest instances before stopping them.

Examples:
  conductor scale api 4
  conductor scale api 1 -o json`,
		Args: cobra.ExactArgs(2),
	}
	executor := clientCommand(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		target, err := strconv.Atoi(args[1])
		if err != nil || target < 0 {
			return fmt.Errorf("instance count must be a non-negative integer, got %q", args[1])
		}
		e, err := executor(cmd)
		if err != nil {
			return err
		}
		return e.Run(commandContext(cmd), fmt.Sprintf("Scaling %s to %d...", args[0], target), func(ctx context.Context, c *cli.Client) (any, error) {
			return c.ScaleService(ctx, args[0], target)
		})
	}
	return cmd
}
