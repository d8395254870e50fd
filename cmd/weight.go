package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"conductor/internal/cli"
)

func newWeightCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weight <instance-id> <weight>",
		Short: "Set the routing weight of an instance",
		Long: `Sets the weight the weighted algorithm uses for an instance. A weight of 0
keeps the instance running but stops routing to it.

Examples:
  conductor weight api-3f2a9c1e 5`,
		Args: cobra.ExactArgs(2),
	}
	executor := clientCommand(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		weight, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || weight < 0 {
			return fmt.Errorf("weight must be a non-negative integer, got %q", args[1])
		}
		e, err := executor(cmd)
		if err != nil {
			return err
		}
		err = e.Run(commandContext(cmd), "Updating "+args[0]+"...", func(ctx context.Context, c *cli.Client) (any, error) {
			return nil, c.SetWeight(ctx, args[0], weight)
		})
		if err != nil {
			return err
		}
		e.Status(fmt.Sprintf("Weight of instance %s set to %d", args[0], weight))
		return nil
	}
	return cmd
}
