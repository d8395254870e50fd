package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"conductor/internal/cli"
)

func newMaintenanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "maintenance <instance-id> <on|off>",
		Short:     "Take an instance out of routing or put it back",
		ValidArgs: []string{"on", "off"},
		Long: `An instance in maintenance keeps running but receives no routed requests and
does not count toward its service's instance target.

Examples:
  conductor maintenance api-3f2a9c1e on
  conductor maintenance api-3f2a9c1e off`,
		Args: cobra.ExactArgs(2),
	}
	executor := clientCommand(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[1] {
		case "on":
			enabled = true
		case "off":
		default:
			return fmt.Errorf("maintenance mode must be on or off, got %q", args[1])
		}
		e, err := executor(cmd)
		if err != nil {
			return err
		}
		err = e.Run(commandContext(cmd), "Updating "+args[0]+"...", func(ctx context.Context, c *cli.Client) (any, error) {
			return nil, c.SetMaintenance(ctx, args[0], enabled)
		})
		if err != nil {
			return err
		}
		e.Status(fmt.Sprintf("Maintenance %s for instance %s", args[1], args[0]))
		return nil
	}
	return cmd
}
