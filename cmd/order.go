package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"conductor/internal/cli"
	"conductor/internal/config"
	"conductor/internal/orchestrator"
	"conductor/pkg/logging"
)

// newOrderCmd prints the startup order without a running control plane.
func newOrderCmd() *cobra.Command {
	var (
		configPath string
		output     string
	)

	cmd := &cobra.Command{
		Use:   "order [service]",
		Short: "Print the startup order computed from the service definitions",
		Long: `Reads the service definitions from the configuration directory and prints
the order in which they start. With a service name, only that service and its
required dependencies are listed, the service itself last.

This command works offline; it validates the definitions the same way
'conductor serve' does and reports dependency cycles.

Examples:
  conductor order
  conductor order api -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.ValidateOutputFormat(output); err != nil {
				return err
			}
			logging.InitForCLI(logging.LevelWarn, cmd.ErrOrStderr())

			order, err := computeOrder(configPath, args)
			if err != nil {
				return err
			}

			executor := cli.NewExecutor(cli.ExecutorOptions{Format: cli.OutputFormat(output), Quiet: true})
			executor.SetOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())
			return executor.Print(order)
		},
	}

	cmd.Flags().StringVar(&configPath, "config-path", config.GetDefaultConfigPathOrPanic(), "Configuration directory")
	cmd.Flags().StringVarP(&output, "output", "o", string(cli.OutputFormatTable), "Output format (table, json, yaml)")
	return cmd
}

func computeOrder(configPath string, args []string) ([]string, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	defs, err := config.LoadServiceDefinitions(configPath, cfg.Orchestrator)
	if err != nil {
		return nil, err
	}

	orch := orchestrator.New(orchestrator.Config{Settings: cfg.Orchestrator})
	defer orch.Stop()
	if err := orch.ApplyDefinitions(defs); err != nil {
		return nil, err
	}

	var order []string
	if len(args) == 1 {
		order, err = orch.StartupOrder(args[0])
	} else {
		order, err = orch.FullStartupOrder()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to compute startup order: %w", err)
	}
	return order, nil
}
