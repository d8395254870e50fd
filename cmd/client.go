package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"conductor/internal/cli"
)

// clientCommand wires the shared admin API flags into cmd and returns a
// function that builds an executor once cobra has parsed them.
func clientCommand(cmd *cobra.Command) func(cmd *cobra.Command) (*cli.Executor, error) {
	flags := &cli.CommandFlags{}
	cli.RegisterCommonFlags(cmd, flags)

	return func(cmd *cobra.Command) (*cli.Executor, error) {
		opts, err := flags.ToExecutorOptions()
		if err != nil {
			return nil, err
		}
		executor := cli.NewExecutor(opts)
		executor.SetOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())
		return executor, nil
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
