package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"conductor/internal/app"
	"conductor/internal/config"
)

var (
	serveDebug      bool
	serveConfigPath string
	serveListen     string
)

// serveCmd starts the control plane in the foreground.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control plane",
	Long: `Runs the control plane in the foreground.

The configuration directory holds:
  - config.yaml   orchestrator settings, admin API and logging
  - services/     one service definition per *.yaml file

Every service is started in dependency order and brought to its minimum
instance count. Changes under services/ are picked up without a restart; a
change that fails validation is rejected and the running definitions stay in
effect. Ctrl+C stops every instance in reverse dependency order.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := app.NewConfig(serveDebug, serveConfigPath, serveListen)
	application, err := app.NewApplication(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", config.GetDefaultConfigPathOrPanic(), "Configuration directory")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Admin API listen address, overrides server.listen")
}
