package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"conductor/internal/cli"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeUnreachable indicates the admin API could not be reached.
	ExitCodeUnreachable = 2
	// ExitCodeRejected indicates the server refused the request (4xx).
	ExitCodeRejected = 3
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Control plane for a fleet of service instances",
	Long: `conductor starts services in dependency order, probes their health,
routes requests to healthy instances and scales instance counts.

Run 'conductor serve' to start the control plane. The other commands talk to
a running control plane through its admin API.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "conductor version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(err))
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	var connErr *cli.ConnectionError
	if errors.As(err, &connErr) {
		return ExitCodeUnreachable
	}

	var apiErr *cli.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		return ExitCodeRejected
	}

	return ExitCodeError
}

func init() {
	// Errors are printed once by Execute, with connection hints.
	rootCmd.SilenceErrors = true
	rootCmd.AddCommand(
		newVersionCmd(),
		newOrderCmd(),
		newTopologyCmd(),
		newStatsCmd(),
		newStartCmd(),
		newStopCmd(),
		newScaleCmd(),
		newMaintenanceCmd(),
		newWeightCmd(),
	)
}
