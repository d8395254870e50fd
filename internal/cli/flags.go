package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"conductor/internal/config"
)

// EnvPrefix is the prefix of environment variables that override client
// flags, e.g. CONDUCTOR_ENDPOINT or CONDUCTOR_OUTPUT.
const EnvPrefix = "CONDUCTOR"

// DefaultTimeout bounds a single admin API call.
const DefaultTimeout = 30 * time.Second

// Flag names shared by client commands.
const (
	flagEndpoint  = "endpoint"
	flagOutput    = "output"
	flagNoHeaders = "no-headers"
	flagQuiet     = "quiet"
	flagTimeout   = "timeout"
)

// CommandFlags holds the resolved client settings. Flags take precedence
// over CONDUCTOR_* environment variables, which take precedence over
// defaults.
type CommandFlags struct {
	Endpoint     string
	OutputFormat string
	NoHeaders    bool
	Quiet        bool
	Timeout      time.Duration

	v *viper.Viper
}

// DefaultEndpoint is the admin API base URL for the default listen address.
func DefaultEndpoint() string {
	return "http://" + config.DefaultListenAddress
}

// RegisterCommonFlags adds the client flags to cmd and binds them to the
// CONDUCTOR_* environment.
//
// The registered flags are:
//   - --endpoint: admin API base URL (env: CONDUCTOR_ENDPOINT)
//   - --output/-o: table, wide, json or yaml (env: CONDUCTOR_OUTPUT)
//   - --no-headers: suppress the table header row
//   - --quiet/-q: suppress spinners and status lines (env: CONDUCTOR_QUIET)
//   - --timeout: per-request timeout (env: CONDUCTOR_TIMEOUT)
func RegisterCommonFlags(cmd *cobra.Command, flags *CommandFlags) {
	pf := cmd.PersistentFlags()
	pf.String(flagEndpoint, DefaultEndpoint(), "Admin API endpoint (env: CONDUCTOR_ENDPOINT)")
	pf.StringP(flagOutput, "o", string(OutputFormatTable), "Output format (table, wide, json, yaml)")
	pf.Bool(flagNoHeaders, false, "Suppress header row in table output")
	pf.BoolP(flagQuiet, "q", false, "Suppress non-essential output")
	pf.Duration(flagTimeout, DefaultTimeout, "Timeout for each admin API request")

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// BindPFlags only fails for a nil flag set.
	_ = v.BindPFlags(pf)
	flags.v = v
}

// Resolve reads the bound flags and environment into f and validates them.
// It must run after cobra has parsed the command line.
func (f *CommandFlags) Resolve() error {
	if f.v == nil {
		return fmt.Errorf("command flags were not registered")
	}
	f.Endpoint = strings.TrimRight(f.v.GetString(flagEndpoint), "/")
	f.OutputFormat = f.v.GetString(flagOutput)
	f.NoHeaders = f.v.GetBool(flagNoHeaders)
	f.Quiet = f.v.GetBool(flagQuiet)
	f.Timeout = f.v.GetDuration(flagTimeout)

	if f.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	if f.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", f.Timeout)
	}
	return ValidateOutputFormat(f.OutputFormat)
}

// ToExecutorOptions resolves the flags and converts them for NewExecutor.
func (f *CommandFlags) ToExecutorOptions() (ExecutorOptions, error) {
	if err := f.Resolve(); err != nil {
		return ExecutorOptions{}, err
	}
	return ExecutorOptions{
		Format:    OutputFormat(f.OutputFormat),
		NoHeaders: f.NoHeaders,
		Quiet:     f.Quiet,
		Endpoint:  f.Endpoint,
		Timeout:   f.Timeout,
	}, nil
}
