package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

// OutputFormat represents the supported output formats for CLI commands.
type OutputFormat string

const (
	// OutputFormatTable formats output as a kubectl-style plain table
	OutputFormatTable OutputFormat = "table"
	// OutputFormatWide formats output as a table with additional columns
	OutputFormatWide OutputFormat = "wide"
	// OutputFormatJSON formats output as indented JSON
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML formats output as YAML
	OutputFormatYAML OutputFormat = "yaml"
)

// ValidOutputFormats contains all valid output format values.
var ValidOutputFormats = []OutputFormat{
	OutputFormatTable,
	OutputFormatWide,
	OutputFormatJSON,
	OutputFormatYAML,
}

// ValidateOutputFormat validates that the given format string is a supported output format.
// Returns nil if valid, or an error with a helpful message listing valid formats.
func ValidateOutputFormat(format string) error {
	switch OutputFormat(format) {
	case OutputFormatTable, OutputFormatWide, OutputFormatJSON, OutputFormatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format: %q (valid: table, wide, json, yaml)", format)
	}
}

// ExecutorOptions controls how commands call the admin API and print results.
type ExecutorOptions struct {
	// Format specifies the desired output format
	Format OutputFormat
	// NoHeaders suppresses the header row in table output
	NoHeaders bool
	// Quiet suppresses progress indicators and non-essential output
	Quiet bool
	// Endpoint is the admin API base URL
	Endpoint string
	// Timeout bounds each call
	Timeout time.Duration
}

// Executor runs admin API calls with a progress spinner and prints their
// results in the requested format.
type Executor struct {
	client  *Client
	options ExecutorOptions
	out     io.Writer
	errOut  io.Writer
}

// NewExecutor creates an executor for the given options.
func NewExecutor(options ExecutorOptions) *Executor {
	if options.Timeout <= 0 {
		options.Timeout = DefaultTimeout
	}
	if options.Format == "" {
		options.Format = OutputFormatTable
	}
	return &Executor{
		client:  NewClient(options.Endpoint, &http.Client{Timeout: options.Timeout}),
		options: options,
		out:     os.Stdout,
		errOut:  os.Stderr,
	}
}

// SetOutput redirects normal and error output.
func (e *Executor) SetOutput(out, errOut io.Writer) {
	e.out = out
	e.errOut = errOut
}

// Client returns the admin API client.
func (e *Executor) Client() *Client {
	return e.client
}

// GetOptions returns the executor options.
func (e *Executor) GetOptions() ExecutorOptions {
	return e.options
}

// Run calls fn under the executor timeout, showing message on a spinner,
// and prints whatever fn returns. A nil result prints nothing.
func (e *Executor) Run(ctx context.Context, message string, fn func(ctx context.Context, c *Client) (any, error)) error {
	ctx, cancel := context.WithTimeout(ctx, e.options.Timeout)
	defer cancel()

	var s *spinner.Spinner
	if !e.options.Quiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(e.errOut))
		s.Suffix = " " + message
		s.Start()
	}

	result, err := fn(ctx, e.client)

	if s != nil {
		s.Stop()
	}
	if err != nil {
		if !e.options.Quiet {
			fmt.Fprintln(e.errOut, text.FgRed.Sprint("❌ Command failed"))
		}
		return err
	}
	if result == nil {
		return nil
	}
	return e.Print(result)
}

// Print writes v in the configured format.
func (e *Executor) Print(v any) error {
	switch e.options.Format {
	case OutputFormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		_, err = fmt.Fprintln(e.out, string(data))
		return err
	case OutputFormatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to convert to YAML: %w", err)
		}
		_, err = e.out.Write(data)
		return err
	case OutputFormatTable, OutputFormatWide:
		return renderTable(e.out, v, tableOptions{
			wide:      e.options.Format == OutputFormatWide,
			noHeaders: e.options.NoHeaders,
		})
	default:
		return fmt.Errorf("unsupported output format: %s", e.options.Format)
	}
}

// Status prints a success line unless quiet. Status lines are not part of
// structured output, so they are suppressed for json and yaml.
func (e *Executor) Status(msg string) {
	if e.options.Quiet || e.options.Format == OutputFormatJSON || e.options.Format == OutputFormatYAML {
		return
	}
	fmt.Fprintln(e.out, FormatSuccess(msg))
}
