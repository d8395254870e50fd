package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"conductor/internal/api"
)

type tableOptions struct {
	wide      bool
	noHeaders bool
}

// newTable returns a kubectl-style writer: no borders, upper-case headers,
// three spaces between columns.
func newTable(opts tableOptions, headers ...string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	style := t.Style()
	style.Options = table.OptionsNoBordersAndSeparators
	style.Box.PaddingLeft = ""
	style.Box.PaddingRight = "   "
	if !opts.noHeaders && len(headers) > 0 {
		row := make(table.Row, len(headers))
		for i, h := range headers {
			row[i] = h
		}
		t.AppendHeader(row)
	}
	return t
}

func render(w io.Writer, t table.Writer) error {
	out := t.Render()
	lines := strings.Split(out, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

func renderTable(w io.Writer, v any, opts tableOptions) error {
	switch d := v.(type) {
	case api.Topology:
		return renderTopology(w, d, opts)
	case api.InstanceInfo:
		return renderInstances(w, []api.InstanceInfo{d}, opts)
	case []api.InstanceInfo:
		return renderInstances(w, d, opts)
	case api.ServiceStats:
		return renderStats(w, d, opts)
	case api.ScaleResult:
		return renderScale(w, d, opts)
	case []string:
		return renderOrder(w, d, opts)
	case string:
		_, err := fmt.Fprintln(w, d)
		return err
	default:
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		_, err = w.Write(data)
		return err
	}
}

func renderTopology(w io.Writer, topo api.Topology, opts tableOptions) error {
	if len(topo.Definitions) == 0 && len(topo.Instances) == 0 {
		_, err := fmt.Fprintln(w, "No services defined")
		return err
	}

	headers := []string{"Service", "Runtime", "Instances", "Algorithm", "Depends On"}
	if opts.wide {
		headers = append(headers, "Weight", "Priority", "Probe")
	}
	t := newTable(opts, headers...)
	defs := append([]api.DefinitionInfo(nil), topo.Definitions...)
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	for _, d := range defs {
		row := table.Row{
			d.Name,
			d.Runtime,
			fmt.Sprintf("%d/%d-%d", countActive(topo.Instances, d.Name), d.MinInstances, d.MaxInstances),
			string(d.Algorithm),
			formatDeps(d.DependsOn),
		}
		if opts.wide {
			row = append(row, d.Weight, d.Priority, d.ProbeKind)
		}
		t.AppendRow(row)
	}
	if err := render(w, t); err != nil {
		return err
	}

	if len(topo.Instances) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	return renderInstances(w, topo.Instances, opts)
}

func renderInstances(w io.Writer, instances []api.InstanceInfo, opts tableOptions) error {
	if len(instances) == 0 {
		_, err := fmt.Fprintln(w, "No instances")
		return err
	}
	headers := []string{"ID", "Service", "State", "Health", "Breaker", "Address", "Weight", "Conns", "Age"}
	if opts.wide {
		headers = append(headers, "Requests", "Failed", "Latency", "Restarts", "Last Error")
	}
	t := newTable(opts, headers...)

	sorted := append([]api.InstanceInfo(nil), instances...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Service != sorted[j].Service {
			return sorted[i].Service < sorted[j].Service
		}
		return sorted[i].ID < sorted[j].ID
	})
	for _, inst := range sorted {
		row := table.Row{
			inst.ID,
			inst.Service,
			string(inst.State),
			orDash(string(inst.Health)),
			orDash(string(inst.Breaker)),
			orDash(inst.Address),
			inst.Weight,
			inst.ActiveConnections,
			age(inst.StartedAt),
		}
		if opts.wide {
			row = append(row,
				inst.TotalRequests,
				inst.FailedRequests,
				formatDuration(inst.LastResponseTime),
				inst.RestartCount,
				truncate(orDash(inst.LastError), 60),
			)
		}
		t.AppendRow(row)
	}
	return render(w, t)
}

func renderStats(w io.Writer, s api.ServiceStats, opts tableOptions) error {
	t := newTable(opts, "Field", "Value")
	t.AppendRows([]table.Row{
		{"Service", s.Service},
		{"Algorithm", string(s.Algorithm)},
		{"Healthy", s.HealthyCount},
		{"Unhealthy", s.UnhealthyCount},
		{"Active Connections", s.ActiveConnections},
		{"Total Requests", s.TotalRequests},
		{"Failed Requests", s.FailedRequests},
		{"Avg Response Time", formatDuration(s.AvgResponseTime)},
	})
	return render(w, t)
}

func renderScale(w io.Writer, r api.ScaleResult, opts tableOptions) error {
	t := newTable(opts, "Field", "Value")
	t.AppendRows([]table.Row{
		{"Service", r.Service},
		{"Previous", r.Previous},
		{"Target", r.Target},
		{"Started", orDash(strings.Join(r.Started, ", "))},
		{"Stopped", orDash(strings.Join(r.Stopped, ", "))},
	})
	return render(w, t)
}

func renderOrder(w io.Writer, order []string, opts tableOptions) error {
	if len(order) == 0 {
		_, err := fmt.Fprintln(w, "Nothing to start")
		return err
	}
	t := newTable(opts, "#", "Service")
	for i, name := range order {
		t.AppendRow(table.Row{strconv.Itoa(i + 1), name})
	}
	return render(w, t)
}

func countActive(instances []api.InstanceInfo, service string) int {
	n := 0
	for _, inst := range instances {
		if inst.Service == service && (inst.State == api.StateStarting || inst.State == api.StateRunning) {
			n++
		}
	}
	return n
}

func formatDeps(deps []api.DependencyInfo) string {
	if len(deps) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(deps))
	for _, d := range deps {
		if d.Required {
			parts = append(parts, d.Service)
		} else {
			parts = append(parts, d.Service+"?")
		}
	}
	return strings.Join(parts, ",")
}

func age(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	d := time.Since(*t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Millisecond {
		return d.String()
	}
	return d.Round(time.Millisecond).String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
