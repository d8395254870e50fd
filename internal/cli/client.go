package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"conductor/internal/api"
)

// Client talks to the admin API of a running control plane.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a client for endpoint, e.g. http://127.0.0.1:8095.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{endpoint: endpoint, http: httpClient}
}

// Endpoint returns the base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Health checks that the server is up and has a fleet registered.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Topology returns definitions, instances and the dependency graph.
func (c *Client) Topology(ctx context.Context) (api.Topology, error) {
	var out api.Topology
	err := c.do(ctx, http.MethodGet, "/topology", nil, &out)
	return out, err
}

// Stats returns the routing statistics of a service.
func (c *Client) Stats(ctx context.Context, service string) (api.ServiceStats, error) {
	var out api.ServiceStats
	err := c.do(ctx, http.MethodGet, "/services/"+url.PathEscape(service)+"/stats", nil, &out)
	return out, err
}

// StartupOrder returns the services that start before and including service.
func (c *Client) StartupOrder(ctx context.Context, service string) ([]string, error) {
	var out []string
	err := c.do(ctx, http.MethodGet, "/services/"+url.PathEscape(service)+"/order", nil, &out)
	return out, err
}

// StartService starts one instance of service.
func (c *Client) StartService(ctx context.Context, service string) (api.InstanceInfo, error) {
	var out api.InstanceInfo
	err := c.do(ctx, http.MethodPost, "/services/"+url.PathEscape(service)+"/start", nil, &out)
	return out, err
}

// StopInstance stops an instance, with its dependents when cascade is set.
func (c *Client) StopInstance(ctx context.Context, instanceID string, cascade bool) error {
	path := "/instances/" + url.PathEscape(instanceID) + "/stop?cascade=" + strconv.FormatBool(cascade)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// ScaleService sets the number of active instances of service.
func (c *Client) ScaleService(ctx context.Context, service string, target int) (api.ScaleResult, error) {
	var out api.ScaleResult
	err := c.do(ctx, http.MethodPost, "/services/"+url.PathEscape(service)+"/scale", map[string]int{"target": target}, &out)
	return out, err
}

// SetMaintenance moves an instance into or out of maintenance.
func (c *Client) SetMaintenance(ctx context.Context, instanceID string, enabled bool) error {
	return c.do(ctx, http.MethodPost, "/instances/"+url.PathEscape(instanceID)+"/maintenance", map[string]bool{"enabled": enabled}, nil)
}

// SetWeight changes an instance's routing weight.
func (c *Client) SetWeight(ctx context.Context, instanceID string, weight int64) error {
	return c.do(ctx, http.MethodPost, "/instances/"+url.PathEscape(instanceID)+"/weight", map[string]int64{"weight": weight}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return ClassifyConnectionError(err, c.endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeProblem(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

func decodeProblem(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(data, &problem); err == nil {
		if problem.Title != "" {
			apiErr.Title = problem.Title
		}
		apiErr.Detail = problem.Detail
	}
	return apiErr
}
