package balancer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"conductor/internal/api"
	"conductor/pkg/logging"
)

// Observer is notified after every forwarded request completes.
type Observer func(service, instanceID string, failed bool, elapsed time.Duration)

// Router forwards HTTP requests to instances chosen by a Balancer.
type Router struct {
	balancer       *Balancer
	client         *http.Client
	forwardTimeout time.Duration
	algorithmFor   func(service string) api.Algorithm

	mu       sync.RWMutex
	observer Observer
}

// NewRouter creates a router. algorithmFor returns the default algorithm of a
// service; nil selects round robin for every service.
func NewRouter(b *Balancer, forwardTimeout time.Duration, algorithmFor func(string) api.Algorithm) *Router {
	if algorithmFor == nil {
		algorithmFor = func(string) api.Algorithm { return api.AlgorithmRoundRobin }
	}
	return &Router{
		balancer:       b,
		client:         &http.Client{},
		forwardTimeout: forwardTimeout,
		algorithmFor:   algorithmFor,
	}
}

// SetClient replaces the HTTP client used for forwarding.
func (r *Router) SetClient(c *http.Client) {
	r.client = c
}

// SetObserver installs the completion observer.
func (r *Router) SetObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = o
}

// Balancer returns the underlying balancer.
func (r *Router) Balancer() *Balancer {
	return r.balancer
}

// Route forwards req to an instance of service using the service's default
// algorithm.
func (r *Router) Route(ctx context.Context, service string, req *http.Request) (*http.Response, error) {
	return r.RouteWith(ctx, service, r.algorithmFor(service), req)
}

// RouteWith forwards req using an explicit algorithm. The request path and
// query are kept as they are; only scheme and host are rewritten. The caller
// must close the response body, which ends the lease on the instance.
func (r *Router) RouteWith(ctx context.Context, service string, algorithm api.Algorithm, req *http.Request) (*http.Response, error) {
	inst, err := r.balancer.SelectInstance(service, algorithm)
	if err != nil {
		return nil, err
	}

	release := Acquire(inst)
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, r.forwardTimeout)
	out := req.Clone(ctx)
	out.RequestURI = ""
	out.URL.Scheme = "http"
	out.URL.Host = inst.Address()
	if strings.Contains(inst.Address(), "://") {
		if parts := strings.SplitN(inst.Address(), "://", 2); len(parts) == 2 {
			out.URL.Scheme, out.URL.Host = parts[0], parts[1]
		}
	}
	out.Host = out.URL.Host

	finish := func(ferr error) {
		cancel()
		elapsed := time.Since(start)
		release(ferr, elapsed)
		r.mu.RLock()
		o := r.observer
		r.mu.RUnlock()
		if o != nil {
			o(service, inst.ID, ferr != nil, elapsed)
		}
	}

	resp, err := r.client.Do(out)
	if err != nil {
		finish(err)
		logging.Debug("Router", "Forward to %s (%s) failed: %v", inst.ID, service, err)
		return nil, fmt.Errorf("forward to instance %s of %s: %w", inst.ID, service, err)
	}

	var status error
	if resp.StatusCode >= http.StatusInternalServerError {
		status = fmt.Errorf("instance %s returned status %d", inst.ID, resp.StatusCode)
	}
	resp.Body = &leasedBody{ReadCloser: resp.Body, done: func() { finish(status) }}
	return resp, nil
}

// leasedBody ends the instance lease when the caller closes the body, so
// active connections cover the whole response stream.
type leasedBody struct {
	io.ReadCloser
	once sync.Once
	done func()
}

func (b *leasedBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.done)
	return err
}
