package balancer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"conductor/internal/api"
	"conductor/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backend(t *testing.T, reg *services.Registry, id string, handler http.HandlerFunc) *services.ServiceInstance {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	inst := services.NewServiceInstance(id, "tts", 1)
	inst.SetAddress(srv.Listener.Addr().String())
	inst.UpdateState(api.StateRunning, nil)
	inst.SetHealth(api.HealthHealthy)
	require.NoError(t, reg.Register(inst))
	return inst
}

func TestRouter_RouteForwardsAndTracks(t *testing.T) {
	reg := services.NewRegistry()
	inst := backend(t, reg, "i1", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Path", r.URL.Path)
		_, _ = w.Write([]byte("echo:" + r.URL.RawQuery + ":" + string(body)))
	})

	router := NewRouter(New(reg, nil), time.Second, nil)

	var mu sync.Mutex
	var observed []bool
	router.SetObserver(func(service, instanceID string, failed bool, _ time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "tts", service)
		assert.Equal(t, "i1", instanceID)
		observed = append(observed, failed)
	})

	req := httptest.NewRequest(http.MethodPost, "/synthesize?voice=en", strings.NewReader("hello"))
	resp, err := router.Route(context.Background(), "tts", req)
	require.NoError(t, err)

	assert.Equal(t, int64(1), inst.ActiveConnections())
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, "echo:voice=en:hello", string(body))
	assert.Equal(t, "/synthesize", resp.Header.Get("X-Path"))
	assert.Equal(t, int64(0), inst.ActiveConnections())
	assert.Equal(t, int64(1), inst.TotalRequests())
	assert.Equal(t, int64(0), inst.FailedRequests())

	mu.Lock()
	assert.Equal(t, []bool{false}, observed)
	mu.Unlock()
}

func TestRouter_ServerErrorCountsAsFailure(t *testing.T) {
	reg := services.NewRegistry()
	inst := backend(t, reg, "i1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	router := NewRouter(New(reg, nil), time.Second, nil)

	resp, err := router.Route(context.Background(), "tts", httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, int64(1), inst.FailedRequests())
}

func TestRouter_ForwardTimeout(t *testing.T) {
	reg := services.NewRegistry()
	release := make(chan struct{})
	inst := backend(t, reg, "i1", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	router := NewRouter(New(reg, nil), 30*time.Millisecond, nil)
	_, err := router.Route(context.Background(), "tts", httptest.NewRequest(http.MethodGet, "/", nil))
	require.Error(t, err)

	assert.Equal(t, int64(0), inst.ActiveConnections())
	assert.Equal(t, int64(1), inst.FailedRequests())
}

func TestRouter_NoHealthyInstance(t *testing.T) {
	router := NewRouter(New(services.NewRegistry(), nil), time.Second, nil)
	_, err := router.Route(context.Background(), "tts", httptest.NewRequest(http.MethodGet, "/", nil))
	require.Error(t, err)
	assert.True(t, api.IsNoHealthyInstance(err))
}

func TestRouter_UsesServiceAlgorithm(t *testing.T) {
	reg := services.NewRegistry()
	backend(t, reg, "i1", func(w http.ResponseWriter, r *http.Request) {})
	backend(t, reg, "i2", func(w http.ResponseWriter, r *http.Request) {})

	var asked []string
	router := NewRouter(New(reg, nil), time.Second, func(service string) api.Algorithm {
		asked = append(asked, service)
		return api.AlgorithmWeightedRoundRobin
	})

	resp, err := router.Route(context.Background(), "tts", httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, []string{"tts"}, asked)
}
