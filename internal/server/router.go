package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"conductor/pkg/logging"
)

// NewRouter builds the admin and routing API:
//
//   - GET  /healthz
//   - GET  /metrics
//   - GET  /topology
//   - GET  /services/{name}/stats
//   - GET  /services/{name}/order
//   - POST /services/{name}/start
//   - POST /services/{name}/scale              {"target": n}
//   - POST /instances/{id}/stop                ?cascade=true
//   - POST /instances/{id}/maintenance         {"enabled": bool}
//   - POST /instances/{id}/weight              {"weight": n}
//   - *    /route/{service}/*
//
// Handlers reach the fleet through api.GetFleet.
func NewRouter(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Get("/healthz", healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/topology", getTopology)

	r.Route("/services/{name}", func(r chi.Router) {
		r.Get("/stats", getStats)
		r.Get("/order", getOrder)
		r.Post("/start", startService)
		r.Post("/scale", scaleService)
	})

	r.Route("/instances/{id}", func(r chi.Router) {
		r.Post("/stop", stopInstance)
		r.Post("/maintenance", setMaintenance)
		r.Post("/weight", setWeight)
	})

	r.HandleFunc("/route/{service}", routeRequest)
	r.HandleFunc("/route/{service}/*", routeRequest)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		// Probes and scrapes would drown everything else at info level.
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" || strings.HasPrefix(r.URL.Path, "/route/") {
			logging.Debug(subsystem, "%s %s -> %d (%s, request %s)",
				r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
			return
		}
		logging.Info(subsystem, "%s %s -> %d (%s, request %s)",
			r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}
