// Package server exposes the control plane over HTTP.
//
// The router is built on chi and serves two kinds of traffic:
//
//	┌──────────────────────────────────────────────┐
//	│                 Admin API                     │
//	│                                               │
//	│  /topology, /services/..., /instances/...     │
//	│        │                                      │
//	│        ▼                                      │
//	│  api.GetFleet() ── orchestrator adapter       │
//	│                                               │
//	│  /route/{service}/*                           │
//	│        │                                      │
//	│        ▼                                      │
//	│  balancer.Router ── selected instance         │
//	└──────────────────────────────────────────────┘
//
// Errors are returned as RFC 7807 problem documents. Not found maps to 404,
// rejected scale targets and malformed bodies to 400, running dependents to
// 409, an empty healthy pool to 503 and startup timeouts to 504.
//
// /metrics serves the Prometheus gatherer passed to New, and /healthz
// reports 503 until a fleet handler is registered.
package server
