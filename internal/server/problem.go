package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"conductor/internal/api"
	"conductor/pkg/logging"
)

// Problem is an RFC 7807 error body.
type Problem struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func badRequest(w http.ResponseWriter, detail string) {
	writeProblem(w, http.StatusBadRequest, "Bad Request", detail)
}

// writeError maps control plane errors onto problem responses.
func writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logging.Error(subsystem, err, "Request failed")
	}
	writeProblem(w, status, http.StatusText(status), err.Error())
}

func errorStatus(err error) int {
	switch {
	case api.IsNotFound(err):
		return http.StatusNotFound
	case api.IsInvalidTarget(err):
		return http.StatusBadRequest
	case api.IsDependentsRunning(err), api.IsCyclicDependency(err):
		return http.StatusConflict
	case api.IsNoHealthyInstance(err):
		return http.StatusServiceUnavailable
	case api.IsStartupTimeout(err), api.IsDrainTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes into a buffer first so an encoding failure can still
// produce a clean 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
