package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"conductor/internal/api"
	"conductor/pkg/logging"
)

// maxBodyBytes caps admin request bodies.
const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// ScaleRequest is the body of POST /services/{name}/scale.
type ScaleRequest struct {
	Target *int `json:"target" validate:"required,gte=0"`
}

// MaintenanceRequest is the body of POST /instances/{id}/maintenance.
type MaintenanceRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// WeightRequest is the body of POST /instances/{id}/weight.
type WeightRequest struct {
	Weight *int64 `json:"weight" validate:"required,gte=0"`
}

// StopRequest is the optional body of POST /instances/{id}/stop.
type StopRequest struct {
	Cascade bool `json:"cascade"`
}

// StatusResponse acknowledges operations without a richer result.
type StatusResponse struct {
	Status string `json:"status"`
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// fleet returns the registered handler or writes a 503.
func fleet(w http.ResponseWriter) api.FleetHandler {
	h := api.GetFleet()
	if h == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Service Unavailable", "control plane is not ready")
	}
	return h
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	if api.GetFleet() == nil {
		writeJSON(w, http.StatusServiceUnavailable, StatusResponse{Status: "starting"})
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func getTopology(w http.ResponseWriter, _ *http.Request) {
	h := fleet(w)
	if h == nil {
		return
	}
	writeJSON(w, http.StatusOK, h.Topology())
}

func getStats(w http.ResponseWriter, r *http.Request) {
	h := fleet(w)
	if h == nil {
		return
	}
	stats, err := h.Stats(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func getOrder(w http.ResponseWriter, r *http.Request) {
	h := fleet(w)
	if h == nil {
		return
	}
	order, err := h.StartupOrder(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func startService(w http.ResponseWriter, r *http.Request) {
	h := fleet(w)
	if h == nil {
		return
	}
	info, err := h.StartService(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func scaleService(w http.ResponseWriter, r *http.Request) {
	h := fleet(w)
	if h == nil {
		return
	}
	var req ScaleRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	res, err := h.ScaleService(r.Context(), chi.URLParam(r, "name"), *req.Target)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func stopInstance(w http.ResponseWriter, r *http.Request) {
	h := fleet(w)
	if h == nil {
		return
	}
	var req StopRequest
	if q := r.URL.Query().Get("cascade"); q != "" {
		cascade, err := strconv.ParseBool(q)
		if err != nil {
			badRequest(w, fmt.Sprintf("invalid cascade value %q", q))
			return
		}
		req.Cascade = cascade
	} else if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			badRequest(w, err.Error())
			return
		}
	}
	if err := h.StopInstance(r.Context(), chi.URLParam(r, "id"), req.Cascade); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "stopped"})
}

func setMaintenance(w http.ResponseWriter, r *http.Request) {
	h := fleet(w)
	if h == nil {
		return
	}
	var req MaintenanceRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.SetMaintenance(chi.URLParam(r, "id"), *req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	status := "running"
	if *req.Enabled {
		status = "maintenance"
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: status})
}

func setWeight(w http.ResponseWriter, r *http.Request) {
	h := fleet(w)
	if h == nil {
		return
	}
	var req WeightRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.SetWeight(chi.URLParam(r, "id"), *req.Weight); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "updated"})
}

// routeRequest forwards to one instance of {service}. The remainder of the
// path after /route/{service} becomes the upstream path.
func routeRequest(w http.ResponseWriter, r *http.Request) {
	h := fleet(w)
	if h == nil {
		return
	}
	service := chi.URLParam(r, "service")

	out := r.Clone(r.Context())
	out.URL.Path = "/" + chi.URLParam(r, "*")
	out.URL.RawPath = ""
	out.RequestURI = ""

	resp, err := h.Route(r.Context(), service, out)
	if err != nil {
		if api.IsNotFound(err) || api.IsNoHealthyInstance(err) {
			writeError(w, err)
			return
		}
		writeProblem(w, http.StatusBadGateway, "Bad Gateway", err.Error())
		return
	}
	defer resp.Body.Close()

	for k, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		logging.Debug(subsystem, "Copying response from %s failed: %v", service, err)
	}
}
