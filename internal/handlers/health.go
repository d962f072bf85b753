package handlers

import (
	"context"
	"net/http"
	"os"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health reports upstream readiness, transport reachability and the invite
// worker state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	if h.upstream != nil && h.upstream.Ready() {
		checks["upstream"] = Check{Status: "pass"}
	} else {
		checks["upstream"] = Check{Status: "fail", Message: "not connected"}
		allHealthy = false
	}

	if h.transport != nil {
		start := time.Now()
		if err := h.transport.Ping(ctx); err != nil {
			checks["transport"] = Check{Status: "fail", Message: "connection failed"}
			allHealthy = false
		} else {
			checks["transport"] = Check{Status: "pass", Latency: time.Since(start).String()}
		}
	} else {
		checks["transport"] = Check{Status: "fail", Message: "not configured"}
		allHealthy = false
	}

	if h.invites != nil {
		checks["invites"] = Check{Status: "pass", Message: h.invites.State().String()}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	h.JSON(w, statusCode, HealthResponse{
		Status:    status,
		Version:   version,
		Instance:  os.Getenv("HOSTNAME"),
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

// Root lists the bridge endpoints.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	var endpoints []string
	if h.registry != nil {
		endpoints = h.registry.Endpoints()
	}
	h.JSON(w, http.StatusOK, RootResponse{
		Name:      "GuildBridge",
		Version:   version,
		Endpoints: endpoints,
	})
}
