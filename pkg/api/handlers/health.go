// Package handlers implements the HTTP handlers of the status API.
package handlers

import (
	"net/http"
	"time"
)

// ShareStatus describes one exported share.
type ShareStatus struct {
	Name     string `json:"name"`
	Service  string `json:"service"`
	Comment  string `json:"comment,omitempty"`
	ReadOnly bool   `json:"read_only"`
	GuestOK  bool   `json:"guest_ok"`
}

// Stats is a point-in-time view of server activity.
type Stats struct {
	ServerName        string    `json:"server_name"`
	StartTime         time.Time `json:"start_time"`
	ActiveConnections int32     `json:"active_connections"`
	OpenFiles         int       `json:"open_files"`
	PendingLocks      int       `json:"pending_locks"`
}

// Source provides the server state reported by the API.
type Source interface {
	// Ready reports whether the SMB listener is accepting connections.
	Ready() bool
	Shares() []ShareStatus
	Stats() Stats
}

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Is the SMB listener accepting connections?
type HealthHandler struct {
	source Source
}

// NewHealthHandler creates a health handler. source may be nil, in which
// case readiness always fails.
func NewHealthHandler(source Source) *HealthHandler {
	return &HealthHandler{source: source}
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "dittosmb",
	}))
}

// Readiness handles GET /health/ready.
//
// Returns 503 Service Unavailable until the listener is up, and when no disk
// or print share is exported.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("server not initialized"))
		return
	}
	if !h.source.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("listener not ready"))
		return
	}

	shares := 0
	for _, s := range h.source.Shares() {
		if s.Service != "IPC" {
			shares++
		}
	}
	if shares == 0 {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("no shares configured"))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"shares":             shares,
		"active_connections": h.source.Stats().ActiveConnections,
	}))
}
