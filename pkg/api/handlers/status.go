package handlers

import (
	"net/http"
	"time"
)

// StatusHandler reports server activity and exported shares.
type StatusHandler struct {
	source Source
}

// NewStatusHandler creates a status handler over source.
func NewStatusHandler(source Source) *StatusHandler {
	return &StatusHandler{source: source}
}

type summary struct {
	Stats
	Uptime string `json:"uptime"`
}

// Summary handles GET /status.
func (h *StatusHandler) Summary(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("server not initialized"))
		return
	}
	st := h.source.Stats()
	writeJSON(w, http.StatusOK, okResponse(summary{
		Stats:  st,
		Uptime: time.Since(st.StartTime).Truncate(time.Second).String(),
	}))
}

// Shares handles GET /status/shares.
func (h *StatusHandler) Shares(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("server not initialized"))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(h.source.Shares()))
}
