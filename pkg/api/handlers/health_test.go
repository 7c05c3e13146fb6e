package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	ready  bool
	shares []ShareStatus
	stats  Stats
}

func (f *fakeSource) Ready() bool           { return f.ready }
func (f *fakeSource) Shares() []ShareStatus { return f.shares }
func (f *fakeSource) Stats() Stats          { return f.stats }

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestLiveness_ReturnsOK(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthHandler(nil).Liveness(w, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, map[string]any{"service": "dittosmb"}, resp.Data)
}

func TestReadiness(t *testing.T) {
	ipc := ShareStatus{Name: "IPC$", Service: "IPC"}
	data := ShareStatus{Name: "data", Service: "A:"}

	tests := []struct {
		name   string
		source Source
		code   int
	}{
		{"no source", nil, http.StatusServiceUnavailable},
		{"listener down", &fakeSource{shares: []ShareStatus{ipc, data}}, http.StatusServiceUnavailable},
		{"only IPC", &fakeSource{ready: true, shares: []ShareStatus{ipc}}, http.StatusServiceUnavailable},
		{"ready", &fakeSource{ready: true, shares: []ShareStatus{ipc, data}}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewHealthHandler(tt.source).Readiness(w, httptest.NewRequest("GET", "/health/ready", nil))
			assert.Equal(t, tt.code, w.Code)

			resp := decode(t, w)
			if tt.code == http.StatusOK {
				assert.Equal(t, "healthy", resp.Status)
			} else {
				assert.Equal(t, "unhealthy", resp.Status)
				assert.NotEmpty(t, resp.Error)
			}
		})
	}
}

func TestStatusSummary(t *testing.T) {
	src := &fakeSource{ready: true, stats: Stats{
		ServerName:        "SRV",
		StartTime:         time.Now().Add(-time.Hour),
		ActiveConnections: 3,
		OpenFiles:         7,
		PendingLocks:      1,
	}}

	w := httptest.NewRecorder()
	NewStatusHandler(src).Summary(w, httptest.NewRequest("GET", "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "SRV", data["server_name"])
	assert.EqualValues(t, 3, data["active_connections"])
	assert.EqualValues(t, 7, data["open_files"])
	assert.Contains(t, data["uptime"], "1h")
}

func TestStatusShares(t *testing.T) {
	src := &fakeSource{shares: []ShareStatus{{Name: "data", Service: "A:", ReadOnly: true}}}

	w := httptest.NewRecorder()
	NewStatusHandler(src).Shares(w, httptest.NewRequest("GET", "/status/shares", nil))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	list, ok := resp.Data.([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, "data", list[0].(map[string]any)["name"])
	assert.Equal(t, true, list[0].(map[string]any)["read_only"])
}
