package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLifecycle(t *testing.T) {
	resetRegistry()
	t.Cleanup(resetRegistry)

	assert.False(t, IsEnabled())
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	reg := InitRegistry()
	require.NotNil(t, reg)
	assert.Same(t, reg, InitRegistry())
	assert.True(t, IsEnabled())

	rec = httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNilHelpers(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordRequest(nil, "ECHO", "", 0, "STATUS_SUCCESS")
		SetPendingLocks(nil, 1)
		SetOpenFiles(nil, 1)
		SetActiveConnections(nil, 1)
		RecordConnectionAccepted(nil)
	})
}
