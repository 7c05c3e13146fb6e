package api

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/pkg/api/handlers"
)

type staticSource struct{}

func (staticSource) Ready() bool { return true }
func (staticSource) Shares() []handlers.ShareStatus {
	return []handlers.ShareStatus{{Name: "data", Service: "A:"}}
}
func (staticSource) Stats() handlers.Stats { return handlers.Stats{ServerName: "SRV"} }

func TestRouter(t *testing.T) {
	router := NewRouter(staticSource{})

	tests := []struct {
		path string
		code int
	}{
		{"/health", http.StatusOK},
		{"/health/ready", http.StatusOK},
		{"/status", http.StatusOK},
		{"/status/shares", http.StatusOK},
		{"/", http.StatusTemporaryRedirect},
		{"/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestAPIConfigDefaults(t *testing.T) {
	var cfg APIConfig
	assert.True(t, cfg.IsEnabled())

	cfg.ApplyDefaults()
	assert.Equal(t, 8080, cfg.Port)

	off := false
	cfg.Enabled = &off
	assert.False(t, cfg.IsEnabled())
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestServerLifecycle(t *testing.T) {
	srv := NewServer(APIConfig{Address: "127.0.0.1", Port: freePort(t)}, staticSource{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestListenAddress(t *testing.T) {
	cfg := APIConfig{Address: "::1", Port: 9090}
	assert.Equal(t, "[::1]:9090", cfg.ListenAddress())
}
