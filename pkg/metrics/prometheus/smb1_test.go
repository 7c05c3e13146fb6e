package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSMB1Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newSMB1Metrics(reg)

	m.RecordRequest("READ_ANDX", "public", 3*time.Millisecond, "STATUS_SUCCESS")
	m.RecordRequest("READ_ANDX", "public", time.Millisecond, "STATUS_SUCCESS")
	m.BytesRead(100)
	m.BytesRead(0)
	m.BytesWritten(7)
	m.ZeroCopyFallback("short")
	m.SetPendingLocks(3)
	m.SetOpenFiles(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("READ_ANDX", "public", "STATUS_SUCCESS")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.bytesRead))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.bytesWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.zeroCopyFallbacks.WithLabelValues("short")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pendingLocks))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.openFiles))
}

func TestNilSMB1MetricsIsSafe(t *testing.T) {
	var m *smb1Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("ECHO", "", time.Millisecond, "STATUS_SUCCESS")
		m.BytesRead(1)
		m.ZeroCopyFallback("unsupported")
		m.SetActiveConnections(1)
	})
}
