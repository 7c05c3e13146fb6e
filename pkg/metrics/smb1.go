package metrics

import "time"

// SMB1Metrics provides observability for the SMB1 adapter.
//
// Pass nil to disable metrics collection; every helper in this package
// accepts a nil SMB1Metrics.
type SMB1Metrics interface {
	// RecordRequest records a completed command with its wire status name.
	RecordRequest(command, share string, duration time.Duration, status string)

	// SetPendingLocks updates the number of parked blocking lock requests.
	SetPendingLocks(n int)

	// SetOpenFiles updates the number of open file handles.
	SetOpenFiles(n int)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(n int32)

	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// ZeroCopyFallback counts reads that left the sendfile path.
	ZeroCopyFallback(reason string)

	BytesRead(n int)
	BytesWritten(n int)
}

// RecordRequest records a completed command if m is non-nil.
func RecordRequest(m SMB1Metrics, command, share string, duration time.Duration, status string) {
	if m != nil {
		m.RecordRequest(command, share, duration, status)
	}
}

// SetPendingLocks updates the pending lock gauge if m is non-nil.
func SetPendingLocks(m SMB1Metrics, n int) {
	if m != nil {
		m.SetPendingLocks(n)
	}
}

// SetOpenFiles updates the open file gauge if m is non-nil.
func SetOpenFiles(m SMB1Metrics, n int) {
	if m != nil {
		m.SetOpenFiles(n)
	}
}

// SetActiveConnections updates the connection gauge if m is non-nil.
func SetActiveConnections(m SMB1Metrics, n int32) {
	if m != nil {
		m.SetActiveConnections(n)
	}
}

// RecordConnectionAccepted counts an accepted connection if m is non-nil.
func RecordConnectionAccepted(m SMB1Metrics) {
	if m != nil {
		m.RecordConnectionAccepted()
	}
}
