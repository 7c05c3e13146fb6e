package logger

import (
	"context"
	"time"
)

type logContextKey struct{}

// LogContext carries the identifiers of the SMB1 command being processed.
// Values are immutable once attached to a context; the With* methods
// return modified copies.
type LogContext struct {
	TraceID  string
	SpanID   string
	Command  string
	Share    string
	ClientIP string
	TID      uint16
	UID      uint16
	PID      uint32
	MID      uint16

	// Start is when the command began, for duration fields.
	Start time.Time
}

// WithContext returns a context carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey{}, lc)
}

// FromContext returns the LogContext attached to ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey{}).(*LogContext)
	return lc
}

// NewLogContext starts a LogContext for a client connection.
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{ClientIP: clientIP, Start: time.Now()}
}

// Clone returns a copy of lc. A nil receiver yields nil.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

func (lc *LogContext) derive(fn func(*LogContext)) *LogContext {
	c := lc.Clone()
	if c != nil {
		fn(c)
	}
	return c
}

// WithCommand binds a copy to one command and its header identifiers and
// restarts its clock.
func (lc *LogContext) WithCommand(command string, tid, uid uint16, pid uint32, mid uint16) *LogContext {
	return lc.derive(func(c *LogContext) {
		c.Command, c.TID, c.UID, c.PID, c.MID = command, tid, uid, pid, mid
		c.Start = time.Now()
	})
}

func (lc *LogContext) WithShare(share string) *LogContext {
	return lc.derive(func(c *LogContext) { c.Share = share })
}

func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	return lc.derive(func(c *LogContext) { c.TraceID, c.SpanID = traceID, spanID })
}

// DurationMs returns milliseconds elapsed since Start.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.Start.IsZero() {
		return 0
	}
	return float64(time.Since(lc.Start).Microseconds()) / 1000.0
}
