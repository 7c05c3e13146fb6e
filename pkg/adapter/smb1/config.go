package smb1

import (
	"fmt"
	"time"
)

// DefaultMaxMessageSize bounds a single SMB1 request. It covers the largest
// negotiated buffer plus a generous WRITE_ANDX payload.
const DefaultMaxMessageSize = 1 << 20

// Config holds the listener and connection settings of the SMB1 adapter.
//
// Default values (applied by New if zero):
//   - ListenAddress: ":445"
//   - MaxMessageSize: 1MiB
//   - WriteTimeout: 30s
//   - ShutdownTimeout: 30s
//
// IdleTimeout of 0 keeps idle connections open forever.
type Config struct {
	// ListenAddress is the TCP address to bind.
	ListenAddress string

	// MaxConnections limits concurrent client connections. 0 is unlimited.
	MaxConnections int

	// MaxMessageSize rejects larger frames and closes the connection.
	MaxMessageSize int

	// IdleTimeout closes connections with no traffic, no open files and no
	// parked requests for this long.
	IdleTimeout time.Duration

	// WriteTimeout bounds each reply write.
	WriteTimeout time.Duration

	// ShutdownTimeout is how long Stop waits before force-closing.
	ShutdownTimeout time.Duration

	// MetricsLogInterval logs the connection count periodically. 0 disables.
	MetricsLogInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = ":445"
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

func (c *Config) validate() error {
	if c.MaxConnections < 0 {
		return fmt.Errorf("max connections must be >= 0, got %d", c.MaxConnections)
	}
	if c.MaxMessageSize < 32 {
		return fmt.Errorf("max message size must hold an SMB header, got %d", c.MaxMessageSize)
	}
	if c.IdleTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("timeouts must be non-negative")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be > 0")
	}
	return nil
}
