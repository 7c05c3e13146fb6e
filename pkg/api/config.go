package api

import (
	"net"
	"strconv"
	"time"
)

// APIConfig configures the status API HTTP server.
type APIConfig struct {
	// Enabled controls whether the server is started. Nil means enabled.
	Enabled *bool `mapstructure:"enabled" yaml:"enabled,omitempty"`

	// Address is the interface to bind. Empty binds all interfaces.
	Address string `mapstructure:"address" validate:"omitempty,ip|hostname" yaml:"address,omitempty"`

	// Port is the HTTP port. Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// IsEnabled reports whether the API server should run.
func (c *APIConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ListenAddress returns the host:port the server binds.
func (c *APIConfig) ListenAddress() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// ApplyDefaults fills zero values: port 8080, 10s read and write timeouts,
// 60s idle timeout.
func (c *APIConfig) ApplyDefaults() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}
