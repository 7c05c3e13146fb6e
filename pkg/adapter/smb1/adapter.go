// Package smb1 serves the SMB1 request core over TCP.
package smb1

import (
	"context"
	"fmt"
	"net"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/handlers"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/adapter"
)

// Adapter implements adapter.Adapter for SMB1.
//
// Adapter embeds BaseAdapter for the TCP lifecycle (listener, shutdown,
// connection tracking and limits). It creates one Connection per accepted
// socket and hands every request to the shared handlers.Handler.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed and blocked reads interrupted [BaseAdapter]
//  3. Each Connection releases its files, locks and parked requests
//  4. Remaining connections are force-closed after ShutdownTimeout
type Adapter struct {
	*adapter.BaseAdapter

	config  Config
	handler *handlers.Handler
}

// New creates an Adapter serving h. Zero config fields get defaults.
//
// Panics if the configuration is invalid (programmer error).
func New(config Config, h *handlers.Handler) *Adapter {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid SMB1 config: %v", err))
	}

	base := adapter.NewBaseAdapter(adapter.BaseConfig{
		ListenAddress:      config.ListenAddress,
		MaxConnections:     config.MaxConnections,
		ShutdownTimeout:    config.ShutdownTimeout,
		MetricsLogInterval: config.MetricsLogInterval,
	}, "SMB1")
	base.Metrics = h.Metrics

	return &Adapter{
		BaseAdapter: base,
		config:      config,
		handler:     h,
	}
}

// Serve accepts connections until ctx is cancelled.
func (a *Adapter) Serve(ctx context.Context) error {
	logger.Info("Starting SMB1 server",
		"address", a.config.ListenAddress,
		"server_name", a.handler.ServerName,
		"shares", len(a.handler.Shares()))
	return a.ServeWithFactory(ctx, a)
}

// NewConnection implements adapter.ConnectionFactory.
func (a *Adapter) NewConnection(conn net.Conn) adapter.ConnectionHandler {
	return NewConnection(a, conn)
}

// Handler returns the request handler shared by all connections.
func (a *Adapter) Handler() *handlers.Handler {
	return a.handler
}

var _ adapter.Adapter = (*Adapter)(nil)
