// Package adapter provides the TCP server lifecycle shared by protocol
// adapters.
package adapter

import "context"

// Adapter represents a protocol-specific server that dittosmb manages.
//
// Lifecycle:
//  1. Creation: the adapter is created with its configuration and handler
//  2. Startup: Serve() starts the listener and blocks until shutdown
//  3. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// Implementations must be safe for concurrent use. Stop() may be called
// concurrently with Serve().
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is
	// cancelled or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	//   - Stop accepting new connections
	//   - Wait for active connections to finish (with timeout)
	//   - Return nil, or an error if connections had to be force-closed
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown. It must be idempotent and safe to
	// call concurrently with Serve.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging.
	Protocol() string

	// Addr returns the address the adapter listens on, blocking until the
	// listener is ready.
	Addr() string
}
