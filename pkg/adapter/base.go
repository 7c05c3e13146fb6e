package adapter

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/metrics"
)

// ConnectionHandler represents a protocol-specific connection. Serve blocks
// until the connection is closed or the context is cancelled.
type ConnectionHandler interface {
	Serve(ctx context.Context)
}

// ConnectionFactory creates protocol-specific connection handlers for
// accepted TCP connections.
type ConnectionFactory interface {
	NewConnection(conn net.Conn) ConnectionHandler
}

// BaseConfig holds the listener configuration common to protocol adapters.
type BaseConfig struct {
	// ListenAddress is the TCP address to bind, e.g. ":445" or
	// "127.0.0.1:1445".
	ListenAddress string

	// MaxConnections limits the number of concurrent client connections.
	// 0 means unlimited.
	MaxConnections int

	// ShutdownTimeout is the maximum duration to wait for active connections
	// to complete during graceful shutdown.
	ShutdownTimeout time.Duration

	// MetricsLogInterval is the interval at which to log connection counts.
	// 0 disables periodic logging.
	MetricsLogInterval time.Duration
}

// BaseAdapter provides TCP lifecycle management for protocol adapters:
// the accept loop, connection limiting, graceful shutdown and connection
// tracking. Protocol behavior is injected through a ConnectionFactory.
//
// Thread safety:
// All exported methods are safe for concurrent use. The shutdown mechanism uses
// sync.Once to ensure idempotent behavior even if Stop() is called multiple times.
type BaseAdapter struct {
	// Config holds the shared configuration (address, limits, timeouts)
	Config BaseConfig

	// protocolName is the human-readable protocol name for logging
	protocolName string

	// Metrics records connection counts. Nil disables collection.
	Metrics metrics.SMB1Metrics

	// listener is the TCP listener for accepting connections.
	// Closed during shutdown to stop accepting new connections.
	listener net.Listener

	// activeConns tracks all currently active connections for graceful shutdown.
	activeConns sync.WaitGroup

	// shutdownOnce ensures shutdown is only initiated once.
	shutdownOnce sync.Once

	// Shutdown is closed when graceful shutdown has been initiated.
	Shutdown chan struct{}

	// ConnCount tracks the current number of active connections.
	ConnCount atomic.Int32

	// connSemaphore limits concurrent connections if MaxConnections > 0.
	// nil if MaxConnections is 0 (unlimited).
	connSemaphore chan struct{}

	// ShutdownCtx is cancelled during shutdown to abort in-flight requests.
	ShutdownCtx context.Context

	// CancelRequests cancels ShutdownCtx during shutdown.
	CancelRequests context.CancelFunc

	// ActiveConnections maps remote address to net.Conn for forced closure.
	ActiveConnections sync.Map

	// ListenerReady is closed when the listener is ready to accept connections.
	ListenerReady chan struct{}

	// listenerMu protects access to the listener field.
	listenerMu sync.RWMutex
}

// NewBaseAdapter creates a BaseAdapter in a stopped state. Call
// ServeWithFactory() to start.
func NewBaseAdapter(config BaseConfig, protocol string) *BaseAdapter {
	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug(protocol+" connection limit", "max_connections", config.MaxConnections)
	} else {
		logger.Debug(protocol+" connection limit", "max_connections", "unlimited")
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &BaseAdapter{
		Config:         config,
		protocolName:   protocol,
		Shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		ShutdownCtx:    shutdownCtx,
		CancelRequests: cancelRequests,
		ListenerReady:  make(chan struct{}),
	}
}

// ServeWithFactory runs the TCP accept loop, delegating to factory for
// protocol-specific connection handling.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the listener fails to start or shutdown is not graceful
func (b *BaseAdapter) ServeWithFactory(ctx context.Context, factory ConnectionFactory) error {
	listener, err := net.Listen("tcp", b.Config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to create %s listener on %s: %w", b.protocolName, b.Config.ListenAddress, err)
	}

	b.listenerMu.Lock()
	b.listener = listener
	b.listenerMu.Unlock()
	close(b.ListenerReady)

	logger.Info(b.protocolName+" server listening", "address", listener.Addr().String())

	go func() {
		select {
		case <-ctx.Done():
			logger.Info(b.protocolName+" shutdown signal received", "error", ctx.Err())
			b.initiateShutdown()
		case <-b.Shutdown:
		}
	}()

	if b.Config.MetricsLogInterval > 0 {
		go b.logMetrics(ctx)
	}

	for {
		if b.connSemaphore != nil {
			select {
			case b.connSemaphore <- struct{}{}:
			case <-b.Shutdown:
				return b.gracefulShutdown()
			}
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			if b.connSemaphore != nil {
				<-b.connSemaphore
			}

			select {
			case <-b.Shutdown:
				return b.gracefulShutdown()
			default:
				logger.Debug("Error accepting "+b.protocolName+" connection", "error", err)
				continue
			}
		}

		// Disable Nagle: SMB1 replies are small and latency bound.
		if tcp, ok := tcpConn.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				logger.Debug("Failed to set TCP_NODELAY", "error", err)
			}
		}

		b.activeConns.Add(1)
		currentConns := b.ConnCount.Add(1)

		connAddr := tcpConn.RemoteAddr().String()
		b.ActiveConnections.Store(connAddr, tcpConn)

		metrics.RecordConnectionAccepted(b.Metrics)
		metrics.SetActiveConnections(b.Metrics, currentConns)

		logger.Debug(b.protocolName+" connection accepted", "address", connAddr, "active", currentConns)

		conn := factory.NewConnection(tcpConn)

		go func(addr string) {
			defer func() {
				b.ActiveConnections.Delete(addr)
				remaining := b.ConnCount.Add(-1)
				if b.connSemaphore != nil {
					<-b.connSemaphore
				}
				metrics.SetActiveConnections(b.Metrics, remaining)
				logger.Debug(b.protocolName+" connection closed", "address", addr, "active", remaining)
				b.activeConns.Done()
			}()

			conn.Serve(b.ShutdownCtx)
		}(connAddr)
	}
}

// initiateShutdown signals the server to begin graceful shutdown.
//
// Shutdown sequence:
//  1. Close shutdown channel (signals accept loop to stop)
//  2. Close listener (stops accepting new connections)
//  3. Interrupt blocking reads on all active connections
//  4. Cancel ShutdownCtx (signals in-flight requests to abort)
//
// Thread safety:
// Safe to call multiple times and from multiple goroutines.
func (b *BaseAdapter) initiateShutdown() {
	b.shutdownOnce.Do(func() {
		logger.Debug(b.protocolName + " shutdown initiated")

		close(b.Shutdown)

		b.listenerMu.Lock()
		if b.listener != nil {
			if err := b.listener.Close(); err != nil {
				logger.Debug("Error closing "+b.protocolName+" listener", "error", err)
			}
		}
		b.listenerMu.Unlock()

		b.interruptBlockingReads()
		b.CancelRequests()
	})
}

// interruptBlockingReads sets a short deadline on all active connections
// to interrupt any blocking read operations during shutdown.
func (b *BaseAdapter) interruptBlockingReads() {
	deadline := time.Now().Add(100 * time.Millisecond)

	b.ActiveConnections.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			if err := conn.SetReadDeadline(deadline); err != nil {
				logger.Debug("Error setting shutdown deadline on connection",
					"address", key, "error", err)
			}
		}
		return true
	})
}

// gracefulShutdown waits for active connections to complete or timeout.
//
// Returns:
//   - nil if all connections completed gracefully
//   - error if shutdown timeout exceeded (connections were force-closed)
func (b *BaseAdapter) gracefulShutdown() error {
	activeCount := b.ConnCount.Load()
	logger.Info(b.protocolName+" graceful shutdown: waiting for active connections",
		"active", activeCount, "timeout", b.Config.ShutdownTimeout)

	select {
	case <-b.drained():
		logger.Info(b.protocolName + " graceful shutdown complete: all connections closed")
		return nil

	case <-time.After(b.Config.ShutdownTimeout):
		remaining := b.ConnCount.Load()
		logger.Warn(b.protocolName+" shutdown timeout exceeded - forcing closure",
			"active", remaining, "timeout", b.Config.ShutdownTimeout)

		b.forceCloseConnections()
		return fmt.Errorf("%s shutdown timeout: %d connections force-closed", b.protocolName, remaining)
	}
}

// drained returns a channel closed once every connection goroutine exits.
func (b *BaseAdapter) drained() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		b.activeConns.Wait()
		close(done)
	}()
	return done
}

// forceCloseConnections closes all active TCP connections.
func (b *BaseAdapter) forceCloseConnections() {
	closedCount := 0
	b.ActiveConnections.Range(func(key, value any) bool {
		conn := value.(net.Conn)
		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection", "address", key, "error", err)
		} else {
			closedCount++
		}
		return true
	})

	if closedCount > 0 {
		logger.Info("Force-closed "+b.protocolName+" connections", "count", closedCount)
	}
}

// Stop initiates graceful shutdown of the server and waits for active
// connections until ctx is done. A nil ctx waits up to ShutdownTimeout.
func (b *BaseAdapter) Stop(ctx context.Context) error {
	b.initiateShutdown()

	if ctx == nil {
		return b.gracefulShutdown()
	}

	select {
	case <-b.drained():
		return nil
	case <-ctx.Done():
		remaining := b.ConnCount.Load()
		logger.Warn(b.protocolName+" shutdown context cancelled",
			"active", remaining, "error", ctx.Err())
		return ctx.Err()
	}
}

// logMetrics periodically logs the connection count.
func (b *BaseAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(b.Config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.Shutdown:
			return
		case <-ticker.C:
			logger.Info(b.protocolName+" metrics", "active_connections", b.ConnCount.Load())
		}
	}
}

// GetActiveConnections returns the current number of active connections.
func (b *BaseAdapter) GetActiveConnections() int32 {
	return b.ConnCount.Load()
}

// Addr returns the address the server is listening on. It blocks until the
// listener is ready.
func (b *BaseAdapter) Addr() string {
	<-b.ListenerReady

	b.listenerMu.RLock()
	defer b.listenerMu.RUnlock()

	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

// Protocol returns the human-readable protocol name.
func (b *BaseAdapter) Protocol() string {
	return b.protocolName
}
