package smb1

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb1"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/handlers"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/transfer"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/bufpool"
)

// Connection handles a single SMB1 client connection.
//
// Requests are processed one at a time in arrival order. Blocking lock
// requests park without holding the read loop; their replies, and oplock
// breaks, are written from other goroutines through the same Transport.
type Connection struct {
	server *Adapter
	conn   net.Conn
	zc     transfer.ZeroCopier

	// writeMu serializes whole frames on the socket.
	writeMu sync.Mutex

	state *handlers.Conn
}

// NewConnection creates a connection handler for conn.
func NewConnection(server *Adapter, conn net.Conn) *Connection {
	c := &Connection{
		server: server,
		conn:   conn,
		zc:     transfer.NewSocketCopier(conn),
	}
	c.state = server.handler.NewConn(conn.RemoteAddr().String(), c)
	return c
}

// WriteMessage implements handlers.Transport.
func (c *Connection) WriteMessage(msg []byte) error {
	if len(msg) > smb1.MaxFrameLength {
		return smb1.ErrFrameTooLarge
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.setWriteDeadline(); err != nil {
		return err
	}

	frame := bufpool.Get(smb1.NBSSHeaderSize + len(msg))
	defer bufpool.Put(frame)

	frame = smb1.AppendFrameHeader(frame[:0], len(msg))
	frame = append(frame, msg...)

	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("write SMB message: %w", err)
	}
	return nil
}

// Stream implements handlers.Transport.
func (c *Connection) Stream(fn func(w io.Writer, zc transfer.ZeroCopier) error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.setWriteDeadline(); err != nil {
		return err
	}
	return fn(c.conn, c.zc)
}

func (c *Connection) setWriteDeadline() error {
	if c.server.config.WriteTimeout <= 0 {
		return nil
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return nil
}

// Serve reads and processes requests until the client disconnects, a
// connection-fatal error occurs, the idle timeout expires on a connection
// with nothing open, or ctx is cancelled.
func (c *Connection) Serve(ctx context.Context) {
	defer c.handleConnectionClose()

	clientAddr := c.conn.RemoteAddr().String()
	logger.Debug("New SMB1 connection", "address", clientAddr, logger.KeyConnectionID, c.state.ID)

	for {
		select {
		case <-ctx.Done():
			logger.Debug("SMB1 connection closed due to context cancellation", "address", clientAddr)
			return
		case <-c.server.Shutdown:
			logger.Debug("SMB1 connection closed due to server shutdown", "address", clientAddr)
			return
		default:
		}

		msg, err := smb1.ReadMessage(ctx, c.conn, c.server.config.MaxMessageSize, c.server.config.IdleTimeout, c)
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout() && ctx.Err() == nil:
				if c.busy() {
					continue
				}
				logger.Debug("SMB1 connection idle timeout", "address", clientAddr)
			case errors.Is(err, io.EOF):
				logger.Debug("SMB1 connection closed by client", "address", clientAddr)
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				logger.Debug("SMB1 connection cancelled", "address", clientAddr, "error", err)
			default:
				logger.Debug("Error reading SMB1 request", "address", clientAddr, "error", err)
			}
			return
		}

		if err := c.process(ctx, msg); err != nil {
			logger.Debug("Closing SMB1 connection", "address", clientAddr, "error", err)
			return
		}
	}
}

// busy reports whether the connection holds state the idle timeout must
// not discard.
func (c *Connection) busy() bool {
	return c.state.FileCount() > 0 || c.state.PendingCount() > 0
}

// process runs one request, converting a handler panic into a
// connection-fatal error.
func (c *Connection) process(ctx context.Context, msg []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in SMB1 request handler",
				"address", c.conn.RemoteAddr().String(),
				"error", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("%w: panic: %v", smb1.ErrFatal, r)
		}
	}()
	return smb1.ProcessRequest(ctx, c.server.handler, c.state, msg)
}

// handleConnectionClose releases the connection's SMB state and closes the
// socket.
func (c *Connection) handleConnectionClose() {
	clientAddr := c.conn.RemoteAddr().String()

	if r := recover(); r != nil {
		logger.Error("Panic in SMB1 connection handler", "address", clientAddr, "error", r)
	}

	// The serving context may already be cancelled; cleanup must still run.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c.server.handler.CloseConn(ctx, c.state)

	_ = c.conn.Close()
	logger.Debug("SMB1 connection closed", "address", clientAddr)
}

var _ handlers.Transport = (*Connection)(nil)
