package smb1

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/handlers"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/transfer"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/internal/logger"
)

// NetBIOS session service (RFC 1002) packet types.
const (
	nbssMessage          byte = 0x00
	nbssSessionRequest   byte = 0x81
	nbssPositiveResponse byte = 0x82
	nbssKeepAlive        byte = 0x85
)

// NBSSHeaderSize is the size of the NetBIOS session header.
const NBSSHeaderSize = 4

// MaxFrameLength is the largest payload a session header can describe.
const MaxFrameLength = 0xFFFFFF

// ErrFrameTooLarge is returned when a payload does not fit a session frame.
var ErrFrameTooLarge = errors.New("smb1: frame exceeds 24-bit length")

// AppendFrameHeader appends a session message header for an n-byte payload.
func AppendFrameHeader(dst []byte, n int) []byte {
	return append(dst, nbssMessage, byte(n>>16), byte(n>>8), byte(n))
}

// EncodeFrame returns msg prefixed with its session message header.
func EncodeFrame(msg []byte) ([]byte, error) {
	if len(msg) > MaxFrameLength {
		return nil, ErrFrameTooLarge
	}
	frame := make([]byte, 0, NBSSHeaderSize+len(msg))
	frame = AppendFrameHeader(frame, len(msg))
	return append(frame, msg...), nil
}

// ReadMessage reads the next SMB message from conn.
//
// Keepalives are skipped. A session request (sent by clients that connect
// on port 139) is answered with a positive response through t and reading
// continues. Any other frame type is an error.
//
// Parameters:
//   - ctx: context for cancellation
//   - conn: the TCP connection to read from
//   - maxMsgSize: maximum allowed message size
//   - readTimeout: deadline for the whole message (0 = no timeout)
//   - t: the connection's transport, for the session response
func ReadMessage(ctx context.Context, conn net.Conn, maxMsgSize int, readTimeout time.Duration, t handlers.Transport) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if readTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
	}

	var nbHeader [NBSSHeaderSize]byte
	var msgLen int
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if _, err := io.ReadFull(conn, nbHeader[:]); err != nil {
			return nil, err
		}
		msgLen = int(nbHeader[1])<<16 | int(nbHeader[2])<<8 | int(nbHeader[3])

		switch nbHeader[0] {
		case nbssMessage:
		case nbssKeepAlive:
			continue
		case nbssSessionRequest:
			// Called and calling names are not checked.
			if _, err := io.CopyN(io.Discard, conn, int64(msgLen)); err != nil {
				return nil, fmt.Errorf("read session request: %w", err)
			}
			logger.Debug("SMB1: NetBIOS session request accepted", logger.KeyClientIP, conn.RemoteAddr().String())
			err := t.Stream(func(w io.Writer, _ transfer.ZeroCopier) error {
				_, err := w.Write([]byte{nbssPositiveResponse, 0, 0, 0})
				return err
			})
			if err != nil {
				return nil, fmt.Errorf("send session response: %w", err)
			}
			continue
		default:
			return nil, fmt.Errorf("unsupported NetBIOS message type: 0x%02x", nbHeader[0])
		}
		break
	}

	if msgLen > maxMsgSize {
		return nil, fmt.Errorf("SMB message too large: %d bytes (max %d)", msgLen, maxMsgSize)
	}
	if msgLen < types.HeaderSize {
		return nil, fmt.Errorf("SMB message too small: %d bytes (need %d)", msgLen, types.HeaderSize)
	}

	message := make([]byte, msgLen)
	if _, err := io.ReadFull(conn, message); err != nil {
		return nil, fmt.Errorf("read SMB message: %w", err)
	}
	return message, nil
}
