//go:build linux

package transfer

import (
	"errors"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// SocketCopier streams files into a TCP connection with sendfile(2).
type SocketCopier struct {
	conn syscall.Conn
}

// NewSocketCopier returns a ZeroCopier for c, or nil if c is not a socket
// that supports raw access.
func NewSocketCopier(c net.Conn) ZeroCopier {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return nil
	}
	if _, ok := c.(*net.TCPConn); !ok {
		return nil
	}
	return &SocketCopier{conn: sc}
}

func (s *SocketCopier) SendFile(fd uintptr, offset int64, count int) (int, error) {
	rc, err := s.conn.SyscallConn()
	if err != nil {
		return 0, ErrZeroCopyUnsupported
	}

	var (
		sent    int
		sendErr error
	)
	err = rc.Write(func(sock uintptr) bool {
		for sent < count {
			off := offset + int64(sent)
			n, err := unix.Sendfile(int(sock), int(fd), &off, count-sent)
			if n > 0 {
				sent += n
			}
			switch {
			case errors.Is(err, unix.EAGAIN):
				// Wait for the socket to drain.
				return false
			case errors.Is(err, unix.EINTR):
				continue
			case err != nil:
				sendErr = err
				return true
			case n == 0:
				// End of file.
				return true
			}
		}
		return true
	})
	if err != nil {
		return sent, err
	}
	if sendErr != nil && sent == 0 && isUnsupported(sendErr) {
		return 0, ErrZeroCopyUnsupported
	}
	return sent, sendErr
}

func isUnsupported(err error) bool {
	return errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOSYS) ||
		errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOTSOCK)
}
