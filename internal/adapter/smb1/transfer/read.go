package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"syscall"

	"github.com/marmos91/dittosmb/internal/logger"
)

var (
	// ErrZeroCopyUnsupported is returned by a ZeroCopier that cannot serve
	// the request at all; no payload byte has been written.
	ErrZeroCopyUnsupported = errors.New("transfer: zero-copy not supported")

	// ErrFatal marks a failure after the response header was committed.
	// The byte stream is desynchronized and the connection must close.
	ErrFatal = errors.New("transfer: connection-fatal failure")
)

// chunkSize is the buffer size of the explicit copy loop.
const chunkSize = 64 * 1024

// ZeroCopier streams file bytes straight to the connection.
type ZeroCopier interface {
	// SendFile sends up to count bytes of fd starting at offset and reports
	// how many were sent.
	SendFile(fd uintptr, offset int64, count int) (int, error)
}

// Source is a readable file, optionally backed by a host descriptor.
type Source interface {
	io.ReaderAt
	Fd() (uintptr, bool)
}

// Observer receives transfer events for metrics.
type Observer interface {
	ZeroCopyFallback(reason string)
	BytesRead(n int)
	BytesWritten(n int)
}

type nopObserver struct{}

func (nopObserver) ZeroCopyFallback(string) {}
func (nopObserver) BytesRead(int)           {}
func (nopObserver) BytesWritten(int)        {}

// Config configures an Engine.
type Config struct {
	// ZeroCopy permits the sendfile fast path.
	ZeroCopy bool
}

// Engine performs reads and writes for the SMB1 handlers.
type Engine struct {
	zeroCopy bool
	obs      Observer
	bufs     sync.Pool
}

// New creates an Engine. obs may be nil.
func New(cfg Config, obs Observer) *Engine {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Engine{
		zeroCopy: cfg.ZeroCopy,
		obs:      obs,
		bufs: sync.Pool{New: func() any {
			b := make([]byte, chunkSize)
			return &b
		}},
	}
}

// ZeroCopyEnabled reports whether the fast path is configured.
func (e *Engine) ZeroCopyEnabled() bool { return e.zeroCopy }

// Clamp returns how many bytes a read of count at offset can return from a
// file of size bytes.
func Clamp(offset uint64, count int, size int64) int {
	if size < 0 || offset >= uint64(size) || count <= 0 {
		return 0
	}
	if remaining := uint64(size) - offset; uint64(count) > remaining {
		return int(remaining)
	}
	return count
}

// ReadRequest describes one outbound read.
type ReadRequest struct {
	Source Source
	Offset uint64
	Count  int

	// Chained is set when the read is part of an AndX chain; the fast path
	// is never used then.
	Chained bool
}

// Send writes header(n) followed by exactly n payload bytes to w, where n
// is req.Count. zc may be nil when the connection cannot stream files.
//
// Returns the number of payload bytes taken from the file. Errors after the
// header was written wrap ErrFatal.
func (e *Engine) Send(ctx context.Context, w io.Writer, zc ZeroCopier, req ReadRequest, header func(n int) []byte) (int, error) {
	n := req.Count

	// Step 1: commit the header.
	if _, err := w.Write(header(n)); err != nil {
		return 0, fmt.Errorf("%w: header: %v", ErrFatal, err)
	}
	if n == 0 {
		return 0, nil
	}

	// Step 2: fast path.
	fd, hasFd := req.Source.Fd()
	if e.zeroCopy && zc != nil && hasFd && !req.Chained {
		sent, err := zc.SendFile(fd, int64(req.Offset), n)
		switch {
		case err == nil && sent == n:
			e.obs.BytesRead(n)
			return n, nil

		case errors.Is(err, ErrZeroCopyUnsupported) && sent == 0:
			e.obs.ZeroCopyFallback("unsupported")
			logger.DebugCtx(ctx, "READ: zero-copy unsupported, using buffered copy")
			return e.copyLoop(w, req.Source, req.Offset, n)

		case err == nil, isRecoverable(err):
			// Short transfer or interrupted: finish from where it stopped.
			e.obs.ZeroCopyFallback("short")
			logger.DebugCtx(ctx, "READ: zero-copy short transfer, continuing with copy loop",
				logger.KeyBytesRead, sent, logger.KeyCount, n)
			rest, err := e.copyLoop(w, req.Source, req.Offset+uint64(sent), n-sent)
			return sent + rest, err

		default:
			return sent, fmt.Errorf("%w: sendfile: %v", ErrFatal, err)
		}
	}

	// Step 3: buffered copy.
	return e.copyLoop(w, req.Source, req.Offset, n)
}

func isRecoverable(err error) bool {
	return errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN)
}

// copyLoop sends exactly n bytes of src starting at offset, zero-filling
// whatever the file cannot supply.
func (e *Engine) copyLoop(w io.Writer, src io.ReaderAt, offset uint64, n int) (int, error) {
	bp := e.bufs.Get().(*[]byte)
	defer e.bufs.Put(bp)
	buf := *bp

	total := 0
	eof := false
	for total < n {
		chunk := buf[:min(len(buf), n-total)]
		got := 0
		if !eof {
			var err error
			got, err = src.ReadAt(chunk, int64(offset)+int64(total))
			if err != nil {
				if !errors.Is(err, io.EOF) {
					logger.Warn("READ: read failed after header commit, zero-filling",
						logger.KeyOffset, offset+uint64(total), logger.KeyError, err)
				}
				eof = true
			}
		}
		clear(chunk[got:])
		if _, err := w.Write(chunk); err != nil {
			return total, fmt.Errorf("%w: payload: %v", ErrFatal, err)
		}
		total += len(chunk)
		e.obs.BytesRead(got)
	}
	return total, nil
}

// ReadFull reads up to n bytes at offset into a new buffer, stopping at end
// of file. It serves reads whose response is built in memory.
func (e *Engine) ReadFull(src io.ReaderAt, offset uint64, n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	got, err := src.ReadAt(buf, int64(offset))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	e.obs.BytesRead(got)
	return buf[:got], nil
}
