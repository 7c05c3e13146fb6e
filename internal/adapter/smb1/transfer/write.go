package transfer

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/marmos91/dittosmb/internal/logger"
)

// Target is a writable file.
type Target interface {
	io.WriterAt
	Truncate(size int64) error
	Sync() error
}

// WrapState tracks the 4 GiB epoch of a handle for commands that carry
// only a 32-bit offset. Once a write ends beyond 4 GiB, later 32-bit
// offsets are taken relative to the epoch that write ended in.
type WrapState struct {
	epoch uint32
}

// Resolve widens a 32-bit wire offset.
func (s *WrapState) Resolve(off uint32) uint64 {
	return uint64(s.epoch)<<32 | uint64(off)
}

// Observe records a completed write.
func (s *WrapState) Observe(offset uint64, n int) {
	end := offset + uint64(n)
	if end < offset {
		end = math.MaxUint64
	}
	s.epoch = uint32(end >> 32)
}

// WriteRequest describes one inbound write. Truncate makes a zero-length
// write set the file size to Offset.
type WriteRequest struct {
	Offset       uint64
	Data         []byte
	WriteThrough bool
	Truncate     bool
}

// Write applies req to f. A zero-length write is a no-op unless
// req.Truncate is set, in which case the file is truncated or extended with
// zeros to the offset.
func (e *Engine) Write(ctx context.Context, f Target, req WriteRequest) (int, error) {
	if req.Offset > math.MaxInt64 || uint64(len(req.Data)) > math.MaxInt64-req.Offset {
		return 0, fmt.Errorf("write offset %d out of range", req.Offset)
	}

	if len(req.Data) == 0 {
		if !req.Truncate {
			return 0, nil
		}
		if err := f.Truncate(int64(req.Offset)); err != nil {
			return 0, err
		}
		logger.DebugCtx(ctx, "WRITE: zero-length write set file size", logger.KeySize, req.Offset)
		return 0, e.sync(f, req.WriteThrough)
	}

	n, err := f.WriteAt(req.Data, int64(req.Offset))
	e.obs.BytesWritten(n)
	if err != nil {
		return n, err
	}
	return n, e.sync(f, req.WriteThrough)
}

func (e *Engine) sync(f Target, writeThrough bool) error {
	if !writeThrough {
		return nil
	}
	return f.Sync()
}
