package handlers

import (
	"context"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/transfer"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/internal/logger"
)

// Response overhead of the core READ: header, WordCount, 5 words,
// ByteCount, buffer format and data length.
const readCoreOverhead = types.HeaderSize + 1 + 10 + 2 + 3

// Response overhead of READ_ANDX up to the data: header, WordCount,
// 12 words, ByteCount and one pad byte.
const readAndXOverhead = types.HeaderSize + 1 + 24 + 2 + 1

// readableFile resolves fid to a handle opened for reading.
func readableFile(req *Request, fid uint16) (*OpenFile, types.Status) {
	f, status := lookupFile(req, fid)
	if status != types.StatusSuccess {
		return nil, status
	}
	if f.File == nil || !f.canRead() {
		return nil, types.StatusAccessDenied
	}
	return f, types.StatusSuccess
}

// readRange checks locks and clamps a read of count bytes at offset to the
// end of file. It returns the number of bytes the read returns.
func (h *Handler) readRange(req *Request, f *OpenFile, offset uint64, count int) (int, types.Status) {
	info, err := f.File.Stat()
	if err != nil {
		return 0, FSErrorToStatus(err)
	}
	if count > 0 {
		if err := h.Locks.CheckIO(f.lockFile(), f.owner(req.PID()), offset, uint64(count), false); err != nil {
			return 0, types.StatusFileLockConflict
		}
	}
	n := transfer.Clamp(offset, count, info.Size())
	f.setPosition(offset + uint64(n))
	return n, types.StatusSuccess
}

// attachData returns res with n file bytes at offset appended to its data
// block: streamed by the dispatcher when the command stands alone, read
// into memory inside a chain.
func (h *Handler) attachData(req *Request, res *HandlerResult, f *OpenFile, offset uint64, n int) *HandlerResult {
	if n == 0 {
		return res
	}
	if !req.Chained {
		res.Payload = &Payload{Source: f.File, Offset: offset, Count: n}
		return res
	}
	data, err := h.Transfer.ReadFull(f.File, offset, n)
	if err != nil {
		return NewErrorResult(FSErrorToStatus(err))
	}
	// The length fields already say n; a file that shrank since the
	// clamp reads back as zeros.
	res.Bytes = append(res.Bytes, data...)
	res.Bytes = append(res.Bytes, make([]byte, n-len(data))...)
	return res
}

// readCore builds the response shared by READ and LOCK_AND_READ.
func (h *Handler) readCore(ctx context.Context, req *Request, f *OpenFile, offset uint64, count int) *HandlerResult {
	count = min(count, int(h.MaxBufferSize)-readCoreOverhead)
	n, status := h.readRange(req, f, offset, count)
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}

	w := smbenc.NewWriter(10)
	w.WriteUint16(uint16(n))
	w.WriteZeros(8)

	b := smbenc.NewWriter(3 + n)
	b.WriteUint8(types.BufferFormatDataBlock)
	b.WriteUint16(uint16(n))

	logger.DebugCtx(ctx, "READ: range",
		logger.KeyFID, f.FID,
		logger.KeyOffset, offset,
		logger.KeyCount, count,
		logger.KeyBytesRead, n)
	return h.attachData(req, NewResult(types.StatusSuccess, w.Bytes(), b.Bytes()), f, offset, n)
}

// Read handles SMB_COM_READ (0x0A).
//
// **Request (5 words):** FID(2) CountOfBytesToRead(2) ReadOffsetInBytes(4) EstimateOfRemainingBytes(2)
//
// **Response (5 words):** CountOfBytesReturned(2) Reserved(8),
// Bytes: 0x01 CountOfBytesRead(2) Data
func (h *Handler) Read(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(5) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	wr := req.WordReader()
	f, status := readableFile(req, wr.ReadUint16())
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	count := int(wr.ReadUint16())
	offset := f.resolveOffset(wr.ReadUint32())
	return h.readCore(ctx, req, f, offset, count)
}

// LockAndRead handles SMB_COM_LOCK_AND_READ (0x13): an exclusive lock on
// the range, then a READ. The lock stays when the read returns short.
func (h *Handler) LockAndRead(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(5) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	wr := req.WordReader()
	f, status := readableFile(req, wr.ReadUint16())
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	if f.Key == "" {
		return NewErrorResult(types.StatusInvalidDeviceRequest)
	}
	count := int(wr.ReadUint16())
	offset := f.resolveOffset(wr.ReadUint32())

	if err := h.lockRange(ctx, req, f, offset, uint64(count)); err != nil {
		return NewErrorResult(coreLockStatus(err))
	}
	return h.readCore(ctx, req, f, offset, count)
}

// ReadAndX handles SMB_COM_READ_ANDX (0x2E).
//
// **Request (10 or 12 words):**
//
//	AndX(4) FID(2) Offset(4) MaxCountOfBytesToReturn(2) MinCountOfBytesToReturn(2)
//	Timeout_or_MaxCountHigh(4) Remaining(2) [OffsetHigh(4)]
//
// **Response (12 words):**
//
//	AndX(4) Available(2) DataCompactionMode(2) Reserved(2) DataLength(2)
//	DataOffset(2) DataLengthHigh(2) Reserved(8)
//	Bytes: Pad(1) Data
func (h *Handler) ReadAndX(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(10, 12) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	wr := req.WordReader()
	wr.Skip(4)
	f, status := readableFile(req, wr.ReadUint16())
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	offLow := wr.ReadUint32()
	count := int(wr.ReadUint16())
	wr.Skip(2) // MinCount
	high := wr.ReadUint32()
	wr.Skip(2) // Remaining

	var offset uint64
	if req.WordCount() == 12 {
		offset = uint64(wr.ReadUint32())<<32 | uint64(offLow)
	} else {
		offset = f.resolveOffset(offLow)
	}

	limit := int(h.MaxBufferSize) - readAndXOverhead
	if req.Session != nil && req.Session.ClientCaps&types.CapLargeReadX != 0 {
		if high != 0xFFFFFFFF {
			count |= int(high&0xFFFF) << 16
		}
		limit = max(limit, int(h.MaxReadSize))
	}
	count = min(count, limit)

	n, status := h.readRange(req, f, offset, count)
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}

	w := andxWriter(12)
	w.WriteUint16(0) // Available
	w.WriteUint16(0) // DataCompactionMode
	w.WriteUint16(0)
	w.WriteUint16(uint16(n))
	w.WriteUint16(uint16(req.ReplyOffset + 1 + 24 + 2 + 1))
	w.WriteUint16(uint16(n >> 16))
	w.WriteZeros(8)

	logger.DebugCtx(ctx, "READ_ANDX: range",
		logger.KeyFID, f.FID,
		logger.KeyOffset, offset,
		logger.KeyCount, count,
		logger.KeyBytesRead, n)
	return h.attachData(req, NewResult(types.StatusSuccess, w.Bytes(), []byte{0}), f, offset, n)
}

// ReadRaw handles SMB_COM_READ_RAW (0x1A). The data goes out as a bare
// NetBIOS frame; any failure is reported as a zero-length frame.
//
// **Request (8 or 10 words):**
//
//	FID(2) Offset(4) MaxCountOfBytesToReturn(2) MinCountOfBytesToReturn(2)
//	Timeout(4) Reserved(2) [OffsetHigh(4)]
func (h *Handler) ReadRaw(ctx context.Context, req *Request) *HandlerResult {
	empty := &HandlerResult{Raw: true}
	if !req.hasWords(8, 10) {
		return empty
	}
	wr := req.WordReader()
	f, status := readableFile(req, wr.ReadUint16())
	if status != types.StatusSuccess {
		return empty
	}
	offLow := wr.ReadUint32()
	count := int(wr.ReadUint16())
	wr.Skip(2 + 4 + 2)

	offset := uint64(offLow)
	if req.WordCount() == 10 {
		offset |= uint64(wr.ReadUint32()) << 32
	}

	n, status := h.readRange(req, f, offset, count)
	if status != types.StatusSuccess {
		logger.DebugCtx(ctx, "READ_RAW: failed, sending empty frame", logger.KeyFID, f.FID, logger.KeyStatus, status.String())
		return empty
	}
	res := &HandlerResult{Raw: true}
	if r := h.attachData(req, res, f, offset, n); r.Raw {
		return r
	}
	return empty
}
