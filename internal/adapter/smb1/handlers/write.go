package handlers

import (
	"context"
	"math"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/transfer"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/notify"
)

// writableFile resolves fid to a handle opened for writing.
func writableFile(req *Request, fid uint16) (*OpenFile, types.Status) {
	f, status := lookupFile(req, fid)
	if status != types.StatusSuccess {
		return nil, status
	}
	if !f.canWrite() {
		return nil, types.StatusAccessDenied
	}
	return f, types.StatusSuccess
}

// writeData writes w through f. Spool files append. A zero-length write on
// a disk file only changes the file size when w.Truncate is set.
func (h *Handler) writeData(ctx context.Context, req *Request, f *OpenFile, w transfer.WriteRequest) (int, types.Status) {
	offset, data := w.Offset, w.Data
	w.WriteThrough = w.WriteThrough || f.WriteThrough
	if len(data) == 0 && !w.Truncate {
		return 0, types.StatusSuccess
	}

	if f.Job != nil {
		n, err := writeSpool(f, data)
		if err != nil {
			return n, FSErrorToStatus(err)
		}
		return n, types.StatusSuccess
	}

	if len(data) > 0 {
		if err := h.Locks.CheckIO(f.lockFile(), f.owner(req.PID()), offset, uint64(len(data)), true); err != nil {
			return 0, types.StatusFileLockConflict
		}
	}

	n, err := h.Transfer.Write(ctx, f.File, w)
	if n > 0 || len(data) == 0 {
		f.observeWrite(offset, n)
		h.Oplocks.BreakLevelII(f.oplockFile(), f.holder())
		h.publish(req.Conn, notify.Modified, f.Tree.Share, f.Path, "")
	}
	if err != nil {
		logger.WarnCtx(ctx, "WRITE: failed", logger.KeyFID, f.FID, logger.KeyOffset, offset, logger.KeyError, err)
		return n, FSErrorToStatus(err)
	}

	logger.DebugCtx(ctx, "WRITE: range",
		logger.KeyFID, f.FID,
		logger.KeyOffset, offset,
		logger.KeyBytesWritten, n,
		logger.KeyWriteThrough, w.WriteThrough)
	return n, types.StatusSuccess
}

// readDataBlock reads a 0x01-prefixed data block of at most count bytes.
func readDataBlock(req *Request, count int) ([]byte, bool) {
	rd := req.ByteReader()
	rd.ExpectUint8(types.BufferFormatDataBlock)
	n := int(rd.ReadUint16())
	if n > count {
		n = count
	}
	data := rd.ReadBytes(n)
	return data, rd.Err() == nil && n == count
}

func countResult(n int) *HandlerResult {
	w := smbenc.NewWriter(2)
	w.WriteUint16(uint16(n))
	return NewResult(types.StatusSuccess, w.Bytes(), nil)
}

// Write handles SMB_COM_WRITE (0x0B). A count of zero truncates or extends
// the file to the offset.
//
// **Request (5 words):** FID(2) CountOfBytesToWrite(2) WriteOffsetInBytes(4) EstimateOfRemainingBytes(2),
// Bytes: 0x01 DataLength(2) Data
//
// **Response (1 word):** CountOfBytesWritten(2)
func (h *Handler) Write(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(5) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	wr := req.WordReader()
	f, status := writableFile(req, wr.ReadUint16())
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	count := int(wr.ReadUint16())
	offset := f.resolveOffset(wr.ReadUint32())

	data, ok := readDataBlock(req, count)
	if !ok {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	n, status := h.writeData(ctx, req, f, transfer.WriteRequest{Offset: offset, Data: data, Truncate: true})
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	return countResult(n)
}

// WriteAndUnlock handles SMB_COM_WRITE_AND_UNLOCK (0x14): a WRITE followed
// by the release of the same range.
func (h *Handler) WriteAndUnlock(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(5) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	wr := req.WordReader()
	f, status := writableFile(req, wr.ReadUint16())
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	if f.Key == "" {
		return NewErrorResult(types.StatusInvalidDeviceRequest)
	}
	count := int(wr.ReadUint16())
	offset := f.resolveOffset(wr.ReadUint32())

	data, ok := readDataBlock(req, count)
	if !ok {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	n, status := h.writeData(ctx, req, f, transfer.WriteRequest{Offset: offset, Data: data})
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	if count > 0 {
		if err := h.unlockRange(f, f.owner(req.PID()), offset, uint64(count)); err != nil {
			return NewErrorResult(types.StatusRangeNotLocked)
		}
	}
	return countResult(n)
}

// WriteAndClose handles SMB_COM_WRITE_AND_CLOSE (0x2C).
//
// **Request (6 or 12 words):** FID(2) CountOfBytesToWrite(2) WriteOffsetInBytes(4) LastWriteTime(4) [Reserved(12)],
// Bytes: Pad(1) Data
//
// **Response (1 word):** CountOfBytesWritten(2)
func (h *Handler) WriteAndClose(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(6, 12) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	wr := req.WordReader()
	f, status := writableFile(req, wr.ReadUint16())
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	count := int(wr.ReadUint16())
	offset := f.resolveOffset(wr.ReadUint32())
	mtime := wr.ReadUint32()

	rd := req.ByteReader()
	rd.Skip(1)
	data := rd.ReadBytes(count)
	if rd.Err() != nil {
		return NewErrorResult(types.StatusInvalidParameter)
	}

	n := 0
	if count > 0 {
		if n, status = h.writeData(ctx, req, f, transfer.WriteRequest{Offset: offset, Data: data}); status != types.StatusSuccess {
			return NewErrorResult(status)
		}
	}
	if status := h.closeFile(ctx, req, f, mtime); status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	return countResult(n)
}

// WriteRaw handles SMB_COM_WRITE_RAW (0x1D). Only the data carried in the
// request is accepted: it is written through, and the client is told to
// send anything further with standard writes.
//
// **Request (12 or 14 words):**
//
//	FID(2) CountOfBytes(2) Reserved(2) Offset(4) Timeout(4) WriteMode(2)
//	Reserved2(4) DataLength(2) DataOffset(2) [OffsetHigh(4)]
//
// **Response:** WRITE_COMPLETE (1 word): Count(2)
func (h *Handler) WriteRaw(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(12, 14) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	wr := req.WordReader()
	f, status := writableFile(req, wr.ReadUint16())
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	total := int(wr.ReadUint16())
	wr.Skip(2)
	offset := uint64(wr.ReadUint32())
	wr.Skip(4) // Timeout
	wr.Skip(2) // WriteMode
	wr.Skip(4)
	dataLen := int(wr.ReadUint16())
	dataOff := int(wr.ReadUint16())
	if req.WordCount() == 14 {
		offset |= uint64(wr.ReadUint32()) << 32
	}
	if dataOff+dataLen > len(req.Message) || dataOff < 0 {
		return NewErrorResult(types.StatusInvalidParameter)
	}

	n, status := h.writeData(ctx, req, f, transfer.WriteRequest{
		Offset:       offset,
		Data:         req.Message[dataOff : dataOff+dataLen],
		WriteThrough: true,
	})
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	if total > dataLen {
		logger.DebugCtx(ctx, "WRITE_RAW: raw phase refused",
			logger.KeyFID, f.FID,
			logger.KeyBytesWritten, n,
			logger.KeyCount, total)
		return NewErrorResult(types.DOSStatus(types.ErrSRV, types.ERRuseSTD))
	}

	res := countResult(n)
	res.Command = types.SMBWriteComplete
	return res
}

// WriteAndX handles SMB_COM_WRITE_ANDX (0x2F).
//
// **Request (12 or 14 words):**
//
//	AndX(4) FID(2) Offset(4) Timeout(4) WriteMode(2) Remaining(2)
//	DataLengthHigh(2) DataLength(2) DataOffset(2) [OffsetHigh(4)]
//
// **Response (6 words):**
//
//	AndX(4) Count(2) Available(2) CountHigh(2) Reserved(2)
func (h *Handler) WriteAndX(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(12, 14) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	wr := req.WordReader()
	wr.Skip(4)
	f, status := writableFile(req, wr.ReadUint16())
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	offLow := wr.ReadUint32()
	wr.Skip(4) // Timeout
	mode := wr.ReadUint16()
	wr.Skip(2) // Remaining
	lenHigh := int(wr.ReadUint16())
	dataLen := int(wr.ReadUint16())
	dataOff := int(wr.ReadUint16())

	var offset uint64
	if req.WordCount() == 14 {
		offset = uint64(wr.ReadUint32())<<32 | uint64(offLow)
	} else {
		offset = f.resolveOffset(offLow)
	}
	if req.Session != nil && req.Session.ClientCaps&types.CapLargeWriteX != 0 {
		dataLen |= lenHigh << 16
	}
	if dataOff < 0 || dataOff+dataLen > len(req.Message) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	if offset > math.MaxInt64 {
		return NewErrorResult(types.StatusInvalidParameter)
	}

	data := req.Message[dataOff : dataOff+dataLen]
	n, status := h.writeData(ctx, req, f, transfer.WriteRequest{
		Offset:       offset,
		Data:         data,
		WriteThrough: mode&types.WriteModeWriteThrough != 0,
	})
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}

	w := andxWriter(6)
	w.WriteUint16(uint16(n))
	w.WriteUint16(0xFFFF) // Available
	w.WriteUint16(uint16(n >> 16))
	w.WriteUint16(0)
	return NewResult(types.StatusSuccess, w.Bytes(), nil)
}
