package handlers

import (
	"context"
	"math"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/dirscan"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/notify"
)

// closeFile detaches f from its connection and releases it. A non-zero
// mtime is applied after the handle is closed.
func (h *Handler) closeFile(ctx context.Context, req *Request, f *OpenFile, mtime uint32) types.Status {
	req.Conn.takeFile(f.FID)
	err := h.releaseFile(ctx, f)

	if f.Job == nil && mtime != 0 && mtime != math.MaxUint32 && f.Tree.Share.FS != nil {
		t := types.UTimeToTime(mtime)
		if cerr := f.Tree.Share.FS.Chtimes(f.Path, t, t); cerr != nil {
			logger.DebugCtx(ctx, "CLOSE: cannot set modification time", logger.KeyPath, f.Path, logger.KeyError, cerr)
		} else {
			h.publish(req.Conn, notify.AttributesChanged, f.Tree.Share, f.Path, "")
		}
	}
	if err != nil {
		return FSErrorToStatus(err)
	}
	return types.StatusSuccess
}

// Close handles SMB_COM_CLOSE (0x04).
//
// **Request (3 words):** FID(2) LastTimeModified(4)
//
// **Response:** WordCount 0
func (h *Handler) Close(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(3) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	wr := req.WordReader()
	fid := wr.ReadUint16()
	mtime := wr.ReadUint32()

	f, status := lookupFile(req, fid)
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	if status := h.closeFile(ctx, req, f, mtime); status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	logger.DebugCtx(ctx, "CLOSE: handle closed", logger.KeyFID, f.FID, logger.KeyPath, f.Path)
	return emptyResult()
}

// Flush handles SMB_COM_FLUSH (0x05). FID 0xFFFF flushes every file the
// process has open on the connection.
func (h *Handler) Flush(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(1) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	fid := req.WordReader().ReadUint16()

	var files []*OpenFile
	if fid == noFID {
		pid := req.PID()
		files = req.Conn.filesWhere(func(f *OpenFile) bool { return f.PID == pid })
	} else {
		f, status := lookupFile(req, fid)
		if status != types.StatusSuccess {
			return NewErrorResult(status)
		}
		files = []*OpenFile{f}
	}

	for _, f := range files {
		if f.File == nil {
			continue
		}
		if err := f.File.Sync(); err != nil {
			logger.WarnCtx(ctx, "FLUSH: sync failed", logger.KeyFID, f.FID, logger.KeyError, err)
			return NewErrorResult(FSErrorToStatus(err))
		}
	}
	return emptyResult()
}

// ProcessExit handles SMB_COM_PROCESS_EXIT (0x11): every file, lock and
// search of the process is released.
func (h *Handler) ProcessExit(ctx context.Context, req *Request) *HandlerResult {
	c := req.Conn
	pid := req.PID()
	uid := req.Chain.UID

	files := c.takeFilesWhere(func(f *OpenFile) bool { return f.PID == pid && f.UID == uid })
	for _, f := range files {
		_ = h.releaseFile(ctx, f)
	}
	h.Cursors.RemoveWhere(func(o dirscan.CursorOwner) bool {
		return o.ConnID == c.ID && o.UID == uid && o.PID == pid
	})

	logger.DebugCtx(ctx, "PROCESS_EXIT: process resources released",
		logger.KeyPID, pid,
		"files", len(files))
	return emptyResult()
}
