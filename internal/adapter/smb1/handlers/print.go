package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/access"
	"github.com/marmos91/dittosmb/pkg/spool"
)

// Print queue entry status values.
const (
	queueEntryPrinting uint8 = 2
	queueEntryWaiting  uint8 = 3
)

// queueEntrySize is the size of one GET_PRINT_QUEUE entry.
const queueEntrySize = 28

// queueNameSize is the size of the null-padded owner name in an entry.
const queueNameSize = 16

// openSpool starts a print job on the request's print share and returns
// its handle.
func (h *Handler) openSpool(ctx context.Context, req *Request, title string) (*OpenFile, types.Status) {
	tree := req.Tree
	if tree == nil {
		return nil, types.StatusSMBBadTID
	}
	if !tree.Share.Printable {
		return nil, types.StatusAccessDenied
	}
	if h.Spooler == nil {
		return nil, types.StatusNotSupported
	}
	if i := strings.LastIndexAny(title, `\/`); i >= 0 {
		title = title[i+1:]
	}

	job, err := h.Spooler.Open(ctx, tree.Share.Name, title, identity(req).String())
	if err != nil {
		return nil, FSErrorToStatus(err)
	}

	f := &OpenFile{
		TID:      tree.TID,
		UID:      req.Chain.UID,
		PID:      req.PID(),
		Tree:     tree,
		Path:     title,
		Access:   access.ModeWrite,
		Job:      job,
		OpenedAt: time.Now(),
	}
	if err := req.Conn.addFile(f); err != nil {
		_ = h.Spooler.Cancel(ctx, job)
		return nil, types.StatusTooManyOpenedFiles
	}
	req.Chain.FID = f.FID

	logger.DebugCtx(ctx, "PRINT: job opened",
		logger.KeyShare, tree.Share.Name,
		logger.KeyFID, f.FID,
		"job", job.Number)
	return f, types.StatusSuccess
}

// writeSpool appends data to a print job.
func writeSpool(f *OpenFile, data []byte) (int, error) {
	off := f.Position()
	n, err := f.Job.File().WriteAt(data, int64(off))
	f.observeWrite(off, n)
	return n, err
}

// OpenPrintFile handles SMB_COM_OPEN_PRINT_FILE (0xC0).
//
// **Request (2 words):** SetupLength(2) Mode(2), Bytes: 0x04 Identifier
//
// **Response (1 word):** FID(2)
func (h *Handler) OpenPrintFile(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(2) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	title, err := req.readPath(req.ByteReader())
	if err != nil {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	f, status := h.openSpool(ctx, req, title)
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	w := smbenc.NewWriter(2)
	w.WriteUint16(f.FID)
	return NewResult(types.StatusSuccess, w.Bytes(), nil)
}

// WritePrintFile handles SMB_COM_WRITE_PRINT_FILE (0xC1): append data to a
// print job.
//
// **Request (1 word):** FID(2), Bytes: 0x01 DataLength(2) Data
func (h *Handler) WritePrintFile(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(1) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	f, status := lookupFile(req, req.WordReader().ReadUint16())
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	if f.Job == nil {
		return NewErrorResult(types.StatusInvalidDeviceRequest)
	}

	rd := req.ByteReader()
	rd.ExpectUint8(types.BufferFormatDataBlock)
	n := int(rd.ReadUint16())
	data := rd.ReadBytes(n)
	if rd.Err() != nil {
		return NewErrorResult(types.StatusInvalidParameter)
	}

	if _, err := writeSpool(f, data); err != nil {
		logger.WarnCtx(ctx, "PRINT: spool write failed", logger.KeyFID, f.FID, logger.KeyError, err)
		return NewErrorResult(FSErrorToStatus(err))
	}
	return emptyResult()
}

// ClosePrintFile handles SMB_COM_CLOSE_PRINT_FILE (0xC2): close the spool
// file and queue the job.
func (h *Handler) ClosePrintFile(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(1) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	fid := req.WordReader().ReadUint16()
	f, status := lookupFile(req, fid)
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	if f.Job == nil {
		return NewErrorResult(types.StatusInvalidDeviceRequest)
	}
	req.Conn.takeFile(f.FID)
	if err := h.releaseFile(ctx, f); err != nil {
		return NewErrorResult(FSErrorToStatus(err))
	}
	return emptyResult()
}

// GetPrintQueue handles SMB_COM_GET_PRINT_QUEUE (0xC3).
//
// **Request (2 words):** MaxCount(2) StartIndex(2)
//
// **Response (2 words):** Count(2) RestartIndex(2),
// Bytes: 0x01 DataLength(2) { Date(2) Time(2) Status(1) Job(2) Size(4) Reserved(1) Name(16) }
func (h *Handler) GetPrintQueue(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(2) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	wr := req.WordReader()
	maxCount := int(wr.ReadUint16())
	start := int(wr.ReadUint16())

	tree := req.Tree
	if tree == nil || !tree.Share.Printable {
		return NewErrorResult(types.StatusAccessDenied)
	}
	var jobs []spool.Job
	if h.Spooler != nil {
		var err error
		if jobs, err = h.Spooler.Queue(ctx, tree.Share.Name); err != nil {
			return NewErrorResult(FSErrorToStatus(err))
		}
	}

	if start > len(jobs) {
		start = len(jobs)
	}
	jobs = jobs[start:]
	if maxCount < len(jobs) {
		jobs = jobs[:maxCount]
	}
	// The entries must fit the client buffer.
	room := (int(h.MaxBufferSize) - types.HeaderSize - 1 - 4 - 2 - 3) / queueEntrySize
	if room < len(jobs) {
		jobs = jobs[:max(room, 0)]
	}

	entries := smbenc.NewWriter(len(jobs) * queueEntrySize)
	for i, j := range jobs {
		date, tm := types.TimeToDOS(j.Submitted)
		entries.WriteUint16(date)
		entries.WriteUint16(tm)
		st := queueEntryWaiting
		if i == 0 && start == 0 && j.Status == spool.StatusQueued {
			st = queueEntryPrinting
		}
		entries.WriteUint8(st)
		entries.WriteUint16(j.Number)
		entries.WriteUint32(clamp32(j.Size))
		entries.WriteUint8(0)
		entries.WriteFixedString(j.Owner, queueNameSize, 0)
	}

	w := smbenc.NewWriter(4)
	w.WriteUint16(uint16(len(jobs)))
	w.WriteUint16(uint16(start + len(jobs)))

	b := smbenc.NewWriter(3 + entries.Len())
	b.WriteUint8(types.BufferFormatDataBlock)
	b.WriteUint16(uint16(entries.Len()))
	b.WriteBytes(entries.Bytes())
	return NewResult(types.StatusSuccess, w.Bytes(), b.Bytes())
}
