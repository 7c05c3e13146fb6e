package handlers

import (
	"context"
	"io/fs"
	"math"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/dirscan"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/notify"
)

// allocationUnit rounds file sizes to an allocation size.
const allocationUnit = 4096

// Disk geometry reported by QUERY_INFORMATION_DISK.
const (
	diskBlockSize        = 512
	maxBlocksPerUnit     = 0x8000
	maxDiskUnits         = 0xFFFF
	permReadOnlyFile     = 0o444
	permReadWriteFile    = 0o644
	permReadOnlyDir      = 0o555
	permReadWriteDir     = 0o755
	setInfoNoChange      = 0
	setInfoNoChangeUTime = math.MaxUint32
)

// statPath resolves raw on the request's disk tree and stats it.
func statPath(req *Request, raw string) (string, fs.FileInfo, types.Status) {
	if status := diskTree(req.Tree); status != types.StatusSuccess {
		return "", nil, status
	}
	res, status := resolvePath(req.Tree, raw, false)
	if status != types.StatusSuccess {
		return "", nil, status
	}
	fsys := req.Tree.Share.FS
	info, err := fsys.Stat(res.Path)
	if err != nil {
		return "", nil, statError(fsys, res.Path, err)
	}
	return res.Path, info, types.StatusSuccess
}

func fileSize(info fs.FileInfo) int64 {
	if info.IsDir() {
		return 0
	}
	return info.Size()
}

// setDOSAttributes stores the settable attribute bits of path and mirrors
// the read-only bit into the permission bits.
func (h *Handler) setDOSAttributes(ctx context.Context, share *Share, path string, info fs.FileInfo, attrs uint16) error {
	if err := h.Attrs.Set(ctx, share.Name, path, attrs&types.AttrSettable); err != nil {
		return err
	}
	perm := fs.FileMode(permReadWriteFile)
	switch {
	case info.IsDir() && attrs&types.AttrReadOnly != 0:
		perm = permReadOnlyDir
	case info.IsDir():
		perm = permReadWriteDir
	case attrs&types.AttrReadOnly != 0:
		perm = permReadOnlyFile
	}
	if info.Mode().Perm() == perm {
		return nil
	}
	return share.FS.Chmod(path, perm)
}

// QueryInformation handles SMB_COM_QUERY_INFORMATION (0x08).
//
// **Request:** Bytes: 0x04 FileName
//
// **Response (10 words):** FileAttributes(2) LastWriteTime(4) FileSize(4) Reserved(10)
func (h *Handler) QueryInformation(ctx context.Context, req *Request) *HandlerResult {
	raw, err := req.readPath(req.ByteReader())
	if err != nil {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	path, info, status := statPath(req, raw)
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	attrs, _ := dirscan.Attributes(ctx, h.Attrs, req.Tree.Share.Name, path, info)

	w := smbenc.NewWriter(20)
	w.WriteUint16(attrs)
	w.WriteUint32(types.TimeToUTime(info.ModTime()))
	w.WriteUint32(clamp32(fileSize(info)))
	w.WriteZeros(10)
	return NewResult(types.StatusSuccess, w.Bytes(), nil)
}

// SetInformation handles SMB_COM_SET_INFORMATION (0x09).
//
// **Request (8 words):** FileAttributes(2) LastWriteTime(4) Reserved(10),
// Bytes: 0x04 FileName
func (h *Handler) SetInformation(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(8) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	wr := req.WordReader()
	attrs := wr.ReadUint16()
	mtime := wr.ReadUint32()

	raw, err := req.readPath(req.ByteReader())
	if err != nil {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	path, info, status := statPath(req, raw)
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	share := req.Tree.Share
	if err := h.Access.CheckWrite(ctx, identity(req), share.accessShare(), path); err != nil {
		return NewErrorResult(FSErrorToStatus(err))
	}

	if err := h.setDOSAttributes(ctx, share, path, info, attrs); err != nil {
		return NewErrorResult(FSErrorToStatus(err))
	}
	if mtime != setInfoNoChange && mtime != setInfoNoChangeUTime {
		t := types.UTimeToTime(mtime)
		if err := share.FS.Chtimes(path, t, t); err != nil {
			return NewErrorResult(FSErrorToStatus(err))
		}
	}
	h.publish(req.Conn, notify.AttributesChanged, share, path, "")

	logger.DebugCtx(ctx, "SET_INFORMATION: attributes updated",
		logger.KeyPath, path,
		logger.KeyAttrs, attrs)
	return emptyResult()
}

// QueryInformation2 handles SMB_COM_QUERY_INFORMATION2 (0x23).
//
// **Request (1 word):** FID(2)
//
// **Response (11 words):**
//
//	CreateDate(2) CreateTime(2) LastAccessDate(2) LastAccessTime(2)
//	LastWriteDate(2) LastWriteTime(2) FileDataSize(4)
//	FileAllocationSize(4) FileAttributes(2)
func (h *Handler) QueryInformation2(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(1) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	f, status := lookupFile(req, req.WordReader().ReadUint16())
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	if f.File == nil {
		return NewErrorResult(types.StatusInvalidDeviceRequest)
	}
	info, err := f.File.Stat()
	if err != nil {
		return NewErrorResult(FSErrorToStatus(err))
	}
	attrs, _ := dirscan.Attributes(ctx, h.Attrs, f.Tree.Share.Name, f.Path, info)

	date, tm := types.TimeToDOS(info.ModTime())
	size := fileSize(info)
	alloc := (size + allocationUnit - 1) / allocationUnit * allocationUnit

	w := smbenc.NewWriter(22)
	for range 3 {
		w.WriteUint16(date)
		w.WriteUint16(tm)
	}
	w.WriteUint32(clamp32(size))
	w.WriteUint32(clamp32(alloc))
	w.WriteUint16(attrs)
	return NewResult(types.StatusSuccess, w.Bytes(), nil)
}

// SetInformation2 handles SMB_COM_SET_INFORMATION2 (0x22). A zero date and
// time pair leaves that timestamp unchanged.
//
// **Request (7 words):**
//
//	FID(2) CreateDate(2) CreateTime(2) LastAccessDate(2) LastAccessTime(2)
//	LastWriteDate(2) LastWriteTime(2)
func (h *Handler) SetInformation2(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(7) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	wr := req.WordReader()
	f, status := lookupFile(req, wr.ReadUint16())
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	if f.File == nil {
		return NewErrorResult(types.StatusInvalidDeviceRequest)
	}
	wr.Skip(4) // creation time is not stored
	aDate, aTime := wr.ReadUint16(), wr.ReadUint16()
	mDate, mTime := wr.ReadUint16(), wr.ReadUint16()

	if aDate == 0 && aTime == 0 && mDate == 0 && mTime == 0 {
		return emptyResult()
	}
	info, err := f.File.Stat()
	if err != nil {
		return NewErrorResult(FSErrorToStatus(err))
	}
	mtime := info.ModTime()
	if mDate != 0 || mTime != 0 {
		mtime = types.DOSToTime(mDate, mTime)
	}
	atime := mtime
	if aDate != 0 || aTime != 0 {
		atime = types.DOSToTime(aDate, aTime)
	}

	share := f.Tree.Share
	if err := share.FS.Chtimes(f.Path, atime, mtime); err != nil {
		return NewErrorResult(FSErrorToStatus(err))
	}
	h.publish(req.Conn, notify.AttributesChanged, share, f.Path, "")
	return emptyResult()
}

// CheckDirectory handles SMB_COM_CHECK_DIRECTORY (0x10): succeeds when the
// path names an existing directory.
func (h *Handler) CheckDirectory(ctx context.Context, req *Request) *HandlerResult {
	raw, err := req.readPath(req.ByteReader())
	if err != nil {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	path, info, status := statPath(req, raw)
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	if !info.IsDir() {
		logger.DebugCtx(ctx, "CHECK_DIRECTORY: not a directory", logger.KeyPath, path)
		return NewErrorResult(types.StatusNotADirectory)
	}
	return emptyResult()
}

// Seek handles SMB_COM_SEEK (0x12). A position before the start of the file
// is clamped to zero.
//
// **Request (4 words):** FID(2) Mode(2) Offset(4, signed)
//
// **Response (2 words):** Offset(4)
func (h *Handler) Seek(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(4) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	wr := req.WordReader()
	f, status := lookupFile(req, wr.ReadUint16())
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	mode := wr.ReadUint16()
	delta := int64(int32(wr.ReadUint32()))

	var base int64
	switch mode {
	case types.SeekFromStart:
	case types.SeekFromCurrent:
		base = int64(f.Position())
	case types.SeekFromEnd:
		if f.File == nil {
			return NewErrorResult(types.StatusInvalidDeviceRequest)
		}
		info, err := f.File.Stat()
		if err != nil {
			return NewErrorResult(FSErrorToStatus(err))
		}
		base = info.Size()
	default:
		return NewErrorResult(types.StatusInvalidParameter)
	}

	pos := max(base+delta, 0)
	f.setPosition(uint64(pos))

	w := smbenc.NewWriter(4)
	w.WriteUint32(clamp32(pos))
	return NewResult(types.StatusSuccess, w.Bytes(), nil)
}

// QueryInformationDisk handles SMB_COM_QUERY_INFORMATION_DISK (0x80).
// Capacity is reported in 512-byte blocks grouped into at most 65535
// allocation units; larger volumes are clamped.
//
// **Response (5 words):** TotalUnits(2) BlocksPerUnit(2) BlockSize(2) FreeUnits(2) Reserved(2)
func (h *Handler) QueryInformationDisk(ctx context.Context, req *Request) *HandlerResult {
	if status := diskTree(req.Tree); status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	usage, err := req.Tree.Share.FS.Statfs()
	if err != nil {
		logger.WarnCtx(ctx, "QUERY_INFORMATION_DISK: statfs failed", logger.KeyError, err)
		return NewErrorResult(FSErrorToStatus(err))
	}

	total, free := diskGeometry(usage.BlockSize, usage.TotalBlocks, usage.FreeBlocks)
	perUnit := uint64(1)
	for total/perUnit > maxDiskUnits && perUnit < maxBlocksPerUnit {
		perUnit *= 2
	}

	w := smbenc.NewWriter(10)
	w.WriteUint16(uint16(min(total/perUnit, maxDiskUnits)))
	w.WriteUint16(uint16(perUnit))
	w.WriteUint16(diskBlockSize)
	w.WriteUint16(uint16(min(free/perUnit, maxDiskUnits)))
	w.WriteUint16(0)
	return NewResult(types.StatusSuccess, w.Bytes(), nil)
}

// diskGeometry converts a volume's size to 512-byte blocks.
func diskGeometry(blockSize, totalBlocks, freeBlocks uint64) (total, free uint64) {
	if blockSize == 0 {
		return 0, 0
	}
	scale := func(n uint64) uint64 {
		if n > math.MaxUint64/blockSize {
			return math.MaxUint64 / diskBlockSize
		}
		return n * blockSize / diskBlockSize
	}
	return scale(totalBlocks), scale(freeBlocks)
}
