package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io/fs"
	"math"
	"os"
	"sync"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/dirscan"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/oplock"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/pathname"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/access"
	"github.com/marmos91/dittosmb/pkg/notify"
)

// handlerFunc is the signature shared by every command handler.
type handlerFunc func(ctx context.Context, req *Request) *HandlerResult

// existsAction is what an open does when the file already exists.
type existsAction uint8

const (
	existsFail existsAction = iota
	existsOpen
	existsTruncate
)

// Resource types reported by OPEN_ANDX.
const (
	resourceDisk    uint16 = 0x0000
	resourcePrinter uint16 = 0x0003
)

// maxTempAttempts bounds name collisions in CREATE_TEMPORARY.
const maxTempAttempts = 16

// openParams is an open-family request after decoding.
type openParams struct {
	raw        string
	accessMode uint16
	exists     existsAction
	create     bool
	attrs      uint16
	created    time.Time
	oplock     oplock.Level
}

// openOutcome is a successful open.
type openOutcome struct {
	file   *OpenFile
	info   fs.FileInfo
	attrs  uint16
	action uint16
	oplock oplock.Level
}

// decodeAccess splits an AccessMode field into the granted access, the
// deny mode and the write-through flag.
func decodeAccess(am uint16) (access.Mode, uint16, bool, bool) {
	var mode access.Mode
	switch am & types.AccessModeMask {
	case types.AccessRead:
		mode = access.ModeRead
	case types.AccessWrite:
		mode = access.ModeWrite
	case types.AccessReadWrite:
		mode = access.ModeRead | access.ModeWrite
	case types.AccessExecute:
		mode = access.ModeRead | access.ModeExecute
	default:
		return 0, 0, false, false
	}
	deny := am & types.SharingModeMask
	if deny > types.SharingDenyNone {
		return 0, 0, false, false
	}
	return mode, deny, am&types.AccessWriteThrough != 0, true
}

// requestedOplock reads the oplock request of a core open from the header
// flags.
func requestedOplock(req *Request) oplock.Level {
	switch {
	case req.Header.Flags&types.FlagsOplockNotifyAny != 0:
		return oplock.LevelBatch
	case req.Header.Flags&types.FlagsOplock != 0:
		return oplock.LevelExclusive
	}
	return oplock.LevelNone
}

// level2OK reports whether the session's client accepts level II oplocks.
func level2OK(req *Request) bool {
	return req.Session != nil && req.Session.ClientCaps&types.CapLevel2Oplocks != 0
}

// openFile runs the common open logic. It returns either an outcome or a
// result to send as is (an error, or a suspension while an oplock held by
// another client is broken). rerun is the calling handler, invoked again
// once the break completes.
func (h *Handler) openFile(ctx context.Context, req *Request, p openParams, rerun handlerFunc) (*openOutcome, *HandlerResult) {
	tree := req.Tree
	if tree.Share.Printable {
		f, status := h.openSpool(ctx, req, pathname.Base(p.raw))
		if status != types.StatusSuccess {
			return nil, NewErrorResult(status)
		}
		return &openOutcome{file: f, action: types.OpenActionCreated}, nil
	}
	if status := diskTree(tree); status != types.StatusSuccess {
		return nil, NewErrorResult(status)
	}

	res, status := resolvePath(tree, p.raw, false)
	if status != types.StatusSuccess {
		return nil, NewErrorResult(status)
	}
	path := res.Path
	if path == "" {
		return nil, NewErrorResult(types.StatusFileIsADirectory)
	}

	mode, deny, writeThrough, ok := decodeAccess(p.accessMode)
	if !ok {
		return nil, NewErrorResult(types.DOSStatus(types.ErrDOS, types.ERRbadaccess))
	}

	share := tree.Share
	fsys := share.FS

	// Step 1: decide what happens to the name.
	info, err := fsys.Stat(path)
	exists := err == nil
	switch {
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return nil, NewErrorResult(FSErrorToStatus(err))
	case err != nil && !p.create:
		return nil, NewErrorResult(statError(fsys, path, err))
	case err != nil:
		if st := missingStatus(fsys, path); st != types.StatusObjectNameNotFound {
			return nil, NewErrorResult(st)
		}
	case info.IsDir():
		return nil, NewErrorResult(types.StatusFileIsADirectory)
	case p.exists == existsFail:
		return nil, NewErrorResult(types.StatusObjectNameCollision)
	}

	truncate := exists && p.exists == existsTruncate
	checkMode := mode
	if truncate || !exists {
		checkMode |= access.ModeWrite
	}
	if err := h.Access.CheckOpen(ctx, identity(req), share.accessShare(), path, checkMode); err != nil {
		return nil, NewErrorResult(FSErrorToStatus(err))
	}
	if exists && checkMode&access.ModeWrite != 0 && info.Mode().Perm()&0o200 == 0 {
		return nil, NewErrorResult(types.StatusAccessDenied)
	}

	// Step 2: break exclusive oplocks held by other opens.
	key := fileKey(share, path)
	if exists {
		if done := h.Oplocks.BreakForOpen(oplock.FileID(key), oplock.Holder{ConnID: req.Conn.ID}, level2OK(req)); done != nil {
			if !req.CanSuspend() {
				return nil, NewErrorResult(types.StatusSharingViolation)
			}
			logger.DebugCtx(ctx, "OPEN: waiting for oplock break", logger.KeyPath, path)
			return nil, Suspend(h.deferOpen(ctx, req, done, rerun))
		}
	}

	// Step 3: claim the share mode, then open.
	f := &OpenFile{
		TID:          tree.TID,
		UID:          req.Chain.UID,
		PID:          req.PID(),
		Tree:         tree,
		Path:         path,
		Key:          key,
		Access:       mode,
		DenyMode:     deny,
		WriteThrough: writeThrough || share.StrictSync,
		OpenedAt:     time.Now(),
	}
	if err := h.Opens.Acquire(f); err != nil {
		return nil, NewErrorResult(types.StatusSharingViolation)
	}

	flag := os.O_RDONLY
	if mode&access.ModeWrite != 0 || truncate || !exists {
		flag = os.O_RDWR
	}
	switch {
	case !exists:
		flag |= os.O_CREATE | os.O_EXCL
	case truncate:
		flag |= os.O_TRUNC
	}
	file, err := fsys.OpenFile(path, flag, 0o666)
	if err != nil {
		h.Opens.Release(f)
		return nil, NewErrorResult(FSErrorToStatus(err))
	}
	f.File = file

	if err := req.Conn.addFile(f); err != nil {
		h.Opens.Release(f)
		_ = file.Close()
		return nil, NewErrorResult(types.StatusTooManyOpenedFiles)
	}
	req.Chain.FID = f.FID

	// Step 4: record creation side effects.
	action := types.OpenActionExisted
	switch {
	case !exists:
		action = types.OpenActionCreated
		h.initCreated(ctx, share, path, p.attrs, p.created)
		h.publish(req.Conn, notify.Created, share, path, "")
	case truncate:
		action = types.OpenActionTruncated
		h.publish(req.Conn, notify.Modified, share, path, "")
	}

	// Step 5: oplock.
	granted := oplock.LevelNone
	if share.Oplocks && p.oplock != oplock.LevelNone {
		granted = h.Oplocks.Grant(oplock.FileID(key), f.holder(), p.oplock, h.Opens.Count(key) > 1, level2OK(req))
	}

	out := &openOutcome{file: f, action: action, oplock: granted}
	if out.info, err = file.Stat(); err != nil {
		out.info = info
	}
	if out.info != nil {
		out.attrs, _ = dirscan.Attributes(ctx, h.Attrs, share.Name, path, out.info)
	}
	h.updateGauges()

	logger.DebugCtx(ctx, "OPEN: file opened",
		logger.KeyPath, path,
		logger.KeyFID, f.FID,
		"access", mode.String(),
		"action", action,
		logger.KeyOplock, granted.String())
	return out, nil
}

// initCreated applies the attributes and creation time of a new file.
func (h *Handler) initCreated(ctx context.Context, share *Share, path string, attrs uint16, created time.Time) {
	if settable := attrs & types.AttrSettable; settable != 0 {
		if err := h.Attrs.Set(ctx, share.Name, path, settable); err != nil {
			logger.WarnCtx(ctx, "OPEN: storing attributes failed", logger.KeyPath, path, logger.KeyError, err)
		}
		if settable&types.AttrReadOnly != 0 {
			_ = share.FS.Chmod(path, 0o444)
		}
	}
	if !created.IsZero() {
		_ = share.FS.Chtimes(path, created, created)
	}
}

// deferOpen parks an open until the oplock break signalled by done
// completes, then reruns the handler.
func (h *Handler) deferOpen(ctx context.Context, req *Request, done <-chan struct{}, rerun handlerFunc) *Continuation {
	cancelled := make(chan struct{})
	var once sync.Once

	cont := NewContinuation(req, func(err error) *HandlerResult {
		if err != nil {
			return NewErrorResult(types.StatusCancelled)
		}
		return rerun(ctx, req)
	}, func() {
		once.Do(func() { close(cancelled) })
	})

	go func() {
		select {
		case <-done:
			cont.Resume(nil)
		case <-cancelled:
			cont.Resume(context.Canceled)
		}
	}()
	return cont
}

// ============================================================================
// Core opens
// ============================================================================

// writeOpenCore builds the 7-word OPEN response.
func writeOpenCore(out *openOutcome, accessMode uint16) []byte {
	w := smbenc.NewWriter(14)
	w.WriteUint16(out.file.FID)
	w.WriteUint16(out.attrs)
	if out.info != nil {
		w.WriteUint32(types.TimeToUTime(out.info.ModTime()))
		w.WriteUint32(clamp32(out.info.Size()))
	} else {
		w.WriteUint32(0)
		w.WriteUint32(0)
	}
	w.WriteUint16(accessMode & (types.AccessModeMask | types.SharingModeMask))
	return w.Bytes()
}

func clamp32(n int64) uint32 {
	if n < 0 {
		return 0
	}
	if n > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}

// oplockFlags is the header flag reply for a core open.
func oplockFlags(l oplock.Level) uint8 {
	if l >= oplock.LevelExclusive {
		return types.FlagsOplock
	}
	return 0
}

// Open handles SMB_COM_OPEN (0x02): open an existing file.
//
// **Request (2 words):** AccessMode(2) SearchAttributes(2), Bytes: 0x04 FileName
//
// **Response (7 words):** FID(2) FileAttrs(2) LastModified(4) FileSize(4) AccessMode(2)
func (h *Handler) Open(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(2) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	am := req.WordReader().ReadUint16()
	raw, err := req.readPath(req.ByteReader())
	if err != nil {
		return NewErrorResult(types.StatusInvalidParameter)
	}

	out, res := h.openFile(ctx, req, openParams{
		raw:        raw,
		accessMode: am,
		exists:     existsOpen,
		oplock:     requestedOplock(req),
	}, h.Open)
	if res != nil {
		return res
	}
	result := NewResult(types.StatusSuccess, writeOpenCore(out, am), nil)
	result.Flags = oplockFlags(out.oplock)
	return result
}

// createParams decodes the common CREATE / CREATE_NEW words.
func createParams(req *Request, exists existsAction) (openParams, bool) {
	if !req.hasWords(3) {
		return openParams{}, false
	}
	wr := req.WordReader()
	attrs := wr.ReadUint16()
	ctime := wr.ReadUint32()
	raw, err := req.readPath(req.ByteReader())
	if err != nil {
		return openParams{}, false
	}
	p := openParams{
		raw:        raw,
		accessMode: types.AccessReadWrite | types.SharingCompat,
		exists:     exists,
		create:     true,
		attrs:      attrs,
		oplock:     requestedOplock(req),
	}
	if ctime != 0 && ctime != math.MaxUint32 {
		p.created = types.UTimeToTime(ctime)
	}
	return p, true
}

func (h *Handler) createCore(ctx context.Context, req *Request, exists existsAction, rerun handlerFunc) *HandlerResult {
	p, ok := createParams(req, exists)
	if !ok {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	out, res := h.openFile(ctx, req, p, rerun)
	if res != nil {
		return res
	}
	w := smbenc.NewWriter(2)
	w.WriteUint16(out.file.FID)
	result := NewResult(types.StatusSuccess, w.Bytes(), nil)
	result.Flags = oplockFlags(out.oplock)
	return result
}

// Create handles SMB_COM_CREATE (0x03): create a file, truncating an
// existing one.
//
// **Request (3 words):** FileAttributes(2) CreationTime(4), Bytes: 0x04 FileName
//
// **Response (1 word):** FID(2)
func (h *Handler) Create(ctx context.Context, req *Request) *HandlerResult {
	return h.createCore(ctx, req, existsTruncate, h.Create)
}

// CreateNew handles SMB_COM_CREATE_NEW (0x0F): like CREATE, but an existing
// file is an error.
func (h *Handler) CreateNew(ctx context.Context, req *Request) *HandlerResult {
	return h.createCore(ctx, req, existsFail, h.CreateNew)
}

// CreateTemporary handles SMB_COM_CREATE_TEMPORARY (0x0E): create a file
// with a server-chosen unique name inside the given directory. The file
// persists after close.
//
// **Request (3 words):** Reserved(2) CreationTime(4), Bytes: 0x04 DirectoryName
//
// **Response (1 word):** FID(2), Bytes: 0x04 FileName\0
func (h *Handler) CreateTemporary(ctx context.Context, req *Request) *HandlerResult {
	p, ok := createParams(req, existsFail)
	if !ok {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	if status := diskTree(req.Tree); status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	dir := p.raw
	p.attrs = 0
	p.oplock = oplock.LevelNone

	for range maxTempAttempts {
		name := tempName()
		p.raw = dir + `\` + name
		out, res := h.openFile(ctx, req, p, h.CreateTemporary)
		if res != nil {
			if res.Status == types.StatusObjectNameCollision {
				continue
			}
			return res
		}

		w := smbenc.NewWriter(2)
		w.WriteUint16(out.file.FID)
		b := req.ReplyBytes(1)
		b.WriteUint8(types.BufferFormatASCII)
		b.WriteString(name, req.Unicode())
		return NewResult(types.StatusSuccess, w.Bytes(), b.Bytes())
	}
	return NewErrorResult(types.StatusObjectNameCollision)
}

// tempName returns an 8.3 name for CREATE_TEMPORARY.
func tempName() string {
	var b [3]byte
	_, _ = rand.Read(b[:])
	return "TMP" + hex.EncodeToString(b[:])[:5] + ".TMP"
}

// ============================================================================
// OPEN_ANDX
// ============================================================================

// OpenAndX handles SMB_COM_OPEN_ANDX (0x2D).
//
// **Request (15 words):**
//
//	AndX(4) Flags(2) AccessMode(2) SearchAttrs(2) FileAttrs(2)
//	CreationTime(4) OpenMode(2) AllocationSize(4) Timeout(4) Reserved(4)
//	Bytes: FileName\0
//
// **Response (15 words):**
//
//	AndX(4) FID(2) FileAttrs(2) LastWriteTime(4) FileDataSize(4)
//	AccessRights(2) ResourceType(2) NMPipeStatus(2) OpenResults(2)
//	ServerFID(4) Reserved(2)
func (h *Handler) OpenAndX(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(15) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	wr := req.WordReader()
	wr.Skip(4)
	flags := wr.ReadUint16()
	am := wr.ReadUint16()
	wr.Skip(2) // SearchAttrs
	attrs := wr.ReadUint16()
	ctime := wr.ReadUint32()
	openMode := wr.ReadUint16()

	rd := req.ByteReader()
	raw := rd.ReadString(req.Unicode())
	if rd.Err() != nil {
		return NewErrorResult(types.StatusInvalidParameter)
	}

	p := openParams{
		raw:        raw,
		accessMode: am,
		create:     openMode&types.OpenFuncCreate != 0,
		attrs:      attrs,
	}
	switch openMode & types.OpenFuncExistsMask {
	case types.OpenFuncFailIfExists:
		p.exists = existsFail
	case types.OpenFuncOpenIfExists:
		p.exists = existsOpen
	case types.OpenFuncTruncate:
		p.exists = existsTruncate
	default:
		return NewErrorResult(types.StatusInvalidParameter)
	}
	if p.exists == existsFail && !p.create {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	switch {
	case flags&types.OpenXBatchOplock != 0:
		p.oplock = oplock.LevelBatch
	case flags&types.OpenXOplock != 0:
		p.oplock = oplock.LevelExclusive
	}
	if ctime != 0 && ctime != math.MaxUint32 {
		p.created = types.UTimeToTime(ctime)
	}

	out, res := h.openFile(ctx, req, p, h.OpenAndX)
	if res != nil {
		return res
	}

	results := out.action
	if out.oplock >= oplock.LevelExclusive {
		results |= types.OpenActionOplock
	}
	resource := resourceDisk
	if out.file.Job != nil {
		resource = resourcePrinter
	}

	w := andxWriter(15)
	w.WriteUint16(out.file.FID)
	w.WriteUint16(out.attrs)
	if out.info != nil {
		w.WriteUint32(types.TimeToUTime(out.info.ModTime()))
		w.WriteUint32(clamp32(out.info.Size()))
	} else {
		w.WriteUint32(0)
		w.WriteUint32(0)
	}
	w.WriteUint16(am & (types.AccessModeMask | types.SharingModeMask))
	w.WriteUint16(resource)
	w.WriteUint16(0) // NMPipeStatus
	w.WriteUint16(results)
	w.WriteUint32(0) // ServerFID
	w.WriteUint16(0)
	return NewResult(types.StatusSuccess, w.Bytes(), nil)
}
