package handlers

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/dirscan"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/pathname"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/wildcard"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/access"
	"github.com/marmos91/dittosmb/pkg/notify"
	"github.com/marmos91/dittosmb/pkg/vfs"
)

// NT_RENAME information levels.
const (
	ntRenameHardLink uint16 = 0x0103
	ntRenameRename   uint16 = 0x0104
	ntRenameCopy     uint16 = 0x0105
)

// COPY flags.
const (
	copyTargetFile uint16 = 0x0001
	copyTargetDir  uint16 = 0x0002
	copyTree       uint16 = 0x0020
)

// sourceFile is one file selected by forEachMatch.
type sourceFile struct {
	Path  string
	Name  string
	Info  fs.FileInfo
	Attrs uint16
}

// forEachMatch runs op on every file named by raw, whose final component
// may be a wildcard mask filtered by the search attributes. A plain name
// runs op once. Per-file failures are skipped; the command fails only when
// nothing succeeded, with the first failure or NO_SUCH_FILE when nothing
// matched.
func (h *Handler) forEachMatch(ctx context.Context, req *Request, raw string, search uint16, op func(src sourceFile) types.Status) (int, types.Status) {
	tree := req.Tree
	if status := diskTree(tree); status != types.StatusSuccess {
		return 0, status
	}
	res, status := resolvePath(tree, raw, true)
	if status != types.StatusSuccess {
		return 0, status
	}
	share := tree.Share
	fsys := share.FS

	if !res.HasWildcards {
		if res.Path == "" {
			return 0, types.StatusAccessDenied
		}
		info, err := fsys.Stat(res.Path)
		if err != nil {
			return 0, statError(fsys, res.Path, err)
		}
		attrs, _ := dirscan.Attributes(ctx, h.Attrs, share.Name, res.Path, info)
		if !dirscan.Visible(attrs, search|types.AttrDirectory) {
			return 0, types.StatusNoSuchFile
		}
		if st := op(sourceFile{Path: res.Path, Name: pathname.Base(res.Path), Info: info, Attrs: attrs}); st != types.StatusSuccess {
			return 0, st
		}
		return 1, types.StatusSuccess
	}

	dir, mask := pathname.SplitDirMask(res.Path)
	scanner, err := dirscan.Open(fsys, dir, mask, search, dirscan.Options{
		Share:         share.Name,
		CaseSensitive: share.CaseSensitive,
		Attrs:         h.Attrs,
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, types.StatusObjectPathNotFound
		}
		return 0, FSErrorToStatus(err)
	}

	count, first := 0, types.StatusSuccess
	for {
		e, ok, err := scanner.Next(ctx)
		if err != nil {
			if first == types.StatusSuccess {
				first = FSErrorToStatus(err)
			}
			break
		}
		if !ok {
			break
		}
		st := op(sourceFile{Path: e.Path(dir), Name: e.Name, Info: e.Info, Attrs: e.Attrs})
		if st == types.StatusSuccess {
			count++
			continue
		}
		logger.DebugCtx(ctx, "SMB1: skipping entry", logger.KeyPath, e.Path(dir), logger.KeyStatus, st.String())
		if first == types.StatusSuccess {
			first = st
		}
	}

	logger.DebugCtx(ctx, "SMB1: wildcard operation finished",
		logger.KeyMask, mask,
		logger.KeyMatched, count)
	if count == 0 {
		if first == types.StatusSuccess {
			first = types.StatusNoSuchFile
		}
		return 0, first
	}
	return count, types.StatusSuccess
}

// target is a resolved destination: a canonical path whose final component
// keeps the client's spelling, possibly a mask.
type target struct {
	tree *TreeConnect
	path string
	mask bool
}

// resolveTarget canonicalizes a destination path. Only the directory part
// is case-resolved so a rename can change the case of a name.
func resolveTarget(tree *TreeConnect, raw string) (target, types.Status) {
	share := tree.Share
	res, err := pathname.Canonicalize(raw, pathname.Options{Wildcards: true, Posix: share.PosixPaths})
	if err != nil {
		return target{}, PathErrorToStatus(err)
	}
	if res.Path == "" {
		return target{}, types.StatusObjectNameInvalid
	}
	if !share.PosixPaths {
		if _, stream := pathname.SplitStream(res.Path); stream != "" {
			return target{}, types.StatusObjectNameInvalid
		}
	}
	dir, name := pathname.SplitDirMask(res.Path)
	if !share.CaseSensitive && dir != "" {
		if dir, err = vfs.ResolveCase(share.FS, dir); err != nil {
			return target{}, types.StatusObjectPathNotFound
		}
	}
	return target{tree: tree, path: pathname.Join(dir, name), mask: res.HasWildcards}, types.StatusSuccess
}

// For returns the destination of src.
func (t target) For(src sourceFile) string {
	if !t.mask {
		return t.path
	}
	dir, mask := pathname.SplitDirMask(t.path)
	return pathname.Join(dir, wildcard.Substitute(src.Name, mask))
}

// readPair reads the two buffer-format-prefixed paths of RENAME, COPY and
// NT_RENAME.
func readPair(req *Request) (string, string, bool) {
	rd := req.ByteReader()
	oldName, err := req.readPath(rd)
	if err != nil {
		return "", "", false
	}
	newName, err := req.readPath(rd)
	if err != nil {
		return "", "", false
	}
	return oldName, newName, true
}

// ============================================================================
// DELETE
// ============================================================================

// deleteFile removes one file.
func (h *Handler) deleteFile(ctx context.Context, req *Request, src sourceFile) types.Status {
	share := req.Tree.Share
	switch {
	case src.Info.IsDir():
		return types.StatusFileIsADirectory
	case src.Attrs&types.AttrReadOnly != 0:
		return types.StatusCannotDelete
	}
	if err := h.Access.CheckDelete(ctx, identity(req), share.accessShare(), src.Path); err != nil {
		return FSErrorToStatus(err)
	}
	if h.Opens.Count(fileKey(share, src.Path)) > 0 {
		return types.StatusSharingViolation
	}
	if err := share.FS.Remove(src.Path); err != nil {
		return FSErrorToStatus(err)
	}
	if err := h.Attrs.Delete(ctx, share.Name, src.Path); err != nil {
		logger.WarnCtx(ctx, "DELETE: attribute cleanup failed", logger.KeyPath, src.Path, logger.KeyError, err)
	}
	h.publish(req.Conn, notify.Removed, share, src.Path, "")
	return types.StatusSuccess
}

// Delete handles SMB_COM_DELETE (0x06).
//
// **Request (1 word):** SearchAttributes(2), Bytes: 0x04 FileName (may be a mask)
func (h *Handler) Delete(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(1) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	search := req.WordReader().ReadUint16()
	raw, err := req.readPath(req.ByteReader())
	if err != nil {
		return NewErrorResult(types.StatusInvalidParameter)
	}

	n, status := h.forEachMatch(ctx, req, raw, search, func(src sourceFile) types.Status {
		return h.deleteFile(ctx, req, src)
	})
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	logger.DebugCtx(ctx, "DELETE: files removed", logger.KeyMatched, n)
	return emptyResult()
}

// ============================================================================
// RENAME / NT_RENAME
// ============================================================================

// renameFile moves src to dst within the request's share.
func (h *Handler) renameFile(ctx context.Context, req *Request, src sourceFile, dst string) types.Status {
	share := req.Tree.Share
	fsys := share.FS
	if dst == src.Path {
		return types.StatusSuccess
	}
	id := identity(req)
	if err := h.Access.CheckDelete(ctx, id, share.accessShare(), src.Path); err != nil {
		return FSErrorToStatus(err)
	}
	if err := h.Access.CheckWrite(ctx, id, share.accessShare(), dst); err != nil {
		return FSErrorToStatus(err)
	}
	if h.Opens.OpenUnder(fileKey(share, src.Path)) {
		return types.StatusSharingViolation
	}
	caseOnly := wildcard.EqualFold(dst, src.Path, share.CaseSensitive)
	if _, err := fsys.Lstat(dst); err == nil && !caseOnly {
		return types.StatusObjectNameCollision
	}
	if err := fsys.Rename(src.Path, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.StatusObjectPathNotFound
		}
		return FSErrorToStatus(err)
	}
	if err := h.Attrs.Rename(ctx, share.Name, src.Path, dst); err != nil {
		logger.WarnCtx(ctx, "RENAME: attribute move failed", logger.KeyOldPath, src.Path, logger.KeyNewPath, dst, logger.KeyError, err)
	}
	h.publish(req.Conn, notify.Renamed, share, dst, src.Path)

	logger.DebugCtx(ctx, "RENAME: renamed", logger.KeyOldPath, src.Path, logger.KeyNewPath, dst)
	return types.StatusSuccess
}

// Rename handles SMB_COM_RENAME (0x07). Both names may be masks; each
// matching source is renamed to the destination mask applied to its name.
//
// **Request (1 word):** SearchAttributes(2), Bytes: 0x04 OldFileName 0x04 NewFileName
func (h *Handler) Rename(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(1) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	search := req.WordReader().ReadUint16()
	oldName, newName, ok := readPair(req)
	if !ok {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	if status := diskTree(req.Tree); status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	dst, status := resolveTarget(req.Tree, newName)
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}

	_, status = h.forEachMatch(ctx, req, oldName, search, func(src sourceFile) types.Status {
		return h.renameFile(ctx, req, src, dst.For(src))
	})
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	return emptyResult()
}

// NTRename handles SMB_COM_NT_RENAME (0xA5): rename, hard link or copy of a
// single file. Wildcards are not accepted.
//
// **Request (4 words):** SearchAttributes(2) InformationLevel(2) ClusterCount(4),
// Bytes: 0x04 OldFileName 0x04 NewFileName
func (h *Handler) NTRename(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(4) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	wr := req.WordReader()
	search := wr.ReadUint16()
	level := wr.ReadUint16()

	oldName, newName, ok := readPair(req)
	if !ok {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	if status := diskTree(req.Tree); status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	if pathname.HasWildcards(oldName) || pathname.HasWildcards(newName) {
		return NewErrorResult(types.StatusObjectPathSyntaxBad)
	}
	dst, status := resolveTarget(req.Tree, newName)
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}

	var op func(src sourceFile) types.Status
	switch level {
	case ntRenameRename:
		op = func(src sourceFile) types.Status { return h.renameFile(ctx, req, src, dst.path) }
	case ntRenameHardLink:
		op = func(src sourceFile) types.Status { return h.linkFile(ctx, req, src, dst.path) }
	case ntRenameCopy:
		op = func(src sourceFile) types.Status {
			return h.copyFile(ctx, req, src, dst.tree, dst.path, existsFail, true)
		}
	default:
		return NewErrorResult(types.StatusInvalidParameter)
	}

	if _, status := h.forEachMatch(ctx, req, oldName, search, op); status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	return emptyResult()
}

// linkFile creates a hard link dst to src.
func (h *Handler) linkFile(ctx context.Context, req *Request, src sourceFile, dst string) types.Status {
	share := req.Tree.Share
	if src.Info.IsDir() {
		return types.StatusFileIsADirectory
	}
	if err := h.Access.CheckWrite(ctx, identity(req), share.accessShare(), dst); err != nil {
		return FSErrorToStatus(err)
	}
	if _, err := share.FS.Lstat(dst); err == nil {
		return types.StatusObjectNameCollision
	}
	if err := share.FS.Link(src.Path, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.StatusObjectPathNotFound
		}
		return FSErrorToStatus(err)
	}
	h.publish(req.Conn, notify.Created, share, dst, "")
	return types.StatusSuccess
}

// ============================================================================
// COPY
// ============================================================================

// copyFile copies src into dst on dstTree. exists and create follow the
// OPEN_ANDX OpenFunction: fail, append or truncate an existing target, and
// whether a missing target is created.
func (h *Handler) copyFile(ctx context.Context, req *Request, src sourceFile, dstTree *TreeConnect, dst string, exists existsAction, create bool) types.Status {
	srcShare := req.Tree.Share
	dstShare := dstTree.Share
	if src.Info.IsDir() {
		return types.StatusFileIsADirectory
	}
	if srcShare == dstShare && dst == src.Path {
		return types.StatusObjectNameCollision
	}

	id := identity(req)
	if err := h.Access.CheckOpen(ctx, id, srcShare.accessShare(), src.Path, access.ModeRead); err != nil {
		return FSErrorToStatus(err)
	}
	if err := h.Access.CheckWrite(ctx, id, dstShare.accessShare(), dst); err != nil {
		return FSErrorToStatus(err)
	}
	if h.Opens.Count(fileKey(dstShare, dst)) > 0 {
		return types.StatusSharingViolation
	}

	flag := os.O_RDWR
	info, err := dstShare.FS.Stat(dst)
	switch {
	case err == nil && info.IsDir():
		return types.StatusFileIsADirectory
	case err == nil && exists == existsFail:
		return types.StatusObjectNameCollision
	case err == nil && exists == existsTruncate:
		flag |= os.O_TRUNC
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return FSErrorToStatus(err)
	case err != nil && !create:
		return types.StatusObjectNameNotFound
	case err != nil:
		flag |= os.O_CREATE | os.O_EXCL
	}

	in, err := srcShare.FS.OpenFile(src.Path, os.O_RDONLY, 0)
	if err != nil {
		return FSErrorToStatus(err)
	}
	defer in.Close()

	out, err := dstShare.FS.OpenFile(dst, flag, 0o666)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.StatusObjectPathNotFound
		}
		return FSErrorToStatus(err)
	}
	var start int64
	if exists == existsOpen {
		if st, err := out.Stat(); err == nil {
			start = st.Size()
		}
	}

	n, err := io.Copy(io.NewOffsetWriter(out, start), io.NewSectionReader(in, 0, src.Info.Size()))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		logger.WarnCtx(ctx, "COPY: failed", logger.KeyOldPath, src.Path, logger.KeyNewPath, dst, logger.KeyError, err)
		return FSErrorToStatus(err)
	}

	if start == 0 {
		mtime := src.Info.ModTime()
		_ = dstShare.FS.Chtimes(dst, mtime, mtime)
	}
	h.publish(req.Conn, notify.Created, dstShare, dst, "")
	logger.DebugCtx(ctx, "COPY: copied",
		logger.KeyOldPath, src.Path,
		logger.KeyNewPath, dst,
		logger.KeySize, n)
	return types.StatusSuccess
}

// Copy handles SMB_COM_COPY (0x29). The target may live on another tree
// of the same session (TID2). A target naming an existing directory
// receives the source names.
//
// **Request (3 words):** TID2(2) OpenFunction(2) Flags(2),
// Bytes: 0x04 SourceFileName 0x04 DestinationFileName
//
// **Response (1 word):** Count(2), Bytes: 0x04 ErrorFileName
func (h *Handler) Copy(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(3) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	wr := req.WordReader()
	tid2 := wr.ReadUint16()
	openFunc := wr.ReadUint16()
	flags := wr.ReadUint16()

	oldName, newName, ok := readPair(req)
	if !ok {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	if flags&copyTree != 0 {
		return NewErrorResult(types.StatusNotSupported)
	}

	dstTree := req.Tree
	if tid2 != noFID && tid2 != req.Chain.TID {
		t, ok := req.Conn.Tree(tid2)
		if !ok || t.UID != req.Chain.UID {
			return NewErrorResult(types.StatusSMBBadTID)
		}
		dstTree = t
	}
	if status := diskTree(dstTree); status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	if status := diskTree(req.Tree); status != types.StatusSuccess {
		return NewErrorResult(status)
	}

	var exists existsAction
	switch openFunc & types.OpenFuncExistsMask {
	case types.OpenFuncFailIfExists:
		exists = existsFail
	case types.OpenFuncOpenIfExists:
		exists = existsOpen
	case types.OpenFuncTruncate:
		exists = existsTruncate
	default:
		return NewErrorResult(types.StatusInvalidParameter)
	}
	create := openFunc&types.OpenFuncCreate != 0

	dst, status := resolveTarget(dstTree, newName)
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	intoDir := false
	if !dst.mask {
		if info, err := dstTree.Share.FS.Stat(dst.path); err == nil && info.IsDir() {
			intoDir = true
		}
	}
	switch {
	case flags&copyTargetDir != 0 && !intoDir:
		return NewErrorResult(types.StatusObjectPathNotFound)
	case flags&copyTargetFile != 0 && intoDir:
		return NewErrorResult(types.StatusFileIsADirectory)
	}

	n, status := h.forEachMatch(ctx, req, oldName, types.AttrHidden|types.AttrSystem, func(src sourceFile) types.Status {
		to := dst.For(src)
		if intoDir {
			to = pathname.Join(dst.path, src.Name)
		}
		return h.copyFile(ctx, req, src, dstTree, to, exists, create)
	})
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}

	w := smbenc.NewWriter(2)
	w.WriteUint16(uint16(n))
	b := req.ReplyBytes(1)
	b.WriteUint8(types.BufferFormatASCII)
	b.WriteString("", req.Unicode())
	return NewResult(types.StatusSuccess, w.Bytes(), b.Bytes())
}
