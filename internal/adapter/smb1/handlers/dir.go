package handlers

import (
	"context"
	"errors"
	"io/fs"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/notify"
)

// CreateDirectory handles SMB_COM_CREATE_DIRECTORY (0x00).
//
// **Request:** Bytes: 0x04 DirectoryName
func (h *Handler) CreateDirectory(ctx context.Context, req *Request) *HandlerResult {
	raw, err := req.readPath(req.ByteReader())
	if err != nil {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	if status := diskTree(req.Tree); status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	res, status := resolvePath(req.Tree, raw, false)
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	if res.Path == "" {
		return NewErrorResult(types.StatusObjectNameCollision)
	}

	share := req.Tree.Share
	if err := h.Access.CheckWrite(ctx, identity(req), share.accessShare(), res.Path); err != nil {
		return NewErrorResult(FSErrorToStatus(err))
	}
	if err := share.FS.Mkdir(res.Path, permReadWriteDir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewErrorResult(types.StatusObjectPathNotFound)
		}
		return NewErrorResult(FSErrorToStatus(err))
	}
	h.publish(req.Conn, notify.DirCreated, share, res.Path, "")

	logger.DebugCtx(ctx, "CREATE_DIRECTORY: created", logger.KeyPath, res.Path)
	return emptyResult()
}

// DeleteDirectory handles SMB_COM_DELETE_DIRECTORY (0x01). The directory
// must be empty and nothing below it may be open.
//
// **Request:** Bytes: 0x04 DirectoryName
func (h *Handler) DeleteDirectory(ctx context.Context, req *Request) *HandlerResult {
	raw, err := req.readPath(req.ByteReader())
	if err != nil {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	path, info, status := statPath(req, raw)
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	if path == "" {
		return NewErrorResult(types.StatusAccessDenied)
	}
	if !info.IsDir() {
		return NewErrorResult(types.StatusNotADirectory)
	}

	share := req.Tree.Share
	if err := h.Access.CheckDelete(ctx, identity(req), share.accessShare(), path); err != nil {
		return NewErrorResult(FSErrorToStatus(err))
	}
	if h.Opens.OpenUnder(fileKey(share, path)) {
		return NewErrorResult(types.StatusSharingViolation)
	}
	if err := share.FS.Rmdir(path); err != nil {
		return NewErrorResult(FSErrorToStatus(err))
	}
	if err := h.Attrs.Delete(ctx, share.Name, path); err != nil {
		logger.WarnCtx(ctx, "DELETE_DIRECTORY: attribute cleanup failed", logger.KeyPath, path, logger.KeyError, err)
	}
	h.publish(req.Conn, notify.DirRemoved, share, path, "")

	logger.DebugCtx(ctx, "DELETE_DIRECTORY: removed", logger.KeyPath, path)
	return emptyResult()
}
