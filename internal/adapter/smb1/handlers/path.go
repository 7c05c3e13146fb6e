package handlers

import (
	"context"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/pathname"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/access"
	"github.com/marmos91/dittosmb/pkg/vfs"
)

// resolvePath canonicalizes a wire path for tree's share and, on
// case-insensitive shares, maps it onto the names present on disk. With
// wildcards set, only the directory part is case-resolved and the final
// component is left as a mask.
func resolvePath(tree *TreeConnect, raw string, wildcards bool) (pathname.Result, types.Status) {
	share := tree.Share
	res, err := pathname.Canonicalize(raw, pathname.Options{Wildcards: wildcards, Posix: share.PosixPaths})
	if err != nil {
		return res, PathErrorToStatus(err)
	}
	if !share.PosixPaths {
		if _, stream := pathname.SplitStream(res.Path); stream != "" {
			return res, types.StatusObjectNameInvalid
		}
	}
	if share.CaseSensitive || res.Path == "" {
		return res, types.StatusSuccess
	}

	if res.HasWildcards {
		dir, mask := pathname.SplitDirMask(res.Path)
		dir, err = vfs.ResolveCase(share.FS, dir)
		res.Path = pathname.Join(dir, mask)
	} else {
		res.Path, err = vfs.ResolveCase(share.FS, res.Path)
	}
	if err != nil {
		return res, FSErrorToStatus(err)
	}
	return res, types.StatusSuccess
}

// diskTree rejects file-system commands on trees that have no file system
// (IPC$, and print shares for anything but spooling).
func diskTree(tree *TreeConnect) types.Status {
	if tree == nil {
		return types.StatusSMBBadTID
	}
	if tree.Share.IPC || tree.Share.FS == nil {
		return types.StatusAccessDenied
	}
	return types.StatusSuccess
}

// identity returns the user a request runs as.
func identity(req *Request) access.Identity {
	if req.Session == nil {
		return access.Identity{Guest: true}
	}
	return req.Session.Identity
}

// lookupFile resolves a FID of the request's connection. FID 0xFFFF names
// the file opened earlier in the same chain. The handle must belong to the
// request's tree and session.
func lookupFile(req *Request, fid uint16) (*OpenFile, types.Status) {
	if fid == noFID {
		fid = req.Chain.FID
	}
	f, ok := req.Conn.File(fid)
	if !ok {
		return nil, types.StatusInvalidHandle
	}
	if f.TID != req.Chain.TID || f.UID != req.Chain.UID {
		logger.Debug("SMB1: handle used from another tree or session",
			logger.KeyFID, fid,
			logger.KeyTID, req.Chain.TID,
			logger.KeyUID, req.Chain.UID)
		return nil, types.StatusInvalidHandle
	}
	return f, types.StatusSuccess
}

// releaseFile drops a handle's locks, oplock and share-mode entry, then
// closes it. Spool files are submitted to the print queue.
func (h *Handler) releaseFile(ctx context.Context, f *OpenFile) error {
	if f.Key != "" {
		h.Locks.ReleaseHandle(f.lockFile(), f.owner(f.PID))
		h.Oplocks.Release(f.oplockFile(), f.holder())
		h.Opens.Release(f)
	}

	var err error
	switch {
	case f.Job != nil:
		if h.Spooler != nil {
			err = h.Spooler.Submit(ctx, f.Job)
		}
	case f.File != nil:
		err = f.File.Close()
	}
	if err != nil {
		logger.WarnCtx(ctx, "SMB1: close failed", logger.KeyFID, f.FID, logger.KeyPath, f.Path, logger.KeyError, err)
	}
	h.updateGauges()
	return err
}
