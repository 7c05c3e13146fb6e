package handlers

import (
	"errors"
	"io/fs"
	"syscall"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/pathname"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/pkg/access"
	"github.com/marmos91/dittosmb/pkg/spool"
	"github.com/marmos91/dittosmb/pkg/vfs"
)

// FSErrorToStatus maps a filesystem or collaborator error to an NT status.
//
// Checks run from the most specific errno to the generic fs sentinels, so
// an ENOTDIR (which also satisfies fs.ErrNotExist on some platforms) is
// reported as a path error rather than a missing name.
func FSErrorToStatus(err error) types.Status {
	switch {
	case err == nil:
		return types.StatusSuccess
	case errors.Is(err, syscall.ENOTDIR):
		return types.StatusObjectPathNotFound
	case errors.Is(err, syscall.ENOTEMPTY):
		return types.StatusDirectoryNotEmpty
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EDQUOT):
		return types.StatusDiskFull
	case errors.Is(err, syscall.EISDIR):
		return types.StatusFileIsADirectory
	case errors.Is(err, syscall.EXDEV):
		return types.StatusNotSameDevice
	case errors.Is(err, syscall.EROFS):
		return types.StatusMediaWriteProtected
	case errors.Is(err, syscall.ENAMETOOLONG):
		return types.StatusObjectNameInvalid
	case errors.Is(err, syscall.EMFILE), errors.Is(err, syscall.ENFILE):
		return types.StatusTooManyOpenedFiles
	case errors.Is(err, syscall.EBUSY), errors.Is(err, syscall.ETXTBSY):
		return types.StatusSharingViolation
	case errors.Is(err, syscall.ELOOP):
		return types.StatusObjectPathNotFound
	case errors.Is(err, access.ErrWriteProtected):
		return types.StatusMediaWriteProtected
	case errors.Is(err, access.ErrAccessDenied):
		return types.StatusAccessDenied
	case errors.Is(err, access.ErrLogonFailure):
		return types.StatusLogonFailure
	case errors.Is(err, spool.ErrQueueFull):
		return types.StatusPrintQueueFull
	case errors.Is(err, vfs.ErrNotSupported):
		return types.StatusNotSupported
	case errors.Is(err, fs.ErrNotExist):
		return types.StatusObjectNameNotFound
	case errors.Is(err, fs.ErrExist):
		return types.StatusObjectNameCollision
	case errors.Is(err, fs.ErrPermission):
		return types.StatusAccessDenied
	case errors.Is(err, fs.ErrInvalid):
		return types.StatusInvalidParameter
	}
	return types.StatusInternalError
}

// PathErrorToStatus maps a canonicalization failure to an NT status.
func PathErrorToStatus(err error) types.Status {
	switch {
	case errors.Is(err, pathname.ErrPathSyntaxBad):
		return types.StatusObjectPathSyntaxBad
	case errors.Is(err, pathname.ErrObjectPathInvalid):
		return types.StatusObjectPathNotFound
	case errors.Is(err, pathname.ErrNameInvalid):
		return types.StatusObjectNameInvalid
	}
	return types.StatusObjectNameInvalid
}

// missingStatus picks between a missing final component and a missing
// parent directory for a path that does not exist.
func missingStatus(fsys vfs.FS, p string) types.Status {
	dir := pathname.Dir(p)
	if dir == "" {
		return types.StatusObjectNameNotFound
	}
	info, err := fsys.Stat(dir)
	if err != nil || !info.IsDir() {
		return types.StatusObjectPathNotFound
	}
	return types.StatusObjectNameNotFound
}

// statError maps a Stat failure on p, refining ENOENT with missingStatus.
func statError(fsys vfs.FS, p string, err error) types.Status {
	if errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
		return missingStatus(fsys, p)
	}
	return FSErrorToStatus(err)
}
