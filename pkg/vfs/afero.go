package vfs

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// AferoFS adapts an afero.Fs to FS.
type AferoFS struct {
	fs   afero.Fs
	root string // host root, empty for in-memory trees
}

// NewOsFS returns an FS rooted at the host directory root.
func NewOsFS(root string) *AferoFS {
	return &AferoFS{
		fs:   afero.NewBasePathFs(afero.NewOsFs(), root),
		root: root,
	}
}

// NewMemFS returns an empty in-memory FS.
func NewMemFS() *AferoFS {
	return &AferoFS{fs: afero.NewMemMapFs()}
}

// Afero exposes the underlying afero.Fs.
func (a *AferoFS) Afero() afero.Fs { return a.fs }

func abs(name string) string {
	return "/" + name
}

func (a *AferoFS) Stat(name string) (fs.FileInfo, error) {
	return a.fs.Stat(abs(name))
}

func (a *AferoFS) Lstat(name string) (fs.FileInfo, error) {
	if l, ok := a.fs.(afero.Lstater); ok {
		fi, _, err := l.LstatIfPossible(abs(name))
		return fi, err
	}
	return a.fs.Stat(abs(name))
}

func (a *AferoFS) OpenFile(name string, flag int, perm fs.FileMode) (File, error) {
	if flag&os.O_CREATE != 0 {
		// In-memory trees create missing parents implicitly.
		dir := path.Dir(abs(name))
		fi, err := a.fs.Stat(dir)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			return nil, &fs.PathError{Op: "open", Path: name, Err: syscall.ENOTDIR}
		}
	}
	f, err := a.fs.OpenFile(abs(name), flag, perm)
	if err != nil {
		return nil, err
	}
	return &aferoFile{File: f}, nil
}

func (a *AferoFS) ReadDir(name string) ([]fs.FileInfo, error) {
	return afero.ReadDir(a.fs, abs(name))
}

func (a *AferoFS) Mkdir(name string, perm fs.FileMode) error {
	if _, err := a.fs.Stat(path.Dir(abs(name))); err != nil {
		return err
	}
	return a.fs.Mkdir(abs(name), perm)
}

func (a *AferoFS) Rmdir(name string) error {
	fi, err := a.fs.Stat(abs(name))
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return &fs.PathError{Op: "rmdir", Path: name, Err: syscall.ENOTDIR}
	}
	entries, err := afero.ReadDir(a.fs, abs(name))
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return &fs.PathError{Op: "rmdir", Path: name, Err: syscall.ENOTEMPTY}
	}
	return a.fs.Remove(abs(name))
}

func (a *AferoFS) Remove(name string) error {
	fi, err := a.Lstat(name)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return &fs.PathError{Op: "remove", Path: name, Err: syscall.EISDIR}
	}
	return a.fs.Remove(abs(name))
}

func (a *AferoFS) Rename(oldname, newname string) error {
	return a.fs.Rename(abs(oldname), abs(newname))
}

func (a *AferoFS) Chtimes(name string, atime, mtime time.Time) error {
	return a.fs.Chtimes(abs(name), atime, mtime)
}

func (a *AferoFS) Chmod(name string, mode fs.FileMode) error {
	return a.fs.Chmod(abs(name), mode)
}

func (a *AferoFS) Link(oldname, newname string) error {
	oldReal, err := a.RealPath(oldname)
	if err != nil {
		return err
	}
	newReal, err := a.RealPath(newname)
	if err != nil {
		return err
	}
	return os.Link(oldReal, newReal)
}

func (a *AferoFS) RealPath(name string) (string, error) {
	bp, ok := a.fs.(*afero.BasePathFs)
	if !ok {
		return "", ErrNotSupported
	}
	return bp.RealPath(abs(name))
}

func (a *AferoFS) Statfs() (Usage, error) {
	if a.root == "" {
		// Nominal figures for in-memory trees.
		return Usage{BlockSize: 4096, TotalBlocks: 1 << 20, FreeBlocks: 1 << 19}, nil
	}
	var st unix.Statfs_t
	if err := unix.Statfs(a.root, &st); err != nil {
		return Usage{}, fmt.Errorf("statfs %s: %w", a.root, err)
	}
	return Usage{
		BlockSize:   uint64(st.Bsize),
		TotalBlocks: st.Blocks,
		FreeBlocks:  st.Bavail,
	}, nil
}

type aferoFile struct {
	afero.File
}

func (f *aferoFile) Fd() (uintptr, bool) {
	inner := f.File
	if bp, ok := inner.(*afero.BasePathFile); ok {
		inner = bp.File
	}
	if osf, ok := inner.(*os.File); ok {
		return osf.Fd(), true
	}
	return 0, false
}
