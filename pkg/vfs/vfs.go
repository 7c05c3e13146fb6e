// Package vfs is the filesystem seen by the SMB1 handlers.
//
// Every share gets its own FS rooted at the share path. Names passed to an
// FS are canonical share-relative paths ('/'-separated, no leading
// separator, "" for the root).
package vfs

import (
	"errors"
	"io"
	"io/fs"
	"time"
)

// ErrNotSupported is returned for operations the backing filesystem cannot
// perform, such as hard links on an in-memory tree.
var ErrNotSupported = errors.New("vfs: operation not supported")

// FS is a share-rooted filesystem.
type FS interface {
	Stat(name string) (fs.FileInfo, error)
	Lstat(name string) (fs.FileInfo, error)
	OpenFile(name string, flag int, perm fs.FileMode) (File, error)

	// ReadDir returns the entries of a directory sorted by name.
	ReadDir(name string) ([]fs.FileInfo, error)

	Mkdir(name string, perm fs.FileMode) error

	// Rmdir removes an empty directory.
	Rmdir(name string) error

	// Remove removes a file.
	Remove(name string) error

	// Rename moves oldname to newname, replacing newname if it exists.
	Rename(oldname, newname string) error

	Chtimes(name string, atime, mtime time.Time) error
	Chmod(name string, mode fs.FileMode) error
	Link(oldname, newname string) error

	// Statfs reports capacity of the filesystem holding the share.
	Statfs() (Usage, error)

	// RealPath maps a share path to a host path, or returns ErrNotSupported
	// when the tree is not backed by the host filesystem.
	RealPath(name string) (string, error)
}

// File is an open file or directory.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer

	Name() string
	Stat() (fs.FileInfo, error)
	Truncate(size int64) error
	Sync() error

	// Fd returns the host descriptor when the file is backed by one.
	Fd() (uintptr, bool)
}

// Usage is a filesystem capacity report in bytes.
type Usage struct {
	BlockSize   uint64
	TotalBlocks uint64
	FreeBlocks  uint64
}
