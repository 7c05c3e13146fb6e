package handlers

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/oplock"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/transfer"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/pkg/access"
	"github.com/marmos91/dittosmb/pkg/locktable"
	"github.com/marmos91/dittosmb/pkg/spool"
	"github.com/marmos91/dittosmb/pkg/vfs"
)

// ErrSharingViolation is returned when an open conflicts with the deny mode
// of an existing open, or the existing open denies the requested access.
var ErrSharingViolation = errors.New("sharing violation")

// OpenFile is an open handle (FID).
type OpenFile struct {
	FID    uint16
	TID    uint16
	UID    uint16
	PID    uint32
	ConnID uint64

	Tree *TreeConnect

	// Path is the canonical on-disk path within the share.
	Path string

	// Key identifies the file across connections.
	Key string

	File vfs.File

	// Access is the access granted to the handle.
	Access access.Mode

	// DenyMode is the sharing mode (types.Sharing*) of the open.
	DenyMode uint16

	WriteThrough bool

	// Job is set for print spool files.
	Job *spool.Job

	OpenedAt time.Time

	mu       sync.Mutex
	wrap     transfer.WrapState
	position uint64
}

// owner returns the lock owner of the handle for process pid.
func (f *OpenFile) owner(pid uint32) locktable.Owner {
	return locktable.Owner{ConnID: f.ConnID, UID: f.UID, PID: pid, FID: f.FID}
}

func (f *OpenFile) holder() oplock.Holder {
	return oplock.Holder{ConnID: f.ConnID, FID: f.FID}
}

func (f *OpenFile) lockFile() locktable.FileID {
	return locktable.FileID(f.Key)
}

func (f *OpenFile) oplockFile() oplock.FileID {
	return oplock.FileID(f.Key)
}

// resolveOffset widens a 32-bit write offset with the handle's 4 GiB epoch.
func (f *OpenFile) resolveOffset(off uint32) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wrap.Resolve(off)
}

// observeWrite records a completed write for offset widening and SEEK.
func (f *OpenFile) observeWrite(offset uint64, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wrap.Observe(offset, n)
	f.position = offset + uint64(n)
}

// setPosition records the file pointer after a read.
func (f *OpenFile) setPosition(pos uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = pos
}

// Position returns the current file pointer.
func (f *OpenFile) Position() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

// canRead reports whether the handle was opened for reading.
func (f *OpenFile) canRead() bool {
	return f.Access&(access.ModeRead|access.ModeExecute) != 0
}

func (f *OpenFile) canWrite() bool {
	return f.Access&access.ModeWrite != 0
}

// OpenTable tracks every open handle in the process by file identity and
// enforces sharing (deny) modes between them.
type OpenTable struct {
	mu    sync.Mutex
	files map[string][]*OpenFile
	n     int
}

// NewOpenTable creates an empty table.
func NewOpenTable() *OpenTable {
	return &OpenTable{files: make(map[string][]*OpenFile)}
}

// denies reports whether deny mode d excludes access m.
func denies(d uint16, m access.Mode) bool {
	rw := m & (access.ModeRead | access.ModeWrite | access.ModeExecute)
	switch d {
	case types.SharingDenyAll:
		return rw != 0
	case types.SharingDenyWrite:
		return m&access.ModeWrite != 0
	case types.SharingDenyRead:
		return m&(access.ModeRead|access.ModeExecute) != 0
	}
	return false
}

// Acquire adds f under f.Key unless it conflicts with an existing open.
func (t *OpenTable) Acquire(f *OpenFile) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, other := range t.files[f.Key] {
		if denies(other.DenyMode, f.Access) || denies(f.DenyMode, other.Access) {
			return ErrSharingViolation
		}
	}
	t.files[f.Key] = append(t.files[f.Key], f)
	t.n++
	return nil
}

// Release removes f.
func (t *OpenTable) Release(f *OpenFile) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.files[f.Key]
	for i, other := range list {
		if other == f {
			list = append(list[:i], list[i+1:]...)
			t.n--
			break
		}
	}
	if len(list) == 0 {
		delete(t.files, f.Key)
	} else {
		t.files[f.Key] = list
	}
}

// Count returns the number of opens of key.
func (t *OpenTable) Count(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.files[key])
}

// OpenUnder reports whether key or anything below it (as a directory) is
// open.
func (t *OpenTable) OpenUnder(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.files[key]) > 0 {
		return true
	}
	prefix := key + "/"
	if strings.HasSuffix(key, ":") {
		prefix = key
	}
	for k := range t.files {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// Len returns the number of open handles.
func (t *OpenTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.n
}
