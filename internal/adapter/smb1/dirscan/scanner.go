// Package dirscan enumerates directory entries that match a DOS wildcard
// mask and keeps the resumable search cursors used by SEARCH and FIND.
package dirscan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/pathname"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/wildcard"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/dosattr"
	"github.com/marmos91/dittosmb/pkg/vfs"
)

// Entry is one matching directory entry.
type Entry struct {
	Name  string
	Info  fs.FileInfo
	Attrs uint16

	// Index is the position of the entry in the scan. Seek(Index+1)
	// resumes right after it.
	Index int
}

// Path returns the share-relative path of the entry within dir.
func (e Entry) Path(dir string) string {
	if e.Name == "." || e.Name == ".." {
		return dir
	}
	return pathname.Join(dir, e.Name)
}

// Options configures a scan.
type Options struct {
	// Share names the share for DOS attribute lookups.
	Share string

	CaseSensitive bool

	// IncludeDots reports "." and ".." ahead of the real entries.
	IncludeDots bool

	// Attrs supplies persisted DOS attributes. May be nil.
	Attrs dosattr.Store
}

// Scanner is a lazy, restartable enumeration of one directory.
type Scanner struct {
	fsys   vfs.FS
	dir    string
	mask   string
	search uint16
	opts   Options

	dirInfo  fs.FileInfo
	entries  []fs.FileInfo
	loaded   bool
	pos      int
	matchAll bool
}

// Open prepares a scan of dir for names matching mask, returning entries
// whose attributes pass the search attribute filter. The listing itself is
// read on the first call to Next.
func Open(fsys vfs.FS, dir, mask string, search uint16, opts Options) (*Scanner, error) {
	info, err := fsys.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan %q: %w", dir, syscall.ENOTDIR)
	}
	return &Scanner{
		fsys:     fsys,
		dir:      dir,
		mask:     mask,
		search:   search,
		opts:     opts,
		dirInfo:  info,
		matchAll: wildcard.IsMatchAll(mask),
	}, nil
}

// Dir returns the scanned directory.
func (s *Scanner) Dir() string { return s.dir }

// Mask returns the search mask.
func (s *Scanner) Mask() string { return s.mask }

// Offset returns the position the next call to Next examines.
func (s *Scanner) Offset() int { return s.pos }

// Seek repositions the scan. Seek(0) restarts it.
func (s *Scanner) Seek(offset int) {
	s.pos = max(offset, 0)
}

func (s *Scanner) dots() int {
	if s.opts.IncludeDots {
		return 2
	}
	return 0
}

func (s *Scanner) load() error {
	if s.loaded {
		return nil
	}
	entries, err := s.fsys.ReadDir(s.dir)
	if err != nil {
		return err
	}
	s.entries = entries
	s.loaded = true
	return nil
}

// Next returns the next matching entry. ok is false at the end of the scan.
func (s *Scanner) Next(ctx context.Context) (Entry, bool, error) {
	if err := s.load(); err != nil {
		return Entry{}, false, err
	}

	total := s.dots() + len(s.entries)
	for s.pos < total {
		idx := s.pos
		s.pos++

		var name string
		var info fs.FileInfo
		if idx < s.dots() {
			name, info = s.dot(idx)
		} else {
			info = s.entries[idx-s.dots()]
			name = info.Name()
		}

		if !s.matchAll && !wildcard.Match(s.mask, name, s.opts.CaseSensitive) {
			continue
		}

		var entryPath string
		if idx >= s.dots() {
			entryPath = pathname.Join(s.dir, name)
		}
		attrs, err := Attributes(ctx, s.opts.Attrs, s.opts.Share, entryPath, info)
		if err != nil {
			logger.WarnCtx(ctx, "dirscan: DOS attribute lookup failed",
				logger.KeyPath, entryPath, logger.KeyError, err)
		}
		if !Visible(attrs, s.search) {
			continue
		}

		return Entry{Name: name, Info: info, Attrs: attrs, Index: idx}, true, nil
	}
	return Entry{}, false, nil
}

func (s *Scanner) dot(idx int) (string, fs.FileInfo) {
	if idx == 0 {
		return ".", s.dirInfo
	}
	if s.dir != "" {
		if parent, err := s.fsys.Stat(pathname.Dir(s.dir)); err == nil {
			return "..", parent
		}
	}
	return "..", s.dirInfo
}

// Attributes derives the DOS attributes of the entry at path. Bits stored
// in the attribute store replace the settable bits derived from info; the
// directory bit always comes from info. path "" skips the store.
func Attributes(ctx context.Context, store dosattr.Store, share, path string, info fs.FileInfo) (uint16, error) {
	var attrs uint16
	if info.IsDir() {
		attrs |= types.AttrDirectory
	}

	var stored uint16
	var ok bool
	var err error
	if store != nil && path != "" {
		stored, ok, err = store.Get(ctx, share, path)
	}

	if ok {
		attrs |= stored & types.AttrSettable
	} else {
		if !info.IsDir() {
			attrs |= types.AttrArchive
		}
		if name := info.Name(); strings.HasPrefix(name, ".") && name != "." && name != ".." {
			attrs |= types.AttrHidden
		}
	}
	if info.Mode().Perm()&0o200 == 0 {
		attrs |= types.AttrReadOnly
	}
	return attrs, err
}

// Visible reports whether an entry with attrs passes the search attribute
// filter. Ordinary files always pass; hidden, system and directory entries
// pass only when the corresponding search bit is set.
func Visible(attrs, search uint16) bool {
	const gated = types.AttrHidden | types.AttrSystem | types.AttrDirectory
	return attrs&gated&^search == 0
}

// ErrNoMatch is returned by Collect when nothing matched.
var ErrNoMatch = errors.New("dirscan: no matching entries")

// Collect drains the scanner.
func Collect(ctx context.Context, s *Scanner) ([]Entry, error) {
	var out []Entry
	for {
		e, ok, err := s.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil, ErrNoMatch
	}
	return out, nil
}
