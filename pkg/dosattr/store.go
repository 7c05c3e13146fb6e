// Package dosattr persists the DOS attribute bits (read-only, hidden,
// system, archive) that have no native POSIX representation.
//
// Keys are (share, canonical path). A directory rename moves the entries of
// every descendant along with the directory itself.
package dosattr

import (
	"context"
	"errors"
	"strings"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("dosattr: store closed")

// Store is a DOS attribute store.
type Store interface {
	// Get returns the stored attributes for path. ok is false when nothing
	// was ever stored.
	Get(ctx context.Context, share, path string) (attrs uint16, ok bool, err error)

	// Set stores attrs for path.
	Set(ctx context.Context, share, path string, attrs uint16) error

	// Delete removes path and everything below it.
	Delete(ctx context.Context, share, path string) error

	// Rename moves path and everything below it to newPath.
	Rename(ctx context.Context, share, oldPath, newPath string) error

	Close() error
}

// key joins share and path with a NUL so share names cannot collide with
// path prefixes.
func key(share, path string) string {
	return strings.ToLower(share) + "\x00" + path
}

// isUnder reports whether p is root or a descendant of root.
func isUnder(p, root string) bool {
	if root == "" {
		return true
	}
	return p == root || strings.HasPrefix(p, root+"/")
}
