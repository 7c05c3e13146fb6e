// Package pathname validates and canonicalizes the path strings carried in
// SMB1 requests.
//
// A canonical path is relative to the share root, uses '/' as its only
// separator, has no leading or trailing separator, and contains no "." or
// ".." components. The share root itself is the empty string.
package pathname

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"
)

// Canonicalization errors.
var (
	// ErrPathSyntaxBad is returned when ".." would climb above the share root.
	ErrPathSyntaxBad = errors.New("pathname: path escapes share root")

	// ErrNameInvalid is returned for a character that is not allowed in a
	// name, a malformed stream suffix, or an invalid UTF-8 sequence.
	ErrNameInvalid = errors.New("pathname: invalid name")

	// ErrObjectPathInvalid is returned when a wildcard appears in a
	// directory component.
	ErrObjectPathInvalid = errors.New("pathname: wildcard in directory component")
)

// Options selects the canonicalization mode.
type Options struct {
	// Wildcards enables tolerant mode: wildcard metacharacters are accepted
	// in the final component and a standalone "." is skipped. In strict mode
	// both are invalid.
	Wildcards bool

	// Posix treats only '/' as a separator and ':' and the wildcard
	// characters as ordinary name characters.
	Posix bool
}

// Result is a canonicalized path.
type Result struct {
	Path string

	// HasWildcards reports whether the final component contains wildcard
	// metacharacters.
	HasWildcards bool
}

// wildcardChars are the characters that make a mask, including the DOS
// forms '<' (DOS_STAR), '>' (DOS_QM) and '"' (DOS_DOT).
const wildcardChars = `*?<>"`

func isSep(c byte, posix bool) bool {
	return c == '/' || (!posix && c == '\\')
}

// Canonicalize validates raw and returns its canonical form.
//
// The input is scanned once from left to right. Separator runs collapse
// to one, ".." removes the previous component, and a ':' (native mode only)
// starts a stream suffix that runs to the end of the string and may contain
// any character except a separator.
func Canonicalize(raw string, opts Options) (Result, error) {
	out := make([]byte, 0, len(raw))
	var (
		startOfComponent = true
		compWild         bool
		inStream         bool
		streamLen        int
	)

	for i := 0; i < len(raw); {
		c := raw[i]

		if isSep(c, opts.Posix) {
			if inStream {
				return Result{}, ErrNameInvalid
			}
			for i < len(raw) && isSep(raw[i], opts.Posix) {
				i++
			}
			if compWild && i < len(raw) {
				return Result{}, ErrObjectPathInvalid
			}
			if len(out) > 0 && i < len(raw) && out[len(out)-1] != '/' {
				out = append(out, '/')
			}
			startOfComponent = true
			if i < len(raw) {
				compWild = false
			}
			continue
		}

		if startOfComponent && !inStream {
			if n := dotComponent(raw[i:], opts.Posix); n == 2 {
				// Drop the separator we just wrote, then the component before it.
				if len(out) > 0 && out[len(out)-1] == '/' {
					out = out[:len(out)-1]
				}
				if len(out) == 0 {
					return Result{}, ErrPathSyntaxBad
				}
				j := bytes.LastIndexByte(out, '/')
				if j < 0 {
					j = 0
				}
				out = out[:j]
				i += 2
				continue
			} else if n == 1 {
				if !opts.Wildcards && !opts.Posix {
					return Result{}, ErrNameInvalid
				}
				if len(out) > 0 && out[len(out)-1] == '/' && !hasMoreComponents(raw[i+1:], opts.Posix) {
					out = out[:len(out)-1]
				}
				i++
				continue
			}
		}
		startOfComponent = false

		if c >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(raw[i:])
			if r == utf8.RuneError && size <= 1 {
				return Result{}, ErrNameInvalid
			}
			out = append(out, raw[i:i+size]...)
			i += size
			if inStream {
				streamLen++
			}
			continue
		}

		switch {
		case c == 0:
			return Result{}, ErrNameInvalid
		case inStream:
			if c < 0x20 {
				return Result{}, ErrNameInvalid
			}
			streamLen++
		case opts.Posix:
		case c < 0x20 || c == '|':
			return Result{}, ErrNameInvalid
		case c == ':':
			inStream = true
		case strings.IndexByte(wildcardChars, c) >= 0:
			if !opts.Wildcards {
				return Result{}, ErrNameInvalid
			}
			compWild = true
		}
		out = append(out, c)
		i++
	}

	if inStream && streamLen == 0 {
		return Result{}, ErrNameInvalid
	}
	if len(out) > 0 && out[len(out)-1] == '/' {
		out = out[:len(out)-1]
	}

	return Result{Path: string(out), HasWildcards: compWild}, nil
}

// dotComponent returns 1 when s starts with a standalone "." component,
// 2 for "..", and 0 otherwise.
func dotComponent(s string, posix bool) int {
	if len(s) >= 2 && s[0] == '.' && s[1] == '.' && (len(s) == 2 || isSep(s[2], posix)) {
		return 2
	}
	if len(s) >= 1 && s[0] == '.' && (len(s) == 1 || isSep(s[1], posix)) {
		return 1
	}
	return 0
}

func hasMoreComponents(s string, posix bool) bool {
	for i := 0; i < len(s); i++ {
		if !isSep(s[i], posix) {
			return true
		}
	}
	return false
}

// HasWildcards reports whether s contains any wildcard metacharacter.
func HasWildcards(s string) bool {
	return strings.ContainsAny(s, wildcardChars)
}

// SplitDirMask splits a canonical path into its directory and final
// component. The directory of a top-level name is "".
func SplitDirMask(p string) (dir, mask string) {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

// Join appends name to a canonical directory.
func Join(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// Base returns the final component of a canonical path.
func Base(p string) string {
	_, name := SplitDirMask(p)
	return name
}

// Dir returns the parent of a canonical path.
func Dir(p string) string {
	dir, _ := SplitDirMask(p)
	return dir
}

// SplitStream separates a "name:stream" suffix from a canonical path.
func SplitStream(p string) (base, stream string) {
	name := Base(p)
	i := strings.IndexByte(name, ':')
	if i < 0 {
		return p, ""
	}
	cut := len(p) - len(name) + i
	return p[:cut], p[cut+1:]
}
